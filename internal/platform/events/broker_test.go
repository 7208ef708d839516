package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBrokerDeliversInOrder(t *testing.T) {
	b := NewBroker[int]()
	var got []string
	b.Subscribe(func(v int) { got = append(got, "a") })
	b.Subscribe(func(v int) { got = append(got, "b") })

	b.Publish(1)
	b.Publish(2)

	assert.Equal(t, []string{"a", "b", "a", "b"}, got)
}

func TestBrokerUnsubscribe(t *testing.T) {
	b := NewBroker[string]()
	var got []string
	unsubscribe := b.Subscribe(func(v string) { got = append(got, v) })

	b.Publish("first")
	unsubscribe()
	unsubscribe()
	b.Publish("second")

	assert.Equal(t, []string{"first"}, got)
	assert.Equal(t, 0, b.Len())
}

func TestBrokerNilSubscriber(t *testing.T) {
	b := NewBroker[int]()
	unsubscribe := b.Subscribe(nil)
	unsubscribe()
	assert.Equal(t, 0, b.Len())
	b.Publish(1)
}
