package shared

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestMoveTo(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	ids := []uuid.UUID{a, b, c}

	got, ok := MoveTo(ids, c, 0)
	assert.True(t, ok)
	assert.Equal(t, []uuid.UUID{c, a, b}, got)
	assert.Equal(t, []uuid.UUID{a, b, c}, ids, "input is not modified")

	got, _ = MoveTo(ids, a, 1)
	assert.Equal(t, []uuid.UUID{b, a, c}, got)

	got, _ = MoveTo(ids, a, 99)
	assert.Equal(t, []uuid.UUID{b, c, a}, got)

	got, _ = MoveTo(ids, b, -4)
	assert.Equal(t, []uuid.UUID{b, a, c}, got)

	_, ok = MoveTo(ids, uuid.New(), 0)
	assert.False(t, ok)
}

func TestStep(t *testing.T) {
	assert.Equal(t, 1, Step(2, "up"))
	assert.Equal(t, 3, Step(2, "down"))
	assert.Equal(t, 2, Step(2, "sideways"))
}
