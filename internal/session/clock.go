package session

import "time"

// Timer is a cancellable one-shot callback.
type Timer interface {
	Stop() bool
}

// Clock abstracts time so refresh scheduling can be tested.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
