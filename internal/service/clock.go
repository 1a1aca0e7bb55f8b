package service

import "time"

type realClock struct{}

// NewClock returns the wall-clock implementation of Clock.
func NewClock() Clock { return realClock{} }

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
