package auth

import (
	"context"
	"time"
)

// SignInEvent describes a completed authentication attempt.
type SignInEvent struct {
	Provider  string
	UserID    string
	Email     string
	Strategy  string
	Success   bool
	Reason    string
	Timestamp time.Time
}

// SignOutEvent describes a session teardown.
type SignOutEvent struct {
	UserID    string
	Strategy  string
	Timestamp time.Time
}

// SessionEvent describes a session refresh or resolution.
type SessionEvent struct {
	UserID    string
	Strategy  string
	Refreshed bool
	Timestamp time.Time
}

// Sink receives authentication lifecycle events. Dispatch is fire and forget:
// sinks must not block and their errors never affect the triggering request.
type Sink interface {
	SignedIn(ctx context.Context, evt SignInEvent)
	SignedOut(ctx context.Context, evt SignOutEvent)
	SessionResolved(ctx context.Context, evt SessionEvent)
}

// SinkFuncs adapts plain functions to the Sink interface. Nil fields are
// skipped.
type SinkFuncs struct {
	OnSignedIn        func(ctx context.Context, evt SignInEvent)
	OnSignedOut       func(ctx context.Context, evt SignOutEvent)
	OnSessionResolved func(ctx context.Context, evt SessionEvent)
}

// SignedIn implements Sink.
func (s SinkFuncs) SignedIn(ctx context.Context, evt SignInEvent) {
	if s.OnSignedIn != nil {
		s.OnSignedIn(ctx, evt)
	}
}

// SignedOut implements Sink.
func (s SinkFuncs) SignedOut(ctx context.Context, evt SignOutEvent) {
	if s.OnSignedOut != nil {
		s.OnSignedOut(ctx, evt)
	}
}

// SessionResolved implements Sink.
func (s SinkFuncs) SessionResolved(ctx context.Context, evt SessionEvent) {
	if s.OnSessionResolved != nil {
		s.OnSessionResolved(ctx, evt)
	}
}

type noopSink struct{}

func (noopSink) SignedIn(context.Context, SignInEvent)         {}
func (noopSink) SignedOut(context.Context, SignOutEvent)       {}
func (noopSink) SessionResolved(context.Context, SessionEvent) {}

func normalizeSink(s Sink) Sink {
	if s == nil {
		return noopSink{}
	}
	return s
}
