// Scripted edge source for tests
//
// Copyright (C) 2026  Speed Meter Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package edgetest provides a scripted edge source running on a virtual
// clock, for deterministic tests of code that consumes edge.Source.
package edgetest

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"shaft-speed-meter/pkg/edge"
	"shaft-speed-meter/pkg/errors"
)

// ErrInjected is wrapped by faults raised through FaultAfter.
var ErrInjected = stderrors.New("injected hardware fault")

// Source replays a fixed list of edge times. Waiting for an edge advances the
// virtual clock to that edge; a timeout advances it by the timeout.
type Source struct {
	mu sync.Mutex

	now       time.Duration
	edges     []time.Duration
	next      int
	faultAt   int
	armErr    error
	onWait    func(delivered int)
	armed     int
	released  int
	active    bool
	waitCalls int
}

// New creates a source starting at start whose edges occur at the given
// absolute virtual times.
func New(start time.Duration, edges ...time.Duration) *Source {
	return &Source{now: start, edges: edges, faultAt: -1}
}

// Uniform creates a source with n edges evenly spread over span after start,
// the last one landing at start+span.
func Uniform(start time.Duration, n int, span time.Duration) *Source {
	edges := make([]time.Duration, n)
	for i := 1; i <= n; i++ {
		edges[i-1] = start + span*time.Duration(i)/time.Duration(n)
	}
	return New(start, edges...)
}

// Spread creates a source with n edges at the centres of n equal slots of
// span after start, so every edge falls strictly inside the window.
func Spread(start time.Duration, n int, span time.Duration) *Source {
	edges := make([]time.Duration, n)
	for i := 0; i < n; i++ {
		edges[i] = start + span*time.Duration(2*i+1)/time.Duration(2*n)
	}
	return New(start, edges...)
}

// FaultAfter makes Wait fail with a hardware fault once n edges have been
// delivered.
func (s *Source) FaultAfter(n int) *Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faultAt = n
	return s
}

// FailArm makes Arm fail with a LINE_UNAVAILABLE error wrapping err.
func (s *Source) FailArm(err error) *Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armErr = err
	return s
}

// OnWait registers a hook called at the start of every Wait with the number
// of edges delivered so far. It runs without the source lock held.
func (s *Source) OnWait(fn func(delivered int)) *Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onWait = fn
	return s
}

// Name identifies the scripted line.
func (s *Source) Name() string { return "edgetest" }

// Now returns the virtual clock.
func (s *Source) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Advance moves the virtual clock forward.
func (s *Source) Advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now += d
}

// Arm registers the scripted line.
func (s *Source) Arm(ctx context.Context) (edge.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.armErr != nil {
		return nil, errors.LineUnavailable(s.Name(), s.armErr)
	}
	if s.active {
		return nil, errors.LineUnavailable(s.Name(), stderrors.New("line busy"))
	}
	s.armed++
	s.active = true
	return &handle{src: s}, nil
}

// Armed returns how many times the line was armed.
func (s *Source) Armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}

// Released returns how many registrations were released.
func (s *Source) Released() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// Active reports whether a registration is currently held.
func (s *Source) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Delivered returns the number of edges handed out.
func (s *Source) Delivered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// WaitCalls returns the number of Wait calls made.
func (s *Source) WaitCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waitCalls
}

type handle struct {
	src  *Source
	once sync.Once
}

func (h *handle) Wait(ctx context.Context, timeout time.Duration) (time.Duration, bool, error) {
	s := h.src

	s.mu.Lock()
	s.waitCalls++
	hook := s.onWait
	delivered := s.next
	s.mu.Unlock()
	if hook != nil {
		hook(delivered)
	}

	if err := ctx.Err(); err != nil {
		return 0, false, err
	}

	s.mu.Lock()
	if s.faultAt >= 0 && s.next >= s.faultAt {
		s.mu.Unlock()
		return 0, false, errors.HardwareFault("scripted fault", ErrInjected)
	}
	if s.next < len(s.edges) {
		ts := s.edges[s.next]
		if timeout == edge.NoTimeout || ts <= s.now+timeout {
			if ts > s.now {
				s.now = ts
			}
			s.next++
			s.mu.Unlock()
			return ts, true, nil
		}
	}
	if timeout != edge.NoTimeout {
		s.now += timeout
		s.mu.Unlock()
		return 0, false, nil
	}
	s.mu.Unlock()

	// Script exhausted with no deadline: block like a silent line.
	<-ctx.Done()
	return 0, false, ctx.Err()
}

func (h *handle) Release() {
	h.once.Do(func() {
		h.src.mu.Lock()
		h.src.released++
		h.src.active = false
		h.src.mu.Unlock()
	})
}
