// Simulated fixed-rate edge source
//
// Copyright (C) 2026  Speed Meter Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package edge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"shaft-speed-meter/pkg/errors"
)

// SimulatedSource emits edges at a fixed rate from a ticker goroutine, for
// bench runs without an encoder attached.
type SimulatedSource struct {
	hz        float64
	queueSize int
	clock     Clock

	mu    sync.Mutex
	armed bool
}

// NewSimulatedSource creates a source producing hz rising edges per second.
func NewSimulatedSource(hz float64, queueSize int) *SimulatedSource {
	return &SimulatedSource{hz: hz, queueSize: queueSize, clock: MonotonicClock{}}
}

// Name identifies the simulated line.
func (s *SimulatedSource) Name() string { return fmt.Sprintf("simulated:%gHz", s.hz) }

// Now reads the monotonic clock.
func (s *SimulatedSource) Now() time.Duration { return s.clock.Now() }

// Arm starts the edge generator. A simulated line, like a real one, can only
// be requested once at a time.
func (s *SimulatedSource) Arm(ctx context.Context) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.hz <= 0 {
		return nil, errors.LineUnavailable(s.Name(), fmt.Errorf("rate must be positive"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.armed {
		return nil, errors.LineUnavailable(s.Name(), fmt.Errorf("line busy"))
	}
	s.armed = true

	h := &simHandle{
		src:   s,
		queue: NewQueue(s.queueSize),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go h.run(time.Duration(float64(time.Second) / s.hz))
	return h, nil
}

type simHandle struct {
	src   *SimulatedSource
	queue *Queue
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func (h *simHandle) run(period time.Duration) {
	defer close(h.done)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.queue.Push(h.src.clock.Now())
		case <-h.stop:
			return
		}
	}
}

func (h *simHandle) Wait(ctx context.Context, timeout time.Duration) (time.Duration, bool, error) {
	return h.queue.Wait(ctx, timeout)
}

func (h *simHandle) Release() {
	h.once.Do(func() {
		close(h.stop)
		<-h.done
		h.src.mu.Lock()
		h.src.armed = false
		h.src.mu.Unlock()
	})
}
