// Bounded edge queue
//
// Copyright (C) 2026  Speed Meter Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package edge

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"shaft-speed-meter/pkg/errors"
)

// DefaultQueueSize is the number of undelivered edges buffered per handle.
const DefaultQueueSize = 1024

// ErrOverflow is wrapped by the fault reported after edges were dropped.
var ErrOverflow = stderrors.New("edge queue overflow")

// Queue carries edge timestamps from a callback context to the counting loop.
//
// Push never blocks. When the queue is full the edge is dropped and counted,
// and the next Wait fails with a hardware fault; an acquisition never
// completes with lost edges.
type Queue struct {
	events  chan time.Duration
	faults  chan error
	dropped atomic.Uint64

	faultOnce sync.Once
}

// NewQueue creates a queue holding up to size edges.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{
		events: make(chan time.Duration, size),
		faults: make(chan error, 1),
	}
}

// Push enqueues an edge timestamp. It reports false if the edge was dropped.
func (q *Queue) Push(ts time.Duration) bool {
	select {
	case q.events <- ts:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Fail records a fault for the consumer. Only the first fault is kept.
func (q *Queue) Fail(err error) {
	q.faultOnce.Do(func() {
		q.faults <- err
	})
}

// Dropped returns the number of edges lost to a full queue.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Len returns the number of buffered edges.
func (q *Queue) Len() int {
	return len(q.events)
}

// Wait implements Handle.Wait on top of the queue.
func (q *Queue) Wait(ctx context.Context, timeout time.Duration) (time.Duration, bool, error) {
	if n := q.dropped.Load(); n > 0 {
		return 0, false, errors.HardwareFault(fmt.Sprintf("%d edges lost", n), ErrOverflow).
			SetContext("dropped", n)
	}
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}

	// Buffered edges are delivered before a pending fault or timeout.
	select {
	case ts := <-q.events:
		return ts, true, nil
	default:
	}

	var expired <-chan time.Time
	if timeout >= 0 {
		if timeout == 0 {
			return 0, false, nil
		}
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case ts := <-q.events:
		return ts, true, nil
	case err := <-q.faults:
		// Keep the fault visible to later waits.
		q.faults <- err
		if errors.Is(err, errors.ErrHardwareFault) {
			return 0, false, err
		}
		return 0, false, errors.HardwareFault("edge source fault", err)
	case <-expired:
		return 0, false, nil
	case <-ctx.Done():
		return 0, false, ctx.Err()
	}
}
