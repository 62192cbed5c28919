// GPIO character device line source
//
// Copyright (C) 2026  Speed Meter Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

//go:build linux

package edge

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/warthog618/go-gpiocdev"
	"golang.org/x/sys/unix"

	"shaft-speed-meter/pkg/errors"
)

// ErrKernelOverflow is wrapped by the fault reported when the kernel event
// buffer dropped edges.
var ErrKernelOverflow = stderrors.New("kernel line event buffer overflow")

// LineSource detects rising edges on a GPIO character device line.
type LineSource struct {
	cfg   LineConfig
	clock MonotonicClock
}

// NewLineSource creates a source for the given line. The line is requested
// only while armed.
func NewLineSource(cfg LineConfig) *LineSource {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "speedmeter"
	}
	return &LineSource{cfg: cfg}
}

// Name returns chip:offset.
func (s *LineSource) Name() string { return s.cfg.Name() }

// Now reads CLOCK_MONOTONIC, matching the kernel's event timestamps.
func (s *LineSource) Now() time.Duration { return s.clock.Now() }

// Arm requests the line with rising-edge detection.
func (s *LineSource) Arm(ctx context.Context) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h := &lineHandle{queue: NewQueue(s.cfg.QueueSize)}
	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithConsumer(s.cfg.Consumer),
		gpiocdev.WithRisingEdge,
		gpiocdev.WithEventBufferSize(s.cfg.QueueSize),
		gpiocdev.WithEventHandler(h.onEvent),
	}
	switch s.cfg.Bias {
	case BiasPullUp:
		opts = append(opts, gpiocdev.WithPullUp)
	case BiasPullDown:
		opts = append(opts, gpiocdev.WithPullDown)
	case BiasDisabled:
		opts = append(opts, gpiocdev.WithBiasDisabled)
	}
	if s.cfg.ActiveLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}

	line, err := gpiocdev.RequestLine(s.cfg.Chip, s.cfg.Offset, opts...)
	if err != nil {
		lerr := errors.LineUnavailable(s.Name(), err)
		if stderrors.Is(err, unix.EBUSY) {
			lerr.SetContext("hint", "line is requested by another consumer")
		}
		return nil, lerr
	}
	h.line = line
	return h, nil
}

type lineHandle struct {
	queue   *Queue
	line    *gpiocdev.Line
	lastSeq atomic.Uint32
	once    sync.Once
}

// onEvent runs on the gpiocdev watcher goroutine. It must only enqueue.
func (h *lineHandle) onEvent(evt gpiocdev.LineEvent) {
	if evt.Type != gpiocdev.LineEventRisingEdge {
		return
	}
	prev := h.lastSeq.Swap(evt.LineSeqno)
	if prev != 0 && evt.LineSeqno > prev+1 {
		h.queue.Fail(errors.HardwareFault(
			fmt.Sprintf("%d edges dropped by the kernel", evt.LineSeqno-prev-1), ErrKernelOverflow))
	}
	h.queue.Push(evt.Timestamp)
}

func (h *lineHandle) Wait(ctx context.Context, timeout time.Duration) (time.Duration, bool, error) {
	return h.queue.Wait(ctx, timeout)
}

func (h *lineHandle) Release() {
	h.once.Do(func() {
		if h.line != nil {
			_ = h.line.Close()
		}
	})
}
