// Line prompts
//
// Copyright (C) 2026  Speed Meter Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package menu implements the interactive measurement menu.
package menu

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// Prompter reads answers line by line. Reads honour context cancellation,
// so a pending prompt returns as soon as the context is done.
type Prompter struct {
	out io.Writer

	once  sync.Once
	in    io.Reader
	lines chan string
	err   error
}

// NewPrompter creates a prompter reading from in and writing prompts to out.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: in, out: out}
}

func (p *Prompter) start() {
	p.lines = make(chan string)
	go func() {
		sc := bufio.NewScanner(p.in)
		for sc.Scan() {
			p.lines <- sc.Text()
		}
		p.err = sc.Err()
		if p.err == nil {
			p.err = io.EOF
		}
		close(p.lines)
	}()
}

// Line prints prompt and returns the next trimmed input line. It returns
// io.EOF once the input is exhausted.
func (p *Prompter) Line(ctx context.Context, prompt string) (string, error) {
	p.once.Do(p.start)
	fmt.Fprint(p.out, prompt)

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-p.lines:
		if !ok {
			return "", p.err
		}
		return strings.TrimSpace(line), nil
	}
}

// IntPrompt describes a bounded integer question.
type IntPrompt struct {
	Prompt     string
	Min, Max   int
	OutOfRange string
	Invalid    string
}

// Int asks until the answer is an integer within [Min, Max]. Bad answers
// print the matching message and ask again.
func (p *Prompter) Int(ctx context.Context, q IntPrompt) (int, error) {
	for {
		line, err := p.Line(ctx, q.Prompt)
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(line)
		if err != nil {
			fmt.Fprintln(p.out, q.Invalid)
			continue
		}
		if n < q.Min || n > q.Max {
			fmt.Fprintln(p.out, q.OutOfRange)
			continue
		}
		return n, nil
	}
}
