// Interactive measurement menu
//
// Copyright (C) 2026  Speed Meter Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package menu

import (
	"context"
	"fmt"
	"io"
	"time"

	"shaft-speed-meter/pkg/encoder"
	"shaft-speed-meter/pkg/errors"
	"shaft-speed-meter/pkg/log"
	"shaft-speed-meter/pkg/meter"
)

// Measurer runs one measurement. *meter.Meter implements it.
type Measurer interface {
	Measure(ctx context.Context, policy encoder.Policy) (*meter.Result, error)
	Limits() encoder.Limits
}

// Menu drives the measure/report loop.
type Menu struct {
	prompter *Prompter
	out      io.Writer
	meter    Measurer
	logger   *log.Logger

	// AfterMeasure runs after every stored measurement.
	AfterMeasure func(ctx context.Context, res *meter.Result)
}

// New creates a menu reading answers from in and printing to out.
func New(m Measurer, in io.Reader, out io.Writer) *Menu {
	return &Menu{
		prompter: NewPrompter(in, out),
		out:      out,
		meter:    m,
		logger:   log.GetLogger("menu"),
	}
}

func (mu *Menu) printMenu() {
	fmt.Fprintln(mu.out)
	fmt.Fprintln(mu.out, "-------------Motor Speed Measurement System-------------")
	fmt.Fprintln(mu.out)
	fmt.Fprintln(mu.out, "Please select the measuring method: ")
	fmt.Fprintln(mu.out, "[1] Fixed Time ")
	fmt.Fprintln(mu.out, "[2] Fixed Pulse ")
	fmt.Fprintln(mu.out, "[3] Exit program")
}

// Run shows the menu until the user exits, the input ends or ctx is
// cancelled. Exiting from the menu returns nil; cancellation returns the
// context error.
func (mu *Menu) Run(ctx context.Context) error {
	for {
		mu.printMenu()
		choice, err := mu.prompter.Line(ctx, "Enter your choice (1 - 3): ")
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		var policy encoder.Policy
		switch choice {
		case "1":
			policy, err = mu.askDuration(ctx)
		case "2":
			policy, err = mu.askPulses(ctx)
		case "3":
			fmt.Fprintln(mu.out, "Exiting the program")
			return nil
		default:
			fmt.Fprintln(mu.out, "Invalid input.")
			continue
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		if err := mu.measure(ctx, policy); err != nil {
			return err
		}
	}
}

func (mu *Menu) askDuration(ctx context.Context) (encoder.Policy, error) {
	maxSec := int(mu.meter.Limits().MaxDuration / time.Second)
	n, err := mu.prompter.Int(ctx, IntPrompt{
		Prompt:     fmt.Sprintf("Enter time interval (1 - %d seconds): ", maxSec),
		Min:        1,
		Max:        maxSec,
		OutOfRange: "Please choose a number within the range.",
		Invalid:    "Invalid number.",
	})
	if err != nil {
		return encoder.Policy{}, err
	}
	fmt.Fprintf(mu.out, "Counting pulses for %d seconds.....\n", n)
	return encoder.DurationPolicy(time.Duration(n) * time.Second), nil
}

func (mu *Menu) askPulses(ctx context.Context) (encoder.Policy, error) {
	maxPulses := mu.meter.Limits().MaxPulses
	n, err := mu.prompter.Int(ctx, IntPrompt{
		Prompt:     fmt.Sprintf("Enter number of pulses to count (1 - %d): ", maxPulses),
		Min:        1,
		Max:        maxPulses,
		OutOfRange: fmt.Sprintf("Please enter a number between 1 and %d.", maxPulses),
		Invalid:    "Invalid input",
	})
	if err != nil {
		return encoder.Policy{}, err
	}
	fmt.Fprintf(mu.out, "Counting %d pulses.....\n", n)
	return encoder.PulseTargetPolicy(n), nil
}

// measure runs one measurement. Only cancellation ends the menu; other
// failures are reported and the menu continues.
func (mu *Menu) measure(ctx context.Context, policy encoder.Policy) error {
	res, err := mu.meter.Measure(ctx, policy)
	if err != nil && errors.IsCancelled(err) {
		return ctx.Err()
	}
	if res == nil {
		mu.logger.WithError(err).WithField("policy", policy.String()).Warn("measurement not completed")
		fmt.Fprintf(mu.out, "Measurement failed: %v\n", err)
		return nil
	}

	WriteReport(mu.out, res)
	if err != nil {
		mu.logger.WithError(err).Warn("measurement not saved")
		fmt.Fprintf(mu.out, "Result not saved: %v\n", err)
		return nil
	}
	if mu.AfterMeasure != nil {
		mu.AfterMeasure(ctx, res)
	}
	return nil
}

// WriteReport prints the result block shown after a measurement.
func WriteReport(w io.Writer, res *meter.Result) {
	elapsed := res.Elapsed()
	if elapsed == 0 {
		fmt.Fprintln(w, "Error in measurement!")
	}

	title, rule := "--------Fixed Time Results--------", "---------------------------------------"
	if res.Record.Method == encoder.MethodPulseTarget {
		title, rule = "--------Fixed Pulses Results--------", "--------------------------------------------"
	}

	r := res.Record.Rate
	fmt.Fprintf(w, "\n%s\n\n", title)
	fmt.Fprintf(w, "Pulse Count: %d\n", res.Raw.EdgeCount)
	fmt.Fprintf(w, "Elapsed Time: %.2f seconds\n", elapsed.Seconds())
	fmt.Fprintf(w, "Frequency: %.3f Hz\n", r.FrequencyHz)
	fmt.Fprintf(w, "Angular Velocity: %.3f RPM\n", r.RPM)
	fmt.Fprintf(w, "Angular Velocity: %.3f rad/s\n", r.RadPerSec)
	fmt.Fprintf(w, "\n%s\n\n", rule)
}
