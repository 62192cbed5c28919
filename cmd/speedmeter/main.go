// Shaft speed meter CLI
//
// Copyright (C) 2026  Speed Meter Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// speedmeter measures the rotational speed of an encoder-fitted shaft.
// It counts rising edges on a GPIO line for a fixed time or until a fixed
// number of pulses, prints the result and appends it to the CSV store.
//
// Usage:
//
//	speedmeter [-config speedmeter.cfg] [options]
//
// Options:
//
//	-config string    Meter configuration file (default "speedmeter.cfg")
//	-driver string    Override the [input] driver: gpiocdev or simulated
//	-logfile string   Log file path (default: warnings to stderr)
//	-reset            Erase the result store before starting
//
// Examples:
//
//	# Measure on the configured line
//	speedmeter
//
//	# Try the menu without hardware
//	speedmeter -driver simulated
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shaft-speed-meter/pkg/config"
	"shaft-speed-meter/pkg/edge"
	"shaft-speed-meter/pkg/log"
	"shaft-speed-meter/pkg/menu"
	"shaft-speed-meter/pkg/meter"
	"shaft-speed-meter/pkg/metrics"
	"shaft-speed-meter/pkg/store"
	"shaft-speed-meter/pkg/viewer"
)

func main() {
	configFile := flag.String("config", config.DefaultPath, "Meter configuration file")
	driver := flag.String("driver", "", "Override the [input] driver (gpiocdev|simulated)")
	logFile := flag.String("logfile", "", "Log file path (default: warnings to stderr)")
	reset := flag.Bool("reset", false, "Erase the result store before starting")
	flag.Parse()

	closeLog, err := setupLogging(*logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configFile, *driver, *reset); err != nil {
		if ctx.Err() != nil {
			fmt.Println("\nProgram terminated by user.")
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		closeLog()
		os.Exit(1)
	}
}

// setupLogging sends logs to a rotating file at INFO, or to stderr at WARN
// so the menu stays readable. SPEEDMETER_LOG_* variables still apply.
func setupLogging(path string) (func(), error) {
	logger := log.New("speedmeter")
	closeFn := func() {}

	if path != "" {
		fw, err := log.NewRotatingFileWriter(log.RotationConfig{Filename: path, Compress: true})
		if err != nil {
			return nil, err
		}
		logger.SetWriter(fw)
		logger.SetColorize(false)
		closeFn = func() { _ = fw.Close() }
	} else {
		logger.SetLevel(log.WARN)
	}

	log.ConfigureFromEnv(logger)
	log.SetDefaultLogger(logger)
	return closeFn, nil
}

func run(ctx context.Context, configFile, driver string, reset bool) error {
	logger := log.GetLogger("main")

	cfg, err := config.LoadMeterConfig(configFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if driver != "" {
		if driver != config.DriverGPIOCDev && driver != config.DriverSimulated {
			return fmt.Errorf("unknown driver %q", driver)
		}
		cfg.Input.Driver = driver
	}
	for _, w := range cfg.Warnings {
		logger.Warn("config %s: %s", configFile, w)
	}
	logger.Info("config: %s", cfg.Summary())

	mm := metrics.New()
	if cfg.Metrics.Listen != "" {
		ms := metrics.NewMetricsServerWithConfig(mm, metrics.MetricsServerConfig{
			Address:      cfg.Metrics.Listen,
			Username:     cfg.Metrics.Username,
			Password:     cfg.Metrics.Password,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		})
		errCh := ms.StartAsync()
		go func() {
			if err := <-errCh; err != nil {
				logger.WithError(err).Warn("metrics server stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = ms.Shutdown(shutdownCtx)
		}()
	}

	csv := store.NewCSVStore(cfg.Storage.Path)
	if reset {
		if err := csv.Initialize(); err != nil {
			return err
		}
		fmt.Printf("Result store %s reset\n", csv.Path())
	}

	var mirrors []store.Sink
	if cfg.Storage.PostgresDSN != "" {
		mirror, err := openMirror(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			logger.WithError(err).Warn("postgres mirror disabled")
		} else {
			defer mirror.Close()
			mirrors = append(mirrors, mirror)
		}
	}
	sink := store.NewFanOut(csv, mirrors...).Observe(mm.ObserveAppend)

	var src edge.Source
	switch cfg.Input.Driver {
	case config.DriverSimulated:
		src = edge.NewSimulatedSource(cfg.Input.SimulatedHz, cfg.Input.Line.QueueSize)
	default:
		src = edge.NewLineSource(cfg.Input.Line)
	}

	m, err := meter.New(cfg.Encoder, cfg.Limits, src, sink, meter.WithMetrics(mm))
	if err != nil {
		return err
	}
	fmt.Printf("Input %s ready (%s, %d pulses/rev)\n", src.Name(), cfg.Input.Driver, cfg.Encoder.Resolution)

	mu := menu.New(m, os.Stdin, os.Stdout)
	mu.AfterMeasure = func(_ context.Context, _ *meter.Result) {
		records, skipped, err := csv.ReadAll()
		if err != nil {
			logger.WithError(err).Warn("cannot read results for display")
			return
		}
		if skipped > 0 {
			logger.Warn("skipped %d malformed rows in %s", skipped, csv.Path())
		}
		_ = viewer.Render(os.Stdout, records, viewer.DefaultRenderOptions())
	}

	return mu.Run(ctx)
}

func openMirror(ctx context.Context, dsn string) (*store.SQLMirror, error) {
	db, err := store.OpenPostgres(ctx, dsn)
	if err != nil {
		return nil, err
	}
	mirror, err := store.NewSQLMirror(db, dsn)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := mirror.Migrate(ctx); err != nil {
		mirror.Close()
		return nil, err
	}
	return mirror, nil
}
