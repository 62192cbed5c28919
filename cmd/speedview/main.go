// Shaft speed viewer
//
// Copyright (C) 2026  Speed Meter Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// speedview shows the measurements recorded in the result store as three
// live series: RPM, rad/s and Hz. The store is re-read every refresh
// interval, so it can run next to speedmeter.
//
// Usage:
//
//	speedview [-config speedmeter.cfg] [-http] [-once]
//
// Options:
//
//	-config string   Meter configuration file (default "speedmeter.cfg")
//	-http            Serve a browser view on [viewer] listen instead of drawing in the terminal
//	-listen string   Override the [viewer] listen address (implies -http)
//	-once            Draw the current store once and exit
//	-logfile string  Log file path (default: stderr)
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"shaft-speed-meter/pkg/config"
	"shaft-speed-meter/pkg/log"
	"shaft-speed-meter/pkg/store"
	"shaft-speed-meter/pkg/viewer"
)

func main() {
	configFile := flag.String("config", config.DefaultPath, "Meter configuration file")
	httpMode := flag.Bool("http", false, "Serve a browser view instead of drawing in the terminal")
	listen := flag.String("listen", "", "Override the [viewer] listen address (implies -http)")
	once := flag.Bool("once", false, "Draw the current store once and exit")
	logFile := flag.String("logfile", "", "Log file path (default: stderr)")
	flag.Parse()

	if *logFile != "" {
		logger, fw, err := log.NewConsoleAndFileLogger("speedview", log.RotationConfig{Filename: *logFile})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
			os.Exit(1)
		}
		defer fw.Close()
		log.ConfigureFromEnv(logger)
		log.SetDefaultLogger(logger)
	}
	logger := log.GetLogger("main")

	cfg, err := config.LoadMeterConfig(*configFile)
	if err != nil {
		logger.Error("loading config: %v", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Viewer.Listen = *listen
		*httpMode = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case *once:
		err = drawOnce(cfg.Storage.Path)
	case *httpMode:
		err = viewer.NewServer(viewer.Config{
			Listen:  cfg.Viewer.Listen,
			Path:    cfg.Storage.Path,
			Refresh: cfg.Viewer.Refresh,
		}).Run(ctx)
	default:
		err = watch(ctx, cfg)
	}
	if err != nil && ctx.Err() == nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}

func drawOnce(path string) error {
	records, _, err := store.NewCSVStore(path).ReadAll()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Printf("No measurements in %s\n", path)
		return nil
	}
	return viewer.Render(os.Stdout, records, viewer.DefaultRenderOptions())
}

// watch redraws the terminal whenever the store changes.
func watch(ctx context.Context, cfg config.MeterConfig) error {
	series := viewer.NewSeries(viewer.DefaultHistory)
	p := viewer.NewPoller(cfg.Storage.Path, series, cfg.Viewer.Refresh)

	fmt.Printf("Watching %s (Ctrl+C to stop)\n", cfg.Storage.Path)
	return p.Run(ctx, func(viewer.Update) {
		fmt.Print("\033[H\033[2J")
		if err := viewer.Render(os.Stdout, series.Records(), viewer.DefaultRenderOptions()); err != nil {
			log.GetLogger("main").WithError(err).Warn("render failed")
		}
	})
}
