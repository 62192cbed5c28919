// Typed meter configuration
//
// Copyright (C) 2026  Speed Meter Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package config

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"

	"shaft-speed-meter/pkg/edge"
	"shaft-speed-meter/pkg/encoder"
	"shaft-speed-meter/pkg/errors"
)

// DefaultPath is the configuration file read when no -config flag is given.
const DefaultPath = "speedmeter.cfg"

// DefaultCSVPath is the result store used when [storage] path is unset.
const DefaultCSVPath = "Motor_Speed_Measurement_System.csv"

// Input drivers.
const (
	DriverGPIOCDev  = "gpiocdev"
	DriverSimulated = "simulated"
)

// InputConfig selects and configures the edge source.
type InputConfig struct {
	Driver      string
	Line        edge.LineConfig
	SimulatedHz float64
}

// StorageConfig locates the result store and its optional mirror.
type StorageConfig struct {
	Path        string
	PostgresDSN string
}

// ViewerConfig configures the live result viewer.
type ViewerConfig struct {
	Listen  string
	Refresh time.Duration
}

// MetricsConfig configures the metrics endpoint. An empty Listen disables it.
type MetricsConfig struct {
	Listen   string
	Username string
	Password string
}

// MeterConfig is the typed, validated configuration of the meter.
type MeterConfig struct {
	Encoder encoder.Config
	Input   InputConfig
	Limits  encoder.Limits
	Storage StorageConfig
	Viewer  ViewerConfig
	Metrics MetricsConfig

	// Warnings lists unknown sections and options found in the file.
	Warnings []string
}

// DefaultMeterConfig returns the configuration used when no file exists:
// a 12 pulse encoder on BCM 17 with the pull-up enabled.
func DefaultMeterConfig() MeterConfig {
	return MeterConfig{
		Encoder: encoder.Config{Resolution: 12},
		Input: InputConfig{
			Driver:      DriverGPIOCDev,
			Line:        edge.DefaultLineConfig(),
			SimulatedHz: 24,
		},
		Limits:  encoder.DefaultLimits(),
		Storage: StorageConfig{Path: DefaultCSVPath},
		Viewer:  ViewerConfig{Listen: ":8090", Refresh: time.Second},
		Metrics: MetricsConfig{Listen: ":9100"},
	}
}

// envOverrides maps environment variables onto section options.
var envOverrides = []struct {
	env, section, option string
}{
	{"SPEEDMETER_RESOLUTION", "encoder", "resolution"},
	{"SPEEDMETER_DRIVER", "input", "driver"},
	{"SPEEDMETER_LINE", "input", "line"},
	{"SPEEDMETER_CSV", "storage", "path"},
	{"SPEEDMETER_POSTGRES_DSN", "storage", "postgres_dsn"},
	{"SPEEDMETER_VIEWER_LISTEN", "viewer", "listen"},
	{"SPEEDMETER_METRICS_LISTEN", "metrics", "listen"},
}

// LoadMeterConfig reads path (a missing file yields the defaults), loads a
// .env file from the working directory if present, applies SPEEDMETER_*
// environment overrides and validates the result.
func LoadMeterConfig(path string) (MeterConfig, error) {
	_ = godotenv.Load() // ignore missing file

	c, err := Load(path)
	if err != nil {
		if !stderrors.Is(err, fs.ErrNotExist) {
			return MeterConfig{}, err
		}
		c = New()
	}
	return FromConfig(c)
}

// Set overrides an option, creating the section if needed.
func (c *Config) Set(section, option, value string) {
	c.addSection(section, map[string]string{option: value})
}

// FromConfig builds a MeterConfig from parsed sections after applying
// environment overrides.
func FromConfig(c *Config) (MeterConfig, error) {
	for _, o := range envOverrides {
		if v, ok := os.LookupEnv(o.env); ok {
			c.Set(o.section, o.option, v)
		}
	}

	cfg := DefaultMeterConfig()
	one := 1
	zero := 0.0

	enc := c.Section("encoder")
	res, err := enc.GetIntWithBounds("resolution", &one, nil, cfg.Encoder.Resolution)
	if err != nil {
		return MeterConfig{}, err
	}
	cfg.Encoder.Resolution = res

	in := c.Section("input")
	if cfg.Input.Driver, err = in.GetChoice("driver", []string{DriverGPIOCDev, DriverSimulated}, cfg.Input.Driver); err != nil {
		return MeterConfig{}, err
	}
	if cfg.Input.Line, err = in.GetLine("line", cfg.Input.Line); err != nil {
		return MeterConfig{}, err
	}
	if cfg.Input.Line.Consumer, err = in.Get("consumer", cfg.Input.Line.Consumer); err != nil {
		return MeterConfig{}, err
	}
	if cfg.Input.Line.QueueSize, err = in.GetIntWithBounds("queue_size", &one, nil, cfg.Input.Line.QueueSize); err != nil {
		return MeterConfig{}, err
	}
	if cfg.Input.SimulatedHz, err = in.GetFloatWithBounds("simulated_hz", FloatBounds{Above: &zero}, cfg.Input.SimulatedHz); err != nil {
		return MeterConfig{}, err
	}

	lim := c.Section("limits")
	if cfg.Limits.MaxDuration, err = lim.GetSeconds("max_duration", cfg.Limits.MaxDuration); err != nil {
		return MeterConfig{}, err
	}
	if cfg.Limits.MaxDuration < time.Second {
		// The menu asks for whole seconds.
		return MeterConfig{}, located(errors.ErrInvalidConfiguration, "limits", "max_duration",
			fmt.Sprintf("%v is below the 1s minimum", cfg.Limits.MaxDuration))
	}
	if cfg.Limits.MaxPulses, err = lim.GetIntWithBounds("max_pulses", &one, nil, cfg.Limits.MaxPulses); err != nil {
		return MeterConfig{}, err
	}

	st := c.Section("storage")
	if cfg.Storage.Path, err = st.Get("path", cfg.Storage.Path); err != nil {
		return MeterConfig{}, err
	}
	if cfg.Storage.Path == "" {
		return MeterConfig{}, NewConfigError("storage", "path", "must not be empty")
	}
	if cfg.Storage.PostgresDSN, err = st.Get("postgres_dsn", ""); err != nil {
		return MeterConfig{}, err
	}

	vw := c.Section("viewer")
	if cfg.Viewer.Listen, err = vw.Get("listen", cfg.Viewer.Listen); err != nil {
		return MeterConfig{}, err
	}
	if cfg.Viewer.Refresh, err = vw.GetSeconds("refresh", cfg.Viewer.Refresh); err != nil {
		return MeterConfig{}, err
	}

	mt := c.Section("metrics")
	if cfg.Metrics.Listen, err = mt.Get("listen", cfg.Metrics.Listen); err != nil {
		return MeterConfig{}, err
	}
	if cfg.Metrics.Username, err = mt.Get("username", ""); err != nil {
		return MeterConfig{}, err
	}
	if cfg.Metrics.Password, err = mt.Get("password", ""); err != nil {
		return MeterConfig{}, err
	}
	if (cfg.Metrics.Username == "") != (cfg.Metrics.Password == "") {
		return MeterConfig{}, NewConfigError("metrics", "", "username and password must be set together")
	}

	cfg.Warnings = c.UnusedWarnings()
	return cfg, nil
}

// Summary describes the configuration in one line for startup logs.
func (m MeterConfig) Summary() string {
	return fmt.Sprintf("resolution=%d driver=%s line=%s store=%s",
		m.Encoder.Resolution, m.Input.Driver, FormatLine(m.Input.Line), m.Storage.Path)
}
