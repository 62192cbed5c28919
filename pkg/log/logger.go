// Structured logging for the shaft speed meter
//
// Provides leveled logging with:
// - Structured fields (key-value pairs)
// - Text or JSON output
// - ANSI colors for terminal output
// - Per-component loggers sharing one output
//
// Copyright (C) 2026  Speed Meter Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package log

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	// DEBUG level for detailed debugging information
	DEBUG LogLevel = iota

	// INFO level for general informational messages
	INFO

	// WARN level for warning messages
	WARN

	// ERROR level for error messages
	ERROR
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a string into a LogLevel, defaulting to INFO
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// OutputFormat specifies the output format for log messages
type OutputFormat int

const (
	// FormatText outputs human-readable text format
	FormatText OutputFormat = iota
	// FormatJSON outputs one JSON object per line
	FormatJSON
)

// Fields is a map of structured logging fields
type Fields map[string]interface{}

// sink is the output shared by a logger and its prefixed children.
type sink struct {
	mu         sync.Mutex
	writer     io.Writer
	level      LogLevel
	timeFormat string
	colorize   bool
	outFormat  OutputFormat
	caller     bool
}

// Logger writes leveled messages under a component prefix
type Logger struct {
	prefix string
	out    *sink
}

// Entry is a pending log line carrying fields
type Entry struct {
	logger *Logger
	fields Fields
}

var (
	defaultMu     sync.Mutex
	defaultLogger *Logger

	ansiColors = map[LogLevel]string{
		DEBUG: "\x1b[36m", // Cyan
		INFO:  "\x1b[32m", // Green
		WARN:  "\x1b[33m", // Yellow
		ERROR: "\x1b[31m", // Red
	}
	ansiReset = "\x1b[0m"
)

// New creates a logger writing to stderr at INFO
func New(prefix string) *Logger {
	return &Logger{
		prefix: prefix,
		out: &sink{
			writer:     os.Stderr,
			level:      INFO,
			timeFormat: "2006-01-02 15:04:05.000",
			colorize:   os.Getenv("NO_COLOR") == "",
			outFormat:  FormatText,
		},
	}
}

// SetLevel sets the minimum log level
func (l *Logger) SetLevel(level LogLevel) {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	l.out.level = level
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() LogLevel {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	return l.out.level
}

// Enabled reports whether messages at level would be written
func (l *Logger) Enabled(level LogLevel) bool {
	return level >= l.GetLevel()
}

// SetWriter sets the output writer
func (l *Logger) SetWriter(w io.Writer) {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	l.out.writer = w
}

// SetColorize enables or disables colorized output
func (l *Logger) SetColorize(enable bool) {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	l.out.colorize = enable
}

// SetFormat sets the output format
func (l *Logger) SetFormat(format OutputFormat) {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	l.out.outFormat = format
}

// SetCaller enables or disables caller info (file:line)
func (l *Logger) SetCaller(enable bool) {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	l.out.caller = enable
}

// WithPrefix returns a logger for another component sharing this output.
func (l *Logger) WithPrefix(prefix string) *Logger {
	return &Logger{prefix: prefix, out: l.out}
}

// Prefix returns the component prefix
func (l *Logger) Prefix() string {
	return l.prefix
}

// WithField returns an Entry with the given field
func (l *Logger) WithField(key string, value interface{}) *Entry {
	return &Entry{logger: l, fields: Fields{key: value}}
}

// WithFields returns an Entry with the given fields
func (l *Logger) WithFields(fields Fields) *Entry {
	cp := make(Fields, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return &Entry{logger: l, fields: cp}
}

// WithError returns an Entry with the error field set
func (l *Logger) WithError(err error) *Entry {
	return l.WithField("error", errString(err))
}

func errString(err error) string {
	if err == nil {
		return "<nil>"
	}
	return err.Error()
}

// Debug logs a message at DEBUG level
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.write(DEBUG, msg, args, nil)
}

// Info logs a message at INFO level
func (l *Logger) Info(msg string, args ...interface{}) {
	l.write(INFO, msg, args, nil)
}

// Warn logs a message at WARN level
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.write(WARN, msg, args, nil)
}

// Error logs a message at ERROR level
func (l *Logger) Error(msg string, args ...interface{}) {
	l.write(ERROR, msg, args, nil)
}

// callerSkip counts getCaller, write and the exported method above the
// call site.
const callerSkip = 3

func (l *Logger) write(level LogLevel, msg string, args []interface{}, fields Fields) {
	s := l.out
	s.mu.Lock()
	defer s.mu.Unlock()

	if level < s.level {
		return
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}

	caller := ""
	if s.caller {
		caller = getCaller(callerSkip)
	}

	var line string
	if s.outFormat == FormatJSON {
		line = l.formatJSON(level, msg, caller, fields)
	} else {
		line = l.formatText(level, msg, caller, fields)
	}
	fmt.Fprint(s.writer, line)
}

func getCaller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown:0"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}

func (l *Logger) formatText(level LogLevel, msg, caller string, fields Fields) string {
	s := l.out
	var sb strings.Builder

	sb.WriteString(time.Now().Format(s.timeFormat))
	sb.WriteString(fmt.Sprintf(" [%-5s] ", level.String()))
	if s.colorize {
		sb.WriteString(ansiColors[level])
	}
	sb.WriteString(l.prefix)
	if s.colorize {
		sb.WriteString(ansiReset)
	}
	sb.WriteString(": ")
	sb.WriteString(msg)

	if caller != "" {
		sb.WriteString(" (")
		sb.WriteString(caller)
		sb.WriteString(")")
	}

	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString(" {")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(k)
			sb.WriteString("=")
			sb.WriteString(fmt.Sprintf("%v", fields[k]))
		}
		sb.WriteString("}")
	}

	sb.WriteString("\n")
	return sb.String()
}

// JSONLogEntry is the structure for JSON formatted log entries
type JSONLogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Logger    string                 `json:"logger"`
	Message   string                 `json:"message"`
	Caller    string                 `json:"caller,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func (l *Logger) formatJSON(level LogLevel, msg, caller string, fields Fields) string {
	entry := JSONLogEntry{
		Timestamp: time.Now().Format(time.RFC3339Nano),
		Level:     level.String(),
		Logger:    l.prefix,
		Message:   msg,
		Caller:    caller,
	}
	if len(fields) > 0 {
		entry.Fields = fields
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal log entry: %v"}`+"\n", err)
	}
	return string(data) + "\n"
}

// WithField adds a field to the entry
func (e *Entry) WithField(key string, value interface{}) *Entry {
	return e.WithFields(Fields{key: value})
}

// WithFields adds multiple fields to the entry
func (e *Entry) WithFields(fields Fields) *Entry {
	merged := make(Fields, len(e.fields)+len(fields))
	for k, v := range e.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Entry{logger: e.logger, fields: merged}
}

// WithError adds an error field to the entry
func (e *Entry) WithError(err error) *Entry {
	return e.WithField("error", errString(err))
}

// Debug logs at DEBUG level with fields
func (e *Entry) Debug(msg string, args ...interface{}) {
	e.logger.write(DEBUG, msg, args, e.fields)
}

// Info logs at INFO level with fields
func (e *Entry) Info(msg string, args ...interface{}) {
	e.logger.write(INFO, msg, args, e.fields)
}

// Warn logs at WARN level with fields
func (e *Entry) Warn(msg string, args ...interface{}) {
	e.logger.write(WARN, msg, args, e.fields)
}

// Error logs at ERROR level with fields
func (e *Entry) Error(msg string, args ...interface{}) {
	e.logger.write(ERROR, msg, args, e.fields)
}

// Package-level functions using the default logger

// SetDefaultLogger replaces the process-wide logger
func SetDefaultLogger(logger *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = logger
}

// Default returns the process-wide logger
func Default() *Logger {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = New("speedmeter")
		ConfigureFromEnv(defaultLogger)
	}
	return defaultLogger
}

// GetLogger returns a component logger sharing the default output
func GetLogger(prefix string) *Logger {
	return Default().WithPrefix(prefix)
}

// Info logs at INFO level using the default logger
func Info(msg string, args ...interface{}) {
	Default().write(INFO, msg, args, nil)
}

// Warn logs at WARN level using the default logger
func Warn(msg string, args ...interface{}) {
	Default().write(WARN, msg, args, nil)
}

// Error logs at ERROR level using the default logger
func Error(msg string, args ...interface{}) {
	Default().write(ERROR, msg, args, nil)
}

// ConfigureFromEnv applies environment-based configuration to the logger.
// Environment variables:
//   - SPEEDMETER_LOG_LEVEL: DEBUG, INFO, WARN, ERROR
//   - SPEEDMETER_LOG_FORMAT: text, json
//   - SPEEDMETER_LOG_CALLER: any non-empty value enables caller info
//   - NO_COLOR: any non-empty value disables colors
func ConfigureFromEnv(l *Logger) {
	if levelStr := os.Getenv("SPEEDMETER_LOG_LEVEL"); levelStr != "" {
		l.SetLevel(ParseLevel(levelStr))
	}
	switch strings.ToLower(os.Getenv("SPEEDMETER_LOG_FORMAT")) {
	case "json":
		l.SetFormat(FormatJSON)
	case "text":
		l.SetFormat(FormatText)
	}
	if os.Getenv("SPEEDMETER_LOG_CALLER") != "" {
		l.SetCaller(true)
	}
	if os.Getenv("NO_COLOR") != "" {
		l.SetColorize(false)
	}
}
