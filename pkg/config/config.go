// Configuration file parser
//
// Copyright (C) 2026  Speed Meter Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Config provides access to a configuration file with access tracking, so
// options nobody read can be reported after loading.
type Config struct {
	mu       sync.RWMutex
	sections map[string]*Section
	order    []string // Maintains section order

	accessedSections map[string]struct{}
}

// New creates a new empty Config.
func New() *Config {
	return &Config{
		sections:         make(map[string]*Section),
		accessedSections: make(map[string]struct{}),
	}
}

// Load reads a configuration file and returns a Config.
// Supports [include path] directives relative to the including file.
func Load(path string) (*Config, error) {
	c := New()
	visited := make(map[string]bool)
	if err := c.parseFile(path, visited); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadString parses a configuration from a string. Include directives are
// rejected since there is no base directory.
func LoadString(data string) (*Config, error) {
	c := New()
	err := c.parse(strings.NewReader(data), "<string>", func(string) error {
		return fmt.Errorf("config: include not supported in string config")
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) parseFile(path string, visited map[string]bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("config: invalid path %s: %w", path, err)
	}
	if visited[abs] {
		return fmt.Errorf("config: recursive include: %s", path)
	}
	visited[abs] = true
	defer func() { visited[abs] = false }()

	f, err := os.Open(abs)
	if err != nil {
		return fmt.Errorf("config: unable to open %s: %w", path, err)
	}
	defer f.Close()

	dir := filepath.Dir(abs)
	return c.parse(f, path, func(spec string) error {
		glob := filepath.Join(dir, spec)
		matches, err := filepath.Glob(glob)
		if err != nil {
			return fmt.Errorf("config: invalid include pattern %q: %w", spec, err)
		}
		sort.Strings(matches)
		if len(matches) == 0 && !strings.ContainsAny(glob, "*?[") {
			return fmt.Errorf("config: include file does not exist: %s", glob)
		}
		for _, m := range matches {
			if err := c.parseFile(m, visited); err != nil {
				return err
			}
		}
		return nil
	})
}

// parse reads sections and "key: value" or "key = value" options from r.
// Text after '#' is a comment.
func (c *Config) parse(r io.Reader, name string, include func(spec string) error) error {
	var (
		section string
		options map[string]string
		lineNum int
	)
	flush := func() {
		if section != "" {
			c.addSection(section, options)
		}
		section, options = "", nil
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			flush()
			header := strings.TrimSpace(line[1 : len(line)-1])
			if header == "" {
				return fmt.Errorf("config: empty section header at line %d in %s", lineNum, name)
			}
			if spec, ok := strings.CutPrefix(header, "include "); ok {
				spec = strings.TrimSpace(spec)
				if spec == "" {
					return fmt.Errorf("config: empty include at line %d in %s", lineNum, name)
				}
				if err := include(spec); err != nil {
					return err
				}
				continue
			}
			section = header
			options = make(map[string]string)
			continue
		}

		// Options before the first section are ignored.
		if section == "" {
			continue
		}

		key, value, ok := splitOption(line)
		if !ok {
			return fmt.Errorf("config: malformed option %q at line %d in %s", line, lineNum, name)
		}
		options[key] = value
	}
	flush()

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("config: error reading %s: %w", name, err)
	}
	return nil
}

// splitOption splits at whichever of ':' or '=' comes first, so values may
// contain the other separator (e.g. "line: ^gpiochip0:17").
func splitOption(line string) (key, value string, ok bool) {
	idx := strings.IndexAny(line, ":=")
	if idx <= 0 {
		return "", "", false
	}
	key = strings.TrimSpace(line[:idx])
	if key == "" {
		return "", "", false
	}
	return key, strings.TrimSpace(line[idx+1:]), true
}

// addSection adds a section to the config, merging options into an
// existing section of the same name.
func (c *Config) addSection(name string, options map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.sections[name]; ok {
		for k, v := range options {
			existing.options[strings.ToLower(k)] = v
		}
		return
	}
	c.sections[name] = newSection(name, options)
	c.order = append(c.order, name)
}

// GetSection returns a Section by name, or error if not found.
func (c *Config) GetSection(name string) (*Section, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sec, ok := c.sections[name]
	if !ok {
		return nil, ErrMissingSection(name)
	}
	c.accessedSections[name] = struct{}{}
	return sec, nil
}

// Section returns the named section, or an empty one if it is absent so
// getters fall back to their defaults.
func (c *Config) Section(name string) *Section {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sec, ok := c.sections[name]; ok {
		c.accessedSections[name] = struct{}{}
		return sec
	}
	return newSection(name, nil)
}

// HasSection checks if a section exists.
func (c *Config) HasSection(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.sections[name]
	return ok
}

// GetSectionNames returns all section names in order.
func (c *Config) GetSectionNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]string, len(c.order))
	copy(result, c.order)
	return result
}

// GetUnusedSections returns the sections that were never accessed.
func (c *Config) GetUnusedSections() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var result []string
	for _, name := range c.order {
		if _, ok := c.accessedSections[name]; !ok {
			result = append(result, name)
		}
	}
	return result
}

// UnusedWarnings lists unread sections and options as human-readable
// warnings, sorted.
func (c *Config) UnusedWarnings() []string {
	var warnings []string
	for _, name := range c.GetUnusedSections() {
		warnings = append(warnings, fmt.Sprintf("unknown section [%s]", name))
	}

	c.mu.RLock()
	for name, sec := range c.sections {
		if _, ok := c.accessedSections[name]; !ok {
			continue
		}
		for _, opt := range sec.GetUnusedOptions() {
			warnings = append(warnings, fmt.Sprintf("unknown option '%s' in section [%s]", opt, name))
		}
	}
	c.mu.RUnlock()

	sort.Strings(warnings)
	return warnings
}

// CheckUnusedOptions returns an error if any accessed section has options
// nobody read.
func (c *Config) CheckUnusedOptions() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var problems []string
	for name, sec := range c.sections {
		if unused := sec.GetUnusedOptions(); len(unused) > 0 {
			problems = append(problems, fmt.Sprintf("[%s]: unused options %v", name, unused))
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return NewConfigError("", "", strings.Join(problems, "; "))
	}
	return nil
}
