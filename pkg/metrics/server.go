// HTTP server for the meter's Prometheus endpoint
//
// Serves /metrics from the meter registry plus /health, /ready and a small
// landing page. Basic authentication is optional.
//
//	m := metrics.New()
//	server := metrics.NewMetricsServer(m, ":9100")
//	errCh := server.StartAsync()
//	defer server.Shutdown(context.Background())
//
// Copyright (C) 2026 Speed Meter Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

// MetricsServer serves Prometheus metrics over HTTP
type MetricsServer struct {
	metrics *MeterMetrics
	addr    string
	server  *http.Server
	mux     *http.ServeMux

	username string
	password string

	mu        sync.RWMutex
	running   bool
	startTime time.Time
	listener  net.Listener
}

// MetricsServerConfig holds server configuration
type MetricsServerConfig struct {
	// Address to listen on, e.g. ":9100" or "127.0.0.1:9100"
	Address string

	Username string
	Password string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultMetricsServerConfig returns default server configuration
func DefaultMetricsServerConfig() MetricsServerConfig {
	return MetricsServerConfig{
		Address:      ":9100",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// NewMetricsServer creates a metrics server with default timeouts
func NewMetricsServer(m *MeterMetrics, addr string) *MetricsServer {
	config := DefaultMetricsServerConfig()
	config.Address = addr
	return NewMetricsServerWithConfig(m, config)
}

// NewMetricsServerWithConfig creates a metrics server with custom config
func NewMetricsServerWithConfig(m *MeterMetrics, config MetricsServerConfig) *MetricsServer {
	ms := &MetricsServer{
		metrics:  m,
		addr:     config.Address,
		mux:      http.NewServeMux(),
		username: config.Username,
		password: config.Password,
	}

	promHandler := m.Handler()
	ms.mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		if !ms.checkAuth(w, r) {
			return
		}
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
			return
		}
		promHandler.ServeHTTP(w, r)
	})
	ms.mux.HandleFunc("/health", ms.handleHealth)
	ms.mux.HandleFunc("/ready", ms.handleReady)
	ms.mux.HandleFunc("/", ms.handleRoot)

	ms.server = &http.Server{
		Addr:         config.Address,
		Handler:      ms.mux,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return ms
}

// Handler exposes the server's routes, mainly for tests.
func (ms *MetricsServer) Handler() http.Handler {
	return ms.mux
}

// Start listens and serves until Shutdown is called.
func (ms *MetricsServer) Start() error {
	ln, err := net.Listen("tcp", ms.addr)
	if err != nil {
		return fmt.Errorf("metrics server listen %s: %w", ms.addr, err)
	}

	ms.mu.Lock()
	ms.running = true
	ms.startTime = time.Now()
	ms.listener = ln
	ms.mu.Unlock()

	err = ms.server.Serve(ln)
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server error: %w", err)
	}
	return nil
}

// StartAsync starts the server in a goroutine. The channel receives a
// startup or serve error and is closed when the server stops.
func (ms *MetricsServer) StartAsync() chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := ms.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down the server
func (ms *MetricsServer) Shutdown(ctx context.Context) error {
	ms.mu.Lock()
	ms.running = false
	ms.mu.Unlock()

	return ms.server.Shutdown(ctx)
}

// IsRunning returns whether the server is running
func (ms *MetricsServer) IsRunning() bool {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.running
}

// GetAddress returns the bound address once started, else the configured one.
func (ms *MetricsServer) GetAddress() string {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	if ms.listener != nil {
		return ms.listener.Addr().String()
	}
	return ms.addr
}

func (ms *MetricsServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK\n"))
}

func (ms *MetricsServer) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if ms.IsRunning() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Ready\n"))
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("Not Ready\n"))
	}
}

func (ms *MetricsServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(landingPage))
}

const landingPage = `<!DOCTYPE html>
<html>
<head>
<title>Speed Meter Metrics</title>
<style>
body { font-family: sans-serif; margin: 40px; }
a { color: #0066cc; }
.endpoint { margin: 10px 0; }
</style>
</head>
<body>
<h1>Shaft Speed Meter</h1>
<div class="endpoint"><a href="/metrics">/metrics</a> - Prometheus metrics</div>
<div class="endpoint"><a href="/health">/health</a> - Health check</div>
<div class="endpoint"><a href="/ready">/ready</a> - Readiness check</div>
</body>
</html>`

// checkAuth verifies basic auth if configured
func (ms *MetricsServer) checkAuth(w http.ResponseWriter, r *http.Request) bool {
	if ms.username == "" && ms.password == "" {
		return true
	}

	username, password, ok := r.BasicAuth()
	if !ok {
		ms.unauthorizedResponse(w)
		return false
	}

	usernameMatch := subtle.ConstantTimeCompare([]byte(username), []byte(ms.username)) == 1
	passwordMatch := subtle.ConstantTimeCompare([]byte(password), []byte(ms.password)) == 1
	if !usernameMatch || !passwordMatch {
		ms.unauthorizedResponse(w)
		return false
	}
	return true
}

func (ms *MetricsServer) unauthorizedResponse(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="Speed Meter Metrics"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

// GetStatus returns server status for diagnostics
func (ms *MetricsServer) GetStatus() map[string]any {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	status := map[string]any{
		"address": ms.addr,
		"running": ms.running,
	}
	if ms.running {
		status["uptime"] = time.Since(ms.startTime).Seconds()
	}
	return status
}
