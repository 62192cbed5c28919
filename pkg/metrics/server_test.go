// Unit tests for the metrics HTTP server
//
// Copyright (C) 2026 Speed Meter Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"shaft-speed-meter/pkg/encoder"
)

func serve(server *MetricsServer, req *http.Request) *http.Response {
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	return w.Result()
}

func TestMetricsServerBasic(t *testing.T) {
	server := NewMetricsServer(New(), ":0")

	if server == nil {
		t.Fatal("server should not be nil")
	}
	if server.GetAddress() != ":0" {
		t.Errorf("expected configured address before start, got %s", server.GetAddress())
	}
	if server.IsRunning() {
		t.Error("server should not be running before Start")
	}
}

func TestMetricsServerConfig(t *testing.T) {
	config := MetricsServerConfig{
		Address:      ":9200",
		Username:     "admin",
		Password:     "secret",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	server := NewMetricsServerWithConfig(New(), config)
	if server.GetAddress() != ":9200" {
		t.Errorf("expected address :9200, got %s", server.GetAddress())
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultMetricsServerConfig()

	if config.Address != ":9100" {
		t.Errorf("expected default address :9100, got %s", config.Address)
	}
	if config.ReadTimeout != 10*time.Second || config.WriteTimeout != 10*time.Second {
		t.Error("unexpected timeouts")
	}
}

func TestHandleMetrics(t *testing.T) {
	m := New()
	m.ObserveAcquisition(encoder.MethodDuration, ResultOK, 24, 2*time.Second)
	m.SetLastRate(encoder.Rate{FrequencyHz: 12, RPM: 60, RadPerSec: 6.283})

	resp := serve(NewMetricsServer(m, ":0"), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/plain") {
		t.Errorf("unexpected content type: %s", ct)
	}

	bodyStr := string(body)
	for _, want := range []string{
		`speedmeter_acquisitions_total{method="duration",result="ok"} 1`,
		"speedmeter_edges_total 24",
		"speedmeter_last_rpm 60",
		"go_goroutines",
	} {
		if !strings.Contains(bodyStr, want) {
			t.Errorf("missing %q in output", want)
		}
	}
}

func TestHandleMetricsHead(t *testing.T) {
	resp := serve(NewMetricsServer(New(), ":0"), httptest.NewRequest(http.MethodHead, "/metrics", nil))

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if len(body) != 0 {
		t.Error("HEAD response should have empty body")
	}
}

func TestHandleMetricsMethodNotAllowed(t *testing.T) {
	resp := serve(NewMetricsServer(New(), ":0"), httptest.NewRequest(http.MethodPost, "/metrics", nil))

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", resp.StatusCode)
	}
}

func TestHandleHealth(t *testing.T) {
	resp := serve(NewMetricsServer(New(), ":0"), httptest.NewRequest(http.MethodGet, "/health", nil))
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "OK") {
		t.Error("health check should return OK")
	}
}

func TestHandleReady(t *testing.T) {
	server := NewMetricsServer(New(), ":0")
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)

	if resp := serve(server, req); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected status 503 when not running, got %d", resp.StatusCode)
	}

	server.mu.Lock()
	server.running = true
	server.mu.Unlock()

	if resp := serve(server, req); resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200 when running, got %d", resp.StatusCode)
	}
}

func TestHandleRoot(t *testing.T) {
	resp := serve(NewMetricsServer(New(), ":0"), httptest.NewRequest(http.MethodGet, "/", nil))
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
	bodyStr := string(body)
	if !strings.Contains(bodyStr, "<html>") || !strings.Contains(bodyStr, "/metrics") {
		t.Error("root should return HTML linking to /metrics")
	}
}

func TestHandleRootNotFound(t *testing.T) {
	resp := serve(NewMetricsServer(New(), ":0"), httptest.NewRequest(http.MethodGet, "/unknown", nil))

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", resp.StatusCode)
	}
}

func TestBasicAuth(t *testing.T) {
	config := DefaultMetricsServerConfig()
	config.Address = ":0"
	config.Username = "admin"
	config.Password = "secret123"
	server := NewMetricsServerWithConfig(New(), config)

	resp := serve(server, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 without auth, got %d", resp.StatusCode)
	}
	if resp.Header.Get("WWW-Authenticate") == "" {
		t.Error("should set WWW-Authenticate header")
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.SetBasicAuth("admin", "wrongpassword")
	if resp := serve(server, req); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 with wrong password, got %d", resp.StatusCode)
	}

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.SetBasicAuth("admin", "secret123")
	if resp := serve(server, req); resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 with correct auth, got %d", resp.StatusCode)
	}

	// Health stays open for probes.
	if resp := serve(server, httptest.NewRequest(http.MethodGet, "/health", nil)); resp.StatusCode != http.StatusOK {
		t.Errorf("expected open /health, got %d", resp.StatusCode)
	}
}

func TestGetStatus(t *testing.T) {
	server := NewMetricsServer(New(), ":9100")

	status := server.GetStatus()
	if status["address"] != ":9100" {
		t.Error("status should include address")
	}
	if status["running"].(bool) {
		t.Error("should not be running")
	}

	server.mu.Lock()
	server.running = true
	server.startTime = time.Now().Add(-10 * time.Second)
	server.mu.Unlock()

	status = server.GetStatus()
	if uptime, ok := status["uptime"].(float64); !ok || uptime < 9 {
		t.Error("uptime should be tracked")
	}
}

func TestStartAndShutdown(t *testing.T) {
	server := NewMetricsServer(New(), "127.0.0.1:0")
	errCh := server.StartAsync()

	deadline := time.Now().Add(2 * time.Second)
	for !server.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !server.IsRunning() {
		t.Fatal("server should be running after StartAsync")
	}

	resp, err := http.Get("http://" + server.GetAddress() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 from live server, got %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		t.Errorf("shutdown failed: %v", err)
	}
	if server.IsRunning() {
		t.Error("server should not be running after Shutdown")
	}
	if err := <-errCh; err != nil {
		t.Errorf("server error: %v", err)
	}
}

func TestStartListenError(t *testing.T) {
	server := NewMetricsServer(New(), "256.0.0.1:bad")
	if err := server.Start(); err == nil {
		t.Error("expected listen error")
	}
}

func BenchmarkHandleMetrics(b *testing.B) {
	m := New()
	m.ObserveAcquisition(encoder.MethodPulseTarget, ResultOK, 10, time.Second)
	server := NewMetricsServer(m, ":0")
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		server.Handler().ServeHTTP(httptest.NewRecorder(), req)
	}
}
