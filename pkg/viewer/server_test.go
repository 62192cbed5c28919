package viewer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shaft-speed-meter/pkg/encoder"
	"shaft-speed-meter/pkg/store"
)

func newTestServer(t *testing.T) (*Server, *store.CSVStore) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "results.csv")
	return NewServer(Config{Path: path, Refresh: 10 * time.Millisecond}), store.NewCSVStore(path)
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)

	w := get(t, s, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestIndexPage(t *testing.T) {
	s, _ := newTestServer(t)

	w := get(t, s, "/")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<html>")
	assert.Contains(t, w.Body.String(), "/ws")
}

func TestRecordsEndpoints(t *testing.T) {
	s, csv := newTestServer(t)
	ctx := context.Background()

	w := get(t, s, "/api/records/latest")
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, csv.Append(ctx, rec(60, t0)))
	require.NoError(t, csv.Append(ctx, rec(50, t0.Add(time.Second))))
	require.NoError(t, s.Refresh())

	var body struct {
		Count   int          `json:"count"`
		Skipped int          `json:"skipped"`
		Records []RecordJSON `json:"records"`
	}
	w = get(t, s, "/api/records")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "Fixed Time Interval", body.Records[0].Method)
	assert.Equal(t, 60.0, body.Records[0].RPM)

	w = get(t, s, "/api/records?last_n=1")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, 50.0, body.Records[0].RPM)

	w = get(t, s, "/api/records?last_n=zero")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var latest RecordJSON
	w = get(t, s, "/api/records/latest")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &latest))
	assert.Equal(t, 50.0, latest.RPM)
	assert.Equal(t, 10.0, latest.FrequencyHz)
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocketStream(t *testing.T) {
	s, csv := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, csv.Append(ctx, rec(60, t0)))
	require.NoError(t, s.Refresh())

	ts := httptest.NewServer(s.Engine())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	snapshot := readMessage(t, conn)
	assert.Equal(t, "snapshot", snapshot.Type)
	require.Len(t, snapshot.Records, 1)
	assert.Equal(t, 1, s.ClientCount())

	require.NoError(t, csv.Append(ctx, encoder.Record{
		Timestamp: t0.Add(time.Second),
		Method:    encoder.MethodPulseTarget,
		Rate:      encoder.Rate{FrequencyHz: 10, RPM: 50, RadPerSec: 5.236},
	}))
	require.NoError(t, s.Refresh())

	appended := readMessage(t, conn)
	assert.Equal(t, "append", appended.Type)
	assert.False(t, appended.Reset)
	require.Len(t, appended.Records, 1)
	assert.Equal(t, "Fixed Pulse Count", appended.Records[0].Method)

	require.NoError(t, csv.Initialize())
	require.NoError(t, s.Refresh())

	reset := readMessage(t, conn)
	assert.True(t, reset.Reset)
	assert.Empty(t, reset.Records)
	assert.Zero(t, s.Series().Len())
}

func TestRunServesAndStops(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	require.NoError(t, store.NewCSVStore(path).Append(context.Background(), rec(60, t0)))

	s := NewServer(Config{Listen: "127.0.0.1:0", Path: path, Refresh: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.Series().Len() == 1 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
