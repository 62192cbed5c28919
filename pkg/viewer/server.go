// Live viewer HTTP and WebSocket server
//
// Copyright (C) 2026  Speed Meter Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package viewer

import (
	"context"
	_ "embed"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"shaft-speed-meter/pkg/encoder"
	"shaft-speed-meter/pkg/log"
)

//go:embed index.html
var indexHTML []byte

// DefaultHistory bounds the records kept in memory by the server.
const DefaultHistory = 10000

// Config holds server configuration.
type Config struct {
	// Listen is the HTTP address, e.g. ":8090".
	Listen string
	// Path is the CSV store to watch.
	Path string
	// Refresh is the store polling interval.
	Refresh time.Duration
	// History caps the records held in memory.
	History int
}

// RecordJSON is the wire form of a record.
type RecordJSON struct {
	Timestamp   time.Time `json:"timestamp"`
	Method      string    `json:"method"`
	FrequencyHz float64   `json:"frequency_hz"`
	RPM         float64   `json:"rpm"`
	RadPerSec   float64   `json:"rad_per_sec"`
}

func toJSON(records []encoder.Record) []RecordJSON {
	out := make([]RecordJSON, len(records))
	for i, r := range records {
		out[i] = RecordJSON{
			Timestamp:   r.Timestamp,
			Method:      r.Method.String(),
			FrequencyHz: r.Rate.FrequencyHz,
			RPM:         r.Rate.RPM,
			RadPerSec:   r.Rate.RadPerSec,
		}
	}
	return out
}

// Message is pushed to websocket clients. The first message of a connection
// is a "snapshot"; later ones are "append" with Reset set when the store
// was re-initialized.
type Message struct {
	Type    string       `json:"type"`
	Reset   bool         `json:"reset,omitempty"`
	Records []RecordJSON `json:"records"`
}

// Server serves the live view over HTTP and websocket.
type Server struct {
	cfg    Config
	engine *gin.Engine
	poller *Poller
	logger *log.Logger

	// feedMu orders store refreshes against client registration.
	feedMu sync.Mutex

	upgrader websocket.Upgrader
	clients  map[int64]*wsClient
	clientMu sync.RWMutex
	nextID   int64
}

// NewServer creates a server for cfg. Routes are registered immediately.
func NewServer(cfg Config) *Server {
	if cfg.History <= 0 {
		cfg.History = DefaultHistory
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	s := &Server{
		cfg:     cfg,
		engine:  engine,
		poller:  NewPoller(cfg.Path, NewSeries(cfg.History), cfg.Refresh),
		logger:  log.GetLogger("viewer"),
		clients: make(map[int64]*wsClient),
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	s.registerRoutes()
	return s
}

// Engine exposes the gin engine (for tests).
func (s *Server) Engine() *gin.Engine { return s.engine }

// Series returns the in-memory series.
func (s *Server) Series() *Series { return s.poller.Series() }

// Refresh polls the store once and pushes any change to clients.
func (s *Server) Refresh() error {
	s.feedMu.Lock()
	defer s.feedMu.Unlock()

	u, ok, err := s.poller.Poll()
	if err != nil {
		return err
	}
	if ok {
		s.broadcast(u)
	}
	return nil
}

// Run polls the store and serves HTTP until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Listen,
		Handler: s.engine,
	}

	go s.refreshLoop(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("live view on http://%s", displayAddr(s.cfg.Listen))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.closeClients()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(s.poller.interval)
	defer ticker.Stop()

	for {
		if err := s.Refresh(); err != nil {
			s.logger.WithError(err).Warn("store read failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func displayAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := s.engine.Group("/api")
	{
		api.GET("/records", s.handleRecords)
		api.GET("/records/latest", s.handleLatest)
	}

	s.engine.GET("/ws", s.handleWebSocket)
	s.engine.GET("/", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
	})
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// handleRecords returns the held records, optionally only the newest last_n.
func (s *Server) handleRecords(c *gin.Context) {
	n := 0
	if v := c.Query("last_n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid last_n"})
			return
		}
		n = parsed
	}

	series := s.Series()
	records := series.Last(n)
	c.JSON(http.StatusOK, gin.H{
		"count":   len(records),
		"skipped": series.Skipped(),
		"records": toJSON(records),
	})
}

func (s *Server) handleLatest(c *gin.Context) {
	rec, ok := s.Series().Latest()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no measurements recorded"})
		return
	}
	c.JSON(http.StatusOK, toJSON([]encoder.Record{rec})[0])
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	client := s.newClient(conn)

	s.feedMu.Lock()
	client.Send(Message{Type: "snapshot", Records: toJSON(s.Series().Records())})
	s.clientMu.Lock()
	s.clients[client.id] = client
	s.clientMu.Unlock()
	s.feedMu.Unlock()
	s.logger.Debug("websocket client %d connected", client.id)

	go client.writePump()
	client.readPump()
}

func (s *Server) broadcast(u Update) {
	msg := Message{Type: "append", Reset: u.Reset, Records: toJSON(u.Records)}

	s.clientMu.RLock()
	defer s.clientMu.RUnlock()
	for _, c := range s.clients {
		c.Send(msg)
	}
}

func (s *Server) removeClient(c *wsClient) {
	s.clientMu.Lock()
	delete(s.clients, c.id)
	s.clientMu.Unlock()
	s.logger.Debug("websocket client %d disconnected", c.id)
}

func (s *Server) closeClients() {
	s.clientMu.Lock()
	defer s.clientMu.Unlock()
	for id, c := range s.clients {
		c.Close()
		delete(s.clients, id)
	}
}

// ClientCount returns the number of connected websocket clients.
func (s *Server) ClientCount() int {
	s.clientMu.RLock()
	defer s.clientMu.RUnlock()
	return len(s.clients)
}

type wsClient struct {
	id     int64
	conn   *websocket.Conn
	server *Server
	sendCh chan Message
	done   chan struct{}
	mu     sync.Mutex
}

func (s *Server) newClient(conn *websocket.Conn) *wsClient {
	return &wsClient{
		id:     atomic.AddInt64(&s.nextID, 1),
		conn:   conn,
		server: s,
		sendCh: make(chan Message, 64),
		done:   make(chan struct{}),
	}
}

// Send queues msg. A slow client whose queue is full is disconnected, since
// a dropped append would leave its series out of sync.
func (c *wsClient) Send(msg Message) {
	select {
	case c.sendCh <- msg:
	case <-c.done:
	default:
		c.server.logger.Warn("websocket client %d too slow, closing", c.id)
		c.Close()
	}
}

func (c *wsClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return
	default:
		close(c.done)
	}
	c.conn.Close()
}

// readPump discards client messages; it keeps the read deadline fresh and
// notices disconnects.
func (c *wsClient) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.logger.WithError(err).Debug("websocket read error")
			}
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.server.logger.WithError(err).Debug("websocket write error")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}
