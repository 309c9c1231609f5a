// Package webdash serves a live, read-only view of a running fuzzing
// loop: a JSON stats endpoint, a websocket stream of periodic snapshots,
// and a minimal HTML page that renders them.
//
// Grounded on internal/web/server.go's fiber.App/websocket.Conn broadcast
// shape from the teacher repo. The teacher's /api/start, /api/stop and
// /api/config control endpoints are dropped: a fuzzing run here is owned
// by one internal/ownerloop.Loop started from the CLI, and this package
// only ever observes it. See DESIGN.md for why control was cut.
package webdash

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/fluxcore/fluxcore/internal/statsdump"
)

// SnapshotSource supplies the current Snapshot on demand. Typically backed
// by an internal/ownerloop.Loop plus its seedsched.Scheduler.
type SnapshotSource func() statsdump.Snapshot

// Options configures a Server.
type Options struct {
	Addr         string
	PollInterval time.Duration
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{Addr: ":8787", PollInterval: time.Second}
}

// Server serves the read-only dashboard.
type Server struct {
	app    *fiber.App
	opts   Options
	source SnapshotSource
	log    *slog.Logger

	clientsMu sync.Mutex
	clients   map[*websocket.Conn]bool
	broadcast chan []byte

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a Server that polls source on Options.PollInterval and
// broadcasts the result to every connected websocket client.
func New(opts Options, source SnapshotSource, logger *slog.Logger) *Server {
	if opts.Addr == "" {
		opts.Addr = DefaultOptions().Addr
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultOptions().PollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	s := &Server{
		app:       app,
		opts:      opts,
		source:    source,
		log:       logger,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan []byte, 100),
		stopCh:    make(chan struct{}),
	}

	s.setupRoutes()
	go s.handleBroadcast()
	go s.pollLoop()

	return s
}

func (s *Server) setupRoutes() {
	s.app.Use(cors.New())

	api := s.app.Group("/api")
	api.Get("/stats", s.handleStats)
	api.Get("/hybrid", s.handleHybrid)

	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/ws", websocket.New(s.handleWebSocket))

	s.app.Get("/", s.handleIndex)
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	return c.JSON(s.source())
}

// handleHybrid serves the HybridPowerScheduler's state on its own, so a
// dashboard polling mode transitions doesn't have to pull the whole
// Snapshot. Returns null when the run isn't using the hybrid strategy.
func (s *Server) handleHybrid(c *fiber.Ctx) error {
	return c.JSON(s.source().Hybrid)
}

func (s *Server) handleIndex(c *fiber.Ctx) error {
	c.Set("Content-Type", "text/html")
	return c.SendString(indexPage)
}

func (s *Server) handleWebSocket(c *websocket.Conn) {
	s.clientsMu.Lock()
	s.clients[c] = true
	s.clientsMu.Unlock()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, c)
		s.clientsMu.Unlock()
		c.Close()
	}()

	if data, err := json.Marshal(s.source()); err == nil {
		c.WriteMessage(websocket.TextMessage, data)
	}

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) handleBroadcast() {
	for {
		select {
		case msg := <-s.broadcast:
			s.clientsMu.Lock()
			for client := range s.clients {
				if err := client.WriteMessage(websocket.TextMessage, msg); err != nil {
					client.Close()
					delete(s.clients, client)
				}
			}
			s.clientsMu.Unlock()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Server) pollLoop() {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			data, err := json.Marshal(s.source())
			if err != nil {
				s.log.Warn("webdash: marshal snapshot", "error", err)
				continue
			}
			select {
			case s.broadcast <- data:
			default:
			}
		case <-s.stopCh:
			return
		}
	}
}

// Listen blocks serving HTTP on Options.Addr.
func (s *Server) Listen() error {
	return s.app.Listen(s.opts.Addr)
}

// Stop shuts down the server and its background goroutines.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	return s.app.Shutdown()
}

const indexPage = `<!DOCTYPE html>
<html>
<head><title>fluxcore</title></head>
<body>
<h1>fluxcore</h1>
<pre id="stats">loading...</pre>
<script>
var ws = new WebSocket("ws://" + location.host + "/ws");
ws.onmessage = function(ev) {
  document.getElementById("stats").textContent = JSON.stringify(JSON.parse(ev.data), null, 2);
};
</script>
</body>
</html>
`
