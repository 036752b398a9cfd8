package live

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"pgbenchmark/types"
)

// The dashboard is compiled into the binary so it works from any
// working directory.
//
//go:embed dashboard
var dashboardFS embed.FS

// Server exposes the live telemetry endpoints: a WebSocket stream of
// RunResults on /ws, the partial summary on /api/summary, and the run
// configuration on /api/config. The embedded dashboard page is served
// at /.
//
// The server drains the Bridge on its own goroutine; it shares nothing
// else with the benchmark loop.
type Server struct {
	// SQL, Runs and RefreshMS describe the running benchmark for
	// dashboard clients. RefreshMS is a display hint only.
	SQL       string
	Runs      int
	RefreshMS int

	listen   string
	bridge   *Bridge
	bc       *Broadcaster
	summary  func() types.Stats
	log      zerolog.Logger
	ln       net.Listener
	srv      *http.Server
	upgrader websocket.Upgrader
}

// NewServer wires a telemetry server to the consumer side of bridge.
// summary is polled by /api/summary for live partial statistics.
func NewServer(listen string, bridge *Bridge, summary func() types.Stats, logger zerolog.Logger) *Server {
	return &Server{
		listen:  listen,
		bridge:  bridge,
		bc:      NewBroadcaster(logger),
		summary: summary,
		log:     logger,
		upgrader: websocket.Upgrader{
			// Local tool; the dashboard may be opened from file:// or
			// any port.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return err
	}
	s.ln = ln

	dashboard, err := fs.Sub(dashboardFS, "dashboard")
	if err != nil {
		ln.Close()
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.FS(dashboard)))
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/summary", s.handleSummary)
	mux.HandleFunc("/api/config", s.handleConfig)
	s.srv = &http.Server{Handler: mux}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("telemetry server stopped")
		}
	}()
	go s.drain()

	s.log.Info().Str("addr", s.Addr()).Msg("telemetry server listening")
	return nil
}

// Addr returns the bound address, useful when listening on port 0.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Broadcaster exposes the subscriber registry, mainly for inspection.
func (s *Server) Broadcaster() *Broadcaster {
	return s.bc
}

// Shutdown closes all subscribers and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.bc.Close()
	return s.srv.Shutdown(ctx)
}

// drain pumps the Bridge into the broadcaster until the producer closes
// it. Publish never blocks, so a lagging subscriber cannot back the
// Bridge up into the benchmark loop.
func (s *Server) drain() {
	for r := range s.bridge.Results() {
		s.bc.Publish(r)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	s.bc.Join(conn)
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.summary())
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		SQL       string `json:"sql"`
		Runs      int    `json:"runs"`
		RefreshMS int    `json:"refresh_ms"`
	}{s.SQL, s.Runs, s.RefreshMS})
}
