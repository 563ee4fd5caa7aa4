package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/rorsat-ltd/kosmos/internal/mq"
	"github.com/rorsat-ltd/kosmos/internal/store"
)

// dbPinger is the slice of *store.Store the operations surface needs.
type dbPinger interface {
	Ping(ctx context.Context) error
}

// Config configures the operations HTTP surface.
type Config struct {
	ListenAddress string
}

// Event is one line streamed to GET /admin/stream subscribers per
// terminal job outcome.
type Event struct {
	MessageID string    `json:"message_id,omitempty"`
	Kind      string    `json:"kind"`
	Outcome   string    `json:"outcome"`
	Time      time.Time `json:"time"`
}

// Server is the operations HTTP surface: an unauthenticated liveness
// probe plus bearer-token-authenticated stats and a live WebSocket
// event stream for a single gateway operator.
type Server struct {
	cfg   Config
	auth  *Authenticator
	stats *Stats
	db    dbPinger
	queue mq.Queue
	log   zerolog.Logger

	upgrader  websocket.Upgrader
	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]bool
}

// New builds an operations Server.
func New(cfg Config, auth *Authenticator, stats *Stats, db *store.Store, q mq.Queue, log zerolog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		auth:    auth,
		stats:   stats,
		db:      db,
		queue:   q,
		log:     log,
		clients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the routed http.Handler for the operations surface.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/admin/login", s.handleLogin)
	mux.HandleFunc("/admin/stats", s.requireAuth(s.handleStats))
	mux.HandleFunc("/admin/stream", s.handleStream)
	return mux
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.ListenAddress, Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.closeClients()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// OnJobResult is suitable for direct assignment to jobs.Runner.OnResult:
// it updates the live counters and pushes an Event to every connected
// /admin/stream client.
func (s *Server) OnJobResult(kind, id, outcome string) {
	s.stats.Observe(kind, id, outcome)
	s.broadcast(Event{MessageID: id, Kind: kind, Outcome: outcome, Time: time.Now().UTC()})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	body := struct {
		Healthy       bool   `json:"healthy"`
		UptimeSeconds int64  `json:"uptime_seconds"`
		Database      string `json:"database"`
		Queue         string `json:"queue"`
	}{UptimeSeconds: s.stats.Snapshot().UptimeSeconds, Database: "ok", Queue: "ok"}

	healthy := true
	if err := s.db.Ping(r.Context()); err != nil {
		body.Database = err.Error()
		healthy = false
	}
	if err := s.queue.Ping(r.Context()); err != nil {
		body.Queue = err.Error()
		healthy = false
	}
	body.Healthy = healthy

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, body)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Secret string `json:"secret"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	token, err := s.auth.Login(req.Secret)
	if err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Token string `json:"token"`
	}{Token: token})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stats.Snapshot())
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" || s.auth.Validate(token) != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to upgrade admin stream connection")
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	s.clientsMu.Unlock()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, conn)
		s.clientsMu.Unlock()
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to marshal admin stream event")
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for conn := range s.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			s.log.Warn().Err(err).Msg("failed to write admin stream event")
		}
	}
}

func (s *Server) closeClients() {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for conn := range s.clients {
		conn.Close()
		delete(s.clients, conn)
	}
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" || s.auth.Validate(token) != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	token := r.URL.Query().Get("token")
	if h == "" {
		return token
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return token
	}
	return parts[1]
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
