// Package api is the ambient HTTP/WS operational shell: health/readiness,
// prometheus scrape endpoint, a REST surface for manual kill-switch/order
// control, and a websocket hub that fans out market snapshots and audit
// events to connected dashboards. Grounded on the source repo's
// internal/api Server (mux + gorilla/websocket + rs/cors).
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/atlas-desktop/engine/pkg/types"
)

// KillSwitchController is the subset of engine control the REST surface
// exposes to an operator.
type KillSwitchController interface {
	ActivateBreaker(name, source, reason string)
	Breakers() []types.CircuitBreaker
}

// Server is the ambient HTTP/WS shell.
type Server struct {
	logger     *zap.Logger
	router     *mux.Router
	httpServer *http.Server
	upgrader   websocket.Upgrader
	killSwitch KillSwitchController

	mu      sync.RWMutex
	clients map[*websocket.Conn]bool
}

// New builds the API server bound to addr with the given CORS origins.
func New(logger *zap.Logger, cfg types.ServerConfig, killSwitch KillSwitchController) *Server {
	s := &Server{
		logger:     logger,
		router:     mux.NewRouter(),
		upgrader:   websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		killSwitch: killSwitch,
		clients:    make(map[*websocket.Conn]bool),
	}
	s.routes()

	handler := cors.New(cors.Options{AllowedOrigins: cfg.CORSOrigins, AllowedMethods: []string{"GET", "POST"}}).Handler(s.router)
	s.httpServer = &http.Server{
		Addr:         fmtAddr(cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/readyz", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler())
	s.router.HandleFunc("/api/v1/kill-switch/activate", s.handleActivateKillSwitch).Methods(http.MethodPost)
	s.router.HandleFunc("/api/v1/breakers", s.handleBreakers).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.handleWebsocket).Methods(http.MethodGet)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleActivateKillSwitch(w http.ResponseWriter, r *http.Request) {
	var body struct{ Reason string `json:"reason"` }
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.killSwitch.ActivateBreaker("kill_switch", "operator", body.Reason)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleBreakers(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.killSwitch.Breakers())
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	s.mu.Lock()
	s.clients[conn] = true
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.clients, conn)
			s.mu.Unlock()
			_ = conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Publish fans a topic/snapshot pair out to every connected websocket
// client, satisfying internal/marketdata.Publisher. A write failure drops
// that client; it never blocks the caller.
func (s *Server) Publish(topic string, snapshot types.MarketSnapshot) error {
	payload, err := json.Marshal(map[string]interface{}{"topic": topic, "data": snapshot})
	if err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for conn := range s.clients {
		_ = conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			s.logger.Debug("websocket write failed, dropping client", zap.Error(err))
		}
	}
	return nil
}

// Start serves HTTP until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func fmtAddr(host string, port int) string {
	if host == "" {
		host = "0.0.0.0"
	}
	return host + ":" + itoa(port)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
