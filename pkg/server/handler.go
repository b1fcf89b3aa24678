package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vango-dev/scenesync/pkg/conn"
	"github.com/vango-dev/scenesync/pkg/protocol"
)

// Handler returns the HTTP handler serving /ws, /healthz, /peers and
// /metrics. It can be mounted in another router.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) httpRoutes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Get("/ws", s.HandleWebSocket)
	r.Get("/healthz", s.handleHealth)
	r.Get("/peers", s.handlePeers)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return r
}

// HandleWebSocket upgrades the request and serves the peer until the
// connection closes.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	if s.config.MaxMessageSize > 0 {
		ws.SetReadLimit(int64(s.config.MaxMessageSize) + protocol.Overhead)
	}

	stream := conn.NewWebSocketStream(ws)
	if err := s.ServeConn(context.Background(), stream, stream.RemoteAddr()); err != nil && !errors.Is(err, ErrServerClosed) {
		s.logger.Debug("websocket peer ended", "error", err)
	}
}

type healthResponse struct {
	Status   string `json:"status"`
	Instance string `json:"instance"`
	Peers    int    `json:"peers"`
	Widgets  int    `json:"widgets"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Instance: s.id}
	err := s.do(r.Context(), func() {
		resp.Peers = s.session.ValidatedCount()
		resp.Widgets = s.session.Store().WidgetCount()
	})

	status := http.StatusOK
	if err != nil {
		resp = healthResponse{Status: "closed", Instance: s.id}
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

type peerResponse struct {
	ID        protocol.PeerID `json:"id"`
	Alias     string          `json:"alias"`
	Color     [3]float64      `json:"color"`
	Validated bool            `json:"validated"`
	Remote    string          `json:"remote"`
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	peers, err := s.Peers(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	out := make([]peerResponse, 0, len(peers))
	for _, p := range peers {
		out = append(out, peerResponse{
			ID:        p.ID,
			Alias:     p.Alias,
			Color:     p.Color,
			Validated: p.Validated,
			Remote:    p.Remote,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
