package relay

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/milletlink/milletlink-backend/pkg/config"
	"github.com/milletlink/milletlink-backend/pkg/logger"
	"github.com/milletlink/milletlink-backend/pkg/metrics"
)

// Server upgrades HTTP requests to relay sessions and pumps frames into the
// hub until the client goes away.
type Server struct {
	hub      *Hub
	cfg      config.RelayConfig
	metrics  *metrics.RelayMetrics
	logg     *logger.Logger
	upgrader websocket.Upgrader
}

func NewServer(hub *Hub, cfg config.RelayConfig, m *metrics.RelayMetrics, logg *logger.Logger) *Server {
	s := &Server{hub: hub, cfg: cfg, metrics: m, logg: logg}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.originAllowed,
	}
	return s
}

// An empty allow-list keeps the dev default of accepting any origin.
func (s *Server) originAllowed(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if s.logg != nil {
			s.logg.Warn(r.Context(), "websocket upgrade rejected")
		}
		return
	}

	conn := NewConn(ws, s.cfg)
	s.metrics.ConnOpened()
	defer s.metrics.ConnClosed()

	ctx := r.Context()
	if s.logg != nil {
		ctx = s.logg.WithConnID(ctx, conn.ID().String())
		s.logg.Info(ctx, "relay session opened")
	}

	go conn.WritePump()
	defer func() {
		s.hub.Disconnect(ctx, conn)
		conn.Close()
		if s.logg != nil {
			s.logg.Info(ctx, "relay session closed")
		}
	}()

	// A token in the query string identifies the session up front; clients
	// without one must send an identity event before anything else.
	if token := r.URL.Query().Get("token"); token != "" {
		payload, _ := json.Marshal(identityPayload{Token: token})
		s.hub.HandleEvent(ctx, conn, Envelope{Event: EventIdentity, Data: payload})
	}

	for {
		env, err := conn.ReadEnvelope()
		if err != nil {
			return
		}
		s.hub.HandleEvent(ctx, conn, env)
	}
}
