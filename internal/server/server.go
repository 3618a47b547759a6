// Package server wires the registry, room index, session protocol, and
// WebSocket transport into one HTTP server.
package server

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/christopherjohns/chatrelay/internal/config"
	"github.com/christopherjohns/chatrelay/internal/filter"
	"github.com/christopherjohns/chatrelay/internal/ratelimit"
	"github.com/christopherjohns/chatrelay/internal/room"
	"github.com/christopherjohns/chatrelay/internal/session"
	"github.com/christopherjohns/chatrelay/internal/user"
	"github.com/christopherjohns/chatrelay/internal/ws"
)

// Server is the chatrelay HTTP server.
type Server struct {
	cfg      config.Config
	mux      *http.ServeMux
	registry *user.Registry
	rooms    *room.Index
	hub      *ws.Hub
	limiter  *ratelimit.IPLimiter
	relay    *ws.Relay
	httpSrv  *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithRedis enables the multi-instance relay on the given Redis client.
func WithRedis(client redis.UniversalClient) Option {
	return func(s *Server) {
		s.relay = ws.NewRelay(client)
		s.hub.SetRelay(s.relay)
	}
}

// New creates a Server from the configuration.
func New(cfg config.Config, opts ...Option) *Server {
	conns := ws.NewConnManager(
		ws.WithMaxConns(cfg.Limits.MaxConns),
		ws.WithIdleTimeout(cfg.Limits.IdleTimeout.Std()),
	)

	registry := user.NewRegistry()
	s := &Server{
		cfg:      cfg,
		mux:      http.NewServeMux(),
		registry: registry,
		rooms:    room.NewIndex(registry),
		hub:      ws.NewHub(conns),
	}
	if cfg.Limits.UpgradesPerMinute > 0 {
		s.limiter = ratelimit.NewIPLimiter(cfg.Limits.UpgradesPerMinute, time.Minute)
	}

	for _, opt := range opts {
		opt(s)
	}

	proto := session.New(s.registry, s.rooms, s.hub, filter.New(cfg.Filter.ExtraWords...).Profane)
	s.routes(ws.NewHandler(s.hub, proto))
	return s
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if s.relay != nil {
		go func() {
			if err := s.relay.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("relay stopped: %v", err)
			}
		}()
	}

	s.httpSrv = &http.Server{Addr: s.cfg.ListenAddr, Handler: s.mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.hub.Shutdown()
		return s.httpSrv.Shutdown(shutCtx)
	}
}

func (s *Server) routes(wsHandler http.Handler) {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/rooms", s.handleListRooms)
	s.mux.HandleFunc("GET /api/rooms/{room}/users", s.handleRoster)
	s.mux.Handle("GET /ws", s.limitUpgrades(wsHandler))

	if s.cfg.PublicDir != "" {
		s.mux.Handle("/", http.FileServer(http.Dir(s.cfg.PublicDir)))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":      "ok",
		"connections": s.hub.ConnMgr().Stats(),
	})
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.rooms.Rooms())
}

func (s *Server) handleRoster(w http.ResponseWriter, r *http.Request) {
	roster := s.rooms.Roster(r.PathValue("room"))
	if roster == nil {
		roster = []user.User{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(roster)
}

// limitUpgrades rejects upgrade attempts from IPs over their rate budget.
func (s *Server) limitUpgrades(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}
			if !s.limiter.Allow(ip) {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
