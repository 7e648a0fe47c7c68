package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/VedantVallal/chatapplication-63/internal/config"
	"github.com/VedantVallal/chatapplication-63/internal/docstore"
	"github.com/VedantVallal/chatapplication-63/internal/realtime"
	"go.uber.org/zap"
)

// RealtimeServer exposes the change feed as a websocket endpoint. It does
// nothing when no listen address is configured.
type RealtimeServer struct {
	addr     string
	server   *http.Server
	listener net.Listener
	logger   *zap.Logger
}

// NewRealtimeServer creates the websocket bridge for the profile's feed.
func NewRealtimeServer(prof *config.Profile, feed *docstore.Feed, logger *zap.Logger) *RealtimeServer {
	mux := http.NewServeMux()
	mux.Handle(realtime.Path, realtime.NewServer(feed, logger))
	return &RealtimeServer{
		addr: prof.Realtime.Listen,
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Addr returns the bound address, or "" when disabled or not started.
func (s *RealtimeServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Start binds the listen address and serves in the background.
func (s *RealtimeServer) Start() error {
	if s.addr == "" {
		s.logger.Info("realtime bridge disabled")
		return nil
	}
	l, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = l
	s.logger.Info("realtime bridge starting", zap.String("addr", l.Addr().String()))
	go func() {
		if err := s.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("realtime bridge error", zap.Error(err))
		}
	}()
	return nil
}

// Stop shuts the bridge down.
func (s *RealtimeServer) Stop(ctx context.Context) {
	if s.listener == nil {
		return
	}
	s.logger.Info("realtime bridge stopping")
	if err := s.server.Shutdown(ctx); err != nil {
		_ = s.server.Close()
	}
}
