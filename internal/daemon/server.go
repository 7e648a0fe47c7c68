package daemon

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"time"

	"github.com/VedantVallal/chatapplication-63/internal/api"
	"github.com/VedantVallal/chatapplication-63/internal/profile"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpcstatus "google.golang.org/grpc/status"
)

// Server serves the chat API on the profile's Unix socket.
type Server struct {
	grpc     *grpc.Server
	listener net.Listener
	path     string
	logger   *zap.Logger
}

// NewServer binds the socket and registers the chat service.
func NewServer(p Params, logger *zap.Logger, chatSrv *api.Server) (*Server, error) {
	path := p.SocketPath
	if path == "" {
		path = profile.SocketPath(p.ProfileName)
	}
	l, err := listenUnix(path)
	if err != nil {
		return nil, err
	}

	srv := grpc.NewServer(grpc.UnaryInterceptor(logCalls(logger)))
	api.Register(srv, chatSrv)
	return &Server{grpc: srv, listener: l, path: path, logger: logger}, nil
}

// listenUnix replaces any stale socket at path and restricts the new one to
// the owner.
func listenUnix(path string) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}
	return l, nil
}

// Start serves until Stop. It blocks.
func (s *Server) Start() error {
	s.logger.Info("gRPC server starting", zap.String("socket", s.path))
	return s.grpc.Serve(s.listener)
}

// Stop drains in-flight calls, then removes the socket. Open watch streams
// end when their subscriptions are cancelled by the client or when ctx
// expires.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("gRPC server stopping")
	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpc.Stop()
	}
	_ = os.Remove(s.path)
}

func logCalls(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("rpc",
			zap.String("method", info.FullMethod),
			zap.String("code", grpcstatus.Code(err).String()),
			zap.Duration("took", time.Since(start)))
		return resp, err
	}
}
