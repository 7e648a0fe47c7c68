package realtime

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/VedantVallal/chatapplication-63/internal/backend"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

// Server streams events from a backend.Realtime to websocket subscribers.
type Server struct {
	source   backend.Realtime
	upgrader websocket.Upgrader
	logger   *zap.Logger
	conns    atomic.Int64
}

var _ http.Handler = (*Server)(nil)

// NewServer creates a bridge over source.
func NewServer(source backend.Realtime, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		source: source,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Local daemon: any origin may connect.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Connections returns the number of open websocket connections.
func (s *Server) Connections() int64 {
	return s.conns.Load()
}

// ServeHTTP upgrades the request and streams every event published on the
// channels named by the repeated "channels" query parameter.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	channels := r.URL.Query()["channels"]
	if len(channels) == 0 {
		http.Error(w, "at least one channel is required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	s.conns.Add(1)
	defer s.conns.Add(-1)
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	send := make(chan Frame, sendBuffer)
	forward := func(e backend.Event) {
		f, err := eventFrame(e)
		if err != nil {
			s.logger.Warn("encode event frame", zap.Error(err))
			return
		}
		select {
		case send <- f:
		default:
			s.logger.Warn("subscriber too slow, dropping event", zap.Strings("events", e.Labels))
		}
	}

	for _, ch := range channels {
		unsub, err := s.source.Subscribe(ctx, ch, forward)
		if err != nil {
			s.logger.Warn("subscribe failed", zap.String("channel", ch), zap.Error(err))
			if f, ferr := newFrame(TypeError, ErrorData{Message: err.Error()}); ferr == nil {
				_ = s.write(conn, f)
			}
			return
		}
		defer unsub()
	}

	hello, err := newFrame(TypeConnected, ConnectedData{Channels: channels})
	if err != nil {
		return
	}
	if err := s.write(conn, hello); err != nil {
		return
	}
	s.logger.Debug("realtime subscriber connected", zap.Strings("channels", channels))

	closed := make(chan struct{})
	go s.readPump(conn, closed)
	s.writePump(conn, send, closed)
	s.logger.Debug("realtime subscriber disconnected", zap.Strings("channels", channels))
}

// readPump discards client messages and reports when the peer goes away.
func (s *Server) readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writePump(conn *websocket.Conn, send <-chan Frame, closed <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case f := <-send:
			if err := s.write(conn, f); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

func (s *Server) write(conn *websocket.Conn, f Frame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(f)
}
