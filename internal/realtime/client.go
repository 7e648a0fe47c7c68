package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/VedantVallal/chatapplication-63/internal/backend"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const handshakeTimeout = 10 * time.Second

// Client consumes a realtime server. Every subscription owns one connection.
type Client struct {
	endpoint string
	dialer   *websocket.Dialer
	logger   *zap.Logger
}

var _ backend.Realtime = (*Client)(nil)

// NewClient creates a client for the server at endpoint, for example
// "ws://127.0.0.1:8787/v1/realtime".
func NewClient(endpoint string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		endpoint: endpoint,
		dialer:   &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		logger:   logger,
	}
}

// Subscribe connects, waits for the server to confirm the channel, and then
// delivers events to fn from a dedicated goroutine. The returned cancel
// closes the connection and may be called repeatedly.
func (c *Client) Subscribe(ctx context.Context, channel string, fn func(backend.Event)) (func(), error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("realtime endpoint: %w", err)
	}
	q := u.Query()
	q.Add("channels", channel)
	u.RawQuery = q.Encode()

	conn, _, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial realtime: %w", err)
	}
	if err := awaitConnected(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}

	stop := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(stop)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-stop:
		}
	}()
	go c.readLoop(conn, channel, fn, stop)
	return cancel, nil
}

func awaitConnected(conn *websocket.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	var f Frame
	if err := conn.ReadJSON(&f); err != nil {
		return fmt.Errorf("realtime handshake: %w", err)
	}
	switch f.Type {
	case TypeConnected:
		return nil
	case TypeError:
		var e ErrorData
		_ = json.Unmarshal(f.Data, &e)
		return fmt.Errorf("realtime: %s", e.Message)
	default:
		return fmt.Errorf("realtime handshake: unexpected frame %q", f.Type)
	}
}

func (c *Client) readLoop(conn *websocket.Conn, channel string, fn func(backend.Event), stop <-chan struct{}) {
	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			select {
			case <-stop:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) && !errors.Is(err, net.ErrClosed) {
					c.logger.Warn("realtime connection lost", zap.String("channel", channel), zap.Error(err))
				}
			}
			return
		}
		switch f.Type {
		case TypeEvent:
			evt, err := decodeEvent(f.Data)
			if err != nil {
				c.logger.Warn("skipping malformed event frame", zap.Error(err))
				continue
			}
			fn(evt)
		case TypeError:
			var e ErrorData
			_ = json.Unmarshal(f.Data, &e)
			c.logger.Warn("realtime server error", zap.String("channel", channel), zap.String("error", e.Message))
		}
	}
}
