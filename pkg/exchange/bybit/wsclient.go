package bybit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	DefaultStreamURL = "wss://stream.bybit.com/v5/public/spot"

	// spot streams accept at most 10 args per subscribe request
	maxArgsPerSubscribe = 10
)

// WSClient handles the public spot stream connection and message routing.
type WSClient struct {
	url            string
	topics         func(ctx context.Context) []string
	handler        func([]byte)
	dialTimeout    time.Duration
	reconnectDelay time.Duration
	pingInterval   time.Duration
	logger         *zap.Logger

	writeMu sync.Mutex
}

// NewWSClient creates a client. topics is re-evaluated on every (re)connect
// so newly listed symbols are picked up.
func NewWSClient(url string, topics func(ctx context.Context) []string, dialTimeout time.Duration, logger *zap.Logger) *WSClient {
	if url == "" {
		url = DefaultStreamURL
	}
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}
	return &WSClient{
		url:            url,
		topics:         topics,
		dialTimeout:    dialTimeout,
		reconnectDelay: 3 * time.Second,
		pingInterval:   20 * time.Second,
		logger:         logger.Named("ws"),
	}
}

// SetMessageHandler sets the function to handle incoming messages.
func (c *WSClient) SetMessageHandler(h func([]byte)) {
	c.handler = h
}

// Run connects, subscribes and listens until ctx is done, reconnecting
// after any read error.
func (c *WSClient) Run(ctx context.Context) error {
	for {
		conn, err := c.connect(ctx)
		if err == nil {
			c.logger.Info("websocket connected", zap.String("url", c.url))
			err = c.listen(ctx, conn)
		}
		if ctx.Err() != nil {
			return nil
		}
		c.logger.Warn("websocket disconnected, reconnecting",
			zap.Duration("delay", c.reconnectDelay), zap.Error(err))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.reconnectDelay):
		}
	}
}

func (c *WSClient) connect(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.dialTimeout}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.url, err)
	}

	args := c.topics(ctx)
	for start := 0; start < len(args); start += maxArgsPerSubscribe {
		end := min(start+maxArgsPerSubscribe, len(args))
		if err := c.write(conn, map[string]any{"op": "subscribe", "args": args[start:end]}); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("websocket subscribe failed: %w", err)
		}
	}
	c.logger.Info("subscribed", zap.Int("topics", len(args)))
	return conn, nil
}

func (c *WSClient) listen(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)

	go func() {
		ping := time.NewTicker(c.pingInterval)
		defer ping.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-done:
				_ = conn.Close()
				return
			case <-ping.C:
				if err := c.write(conn, map[string]string{"op": "ping"}); err != nil {
					c.logger.Debug("ping failed", zap.Error(err))
				}
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("websocket read: %w", err)
		}
		if c.handler != nil {
			c.handler(msg)
		}
	}
}

func (c *WSClient) write(conn *websocket.Conn, v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if conn == nil {
		return errors.New("no connection")
	}
	return conn.WriteJSON(v)
}
