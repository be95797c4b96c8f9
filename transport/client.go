// Package transport connects the live-update client to the update server
// over a WebSocket. Received commands are published as CloudEvents so that
// any number of observers (usually the command dispatcher) can react.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/gorilla/websocket"

	"github.com/GoCodeAlone/watchreload"
	"github.com/GoCodeAlone/watchreload/command"
)

// EventSource is the CloudEvents source of received commands.
const EventSource = "watchreload/transport"

// Event types emitted by the client itself.
const (
	EventTypeConnected    = "com.watchreload.transport.connected"
	EventTypeDisconnected = "com.watchreload.transport.disconnected"
)

const defaultWriteTimeout = 10 * time.Second

// Client is a WebSocket connection to the update server.
type Client struct {
	serverURL    string
	name         string
	logger       watchreload.Logger
	dialer       *websocket.Dialer
	writeTimeout time.Duration
	events       *watchreload.EventBus

	mu   sync.Mutex // guards conn and serializes writes
	conn *websocket.Conn
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(logger watchreload.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDialer replaces the default gorilla dialer.
func WithDialer(dialer *websocket.Dialer) Option {
	return func(c *Client) {
		if dialer != nil {
			c.dialer = dialer
		}
	}
}

// WithWriteTimeout bounds writes that have no context deadline.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.writeTimeout = timeout
		}
	}
}

// NewClient creates a client for serverURL. http and https URLs are mapped
// to ws and wss.
func NewClient(serverURL, name string, opts ...Option) (*Client, error) {
	wsURL, err := websocketURL(serverURL)
	if err != nil {
		return nil, err
	}
	c := &Client{
		serverURL:    wsURL,
		name:         name,
		logger:       watchreload.NopLogger{},
		dialer:       websocket.DefaultDialer,
		writeTimeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.events = watchreload.NewEventBus(EventSource, c.logger)
	return c, nil
}

func websocketURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidServerURL, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidServerURL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidServerURL)
	}
	return u.String(), nil
}

// URL returns the WebSocket URL the client dials.
func (c *Client) URL() string { return c.serverURL }

// Connect dials the server and sends the register message.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	conn, resp, err := c.dialer.DialContext(ctx, c.serverURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("dial %s: %w", c.serverURL, err)
	}
	c.conn = conn
	c.mu.Unlock()

	c.logger.Info("Connected to update server", "url", c.serverURL)
	c.events.Emit(ctx, EventTypeConnected, map[string]string{"url": c.serverURL})

	if err := c.Send(ctx, command.Register, command.RegisterData{Name: c.name}); err != nil {
		_ = c.Close()
		return fmt.Errorf("register: %w", err)
	}
	return nil
}

// Send writes one {type, data} message.
func (c *Client) Send(ctx context.Context, msgType string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	payload, err := json.Marshal(command.Message{Type: msgType, Data: raw})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.writeTimeout)
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("send %s: %w", msgType, err)
	}
	c.logger.Debug("sent message", "type", msgType)
	return nil
}

// Run reads commands until ctx is cancelled or the connection drops. A
// cancelled context is not an error.
func (c *Client) Run(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			_ = c.Close()
			c.events.Emit(context.WithoutCancel(ctx), EventTypeDisconnected, map[string]string{"url": c.serverURL})
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info("Disconnected from update server", "url", c.serverURL)
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		c.handle(ctx, raw)
	}
}

func (c *Client) handle(ctx context.Context, raw []byte) {
	var msg command.Message
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Type == "" {
		c.logger.Warn("Ignoring malformed message", "message", string(raw), "error", err)
		return
	}

	event := watchreload.NewCloudEvent(watchreload.CommandEventType(msg.Type), EventSource, nil, nil)
	if len(msg.Data) > 0 {
		if err := event.SetData(cloudevents.ApplicationJSON, []byte(msg.Data)); err != nil {
			c.logger.Warn("Ignoring message with unusable data", "type", msg.Type, "error", err)
			return
		}
	}
	if err := c.events.NotifyObservers(ctx, event); err != nil {
		c.logger.Error("Failed to publish command", "type", msg.Type, "error", err)
	}
}

// Close closes the connection. Closing a closed client is a no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := c.conn.Close()
	c.conn = nil
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return err
	}
	return nil
}

// RegisterObserver implements watchreload.Subject.
func (c *Client) RegisterObserver(observer watchreload.Observer, eventTypes ...string) error {
	return c.events.RegisterObserver(observer, eventTypes...)
}

// UnregisterObserver implements watchreload.Subject.
func (c *Client) UnregisterObserver(observer watchreload.Observer) error {
	return c.events.UnregisterObserver(observer)
}

// NotifyObservers implements watchreload.Subject.
func (c *Client) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	return c.events.NotifyObservers(ctx, event)
}

// GetObservers implements watchreload.Subject.
func (c *Client) GetObservers() []watchreload.ObserverInfo {
	return c.events.GetObservers()
}
