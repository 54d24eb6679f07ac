// Package natsclient manages the NATS connection used for trigger ingress,
// domain event publication, and the pub/sub discovery source.
package natsclient

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/plantwatch/errors"
	"github.com/c360/plantwatch/pkg/retry"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusClosed
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrNotConnected is returned by operations attempted before Connect succeeds
var ErrNotConnected = stderrors.New("not connected to NATS")

// Option configures a Client
type Option func(*Client)

// WithName sets the client connection name
func WithName(name string) Option {
	return func(c *Client) { c.clientName = name }
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithTimeout sets the connection timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithReconnectWait sets the delay between reconnect attempts
func WithReconnectWait(d time.Duration) Option {
	return func(c *Client) { c.reconnectWait = d }
}

// WithCredentials sets username/password authentication
func WithCredentials(username, password string) Option {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// WithStatusCallback registers a callback invoked on connect/disconnect
// transitions, typically to update a connectivity gauge.
func WithStatusCallback(fn func(connected bool)) Option {
	return func(c *Client) { c.onStatusChange = fn }
}

// Client manages a NATS connection with automatic reconnection
type Client struct {
	url           string
	clientName    string
	timeout       time.Duration
	reconnectWait time.Duration
	maxReconnects int
	drainTimeout  time.Duration
	username      string
	password      string
	logger        *slog.Logger

	status         atomic.Value // stores ConnectionStatus
	reconnects     atomic.Int32
	onStatusChange func(connected bool)

	mu     sync.RWMutex
	conn   *nats.Conn
	subs   []*nats.Subscription
	closed atomic.Bool
}

// NewClient creates a new NATS client. Connect must be called before use.
func NewClient(url string, opts ...Option) (*Client, error) {
	if url == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"natsclient", "NewClient", "URL validation")
	}

	c := &Client{
		url:           url,
		clientName:    "plantwatch",
		timeout:       5 * time.Second,
		reconnectWait: 2 * time.Second,
		maxReconnects: -1, // infinite
		drainTimeout:  10 * time.Second,
		logger:        slog.Default(),
	}
	c.status.Store(StatusDisconnected)

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Connect establishes the NATS connection, retrying transient failures.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return errors.WrapInvalid(errors.ErrShuttingDown, "natsclient", "Connect", "closed check")
	}

	c.status.Store(StatusConnecting)

	natsOpts := []nats.Option{
		nats.Name(c.clientName),
		nats.Timeout(c.timeout),
		nats.ReconnectWait(c.reconnectWait),
		nats.MaxReconnects(c.maxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.status.Store(StatusReconnecting)
			c.notifyStatus(false)
			if err != nil {
				c.logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.status.Store(StatusConnected)
			c.reconnects.Add(1)
			c.notifyStatus(true)
			c.logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			c.status.Store(StatusClosed)
			c.notifyStatus(false)
		}),
	}

	if c.username != "" {
		natsOpts = append(natsOpts, nats.UserInfo(c.username, c.password))
	}

	conn, err := retry.DoWithResult(ctx, retry.Quick(), func() (*nats.Conn, error) {
		return nats.Connect(c.url, natsOpts...)
	})
	if err != nil {
		c.status.Store(StatusDisconnected)
		return errors.WrapTransient(err, "natsclient", "Connect", "NATS connect")
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.status.Store(StatusConnected)
	c.notifyStatus(true)
	c.logger.Info("NATS connected", "url", conn.ConnectedUrl())
	return nil
}

// Status returns the current connection status
func (c *Client) Status() ConnectionStatus {
	status, _ := c.status.Load().(ConnectionStatus)
	return status
}

// Reconnects returns the number of reconnections since Connect
func (c *Client) Reconnects() int32 {
	return c.reconnects.Load()
}

// Connection returns the underlying NATS connection, or nil before Connect
func (c *Client) Connection() *nats.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

// Publish publishes data to a subject
func (c *Client) Publish(subject string, data []byte) error {
	conn := c.Connection()
	if conn == nil {
		return errors.WrapTransient(ErrNotConnected, "natsclient", "Publish", "connection check")
	}
	if err := conn.Publish(subject, data); err != nil {
		return errors.WrapTransient(err, "natsclient", "Publish", "publish")
	}
	return nil
}

// Subscribe subscribes to a subject. The subscription is tracked and drained
// on Close.
func (c *Client) Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	conn := c.Connection()
	if conn == nil {
		return nil, errors.WrapTransient(ErrNotConnected, "natsclient", "Subscribe", "connection check")
	}

	sub, err := conn.Subscribe(subject, handler)
	if err != nil {
		return nil, errors.WrapTransient(err, "natsclient", "Subscribe", "subscribe")
	}

	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return sub, nil
}

// QueueSubscribe subscribes to a subject within a queue group so that
// horizontally-scaled instances share the message load.
func (c *Client) QueueSubscribe(subject, queue string, handler nats.MsgHandler) (*nats.Subscription, error) {
	conn := c.Connection()
	if conn == nil {
		return nil, errors.WrapTransient(ErrNotConnected, "natsclient", "QueueSubscribe", "connection check")
	}

	sub, err := conn.QueueSubscribe(subject, queue, handler)
	if err != nil {
		return nil, errors.WrapTransient(err, "natsclient", "QueueSubscribe", "queue subscribe")
	}

	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return sub, nil
}

// Flush flushes pending publishes to the server
func (c *Client) Flush() error {
	conn := c.Connection()
	if conn == nil {
		return errors.WrapTransient(ErrNotConnected, "natsclient", "Flush", "connection check")
	}
	return conn.Flush()
}

// notifyStatus invokes the status callback if configured
func (c *Client) notifyStatus(connected bool) {
	if c.onStatusChange != nil {
		c.onStatusChange(connected)
	}
}

// Close drains subscriptions and closes the connection. Safe to call once;
// subsequent calls are no-ops.
func (c *Client) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.mu.Lock()
	conn := c.conn
	subs := c.subs
	c.conn = nil
	c.subs = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			c.logger.Warn("Failed to unsubscribe", "subject", sub.Subject, "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := conn.Drain(); err != nil {
			c.logger.Warn("NATS drain failed, closing hard", "error", err)
			conn.Close()
		}
	}()

	select {
	case <-done:
	case <-ctx.Done():
		conn.Close()
	case <-time.After(c.drainTimeout):
		conn.Close()
	}

	c.status.Store(StatusClosed)
	return nil
}
