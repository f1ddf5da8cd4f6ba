// Package agentcore maintains the persistent connection to the collector:
// outbound result packages, inbound configuration pushes.
package agentcore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hamed0406/probekit/internal/packager"
)

// Message is the framed JSON unit on the wire, both directions.
type Message struct {
	Type      string            `json:"type"`
	Name      string            `json:"name,omitempty"`
	Version   string            `json:"version,omitempty"`
	PackageID string            `json:"package_id,omitempty"`
	Envelopes []json.RawMessage `json:"envelopes,omitempty"`
}

const (
	msgAnnounce     = "announce"
	msgPackage      = "package"
	msgConfigUpdate = "config_update"
)

type queuedPackage struct {
	id  uuid.UUID
	pkg packager.Package
}

// Client keeps a websocket connection to AgentCore alive for the probe's
// lifetime. Disconnected probes have no value, so reconnecting never gives
// up; queued packages beyond the buffer bound are dropped oldest-first
// because results are perishable telemetry, not a durable log.
type Client struct {
	Logger         *zap.Logger
	URL            string
	Name           string
	Version        string
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	queue     chan queuedPackage
	connected atomic.Bool

	mu       sync.Mutex
	onConfig func()
}

func New(logger *zap.Logger, url, name, version string, queueSize int) *Client {
	if queueSize < 1 {
		queueSize = 64
	}
	return &Client{
		Logger:         logger,
		URL:            url,
		Name:           name,
		Version:        version,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     128 * time.Second,
		queue:          make(chan queuedPackage, queueSize),
	}
}

// OnConfigUpdate registers the handler invoked when AgentCore pushes new
// configuration.
func (c *Client) OnConfigUpdate(fn func()) {
	c.mu.Lock()
	c.onConfig = fn
	c.mu.Unlock()
}

func (c *Client) Connected() bool { return c.connected.Load() }

func (c *Client) QueueDepth() int { return len(c.queue) }

// Submit queues a package for delivery (at-least-once attempt, no dedup).
// A full queue sheds the oldest unsent package with a warning.
func (c *Client) Submit(pkg packager.Package) {
	c.enqueue(queuedPackage{id: uuid.New(), pkg: pkg})
}

// enqueue adds an already-identified package, keeping its id stable across
// retries so delivery logs correlate.
func (c *Client) enqueue(item queuedPackage) {
	for {
		select {
		case c.queue <- item:
			return
		default:
		}
		select {
		case old := <-c.queue:
			c.Logger.Warn("package_dropped_queue_full",
				zap.String("package_id", old.id.String()),
				zap.Int("envelopes", len(old.pkg.Envelopes)),
			)
		default:
		}
	}
}

// Run dials and serves the connection until ctx is cancelled, reconnecting
// with doubling backoff on every failure and resetting it on success.
func (c *Client) Run(ctx context.Context) {
	backoff := c.InitialBackoff
	for ctx.Err() == nil {
		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.Logger.Error("agentcore_connect_failed",
				zap.Error(err),
				zap.Duration("retry_in", backoff),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, c.MaxBackoff)
			continue
		}
		backoff = c.InitialBackoff

		c.serve(ctx, conn)
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dctx, c.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.URL, err)
	}
	if err := conn.WriteJSON(Message{Type: msgAnnounce, Name: c.Name, Version: c.Version}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("announce: %w", err)
	}
	c.Logger.Info("agentcore_connected", zap.String("url", c.URL))
	return conn, nil
}

// serve pumps the queue out and pushes in until either side fails or ctx is
// cancelled. All writes happen here; the reader goroutine only reads.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) {
	c.connected.Store(true)
	defer func() {
		c.connected.Store(false)
		conn.Close()
	}()

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				if ctx.Err() == nil {
					c.Logger.Warn("agentcore_read_error", zap.Error(err))
				}
				return
			}
			switch msg.Type {
			case msgConfigUpdate:
				c.Logger.Info("config_update_received")
				c.mu.Lock()
				fn := c.onConfig
				c.mu.Unlock()
				if fn != nil {
					fn()
				}
			default:
				c.Logger.Debug("agentcore_message_ignored", zap.String("type", msg.Type))
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
			conn.Close()
			<-readerDone
			return
		case <-readerDone:
			// connection lost; Run redials
			return
		case item := <-c.queue:
			if err := c.write(conn, item); err != nil {
				c.Logger.Warn("package_send_failed_requeueing",
					zap.String("package_id", item.id.String()),
					zap.Error(err),
				)
				c.enqueue(item) // back of the queue, same id; at-least-once attempt
				conn.Close()
				<-readerDone
				return
			}
		}
	}
}

func (c *Client) write(conn *websocket.Conn, item queuedPackage) error {
	msg := Message{Type: msgPackage, PackageID: item.id.String()}
	for _, env := range item.pkg.Envelopes {
		b, err := env.Encode()
		if err != nil {
			return err
		}
		msg.Envelopes = append(msg.Envelopes, json.RawMessage(b))
	}
	if err := conn.WriteJSON(msg); err != nil {
		return err
	}
	c.Logger.Debug("package_sent",
		zap.String("package_id", item.id.String()),
		zap.Int("envelopes", len(item.pkg.Envelopes)),
		zap.Int("size", item.pkg.Size),
	)
	return nil
}

// Flush waits for the queue to drain, bounded by ctx. Call it before
// cancelling Run so the serve loop is still writing.
func (c *Client) Flush(ctx context.Context) error {
	for {
		depth := c.QueueDepth()
		if depth == 0 {
			return nil
		}
		if !c.Connected() {
			return fmt.Errorf("agentcore disconnected with %d packages unsent", depth)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("flush incomplete: %d packages left", depth)
		case <-time.After(20 * time.Millisecond):
		}
	}
}
