package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	initialBackoff = 2 * time.Second
	maxBackoff     = 30 * time.Second
)

// ErrNotConnected is returned by sends while the backend is away. The
// per-stream in-flight guards upstream treat it as a dropped send; the
// next scheduled frame simply tries again after reconnect.
var ErrNotConnected = errors.New("transport not connected")

// Config describes the backend connection and the att_cfg handshake
// issued on every connection establishment.
type Config struct {
	URL       string
	Threshold float64
	Mark      bool
}

// Bus is the inbound/outbound surface the pipeline uses, kept narrow so
// tests can drive the session with synthetic events.
type Bus interface {
	Subscribe() (<-chan Event, func())
	SendFrame(stream Stream, payload []byte) error
	Connected() bool
}

// Client maintains one websocket connection to the recognition backend
// with automatic reconnection, and fans inbound events out to
// subscribers. Events are delivered per stream in arrival order; the
// two result streams are not ordered relative to each other.
type Client struct {
	cfg    Config
	logger zerolog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	subs      map[int]chan Event
	nextSub   int
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewClient(cfg Config, logger zerolog.Logger) *Client {
	return &Client{
		cfg:    cfg,
		logger: logger.With().Str("component", "transport").Logger(),
		subs:   make(map[int]chan Event),
	}
}

// Start launches the connection loop. Safe to call once per client.
func (c *Client) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.connectLoop(ctx)
}

// Stop tears the connection down and ends the loop.
func (c *Client) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	conn := c.conn
	done := c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	if done != nil {
		<-done
	}
}

// Connected reports whether the backend is currently reachable.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Subscribe returns a channel of inbound events and an unsubscribe
// function. Unsubscribe is idempotent; registration and removal are
// symmetric so a stopping view cannot leak handlers or disturb other
// subscribers on the shared connection.
func (c *Client) Subscribe() (<-chan Event, func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	ch := make(chan Event, 16)
	c.subs[id] = ch
	c.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			c.mu.Lock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
			c.mu.Unlock()
		})
	}
	return ch, unsubscribe
}

// SendFrame transmits an encoded snapshot on the given stream as a
// binary message.
func (c *Client) SendFrame(stream Stream, payload []byte) error {
	msg, err := EncodeBinary(stream.FrameEvent(), payload)
	if err != nil {
		return err
	}
	return c.write(websocket.BinaryMessage, msg)
}

func (c *Client) sendJSON(event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	msg, err := json.Marshal(envelope{Event: event, Data: raw})
	if err != nil {
		return err
	}
	return c.write(websocket.TextMessage, msg)
}

func (c *Client) write(messageType int, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected || c.conn == nil {
		return ErrNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, payload)
}

func (c *Client) connectLoop(ctx context.Context) {
	defer close(c.done)
	backoff := initialBackoff

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := c.runConnection(ctx); err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			c.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("backend connection lost")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		} else {
			backoff = initialBackoff
		}
	}
}

func (c *Client) runConnection(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		c.dispatch(Event{Kind: EventConnectError, Err: err})
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	c.logger.Info().Str("url", c.cfg.URL).Msg("connected to recognition backend")
	c.dispatch(Event{Kind: EventConnect})

	// Matching threshold and mark flag are re-issued on every connection
	// establishment; the backend does not persist them across sessions.
	if err := c.sendJSON("att_cfg", AttConfig{Threshold: c.cfg.Threshold, Mark: c.cfg.Mark}); err != nil {
		c.logger.Warn().Err(err).Msg("att_cfg handshake failed")
	}

	readErr := c.readLoop(ctx, conn)

	c.mu.Lock()
	c.connected = false
	c.conn = nil
	c.mu.Unlock()
	_ = conn.Close()

	c.dispatch(Event{Kind: EventDisconnect, Err: readErr})
	return readErr
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var env envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			c.logger.Debug().Err(err).Msg("skipping malformed backend message")
			continue
		}

		var data map[string]any
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &data); err != nil {
				c.logger.Debug().Str("event", env.Event).Err(err).Msg("skipping malformed event payload")
				continue
			}
		}

		switch EventKind(env.Event) {
		case EventAttResult, EventFunResult:
			c.dispatch(Event{Kind: EventKind(env.Event), Payload: data})
		default:
			c.logger.Debug().Str("event", env.Event).Msg("ignoring unknown backend event")
		}
	}
}

func (c *Client) dispatch(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sub := range c.subs {
		select {
		case sub <- ev:
		default:
			// Slow subscriber; last-result-wins semantics make dropping
			// an event safe.
		}
	}
}
