package eduwire

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	internalbackoff "github.com/ambiyansyah-risyal/eduwire/internal/backoff"
)

const notificationsEndpoint = "/ws/notifications/"

// Event is one realtime notification pushed by the backend.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Realtime maintains the notification websocket: it dials with the current
// access token, delivers events on a channel, and reconnects with backoff
// after transport failures. Errors it surfaces carry the websocket category.
type Realtime struct {
	client *Client
	wsURL  string

	dialer     *websocket.Dialer
	calculator *internalbackoff.Calculator
	maxRetries int

	events chan Event
	errs   chan error

	closeOnce sync.Once
	done      chan struct{}
}

// Realtime creates the notification stream client. Connect must be called to
// start it.
func (c *Client) Realtime() (*Realtime, error) {
	wsURL, err := websocketURL(c.baseURL, notificationsEndpoint)
	if err != nil {
		return nil, &ClientError{Type: ErrorTypeWebSocket, Message: "invalid websocket URL", Cause: err}
	}

	return &Realtime{
		client:     c,
		wsURL:      wsURL,
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		calculator: internalbackoff.ExponentialJitter(),
		maxRetries: 8,
		events:     make(chan Event, 16),
		errs:       make(chan error, 1),
		done:       make(chan struct{}),
	}, nil
}

// Connect dials the stream and starts the read loop. It returns once the
// first connection is established or definitively failed.
func (rt *Realtime) Connect(ctx context.Context) error {
	conn, err := rt.dial(ctx)
	if err != nil {
		return err
	}

	go rt.run(ctx, conn)
	return nil
}

// Events returns the channel of incoming notifications. It is closed when
// the stream shuts down.
func (rt *Realtime) Events() <-chan Event {
	return rt.events
}

// Errors returns the channel carrying the terminal stream error, if any.
func (rt *Realtime) Errors() <-chan error {
	return rt.errs
}

// Close shuts the stream down. It is safe to call more than once.
func (rt *Realtime) Close() error {
	rt.closeOnce.Do(func() {
		close(rt.done)
	})
	return nil
}

func (rt *Realtime) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if token := rt.client.Token(); token != "" {
		header.Set("Authorization", "Token "+token)
	}

	conn, resp, err := rt.dialer.DialContext(ctx, rt.wsURL, header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return nil, &ClientError{
			Type:       ErrorTypeWebSocket,
			Message:    "websocket dial failed",
			Cause:      err,
			StatusCode: status,
			Endpoint:   notificationsEndpoint,
			Timestamp:  time.Now(),
		}
	}
	return conn, nil
}

// run reads events until the stream dies, then reconnects with backoff. The
// attempt counter resets after every successful connection.
func (rt *Realtime) run(ctx context.Context, conn *websocket.Conn) {
	defer close(rt.events)

	for {
		readErr := rt.supervise(ctx, conn)

		select {
		case <-rt.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		rt.client.logDebug("Notification stream dropped, reconnecting", "error", readErr.Error())

		var err error
		conn, err = rt.reconnect(ctx)
		if err != nil {
			select {
			case rt.errs <- err:
			default:
			}
			return
		}
	}
}

// supervise reads from conn until it fails. The watcher closes the connection
// when the stream is shut down or the context is cancelled, which unblocks the
// pending read; it also releases the dead connection on a plain read failure.
func (rt *Realtime) supervise(ctx context.Context, conn *websocket.Conn) error {
	settled := make(chan struct{})
	go func() {
		select {
		case <-rt.done:
		case <-ctx.Done():
		case <-settled:
		}
		conn.Close()
	}()
	defer close(settled)

	return rt.readLoop(conn)
}

func (rt *Realtime) readLoop(conn *websocket.Conn) error {
	for {
		var event Event
		if err := conn.ReadJSON(&event); err != nil {
			return err
		}
		select {
		case rt.events <- event:
		case <-rt.done:
			return websocket.ErrCloseSent
		}
	}
}

func (rt *Realtime) reconnect(ctx context.Context) (*websocket.Conn, error) {
	var lastErr error
	for attempt := 0; attempt < rt.maxRetries; attempt++ {
		delay := rt.calculator.Calculate(attempt, time.Second, 30*time.Second, 2.0, 0.25)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-rt.done:
			timer.Stop()
			return nil, &ClientError{Type: ErrorTypeWebSocket, Message: "stream closed"}
		case <-ctx.Done():
			timer.Stop()
			return nil, &ClientError{Type: ErrorTypeWebSocket, Message: "stream cancelled", Cause: ctx.Err()}
		}

		conn, err := rt.dial(ctx)
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}

	return nil, &ClientError{Type: ErrorTypeWebSocket, Message: "reconnect attempts exhausted", Cause: lastErr}
}

// websocketURL rewrites the API base URL onto the ws scheme.
func websocketURL(baseURL, path string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String(), nil
}
