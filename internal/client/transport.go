// Package client implements the editor-facing half of the collaboration
// protocol: the websocket transport with reconnect, the sync agent that
// bridges an editing surface to the server, a local snapshot cache and LAN
// discovery of servers.
package client

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"

	"github.com/Henryk91/bpmn-collaborator/internal/protocol"
)

type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// ErrNotOpen is returned by Send while the transport has no live
// connection. Messages are dropped, not queued: the join handshake after a
// reconnect re-synchronizes state, so replay is unnecessary.
var ErrNotOpen = errors.New("transport: not connected")

const (
	DefaultBaseDelay = 3 * time.Second
	DefaultMaxDelay  = 30 * time.Second
)

type TransportOptions struct {
	// BaseDelay and MaxDelay shape the reconnect schedule: the delay
	// doubles per failed attempt from BaseDelay up to MaxDelay and resets
	// on a successful connect.
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Dialer    *websocket.Dialer

	OnMessage func(protocol.Envelope)
	OnState   func(State)
}

// EndpointURL builds the websocket endpoint for a document from an http(s)
// or ws(s) base URL, carrying the requested display name as a query
// parameter.
func EndpointURL(base, docID, userName string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/ws/" + docID
	if userName != "" {
		q := u.Query()
		q.Set("user_name", userName)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Transport maintains one websocket connection to the server, redialing
// with exponential backoff after abnormal closures. A clean close, local or
// remote, ends it for good.
type Transport struct {
	url       string
	dialer    *websocket.Dialer
	onMessage func(protocol.Envelope)
	onState   func(State)
	bo        *backoff.ExponentialBackOff

	mu     sync.Mutex
	conn   *websocket.Conn
	state  State
	closed bool
	timer  *time.Timer
}

func NewTransport(endpoint string, opts TransportOptions) *Transport {
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = DefaultMaxDelay
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Transport{
		url:       endpoint,
		dialer:    opts.Dialer,
		onMessage: opts.OnMessage,
		onState:   opts.OnState,
		bo:        newBackoff(opts.BaseDelay, opts.MaxDelay),
		state:     StateClosed,
	}
}

// newBackoff builds the reconnect schedule: base, base*2, base*4, ... capped
// at max, with no jitter so attempt timing is predictable.
func newBackoff(base, max time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = max
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Start begins connecting. It returns immediately; connection progress is
// reported through OnState.
func (t *Transport) Start() {
	go t.connect()
}

func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transport) setState(s State) {
	t.mu.Lock()
	changed := t.state != s
	t.state = s
	t.mu.Unlock()
	if changed && t.onState != nil {
		t.onState(s)
	}
}

func (t *Transport) connect() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	t.setState(StateConnecting)

	conn, _, err := t.dialer.Dial(t.url, nil)
	if err != nil {
		log.Printf("transport: dial %s: %v", t.url, err)
		t.scheduleReconnect()
		return
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.Close()
		return
	}
	t.conn = conn
	t.bo.Reset()
	t.mu.Unlock()
	t.setState(StateOpen)

	go t.readLoop(conn)
}

func (t *Transport) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.handleDisconnect(err)
			return
		}
		env, err := protocol.Decode(raw)
		if err != nil {
			// A malformed frame on an open socket is a protocol error
			// worth surfacing in the log, but not fatal.
			log.Printf("transport: %v", err)
			continue
		}
		if t.onMessage != nil {
			t.onMessage(env)
		}
	}
}

func (t *Transport) handleDisconnect(err error) {
	t.mu.Lock()
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	intentional := t.closed
	t.mu.Unlock()

	// Close code 1000 is an intentional goodbye from either side; anything
	// else triggers the backoff reconnect.
	if intentional || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.setState(StateClosed)
		return
	}
	log.Printf("transport: connection lost: %v", err)
	t.scheduleReconnect()
}

func (t *Transport) scheduleReconnect() {
	t.setState(StateConnecting)
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	delay := t.bo.NextBackOff()
	t.timer = time.AfterFunc(delay, t.connect)
	t.mu.Unlock()
	log.Printf("transport: reconnecting in %s", delay)
}

// Send encodes and writes one frame. While disconnected the frame is
// dropped and ErrNotOpen returned.
func (t *Transport) Send(typ protocol.Type, payload any) error {
	raw, err := protocol.Encode(typ, payload)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateOpen || t.conn == nil {
		return ErrNotOpen
	}
	return t.conn.WriteMessage(websocket.TextMessage, raw)
}

// Close ends the transport cleanly: pending reconnects are canceled, the
// server is told close 1000 and no reconnect follows.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	if t.timer != nil {
		t.timer.Stop()
	}
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
	}
	t.setState(StateClosed)
	return nil
}
