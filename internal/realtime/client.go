package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rumbleFTW/koe-app/internal/codec"
	"github.com/rumbleFTW/koe-app/internal/shared"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024

	DefaultSubprotocol      = "realtime"
	DefaultHandshakeTimeout = 15 * time.Second
	DefaultSendBuffer       = 256
)

// Pipeline is the audio side of a session as seen by the client.
type Pipeline interface {
	Active() bool
	Frames() <-chan *codec.Frame
	Faults() <-chan error
	Play(*codec.Frame) error
	Shutdown()
}

type Transcript interface {
	Reset()
	Append(role shared.Role, content string)
}

type Stats interface {
	FrameSent()
	FrameReceived()
	MessageUnknown(msgType string)
	ServerError(kind string)
	StateChanged(State)
}

type nopStats struct{}

func (nopStats) FrameSent()            {}
func (nopStats) FrameReceived()        {}
func (nopStats) MessageUnknown(string) {}
func (nopStats) ServerError(string)    {}
func (nopStats) StateChanged(State)    {}

// Observer callbacks run on client goroutines and must not block.
type Observer struct {
	OnState func(State)
	OnEvent func(Event)
	OnDebug func(json.RawMessage)
}

type Config struct {
	URL              string
	Subprotocol      string
	HandshakeTimeout time.Duration
	SendBuffer       int
	Header           http.Header
	Stats            Stats
}

type Client struct {
	cfg        Config
	dialer     *websocket.Dialer
	transcript Transcript
	stats      Stats
	log        *slog.Logger

	mu         sync.Mutex
	state      State
	session    SessionConfig
	conn       *connection
	cancelDial context.CancelFunc
	observers  []Observer
	debug      json.RawMessage
}

type connection struct {
	ws       *websocket.Conn
	pipeline Pipeline
	frames   <-chan *codec.Frame
	faults   <-chan error
	send     chan []byte
	seq      atomic.Uint64

	stopAudio chan struct{}
	stopWrite chan struct{}
	writeDone chan struct{}
	forwarder sync.WaitGroup
	once      sync.Once
}

func NewClient(cfg Config, transcript Transcript, log *slog.Logger) *Client {
	if cfg.Subprotocol == "" {
		cfg.Subprotocol = DefaultSubprotocol
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultSendBuffer
	}
	stats := cfg.Stats
	if stats == nil {
		stats = nopStats{}
	}
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
			Subprotocols:     []string{cfg.Subprotocol},
		},
		transcript: transcript,
		stats:      stats,
		log:        log.With("component", "realtime"),
		session:    DefaultSessionConfig(),
	}
}

func (c *Client) Subscribe(o Observer) {
	c.mu.Lock()
	c.observers = append(c.observers, o)
	c.mu.Unlock()
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) Session() SessionConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Debug returns the most recent debug payload from the backend.
func (c *Client) Debug() json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.debug
}

// Connect dials the backend and starts the session on top of an already
// set-up pipeline. A failed dial shuts the pipeline down.
func (c *Client) Connect(ctx context.Context, pipeline Pipeline) error {
	if pipeline == nil || !pipeline.Active() {
		return shared.ErrAudioNotReady
	}

	c.mu.Lock()
	if c.state != Disconnected {
		c.mu.Unlock()
		return shared.ErrAlreadyActive
	}
	dialCtx, cancel := context.WithCancel(ctx)
	c.cancelDial = cancel
	c.state = Connecting
	c.mu.Unlock()
	defer cancel()
	c.notifyState(Connecting)

	// Grab the channels now; they go nil once the pipeline shuts down.
	frames, faults := pipeline.Frames(), pipeline.Faults()

	ws, _, err := c.dialer.DialContext(dialCtx, c.cfg.URL, c.cfg.Header)
	if err == nil && dialCtx.Err() != nil {
		_ = ws.Close()
		err = dialCtx.Err()
	}
	if err != nil {
		c.mu.Lock()
		c.cancelDial = nil
		c.state = Disconnected
		c.mu.Unlock()
		pipeline.Shutdown()
		c.notifyState(Disconnected)
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}

	conn := &connection{
		ws:        ws,
		pipeline:  pipeline,
		frames:    frames,
		faults:    faults,
		send:      make(chan []byte, c.cfg.SendBuffer),
		stopAudio: make(chan struct{}),
		stopWrite: make(chan struct{}),
		writeDone: make(chan struct{}),
	}

	c.mu.Lock()
	c.cancelDial = nil
	session := c.session
	update, err := encodeSessionUpdate(session)
	if err != nil {
		c.state = Disconnected
		c.mu.Unlock()
		_ = ws.Close()
		pipeline.Shutdown()
		c.notifyState(Disconnected)
		return fmt.Errorf("encode session update: %w", err)
	}
	if c.transcript != nil {
		c.transcript.Reset()
	}
	// The send buffer is empty, so session.update is always first on the wire.
	conn.send <- update
	c.conn = conn
	c.state = Connected
	c.mu.Unlock()

	c.log.Info("connected", "url", c.cfg.URL, "voice", session.Voice)
	c.notifyState(Connected)

	conn.forwarder.Add(1)
	go c.forward(conn)
	go c.writePump(conn)
	go c.readPump(conn)
	go c.watchFaults(conn)
	return nil
}

// Disconnect is idempotent. During a dial it cancels the attempt.
func (c *Client) Disconnect() {
	c.mu.Lock()
	switch c.state {
	case Connecting:
		if c.cancelDial != nil {
			c.cancelDial()
		}
		c.mu.Unlock()
		return
	case Connected:
		conn := c.conn
		c.mu.Unlock()
		c.teardown(conn, "client disconnect")
		return
	}
	c.mu.Unlock()
}

// UpdateConfig stores cfg for the next connection. A change while connected
// ends the current session.
func (c *Client) UpdateConfig(cfg SessionConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.session == cfg {
		c.mu.Unlock()
		return nil
	}
	c.session = cfg
	var conn *connection
	if c.state == Connected {
		conn = c.conn
	}
	c.mu.Unlock()

	if conn != nil {
		c.teardown(conn, "session config changed")
	}
	return nil
}

func (c *Client) teardown(conn *connection, reason string) {
	conn.once.Do(func() {
		if !c.transition(conn, Closing) {
			return
		}
		c.log.Info("closing session", "reason", reason)

		close(conn.stopAudio)
		conn.forwarder.Wait()

		conn.pipeline.Shutdown()

		close(conn.stopWrite)
		<-conn.writeDone
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = conn.ws.Close()

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.state = Disconnected
		c.mu.Unlock()
		c.notifyState(Disconnected)
	})
}

func (c *Client) transition(conn *connection, next State) bool {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return false
	}
	c.state = next
	c.mu.Unlock()
	c.notifyState(next)
	return true
}

func (c *Client) enqueue(conn *connection, data []byte) {
	select {
	case conn.send <- data:
	default:
		c.log.Warn("send buffer full, dropping message")
	}
}

func (c *Client) forward(conn *connection) {
	defer conn.forwarder.Done()
	for {
		select {
		case <-conn.stopAudio:
			return
		case f := <-conn.frames:
			if f == nil {
				continue
			}
			owned := f.Move()
			data, err := encodeAudioAppend(owned.Data())
			if err != nil {
				c.log.Error("failed to encode audio frame", "seq", owned.Seq(), "error", err)
				continue
			}
			c.enqueue(conn, data)
			c.stats.FrameSent()
		}
	}
}

func (c *Client) watchFaults(conn *connection) {
	select {
	case <-conn.stopAudio:
	case err := <-conn.faults:
		c.log.Error("audio pipeline fault", "error", err)
		c.teardown(conn, "audio pipeline fault")
	}
}

func (c *Client) writePump(conn *connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(conn.writeDone)
	}()

	for {
		select {
		case <-conn.stopWrite:
			return
		case data := <-conn.send:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Error("websocket write error", "error", err)
				_ = conn.ws.Close()
				return
			}
		case <-ticker.C:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.ws.Close()
				return
			}
		}
	}
}

func (c *Client) readPump(conn *connection) {
	defer c.teardown(conn, "transport closed")

	conn.ws.SetReadLimit(maxMessageSize)
	_ = conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Error("websocket read error", "error", err)
			}
			return
		}

		ev, err := DecodeEvent(data)
		if err != nil {
			c.log.Warn("dropping malformed message", "error", err)
			continue
		}
		c.dispatch(conn, ev)
	}
}

func (c *Client) dispatch(conn *connection, ev Event) {
	c.notifyEvent(ev)

	switch e := ev.(type) {
	case AudioDeltaEvent:
		c.stats.FrameReceived()
		frame := codec.NewFrame(conn.seq.Add(1), e.Audio)
		if err := conn.pipeline.Play(frame); err != nil {
			c.log.Debug("audio delta not played", "error", err)
		}
	case AdditionalOutputsEvent:
		c.mu.Lock()
		c.debug = e.DebugDict
		c.mu.Unlock()
		c.notifyDebug(e.DebugDict)
	case TranscriptionDeltaEvent:
		if c.transcript != nil {
			c.transcript.Append(shared.RoleUser, e.Delta)
		}
	case TextDeltaEvent:
		if c.transcript != nil {
			c.transcript.Append(shared.RoleAssistant, e.Delta)
		}
	case ErrorEvent:
		c.stats.ServerError(e.Kind)
		if e.Warning() {
			c.log.Warn("server warning", "message", e.Message)
		} else {
			c.log.Error("server error", "kind", e.Kind, "message", e.Message)
		}
	case IgnoredEvent:
	case UnknownEvent:
		c.stats.MessageUnknown(e.Type)
		c.log.Warn("unknown message type", "type", e.Type)
	}
}

func (c *Client) snapshotObservers() []Observer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Observer(nil), c.observers...)
}

func (c *Client) notifyState(s State) {
	c.stats.StateChanged(s)
	for _, o := range c.snapshotObservers() {
		if o.OnState != nil {
			o.OnState(s)
		}
	}
}

func (c *Client) notifyEvent(ev Event) {
	for _, o := range c.snapshotObservers() {
		if o.OnEvent != nil {
			o.OnEvent(ev)
		}
	}
}

func (c *Client) notifyDebug(d json.RawMessage) {
	for _, o := range c.snapshotObservers() {
		if o.OnDebug != nil {
			o.OnDebug(d)
		}
	}
}
