package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	ports "github.com/ZanzyTHEbar/roundtable/roundtable/orchestration/ports"
)

// ErrAgentClosed is returned by Dispatch after Close.
var ErrAgentClosed = errors.New("agent handle is closed")

// WebsocketAgentConfig configures one backend connection.
type WebsocketAgentConfig struct {
	URL         string
	AgentID     string
	APIKey      string // sent as a bearer token when set
	DialTimeout time.Duration
}

// WebsocketAgent is an AgentHandle backed by a websocket connection. Prompts
// go out as JSON frames; chat, audio and error frames come back on a reader
// goroutine and fan out to every subscriber.
type WebsocketAgent struct {
	cfg       WebsocketAgentConfig
	dialer    *websocket.Dialer
	validator *FrameValidator
	logger    zerolog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	subs   map[uint64]ports.ReplyHandlers
	nextID uint64

	writeMu sync.Mutex
}

// NewWebsocketAgent creates a handle; the connection is dialled on first dispatch.
func NewWebsocketAgent(cfg WebsocketAgentConfig, logger zerolog.Logger) (*WebsocketAgent, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("websocket agent %s: backend url is empty", cfg.AgentID)
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	validator, err := NewFrameValidator()
	if err != nil {
		return nil, err
	}
	return &WebsocketAgent{
		cfg:       cfg,
		dialer:    &websocket.Dialer{HandshakeTimeout: cfg.DialTimeout, Proxy: http.ProxyFromEnvironment},
		validator: validator,
		logger:    logger.With().Str("component", "websocket_agent").Str("agent_id", cfg.AgentID).Logger(),
		subs:      make(map[uint64]ports.ReplyHandlers),
	}, nil
}

// Subscribe registers handlers for every inbound frame.
func (a *WebsocketAgent) Subscribe(h ports.ReplyHandlers) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextID
	a.nextID++
	a.subs[id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.subs, id)
			a.mu.Unlock()
		})
	}
}

// Dispatch sends the prompt frame. It does not wait for the reply.
func (a *WebsocketAgent) Dispatch(ctx context.Context, projectID, prompt string) error {
	conn, err := a.connect(ctx)
	if err != nil {
		return err
	}

	frame := promptFrame{Type: FramePrompt, Agent: a.cfg.AgentID, Project: projectID, Text: prompt}

	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	} else {
		_ = conn.SetWriteDeadline(time.Time{})
	}
	if err := conn.WriteJSON(frame); err != nil {
		a.dropConn(conn)
		return fmt.Errorf("failed to send prompt: %w", err)
	}
	return nil
}

// Close shuts the connection down; pending turns receive no further frames.
func (a *WebsocketAgent) Close() error {
	a.mu.Lock()
	a.closed = true
	conn := a.conn
	a.conn = nil
	a.mu.Unlock()

	if conn == nil {
		return nil
	}
	a.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	a.writeMu.Unlock()
	return conn.Close()
}

func (a *WebsocketAgent) connect(ctx context.Context) (*websocket.Conn, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, ErrAgentClosed
	}
	if a.conn != nil {
		return a.conn, nil
	}

	header := http.Header{}
	if a.cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}

	dialCtx, cancel := context.WithTimeout(ctx, a.cfg.DialTimeout)
	defer cancel()
	conn, resp, err := a.dialer.DialContext(dialCtx, a.cfg.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to backend %s: %w", a.cfg.URL, err)
	}

	a.conn = conn
	a.logger.Debug().Str("url", a.cfg.URL).Msg("Connected to backend")
	go a.readLoop(conn)
	return conn, nil
}

// dropConn forgets conn if it is still current, forcing a redial.
func (a *WebsocketAgent) dropConn(conn *websocket.Conn) {
	a.mu.Lock()
	if a.conn == conn {
		a.conn = nil
	}
	a.mu.Unlock()
	_ = conn.Close()
}

func (a *WebsocketAgent) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			a.mu.Lock()
			closed := a.closed
			a.mu.Unlock()
			a.dropConn(conn)
			if !closed {
				a.logger.Warn().Err(err).Msg("Backend connection lost")
				a.emitError(fmt.Sprintf("backend connection lost: %v", err))
			}
			return
		}
		a.handleFrame(data)
	}
}

// handleFrame fans a valid frame out to subscribers. Frames that fail the
// schema (empty chat messages, unknown types such as heartbeats) are dropped;
// only error frames and connection loss reach OnError.
func (a *WebsocketAgent) handleFrame(data []byte) {
	if err := a.validator.Validate(data); err != nil {
		a.logger.Debug().Err(err).Msg("Dropping non-actionable backend frame")
		return
	}

	var frame replyFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		a.logger.Debug().Err(err).Msg("Dropping undecodable backend frame")
		return
	}

	switch frame.Type {
	case FrameChat:
		a.each(func(h ports.ReplyHandlers) {
			if h.OnChat != nil {
				h.OnChat(ports.ChatReply{Message: frame.Message, Raw: json.RawMessage(data)})
			}
		})
	case FrameAudio:
		var clip *ports.AudioClip
		if len(frame.Audio) > 0 || frame.DurationMs > 0 {
			clip = &ports.AudioClip{Data: frame.Audio, Format: frame.Format, Duration: frame.duration()}
		}
		a.each(func(h ports.ReplyHandlers) {
			if h.OnAudio != nil {
				h.OnAudio(clip)
			}
		})
	case FrameError:
		a.emitError(frame.Error)
	}
}

func (a *WebsocketAgent) emitError(message string) {
	a.each(func(h ports.ReplyHandlers) {
		if h.OnError != nil {
			h.OnError(message)
		}
	})
}

// each calls fn for a snapshot of the subscribers, outside the lock.
func (a *WebsocketAgent) each(fn func(ports.ReplyHandlers)) {
	a.mu.Lock()
	handlers := make([]ports.ReplyHandlers, 0, len(a.subs))
	for _, h := range a.subs {
		handlers = append(handlers, h)
	}
	a.mu.Unlock()
	for _, h := range handlers {
		fn(h)
	}
}

var _ ports.AgentHandle = (*WebsocketAgent)(nil)
