package shopassist

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codewandler/shopassist-go/events"
	"github.com/codewandler/shopassist-go/tool"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// ToolCall is an in-flight invocation of a completed function call item.
type ToolCall struct {
	ID        string
	ItemID    string
	Name      string
	Arguments string
}

// Session is one realtime conversation. Frames of a connection are handled
// one at a time in arrival order; a tool call suspends frame processing
// until its result has been sent back.
type Session struct {
	config    *sessionConfig
	logger    *slog.Logger
	bus       *Bus
	tools     *tool.Registry
	state     *tool.State
	transport Transport

	// connectMu serializes Connect calls.
	connectMu sync.Mutex
	// turnMu orders tool outputs before user input sent afterwards.
	turnMu sync.Mutex

	mu              sync.Mutex
	status          Status
	gen             uint64
	conn            Conn
	cancel          context.CancelFunc
	conv            *conversation
	trackID         string
	input           *inputPipeline
	updated         chan struct{}
	calls           map[string]*ToolCall
	pendingResponse bool
}

func New(opts ...Option) *Session {
	config := &sessionConfig{}
	withDefaults()(config)
	WithOptions(opts...)(config)

	registry := tool.NewRegistry()
	if config.registry != nil {
		registry = config.registry.Clone()
	}

	state := config.state
	if state == nil {
		state = tool.NewState()
	}

	transport := config.transport
	if transport == nil {
		transport = &WebsocketTransport{
			URL:    config.url,
			Model:  config.model,
			APIKey: config.apiKey,
			Logger: config.logger,
		}
	}

	return &Session{
		config:    config,
		logger:    config.logger,
		bus:       NewBus(config.logger),
		tools:     registry,
		state:     state,
		transport: transport,
		conv:      newConversation(),
		trackID:   newTrackID(),
		calls:     make(map[string]*ToolCall),
	}
}

func newTrackID() string {
	return uuid.NewString()
}

func (s *Session) Bus() *Bus {
	return s.bus
}

func (s *Session) On(kind EventKind, cb Callback) {
	s.bus.On(kind, cb)
}

func (s *Session) Registry() *tool.Registry {
	return s.tools
}

// State is the tool state of this session.
func (s *Session) State() *tool.State {
	return s.state
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) IsConnected() bool {
	return s.Status() == StatusConnected
}

// TrackID is the identity of the current playback track.
func (s *Session) TrackID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trackID
}

// Items returns snapshots of the conversation log in order.
func (s *Session) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv.snapshot()
}

// AddTool registers a tool. When connected the backend is told about it.
func (s *Session) AddTool(def tool.Tool, h tool.Handler) error {
	if err := s.tools.Register(def, h); err != nil {
		return err
	}
	return s.pushTools()
}

// AddTools registers all bindings concurrently and returns once every
// registration has finished. Nothing is registered when ctx is already done.
func (s *Session) AddTools(ctx context.Context, bindings ...tool.Binding) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var g errgroup.Group
	for _, b := range bindings {
		g.Go(func() error {
			return s.tools.Register(b.Tool, b.Handler)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return s.pushTools()
}

func (s *Session) pushTools() error {
	if !s.IsConnected() {
		return nil
	}
	return s.send(s.sessionUpdate())
}

func (s *Session) sessionUpdate() events.SessionUpdateEvent {
	tools := s.tools.Tools()
	toolChoice := tool.ChoiceNone
	if len(tools) > 0 {
		toolChoice = tool.ChoiceAuto
	}

	return events.SessionUpdateEvent{
		BaseEvent: events.NewBaseEvent(events.TypeSessionUpdate),
		Session: events.SessionUpdate{
			Voice:             s.config.voice,
			InputAudioFormat:  events.AudioFormatPCM16,
			OutputAudioFormat: events.AudioFormatPCM16,
			InputAudioTranscription: &events.InputAudioTranscription{
				Model:    s.config.transcriptionModel,
				Language: s.config.language,
			},
			Temperature:  s.config.temperature,
			Speed:        s.config.speed,
			Instructions: s.config.instruction,
			Modalities:   []string{"text", "audio"},
			ToolChoice:   toolChoice,
			Tools:        tools,
			TurnDetection: &events.TurnDetection{
				CreateResponse:    true,
				InterruptResponse: true,
				Type:              "server_vad",
			},
		},
	}
}

// Connect opens the backend connection and configures the session. It is a
// no-op when already connected. Failures are *ConnectionError and leave the
// session disconnected.
func (s *Session) Connect(ctx context.Context) (Status, error) {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	s.mu.Lock()
	if s.status == StatusConnected {
		s.mu.Unlock()
		return StatusConnected, nil
	}
	s.gen++
	gen := s.gen
	connCtx, cancel := context.WithCancel(context.Background())
	updated := make(chan struct{}, 1)
	s.status = StatusConnecting
	s.cancel = cancel
	s.conv = newConversation()
	s.trackID = newTrackID()
	s.calls = make(map[string]*ToolCall)
	s.pendingResponse = false
	s.updated = updated
	s.mu.Unlock()

	// the caller's ctx only bounds the handshake
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	fail := func(err error) (Status, error) {
		s.abort(gen)
		s.logger.Error("connect failed", slog.Any("err", err))
		return StatusDisconnected, &ConnectionError{Err: err}
	}

	conn, err := s.transport.Connect(connCtx, func(data []byte) error {
		return s.handleFrame(connCtx, gen, data)
	})
	if err != nil {
		return fail(err)
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		closeConn(conn)
		return StatusDisconnected, &ConnectionError{Err: errAborted}
	}
	s.conn = conn
	s.mu.Unlock()

	if err := s.sendGen(gen, s.sessionUpdate()); err != nil {
		return fail(err)
	}

	timer := time.NewTimer(s.config.handshakeTimeout)
	defer timer.Stop()

	select {
	case <-updated:
	case <-conn.Done():
		return fail(errors.New("connection closed during handshake"))
	case <-timer.C:
		return fail(errors.New("timeout waiting for session update"))
	case <-connCtx.Done():
		if ctx.Err() != nil {
			return fail(ctx.Err())
		}
		return StatusDisconnected, &ConnectionError{Err: errAborted}
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return StatusDisconnected, &ConnectionError{Err: errAborted}
	}
	input := newInputPipeline(s.config.sampleRate, s.config.latency(), s.logger)
	s.status = StatusConnected
	s.input = input
	s.mu.Unlock()

	go input.run(func(chunk []byte) error {
		return s.sendGen(gen, events.InputAudioBufferAppendEvent{
			BaseEvent: events.NewBaseEvent(events.TypeInputAudioBufferAppend),
			Audio:     base64.StdEncoding.EncodeToString(chunk),
		})
	})
	go s.watch(gen, conn)

	s.logger.Info("session connected", slog.Int("tools", s.tools.Len()))
	return StatusConnected, nil
}

// Disconnect ends the connection from any state. Outstanding tool results
// are discarded and buffered audio is released. It is idempotent.
func (s *Session) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	conn := s.teardownLocked()
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	s.logger.Info("session disconnected")
	return conn.Close(ctx)
}

// teardownLocked invalidates the current generation and returns the
// connection to close, if any.
func (s *Session) teardownLocked() Conn {
	wasActive := s.status != StatusDisconnected
	s.gen++
	s.status = StatusDisconnected
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.input != nil {
		s.input.close()
		s.input = nil
	}
	if wasActive {
		s.conv = newConversation()
		s.calls = make(map[string]*ToolCall)
		s.pendingResponse = false
	}
	conn := s.conn
	s.conn = nil
	return conn
}

func (s *Session) abort(gen uint64) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	conn := s.teardownLocked()
	s.mu.Unlock()
	if conn != nil {
		closeConn(conn)
	}
}

func closeConn(conn Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = conn.Close(ctx)
}

// watch turns an unexpected connection drop into a disconnect.
func (s *Session) watch(gen uint64, conn Conn) {
	<-conn.Done()

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.teardownLocked()
	s.mu.Unlock()

	closeConn(conn)
	s.logger.Warn("connection to backend lost")
	s.bus.Emit(ErrorOccurred{Err: &ConnectionError{Err: errConnectionLost}})
}

// AppendInputAudio queues PCM16 user audio at the configured sample rate.
// It is ignored while not connected.
func (s *Session) AppendInputAudio(pcm []byte) error {
	s.mu.Lock()
	input := s.input
	connected := s.status == StatusConnected
	s.mu.Unlock()

	if !connected || input == nil {
		s.logger.Debug("session not connected, dropping input audio", slog.Int("len", len(pcm)))
		return nil
	}

	if _, err := input.Write(pcm); err != nil {
		if !input.closed.Load() {
			return err
		}
		s.logger.Debug("session disconnected, dropping input audio", slog.Int("len", len(pcm)))
	}
	return nil
}

// SendUserMessage adds a user text message and asks for a response.
func (s *Session) SendUserMessage(text string) error {
	s.turnMu.Lock()
	defer s.turnMu.Unlock()

	s.mu.Lock()
	gen := s.gen
	connected := s.status == StatusConnected
	s.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}

	err := s.sendGen(gen, events.ConversationItemCreateEvent{
		BaseEvent: events.NewBaseEvent(events.TypeConversationItemCreate),
		Item: events.ConversationItem{
			ID:   events.NewID(),
			Type: events.ItemTypeMessage,
			Role: "user",
			Content: []events.ConversationItemContent{
				{Type: "input_text", Text: text},
			},
		},
	})
	if err != nil {
		return err
	}

	return s.sendGen(gen, events.ResponseCreateEvent{
		BaseEvent: events.NewBaseEvent(events.TypeResponseCreate),
	})
}

// send sends any kind of event to the backend.
func (s *Session) send(evt any) error {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()
	return s.sendGen(gen, evt)
}

// sendGen sends evt only if gen is still the current connection.
func (s *Session) sendGen(gen uint64, evt any) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	s.mu.Lock()
	conn := s.conn
	current := s.gen == gen
	s.mu.Unlock()

	if !current || conn == nil {
		return ErrNotConnected
	}
	return conn.WriteText(data)
}
