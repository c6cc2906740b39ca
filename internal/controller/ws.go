package controller

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	audioQueueSize = 256
	queueSize      = 64
	writeTimeout   = 10 * time.Second
	readLimit      = 512 * 1024
)

var (
	ErrConnClosed = errors.New("ui connection closed")
	ErrSlowReader = errors.New("ui connection not draining")
)

// Conn is a Sink on a gorilla websocket. Messages are queued and written by
// a single pump goroutine. Audio has its own queue and is dropped when that
// queue is full; other messages wait for room and are written first.
type Conn struct {
	ws     *websocket.Conn
	audio  chan ServerMessage
	out    chan ServerMessage
	done   chan struct{}
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

func NewConn(ws *websocket.Conn, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ws.SetReadLimit(readLimit)
	c := &Conn{
		ws:     ws,
		audio:  make(chan ServerMessage, audioQueueSize),
		out:    make(chan ServerMessage, queueSize),
		done:   make(chan struct{}),
		logger: logger,
	}
	go c.writePump()
	return c
}

func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) Send(msg ServerMessage) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return ErrConnClosed
	}

	if msg.Type == TypeAudio {
		select {
		case c.audio <- msg:
		default:
			c.logger.Debug("ui audio queue full, dropping chunk")
		}
		return nil
	}

	timer := time.NewTimer(writeTimeout)
	defer timer.Stop()
	select {
	case c.out <- msg:
		return nil
	case <-c.done:
		return ErrConnClosed
	case <-timer.C:
		c.logger.Warn("ui write queue full", slog.String("type", msg.Type))
		return ErrSlowReader
	}
}

func (c *Conn) writePump() {
	defer func() {
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = c.ws.Close()
	}()

	// interrupts overtake queued audio; chunks of the interrupted track
	// still in the queue are not played.
	var stale string
	for {
		var msg ServerMessage
		select {
		case msg = <-c.out:
		default:
			select {
			case <-c.done:
				c.flush()
				return
			case msg = <-c.out:
			case msg = <-c.audio:
			}
		}
		switch {
		case msg.Type == TypeAudioInterrupt:
			stale = msg.Track
		case msg.Type == TypeAudio && stale != "" && msg.Track == stale:
			continue
		}
		if err := c.write(msg); err != nil {
			c.logger.Debug("ui write failed", slog.Any("err", err))
			c.Close()
			return
		}
	}
}

func (c *Conn) write(msg ServerMessage) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(msg)
}

// flush writes what was queued before Close.
func (c *Conn) flush() {
	for {
		var msg ServerMessage
		select {
		case msg = <-c.out:
		default:
			select {
			case msg = <-c.out:
			case msg = <-c.audio:
			default:
				return
			}
		}
		if err := c.write(msg); err != nil {
			return
		}
	}
}

// Close stops the write pump and closes the socket. It is idempotent.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

// Handler consumes UI messages. *Controller is the usual implementation.
type Handler interface {
	Handle(ctx context.Context, msg ClientMessage) error
}

type HandlerFunc func(ctx context.Context, msg ClientMessage) error

func (f HandlerFunc) Handle(ctx context.Context, msg ClientMessage) error { return f(ctx, msg) }

// Serve reads UI messages and hands them to h until the socket fails or ctx
// is done. Handler errors are logged and do not end the loop.
func (c *Conn) Serve(ctx context.Context, h Handler) {
	defer c.Close()

	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.done:
		}
	}()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("ui read failed", slog.Any("err", err))
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("invalid ui message", slog.Any("err", err))
			_ = c.Send(errorMessage("invalid message"))
			continue
		}
		if err := h.Handle(ctx, msg); err != nil {
			c.logger.Error("failed to handle ui message", slog.String("type", msg.Type), slog.Any("err", err))
		}
	}
}

var _ Sink = (*Conn)(nil)
