package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

var ErrClosed = errors.New("websocket: connection closed")

type HandlerFunc func(data []byte) error

func Json[T any](j func(x T) error) HandlerFunc {
	return func(data []byte) error {
		var t T
		if err := json.Unmarshal(data, &t); err != nil {
			return err
		}

		return j(t)
	}
}

type ClientConfig struct {
	URL         string
	DialTimeout time.Duration
	Headers     http.Header
	// OnText is called from a single goroutine in arrival order. While it
	// runs no other message is dispatched.
	OnText   func(data []byte) error
	OnBinary func(data []byte) error
	Logger   *slog.Logger
}

type Client struct {
	conn      net.Conn
	out       chan wsutil.Message
	done      chan struct{}
	doneOnce  sync.Once
	closeOnce sync.Once
	logger    *slog.Logger
}

func (c *Client) setDone() {
	c.doneOnce.Do(func() {
		close(c.done)
	})
}

// Done is closed once the connection is gone, for whatever reason.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) WriteText(data []byte) error {
	return c.Write(ws.OpText, data)
}

func (c *Client) WriteBinary(data []byte) error {
	return c.Write(ws.OpBinary, data)
}

func (c *Client) Ping(data []byte) error {
	return c.Write(ws.OpPing, data)
}

func (c *Client) SendClose(code ws.StatusCode, reason string) error {
	return c.Write(ws.OpClose, ws.NewCloseFrameBody(code, reason))
}

// Close performs the closing handshake and releases the connection. It is
// safe to call more than once.
func (c *Client) Close(ctx context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		if sendErr := c.SendClose(ws.StatusNormalClosure, "closing"); sendErr == nil {
			select {
			case <-c.done:
			case <-ctx.Done():
				err = fmt.Errorf("close failed: %w", ctx.Err())
			}
		}
		c.setDone()
		_ = c.conn.Close()
	})
	return err
}

func (c *Client) Write(opcode ws.OpCode, data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.out <- wsutil.Message{OpCode: opcode, Payload: data}:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

func Connect(ctx context.Context, config ClientConfig) (*Client, error) {

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(
		slog.String("url", config.URL),
	)

	dialTimeout := config.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = 10 * time.Second
	}

	// 1) Handshake timeout only:
	hsCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	// 2) Dial + WebSocket handshake
	d := ws.Dialer{
		Timeout: dialTimeout,
		Header:  ws.HandshakeHeaderHTTP(config.Headers),
	}
	conn, buf, hs, err := d.Dial(hsCtx, config.URL)
	if err != nil {
		return nil, err
	}
	logger.Debug("Handshake complete with response:", slog.Any("handshake", hs))

	// Make sure to recycle the buffer if non-nil:
	if buf != nil {
		defer ws.PutReader(buf)
	}

	logger.Info("Connected to websocket")

	var (
		input  = make(chan wsutil.Message, 1000)
		output = make(chan wsutil.Message, 1000)
	)

	client := &Client{
		conn:   conn,
		out:    output,
		done:   make(chan struct{}),
		logger: logger,
	}

	onTextFunc := config.OnText
	if onTextFunc == nil {
		onTextFunc = func(data []byte) error {
			return nil
		}
	}
	onBinaryFunc := config.OnBinary
	if onBinaryFunc == nil {
		onBinaryFunc = func(data []byte) error {
			return nil
		}
	}

	// websocket -> input channel
	go func() {
		defer client.setDone()
		for {

			messages, err := wsutil.ReadServerMessage(conn, nil)
			if err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
					return
				}

				logger.Error("ws read failed", slog.Any("err", err))

				return
			}
			for _, msg := range messages {
				select {
				case input <- msg:
				case <-client.done:
					return
				}
			}
		}
	}()

	// output channel -> websocket
	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-client.done:
				return
			case msg := <-output:
				err := wsutil.WriteClientMessage(conn, msg.OpCode, msg.Payload)
				if err != nil {
					logger.Error("Message write error:", slog.Any("err", err))
					client.setDone()
					return
				}

			}
		}
	}()

	// input channel processing
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.done:
				return
			case msg := <-input:

				// handle control
				if msg.OpCode.IsControl() {
					logger.Debug("rcv: control", slog.Any("opcode", msg.OpCode), slog.Any("payload", msg.Payload))

					if err := wsutil.HandleServerControlMessage(conn, msg); err != nil {
						logger.Debug("handling of control messages failed", slog.Any("err", err))
					}

					switch msg.OpCode {
					case ws.OpClose:
						logger.Debug("rcv: close. closing client", slog.String("reason", string(msg.Payload)))
						client.setDone()
					}

					continue
				}

				switch msg.OpCode {
				case ws.OpText:
					logger.Debug("rcv: text", slog.Int("len", len(msg.Payload)))
					if err := onTextFunc(msg.Payload); err != nil {
						logger.Error("text message handler failed", slog.Any("err", err))
					}

				case ws.OpBinary:
					logger.Debug("rcv: binary", slog.Int("len", len(msg.Payload)))
					if err := onBinaryFunc(msg.Payload); err != nil {
						logger.Error("binary message handler failed", slog.Any("err", err))
					}
				}
			}
		}
	}()

	if err := client.Ping([]byte("ping")); err != nil {
		return nil, err
	}

	return client, nil
}
