package shopassist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/codewandler/shopassist-go/internal/websocket"
)

// Conn is an open connection to the streaming backend.
type Conn interface {
	WriteText(data []byte) error
	Close(ctx context.Context) error
	// Done is closed when the connection is gone.
	Done() <-chan struct{}
}

// Transport opens backend connections. onFrame must be invoked for one frame
// at a time, in arrival order; it may block.
type Transport interface {
	Connect(ctx context.Context, onFrame func(data []byte) error) (Conn, error)
}

// WebsocketTransport speaks the realtime protocol over a websocket.
type WebsocketTransport struct {
	URL         string
	Model       string
	APIKey      string
	DialTimeout time.Duration
	Logger      *slog.Logger
}

func (t *WebsocketTransport) Connect(ctx context.Context, onFrame func(data []byte) error) (Conn, error) {
	if t.APIKey == "" {
		return nil, errors.New("missing api key")
	}

	u, err := url.Parse(t.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if t.Model != "" {
		q := u.Query()
		q.Set("model", t.Model)
		u.RawQuery = q.Encode()
	}

	headers := http.Header{}
	headers.Add("Authorization", fmt.Sprintf("Bearer %s", t.APIKey))
	headers.Add("OpenAI-Beta", "realtime=v1")

	logger := t.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ws, err := websocket.Connect(ctx, websocket.ClientConfig{
		Logger:      logger,
		URL:         u.String(),
		DialTimeout: t.DialTimeout,
		Headers:     headers,
		OnText:      onFrame,
	})
	if err != nil {
		return nil, err
	}
	return ws, nil
}
