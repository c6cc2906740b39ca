package shopassist

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/tidwall/gjson"
)

var errFakeClosed = errors.New("fake: closed")

// fakeBackend is an in-memory Transport. Frames are delivered on a single
// loop goroutine per connection, like the websocket client does.
type fakeBackend struct {
	t          *testing.T
	mu         sync.Mutex
	conns      []*fakeConn
	connectErr error
	noAck      bool
}

func newFakeBackend(t *testing.T) *fakeBackend {
	return &fakeBackend{t: t}
}

func (b *fakeBackend) Connect(ctx context.Context, onFrame func(data []byte) error) (Conn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.connectErr != nil {
		return nil, b.connectErr
	}

	c := &fakeConn{
		backend: b,
		onFrame: onFrame,
		queue:   make(chan func(), 256),
		done:    make(chan struct{}),
		stop:    make(chan struct{}),
	}
	b.conns = append(b.conns, c)
	go c.loop()
	b.t.Cleanup(func() { close(c.stop) })
	return c, nil
}

func (b *fakeBackend) conn() *fakeConn {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.conns) == 0 {
		b.t.Fatal("no connection")
	}
	return b.conns[len(b.conns)-1]
}

type fakeConn struct {
	backend *fakeBackend
	onFrame func(data []byte) error
	queue   chan func()
	done    chan struct{}
	stop    chan struct{}
	once    sync.Once
	mu      sync.Mutex
	sent    [][]byte
}

func (c *fakeConn) loop() {
	for {
		select {
		case f := <-c.queue:
			f()
		case <-c.stop:
			return
		}
	}
}

func (c *fakeConn) WriteText(data []byte) error {
	select {
	case <-c.done:
		return errFakeClosed
	default:
	}

	c.mu.Lock()
	c.sent = append(c.sent, append([]byte(nil), data...))
	c.mu.Unlock()

	if gjson.GetBytes(data, "type").String() == "session.update" && !c.backend.noAck {
		c.push(`{"type":"session.updated","event_id":"ack"}`)
	}
	return nil
}

func (c *fakeConn) Close(ctx context.Context) error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) Done() <-chan struct{} {
	return c.done
}

// push queues a frame from the backend.
func (c *fakeConn) push(frames ...string) {
	for _, f := range frames {
		data := []byte(f)
		c.queue <- func() { _ = c.onFrame(data) }
	}
}

// flush waits until every frame pushed so far has been handled.
func (c *fakeConn) flush() {
	done := make(chan struct{})
	c.queue <- func() { close(done) }
	<-done
}

// sentOfType returns the client events of the given type.
func (c *fakeConn) sentOfType(typ string) []gjson.Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []gjson.Result
	for _, d := range c.sent {
		r := gjson.ParseBytes(d)
		if r.Get("type").String() == typ {
			out = append(out, r)
		}
	}
	return out
}

func (c *fakeConn) sentTypes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []string
	for _, d := range c.sent {
		out = append(out, gjson.GetBytes(d, "type").String())
	}
	return out
}

// recorder collects bus events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func record(s *Session, kinds ...EventKind) *recorder {
	r := &recorder{}
	for _, k := range kinds {
		s.On(k, func(e Event) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, e)
			return nil
		})
	}
	return r
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func eventsOf[T Event](r *recorder) []T {
	var out []T
	for _, e := range r.all() {
		if t, ok := e.(T); ok {
			out = append(out, t)
		}
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
