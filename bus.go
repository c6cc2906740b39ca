package shopassist

import (
	"fmt"
	"log/slog"
	"sync"
)

type Callback func(e Event) error

// Bus maps event kinds to ordered subscriber lists. Emit is synchronous; a
// failing or panicking subscriber is logged and does not affect the others.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventKind][]Callback
	logger   *slog.Logger
}

func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Bus{
		handlers: make(map[EventKind][]Callback),
		logger:   logger,
	}
}

func (b *Bus) On(kind EventKind, cb Callback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], cb)
}

func (b *Bus) Emit(e Event) {
	b.mu.RLock()
	handlers := b.handlers[e.Kind()]
	b.mu.RUnlock()

	for i, h := range handlers {
		if err := b.call(h, e); err != nil {
			b.logger.Error("event subscriber failed",
				slog.String("kind", e.Kind().String()),
				slog.Int("subscriber", i),
				slog.Any("err", err),
			)
		}
	}
}

func (b *Bus) call(h Callback, e Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return h(e)
}

// On subscribes fn to the kind of T.
func On[T Event](b *Bus, fn func(T) error) {
	var zero T
	b.On(zero.Kind(), func(e Event) error {
		t, ok := e.(T)
		if !ok {
			return fmt.Errorf("unexpected event type %T for %s", e, e.Kind())
		}
		return fn(t)
	})
}
