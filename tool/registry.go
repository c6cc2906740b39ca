package tool

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Handler executes a call. The returned value is sent back to the model: a
// string as is, an Outputter via ToolOutput, anything else JSON encoded.
type Handler func(ctx context.Context, call *Call) (any, error)

// Call is one in-flight invocation.
type Call struct {
	// ID correlates the call with the originating conversation item.
	ID        string
	ItemID    string
	Name      string
	Arguments string
	Args      Args
	State     *State
}

// Binding pairs a definition with its handler for bulk registration.
type Binding struct {
	Tool    Tool
	Handler Handler
}

type entry struct {
	def     Tool
	handler Handler
}

// Registry holds the invocable tools. It is safe for concurrent use and does
// not serialize invocations.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]entry
	order []string
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]entry)}
}

func (r *Registry) Register(def Tool, h Handler) error {
	if def.Type == "" {
		def.Type = TypeFunction
	}
	if err := def.validate(); err != nil {
		return err
	}
	if h == nil {
		return fmt.Errorf("tool %s: nil handler", def.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		return newError(ErrDuplicateTool, def.Name, "", nil)
	}
	r.tools[def.Name] = entry{def: def, handler: h}
	r.order = append(r.order, def.Name)
	return nil
}

func (r *Registry) MustRegister(def Tool, h Handler) {
	if err := r.Register(def, h); err != nil {
		panic(err)
	}
}

// Tools returns the definitions in registration order.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].def)
	}
	return out
}

func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	return e.def, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Clone copies the registry, so a process wide prototype can seed each
// session without sharing later registrations.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c := &Registry{
		tools: make(map[string]entry, len(r.tools)),
		order: append([]string(nil), r.order...),
	}
	for k, v := range r.tools {
		c.tools[k] = v
	}
	return c
}

// Invoke parses call.Arguments, checks required parameters and runs the
// handler. Every failure is returned as *Error; a panicking handler is
// reported as ErrHandler.
func (r *Registry) Invoke(ctx context.Context, call *Call) (res any, err error) {
	args, perr := ParseArgs(call.Arguments)
	if perr != nil {
		return nil, newError(ErrArgumentParse, call.Name, "", perr)
	}

	r.mu.RLock()
	e, ok := r.tools[call.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, newError(ErrUnknownTool, call.Name, "", nil)
	}

	for _, name := range e.def.Parameters.Required {
		if !args.Has(name) {
			return nil, newError(ErrMissingArgument, call.Name, name, nil)
		}
	}

	call.Args = args
	if call.State == nil {
		call.State = NewState()
	}

	defer func() {
		if p := recover(); p != nil {
			res = nil
			err = newError(ErrHandler, call.Name, "", fmt.Errorf("panic: %v", p))
		}
	}()

	res, err = e.handler(ctx, call)
	if err != nil {
		var te *Error
		if errors.As(err, &te) {
			if te.Tool == "" {
				te.Tool = call.Name
			}
			return nil, te
		}
		return nil, newError(ErrHandler, call.Name, "", err)
	}
	return res, nil
}
