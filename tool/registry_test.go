package tool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func greetTool() Tool {
	return Function("greet", "Greet a customer", Properties{
		"name":  String("Customer name"),
		"times": Integer("How often"),
	}, "name")
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	h := func(ctx context.Context, call *Call) (any, error) { return "ok", nil }

	require.NoError(t, r.Register(greetTool(), h))
	err := r.Register(greetTool(), h)
	require.ErrorIs(t, err, ErrDuplicateTool)
	require.Equal(t, 1, r.Len())
}

func TestRegistry_RegisterUndeclaredRequired(t *testing.T) {
	r := NewRegistry()
	def := Function("broken", "", Properties{}, "missing")
	require.Error(t, r.Register(def, func(ctx context.Context, call *Call) (any, error) { return nil, nil }))
}

func TestRegistry_Invoke(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(greetTool(), func(ctx context.Context, call *Call) (any, error) {
		name, err := call.Args.String("name")
		if err != nil {
			return nil, err
		}
		return "hello " + name, nil
	})

	res, err := r.Invoke(context.Background(), &Call{Name: "greet", Arguments: `{"name":"Ada"}`})
	require.NoError(t, err)
	require.Equal(t, "hello Ada", res)
}

func TestRegistry_InvokeNoCaching(t *testing.T) {
	r := NewRegistry()
	var calls atomic.Int32
	r.MustRegister(greetTool(), func(ctx context.Context, call *Call) (any, error) {
		return calls.Add(1), nil
	})

	first, err := r.Invoke(context.Background(), &Call{Name: "greet", Arguments: `{"name":"Ada"}`})
	require.NoError(t, err)
	second, err := r.Invoke(context.Background(), &Call{Name: "greet", Arguments: `{"name":"Ada"}`})
	require.NoError(t, err)

	require.EqualValues(t, 2, calls.Load())
	require.NotEqual(t, first, second)
}

func TestRegistry_InvokeErrors(t *testing.T) {
	var called atomic.Bool
	r := NewRegistry()
	r.MustRegister(greetTool(), func(ctx context.Context, call *Call) (any, error) {
		called.Store(true)
		return nil, errors.New("database down")
	})

	tests := []struct {
		name string
		call Call
		kind error
		run  bool
	}{
		{name: "malformed json", call: Call{Name: "greet", Arguments: `{"name":`}, kind: ErrArgumentParse},
		{name: "array payload", call: Call{Name: "greet", Arguments: `["Ada"]`}, kind: ErrArgumentParse},
		{name: "unknown tool", call: Call{Name: "nope", Arguments: `{}`}, kind: ErrUnknownTool},
		{name: "missing required", call: Call{Name: "greet", Arguments: `{"times": 2}`}, kind: ErrMissingArgument},
		{name: "null required", call: Call{Name: "greet", Arguments: `{"name": null}`}, kind: ErrMissingArgument},
		{name: "handler failure", call: Call{Name: "greet", Arguments: `{"name":"Ada"}`}, kind: ErrHandler, run: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called.Store(false)
			call := tt.call
			_, err := r.Invoke(context.Background(), &call)
			require.ErrorIs(t, err, tt.kind)
			require.Equal(t, tt.run, called.Load())

			var te *Error
			require.ErrorAs(t, err, &te)
			assert.NotEmpty(t, te.Message())
		})
	}
}

func TestRegistry_InvokeRecoversPanic(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(greetTool(), func(ctx context.Context, call *Call) (any, error) {
		panic("boom")
	})

	_, err := r.Invoke(context.Background(), &Call{Name: "greet", Arguments: `{"name":"Ada"}`})
	require.ErrorIs(t, err, ErrHandler)
}

func TestRegistry_ArgumentErrorFromHandlerKeepsKind(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(greetTool(), func(ctx context.Context, call *Call) (any, error) {
		_, err := call.Args.Int("times")
		return nil, err
	})

	_, err := r.Invoke(context.Background(), &Call{Name: "greet", Arguments: `{"name":"Ada","times":"often"}`})
	require.ErrorIs(t, err, ErrArgumentParse)

	var te *Error
	require.ErrorAs(t, err, &te)
	require.Equal(t, "greet", te.Tool)
	require.Equal(t, "times", te.Param)
}

func TestRegistry_CloneIsIndependent(t *testing.T) {
	proto := NewRegistry()
	proto.MustRegister(greetTool(), func(ctx context.Context, call *Call) (any, error) { return nil, nil })

	c := proto.Clone()
	c.MustRegister(Function("extra", "", nil), func(ctx context.Context, call *Call) (any, error) { return nil, nil })

	require.Equal(t, 1, proto.Len())
	require.Equal(t, 2, c.Len())
	require.Equal(t, []string{"greet", "extra"}, []string{c.Tools()[0].Name, c.Tools()[1].Name})
}

func TestArgs_Coercion(t *testing.T) {
	args, err := ParseArgs(`{"customer_id": 42, "qty": "3", "price": 2.5, "opt": null}`)
	require.NoError(t, err)

	id, err := args.String("customer_id")
	require.NoError(t, err)
	require.Equal(t, "42", id)

	qty, err := args.Int("qty")
	require.NoError(t, err)
	require.Equal(t, 3, qty)

	price, err := args.Float("price")
	require.NoError(t, err)
	require.Equal(t, 2.5, price)

	_, ok, err := args.OptString("opt")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = args.Int("price")
	require.ErrorIs(t, err, ErrArgumentParse)
}

func TestOutput(t *testing.T) {
	require.Equal(t, `{"success":true}`, Output(nil, nil))
	require.Equal(t, "plain", Output("plain", nil))
	require.Equal(t, `{"a":1}`, Output(map[string]int{"a": 1}, nil))
	require.JSONEq(t, `{"error":"boom"}`, Output(nil, errors.New("boom")))

	out := Output(nil, newError(ErrUnknownTool, "nope", "", nil))
	require.Contains(t, out, "does not exist")
}
