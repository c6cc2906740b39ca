package tool

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Args are the parsed arguments of a call, keyed by parameter name.
type Args map[string]any

// ParseArgs decodes a streamed argument payload. An empty payload is an empty
// object; anything other than a JSON object is rejected.
func ParseArgs(raw string) (Args, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Args{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()

	var args Args
	if err := dec.Decode(&args); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after arguments object")
	}
	if args == nil {
		return nil, errors.New("arguments must be a JSON object")
	}
	return args, nil
}

// Has reports whether name is present and not null.
func (a Args) Has(name string) bool {
	v, ok := a[name]
	return ok && v != nil
}

// String returns the argument as a string. Numbers are formatted, since
// models frequently send ids as numbers.
func (a Args) String(name string) (string, error) {
	v, ok := a[name]
	if !ok || v == nil {
		return "", newError(ErrMissingArgument, "", name, nil)
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(x), nil
	}
	return "", newError(ErrArgumentParse, "", name, fmt.Errorf("expected string, got %T", v))
}

// OptString returns the argument or "" and false when it is absent.
func (a Args) OptString(name string) (string, bool, error) {
	if !a.Has(name) {
		return "", false, nil
	}
	s, err := a.String(name)
	return s, err == nil, err
}

func (a Args) Float(name string) (float64, error) {
	v, ok := a[name]
	if !ok || v == nil {
		return 0, newError(ErrMissingArgument, "", name, nil)
	}
	var (
		f   float64
		err error
	)
	switch x := v.(type) {
	case json.Number:
		f, err = x.Float64()
	case float64:
		f = x
	case string:
		f, err = strconv.ParseFloat(strings.TrimPrefix(strings.TrimSpace(x), "$"), 64)
	default:
		err = fmt.Errorf("expected number, got %T", v)
	}
	if err != nil {
		return 0, newError(ErrArgumentParse, "", name, err)
	}
	return f, nil
}

func (a Args) Int(name string) (int, error) {
	f, err := a.Float(name)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, newError(ErrArgumentParse, "", name, fmt.Errorf("expected integer, got %v", f))
	}
	return int(f), nil
}

// OptInt returns the argument or 0 and false when it is absent.
func (a Args) OptInt(name string) (int, bool, error) {
	if !a.Has(name) {
		return 0, false, nil
	}
	n, err := a.Int(name)
	return n, err == nil, err
}

// Decode re-encodes the arguments into v.
func (a Args) Decode(v any) error {
	data, err := json.Marshal(a)
	if err != nil {
		return newError(ErrArgumentParse, "", "", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return newError(ErrArgumentParse, "", "", err)
	}
	return nil
}
