package tool

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateTool   = errors.New("duplicate tool")
	ErrUnknownTool     = errors.New("unknown tool")
	ErrArgumentParse   = errors.New("invalid tool arguments")
	ErrMissingArgument = errors.New("missing argument")
	ErrHandler         = errors.New("tool handler failed")
)

// Error is returned by Registry operations. Kind is one of the Err* sentinels
// and can be matched with errors.Is.
type Error struct {
	Kind  error
	Tool  string
	Param string
	Err   error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Tool != "" {
		msg = fmt.Sprintf("%s %s", e.Tool, msg)
	}
	if e.Param != "" {
		msg = fmt.Sprintf("%s %q", msg, e.Param)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Message renders the error for the model, so it can correct its arguments
// or tell the user what went wrong.
func (e *Error) Message() string {
	switch e.Kind {
	case ErrUnknownTool:
		return fmt.Sprintf("The function %q does not exist.", e.Tool)
	case ErrArgumentParse:
		if e.Param != "" {
			return fmt.Sprintf("Invalid value for argument %q of %s: %v.", e.Param, e.Tool, e.Err)
		}
		return fmt.Sprintf("The arguments for %s are not a valid JSON object: %v. Please retry with corrected arguments.", e.Tool, e.Err)
	case ErrMissingArgument:
		return fmt.Sprintf("The required argument %q for %s is missing. Please retry with all required arguments.", e.Param, e.Tool)
	case ErrHandler:
		return fmt.Sprintf("Sorry, %s could not be completed: %v", e.Tool, e.Err)
	}
	return e.Error()
}

// ArgumentError reports an argument that is present but unusable, for
// handlers that validate beyond what Args does.
func ArgumentError(param string, err error) *Error {
	return newError(ErrArgumentParse, "", param, err)
}

func newError(kind error, tool, param string, err error) *Error {
	return &Error{Kind: kind, Tool: tool, Param: param, Err: err}
}
