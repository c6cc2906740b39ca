package tool

import (
	"encoding/json"
	"errors"
)

// Outputter lets structured results choose the text the model sees.
type Outputter interface {
	ToolOutput() string
}

// Output renders a call result for the function_call_output item. It never
// fails: errors become {"error": "..."} so generation can continue.
func Output(res any, err error) string {
	if err != nil {
		msg := err.Error()
		var te *Error
		if errors.As(err, &te) {
			msg = te.Message()
		}
		d, _ := json.Marshal(map[string]any{
			"error": msg,
		})
		return string(d)
	}

	switch x := res.(type) {
	case nil:
		d, _ := json.Marshal(map[string]any{
			"success": true,
		})
		return string(d)
	case string:
		return x
	case Outputter:
		return x.ToolOutput()
	}

	d, mErr := json.Marshal(res)
	if mErr != nil {
		d, _ = json.Marshal(map[string]any{
			"error": mErr.Error(),
		})
	}
	return string(d)
}
