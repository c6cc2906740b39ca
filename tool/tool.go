package tool

import (
	"errors"
	"fmt"
)

type Choice string

const (
	ChoiceAuto Choice = "auto"
	ChoiceNone Choice = "none"
)

const TypeFunction = "function"

// Tool is the schema of an invocable operation as exposed to the model.
// Parameter names are part of the contract with the model and must stay
// stable once published.
type Tool struct {
	Type        string     `json:"type"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Parameters  Parameters `json:"parameters"`
}

type Parameters struct {
	Type       string     `json:"type"`
	Properties Properties `json:"properties"`
	Required   []string   `json:"required"`
}

type Properties map[string]Property

type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
}

// Function builds a function tool. Every name in required must be a key of
// props.
func Function(name, description string, props Properties, required ...string) Tool {
	if props == nil {
		props = Properties{}
	}
	if required == nil {
		required = []string{}
	}
	return Tool{
		Type:        TypeFunction,
		Name:        name,
		Description: description,
		Parameters: Parameters{
			Type:       "object",
			Properties: props,
			Required:   required,
		},
	}
}

func String(description string) Property {
	return Property{Type: "string", Description: description}
}

func Integer(description string) Property {
	return Property{Type: "integer", Description: description}
}

func Number(description string) Property {
	return Property{Type: "number", Description: description}
}

func (t Tool) validate() error {
	if t.Name == "" {
		return errors.New("tool name is empty")
	}
	for _, r := range t.Parameters.Required {
		if _, ok := t.Parameters.Properties[r]; !ok {
			return fmt.Errorf("tool %s: required parameter %q is not declared", t.Name, r)
		}
	}
	return nil
}

func (t Tool) required(name string) bool {
	for _, r := range t.Parameters.Required {
		if r == name {
			return true
		}
	}
	return false
}
