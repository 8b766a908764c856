// Package tools holds the callable tools the model may ask for, with their
// JSON schemas and a bounded executor.
package tools

import (
	"context"
	"encoding/json"
	"reflect"

	"github.com/go-go-golems/atomclaw/pkg/inference/engine"
	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
)

// ToolDefinition is a named tool with the schema of its input object.
type ToolDefinition struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"`
	Function    ToolFunc           `json:"-"`
}

// Spec is the provider-facing view of the tool.
func (d ToolDefinition) Spec() engine.ToolSpec {
	return engine.ToolSpec{Name: d.Name, Description: d.Description, Parameters: d.Parameters}
}

// ToolFunc is a reflected Go function taking an optional context.Context and
// an optional input struct, returning a result and an optional error.
type ToolFunc struct {
	fn      reflect.Value
	withCtx bool
	input   reflect.Type
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// NewToolFromFunc accepts func(), func(ctx), func(In), func(ctx, In), each
// returning R or (R, error).
func NewToolFromFunc(name, description string, fn interface{}) (*ToolDefinition, error) {
	ft := reflect.TypeOf(fn)
	if ft == nil || ft.Kind() != reflect.Func {
		return nil, errors.Errorf("tool %s: not a function", name)
	}
	switch ft.NumOut() {
	case 1:
	case 2:
		if !ft.Out(1).Implements(errorType) {
			return nil, errors.Errorf("tool %s: second return value must be an error", name)
		}
	default:
		return nil, errors.Errorf("tool %s: must return (result) or (result, error)", name)
	}

	tf := ToolFunc{fn: reflect.ValueOf(fn)}
	args := make([]reflect.Type, 0, ft.NumIn())
	for i := 0; i < ft.NumIn(); i++ {
		args = append(args, ft.In(i))
	}
	if len(args) > 0 && args[0] == contextType {
		tf.withCtx = true
		args = args[1:]
	}
	switch len(args) {
	case 0:
	case 1:
		tf.input = args[0]
	default:
		return nil, errors.Errorf("tool %s: takes at most (context.Context, Input)", name)
	}

	return &ToolDefinition{
		Name:        name,
		Description: description,
		Parameters:  schemaFor(tf.input),
		Function:    tf,
	}, nil
}

func schemaFor(t reflect.Type) *jsonschema.Schema {
	if t == nil {
		return &jsonschema.Schema{Type: "object"}
	}
	r := jsonschema.Reflector{DoNotReference: true}
	s := r.ReflectFromType(t)
	// providers want an inline object schema at the root
	s.Version = ""
	if s.Type == "" && s.Ref == "" {
		s.Type = "object"
	}
	return s
}

// Execute decodes args into the input type and calls the function.
func (tf ToolFunc) Execute(ctx context.Context, args json.RawMessage) (interface{}, error) {
	if !tf.fn.IsValid() {
		return nil, errors.New("tool function not initialized")
	}

	in := make([]reflect.Value, 0, 2)
	if tf.withCtx {
		in = append(in, reflect.ValueOf(ctx))
	}
	if tf.input != nil {
		v := reflect.New(tf.input)
		if len(args) > 0 && string(args) != "null" {
			if err := json.Unmarshal(args, v.Interface()); err != nil {
				return nil, errors.Wrap(err, "decode arguments")
			}
		}
		in = append(in, v.Elem())
	}

	out := tf.fn.Call(in)
	if len(out) == 2 && !out[1].IsNil() {
		return out[0].Interface(), out[1].Interface().(error)
	}
	return out[0].Interface(), nil
}
