package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-go-golems/atomclaw/pkg/helpers"
	"github.com/go-go-golems/atomclaw/pkg/inference/engine"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

const (
	DefaultMaxOutputBytes = 8192
	DefaultTimeout        = 10 * time.Second
)

type ExecutorConfig struct {
	// MaxOutputBytes caps the content of every result.
	MaxOutputBytes int
	// Timeout bounds a single tool run.
	Timeout time.Duration
}

func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{MaxOutputBytes: DefaultMaxOutputBytes, Timeout: DefaultTimeout}
}

// Executor runs tool calls against a registry. Every outcome, including
// unknown tools, bad input, errors, panics and timeouts, becomes result text.
type Executor struct {
	registry ToolRegistry
	cfg      ExecutorConfig
}

func NewExecutor(registry ToolRegistry, cfg ExecutorConfig) *Executor {
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = DefaultMaxOutputBytes
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Executor{registry: registry, cfg: cfg}
}

func (e *Executor) Execute(ctx context.Context, call engine.ToolCall) engine.ToolResult {
	start := time.Now()
	content, err := e.run(ctx, call)
	res := engine.ToolResult{ToolUseID: call.ID}
	if err != nil {
		res.Content = "Error: " + err.Error()
		res.IsError = true
	} else {
		res.Content = content
	}
	res.Content = helpers.TruncateBytes(res.Content, e.cfg.MaxOutputBytes)

	log.Debug().
		Str("tool", call.Name).
		Str("tool_use_id", call.ID).
		Dur("duration", time.Since(start)).
		Bool("error", res.IsError).
		Int("bytes", len(res.Content)).
		Msg("tool executed")
	return res
}

func (e *Executor) run(ctx context.Context, call engine.ToolCall) (string, error) {
	if e.registry == nil {
		return "", errors.New("no tools available")
	}
	def, err := e.registry.GetTool(call.Name)
	if err != nil {
		return "", errors.Errorf("unknown tool %q", call.Name)
	}
	if err := validateInput(def, call.Input); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	type outcome struct {
		v   interface{}
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: errors.Errorf("tool %s panicked: %v", call.Name, r)}
			}
		}()
		v, err := def.Function.Execute(ctx, call.Input)
		done <- outcome{v: v, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return "", o.err
		}
		return render(o.v)
	case <-ctx.Done():
		return "", errors.Errorf("tool %s timed out after %s", call.Name, e.cfg.Timeout)
	}
}

func validateInput(def *ToolDefinition, input json.RawMessage) error {
	if def.Parameters == nil {
		return nil
	}
	schema, err := json.Marshal(def.Parameters)
	if err != nil {
		return errors.Wrap(err, "encode schema")
	}
	doc := input
	if len(doc) == 0 || string(doc) == "null" {
		doc = json.RawMessage(`{}`)
	}
	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schema), gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return errors.Wrap(err, "invalid input")
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, re := range result.Errors() {
			msgs = append(msgs, re.String())
		}
		return errors.Errorf("invalid input: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// render turns a tool's return value into result text. Strings pass through,
// everything else is JSON.
func render(v interface{}) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case fmt.Stringer:
		return t.String(), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrap(err, "encode result")
	}
	return string(b), nil
}
