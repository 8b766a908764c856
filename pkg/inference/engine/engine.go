// Package engine defines the provider-neutral chat contract the agent uses to
// talk to a language model.
package engine

import (
	"context"

	"github.com/pkg/errors"
)

// ErrEmptyResponse is returned when a model produced neither text nor tool calls.
var ErrEmptyResponse = errors.New("model returned neither text nor tool calls")

// TurnResult is either Final or ToolUse.
type TurnResult interface {
	isTurnResult()
}

// Final ends the tool round trip.
type Final struct {
	Text string
}

// ToolUse asks for the calls to be executed, in order, before the next round.
type ToolUse struct {
	Text  string
	Calls []ToolCall
}

func (Final) isTurnResult()   {}
func (ToolUse) isTurnResult() {}

// NewTurnResult classifies a provider response.
func NewTurnResult(text string, calls []ToolCall) (TurnResult, error) {
	if len(calls) > 0 {
		return ToolUse{Text: text, Calls: calls}, nil
	}
	if text == "" {
		return nil, ErrEmptyResponse
	}
	return Final{Text: text}, nil
}

// Engine runs one request/response exchange with a model.
type Engine interface {
	Chat(ctx context.Context, req Request) (TurnResult, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, req Request) (TurnResult, error)

func (f EngineFunc) Chat(ctx context.Context, req Request) (TurnResult, error) {
	return f(ctx, req)
}
