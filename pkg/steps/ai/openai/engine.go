// Package openai implements engine.Engine on OpenAI-compatible chat
// completion endpoints.
package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-go-golems/atomclaw/pkg/inference/engine"
	"github.com/go-go-golems/atomclaw/pkg/security"
	"github.com/go-go-golems/atomclaw/pkg/steps/ai/settings"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

type Engine struct {
	client      *go_openai.Client
	model       string
	maxTokens   int
	temperature *float64
}

var _ engine.Engine = (*Engine)(nil)

func NewEngine(s *settings.Settings) (*Engine, error) {
	if s == nil {
		return nil, errors.New("openai: settings cannot be nil")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	config := go_openai.DefaultConfig(s.APIKey)
	config.HTTPClient = &http.Client{Timeout: s.HTTPTimeout()}
	if s.BaseURL != "" {
		base, err := security.NormalizeEndpoint(s.BaseURL, security.EndpointPolicy{
			AllowHTTP:    s.AllowInsecure,
			AllowPrivate: s.AllowInsecure,
		})
		if err != nil {
			return nil, errors.Wrap(err, "openai base URL")
		}
		config.BaseURL = base
	}

	return &Engine{
		client:      go_openai.NewClientWithConfig(config),
		model:       s.Model,
		maxTokens:   s.MaxTokens,
		temperature: s.Temperature,
	}, nil
}

func (e *Engine) Chat(ctx context.Context, req engine.Request) (engine.TurnResult, error) {
	msgs := convertMessages(req.System, req.Messages)
	if len(msgs) == 0 {
		return nil, errors.New("openai: no messages to send")
	}
	tools, err := convertTools(req.Tools)
	if err != nil {
		return nil, err
	}

	chatReq := go_openai.ChatCompletionRequest{
		Model:     e.model,
		Messages:  msgs,
		MaxTokens: e.maxTokens,
		Tools:     tools,
	}
	if e.temperature != nil {
		chatReq.Temperature = float32(*e.temperature)
	}

	resp, err := e.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, errors.Wrap(err, "openai: chat completion")
	}
	if len(resp.Choices) == 0 {
		return nil, engine.ErrEmptyResponse
	}

	choice := resp.Choices[0]
	var calls []engine.ToolCall
	for _, tc := range choice.Message.ToolCalls {
		args := strings.TrimSpace(tc.Function.Arguments)
		if args == "" {
			args = "{}"
		}
		calls = append(calls, engine.ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: json.RawMessage(args),
		})
	}

	log.Debug().
		Str("model", e.model).
		Str("finish_reason", string(choice.FinishReason)).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Int("tool_calls", len(calls)).
		Msg("openai response")

	return engine.NewTurnResult(choice.Message.Content, calls)
}

// convertMessages flattens blocks into chat messages. Tool results become
// individual "tool" role messages following the assistant's tool calls.
func convertMessages(system string, msgs []engine.Message) []go_openai.ChatCompletionMessage {
	var out []go_openai.ChatCompletionMessage
	if system != "" {
		out = append(out, go_openai.ChatCompletionMessage{Role: go_openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range msgs {
		switch m.Role {
		case engine.RoleAssistant:
			msg := go_openai.ChatCompletionMessage{Role: go_openai.ChatMessageRoleAssistant, Content: m.Text()}
			for _, b := range m.Blocks {
				if b.Kind != engine.BlockKindToolUse || b.ToolCall == nil {
					continue
				}
				args := string(b.ToolCall.Input)
				if args == "" {
					args = "{}"
				}
				msg.ToolCalls = append(msg.ToolCalls, go_openai.ToolCall{
					ID:   b.ToolCall.ID,
					Type: go_openai.ToolTypeFunction,
					Function: go_openai.FunctionCall{
						Name:      b.ToolCall.Name,
						Arguments: args,
					},
				})
			}
			if msg.Content == "" && len(msg.ToolCalls) == 0 {
				continue
			}
			out = append(out, msg)
		default:
			hasText := false
			for _, b := range m.Blocks {
				switch b.Kind {
				case engine.BlockKindToolResult:
					if b.ToolResult == nil {
						continue
					}
					out = append(out, go_openai.ChatCompletionMessage{
						Role:       go_openai.ChatMessageRoleTool,
						Content:    b.ToolResult.Content,
						ToolCallID: b.ToolResult.ToolUseID,
					})
				case engine.BlockKindText:
					hasText = true
				}
			}
			if hasText || len(m.Blocks) == 0 {
				out = append(out, go_openai.ChatCompletionMessage{Role: go_openai.ChatMessageRoleUser, Content: m.Text()})
			}
		}
	}
	return out
}

func convertTools(specs []engine.ToolSpec) ([]go_openai.Tool, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	out := make([]go_openai.Tool, 0, len(specs))
	for _, spec := range specs {
		schema, err := spec.SchemaJSON()
		if err != nil {
			return nil, errors.Wrapf(err, "openai: schema of %s", spec.Name)
		}
		out = append(out, go_openai.Tool{
			Type: go_openai.ToolTypeFunction,
			Function: &go_openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  schema,
			},
		})
	}
	return out, nil
}
