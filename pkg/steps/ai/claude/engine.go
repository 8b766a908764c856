// Package claude implements engine.Engine on the Anthropic messages API.
package claude

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/go-go-golems/atomclaw/pkg/inference/engine"
	"github.com/go-go-golems/atomclaw/pkg/security"
	"github.com/go-go-golems/atomclaw/pkg/steps/ai/settings"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// The API rejects blank text blocks, so empty user messages and empty tool
// outputs are sent as placeholders.
const (
	emptyText       = "(empty message)"
	emptyToolResult = "(no output)"
)

type Engine struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature *float64
}

var _ engine.Engine = (*Engine)(nil)

// NewEngine builds a client that never retries; a failed call is reported to
// the caller at once.
func NewEngine(s *settings.Settings, extra ...option.RequestOption) (*Engine, error) {
	if s == nil {
		return nil, errors.New("claude: settings cannot be nil")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	opts := []option.RequestOption{
		option.WithAPIKey(s.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: s.HTTPTimeout()}),
		option.WithMaxRetries(0),
	}
	if s.BaseURL != "" {
		base, err := security.NormalizeEndpoint(s.BaseURL, security.EndpointPolicy{
			AllowHTTP:    s.AllowInsecure,
			AllowPrivate: s.AllowInsecure,
		})
		if err != nil {
			return nil, errors.Wrap(err, "claude base URL")
		}
		opts = append(opts, option.WithBaseURL(base+"/"))
	}
	opts = append(opts, extra...)

	return &Engine{
		client:      anthropic.NewClient(opts...),
		model:       s.Model,
		maxTokens:   int64(s.MaxTokens),
		temperature: s.Temperature,
	}, nil
}

func (e *Engine) Chat(ctx context.Context, req engine.Request) (engine.TurnResult, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(e.model),
		MaxTokens: e.maxTokens,
		Messages:  convertMessages(req.Messages),
	}
	if len(params.Messages) == 0 {
		return nil, errors.New("claude: no messages to send")
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if e.temperature != nil {
		params.Temperature = anthropic.Float(*e.temperature)
	}
	if len(req.Tools) > 0 {
		toolParams, err := convertTools(req.Tools)
		if err != nil {
			return nil, err
		}
		params.Tools = toolParams
	}

	msg, err := e.client.Messages.New(ctx, params)
	if err != nil {
		return nil, errors.Wrap(err, "claude: messages call")
	}

	var text strings.Builder
	var calls []engine.ToolCall
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			input := json.RawMessage(block.Input)
			if len(input) == 0 {
				input = json.RawMessage(`{}`)
			}
			calls = append(calls, engine.ToolCall{ID: block.ID, Name: block.Name, Input: input})
		}
	}

	log.Debug().
		Str("model", e.model).
		Str("stop_reason", string(msg.StopReason)).
		Int64("input_tokens", msg.Usage.InputTokens).
		Int64("output_tokens", msg.Usage.OutputTokens).
		Int("tool_calls", len(calls)).
		Msg("claude response")

	return engine.NewTurnResult(text.String(), calls)
}

func convertMessages(msgs []engine.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		var blocks []anthropic.ContentBlockParamUnion
		for _, b := range m.Blocks {
			switch b.Kind {
			case engine.BlockKindText:
				if b.Text != "" {
					blocks = append(blocks, anthropic.NewTextBlock(b.Text))
				}
			case engine.BlockKindToolUse:
				if b.ToolCall == nil {
					continue
				}
				var input interface{} = map[string]interface{}{}
				if len(b.ToolCall.Input) > 0 {
					input = b.ToolCall.Input
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(b.ToolCall.ID, input, b.ToolCall.Name))
			case engine.BlockKindToolResult:
				if b.ToolResult == nil {
					continue
				}
				content := b.ToolResult.Content
				if content == "" {
					content = emptyToolResult
				}
				blocks = append(blocks, anthropic.NewToolResultBlock(b.ToolResult.ToolUseID, content, b.ToolResult.IsError))
			}
		}

		switch m.Role {
		case engine.RoleAssistant:
			if len(blocks) == 0 {
				continue
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		default:
			if len(blocks) == 0 {
				blocks = append(blocks, anthropic.NewTextBlock(emptyText))
			}
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out
}

func convertTools(specs []engine.ToolSpec) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		schema, err := spec.SchemaJSON()
		if err != nil {
			return nil, errors.Wrapf(err, "claude: schema of %s", spec.Name)
		}
		input := anthropic.ToolInputSchemaParam{
			Properties:  schema["properties"],
			ExtraFields: map[string]any{},
		}
		if req, ok := schema["required"].([]interface{}); ok {
			for _, r := range req {
				if name, ok := r.(string); ok {
					input.Required = append(input.Required, name)
				}
			}
		}
		for k, v := range schema {
			switch k {
			case "type", "properties", "required":
			default:
				input.ExtraFields[k] = v
			}
		}
		tool := anthropic.ToolParam{
			Name:        spec.Name,
			Description: anthropic.String(spec.Description),
			InputSchema: input,
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return out, nil
}
