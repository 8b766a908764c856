// Package toolloop runs the bounded model/tool round trip for one turn.
package toolloop

import (
	"context"

	"github.com/go-go-golems/atomclaw/pkg/events"
	"github.com/go-go-golems/atomclaw/pkg/inference/engine"
	"github.com/go-go-golems/atomclaw/pkg/inference/tools"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const DefaultMaxIterations = 5

// Request is the starting point of a round trip. ConversationID and Channel
// only label published events.
type Request struct {
	System         string
	Messages       []engine.Message
	ConversationID string
	Channel        string
}

// Outcome describes how a round trip ended. Text is empty when no usable
// answer was produced and the caller must fall back.
type Outcome struct {
	Text       string
	Final      bool
	Exhausted  bool
	Iterations int
	ToolCalls  int
	Messages   []engine.Message
	Err        error
}

type Loop struct {
	eng           engine.Engine
	registry      tools.ToolRegistry
	executor      *tools.Executor
	maxIterations int
}

type Option func(*Loop)

func New(opts ...Option) *Loop {
	l := &Loop{maxIterations: DefaultMaxIterations}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	if l.executor == nil {
		l.executor = tools.NewExecutor(l.registry, tools.DefaultExecutorConfig())
	}
	return l
}

func WithEngine(eng engine.Engine) Option {
	return func(l *Loop) { l.eng = eng }
}

func WithRegistry(reg tools.ToolRegistry) Option {
	return func(l *Loop) { l.registry = reg }
}

func WithExecutor(exec *tools.Executor) Option {
	return func(l *Loop) { l.executor = exec }
}

// WithMaxIterations caps the number of model calls. Values <= 0 keep the default.
func WithMaxIterations(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.maxIterations = n
		}
	}
}

func (l *Loop) MaxIterations() int { return l.maxIterations }

// Run calls the model at most MaxIterations times. Tool calls run in the
// order the model listed them and their failures are fed back as results.
// An engine error ends the loop at once with an empty Text.
func (l *Loop) Run(ctx context.Context, req Request) Outcome {
	out := Outcome{Messages: append([]engine.Message(nil), req.Messages...)}
	if l.eng == nil {
		out.Err = errors.New("tool loop engine is nil")
		return out
	}

	specs := tools.Specs(l.registry)
	partial := ""

	for out.Iterations < l.maxIterations {
		out.Iterations++
		log.Debug().Int("iteration", out.Iterations).Int("messages", len(out.Messages)).Msg("toolloop: model call")

		res, err := l.eng.Chat(ctx, engine.Request{
			System:   req.System,
			Messages: out.Messages,
			Tools:    specs,
		})
		if err != nil {
			log.Warn().Err(err).Int("iteration", out.Iterations).Msg("toolloop: model call failed")
			out.Err = err
			out.Text = ""
			return out
		}

		switch r := res.(type) {
		case engine.Final:
			out.Final = true
			out.Text = r.Text
			return out

		case engine.ToolUse:
			if r.Text != "" {
				partial = r.Text
			}
			out.Messages = append(out.Messages, assistantToolUse(r))
			results := make([]engine.Block, 0, len(r.Calls))
			for _, call := range r.Calls {
				l.publish(ctx, req, events.EventTypeToolCall, out.Iterations, call.Name, call.ID, string(call.Input))
				tr := l.executor.Execute(ctx, call)
				l.publish(ctx, req, events.EventTypeToolResult, out.Iterations, call.Name, call.ID, tr.Content)
				results = append(results, engine.ToolResultBlock(tr))
				out.ToolCalls++
			}
			out.Messages = append(out.Messages, engine.Message{Role: engine.RoleUser, Blocks: results})

		default:
			out.Err = errors.Errorf("unexpected turn result %T", res)
			out.Text = ""
			return out
		}
	}

	log.Warn().Int("max_iterations", l.maxIterations).Msg("toolloop: maximum iterations reached")
	out.Exhausted = true
	out.Text = partial
	return out
}

func assistantToolUse(r engine.ToolUse) engine.Message {
	blocks := make([]engine.Block, 0, len(r.Calls)+1)
	if r.Text != "" {
		blocks = append(blocks, engine.TextBlock(r.Text))
	}
	for _, c := range r.Calls {
		blocks = append(blocks, engine.ToolUseBlock(c))
	}
	return engine.Message{Role: engine.RoleAssistant, Blocks: blocks}
}

func (l *Loop) publish(ctx context.Context, req Request, t events.EventType, iteration int, tool, id, text string) {
	e := events.NewEvent(ctx, t, req.ConversationID, req.Channel)
	e.Iteration = iteration
	e.Tool = tool
	e.ToolUseID = id
	e.Text = text
	events.Publish(ctx, e)
}
