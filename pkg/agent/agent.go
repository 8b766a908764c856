// Package agent runs one conversation turn per inbound message: context
// assembly, the bounded tool loop, local and remote persistence, and the
// reply.
package agent

import (
	"context"
	"time"

	"github.com/go-go-golems/atomclaw/pkg/bus"
	"github.com/go-go-golems/atomclaw/pkg/cloudhistory"
	"github.com/go-go-golems/atomclaw/pkg/events"
	"github.com/go-go-golems/atomclaw/pkg/helpers"
	"github.com/go-go-golems/atomclaw/pkg/inference/engine"
	"github.com/go-go-golems/atomclaw/pkg/inference/toolloop"
	"github.com/go-go-golems/atomclaw/pkg/inference/tools"
	"github.com/go-go-golems/atomclaw/pkg/memory"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultFallbackText = "Sorry, I couldn't process your request."
	DefaultLocalWindow  = 4
)

// Queue is the agent's view of the message bus.
type Queue interface {
	Pop(ctx context.Context, q bus.Queue, timeout time.Duration) (bus.Message, error)
	TryPush(q bus.Queue, msg bus.Message) error
}

// History is the remote conversation store. Every method degrades to a
// default on failure; none of them can fail a turn.
type History interface {
	Configured() bool
	FetchSummary(ctx context.Context, conversationID string) cloudhistory.SummaryResult
	SaveAsync(conversationID, role, text string, timestamp int64)
	UpdateSummary(ctx context.Context, conversationID, summary string) error
}

type Options struct {
	Bus      Queue
	Store    *memory.Store
	Cloud    History
	Engine   engine.Engine
	Registry tools.ToolRegistry
	Executor *tools.Executor
	Events   events.Sink

	MaxIterations     int
	LocalWindow       int
	FallbackText      string
	Persona           string
	PromptTokenBudget int

	Now func() time.Time
}

type Agent struct {
	bus      Queue
	store    *memory.Store
	cloud    History
	engine   engine.Engine
	loop     *toolloop.Loop
	sink     events.Sink
	tokens   *tokenCounter
	budget   int
	window   int
	fallback string
	persona  string
	now      func() time.Time
}

// TurnReport summarizes one processed message.
type TurnReport struct {
	TurnID         string
	ConversationID string
	CloudMode      bool
	Answer         string
	Fallback       bool
	Iterations     int
	ToolCalls      int
	Exhausted      bool
	Enqueued       bool
	HistoryDropped int
	SummaryUpdated bool
	Err            error
}

type msgInfo struct {
	conversationID string
	channel        string
}

func New(opts Options) (*Agent, error) {
	if opts.Bus == nil {
		return nil, errors.New("agent: bus is required")
	}
	if opts.Store == nil {
		return nil, errors.New("agent: session store is required")
	}
	if opts.Engine == nil {
		return nil, errors.New("agent: engine is required")
	}

	a := &Agent{
		bus:      opts.Bus,
		store:    opts.Store,
		cloud:    opts.Cloud,
		engine:   opts.Engine,
		sink:     opts.Events,
		budget:   opts.PromptTokenBudget,
		window:   opts.LocalWindow,
		fallback: opts.FallbackText,
		persona:  opts.Persona,
		now:      opts.Now,
	}
	if a.window <= 0 {
		a.window = DefaultLocalWindow
	}
	if a.fallback == "" {
		a.fallback = DefaultFallbackText
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.budget > 0 {
		a.tokens = newTokenCounter()
	}

	loopOpts := []toolloop.Option{
		toolloop.WithEngine(opts.Engine),
		toolloop.WithRegistry(opts.Registry),
		toolloop.WithMaxIterations(opts.MaxIterations),
	}
	if opts.Executor != nil {
		loopOpts = append(loopOpts, toolloop.WithExecutor(opts.Executor))
	}
	a.loop = toolloop.New(loopOpts...)
	return a, nil
}

func (a *Agent) cloudConfigured() bool {
	return a.cloud != nil && a.cloud.Configured()
}

// LogMode prints the history mode once at start-up.
func (a *Agent) LogMode() {
	if a.cloudConfigured() {
		log.Info().Msg("cloud history: enabled (cloud history + summary)")
		return
	}
	log.Info().Msg("cloud history: disabled (local-only, last 2 exchanges)")
}

// Run processes inbound messages one at a time until ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	log.Info().Int("max_iterations", a.loop.MaxIterations()).Msg("agent started")
	for {
		// no timeout: Pop only fails once ctx is done
		msg, err := a.bus.Pop(ctx, bus.Inbound, 0)
		if err != nil {
			log.Info().Err(err).Msg("agent stopped")
			return nil
		}
		a.ProcessMessage(ctx, msg)
	}
}

// ProcessMessage runs a full turn for msg and enqueues exactly one reply.
func (a *Agent) ProcessMessage(ctx context.Context, msg bus.Message) TurnReport {
	start := time.Now()
	turnID := helpers.NewTurnID()
	ctx = helpers.WithTurnID(ctx, turnID)
	if a.sink != nil {
		ctx = events.WithSinks(ctx, a.sink)
	}
	info := msgInfo{conversationID: msg.ConversationID, channel: msg.Channel.String()}

	report := TurnReport{
		TurnID:         turnID,
		ConversationID: msg.ConversationID,
		CloudMode:      a.cloudConfigured() && msg.Channel == bus.ChannelWebhook,
	}

	logger := log.With().
		Str("turn_id", turnID).
		Str("channel", info.channel).
		Str("conversation", msg.ConversationID).
		Logger()
	logger.Info().Bool("cloud_mode", report.CloudMode).Msg("processing message")

	var summary cloudhistory.SummaryResult
	if report.CloudMode {
		summary = a.cloud.FetchSummary(ctx, msg.ConversationID)
	}
	system := BuildSystemPrompt(a.persona, summary.Summary)

	window := a.window
	if report.CloudMode {
		window = 0
	}
	messages := historyMessages(a.store.History(msg.ConversationID, window))
	messages = append(messages, engine.UserText(msg.Content))
	if a.budget > 0 {
		messages, report.HistoryDropped = a.tokens.fitBudget(system, messages, a.budget)
		if report.HistoryDropped > 0 {
			logger.Debug().Int("dropped", report.HistoryDropped).Int("budget", a.budget).Msg("history trimmed to token budget")
		}
	}

	startEvent := events.NewEvent(ctx, events.EventTypeTurnStart, msg.ConversationID, info.channel)
	startEvent.Text = msg.Content
	events.Publish(ctx, startEvent)

	outcome := a.loop.Run(ctx, toolloop.Request{
		System:         system,
		Messages:       messages,
		ConversationID: msg.ConversationID,
		Channel:        info.channel,
	})
	report.Iterations = outcome.Iterations
	report.ToolCalls = outcome.ToolCalls
	report.Exhausted = outcome.Exhausted
	report.Err = outcome.Err

	report.Answer = outcome.Text
	if report.Answer == "" {
		report.Answer = a.fallback
		report.Fallback = true
	}

	a.store.Append(msg.ConversationID, memory.RoleUser, msg.Content)
	a.store.Append(msg.ConversationID, memory.RoleAssistant, report.Answer)

	if err := a.bus.TryPush(bus.Outbound, msg.Reply(report.Answer)); err != nil {
		logger.Warn().Err(err).Msg("outbound queue full, dropping response")
		dropped := events.NewEvent(ctx, events.EventTypeMessageDropped, msg.ConversationID, info.channel)
		dropped.Reason = "outbound queue full"
		events.Publish(ctx, dropped)
	} else {
		report.Enqueued = true
	}

	final := events.NewEvent(ctx, events.EventTypeTurnFinal, msg.ConversationID, info.channel)
	final.Iteration = report.Iterations
	final.Text = report.Answer
	final.Fallback = report.Fallback
	if report.Err != nil {
		final.Reason = report.Err.Error()
	} else if report.Exhausted {
		final.Reason = "iteration limit reached"
	}
	events.Publish(ctx, final)

	if report.CloudMode {
		now := a.now().Unix()
		a.cloud.SaveAsync(msg.ConversationID, string(memory.RoleUser), msg.Content, now)
		a.cloud.SaveAsync(msg.ConversationID, string(memory.RoleAssistant), report.Answer, now+1)

		if summary.NeedsSummarize {
			logger.Info().Int("history_count", summary.HistoryCount).Msg("generating summary")
			report.SummaryUpdated = a.summarize(ctx, info)
		}
	}

	logger.Info().
		Int("iterations", report.Iterations).
		Int("tool_calls", report.ToolCalls).
		Bool("fallback", report.Fallback).
		Dur("duration", time.Since(start)).
		Msg("turn complete")
	return report
}
