package main

import (
	"context"

	"github.com/go-go-golems/atomclaw/pkg/agent"
	"github.com/go-go-golems/atomclaw/pkg/bus"
	"github.com/go-go-golems/atomclaw/pkg/cloudhistory"
	"github.com/go-go-golems/atomclaw/pkg/config"
	"github.com/go-go-golems/atomclaw/pkg/discord"
	"github.com/go-go-golems/atomclaw/pkg/dispatch"
	"github.com/go-go-golems/atomclaw/pkg/events"
	"github.com/go-go-golems/atomclaw/pkg/helpers"
	"github.com/go-go-golems/atomclaw/pkg/inference/engine/factory"
	"github.com/go-go-golems/atomclaw/pkg/inference/tools"
	"github.com/go-go-golems/atomclaw/pkg/memory"
	"github.com/go-go-golems/atomclaw/pkg/toolbox"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// app holds every long-lived component of a running instance.
type app struct {
	cfg        config.Config
	bus        *bus.MessageBus
	store      *memory.Store
	cloud      *cloudhistory.Client
	saver      *cloudhistory.Saver
	router     *events.EventRouter
	sink       events.Sink
	agent      *agent.Agent
	dispatcher *dispatch.Dispatcher
}

type appOptions struct {
	// followUp is required for webhook replies; chat mode runs without it.
	followUp bool
	sink     dispatch.Sink
}

func newApp(cfg config.Config, opts appOptions) (*app, error) {
	a := &app{cfg: cfg}

	a.bus = bus.New(cfg.Bus.InboundCapacity, cfg.Bus.OutboundCapacity)
	a.store = memory.NewStore(cfg.Agent.SessionCapacity, memory.WithMaxTurnSize(cfg.Agent.MaxTurnBytes))

	// the saver writes through the client and the client enqueues on the saver
	var client *cloudhistory.Client
	a.saver = cloudhistory.NewSaver(func(ctx context.Context, rec cloudhistory.SaveRecord) error {
		return client.Save(ctx, rec)
	}, cloudhistory.SaverSettings{
		QueueSize: cfg.Cloud.SaveQueue,
		Workers:   cfg.Cloud.SaveWorkers,
		Timeout:   cfg.Cloud.Timeout,
	})
	client, err := cloudhistory.NewClient(cloudhistory.Settings{
		BaseURL:        cfg.Cloud.BaseURL,
		Token:          cfg.Cloud.Token,
		Timeout:        cfg.Cloud.Timeout,
		SummaryMaxSize: cfg.Cloud.SummaryMaxLen,
		AllowInsecure:  cfg.Cloud.AllowInsecure,
	}, cloudhistory.WithSaver(a.saver))
	if err != nil {
		return nil, err
	}
	a.cloud = client

	eng, err := factory.NewEngineFromSettings(&cfg.LLM)
	if err != nil {
		return nil, errors.Wrap(err, "create engine")
	}

	registry := tools.NewInMemoryToolRegistry()
	if err := toolbox.New(toolbox.WithQueues(a.bus)).Register(registry); err != nil {
		return nil, errors.Wrap(err, "register tools")
	}
	executor := tools.NewExecutor(registry, tools.ExecutorConfig{
		MaxOutputBytes: cfg.Agent.ToolOutputMax,
		Timeout:        cfg.Agent.ToolTimeout,
	})

	a.router, err = events.NewEventRouter(events.WithLogger(helpers.NewWatermillLogger(log.Logger)))
	if err != nil {
		return nil, errors.Wrap(err, "create event router")
	}
	a.router.AddHandler("log", events.DefaultTopic, events.LogEvents)
	a.sink = a.router.Sink(events.DefaultTopic)

	a.agent, err = agent.New(agent.Options{
		Bus:               a.bus,
		Store:             a.store,
		Cloud:             a.cloud,
		Engine:            eng,
		Registry:          registry,
		Executor:          executor,
		Events:            a.sink,
		MaxIterations:     cfg.Agent.MaxIterations,
		LocalWindow:       cfg.Agent.LocalWindow,
		FallbackText:      cfg.Agent.FallbackText,
		Persona:           cfg.Agent.Persona,
		PromptTokenBudget: cfg.Agent.PromptTokenBudget,
	})
	if err != nil {
		return nil, err
	}

	dopts := dispatch.Options{
		Outbox:        a.bus,
		Sink:          opts.sink,
		MaxReplyRunes: cfg.Discord.MaxReplyLength,
	}
	if opts.followUp {
		if cfg.Discord.AppID == "" {
			return nil, errors.New("discord.app-id is required to answer interactions")
		}
		fu, err := discord.NewFollowUp(cfg.Discord.AppID, discord.WithTimeout(cfg.Discord.FollowUpTimeout))
		if err != nil {
			return nil, err
		}
		dopts.FollowUp = fu
	}
	a.dispatcher, err = dispatch.New(dopts)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("provider", string(cfg.LLM.ApiType)).
		Str("model", cfg.LLM.Model).
		Int("tools", registry.Count()).
		Int("inbound_capacity", a.bus.Cap(bus.Inbound)).
		Int("outbound_capacity", a.bus.Cap(bus.Outbound)).
		Msg("components ready")
	a.agent.LogMode()
	return a, nil
}

// startBackground launches the cloud saver and the event router.
func (a *app) startBackground(ctx context.Context, run func(func() error)) {
	a.saver.Start()
	run(func() error {
		return a.router.Run(ctx)
	})
}

// startWorkers launches the agent and the dispatcher loops.
func (a *app) startWorkers(ctx context.Context, run func(func() error)) {
	run(func() error {
		if !a.waitRouter(ctx) {
			return nil
		}
		return a.agent.Run(ctx)
	})
	run(func() error {
		return a.dispatcher.Run(ctx)
	})
}

// waitRouter blocks until the event router runs. It reports false when ctx
// ends first.
func (a *app) waitRouter(ctx context.Context) bool {
	select {
	case <-a.router.Running():
		return true
	case <-ctx.Done():
		return false
	}
}

// close drains pending cloud writes and stops the event router.
func (a *app) close(ctx context.Context) {
	if err := a.saver.Close(ctx); err != nil {
		log.Warn().Err(err).Int64("dropped", a.saver.Dropped()).Msg("cloud saver did not drain")
	}
	if err := a.router.Close(); err != nil {
		log.Warn().Err(err).Msg("event router close")
	}
}
