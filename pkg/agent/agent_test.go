package agent

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-go-golems/atomclaw/pkg/bus"
	"github.com/go-go-golems/atomclaw/pkg/cloudhistory"
	"github.com/go-go-golems/atomclaw/pkg/events"
	"github.com/go-go-golems/atomclaw/pkg/inference/engine"
	"github.com/go-go-golems/atomclaw/pkg/inference/tools"
	"github.com/go-go-golems/atomclaw/pkg/memory"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type scriptedEngine struct {
	mu       sync.Mutex
	script   []func() (engine.TurnResult, error)
	requests []engine.Request
}

func (e *scriptedEngine) Chat(_ context.Context, req engine.Request) (engine.TurnResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	copied := req
	copied.Messages = append([]engine.Message(nil), req.Messages...)
	e.requests = append(e.requests, copied)
	i := len(e.requests) - 1
	if i >= len(e.script) {
		i = len(e.script) - 1
	}
	return e.script[i]()
}

func (e *scriptedEngine) calls() []engine.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]engine.Request(nil), e.requests...)
}

func final(text string) func() (engine.TurnResult, error) {
	return func() (engine.TurnResult, error) { return engine.Final{Text: text}, nil }
}

func toolUse(text string, calls ...engine.ToolCall) func() (engine.TurnResult, error) {
	return func() (engine.TurnResult, error) { return engine.ToolUse{Text: text, Calls: calls}, nil }
}

func failure(err error) func() (engine.TurnResult, error) {
	return func() (engine.TurnResult, error) { return nil, err }
}

type saved struct {
	id, role, text string
	ts             int64
}

type fakeCloud struct {
	mu         sync.Mutex
	configured bool
	summary    cloudhistory.SummaryResult
	fetches    []string
	saves      []saved
	updates    map[string]string
	updateErr  error
}

func (f *fakeCloud) Configured() bool { return f.configured }

func (f *fakeCloud) FetchSummary(_ context.Context, id string) cloudhistory.SummaryResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches = append(f.fetches, id)
	return f.summary
}

func (f *fakeCloud) SaveAsync(id, role, text string, ts int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, saved{id, role, text, ts})
}

func (f *fakeCloud) UpdateSummary(_ context.Context, id, summary string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updates == nil {
		f.updates = map[string]string{}
	}
	f.updates[id] = summary
	return f.updateErr
}

type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *recordingSink) PublishEvent(_ context.Context, e events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) types() []events.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.EventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

type lookupIn struct {
	Key string `json:"key"`
}

var fixedNow = time.Unix(1_700_000_000, 0)

type fixture struct {
	bus   *bus.MessageBus
	store *memory.Store
	cloud *fakeCloud
	eng   *scriptedEngine
	sink  *recordingSink
	agent *Agent
	runs  *int
}

func newFixture(t *testing.T, script ...func() (engine.TurnResult, error)) *fixture {
	t.Helper()
	f := &fixture{
		bus:   bus.New(4, 4),
		store: memory.NewStore(20),
		cloud: &fakeCloud{},
		eng:   &scriptedEngine{script: script},
		sink:  &recordingSink{},
		runs:  new(int),
	}

	reg := tools.NewInMemoryToolRegistry()
	def, err := tools.NewToolFromFunc("lookup", "look something up", func(in lookupIn) (string, error) {
		*f.runs++
		return "value of " + in.Key, nil
	})
	require.NoError(t, err)
	require.NoError(t, reg.RegisterTool("lookup", *def))

	a, err := New(Options{
		Bus:           f.bus,
		Store:         f.store,
		Cloud:         f.cloud,
		Engine:        f.eng,
		Registry:      reg,
		Events:        f.sink,
		MaxIterations: 3,
		Persona:       "You are a test bot.",
		Now:           func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	f.agent = a
	return f
}

func (f *fixture) seed(id string, exchanges int) {
	for i := 0; i < exchanges; i++ {
		f.store.Append(id, memory.RoleUser, "q"+string(rune('0'+i)))
		f.store.Append(id, memory.RoleAssistant, "a"+string(rune('0'+i)))
	}
}

func (f *fixture) reply(t *testing.T) bus.Message {
	t.Helper()
	msg, err := f.bus.Pop(context.Background(), bus.Outbound, time.Second)
	require.NoError(t, err)
	return msg
}

func webhook(user, text string) bus.Message {
	return bus.Message{Channel: bus.ChannelWebhook, ConversationID: user, Content: text, Meta: "tok-" + user}
}

func TestLocalModeWindowAndReply(t *testing.T) {
	f := newFixture(t, final("It's sunny."))
	f.seed("u1", 3)

	rep := f.agent.ProcessMessage(context.Background(), webhook("u1", "weather?"))
	require.False(t, rep.CloudMode)
	require.Equal(t, "It's sunny.", rep.Answer)
	require.False(t, rep.Fallback)
	require.True(t, rep.Enqueued)
	require.Equal(t, 1, rep.Iterations)

	reqs := f.eng.calls()
	require.Len(t, reqs, 1)
	require.Equal(t, "You are a test bot.", reqs[0].System)
	// last 2 exchanges plus the new user turn
	require.Len(t, reqs[0].Messages, 5)
	require.Equal(t, "q1", reqs[0].Messages[0].Text())
	require.Equal(t, "weather?", reqs[0].Messages[4].Text())
	require.Len(t, reqs[0].Tools, 1)

	out := f.reply(t)
	require.Equal(t, "It's sunny.", out.Content)
	require.Equal(t, "tok-u1", out.Meta)
	require.Equal(t, bus.ChannelWebhook, out.Channel)

	hist := f.store.History("u1", 2)
	require.Equal(t, []memory.Turn{
		{Role: memory.RoleUser, Text: "weather?"},
		{Role: memory.RoleAssistant, Text: "It's sunny."},
	}, hist)
	require.Empty(t, f.cloud.fetches)
	require.Empty(t, f.cloud.saves)
	require.Equal(t, []events.EventType{events.EventTypeTurnStart, events.EventTypeTurnFinal}, f.sink.types())
}

func TestToolRoundTrip(t *testing.T) {
	call := engine.ToolCall{ID: "t1", Name: "lookup", Input: json.RawMessage(`{"key":"x"}`)}
	f := newFixture(t, toolUse("", call), final("done"))

	rep := f.agent.ProcessMessage(context.Background(), webhook("u1", "look up x"))
	require.Equal(t, "done", rep.Answer)
	require.Equal(t, 2, rep.Iterations)
	require.Equal(t, 1, rep.ToolCalls)
	require.Equal(t, 1, *f.runs)

	reqs := f.eng.calls()
	require.Len(t, reqs, 2)
	require.Len(t, reqs[1].Messages, len(reqs[0].Messages)+2)
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	require.Equal(t, engine.RoleUser, last.Role)
	require.Equal(t, "value of x", last.Blocks[0].ToolResult.Content)

	require.Equal(t, []events.EventType{
		events.EventTypeTurnStart,
		events.EventTypeToolCall,
		events.EventTypeToolResult,
		events.EventTypeTurnFinal,
	}, f.sink.types())
}

func TestEngineErrorFallsBack(t *testing.T) {
	f := newFixture(t, failure(errors.New("connection reset")))

	rep := f.agent.ProcessMessage(context.Background(), webhook("u1", "hi"))
	require.True(t, rep.Fallback)
	require.Error(t, rep.Err)
	require.Equal(t, DefaultFallbackText, rep.Answer)
	require.Len(t, f.eng.calls(), 1)
	require.Equal(t, DefaultFallbackText, f.reply(t).Content)
	require.Equal(t, 2, f.store.Len("u1"))
}

func TestExhaustedUsesPartialText(t *testing.T) {
	call := engine.ToolCall{ID: "t", Name: "lookup", Input: json.RawMessage(`{"key":"k"}`)}
	f := newFixture(t, toolUse("still working", call))

	rep := f.agent.ProcessMessage(context.Background(), webhook("u1", "loop"))
	require.True(t, rep.Exhausted)
	require.Equal(t, 3, rep.Iterations)
	require.Equal(t, "still working", rep.Answer)
	require.False(t, rep.Fallback)
}

func TestExhaustedWithoutTextFallsBack(t *testing.T) {
	call := engine.ToolCall{ID: "t", Name: "lookup", Input: json.RawMessage(`{"key":"k"}`)}
	f := newFixture(t, toolUse("", call))

	rep := f.agent.ProcessMessage(context.Background(), webhook("u1", "loop"))
	require.True(t, rep.Exhausted)
	require.True(t, rep.Fallback)
	require.Equal(t, DefaultFallbackText, rep.Answer)
}

func TestCloudModeSummaryAndSaves(t *testing.T) {
	f := newFixture(t, final("Hello again, Ann."), final("The user is Ann. She likes tea."))
	f.cloud.configured = true
	f.cloud.summary = cloudhistory.SummaryResult{Summary: "The user is called Ann.", NeedsSummarize: true, HistoryCount: 12}
	f.seed("u9", 3)

	rep := f.agent.ProcessMessage(context.Background(), webhook("u9", "hi"))
	require.True(t, rep.CloudMode)
	require.True(t, rep.SummaryUpdated)
	require.Equal(t, "Hello again, Ann.", f.reply(t).Content)

	reqs := f.eng.calls()
	require.Len(t, reqs, 2)
	require.True(t, strings.HasPrefix(reqs[0].System, "You are a test bot."))
	require.Contains(t, reqs[0].System, "The user is called Ann.")
	// every stored turn plus the new one
	require.Len(t, reqs[0].Messages, 7)

	require.Equal(t, SummarizerPrompt, reqs[1].System)
	require.Empty(t, reqs[1].Tools)
	// stored turns, then the summary request as the closing user turn
	require.Len(t, reqs[1].Messages, 9)
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	require.Equal(t, engine.RoleUser, last.Role)
	require.Equal(t, summaryRequest, last.Text())

	require.Equal(t, []saved{
		{"u9", "user", "hi", fixedNow.Unix()},
		{"u9", "assistant", "Hello again, Ann.", fixedNow.Unix() + 1},
	}, f.cloud.saves)
	require.Equal(t, "The user is Ann. She likes tea.", f.cloud.updates["u9"])
	require.Contains(t, f.sink.types(), events.EventTypeSummaryUpdated)
}

func TestCloudModeWithoutSummaryNeeded(t *testing.T) {
	f := newFixture(t, final("ok"))
	f.cloud.configured = true

	rep := f.agent.ProcessMessage(context.Background(), webhook("u2", "hi"))
	require.True(t, rep.CloudMode)
	require.False(t, rep.SummaryUpdated)
	require.Len(t, f.eng.calls(), 1)
	require.Len(t, f.cloud.saves, 2)
	require.Equal(t, "You are a test bot.", f.eng.calls()[0].System)
}

func TestSummaryFailureDoesNotAffectAnswer(t *testing.T) {
	f := newFixture(t, final("answer"), failure(errors.New("boom")))
	f.cloud.configured = true
	f.cloud.summary = cloudhistory.SummaryResult{NeedsSummarize: true}

	rep := f.agent.ProcessMessage(context.Background(), webhook("u3", "hi"))
	require.Equal(t, "answer", rep.Answer)
	require.False(t, rep.SummaryUpdated)
	require.Empty(t, f.cloud.updates)
	require.Equal(t, "answer", f.reply(t).Content)
}

func TestConsoleChannelStaysLocal(t *testing.T) {
	f := newFixture(t, final("ok"))
	f.cloud.configured = true
	f.seed("console", 4)

	rep := f.agent.ProcessMessage(context.Background(), bus.Message{Channel: bus.ChannelConsole, ConversationID: "console", Content: "hi"})
	require.False(t, rep.CloudMode)
	require.Empty(t, f.cloud.fetches)
	require.Empty(t, f.cloud.saves)
	require.Len(t, f.eng.calls()[0].Messages, 5)
}

func TestOutboundFullDropsReply(t *testing.T) {
	f := newFixture(t, final("ok"))
	for i := 0; i < f.bus.Cap(bus.Outbound); i++ {
		require.NoError(t, f.bus.TryPush(bus.Outbound, bus.Message{Channel: bus.ChannelConsole, Content: "filler"}))
	}

	rep := f.agent.ProcessMessage(context.Background(), webhook("u1", "hi"))
	require.False(t, rep.Enqueued)
	require.Equal(t, 2, f.store.Len("u1"))
	require.Contains(t, f.sink.types(), events.EventTypeMessageDropped)
}

func TestRunProcessesInbound(t *testing.T) {
	f := newFixture(t, final("pong"))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.agent.Run(ctx) }()

	require.NoError(t, f.bus.TryPush(bus.Inbound, webhook("u1", "ping")))
	require.Equal(t, "pong", f.reply(t).Content)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("agent did not stop")
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
	_, err = New(Options{Bus: bus.New(1, 1), Store: memory.NewStore(2)})
	require.Error(t, err)
}

// blockingQueue records the timeouts Pop is called with and blocks until ctx
// is done.
type blockingQueue struct {
	mu       sync.Mutex
	timeouts []time.Duration
}

func (q *blockingQueue) Pop(ctx context.Context, _ bus.Queue, timeout time.Duration) (bus.Message, error) {
	q.mu.Lock()
	q.timeouts = append(q.timeouts, timeout)
	q.mu.Unlock()
	<-ctx.Done()
	return bus.Message{}, ctx.Err()
}

func (q *blockingQueue) TryPush(bus.Queue, bus.Message) error { return nil }

func (q *blockingQueue) calls() []time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]time.Duration(nil), q.timeouts...)
}

func TestRunWaitsWithoutPolling(t *testing.T) {
	q := &blockingQueue{}
	a, err := New(Options{Bus: q, Store: memory.NewStore(2), Engine: &scriptedEngine{}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool { return len(q.calls()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("agent did not stop")
	}
	require.Equal(t, []time.Duration{0}, q.calls())
}
