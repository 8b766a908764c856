package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/go-go-golems/atomclaw/pkg/bus"
	"github.com/go-go-golems/atomclaw/pkg/events"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	events []events.Event
}

func (r *recordingSink) PublishEvent(_ context.Context, e events.Event) error {
	r.events = append(r.events, e)
	return nil
}

type fixture struct {
	keys   keyPair
	bus    *bus.MessageBus
	sink   *recordingSink
	router *Router
}

func newFixture(t *testing.T, inboundCap int) *fixture {
	t.Helper()
	k := newKeyPair(t)
	b := bus.New(inboundCap, 4)
	sink := &recordingSink{}
	return &fixture{
		keys: k,
		bus:  b,
		sink: sink,
		router: NewRouter(NewVerifier(k.pubHex()), b, Options{
			MaxBodyBytes: 1024,
			Events:       sink,
		}),
	}
}

func (f *fixture) signedRequest(body string) *http.Request {
	const ts = "1700000000"
	req := httptest.NewRequest(http.MethodPost, DefaultPath, strings.NewReader(body))
	req.Header.Set(HeaderSignature, f.keys.sign(ts, []byte(body)))
	req.Header.Set(HeaderTimestamp, ts)
	return req
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func responseType(t *testing.T, rec *httptest.ResponseRecorder) int {
	t.Helper()
	var resp struct {
		Type int `json:"type"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Type
}

func TestRouterPing(t *testing.T) {
	f := newFixture(t, 4)
	rec := f.do(f.signedRequest(`{"type":1}`))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, responseType(t, rec))
	require.Equal(t, 0, f.bus.Len(bus.Inbound))
}

func TestRouterCommandIsDeferredAndQueued(t *testing.T) {
	f := newFixture(t, 4)
	body := `{"type":2,"token":"tok-1","member":{"user":{"id":"42"}},"data":{"options":[{"name":"q","value":"what's the weather"}]}}`
	rec := f.do(f.signedRequest(body))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 5, responseType(t, rec))

	msg, err := f.bus.Pop(context.Background(), bus.Inbound, 0)
	require.NoError(t, err)
	require.Equal(t, bus.Message{
		Channel:        bus.ChannelWebhook,
		ConversationID: "42",
		Content:        "what's the weather",
		Meta:           "tok-1",
	}, msg)
}

func TestRouterComponentDefaults(t *testing.T) {
	f := newFixture(t, 4)
	rec := f.do(f.signedRequest(`{"type":3,"token":"t","data":{"options":[{"value":7}]}}`))
	require.Equal(t, http.StatusOK, rec.Code)

	msg, err := f.bus.Pop(context.Background(), bus.Inbound, 0)
	require.NoError(t, err)
	require.Equal(t, "unknown", msg.ConversationID)
	require.Equal(t, "", msg.Content)
}

func TestRouterUserFallback(t *testing.T) {
	f := newFixture(t, 4)
	long := strings.Repeat("9", 40)
	f.do(f.signedRequest(`{"type":2,"token":"t","user":{"id":"` + long + `"}}`))

	msg, err := f.bus.Pop(context.Background(), bus.Inbound, 0)
	require.NoError(t, err)
	require.Equal(t, long[:DefaultMaxUserID], msg.ConversationID)
}

func TestRouterRejections(t *testing.T) {
	f := newFixture(t, 4)

	noHeaders := httptest.NewRequest(http.MethodPost, DefaultPath, strings.NewReader(`{"type":1}`))
	require.Equal(t, http.StatusUnauthorized, f.do(noHeaders).Code)

	onlySig := f.signedRequest(`{"type":1}`)
	onlySig.Header.Del(HeaderTimestamp)
	require.Equal(t, http.StatusUnauthorized, f.do(onlySig).Code)

	empty := f.signedRequest(`{"type":1}`)
	empty.Body = http.NoBody
	empty.ContentLength = 0
	require.Equal(t, http.StatusBadRequest, f.do(empty).Code)

	badSig := f.signedRequest(`{"type":1}`)
	badSig.Header.Set(HeaderSignature, strings.Repeat("00", 64))
	require.Equal(t, http.StatusUnauthorized, f.do(badSig).Code)

	shortSig := f.signedRequest(`{"type":1}`)
	shortSig.Header.Set(HeaderSignature, "abcd")
	require.Equal(t, http.StatusUnauthorized, f.do(shortSig).Code)

	require.Equal(t, http.StatusBadRequest, f.do(f.signedRequest(`{"type":`)).Code)
	require.Equal(t, http.StatusBadRequest, f.do(f.signedRequest(`{"type":4}`)).Code)

	rec := f.do(f.signedRequest(`{"type":2}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "No token")

	big := `{"type":1,"pad":"` + strings.Repeat("x", 2048) + `"}`
	require.Equal(t, http.StatusBadRequest, f.do(f.signedRequest(big)).Code)

	require.Equal(t, 0, f.bus.Len(bus.Inbound))
}

func TestRouterReadFailure(t *testing.T) {
	f := newFixture(t, 4)
	req := f.signedRequest(`{"type":1}`)
	req.Body = io.NopCloser(iotest.ErrReader(errors.New("connection reset")))
	require.Equal(t, http.StatusInternalServerError, f.do(req).Code)
}

func TestRouterDropsWhenInboundFull(t *testing.T) {
	f := newFixture(t, 1)
	body := `{"type":2,"token":"t","user":{"id":"u"},"data":{"options":[{"value":"first"}]}}`
	require.Equal(t, http.StatusOK, f.do(f.signedRequest(body)).Code)

	second := `{"type":2,"token":"t2","user":{"id":"u"},"data":{"options":[{"value":"second"}]}}`
	rec := f.do(f.signedRequest(second))
	// the caller already got its deferred ack
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 5, responseType(t, rec))

	require.Equal(t, 1, f.bus.Len(bus.Inbound))
	require.Len(t, f.sink.events, 1)
	require.Equal(t, events.EventTypeMessageDropped, f.sink.events[0].Type)

	msg, err := f.bus.Pop(context.Background(), bus.Inbound, 0)
	require.NoError(t, err)
	require.Equal(t, "first", msg.Content)
}

func TestRouterHealth(t *testing.T) {
	f := newFixture(t, 4)
	require.NoError(t, f.bus.TryPush(bus.Inbound, bus.Message{Content: "x"}))

	rec := f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok","inbound":1,"outbound":0}`, rec.Body.String())
}

func TestRouterDevBypass(t *testing.T) {
	b := bus.New(2, 2)
	r := NewRouter(NewVerifier(""), b, Options{})
	req := httptest.NewRequest(http.MethodPost, DefaultPath, strings.NewReader(`{"type":1}`))
	req.Header.Set(HeaderSignature, "x")
	req.Header.Set(HeaderTimestamp, "1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
