// Package ingress authenticates webhook interactions and hands them to the
// inbound bus after a deferred acknowledgment.
package ingress

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-go-golems/atomclaw/pkg/bus"
	"github.com/go-go-golems/atomclaw/pkg/events"
	"github.com/go-go-golems/atomclaw/pkg/helpers"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	HeaderSignature = "X-Signature-Ed25519"
	HeaderTimestamp = "X-Signature-Timestamp"

	DefaultPath         = "/interactions"
	DefaultMaxBodyBytes = 8192
	DefaultMaxUserID    = 32
	DefaultMaxText      = 512
)

// Inbox is the side of the bus the router writes to.
type Inbox interface {
	TryPush(q bus.Queue, msg bus.Message) error
	Len(q bus.Queue) int
}

type Options struct {
	Path         string
	MaxBodyBytes int64
	MaxUserID    int
	MaxText      int
	Events       events.Sink
}

func (o *Options) setDefaults() {
	if o.Path == "" {
		o.Path = DefaultPath
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if o.MaxUserID <= 0 {
		o.MaxUserID = DefaultMaxUserID
	}
	if o.MaxText <= 0 {
		o.MaxText = DefaultMaxText
	}
	if o.Events == nil {
		o.Events = events.NullSink{}
	}
}

type Router struct {
	verifier *Verifier
	inbox    Inbox
	opts     Options
	mux      chi.Router
}

func NewRouter(verifier *Verifier, inbox Inbox, opts Options) *Router {
	opts.setDefaults()
	r := &Router{verifier: verifier, inbox: inbox, opts: opts}

	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer)
	mux.Post(opts.Path, r.handleInteraction)
	mux.Get("/healthz", r.handleHealth)
	r.mux = mux
	return r
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) handleInteraction(w http.ResponseWriter, req *http.Request) {
	sig := req.Header.Get(HeaderSignature)
	ts := req.Header.Get(HeaderTimestamp)
	if sig == "" || ts == "" {
		http.Error(w, "Missing signature", http.StatusUnauthorized)
		return
	}

	body, status, err := r.readBody(req)
	if err != nil {
		log.Warn().Err(err).Int("status", status).Msg("rejecting interaction body")
		http.Error(w, http.StatusText(status), status)
		return
	}

	if res := r.verifier.Verify(sig, ts, body); !res.OK() {
		log.Warn().Str("verdict", res.Verdict.String()).Str("reason", res.Reason).Msg("interaction signature rejected")
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	in, err := ParseInteraction(body)
	if err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	switch in.Kind {
	case KindPing:
		writeJSON(w, discordgo.InteractionResponse{Type: discordgo.InteractionResponsePong})
	case KindCommand, KindComponent:
		r.handleWork(req.Context(), w, in)
	default:
		http.Error(w, "Unsupported type", http.StatusBadRequest)
	}
}

func (r *Router) handleWork(ctx context.Context, w http.ResponseWriter, in Interaction) {
	if in.Token == "" {
		http.Error(w, "No token", http.StatusBadRequest)
		return
	}

	writeJSON(w, discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})

	msg := bus.Message{
		Channel:        bus.ChannelWebhook,
		ConversationID: helpers.TruncateBytes(in.UserID, r.opts.MaxUserID),
		Content:        helpers.TruncateBytes(in.Text, r.opts.MaxText),
		Meta:           in.Token,
	}
	if err := r.inbox.TryPush(bus.Inbound, msg); err != nil {
		log.Warn().Err(err).Str("conversation_id", msg.ConversationID).Msg("inbound queue full, dropping interaction")
		e := events.NewEvent(ctx, events.EventTypeMessageDropped, msg.ConversationID, msg.Channel.String())
		e.Reason = err.Error()
		if err := r.opts.Events.PublishEvent(ctx, e); err != nil {
			log.Debug().Err(err).Msg("failed to publish drop event")
		}
		return
	}
	log.Debug().
		Str("kind", in.Kind.String()).
		Str("conversation_id", msg.ConversationID).
		Str("text", helpers.Preview(msg.Content, 64)).
		Msg("interaction queued")
}

// readBody reads the whole body up to the ceiling. The returned status is the
// HTTP code to answer with on error.
func (r *Router) readBody(req *http.Request) ([]byte, int, error) {
	if req.ContentLength > r.opts.MaxBodyBytes {
		return nil, http.StatusBadRequest, errors.Errorf("body of %d bytes exceeds %d", req.ContentLength, r.opts.MaxBodyBytes)
	}
	body, err := io.ReadAll(io.LimitReader(req.Body, r.opts.MaxBodyBytes+1))
	if err != nil {
		return nil, http.StatusInternalServerError, errors.Wrap(err, "read body")
	}
	switch {
	case len(body) == 0:
		return nil, http.StatusBadRequest, errors.New("empty body")
	case int64(len(body)) > r.opts.MaxBodyBytes:
		return nil, http.StatusBadRequest, errors.Errorf("body exceeds %d bytes", r.opts.MaxBodyBytes)
	}
	return body, http.StatusOK, nil
}

type healthResponse struct {
	Status   string `json:"status"`
	Inbound  int    `json:"inbound"`
	Outbound int    `json:"outbound"`
}

func (r *Router) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, healthResponse{
		Status:   "ok",
		Inbound:  r.inbox.Len(bus.Inbound),
		Outbound: r.inbox.Len(bus.Outbound),
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}
