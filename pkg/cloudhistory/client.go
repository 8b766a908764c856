// Package cloudhistory talks to the remote conversation store. Every call is
// best effort: failures are logged and turn into zero results.
package cloudhistory

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-go-golems/atomclaw/pkg/helpers"
	"github.com/go-go-golems/atomclaw/pkg/security"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	summaryPath       = "/summary"
	savePath          = "/save"
	updateSummaryPath = "/update_summary"

	DefaultTimeout        = 10 * time.Second
	DefaultSummaryMaxSize = 2048
)

// SummaryResult is an advisory snapshot of the remote state of a conversation.
type SummaryResult struct {
	Summary        string `json:"summary"`
	NeedsSummarize bool   `json:"needs_summarize"`
	HistoryCount   int    `json:"history_count"`
}

// SaveRecord is one turn written to the remote store.
type SaveRecord struct {
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

type updateSummaryRequest struct {
	UserID  string `json:"user_id"`
	Summary string `json:"summary"`
}

type Settings struct {
	BaseURL        string
	Token          string
	Timeout        time.Duration
	SummaryMaxSize int
	// AllowInsecure accepts http and private addresses, for local workers.
	AllowInsecure bool
}

// Client is safe for concurrent use. A client with no base URL is
// unconfigured and all operations are no-ops.
type Client struct {
	baseURL    string
	token      string
	summaryMax int
	httpClient *http.Client
	saver      *Saver
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithSaver routes SaveAsync through a bounded background saver.
func WithSaver(s *Saver) Option {
	return func(cl *Client) {
		cl.saver = s
	}
}

func NewClient(s Settings, opts ...Option) (*Client, error) {
	c := &Client{
		token:      s.Token,
		summaryMax: s.SummaryMaxSize,
	}
	if c.summaryMax <= 0 {
		c.summaryMax = DefaultSummaryMaxSize
	}
	if s.BaseURL != "" {
		base, err := security.NormalizeEndpoint(s.BaseURL, security.EndpointPolicy{
			AllowHTTP:    s.AllowInsecure,
			AllowPrivate: s.AllowInsecure,
		})
		if err != nil {
			return nil, errors.Wrap(err, "cloud history base URL")
		}
		c.baseURL = base
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c.httpClient = &http.Client{Timeout: timeout}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *Client) Configured() bool { return c != nil && c.baseURL != "" }

// FetchSummary returns the zero result on any failure.
func (c *Client) FetchSummary(ctx context.Context, conversationID string) SummaryResult {
	if !c.Configured() {
		return SummaryResult{}
	}

	u := c.baseURL + summaryPath + "?" + url.Values{"user_id": {conversationID}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		log.Warn().Err(err).Msg("cloud summary: build request")
		return SummaryResult{}
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	body, err := c.do(req)
	if err != nil {
		log.Warn().Err(err).Str("conversation_id", conversationID).Msg("cloud summary fetch failed")
		return SummaryResult{}
	}

	var res SummaryResult
	if err := json.Unmarshal(body, &res); err != nil {
		log.Warn().Err(err).Str("conversation_id", conversationID).Msg("cloud summary: bad payload")
		return SummaryResult{}
	}
	res.Summary = helpers.TruncateBytes(res.Summary, c.summaryMax)

	log.Info().
		Str("conversation_id", conversationID).
		Int("summary_bytes", len(res.Summary)).
		Bool("needs_summarize", res.NeedsSummarize).
		Int("history_count", res.HistoryCount).
		Msg("cloud summary fetched")
	return res
}

// SaveAsync hands one turn to the background saver and returns at once.
// Without a saver the write happens on a detached goroutine.
func (c *Client) SaveAsync(conversationID, role, text string, timestamp int64) {
	if !c.Configured() {
		return
	}
	rec := SaveRecord{UserID: conversationID, Role: role, Content: text, Timestamp: timestamp}
	if c.saver != nil {
		c.saver.Enqueue(rec)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.httpClient.Timeout)
		defer cancel()
		if err := c.Save(ctx, rec); err != nil {
			log.Warn().Err(err).Str("conversation_id", rec.UserID).Msg("cloud save failed")
		}
	}()
}

// Save performs one synchronous write attempt.
func (c *Client) Save(ctx context.Context, rec SaveRecord) error {
	if !c.Configured() {
		return nil
	}
	if err := c.postJSON(ctx, savePath, rec); err != nil {
		return errors.Wrap(err, "save")
	}
	log.Debug().Str("conversation_id", rec.UserID).Str("role", rec.Role).Msg("cloud save done")
	return nil
}

// UpdateSummary pushes a locally produced summary. The error is for logging
// only.
func (c *Client) UpdateSummary(ctx context.Context, conversationID, summary string) error {
	if !c.Configured() {
		return nil
	}
	summary = helpers.TruncateBytes(summary, c.summaryMax)
	if err := c.postJSON(ctx, updateSummaryPath, updateSummaryRequest{UserID: conversationID, Summary: summary}); err != nil {
		return errors.Wrap(err, "update summary")
	}
	log.Info().Str("conversation_id", conversationID).Int("bytes", len(summary)).Msg("cloud summary updated")
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "encode body")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)
	_, err = c.do(req)
	return err
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// do sends req and returns the body of a 2xx response.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", req.Method, req.URL.Path)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// summaries are clamped later, leave room for JSON framing
	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(c.summaryMax)*4+4096))
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Errorf("%s %s: HTTP %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	return body, nil
}
