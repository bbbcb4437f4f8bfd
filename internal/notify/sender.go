// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/samber/oops"
	"github.com/valyala/fasthttp"
)

// ErrPermanent marks a delivery failure that retrying cannot fix.
var ErrPermanent = errors.New("permanent delivery failure")

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// LogSender writes each message to a logger instead of delivering it.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender. A nil logger uses slog.Default.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

// Send logs the message.
func (s *LogSender) Send(ctx context.Context, m Message) error {
	s.logger.InfoContext(ctx, "notification",
		slog.String("id", m.ID.String()),
		slog.String("kind", string(m.Kind)),
		slog.String("from", m.From),
		slog.String("to", m.To),
		slog.String("subject", m.Subject()))
	return nil
}

// DefaultWebhookTimeout bounds one webhook request when ctx has no deadline.
const DefaultWebhookTimeout = 10 * time.Second

// webhookPayload is the JSON body posted by WebhookSender.
type webhookPayload struct {
	ID      string `json:"id"`
	Kind    Kind   `json:"kind"`
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

// WebhookSender posts each message as JSON to a URL.
type WebhookSender struct {
	url     string
	client  *fasthttp.Client
	timeout time.Duration
}

// NewWebhookSender creates a WebhookSender for an http or https URL.
func NewWebhookSender(rawURL string, timeout time.Duration) (*WebhookSender, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, oops.Code("WEBHOOK_URL_INVALID").With("url", rawURL).Errorf("webhook url must be an absolute http(s) url")
	}
	if timeout <= 0 {
		timeout = DefaultWebhookTimeout
	}
	return &WebhookSender{
		url:     rawURL,
		client:  &fasthttp.Client{Name: "taskcrusher-notify"},
		timeout: timeout,
	}, nil
}

// Send posts the message. A 4xx response is wrapped in ErrPermanent.
func (s *WebhookSender) Send(ctx context.Context, m Message) error {
	body, err := json.Marshal(webhookPayload{
		ID:      m.ID.String(),
		Kind:    m.Kind,
		From:    m.From,
		To:      m.To,
		Subject: m.Subject(),
		Text:    m.Body(),
	})
	if err != nil {
		return oops.Code("WEBHOOK_ENCODE_FAILED").Wrap(err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(s.url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("Idempotency-Key", m.ID.String())
	req.SetBodyRaw(body)

	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := ctx.Err(); err != nil {
		return err //nolint:wrapcheck // context errors pass through for retry classification
	}
	if err := s.client.DoDeadline(req, resp, deadline); err != nil {
		return oops.Code("WEBHOOK_REQUEST_FAILED").With("message_id", m.ID.String()).Wrap(err)
	}

	status := resp.StatusCode()
	switch {
	case status >= 200 && status < 300:
		return nil
	case status >= 400 && status < 500 && status != fasthttp.StatusTooManyRequests:
		return oops.Code("WEBHOOK_REJECTED").
			With("message_id", m.ID.String()).
			With("status", status).
			Wrap(ErrPermanent)
	default:
		return oops.Code("WEBHOOK_STATUS").
			With("message_id", m.ID.String()).
			With("status", status).
			Errorf("webhook returned status %d", status)
	}
}

var (
	_ Sender = (*LogSender)(nil)
	_ Sender = (*WebhookSender)(nil)
)
