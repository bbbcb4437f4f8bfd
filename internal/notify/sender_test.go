// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/taskcrusher/pkg/errutil"
)

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSender(slog.New(slog.NewJSONHandler(&buf, nil)))
	m := NewMessage(KindDeletion, "ann@example.com", "Ann", "noreply@taskcrusher.dev", time.Now())

	require.NoError(t, s.Send(context.Background(), m))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "notification", entry["msg"])
	assert.Equal(t, "deletion", entry["kind"])
	assert.Equal(t, "ann@example.com", entry["to"])
	assert.Equal(t, "noreply@taskcrusher.dev", entry["from"])
	assert.Equal(t, m.ID.String(), entry["id"])
	assert.Equal(t, "Your Task Crusher Account Has Been Deleted", entry["subject"])
}

type recordedRequest struct {
	method      string
	contentType string
	idempotency string
	body        []byte
}

func webhookServer(t *testing.T, status int) (*httptest.Server, <-chan recordedRequest) {
	t.Helper()
	got := make(chan recordedRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- recordedRequest{
			method:      r.Method,
			contentType: r.Header.Get("Content-Type"),
			idempotency: r.Header.Get("Idempotency-Key"),
			body:        body,
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestWebhookSender_PostsJSON(t *testing.T) {
	srv, got := webhookServer(t, http.StatusAccepted)
	s, err := NewWebhookSender(srv.URL+"/hooks/mail", time.Second)
	require.NoError(t, err)

	m := NewMessage(KindWelcome, "ann@example.com", "Ann", "noreply@taskcrusher.dev", time.Now())
	require.NoError(t, s.Send(context.Background(), m))

	req := <-got
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "application/json", req.contentType)
	assert.Equal(t, m.ID.String(), req.idempotency)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(req.body, &payload))
	assert.Equal(t, map[string]string{
		"id":      m.ID.String(),
		"kind":    "welcome",
		"from":    "noreply@taskcrusher.dev",
		"to":      "ann@example.com",
		"subject": "Welcome to Task Crusher!",
		"text":    m.Body(),
	}, payload)
}

func TestWebhookSender_StatusHandling(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		code      string
		permanent bool
	}{
		{"client error is permanent", http.StatusBadRequest, "WEBHOOK_REJECTED", true},
		{"rate limit is retryable", http.StatusTooManyRequests, "WEBHOOK_STATUS", false},
		{"server error is retryable", http.StatusBadGateway, "WEBHOOK_STATUS", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := webhookServer(t, tt.status)
			s, err := NewWebhookSender(srv.URL, time.Second)
			require.NoError(t, err)

			err = s.Send(context.Background(), NewMessage(KindWelcome, "a@example.com", "A", "", time.Now()))
			require.Error(t, err)
			assert.Equal(t, tt.permanent, errors.Is(err, ErrPermanent))
			errutil.AssertErrorContext(t, err, "status", tt.status)
			errutil.AssertErrorCode(t, err, tt.code)
		})
	}
}

func TestWebhookSender_CancelledContext(t *testing.T) {
	srv, _ := webhookServer(t, http.StatusOK)
	s, err := NewWebhookSender(srv.URL, time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = s.Send(ctx, NewMessage(KindWelcome, "a@example.com", "A", "", time.Now()))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWebhookSender_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	s, err := NewWebhookSender(url, 200*time.Millisecond)
	require.NoError(t, err)
	err = s.Send(context.Background(), NewMessage(KindWelcome, "a@example.com", "A", "", time.Now()))
	errutil.AssertErrorCode(t, err, "WEBHOOK_REQUEST_FAILED")
	assert.NotErrorIs(t, err, ErrPermanent)
}

func TestNewWebhookSender_InvalidURL(t *testing.T) {
	for _, raw := range []string{"", "ftp://example.com/hook", "/relative", "http://"} {
		t.Run(raw, func(t *testing.T) {
			_, err := NewWebhookSender(raw, 0)
			errutil.AssertErrorCode(t, err, "WEBHOOK_URL_INVALID")
		})
	}
}
