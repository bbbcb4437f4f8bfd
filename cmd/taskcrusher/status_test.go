// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/taskcrusher/internal/store"
)

// healthServer answers the health endpoints with the given readiness status.
func healthServer(t *testing.T, readiness int) string {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz/liveness", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/healthz/readiness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(readiness)
		if readiness == http.StatusOK {
			_, _ = w.Write([]byte("ok\n"))
			return
		}
		_, _ = w.Write([]byte("not ready\n"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "http://")
}

func TestStatus_AllHealthy(t *testing.T) {
	h := newHarness(t)
	h.cfg.Metrics.Addr = healthServer(t, http.StatusOK)
	withFakeMigrator(h, &fakeMigrator{version: 2})

	out := h.mustRun("status", "--json")

	var statuses map[string]ComponentStatus
	require.NoError(t, json.Unmarshal([]byte(out), &statuses))
	for _, component := range statusComponents {
		assert.True(t, statuses[component].OK, "%s: %+v", component, statuses[component])
	}
	assert.Equal(t, "ok", statuses["liveness"].Detail)
	assert.Equal(t, "version: 2 (pending: 0)", statuses["schema"].Detail)
}

func TestStatus_NotReady(t *testing.T) {
	h := newHarness(t)
	h.cfg.Metrics.Addr = healthServer(t, http.StatusServiceUnavailable)
	withFakeMigrator(h, &fakeMigrator{version: 1, pending: []store.Migration{{Version: 2, Name: "000002_tasks"}}})

	out := h.mustRun("status")

	assert.Contains(t, out, "COMPONENT")
	assert.Regexp(t, `liveness\s+ok\s+ok`, out)
	assert.Regexp(t, `readiness\s+failing\s+HTTP 503: not ready`, out)
	assert.Regexp(t, `schema\s+failing\s+version: 1 \(pending: 1\)`, out)
}

func TestStatus_NothingConfigured(t *testing.T) {
	h := newHarness(t)
	h.cfg.Database.URL = ""

	out := h.mustRun("status")

	assert.Contains(t, out, "metrics.addr is not set")
	assert.Contains(t, out, "database.url is not set")
}

func TestStatus_ServerDown(t *testing.T) {
	status := probeEndpoint(context.Background(), http.DefaultClient, "liveness", "127.0.0.1:1", "/healthz/liveness")

	assert.False(t, status.OK)
	assert.Contains(t, status.Error, "failed to connect")
}

func TestStatus_MigratorFailure(t *testing.T) {
	h := newHarness(t)
	h.deps.NewMigrator = func(string) (Migrator, error) {
		return nil, errors.New("connection refused")
	}
	c := &cli{deps: h.deps.withDefaults()}

	status := c.schemaStatus(testConfig())

	assert.False(t, status.OK)
	assert.Contains(t, status.Error, "connection refused")
}

func TestFormatStatusTable(t *testing.T) {
	statuses := map[string]ComponentStatus{
		"liveness":  {Component: "liveness", OK: true, Detail: "ok"},
		"readiness": {Component: "readiness", Error: "failed to connect: refused"},
		"schema":    {Component: "schema", OK: true, Detail: "version: 2 (pending: 0)"},
	}

	lines := strings.Split(strings.TrimRight(formatStatusTable(statuses), "\n"), "\n")

	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[2], "liveness"), "rows keep a fixed order")
	assert.True(t, strings.HasPrefix(lines[3], "readiness"))
	assert.Contains(t, lines[3], "failed to connect: refused")
	assert.True(t, strings.HasPrefix(lines[4], "schema"))
}
