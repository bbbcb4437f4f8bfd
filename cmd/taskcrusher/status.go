// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/taskcrusher/internal/config"
)

// probeTimeout bounds one health probe.
const probeTimeout = 2 * time.Second

// statusComponents lists the rows of the status report in print order.
var statusComponents = []string{"liveness", "readiness", "schema"}

// ComponentStatus holds the status of one checked component.
type ComponentStatus struct {
	Component string `json:"component"`
	OK        bool   `json:"ok"`
	Detail    string `json:"detail,omitempty"`
	Error     string `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	jsonOutput bool
}

// newStatusCmd creates the status subcommand.
func (c *cli) newStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the health of a running server and the schema version",
		Long: `Probe the health endpoints of a running serve process at metrics.addr
and report the applied database schema version.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runStatus(cmd, cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")

	return cmd
}

func (c *cli) runStatus(cmd *cobra.Command, statusCfg *statusConfig) error {
	cfg, _, err := c.loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	client := &http.Client{Timeout: probeTimeout}
	statuses := map[string]ComponentStatus{
		"liveness":  probeEndpoint(ctx, client, "liveness", cfg.Metrics.Addr, "/healthz/liveness"),
		"readiness": probeEndpoint(ctx, client, "readiness", cfg.Metrics.Addr, "/healthz/readiness"),
		"schema":    c.schemaStatus(cfg),
	}

	var output string
	if statusCfg.jsonOutput {
		output, err = formatStatusJSON(statuses)
		if err != nil {
			return err
		}
	} else {
		output = formatStatusTable(statuses)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), output)
	return err
}

// probeEndpoint issues a GET against path on addr and reports the response.
func probeEndpoint(ctx context.Context, client *http.Client, component, addr, path string) ComponentStatus {
	status := ComponentStatus{Component: component}
	if addr == "" {
		status.Error = "metrics.addr is not set"
		return status
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+path, http.NoBody)
	if err != nil {
		status.Error = fmt.Sprintf("invalid address: %v", err)
		return status
	}
	resp, err := client.Do(req)
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	status.Detail = strings.TrimSpace(string(body))
	status.OK = resp.StatusCode == http.StatusOK
	if !status.OK {
		status.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return status
}

// schemaStatus reports the applied migration version.
func (c *cli) schemaStatus(cfg *config.Config) ComponentStatus {
	status := ComponentStatus{Component: "schema"}
	if cfg.Database.URL == "" {
		status.Error = "database.url is not set"
		return status
	}
	m, err := c.deps.NewMigrator(cfg.Database.URL)
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	defer func() { _ = m.Close() }()

	v, dirty, err := m.Version()
	if err != nil {
		status.Error = err.Error()
		return status
	}
	pending, err := m.Pending()
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.Detail = formatVersion(v, dirty, len(pending))
	status.OK = !dirty && len(pending) == 0
	return status
}

// formatStatusTable formats the status as a human-readable table.
func formatStatusTable(statuses map[string]ComponentStatus) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "COMPONENT\tSTATUS\tDETAIL")
	_, _ = fmt.Fprintln(w, "---------\t------\t------")

	for _, component := range statusComponents {
		status := statuses[component]
		state, detail := "ok", status.Detail
		if !status.OK {
			state = "failing"
			if status.Error != "" {
				detail = status.Error
				if status.Detail != "" {
					detail += ": " + status.Detail
				}
			}
		}
		if detail == "" {
			detail = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", component, state, detail)
	}

	_ = w.Flush()
	return buf.String()
}

// formatStatusJSON formats the status as JSON.
func formatStatusJSON(statuses map[string]ComponentStatus) (string, error) {
	data, err := json.MarshalIndent(statuses, "", "  ")
	if err != nil {
		return "", oops.Code("OUTPUT_FAILED").Wrap(err)
	}
	return string(data), nil
}
