package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/scout/internal/opclient"
)

type commandContext struct {
	addr    string
	timeout time.Duration
	json    bool
}

func (c *commandContext) client() *opclient.Client {
	return opclient.New(c.addr, opclient.WithHTTPClient(&http.Client{Timeout: c.timeout}))
}

// print writes v as JSON when --json is set, otherwise calls render.
func (c *commandContext) print(cmd *cobra.Command, v any, render func() string) error {
	if c.json {
		return writeJSON(cmd, v)
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), render())
	return err
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
