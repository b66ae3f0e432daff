// Package cli holds the wiring shared by the makoto subcommands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"makoto/internal/api"
	"makoto/internal/config"
	"makoto/internal/db"
	"makoto/internal/history"
	"makoto/internal/trace"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var knownModes = []api.Mode{api.ModeChat, api.ModeImage, api.ModeWebCrawl, api.ModeRAG, api.ModeAgent}

func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func NewClient(cfg *config.Config) *api.Client {
	hc := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   cfg.API.Timeout(),
	}
	return api.New(cfg.API.BaseURL, api.WithHTTPClient(hc), api.WithRetries(cfg.API.Retries))
}

// OpenStore opens the local transcript database. The returned func closes it.
func OpenStore(cfg *config.Config) (*history.Store, func(), error) {
	database, err := db.Open(cfg.DB.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening db: %w", err)
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("migrating db: %w", err)
	}
	return history.NewStore(database), func() { database.Close() }, nil
}

// InitTracing starts tracing if configured. Failures only disable tracing.
func InitTracing(ctx context.Context, cfg *config.Config) func() {
	shutdown, err := trace.Init(ctx, "makoto", cfg.Trace)
	if err != nil {
		slog.Warn("tracing disabled", "error", err)
		return func() {}
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			slog.Warn("trace shutdown failed", "error", err)
		}
	}
}

func ParseModes(names []string) ([]api.Mode, error) {
	modes := make([]api.Mode, 0, len(names))
	for _, n := range names {
		m := api.Mode(n)
		if !slices.Contains(knownModes, m) {
			return nil, fmt.Errorf("unknown mode %q (want one of %v)", n, knownModes)
		}
		if !slices.Contains(modes, m) {
			modes = append(modes, m)
		}
	}
	return modes, nil
}

func PrintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Ago renders an RFC 3339 timestamp relative to now; unparsable input is
// returned unchanged.
func Ago(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return humanize.Time(t)
}
