package search

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"makoto/internal/stream"

	bravesearch "github.com/cnosuke/go-brave-search"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultPerQuery = 5
	DefaultMax      = 10
	maxPerQuery     = 20
)

var htmlTagRe = regexp.MustCompile(`<[^>]*>`)

// Engine runs a single web query.
type Engine interface {
	Search(ctx context.Context, query string, count int) ([]stream.Source, error)
}

type Brave struct {
	client *bravesearch.Client
}

func NewBrave(apiKey string) (*Brave, error) {
	client, err := bravesearch.NewClient(apiKey)
	if err != nil {
		return nil, fmt.Errorf("brave client: %w", err)
	}
	return &Brave{client: client}, nil
}

func (b *Brave) Search(ctx context.Context, query string, count int) ([]stream.Source, error) {
	count = min(max(count, 1), maxPerQuery)

	slog.Debug("search: querying", "query", query, "count", count)

	resp, err := b.client.WebSearch(ctx, query, &bravesearch.WebSearchParams{
		Count: count,
	})
	if err != nil {
		return nil, fmt.Errorf("brave search: %w", err)
	}

	results := resp.GetWebResults()
	out := make([]stream.Source, 0, len(results))
	for _, r := range results {
		out = append(out, stream.Source{
			URL:     r.URL,
			Title:   r.Title,
			Snippet: htmlTagRe.ReplaceAllString(r.Description, ""),
		})
	}

	slog.Debug("search: done", "query", query, "results", len(out))
	return out, nil
}

// Searcher fans a keyword list out to an Engine.
type Searcher struct {
	engine   Engine
	perQuery int
	max      int
}

type Option func(*Searcher)

func WithPerQuery(n int) Option {
	return func(s *Searcher) { s.perQuery = n }
}

func WithMaxResults(n int) Option {
	return func(s *Searcher) { s.max = n }
}

func NewSearcher(engine Engine, opts ...Option) *Searcher {
	s := &Searcher{engine: engine, perQuery: DefaultPerQuery, max: DefaultMax}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SearchAll runs one query per keyword concurrently. Results keep keyword
// order, are de-duplicated by URL and capped. A failing query is logged and
// skipped; SearchAll fails only when every query fails.
func (s *Searcher) SearchAll(ctx context.Context, keywords []string) ([]stream.Source, error) {
	var queries []string
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			queries = append(queries, k)
		}
	}
	if len(queries) == 0 {
		return nil, nil
	}

	results := make([][]stream.Source, len(queries))
	var (
		mu       sync.Mutex
		failures int
		lastErr  error
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		g.Go(func() error {
			res, err := s.engine.Search(gctx, q, s.perQuery)
			if err != nil {
				slog.Warn("search query failed", "query", q, "error", err)
				mu.Lock()
				failures++
				lastErr = err
				mu.Unlock()
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if failures == len(queries) {
		return nil, fmt.Errorf("all %d search queries failed: %w", failures, lastErr)
	}

	seen := make(map[string]bool)
	var out []stream.Source
	for _, res := range results {
		for _, src := range res {
			if src.URL == "" || seen[src.URL] {
				continue
			}
			seen[src.URL] = true
			out = append(out, src)
			if s.max > 0 && len(out) == s.max {
				return out, nil
			}
		}
	}
	return out, nil
}
