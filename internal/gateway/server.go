package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"makoto/internal/api"
	"makoto/internal/history"
	"makoto/internal/llm"
	"makoto/internal/stream"
	"makoto/internal/templates"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Analyzer interface {
	Analyze(ctx context.Context, req *api.AnalyzeRequest) (*api.AnalyzeResponse, error)
}

type Searcher interface {
	SearchAll(ctx context.Context, keywords []string) ([]stream.Source, error)
}

// Deps are the collaborators of the server. Images and Search are optional;
// without them the image and webcrawl modes are skipped.
type Deps struct {
	Store     *history.Store
	LLM       llm.Provider
	Images    llm.ImageGenerator
	Analyzer  Analyzer
	Search    Searcher
	Templates *templates.Catalog
}

type Server struct {
	deps Deps
	mux  *http.ServeMux
	now  func() time.Time
}

func NewServer(deps Deps) *Server {
	if deps.Templates == nil {
		deps.Templates = templates.Defaults()
	}
	s := &Server{
		deps: deps,
		mux:  http.NewServeMux(),
		now:  time.Now,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/chat/stream", s.handleChatStream)
	s.mux.HandleFunc("POST /api/chat/completion", s.handleChatCompletion)
	s.mux.HandleFunc("GET /api/chats", s.handleListChats)
	s.mux.HandleFunc("GET /api/chats/{id}", s.handleGetChat)
	s.mux.HandleFunc("DELETE /api/chats/{id}", s.handleDeleteChat)
	s.mux.HandleFunc("POST /api/agent/analyze", s.handleAnalyze)
	s.mux.HandleFunc("POST /api/webcrawl/crawl", s.handleCrawl)
	s.mux.HandleFunc("GET /api/task-templates", s.handleTemplates)
	s.mux.HandleFunc("GET /api/task-templates/{id}", s.handleTemplate)
	s.mux.HandleFunc("GET /api/task-templates/category/{category}", s.handleTemplatesByCategory)
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
}

func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.mux, "makoto")
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("shutting down server", "addr", addr)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
