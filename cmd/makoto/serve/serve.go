package serve

import (
	"log/slog"

	"makoto/cmd/makoto/cli"
	"makoto/internal/config"
	"makoto/internal/gateway"
	"makoto/internal/llm"
	"makoto/internal/search"
	"makoto/internal/templates"

	"github.com/spf13/cobra"
)

var addr string

var Cmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the development backend",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.LoadConfig()
		if err != nil {
			return err
		}
		if addr != "" {
			cfg.Server.Addr = addr
		}
		defer cli.InitTracing(cmd.Context(), cfg)()

		store, closeStore, err := cli.OpenStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		catalog, err := templates.Load(cfg.Templates.Path)
		if err != nil {
			return err
		}

		deps := gateway.Deps{Store: store, Templates: catalog}
		wireLLM(cfg, &deps)
		wireSearch(cfg, &deps)

		srv := gateway.NewServer(deps)
		slog.Info("starting server", "addr", cfg.Server.Addr, "llm", deps.LLM != nil, "search", deps.Search != nil)
		return srv.ListenAndServe(cmd.Context(), cfg.Server.Addr)
	},
}

func init() {
	Cmd.Flags().StringVarP(&addr, "addr", "a", "", "override listen address")
}

func wireLLM(cfg *config.Config, deps *gateway.Deps) {
	lc := cfg.LLM()
	if lc == nil {
		slog.Warn("no llm configured, chat endpoints disabled", "default_llm", cfg.DefaultLLM)
		return
	}
	provider := llm.NewOpenAI(lc.BaseURL, lc.APIKey, lc.Model, lc.ImageModel)
	deps.LLM = provider
	deps.Images = provider
	deps.Analyzer = llm.NewAnalyzer(provider)
}

func wireSearch(cfg *config.Config, deps *gateway.Deps) {
	key := cfg.Services.Brave.APIKey
	if key == "" {
		slog.Info("no brave api key, webcrawl disabled")
		return
	}
	brave, err := search.NewBrave(key)
	if err != nil {
		slog.Warn("web search disabled", "error", err)
		return
	}
	deps.Search = search.NewSearcher(brave)
}
