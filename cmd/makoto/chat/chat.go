package chat

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"makoto/cmd/makoto/cli"
	"makoto/internal/agent"
	"makoto/internal/api"
	"makoto/internal/stream"

	"github.com/spf13/cobra"
)

var (
	chatID      string
	modes       []string
	temperature float64
	maxTokens   int
	keywords    []string
	noHistory   bool
)

var Cmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Send a message and stream the answer",
	Long:  "Send a message and stream the answer. Without arguments the message is read from stdin.",
	RunE: func(cmd *cobra.Command, args []string) error {
		message := strings.TrimSpace(strings.Join(args, " "))
		if message == "" {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("reading stdin: %w", err)
			}
			message = strings.TrimSpace(string(data))
		}
		if message == "" {
			return errors.New("message is required")
		}

		cfg, err := cli.LoadConfig()
		if err != nil {
			return err
		}
		defer cli.InitTracing(cmd.Context(), cfg)()

		names := modes
		if !cmd.Flags().Changed("mode") {
			names = cfg.Chat.Modes
		}
		active, err := cli.ParseModes(names)
		if err != nil {
			return err
		}

		opts := []agent.RunnerOption{agent.WithModes(active...)}
		switch {
		case cmd.Flags().Changed("temperature"):
			opts = append(opts, agent.WithTemperature(temperature))
		case cfg.Chat.Temperature != nil:
			opts = append(opts, agent.WithTemperature(*cfg.Chat.Temperature))
		}
		switch {
		case cmd.Flags().Changed("max-tokens"):
			opts = append(opts, agent.WithMaxTokens(maxTokens))
		case cfg.Chat.MaxTokens != nil:
			opts = append(opts, agent.WithMaxTokens(*cfg.Chat.MaxTokens))
		}
		if len(keywords) > 0 {
			opts = append(opts, agent.WithSearchKeywords(keywords...))
		}
		if !noHistory {
			store, closeStore, err := cli.OpenStore(cfg)
			if err != nil {
				slog.Warn("local history unavailable", "error", err)
			} else {
				defer closeStore()
				opts = append(opts, agent.WithStore(store))
			}
		}

		runner := agent.NewChatRunner(cli.NewClient(cfg), opts...)
		out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()

		res, err := runner.Run(cmd.Context(), chatID, message, printer(out, errOut))
		if err != nil {
			return err
		}

		fmt.Fprintln(out)
		printResult(out, res)
		if !res.Complete {
			fmt.Fprintln(errOut, "warning: the answer may be incomplete")
		}
		if res.ChatID != "" {
			fmt.Fprintf(errOut, "chat: %s\n", res.ChatID)
		}
		return nil
	},
}

func init() {
	Cmd.Flags().StringVar(&chatID, "chat-id", "", "continue an existing chat")
	Cmd.Flags().StringArrayVarP(&modes, "mode", "m", nil, "enable a mode: chat, image, webcrawl, rag or agent (repeatable)")
	Cmd.Flags().Float64VarP(&temperature, "temperature", "t", 0.7, "sampling temperature")
	Cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "maximum answer tokens")
	Cmd.Flags().StringArrayVarP(&keywords, "keyword", "k", nil, "search keyword for webcrawl mode (repeatable)")
	Cmd.Flags().BoolVar(&noHistory, "no-history", false, "do not read or write the local transcript")
}

// printer writes answer text to out and everything else to errOut.
func printer(out, errOut io.Writer) func(agent.Event) {
	return func(ev agent.Event) {
		switch ev.Type {
		case agent.EventToken:
			fmt.Fprint(out, ev.Data)
		case agent.EventAnalysis:
			a := ev.Data.(*api.AnalyzeResponse)
			fmt.Fprintf(errOut, "[agent] %s\n", a.Analysis)
		case agent.EventThought:
			t := ev.Data.(agent.Thought)
			fmt.Fprintf(errOut, "[thinking] %s\n", t.Content)
		case agent.EventStatus:
			st := ev.Data.(api.AgentStatus)
			fmt.Fprintf(errOut, "[%s] %s\n", st.Status, st.Message)
		case agent.EventGeneratingImage:
			fmt.Fprintln(errOut, "[image] generating...")
		case agent.EventImageError:
			fmt.Fprintf(errOut, "[image] failed: %s\n", ev.Data)
		case agent.EventError:
			fmt.Fprintf(errOut, "[error] %s\n", ev.Data)
		}
	}
}

func printResult(w io.Writer, res *agent.Result) {
	printImages(w, res.Images)
	printSources(w, res.Sources)
}

func printImages(w io.Writer, images []stream.GeneratedImage) {
	for _, img := range images {
		fmt.Fprintf(w, "image: %s\n", img.URL)
	}
}

func printSources(w io.Writer, sources []stream.Source) {
	if len(sources) == 0 {
		return
	}
	fmt.Fprintln(w, "sources:")
	for i, s := range sources {
		fmt.Fprintf(w, "  [%d] %s %s\n", i+1, s.Title, s.URL)
	}
}
