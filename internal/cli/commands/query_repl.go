package commands

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/sqlstream/internal/cli/config"
	"github.com/leapstack-labs/sqlstream/internal/query"
)

const (
	replPrompt     = "sqlstream> "
	replContPrompt = "     ...> "
)

func runQueryREPL(cmd *cobra.Command, exec *query.Executor, opts *QueryOptions) error {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)

	historyFile := ""
	if cfg.StatePath != ":memory:" && ensureDir(cfg.StatePath) == nil {
		historyFile = filepath.Join(filepath.Dir(cfg.StatePath), "query_history")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          replPrompt,
		HistoryFile:     historyFile,
		AutoComplete:    newDotCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "sqlstream query REPL (backend: %s)\n", cfg.Backend.Type)
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Type .help for commands, .quit to exit")
	_, _ = fmt.Fprintln(cmd.OutOrStdout())

	var buf strings.Builder
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			buf.Reset()
			rl.SetPrompt(replPrompt)
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if buf.Len() == 0 && strings.HasPrefix(line, ".") {
			if quit := handleDotCommand(cmd, line, opts); quit {
				break
			}
			continue
		}

		// Accumulate multi-line SQL until semicolon
		buf.WriteString(line)
		if !strings.HasSuffix(line, ";") {
			buf.WriteString(" ")
			rl.SetPrompt(replContPrompt)
			continue
		}
		rl.SetPrompt(replPrompt)

		sqlQuery := strings.TrimSuffix(buf.String(), ";")
		buf.Reset()

		if err := executeAndRender(ctx, cmd.OutOrStdout(), exec, sqlQuery, opts); err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout())
	}

	return nil
}

// handleDotCommand runs a REPL command and reports whether to quit.
func handleDotCommand(cmd *cobra.Command, line string, opts *QueryOptions) bool {
	parts := strings.Fields(line)
	command := strings.ToLower(parts[0])

	switch command {
	case ".quit", ".exit":
		return true

	case ".help":
		printREPLHelp(cmd.OutOrStdout())

	case ".format":
		if len(parts) < 2 || !slices.Contains(config.OutputFormats, parts[1]) {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Usage: .format <%s>\n", strings.Join(config.OutputFormats, "|"))
			break
		}
		opts.Format = parts[1]

	case ".shape":
		if len(parts) < 2 {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Usage: .shape <table|time_series>")
			break
		}
		opts.ResultFormat = parts[1]

	case ".clear":
		_, _ = fmt.Fprint(cmd.OutOrStdout(), "\033[H\033[2J")

	default:
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Unknown command: %s (type .help for commands)\n", command)
	}
	return false
}

func printREPLHelp(w io.Writer) {
	help := `
Commands:
  .help                 Show this help message
  .format <fmt>         Set output format (table, json, csv, markdown)
  .shape <shape>        Set result shape (table, time_series)
  .clear                Clear the screen
  .quit / .exit         Exit the REPL

Tips:
  - SQL statements must end with a semicolon (;)
  - Use arrow keys to navigate history
  - $__from, $__to and $__interval are filled from --last and --interval-ms
`
	_, _ = fmt.Fprintln(w, help)
}

func newDotCompleter() *readline.PrefixCompleter {
	formats := make([]readline.PrefixCompleterInterface, len(config.OutputFormats))
	for i, f := range config.OutputFormats {
		formats[i] = readline.PcItem(f)
	}
	return readline.NewPrefixCompleter(
		readline.PcItem(".help"),
		readline.PcItem(".format", formats...),
		readline.PcItem(".shape", readline.PcItem("table"), readline.PcItem("time_series")),
		readline.PcItem(".clear"),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	)
}
