package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/sqlstream/internal/metrics"
	"github.com/leapstack-labs/sqlstream/internal/server"
	"github.com/leapstack-labs/sqlstream/internal/server/notifier"
	"github.com/leapstack-labs/sqlstream/internal/stream"
)

// ServeOptions holds options for the serve command.
type ServeOptions struct {
	Listen    string
	NoJournal bool
}

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve queries and live feeds over HTTP",
		Long: `Start the HTTP server.

Endpoints:
  POST /api/query              run a request; streaming requests answer with server-sent events
  POST /api/variables          run a variable-value query
  GET  /api/health             ping the backend
  GET  /api/sessions           recent stream sessions
  GET  /api/sessions/updates   server-sent events when sessions change
  GET  /metrics                Prometheus metrics`,
		Example: `  # Serve on the configured address
  sqlstream serve

  # Serve a postgres backend on port 9000
  sqlstream serve --backend postgres --listen :9000`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "Address to listen on (default: config server.listen)")
	cmd.Flags().BoolVar(&opts.NoJournal, "no-journal", false, "Do not record sessions in the state database")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	ctx := cmd.Context()
	cmdCtx := NewCommandContext(cmd)

	client, err := cmdCtx.Connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	collector := metrics.NewCollector()
	registry, err := metrics.NewRegistry(collector)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	notify := notifier.New()
	observers := stream.Observers{collector, notify}

	srvCfg := server.Config{
		Listen:   cmdCtx.Cfg.Server.Listen,
		Notifier: notify,
		Gatherer: registry,
		Logger:   cmdCtx.Logger,
	}
	if opts.Listen != "" {
		srvCfg.Listen = opts.Listen
	}

	if !opts.NoJournal {
		journal, err := cmdCtx.OpenJournal()
		if err != nil {
			return err
		}
		defer func() { _ = journal.Close() }()
		// Journal first so listeners woken by the notifier read fresh rows.
		observers = append(stream.Observers{journal}, observers...)
		srvCfg.Sessions = journal
	}

	exec := cmdCtx.Executor(client, collector)
	srvCfg.Backend = exec
	srvCfg.Dispatcher = cmdCtx.Dispatcher(exec, observers)

	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Serving %s backend on %s\n", cmdCtx.Cfg.Backend.Type, srvCfg.Listen)
	_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Press Ctrl+C to stop")

	return server.NewServer(srvCfg).Serve(ctx)
}
