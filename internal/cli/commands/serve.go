package commands

import (
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/structon/internal/server"
)

// ServeOptions holds options for the serve command.
type ServeOptions struct {
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API",
		Long: `Serve the unit store and engine over a JSON HTTP API. Endpoints live
under /api: health, units, unit execution, runs with traces, and the
tension pool report. The server runs until interrupted.`,
		Example: `  # Serve on the configured address
  structon serve

  # Serve on a specific address
  structon serve --addr 0.0.0.0:8600

  # Poke it
  curl localhost:8600/api/health`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "Listen address (host:port)")
	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	addr := cc.Cfg.GetServerConfig().Addr
	if opts.Addr != "" {
		addr = opts.Addr
	}

	srv := server.NewServer(server.Config{
		Engine: cc.Engine,
		Store:  cc.Store,
		Addr:   addr,
		Logger: cc.Logger,
	})

	cc.Renderer.Printf("Serving API on http://%s (Ctrl+C to stop)\n", addr)
	return srv.Serve(cmd.Context())
}
