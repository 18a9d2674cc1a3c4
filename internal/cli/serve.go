package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pytest-insight/internal/api"
)

var serveFlags struct {
	host string
	port int
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST API server",
	Long: `Serve the query, analysis, comparison and insights engines over HTTP.
The server reads from the selected profile's store on every request, so
sessions ingested while it runs are visible immediately. SIGINT/SIGTERM
trigger a graceful shutdown.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.host, "host", "", "bind host (default from config)")
	serveCmd.Flags().IntVar(&serveFlags.port, "port", 0, "bind port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	app, err := newAppContext()
	if err != nil {
		return err
	}

	serverCfg := app.cfg.Server
	if serveFlags.host != "" {
		serverCfg.Host = serveFlags.host
	}
	if serveFlags.port != 0 {
		serverCfg.Port = serveFlags.port
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := api.NewServer(serverCfg.Addr(), app.api, app.log)
	if err := runServerWithContext(ctx, server); err != nil {
		return NewServerError("REST server failed", err)
	}
	return nil
}

// runServerWithContext blocks until the server exits; split out so tests can
// drive the lifecycle with their own context.
func runServerWithContext(ctx context.Context, server *api.Server) error {
	return server.Start(ctx)
}
