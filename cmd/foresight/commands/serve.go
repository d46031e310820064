package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantfoundry/foresight/internal/api"
	"github.com/quantfoundry/foresight/internal/api/handlers"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read-only operator API",
	Long: `Starts the HTTP API over the ledger, outcome store, bundle registry and
integrity guard.

Endpoints:
  GET /health
  GET /api/predictions          - predictions in a window
  GET /api/predictions/{id}     - one prediction with its outcomes
  GET /api/outcomes             - outcomes in a window
  GET /api/models               - bundle version history
  GET /api/models/promoted      - the promoted bundle
  GET /api/models/{version}     - one bundle version
  GET /api/audit                - on-demand integrity audit
  GET /api/jobs                 - scheduler job statistics

Example:
  go run ./cmd/foresight serve --port 8090`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&servePort, "port", "", "listen port (overrides PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if servePort != "" {
		a.cfg.Port = servePort
	}

	router := api.NewRouter(
		handlers.NewLedgerHandler(a.store, a.store, a.log.Component("api")),
		handlers.NewModelHandler(a.store, a.log.Component("api")),
		handlers.NewPipelineHandler(a.guard, nil, a.log.Component("api")),
		a.log.Component("api"),
	)
	server := api.NewServer(a.cfg, a.log.Zerolog(), router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
