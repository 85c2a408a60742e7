package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ppiankov/proposalgate/internal/api"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the export gate HTTP API",
	Long: `Serve exposes evaluate, attest, finalize, placeholder and checklist
operations over HTTP, plus /healthz and Prometheus /metrics.

Example:
  proposalgate serve --addr :8080
  PROPOSALGATE_STORAGE_DSN=/var/lib/proposalgate/gate.db proposalgate serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", ":8080", "listen address")
	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}

func runServe(cmd *cobra.Command, args []string) error {
	p, logger, err := openPipeline()
	if err != nil {
		return err
	}
	defer closePipeline(p, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := viper.GetString("server.addr")
	if verbose {
		fmt.Fprintf(os.Stderr, "Listening on %s\n", addr)
	}

	if err := api.Serve(ctx, addr, api.NewHandlers(p, logger), logger); err != nil {
		logger.Error("server stopped", zap.Error(err))
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
