package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/veracity/internal/pipeline"
	"github.com/ppiankov/veracity/internal/server"
)

var (
	listenAddr   string
	enableReview bool
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the fact-checking HTTP API",
	Long: `Serve exposes the pipeline over HTTP:
- POST /v1/checks submits a claim
- GET  /v1/checks/:id/events streams progress as server-sent events
- POST /v1/checks/:id/review submits human review overrides
- GET  /v1/checks/:id/graph exports the source graph
- GET  /v1/history queries past verdicts

Example:
  veracity serve
  veracity serve --listen :8990 --review`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&listenAddr, "listen", ":8990", "listen address")
	serveCmd.Flags().BoolVar(&enableReview, "review", false, "pause runs for human review before synthesis")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if enableReview {
		cfg.Review.Enabled = true
	}
	if err := resolveKeys(cfg); err != nil {
		return err
	}

	log := newLogger()
	checker, err := pipeline.New(cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = checker.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Client IPs accumulate one rate limiter each; drop the refilled
	// ones periodically so the map stays bounded.
	go func() {
		tick := time.NewTicker(10 * time.Minute)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				if n := checker.PruneIdentities(); n > 0 {
					log.Debug("pruned idle rate limiters", "count", n)
				}
			}
		}
	}()

	return server.New(checker, log).Run(ctx, listenAddr)
}
