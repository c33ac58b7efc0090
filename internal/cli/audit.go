package cli

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opustrack/opustrack/internal/config"
	"github.com/opustrack/opustrack/internal/queue"
)

// NewAuditCommand runs the audit consumer on its own, for deployments that
// keep it out of the API process.
func NewAuditCommand(_ *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Consume domain events into the audit log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ac := &queue.AuditConsumer{URL: cfg.AMQPURL, Queue: cfg.EventsQueue, Dir: cfg.AuditDir}
			log.Printf("audit-consumer: queue=%s dir=%s", cfg.EventsQueue, cfg.AuditDir)
			if err := ac.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
