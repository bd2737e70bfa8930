package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"budgetwise/internal/amqp"
	"budgetwise/internal/config"
)

func (r *runner) exportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Append the expense log to the configured Google Sheet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := r.app.Export(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(r.out(), "Wrote %d rows\n", n)
			return nil
		},
	}
}

func (r *runner) eventsCommand() *cobra.Command {
	var queue string
	cmd := &cobra.Command{
		Use:         "events",
		Short:       "Print expense events from the AMQP exchange until interrupted",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationNoApp: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := r.opts.LoadConfig()
			if err != nil {
				return err
			}
			if cfg.AMQPURL == "" {
				return fmt.Errorf("AMQP_URL is not set")
			}
			return r.tailEvents(cmd.Context(), cfg, queue)
		},
	}
	cmd.Flags().StringVar(&queue, "queue", "budgetwise.events", "queue to bind to the exchange")
	return cmd
}

func (r *runner) tailEvents(ctx context.Context, cfg *config.Config, queue string) error {
	logger := SetupLogger(cfg.LogLevel, r.opts.Stderr)
	client := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey, logger)
	defer client.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.Connect(ctx); err != nil {
		return err
	}
	err := client.Consume(ctx, queue, func(m *amqp.ExpenseCategorizedMessage) error {
		_, err := fmt.Fprintf(r.out(), "%s  %-40s %10.2f  %s (%.0f%%)\n",
			m.Timestamp.Local().Format("2006-01-02 15:04"), m.Description, m.Amount, m.Category, m.Confidence*100)
		return err
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}
