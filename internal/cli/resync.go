package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"connection/internal/app"
	"connection/internal/platform/kafka/producer"
)

// ResyncOptions holds flags for the resync command.
type ResyncOptions struct {
	*RootOptions
	Direct bool
}

// NewResyncCommand creates the resync command.
func NewResyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resync",
		Short: "Rebuild every view from the master records",
		Long: `Rebuild every view from the master records.

By default the trigger value is published to the resync topic and a running
service performs the rebuild. With --direct the rebuild runs in this process
against DATABASE_URL.

Example:
  connectionctl resync --brokers localhost:9092
  DATABASE_URL=postgres://... connectionctl resync --direct`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Direct {
				return runDirectResync(cmd, opts)
			}
			return publishResync(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Direct, "direct", false, "run the resync in-process against DATABASE_URL")

	return cmd
}

func publishResync(cmd *cobra.Command, opts *ResyncOptions) error {
	cfg := opts.Config
	p, err := producer.New(cfg.Kafka.Brokers)
	if err != nil {
		return err
	}
	defer p.Close()

	if err := p.Publish(cmd.Context(), cfg.Kafka.ResyncTopic, nil, []byte(cfg.Resync.Trigger)); err != nil {
		return err
	}
	return opts.print(cmd.OutOrStdout(), map[string]string{"topic": cfg.Kafka.ResyncTopic, "signal": cfg.Resync.Trigger}, func(w io.Writer) {
		fmt.Fprintf(w, "published %q to %s\n", cfg.Resync.Trigger, cfg.Kafka.ResyncTopic)
	})
}

func runDirectResync(cmd *cobra.Command, opts *ResyncOptions) error {
	cfg := opts.Config
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("--direct requires DATABASE_URL")
	}
	// the CLI never consumes or exports
	cfg.Kafka.Brokers = nil
	cfg.Export.Bucket = ""

	a, err := app.Build(cmd.Context(), cfg, opts.logger(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer a.Close()

	summary, err := a.Resync.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("resync failed after %d records: %w", summary.Records, err)
	}
	return opts.print(cmd.OutOrStdout(), summary, func(w io.Writer) {
		fmt.Fprintf(w, "resynced %d records in %d batches (%d with failed view writes) in %s\n",
			summary.Records, summary.Batches, summary.Failures, summary.Duration)
	})
}
