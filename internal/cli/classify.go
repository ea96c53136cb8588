package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"connection/internal/connection/classify"
	"connection/internal/connection/models"
)

// ClassifyOptions holds flags for the classify command.
type ClassifyOptions struct {
	*RootOptions
	File  string
	Today string
}

type classification struct {
	View        models.View `json:"view"`
	Reason      string      `json:"reason,omitempty"`
	Status      string      `json:"connectionStatus"`
	Discrepancy bool        `json:"discrepancy"`
}

// NewClassifyCommand creates the classify command.
func NewClassifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ClassifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Show which view an internal-system update would land in",
		Long: `Show which view an internal-system update would land in.

Runs the classification rules offline; nothing is written.

Example:
  connectionctl classify --file update.json --today 2025-06-15`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return classifyUpdate(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "payload file (defaults to stdin)")
	cmd.Flags().StringVar(&opts.Today, "today", "", "evaluation date YYYY-MM-DD (defaults to now)")

	return cmd
}

func classifyUpdate(cmd *cobra.Command, opts *ClassifyOptions) error {
	payload, err := readInput(cmd, opts.File)
	if err != nil {
		return err
	}
	var u models.InternalSystemUpdate
	if err := json.Unmarshal(payload, &u); err != nil {
		return fmt.Errorf("invalid internal update: %w", err)
	}

	today := time.Now()
	if opts.Today != "" {
		if today, err = time.Parse("2006-01-02", opts.Today); err != nil {
			return fmt.Errorf("invalid --today: %w", err)
		}
	}

	rec := u.ToRecord()
	res := classify.Classify(rec, today)
	out := classification{
		View:        res.View,
		Status:      rec.ConnectionStatus(),
		Discrepancy: classify.IsDiscrepancy(rec),
	}
	if res.Reason != nil {
		out.Reason = *res.Reason
	}
	return opts.print(cmd.OutOrStdout(), out, func(w io.Writer) {
		fmt.Fprintf(w, "view: %s\n", out.View)
		if out.Reason != "" {
			fmt.Fprintf(w, "reason: %s\n", out.Reason)
		}
		fmt.Fprintf(w, "connection status: %s\n", out.Status)
		fmt.Fprintf(w, "discrepancy: %t\n", out.Discrepancy)
	})
}
