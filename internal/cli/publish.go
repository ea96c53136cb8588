package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"connection/internal/connection/models"
	"connection/internal/platform/kafka/producer"
)

// PublishOptions holds flags for the publish command.
type PublishOptions struct {
	*RootOptions
	File string
}

// NewPublishCommand creates the publish command.
func NewPublishCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PublishOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "publish <internal|registry|correction>",
		Short: "Publish an update message to its topic",
		Long: `Publish an update message to its topic.

The payload is validated against the update shape before it is sent.

Example:
  connectionctl publish registry --file update.json
  echo '{"gmcId":"1234567","designatedBodyCode":"1-AIIDR8"}' | connectionctl publish correction`,
		Args:          cobra.ExactArgs(1),
		ValidArgs:     []string{"internal", "registry", "correction"},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return publishUpdate(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "payload file (defaults to stdin)")

	return cmd
}

func publishUpdate(cmd *cobra.Command, opts *PublishOptions, kind string) error {
	payload, err := readInput(cmd, opts.File)
	if err != nil {
		return err
	}
	topic, key, err := validateUpdate(opts.Config.Kafka.InternalTopic, opts.Config.Kafka.RegistryTopic, opts.Config.Kafka.CorrectionTopic, kind, payload)
	if err != nil {
		return err
	}

	p, err := producer.New(opts.Config.Kafka.Brokers)
	if err != nil {
		return err
	}
	defer p.Close()
	if err := p.Publish(cmd.Context(), topic, []byte(key), payload); err != nil {
		return err
	}
	return opts.print(cmd.OutOrStdout(), map[string]string{"topic": topic, "key": key}, func(w io.Writer) {
		fmt.Fprintf(w, "published %s update for %s to %s\n", kind, key, topic)
	})
}

// validateUpdate decodes payload as kind and returns its topic and message key.
func validateUpdate(internalTopic, registryTopic, correctionTopic, kind string, payload []byte) (string, string, error) {
	switch kind {
	case "internal":
		var u models.InternalSystemUpdate
		if err := json.Unmarshal(payload, &u); err != nil {
			return "", "", fmt.Errorf("invalid internal update: %w", err)
		}
		if err := u.Key().Validate(); err != nil {
			return "", "", err
		}
		return internalTopic, u.Key().String(), nil
	case "registry":
		var u models.RegistryUpdate
		if err := json.Unmarshal(payload, &u); err != nil {
			return "", "", fmt.Errorf("invalid registry update: %w", err)
		}
		if u.RegistryID == "" {
			return "", "", fmt.Errorf("registry update needs gmcReferenceNumber")
		}
		return registryTopic, u.RegistryID, nil
	case "correction":
		var u models.ManualCorrectionUpdate
		if err := json.Unmarshal(payload, &u); err != nil {
			return "", "", fmt.Errorf("invalid correction: %w", err)
		}
		if u.RegistryID == "" {
			return "", "", fmt.Errorf("correction needs gmcId")
		}
		return correctionTopic, u.RegistryID, nil
	}
	return "", "", fmt.Errorf("unknown update kind %q: must be internal, registry or correction", kind)
}

func readInput(cmd *cobra.Command, file string) ([]byte, error) {
	if file == "" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file, err)
	}
	return data, nil
}
