package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"connection/internal/connection/master"
	"connection/internal/connection/models"
	"connection/internal/connection/resync"
	"connection/internal/platform/kafka/consumer"
	"connection/pkg/platform/sentinel"
)

// Merger applies partial updates to the master.
type Merger interface {
	MergeFromInternalSystem(ctx context.Context, u models.InternalSystemUpdate) (master.MergeResult, error)
	MergeFromExternalRegistry(ctx context.Context, u models.RegistryUpdate) (master.MergeResult, error)
	ApplyManualCorrection(ctx context.Context, u models.ManualCorrectionUpdate) (master.MergeResult, error)
}

// Trigger starts a resync for a matching signal.
type Trigger interface {
	HandleTrigger(ctx context.Context, signal string) (resync.Summary, bool, error)
}

// InternalUpdateHandler consumes internal-system updates.
type InternalUpdateHandler struct {
	merger Merger
	logger *slog.Logger
}

func NewInternalUpdateHandler(merger Merger, logger *slog.Logger) *InternalUpdateHandler {
	return &InternalUpdateHandler{merger: merger, logger: orDiscard(logger)}
}

func (h *InternalUpdateHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	var u models.InternalSystemUpdate
	if !decode(ctx, h.logger, msg, &u) {
		return nil
	}
	res, err := h.merger.MergeFromInternalSystem(ctx, u)
	return settle(ctx, h.logger, msg, res, err, u.Key().LogAttrs())
}

// RegistryUpdateHandler consumes regulator updates.
type RegistryUpdateHandler struct {
	merger Merger
	logger *slog.Logger
}

func NewRegistryUpdateHandler(merger Merger, logger *slog.Logger) *RegistryUpdateHandler {
	return &RegistryUpdateHandler{merger: merger, logger: orDiscard(logger)}
}

func (h *RegistryUpdateHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	var u models.RegistryUpdate
	if !decode(ctx, h.logger, msg, &u) {
		return nil
	}
	res, err := h.merger.MergeFromExternalRegistry(ctx, u)
	return settle(ctx, h.logger, msg, res, err, []any{"registry_id", u.RegistryID})
}

// CorrectionHandler consumes manual designated body corrections.
type CorrectionHandler struct {
	merger Merger
	logger *slog.Logger
}

func NewCorrectionHandler(merger Merger, logger *slog.Logger) *CorrectionHandler {
	return &CorrectionHandler{merger: merger, logger: orDiscard(logger)}
}

func (h *CorrectionHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	var u models.ManualCorrectionUpdate
	if !decode(ctx, h.logger, msg, &u) {
		return nil
	}
	res, err := h.merger.ApplyManualCorrection(ctx, u)
	return settle(ctx, h.logger, msg, res, err, []any{"registry_id", u.RegistryID, "reason_code", u.ReasonCode})
}

// ResyncTriggerHandler runs a resync when the payload is the trigger value.
// The payload is a bare string, optionally JSON-quoted.
type ResyncTriggerHandler struct {
	trigger Trigger
	logger  *slog.Logger
}

func NewResyncTriggerHandler(trigger Trigger, logger *slog.Logger) *ResyncTriggerHandler {
	return &ResyncTriggerHandler{trigger: trigger, logger: orDiscard(logger)}
}

func (h *ResyncTriggerHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	signal := strings.TrimSpace(string(msg.Value))
	var quoted string
	if err := json.Unmarshal(msg.Value, &quoted); err == nil {
		signal = strings.TrimSpace(quoted)
	}

	summary, ran, err := h.trigger.HandleTrigger(ctx, signal)
	if err != nil {
		// a failed or contended run is not retried from the topic
		h.logger.ErrorContext(ctx, "resync trigger failed",
			"offset", msg.Offset,
			"records", summary.Records,
			"error", err,
		)
		return nil
	}
	if ran {
		h.logger.InfoContext(ctx, "resync triggered from topic",
			"records", summary.Records,
			"failures", summary.Failures,
			"duration_ms", summary.Duration.Milliseconds(),
		)
	}
	return nil
}

// decode reports false for malformed payloads, which are logged and
// committed so they never block the partition.
func decode(ctx context.Context, logger *slog.Logger, msg *consumer.Message, v any) bool {
	if err := json.Unmarshal(msg.Value, v); err != nil {
		logger.WarnContext(ctx, "malformed message payload",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		return false
	}
	return true
}

// settle maps a merge outcome to commit or retry. Invalid identities are
// committed; master failures are returned for retry.
func settle(ctx context.Context, logger *slog.Logger, msg *consumer.Message, res master.MergeResult, err error, attrs []any) error {
	if err != nil {
		if errors.Is(err, sentinel.ErrInvalidKey) {
			logger.WarnContext(ctx, "update rejected", append(attrs, "topic", msg.Topic, "offset", msg.Offset, "error", err)...)
			return nil
		}
		return fmt.Errorf("merge from %s: %w", msg.Topic, err)
	}
	logger.DebugContext(ctx, "update merged", append(attrs, "topic", msg.Topic, "status", res.Status, "records", len(res.Records))...)
	return nil
}

func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return logger
}
