package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"
)

// DefaultPartitionConcurrency bounds how many partitions are handled at once.
const DefaultPartitionConcurrency = 8

// Message is a consumed record, decoupled from the client library.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Timestamp time.Time
}

// Handler processes one message and must be safe for concurrent use across
// partitions. A nil return commits it; an error is retried up to
// Config.MaxAttempts and then logged and committed.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg *Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg *Message) error {
	return f(ctx, msg)
}

// Config configures a group consumer.
type Config struct {
	Brokers     []string
	Group       string
	Topics      []string
	MaxAttempts int
	RetryDelay  time.Duration
	// PartitionConcurrency is the number of partitions handled in parallel.
	// Records within one partition are always handled in offset order.
	PartitionConcurrency int
}

// Consumer polls a consumer group and hands each record to a Handler,
// committing after every poll. Partitions of one poll are handled
// concurrently.
type Consumer struct {
	client      *kgo.Client
	handler     Handler
	logger      *slog.Logger
	maxAttempts int
	retryDelay  time.Duration
	concurrency int
}

func New(cfg Config, handler Handler, logger *slog.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}
	if cfg.Group == "" || len(cfg.Topics) == 0 {
		return nil, fmt.Errorf("consumer group and topics required")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.Group),
		kgo.ConsumeTopics(cfg.Topics...),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	c := &Consumer{
		client:      client,
		handler:     handler,
		logger:      logger,
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay,
		concurrency: cfg.PartitionConcurrency,
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = 3
	}
	if c.retryDelay <= 0 {
		c.retryDelay = 500 * time.Millisecond
	}
	if c.concurrency <= 0 {
		c.concurrency = DefaultPartitionConcurrency
	}
	return c, nil
}

// Run polls until ctx is done. The record in flight when ctx is cancelled
// is finished and committed before Run returns.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.client.Close()
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.logger.ErrorContext(ctx, "kafka fetch error",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})

		handled := c.handle(ctx, fetches)
		if len(handled) == 0 {
			continue
		}
		if err := c.client.CommitRecords(context.WithoutCancel(ctx), handled...); err != nil {
			c.logger.ErrorContext(ctx, "kafka commit failed", "records", len(handled), "error", err)
		}
	}
}

// handle processes each partition of fetches on its own goroutine and
// returns every record that was handled or dropped.
func (c *Consumer) handle(ctx context.Context, fetches kgo.Fetches) []*kgo.Record {
	var (
		g       errgroup.Group
		mu      sync.Mutex
		handled []*kgo.Record
	)
	g.SetLimit(c.concurrency)
	fetches.EachPartition(func(p kgo.FetchTopicPartition) {
		if len(p.Records) == 0 {
			return
		}
		records := p.Records
		g.Go(func() error {
			for _, r := range records {
				c.process(ctx, r)
			}
			mu.Lock()
			handled = append(handled, records...)
			mu.Unlock()
			return nil
		})
	})
	_ = g.Wait()
	return handled
}

func (c *Consumer) process(ctx context.Context, r *kgo.Record) {
	msg := &Message{
		Topic:     r.Topic,
		Partition: r.Partition,
		Offset:    r.Offset,
		Key:       r.Key,
		Value:     r.Value,
		Timestamp: r.Timestamp,
	}
	// units of work are not interrupted by shutdown
	workCtx := context.WithoutCancel(ctx)
	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err = c.handler.Handle(workCtx, msg); err == nil {
			return
		}
		c.logger.WarnContext(ctx, "message handling failed",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"attempt", attempt,
			"error", err,
		)
		if attempt < c.maxAttempts {
			time.Sleep(c.retryDelay * time.Duration(attempt))
		}
	}
	c.logger.ErrorContext(ctx, "dropping message after retries",
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
		"error", err,
	)
}
