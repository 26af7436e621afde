package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler must return nil only when the message is done with and its offset
// may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

// reader is the part of *kafka.Reader the consumer uses.
type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const (
	defaultAttempts = 5
	defaultBackoff  = 200 * time.Millisecond
)

type Consumer struct {
	r       reader
	workers int
	log     *zap.Logger

	attempts int           // handler tries per message before Start gives up
	backoff  time.Duration // first retry delay, doubled per attempt
}

func NewConsumer(brokers []string, group, topic string, workers int, log *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{
		r:        r,
		workers:  workers,
		log:      log.With(zap.String("topic", topic), zap.String("group", group)),
		attempts: defaultAttempts,
		backoff:  defaultBackoff,
	}
}

// Start fetches until ctx is done. Each partition is pinned to one worker so
// offsets are committed in order. A message whose handler keeps failing is
// never committed past: Start returns the error and the group resumes from
// the last committed offset on the next run.
func (c *Consumer) Start(parent context.Context, h Handler) error {
	defer c.r.Close()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var (
		wg      sync.WaitGroup
		once    sync.Once
		failErr error
	)
	fail := func(err error) {
		once.Do(func() { failErr = err })
		cancel()
	}

	lanes := make([]chan kafka.Message, c.workers)
	for i := range lanes {
		lanes[i] = make(chan kafka.Message, 4)
		wg.Add(1)
		go func(id int, in <-chan kafka.Message) {
			defer wg.Done()
			for m := range in {
				if ctx.Err() != nil {
					continue // left uncommitted, redelivered later
				}
				if err := c.process(ctx, id, m, h); err != nil {
					fail(err)
				}
			}
		}(i, lanes[i])
	}

	fetchErr := c.fetch(ctx, lanes)
	for _, l := range lanes {
		close(l)
	}
	wg.Wait()

	if failErr != nil {
		return failErr
	}
	return fetchErr
}

func (c *Consumer) fetch(ctx context.Context, lanes []chan kafka.Message) error {
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case lanes[m.Partition%len(lanes)] <- m:
		case <-ctx.Done():
			return nil
		}
	}
}

// process runs h with bounded retries, then commits m.
func (c *Consumer) process(ctx context.Context, worker int, m kafka.Message, h Handler) error {
	delay := c.backoff
	for attempt := 1; ; attempt++ {
		err := h(ctx, m)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil
		}
		c.log.Warn("handler failed",
			zap.Int("worker", worker), zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset), zap.Int("attempt", attempt), zap.Error(err))
		if attempt >= c.attempts {
			return fmt.Errorf("partition %d offset %d: %w", m.Partition, m.Offset, err)
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil
		}
		delay *= 2
	}

	if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
		// a later commit on the same partition covers this offset
		c.log.Warn("commit failed", zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset), zap.Error(err))
	}
	return nil
}
