package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/crash-hotspot/internal/config"
	"github.com/couchcryptid/crash-hotspot/internal/domain"
	"github.com/couchcryptid/crash-hotspot/internal/observability"
	"github.com/couchcryptid/storm-data-shared/retry"
	kafkago "github.com/segmentio/kafka-go"
)

// SummaryKey is the message key of the per-run summary message.
const SummaryKey = "summary"

const (
	defaultAttempts   = 4
	defaultBackoff    = 200 * time.Millisecond
	defaultMaxBackoff = 5 * time.Second
)

// messageWriter is the subset of kafkago.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// SegmentResult is the message body for one output segment.
type SegmentResult struct {
	RunID  string             `json:"run_id"`
	Layer  string             `json:"layer"`
	FID    int64              `json:"fid"`
	Values map[string]float64 `json:"values"`
}

// Publisher writes an analysis result to the configured Kafka topic.
// It implements pipeline.Publisher.
type Publisher struct {
	writer     messageWriter
	logger     *slog.Logger
	metrics    *observability.Metrics
	attempts   int
	backoff    time.Duration
	maxBackoff time.Duration
}

// NewPublisher creates a Kafka producer for the result topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Publisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaResultTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return newPublisher(w, logger, metrics)
}

func newPublisher(w messageWriter, logger *slog.Logger, metrics *observability.Metrics) *Publisher {
	return &Publisher{
		writer:     w,
		logger:     logger,
		metrics:    metrics,
		attempts:   defaultAttempts,
		backoff:    defaultBackoff,
		maxBackoff: defaultMaxBackoff,
	}
}

// Publish sends one message per segment followed by the summary message in a
// single batch. A failed batch is retried with exponential backoff.
func (p *Publisher) Publish(ctx context.Context, run domain.Run, layer *domain.SegmentLayer, summary domain.Summary) error {
	msgs := make([]kafkago.Message, 0, len(layer.Segments)+1)
	for _, seg := range layer.Segments {
		msg, err := segmentMessage(run, layer.Name, seg)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	msg, err := summaryMessage(run, layer.Name, summary)
	if err != nil {
		return err
	}
	msgs = append(msgs, msg)

	if err := p.write(ctx, msgs); err != nil {
		return err
	}
	p.metrics.MessagesPublished.Add(float64(len(msgs)))
	p.logger.Info("results published", "run_id", run.ID, "layer", layer.Name, "messages", len(msgs))
	return nil
}

func (p *Publisher) write(ctx context.Context, msgs []kafkago.Message) error {
	backoff := p.backoff
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if err = p.writer.WriteMessages(ctx, msgs...); err == nil {
			return nil
		}
		p.metrics.PublishErrors.Inc()
		if ctx.Err() != nil || attempt == p.attempts {
			break
		}
		p.logger.Warn("publish failed, retrying", "error", err, "attempt", attempt, "backoff", backoff)
		if !retry.SleepWithContext(ctx, backoff) {
			break
		}
		backoff = retry.NextBackoff(backoff, p.maxBackoff)
	}
	return fmt.Errorf("publish results: %w", err)
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func segmentMessage(run domain.Run, layer string, seg domain.Segment) (kafkago.Message, error) {
	data, err := json.Marshal(SegmentResult{RunID: run.ID, Layer: layer, FID: seg.FID, Values: seg.Derived})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize segment %d: %w", seg.FID, err)
	}
	return kafkago.Message{
		Key:     []byte(strconv.FormatInt(seg.FID, 10)),
		Value:   data,
		Headers: headers(run, layer),
	}, nil
}

func summaryMessage(run domain.Run, layer string, summary domain.Summary) (kafkago.Message, error) {
	data, err := json.Marshal(summary)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize summary: %w", err)
	}
	return kafkago.Message{
		Key:     []byte(SummaryKey),
		Value:   data,
		Headers: headers(run, layer),
	}, nil
}

func headers(run domain.Run, layer string) []kafkago.Header {
	return []kafkago.Header{
		{Key: "run_id", Value: []byte(run.ID)},
		{Key: "layer", Value: []byte(layer)},
	}
}
