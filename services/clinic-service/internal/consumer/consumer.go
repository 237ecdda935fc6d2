package consumer

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/clinicdesk/clinicdesk/libs/kafkax"
	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/directory"
	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/inbox"
	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/outbox"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Handler func(ctx context.Context, msg kafka.Message) error

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Consumer struct {
	reader    MessageReader
	logger    *slog.Logger
	inbox     inbox.Recorder
	handler   Handler
	readRetry time.Duration
}

type Config struct {
	Brokers string
	GroupID string
	Topics  []string
}

func New(logger *slog.Logger, recorder inbox.Recorder, cfg Config, handler Handler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     kafkax.SplitBrokers(cfg.Brokers),
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return NewWithReader(reader, logger, recorder, handler)
}

func NewWithReader(reader MessageReader, logger *slog.Logger, recorder inbox.Recorder, handler Handler) *Consumer {
	return &Consumer{
		reader:    reader,
		logger:    logger,
		inbox:     recorder,
		handler:   handler,
		readRetry: time.Second,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.readRetry):
			}
			continue
		}
		c.handle(ctx, msg)
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)

	ok, err := c.inbox.Record(ctxSpan, meta.EventID, meta.EventType)
	if err != nil {
		c.logger.Error("inbox record failed", "err", err)
		span.RecordError(err)
		return
	}
	if !ok {
		c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
		return
	}

	if err := c.handler(ctxSpan, msg); err != nil {
		c.logger.Error("handler error", "err", err, "event_id", meta.EventID)
		span.RecordError(err)
	}
}

// Refresher is satisfied by *directory.Directory.
type Refresher interface {
	Refresh(ctx context.Context) (directory.Snapshot, error)
}

// RefreshOnEvent refreshes the dashboard snapshot whenever an appointment
// event arrives, so every replica converges on the same view.
func RefreshOnEvent(r Refresher, logger *slog.Logger) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var payload outbox.AppointmentPayload
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Warn("undecodable appointment event", "topic", msg.Topic, "err", err)
		} else {
			logger.Info("appointment event received",
				"topic", msg.Topic,
				"appointment_id", payload.AppointmentID,
				"status", payload.Status,
			)
		}
		_, err := r.Refresh(ctx)
		return err
	}
}
