package queue

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// DefaultKafkaTopic is the topic jobs are written to.
const DefaultKafkaTopic = "loyalty.notifications"

// KafkaConfig describes the brokers and topic.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

func (c KafkaConfig) topic() string {
	if c.Topic == "" {
		return DefaultKafkaTopic
	}
	return c.Topic
}

var _ Publisher = (*KafkaPublisher)(nil)

// KafkaPublisher writes jobs keyed by customer id, so one customer's
// notifications stay ordered within a partition.
type KafkaPublisher struct {
	w *kafka.Writer
}

// NewKafkaPublisher creates a KafkaPublisher.
func NewKafkaPublisher(cfg KafkaConfig) *KafkaPublisher {
	return &KafkaPublisher{w: &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.topic(),
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}}
}

func toMessage(job Job) kafka.Message {
	return kafka.Message{
		Key:   []byte(job.CustomerID),
		Value: job.Encode(),
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(job.Kind)},
		},
	}
}

// Publish writes job synchronously.
func (p *KafkaPublisher) Publish(ctx context.Context, job Job) error {
	if err := p.w.WriteMessages(ctx, toMessage(job)); err != nil {
		return errors.Wrap(err, "write message")
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

var _ Consumer = (*KafkaConsumer)(nil)

// KafkaConsumer reads jobs as part of a consumer group and commits each
// message after its handler returns.
type KafkaConsumer struct {
	r *kafka.Reader
}

// NewKafkaConsumer creates a KafkaConsumer.
func NewKafkaConsumer(cfg KafkaConfig) *KafkaConsumer {
	return &KafkaConsumer{r: kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.topic(),
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})}
}

// Consume processes messages one at a time until ctx is done.
func (c *KafkaConsumer) Consume(ctx context.Context, h Handler) error {
	lg := zctx.From(ctx).With(zap.String("topic", c.r.Config().Topic))
	lg.Info("Starting queue consumer")

	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "fetch message")
		}

		job, err := Decode(msg.Value)
		if err != nil {
			lg.Error("Dropping malformed job", zap.Error(err), zap.Int64("offset", msg.Offset))
		} else if err := h(ctx, job); err != nil {
			lg.Error("Job failed",
				zap.String("job_id", job.ID),
				zap.String("kind", job.Kind),
				zap.Error(err),
			)
		}

		if err := c.r.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "commit message")
		}
	}
}

// Close closes the reader.
func (c *KafkaConsumer) Close() error {
	return c.r.Close()
}
