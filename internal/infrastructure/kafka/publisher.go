package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Xausdorf/payrelay/internal/domain/entity"
	"github.com/Xausdorf/payrelay/internal/domain/repository"
)

const (
	DefaultTopic = "payrelay.steps"
	batchSize    = 100
)

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// StepPublisher drains unpublished journal steps to a Kafka topic.
type StepPublisher struct {
	journal  repository.JournalRepository
	writer   MessageWriter
	interval time.Duration
}

func NewWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
}

func NewStepPublisher(journal repository.JournalRepository, writer MessageWriter, interval time.Duration) *StepPublisher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &StepPublisher{journal: journal, writer: writer, interval: interval}
}

type stepMessage struct {
	ID        string          `json:"id"`
	Code      string          `json:"code"`
	Step      string          `json:"step"`
	Outcome   string          `json:"outcome"`
	Detail    json.RawMessage `json:"detail,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func (p *StepPublisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.PublishPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *StepPublisher) Close() {
	if err := p.writer.Close(); err != nil {
		slog.Error("close kafka writer", slog.Any("error", err))
	}
}

// PublishPending publishes one batch and returns how many steps were marked
// published.
func (p *StepPublisher) PublishPending(ctx context.Context) int {
	steps, err := p.journal.Unpublished(ctx, batchSize)
	if err != nil {
		slog.ErrorContext(ctx, "fetch unpublished steps", slog.Any("error", err))
		return 0
	}

	published := 0
	for _, step := range steps {
		msg, err := toMessage(step)
		if err != nil {
			slog.ErrorContext(ctx, "encode step", slog.String("id", step.ID().String()), slog.Any("error", err))
			continue
		}
		if err := p.writer.WriteMessages(ctx, msg); err != nil {
			slog.ErrorContext(ctx, "publish step", slog.String("id", step.ID().String()), slog.Any("error", err))
			continue
		}
		if err := p.journal.MarkPublished(ctx, step.ID()); err != nil {
			slog.ErrorContext(ctx, "mark step published", slog.String("id", step.ID().String()), slog.Any("error", err))
			continue
		}
		published++
	}
	return published
}

func toMessage(step *entity.Step) (kafka.Message, error) {
	value, err := json.Marshal(stepMessage{
		ID:        step.ID().String(),
		Code:      step.Code(),
		Step:      string(step.Name()),
		Outcome:   string(step.Outcome()),
		Detail:    step.Detail(),
		CreatedAt: step.CreatedAt(),
	})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal step: %w", err)
	}
	return kafka.Message{
		// code as key keeps one delivery's steps ordered on a partition
		Key:   []byte(step.Code()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "step", Value: []byte(step.Name())},
			{Key: "outcome", Value: []byte(step.Outcome())},
		},
	}, nil
}
