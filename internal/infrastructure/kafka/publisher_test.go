package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Xausdorf/payrelay/internal/domain/entity"
	"github.com/Xausdorf/payrelay/internal/infrastructure/kafka"
	"github.com/Xausdorf/payrelay/internal/infrastructure/memstore"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafkago.Message
	fail     bool
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail {
		return errors.New("broker unavailable")
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.messages)
}

func TestPublishPending_PublishesAndMarks(t *testing.T) {
	journal := memstore.NewJournalRepo()
	ctx := context.Background()
	step := entity.NewStep("abc123", entity.StepPayout, entity.OutcomeSucceeded, []byte(`{"payout_id":"p1"}`))
	require.NoError(t, journal.Append(ctx, step))

	writer := &fakeWriter{}
	p := kafka.NewStepPublisher(journal, writer, time.Second)

	assert.Equal(t, 1, p.PublishPending(ctx))
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, "abc123", string(msg.Key))
	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &body))
	assert.Equal(t, step.ID().String(), body["id"])
	assert.Equal(t, "payout", body["step"])
	assert.Equal(t, "succeeded", body["outcome"])
	assert.Equal(t, map[string]any{"payout_id": "p1"}, body["detail"])

	// already published
	assert.Zero(t, journal.Len())
	assert.Equal(t, 0, p.PublishPending(ctx))
	assert.Len(t, writer.messages, 1)
}

func TestPublishPending_WriteFailureLeavesStepPending(t *testing.T) {
	journal := memstore.NewJournalRepo()
	ctx := context.Background()
	require.NoError(t, journal.Append(ctx, entity.NewStep("abc123", entity.StepVerify, entity.OutcomeFailed, nil)))

	writer := &fakeWriter{fail: true}
	p := kafka.NewStepPublisher(journal, writer, time.Second)

	assert.Equal(t, 0, p.PublishPending(ctx))

	pending, err := journal.Unpublished(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	writer.fail = false
	assert.Equal(t, 1, p.PublishPending(ctx))
}

func TestRun_StopsOnCancel(t *testing.T) {
	journal := memstore.NewJournalRepo()
	require.NoError(t, journal.Append(context.Background(),
		entity.NewStep("abc123", entity.StepVerify, entity.OutcomeSucceeded, nil)))

	writer := &fakeWriter{}
	p := kafka.NewStepPublisher(journal, writer, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return writer.count() == 1 }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher did not stop")
	}
	p.Close()
	assert.True(t, writer.closed)
}
