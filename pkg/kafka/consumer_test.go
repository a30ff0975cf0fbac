package kafka

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

// fakeReader serves queued messages, then blocks until the context ends
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func TestConsumer_CommitsAfterHandling(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{
		{Offset: 1, Key: []byte("b1"), Value: []byte(`{}`), Headers: []kafka.Header{{Key: HeaderMessageType, Value: []byte("batch.submit")}}},
		{Offset: 2, Key: []byte("b2"), Value: []byte(`{}`)},
	}}

	var (
		mu       sync.Mutex
		attempts = map[string]int{}
		types    []string
	)
	handler := func(ctx context.Context, msg *IncomingMessage) error {
		mu.Lock()
		defer mu.Unlock()
		attempts[msg.Key]++
		types = append(types, msg.Type())
		if msg.Key == "b2" && attempts[msg.Key] == 1 {
			return stderrors.New("transient")
		}
		return nil
	}

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	c := NewConsumerWithReader(reader, "source-records", time.Millisecond, logger, handler)
	c.Start(context.Background())

	assert.Eventually(t, func() bool { return len(reader.commits()) == 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Stop())

	assert.Equal(t, []int64{1, 2}, reader.commits())
	assert.True(t, reader.closed)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, attempts["b2"])
	assert.Equal(t, "batch.submit", types[0])
}

func TestIncomingMessage_TraceContext(t *testing.T) {
	msg := newIncomingMessage(kafka.Message{
		Key:   []byte("b1"),
		Value: []byte(`{"batch_id":"b1"}`),
		Headers: []kafka.Header{
			{Key: "traceparent", Value: []byte("00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")},
		},
	})

	var body struct {
		BatchID string `json:"batch_id"`
	}
	require.NoError(t, msg.Decode(&body))
	assert.Equal(t, "b1", body.BatchID)

	sc := trace.SpanContextFromContext(msg.TraceContext(context.Background()))
	assert.True(t, sc.IsRemote())
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", sc.TraceID().String())
}
