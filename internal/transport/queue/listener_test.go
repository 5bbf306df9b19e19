package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"deal-service/internal/domain"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	drained   chan struct{}
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	for i := range msgs {
		msgs[i].Offset = int64(i)
	}
	return &fakeReader{msgs: msgs, drained: make(chan struct{})}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	if len(r.msgs) == 0 {
		select {
		case <-r.drained:
		default:
			close(r.drained)
		}
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) Committed() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeUpdater struct {
	mu     sync.Mutex
	events []domain.ContractorUpdate
	err    error
}

func (u *fakeUpdater) UpdateContractorByReceivedMessage(_ context.Context, ev domain.ContractorUpdate) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return 0, u.err
	}
	u.events = append(u.events, ev)
	return 1, nil
}

func runUntilDrained(t *testing.T, l *Listener, r *fakeReader) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	select {
	case <-r.drained:
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not drain messages")
	}
	cancel()
	require.NoError(t, <-done)
}

func TestListener_AppliesValidMessage(t *testing.T) {
	r := newFakeReader(kafka.Message{
		Value:   []byte(`{"id":"C-1","name":"ACME","inn":"7700"}`),
		Headers: []kafka.Header{{Key: "timestamp", Value: []byte("1700000000000")}},
	})
	dlq := &fakeWriter{}
	upd := &fakeUpdater{}

	runUntilDrained(t, NewListener(r, dlq, upd, zaptest.NewLogger(t)), r)

	require.Len(t, upd.events, 1)
	ev := upd.events[0]
	assert.Equal(t, "C-1", ev.ContractorID)
	assert.Equal(t, "ACME", ev.Name)
	assert.Equal(t, "7700", ev.INN)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), ev.CreatedAt)
	assert.Empty(t, dlq.msgs)
	assert.Equal(t, []int64{0}, r.Committed())
}

func TestListener_MalformedGoesToDLQ(t *testing.T) {
	r := newFakeReader(
		kafka.Message{Value: []byte(`not json`)},
		kafka.Message{Value: []byte(`{"id":"C-1","name":""}`)},
	)
	dlq := &fakeWriter{}
	upd := &fakeUpdater{}

	runUntilDrained(t, NewListener(r, dlq, upd, zaptest.NewLogger(t)), r)

	assert.Empty(t, upd.events)
	require.Len(t, dlq.msgs, 2)
	for _, m := range dlq.msgs {
		require.NotEmpty(t, m.Headers)
		last := m.Headers[len(m.Headers)-1]
		assert.Equal(t, "error", last.Key)
		assert.Contains(t, string(last.Value), domain.ErrValidation.Error())
	}
	assert.Equal(t, []int64{0, 1}, r.Committed())
}

func TestListener_HandlerErrorGoesToDLQ(t *testing.T) {
	r := newFakeReader(kafka.Message{Value: []byte(`{"id":"C-1","name":"ACME","inn":"7700"}`)})
	dlq := &fakeWriter{}
	upd := &fakeUpdater{err: errors.New("db down")}

	runUntilDrained(t, NewListener(r, dlq, upd, zaptest.NewLogger(t)), r)

	require.Len(t, dlq.msgs, 1)
	assert.Equal(t, []int64{0}, r.Committed())
}

func TestListener_DLQFailureLeavesUncommitted(t *testing.T) {
	r := newFakeReader(kafka.Message{Value: []byte(`broken`)})
	dlq := &fakeWriter{err: errors.New("broker unavailable")}
	l := NewListener(r, dlq, &fakeUpdater{}, zaptest.NewLogger(t))
	l.retryDelay = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, l.Run(ctx))

	assert.Empty(t, r.Committed())
}

func TestMessageTime_FallsBackToBrokerTime(t *testing.T) {
	broker := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, broker, messageTime(kafka.Message{Time: broker}))
	assert.Equal(t, broker, messageTime(kafka.Message{
		Time:    broker,
		Headers: []kafka.Header{{Key: "timestamp", Value: []byte("yesterday")}},
	}))
}

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, ParseBrokers(" a:9092, ,b:9092 "))
	assert.Nil(t, ParseBrokers(""))
}

func TestNewDialer(t *testing.T) {
	d := NewDialer(KafkaConfig{})
	assert.Nil(t, d.SASLMechanism)
	assert.Nil(t, d.TLS)

	d = NewDialer(KafkaConfig{Username: "u", Password: "p"})
	assert.NotNil(t, d.SASLMechanism)
	assert.NotNil(t, d.TLS)
}
