package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func sampleEvent() *WindowCommitted {
	return &WindowCommitted{
		From:        100,
		To:          199,
		Transfers:   42,
		NewAccounts: 7,
		NewTokens:   2,
		Skipped:     1,
		CommittedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

// fakeWriter records messages instead of talking to a broker
type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
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

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func TestEncodeDecode(t *testing.T) {
	data, err := Encode(sampleEvent())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"new_accounts":7`)

	ev, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, sampleEvent(), ev)

	_, err = Decode([]byte("{"))
	assert.Error(t, err)
}

func TestNewKafkaPublisher_Validation(t *testing.T) {
	_, err := NewKafkaPublisher(KafkaConfig{Topic: "windows"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "windows", Compression: "brotli"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	p, err := NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "windows", Compression: "snappy"}, nil)
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, "windows", nil)

	require.NoError(t, p.Publish(context.Background(), sampleEvent()))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, []byte("windows"), msg.Key)
	assert.Contains(t, msg.Headers, kafka.Header{Key: "event_type", Value: []byte(EventType)})
	assert.Contains(t, msg.Headers, kafka.Header{Key: "to_height", Value: []byte("199")})

	ev, err := Decode(msg.Value)
	require.NoError(t, err)
	assert.Equal(t, uint64(199), ev.To)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	boom := errors.New("broker unavailable")
	p := newKafkaPublisher(&fakeWriter{err: boom}, "windows", nil)

	err := p.Publish(context.Background(), sampleEvent())
	assert.ErrorIs(t, err, ErrPublishFailed)
	assert.ErrorIs(t, err, boom)
}

func TestRequiredAcks(t *testing.T) {
	assert.Equal(t, kafka.RequireNone, requiredAcks(0))
	assert.Equal(t, kafka.RequireOne, requiredAcks(1))
	assert.Equal(t, kafka.RequireAll, requiredAcks(-1))
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), sampleEvent()))
	assert.NoError(t, p.Close())
}

func TestNewRedisPublisher_Validation(t *testing.T) {
	_, err := NewRedisPublisher(nil, "windows", nil)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer client.Close()
	_, err = NewRedisPublisher(client, "", nil)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestRedisPublisher_Publish(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })

	sub := client.Subscribe(ctx, "indexer:windows")
	t.Cleanup(func() { _ = sub.Close() })
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	p, err := NewRedisPublisher(client, "indexer:windows", nil)
	require.NoError(t, err)
	require.NoError(t, p.Publish(ctx, sampleEvent()))

	select {
	case msg := <-sub.Channel():
		ev, err := Decode([]byte(msg.Payload))
		require.NoError(t, err)
		assert.Equal(t, uint64(100), ev.From)
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}
}
