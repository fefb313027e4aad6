package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Channel string `json:"channel"`
	Count   int    `json:"count"`
}

func TestEncodeUsesKeyAndJSONValue(t *testing.T) {
	msg, err := encode(Event{Key: "#go", Value: payload{Channel: "#go", Count: 2}})
	require.NoError(t, err)
	assert.Equal(t, []byte("#go"), msg.Key)
	assert.JSONEq(t, `{"channel":"#go","count":2}`, string(msg.Value))
}

func TestEncodeRejectsUnmarshalableValue(t *testing.T) {
	_, err := encode(Event{Key: "k", Value: make(chan int)})
	assert.ErrorContains(t, err, `key "k"`)
}

func TestDecodeJSON(t *testing.T) {
	got, err := DecodeJSON[payload]([]byte(`{"channel":"#rust","count":7}`))
	require.NoError(t, err)
	assert.Equal(t, payload{Channel: "#rust", Count: 7}, got)

	_, err = DecodeJSON[payload]([]byte(`{"channel":`))
	assert.ErrorContains(t, err, "decoding kafka message")
}

type fakeReader struct {
	msgs      chan kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case msg := <-r.msgs:
		return msg, nil
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func TestConsumerRedeliversBeforeCommitting(t *testing.T) {
	r := &fakeReader{msgs: make(chan kafka.Message, 2)}
	r.msgs <- kafka.Message{Offset: 10, Key: []byte("#go")}
	r.msgs <- kafka.Message{Offset: 11, Key: []byte("#go")}

	ctx, cancel := context.WithCancel(context.Background())
	var seen []string
	failures := 2
	c := newConsumer(r, "chat-events", func(_ context.Context, key, _ []byte) error {
		seen = append(seen, string(key))
		if failures > 0 {
			failures--
			return errors.New("redis down")
		}
		if len(seen) == 4 {
			cancel()
		}
		return nil
	})
	c.minBackoff = time.Millisecond

	require.NoError(t, c.Start(ctx))
	assert.Len(t, seen, 4, "offset 10 tried three times, offset 11 once")
	assert.Equal(t, []int64{10}, r.committed[:1])
	assert.True(t, r.closed)
}

func TestConsumerStopsWhileRedelivering(t *testing.T) {
	r := &fakeReader{msgs: make(chan kafka.Message, 1)}
	r.msgs <- kafka.Message{Offset: 3}

	ctx, cancel := context.WithCancel(context.Background())
	c := newConsumer(r, "chat-events", func(context.Context, []byte, []byte) error {
		cancel()
		return errors.New("still down")
	})
	c.minBackoff = time.Hour

	require.NoError(t, c.Start(ctx))
	assert.Empty(t, r.committed)
	assert.True(t, r.closed)
}

type fakeWriter struct {
	written []kafka.Message
	err     error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestProducerBatchIsAllOrNothing(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "chat-events")

	err := p.PublishBatch(context.Background(), []Event{
		{Key: "#go", Value: payload{Channel: "#go"}},
		{Key: "bad", Value: func() {}},
	})
	require.Error(t, err)
	assert.Empty(t, w.written)

	require.NoError(t, p.PublishBatch(context.Background(), nil))
	require.NoError(t, p.Publish(context.Background(), Event{Key: "#go", Value: payload{Channel: "#go", Count: 1}}))
	require.Len(t, w.written, 1)
	assert.Equal(t, "#go", string(w.written[0].Key))

	w.err = errors.New("leader not available")
	err = p.Publish(context.Background(), Event{Key: "#go", Value: payload{}})
	assert.ErrorContains(t, err, "to chat-events")
}
