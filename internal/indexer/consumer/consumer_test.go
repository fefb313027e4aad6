package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/chat"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/indexer/phonetic"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/messagelog"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/resilience"
)

func encode(t *testing.T, ev ingestion.ChatEvent) []byte {
	t.Helper()
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	return b
}

func pubmsg(source, text string, channels ...string) ingestion.ChatEvent {
	return ingestion.ChatEvent{
		Channels: channels,
		Event:    chat.Event{Source: source, Action: chat.ActionPubMsg, Message: &text, Time: 1700000000},
	}
}

func TestHandleLogsAndIndexes(t *testing.T) {
	mr := miniredis.RunT(t)
	client := pkgredis.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { client.Close() })
	mem := store.NewMemoryStore()
	engine := indexer.NewEngine(tokenizer.Default(), phonetic.DoubleMetaphone{}, mem)
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	h := NewHandler(messagelog.New(client), engine, WithMetrics(m))

	ctx := context.Background()
	require.NoError(t, h.Handle(ctx, []byte("#go"), encode(t, pubmsg("ann", "Smith was here", "#go", "#rust"))))

	join := ingestion.ChatEvent{Channels: []string{"#go"}, Event: chat.Event{Source: "bob", Action: chat.ActionJoin, Time: 1700000001}}
	require.NoError(t, h.Handle(ctx, []byte("#go"), encode(t, join)))

	logged, err := messagelog.New(client).Snapshot(ctx, "#go")
	require.NoError(t, err)
	assert.Len(t, logged, 2)

	for _, channel := range []string{"#go", "#rust"} {
		ids, err := mem.CodeMessages(ctx, channel, "SM0")
		require.NoError(t, err)
		assert.Equal(t, []string{"1"}, ids, channel)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsIngestedTotal.WithLabelValues("pubmsg")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsIngestedTotal.WithLabelValues("join")))
}

// recordingLog fails every call with err when it is set.
type recordingLog struct {
	calls  int
	writes int
	err    error
}

func (r *recordingLog) Reserve(context.Context, string) (string, error) {
	r.calls++
	if r.err != nil {
		return "", r.err
	}
	return "7", nil
}

func (r *recordingLog) Write(context.Context, string, chat.Event, []string) error {
	r.writes++
	return r.err
}

type failingIndexer struct{ calls int }

func (f *failingIndexer) IndexMessage(context.Context, chat.Message) (int, error) {
	f.calls++
	return 0, errors.New("redis down")
}

func fastRetry(attempts int) resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func TestHandleDropsMalformed(t *testing.T) {
	log := &recordingLog{}
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	h := NewHandler(log, &failingIndexer{}, WithMetrics(m))

	assert.NoError(t, h.Handle(context.Background(), nil, []byte("{oops")))
	assert.NoError(t, h.Handle(context.Background(), nil, encode(t, pubmsg("ann", "hi", "ann"))))
	assert.Zero(t, log.calls)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsIngestedTotal.WithLabelValues("malformed")))
}

func TestHandleAppendFailureIsRetriedThenReturned(t *testing.T) {
	log := &recordingLog{err: errors.New("connection refused")}
	h := NewHandler(log, &failingIndexer{}, WithRetry(fastRetry(3)))

	err := h.Handle(context.Background(), nil, encode(t, pubmsg("ann", "hi", "#go")))
	assert.ErrorContains(t, err, "connection refused")
	assert.Equal(t, 3, log.calls)
}

func TestHandleIndexFailureStillCommits(t *testing.T) {
	idx := &failingIndexer{}
	h := NewHandler(&recordingLog{}, idx)

	assert.NoError(t, h.Handle(context.Background(), nil, encode(t, pubmsg("ann", "hello", "#go", "#ops"))))
	assert.Equal(t, 2, idx.calls)
}

func TestHandleBreakerOpensAndReportsState(t *testing.T) {
	log := &recordingLog{err: errors.New("connection refused")}
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	h := NewHandler(log, &failingIndexer{}, WithMetrics(m), WithRetry(fastRetry(1)))

	payload := encode(t, pubmsg("ann", "hi", "#go"))
	for i := 0; i < 5; i++ {
		require.Error(t, h.Handle(context.Background(), nil, payload))
	}
	err := h.Handle(context.Background(), nil, payload)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, 5, log.calls)
	assert.Equal(t, float64(resilience.StateOpen), testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("message-log")))
}

func TestHandleRetriedWriteKeepsOneEntryPerChannel(t *testing.T) {
	mr := miniredis.RunT(t)
	client := pkgredis.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { client.Close() })
	ml := messagelog.New(client)
	engine := indexer.NewEngine(tokenizer.Default(), phonetic.DoubleMetaphone{}, store.NewMemoryStore())
	h := NewHandler(ml, engine, WithRetry(fastRetry(3)))
	ctx := context.Background()

	// #b's log is the wrong type, so its HSET fails after #a was written
	require.NoError(t, mr.Set(messagelog.MessagesKey("#b"), "not a hash"))
	payload := encode(t, pubmsg("ann", "Smith deployed", "#a", "#b"))

	err := h.Handle(ctx, []byte("#a"), payload)
	require.Error(t, err)
	logged, err := ml.Snapshot(ctx, "#a")
	require.NoError(t, err)
	assert.Len(t, logged, 1, "three attempts, one entry")

	// redelivery after the fault clears reuses the reserved id
	mr.Del(messagelog.MessagesKey("#b"))
	require.NoError(t, h.Handle(ctx, []byte("#a"), payload))
	for _, channel := range []string{"#a", "#b"} {
		logged, err := ml.Snapshot(ctx, channel)
		require.NoError(t, err)
		assert.Len(t, logged, 1, channel)
		assert.Contains(t, logged, "1", channel)
	}

	// the same event ingested again is a new delivery with its own id
	again := pubmsg("ann", "Smith deployed", "#a", "#b")
	again.IngestedAt = time.Unix(1700000100, 0)
	require.NoError(t, h.Handle(ctx, []byte("#a"), encode(t, again)))
	logged, err = ml.Snapshot(ctx, "#a")
	require.NoError(t, err)
	assert.Len(t, logged, 2)
}
