package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/chat"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/indexer/phonetic"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/metrics"
)

// upperEncoder returns the uppercased token as the primary code and fails on
// tokens listed in reject.
func upperEncoder(reject ...string) phonetic.Encoder {
	bad := make(map[string]bool, len(reject))
	for _, r := range reject {
		bad[r] = true
	}
	return phonetic.EncoderFunc(func(token string) (string, string, error) {
		if bad[token] {
			return "", "", apperrors.ErrEncodingFailed
		}
		return strings.ToUpper(token), "", nil
	})
}

// failingStore errors on every AddMessageToCode after the first n calls.
type failingStore struct {
	*store.MemoryStore
	mu    sync.Mutex
	n     int
	calls int
}

func (f *failingStore) AddMessageToCode(ctx context.Context, channel, code, id string) error {
	f.mu.Lock()
	f.calls++
	fail := f.calls > f.n
	f.mu.Unlock()
	if fail {
		return apperrors.Store("sadd", errors.New("connection reset"))
	}
	return f.MemoryStore.AddMessageToCode(ctx, channel, code, id)
}

func msg(id, body string) chat.Message {
	return chat.Message{Channel: "#go", ID: id, Body: body}
}

func TestIndexMessageLinksEveryCode(t *testing.T) {
	s := store.NewMemoryStore()
	e := NewEngine(tokenizer.Default(), upperEncoder(), s)

	n, err := e.IndexMessage(context.Background(), msg("1", "The Quick, Brown-Fox!"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.Equal(t, map[string][]string{
		"QUICK": {"1"},
		"BROWN": {"1"},
		"FOX":   {"1"},
	}, s.Snapshot("#go"))
	codes, err := s.ChannelCodes(context.Background(), "#go")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"QUICK", "BROWN", "FOX"}, codes)
}

func TestIndexMessageWithDoubleMetaphone(t *testing.T) {
	s := store.NewMemoryStore()
	e := NewEngine(tokenizer.Default(), phonetic.DoubleMetaphone{}, s)

	_, err := e.IndexMessage(context.Background(), msg("7", "Smith met Schmidt"))
	require.NoError(t, err)

	snap := s.Snapshot("#go")
	assert.Equal(t, []string{"7"}, snap["XMT"], "both spellings share the XMT code")
	assert.Contains(t, snap, "SM0")
	assert.Contains(t, snap, "SMT")
}

func TestIndexMessageEmptyInputsWriteNothing(t *testing.T) {
	for _, body := range []string{"", "hi", "the a of", "!!! ... ---"} {
		t.Run(fmt.Sprintf("%q", body), func(t *testing.T) {
			s := store.NewMemoryStore()
			e := NewEngine(tokenizer.Default(), phonetic.DoubleMetaphone{}, s)

			n, err := e.IndexMessage(context.Background(), msg("1", body))
			require.NoError(t, err)
			assert.Zero(t, n)
			assert.Zero(t, s.Writes())
		})
	}
}

func TestIndexMessageIsIdempotent(t *testing.T) {
	once := store.NewMemoryStore()
	twice := store.NewMemoryStore()
	ctx := context.Background()
	m := msg("5", "repeat repeat after me please")

	_, err := NewEngine(tokenizer.Default(), phonetic.DoubleMetaphone{}, once).IndexMessage(ctx, m)
	require.NoError(t, err)
	e := NewEngine(tokenizer.Default(), phonetic.DoubleMetaphone{}, twice)
	_, err = e.IndexMessage(ctx, m)
	require.NoError(t, err)
	_, err = e.IndexMessage(ctx, m)
	require.NoError(t, err)

	assert.Equal(t, once.Snapshot("#go"), twice.Snapshot("#go"))
	c1, _ := once.ChannelCodes(ctx, "#go")
	c2, _ := twice.ChannelCodes(ctx, "#go")
	assert.Equal(t, c1, c2)
}

func TestIndexMessageSkipsUnencodableWords(t *testing.T) {
	s := store.NewMemoryStore()
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	e := NewEngine(tokenizer.Default(), upperEncoder("broken"), s, WithMetrics(m))

	n, err := e.IndexMessage(context.Background(), msg("9", "alpha broken gamma"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, map[string][]string{"ALPHA": {"9"}, "GAMMA": {"9"}}, s.Snapshot("#go"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EncodingFailuresTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesIndexedTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CodesLinkedTotal))
}

func TestIndexMessageDeduplicatesCodesAcrossWords(t *testing.T) {
	calls := 0
	s := &countingStore{MemoryStore: store.NewMemoryStore(), calls: &calls}
	e := NewEngine(tokenizer.Default(), phonetic.DoubleMetaphone{}, s)

	// knight and night both encode to NT
	n, err := e.IndexMessage(context.Background(), msg("3", "knight night Knight"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, calls)
}

type countingStore struct {
	*store.MemoryStore
	calls *int
}

func (c *countingStore) AddMessageToCode(ctx context.Context, channel, code, id string) error {
	*c.calls++
	return c.MemoryStore.AddMessageToCode(ctx, channel, code, id)
}

func TestIndexMessageStoreFailurePropagates(t *testing.T) {
	s := &failingStore{MemoryStore: store.NewMemoryStore(), n: 1}
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	e := NewEngine(tokenizer.Default(), upperEncoder(), s, WithMetrics(m))

	n, err := e.IndexMessage(context.Background(), msg("1", "alpha beta gamma"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrStoreFailure)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreErrorsTotal.WithLabelValues("add_message_to_code")))
	assert.Zero(t, testutil.ToFloat64(m.MessagesIndexedTotal))
}

func TestIndexContentUsesMessageIdentity(t *testing.T) {
	s := store.NewMemoryStore()
	e := NewEngine(tokenizer.Default(), upperEncoder(), s)
	m := msg("11", "body words")

	n, err := e.IndexContent(context.Background(), m, "topic changed")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, map[string][]string{"TOPIC": {"11"}, "CHANGED": {"11"}}, s.Snapshot("#go"))
}

func TestConcurrentIndexingCommutes(t *testing.T) {
	s := store.NewMemoryStore()
	e := NewEngine(tokenizer.Default(), phonetic.DoubleMetaphone{}, s)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.IndexMessage(ctx, msg(fmt.Sprint(i), "shared words everywhere"))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	for code, ids := range s.Snapshot("#go") {
		assert.Len(t, ids, 20, code)
	}
}

func TestAnalyze(t *testing.T) {
	e := NewEngine(tokenizer.Default(), upperEncoder("bad"), store.NewMemoryStore())
	results := e.Analyze("the good, bad and ugly")
	require.Len(t, results, 3)
	assert.Equal(t, "good", results[0].Token)
	assert.True(t, results[1].Failed())
	assert.Equal(t, []string{"UGLY"}, results[2].Codes)
}

func BenchmarkIndexMessage(b *testing.B) {
	e := NewEngine(tokenizer.Default(), phonetic.DoubleMetaphone{}, store.NewMemoryStore())
	ctx := context.Background()
	body := "distributed search engines process queries across multiple shards"
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := e.IndexMessage(ctx, msg(fmt.Sprint(i), body)); err != nil {
			b.Fatal(err)
		}
	}
}
