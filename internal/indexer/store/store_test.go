package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/errors"
	pkgredis "github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/redis"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := pkgredis.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client), mr
}

// contract runs the same behavioural checks against every implementation.
func contract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("unknown channel is empty", func(t *testing.T) {
		s := newStore(t)
		codes, err := s.ChannelCodes(ctx, "#nowhere")
		require.NoError(t, err)
		assert.Empty(t, codes)
		ids, err := s.CodeMessages(ctx, "#nowhere", "FKS")
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("add message registers code", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.AddMessageToCode(ctx, "#go", "FKS", "1"))
		require.NoError(t, s.AddMessageToCode(ctx, "#go", "FKS", "2"))
		require.NoError(t, s.AddMessageToCode(ctx, "#go", "PRN", "2"))

		codes, err := s.ChannelCodes(ctx, "#go")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"FKS", "PRN"}, codes)

		ids, err := s.CodeMessages(ctx, "#go", "FKS")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"1", "2"}, ids)
	})

	t.Run("codes messages is a union", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.AddMessageToCode(ctx, "#go", "FKS", "1"))
		require.NoError(t, s.AddMessageToCode(ctx, "#go", "PRN", "2"))
		require.NoError(t, s.AddMessageToCode(ctx, "#go", "PRN", "1"))

		ids, err := s.CodesMessages(ctx, "#go", []string{"FKS", "PRN", "NONE"})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"1", "2"}, ids)

		ids, err = s.CodesMessages(ctx, "#go", nil)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("adds are idempotent", func(t *testing.T) {
		s := newStore(t)
		for i := 0; i < 3; i++ {
			require.NoError(t, s.AddMessageToCode(ctx, "#go", "FKS", "1"))
			require.NoError(t, s.AddCodeToChannel(ctx, "#go", "FKS"))
		}
		codes, err := s.ChannelCodes(ctx, "#go")
		require.NoError(t, err)
		assert.Equal(t, []string{"FKS"}, codes)
		ids, err := s.CodeMessages(ctx, "#go", "FKS")
		require.NoError(t, err)
		assert.Equal(t, []string{"1"}, ids)
	})

	t.Run("channels are isolated", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.AddMessageToCode(ctx, "#a", "FKS", "1"))
		require.NoError(t, s.AddMessageToCode(ctx, "#b", "PRN", "1"))

		codes, err := s.ChannelCodes(ctx, "#a")
		require.NoError(t, err)
		assert.Equal(t, []string{"FKS"}, codes)
		ids, err := s.CodeMessages(ctx, "#b", "FKS")
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("deletes", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.AddMessageToCode(ctx, "#go", "FKS", "1"))
		require.NoError(t, s.AddMessageToCode(ctx, "#go", "PRN", "1"))

		require.NoError(t, s.DeleteCodeSet(ctx, "#go", "FKS"))
		ids, err := s.CodeMessages(ctx, "#go", "FKS")
		require.NoError(t, err)
		assert.Empty(t, ids)

		require.NoError(t, s.DeleteChannelRegistry(ctx, "#go"))
		codes, err := s.ChannelCodes(ctx, "#go")
		require.NoError(t, err)
		assert.Empty(t, codes)

		ids, err = s.CodeMessages(ctx, "#go", "PRN")
		require.NoError(t, err)
		assert.Equal(t, []string{"1"}, ids, "registry delete leaves code sets alone")

		require.NoError(t, s.DeleteCodeSet(ctx, "#missing", "X"))
		require.NoError(t, s.DeleteChannelRegistry(ctx, "#missing"))
	})
}

func TestMemoryStoreContract(t *testing.T) {
	contract(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestRedisStoreContract(t *testing.T) {
	contract(t, func(t *testing.T) Store {
		s, _ := newRedisStore(t)
		return s
	})
}

func TestRedisStoreKeyLayout(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, s.AddMessageToCode(ctx, "#go", "FKS", "42"))

	codes, err := mr.Members("channel:#go:fulltext_search:metaphones")
	require.NoError(t, err)
	assert.Equal(t, []string{"FKS"}, codes)

	ids, err := mr.Members("channel:#go:fulltext_search:metaphone:FKS")
	require.NoError(t, err)
	assert.Equal(t, []string{"42"}, ids)
}

func TestRedisStoreFailuresAreStoreErrors(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()
	// establish the pooled connection before injecting failures
	require.NoError(t, s.AddCodeToChannel(ctx, "#warm", "X"))
	mr.SetError("LOADING server is loading")

	assert.ErrorIs(t, s.AddMessageToCode(ctx, "#go", "FKS", "1"), apperrors.ErrStoreFailure)
	assert.ErrorIs(t, s.AddCodeToChannel(ctx, "#go", "FKS"), apperrors.ErrStoreFailure)
	_, err := s.ChannelCodes(ctx, "#go")
	assert.ErrorIs(t, err, apperrors.ErrStoreFailure)
	_, err = s.CodeMessages(ctx, "#go", "FKS")
	assert.ErrorIs(t, err, apperrors.ErrStoreFailure)
	assert.ErrorIs(t, s.DeleteCodeSet(ctx, "#go", "FKS"), apperrors.ErrStoreFailure)
	assert.ErrorIs(t, s.DeleteChannelRegistry(ctx, "#go"), apperrors.ErrStoreFailure)
}

func TestMemoryStoreSnapshotAndWrites(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.AddMessageToCode(ctx, "#go", "FKS", "2"))
	require.NoError(t, s.AddMessageToCode(ctx, "#go", "FKS", "1"))

	assert.Equal(t, map[string][]string{"FKS": {"1", "2"}}, s.Snapshot("#go"))
	assert.Equal(t, 4, s.Writes())
}
