package store

import (
	"context"

	apperrors "github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/errors"
	pkgredis "github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/redis"
)

// RedisStore keeps the index in Redis sets.
type RedisStore struct {
	client *pkgredis.Client
}

// NewRedisStore returns a Store backed by client.
func NewRedisStore(client *pkgredis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) AddMessageToCode(ctx context.Context, channel, code, messageID string) error {
	if err := s.client.SAdd(ctx, CodeKey(channel, code), messageID); err != nil {
		return apperrors.Store("linking message to code", err)
	}
	return s.AddCodeToChannel(ctx, channel, code)
}

func (s *RedisStore) AddCodeToChannel(ctx context.Context, channel, code string) error {
	if err := s.client.SAdd(ctx, CodesKey(channel), code); err != nil {
		return apperrors.Store("registering code", err)
	}
	return nil
}

func (s *RedisStore) ChannelCodes(ctx context.Context, channel string) ([]string, error) {
	codes, err := s.client.SMembers(ctx, CodesKey(channel))
	if err != nil {
		return nil, apperrors.Store("reading channel codes", err)
	}
	return codes, nil
}

func (s *RedisStore) CodeMessages(ctx context.Context, channel, code string) ([]string, error) {
	ids, err := s.client.SMembers(ctx, CodeKey(channel, code))
	if err != nil {
		return nil, apperrors.Store("reading code messages", err)
	}
	return ids, nil
}

// CodesMessages returns the union of the message ids linked to any of codes,
// in one round trip.
func (s *RedisStore) CodesMessages(ctx context.Context, channel string, codes []string) ([]string, error) {
	if len(codes) == 0 {
		return []string{}, nil
	}
	keys := make([]string, len(codes))
	for i, code := range codes {
		keys[i] = CodeKey(channel, code)
	}
	ids, err := s.client.SUnion(ctx, keys...)
	if err != nil {
		return nil, apperrors.Store("reading code messages", err)
	}
	return ids, nil
}

func (s *RedisStore) DeleteCodeSet(ctx context.Context, channel, code string) error {
	if err := s.client.Del(ctx, CodeKey(channel, code)); err != nil {
		return apperrors.Store("deleting code set", err)
	}
	return nil
}

func (s *RedisStore) DeleteChannelRegistry(ctx context.Context, channel string) error {
	if err := s.client.Del(ctx, CodesKey(channel)); err != nil {
		return apperrors.Store("deleting channel registry", err)
	}
	return nil
}
