// Package store persists the per-channel phonetic index: for every channel a
// registry of the codes seen, and for every (channel, code) the set of
// message ids whose text produced that code. Every operation is a single-key
// set union or delete; no multi-key atomicity is provided.
package store

import (
	"context"
	"fmt"
)

// Store is the key-value abstraction the indexing engine writes through.
// Implementations must be safe for concurrent use.
type Store interface {
	// AddMessageToCode adds messageID to the (channel, code) set and records
	// code in the channel registry.
	AddMessageToCode(ctx context.Context, channel, code, messageID string) error
	// AddCodeToChannel records code in the channel registry.
	AddCodeToChannel(ctx context.Context, channel, code string) error
	// ChannelCodes returns the channel registry. Unknown channels yield an
	// empty slice.
	ChannelCodes(ctx context.Context, channel string) ([]string, error)
	// CodeMessages returns the message ids linked to (channel, code).
	CodeMessages(ctx context.Context, channel, code string) ([]string, error)
	// CodesMessages returns the union of the message ids linked to any of
	// codes in channel.
	CodesMessages(ctx context.Context, channel string, codes []string) ([]string, error)
	// DeleteCodeSet removes the (channel, code) message-id set.
	DeleteCodeSet(ctx context.Context, channel, code string) error
	// DeleteChannelRegistry removes the channel registry.
	DeleteChannelRegistry(ctx context.Context, channel string) error
}

// CodesKey is the Redis key of the channel's code registry.
func CodesKey(channel string) string {
	return fmt.Sprintf("channel:%s:fulltext_search:metaphones", channel)
}

// CodeKey is the Redis key of the message ids linked to code in channel.
func CodeKey(channel, code string) string {
	return fmt.Sprintf("channel:%s:fulltext_search:metaphone:%s", channel, code)
}
