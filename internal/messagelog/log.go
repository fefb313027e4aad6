// Package messagelog reads and appends the per-channel chat log kept in
// Redis. Layout:
//
//	message_ids                  counter shared by every channel
//	channels                     set of channel names ever logged
//	channel:{channel}:dates      set of YYYY-MM-DD days with activity
//	channel:{channel}:messages   hash of message id -> JSON chat.Event
//	message_ids:reserved:{key}   id handed out for a delivery key, expires
package messagelog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/chat"
	apperrors "github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/errors"
	pkgredis "github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/redis"
)

const (
	messageIDsKey = "message_ids"
	channelsKey   = "channels"

	reservationTTL = 24 * time.Hour
)

func reservationKey(key string) string {
	return "message_ids:reserved:" + key
}

// MessagesKey is the hash holding a channel's log entries.
func MessagesKey(channel string) string {
	return fmt.Sprintf("channel:%s:messages", channel)
}

// DatesKey is the set of days on which a channel saw events.
func DatesKey(channel string) string {
	return fmt.Sprintf("channel:%s:dates", channel)
}

// Log is the Redis-backed message log.
type Log struct {
	client *pkgredis.Client
	logger *slog.Logger
}

func New(client *pkgredis.Client) *Log {
	return &Log{
		client: client,
		logger: slog.Default().With("component", "message-log"),
	}
}

// Append stores event under a fresh message id in every channel listed and
// returns the id. The same id is used across channels. A failed Append may
// leave the event in some channels; callers that retry should use Reserve
// and Write so the retry reuses the id.
func (l *Log) Append(ctx context.Context, event chat.Event, channels []string) (string, error) {
	if len(channels) == 0 {
		return "", fmt.Errorf("%w: event has no target channel", apperrors.ErrInvalidInput)
	}
	id, err := l.Reserve(ctx, "")
	if err != nil {
		return "", err
	}
	return id, l.Write(ctx, id, event, channels)
}

// Reserve allocates a message id. A non-empty key makes the allocation
// idempotent for reservationTTL: every Reserve with the same key returns the
// id of the first, so a redelivered event is written under its original id.
func (l *Log) Reserve(ctx context.Context, key string) (string, error) {
	if key != "" {
		id, err := l.client.Get(ctx, reservationKey(key))
		switch {
		case err == nil:
			return id, nil
		case !pkgredis.IsNilError(err):
			return "", apperrors.Store("reading id reservation", err)
		}
	}
	n, err := l.client.Incr(ctx, messageIDsKey)
	if err != nil {
		return "", apperrors.Store("allocating message id", err)
	}
	id := strconv.FormatInt(n, 10)
	if key == "" {
		return id, nil
	}
	won, err := l.client.SetNX(ctx, reservationKey(key), id, reservationTTL)
	if err != nil {
		return "", apperrors.Store("recording id reservation", err)
	}
	if !won {
		// a concurrent delivery reserved first; its id wins and n is unused
		if id, err = l.client.Get(ctx, reservationKey(key)); err != nil {
			return "", apperrors.Store("reading id reservation", err)
		}
	}
	return id, nil
}

// Write stores event under id in every channel listed. Every write is a set
// insert or a hash field assignment, so repeating a Write, in full or after
// a partial failure, leaves the same state as one successful Write.
func (l *Log) Write(ctx context.Context, id string, event chat.Event, channels []string) error {
	if len(channels) == 0 {
		return fmt.Errorf("%w: event has no target channel", apperrors.ErrInvalidInput)
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	day := event.CreatedAt().Format("2006-01-02")

	for _, channel := range channels {
		if err := l.client.SAdd(ctx, channelsKey, channel); err != nil {
			return apperrors.Store("registering channel", err)
		}
		if err := l.client.SAdd(ctx, DatesKey(channel), day); err != nil {
			return apperrors.Store("recording date", err)
		}
		if err := l.client.HSet(ctx, MessagesKey(channel), id, payload); err != nil {
			return apperrors.Store("writing log entry", err)
		}
	}
	l.logger.Debug("event logged",
		"message_id", id,
		"action", event.Action,
		"channels", len(channels),
	)
	return nil
}

// Snapshot returns every log entry of channel as id -> raw payload. The
// returned map has no defined order and is empty for unknown channels.
func (l *Log) Snapshot(ctx context.Context, channel string) (map[string]string, error) {
	entries, err := l.client.HGetAll(ctx, MessagesKey(channel))
	if err != nil {
		return nil, apperrors.Store("reading message log", err)
	}
	return entries, nil
}

// Channels returns the registry of logged channel names.
func (l *Log) Channels(ctx context.Context) ([]string, error) {
	channels, err := l.client.SMembers(ctx, channelsKey)
	if err != nil {
		return nil, apperrors.Store("reading channel registry", err)
	}
	return channels, nil
}

// Dates returns the days on which channel saw events.
func (l *Log) Dates(ctx context.Context, channel string) ([]string, error) {
	dates, err := l.client.SMembers(ctx, DatesKey(channel))
	if err != nil {
		return nil, apperrors.Store("reading channel dates", err)
	}
	return dates, nil
}

// Get decodes the entries with the given ids. Ids missing from the log are
// left out of the result.
func (l *Log) Get(ctx context.Context, channel string, ids ...string) (map[string]chat.Event, error) {
	out := make(map[string]chat.Event, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	values, present, err := l.client.HMGet(ctx, MessagesKey(channel), ids...)
	if err != nil {
		return nil, apperrors.Store("reading log entries", err)
	}
	for i, id := range ids {
		if !present[i] {
			continue
		}
		event, err := Decode(values[i])
		if err != nil {
			return nil, fmt.Errorf("entry %s in %s: %w", id, channel, err)
		}
		out[id] = event
	}
	return out, nil
}

// Entry is the part of a stored payload that indexing reads.
type Entry struct {
	Text    string
	HasText bool
	Time    time.Time
}

// DecodeEntry reads only the message and time fields of a stored payload,
// so an unexpected type elsewhere in the record does not reject it. The
// payload is malformed when it is not a JSON object or its message is
// neither a string nor null. A time that is not a number is ignored.
func DecodeEntry(payload string) (Entry, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &fields); err != nil {
		return Entry{}, fmt.Errorf("%w: %w", apperrors.ErrMalformedLogEntry, err)
	}
	if fields == nil {
		return Entry{}, fmt.Errorf("%w: payload is not an object", apperrors.ErrMalformedLogEntry)
	}
	var entry Entry
	var ts float64
	if raw, ok := fields["time"]; ok && json.Unmarshal(raw, &ts) == nil {
		entry.Time = chat.Event{Time: ts}.CreatedAt()
	}
	var text *string
	if raw, ok := fields["message"]; ok {
		if err := json.Unmarshal(raw, &text); err != nil {
			return Entry{}, fmt.Errorf("%w: message field: %w", apperrors.ErrMalformedLogEntry, err)
		}
	}
	if text != nil {
		entry.Text, entry.HasText = *text, true
	}
	return entry, nil
}

// Decode parses a stored payload into a full event.
func Decode(payload string) (chat.Event, error) {
	var event chat.Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return chat.Event{}, fmt.Errorf("%w: %w", apperrors.ErrMalformedLogEntry, err)
	}
	return event, nil
}
