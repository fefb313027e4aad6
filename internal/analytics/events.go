// Package analytics publishes search and reindex events to Kafka without
// blocking the request path.
package analytics

import "time"

type EventType string

const (
	EventSearch     EventType = "search"
	EventCacheHit   EventType = "cache_hit"
	EventZeroResult EventType = "zero_result"
	EventReindex    EventType = "reindex"
)

type SearchEvent struct {
	Type      EventType `json:"type"`
	Channels  []string  `json:"channels"`
	Query     string    `json:"query"`
	Words     []string  `json:"words"`
	Operator  string    `json:"operator"`
	TotalHits int       `json:"total_hits"`
	Returned  int       `json:"returned"`
	LatencyMs int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

type ReindexEvent struct {
	Type      EventType `json:"type"`
	Channels  []string  `json:"channels"`
	Failed    int       `json:"failed"`
	LatencyMs int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

func (e SearchEvent) Kind() EventType { return e.Type }

func (ReindexEvent) Kind() EventType { return EventReindex }
