// Package ingestion defines the request/response types and Kafka event schema
// used to accept chat events and hand them to the indexer.
package ingestion

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/chat"
)

// IngestRequest is the JSON body accepted by the ingestion HTTP endpoint. One
// event may be logged to several channels (a quit or nick change, say).
type IngestRequest struct {
	Channels []string   `json:"channels"`
	Event    chat.Event `json:"event"`
}

// BatchRequest carries several events in one call.
type BatchRequest struct {
	Events []IngestRequest `json:"events"`
}

// IngestResponse is returned once the event has been handed to Kafka. The
// message id is assigned later, by the indexer.
type IngestResponse struct {
	Status   string   `json:"status"`
	Channels []string `json:"channels"`
	Accepted int      `json:"accepted"`
}

// ChatEvent is the Kafka payload consumed by the indexer.
type ChatEvent struct {
	Channels   []string   `json:"channels"`
	Event      chat.Event `json:"event"`
	IngestedAt time.Time  `json:"ingested_at"`
}
