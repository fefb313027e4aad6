// Package validator checks ingestion requests before they reach Kafka and
// returns per-field error details.
package validator

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/chat"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/ingestion"
)

const (
	maxChannels      = 100
	maxChannelLength = 200
	maxMessageLength = 65536
	maxBatchSize     = 500
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

func ValidateIngestRequest(req *ingestion.IngestRequest) error {
	errs := make(map[string]string)
	validateInto(errs, "", req)
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// ValidateBatch validates every event, prefixing field names with the
// event's position.
func ValidateBatch(req *ingestion.BatchRequest) error {
	errs := make(map[string]string)
	switch {
	case len(req.Events) == 0:
		errs["events"] = "at least one event is required"
	case len(req.Events) > maxBatchSize:
		errs["events"] = fmt.Sprintf("at most %d events per batch", maxBatchSize)
	default:
		for i := range req.Events {
			validateInto(errs, fmt.Sprintf("events[%d].", i), &req.Events[i])
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func validateInto(errs map[string]string, prefix string, req *ingestion.IngestRequest) {
	switch {
	case len(req.Channels) == 0:
		errs[prefix+"channels"] = "at least one channel is required"
	case len(req.Channels) > maxChannels:
		errs[prefix+"channels"] = fmt.Sprintf("at most %d channels", maxChannels)
	default:
		for _, c := range req.Channels {
			if !chat.IsChannel(c) || strings.ContainsAny(c, " ,\x07") {
				errs[prefix+"channels"] = fmt.Sprintf("%q is not a channel name", c)
				break
			}
			if len(c) > maxChannelLength {
				errs[prefix+"channels"] = fmt.Sprintf("channel names must be at most %d bytes", maxChannelLength)
				break
			}
		}
	}

	ev := req.Event
	if strings.TrimSpace(ev.Source) == "" {
		errs[prefix+"event.source"] = "source is required"
	}
	if !ev.Action.Valid() {
		errs[prefix+"event.action"] = fmt.Sprintf("unknown action %q", ev.Action)
	}
	if ev.Time <= 0 {
		errs[prefix+"event.time"] = "time must be a positive unix timestamp"
	}
	if text, ok := ev.Text(); ok {
		if !utf8.ValidString(text) {
			errs[prefix+"event.message"] = "message must be valid UTF-8"
		} else if len(text) > maxMessageLength {
			errs[prefix+"event.message"] = fmt.Sprintf("message must be at most %d bytes", maxMessageLength)
		}
	}
}
