package validator

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/chat"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/ingestion"
)

func validRequest() ingestion.IngestRequest {
	text := "hello there"
	return ingestion.IngestRequest{
		Channels: []string{"#go"},
		Event: chat.Event{
			Host:    "irc.libera.chat",
			Source:  "ann",
			Time:    1700000000.5,
			Action:  chat.ActionPubMsg,
			Message: &text,
		},
	}
}

func fields(t *testing.T, err error) map[string]string {
	t.Helper()
	var ve *ValidationError
	require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
	return ve.Fields
}

func TestValidateIngestRequest(t *testing.T) {
	long := strings.Repeat("x", maxMessageLength+1)
	bad := string([]byte{0xff, 0xfe})

	tests := []struct {
		name   string
		mutate func(*ingestion.IngestRequest)
		field  string
	}{
		{"valid", func(*ingestion.IngestRequest) {}, ""},
		{"join without message", func(r *ingestion.IngestRequest) {
			r.Event.Action = chat.ActionJoin
			r.Event.Message = nil
		}, ""},
		{"no channels", func(r *ingestion.IngestRequest) { r.Channels = nil }, "channels"},
		{"nick as channel", func(r *ingestion.IngestRequest) { r.Channels = []string{"#go", "ann"} }, "channels"},
		{"space in channel", func(r *ingestion.IngestRequest) { r.Channels = []string{"#go lang"} }, "channels"},
		{"missing source", func(r *ingestion.IngestRequest) { r.Event.Source = " " }, "event.source"},
		{"unknown action", func(r *ingestion.IngestRequest) { r.Event.Action = "wave" }, "event.action"},
		{"zero time", func(r *ingestion.IngestRequest) { r.Event.Time = 0 }, "event.time"},
		{"message too long", func(r *ingestion.IngestRequest) { r.Event.Message = &long }, "event.message"},
		{"invalid utf8", func(r *ingestion.IngestRequest) { r.Event.Message = &bad }, "event.message"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			err := ValidateIngestRequest(&req)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			assert.Contains(t, fields(t, err), tt.field)
		})
	}
}

func TestValidateBatch(t *testing.T) {
	assert.Contains(t, fields(t, ValidateBatch(&ingestion.BatchRequest{})), "events")

	good := validRequest()
	broken := validRequest()
	broken.Event.Source = ""
	err := ValidateBatch(&ingestion.BatchRequest{Events: []ingestion.IngestRequest{good, broken}})
	f := fields(t, err)
	assert.Len(t, f, 1)
	assert.Contains(t, f, "events[1].event.source")
	assert.Equal(t, "events[1].event.source:source is required", err.Error())
}
