package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/metrics"
)

const maxBodyBytes = 8 << 20

// EventPublisher is implemented by publisher.Publisher.
type EventPublisher interface {
	Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error)
	IngestBatch(ctx context.Context, req *ingestion.BatchRequest) (*ingestion.IngestResponse, error)
}

type Handler struct {
	publisher EventPublisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New builds the handler. m may be nil.
func New(pub EventPublisher, m *metrics.Metrics) *Handler {
	return &Handler{
		publisher: pub,
		metrics:   m,
		logger:    slog.Default().With("component", "ingestion-handler"),
	}
}

func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/events", h.Ingest)
	mux.HandleFunc("POST /api/v1/events/batch", h.IngestBatch)
	mux.HandleFunc("GET /health", h.Health)
}

func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	var req ingestion.IngestRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.count("invalid")
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validator.ValidateIngestRequest(&req); err != nil {
		h.count("invalid")
		h.writeValidation(w, err)
		return
	}

	resp, err := h.publisher.Ingest(ctx, &req)
	if err != nil {
		h.count("failed")
		log.Error("ingestion failed", "channels", req.Channels, "error", err)
		h.writeError(w, http.StatusServiceUnavailable, "event bus unavailable")
		return
	}
	h.count("accepted")
	log.Info("chat event accepted",
		"channels", resp.Channels,
		"source", req.Event.Source,
		"action", req.Event.Action,
	)
	h.writeJSON(w, http.StatusAccepted, resp)
}

func (h *Handler) IngestBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	var req ingestion.BatchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.count("invalid")
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validator.ValidateBatch(&req); err != nil {
		h.count("invalid")
		h.writeValidation(w, err)
		return
	}

	resp, err := h.publisher.IngestBatch(ctx, &req)
	if err != nil {
		h.count("failed")
		log.Error("batch ingestion failed", "count", len(req.Events), "error", err)
		h.writeError(w, http.StatusServiceUnavailable, "event bus unavailable")
		return
	}
	if h.metrics != nil {
		h.metrics.EventsAcceptedTotal.WithLabelValues("accepted").Add(float64(resp.Accepted))
	}
	log.Info("chat event batch accepted", "count", resp.Accepted, "channels", resp.Channels)
	h.writeJSON(w, http.StatusAccepted, resp)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) count(status string) {
	if h.metrics != nil {
		h.metrics.EventsAcceptedTotal.WithLabelValues(status).Inc()
	}
}

func (h *Handler) writeValidation(w http.ResponseWriter, err error) {
	var validationErr *validator.ValidationError
	if errors.As(err, &validationErr) {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": validationErr.Fields,
		})
		return
	}
	h.writeError(w, http.StatusBadRequest, err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
