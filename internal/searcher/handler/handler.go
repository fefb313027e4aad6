// Package handler serves the search API: per-channel and cross-channel
// phonetic search, channel listings, reindex triggers and their history.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/audit"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/indexer/reindex"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/metrics"
)

type Searcher interface {
	Execute(ctx context.Context, channel string, plan *parser.QueryPlan, limit int) (*executor.SearchResult, error)
	ExecuteAcross(ctx context.Context, channels []string, plan *parser.QueryPlan, limit int) (*executor.MultiResult, error)
}

type Reindexer interface {
	Reindex(ctx context.Context, channels []string) (*reindex.Summary, error)
	ReindexAll(ctx context.Context) (*reindex.Summary, error)
}

// Catalog lists what the message log holds.
type Catalog interface {
	Channels(ctx context.Context) ([]string, error)
	Dates(ctx context.Context, channel string) ([]string, error)
}

type History interface {
	Enabled() bool
	Recent(ctx context.Context, channel string, limit int) ([]audit.Run, error)
}

// Deps wires the handler. Cache, Collector, Reindexer, History and Metrics
// are optional.
type Deps struct {
	Searcher     Searcher
	Analyzer     parser.Analyzer
	Catalog      Catalog
	Cache        *cache.QueryCache
	Collector    *analytics.Collector
	Reindexer    Reindexer
	History      History
	Metrics      *metrics.Metrics
	DefaultLimit int
	MaxResults   int
}

type Handler struct {
	Deps
	logger *slog.Logger
}

func New(deps Deps) *Handler {
	if deps.DefaultLimit <= 0 {
		deps.DefaultLimit = 50
	}
	if deps.MaxResults < deps.DefaultLimit {
		deps.MaxResults = deps.DefaultLimit
	}
	return &Handler{
		Deps:   deps,
		logger: slog.Default().With("component", "search-handler"),
	}
}

func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/channels", h.ListChannels)
	mux.HandleFunc("GET /api/v1/channels/{channel}/dates", h.ChannelDates)
	mux.HandleFunc("GET /api/v1/channels/{channel}/search", h.Search)
	mux.HandleFunc("POST /api/v1/channels/{channel}/reindex", h.ReindexChannel)
	mux.HandleFunc("GET /api/v1/search", h.SearchAcross)
	mux.HandleFunc("POST /api/v1/reindex", h.ReindexAll)
	mux.HandleFunc("GET /api/v1/reindex/history", h.ReindexHistory)
	mux.HandleFunc("GET /api/v1/analyze", h.Analyze)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("DELETE /api/v1/cache", h.CacheInvalidate)
	mux.HandleFunc("GET /health", h.Health)
}

// channelParam reads the {channel} path value. Clients may leave out the
// leading '#', which is awkward to put in a URL.
func channelParam(r *http.Request) string {
	c := strings.TrimSpace(r.PathValue("channel"))
	if c != "" && !strings.HasPrefix(c, "#") {
		c = "#" + c
	}
	return c
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	channel := channelParam(r)
	log := logger.WithChannel(logger.FromContext(ctx), channel)
	if channel == "" {
		h.writeError(w, http.StatusBadRequest, "channel is required")
		return
	}
	query, limit, ok := h.queryParams(w, r)
	if !ok {
		return
	}
	plan := parser.Parse(h.Analyzer, query)

	var (
		result   *executor.SearchResult
		cacheHit bool
		err      error
	)
	if h.Cache != nil && len(plan.Terms) > 0 {
		result, cacheHit, err = h.Cache.GetOrCompute(ctx, channel, query, limit, func() (*executor.SearchResult, error) {
			return h.Searcher.Execute(ctx, channel, plan, limit)
		})
	} else {
		result, err = h.Searcher.Execute(ctx, channel, plan, limit)
	}
	if err != nil {
		h.observe("error", start)
		log.Error("search failed", "query", query, "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "search failed")
		return
	}

	latency := time.Since(start)
	h.observe(outcome(result.TotalHits), start)
	log.Info("search completed",
		"query", query,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache_hit", cacheHit,
		"latency_ms", latency.Milliseconds(),
	)
	h.track(ctx, []string{channel}, plan, result.TotalHits, len(result.Results), cacheHit, latency)
	h.writeJSON(w, http.StatusOK, result)
}

// SearchAcross searches the channels named in ?channels=a,b or, when none
// are named, every channel in the log. Results are not cached.
func (h *Handler) SearchAcross(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query, limit, ok := h.queryParams(w, r)
	if !ok {
		return
	}
	var channels []string
	for _, c := range strings.Split(r.URL.Query().Get("channels"), ",") {
		if c = strings.TrimSpace(c); c != "" {
			if !strings.HasPrefix(c, "#") {
				c = "#" + c
			}
			channels = append(channels, c)
		}
	}
	if len(channels) == 0 {
		all, err := h.Catalog.Channels(ctx)
		if err != nil {
			log.Error("listing channels failed", "error", err)
			h.writeError(w, apperrors.HTTPStatusCode(err), "listing channels failed")
			return
		}
		channels = all
	}

	plan := parser.Parse(h.Analyzer, query)
	result, err := h.Searcher.ExecuteAcross(ctx, channels, plan, limit)
	if err != nil {
		h.observe("error", start)
		log.Error("cross-channel search failed", "query", query, "channels", len(channels), "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "search failed")
		return
	}

	latency := time.Since(start)
	h.observe(outcome(result.TotalHits), start)
	log.Info("cross-channel search completed",
		"query", query,
		"channels", len(result.Channels),
		"total_hits", result.TotalHits,
		"latency_ms", latency.Milliseconds(),
	)
	h.track(ctx, result.Channels, plan, result.TotalHits, len(result.Results), false, latency)
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) ListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := h.Catalog.Channels(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("listing channels failed", "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "listing channels failed")
		return
	}
	slices.Sort(channels)
	h.writeJSON(w, http.StatusOK, map[string]any{"channels": channels, "count": len(channels)})
}

func (h *Handler) ChannelDates(w http.ResponseWriter, r *http.Request) {
	channel := channelParam(r)
	dates, err := h.Catalog.Dates(r.Context(), channel)
	if err != nil {
		logger.FromContext(r.Context()).Error("listing dates failed", "channel", channel, "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "listing dates failed")
		return
	}
	if len(dates) == 0 {
		h.writeError(w, http.StatusNotFound, fmt.Sprintf("no log for %s", channel))
		return
	}
	slices.Sort(dates)
	h.writeJSON(w, http.StatusOK, map[string]any{"channel": channel, "dates": dates})
}

func (h *Handler) ReindexChannel(w http.ResponseWriter, r *http.Request) {
	channel := channelParam(r)
	if channel == "" {
		h.writeError(w, http.StatusBadRequest, "channel is required")
		return
	}
	h.reindex(w, r, func(ctx context.Context) (*reindex.Summary, error) {
		return h.Reindexer.Reindex(ctx, []string{channel})
	})
}

func (h *Handler) ReindexAll(w http.ResponseWriter, r *http.Request) {
	h.reindex(w, r, func(ctx context.Context) (*reindex.Summary, error) {
		return h.Reindexer.ReindexAll(ctx)
	})
}

// reindex runs detached from the request context: a client hanging up must
// not leave a channel half rebuilt.
func (h *Handler) reindex(w http.ResponseWriter, r *http.Request, run func(context.Context) (*reindex.Summary, error)) {
	if h.Reindexer == nil {
		h.writeError(w, http.StatusServiceUnavailable, "reindexing is disabled")
		return
	}
	ctx := context.WithoutCancel(r.Context())
	log := logger.FromContext(ctx)
	start := time.Now()

	summary, err := run(ctx)
	if err != nil {
		log.Error("reindex failed", "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "reindex failed")
		return
	}
	if h.Cache != nil {
		for _, channel := range summary.Succeeded {
			if err := h.Cache.Invalidate(ctx, channel); err != nil {
				log.Warn("cache invalidation after reindex failed", "channel", channel, "error", err)
			}
		}
	}
	if h.Collector != nil {
		h.Collector.Track(analytics.ReindexEvent{
			Type:      analytics.EventReindex,
			Channels:  summary.Succeeded,
			Failed:    len(summary.Failed),
			LatencyMs: time.Since(start).Milliseconds(),
			Timestamp: time.Now().UTC(),
			RequestID: logger.RequestID(ctx),
		})
	}

	status := http.StatusOK
	if !summary.OK() {
		status = http.StatusMultiStatus
	}
	h.writeJSON(w, status, summary)
}

func (h *Handler) ReindexHistory(w http.ResponseWriter, r *http.Request) {
	if h.History == nil || !h.History.Enabled() {
		h.writeError(w, http.StatusServiceUnavailable, "reindex history is disabled")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			h.writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}
	channel := strings.TrimSpace(r.URL.Query().Get("channel"))
	if channel != "" && !strings.HasPrefix(channel, "#") {
		channel = "#" + channel
	}

	runs, err := h.History.Recent(r.Context(), channel, limit)
	if err != nil {
		logger.FromContext(r.Context()).Error("listing reindex history failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "listing reindex history failed")
		return
	}
	if runs == nil {
		runs = []audit.Run{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

type analyzedWord struct {
	Word  string   `json:"word"`
	Codes []string `json:"codes"`
	Error string   `json:"error,omitempty"`
}

// Analyze shows how text is split into words and which codes each word is
// indexed under.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("text")
	if text == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'text' is required")
		return
	}
	words := []analyzedWord{}
	for _, res := range h.Analyzer.Analyze(text) {
		aw := analyzedWord{Word: res.Token, Codes: res.Codes}
		if res.Failed() {
			aw.Error = res.Err.Error()
		}
		if aw.Codes == nil {
			aw.Codes = []string{}
		}
		words = append(words, aw)
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"text": text, "words": words})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.Cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.Cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

// CacheInvalidate drops cached results for ?channel=, or all of them.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.Cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	channel := strings.TrimSpace(r.URL.Query().Get("channel"))
	if channel != "" && !strings.HasPrefix(channel, "#") {
		channel = "#" + channel
	}
	if err := h.Cache.Invalidate(r.Context(), channel); err != nil {
		h.logger.Error("cache invalidation failed", "channel", channel, "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) queryParams(w http.ResponseWriter, r *http.Request) (string, int, bool) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return "", 0, false
	}
	limit := h.DefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return "", 0, false
		}
		limit = min(parsed, h.MaxResults)
	}
	return query, limit, true
}

func outcome(totalHits int) string {
	if totalHits == 0 {
		return "zero_result"
	}
	return "hit"
}

func (h *Handler) observe(result string, start time.Time) {
	if h.Metrics == nil {
		return
	}
	h.Metrics.SearchQueriesTotal.WithLabelValues(result).Inc()
	h.Metrics.SearchLatency.Observe(time.Since(start).Seconds())
}

func (h *Handler) track(ctx context.Context, channels []string, plan *parser.QueryPlan, total, returned int, cacheHit bool, latency time.Duration) {
	if h.Collector == nil {
		return
	}
	eventType := analytics.EventSearch
	switch {
	case cacheHit:
		eventType = analytics.EventCacheHit
	case total == 0:
		eventType = analytics.EventZeroResult
	}
	h.Collector.Track(analytics.SearchEvent{
		Type:      eventType,
		Channels:  channels,
		Query:     plan.RawQuery,
		Words:     plan.Words(),
		Operator:  plan.Type.String(),
		TotalHits: total,
		Returned:  returned,
		LatencyMs: latency.Milliseconds(),
		CacheHit:  cacheHit,
		Timestamp: time.Now().UTC(),
		RequestID: logger.RequestID(ctx),
	})
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
