package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/chat"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/searcher/parser"
)

// Index resolves phonetic codes to message ids.
type Index interface {
	CodesMessages(ctx context.Context, channel string, codes []string) ([]string, error)
}

// Messages loads log entries by id.
type Messages interface {
	Get(ctx context.Context, channel string, ids ...string) (map[string]chat.Event, error)
}

// Hit is one matching log entry.
type Hit struct {
	ID        string      `json:"id"`
	Source    string      `json:"source"`
	Action    chat.Action `json:"action"`
	Message   string      `json:"message"`
	CreatedAt time.Time   `json:"created_at"`
}

type SearchResult struct {
	Channel   string         `json:"channel"`
	Query     string         `json:"query"`
	Operator  string         `json:"operator"`
	TotalHits int            `json:"total_hits"`
	Results   []Hit          `json:"results"`
	TermStats map[string]int `json:"term_stats"`
	Dropped   []string       `json:"dropped,omitempty"`
}

type Executor struct {
	index    Index
	messages Messages
	logger   *slog.Logger
}

func New(index Index, messages Messages) *Executor {
	return &Executor{
		index:    index,
		messages: messages,
		logger:   slog.Default().With("component", "query-executor"),
	}
}

// Execute runs plan against channel and returns up to limit hits, newest
// first. Results are unranked.
func (e *Executor) Execute(ctx context.Context, channel string, plan *parser.QueryPlan, limit int) (*SearchResult, error) {
	result := &SearchResult{
		Channel:   channel,
		Query:     plan.RawQuery,
		Operator:  plan.Type.String(),
		Results:   []Hit{},
		TermStats: map[string]int{},
		Dropped:   plan.Dropped,
	}
	if len(plan.Terms) == 0 {
		return result, nil
	}

	idsPerTerm := make(map[string]map[string]struct{}, len(plan.Terms))
	for _, term := range plan.Terms {
		if _, seen := idsPerTerm[term.Word]; seen {
			continue
		}
		ids, err := e.index.CodesMessages(ctx, channel, term.Codes)
		if err != nil {
			return nil, fmt.Errorf("searching term %q: %w", term.Word, err)
		}
		idsPerTerm[term.Word] = toSet(ids)
		result.TermStats[term.Word] = len(ids)
	}

	var candidates map[string]struct{}
	switch plan.Type {
	case parser.QueryOR:
		candidates = union(idsPerTerm)
	default:
		candidates = intersect(idsPerTerm)
	}
	for _, term := range plan.ExcludeTerms {
		ids, err := e.index.CodesMessages(ctx, channel, term.Codes)
		if err != nil {
			return nil, fmt.Errorf("searching excluded term %q: %w", term.Word, err)
		}
		for _, id := range ids {
			delete(candidates, id)
		}
	}
	result.TotalHits = len(candidates)

	ids := merger.Newest(candidates, limit)
	events, err := e.messages.Get(ctx, channel, ids...)
	if err != nil {
		return nil, fmt.Errorf("loading %d hits: %w", len(ids), err)
	}
	for _, id := range ids {
		event, ok := events[id]
		if !ok {
			// indexed but gone from the log; a reindex will drop it
			e.logger.Debug("hit missing from log", "channel", channel, "message_id", id)
			continue
		}
		text, _ := event.Text()
		result.Results = append(result.Results, Hit{
			ID:        id,
			Source:    event.Source,
			Action:    event.Action,
			Message:   text,
			CreatedAt: event.CreatedAt(),
		})
	}

	e.logger.Info("query executed",
		"channel", channel,
		"query", plan.RawQuery,
		"terms", plan.Words(),
		"operator", result.Operator,
		"candidates", len(candidates),
		"results", len(result.Results),
	)
	return result, nil
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func intersect(idsPerTerm map[string]map[string]struct{}) map[string]struct{} {
	if len(idsPerTerm) == 0 {
		return make(map[string]struct{})
	}
	var shortestTerm string
	shortestLen := int(^uint(0) >> 1)
	for term, ids := range idsPerTerm {
		if len(ids) < shortestLen {
			shortestLen = len(ids)
			shortestTerm = term
		}
	}
	candidates := make(map[string]struct{}, shortestLen)
	for id := range idsPerTerm[shortestTerm] {
		candidates[id] = struct{}{}
	}
	for term, ids := range idsPerTerm {
		if term == shortestTerm {
			continue
		}
		for id := range candidates {
			if _, ok := ids[id]; !ok {
				delete(candidates, id)
			}
		}
	}
	return candidates
}

func union(idsPerTerm map[string]map[string]struct{}) map[string]struct{} {
	result := make(map[string]struct{})
	for _, ids := range idsPerTerm {
		for id := range ids {
			result[id] = struct{}{}
		}
	}
	return result
}
