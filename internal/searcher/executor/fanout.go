package executor

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/chat"
	"github.com/Adithya-Monish-Kumar-K/chatlog-search/internal/searcher/parser"
)

// ChannelHit is a Hit tagged with the channel it came from.
type ChannelHit struct {
	Channel string `json:"channel"`
	Hit
}

type MultiResult struct {
	Query     string       `json:"query"`
	Operator  string       `json:"operator"`
	Channels  []string     `json:"channels"`
	TotalHits int          `json:"total_hits"`
	Results   []ChannelHit `json:"results"`
	Dropped   []string     `json:"dropped,omitempty"`
}

// ExecuteAcross runs plan against each channel concurrently and merges the
// hits newest first. Message ids share one counter across channels, so the
// merge order is global. A failure in any channel fails the whole search.
func (e *Executor) ExecuteAcross(ctx context.Context, channels []string, plan *parser.QueryPlan, limit int) (*MultiResult, error) {
	channels = slices.Compact(slices.Sorted(slices.Values(channels)))
	perChannel := make([]*SearchResult, len(channels))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, channel := range channels {
		g.Go(func() error {
			res, err := e.Execute(gctx, channel, plan, limit)
			if err != nil {
				return fmt.Errorf("channel %s: %w", channel, err)
			}
			perChannel[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := &MultiResult{
		Query:    plan.RawQuery,
		Operator: plan.Type.String(),
		Channels: channels,
		Results:  []ChannelHit{},
		Dropped:  plan.Dropped,
	}
	for _, res := range perChannel {
		merged.TotalHits += res.TotalHits
		for _, hit := range res.Results {
			merged.Results = append(merged.Results, ChannelHit{Channel: res.Channel, Hit: hit})
		}
	}
	slices.SortStableFunc(merged.Results, func(a, b ChannelHit) int {
		return chat.CompareIDs(b.ID, a.ID)
	})
	if limit > 0 && len(merged.Results) > limit {
		merged.Results = merged.Results[:limit]
	}
	return merged, nil
}
