// Package search provides the research sources the pipeline gathers
// findings from. Each source implements Searcher; Multi fans a query out to
// all of them concurrently and keeps going when individual sources fail.
package search

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"masthead.app/newsroom/internal/model"
	"masthead.app/newsroom/internal/retry"
)

type Searcher interface {
	// Name identifies the source on findings it produced.
	Name() string
	Search(ctx context.Context, query string, maxResults int) ([]model.Finding, error)
}

// TransportRetryPolicy wraps each per-source search call. Search APIs rate
// limit and time out routinely, so a transient failure gets a few quick
// retries before the source is counted as failed for the query.
func TransportRetryPolicy() retry.Policy {
	return retry.Policy{
		Name:        "search",
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		Multiplier:  2,
		Jitter:      true,
	}
}

// Multi queries every configured source concurrently and merges results.
// A failing source is logged and skipped; Multi returns an error only when
// every source fails.
type Multi struct {
	sources   []Searcher
	transport *retry.Executor
}

func NewMulti(transport *retry.Executor, sources ...Searcher) *Multi {
	return &Multi{sources: sources, transport: transport}
}

func (m *Multi) Name() string {
	return "multi"
}

func (m *Multi) Search(ctx context.Context, query string, maxResults int) ([]model.Finding, error) {
	if len(m.sources) == 0 {
		return nil, nil
	}

	type result struct {
		findings []model.Finding
		err      error
		source   string
	}

	results := make([]result, len(m.sources))
	var wg sync.WaitGroup
	for i, src := range m.sources {
		wg.Add(1)
		go func(i int, src Searcher) {
			defer wg.Done()
			findings, err := retry.Execute(ctx, m.transport, func(ctx context.Context) ([]model.Finding, error) {
				return src.Search(ctx, query, maxResults)
			})
			results[i] = result{findings: findings, err: err, source: src.Name()}
		}(i, src)
	}
	wg.Wait()

	var merged []model.Finding
	var lastErr error
	failures := 0
	for _, r := range results {
		if r.err != nil {
			failures++
			lastErr = r.err
			slog.WarnContext(ctx, "search source failed, continuing with others",
				"source", r.source,
				"query", query,
				"error", r.err)
			continue
		}
		merged = append(merged, r.findings...)
	}

	if failures == len(m.sources) {
		return nil, lastErr
	}

	return merged, nil
}
