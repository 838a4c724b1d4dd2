package search

import (
	"context"
	"time"

	"masthead.app/newsroom/common/arangodb"
	"masthead.app/newsroom/internal/model"
)

// KnowledgeBase searches the shared ArangoDB knowledge collection. It covers
// background material ingested from previous runs, so common topics resolve
// without a web round trip.
type KnowledgeBase struct {
	db arangodb.Client
}

func NewKnowledgeBase(db arangodb.Client) *KnowledgeBase {
	return &KnowledgeBase{db: db}
}

func (k *KnowledgeBase) Name() string {
	return "knowledge_base"
}

func (k *KnowledgeBase) Search(ctx context.Context, query string, maxResults int) ([]model.Finding, error) {
	chunks, err := k.db.SearchKnowledge(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}

	findings := make([]model.Finding, 0, len(chunks))
	now := time.Now()
	for _, c := range chunks {
		findings = append(findings, model.Finding{
			Source:     k.Name(),
			Title:      c.Title,
			URL:        c.URL,
			Content:    c.Content,
			GatheredAt: now,
		})
	}

	return findings, nil
}
