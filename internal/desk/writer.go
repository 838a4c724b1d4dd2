package desk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"masthead.app/newsroom/common/llm"
	"masthead.app/newsroom/internal/model"
	"masthead.app/newsroom/internal/retry"
)

type DraftResponse struct {
	Article string `json:"article" jsonschema_description:"Complete article text in markdown. Cite sources inline as [Source: URL]"`
}

var draftSchema = llm.GenerateSchema[DraftResponse]()

// Writer produces the initial draft and every subsequent revision.
type Writer struct {
	llm   llm.Client
	retry *retry.Executor
}

func NewWriter(client llm.Client, exec *retry.Executor) *Writer {
	return &Writer{llm: client, retry: exec}
}

const writerSystemPrompt = `You are a senior staff writer producing long-form articles.
Write clear, factual, well-sourced prose. Ground every substantive claim in
the research findings you are given and cite the supporting source inline
as [Source: URL] immediately after the claim. Do not invent sources.
Return the full article in markdown.`

func (w *Writer) GenerateDraft(ctx context.Context, topic string, research *model.ResearchState) (string, error) {
	prompt := fmt.Sprintf(`Write an article on the following topic.

Topic: %s

Research findings:
%s`, topic, formatFindings(research.Findings))

	var response DraftResponse
	start := time.Now()
	err := chat(ctx, w.retry, w.llm, llm.Request{
		SystemPrompt: writerSystemPrompt,
		UserPrompt:   prompt,
		SchemaName:   "draft_response",
		Schema:       draftSchema,
		Temperature:  llm.Temp(0.7),
	}, &response)
	if err != nil {
		return "", fmt.Errorf("generating draft: %w", err)
	}

	if response.Article == "" {
		return "", fmt.Errorf("generating draft: empty article")
	}

	slog.InfoContext(ctx, "draft generated",
		"topic", topic,
		"chars", len(response.Article),
		"latency_ms", time.Since(start).Milliseconds())

	return response.Article, nil
}

// Revise rewrites the draft to address the merged reviewer issues. Line
// edits are applied where given; new research findings are available for
// claims that failed fact checking.
func (w *Writer) Revise(ctx context.Context, topic, draft string, issues []model.Issue, lineEdits []model.LineEdit, research *model.ResearchState) (string, error) {
	prompt := fmt.Sprintf(`Revise the article below to address the reviewer feedback.
Fix every issue listed, apply the line edits, and keep citations as [Source: URL].
Preserve the parts of the article that were not flagged.

Topic: %s

Current article:
%s

Issues to fix (highest priority first):
%s

Line edits:
%s

Research findings:
%s`, topic, draft, formatIssues(issues), formatLineEdits(lineEdits), formatFindings(research.Findings))

	var response DraftResponse
	start := time.Now()
	err := chat(ctx, w.retry, w.llm, llm.Request{
		SystemPrompt: writerSystemPrompt,
		UserPrompt:   prompt,
		SchemaName:   "draft_response",
		Schema:       draftSchema,
		Temperature:  llm.Temp(0.5),
	}, &response)
	if err != nil {
		return "", fmt.Errorf("revising draft: %w", err)
	}

	if response.Article == "" {
		return "", fmt.Errorf("revising draft: empty article")
	}

	slog.InfoContext(ctx, "draft revised",
		"topic", topic,
		"issues", len(issues),
		"chars", len(response.Article),
		"latency_ms", time.Since(start).Milliseconds())

	return response.Article, nil
}
