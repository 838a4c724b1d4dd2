package desk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"masthead.app/newsroom/common/id"
	"masthead.app/newsroom/common/llm"
	"masthead.app/newsroom/internal/model"
	"masthead.app/newsroom/internal/retry"
)

type AuthenticityResponse struct {
	Score    float64           `json:"score" jsonschema_description:"0-100 how natural and human the prose reads; 100 is indistinguishable from a skilled human writer"`
	Summary  string            `json:"summary" jsonschema_description:"One-paragraph assessment of voice and style"`
	Patterns []ReviewIssueItem `json:"patterns" jsonschema_description:"Detected machine-writing patterns, with the offending text in location"`
}

var authenticitySchema = llm.GenerateSchema[AuthenticityResponse]()

const authenticityApprovalScore = 75

// Authenticity checks that the prose reads like a human wrote it. A version
// passes at score 75 or above with no high-severity pattern findings.
type Authenticity struct {
	llm   llm.Client
	retry *retry.Executor
}

func NewAuthenticity(client llm.Client, exec *retry.Executor) *Authenticity {
	return &Authenticity{llm: client, retry: exec}
}

func (a *Authenticity) Role() model.Role {
	return model.RoleAuthenticity
}

const authenticitySystemPrompt = `You review article prose for machine-writing tells: formulaic transitions,
hedged non-statements, repetitive sentence rhythm, stock phrases ("delve",
"in today's fast-paced world"), and lists dressed up as paragraphs. Score
0-100 for how naturally human the writing reads. Report each detected
pattern with the offending excerpt; rate pervasive patterns high severity,
isolated ones medium or low.`

func (a *Authenticity) Review(ctx context.Context, topic string, version model.DocumentVersion) (model.Verdict, error) {
	prompt := fmt.Sprintf("Topic: %s\n\nArticle (version %d):\n%s", topic, version.Number, version.Text)

	var response AuthenticityResponse
	start := time.Now()
	err := chat(ctx, a.retry, a.llm, llm.Request{
		SystemPrompt: authenticitySystemPrompt,
		UserPrompt:   prompt,
		SchemaName:   "authenticity_review",
		Schema:       authenticitySchema,
		Temperature:  llm.Temp(0.2),
	}, &response)
	if err != nil {
		return model.Verdict{}, fmt.Errorf("authenticity review: %w", err)
	}

	verdict := model.Verdict{
		ID:            id.New(),
		RunID:         version.RunID,
		VersionNumber: version.Number,
		Role:          model.RoleAuthenticity,
		CreatedAt:     time.Now(),
	}

	if response.Score < 0 || response.Score > 100 {
		return malformedVerdict(verdict, fmt.Sprintf("score %.1f out of range", response.Score)), nil
	}

	score := response.Score
	verdict.Score = &score
	verdict.Issues = convertIssues(model.RoleAuthenticity, response.Patterns)

	severe := 0
	for _, issue := range verdict.Issues {
		if issue.Severity == model.SeverityCritical || issue.Severity == model.SeverityHigh {
			severe++
		}
	}
	verdict.Approved = score >= authenticityApprovalScore && severe == 0

	slog.InfoContext(ctx, "authenticity review completed",
		"score", score,
		"approved", verdict.Approved,
		"patterns", len(verdict.Issues),
		"latency_ms", time.Since(start).Milliseconds())

	return verdict, nil
}
