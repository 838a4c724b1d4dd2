// Package desk holds the editorial collaborators: the writer that drafts and
// revises, the three reviewers (editor, fact checker, authenticity), the
// research analyst, and the humanizer that finishes approved copy. Each one
// wraps an LLM client with a structured output schema and runs its calls
// through the shared agent retry layer.
package desk

import (
	"context"
	"fmt"
	"strings"
	"time"

	"masthead.app/newsroom/common/llm"
	"masthead.app/newsroom/internal/model"
	"masthead.app/newsroom/internal/retry"
)

// AgentRetryPolicy is the per-call retry layer every collaborator uses.
// Transient LLM failures (rate limits, server errors, network) are retried;
// client errors and context cancellation fail immediately.
func AgentRetryPolicy(maxAttempts int, baseDelay time.Duration) retry.Policy {
	return retry.Policy{
		Name:        "agent",
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		Multiplier:  2,
		Jitter:      true,
		Classify:    llm.IsRetryable,
	}
}

// chat issues one structured completion through the retry executor.
func chat(ctx context.Context, exec *retry.Executor, client llm.Client, req llm.Request, result any) error {
	_, err := retry.Execute(ctx, exec, func(ctx context.Context) (*llm.Response, error) {
		return client.Chat(ctx, req, result)
	})
	return err
}

func formatFindings(findings []model.Finding) string {
	if len(findings) == 0 {
		return "(no research findings)"
	}

	var b strings.Builder
	for i, f := range findings {
		fmt.Fprintf(&b, "%d. %s\n", i+1, f.Title)
		if f.URL != "" {
			fmt.Fprintf(&b, "   Source: %s\n", f.URL)
		}
		fmt.Fprintf(&b, "   %s\n", f.Content)
	}
	return b.String()
}

func formatIssues(issues []model.Issue) string {
	if len(issues) == 0 {
		return "(no issues)"
	}

	var b strings.Builder
	for i, issue := range issues {
		fmt.Fprintf(&b, "%d. [%s/%s] %s", i+1, issue.Severity, issue.Role, issue.Text)
		if issue.Location != "" {
			fmt.Fprintf(&b, " (at: %s)", issue.Location)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatLineEdits(edits []model.LineEdit) string {
	if len(edits) == 0 {
		return "(no line edits)"
	}

	var b strings.Builder
	for i, e := range edits {
		fmt.Fprintf(&b, "%d. At %q: %s", i+1, e.Location, e.Suggestion)
		if e.Reason != "" {
			fmt.Fprintf(&b, " (%s)", e.Reason)
		}
		b.WriteString("\n")
	}
	return b.String()
}
