// Package review fans a document version out to every registered reviewer
// and folds the verdicts into a single decision for the feedback router.
package review

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"masthead.app/newsroom/common/id"
	"masthead.app/newsroom/common/logger"
	"masthead.app/newsroom/internal/model"
)

// Reviewer is one editorial role's evaluation of a document version.
// Implementations must be safe for concurrent use.
type Reviewer interface {
	Role() model.Role
	Review(ctx context.Context, topic string, version model.DocumentVersion) (model.Verdict, error)
}

type Aggregator struct {
	reviewers      []Reviewer
	timeoutPerRole time.Duration
}

func NewAggregator(timeoutPerRole time.Duration, reviewers ...Reviewer) *Aggregator {
	if timeoutPerRole <= 0 {
		timeoutPerRole = 5 * time.Minute
	}
	return &Aggregator{reviewers: reviewers, timeoutPerRole: timeoutPerRole}
}

// Evaluate runs every reviewer concurrently against the version and merges
// the results. Approval requires every role to approve. A reviewer that
// fails or times out contributes a rejection with a critical issue, never an
// approval. Evaluate is called at most once per version; re-review of an
// already-judged version is the caller's invariant to hold.
func (a *Aggregator) Evaluate(ctx context.Context, topic string, version model.DocumentVersion) (model.AggregatedDecision, []model.Verdict, error) {
	if len(a.reviewers) == 0 {
		return model.AggregatedDecision{}, nil, fmt.Errorf("no reviewers registered")
	}

	start := time.Now()
	verdicts := make([]model.Verdict, len(a.reviewers))

	var wg sync.WaitGroup
	for i, r := range a.reviewers {
		wg.Add(1)
		go func(i int, r Reviewer) {
			defer wg.Done()

			roleCtx, cancel := context.WithTimeout(ctx, a.timeoutPerRole)
			defer cancel()
			roleCtx = logger.WithLogFields(roleCtx, logger.LogFields{Role: logger.Ptr(string(r.Role()))})

			verdict, err := r.Review(roleCtx, topic, version)
			if err != nil {
				slog.ErrorContext(roleCtx, "reviewer failed, treating as rejection",
					"error", err)
				verdict = failedVerdict(r.Role(), version, err)
			}
			verdicts[i] = verdict
		}(i, r)
	}
	wg.Wait()

	decision := Fold(version.Number, verdicts)

	slog.InfoContext(ctx, "review cycle aggregated",
		"version", version.Number,
		"all_approved", decision.AllApproved,
		"merged_issues", len(decision.MergedIssues),
		"needs_research", decision.NeedsResearch,
		"duration_ms", time.Since(start).Milliseconds())

	return decision, verdicts, nil
}

func failedVerdict(role model.Role, version model.DocumentVersion, err error) model.Verdict {
	return model.Verdict{
		ID:            id.New(),
		RunID:         version.RunID,
		VersionNumber: version.Number,
		Role:          role,
		Approved:      false,
		Malformed:     true,
		Issues: []model.Issue{{
			Role:     role,
			Severity: model.SeverityCritical,
			Type:     "evaluation_failed",
			Text:     fmt.Sprintf("%s evaluation failed: %v", role, err),
		}},
		CreatedAt: time.Now(),
	}
}

// Fold computes the aggregate decision from a version's verdicts. It is
// deterministic in the verdict set, so resumed runs re-derive the same
// decision from persisted verdicts.
func Fold(versionNumber int, verdicts []model.Verdict) model.AggregatedDecision {
	decision := model.AggregatedDecision{
		VersionNumber: versionNumber,
		AllApproved:   len(verdicts) > 0,
	}

	var all []model.Issue
	for _, v := range verdicts {
		if !v.Approved {
			decision.AllApproved = false
		}
		all = append(all, v.Issues...)

		if v.Role == model.RoleFactChecker {
			if v.SourceIssue {
				decision.NeedsResearch = true
			}
			if v.Score != nil && *v.Score < 80 && !v.Approved {
				decision.NeedsResearch = true
			}
		}
	}

	decision.MergedIssues = MergeIssues(all)

	if decision.NeedsResearch {
		for _, issue := range decision.MergedIssues {
			if isResearchGap(issue) {
				decision.ResearchGaps = append(decision.ResearchGaps, issue.Text)
			}
		}
	}

	return decision
}

// isResearchGap selects the merged issues the augmentation pass should
// research. Fact-checker source and citation problems count only at critical
// or high severity; any critical fact-checker issue counts. Editor notes
// count when their text asks for sourcing work rather than a rewrite.
func isResearchGap(issue model.Issue) bool {
	switch issue.Role {
	case model.RoleFactChecker:
		if issue.Severity == model.SeverityCritical {
			return true
		}
		return (issue.Type == "source" || issue.Type == "citation") &&
			issue.Severity == model.SeverityHigh
	case model.RoleEditor:
		text := strings.ToLower(issue.Text)
		for _, marker := range []string{"research", "source", "citation", "evidence"} {
			if strings.Contains(text, marker) {
				return true
			}
		}
	}
	return false
}

// MergeIssues deduplicates issues from all roles and orders them so the
// revision fixes the most damaging problems first. Duplicates are detected
// by normalized text; the more severe copy wins.
func MergeIssues(issues []model.Issue) []model.Issue {
	byText := make(map[string]model.Issue, len(issues))
	order := make([]string, 0, len(issues))

	for _, issue := range issues {
		key := normalizeIssueText(issue.Text)
		if key == "" {
			continue
		}
		existing, ok := byText[key]
		if !ok {
			byText[key] = issue
			order = append(order, key)
			continue
		}
		if issue.Severity.Rank() < existing.Severity.Rank() {
			byText[key] = issue
		}
	}

	merged := make([]model.Issue, 0, len(byText))
	for _, key := range order {
		merged = append(merged, byText[key])
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return mergeRank(merged[i]) < mergeRank(merged[j])
	})

	return merged
}

func normalizeIssueText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// mergeRank orders merged issues: factual correctness first, then voice
// problems that would block publication, then editorial quality, then the
// long tail by severity.
func mergeRank(issue model.Issue) int {
	type key struct {
		role     model.Role
		severity model.IssueSeverity
	}
	ranks := map[key]int{
		{model.RoleFactChecker, model.SeverityCritical}:  0,
		{model.RoleAuthenticity, model.SeverityCritical}: 1,
		{model.RoleAuthenticity, model.SeverityHigh}:     2,
		{model.RoleEditor, model.SeverityCritical}:       3,
		{model.RoleFactChecker, model.SeverityHigh}:      4,
		{model.RoleAuthenticity, model.SeverityMedium}:   5,
		{model.RoleEditor, model.SeverityHigh}:           6,
		{model.RoleFactChecker, model.SeverityMedium}:    7,
		{model.RoleEditor, model.SeverityMedium}:         8,
		{model.RoleFactChecker, model.SeverityLow}:       9,
		{model.RoleAuthenticity, model.SeverityLow}:      10,
		{model.RoleEditor, model.SeverityLow}:            11,
	}

	if r, ok := ranks[key{issue.Role, issue.Severity}]; ok {
		return r
	}
	return 12 + issue.Severity.Rank()
}
