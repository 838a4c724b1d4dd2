package desk

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"masthead.app/newsroom/common/id"
	"masthead.app/newsroom/common/llm"
	"masthead.app/newsroom/internal/model"
	"masthead.app/newsroom/internal/retry"
)

type FactCheckResponse struct {
	VerificationScore float64           `json:"verification_score" jsonschema_description:"0-100 confidence that the article's claims are accurate and properly sourced"`
	Summary           string            `json:"summary" jsonschema_description:"One-paragraph assessment of factual accuracy"`
	Issues            []ReviewIssueItem `json:"issues" jsonschema_description:"Factual problems: wrong claims, unsupported claims, missing or broken citations"`
}

var factCheckSchema = llm.GenerateSchema[FactCheckResponse]()

var sourceURLPattern = regexp.MustCompile(`\[Source:\s*(https?://[^\]\s]+)\]`)

const factCheckApprovalScore = 80

// FactChecker verifies claims and citations. A version passes when the
// verification score reaches 80 and there are no critical issues. Cited
// URLs are probed over HTTP, with results cached across versions since the
// same sources reappear on every revision.
type FactChecker struct {
	llm      llm.Client
	retry    *retry.Executor
	urlCache *lru.Cache[string, bool]
	http     *http.Client
}

func NewFactChecker(client llm.Client, exec *retry.Executor) (*FactChecker, error) {
	cache, err := lru.New[string, bool](512)
	if err != nil {
		return nil, fmt.Errorf("creating url cache: %w", err)
	}

	return &FactChecker{
		llm:      client,
		retry:    exec,
		urlCache: cache,
		http:     &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (f *FactChecker) Role() model.Role {
	return model.RoleFactChecker
}

const factCheckerSystemPrompt = `You are a rigorous fact checker reviewing an article before publication.
Check every substantive claim against the research findings and the article's
own citations. Score verification 0-100: 100 means every claim is accurate
and properly sourced. Flag wrong claims as critical, unsupported claims as
high, and weak or imprecise sourcing as medium. Mark citation problems with
type "citation" and source problems with type "source".`

func (f *FactChecker) Review(ctx context.Context, topic string, version model.DocumentVersion) (model.Verdict, error) {
	urls := extractSourceURLs(version.Text)
	broken := f.verifyURLs(ctx, urls)

	prompt := fmt.Sprintf("Topic: %s\n\nArticle (version %d):\n%s\n\nURL verification results:\n%s",
		topic, version.Number, version.Text, formatURLChecks(urls, broken))

	var response FactCheckResponse
	start := time.Now()
	err := chat(ctx, f.retry, f.llm, llm.Request{
		SystemPrompt: factCheckerSystemPrompt,
		UserPrompt:   prompt,
		SchemaName:   "fact_check_review",
		Schema:       factCheckSchema,
		Temperature:  llm.Temp(0.1),
	}, &response)
	if err != nil {
		return model.Verdict{}, fmt.Errorf("fact check review: %w", err)
	}

	verdict := model.Verdict{
		ID:            id.New(),
		RunID:         version.RunID,
		VersionNumber: version.Number,
		Role:          model.RoleFactChecker,
		CreatedAt:     time.Now(),
	}

	if response.VerificationScore < 0 || response.VerificationScore > 100 {
		return malformedVerdict(verdict, fmt.Sprintf("verification score %.1f out of range", response.VerificationScore)), nil
	}

	score := response.VerificationScore
	verdict.Score = &score
	verdict.Issues = convertIssues(model.RoleFactChecker, response.Issues)

	// Broken citations are issues regardless of what the model reported.
	for _, url := range broken {
		verdict.Issues = append(verdict.Issues, model.Issue{
			Role:     model.RoleFactChecker,
			Severity: model.SeverityHigh,
			Type:     "source",
			Text:     fmt.Sprintf("cited source is unreachable: %s", url),
			Location: url,
		})
	}

	critical := 0
	for _, issue := range verdict.Issues {
		if issue.Severity == model.SeverityCritical {
			critical++
		}
		if issue.Type == "source" || issue.Type == "citation" {
			if issue.Severity == model.SeverityCritical || issue.Severity == model.SeverityHigh {
				verdict.SourceIssue = true
			}
		}
	}

	verdict.Approved = score >= factCheckApprovalScore && critical == 0

	slog.InfoContext(ctx, "fact check completed",
		"score", score,
		"approved", verdict.Approved,
		"issues", len(verdict.Issues),
		"broken_urls", len(broken),
		"latency_ms", time.Since(start).Milliseconds())

	return verdict, nil
}

func extractSourceURLs(text string) []string {
	matches := sourceURLPattern.FindAllStringSubmatch(text, -1)
	seen := make(map[string]bool, len(matches))
	urls := make([]string, 0, len(matches))
	for _, m := range matches {
		url := strings.TrimSpace(m[1])
		if !seen[url] {
			seen[url] = true
			urls = append(urls, url)
		}
	}
	return urls
}

// verifyURLs probes each URL and returns the unreachable ones. Results are
// cached so repeated reviews of revised versions skip the network.
func (f *FactChecker) verifyURLs(ctx context.Context, urls []string) []string {
	var broken []string
	for _, url := range urls {
		if ok, cached := f.urlCache.Get(url); cached {
			if !ok {
				broken = append(broken, url)
			}
			continue
		}

		ok := f.probe(ctx, url)
		f.urlCache.Add(url, ok)
		if !ok {
			broken = append(broken, url)
		}
	}
	return broken
}

func (f *FactChecker) probe(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}

	resp, err := f.http.Do(req)
	if err != nil {
		slog.DebugContext(ctx, "url probe failed", "url", url, "error", err)
		return false
	}
	defer resp.Body.Close()

	// Some hosts reject HEAD outright; treat only 4xx (except 405) as broken.
	if resp.StatusCode == http.StatusMethodNotAllowed {
		return true
	}
	return resp.StatusCode < 400
}

func formatURLChecks(urls, broken []string) string {
	if len(urls) == 0 {
		return "(no cited URLs)"
	}

	brokenSet := make(map[string]bool, len(broken))
	for _, u := range broken {
		brokenSet[u] = true
	}

	var b strings.Builder
	for _, u := range urls {
		status := "reachable"
		if brokenSet[u] {
			status = "UNREACHABLE"
		}
		fmt.Fprintf(&b, "- %s: %s\n", u, status)
	}
	return b.String()
}
