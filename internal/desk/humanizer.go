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

type HumanizeResponse struct {
	Article string `json:"article" jsonschema_description:"The rewritten article in markdown, with all [Source: URL] citations preserved"`
}

var humanizeSchema = llm.GenerateSchema[HumanizeResponse]()

// Humanizer applies the finishing passes to an approved article: first a
// voice pass that loosens machine-flat prose, then a layout pass that fixes
// headings, paragraph breaks, and citation placement. Humanize must run
// before Layout so the layout pass formats the final wording.
type Humanizer struct {
	llm   llm.Client
	retry *retry.Executor
}

func NewHumanizer(client llm.Client, exec *retry.Executor) *Humanizer {
	return &Humanizer{llm: client, retry: exec}
}

const humanizeSystemPrompt = `You polish approved articles so they read like a skilled human wrote them.
Vary sentence rhythm, cut formulaic transitions and stock phrases, and let
the writer's voice through. Do not change facts, claims, structure, or any
[Source: URL] citation. Return the full article.`

const layoutSystemPrompt = `You finalize article layout for publication. Normalize heading levels,
break up walls of text, place [Source: URL] citations at the end of the
sentence they support, and ensure consistent markdown formatting. Do not
change wording beyond what layout requires. Return the full article.`

func (h *Humanizer) Humanize(ctx context.Context, topic string, version model.DocumentVersion) (string, error) {
	return h.rewrite(ctx, "humanize", humanizeSystemPrompt, topic, version, llm.Temp(0.8))
}

func (h *Humanizer) Layout(ctx context.Context, topic string, version model.DocumentVersion) (string, error) {
	return h.rewrite(ctx, "layout", layoutSystemPrompt, topic, version, llm.Temp(0.1))
}

func (h *Humanizer) rewrite(ctx context.Context, pass, systemPrompt, topic string, version model.DocumentVersion, temp *float64) (string, error) {
	prompt := fmt.Sprintf("Topic: %s\n\nArticle:\n%s", topic, version.Text)

	var response HumanizeResponse
	start := time.Now()
	err := chat(ctx, h.retry, h.llm, llm.Request{
		SystemPrompt: systemPrompt,
		UserPrompt:   prompt,
		SchemaName:   pass + "_response",
		Schema:       humanizeSchema,
		Temperature:  temp,
	}, &response)
	if err != nil {
		return "", fmt.Errorf("%s pass: %w", pass, err)
	}

	if response.Article == "" {
		return "", fmt.Errorf("%s pass: empty article", pass)
	}

	slog.InfoContext(ctx, "finishing pass completed",
		"pass", pass,
		"chars", len(response.Article),
		"latency_ms", time.Since(start).Milliseconds())

	return response.Article, nil
}
