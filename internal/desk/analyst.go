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

type QuestionsResponse struct {
	Questions []string `json:"questions" jsonschema_description:"Concrete, searchable research questions, most important first"`
}

type AssessmentResponse struct {
	Confidence float64  `json:"confidence" jsonschema_description:"0.0-1.0 how completely the findings cover the topic"`
	Gaps       []string `json:"gaps" jsonschema_description:"Specific aspects of the topic the findings do not cover"`
}

var (
	questionsSchema  = llm.GenerateSchema[QuestionsResponse]()
	assessmentSchema = llm.GenerateSchema[AssessmentResponse]()
)

// Analyst drives the research loop: it poses the questions each iteration
// should answer and assesses how well the accumulated findings cover the
// topic.
type Analyst struct {
	llm   llm.Client
	retry *retry.Executor
}

func NewAnalyst(client llm.Client, exec *retry.Executor) *Analyst {
	return &Analyst{llm: client, retry: exec}
}

const questionsSystemPrompt = `You are a research analyst planning the next round of searches for an
article. Given the topic, what has been found so far, and the known gaps,
produce the search questions that would close the biggest gaps. Questions
must be concrete and independently searchable. No more than five.`

const assessmentSystemPrompt = `You are a research analyst judging whether enough material has been
gathered to write an authoritative article. Consider coverage of the topic,
source diversity, and whether key claims can be supported. Report confidence
0.0-1.0 and list the specific gaps that remain.`

func (a *Analyst) Questions(ctx context.Context, topic string, state *model.ResearchState, gaps []string) ([]string, error) {
	prompt := fmt.Sprintf(`Topic: %s

Findings so far:
%s

Known gaps:
%s`, topic, formatFindings(state.Findings), formatGaps(gaps))

	var response QuestionsResponse
	err := chat(ctx, a.retry, a.llm, llm.Request{
		SystemPrompt: questionsSystemPrompt,
		UserPrompt:   prompt,
		SchemaName:   "research_questions",
		Schema:       questionsSchema,
		Temperature:  llm.Temp(0.4),
	}, &response)
	if err != nil {
		return nil, fmt.Errorf("generating research questions: %w", err)
	}

	if len(response.Questions) > 5 {
		response.Questions = response.Questions[:5]
	}

	return response.Questions, nil
}

func (a *Analyst) Assess(ctx context.Context, topic string, state *model.ResearchState) (float64, []string, error) {
	prompt := fmt.Sprintf("Topic: %s\n\nFindings (%d total, %d distinct sources):\n%s",
		topic, len(state.Findings), state.SourceDiversity(), formatFindings(state.Findings))

	var response AssessmentResponse
	start := time.Now()
	err := chat(ctx, a.retry, a.llm, llm.Request{
		SystemPrompt: assessmentSystemPrompt,
		UserPrompt:   prompt,
		SchemaName:   "research_assessment",
		Schema:       assessmentSchema,
		Temperature:  llm.Temp(0.1),
	}, &response)
	if err != nil {
		return 0, nil, fmt.Errorf("assessing research: %w", err)
	}

	if response.Confidence < 0 {
		response.Confidence = 0
	}
	if response.Confidence > 1 {
		response.Confidence = 1
	}

	slog.DebugContext(ctx, "research assessed",
		"confidence", response.Confidence,
		"gaps", len(response.Gaps),
		"latency_ms", time.Since(start).Milliseconds())

	return response.Confidence, response.Gaps, nil
}

func formatGaps(gaps []string) string {
	if len(gaps) == 0 {
		return "(none identified yet)"
	}
	var b string
	for _, g := range gaps {
		b += "- " + g + "\n"
	}
	return b
}
