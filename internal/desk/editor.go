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

type ReviewIssueItem struct {
	Severity string `json:"severity" jsonschema:"enum=critical,enum=high,enum=medium,enum=low" jsonschema_description:"How serious the issue is"`
	Type     string `json:"type" jsonschema_description:"Short category, e.g. structure, clarity, accuracy, citation"`
	Text     string `json:"text" jsonschema_description:"What is wrong and what the revision must change"`
	Location string `json:"location,omitempty" jsonschema_description:"Quoted excerpt or section heading where the issue occurs"`
}

type LineEditItem struct {
	Location   string `json:"location" jsonschema_description:"Exact text to change"`
	Suggestion string `json:"suggestion" jsonschema_description:"Replacement text"`
	Reason     string `json:"reason,omitempty" jsonschema_description:"Why the edit improves the article"`
}

type EditorResponse struct {
	Grade     string            `json:"grade" jsonschema:"enum=A+,enum=A,enum=B,enum=C,enum=D,enum=F" jsonschema_description:"Overall letter grade for the article"`
	Summary   string            `json:"summary" jsonschema_description:"One-paragraph assessment"`
	Issues    []ReviewIssueItem `json:"issues" jsonschema_description:"Problems the revision must address"`
	LineEdits []LineEditItem    `json:"line_edits" jsonschema_description:"Specific wording changes"`
}

var editorSchema = llm.GenerateSchema[EditorResponse]()

// Editor reviews structure, clarity, and overall quality. An article is
// approved at grade A or better.
type Editor struct {
	llm   llm.Client
	retry *retry.Executor
}

func NewEditor(client llm.Client, exec *retry.Executor) *Editor {
	return &Editor{llm: client, retry: exec}
}

func (e *Editor) Role() model.Role {
	return model.RoleEditor
}

const editorSystemPrompt = `You are a demanding senior editor reviewing an article before publication.
Grade the article A+ through F. Only grade A or A+ if it is publishable as-is:
well structured, clear, complete, and free of padding. List every issue the
writer must fix, with severity, and give concrete line edits for weak wording.`

func (e *Editor) Review(ctx context.Context, topic string, version model.DocumentVersion) (model.Verdict, error) {
	prompt := fmt.Sprintf("Topic: %s\n\nArticle (version %d):\n%s", topic, version.Number, version.Text)

	var response EditorResponse
	start := time.Now()
	err := chat(ctx, e.retry, e.llm, llm.Request{
		SystemPrompt: editorSystemPrompt,
		UserPrompt:   prompt,
		SchemaName:   "editor_review",
		Schema:       editorSchema,
		Temperature:  llm.Temp(0.2),
	}, &response)
	if err != nil {
		return model.Verdict{}, fmt.Errorf("editor review: %w", err)
	}

	verdict := model.Verdict{
		ID:            id.New(),
		RunID:         version.RunID,
		VersionNumber: version.Number,
		Role:          model.RoleEditor,
		Grade:         response.Grade,
		CreatedAt:     time.Now(),
	}

	if !validGrade(response.Grade) {
		return malformedVerdict(verdict, fmt.Sprintf("unrecognized grade %q", response.Grade)), nil
	}

	verdict.Approved = response.Grade == "A" || response.Grade == "A+"
	verdict.Issues = convertIssues(model.RoleEditor, response.Issues)
	verdict.LineEdits = convertLineEdits(response.LineEdits)

	slog.InfoContext(ctx, "editor review completed",
		"grade", response.Grade,
		"approved", verdict.Approved,
		"issues", len(verdict.Issues),
		"latency_ms", time.Since(start).Milliseconds())

	return verdict, nil
}

func validGrade(grade string) bool {
	switch grade {
	case "A+", "A", "B", "C", "D", "F":
		return true
	}
	return false
}

// malformedVerdict converts an unusable evaluation into a rejection with a
// single critical issue, so a broken reviewer can never approve a version.
func malformedVerdict(base model.Verdict, reason string) model.Verdict {
	base.Approved = false
	base.Malformed = true
	base.Issues = []model.Issue{{
		Role:     base.Role,
		Severity: model.SeverityCritical,
		Type:     "malformed_evaluation",
		Text:     fmt.Sprintf("%s evaluation was malformed: %s", base.Role, reason),
	}}
	return base
}

func convertIssues(role model.Role, items []ReviewIssueItem) []model.Issue {
	issues := make([]model.Issue, 0, len(items))
	for _, item := range items {
		severity := model.IssueSeverity(item.Severity)
		switch severity {
		case model.SeverityCritical, model.SeverityHigh, model.SeverityMedium, model.SeverityLow:
		default:
			severity = model.SeverityMedium
		}
		issues = append(issues, model.Issue{
			Role:     role,
			Severity: severity,
			Type:     item.Type,
			Text:     item.Text,
			Location: item.Location,
		})
	}
	return issues
}

func convertLineEdits(items []LineEditItem) []model.LineEdit {
	edits := make([]model.LineEdit, 0, len(items))
	for _, item := range items {
		edits = append(edits, model.LineEdit{
			Location:   item.Location,
			Suggestion: item.Suggestion,
			Reason:     item.Reason,
		})
	}
	return edits
}
