// Package render converts finished markdown articles to publishable HTML.
// Inline [Source: URL] citations become numbered footnotes.
package render

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var citationPattern = regexp.MustCompile(`\[Source:\s*(https?://[^\]\s]+)\]`)

type Renderer struct {
	md goldmark.Markdown
}

func New() *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM, extension.Footnote),
		),
	}
}

// ToHTML renders the article. Each distinct cited URL gets one footnote;
// repeated citations of the same source share a number.
func (r *Renderer) ToHTML(markdown string) (string, error) {
	prepared := Footnote(markdown)

	var buf bytes.Buffer
	if err := r.md.Convert([]byte(prepared), &buf); err != nil {
		return "", fmt.Errorf("converting markdown: %w", err)
	}
	return buf.String(), nil
}

// Footnote rewrites inline [Source: URL] citations as markdown footnote
// references and appends the footnote definitions. Text without citations
// passes through unchanged.
func Footnote(markdown string) string {
	numbers := make(map[string]int)
	var order []string

	body := citationPattern.ReplaceAllStringFunc(markdown, func(match string) string {
		url := strings.TrimSpace(citationPattern.FindStringSubmatch(match)[1])
		n, ok := numbers[url]
		if !ok {
			n = len(order) + 1
			numbers[url] = n
			order = append(order, url)
		}
		return fmt.Sprintf("[^%d]", n)
	})

	if len(order) == 0 {
		return markdown
	}

	var b strings.Builder
	b.WriteString(strings.TrimRight(body, "\n"))
	b.WriteString("\n\n")
	for i, url := range order {
		fmt.Fprintf(&b, "[^%d]: %s\n", i+1, url)
	}
	return b.String()
}
