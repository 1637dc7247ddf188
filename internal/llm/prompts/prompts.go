package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/smartquiz/internal/model"
)

// MaxSummaryRunes caps the summary length embedded into a prompt.
const MaxSummaryRunes = 12000

//go:embed templates/*.txt
var templateFS embed.FS

var summaryTagRegex = regexp.MustCompile(`(?i)</?\s*summary\b[^>]*>`)

var (
	loadOnce  sync.Once
	loadErr   error
	templates map[model.OutputFormat]*template.Template
)

// QuizData holds template data for quiz generation prompts.
type QuizData struct {
	Summary      string
	MinQuestions int
	MaxQuestions int
}

// Load parses the prompt templates from fsys. It runs only once; later
// calls return the first result.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		templates = make(map[model.OutputFormat]*template.Template)
		for _, f := range []model.OutputFormat{model.FormatText, model.FormatJSON} {
			name := "templates/quiz_" + string(f) + ".txt"
			content, err := fs.ReadFile(fsys, name)
			if err != nil {
				loadErr = errors.New("failed to read prompt file " + name + ": " + err.Error())
				return
			}
			tmpl, err := template.New(string(f)).Parse(string(content))
			if err != nil {
				loadErr = errors.New("failed to parse prompt template " + name + ": " + err.Error())
				return
			}
			templates[f] = tmpl
		}
	})
	return loadErr
}

// BuildQuizPrompt renders the generation prompt for the given output format.
func BuildQuizPrompt(format model.OutputFormat, summary string, minQ, maxQ int) (string, error) {
	if err := Load(templateFS); err != nil {
		return "", fmt.Errorf("templates load failed: %w", err)
	}
	tmpl, ok := templates[format]
	if !ok {
		return "", errors.New("invalid output format: " + string(format))
	}

	data := QuizData{
		Summary:      sanitizeSummary(summary),
		MinQuestions: minQ,
		MaxQuestions: maxQ,
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// sanitizeSummary strips tags that would break out of the <summary> block
// and truncates overly long input.
func sanitizeSummary(summary string) string {
	summary = summaryTagRegex.ReplaceAllString(summary, "")
	summary = strings.TrimSpace(summary)

	if summary == "" {
		return "[No summary provided]"
	}

	if utf8.RuneCountInString(summary) > MaxSummaryRunes {
		runes := []rune(summary)
		summary = string(runes[:MaxSummaryRunes]) + "\n\n[Summary truncated due to length]"
	}
	return summary
}
