package quiz

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"

	"github.com/pavelanni/smartquiz/internal/model"
)

var labelPrefixRegex = regexp.MustCompile(`^[a-dA-D]\s*[).:\-]`)

// JSONParser parses the structured output mode of the generation service:
//
//	{"questions": [{"question": "...", "options": ["a) ...", ...], "answer": "b"}]}
type JSONParser struct{}

type jsonQuiz struct {
	Questions []jsonQuestion `json:"questions"`
}

type jsonQuestion struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Answer   string   `json:"answer"`
}

// Parse returns the valid entries of raw in input order.
func (JSONParser) Parse(raw string) []model.Question {
	var doc jsonQuiz
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &doc); err != nil {
		slog.Warn("undecodable quiz response", "error", err)
		return nil
	}

	var questions []model.Question
	for i, jq := range doc.Questions {
		if len(jq.Options) != model.NumOptions {
			slog.Debug("dropping malformed entry", "entry", i+1, "options", len(jq.Options))
			continue
		}
		q := model.Question{
			Prompt:        strings.TrimSpace(jq.Question),
			CorrectAnswer: model.NormalizeLabel(jq.Answer),
		}
		for j, opt := range labelOptions(jq.Options) {
			q.Options[j] = opt
		}
		if err := q.Validate(); err != nil {
			slog.Debug("dropping malformed entry", "entry", i+1, "reason", err)
			continue
		}
		questions = append(questions, q)
	}
	return questions
}

// labelOptions trims options and adds "a) ".."d) " prefixes when the
// model left every label out.
func labelOptions(opts []string) []string {
	out := make([]string, len(opts))
	labeled := false
	for i, opt := range opts {
		out[i] = strings.TrimSpace(opt)
		if labelPrefixRegex.MatchString(out[i]) {
			labeled = true
		}
	}
	if labeled {
		return out
	}
	for i := range out {
		out[i] = string(rune('a'+i)) + ") " + out[i]
	}
	return out
}

// stripCodeFence removes a surrounding ``` or ```json fence.
func stripCodeFence(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	if nl := strings.IndexByte(raw, '\n'); nl >= 0 {
		raw = raw[nl+1:]
	} else {
		return ""
	}
	raw = strings.TrimSpace(raw)
	raw = strings.TrimSuffix(raw, "```")
	return strings.TrimSpace(raw)
}
