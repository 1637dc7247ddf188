package quiz

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/smartquiz/internal/model"
)

// Parser turns one raw generation response into questions.
// Implementations never fail: malformed input yields fewer (or zero) questions.
type Parser interface {
	Parse(raw string) []model.Question
}

// ParserFor returns the parser that understands the given output format.
func ParserFor(format model.OutputFormat) Parser {
	if format == model.FormatJSON {
		return JSONParser{}
	}
	return TextParser{}
}

// blockLines is the exact line count of a well-formed block:
// prompt, four options, answer.
const blockLines = 1 + model.NumOptions + 1

// TextParser parses responses made of blank-line separated blocks:
//
//	What is 2+2?
//	a) 3
//	b) 4
//	c) 5
//	d) 6
//	Answer: b
type TextParser struct{}

// Parse returns the valid blocks of raw in input order.
func (TextParser) Parse(raw string) []model.Question {
	var questions []model.Question
	blocks := splitBlocks(raw)
	for i, lines := range blocks {
		q, err := parseBlock(lines)
		if err != nil {
			slog.Debug("dropping malformed block", "block", i+1, "reason", err)
			continue
		}
		questions = append(questions, q)
	}
	if dropped := len(blocks) - len(questions); dropped > 0 {
		slog.Info("parsed quiz response", "blocks", len(blocks), "questions", len(questions), "dropped", dropped)
	}
	return questions
}

// splitBlocks splits raw into trimmed, non-empty lines grouped by
// blank-line boundaries. Whitespace-only lines count as blank.
func splitBlocks(raw string) [][]string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")

	var blocks [][]string
	var cur []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			if len(cur) > 0 {
				blocks = append(blocks, cur)
				cur = nil
			}
			continue
		}
		cur = append(cur, line)
	}
	if len(cur) > 0 {
		blocks = append(blocks, cur)
	}
	return blocks
}

func parseBlock(lines []string) (model.Question, error) {
	if len(lines) < 1+model.NumOptions {
		return model.Question{}, fmt.Errorf("expected %d options, got %d", model.NumOptions, max(len(lines)-1, 0))
	}
	if len(lines) < blockLines {
		return model.Question{}, errors.New("missing answer line")
	}
	if len(lines) > blockLines {
		return model.Question{}, fmt.Errorf("%d unexpected lines after answer", len(lines)-blockLines)
	}

	q := model.Question{Prompt: lines[0]}
	copy(q.Options[:], lines[1:1+model.NumOptions])

	label, err := answerLabel(lines[blockLines-1])
	if err != nil {
		return model.Question{}, err
	}
	q.CorrectAnswer = label

	if err := q.Validate(); err != nil {
		return model.Question{}, err
	}
	return q, nil
}

// answerLabel extracts the label from "Answer: b) 4" or "Answer: B".
func answerLabel(line string) (string, error) {
	_, after, ok := strings.Cut(line, ":")
	if !ok {
		return "", fmt.Errorf("answer line %q has no ':'", line)
	}
	label := model.NormalizeLabel(after)
	if label == "" {
		return "", errors.New("answer label is empty")
	}
	return label, nil
}
