// Package review pages through a finished quiz one question at a time.
package review

import (
	"slices"

	"github.com/pavelanni/smartquiz/internal/model"
)

// Option is one answer option as shown on the review page.
type Option struct {
	Label string
	Text  string
	State model.OptionState
}

// Page is the review of a single question.
type Page struct {
	Index         int
	Total         int
	Prompt        string
	Options       []Option
	UserAnswer    string // "" when the question was skipped
	CorrectAnswer string
	Correct       bool
	HasPrev       bool
	HasNext       bool
}

// Presenter is a read-only cursor over a quiz result.
type Presenter struct {
	questions []model.Question
	index     int
}

// New creates a presenter positioned on the first question.
func New(result model.QuizResult) *Presenter {
	return &Presenter{questions: slices.Clone(result.Questions)}
}

// Len returns the number of questions.
func (p *Presenter) Len() int { return len(p.questions) }

// Index returns the current position.
func (p *Presenter) Index() int { return p.index }

// Seek moves to question i, clamped to the valid range.
func (p *Presenter) Seek(i int) {
	p.index = max(0, min(i, len(p.questions)-1))
}

// Next moves forward and reports whether the position changed.
func (p *Presenter) Next() bool {
	if p.index >= len(p.questions)-1 {
		return false
	}
	p.index++
	return true
}

// Back moves backward and reports whether the position changed.
func (p *Presenter) Back() bool {
	if p.index <= 0 {
		return false
	}
	p.index--
	return true
}

// Page returns the current question with classified options. ok is false
// when there are no questions.
func (p *Presenter) Page() (Page, bool) {
	if len(p.questions) == 0 {
		return Page{}, false
	}
	q := p.questions[p.index]
	page := Page{
		Index:         p.index,
		Total:         len(p.questions),
		Prompt:        q.Prompt,
		Options:       make([]Option, 0, len(q.Options)),
		UserAnswer:    model.NormalizeLabel(q.UserAnswer),
		CorrectAnswer: model.NormalizeLabel(q.CorrectAnswer),
		Correct:       q.IsCorrect(),
		HasPrev:       p.index > 0,
		HasNext:       p.index < len(p.questions)-1,
	}
	for i, text := range q.Options {
		page.Options = append(page.Options, Option{
			Label: q.OptionLabel(i),
			Text:  text,
			State: Classify(q, i),
		})
	}
	return page, true
}

// Classify returns the review state of option i: correct if it is the right
// answer, incorrect if the user chose it instead, neutral otherwise.
func Classify(q model.Question, i int) model.OptionState {
	label := q.OptionLabel(i)
	switch {
	case label != "" && label == model.NormalizeLabel(q.CorrectAnswer):
		return model.OptionCorrect
	case label != "" && label == model.NormalizeLabel(q.UserAnswer):
		return model.OptionIncorrect
	default:
		return model.OptionNeutral
	}
}
