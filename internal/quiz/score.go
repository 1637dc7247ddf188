package quiz

import (
	"slices"

	"github.com/pavelanni/smartquiz/internal/model"
)

// Score counts the questions whose user answer matches the correct answer.
// Unanswered questions never count. The returned result holds its own copy
// of questions, so Score is safe to call repeatedly on the same slice.
func Score(questions []model.Question) model.QuizResult {
	score := 0
	for _, q := range questions {
		if q.IsCorrect() {
			score++
		}
	}
	return model.QuizResult{
		Score:          score,
		TotalQuestions: len(questions),
		Questions:      slices.Clone(questions),
	}
}
