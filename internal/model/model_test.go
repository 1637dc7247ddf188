package model

import "testing"

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"b", "b"},
		{"B", "b"},
		{"  A) x=1", "a"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := NormalizeLabel(tt.in); got != tt.want {
			t.Errorf("NormalizeLabel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestQuestionValidate(t *testing.T) {
	valid := Question{
		Prompt:        "2+2?",
		Options:       [NumOptions]string{"a) 3", "b) 4", "c) 5", "d) 6"},
		CorrectAnswer: "b",
	}
	tests := []struct {
		name    string
		mutate  func(q *Question)
		wantErr bool
	}{
		{"valid", func(q *Question) {}, false},
		{"empty prompt", func(q *Question) { q.Prompt = " " }, true},
		{"empty option", func(q *Question) { q.Options[2] = "" }, true},
		{"label out of range", func(q *Question) { q.Options[3] = "e) 6" }, true},
		{"duplicate label", func(q *Question) { q.Options[1] = "a) 4" }, true},
		{"missing answer", func(q *Question) { q.CorrectAnswer = "" }, true},
		{"answer not an option", func(q *Question) { q.CorrectAnswer = "e" }, true},
		{"uppercase answer", func(q *Question) { q.CorrectAnswer = "B" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := valid
			tt.mutate(&q)
			if err := q.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestQuizResultPercent(t *testing.T) {
	tests := []struct {
		score, total, want int
	}{
		{0, 0, 0},
		{1, 1, 100},
		{1, 3, 33},
		{2, 3, 67},
		{0, 5, 0},
	}
	for _, tt := range tests {
		r := QuizResult{Score: tt.score, TotalQuestions: tt.total}
		if got := r.Percent(); got != tt.want {
			t.Errorf("Percent(%d/%d) = %d, want %d", tt.score, tt.total, got, tt.want)
		}
	}
}
