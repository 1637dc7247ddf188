package main

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/pavelanni/smartquiz/internal/quiz"
)

const playQuiz = `1. What is 2+2?
a) 3
b) 4
c) 5
d) 6
Answer: b

2. Which planet is closest to the sun?
a) Venus
b) Earth
c) Mercury
d) Mars
Answer: c`

func newPlaySession(t *testing.T) *quiz.Session {
	t.Helper()
	s := quiz.NewSession("", quiz.TextParser{})
	gen := quiz.GeneratorFunc(func(context.Context, string) (string, error) { return playQuiz, nil })
	if err := s.Generate(context.Background(), gen); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return s
}

func TestPlaySession(t *testing.T) {
	// Next without a choice, an invalid label, then b, back, next, c.
	script := "n\nz\nb\nn\np\nn\nC\n\n"
	var out bytes.Buffer
	res, err := playSession(newPlaySession(t), bufio.NewScanner(strings.NewReader(script)), &out)
	if err != nil {
		t.Fatalf("playSession: %v\n%s", err, out.String())
	}
	if res.Score != 2 || res.TotalQuestions != 2 {
		t.Errorf("score = %d/%d, want 2/2", res.Score, res.TotalQuestions)
	}
	for _, want := range []string{
		"Please select an answer first.",
		`"z" is not one of the options.`,
		"Question 2 of 2",
		" * b) 4",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q", want)
		}
	}

	var review bytes.Buffer
	printReview(&review, res)
	if !strings.Contains(review.String(), "Score: 2/2 (100%)") || !strings.Contains(review.String(), " + c) Mercury") {
		t.Errorf("unexpected review:\n%s", review.String())
	}
}

func TestPlaySessionQuit(t *testing.T) {
	s := newPlaySession(t)
	var out bytes.Buffer
	if _, err := playSession(s, bufio.NewScanner(strings.NewReader("a\nq\n")), &out); err == nil {
		t.Fatal("quitting should return an error")
	}
	if !s.Abandoned() {
		t.Error("quitting should abandon the session")
	}
}

func TestPlaySessionInputClosed(t *testing.T) {
	var out bytes.Buffer
	if _, err := playSession(newPlaySession(t), bufio.NewScanner(strings.NewReader("b\n")), &out); err == nil {
		t.Fatal("closed input should return an error")
	}
}
