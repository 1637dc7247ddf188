package views

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/a-h/templ"

	"github.com/pavelanni/smartquiz/internal/i18n"
	"github.com/pavelanni/smartquiz/internal/model"
	"github.com/pavelanni/smartquiz/internal/quiz"
	"github.com/pavelanni/smartquiz/internal/review"
)

func render(t *testing.T, c templ.Component) string {
	t.Helper()
	if err := i18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}
	ctx := model.ContextWithBasePath(context.Background(), "/app")
	ctx = model.ContextWithCSRFToken(ctx, "tok123")
	var buf bytes.Buffer
	if err := c.Render(ctx, &buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	return buf.String()
}

func sampleQuestion() model.Question {
	return model.Question{
		Prompt:        "1. What is <b>2+2</b>?",
		Options:       [4]string{"a) 3", "b) 4", "c) 5", "d) 6"},
		CorrectAnswer: "b",
	}
}

func TestQuestionPage(t *testing.T) {
	q := sampleQuestion()
	q.UserAnswer = "c"
	out := render(t, QuestionPage(quiz.View{ID: "s1", Status: model.StatusActive, Index: 1, Total: 3, Question: q}, "SelectionRequired"))

	for _, want := range []string{
		"Question 2 of 3",
		"Please select an answer first.",
		`action="/app/quiz/s1/next"`,
		`formaction="/app/quiz/s1/back"`,
		`value="c" checked`,
		`name="csrf_token" value="tok123"`,
		"What is &lt;b&gt;2+2&lt;/b&gt;?",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
	if strings.Contains(out, "<b>2+2</b>") {
		t.Error("prompt must be escaped")
	}
}

func TestQuestionPageFirstAndLast(t *testing.T) {
	out := render(t, QuestionPage(quiz.View{ID: "s1", Index: 0, Total: 1, Question: sampleQuestion()}, ""))
	if strings.Contains(out, "formaction") {
		t.Error("first question should have no back button")
	}
	if !strings.Contains(out, ">Finish<") {
		t.Error("last question should offer Finish")
	}
	if strings.Contains(out, `class="notice"`) {
		t.Error("no notice expected")
	}
}

func TestReviewPage(t *testing.T) {
	q := sampleQuestion()
	q.UserAnswer = "a"
	p := review.New(model.QuizResult{TotalQuestions: 1, Questions: []model.Question{q}})
	page, _ := p.Page()
	out := render(t, ReviewPage("s1", page))

	for _, want := range []string{
		`<div class="option incorrect">a) 3</div>`,
		`<div class="option correct">b) 4</div>`,
		`<div class="option neutral">c) 5</div>`,
		`href="/app/quiz/s1/result"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestResultPage(t *testing.T) {
	out := render(t, ResultPage("s1", model.QuizResult{Score: 2, TotalQuestions: 3}))
	if !strings.Contains(out, "You scored 2 out of 3 (67%).") {
		t.Errorf("missing score line in %s", out)
	}
	if !strings.Contains(out, `href="/app/quiz/s1/review?q=0"`) {
		t.Error("missing review link")
	}
}

func TestLoadingAndFailedPages(t *testing.T) {
	out := render(t, LoadingPage("s1"))
	if !strings.Contains(out, `http-equiv="refresh"`) || !strings.Contains(out, "/app/quiz/s1") {
		t.Error("loading page should refresh to the session page")
	}

	out = render(t, FailedPage("s1", quiz.FailureParse))
	if !strings.Contains(out, "could not be read") {
		t.Error("parse failure message missing")
	}
	out = render(t, FailedPage("s1", quiz.FailureGeneration))
	if !strings.Contains(out, "could not be generated") {
		t.Error("generation failure message missing")
	}
}

func TestIndexPage(t *testing.T) {
	out := render(t, IndexPage(nil, "", "EmptySummary"))
	if !strings.Contains(out, "No summaries yet.") || !strings.Contains(out, "must not be empty") {
		t.Error("empty index page content missing")
	}

	recent := []model.Summary{{ID: 1, Text: `Cells "divide" & grow`}}
	out = render(t, IndexPage(recent, "", ""))
	if !strings.Contains(out, `value="Cells &#34;divide&#34; &amp; grow"`) {
		t.Errorf("summary should be escaped into the hidden field:\n%s", out)
	}
}

func TestLanguageLinksPointAtPageGetPath(t *testing.T) {
	two := model.QuizResult{TotalQuestions: 2, Questions: []model.Question{sampleQuestion(), sampleQuestion()}}
	p := review.New(two)
	p.Seek(1)
	page, _ := p.Page()

	tests := []struct {
		name string
		c    templ.Component
		want string
	}{
		{"index", IndexPage(nil, "", ""), `href="/app/?lang=id"`},
		{"error", ErrorPage("TooManyRequests"), `href="/app/?lang=id"`},
		{"question", QuestionPage(quiz.View{ID: "s1", Index: 0, Total: 2, Question: sampleQuestion()}, "SelectionRequired"), `href="/app/quiz/s1?lang=id"`},
		{"loading", LoadingPage("s1"), `href="/app/quiz/s1?lang=id"`},
		{"failed", FailedPage("s1", quiz.FailureParse), `href="/app/quiz/s1?lang=id"`},
		{"result", ResultPage("s1", two), `href="/app/quiz/s1/result?lang=id"`},
		{"review", ReviewPage("s1", page), `href="/app/quiz/s1/review?lang=id&amp;q=1"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := render(t, tt.c)
			if !strings.Contains(out, tt.want) {
				t.Errorf("output missing %q", tt.want)
			}
			if strings.Contains(out, `href="?lang=`) {
				t.Error("language links must not be relative to the request URL")
			}
		})
	}
}
