// Package views renders the quiz pages as templ components. The .templ files
// are the sources; the _templ.go files are generated from them with
// "templ generate".
package views

import (
	"context"
	"net/url"
	"strconv"

	"github.com/pavelanni/smartquiz/internal/i18n"
	"github.com/pavelanni/smartquiz/internal/model"
	"github.com/pavelanni/smartquiz/internal/quiz"
	"github.com/pavelanni/smartquiz/internal/review"
)

// path prefixes p with the base path stored in ctx.
func path(ctx context.Context, p string) string {
	return model.BasePathFromContext(ctx) + p
}

func sessionPath(id string) string {
	return "/quiz/" + id
}

func reviewPath(id string, q int) string {
	return sessionPath(id) + "/review?q=" + strconv.Itoa(q)
}

// langURL returns self with its query kept and lang set. self is a GET path
// without the base path, so a page rendered in reply to a POST still links
// somewhere that can be loaded again.
func langURL(ctx context.Context, self, lang string) string {
	u, err := url.Parse(self)
	if err != nil {
		u = &url.URL{Path: "/"}
	}
	q := u.Query()
	q.Set("lang", lang)
	u.RawQuery = q.Encode()
	return path(ctx, u.String())
}

func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func questionHeading(ctx context.Context, index, total int) string {
	return i18n.Td(ctx, "QuestionN", map[string]any{"Index": index + 1, "Total": total})
}

func nextLabel(v quiz.View) string {
	if v.Index == v.Total-1 {
		return "Finish"
	}
	return "Next"
}

func failureMessage(kind quiz.FailureKind) string {
	if kind == quiz.FailureParse {
		return "ParseFailed"
	}
	return "GenerationFailed"
}

func scoreLine(ctx context.Context, res model.QuizResult) string {
	return i18n.Td(ctx, "ScoreLine", map[string]any{
		"Score":   res.Score,
		"Total":   res.TotalQuestions,
		"Percent": res.Percent(),
	})
}

// answerText is the user's answer label, or a localized placeholder when the
// question was skipped.
func answerText(ctx context.Context, p review.Page) string {
	if p.UserAnswer == "" {
		return i18n.T(ctx, "NoAnswer")
	}
	return p.UserAnswer
}
