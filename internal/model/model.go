package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// NumOptions is the number of answer options every question carries.
const NumOptions = 4

// Status represents the lifecycle state of a quiz session.
type Status string

const (
	StatusLoading  Status = "loading"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
	StatusFailed   Status = "failed"
)

// OptionState classifies an option on the review page.
type OptionState string

const (
	OptionCorrect   OptionState = "correct"
	OptionIncorrect OptionState = "incorrect"
	OptionNeutral   OptionState = "neutral"
)

// Question is a single multiple-choice question with exactly four options.
// Options keep their label prefix, e.g. "b) 4".
type Question struct {
	Prompt        string             `json:"prompt"`
	Options       [NumOptions]string `json:"options"`
	CorrectAnswer string             `json:"correct_answer"`
	UserAnswer    string             `json:"user_answer,omitempty"`
}

// NormalizeLabel returns the first non-space character of s, lowercased.
// It returns "" when s holds no such character.
func NormalizeLabel(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	r := []rune(s)[0]
	return strings.ToLower(string(r))
}

// IsValidLabel reports whether l is one of the option labels a-d.
func IsValidLabel(l string) bool {
	return len(l) == 1 && l[0] >= 'a' && l[0] < 'a'+NumOptions
}

// OptionLabel returns the normalized label of option i.
func (q Question) OptionLabel(i int) string {
	if i < 0 || i >= NumOptions {
		return ""
	}
	return NormalizeLabel(q.Options[i])
}

// HasOption reports whether label matches one of the question's option labels.
func (q Question) HasOption(label string) bool {
	label = NormalizeLabel(label)
	if label == "" {
		return false
	}
	for i := range q.Options {
		if q.OptionLabel(i) == label {
			return true
		}
	}
	return false
}

// Answered reports whether the user has selected an option.
func (q Question) Answered() bool {
	return q.UserAnswer != ""
}

// IsCorrect compares the first characters of the user and correct answers.
func (q Question) IsCorrect() bool {
	user := NormalizeLabel(q.UserAnswer)
	return user != "" && user == NormalizeLabel(q.CorrectAnswer)
}

// Validate checks the structural invariants of a question.
func (q Question) Validate() error {
	if strings.TrimSpace(q.Prompt) == "" {
		return errors.New("empty prompt")
	}
	seen := make(map[string]bool, NumOptions)
	for i, opt := range q.Options {
		if strings.TrimSpace(opt) == "" {
			return fmt.Errorf("option %d is empty", i+1)
		}
		label := q.OptionLabel(i)
		if !IsValidLabel(label) {
			return fmt.Errorf("option %d has invalid label %q", i+1, label)
		}
		if seen[label] {
			return fmt.Errorf("duplicate option label %q", label)
		}
		seen[label] = true
	}
	correct := NormalizeLabel(q.CorrectAnswer)
	if correct == "" {
		return errors.New("missing answer label")
	}
	if !seen[correct] {
		return fmt.Errorf("answer label %q does not match any option", correct)
	}
	return nil
}

// QuizResult is the outcome of a finished quiz session.
type QuizResult struct {
	Score          int        `json:"score"`
	TotalQuestions int        `json:"total_questions"`
	Questions      []Question `json:"questions"`
}

// Percent returns the score as a rounded percentage.
func (r QuizResult) Percent() int {
	if r.TotalQuestions == 0 {
		return 0
	}
	return int(math.Round(float64(r.Score) / float64(r.TotalQuestions) * 100))
}

// OutputFormat selects how the generation service is asked to format quizzes.
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

// Summary is a piece of upstream summary text a quiz was generated from.
type Summary struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	Hash      string    `json:"hash"`
	CreatedAt time.Time `json:"created_at"`
}

// Generation records one call to the generation service.
type Generation struct {
	ID        int64         `json:"id"`
	SummaryID int64         `json:"summary_id"`
	Format    OutputFormat  `json:"format"`
	Model     string        `json:"model"`
	Raw       string        `json:"raw"`
	Questions int           `json:"questions"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
	CreatedAt time.Time     `json:"created_at"`
}

// AppConfig holds runtime parameters set via CLI flags.
type AppConfig struct {
	Format        OutputFormat
	MinQuestions  int
	MaxQuestions  int
	LLMTimeout    time.Duration
	SessionTTL    time.Duration
	RateLimit     int // generation requests per RateWindow per client
	RateWindow    time.Duration
	BasePath      string // URL prefix for sub-path deployments
	SecureCookies bool
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}
