package quiz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/smartquiz/internal/model"
)

var (
	// ErrSelectionRequired is returned by Next when the current question has no answer.
	ErrSelectionRequired = errors.New("an answer must be selected before continuing")
	// ErrNotActive is returned by navigation calls outside the active state.
	ErrNotActive = errors.New("quiz is not active")
	// ErrInvalidLabel is returned when a selected label matches no option.
	ErrInvalidLabel = errors.New("invalid answer label")
	// ErrNoQuestions means the response held no valid question.
	ErrNoQuestions = errors.New("no valid questions in response")
	// ErrAbandoned is returned by Generate when the session was discarded mid-call.
	ErrAbandoned = errors.New("session abandoned")
	// ErrAlreadyStarted is returned when a session is loaded twice.
	ErrAlreadyStarted = errors.New("session already started")
)

// FailureKind distinguishes why a session failed to load.
type FailureKind string

const (
	FailureGeneration FailureKind = "generation"
	FailureParse      FailureKind = "parse"
)

// GenerationError is the terminal error of a failed session.
type GenerationError struct {
	Kind FailureKind
	Err  error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s failure: %v", e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Generator produces raw quiz text from summary text.
type Generator interface {
	GenerateQuiz(ctx context.Context, summary string) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, summary string) (string, error)

// GenerateQuiz calls f.
func (f GeneratorFunc) GenerateQuiz(ctx context.Context, summary string) (string, error) {
	return f(ctx, summary)
}

// Session is one attempt at a generated quiz. All methods are safe for
// concurrent use and each runs atomically with respect to the others.
type Session struct {
	mu        sync.Mutex
	id        string
	summary   string
	parser    Parser
	questions []model.Question
	current   int
	status    model.Status
	result    *model.QuizResult
	err       error
	started   bool
	abandoned bool
	touched   time.Time
}

// NewSession creates a session in the loading state.
func NewSession(summary string, parser Parser) *Session {
	if parser == nil {
		parser = TextParser{}
	}
	return &Session{
		id:      uuid.NewString(),
		summary: summary,
		parser:  parser,
		status:  model.StatusLoading,
		touched: time.Now(),
	}
}

// View is a consistent snapshot of a session for rendering.
type View struct {
	ID       string
	Status   model.Status
	Index    int
	Total    int
	Question model.Question
	Err      error
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Summary returns the summary text the quiz is generated from.
func (s *Session) Summary() string { return s.summary }

// Generate calls gen once and loads the parsed questions. The session
// becomes active when at least one question parsed and failed otherwise.
// A result arriving after Abandon is discarded.
func (s *Session) Generate(ctx context.Context, gen Generator) error {
	s.mu.Lock()
	if s.started || s.status != model.StatusLoading {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	raw, err := gen.GenerateQuiz(ctx, s.summary)
	var questions []model.Question
	if err == nil {
		questions = s.parser.Parse(raw)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.abandoned {
		slog.Info("discarding generation result for abandoned session", "session", s.id)
		return ErrAbandoned
	}
	if err != nil {
		s.fail(&GenerationError{Kind: FailureGeneration, Err: err})
		return s.err
	}
	s.load(questions)
	return s.err
}

// Start loads already parsed questions. Invalid questions are dropped;
// an empty result fails the session.
func (s *Session) Start(questions []model.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.status != model.StatusLoading {
		return ErrAlreadyStarted
	}
	s.started = true

	valid := make([]model.Question, 0, len(questions))
	for i, q := range questions {
		if err := q.Validate(); err != nil {
			slog.Debug("dropping invalid question", "index", i, "reason", err)
			continue
		}
		q.UserAnswer = ""
		valid = append(valid, q)
	}
	s.load(valid)
	return s.err
}

func (s *Session) load(questions []model.Question) {
	if len(questions) == 0 {
		s.fail(&GenerationError{Kind: FailureParse, Err: ErrNoQuestions})
		return
	}
	s.questions = questions
	s.current = 0
	s.status = model.StatusActive
	s.touched = time.Now()
	slog.Info("quiz session active", "session", s.id, "questions", len(questions))
}

func (s *Session) fail(err error) {
	s.status = model.StatusFailed
	s.err = err
	s.touched = time.Now()
	slog.Warn("quiz session failed", "session", s.id, "error", err)
}

// SelectAnswer records label on the current question without advancing.
func (s *Session) SelectAnswer(label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != model.StatusActive {
		return ErrNotActive
	}
	q := &s.questions[s.current]
	l := model.NormalizeLabel(label)
	if !q.HasOption(l) {
		return fmt.Errorf("%w: %q", ErrInvalidLabel, label)
	}
	q.UserAnswer = l
	s.touched = time.Now()
	return nil
}

// Next advances to the following question. On the last question it
// finishes the quiz, scores it and reports finished.
func (s *Session) Next() (finished bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != model.StatusActive {
		return false, ErrNotActive
	}
	if !s.questions[s.current].Answered() {
		return false, ErrSelectionRequired
	}
	s.touched = time.Now()
	if s.current < len(s.questions)-1 {
		s.current++
		return false, nil
	}

	res := Score(s.questions)
	s.result = &res
	s.status = model.StatusFinished
	slog.Info("quiz session finished", "session", s.id, "score", res.Score, "total", res.TotalQuestions)
	return true, nil
}

// Back moves to the previous question; it is a no-op on the first one.
func (s *Session) Back() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != model.StatusActive {
		return ErrNotActive
	}
	if s.current > 0 {
		s.current--
	}
	s.touched = time.Now()
	return nil
}

// Current returns the index and a copy of the current question.
func (s *Session) Current() (int, model.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != model.StatusActive {
		return 0, model.Question{}, ErrNotActive
	}
	return s.current, s.questions[s.current], nil
}

// Status returns the lifecycle state.
func (s *Session) Status() model.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Len returns the number of loaded questions.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.questions)
}

// Err returns the terminal error of a failed session.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Result returns the score computed when the quiz finished.
func (s *Session) Result() (model.QuizResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return model.QuizResult{}, false
	}
	res := *s.result
	res.Questions = slices.Clone(res.Questions)
	return res, true
}

// View returns a snapshot of the session.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := View{
		ID:     s.id,
		Status: s.status,
		Index:  s.current,
		Total:  len(s.questions),
		Err:    s.err,
	}
	if s.status == model.StatusActive {
		v.Question = s.questions[s.current]
	}
	return v
}

// Abandon discards the session. A generation call still in flight is not
// cancelled, but its result will not be applied.
func (s *Session) Abandon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abandoned = true
}

// Abandoned reports whether Abandon was called.
func (s *Session) Abandoned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.abandoned
}

// LastActive returns the time of the last state change.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touched
}
