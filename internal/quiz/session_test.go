package quiz

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/pavelanni/smartquiz/internal/model"
)

// staticGen returns raw text (or err) for any summary.
func staticGen(raw string, err error) Generator {
	return GeneratorFunc(func(context.Context, string) (string, error) {
		return raw, err
	})
}

func activeSession(t *testing.T, raw string) *Session {
	t.Helper()
	s := NewSession("summary", TextParser{})
	if err := s.Generate(context.Background(), staticGen(raw, nil)); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if s.Status() != model.StatusActive {
		t.Fatalf("expected active session, got %s", s.Status())
	}
	return s
}

func threeQuestions() string {
	return strings.Join([]string{block(1, "a"), block(2, "b"), block(3, "c")}, "\n\n")
}

func TestSessionScenarioCorrect(t *testing.T) {
	s := activeSession(t, sampleBlock)

	if err := s.SelectAnswer("b"); err != nil {
		t.Fatalf("SelectAnswer: %v", err)
	}
	finished, err := s.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !finished || s.Status() != model.StatusFinished {
		t.Fatalf("expected finished session, got %s", s.Status())
	}
	res, ok := s.Result()
	if !ok {
		t.Fatal("expected a result")
	}
	if res.Score != 1 || res.TotalQuestions != 1 {
		t.Errorf("result = %d/%d, want 1/1", res.Score, res.TotalQuestions)
	}
}

func TestSessionScenarioWrong(t *testing.T) {
	s := activeSession(t, sampleBlock)
	if err := s.SelectAnswer("a"); err != nil {
		t.Fatalf("SelectAnswer: %v", err)
	}
	if _, err := s.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	res, _ := s.Result()
	if res.Score != 0 || res.TotalQuestions != 1 {
		t.Errorf("result = %d/%d, want 0/1", res.Score, res.TotalQuestions)
	}
	if res.Questions[0].UserAnswer != "a" {
		t.Errorf("result should carry the user answer, got %q", res.Questions[0].UserAnswer)
	}
}

func TestSessionSelectionRequired(t *testing.T) {
	s := activeSession(t, threeQuestions())

	finished, err := s.Next()
	if !errors.Is(err, ErrSelectionRequired) {
		t.Fatalf("expected ErrSelectionRequired, got %v", err)
	}
	if finished {
		t.Error("Next without a selection must not finish")
	}
	idx, _, _ := s.Current()
	if idx != 0 {
		t.Errorf("index moved to %d", idx)
	}
	if _, ok := s.Result(); ok {
		t.Error("no result should be produced")
	}
	if s.Status() != model.StatusActive {
		t.Errorf("status changed to %s", s.Status())
	}
}

func TestSessionNavigation(t *testing.T) {
	s := activeSession(t, threeQuestions())

	// Back on the first question is a no-op.
	if err := s.Back(); err != nil {
		t.Fatalf("Back: %v", err)
	}
	if idx, _, _ := s.Current(); idx != 0 {
		t.Fatalf("expected index 0, got %d", idx)
	}

	mustSelect(t, s, "A")
	mustNext(t, s)
	mustSelect(t, s, "d")
	mustNext(t, s)

	if idx, _, _ := s.Current(); idx != 2 {
		t.Fatalf("expected index 2, got %d", idx)
	}

	// Going back re-displays the recorded answer.
	if err := s.Back(); err != nil {
		t.Fatalf("Back: %v", err)
	}
	idx, q, err := s.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if idx != 1 || q.UserAnswer != "d" {
		t.Errorf("expected question 1 with answer d, got %d/%q", idx, q.UserAnswer)
	}

	// Re-selection overwrites the previous answer.
	mustSelect(t, s, "b")
	mustNext(t, s)
	mustSelect(t, s, "c")
	finished, err := s.Next()
	if err != nil || !finished {
		t.Fatalf("expected to finish, got finished=%v err=%v", finished, err)
	}

	res, _ := s.Result()
	if res.Score != 3 || res.TotalQuestions != 3 {
		t.Errorf("result = %d/%d, want 3/3", res.Score, res.TotalQuestions)
	}
}

func TestSessionInvalidLabel(t *testing.T) {
	s := activeSession(t, sampleBlock)
	for _, label := range []string{"", " ", "e", "1"} {
		if err := s.SelectAnswer(label); !errors.Is(err, ErrInvalidLabel) {
			t.Errorf("SelectAnswer(%q) = %v, want ErrInvalidLabel", label, err)
		}
	}
	if _, q, _ := s.Current(); q.Answered() {
		t.Error("invalid selection must not be recorded")
	}
}

func TestSessionTerminalStates(t *testing.T) {
	s := activeSession(t, sampleBlock)
	mustSelect(t, s, "b")
	if finished, err := s.Next(); !finished || err != nil {
		t.Fatalf("Next on the last question = %v, %v, want true, nil", finished, err)
	}

	if err := s.SelectAnswer("a"); !errors.Is(err, ErrNotActive) {
		t.Errorf("SelectAnswer after finish = %v, want ErrNotActive", err)
	}
	if _, err := s.Next(); !errors.Is(err, ErrNotActive) {
		t.Errorf("Next after finish = %v, want ErrNotActive", err)
	}
	if err := s.Back(); !errors.Is(err, ErrNotActive) {
		t.Errorf("Back after finish = %v, want ErrNotActive", err)
	}
	res, _ := s.Result()
	if res.Questions[0].UserAnswer != "b" {
		t.Error("finished answers must not change")
	}
}

func TestSessionLoadingRejectsNavigation(t *testing.T) {
	s := NewSession("summary", nil)
	if s.Status() != model.StatusLoading {
		t.Fatalf("expected loading, got %s", s.Status())
	}
	if err := s.SelectAnswer("a"); !errors.Is(err, ErrNotActive) {
		t.Errorf("SelectAnswer = %v", err)
	}
	if _, err := s.Next(); !errors.Is(err, ErrNotActive) {
		t.Errorf("Next = %v", err)
	}
	if err := s.Back(); !errors.Is(err, ErrNotActive) {
		t.Errorf("Back = %v", err)
	}
	if _, _, err := s.Current(); !errors.Is(err, ErrNotActive) {
		t.Errorf("Current = %v", err)
	}
}

func TestSessionGenerationFailure(t *testing.T) {
	s := NewSession("summary", TextParser{})
	cause := errors.New("quota exceeded")
	err := s.Generate(context.Background(), staticGen("", cause))

	var genErr *GenerationError
	if !errors.As(err, &genErr) || genErr.Kind != FailureGeneration {
		t.Fatalf("expected generation failure, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Error("generation failure should wrap the cause")
	}
	if s.Status() != model.StatusFailed {
		t.Errorf("expected failed, got %s", s.Status())
	}
	if s.Err() == nil {
		t.Error("failed session should keep its error")
	}
}

func TestSessionParseFailure(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty response", ""},
		{"prose", "I'm sorry, I cannot help with that."},
		{"no separators", block(1, "a") + "\n" + block(2, "b")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession("summary", TextParser{})
			err := s.Generate(context.Background(), staticGen(tt.raw, nil))
			var genErr *GenerationError
			if !errors.As(err, &genErr) || genErr.Kind != FailureParse {
				t.Fatalf("expected parse failure, got %v", err)
			}
			if !errors.Is(err, ErrNoQuestions) {
				t.Error("parse failure should wrap ErrNoQuestions")
			}
			if s.Status() != model.StatusFailed {
				t.Errorf("expected failed, got %s", s.Status())
			}
		})
	}
}

func TestSessionStart(t *testing.T) {
	t.Run("empty fails", func(t *testing.T) {
		s := NewSession("", nil)
		if err := s.Start(nil); !errors.Is(err, ErrNoQuestions) {
			t.Errorf("Start(nil) = %v, want ErrNoQuestions", err)
		}
		if s.Status() != model.StatusFailed {
			t.Errorf("expected failed, got %s", s.Status())
		}
	})

	t.Run("drops invalid and clears answers", func(t *testing.T) {
		s := NewSession("", nil)
		bad := answered("z", "")
		good := answered("a", "a")
		if err := s.Start([]model.Question{bad, good}); err != nil {
			t.Fatalf("Start: %v", err)
		}
		if s.Len() != 1 {
			t.Errorf("expected 1 question, got %d", s.Len())
		}
		if _, q, _ := s.Current(); q.Answered() {
			t.Error("loaded questions should start unanswered")
		}
	})

	t.Run("only once", func(t *testing.T) {
		s := NewSession("", nil)
		_ = s.Start([]model.Question{answered("a", "")})
		if err := s.Start([]model.Question{answered("a", "")}); !errors.Is(err, ErrAlreadyStarted) {
			t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
		}
		if err := s.Generate(context.Background(), staticGen(sampleBlock, nil)); !errors.Is(err, ErrAlreadyStarted) {
			t.Errorf("Generate after Start = %v, want ErrAlreadyStarted", err)
		}
	})
}

func TestSessionAbandonDiscardsLateResult(t *testing.T) {
	s := NewSession("summary", TextParser{})
	release := make(chan struct{})
	gen := GeneratorFunc(func(ctx context.Context, _ string) (string, error) {
		<-release
		return sampleBlock, nil
	})

	done := make(chan error, 1)
	go func() { done <- s.Generate(context.Background(), gen) }()

	s.Abandon()
	close(release)

	if err := <-done; !errors.Is(err, ErrAbandoned) {
		t.Fatalf("Generate = %v, want ErrAbandoned", err)
	}
	if s.Status() != model.StatusLoading {
		t.Errorf("abandoned session should not change state, got %s", s.Status())
	}
	if s.Len() != 0 {
		t.Error("late questions must be discarded")
	}
}

func TestSessionConcurrentNavigation(t *testing.T) {
	var blocks []string
	for i := 1; i <= 20; i++ {
		blocks = append(blocks, block(i, "a"))
	}
	s := activeSession(t, strings.Join(blocks, "\n\n"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = s.SelectAnswer("a")
				_, _ = s.Next()
				_ = s.Back()
				_ = s.View()
			}
		}()
	}
	wg.Wait()

	v := s.View()
	if v.Status == model.StatusActive && (v.Index < 0 || v.Index >= v.Total) {
		t.Errorf("index %d out of range [0,%d)", v.Index, v.Total)
	}
}

func TestSessionView(t *testing.T) {
	s := activeSession(t, threeQuestions())
	v := s.View()
	if v.ID != s.ID() || v.Total != 3 || v.Index != 0 {
		t.Errorf("unexpected view %+v", v)
	}
	if v.Question.Prompt != "1. Question 1?" {
		t.Errorf("view question = %q", v.Question.Prompt)
	}
}

func mustSelect(t *testing.T, s *Session, label string) {
	t.Helper()
	if err := s.SelectAnswer(label); err != nil {
		t.Fatalf("SelectAnswer(%q): %v", label, err)
	}
}

func mustNext(t *testing.T, s *Session) {
	t.Helper()
	finished, err := s.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if finished {
		t.Fatal("unexpected finish")
	}
}
