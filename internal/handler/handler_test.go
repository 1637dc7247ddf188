package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/smartquiz/internal/i18n"
	"github.com/pavelanni/smartquiz/internal/metrics"
	"github.com/pavelanni/smartquiz/internal/model"
	"github.com/pavelanni/smartquiz/internal/quiz"
	"github.com/pavelanni/smartquiz/internal/store"
)

const twoQuestions = `1. What is 2+2?
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

const testToken = "test-csrf-token"

type fakeGen struct {
	raw     string
	err     error
	release chan struct{}
}

func (f *fakeGen) GenerateQuiz(ctx context.Context, _ string) (string, error) {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.raw, f.err
}

func (f *fakeGen) Model() string              { return "fake-model" }
func (f *fakeGen) Format() model.OutputFormat { return model.FormatText }

type testEnv struct {
	h      *Handler
	store  *store.Store
	router http.Handler
}

func newTestEnv(t *testing.T, gen Generator, cfg model.AppConfig) *testEnv {
	t.Helper()
	if err := i18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	h, err := New(s, gen, quiz.NewRegistry(time.Hour), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r := chi.NewRouter()
	r.Use(h.BasePathMiddleware)
	r.Use(i18n.Middleware(false))
	h.Routes(r)
	return &testEnv{h: h, store: s, router: r}
}

func (e *testEnv) get(path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) post(path string, form url.Values) *httptest.ResponseRecorder {
	if form == nil {
		form = url.Values{}
	}
	form.Set("csrf_token", testToken)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: testToken})
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// startQuiz posts a summary, waits for generation and returns the session ID.
func (e *testEnv) startQuiz(t *testing.T) string {
	t.Helper()
	rec := e.post("/quiz", url.Values{"summary": {"The solar system has eight planets."}})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("POST /quiz = %d, want 303: %s", rec.Code, rec.Body)
	}
	loc := rec.Header().Get("Location")
	if !strings.HasPrefix(loc, "/quiz/") {
		t.Fatalf("unexpected redirect %q", loc)
	}
	e.h.Wait()
	return strings.TrimPrefix(loc, "/quiz/")
}

func assertRedirect(t *testing.T, rec *httptest.ResponseRecorder, want string) {
	t.Helper()
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303: %s", rec.Code, rec.Body)
	}
	if got := rec.Header().Get("Location"); got != want {
		t.Fatalf("Location = %q, want %q", got, want)
	}
}

func assertContains(t *testing.T, rec *httptest.ResponseRecorder, want string) {
	t.Helper()
	if !strings.Contains(rec.Body.String(), want) {
		t.Errorf("body missing %q:\n%s", want, rec.Body)
	}
}

func TestQuizFlow(t *testing.T) {
	env := newTestEnv(t, &fakeGen{raw: twoQuestions}, model.AppConfig{})
	id := env.startQuiz(t)
	base := "/quiz/" + id

	rec := env.get(base)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET quiz = %d", rec.Code)
	}
	assertContains(t, rec, "Question 1 of 2")
	assertContains(t, rec, "What is 2+2?")

	// Next without a selection shows the notice and stays put.
	rec = env.post(base+"/next", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("next without selection = %d, want 422", rec.Code)
	}
	assertContains(t, rec, "Please select an answer first.")
	assertContains(t, rec, "Question 1 of 2")

	assertRedirect(t, env.post(base+"/next", url.Values{"label": {"b"}}), base)
	assertContains(t, env.get(base), "Question 2 of 2")

	// Back keeps the recorded answer.
	assertRedirect(t, env.post(base+"/back", nil), base)
	assertContains(t, env.get(base), `value="b" checked`)
	assertRedirect(t, env.post(base+"/next", nil), base)

	assertRedirect(t, env.post(base+"/select", url.Values{"label": {"a"}}), base)
	assertRedirect(t, env.post(base+"/next", nil), base+"/result")

	rec = env.get(base + "/result")
	assertContains(t, rec, "You scored 1 out of 2 (50%).")

	// A finished session redirects to its result.
	assertRedirect(t, env.get(base), base+"/result")
	if rec := env.post(base+"/next", url.Values{"label": {"c"}}); rec.Code != http.StatusSeeOther {
		t.Errorf("navigation after finish = %d, want redirect", rec.Code)
	}

	rec = env.get(base + "/result.json")
	if rec.Code != http.StatusOK {
		t.Fatalf("result.json = %d", rec.Code)
	}
	var res model.QuizResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Score != 1 || res.TotalQuestions != 2 {
		t.Errorf("result = %d/%d, want 1/2", res.Score, res.TotalQuestions)
	}
	if res.Questions[1].UserAnswer != "a" {
		t.Errorf("second answer = %q, want a", res.Questions[1].UserAnswer)
	}

	rec = env.get(base + "/review?q=1")
	assertContains(t, rec, `<div class="option incorrect">a) Venus</div>`)
	assertContains(t, rec, `<div class="option correct">c) Mercury</div>`)

	if rec := env.get(base + "/review?q=x"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad review index = %d, want 400", rec.Code)
	}

	gens, err := env.store.ListGenerations(0)
	if err != nil {
		t.Fatalf("ListGenerations: %v", err)
	}
	if len(gens) != 1 || gens[0].Questions != 2 || gens[0].Error != "" || gens[0].Model != "fake-model" {
		t.Errorf("unexpected generation record %+v", gens)
	}
}

func TestInvalidSelection(t *testing.T) {
	env := newTestEnv(t, &fakeGen{raw: twoQuestions}, model.AppConfig{})
	id := env.startQuiz(t)

	rec := env.post("/quiz/"+id+"/select", url.Values{"label": {"z"}})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid label = %d, want 422", rec.Code)
	}
	assertContains(t, rec, "That is not one of the options.")
}

func TestCreateEmptySummary(t *testing.T) {
	env := newTestEnv(t, &fakeGen{raw: twoQuestions}, model.AppConfig{})
	rec := env.post("/quiz", url.Values{"summary": {"   "}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty summary = %d, want 400", rec.Code)
	}
	assertContains(t, rec, "The summary must not be empty.")
	if n := env.h.sessions.Len(); n != 0 {
		t.Errorf("no session should be created, got %d", n)
	}
}

func TestFailures(t *testing.T) {
	tests := []struct {
		name    string
		gen     *fakeGen
		message string
	}{
		{"generation", &fakeGen{err: errors.New("connection refused")}, "could not be generated"},
		{"parse", &fakeGen{raw: "Sorry, I can't help with that."}, "could not be read"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.gen, model.AppConfig{})
			id := env.startQuiz(t)

			rec := env.get("/quiz/" + id)
			if rec.Code != http.StatusOK {
				t.Fatalf("GET = %d", rec.Code)
			}
			assertContains(t, rec, tt.message)

			if rec := env.get("/quiz/" + id + "/result.json"); rec.Code != http.StatusConflict {
				t.Errorf("result.json of failed quiz = %d, want 409", rec.Code)
			}

			gens, _ := env.store.ListGenerations(0)
			if len(gens) != 1 || gens[0].Error == "" {
				t.Errorf("failure should be recorded, got %+v", gens)
			}
		})
	}
}

func TestLoadingAndAbandon(t *testing.T) {
	gen := &fakeGen{raw: twoQuestions, release: make(chan struct{})}
	env := newTestEnv(t, gen, model.AppConfig{})

	rec := env.post("/quiz", url.Values{"summary": {"summary"}})
	base := rec.Header().Get("Location")

	rec = env.get(base)
	assertContains(t, rec, `http-equiv="refresh"`)

	assertRedirect(t, env.post(base+"/abandon", nil), "/")
	close(gen.release)
	env.h.Wait()

	if rec := env.get(base); rec.Code != http.StatusNotFound {
		t.Errorf("abandoned session = %d, want 404", rec.Code)
	}
	gens, _ := env.store.ListGenerations(0)
	if len(gens) != 1 || !strings.Contains(gens[0].Error, "abandoned") {
		t.Errorf("late result should be recorded as discarded, got %+v", gens)
	}
}

func TestUnknownSession(t *testing.T) {
	env := newTestEnv(t, &fakeGen{raw: twoQuestions}, model.AppConfig{})
	for _, rec := range []*httptest.ResponseRecorder{
		env.get("/quiz/nope"),
		env.get("/quiz/nope/result"),
		env.get("/quiz/nope/review"),
		env.post("/quiz/nope/next", nil),
	} {
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	}
	if rec := env.get("/quiz/nope/result.json"); rec.Code != http.StatusNotFound {
		t.Errorf("result.json = %d, want 404", rec.Code)
	}
}

func TestCSRF(t *testing.T) {
	env := newTestEnv(t, &fakeGen{raw: twoQuestions}, model.AppConfig{})

	req := httptest.NewRequest(http.MethodPost, "/quiz", strings.NewReader("summary=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("POST without token = %d, want 403", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/quiz", strings.NewReader("summary=x&csrf_token=other"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: testToken})
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("POST with mismatched token = %d, want 403", rec.Code)
	}

	rec = env.get("/")
	var found bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == csrfCookieName && c.Value != "" {
			found = true
			if !strings.Contains(rec.Body.String(), c.Value) {
				t.Error("form should embed the issued token")
			}
		}
	}
	if !found {
		t.Error("GET should issue a CSRF cookie")
	}
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, &fakeGen{raw: twoQuestions}, model.AppConfig{RateLimit: 1, RateWindow: time.Hour})
	env.startQuiz(t)

	rec := env.post("/quiz", url.Values{"summary": {"again"}})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request = %d, want 429", rec.Code)
	}
	assertContains(t, rec, "Too many quizzes requested.")

	// Quiz navigation is not limited.
	if rec := env.get("/"); rec.Code != http.StatusOK {
		t.Errorf("index = %d", rec.Code)
	}
}

func TestBasePath(t *testing.T) {
	env := newTestEnv(t, &fakeGen{raw: twoQuestions}, model.AppConfig{BasePath: "/quiz-app"})
	rec := env.post("/quiz", url.Values{"summary": {"summary"}})
	if loc := rec.Header().Get("Location"); !strings.HasPrefix(loc, "/quiz-app/quiz/") {
		t.Errorf("redirect %q should carry the base path", loc)
	}
	env.h.Wait()
	assertContains(t, env.get("/"), `action="/quiz-app/quiz"`)
}

func TestIndexListsSummaries(t *testing.T) {
	env := newTestEnv(t, &fakeGen{raw: twoQuestions}, model.AppConfig{})
	env.startQuiz(t)
	assertContains(t, env.get("/"), "The solar system has eight planets.")
}

func TestConfiguredFormatOverridesGenerator(t *testing.T) {
	raw := `{"questions":[{"question":"What is 2+2?","options":["a) 3","b) 4","c) 5","d) 6"],"answer":"b"}]}`
	env := newTestEnv(t, &fakeGen{raw: raw}, model.AppConfig{Format: model.FormatJSON})
	id := env.startQuiz(t)

	rec := env.get("/quiz/" + id)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET quiz = %d", rec.Code)
	}
	assertContains(t, rec, "Question 1 of 1")

	gens, _ := env.store.ListGenerations(0)
	if len(gens) != 1 || gens[0].Format != model.FormatJSON || gens[0].Questions != 1 {
		t.Errorf("generation should be recorded as json with one question, got %+v", gens)
	}
}

// questionsParsedCount scrapes the number of questions-parsed observations.
func questionsParsedCount(t *testing.T) float64 {
	t.Helper()
	metrics.Init()
	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		if v, ok := strings.CutPrefix(line, "smartquiz_questions_parsed_count "); ok {
			n, err := strconv.ParseFloat(v, 64)
			if err != nil {
				t.Fatalf("parse %q: %v", line, err)
			}
			return n
		}
	}
	t.Fatal("smartquiz_questions_parsed_count not exported")
	return 0
}

func TestDiscardedGenerationSkipsQuestionsParsed(t *testing.T) {
	before := questionsParsedCount(t)

	gen := &fakeGen{raw: twoQuestions, release: make(chan struct{})}
	env := newTestEnv(t, gen, model.AppConfig{})
	rec := env.post("/quiz", url.Values{"summary": {"summary"}})
	assertRedirect(t, env.post(rec.Header().Get("Location")+"/abandon", nil), "/")
	close(gen.release)
	env.h.Wait()

	if got := questionsParsedCount(t); got != before {
		t.Errorf("discarded generation observed questions parsed: count %v -> %v", before, got)
	}

	env = newTestEnv(t, &fakeGen{raw: twoQuestions}, model.AppConfig{})
	env.startQuiz(t)
	if got := questionsParsedCount(t); got != before+1 {
		t.Errorf("completed generation count = %v, want %v", got, before+1)
	}
}

func TestLanguageLinksOnPostResponses(t *testing.T) {
	env := newTestEnv(t, &fakeGen{raw: twoQuestions}, model.AppConfig{RateLimit: 2, RateWindow: time.Hour})
	id := env.startQuiz(t)

	rec := env.post("/quiz/"+id+"/next", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("next without selection = %d, want 422", rec.Code)
	}
	assertContains(t, rec, `href="/quiz/`+id+`?lang=id"`)

	rec = env.post("/quiz", url.Values{"summary": {" "}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty summary = %d, want 400", rec.Code)
	}
	assertContains(t, rec, `href="/?lang=id"`)

	rec = env.post("/quiz", url.Values{"summary": {"again"}})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request = %d, want 429", rec.Code)
	}
	assertContains(t, rec, `href="/?lang=id"`)

	if strings.Contains(rec.Body.String(), `href="?lang=`) {
		t.Error("language links must not be relative to the POST URL")
	}
}
