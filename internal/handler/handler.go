package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/smartquiz/internal/handler/views"
	"github.com/pavelanni/smartquiz/internal/metrics"
	"github.com/pavelanni/smartquiz/internal/model"
	"github.com/pavelanni/smartquiz/internal/quiz"
	"github.com/pavelanni/smartquiz/internal/review"
	"github.com/pavelanni/smartquiz/internal/store"
)

// recentSummaries is how many stored summaries the start page offers.
const recentSummaries = 10

// Generator is the generation service as seen by the handlers.
type Generator interface {
	quiz.Generator
	Model() string
	Format() model.OutputFormat
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	gen      Generator
	sessions *quiz.Registry
	config   model.AppConfig
	limiter  *rateLimiter

	// inflight tracks background generations so shutdown and tests can wait.
	inflight sync.WaitGroup
}

// New creates a new Handler.
func New(s *store.Store, gen Generator, sessions *quiz.Registry, cfg model.AppConfig) (*Handler, error) {
	if s == nil || gen == nil || sessions == nil {
		return nil, errors.New("handler: store, generator and registry are required")
	}
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = 60 * time.Second
	}
	return &Handler{
		store:    s,
		gen:      gen,
		sessions: sessions,
		config:   cfg,
		limiter:  newRateLimiter(cfg.RateLimit, cfg.RateWindow),
	}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.csrfMiddleware)
		r.Get("/", h.handleIndex)
		r.With(h.limiter.middleware).Post("/quiz", h.handleCreate)
		r.Get("/quiz/{id}", h.handleQuizPage)
		r.Post("/quiz/{id}/select", h.handleSelect)
		r.Post("/quiz/{id}/next", h.handleNext)
		r.Post("/quiz/{id}/back", h.handleBack)
		r.Post("/quiz/{id}/abandon", h.handleAbandon)
		r.Get("/quiz/{id}/result", h.handleResult)
		r.Get("/quiz/{id}/review", h.handleReview)
	})
	r.Get("/quiz/{id}/result.json", h.handleResultJSON)
	r.Route("/admin", func(r chi.Router) {
		r.Use(h.requireAdmin)
		r.Get("/generations", h.handleGenerations)
		r.Get("/generations/{genID}", h.handleGeneration)
	})
}

// BasePathMiddleware stores the configured base path in the request context.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Wait blocks until all background generations have finished.
func (h *Handler) Wait() {
	h.inflight.Wait()
}

// PruneVisitors drops rate limiter entries idle for longer than the window.
func (h *Handler) PruneVisitors() {
	if n := h.limiter.prune(); n > 0 {
		slog.Debug("pruned rate limiter entries", "count", n)
	}
}

func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

func (h *Handler) quizPath(id, suffix string) string {
	return h.path("/quiz/" + id + suffix)
}

func render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	h.renderIndex(w, r, http.StatusOK, "", "")
}

func (h *Handler) renderIndex(w http.ResponseWriter, r *http.Request, status int, summary, notice string) {
	recent, err := h.store.ListSummaries(recentSummaries)
	if err != nil {
		slog.Error("failed to list summaries", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	render(w, r, status, views.IndexPage(recent, summary, notice))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	text := strings.TrimSpace(r.FormValue("summary"))
	if text == "" {
		h.renderIndex(w, r, http.StatusBadRequest, "", "EmptySummary")
		return
	}

	summary, err := h.store.SaveSummary(text)
	if err != nil {
		slog.Error("failed to save summary", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	sess := h.sessions.Create(text, quiz.ParserFor(h.format()))
	slog.Info("quiz session created", "session", sess.ID(), "summary_id", summary.ID)

	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		h.generate(sess, summary.ID)
	}()

	http.Redirect(w, r, h.quizPath(sess.ID(), ""), http.StatusSeeOther)
}

// generate runs the generation call for sess outside the request lifetime
// and records its outcome.
func (h *Handler) generate(sess *quiz.Session, summaryID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), h.config.LLMTimeout)
	defer cancel()

	var raw string
	var callErr error
	var elapsed time.Duration
	gen := quiz.GeneratorFunc(func(ctx context.Context, summary string) (string, error) {
		start := time.Now()
		raw, callErr = h.gen.GenerateQuiz(ctx, summary)
		elapsed = time.Since(start)
		return raw, callErr
	})

	err := sess.Generate(ctx, gen)

	outcome := metrics.OutcomeOK
	var genErr *quiz.GenerationError
	switch {
	case errors.Is(err, quiz.ErrAbandoned):
		outcome = metrics.OutcomeDiscarded
	case errors.As(err, &genErr) && genErr.Kind == quiz.FailureParse:
		outcome = metrics.OutcomeParse
	case err != nil:
		outcome = metrics.OutcomeGeneration
	}
	observeGeneration(outcome, callErr, elapsed, sess.Len())

	rec := model.Generation{
		SummaryID: summaryID,
		Format:    h.format(),
		Model:     h.gen.Model(),
		Raw:       raw,
		Questions: sess.Len(),
		Duration:  elapsed,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if _, err := h.store.RecordGeneration(rec); err != nil {
		slog.Error("failed to record generation", "session", sess.ID(), "error", err)
	}

	if err != nil {
		slog.Warn("quiz generation failed", "session", sess.ID(), "outcome", outcome, "error", err)
		return
	}
	slog.Info("quiz generated", "session", sess.ID(), "questions", sess.Len(), "duration", elapsed)
}

// observeGeneration records the metrics of one generation. A discarded
// session parsed nothing worth counting, so only its latency is kept.
func observeGeneration(outcome string, callErr error, elapsed time.Duration, questions int) {
	metrics.Generations.WithLabelValues(outcome).Inc()
	if callErr != nil {
		return
	}
	metrics.GenerationDuration.Observe(elapsed.Seconds())
	if outcome != metrics.OutcomeDiscarded {
		metrics.QuestionsParsed.Observe(float64(questions))
	}
}

// format is the configured output format, or the generator's own when unset.
func (h *Handler) format() model.OutputFormat {
	if h.config.Format != "" {
		return h.config.Format
	}
	return h.gen.Format()
}

// session looks up the {id} session, writing a 404 page when it is gone.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*quiz.Session, bool) {
	sess, ok := h.sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		render(w, r, http.StatusNotFound, views.ErrorPage("SessionNotFound"))
		return nil, false
	}
	return sess, true
}

func (h *Handler) handleQuizPage(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	h.renderSession(w, r, sess, "")
}

// renderSession shows whatever page matches the session state.
func (h *Handler) renderSession(w http.ResponseWriter, r *http.Request, sess *quiz.Session, notice string) {
	v := sess.View()
	switch v.Status {
	case model.StatusLoading:
		render(w, r, http.StatusOK, views.LoadingPage(v.ID))
	case model.StatusActive:
		status := http.StatusOK
		if notice != "" {
			status = http.StatusUnprocessableEntity
		}
		render(w, r, status, views.QuestionPage(v, notice))
	case model.StatusFinished:
		http.Redirect(w, r, h.quizPath(v.ID, "/result"), http.StatusSeeOther)
	case model.StatusFailed:
		kind := quiz.FailureGeneration
		var genErr *quiz.GenerationError
		if errors.As(v.Err, &genErr) {
			kind = genErr.Kind
		}
		render(w, r, http.StatusOK, views.FailedPage(v.ID, kind))
	}
}

// navigationError maps a session error to a response. It reports whether
// a response was written.
func (h *Handler) navigationError(w http.ResponseWriter, r *http.Request, sess *quiz.Session, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, quiz.ErrSelectionRequired):
		h.renderSession(w, r, sess, "SelectionRequired")
	case errors.Is(err, quiz.ErrInvalidLabel):
		h.renderSession(w, r, sess, "InvalidSelection")
	case errors.Is(err, quiz.ErrNotActive):
		http.Redirect(w, r, h.quizPath(sess.ID(), ""), http.StatusSeeOther)
	default:
		slog.Error("quiz navigation failed", "session", sess.ID(), "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
	return true
}

// selectFromForm records the label field when the form carries one.
func (h *Handler) selectFromForm(w http.ResponseWriter, r *http.Request, sess *quiz.Session) bool {
	label := r.FormValue("label")
	if label == "" {
		return true
	}
	return !h.navigationError(w, r, sess, sess.SelectAnswer(label))
}

func (h *Handler) handleSelect(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if h.navigationError(w, r, sess, sess.SelectAnswer(r.FormValue("label"))) {
		return
	}
	http.Redirect(w, r, h.quizPath(sess.ID(), ""), http.StatusSeeOther)
}

func (h *Handler) handleNext(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok || !h.selectFromForm(w, r, sess) {
		return
	}
	finished, err := sess.Next()
	if h.navigationError(w, r, sess, err) {
		return
	}
	if finished {
		if res, ok := sess.Result(); ok {
			metrics.ScorePercent.Observe(float64(res.Percent()))
			slog.Info("quiz finished", "session", sess.ID(), "score", res.Score, "total", res.TotalQuestions)
		}
		http.Redirect(w, r, h.quizPath(sess.ID(), "/result"), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, h.quizPath(sess.ID(), ""), http.StatusSeeOther)
}

func (h *Handler) handleBack(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok || !h.selectFromForm(w, r, sess) {
		return
	}
	if h.navigationError(w, r, sess, sess.Back()) {
		return
	}
	http.Redirect(w, r, h.quizPath(sess.ID(), ""), http.StatusSeeOther)
}

func (h *Handler) handleAbandon(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.sessions.Abandon(id) {
		slog.Info("quiz abandoned", "session", id)
	}
	http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
}

// finished returns the result of the {id} session, or writes a response
// when there is none yet.
func (h *Handler) finished(w http.ResponseWriter, r *http.Request) (string, model.QuizResult, bool) {
	sess, ok := h.session(w, r)
	if !ok {
		return "", model.QuizResult{}, false
	}
	res, ok := sess.Result()
	if !ok {
		http.Redirect(w, r, h.quizPath(sess.ID(), ""), http.StatusSeeOther)
		return "", model.QuizResult{}, false
	}
	return sess.ID(), res, true
}

func (h *Handler) handleResult(w http.ResponseWriter, r *http.Request) {
	id, res, ok := h.finished(w, r)
	if !ok {
		return
	}
	render(w, r, http.StatusOK, views.ResultPage(id, res))
}

func (h *Handler) handleResultJSON(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.sessions.Get(chi.URLParam(r, "id"))
	if !ok {
		writeJSONError(w, http.StatusNotFound, "session not found")
		return
	}
	res, ok := sess.Result()
	if !ok {
		writeJSONError(w, http.StatusConflict, "quiz is not finished")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleReview(w http.ResponseWriter, r *http.Request) {
	id, res, ok := h.finished(w, r)
	if !ok {
		return
	}
	p := review.New(res)
	if q := r.URL.Query().Get("q"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil {
			http.Error(w, "invalid question index", http.StatusBadRequest)
			return
		}
		p.Seek(n)
	}
	page, ok := p.Page()
	if !ok {
		http.Redirect(w, r, h.quizPath(id, "/result"), http.StatusSeeOther)
		return
	}
	render(w, r, http.StatusOK, views.ReviewPage(id, page))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
