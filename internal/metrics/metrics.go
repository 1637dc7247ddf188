package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Generation outcomes.
const (
	OutcomeOK         = "ok"
	OutcomeGeneration = "generation_failure"
	OutcomeParse      = "parse_failure"
	OutcomeDiscarded  = "discarded"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartquiz_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smartquiz_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"method", "endpoint"},
	)

	Generations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartquiz_generations_total",
			Help: "Quiz generation calls by outcome",
		},
		[]string{"outcome"},
	)

	GenerationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "smartquiz_generation_duration_seconds",
			Help:    "Latency of the generation service",
			Buckets: []float64{1, 2, 5, 10, 20, 40, 60},
		},
	)

	QuestionsParsed = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "smartquiz_questions_parsed",
			Help:    "Valid questions extracted per generation response",
			Buckets: []float64{0, 1, 5, 10, 15, 20},
		},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "smartquiz_active_sessions",
			Help: "Quiz sessions currently held in memory",
		},
	)

	ScorePercent = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "smartquiz_score_percent",
			Help:    "Score of finished quizzes in percent",
			Buckets: []float64{0, 25, 50, 75, 100},
		},
	)
)

var initOnce sync.Once

// Init registers all collectors with the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			Generations,
			GenerationDuration,
			QuestionsParsed,
			ActiveSessions,
			ScorePercent,
		)
	})
}

// Middleware records request counts and durations per route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			endpoint = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RequestCounter.WithLabelValues(r.Method, endpoint, strconv.Itoa(status)).Inc()
		RequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
