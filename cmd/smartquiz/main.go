package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pavelanni/smartquiz/internal/handler"
	appI18n "github.com/pavelanni/smartquiz/internal/i18n"
	"github.com/pavelanni/smartquiz/internal/llm"
	"github.com/pavelanni/smartquiz/internal/metrics"
	"github.com/pavelanni/smartquiz/internal/model"
	"github.com/pavelanni/smartquiz/internal/quiz"
	"github.com/pavelanni/smartquiz/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "smartquiz",
		Short: "Multiple-choice quizzes generated from summaries",
	}

	serve := serveCmd()
	root.AddCommand(serve, parseCmd(), playCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `smartquiz --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLogFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	f.String("log-file", "", "Also write logs to this file, rotated by size")
}

func addLLMFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.Int("min-questions", 5, "Minimum number of questions to ask for")
	f.Int("max-questions", 20, "Maximum number of questions to ask for")
	f.Duration("llm-timeout", 60*time.Second, "Time limit for one generation call")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP quiz server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "smartquiz.db", "SQLite database path")
	f.StringP("format", "f", string(model.FormatText), "Quiz format requested from the LLM (text, json)")
	f.StringP("lang", "l", "en", "Default UI language (en, id)")
	f.Duration("session-ttl", 2*time.Hour, "Discard quiz sessions idle for this long (0 = never)")
	f.String("sweep-schedule", "@every 5m", "Cron schedule for removing idle sessions")
	f.Int("rate-limit", 10, "Quiz generations allowed per client per rate window (0 = unlimited)")
	f.Duration("rate-window", time.Minute, "Rate limit window")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /quiz)")
	f.Bool("secure-cookies", true, "Set Secure flag on cookies")
	f.String("admin-password", "", "Admin password for /admin (or set SMARTQUIZ_ADMIN_PASSWORD)")
	f.Bool("skip-ping", false, "Do not check the LLM endpoint at startup")
	addLLMFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the generation audit log as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "smartquiz.db", "SQLite database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)
	return cmd
}

func parseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse [file]",
		Short: "Parse a raw LLM response and print the questions as JSON",
		Long:  "Parse a raw LLM response (a file, or stdin when the argument is - or missing) and print the valid questions as JSON.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runParse,
	}
	cmd.Flags().StringP("format", "f", string(model.FormatText), "Response format (text, json)")
	addLogFlags(cmd)
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	if path := v.GetString("log-file"); path != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   path,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		})
	}

	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(out, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(out, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("SMARTQUIZ")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("smartquiz")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/smartquiz")
	v.AddConfigPath("/etc/smartquiz")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func outputFormat(v *viper.Viper) (model.OutputFormat, error) {
	f := model.OutputFormat(strings.ToLower(strings.TrimSpace(v.GetString("format"))))
	switch f {
	case model.FormatText, model.FormatJSON:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q (want text or json)", f)
}

func newLLMClient(v *viper.Viper, format model.OutputFormat) (*llm.Client, error) {
	return llm.New(
		v.GetString("llm-url"),
		v.GetString("llm-key"),
		v.GetString("llm-model"),
		format,
		llm.WithQuestionRange(v.GetInt("min-questions"), v.GetInt("max-questions")),
	)
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	format, err := outputFormat(v)
	if err != nil {
		return err
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if pw := v.GetString("admin-password"); pw != "" {
		if err := handler.SetAdminPassword(db, pw); err != nil {
			return fmt.Errorf("set admin password: %w", err)
		}
		slog.Info("admin password updated")
	} else if hash, _ := db.GetMetadata(store.KeyAdminPasswordHash); hash == "" {
		slog.Warn("no admin password set, /admin is disabled")
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	llmClient, err := newLLMClient(v, format)
	if err != nil {
		return fmt.Errorf("create LLM client: %w", err)
	}
	if !v.GetBool("skip-ping") {
		if err := llmClient.Ping(context.Background()); err != nil {
			return fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	cfg := model.AppConfig{
		Format:        format,
		MinQuestions:  v.GetInt("min-questions"),
		MaxQuestions:  v.GetInt("max-questions"),
		LLMTimeout:    v.GetDuration("llm-timeout"),
		SessionTTL:    v.GetDuration("session-ttl"),
		RateLimit:     v.GetInt("rate-limit"),
		RateWindow:    v.GetDuration("rate-window"),
		BasePath:      basePath,
		SecureCookies: v.GetBool("secure-cookies"),
	}

	metrics.Init()
	sessions := quiz.NewRegistry(cfg.SessionTTL)

	h, err := handler.New(db, llmClient, sessions, cfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	sweeper, err := sessions.StartSweeper(v.GetString("sweep-schedule"))
	if err != nil {
		return fmt.Errorf("start session sweeper: %w", err)
	}
	if _, err := sweeper.AddFunc(v.GetString("sweep-schedule"), h.PruneVisitors); err != nil {
		return fmt.Errorf("schedule rate limiter pruning: %w", err)
	}
	defer sweeper.Stop()

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(appI18n.Middleware(cfg.SecureCookies))
	r.Handle("/metrics", metrics.Handler())

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Group(func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
	}

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", addr,
			"model", v.GetString("llm-model"),
			"llm_url", v.GetString("llm-url"),
			"format", format,
			"lang", lang,
			"questions", fmt.Sprintf("%d-%d", cfg.MinQuestions, cfg.MaxQuestions),
			"session_ttl", cfg.SessionTTL,
			"base_path", basePath,
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown", "error", err)
	}
	// Let in-flight generations record their outcome before the store closes.
	h.Wait()
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	records, err := db.ExportGenerations()
	if err != nil {
		return fmt.Errorf("export generations: %w", err)
	}

	export := model.GenerationExport{
		ExportedAt:  time.Now().UTC(),
		Total:       len(records),
		Generations: records,
	}
	for _, rec := range records {
		if rec.Error != "" {
			export.Failed++
		}
		if !slices.Contains(export.Models, rec.Model) {
			export.Models = append(export.Models, rec.Model)
		}
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return writeJSON(w, export)
}

func runParse(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	format, err := outputFormat(v)
	if err != nil {
		return err
	}
	raw, err := readInput(cmd, args)
	if err != nil {
		return err
	}

	questions := quiz.ParserFor(format).Parse(raw)
	if len(questions) == 0 {
		return quiz.ErrNoQuestions
	}
	slog.Info("parsed response", "questions", len(questions))
	return writeJSON(cmd.OutOrStdout(), questions)
}

// readInput reads the file named by args[0], or stdin for "-" or no argument.
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("read %s: %w", args[0], err)
	}
	return string(data), nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)
	return nil
}
