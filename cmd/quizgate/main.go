package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/quizgate/internal/grader"
	"github.com/pavelanni/quizgate/internal/handler"
	appI18n "github.com/pavelanni/quizgate/internal/i18n"
	"github.com/pavelanni/quizgate/internal/ingest"
	"github.com/pavelanni/quizgate/internal/model"
	"github.com/pavelanni/quizgate/internal/report"
	"github.com/pavelanni/quizgate/internal/session"
	"github.com/pavelanni/quizgate/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "quizgate",
		Short: "Timed assessment server with one-attempt gating and AI grading",
	}

	serve := serveCmd()
	root.AddCommand(serve, ingestCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `quizgate --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP assessment server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "quizgate.db", "SQLite database path")
	f.StringP("lang", "l", "en", "Message language (en, ru)")
	f.String("grader-url", "", "Similarity grading service base URL")
	f.String("embeddings-url", "http://localhost:11434/v1", "OpenAI-compatible embeddings API base URL")
	f.String("embeddings-key", "ollama", "API key for the embeddings service")
	f.String("embeddings-model", "nomic-embed-text", "Embeddings model name")
	f.Duration("grade-timeout", 15*time.Second, "Per-question grading call timeout")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.String("admin-password", "", "Initial admin password (or set QUIZGATE_ADMIN_PASSWORD)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Publish a test from a questions file (.txt, .csv, .xlsx)",
		RunE:  runIngest,
	}
	f := cmd.Flags()
	f.String("db", "quizgate.db", "SQLite database path")
	f.String("test-id", "", "Unique test identifier (required)")
	f.String("title", "", "Test title (required)")
	f.StringP("file", "f", "", "Questions source file (required)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")

	_ = cmd.MarkFlagRequired("test-id")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a test's submissions as a CSV report",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "quizgate.db", "SQLite database path")
	f.String("test-id", "", "Test identifier (required)")
	f.String("report", "marks", "Report kind (marks, responses)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")

	_ = cmd.MarkFlagRequired("test-id")

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
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("QUIZGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("quizgate")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/quizgate")
	v.AddConfigPath("/etc/quizgate")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	// Seed default admin user if no users exist.
	if err := seedAdmin(db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	graderClient := buildGrader(v)
	orchestrator := grader.NewOrchestrator(graderClient)
	ctrl := session.NewController(db, orchestrator)

	h := handler.New(db, ctrl, handler.Config{
		SecureCookies: v.GetBool("secure-cookies"),
	})

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"db", v.GetString("db"),
		"lang", lang,
		"grader_url", v.GetString("grader-url"),
		"embeddings_model", v.GetString("embeddings-model"),
	)
	return http.ListenAndServe(addr, r)
}

// buildGrader picks the similarity backend: a dedicated grading service when
// its URL is configured, otherwise an OpenAI-compatible embeddings endpoint.
func buildGrader(v *viper.Viper) grader.Client {
	timeout := v.GetDuration("grade-timeout")
	if url := v.GetString("grader-url"); url != "" {
		return grader.NewHTTPClient(url, timeout)
	}
	return grader.NewEmbeddingClient(
		v.GetString("embeddings-url"),
		v.GetString("embeddings-key"),
		v.GetString("embeddings-model"),
		timeout,
	)
}

func runIngest(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	path := v.GetString("file")
	questions, err := ingest.FromFile(path)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if len(questions) == 0 {
		return fmt.Errorf("no questions found in %s", path)
	}

	test := model.Test{
		ID:        v.GetString("test-id"),
		Title:     v.GetString("title"),
		Questions: questions,
		Status:    model.TestActive,
	}
	if err := db.CreateTest(test); err != nil {
		return fmt.Errorf("publish test: %w", err)
	}

	slog.Info("test published", "test_id", test.ID, "title", test.Title, "questions", len(questions))
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

	testID := v.GetString("test-id")
	test, err := db.GetTest(testID)
	if err != nil {
		return fmt.Errorf("load test: %w", err)
	}
	subs, err := db.GetSubmissionsForTest(testID)
	if err != nil {
		return fmt.Errorf("load submissions: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch v.GetString("report") {
	case "marks":
		err = report.WriteMarksCSV(w, test, subs)
	case "responses":
		err = report.WriteResponsesCSV(w, test, subs)
	default:
		return fmt.Errorf("unknown report kind %q", v.GetString("report"))
	}
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	slog.Info("report written", "test_id", testID, "kind", v.GetString("report"), "submissions", len(subs))
	return nil
}

func seedAdmin(db *store.Store, password string) error {
	count, err := db.UserCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or QUIZGATE_ADMIN_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(model.User{
		Email:        "admin@localhost",
		DisplayName:  "Administrator",
		PasswordHash: string(hash),
		Role:         model.UserRoleAdmin,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "email", "admin@localhost")
	return nil
}
