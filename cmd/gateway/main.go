package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	api "github.com/staffstudy/staffstudy-lms/internal/api/http"
	auth "github.com/staffstudy/staffstudy-lms/internal/auth/middleware"
	"github.com/staffstudy/staffstudy-lms/internal/config"
	"github.com/staffstudy/staffstudy-lms/internal/db"
	"github.com/staffstudy/staffstudy-lms/internal/rbac"
	"github.com/staffstudy/staffstudy-lms/internal/report"
	"github.com/staffstudy/staffstudy-lms/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gateway",
		Short: "Assessment gateway for the staffstudy learning platform",
	}

	serve := serveCmd()
	root.AddCommand(serve)

	// Bare `gateway` starts the server.
	root.RunE = serve.RunE
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
	f.String("db-driver", "sqlite", "Database driver (sqlite, postgres)")
	f.String("db-dsn", "", "Database DSN (driver default when empty)")
	f.String("auth-secret", "", "HMAC secret for access tokens")
	f.String("admin-user", "admin", "Username for the seeded admin account")
	f.String("admin-password", "", "Initial admin password (or set STAFFSTUDY_ADMIN_PASSWORD)")
	f.String("cors-origins", "http://localhost:3000", "Comma-separated allowed CORS origins")
	f.Int64("late-grace-seconds", 30, "Grace period past the time limit before a submission is rejected")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func setupLogging(v *viper.Viper) {
	var level slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		h = slog.NewJSONHandler(os.Stderr, opts)
	default:
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

// viperForCmd binds a command's flags and environment to a fresh viper
// instance. Env vars use the STAFFSTUDY_ prefix with dashes mapped to
// underscores.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("STAFFSTUDY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("staffstudy")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/staffstudy")
	v.AddConfigPath("/etc/staffstudy")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)
	cfg := config.FromViper(v)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer dbh.Close()

	st := store.NewSQLStore(dbh, cfg.LateGraceSeconds)
	agg := report.NewAggregator(st, st)

	if err := seedAdmin(ctx, st, cfg.AdminUser, cfg.AdminPassword); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	authSvc := auth.NewAuthService(cfg.AuthSecret)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(authSvc, st))

	// Protected API (JWT → role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))

		// Authoring (admin)
		pr.With(rbac.Require("exam:create")).
			Post("/exams", api.SaveDraftHandler(st))
		pr.With(rbac.Require("exam:update")).
			Patch("/exams/{examID}", api.UpdateExamMetaHandler(st))
		pr.With(rbac.Require("exam:publish")).
			Post("/exams/{examID}/publish", api.PublishExamHandler(st))
		pr.With(rbac.Require("exam:archive")).
			Post("/exams/{examID}/archive", api.ArchiveExamHandler(st))
		pr.With(rbac.Require("exam:create")).
			Get("/exams/{examID}/full", api.GetExamAdminHandler(st))

		// Catalog and learner view
		pr.With(rbac.Require("exam:list")).
			Get("/exams", api.ListExamsHandler(st))
		pr.With(rbac.Require("exam:view")).
			Get("/exams/{examID}", api.GetExamHandler(st))

		// Attempts
		pr.With(rbac.Require("attempt:submit")).
			Post("/exams/{examID}/attempts", api.SubmitAttemptHandler(st))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-team")).
			Get("/attempts/{attemptID}", api.GetAttemptHandler(st))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-team")).
			Get("/attempts", api.ListAttemptsHandler(st))
		pr.With(rbac.Require("attempt:retract")).
			Post("/attempts/{attemptID}/retract", api.RetractAttemptHandler(st))

		// Dashboards (manager/admin)
		pr.With(rbac.Require("report:view")).
			Get("/reports/exams/{examID}", api.ExamStatsHandler(agg))
		pr.With(rbac.Require("report:view")).
			Get("/reports/users", api.UserSummaryHandler(agg))
		pr.With(rbac.Require("report:view")).
			Get("/reports/users/{userID}/exams/{examID}/latest", api.LatestAttemptHandler(agg))

		// Attempt feed replay (admin)
		pr.With(rbac.Require("events:replay")).
			Get("/events", api.ReplayEventsHandler(st.EventLog()))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	slog.Info("starting server", "addr", cfg.HTTPAddr, "db_driver", cfg.DBDriver,
		"late_grace_seconds", cfg.LateGraceSeconds)
	return http.ListenAndServe(cfg.HTTPAddr, r)
}

// seedAdmin creates the admin account on first boot. Without a configured
// password the account is skipped so production can insist on explicit
// credentials.
func seedAdmin(ctx context.Context, st store.Store, username, password string) error {
	if password == "" {
		slog.Warn("admin password not set; skipping admin seed")
		return nil
	}
	if _, err := st.GetUserByUsername(ctx, username); err == nil {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := st.UpsertUser(ctx, store.User{
		Username:     username,
		Name:         "Administrator",
		Role:         "admin",
		PasswordHash: string(hash),
	}); err != nil {
		return err
	}
	slog.Info("seeded admin account", "username", username)
	return nil
}
