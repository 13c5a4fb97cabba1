package main

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"osteo-training-backend/internal/admin"
	"osteo-training-backend/internal/auth"
	"osteo-training-backend/internal/chat"
	"osteo-training-backend/internal/feedback"
	"osteo-training-backend/internal/llm"
	"osteo-training-backend/internal/platform/config"
	"osteo-training-backend/internal/platform/logger"
	"osteo-training-backend/internal/progression"
	"osteo-training-backend/internal/store"
	"osteo-training-backend/internal/transcript"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// 1. Infrastructure
	var db *sql.DB
	for i := 0; i < 10; i++ {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err == nil {
			err = db.Ping()
		}
		if err == nil {
			break
		}
		log.Info("waiting for database", "attempt", i+1, "error", err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		log.Fatal("could not connect to database", "error", err)
	}
	log.Info("connected to database")

	m, err := migrate.New("file://migrations", cfg.DatabaseURL)
	if err != nil {
		log.Fatal("migration init failed", "error", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		log.Fatal("migration up failed", "error", err)
	}
	log.Info("migrations applied")

	// 2. Clients
	generator, err := llm.NewGemini(context.Background(), cfg.GeminiAPIKey)
	if err != nil {
		log.Fatal("gemini client init failed", "error", err)
	}
	if cfg.GeminiAPIKey == "" {
		log.Warn("GEMINI_API_KEY is not set, patient simulation and feedback will be unavailable")
	}

	// 3. Services
	gw := store.NewPostgres(db)
	engine := progression.NewEngine(gw, log, nil, nil)
	sequencer := transcript.NewSequencer(gw)
	orchestrator := chat.NewOrchestrator(log, engine, sequencer, generator, cfg.GeminiModelChat, cfg.HistoryTurns)
	gate := feedback.NewGate(gw, log, generator, engine, sequencer, cfg.GeminiModelEval)
	authenticator := auth.NewAuthenticator(gw, log, cfg.JWTSecret)

	studentHandler := chat.NewHandler(log, engine, orchestrator, gate)
	adminHandler := admin.NewHandler(gw, log, gate, engine, sequencer)

	// 4. Router
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(cfg.AppOrigin))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(authenticator.Middleware)
		auth.RegisterRoutes(r, authenticator)
		chat.RegisterRoutes(r, studentHandler)

		r.Group(func(r chi.Router) {
			r.Use(authenticator.RequireAdmin)
			admin.RegisterRoutes(r, adminHandler)
		})
	})

	log.Info("server starting", "port", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatal("server stopped", "error", err)
	}
}

func corsMiddleware(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization")
			if r.Method == http.MethodOptions {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
