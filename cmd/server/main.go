package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"quiz-live/internal/bank"
	"quiz-live/internal/game"
	"quiz-live/pkg/cache"
	"quiz-live/pkg/database"
	"quiz-live/pkg/websocket"
)

const (
	defaultAddr          = ":8080"
	defaultQuestionsFile = "data/questions.json"
	idleSessionTimeout   = 60 * time.Minute
	sweepInterval        = 10 * time.Minute
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn(".env file not found, using environment")
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	// Question bank: Postgres when configured, JSON file otherwise.
	source, err := questionSource(log)
	if err != nil {
		log.Error("question bank init failed", "error", err)
		os.Exit(1)
	}

	// Snapshot store: optional, the server runs without Redis.
	var store game.Store
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rc := cache.NewRedisCache(addr)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rc.Ping(ctx)
		cancel()
		if err != nil {
			log.Error("redis unreachable", "addr", addr, "error", err)
			os.Exit(1)
		}
		store = rc
		log.Info("snapshot store enabled", "addr", addr)
	}

	registry := game.NewRegistry()
	hub := websocket.NewHub()

	service := game.NewService(game.ServiceConfig{
		Registry:    registry,
		Source:      source,
		Broadcaster: hub,
		Store:       store,
		Logger:      log,
	})
	hub.SetGameService(service)
	go hub.Run()

	if store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := service.Restore(ctx); err != nil {
			log.Warn("session restore failed", "error", err)
		}
		cancel()
	}

	// Idle sessions are evicted in the background.
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for range ticker.C {
			for _, code := range registry.Sweep(idleSessionTimeout) {
				log.Info("idle session evicted", "code", code)
			}
		}
	}()

	router := mux.NewRouter()
	game.NewHandler(service).Register(router)
	router.HandleFunc("/ws/{gameCode}", hub.HandleWebSocket)

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	addr := os.Getenv("ADDR")
	if addr == "" {
		addr = defaultAddr
	}

	srv := &http.Server{
		Addr:         addr,
		Handler:      corsMiddleware.Handler(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGTERM, os.Interrupt)
	<-shutdown

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("forced shutdown", "error", err)
	}
	log.Info("server shut down gracefully")
}

// questionSource picks the bank backend: Postgres when DB_HOST is set,
// a JSON file otherwise.
func questionSource(log *slog.Logger) (game.QuestionSource, error) {
	if os.Getenv("DB_HOST") == "" {
		path := os.Getenv("QUESTIONS_FILE")
		if path == "" {
			path = defaultQuestionsFile
		}
		log.Info("question bank from file", "path", path)
		return bank.NewFileSource(path), nil
	}

	db, err := database.NewPostgresDB(&database.Config{
		Host:     os.Getenv("DB_HOST"),
		Port:     os.Getenv("DB_PORT"),
		User:     os.Getenv("DB_USER"),
		Password: os.Getenv("DB_PASSWORD"),
		DBName:   os.Getenv("DB_NAME"),
	})
	if err != nil {
		return nil, err
	}

	source := bank.NewDBSource(db)
	if err := source.Migrate(); err != nil {
		return nil, err
	}

	// An optional seed file fills an empty bank on first boot.
	if seed := os.Getenv("QUESTIONS_SEED_FILE"); seed != "" {
		questions, err := bank.NewFileSource(seed).Load(context.Background())
		if err != nil {
			return nil, err
		}
		if err := source.Seed(context.Background(), questions); err != nil {
			return nil, err
		}
		log.Info("question bank seeded", "count", len(questions))
	}

	log.Info("question bank from postgres", "host", os.Getenv("DB_HOST"))
	return source, nil
}

func allowedOrigins() []string {
	if origin := os.Getenv("ALLOWED_ORIGIN"); origin != "" {
		return []string{origin}
	}
	return []string{"http://localhost:3000"}
}
