package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ponraviraj/gemini-chat/internal/auth"
	"github.com/ponraviraj/gemini-chat/internal/chat"
	"github.com/ponraviraj/gemini-chat/internal/config"
	"github.com/ponraviraj/gemini-chat/internal/llm"
	"github.com/ponraviraj/gemini-chat/internal/logging"
	"github.com/ponraviraj/gemini-chat/internal/metrics"
	"github.com/ponraviraj/gemini-chat/internal/middleware"
	"github.com/ponraviraj/gemini-chat/internal/store"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		fallback := logging.New("info", false)
		fallback.Fatal().Err(err).Msg("load config")
	}
	log := logging.New(cfg.LogLevel, cfg.LogPretty)
	ctx := context.Background()

	// ── Credential + transcript storage ──────────────────────
	var (
		users       store.UserStore
		transcripts store.TranscriptStore
	)
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres connect")
		}
		defer pool.Close()
		pgStore := store.NewPostgresStore(pool)
		if err := pgStore.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("postgres migrate")
		}
		users, transcripts = pgStore, pgStore
	case config.DriverFile:
		fileStore, err := store.NewFileStore(cfg.DataDir)
		if err != nil {
			log.Fatal().Err(err).Msg("open file store")
		}
		users, transcripts = fileStore, fileStore
	}

	// ── Redis sessions ───────────────────────────────────────
	rdb, err := store.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connect")
	}
	defer rdb.Close()
	sessions := auth.NewSessionStore(rdb)

	// ── MongoDB trace log (optional) ─────────────────────────
	var traces chat.TraceStore
	if cfg.MongoURI != "" {
		mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			log.Fatal().Err(err).Msg("mongo connect")
		}
		defer mongoClient.Disconnect(ctx)
		traces = store.NewMongoTraceStore(mongoClient.Database(cfg.MongoDB))
	} else {
		log.Info().Msg("MONGO_URI not set, model-call tracing disabled")
	}

	// ── MinIO transcript exports ─────────────────────────────
	exports, err := store.NewMinioStore(
		ctx, cfg.MinioEndpoint, cfg.MinioAccessKey,
		cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("minio connect")
	}

	// ── Hosted model ─────────────────────────────────────────
	model := llm.NewOpenAI(cfg.ModelAPIKey, cfg.ModelBaseURL, cfg.ModelName)

	// ── Services and handlers ────────────────────────────────
	m := metrics.New(prometheus.DefaultRegisterer)
	chatService := chat.NewService(model, transcripts, traces, log, m)
	authHandler := auth.NewHandler(users, transcripts, sessions, chatService, log, m)
	chatHandler := chat.NewHandler(chatService, transcripts, sessions, exports, log)

	// ── Router ───────────────────────────────────────────────
	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Session Manager view state (public, reports auth page when anonymous)
	r.Get("/api/session", authHandler.State)

	// Auth routes
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.With(middleware.RequireAuth(sessions)).Get("/me", authHandler.Me)
	})

	// Chat routes (protected)
	r.Route("/api/chat", func(r chi.Router) {
		r.Use(middleware.RequireAuth(sessions))
		r.Post("/send", chatHandler.Send)
		r.Get("/history", chatHandler.History)
		r.Post("/history/visibility", chatHandler.ToggleHistory)
		r.Post("/export", chatHandler.CreateExport)
		r.Get("/export", chatHandler.DownloadExport)
		r.Get("/traces", chatHandler.Traces)
	})

	// Quiz mini-game (protected)
	r.Route("/api/quiz", func(r chi.Router) {
		r.Use(middleware.RequireAuth(sessions))
		r.Get("/", chatHandler.Quiz)
		r.Post("/answer", chatHandler.QuizAnswer)
	})

	// ── Server ───────────────────────────────────────────────
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  time.Minute,
		WriteTimeout: 5 * time.Minute,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("driver", cfg.StorageDriver).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	shutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	srv.Shutdown(shutCtx)
}
