package main

import (
	"context"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"studyroom/internal/ai"
	anthropicProvider "studyroom/internal/ai/providers/anthropic"
	openaiProvider "studyroom/internal/ai/providers/openai"
	"studyroom/internal/auth"
	"studyroom/internal/config"
	"studyroom/internal/handler"
	"studyroom/internal/learning"
	"studyroom/internal/middleware"
	"studyroom/internal/repository/postgres"
	conversationService "studyroom/internal/service/conversation"
	roomService "studyroom/internal/service/room"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	cfg := config.Load()

	// Setup structured logging
	logLevel := slog.LevelInfo
	if cfg.Environment == "dev" {
		logLevel = slog.LevelDebug
	}

	var logOut io.Writer = os.Stdout
	if cfg.Debug {
		if logFile, err := config.SetupLogFile("logs", 5); err != nil {
			log.Printf("log file unavailable, logging to stdout only: %v", err)
		} else {
			defer logFile.Close()
			logOut = io.MultiWriter(os.Stdout, logFile)
		}
	}

	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"table_prefix", cfg.TablePrefix,
	)

	// JWT verifier for bearer-token auth
	jwtVerifier, err := auth.NewJWTVerifier(cfg.JWKSURL, logger)
	if err != nil {
		log.Fatalf("Failed to create JWT verifier: %v", err)
	}
	defer jwtVerifier.Close()

	// Database
	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()

	logger.Info("database connected")

	tables := postgres.NewTableNames(cfg.TablePrefix)
	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	}

	roomRepo := postgres.NewRoomRepository(repoConfig)
	convRepo := postgres.NewConversationRepository(repoConfig)
	noteRepo := postgres.NewNoteRepository(repoConfig)
	refinementRepo := postgres.NewRefinementRepository(repoConfig)
	txManager := postgres.NewTransactionManager(pool)

	// Provider chain in configured priority order, template fallback last
	adapters, err := ai.BuildAdapters(cfg, map[string]ai.AdapterBuilder{
		"anthropic": func(cfg *config.Config) (ai.Adapter, error) {
			return anthropicProvider.NewProvider(cfg.AnthropicAPIKey, cfg.AnthropicModel)
		},
		"openai": func(cfg *config.Config) (ai.Adapter, error) {
			return openaiProvider.NewProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
		},
	}, logger)
	if err != nil {
		log.Fatalf("Failed to build provider adapters: %v", err)
	}

	archetypes, err := ai.NewArchetypeRegistry()
	if err != nil {
		log.Fatalf("Failed to load archetype registry: %v", err)
	}

	failover := ai.NewFailoverController(adapters, ai.NewTemplateFallback(), &cfg.AI, logger)
	engine := ai.NewEngine(archetypes, failover, &cfg.AI, logger)

	// Learning layer
	contextMgr := learning.NewContextManager(noteRepo, logger)
	scheduler := learning.NewNoteScheduler(
		convRepo,
		noteRepo,
		txManager,
		engine,
		cfg.AI.NoteMilestoneInterval,
		cfg.AI.RequestTimeout+5*time.Second,
		logger,
	)
	refiner := learning.NewRefiner(roomRepo, refinementRepo, txManager, engine, logger)

	// Services and handlers
	rooms := roomService.NewService(roomRepo, refinementRepo, refiner, logger)
	conversations := conversationService.NewService(convRepo, roomRepo, engine, contextMgr, scheduler, logger)

	roomHandler := handler.NewRoomHandler(rooms, logger)
	convHandler := handler.NewConversationHandler(conversations, logger)

	logger.Info("services initialized", "providers", len(adapters))

	// Router (Go 1.22+ method patterns)
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handler.HealthCheck)

	// Room routes
	mux.HandleFunc("POST /api/rooms", roomHandler.CreateRoom)
	mux.HandleFunc("GET /api/rooms", roomHandler.ListRooms)
	mux.HandleFunc("GET /api/rooms/{id}", roomHandler.GetRoom)
	mux.HandleFunc("DELETE /api/rooms/{id}", roomHandler.DeleteRoom)
	mux.HandleFunc("POST /api/rooms/{id}/refine", roomHandler.Refine)
	mux.HandleFunc("GET /api/rooms/{id}/refinements", roomHandler.ListRefinements)
	mux.HandleFunc("POST /api/rooms/{id}/refinements/{refinementID}/revert", roomHandler.Revert)

	// Conversation routes
	mux.HandleFunc("POST /api/rooms/{id}/conversations", convHandler.CreateConversation)
	mux.HandleFunc("GET /api/rooms/{id}/conversations", convHandler.ListConversations)
	mux.HandleFunc("GET /api/conversations/{id}/turns", convHandler.ListTurns)
	mux.HandleFunc("POST /api/conversations/{id}/messages", convHandler.SendMessage)
	mux.HandleFunc("POST /api/conversations/{id}/continue", convHandler.ContinueReply)

	// Middleware chain, applied in reverse order
	// Order: CORS → Recovery → Auth → Routes
	var root http.Handler = mux
	root = middleware.Auth(jwtVerifier)(root)
	root = middleware.Recovery(logger)(root)

	// CORS - must be before auth to handle OPTIONS pre-flight requests
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
	})
	root = corsHandler.Handler(root)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown: stop accepting, then let in-flight note
	// generations finish
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-shutdownCh
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
		scheduler.Wait()
	}()

	logger.Info("server listening", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}
	logger.Info("server stopped")
}
