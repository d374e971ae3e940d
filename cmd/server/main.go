package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"

	"storyline-server/internal/config"
	"storyline-server/internal/database"
	"storyline-server/internal/engine"
	"storyline-server/internal/freeroam"
	"storyline-server/internal/handler"
	"storyline-server/internal/lock"
	applogger "storyline-server/internal/logger"
	"storyline-server/internal/middleware"
	"storyline-server/internal/repository"
	"storyline-server/internal/service"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := applogger.New(applogger.Config{Level: cfg.LogLevel})
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	logger.Info("Logger initialized", zap.String("logLevel", cfg.LogLevel))

	ctx := context.Background()

	dbPool, err := database.NewPool(ctx, cfg.GetDSN(), cfg.DBMaxConns, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer dbPool.Close()

	if err := database.RunMigrations(cfg.MigrationsPath, cfg.GetDSN(), logger); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Connected to Redis", zap.String("addr", cfg.RedisAddr))

	replyGen, err := freeroam.NewOpenAIClient(freeroam.OpenAIConfig{
		APIKey:     cfg.AIAPIKey,
		BaseURL:    cfg.AIBaseURL,
		ModelName:  cfg.AIModelName,
		Timeout:    cfg.AITimeout,
		MaxRetries: cfg.AIMaxRetries,
	}, logger)
	if err != nil {
		logger.Fatal("failed to create reply generator", zap.Error(err))
	}

	chapterRepo := repository.NewPgChapterRepository(dbPool, logger)
	progressRepo := repository.NewPgProgressRepository(dbPool, logger)
	locker := lock.NewRedisProgressLocker(redisClient, cfg.LockTTL, logger)
	bridge := freeroam.NewBridge(replyGen, freeroam.NewTiktokenCounter(logger), cfg.HistoryTokenBudget, logger)
	eng := engine.New(logger)

	editorSvc := service.NewEditorService(chapterRepo, logger)
	storySvc := service.NewStorylineService(chapterRepo, progressRepo, eng, bridge, locker, logger)
	storylineHandler := handler.NewStorylineHandler(editorSvc, storySvc, logger)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.ZapLogger(logger))
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	prom := ginprometheus.NewPrometheus("storyline")
	prom.Use(r)

	storylineHandler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		logger.Info("Storyline server listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}
	logger.Info("Server stopped")
}
