package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ucode/internal/common/cache"
	"ucode/internal/common/db"
	commonmw "ucode/internal/common/http/middleware"
	"ucode/internal/common/mq"
	"ucode/internal/common/storage"
	"ucode/internal/submit/controller"
	"ucode/internal/submit/repository"
	"ucode/internal/submit/service"
	"ucode/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/submit-service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	envPath := flag.String("env", ".env", "Optional env file expanded into the config")
	flag.Parse()

	if err := loadDotEnv(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(appCfg); err != nil {
		logger.Error(context.Background(), "submit service stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(appCfg *AppConfig) error {
	ctx := context.Background()

	mysqlDB, err := db.NewMySQLWithConfig(appCfg.Database)
	if err != nil {
		return fmt.Errorf("init database failed: %w", err)
	}
	defer func() {
		_ = mysqlDB.Close()
	}()

	redisCache, err := cache.NewRedisCacheWithConfig(appCfg.Redis)
	if err != nil {
		return fmt.Errorf("init redis failed: %w", err)
	}
	defer func() {
		_ = redisCache.Close()
	}()

	mqClient, err := mq.NewKafkaQueue(appCfg.Kafka)
	if err != nil {
		return fmt.Errorf("init kafka failed: %w", err)
	}
	defer func() {
		_ = mqClient.Close()
	}()

	objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
	if err != nil {
		return fmt.Errorf("init minio failed: %w", err)
	}
	if err := objStorage.EnsureBucket(ctx, appCfg.Submit.SourceBucket); err != nil {
		return fmt.Errorf("ensure source bucket failed: %w", err)
	}

	submissionRepo := repository.NewSubmissionRepository(mysqlDB)
	gradingRepo := repository.NewGradingRepository(mysqlDB)
	languageRepo := repository.NewLanguageRepositoryWithTTL(mysqlDB, redisCache, appCfg.LanguageCacheTTL, appCfg.LanguageEmptyTTL)
	catalogRepo := repository.NewCatalogRepository(mysqlDB, redisCache)
	dispatcher := repository.NewMQJudgeDispatcher(mqClient)

	languageService, err := service.NewLanguageService(service.LanguageServiceConfig{
		LanguageRepo: languageRepo,
		CatalogRepo:  catalogRepo,
		Timeouts:     appCfg.Submit.Timeouts,
	})
	if err != nil {
		return fmt.Errorf("init language service failed: %w", err)
	}

	submitService, err := service.NewSubmitService(service.Config{
		DB:               mysqlDB,
		SubmissionRepo:   submissionRepo,
		GradingRepo:      gradingRepo,
		CatalogRepo:      catalogRepo,
		Dispatcher:       dispatcher,
		Limits:           languageService,
		Storage:          objStorage,
		Cache:            redisCache,
		Topics:           appCfg.Topics,
		SourceBucket:     appCfg.Submit.SourceBucket,
		SourceKeyPrefix:  appCfg.Submit.SourceKeyPrefix,
		MaxCodeBytes:     appCfg.Submit.MaxCodeBytes,
		PracticeMaxScore: appCfg.Submit.PracticeMaxScore,
		IdempotencyTTL:   appCfg.Submit.IdempotencyTTL,
		RateLimit:        appCfg.Submit.RateLimit,
		Timeouts:         appCfg.Submit.Timeouts,
		PageBounds:       appCfg.Submit.Pagination,
		Wait:             appCfg.Submit.Wait,
	})
	if err != nil {
		return fmt.Errorf("init submit service failed: %w", err)
	}

	consumerOpts := appCfg.Submit.StatusConsumer.toSubscribeOptions()
	consumerOpts.SetDefaults()
	if err := submitService.Subscribe(ctx, mqClient, &consumerOpts); err != nil {
		return fmt.Errorf("subscribe status topic failed: %w", err)
	}
	if err := mqClient.Start(); err != nil {
		return fmt.Errorf("start kafka consumer failed: %w", err)
	}
	defer func() {
		_ = mqClient.Stop()
	}()

	httpServer := buildHTTPServer(appCfg.Server, submitService, languageService)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("init http listener failed: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "submit http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server stopped: %w", err)
		}
	case <-shutdownCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		logger.Error(ctx, "http server shutdown failed", zap.Error(err))
	}
	return nil
}

func buildHTTPServer(cfg ServerConfig, submitService *service.SubmitService, languageService *service.LanguageService) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(requestLogger())

	controller.NewSubmitController(submitService).Register(router)
	controller.NewLanguageController(languageService).Register(router)

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
