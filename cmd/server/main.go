package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agroplatform/dictionary-service/internal/cache"
	"github.com/agroplatform/dictionary-service/internal/config"
	"github.com/agroplatform/dictionary-service/internal/handlers"
	"github.com/agroplatform/dictionary-service/internal/lock"
	"github.com/agroplatform/dictionary-service/internal/repositories/postgres"
	"github.com/agroplatform/dictionary-service/internal/services"
	"github.com/agroplatform/dictionary-service/internal/utils"
	"github.com/agroplatform/dictionary-service/internal/validator"
	"github.com/agroplatform/dictionary-service/pkg"
	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	var logger utils.Logger
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
		logger = utils.NewDefaultLogger()
	} else {
		logger = utils.NewDevelopmentLogger()
	}

	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := pkg.AutoMigrate(db); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	redisClient, err := pkg.NewRedisClient(cfg)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	zapLogger, err := zap.NewProduction()
	if err != nil {
		logger.Error("failed to create zap logger", "error", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()

	publisher, err := cfg.Events.CreateEventPublisher(utils.ToSlogLogger(logger))
	if err != nil {
		logger.Error("failed to create event publisher", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	v := validator.New()
	repo := postgres.NewRepository(db)
	locker := lock.NewRedisLocker(redisClient, zapLogger, cfg.LockTTL)
	cacheService := cache.NewRedisCache(redisClient, zapLogger)

	serviceManager := services.NewServiceManager(repo, v, locker, cacheService, publisher, logger)

	authClient := casdoorsdk.NewClient(
		cfg.Casdoor.Endpoint,
		cfg.Casdoor.ClientID,
		cfg.Casdoor.ClientSecret,
		cfg.Casdoor.Certificate,
		cfg.Casdoor.Organization,
		cfg.Casdoor.Application,
	)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.LoggerMiddleware(logger))

	handlerManager := handlers.NewHandlerManager(serviceManager, authClient, logger)
	handlerManager.SetupRoutes(router)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("starting dictionary service", "port", cfg.Port, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", "error", err)
	}
}
