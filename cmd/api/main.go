package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dmchat/internal/config"
	"dmchat/internal/db"
	apihttp "dmchat/internal/http"
	"dmchat/internal/metrics"
	"dmchat/internal/realtime"
	"dmchat/internal/repository"
	"dmchat/internal/service"
	"dmchat/internal/storage"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		messageRepo repository.MessageRepository
		userRepo    repository.UserRepository
		pool        *pgxpool.Pool
	)
	if cfg.DatabaseURL != "" {
		pool, err = db.NewPool(ctx, cfg)
		if err != nil {
			logger.Fatal("db connect", zap.Error(err))
		}
		defer pool.Close()
		if err := db.EnsureSchema(ctx, pool); err != nil {
			logger.Fatal("db schema", zap.Error(err))
		}
		messageRepo = repository.NewPgMessageRepository(pool)
		userRepo = repository.NewPgUserRepository(pool)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory store")
		messageRepo = repository.NewMemoryMessageRepository()
		userRepo = repository.NewMemoryUserRepository()
	}

	var (
		sendLimiter = service.NewSendRateLimiter(cfg.SendRateWindow(), cfg.SendRateMax)
		tokenStore  service.RefreshTokenStore
	)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		} else {
			sendLimiter = service.NewRedisSendRateLimiter(redisClient, cfg.SendRateWindow(), cfg.SendRateMax)
			tokenStore = service.NewRedisRefreshTokenStore(redisClient)
		}
		cancel()
	}

	routerOpts := apihttp.RouterOptions{CORSAllowedOrigins: cfg.CORSAllowedOrigins}
	if pool != nil {
		routerOpts.DB = pool
	}

	var attachments storage.AttachmentStore
	switch cfg.AttachmentDriver {
	case "s3":
		s3Store, err := storage.NewS3Store(ctx, cfg.AWSRegion, cfg.AWSBucket, cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey)
		if err != nil {
			logger.Fatal("s3 storage", zap.Error(err))
		}
		attachments = s3Store
	default:
		local, err := storage.NewLocalStore(cfg.AttachmentDir, cfg.AttachmentURLPrefix)
		if err != nil {
			logger.Fatal("local storage", zap.Error(err))
		}
		attachments = local
		routerOpts.UploadsDir = local.Dir()
		routerOpts.UploadsPrefix = local.URLPrefix()
	}

	jwtSvc := service.NewJWTService(
		cfg.JWTSecret,
		time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute,
		time.Duration(cfg.JWTRefreshTTLMinutes)*time.Minute,
		tokenStore,
	)
	if cfg.JWTSecret == "" {
		logger.Warn("jwt secret not configured")
	}

	metrics.Init()
	hub := realtime.NewHub(logger)
	formatter := service.NewTimeFormatter(cfg.Location())

	messageSvc := service.NewMessageService(messageRepo, userRepo, attachments, hub, sendLimiter, formatter, cfg.DefaultAvatar, logger)
	conversationSvc := service.NewConversationService(messageRepo, userRepo, formatter, cfg.DefaultAvatar, logger)
	userSvc := service.NewUserService(logger, userRepo)

	router := apihttp.NewRouter(
		logger,
		routerOpts,
		jwtSvc,
		apihttp.NewUserHandler(logger, userSvc, jwtSvc),
		apihttp.NewMessageHandler(logger, messageSvc, conversationSvc),
		apihttp.NewWSHandler(logger, hub, cfg.WSAllowedOrigins),
	)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting server", zap.String("port", cfg.HTTPPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		// Los websockets no los cierra Shutdown: se cierran desde el hub.
		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
