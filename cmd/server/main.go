package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"namecard/internal/app"
	"namecard/internal/config"
	"namecard/internal/notify"
	"namecard/internal/ratelimit"
	"namecard/internal/server"
	"namecard/internal/usertoken"
	"namecard/internal/util"
	"namecard/pkg/ai"
	"namecard/pkg/storage"
	"namecard/pkg/store"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	leeway, err := config.ParseJWTLeeway(cfg.JWTLeeway)
	if err != nil {
		log.Fatalf("failed to parse jwt leeway: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dataStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		util.Fatal("failed to init store", "err", err)
	}

	generator, err := ai.NewGenerator(ai.GeneratorConfig{
		Provider: cfg.GenerationProvider,
		APIKey:   firstNonEmpty(cfg.GenerationAPIKey, cfg.GeminiAPIKey),
		Model:    cfg.GenerationModel,
		BaseURL:  cfg.GenerationBaseURL,
	})
	if err != nil {
		util.Fatal("failed to init generator", "err", err)
	}
	if generator == nil {
		logger.Warn("no generation api key configured, AI features disabled")
	}

	verifier, err := usertoken.NewVerifier(ctx, usertoken.Config{
		JWKSURL:  cfg.AuthJWKSURL,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		Leeway:   leeway,
	})
	if err != nil {
		util.Fatal("failed to init token verifier", "err", err)
	}

	redisClient, err := ratelimit.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		util.Fatal("failed to connect redis", "err", err)
	}
	defer redisClient.Close()

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		util.Fatal("invalid trusted proxies", "err", err)
	}

	notifier, closeNotifier, err := buildNotifier(cfg, redisClient)
	if err != nil {
		util.Fatal("failed to init notifier", "err", err)
	}
	defer closeNotifier()

	objects, uploadDir, err := buildObjectStore(cfg)
	if err != nil {
		util.Fatal("failed to init object store", "err", err)
	}

	defaults := app.DefaultCosts()
	costs := app.Costs{
		Chat:      config.CostOr(cfg.Costs.Chat, defaults.Chat),
		Quiz:      config.CostOr(cfg.Costs.Quiz, defaults.Quiz),
		Synergy:   config.CostOr(cfg.Costs.Synergy, defaults.Synergy),
		Translate: config.CostOr(cfg.Costs.Translate, defaults.Translate),
	}
	appCfg := app.Config{
		Store:            dataStore,
		Notifier:         notifier,
		Costs:            &costs,
		SetupCredits:     cfg.SetupCredits,
		QuizQuestions:    cfg.QuizQuestions,
		MaxImageBytes:    cfg.MaxImageBytes,
		GuestbookLimit:   cfg.GuestbookLimit,
		SuperAdminEmails: cfg.SuperAdminEmails,
	}
	if generator != nil {
		appCfg.Generator = generator
	}
	if objects != nil {
		appCfg.Objects = objects
	}
	appCore, err := app.New(appCfg)
	if err != nil {
		util.Fatal("failed to init app", "err", err)
	}

	httpServer, err := server.New(server.Config{
		App:                         appCore,
		TokenVerifier:               verifier,
		Redis:                       redisClient,
		TrustedProxies:              trusted,
		AllowedOrigins:              cfg.AllowedOrigins,
		UploadDir:                   uploadDir,
		ChatRateLimitPerMinute:      cfg.ChatRateLimitPerMinute,
		AIRateLimitPerMinute:        cfg.AIRateLimitPerMinute,
		GuestbookRateLimitPerMinute: cfg.GuestbookRateLimitPerMinute,
		MaxImageBytes:               cfg.MaxImageBytes,
	})
	if err != nil {
		util.Fatal("failed to init server", "err", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server listening", "addr", addr, "ai", appCore.AIEnabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
	}
}

// buildNotifier prefers RabbitMQ, then a Redis stream, then no notifications.
func buildNotifier(cfg config.FileConfig, redisClient *redis.Client) (notify.Notifier, func(), error) {
	switch {
	case strings.TrimSpace(cfg.RabbitMQURL) != "":
		n, err := notify.NewRabbitMQNotifier(cfg.RabbitMQURL, cfg.RabbitMQQueue)
		if err != nil {
			return nil, nil, err
		}
		return n, func() { _ = n.Close() }, nil
	case strings.TrimSpace(cfg.NotifyStream) != "":
		n, err := notify.NewRedisStreamNotifier(redisClient, cfg.NotifyStream, 0)
		if err != nil {
			return nil, nil, err
		}
		return n, func() {}, nil
	default:
		return notify.Nop{}, func() {}, nil
	}
}

// buildObjectStore returns MinIO when configured, otherwise local disk served
// under /uploads/. The returned directory is empty for MinIO.
func buildObjectStore(cfg config.FileConfig) (storage.ObjectStore, string, error) {
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		objects, err := storage.NewMinioStore(storage.MinioOptions{
			Endpoint:      cfg.MinioEndpoint,
			AccessKey:     cfg.MinioAccessKey,
			SecretKey:     cfg.MinioSecretKey,
			Bucket:        cfg.MinioBucket,
			UseSSL:        cfg.MinioUseSSL,
			PublicBaseURL: cfg.MinioPublicURL,
		})
		if err != nil {
			return nil, "", err
		}
		return objects, "", nil
	}
	dir := strings.TrimSpace(cfg.UploadDir)
	if dir == "" {
		return nil, "", nil
	}
	publicBase := strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/") + "/uploads"
	objects, err := storage.NewFileStore(dir, publicBase)
	if err != nil {
		return nil, "", err
	}
	return objects, objects.Root(), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
