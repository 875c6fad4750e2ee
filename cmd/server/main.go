package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"studyvault/internal/app"
	"studyvault/internal/config"
	"studyvault/internal/ledger"
	"studyvault/internal/ratelimit"
	"studyvault/internal/server"
	"studyvault/internal/store"
	"studyvault/internal/usertoken"
	"studyvault/internal/util"
	"studyvault/pkg/ai"
	"studyvault/pkg/pricing"
	"studyvault/pkg/storage"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	tokenVerifier, err := usertoken.NewVerifier(usertoken.Config{
		JWKSURL:    cfg.AuthJWKSURL,
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	})
	if err != nil {
		log.Fatalf("failed to init jwks verifier: %v", err)
	}

	st, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}

	buckets := storage.Buckets{
		Videos: cfg.VideosBucket,
		Notes:  cfg.NotesBucket,
		Exam:   cfg.ExamBucket,
	}
	objects, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, buckets, cfg.MinioUseSSL)
	if err != nil {
		log.Fatalf("failed to init object storage: %v", err)
	}

	policy := pricing.DefaultPolicy
	if cfg.CreatorShareBps > 0 || cfg.PlatformShareBps > 0 {
		policy = pricing.Policy{
			CreatorShareBps:  cfg.CreatorShareBps,
			PlatformShareBps: cfg.PlatformShareBps,
		}
	}
	accessTTL := time.Duration(cfg.AccessURLTTLMinutes) * time.Minute

	ledgerSvc, err := ledger.New(ledger.Config{
		Store:    st,
		Grants:   objects,
		Policy:   policy,
		GrantTTL: accessTTL,
	})
	if err != nil {
		log.Fatalf("failed to init ledger: %v", err)
	}

	var predictor *ai.TopicPredictor
	if cfg.AIBaseURL != "" {
		predictor = ai.NewTopicPredictor(ai.NewOpenAICompatGenerator(cfg.AIBaseURL, cfg.AIAPIKey, cfg.AIModel))
	} else {
		slog.Warn("aiBaseUrl not configured, topic prediction disabled")
	}

	appCore, err := app.New(app.Config{
		Store:     st,
		Objects:   objects,
		Buckets:   buckets,
		Ledger:    ledgerSvc,
		Predictor: predictor,
		AccessTTL: accessTTL,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	var unlockLimiter *ratelimit.FixedWindowLimiter
	if cfg.UnlockRateLimitPerMinute > 0 {
		unlockLimiter, err = ratelimit.NewRedisFixedWindowLimiter(
			cfg.RedisAddr, cfg.RedisPassword, "studyvault:ratelimit:unlock",
			cfg.UnlockRateLimitPerMinute, time.Minute)
		if err != nil {
			log.Fatalf("failed to init rate limiter: %v", err)
		}
	}

	httpServer, err := server.New(server.Config{
		App:           appCore,
		Ledger:        ledgerSvc,
		TokenVerifier: tokenVerifier,
		UnlockLimiter: unlockLimiter,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("studyvault server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
