package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"ethed-api/internal/avatar"
	"ethed-api/internal/chain"
	"ethed-api/internal/config"
	"ethed-api/internal/db"
	"ethed-api/internal/events"
	apihttp "ethed-api/internal/http"
	"ethed-api/internal/metrics"
	"ethed-api/internal/repository"
	"ethed-api/internal/service"
	"ethed-api/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger := newLogger(cfg)
	defer logger.Sync()

	pool, err := db.Open(ctx, cfg)
	if err != nil {
		logger.Fatal("db open", zap.Error(err))
	}
	defer pool.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	userRepo := repository.NewPgUserRepository(pool)
	walletRepo := repository.NewPgWalletRepository(pool)
	credentialRepo := repository.NewPgCredentialRepository(pool)
	completionRepo := repository.NewPgCompletionRepository(pool)

	nonces := service.NewMemoryNonceStore(cfg.NonceTTL)
	limiter := service.NewMemoryRateLimiter(time.Minute, 20)
	var (
		tokenStore  service.RefreshTokenStore
		redisClient *redis.Client
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, using in-process state", zap.Error(err))
		} else {
			nonces = service.NewRedisNonceStore(redisClient, cfg.NonceTTL)
			limiter = service.NewRedisRateLimiter(redisClient, "siwe:nonce_rl:", time.Minute, 20)
			tokenStore = service.NewRedisRefreshTokenStore(redisClient)
		}
		cancel()
		defer redisClient.Close()
	}
	if cfg.IsProduction() && redisClient == nil {
		logger.Warn("nonce store is in-process; multiple replicas will not share nonces")
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

	chainClient := chain.New(logger, chain.Options{
		Production:     cfg.IsProduction(),
		RelayerURL:     cfg.ChainRelayerURL,
		RelayerToken:   cfg.ChainRelayerToken,
		SimulatedDelay: cfg.SimulatedConfirmDelay,
	})

	eventPublisher := events.NewNoopPublisher()
	if cfg.AMQPURL != "" {
		rabbit, err := events.NewRabbitPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.Warn("amqp connect failed, events disabled", zap.Error(err))
		} else {
			defer rabbit.Close()
			eventPublisher = rabbit
		}
	}

	var contentStore storage.ContentStore
	if cfg.PinataJWT != "" {
		contentStore = storage.NewPinataClient(cfg.PinataBaseURL, cfg.PinataJWT, logger)
	}
	var fallback service.FallbackWriter
	metadataDir := ""
	if !cfg.IsProduction() {
		local := storage.NewLocalStore(cfg.FallbackDir, cfg.FallbackBaseURL)
		fallback = local
		metadataDir = local.Dir()
	}
	publisher := service.NewMetadataPublisher(logger, contentStore, fallback, m, service.PublisherConfig{
		Production: cfg.IsProduction(),
		Timeout:    cfg.PublishTimeout,
	})

	verifier := service.NewSignatureVerifier(logger, nonces, m, service.VerifierConfig{
		ChainID: cfg.ChainID,
		Domain:  cfg.SIWEDomain,
	})
	accounts := service.NewAccountService(logger, userRepo, walletRepo)
	names := service.NewIdentityRegistry(logger, walletRepo, chainClient, avatar.NewHTTPResolver(cfg.AvatarResolverURL), eventPublisher, m, service.RegistryConfig{
		RootDomain:    cfg.RootDomain,
		BrandWord:     cfg.BrandWord,
		ChainID:       cfg.ChainID,
		AvatarTimeout: cfg.AvatarTimeout,
	})
	minter := service.NewCredentialMinter(logger, credentialRepo, walletRepo, completionRepo, publisher, chainClient, eventPublisher, m, service.MinterConfig{
		ContractAddress: cfg.ContractAddress,
		ChainID:         cfg.ChainID,
		ImageBaseURL:    cfg.CredentialImageBaseURL,
		MintTimeout:     cfg.MintTimeout,
	})

	authHandler := apihttp.NewAuthHandler(logger, nonces, limiter, verifier, accounts, jwtSvc, cfg.IsProduction(), cfg.NonceTTL)
	ensHandler := apihttp.NewENSHandler(logger, names, jwtSvc)
	credentialHandler := apihttp.NewCredentialHandler(logger, minter, cfg.ChainRelayerToken)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := apihttp.NewRouter(logger, apihttp.RouterConfig{
		JWT:      jwtSvc,
		Gatherer: registry,
		Health: func(c *gin.Context) error {
			ctxHealth, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := db.Ping(ctxHealth, pool); err != nil {
				return err
			}
			if redisClient != nil {
				return redisClient.Ping(ctxHealth).Err()
			}
			return nil
		},
		MetadataDir:    metadataDir,
		InternalRoutes: cfg.ChainRelayerToken != "",
	}, authHandler, ensHandler, credentialHandler)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("port", cfg.HTTPPort), zap.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.IsProduction() {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
