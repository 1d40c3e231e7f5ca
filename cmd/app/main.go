package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"propchain/internal/common/cache"
	"propchain/internal/common/config"
	"propchain/internal/common/logger"
	"propchain/internal/common/middleware"
	"propchain/internal/common/retry"
	"propchain/internal/common/validation"
	actionHttp "propchain/internal/features/action/delivery/http"
	"propchain/internal/features/action/guard"
	actionModels "propchain/internal/features/action/models"
	actionService "propchain/internal/features/action/service"
	notificationHttp "propchain/internal/features/notification/delivery/http"
	notificationService "propchain/internal/features/notification/service"
	propertyHttp "propchain/internal/features/property/delivery/http"
	"propchain/internal/features/property/source"
	"propchain/internal/features/property/store"
	transactionHttp "propchain/internal/features/transaction/delivery/http"
	transactionService "propchain/internal/features/transaction/service"
	walletHttp "propchain/internal/features/wallet/delivery/http"
	walletModels "propchain/internal/features/wallet/models"
	"propchain/internal/features/wallet/provider"
	"propchain/internal/features/wallet/repository"
	walletMemory "propchain/internal/features/wallet/repository/memory"
	walletRedis "propchain/internal/features/wallet/repository/redis"
	walletService "propchain/internal/features/wallet/service"
	"propchain/internal/platform/ethereum"
	"propchain/internal/platform/ipfs"
	"propchain/internal/platform/redis"
	"propchain/internal/web"
)

const (
	serviceName = "propchain"

	notificationCapacity = 50

	// Демо-аккаунт fixture-режима: владеет частью листингов и имеет GOVERNMENT_ROLE
	fixtureAccount = "0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1"
)

// backends собирает внешние зависимости выбранного режима
type backends struct {
	chain    ethereum.Client
	wallet   provider.Provider
	docs     ipfs.Store
	source   source.Source
	shutdown func()
}

func main() {
	// Инициализируем конфигурацию
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Инициализируем логгер
	logger.Init(serviceName, cfg.Debug)
	logger.Info().
		Str("mode", cfg.Mode).
		Bool("debug", cfg.Debug).
		Msg("Starting PropChain dashboard")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	policy := retry.Policy{
		MaxAttempts:     cfg.Retry.MaxAttempts,
		InitialInterval: cfg.Retry.InitialInterval,
	}

	// Redis хранит флаг подключения, кэш метаданных и guard действий
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.Open(ctx, cfg)
		switch {
		case err == nil:
			defer redisClient.Close()
			logger.Info().Str("addr", cfg.RedisAddr()).Msg("Redis connection established")
		case cfg.IsLive():
			logger.Fatal().Err(err).Msg("Failed to connect to Redis")
		default:
			logger.Warn().Err(err).Msg("Redis unavailable, falling back to in-memory state")
			redisClient = nil
		}
	}

	var (
		flags        repository.FlagStore
		actionGuard  guard.Guard
		cacheService *cache.CacheService
	)
	if redisClient != nil {
		flags = walletRedis.NewRepository(redisClient)
		actionGuard = guard.NewRedisGuard(redisClient)
		cacheService = cache.NewCacheService(redisClient, "ipfs")
	} else {
		flags = walletMemory.NewRepository()
		actionGuard = guard.NewMemoryGuard()
	}

	contracts, err := ethereum.NewContracts(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load contracts")
	}

	requestFee, err := validation.ParseWei(cfg.Chain.RequestFeeWei)
	if err != nil {
		if cfg.Chain.RequestFeeWei != "0" {
			logger.Fatal().Err(err).Msg("Invalid CHAIN_REQUEST_FEE_WEI")
		}
		requestFee = big.NewInt(0)
	}

	var b backends
	if cfg.IsLive() {
		b, err = liveBackends(ctx, cfg, contracts, cacheService, policy)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to initialize live backends")
		}
	} else {
		b = fixtureBackends(cfg)
	}
	defer b.shutdown()

	// Инициализируем сервисы
	notifications := notificationService.NewService(notificationCapacity)
	ledger := transactionService.NewLedger()
	if !cfg.IsLive() {
		transactionService.SeedFixtures(ledger, time.Now())
	}

	wallet := walletService.NewService(b.wallet, flags, notifications, policy)
	defer wallet.Close()

	properties := store.New(b.source)
	actions := actionService.NewService(b.chain, contracts, wallet, b.docs, actionGuard, ledger, notifications, actionService.Options{
		RequestFee:  requestFee,
		InflightTTL: cfg.Actions.InflightTTL,
		Policy:      policy,
	})

	refresh := func(owner common.Address) {
		// Фоновая загрузка не должна зависеть от запроса, который ее вызвал
		go func() {
			if err := properties.FetchAll(context.WithoutCancel(ctx), owner); err != nil {
				logger.Warn().Err(err).Msg("Failed to refresh properties")
			}
		}()
	}

	wallet.OnChange(func(s walletModels.Session) {
		if !s.Connected {
			if cfg.IsLive() {
				properties.Clear()
				return
			}
			refresh(common.Address{})
			return
		}
		refresh(common.HexToAddress(s.Address))
	})
	actions.OnConfirmed(func(a actionModels.Action) {
		if addr, ok := wallet.Address(); ok {
			refresh(addr)
			if _, err := wallet.RefreshBalance(context.WithoutCancel(ctx)); err != nil {
				logger.Warn().Err(err).Msg("Failed to refresh balance")
			}
		}
	})

	if !cfg.IsLive() {
		refresh(common.Address{})
	}
	wallet.RestoreIfPersisted(ctx)

	logger.Info().Msg("Services initialized")

	renderer, err := web.NewRenderer(wallet, notifications, cfg.Chain.ExplorerURL, cfg.Mode)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load templates")
	}

	// Настраиваем Gin
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	httpLog := logger.Component("http")
	router := gin.New()
	router.SetHTMLTemplate(renderer.Templates())

	// Добавляем middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(httpLog))
	router.Use(middleware.ErrorHandler(httpLog, renderer.Error))

	// CORS нужен только для JSON-эндпоинтов, которые опрашивают страницы
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.Server.Origin}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Content-Type", "Accept", "X-Request-ID"}
	corsHandler := cors.New(corsConfig)
	router.Use(func(c *gin.Context) {
		if middleware.WantsJSON(c) {
			corsHandler(c)
		}
	})

	wrap := middleware.HandleErrorWrapper(httpLog, renderer.Error)
	root := router.Group("/")
	router.NoRoute(middleware.NoRoute(httpLog, renderer.Error))

	propertyHttp.NewPropertyHandler(properties, wallet, ledger, renderer).RegisterRoutes(root, wrap)
	walletHttp.NewWalletHandler(wallet).RegisterRoutes(root, wrap)
	actionHttp.NewActionHandler(actions, renderer).RegisterRoutes(root, wrap)
	transactionHttp.NewTransactionHandler(ledger, renderer).RegisterRoutes(root)
	notificationHttp.NewNotificationHandler(notifications).RegisterRoutes(root)
	setupProbes(router, redisClient)

	logger.Info().Msg("Routes configured")

	// Создаем HTTP сервер
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Запускаем сервер в горутине
	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Ждем сигнала для graceful shutdown
	<-ctx.Done()
	logger.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	// Ожидающие подтверждения транзакции дописывают статус и снимают guard
	if err := actions.Drain(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Pending actions still unconfirmed at exit")
	}

	logger.Info().Msg("Server exited")
}

func fixtureBackends(cfg *config.Config) backends {
	account := common.HexToAddress(fixtureAccount)

	chain := ethereum.NewFixtureChain()
	chain.GrantRole(ethereum.GovernmentRole, account)
	chain.SetEscrow(1, common.HexToAddress("0x00000000000000000000000000000000000E5c40"))

	wallet := provider.NewFixture(account)
	wallet.SetBalance(account, new(big.Int).Mul(big.NewInt(125), big.NewInt(1e17)))

	logger.Info().Str("account", account.Hex()).Msg("Fixture backends initialized")
	return backends{
		chain:    chain,
		wallet:   wallet,
		docs:     ipfs.NewMemoryStore(cfg.IPFS.GatewayURL),
		source:   source.NewFixture(),
		shutdown: func() {},
	}
}

func liveBackends(ctx context.Context, cfg *config.Config, contracts *ethereum.Contracts, c *cache.CacheService, policy retry.Policy) (backends, error) {
	rpc, err := ethereum.Dial(ctx, cfg.Chain.RPCURL)
	if err != nil {
		return backends{}, err
	}

	chainID, err := rpc.ChainID(ctx)
	if err != nil {
		rpc.Close()
		return backends{}, fmt.Errorf("read chain id: %w", err)
	}
	if chainID.Int64() != cfg.Chain.ChainID {
		rpc.Close()
		return backends{}, fmt.Errorf("node is on chain %s, expected %d", chainID, cfg.Chain.ChainID)
	}

	wallet, err := provider.NewKeystore(cfg.Wallet.KeystoreDir, cfg.Wallet.Account, cfg.Wallet.Passphrase, cfg.Chain.ChainID, rpc)
	if err != nil {
		rpc.Close()
		return backends{}, err
	}

	docs := ipfs.NewCachedStore(
		ipfs.NewHTTPStore(cfg.IPFS.GatewayURL, cfg.IPFS.APIURL, cfg.IPFS.ProjectID, cfg.IPFS.ProjectSecret, cfg.IPFS.Timeout),
		c, cfg.IPFS.CacheTTL, policy,
	)

	logger.Info().Str("rpc", cfg.Chain.RPCURL).Int64("chain_id", cfg.Chain.ChainID).Msg("Live backends initialized")
	return backends{
		chain:    rpc,
		wallet:   wallet,
		docs:     docs,
		source:   source.NewChain(rpc, contracts.PropertyRegistry, docs, cfg.Properties.FetchConcurrency, policy),
		shutdown: rpc.Close,
	}, nil
}

func setupProbes(router *gin.Engine, redisClient *redis.Client) {
	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC(),
			"service":   serviceName,
		})
	})

	// Liveness probe
	router.GET("/live", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	// Readiness probe
	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		// Проверка Redis
		if err := redisClient.HealthCheck(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unready",
				"error":   "redis unavailable",
				"details": err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "ready",
			"timestamp": time.Now().UTC(),
			"service":   serviceName,
		})
	})
}
