// internal/app/server.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"isp-billing-service/internal/config"
	"isp-billing-service/internal/db"
	"isp-billing-service/internal/events"
	billingHandler "isp-billing-service/internal/handlers/billing"
	discountHandler "isp-billing-service/internal/handlers/discount"
	referralHandler "isp-billing-service/internal/handlers/referral"
	settingsHandler "isp-billing-service/internal/handlers/settings"
	wsHandler "isp-billing-service/internal/handlers/websocket"
	"isp-billing-service/internal/middleware"
	"isp-billing-service/internal/pkg/jwt"
	"isp-billing-service/internal/pkg/session"
	"isp-billing-service/internal/repository/postgres"
	billingsvc "isp-billing-service/internal/service/billing"
	discountsvc "isp-billing-service/internal/service/discount"
	referralsvc "isp-billing-service/internal/service/referral"
	settingssvc "isp-billing-service/internal/service/settings"
	"isp-billing-service/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	logger *zap.Logger

	http   *http.Server
	pool   *pgxpool.Pool
	redis  redis.UniversalClient
	cancel context.CancelFunc
}

func NewServer() *Server {
	cfg := config.Load()
	logger, err := zap.NewProduction()
	if err != nil {
		logger = zap.NewNop()
	}
	engine := gin.New()
	return &Server{cfg: cfg, engine: engine, logger: logger}
}

// Start wires the engine and serves HTTP. It blocks until Shutdown is called or the listener
// fails.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	logger := s.logger

	// ----- PostgreSQL -----
	pool, err := db.ConnectDB(s.cfg.Postgres)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	s.pool = pool
	logger.Info("connected to PostgreSQL")

	// ----- Redis -----
	// Without Redis each instance keeps its own settings cache, tokens are not checked for
	// revocation and rate limiting is off.
	var (
		revocations middleware.RevocationChecker
		limiter     middleware.Limiter
	)
	redisClient, err := db.NewUniversalRedis(s.cfg.Redis)
	if err != nil {
		logger.Warn("Redis unavailable, continuing without shared cache", zap.Error(err))
	} else {
		s.redis = redisClient
		revocations = session.NewBlacklist(redisClient)
		limiter = session.NewRateLimiter(redisClient)
		logger.Info("connected to Redis", zap.Strings("addresses", s.cfg.Redis.Addresses))
	}

	// ----- JWT -----
	verifier, err := jwt.LoadVerifier(s.cfg.JWT)
	if err != nil {
		return fmt.Errorf("failed to load JWT verifier: %w", err)
	}

	// ----- Repositories -----
	dbWrapper := postgres.NewDB(pool, logger)
	discountRepo := postgres.NewDiscountRepository(pool)
	applicationRepo := postgres.NewDiscountApplicationRepository(pool)
	invoiceRepo := postgres.NewInvoiceRepository(pool)
	customerRepo := postgres.NewCustomerRepository(pool)
	ledgerRepo := postgres.NewLedgerRepository(pool)
	settingsRepo := postgres.NewSettingsRepository(pool)
	codeRepo := postgres.NewReferralCodeRepository(pool)
	referralTxnRepo := postgres.NewReferralTransactionRepository(pool)
	marketingRepo := postgres.NewMarketingReferralRepository(pool)

	// ----- Events & WebSocket Hub -----
	bus := events.NewBus(logger)
	hub := websocket.NewHub(logger)
	bus.SubscribeAll(hub.Forward)
	go hub.Run(ctx)

	// ----- Services (Usecases) -----
	settingsService := settingssvc.NewSettingsService(
		settingsRepo,
		dbWrapper,
		s.redis,
		s.cfg.SettingsCacheTTL,
		bus,
		logger,
	)
	settingsService.Subscribe(bus)
	go settingsService.ListenForInvalidations(ctx)

	discountService := discountsvc.NewDiscountService(
		discountRepo,
		applicationRepo,
		invoiceRepo,
		customerRepo,
		ledgerRepo,
		dbWrapper,
		bus,
		logger,
	)
	referralService := referralsvc.NewReferralService(
		codeRepo,
		referralTxnRepo,
		marketingRepo,
		customerRepo,
		ledgerRepo,
		dbWrapper,
		settingsService,
		bus,
		logger,
	)
	billingService := billingsvc.NewBillingService(
		referralService,
		discountService,
		invoiceRepo,
		applicationRepo,
		customerRepo,
		ledgerRepo,
		dbWrapper,
		bus,
		logger,
	)

	// ----- Middlewares -----
	authMiddleware := middleware.NewAuthMiddleware(verifier, revocations, logger)

	s.engine.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
		middleware.CORSMiddleware(s.cfg.AllowedOrigins),
	)

	// ----- Router -----
	handlers := &Handlers{
		DiscountHandler: discountHandler.NewDiscountHandler(discountService),
		ReferralHandler: referralHandler.NewReferralHandler(referralService),
		BillingHandler:  billingHandler.NewBillingHandler(billingService),
		SettingsHandler: settingsHandler.NewSettingsHandler(settingsService),
		WSHandler:       wsHandler.NewWebSocketHandler(hub, s.cfg.AllowedOrigins, logger),
		AuthMiddleware:  authMiddleware,
		PublicLimit:     middleware.RateLimit(limiter, s.cfg.RateLimit, s.cfg.RateLimitWindow, logger),
	}
	SetupRouter(s.engine, handlers)

	// ----- Start HTTP -----
	s.http = &http.Server{
		Addr:    s.cfg.HTTPAddr,
		Handler: s.engine,
	}
	logger.Info("server running", zap.String("addr", s.cfg.HTTPAddr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains HTTP, stops background listeners and closes the pools.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.http != nil {
		err = s.http.Shutdown(ctx)
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.redis != nil {
		if cerr := s.redis.Close(); cerr != nil {
			s.logger.Warn("failed to close Redis", zap.Error(cerr))
		}
	}
	if s.pool != nil {
		s.pool.Close()
	}
	_ = s.logger.Sync()
	return err
}
