package app

import (
	"context"
	"database/sql"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"voltrewards/internal/config"
	httpserver "voltrewards/internal/http"
	"voltrewards/internal/http/handlers"
	"voltrewards/internal/http/middleware"
	redisstore "voltrewards/internal/redis"
	"voltrewards/internal/repository"
	"voltrewards/internal/service"
	"voltrewards/internal/ws"
	libdb "voltrewards/libs/db"
	libredis "voltrewards/libs/redis"
)

// App wires rewards-service dependencies.
type App struct {
	server      *httpserver.Server
	wsManager   *ws.Manager
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger
}

// New constructs the application graph.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	sqlDB, err := libdb.NewPostgres(cfg.Database.DSN, libdb.PoolOptions{})
	if err != nil {
		return nil, err
	}

	redisClient, err := libredis.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	sessionRepo := repository.NewSessionRepository(sqlDB)
	campaignRepo := repository.NewCampaignRepository(sqlDB, logger)
	grantRepo := repository.NewGrantRepository(sqlDB)
	ledgerRepo := repository.NewLedgerRepository(sqlDB)
	auditRepo := repository.NewAuditRepository(sqlDB)
	chargerRepo := repository.NewChargerRepository(sqlDB)

	activeStore := redisstore.NewStore(redisClient, cfg.ActiveSessionTTL())

	tracker := service.NewSessionTracker(sessionRepo, activeStore, chargerRepo, logger)
	ledger := service.NewRewardLedger(campaignRepo, ledgerRepo, logger)
	matcher := service.NewCampaignMatcher(campaignRepo, grantRepo, tracker, ledger, nil, nil, logger)
	scorer := service.NewRiskScorer(auditRepo, sessionRepo, service.RiskThresholds{
		MaxVerifyPerHour:   cfg.Risk.MaxVerifyPerHour,
		MaxSessionsPerHour: cfg.Risk.MaxSessionsPerHour,
		MaxDistinctIPsDay:  cfg.Risk.MaxDistinctIPsDay,
		MaxGeoJumpMeters:   cfg.Risk.MaxGeoJumpMeters,
	}, logger)

	telemetryHandler := handlers.NewTelemetryHandler(tracker, matcher, logger)
	verifyHandler := handlers.NewVerifyHandler(scorer, cfg.Risk.BlockThreshold, logger)

	wsManager := ws.NewManager(30 * time.Second)
	wsProcessor := ws.NewTelemetryProcessor(tracker, matcher, logger)
	wsServer := ws.NewServer(wsManager, wsProcessor, 10*time.Second, logger)

	routes := httpserver.Routes{
		Telemetry:      telemetryHandler.HandleTelemetry,
		SessionEnd:     telemetryHandler.HandleSessionEnd,
		Verify:         verifyHandler.ServeHTTP,
		SessionsMe:     handlers.NewSessionsMeHandler(sessionRepo),
		GrantsMe:       handlers.NewGrantsMeHandler(grantRepo),
		WalletMe:       handlers.NewWalletMeHandler(ledger),
		TelemetryWS:    wsServer.HandleWS,
		Health:         handlers.NewHealthHandler(),
		AuthMiddleware: middleware.Auth(cfg.Auth.JWTSecret),
	}

	router := httpserver.NewRouter(routes)
	server := httpserver.NewServer(cfg.HTTPAddress(), router, logger)

	return &App{
		server:      server,
		wsManager:   wsManager,
		db:          sqlDB,
		redisClient: redisClient,
		logger:      logger,
	}, nil
}

// Run starts the HTTP server and the feed keepalive loop.
func (a *App) Run(ctx context.Context) error {
	go a.wsManager.Start(ctx)
	return a.server.Run(ctx)
}

// Close releases resources.
func (a *App) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
