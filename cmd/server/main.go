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

	"github.com/cardclash/battle-server-go/internal/auth"
	"github.com/cardclash/battle-server-go/internal/config"
	"github.com/cardclash/battle-server-go/internal/game"
	"github.com/cardclash/battle-server-go/internal/game/rules"
	"github.com/cardclash/battle-server-go/internal/realtime"
	"github.com/cardclash/battle-server-go/internal/repository"
	"github.com/cardclash/battle-server-go/internal/server"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting battle server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	if cfg.Auth.JWTSecret == "" {
		logger.Warn("jwt secret not configured; every authenticated request will be rejected")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Storage: Postgres when configured, otherwise in-memory with the starter catalog.
	var (
		store       game.Store
		catalog     game.CardCatalog
		collections game.CollectionStore
	)
	if cfg.Database.URL != "" {
		db, err := repository.NewDB(ctx, cfg.Database, logger)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		if err := repository.Migrate(ctx, db); err != nil {
			logger.Fatal("failed to migrate database", zap.Error(err))
		}

		stats := db.Stat()
		logger.Info("database connection pool initialized",
			zap.Int32("total_conns", stats.TotalConns()),
			zap.Int32("idle_conns", stats.IdleConns()),
		)

		cards := repository.NewCardStore(db, logger)
		store, catalog, collections = repository.NewSessionStore(db), cards, cards
	} else {
		logger.Warn("database url not configured; using in-memory storage")
		store = repository.NewMemoryStore()
		catalog = repository.NewMemoryCatalog(repository.StarterCards()...)
		collections = repository.NewMemoryCollections(repository.StarterCollection())
	}

	registry := realtime.NewRegistry(logger, realtime.DefaultSendBuffer)
	var notifier game.Notifier = registry

	var nc *nats.Conn
	if cfg.NATS.Enabled {
		nc, err = realtime.Connect(cfg.NATS)
		if err != nil {
			logger.Fatal("failed to connect to nats", zap.String("url", cfg.NATS.URL), zap.Error(err))
		}
		relay := realtime.NewRelay(nc, registry, cfg.NATS.SubjectPrefix, logger)
		if _, err := relay.Subscribe(nc); err != nil {
			logger.Fatal("failed to subscribe to game updates", zap.Error(err))
		}
		notifier = relay
		logger.Info("nats relay initialized",
			zap.String("url", cfg.NATS.URL),
			zap.String("subject_prefix", cfg.NATS.SubjectPrefix),
		)
	}

	bus := rules.NewEventBus()
	bus.Subscribe(func(e rules.Event) {
		logger.Debug("game event",
			zap.String("type", string(e.Type)),
			zap.String("player_id", e.PlayerID),
			zap.String("target_id", e.TargetID),
			zap.Int("amount", e.Amount),
		)
	})

	svc := game.NewService(logger, rulesFromConfig(cfg.Game), store, catalog, collections,
		game.WithNotifier(notifier),
		game.WithEventBus(bus),
	)
	logger.Info("game service initialized",
		zap.Int("starting_health", cfg.Game.StartingHealth),
		zap.Int("board_positions", cfg.Game.BoardPositions),
	)

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret)
	ws := realtime.NewHandler(svc, registry, verifier, cfg.Server.HTTP.AllowedOrigins, cfg.Server.HTTP.RequestTimeout, logger)

	httpServer := &http.Server{
		Addr:         cfg.Server.HTTP.Address,
		Handler:      server.NewRouter(cfg.Server.HTTP, svc, ws, verifier, logger),
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
		IdleTimeout:  cfg.Server.HTTP.IdleTimeout,
	}

	grpcServer, healthServer := server.NewGRPCServer(cfg.Server.GRPC, svc, verifier, logger)

	lis, err := net.Listen("tcp", cfg.Server.GRPC.Address)
	if err != nil {
		logger.Fatal("failed to listen", zap.Error(err))
	}

	go func() {
		logger.Info("starting gRPC server", zap.String("address", cfg.Server.GRPC.Address))
		if serveErr := grpcServer.Serve(lis); serveErr != nil {
			logger.Error("gRPC server error", zap.Error(serveErr))
		}
	}()

	go func() {
		logger.Info("starting HTTP server", zap.String("address", cfg.Server.HTTP.Address))
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(serveErr))
		}
	}()

	logger.Info("battle server initialized",
		zap.String("version", version),
		zap.String("http_address", cfg.Server.HTTP.Address),
		zap.String("grpc_address", cfg.Server.GRPC.Address),
		zap.Bool("nats", cfg.NATS.Enabled),
	)

	sig := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	logger.Info("shutting down gracefully...")
	cancel()

	healthServer.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	registry.CloseAll()

	grpcServer.GracefulStop()

	if nc != nil {
		if err := nc.Drain(); err != nil {
			logger.Warn("nats drain failed", zap.Error(err))
		}
	}

	logger.Info("battle server stopped")
}

func rulesFromConfig(cfg config.GameConfig) game.Rules {
	return game.Rules{
		StartingHealth:     cfg.StartingHealth,
		MaxHealth:          cfg.MaxHealth,
		BoardPositions:     cfg.BoardPositions,
		InitialHandSize:    cfg.InitialHandSize,
		MaxCopiesPerCard:   cfg.MaxCopiesPerCard,
		DefaultAbilityUses: cfg.DefaultAbilityUses,
	}
}

// initLogger initializes the zap logger based on configuration
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
