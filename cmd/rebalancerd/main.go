package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/keeperlabs/rebalancer/internal/config"
	"github.com/keeperlabs/rebalancer/internal/engine"
	"github.com/keeperlabs/rebalancer/internal/ledger"
	"github.com/keeperlabs/rebalancer/internal/logger"
	"github.com/keeperlabs/rebalancer/internal/pricing"
	"github.com/keeperlabs/rebalancer/internal/registry"
	"github.com/keeperlabs/rebalancer/internal/state"
	"github.com/keeperlabs/rebalancer/internal/venue"
	"github.com/keeperlabs/rebalancer/internal/web"
)

// main is the entry point for the rebalancer daemon.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("Rebalancer starting...")

	// Database is optional: without it the engine runs but sweep history and
	// receipts are not persisted or queryable.
	var recorder engine.Recorder
	if os.Getenv("DB_HOST") != "" {
		dbCfg := state.DBConfig{
			Host: os.Getenv("DB_HOST"), Port: mustAtoi(os.Getenv("DB_PORT"), 5432),
			User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
			DBName: os.Getenv("DB_NAME"), SSLMode: os.Getenv("DB_SSLMODE"),
		}
		if err := state.InitDB(dbCfg); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		defer state.CloseDB()
		if err := state.EnsureSchema(); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure database schema")
		}
		recorder = state.NewPostgresRecorder()
	} else {
		log.Warn().Msg("DB_HOST not set; sweep history will not be persisted")
	}

	// --- 2. Collaborator Initialization (with Safety Switch) ---
	if config.Mode != "sim" {
		log.Fatal().Str("mode", config.Mode).Msg("MODE is not set to 'sim'. Live venue connectivity is not wired; halting to prevent accidental execution.")
	}

	oracle, err := pricing.NewStaticOracle(config.OraclePrice, config.OraclePriceDecimals)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize oracle")
	}
	converter, err := pricing.NewConverter(oracle)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize converter")
	}

	pool, err := venue.NewAMMPool(config.VolatileAsset, config.PeggedAsset,
		config.AmmReserveVolatile, config.AmmReservePegged)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize AMM pool")
	}
	custody, err := venue.NewMemoryCustody(config.VaultAddr, config.VolatileAsset)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize custody")
	}

	// The pool's custody account mirrors the AMM reserves so every swap
	// settles against real balances and vault custody tracks the ledger.
	custody.Fund(config.VolatileAsset, config.RouterAddr, config.AmmReserveVolatile)
	custody.Fund(config.PeggedAsset, config.RouterAddr, config.AmmReservePegged)
	router, err := venue.NewSettlingRouter(pool, custody, config.RouterAddr)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize swap router")
	}

	// --- 3. Engine Assembly ---
	assets, err := registry.NewAssetConfig(config.Owner)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize asset config")
	}
	allocations, err := registry.NewAllocationStore(assets)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize allocation store")
	}

	eng, err := engine.New(engine.Config{
		Params: engine.Params{
			Threshold:          config.Threshold,
			Interval:           config.Interval,
			SwapMinOut:         config.SwapMinOut,
			DeadlineGrace:      config.DeadlineGrace,
			Owner:              config.Owner,
			VaultAddr:          config.VaultAddr,
			RouterAddr:         config.RouterAddr,
			WrappedNativeDenom: config.VolatileAsset.Denom,
		},
		Assets:      assets,
		Allocations: allocations,
		Members:     registry.NewMemberSet(),
		Ledger:      ledger.NewStore(),
		Converter:   converter,
		Router:      router,
		Custody:     custody,
		Recorder:    recorder,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create engine")
	}

	if err := eng.AllowAsset(config.Owner, config.VolatileAsset); err != nil {
		log.Fatal().Err(err).Msg("Failed to allow volatile asset")
	}
	if err := eng.AllowAsset(config.Owner, config.PeggedAsset); err != nil {
		log.Fatal().Err(err).Msg("Failed to allow pegged asset")
	}

	// --- 4. Web Server ---
	webPort := os.Getenv("WEB_PORT")
	if webPort == "" {
		webPort = "8080"
	}
	webServer := web.NewWebServer(webPort, eng)
	go func() {
		log.Info().Str("port", webPort).Msg("Starting rebalancer web API")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 5. Keeper Loop ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("poll", config.KeeperPoll.String()).Msg("Starting keeper loop")
	eng.RunLoop(ctx, config.KeeperPoll)
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}
