package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/rawblock/titan-engine/internal/alerts"
	"github.com/rawblock/titan-engine/internal/api"
	"github.com/rawblock/titan-engine/internal/autopilot"
	"github.com/rawblock/titan-engine/internal/chain"
	"github.com/rawblock/titan-engine/internal/config"
	"github.com/rawblock/titan-engine/internal/db"
	"github.com/rawblock/titan-engine/internal/decoder"
	"github.com/rawblock/titan-engine/internal/dex"
	"github.com/rawblock/titan-engine/internal/httpx"
	"github.com/rawblock/titan-engine/internal/listener"
	"github.com/rawblock/titan-engine/internal/market"
	"github.com/rawblock/titan-engine/internal/merit"
	"github.com/rawblock/titan-engine/internal/narrator"
	"github.com/rawblock/titan-engine/internal/outcomes"
	"github.com/rawblock/titan-engine/internal/profiler"
	"github.com/rawblock/titan-engine/internal/risk"
	"github.com/rawblock/titan-engine/internal/seedpack"
	"github.com/rawblock/titan-engine/internal/streams"
	"github.com/rawblock/titan-engine/internal/watchpairs"
	"github.com/rawblock/titan-engine/pkg/models"
)

func main() {
	_ = godotenv.Load()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("configuration invalid")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection failed")
	}
	defer store.Close()
	if err := store.InitSchema(); err != nil {
		log.Fatal().Err(err).Msg("schema init failed")
	}

	redis, err := streams.New(ctx, cfg.RedisURL, cfg.StreamMaxRetries, log)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection failed")
	}
	defer redis.Close()

	if cfg.SeedPackDir != "" {
		if err := seedpack.New(store, log).Import(ctx, cfg.SeedPackDir); err != nil {
			log.Fatal().Err(err).Str("dir", cfg.SeedPackDir).Msg("seed pack import failed")
		}
	}

	httpClient := httpx.New()
	dexscreener := market.NewDexScreener(httpClient, "")
	goplus := market.NewGoPlus(httpClient, "")
	registry := dex.NewRegistry()

	rpcClients := map[string]*chain.RPCClient{}
	for name, endpoints := range cfg.Chains {
		if endpoints.RPCHTTP != "" {
			rpcClients[name] = chain.NewRPCClient(httpClient, endpoints.RPCHTTP)
		}
	}

	chains := []string{models.ChainEthereum, models.ChainBSC}
	snapshot := watchpairs.NewService(store, redis, chains, cfg.Autopilot.MaxPairsPerChain, log)

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "engine"
	}

	narrate := narrator.New(httpClient, cfg.OllamaURL, cfg.OllamaModel, log)
	gasModel := alerts.NewGasModel(cfg, store, rpcClients, dexscreener, log)
	meritEngine := merit.NewEngine(cfg, store, log)

	var wg sync.WaitGroup
	start := func(name string, run func(context.Context) error) {
		if !cfg.RunsWorker(name) {
			return
		}
		wg.Add(2)
		go func() {
			defer wg.Done()
			redis.RunHeartbeat(ctx, name)
		}()
		go func() {
			defer wg.Done()
			if err := run(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Str("worker", name).Msg("worker exited")
				stop()
			}
		}()
		log.Info().Str("worker", name).Msg("worker started")
	}

	// Merit cycles run on exactly one cadence: piggybacked on the profiler
	// refresh, or on the standalone engine when that worker is enabled.
	var profilerMerit profiler.MeritUpdater
	if cfg.ProfilerRunsMerit() {
		profilerMerit = meritEngine
	}

	start("listener", listener.New(cfg, redis, snapshot, log).Run)
	start("decoder", decoder.New(cfg, store, redis, registry, rpcClients, hostname, log).Run)
	start("risk", risk.New(store, redis, dexscreener, goplus, hostname, log).Run)
	start("profiler", profiler.New(cfg, store, redis, profilerMerit, hostname, log).Run)
	start("merit", meritEngine.Run)
	start("alerts", alerts.New(cfg, store, redis, gasModel, narrate, log).Run)
	start("outcomes", outcomes.New(cfg, store, dexscreener, log).Run)
	start("autopilot", autopilot.New(cfg, store, dexscreener, goplus, log).Run)

	wsHub := api.NewHub(log)
	go wsHub.Run()
	go func() {
		if err := wsHub.ConsumeAlerts(ctx, redis, hostname); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("alert hub consumer exited")
		}
	}()

	router := api.SetupRouter(cfg, store, redis, wsHub, log)
	server := &http.Server{Addr: cfg.APIAddr, Handler: router}

	go func() {
		log.Info().Str("addr", cfg.APIAddr).Msg("api listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("api server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("api shutdown incomplete")
	}
	wg.Wait()
}
