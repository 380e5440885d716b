package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/streme-fun/streme-bot/internal/api"
	"github.com/streme-fun/streme-bot/internal/audit"
	"github.com/streme-fun/streme-bot/internal/bus"
	"github.com/streme-fun/streme-bot/internal/chain"
	"github.com/streme-fun/streme-bot/internal/clickhouse"
	"github.com/streme-fun/streme-bot/internal/config"
	"github.com/streme-fun/streme-bot/internal/deploy"
	"github.com/streme-fun/streme-bot/internal/gate"
	"github.com/streme-fun/streme-bot/internal/intent"
	"github.com/streme-fun/streme-bot/internal/notify"
	"github.com/streme-fun/streme-bot/internal/observability"
	"github.com/streme-fun/streme-bot/internal/pipeline"
	"github.com/streme-fun/streme-bot/internal/quality"
	"github.com/streme-fun/streme-bot/internal/stats"
	"github.com/streme-fun/streme-bot/internal/storage"
	"github.com/streme-fun/streme-bot/internal/storage/memory"
	"github.com/streme-fun/streme-bot/internal/storage/migrations"
	"github.com/streme-fun/streme-bot/internal/storage/postgres"
)

// stubReply is what the stub AI answers in --stub mode.
const stubReply = `{"name":"Stub Coin","symbol":"STUB","response":"Planting STUB now"}`

func main() {
	// 1. Parse flags.
	configPath := flag.String("config", "config/config.yaml", "Path to configuration file")
	stubMode := flag.Bool("stub", false, "Use in-memory store, stub chain, stub AI and no Kafka")
	flag.Parse()

	// 2. Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config from %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	// 3. Setup logging.
	setupLogging(cfg.General)

	dryRun := cfg.General.DryRun || *stubMode
	if *stubMode {
		cfg.General.DryRun = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("configuration validation failed")
	}
	net, err := cfg.ResolveNetwork()
	if err != nil {
		log.Fatal().Err(err).Msg("resolve network")
	}

	log.Info().
		Str("instance_id", cfg.General.InstanceID).
		Str("environment", cfg.General.Environment).
		Str("network", net.Name()).
		Int64("chain_id", net.ChainID).
		Int("season", cfg.Deploy.Season).
		Int("signers", len(cfg.Signers.Keys)).
		Bool("dry_run", dryRun).
		Bool("stub_mode", *stubMode).
		Bool("kafka", cfg.Kafka.Enabled).
		Bool("clickhouse", cfg.ClickHouse.Enabled).
		Msg("streme-bot starting")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)
	health := observability.NewHealthMonitor(15 * time.Second)
	feeds := quality.NewMonitor(30 * time.Second)
	health.Register("intake", feeds.HealthCheck(quality.FeedMentions))

	// 4. Token store.
	var store storage.Store
	if *stubMode {
		store = memory.NewStore()
		log.Info().Msg("store: in-memory (stub mode)")
	} else {
		pool, err := postgres.NewPool(ctx, cfg.Postgres.DSN)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres: connect")
		}
		defer pool.Close()
		if err := migrations.RunPostgres(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("postgres: migrations")
		}
		store = postgres.NewTokenStore(pool)
		health.Register("postgres", observability.ErrorCheck(observability.StatusUnhealthy, pool.Ping))
	}

	// 5. Chain client. Reads always use the configured client; in dry-run the
	// deployer submits to a stub instead.
	var client chain.Client
	var liveChain *chain.EVMClient
	if *stubMode {
		client = chain.NewStubClient(common.HexToAddress("0x000000000000000000000000000000000000dEaD"))
		log.Info().Msg("chain: STUB mode")
	} else {
		liveChain, err = chain.DialEVM(ctx, net, chain.EVMOptions{
			ConfirmTimeout: time.Duration(cfg.Deploy.ConfirmTimeoutMs) * time.Millisecond,
			PollInterval:   2 * time.Second,
			MaxReadRetries: 3,
		})
		if err != nil {
			log.Fatal().Err(err).Str("rpc", net.RPCURL).Msg("chain: dial")
		}
		defer liveChain.Close()
		client = liveChain
		health.Register("chain", observability.ErrorCheck(observability.StatusUnhealthy, liveChain.Health))
	}
	deployClient := client
	if dryRun && liveChain != nil {
		deployClient = chain.NewStubClient(common.HexToAddress("0x000000000000000000000000000000000000dEaD"))
		log.Warn().Msg("chain: DRY RUN, deployments go to a stub")
	}

	keys := cfg.Signers.Keys
	if len(keys) == 0 {
		// Only reachable in dry-run; Validate requires keys otherwise.
		k, err := crypto.GenerateKey()
		if err != nil {
			log.Fatal().Err(err).Msg("signers: generate ephemeral key")
		}
		keys = []string{hexutil.Encode(crypto.FromECDSA(k))}
	}
	signers, err := deploy.NewSignerQueue(keys)
	if err != nil {
		log.Fatal().Err(err).Msg("signers")
	}

	var gas *deploy.GasAdvisor
	if cfg.Deploy.GasAdvisor && net.GasAdvisorURL != "" {
		gas = deploy.NewGasAdvisor(net.GasAdvisorURL, 5*time.Second)
	}
	orchestrator := deploy.NewOrchestrator(deployClient, net, signers, deploy.Options{
		Retry:   deploy.NewRetryPolicy(cfg.Retry),
		Gas:     gas,
		Images:  deploy.NewImageResolver(time.Duration(cfg.Deploy.ImageProbeTimeoutMs) * time.Millisecond),
		Metrics: metrics,
	})

	// 6. AI provider.
	var provider intent.Provider
	if *stubMode {
		provider = intent.NewStubProvider("stub", stubReply)
	} else {
		provider = intent.NewAutonomeProvider(intent.AutonomeConfig{
			Endpoint:  cfg.AI.Endpoint,
			BasicAuth: cfg.AI.BasicAuth,
			Timeout:   time.Duration(cfg.AI.TimeoutMs) * time.Millisecond,
		})
	}

	// 7. Replies. A nil poster composes but never posts.
	var poster notify.Poster
	if !cfg.Neynar.Disabled && !*stubMode {
		poster = notify.NewNeynarClient(notify.NeynarConfig{
			BaseURL:      cfg.Neynar.BaseURL,
			APIKey:       cfg.Neynar.APIKey,
			RateLimitRPS: cfg.Neynar.RateLimitRPS,
			Timeout:      time.Duration(cfg.Neynar.TimeoutMs) * time.Millisecond,
		})
	} else {
		log.Warn().Msg("notify: replies disabled")
	}
	emitter := notify.NewEmitter(poster, cfg.Neynar.SignerUUID, cfg.Neynar.FrameBaseURL, metrics)

	// 8. Event bus.
	var producer bus.Producer
	var consumer bus.Consumer
	if cfg.Kafka.Enabled && !*stubMode {
		kp, err := bus.NewProducer(cfg.Kafka.Brokers, bus.WithInstanceID(cfg.General.InstanceID), bus.WithLinger(5*time.Millisecond))
		if err != nil {
			log.Fatal().Err(err).Msg("kafka: producer")
		}
		defer kp.Close()
		kc, err := bus.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, []string{cfg.Kafka.MentionsTopic}, cfg.Kafka.Workers)
		if err != nil {
			log.Fatal().Err(err).Msg("kafka: consumer")
		}
		defer kc.Close()
		producer, consumer = kp, kc
		health.Register("kafka", observability.ErrorCheck(observability.StatusDegraded, kp.Ping))
	} else {
		producer, consumer = bus.NewStubProducer(), bus.NewStubConsumer()
		log.Info().Msg("kafka: disabled, using stub bus")
	}
	trail := audit.NewTrail(producer, cfg.Kafka.AuditTopic, 10_000)

	// 9. Analytics.
	var analytics pipeline.AnalyticsRecorder
	var chWriter *clickhouse.DeploymentWriter
	if cfg.ClickHouse.Enabled && !*stubMode {
		chClient, err := clickhouse.NewClient(cfg.ClickHouse.DSN)
		if err != nil {
			log.Fatal().Err(err).Msg("clickhouse: client")
		}
		defer chClient.Close()
		if err := chClient.EnsureSchema(ctx, cfg.ClickHouse.Database); err != nil {
			log.Fatal().Err(err).Msg("clickhouse: schema")
		}
		chWriter = clickhouse.NewDeploymentWriter(chClient, cfg.ClickHouse.Database, cfg.ClickHouse.BatchSize,
			time.Duration(cfg.ClickHouse.FlushIntervalMs)*time.Millisecond, metrics)
		analytics = chWriter
		health.Register("clickhouse", observability.ErrorCheck(observability.StatusDegraded, chClient.Ping))
	}

	// 10. Pipeline.
	processor := pipeline.NewProcessor(net, cfg.Deploy.Season, cfg.General.InstanceID, pipeline.Deps{
		Gate: gate.New(gate.Config{
			AllowFIDs:      cfg.Gate.AllowFIDs,
			BanFIDs:        cfg.Gate.BanFIDs,
			MinSocialScore: cfg.Gate.MinSocialScore,
		}, store),
		Extractor:     intent.NewExtractor(provider, net.DisplayName),
		Deployer:      orchestrator,
		Store:         store,
		Notifier:      emitter,
		Events:        producer,
		OutcomesTopic: cfg.Kafka.OutcomesTopic,
		Audit:         trail,
		Analytics:     analytics,
		Metrics:       metrics,
	})

	// 11. Read side.
	index := chain.NewStakingIndex()
	var watcher *chain.LogWatcher
	if !*stubMode && net.WSURL != "" {
		watcher = chain.NewLogWatcher(chain.WatcherConfig{
			WSEndpoint:       net.WSURL,
			StakingFactory:   common.HexToAddress(net.Addresses.StakingFactory),
			ReconnectDelayMs: 2_000,
			PingIntervalS:    30,
			OnEvent: func(common.Address, chain.StakingData) {
				metrics.StakingEventsSeen.Inc()
				feeds.Record(quality.FeedStakingEvents, time.Time{})
			},
		}, index)
	}
	calc := stats.NewCalculator(client, store, net, index)
	server := api.NewServer(cfg.Metrics.Port, store, calc, health, metrics.Handler())

	// 12. Start services.
	var wg sync.WaitGroup

	server.Start()

	wg.Add(1)
	go func() {
		defer wg.Done()
		health.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		feeds.Start(ctx, 10*time.Second)
	}()

	if chWriter != nil {
		chWriter.Start(ctx)
	}

	if watcher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			watcher.Run(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := consumer.Consume(ctx, pipeline.NewIntakeHandler(processor, metrics, feeds)); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("mention intake stopped")
			cancel()
		}
	}()

	// Periodic stats logging.
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				evt := log.Info().
					Int("signers_free", signers.Available()).
					Int("signers", signers.Size()).
					Int("audit_entries", trail.Len()).
					Int("staking_index", index.Len())
				if liveChain != nil {
					cs := liveChain.Stats()
					evt = evt.Int64("rpc_calls", cs.Calls).Int64("rpc_errors", cs.Errors).
						Int64("tx_sent", cs.TxSent).Float64("rpc_avg_ms", cs.AvgLatencyMs)
				}
				if fs, ok := feeds.Snapshot()[quality.FeedMentions]; ok {
					evt = evt.Int64("mentions", fs.EventCount).Float64("mention_lag_avg_ms", fs.AvgLagMs)
				}
				if watcher != nil {
					ws := watcher.Stats()
					evt = evt.Bool("ws_connected", ws.Connected).Int64("ws_events", ws.EventsSeen).
						Int64("ws_reconnects", ws.Reconnects)
				}
				if chWriter != nil {
					flushes, errs, pending := chWriter.Stats()
					evt = evt.Int64("ch_flushes", flushes).Int64("ch_errors", errs).Int("ch_pending", pending)
				}
				evt.Msg("[STATS]")
			}
		}
	}()

	log.Info().Int("port", cfg.Metrics.Port).Str("topic", cfg.Kafka.MentionsTopic).Msg("streme-bot running")

	// 13. Block until shutdown.
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("api: shutdown")
	}

	wg.Wait()

	if chWriter != nil {
		if err := chWriter.Close(); err != nil {
			log.Error().Err(err).Msg("clickhouse: final flush")
		}
	}

	log.Info().Int("audit_entries", trail.Len()).Msg("streme-bot stopped")
}

func setupLogging(general config.GeneralConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro
	level, err := zerolog.ParseLevel(general.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var logger zerolog.Logger
	if general.LogFormat == "text" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	log.Logger = logger.With().Timestamp().
		Str("service", "streme-bot").
		Str("instance", general.InstanceID).
		Logger()
}
