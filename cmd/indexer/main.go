package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/0xmhha/transfer-indexer/internal/config"
	"github.com/0xmhha/transfer-indexer/internal/logger"
	"github.com/0xmhha/transfer-indexer/internal/server"
	"github.com/0xmhha/transfer-indexer/pkg/cache"
	"github.com/0xmhha/transfer-indexer/pkg/client"
	"github.com/0xmhha/transfer-indexer/pkg/entity"
	"github.com/0xmhha/transfer-indexer/pkg/notify"
	"github.com/0xmhha/transfer-indexer/pkg/pipeline"
	"github.com/0xmhha/transfer-indexer/pkg/storage"
	"github.com/0xmhha/transfer-indexer/pkg/storage/memory"
	"github.com/0xmhha/transfer-indexer/pkg/storage/postgres"
	"github.com/0xmhha/transfer-indexer/pkg/storage/redisstore"
	"github.com/0xmhha/transfer-indexer/pkg/token"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

var (
	// Version information (injected at build time)
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Path to configuration file (YAML)")
		showVersion = flag.Bool("version", false, "Show version information and exit")
		rpcEndpoint = flag.String("rpc", "", "Ethereum RPC endpoint URL")
		backend     = flag.String("backend", "", "Storage backend (pebble, postgres, redis, memory)")
		dbPath      = flag.String("db", "", "Pebble database path")
		dsn         = flag.String("dsn", "", "Postgres connection string")
		startHeight = flag.Uint64("start-height", 0, "Block height to start indexing from")
		windowSize  = flag.Uint64("window-size", 0, "Number of blocks per window")
		logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error)")
		logFormat   = flag.String("log-format", "", "Log format (json, console)")
		metrics     = flag.Bool("metrics", false, "Enable the metrics server")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("transfer-indexer version %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", buildTime)
		os.Exit(0)
	}

	if err := loadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configFile, func(c *config.Config) {
		if *rpcEndpoint != "" {
			c.RPC.Endpoint = *rpcEndpoint
		}
		if *backend != "" {
			c.Database.Backend = *backend
		}
		if *dbPath != "" {
			c.Database.Path = *dbPath
		}
		if *dsn != "" {
			c.Database.DSN = *dsn
		}
		if *startHeight > 0 {
			c.Indexer.StartHeight = *startHeight
		}
		if *windowSize > 0 {
			c.Indexer.WindowSize = *windowSize
		}
		if *logLevel != "" {
			c.Log.Level = *logLevel
		}
		if *logFormat != "" {
			c.Log.Format = *logFormat
		}
		if *metrics {
			c.Metrics.Enabled = true
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(&logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Development: cfg.Log.Format == "console",
		Fields:      map[string]interface{}{"service": "transfer-indexer"},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Error("Indexer stopped with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("Indexer stopped")
}

func run(cfg *config.Config, log *zap.Logger) error {
	log.Info("Starting indexer",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("rpc_endpoint", cfg.RPC.Endpoint),
		zap.String("backend", cfg.Database.Backend),
		zap.Uint64("start_height", cfg.Indexer.StartHeight),
		zap.Uint64("window_size", cfg.Indexer.WindowSize),
		zap.Uint64("confirmations", cfg.Indexer.Confirmations),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rpcClient, err := client.NewClient(ctx, &client.Config{
		Endpoint: cfg.RPC.Endpoint,
		Timeout:  cfg.RPC.Timeout,
		Logger:   logger.WithComponent(log, "rpc"),
	})
	if err != nil {
		return err
	}
	defer rpcClient.Close()

	chainID, err := rpcClient.ChainID(ctx)
	if err != nil {
		return err
	}
	log.Info("Connected to chain", zap.String("chain_id", chainID.String()))

	stores, closeStores, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStores()

	resolver, err := token.NewResolver(rpcClient, &token.Config{
		Timeout:   cfg.Metadata.Timeout,
		RateLimit: cfg.Metadata.RateLimit,
		Burst:     cfg.Metadata.Burst,
	}, logger.WithComponent(log, "metadata"))
	if err != nil {
		return fmt.Errorf("failed to create metadata resolver: %w", err)
	}

	contracts := make([]common.Address, 0, len(cfg.Indexer.Contracts))
	for _, c := range cfg.Indexer.Contracts {
		contracts = append(contracts, common.HexToAddress(c))
	}

	processor, err := pipeline.NewProcessor(
		pipeline.NewRPCSource(rpcClient, contracts...),
		resolver,
		stores,
		&cache.Config{
			BatchSize:           cfg.Cache.BatchSize,
			PrefetchConcurrency: cfg.Cache.PrefetchConcurrency,
		},
		&pipeline.Config{
			StartHeight:   cfg.Indexer.StartHeight,
			WindowSize:    cfg.Indexer.WindowSize,
			Confirmations: cfg.Indexer.Confirmations,
			PollInterval:  cfg.Indexer.PollInterval,
			MaxRetries:    cfg.Indexer.MaxRetries,
			RetryDelay:    cfg.Indexer.RetryDelay,
			SkipListSize:  pipeline.DefaultConfig().SkipListSize,
		},
		logger.WithComponent(log, "pipeline"),
	)
	if err != nil {
		return fmt.Errorf("failed to create processor: %w", err)
	}

	publisher, closePublisher, err := openPublisher(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closePublisher()
	processor.SetPublisher(publisher)

	if cfg.Metrics.Enabled {
		srvCfg := server.DefaultConfig()
		srvCfg.Addr = cfg.Metrics.Addr
		srvCfg.MetricsPath = cfg.Metrics.Path

		srv, err := server.New(srvCfg, processor, nil, logger.WithComponent(log, "server"))
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		go func() {
			if err := srv.Start(); err != nil {
				log.Error("Metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			if err := srv.Stop(context.Background()); err != nil {
				log.Error("Failed to stop metrics server", zap.Error(err))
			}
		}()
	}

	return processor.Run(ctx)
}

// openStores opens the configured backend and returns one store per entity
// kind, the committer opening units over them, plus a function releasing the
// backend
func openStores(ctx context.Context, cfg *config.Config, log *zap.Logger) (pipeline.Stores, func(), error) {
	log = logger.WithComponent(log, "storage")

	switch cfg.Database.Backend {
	case config.BackendPebble:
		pebbleCfg := storage.DefaultConfig(cfg.Database.Path)
		pebbleCfg.Cache = cfg.Database.Cache
		pebbleCfg.ReadOnly = cfg.Database.ReadOnly
		db, err := storage.NewPebbleStore(pebbleCfg)
		if err != nil {
			return pipeline.Stores{}, nil, fmt.Errorf("failed to open pebble: %w", err)
		}
		db.SetLogger(log)

		accounts := storage.NewEntityStore(db, entity.AccountKind)
		tokens := storage.NewEntityStore(db, entity.TokenKind)
		stores := pipeline.Stores{
			Accounts:    accounts,
			Tokens:      tokens,
			Transfers:   storage.WithHydrator[*entity.Transfer](storage.NewEntityStore(db, entity.TransferKind), storage.NewTransferHydrator(accounts, tokens)),
			Checkpoints: storage.NewEntityStore(db, entity.CheckpointKind),
			Committer:   db,
		}
		return stores, func() {
			if err := db.Close(); err != nil {
				log.Error("Failed to close pebble", zap.Error(err))
			}
		}, nil

	case config.BackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg.Database.DSN, cfg.Database.MaxConns)
		if err != nil {
			return pipeline.Stores{}, nil, err
		}
		if err := pool.EnsureSchema(ctx); err != nil {
			pool.Close()
			return pipeline.Stores{}, nil, err
		}

		pg := postgres.NewStores(pool, log)
		stores := pipeline.Stores{
			Accounts:    pg.Accounts,
			Tokens:      pg.Tokens,
			Transfers:   storage.WithHydrator[*entity.Transfer](pg.Transfers, storage.NewTransferHydrator(pg.Accounts, pg.Tokens)),
			Checkpoints: pg.Checkpoints,
			Committer:   pool,
		}
		return stores, pool.Close, nil

	case config.BackendRedis:
		rdb, err := redisstore.NewClient(ctx, redisstore.Config{
			Addresses: cfg.Database.Redis.Addresses,
			Password:  cfg.Database.Redis.Password,
			DB:        cfg.Database.Redis.DB,
			Prefix:    cfg.Database.Redis.Prefix,
		})
		if err != nil {
			return pipeline.Stores{}, nil, err
		}

		prefix := cfg.Database.Redis.Prefix
		accounts := redisstore.NewStore(rdb, entity.AccountKind, prefix, log)
		tokens := redisstore.NewStore(rdb, entity.TokenKind, prefix, log)
		stores := pipeline.Stores{
			Accounts:    accounts,
			Tokens:      tokens,
			Transfers:   storage.WithHydrator[*entity.Transfer](redisstore.NewStore(rdb, entity.TransferKind, prefix, log), storage.NewTransferHydrator(accounts, tokens)),
			Checkpoints: redisstore.NewStore(rdb, entity.CheckpointKind, prefix, log),
			Committer:   redisstore.NewCommitter(rdb),
		}
		return stores, func() {
			if err := rdb.Close(); err != nil {
				log.Error("Failed to close redis", zap.Error(err))
			}
		}, nil

	case config.BackendMemory:
		log.Warn("Using the in-memory backend; indexed data is lost on exit")
		accounts := memory.New(entity.AccountKind)
		tokens := memory.New(entity.TokenKind)
		stores := pipeline.Stores{
			Accounts:    accounts,
			Tokens:      tokens,
			Transfers:   storage.WithHydrator[*entity.Transfer](memory.New(entity.TransferKind), storage.NewTransferHydrator(accounts, tokens)),
			Checkpoints: memory.New(entity.CheckpointKind),
			Committer:   memory.NewCommitter(),
		}
		return stores, func() {}, nil
	}

	return pipeline.Stores{}, nil, fmt.Errorf("unknown storage backend %q", cfg.Database.Backend)
}

// openPublisher creates the configured window notifier and a function
// releasing it
func openPublisher(ctx context.Context, cfg *config.Config, log *zap.Logger) (notify.Publisher, func(), error) {
	log = logger.WithComponent(log, "notify")

	switch cfg.Notify.Backend {
	case config.NotifyKafka:
		pub, err := notify.NewKafkaPublisher(notify.KafkaConfig{
			Brokers:      cfg.Notify.Kafka.Brokers,
			Topic:        cfg.Notify.Kafka.Topic,
			Compression:  cfg.Notify.Kafka.Compression,
			RequiredAcks: cfg.Notify.Kafka.RequiredAcks,
		}, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create kafka publisher: %w", err)
		}
		log.Info("Publishing committed windows to kafka",
			zap.Strings("brokers", cfg.Notify.Kafka.Brokers),
			zap.String("topic", cfg.Notify.Kafka.Topic))
		return pub, func() {
			if err := pub.Close(); err != nil {
				log.Error("Failed to close kafka publisher", zap.Error(err))
			}
		}, nil

	case config.NotifyRedis:
		redisCfg := cfg.NotifyRedis()
		rdb, err := redisstore.NewClient(ctx, redisstore.Config{
			Addresses: redisCfg.Addresses,
			Password:  redisCfg.Password,
			DB:        redisCfg.DB,
		})
		if err != nil {
			return nil, nil, err
		}
		pub, err := notify.NewRedisPublisher(rdb, cfg.Notify.Channel, log)
		if err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("failed to create redis publisher: %w", err)
		}
		log.Info("Publishing committed windows to redis", zap.String("channel", cfg.Notify.Channel))
		return pub, func() {
			if err := rdb.Close(); err != nil {
				log.Error("Failed to close redis publisher", zap.Error(err))
			}
		}, nil
	}

	return notify.Nop{}, func() {}, nil
}

// loadDotEnv loads environment variables from a .env file if it exists
func loadDotEnv() error {
	info, err := os.Stat(".env")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat .env: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf(".env exists but is a directory")
	}
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

