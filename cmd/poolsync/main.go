package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"poolSync/internal/chain"
	"poolSync/internal/config"
	"poolSync/internal/dex"
	"poolSync/internal/discovery"
	"poolSync/internal/filter"
	"poolSync/internal/pool"
	"poolSync/internal/statespace"
	"poolSync/internal/storage"
	"poolSync/internal/storage/postgres"
)

func main() {
	root := &cobra.Command{
		Use:          "poolsync",
		Short:        "AMM pool state synchronizer",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Discover pools and follow the chain head",
		RunE:  runSync,
	}
	addCommonFlags(runCmd)
	runCmd.Flags().Int("reorg-retention", 64, "blocks of rollback history to retain")
	runCmd.Flags().String("metrics-addr", "", "address for the Prometheus /metrics endpoint")
	runCmd.Flags().String("changelog", "", "optional JSONL path for pool change sets")
	root.AddCommand(runCmd)

	discoverCmd := &cobra.Command{
		Use:   "discover",
		Short: "Scan factories for pools and exit",
		RunE:  runDiscover,
	}
	addCommonFlags(discoverCmd)
	root.AddCommand(discoverCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addCommonFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", "", "EVM RPC URL (WebSocket for head tracking)")
	cmd.Flags().Uint64("batch-size", 5000, "blocks per discovery log query")
	cmd.Flags().Int("concurrency", 4, "concurrent state-load batches")
	cmd.Flags().Int("chunk-size", 50, "pools per batched state call")
	cmd.Flags().Int("max-retries", 3, "maximum retry attempts")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	cmd.Flags().Duration("call-timeout", 30*time.Second, "timeout per batched call")
	cmd.Flags().String("checkpoint", "./data/checkpoints.json", "checkpoint file path")
	cmd.Flags().Bool("checkpoint-enabled", true, "enable scan checkpointing")
	cmd.Flags().String("pg-dsn", "", "optional Postgres DSN for pool persistence")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func runSync(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close()

	metrics := statespace.NewMetrics(prometheus.DefaultRegisterer)
	manager := statespace.NewManager(cfg.ReorgRetention, deps.decoder, metrics, logger)

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, logger)
	}

	pools, err := discoverAll(ctx, cfg, deps, logger)
	if err != nil {
		return err
	}
	if len(pools) == 0 {
		return fmt.Errorf("no pools discovered; nothing to track")
	}
	manager.AddPools(pools)

	if deps.pg != nil {
		if err := deps.pg.UpsertPools(ctx, pools); err != nil {
			return fmt.Errorf("persist pools: %w", err)
		}
	}

	changes, cancelSub := manager.Subscribe(256)
	defer cancelSub()
	go consumeChanges(ctx, changes, deps, logger)

	logger.Info("following chain head",
		zap.Int("pools", len(pools)),
		zap.Int("reorg_retention", cfg.ReorgRetention))

	return manager.Run(ctx, deps.client)
}

func runDiscover(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close()

	pools, err := discoverAll(ctx, cfg, deps, logger)
	if err != nil {
		return err
	}

	if deps.pg != nil {
		if err := deps.pg.UpsertPools(ctx, pools); err != nil {
			return fmt.Errorf("persist pools: %w", err)
		}
	}

	for _, p := range pools {
		fmt.Printf("%s\t%s\t%s/%s\n", p.Address.Hex(), p.Variant, p.Token0.Hex(), p.Token1.Hex())
	}
	logger.Info("discovery complete", zap.Int("pools", len(pools)))
	return nil
}

// deps groups the shared runtime dependencies of both commands.
type deps struct {
	client      *chain.Client
	decoder     *dex.Decoder
	filters     filter.Chain
	filterCtx   filter.Context
	checkpoints discovery.CheckpointStore
	pg          *postgres.Store
	changelog   *storage.JsonlChangeLog
}

func (d *deps) close() {
	if d.pg != nil {
		d.pg.Close()
	}
	if d.client != nil {
		d.client.Close()
	}
}

func buildDeps(ctx context.Context, cfg config.Config, logger *zap.Logger) (*deps, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	if len(cfg.Factories) == 0 {
		return nil, fmt.Errorf("at least one factory is required")
	}

	client, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}

	decoder, err := dex.NewDecoder()
	if err != nil {
		client.Close()
		return nil, err
	}

	filters, err := filter.ParseSpecs(cfg.Filters)
	if err != nil {
		client.Close()
		return nil, err
	}

	pricer, err := parseTokenPrices(cfg.TokenPrices)
	if err != nil {
		client.Close()
		return nil, err
	}

	d := &deps{
		client:    client,
		decoder:   decoder,
		filters:   filters,
		filterCtx: filter.Context{Pricer: pricer},
	}

	if cfg.Changelog != "" {
		d.changelog = storage.NewJsonlChangeLog(cfg.Changelog)
	}

	if cfg.PGDSN != "" {
		pg, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pg.Init(ctx); err != nil {
			pg.Close()
			client.Close()
			return nil, fmt.Errorf("init postgres schema: %w", err)
		}
		d.pg = pg
		d.checkpoints = pg.CheckpointStore(ctx)
	} else {
		d.checkpoints = discovery.NewFileCheckpointStore(cfg.Checkpoint, cfg.CheckpointEnabled)
	}

	return d, nil
}

func discoverAll(ctx context.Context, cfg config.Config, d *deps, logger *zap.Logger) ([]pool.Pool, error) {
	var all []pool.Pool
	for _, fc := range cfg.Factories {
		if !common.IsHexAddress(fc.Address) {
			return nil, fmt.Errorf("invalid factory address %q", fc.Address)
		}
		variant, err := pool.ParseVariant(fc.Variant)
		if err != nil {
			return nil, err
		}

		toBlock := fc.ToBlock
		if toBlock == 0 {
			latest, err := d.client.BlockNumber(ctx)
			if err != nil {
				return nil, fmt.Errorf("fetch latest block: %w", err)
			}
			toBlock = latest
		}

		scanner := discovery.NewScanner(discovery.Config{
			Factory:      common.HexToAddress(fc.Address),
			Variant:      variant,
			FeeBps:       fc.FeeBps,
			FromBlock:    fc.FromBlock,
			ToBlock:      toBlock,
			BatchSize:    cfg.BatchSize,
			Concurrency:  cfg.Concurrency,
			ChunkSize:    cfg.ChunkSize,
			MaxRetries:   cfg.MaxRetries,
			RetryBackoff: cfg.RetryBackoff,
			CallTimeout:  cfg.CallTimeout,
		}, d.client, d.client, d.decoder, d.filters, d.filterCtx, d.checkpoints, logger)

		pools, err := scanner.Scan(ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, pools...)
	}
	return all, nil
}

func consumeChanges(ctx context.Context, changes <-chan statespace.ChangeSet, d *deps, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case cs, ok := <-changes:
			if !ok {
				return
			}
			if d.changelog != nil {
				if err := d.changelog.PutChangeSet(cs); err != nil {
					logger.Warn("write change set", zap.Error(err))
				}
			}
			if d.pg != nil {
				updated := make([]pool.Pool, 0, len(cs.Changes))
				for _, c := range cs.Changes {
					updated = append(updated, c.New)
				}
				if err := d.pg.UpsertStates(ctx, cs.BlockNumber, updated); err != nil {
					logger.Warn("persist pool states", zap.Error(err))
				}
			}
		}
	}
}

func parseTokenPrices(raw map[string]string) (filter.TokenPricer, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	pricer := make(filter.StaticPricer, len(raw))
	for addr, price := range raw {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("invalid token address %q in token prices", addr)
		}
		d, err := decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("invalid price %q for token %s: %w", price, addr, err)
		}
		pricer[common.HexToAddress(addr)] = d
	}
	return pricer, nil
}

func serveMetrics(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
