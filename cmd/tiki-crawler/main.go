// Command tiki-crawler fetches product details for a list of identifiers
// and writes one JSON artifact per completed batch. Re-running with the
// same output directory resumes after the last completed batch.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/tikitools/tiki-crawler/pkg/batch"
	"github.com/tikitools/tiki-crawler/pkg/cache"
	"github.com/tikitools/tiki-crawler/pkg/catalog"
	"github.com/tikitools/tiki-crawler/pkg/input"
	"github.com/tikitools/tiki-crawler/pkg/limiter"
	"github.com/tikitools/tiki-crawler/pkg/logging"
	"github.com/tikitools/tiki-crawler/pkg/ratelimit"
	"github.com/tikitools/tiki-crawler/pkg/store"
)

func main() {
	var (
		inputPath   = flag.String("input", getEnv("TIKI_INPUT", "products-0-200000(in).csv"), "CSV file with product identifiers")
		outputDir   = flag.String("output-dir", getEnv("TIKI_OUTPUT_DIR", "output"), "directory for batch artifacts")
		failedPath  = flag.String("failed-file", getEnv("TIKI_FAILED_FILE", "failed_ids.csv"), "CSV log of permanently failed identifiers")
		baseURL     = flag.String("base-url", getEnv("TIKI_BASE_URL", ""), "product-detail endpoint (default: Tiki production API)")
		concurrency = flag.Int("concurrency", 100, "maximum concurrent requests")
		batchSize   = flag.Int("batch-size", 1000, "identifiers per batch")
		maxRetries  = flag.Int("max-retries", 3, "attempts per identifier")
		timeout     = flag.Duration("timeout", 10*time.Second, "per-request timeout")
		cooldown    = flag.Duration("cooldown", 3*time.Second, "pause between batches")
		metricsAddr = flag.String("metrics-addr", getEnv("TIKI_METRICS_ADDR", ""), "address for the Prometheus /metrics endpoint (empty disables)")
		redisAddr   = flag.String("redis-addr", getEnv("REDIS_URL", ""), "Redis address for cache and rate-limit counters (empty disables)")
		cacheSize   = flag.Int("cache-size", 10000, "in-memory cache entries (0 disables caching)")
		cacheTTL    = flag.Duration("cache-ttl", time.Hour, "cache entry lifetime")
		logLevel    = flag.String("log-level", getEnv("TIKI_LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
		logPretty   = flag.Bool("log-pretty", false, "human-readable console logging")
	)
	flag.Parse()

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(*logLevel),
		Pretty: *logPretty,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, options{
		inputPath:   *inputPath,
		outputDir:   *outputDir,
		failedPath:  *failedPath,
		baseURL:     *baseURL,
		concurrency: *concurrency,
		batchSize:   *batchSize,
		maxRetries:  *maxRetries,
		timeout:     *timeout,
		cooldown:    *cooldown,
		metricsAddr: *metricsAddr,
		redisAddr:   *redisAddr,
		cacheSize:   *cacheSize,
		cacheTTL:    *cacheTTL,
	}); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn().Msg("Crawl interrupted, current batch discarded")
			os.Exit(130)
		}
		logger.Fatal().Err(err).Msg("Crawl failed")
	}
}

type options struct {
	inputPath   string
	outputDir   string
	failedPath  string
	baseURL     string
	concurrency int
	batchSize   int
	maxRetries  int
	timeout     time.Duration
	cooldown    time.Duration
	metricsAddr string
	redisAddr   string
	cacheSize   int
	cacheTTL    time.Duration
}

func run(ctx context.Context, logger zerolog.Logger, opts options) error {
	ids, err := input.LoadIDs(opts.inputPath)
	if err != nil {
		return fmt.Errorf("load identifiers: %w", err)
	}
	logger.Info().Str("input", opts.inputPath).Int("ids", len(ids)).Msg("Loaded identifiers")

	var redisClient *redis.Client
	if opts.redisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: opts.redisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to Redis at %s: %w", opts.redisAddr, err)
		}
		defer redisClient.Close()
		logger.Info().Str("addr", opts.redisAddr).Msg("Connected to Redis")
	}

	if opts.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			logger.Info().Str("addr", opts.metricsAddr).Msg("Serving metrics")
			if err := http.ListenAndServe(opts.metricsAddr, mux); err != nil {
				logger.Error().Err(err).Msg("Metrics server stopped")
			}
		}()
	}

	tracker := ratelimit.NewTracker(redisClient, logger)

	lim, err := limiter.New(opts.concurrency)
	if err != nil {
		return err
	}

	clientConfig := catalog.DefaultConfig()
	if opts.baseURL != "" {
		clientConfig.BaseURL = opts.baseURL
	}
	clientConfig.Timeout = opts.timeout
	clientConfig.MaxRetries = opts.maxRetries

	client, err := catalog.New(clientConfig, lim, tracker)
	if err != nil {
		return fmt.Errorf("create catalog client: %w", err)
	}

	if opts.cacheSize > 0 {
		productCache, err := cache.New(opts.cacheSize, opts.cacheTTL, redisClient, logger)
		if err != nil {
			return fmt.Errorf("create cache: %w", err)
		}
		client.SetCache(productCache)
	}

	artifacts, err := store.NewArtifactStore(opts.outputDir)
	if err != nil {
		return err
	}
	failures, err := store.NewFailureLog(opts.failedPath)
	if err != nil {
		return err
	}

	startBatch, err := artifacts.NextBatch()
	if err != nil {
		return fmt.Errorf("determine resume point: %w", err)
	}
	if startBatch > 1 {
		logger.Info().Int("start_batch", startBatch).Msg("Resuming after completed batches")
	}

	runnerConfig := batch.DefaultConfig()
	runnerConfig.BatchSize = opts.batchSize
	runnerConfig.Cooldown = opts.cooldown

	runner, err := batch.NewRunner(client, artifacts, failures, runnerConfig)
	if err != nil {
		return err
	}

	started := time.Now()
	summary, err := runner.Run(ctx, ids, startBatch)
	if err != nil {
		return err
	}

	failedTotal, countErr := failures.Count()
	if countErr != nil {
		logger.Warn().Err(countErr).Msg("Could not count failure log rows")
	}

	logger.Info().
		Dur("elapsed", time.Since(started)).
		Int("batches_run", summary.BatchesRun).
		Int("successes", summary.Successes).
		Int("failures", summary.Failures).
		Int("failed_total", failedTotal).
		Int64("rate_limit_hits", tracker.Hits()).
		Msg("Crawl finished")

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
