package integration

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tikitools/tiki-crawler/internal/testutil"
	"github.com/tikitools/tiki-crawler/pkg/batch"
	"github.com/tikitools/tiki-crawler/pkg/cache"
	"github.com/tikitools/tiki-crawler/pkg/catalog"
	"github.com/tikitools/tiki-crawler/pkg/limiter"
	"github.com/tikitools/tiki-crawler/pkg/logging"
	"github.com/tikitools/tiki-crawler/pkg/ratelimit"
	"github.com/tikitools/tiki-crawler/pkg/store"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Could not start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

// newTestClient wires a catalog client against the mock server with zero
// politeness delay and millisecond backoffs.
func newTestClient(t *testing.T, mock *testutil.MockCatalog, concurrency int) (*catalog.Client, *ratelimit.Tracker) {
	t.Helper()

	lim, err := limiter.New(concurrency)
	if err != nil {
		t.Fatalf("limiter.New() error = %v", err)
	}
	tracker := ratelimit.NewTracker(nil, logging.NewLogger("test"))

	cfg := catalog.DefaultConfig()
	cfg.BaseURL = mock.URL() + "/products"
	cfg.DelayMin = 0
	cfg.DelayMax = 0
	cfg.RateLimitBackoff = 5 * time.Millisecond
	cfg.TimeoutBackoff = 2 * time.Millisecond
	cfg.Timeout = 5 * time.Second

	client, err := catalog.New(cfg, lim, tracker)
	if err != nil {
		t.Fatalf("catalog.New() error = %v", err)
	}
	client.SetHTTPClient(&http.Client{Timeout: cfg.Timeout})

	return client, tracker
}

func newStores(t *testing.T, dir string) (*store.ArtifactStore, *store.FailureLog) {
	t.Helper()

	artifacts, err := store.NewArtifactStore(dir)
	if err != nil {
		t.Fatalf("NewArtifactStore() error = %v", err)
	}
	failures, err := store.NewFailureLog(filepath.Join(dir, "failed_ids.csv"))
	if err != nil {
		t.Fatalf("NewFailureLog() error = %v", err)
	}
	return artifacts, failures
}

// TestCrawl_EndToEnd drives the full pipeline: identifiers in, artifacts
// and failure rows out, with a mix of success, transient 429, permanent
// 404, and server errors.
func TestCrawl_EndToEnd(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()

	mock.SetProduct("100", testutil.ProductBody("100", "Gaming Mouse"))
	mock.SetSequence("200",
		testutil.NewRateLimitResponse(),
		testutil.MockResponse{StatusCode: http.StatusOK, Body: testutil.ProductBody("200", "Mechanical Keyboard")},
	)
	mock.SetSequence("300", testutil.NewNotFoundResponse())
	mock.SetSequence("400", testutil.NewServerErrorResponse())

	client, tracker := newTestClient(t, mock, 10)

	dir := t.TempDir()
	artifacts, failures := newStores(t, dir)

	runner, err := batch.NewRunner(client, artifacts, failures, batch.Config{BatchSize: 10})
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}

	summary, err := runner.Run(context.Background(), []string{"100", "200", "300", "400"}, 1)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if summary.Successes != 2 {
		t.Errorf("Successes = %d, want 2 (100 and 200)", summary.Successes)
	}
	if summary.Failures != 2 {
		t.Errorf("Failures = %d, want 2 (300 and 400)", summary.Failures)
	}

	products, err := artifacts.ReadBatch(1)
	if err != nil {
		t.Fatalf("ReadBatch(1) error = %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("artifact has %d products, want 2", len(products))
	}

	// The 429 retry was transparent to the orchestrator.
	if got := mock.GetProductRequestCount("200"); got != 2 {
		t.Errorf("requests for 200 = %d, want 2 (429 then 200)", got)
	}
	if tracker.Hits() != 1 {
		t.Errorf("rate limit hits = %d, want 1", tracker.Hits())
	}

	// The 404 was terminal on the first attempt.
	if got := mock.GetProductRequestCount("300"); got != 1 {
		t.Errorf("requests for 300 = %d, want 1 (404 is terminal)", got)
	}

	data, err := os.ReadFile(filepath.Join(dir, "failed_ids.csv"))
	if err != nil {
		t.Fatalf("read failure log: %v", err)
	}
	content := string(data)
	if !strings.HasPrefix(content, "id,error\n") {
		t.Errorf("failure log missing header:\n%s", content)
	}
	if !strings.Contains(content, "300,not_found") {
		t.Errorf("failure log missing 404 row:\n%s", content)
	}
	if !strings.Contains(content, "400,http_status_500") {
		t.Errorf("failure log missing 500 row:\n%s", content)
	}
}

// TestCrawl_ResumeAcrossRuns simulates a crash between batches: the second
// run starts after the last completed batch and refetches nothing from it.
func TestCrawl_ResumeAcrossRuns(t *testing.T) {
	mock := testutil.NewMockCatalog()
	defer mock.Close()

	ids := []string{"1", "2", "3", "4"}
	for _, id := range ids {
		mock.SetProduct(id, testutil.ProductBody(id, "Product "+id))
	}

	dir := t.TempDir()

	// First run processes only batch 1, then "crashes".
	{
		client, _ := newTestClient(t, mock, 4)
		artifacts, failures := newStores(t, dir)
		runner, err := batch.NewRunner(client, artifacts, failures, batch.Config{BatchSize: 2})
		if err != nil {
			t.Fatalf("NewRunner() error = %v", err)
		}
		summary, err := runner.Run(context.Background(), ids[:2], 1)
		if err != nil {
			t.Fatalf("first Run() error = %v", err)
		}
		if summary.BatchesRun != 1 {
			t.Fatalf("first run BatchesRun = %d, want 1", summary.BatchesRun)
		}
	}

	mock.Reset()

	// Second run resumes from the artifact directory.
	{
		client, _ := newTestClient(t, mock, 4)
		artifacts, failures := newStores(t, dir)

		start, err := artifacts.NextBatch()
		if err != nil {
			t.Fatalf("NextBatch() error = %v", err)
		}
		if start != 2 {
			t.Fatalf("NextBatch() = %d, want 2", start)
		}

		runner, err := batch.NewRunner(client, artifacts, failures, batch.Config{BatchSize: 2})
		if err != nil {
			t.Fatalf("NewRunner() error = %v", err)
		}
		summary, err := runner.Run(context.Background(), ids, start)
		if err != nil {
			t.Fatalf("second Run() error = %v", err)
		}
		if summary.BatchesRun != 1 {
			t.Errorf("second run BatchesRun = %d, want 1", summary.BatchesRun)
		}
	}

	// Batch 1 identifiers were never refetched.
	if got := mock.GetProductRequestCount("1"); got != 0 {
		t.Errorf("requests for 1 after resume = %d, want 0", got)
	}
	if got := mock.GetProductRequestCount("3"); got != 1 {
		t.Errorf("requests for 3 after resume = %d, want 1", got)
	}
}

// TestCrawl_WithRedisCache verifies that the Redis cache tier serves a
// product across client instances without touching the upstream again.
func TestCrawl_WithRedisCache(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockCatalog()
	defer mock.Close()

	mock.SetProduct("500", testutil.ProductBody("500", "USB Hub"))

	ctx := context.Background()

	// First client populates the cache.
	{
		client, _ := newTestClient(t, mock, 2)
		productCache, err := cache.New(100, time.Hour, redisClient, logging.NewLogger("test"))
		if err != nil {
			t.Fatalf("cache.New() error = %v", err)
		}
		client.SetCache(productCache)

		outcome := client.Fetch(ctx, "500")
		if !outcome.Success() {
			t.Fatalf("first fetch failed: %s", outcome.Reason)
		}
	}

	if mock.GetRequestCount() != 1 {
		t.Fatalf("requests after first fetch = %d, want 1", mock.GetRequestCount())
	}

	// A fresh client with an empty memory tier hits the Redis tier.
	{
		client, _ := newTestClient(t, mock, 2)
		productCache, err := cache.New(100, time.Hour, redisClient, logging.NewLogger("test"))
		if err != nil {
			t.Fatalf("cache.New() error = %v", err)
		}
		client.SetCache(productCache)

		outcome := client.Fetch(ctx, "500")
		if !outcome.Success() {
			t.Fatalf("second fetch failed: %s", outcome.Reason)
		}
		if outcome.Product.Name != "USB Hub" {
			t.Errorf("cached product name = %q, want %q", outcome.Product.Name, "USB Hub")
		}
	}

	if mock.GetRequestCount() != 1 {
		t.Errorf("requests after cached fetch = %d, want 1 (served from Redis)", mock.GetRequestCount())
	}
}

// TestCrawl_RateLimitCounterSharedViaRedis verifies 429 hits mirrored to
// Redis accumulate across tracker instances, as they would across runs.
func TestCrawl_RateLimitCounterSharedViaRedis(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()

	first := ratelimit.NewTracker(redisClient, logging.NewLogger("test"))
	first.Hit(ctx)
	first.Hit(ctx)

	second := ratelimit.NewTracker(redisClient, logging.NewLogger("test"))
	second.Hit(ctx)

	total, err := second.TotalAcrossRuns(ctx)
	if err != nil {
		t.Fatalf("TotalAcrossRuns() error = %v", err)
	}
	if total != 3 {
		t.Errorf("TotalAcrossRuns() = %d, want 3", total)
	}
	if second.Hits() != 1 {
		t.Errorf("second.Hits() = %d, want 1 (local only)", second.Hits())
	}
}
