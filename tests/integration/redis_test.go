//go:build integration

package integration

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/enrich-export/internal/config"
	"github.com/Sternrassler/enrich-export/internal/server"
	"github.com/Sternrassler/enrich-export/internal/testutil"
	"github.com/Sternrassler/enrich-export/pkg/cache"
	"github.com/Sternrassler/enrich-export/pkg/client"
	"github.com/Sternrassler/enrich-export/pkg/enrich"
	"github.com/Sternrassler/enrich-export/pkg/ratelimit"
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
		t.Fatalf("Failed to start Redis container: %v", err)
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

func TestIntegration_GeneSetCache(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	manager := cache.NewManager(redisClient, time.Minute)

	if _, err := manager.GetGenes(ctx, "set-1"); !errors.Is(err, cache.ErrCacheMiss) {
		t.Fatalf("expected cache miss, got %v", err)
	}
	if err := manager.SetGenes(ctx, "set-1", []string{"STAT1", "TP53"}); err != nil {
		t.Fatalf("SetGenes() error: %v", err)
	}

	genes, err := manager.GetGenes(ctx, "set-1")
	if err != nil {
		t.Fatalf("GetGenes() error: %v", err)
	}
	if strings.Join(genes, ",") != "STAT1,TP53" {
		t.Errorf("genes = %v", genes)
	}

	ttl, err := redisClient.TTL(ctx, cache.GeneSetKey("set-1").String()).Result()
	if err != nil {
		t.Fatalf("TTL: %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("ttl = %v, want (0, 1m]", ttl)
	}
}

func TestIntegration_SharedExportSlots(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	cfg := ratelimit.Config{Limit: 2}
	a := ratelimit.NewTracker(redisClient, cfg, zerolog.Nop())
	b := ratelimit.NewTracker(redisClient, cfg, zerolog.Nop())

	releaseA, err := a.Acquire(ctx)
	if err != nil {
		t.Fatalf("instance a: %v", err)
	}
	releaseB, err := b.Acquire(ctx)
	if err != nil {
		t.Fatalf("instance b: %v", err)
	}

	if _, err := a.Acquire(ctx); !errors.Is(err, ratelimit.ErrTooManyExports) {
		t.Errorf("third export: got %v, want ErrTooManyExports", err)
	}

	releaseA()
	releaseB()

	state, err := b.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error: %v", err)
	}
	if state.Active != 0 {
		t.Errorf("active = %d, want 0", state.Active)
	}
}

func TestIntegration_ConcurrentSlotAccounting(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	tracker := ratelimit.NewTracker(redisClient, ratelimit.Config{Limit: 100}, zerolog.Nop())

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := tracker.Acquire(ctx)
			if err != nil {
				t.Errorf("Acquire() error: %v", err)
				return
			}
			release()
		}()
	}
	wg.Wait()

	state, err := tracker.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error: %v", err)
	}
	if state.Active != 0 {
		t.Errorf("active = %d after all releases, want 0", state.Active)
	}
}

func TestIntegration_ExportWithCachedGeneSets(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.SetHandler(enrich.OpFetchGeneSet, testutil.UserGeneSetHandler(map[string][]string{"set-1": {"stat1", "tp53"}}))
	mock.SetHandler(enrich.OpSingle, testutil.NodesHandler(false, 600, testutil.SingleNode))

	upstream, err := client.New(client.DefaultConfig(mock.URL()))
	if err != nil {
		t.Fatalf("client.New() error: %v", err)
	}
	defer upstream.Close()

	srv := httptest.NewServer(server.New(server.Options{
		Querier:  upstream,
		Resolver: enrich.NewResolver(upstream, cache.NewManager(redisClient, time.Minute)),
		Tracker:  ratelimit.NewTracker(redisClient, ratelimit.Config{Limit: 4}, zerolog.Nop()),
		Export:   config.DefaultConfig().Export,
		Logger:   zerolog.Nop(),
	}))
	defer srv.Close()

	for range 2 {
		resp, err := http.Get(srv.URL + "/enrich/download?dataset=set-1")
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		if n := strings.Count(string(body), "\n"); n != 601 {
			t.Errorf("lines = %d, want 601", n)
		}
		if resp.Trailer.Get(server.TrailerStatus) != "complete" {
			t.Errorf("trailers = %v", resp.Trailer)
		}
	}

	if n := mock.RequestCount(enrich.OpFetchGeneSet); n != 1 {
		t.Errorf("gene-set lookups = %d, want 1 (second export served from cache)", n)
	}
	if n := mock.RequestCount(enrich.OpSingle); n != 4 {
		t.Errorf("result pages = %d, want 4", n)
	}
}
