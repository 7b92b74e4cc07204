package enrich

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"

	"github.com/Sternrassler/enrich-export/pkg/cache"
	"github.com/Sternrassler/enrich-export/pkg/client"
)

type memoryCache struct {
	sets     map[string][]string
	getErr   error
	setErr   error
	setCalls int
}

func (m *memoryCache) GetGenes(ctx context.Context, id string) ([]string, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	genes, ok := m.sets[id]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return genes, nil
}

func (m *memoryCache) SetGenes(ctx context.Context, id string, genes []string) error {
	m.setCalls++
	if m.setErr != nil {
		return m.setErr
	}
	m.sets[id] = genes
	return nil
}

func geneSetQuerier(sets map[string]string) *fakeQuerier {
	return &fakeQuerier{respond: func(req client.Request) (string, error) {
		if req.Operation != OpFetchGeneSet {
			return "", errors.New("unexpected operation " + req.Operation)
		}
		id, _ := req.Variables["id"].(string)
		return sets[id], nil
	}}
}

func TestResolver_Resolve(t *testing.T) {
	sets := map[string]string{
		"set-1": `{"genes": ["stat1", "", null, "Tp53"], "description": "mine"}`,
		"empty": `{"genes": [], "description": null}`,
	}

	tests := []struct {
		name      string
		id        string
		cache     *memoryCache
		want      []string
		wantCalls int
		wantSets  int
	}{
		{name: "empty id", id: "", want: nil, wantCalls: 0},
		{name: "no cache", id: "set-1", want: []string{"STAT1", "TP53"}, wantCalls: 1},
		{name: "cache miss is written back", id: "set-1", cache: &memoryCache{sets: map[string][]string{}}, want: []string{"STAT1", "TP53"}, wantCalls: 1, wantSets: 1},
		{name: "cache hit", id: "set-1", cache: &memoryCache{sets: map[string][]string{"set-1": {"CACHED"}}}, want: []string{"CACHED"}, wantCalls: 0},
		{name: "cache failure falls through", id: "set-1", cache: &memoryCache{sets: map[string][]string{}, getErr: errors.New("redis down"), setErr: errors.New("redis down")}, want: []string{"STAT1", "TP53"}, wantCalls: 1, wantSets: 1},
		{name: "unknown id", id: "nope", cache: &memoryCache{sets: map[string][]string{}}, want: []string{}, wantCalls: 1},
		{name: "empty set not cached", id: "empty", cache: &memoryCache{sets: map[string][]string{}}, want: []string{}, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := geneSetQuerier(sets)
			var store GeneSetCache
			if tt.cache != nil {
				store = tt.cache
			}

			got, err := NewResolver(q, store).Resolve(context.Background(), tt.id)
			if err != nil {
				t.Fatalf("Resolve() error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Resolve() mismatch (-want +got):\n%s", diff)
			}
			if q.calls() != tt.wantCalls {
				t.Errorf("upstream calls = %d, want %d", q.calls(), tt.wantCalls)
			}
			if tt.cache != nil && tt.cache.setCalls != tt.wantSets {
				t.Errorf("cache writes = %d, want %d", tt.cache.setCalls, tt.wantSets)
			}
		})
	}
}

func TestResolver_UpstreamError(t *testing.T) {
	q := &fakeQuerier{respond: func(client.Request) (string, error) {
		return "", &client.QueryError{Operation: OpFetchGeneSet, Class: client.ErrorClassNetwork, Message: "request failed"}
	}}

	_, err := NewResolver(q, nil).Resolve(context.Background(), "set-1")
	if client.ClassOf(err) != client.ErrorClassNetwork {
		t.Errorf("Resolve() error = %v, want network QueryError", err)
	}
}

func TestResolver_WithRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	store := cache.NewManager(rdb, time.Hour)
	q := geneSetQuerier(map[string]string{"set-1": `{"genes": ["stat1", "tp53"]}`})
	r := NewResolver(q, store)
	ctx := context.Background()

	for range 3 {
		got, err := r.Resolve(ctx, "set-1")
		if err != nil {
			t.Fatalf("Resolve() error: %v", err)
		}
		if diff := cmp.Diff([]string{"STAT1", "TP53"}, got); diff != "" {
			t.Errorf("Resolve() mismatch (-want +got):\n%s", diff)
		}
	}
	if q.calls() != 1 {
		t.Errorf("upstream calls = %d, want 1", q.calls())
	}
	if !mr.Exists(cache.GeneSetKey("set-1").String()) {
		t.Error("gene set not stored in redis")
	}

	mr.FastForward(2 * time.Hour)
	if _, err := r.Resolve(ctx, "set-1"); err != nil {
		t.Fatalf("Resolve() after expiry error: %v", err)
	}
	if q.calls() != 2 {
		t.Errorf("upstream calls after expiry = %d, want 2", q.calls())
	}
}
