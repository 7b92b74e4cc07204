package enrich

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/Sternrassler/enrich-export/pkg/client"
)

// fakeQuerier answers every request with the JSON payload found at the
// request's path. An empty payload leaves out untouched.
type fakeQuerier struct {
	mu       sync.Mutex
	respond  func(req client.Request) (string, error)
	requests []client.Request
}

func (f *fakeQuerier) Query(ctx context.Context, req client.Request, out any) error {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := f.respond(req)
	if err != nil || payload == "" {
		return err
	}
	return json.Unmarshal([]byte(payload), out)
}

func (f *fakeQuerier) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func decode[T any](t *testing.T, raw string) T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		t.Fatalf("decode %T: %v", v, err)
	}
	return v
}
