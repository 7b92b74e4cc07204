package pagination

import (
	"context"
	"errors"
	"io"
	"strconv"
	"testing"
)

// tokenSource serves string nodes in pages keyed by the stringified offset.
type tokenSource struct {
	size   int
	afters []string
	fail   bool
}

func (s *tokenSource) FetchAfter(ctx context.Context, after string, first int) (KeysetPage[string], error) {
	s.afters = append(s.afters, after)
	if s.fail {
		return KeysetPage[string]{}, errors.New("boom")
	}
	start := 0
	if after != "" {
		start, _ = strconv.Atoi(after)
	}
	var nodes []string
	for i := start; i < s.size && i < start+first; i++ {
		nodes = append(nodes, "term"+strconv.Itoa(i))
	}
	end := start + len(nodes)
	return KeysetPage[string]{
		Nodes:       nodes,
		EndCursor:   strconv.Itoa(end),
		HasNextPage: end < s.size,
	}, nil
}

func drainKeyset(t *testing.T, k *Keyset[string]) []string {
	t.Helper()
	var out []string
	for {
		n, err := k.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		out = append(out, n)
	}
}

func TestKeyset_FollowsCursor(t *testing.T) {
	src := &tokenSource{size: 25}
	k := NewKeyset[string](src, 10, 0)

	nodes := drainKeyset(t, k)

	if len(nodes) != 25 {
		t.Fatalf("nodes = %d, want 25", len(nodes))
	}
	want := []string{"", "10", "20"}
	if len(src.afters) != len(want) {
		t.Fatalf("pages = %v, want %v", src.afters, want)
	}
	for i := range want {
		if src.afters[i] != want[i] {
			t.Errorf("page %d after = %q, want %q", i, src.afters[i], want[i])
		}
	}
}

func TestKeyset_MaxNodes(t *testing.T) {
	src := &tokenSource{size: 100}
	k := NewKeyset[string](src, 10, 15)

	nodes := drainKeyset(t, k)

	if len(nodes) != 15 {
		t.Errorf("nodes = %d, want 15", len(nodes))
	}
	if k.Pages() != 2 {
		t.Errorf("pages = %d, want 2", k.Pages())
	}
}

func TestKeyset_Empty(t *testing.T) {
	src := &tokenSource{size: 0}
	k := NewKeyset[string](src, 10, 0)

	if nodes := drainKeyset(t, k); len(nodes) != 0 {
		t.Errorf("nodes = %v, want none", nodes)
	}
	if k.Pages() != 1 {
		t.Errorf("pages = %d, want 1", k.Pages())
	}
}

func TestKeyset_Error(t *testing.T) {
	k := NewKeyset[string](&tokenSource{size: 5, fail: true}, 10, 0)

	if _, err := k.Next(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if _, err := k.Next(context.Background()); err == nil || errors.Is(err, io.EOF) {
		t.Errorf("error must be sticky, got %v", err)
	}
}
