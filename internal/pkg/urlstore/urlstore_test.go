package urlstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(s.Close)

	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, time.Hour)
}

func TestMarkSeen(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	fresh, err := store.MarkSeen(ctx, "https://www.ycombinator.com/companies/alpha")
	if err != nil {
		t.Fatalf("first mark: %v", err)
	}
	if !fresh {
		t.Fatalf("first mark should report fresh")
	}

	fresh, err = store.MarkSeen(ctx, "https://www.ycombinator.com/companies/alpha")
	if err != nil {
		t.Fatalf("second mark: %v", err)
	}
	if fresh {
		t.Fatalf("second mark of same url should not be fresh")
	}

	fresh, err = store.MarkSeen(ctx, "https://www.ycombinator.com/companies/beta")
	if err != nil {
		t.Fatalf("mark other: %v", err)
	}
	if !fresh {
		t.Fatalf("different url should be fresh")
	}
}

func TestOverflowFIFO(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	urls := []string{
		"https://www.ycombinator.com/companies/alpha",
		"https://www.ycombinator.com/companies/beta",
		"https://www.ycombinator.com/companies/gamma",
	}
	if err := store.PushOverflow(ctx, urls); err != nil {
		t.Fatalf("push: %v", err)
	}

	n, err := store.OverflowLen(ctx)
	if err != nil || n != 3 {
		t.Fatalf("overflow len = %d (%v), want 3", n, err)
	}

	for i, want := range urls {
		got, err := store.PopOverflow(ctx)
		if err != nil {
			t.Fatalf("pop %d: %v", i, err)
		}
		if got != want {
			t.Errorf("pop %d = %q, want %q (fifo order)", i, got, want)
		}
	}

	if _, err := store.PopOverflow(ctx); !errors.Is(err, ErrEmpty) {
		t.Fatalf("pop on drained list = %v, want ErrEmpty", err)
	}
}

func TestNilStoreIsNoop(t *testing.T) {
	var store *Store
	ctx := context.Background()

	fresh, err := store.MarkSeen(ctx, "https://example.com")
	if err != nil || !fresh {
		t.Errorf("nil store MarkSeen = (%v, %v), want (true, nil)", fresh, err)
	}
	if err := store.PushOverflow(ctx, []string{"x"}); err != nil {
		t.Errorf("nil store PushOverflow: %v", err)
	}
	if _, err := store.PopOverflow(ctx); !errors.Is(err, ErrEmpty) {
		t.Errorf("nil store PopOverflow = %v, want ErrEmpty", err)
	}
	if n, err := store.OverflowLen(ctx); err != nil || n != 0 {
		t.Errorf("nil store OverflowLen = (%d, %v), want (0, nil)", n, err)
	}
}
