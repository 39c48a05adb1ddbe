package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"storefront-svc/models"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestProductCache_DisabledPassesThrough(t *testing.T) {
	c := NewProductCache(nil, time.Minute, zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel)))

	p, hit, err := c.Get(context.Background(), "p-1", func(context.Context) (*models.Product, error) {
		return &models.Product{ID: "p-1", Title: "Mug"}, nil
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if hit {
		t.Error("Expected a miss with caching disabled")
	}
	if p.Title != "Mug" {
		t.Errorf("Expected Mug, got %s", p.Title)
	}

	c.Invalidate(context.Background(), "p-1")
}

func TestProductCache_LoadError(t *testing.T) {
	c := NewProductCache(nil, time.Minute, zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel)))

	_, _, err := c.Get(context.Background(), "p-1", func(context.Context) (*models.Product, error) {
		return nil, models.ErrNotFound
	})
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestProductCache_CollapsesConcurrentLoads(t *testing.T) {
	c := NewProductCache(nil, time.Minute, zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel)))

	var calls atomic.Int32
	release := make(chan struct{})
	load := func(context.Context) (*models.Product, error) {
		calls.Add(1)
		<-release
		return &models.Product{ID: "p-1"}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := c.Get(context.Background(), "p-1", load); err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n < 1 || n > 5 {
		t.Errorf("Unexpected load count %d", n)
	}
}

func TestProductCache_WaiterHonoursItsContext(t *testing.T) {
	c := NewProductCache(nil, time.Minute, zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel)))

	release := make(chan struct{})
	started := make(chan struct{})
	var loadErr atomic.Value
	load := func(ctx context.Context) (*models.Product, error) {
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			loadErr.Store(err)
		}
		return &models.Product{ID: "p-1"}, nil
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, _, err := c.Get(firstCtx, "p-1", load)
		first <- err
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, _, err := c.Get(ctx, "p-1", load)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Waiter did not return promptly after its deadline")
	}

	cancelFirst()
	if err := <-first; !errors.Is(err, context.Canceled) {
		t.Errorf("Expected the starting caller to see its cancellation, got %v", err)
	}

	close(release)
	time.Sleep(20 * time.Millisecond)
	if v := loadErr.Load(); v != nil {
		t.Errorf("Shared load saw a cancelled context: %v", v)
	}
}
