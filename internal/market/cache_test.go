package market

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ajitpratap0/finadvisor/internal/portfolio"
)

func TestNewOutlookCache_NilClient(t *testing.T) {
	cache := NewOutlookCache(nil, 60*time.Second)
	if cache != nil {
		t.Error("Expected nil cache when client is nil")
	}

	// A nil cache is always a miss
	if _, found := cache.Get(context.Background()); found {
		t.Error("Expected cache miss on nil cache")
	}
	if err := cache.Set(context.Background(), portfolio.NeutralOutlook()); err == nil {
		t.Error("Expected error when setting on nil cache")
	}
}

func TestOutlookCache_GetSet(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cache := NewOutlookCache(client, 60*time.Second)
	ctx := context.Background()

	// Test cache miss
	if _, found := cache.Get(ctx); found {
		t.Error("Expected cache miss")
	}

	want := portfolio.MarketOutlook{Sentiment: portfolio.SentimentBullish, Watch: []string{"IT", "Banks"}}
	if err := cache.Set(ctx, want); err != nil {
		t.Fatalf("Failed to set cache: %v", err)
	}

	got, found := cache.Get(ctx)
	if !found {
		t.Fatal("Expected cache hit")
	}
	if got.Sentiment != want.Sentiment {
		t.Errorf("Expected sentiment %s, got %s", want.Sentiment, got.Sentiment)
	}
	if len(got.Watch) != 2 || got.Watch[0] != "IT" || got.Watch[1] != "Banks" {
		t.Errorf("Unexpected watch list: %v", got.Watch)
	}

	if !mr.Exists(OutlookKey) {
		t.Errorf("Expected key %s to exist", OutlookKey)
	}
}

func TestOutlookCache_Expiry(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cache := NewOutlookCache(client, 1*time.Second)
	ctx := context.Background()

	if err := cache.Set(ctx, portfolio.NeutralOutlook()); err != nil {
		t.Fatalf("Failed to set cache: %v", err)
	}

	mr.FastForward(2 * time.Second)

	if _, found := cache.Get(ctx); found {
		t.Error("Expected cache miss after expiration")
	}
}

func TestOutlookCache_CorruptEntry(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	cache := NewOutlookCache(client, time.Minute)

	if err := mr.Set(OutlookKey, "not json"); err != nil {
		t.Fatalf("Failed to seed key: %v", err)
	}

	if _, found := cache.Get(context.Background()); found {
		t.Error("Expected corrupt entry to be treated as a miss")
	}
}

func TestOutlookCache_DeleteAndHealth(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	cache := NewOutlookCache(client, time.Minute)
	ctx := context.Background()

	if err := cache.Health(ctx); err != nil {
		t.Errorf("Expected healthy cache, got %v", err)
	}

	_ = cache.Set(ctx, portfolio.NeutralOutlook())
	if err := cache.Delete(ctx); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if _, found := cache.Get(ctx); found {
		t.Error("Expected cache miss after delete")
	}

	mr.Close()
	if err := cache.Health(ctx); err == nil {
		t.Error("Expected health check to fail once redis is gone")
	}
}
