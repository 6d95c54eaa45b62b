package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"staysync/internal/app"
	"staysync/internal/domain"
)

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]domain.CacheEntry
	puts    int
	evicts  int
	dropAll bool // never retain entries; every get is a miss
}

func (c *fakeCache) Get(ctx context.Context, fp string) (domain.CacheEntry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[fp]
	if !ok || !e.Fresh {
		return domain.CacheEntry{}, false, nil
	}
	return e, true, nil
}

func (c *fakeCache) Put(ctx context.Context, fp string, params domain.SearchParams, hotels []domain.RawHotel, upstream time.Duration, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts++
	if c.dropAll {
		return nil
	}
	if c.entries == nil {
		c.entries = map[string]domain.CacheEntry{}
	}
	c.entries[fp] = domain.CacheEntry{
		Fingerprint: fp,
		Params:      params,
		Hotels:      hotels,
		Count:       len(hotels),
		UpstreamMS:  upstream.Milliseconds(),
		Fresh:       true,
	}
	return nil
}

func (c *fakeCache) Evict(ctx context.Context, maxEntries int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evicts++
	return 0, nil
}

func searchParams() domain.SearchParams {
	return domain.SearchParams{
		Place:     "Miami",
		Lat:       25.7617,
		Lng:       -80.1918,
		CheckIn:   "2026-10-01",
		CheckOut:  "2026-10-02",
		Adults:    2,
		Residency: "US",
	}
}

func TestSearchMissThenCacheHit(t *testing.T) {
	src := &fakeSource{hotels: []domain.RawHotel{rawResult("h-1", "Alpha"), rawResult("h-2", "Beta")}}
	cache := &fakeCache{}
	svc := app.NewSearchService(src, newFakeStore(), cache, time.Minute, 1000, "US", zerolog.Nop())
	ctx := context.Background()

	first, err := svc.Search(ctx, searchParams())
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if first.Source != "live" || first.Count != 2 {
		t.Fatalf("first = %+v", first)
	}
	if cache.puts != 1 || cache.evicts != 1 {
		t.Fatalf("cache writes: puts=%d evicts=%d", cache.puts, cache.evicts)
	}

	second, err := svc.Search(ctx, searchParams())
	if err != nil {
		t.Fatalf("search (cached): %v", err)
	}
	if second.Source != "cache" || second.Count != 2 {
		t.Fatalf("second = %+v", second)
	}
	if src.calls() != 1 {
		t.Fatalf("upstream called %d times, want 1", src.calls())
	}
}

func TestSearchEquivalentParamsShareEntry(t *testing.T) {
	src := &fakeSource{hotels: []domain.RawHotel{rawResult("h-1", "Alpha")}}
	cache := &fakeCache{}
	svc := app.NewSearchService(src, newFakeStore(), cache, time.Minute, 1000, "US", zerolog.Nop())
	ctx := context.Background()

	if _, err := svc.Search(ctx, searchParams()); err != nil {
		t.Fatalf("search: %v", err)
	}

	// same intent, noisier spelling: must hit the same entry
	p := searchParams()
	p.Place = "  Miami "
	p.Residency = "us"
	res, err := svc.Search(ctx, p)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.Source != "cache" {
		t.Fatalf("source = %q, want cache", res.Source)
	}
	if src.calls() != 1 {
		t.Fatalf("upstream called %d times, want 1", src.calls())
	}
}

func TestSearchCollapsesConcurrentMisses(t *testing.T) {
	src := &fakeSource{
		hotels:      []domain.RawHotel{rawResult("h-1", "Alpha")},
		searchDelay: 100 * time.Millisecond,
	}
	cache := &fakeCache{dropAll: true}
	svc := app.NewSearchService(src, newFakeStore(), cache, time.Minute, 1000, "US", zerolog.Nop())

	const n = 8
	var wg sync.WaitGroup
	start := make(chan struct{})
	results := make([]domain.SearchResult, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = svc.Search(context.Background(), searchParams())
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("goroutine %d: %v", i, errs[i])
		}
		if results[i].Count != 1 || results[i].Source != "live" {
			t.Fatalf("goroutine %d result: %+v", i, results[i])
		}
	}
	if src.calls() != 1 {
		t.Fatalf("upstream called %d times, want 1 for identical concurrent misses", src.calls())
	}
}

func TestSearchUpstreamDownServesStore(t *testing.T) {
	src := &fakeSource{searchErr: errors.New("connect: refused")}
	store := newFakeStore()
	store.nearby = []domain.StoredHotel{
		{ID: 1, Hotel: domain.Hotel{ExternalID: "h-1", Name: "Alpha", Lat: 25.76, Lng: -80.19}, DistanceKM: 0.4},
		{ID: 2, Hotel: domain.Hotel{ExternalID: "h-2", Name: "Beta", Lat: 25.77, Lng: -80.18}, DistanceKM: 1.9},
	}
	svc := app.NewSearchService(src, store, &fakeCache{}, time.Minute, 1000, "US", zerolog.Nop())

	res, err := svc.Search(context.Background(), searchParams())
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.Source != "store" || res.Count != 2 {
		t.Fatalf("res = %+v", res)
	}
	if res.Hotels[0].ID != "h-1" || res.Hotels[0].Name != "Alpha" {
		t.Fatalf("stored hotel not rendered in wire shape: %+v", res.Hotels[0])
	}
}

func TestSearchUpstreamDownWithoutLocation(t *testing.T) {
	src := &fakeSource{searchErr: errors.New("connect: refused")}
	svc := app.NewSearchService(src, newFakeStore(), &fakeCache{}, time.Minute, 1000, "US", zerolog.Nop())

	p := domain.SearchParams{Place: "Miami", CheckIn: "2026-10-01", CheckOut: "2026-10-02"}
	if _, err := svc.Search(context.Background(), p); err == nil {
		t.Fatal("expected the upstream error to surface without a fallback location")
	}
}
