package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"staysync/internal/domain"
	"staysync/internal/fingerprint"
)

// SearchService routes search intents: freshness cache first, then one
// upstream call per fingerprint (concurrent identical misses are collapsed),
// then the store as a degraded fallback when the upstream is down.
type SearchService struct {
	source     domain.InventorySource
	store      domain.InventoryStore
	cache      domain.SearchCache
	ttl        time.Duration
	maxEntries int
	residency  string
	sf         singleflight.Group
	log        zerolog.Logger
}

func NewSearchService(source domain.InventorySource, store domain.InventoryStore, cache domain.SearchCache, ttl time.Duration, maxEntries int, residency string, log zerolog.Logger) *SearchService {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if residency == "" {
		residency = "US"
	}
	return &SearchService{
		source:     source,
		store:      store,
		cache:      cache,
		ttl:        ttl,
		maxEntries: maxEntries,
		residency:  residency,
		log:        log,
	}
}

func (s *SearchService) Search(ctx context.Context, params domain.SearchParams) (domain.SearchResult, error) {
	p := params.Normalized()
	fp, err := fingerprint.Compute(p)
	if err != nil {
		return domain.SearchResult{}, err
	}

	entry, ok, err := s.cache.Get(ctx, fp)
	if err != nil {
		s.log.Warn().Err(err).Str("fingerprint", fp).Msg("cache get failed")
	}
	if ok {
		return domain.SearchResult{
			Source:     "cache",
			Count:      entry.Count,
			UpstreamMS: entry.UpstreamMS,
			Hotels:     entry.Hotels,
		}, nil
	}

	v, err, _ := s.sf.Do(fp, func() (any, error) {
		start := time.Now()
		hotels, err := s.source.Search(ctx, s.queryFrom(p))
		if err != nil {
			return nil, err
		}
		upstream := time.Since(start)

		if err := s.cache.Put(ctx, fp, p, hotels, upstream, s.ttl); err != nil {
			s.log.Warn().Err(err).Str("fingerprint", fp).Msg("cache put failed")
		}
		if deleted, err := s.cache.Evict(ctx, s.maxEntries); err != nil {
			s.log.Warn().Err(err).Msg("cache evict failed")
		} else if deleted > 0 {
			s.log.Debug().Int("deleted", deleted).Msg("cache evicted oldest entries")
		}

		return domain.SearchResult{
			Source:     "live",
			Count:      len(hotels),
			UpstreamMS: upstream.Milliseconds(),
			Hotels:     hotels,
		}, nil
	})
	if err != nil {
		if out, ok := s.storeFallback(ctx, p); ok {
			s.log.Warn().Err(err).Msg("upstream down, serving stored inventory")
			return out, nil
		}
		return domain.SearchResult{}, err
	}
	return v.(domain.SearchResult), nil
}

// Nearby reads the canonical store directly, no cache involved.
func (s *SearchService) Nearby(ctx context.Context, pt domain.GeoPoint, radiusKM float64, limit int) ([]domain.StoredHotel, error) {
	return s.store.SearchByGeoRadius(ctx, pt, radiusKM, limit)
}

func (s *SearchService) HotelByExternalID(ctx context.Context, externalID string) (domain.StoredHotel, error) {
	return s.store.GetByExternalID(ctx, externalID)
}

// queryFrom fills the itinerary defaults a bare params set omits: the same
// fixed future window the refresh executor uses, and the configured
// residency.
func (s *SearchService) queryFrom(p domain.SearchParams) domain.SearchQuery {
	q := domain.SearchQuery{
		Point:     domain.GeoPoint{Lat: p.Lat, Lng: p.Lng},
		CheckIn:   p.CheckIn,
		CheckOut:  p.CheckOut,
		Adults:    p.Adults,
		Children:  p.Children,
		Residency: p.Residency,
	}
	if q.CheckIn == "" {
		in := time.Now().AddDate(0, 0, searchLeadDays)
		q.CheckIn = in.Format("2006-01-02")
		q.CheckOut = in.AddDate(0, 0, stayNights).Format("2006-01-02")
	}
	if q.Residency == "" {
		q.Residency = s.residency
	}
	return q
}

// storeFallback serves stale inventory from the store when the params carry
// a location to search around.
func (s *SearchService) storeFallback(ctx context.Context, p domain.SearchParams) (domain.SearchResult, bool) {
	if p.Lat == 0 && p.Lng == 0 {
		return domain.SearchResult{}, false
	}
	stored, err := s.store.SearchByGeoRadius(ctx, domain.GeoPoint{Lat: p.Lat, Lng: p.Lng}, p.RadiusKM, 0)
	if err != nil || len(stored) == 0 {
		return domain.SearchResult{}, false
	}
	hotels := make([]domain.RawHotel, 0, len(stored))
	for _, h := range stored {
		hotels = append(hotels, mapStoredToRaw(h))
	}
	return domain.SearchResult{Source: "store", Count: len(hotels), Hotels: hotels}, true
}
