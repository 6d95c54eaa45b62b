package domain

import (
	"context"
	"time"
)

// InventorySource is the upstream availability API. Search applies its own
// rate limiting client-side; geocode absence is (zero, false, nil), not an
// error.
type InventorySource interface {
	Search(ctx context.Context, q SearchQuery) ([]RawHotel, error)
	Geocode(ctx context.Context, text string) (GeoPoint, bool, error)
}

// InventoryStore is the canonical entity store. UpsertHotel is atomic per
// hotel: a failure leaves no partial amenity/image set behind. Upserting an
// existing external id replaces the children wholesale; the bool reports
// whether the hotel was created rather than updated.
type InventoryStore interface {
	UpsertHotel(ctx context.Context, h Hotel, amenities []Amenity, images []Image) (StoredHotel, bool, error)
	UpsertRate(ctx context.Context, externalID string, r Rate) error
	GetByExternalID(ctx context.Context, externalID string) (StoredHotel, error)
	SearchByGeoRadius(ctx context.Context, pt GeoPoint, radiusKM float64, limit int) ([]StoredHotel, error)
	Stats(ctx context.Context, since time.Time) (StoreStats, error)
}

// SearchCache is the request-level freshness cache, keyed by fingerprint.
// Get returns ok only while the entry is fresh and unexpired; an expired hit
// is a miss that also flips the stored freshness flag. Evict enforces the
// entry cap by deleting oldest-created-first.
type SearchCache interface {
	Get(ctx context.Context, fingerprint string) (CacheEntry, bool, error)
	Put(ctx context.Context, fingerprint string, params SearchParams, hotels []RawHotel, upstream time.Duration, ttl time.Duration) error
	Evict(ctx context.Context, maxEntries int) (int, error)
}

type StoreStats struct {
	Hotels       int64 `json:"hotels"`
	Amenities    int64 `json:"amenities"`
	Images       int64 `json:"images"`
	Rates        int64 `json:"rates"`
	UpdatedSince int64 `json:"updated_since"`
}
