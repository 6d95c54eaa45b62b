package domain

import "time"

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Hotel is the canonical inventory record. ExternalID is the upstream
// identifier and the dedup key: one canonical record per external id.
// Optional upstream fields land here with their zero values already applied
// by the mapper, so nothing below is a pointer.
type Hotel struct {
	ExternalID  string  `json:"external_id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Address     string  `json:"address,omitempty"`
	City        string  `json:"city,omitempty"`
	Region      string  `json:"region,omitempty"`
	Country     string  `json:"country,omitempty"`
	PostalCode  string  `json:"postal_code,omitempty"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	StarRating  int     `json:"star_rating"`
	AvgRating   float64 `json:"avg_rating"`
	ReviewCount int     `json:"review_count"`
}

// Amenity categories assigned by keyword classification, independent of
// whatever taxonomy the upstream uses.
const (
	AmenityTechnology     = "technology"
	AmenityRecreation     = "recreation"
	AmenityDining         = "dining"
	AmenityTransportation = "transportation"
	AmenityBusiness       = "business"
	AmenityServices       = "services"
	AmenityPets           = "pets"
	AmenityAccessibility  = "accessibility"
	AmenityGeneral        = "general"
)

type Amenity struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

type Image struct {
	URL       string `json:"url"`
	Caption   string `json:"caption,omitempty"`
	IsPrimary bool   `json:"is_primary"`
	SortOrder int    `json:"sort_order"`
}

// Rate is the representative pricing snapshot for a hotel, one per hotel.
// Total/published/per-night fall back to the base rate when the upstream
// omits them.
type Rate struct {
	Currency      string  `json:"currency"`
	BaseRate      float64 `json:"base_rate"`
	TotalRate     float64 `json:"total_rate"`
	PublishedRate float64 `json:"published_rate"`
	PerNightRate  float64 `json:"per_night_rate"`
}

// StoredHotel is the store-resident view of a canonical record, children
// included. DistanceKM is populated only by geo radius reads.
type StoredHotel struct {
	ID int64 `json:"id"`
	Hotel
	Amenities  []Amenity `json:"amenities"`
	Images     []Image   `json:"images"`
	Rate       *Rate     `json:"rate,omitempty"`
	DistanceKM float64   `json:"distance_km,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
