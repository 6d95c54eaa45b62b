package domain

import (
	"strings"
	"time"
)

// SearchParams is the user-facing search intent. Its normalized form feeds
// the fingerprint, so field order never matters and incidental whitespace
// never produces a distinct cache entry.
type SearchParams struct {
	Place     string  `json:"place,omitempty"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	CheckIn   string  `json:"check_in"`
	CheckOut  string  `json:"check_out"`
	Adults    int     `json:"adults"`
	Children  int     `json:"children"`
	RadiusKM  float64 `json:"radius_km,omitempty"`
	Residency string  `json:"residency,omitempty"`
}

func (p SearchParams) Normalized() SearchParams {
	p.Place = strings.TrimSpace(p.Place)
	p.CheckIn = strings.TrimSpace(p.CheckIn)
	p.CheckOut = strings.TrimSpace(p.CheckOut)
	p.Residency = strings.ToUpper(strings.TrimSpace(p.Residency))
	if p.Adults <= 0 {
		p.Adults = 2
	}
	if p.Children < 0 {
		p.Children = 0
	}
	return p
}

// SearchQuery is what actually goes upstream: a geo point, a date window and
// an occupancy.
type SearchQuery struct {
	Point     GeoPoint
	CheckIn   string // YYYY-MM-DD
	CheckOut  string
	Adults    int
	Children  int
	Residency string
}

// RawHotel is one upstream search result, decoded as-is. The executor maps
// it into the canonical shape; the freshness cache stores it verbatim as the
// result snapshot.
type RawHotel struct {
	ID          string        `json:"id"`
	Name        string        `json:"hotelName"`
	Description string        `json:"description,omitempty"`
	Address     RawAddress    `json:"address"`
	Lat         float64       `json:"lat"`
	Lng         float64       `json:"lng"`
	Rating      float64       `json:"rating"`
	Reviews     []RawReview   `json:"reviews,omitempty"`
	Facilities  []RawFacility `json:"facilities,omitempty"`
	Image       string        `json:"image,omitempty"`
	Rate        *RawRate      `json:"rate,omitempty"`
}

type RawAddress struct {
	Line1      string   `json:"line1"`
	City       RawPlace `json:"city"`
	State      RawPlace `json:"state"`
	Country    RawPlace `json:"country"`
	PostalCode string   `json:"postalCode"`
}

type RawPlace struct {
	Name string `json:"name"`
}

type RawReview struct {
	Rating float64 `json:"rating"`
	Count  int     `json:"count"`
}

type RawFacility struct {
	Name string `json:"name"`
}

type RawRate struct {
	Currency      string  `json:"currency"`
	BaseRate      float64 `json:"baseRate"`
	TotalRate     float64 `json:"totalRate"`
	PublishedRate float64 `json:"publishedRate"`
	PerNightRate  float64 `json:"perNightRate"`
}

// SearchResult is what the request router returns. Source records where the
// hotels came from: "cache", "live" or "store" (degraded path).
type SearchResult struct {
	Source     string     `json:"source"`
	Count      int        `json:"count"`
	UpstreamMS int64      `json:"upstream_ms"`
	Hotels     []RawHotel `json:"hotels"`
}

// CacheEntry is one freshness-cache row. ExpiresAt and Fresh are the only
// fields mutated after creation: a get past expiry flips Fresh to false so
// diagnostics can tell "expired" from "never cached".
type CacheEntry struct {
	Fingerprint string
	Params      SearchParams
	Hotels      []RawHotel
	Count       int
	UpstreamMS  int64
	CreatedAt   time.Time
	ExpiresAt   time.Time
	Fresh       bool
}
