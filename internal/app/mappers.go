package app

import (
	"fmt"
	"strings"

	"staysync/internal/domain"
)

// Amenity keyword table, scanned top to bottom; the first matching keyword
// decides the category.
var amenityKeywords = []struct {
	category string
	words    []string
}{
	{domain.AmenityTechnology, []string{"wifi", "internet", "television", "tv", "cable", "satellite"}},
	{domain.AmenityRecreation, []string{"pool", "spa", "fitness", "gym", "sauna", "jacuzzi"}},
	{domain.AmenityDining, []string{"restaurant", "bar", "cafe", "dining", "breakfast", "food"}},
	{domain.AmenityTransportation, []string{"parking", "valet", "garage", "shuttle", "transport"}},
	{domain.AmenityBusiness, []string{"business", "meeting", "conference", "convention"}},
	{domain.AmenityServices, []string{"laundry", "dry", "cleaning", "housekeeping"}},
	{domain.AmenityPets, []string{"pet", "animal", "dog", "cat"}},
	{domain.AmenityAccessibility, []string{"accessibility", "wheelchair", "disabled", "ada"}},
}

// CategorizeAmenity assigns a coarse category by case-insensitive keyword
// match, independent of whatever taxonomy the upstream uses.
func CategorizeAmenity(name string) string {
	n := strings.ToLower(name)
	for _, row := range amenityKeywords {
		for _, w := range row.words {
			if strings.Contains(n, w) {
				return row.category
			}
		}
	}
	return domain.AmenityGeneral
}

// MappedHotel is one upstream record after typed mapping: the canonical
// hotel, its classified children and the representative rate (nil when the
// upstream carries no usable base rate).
type MappedHotel struct {
	Hotel     domain.Hotel
	Amenities []domain.Amenity
	Images    []domain.Image
	Rate      *domain.Rate
}

// MapRawHotel maps one upstream result into the canonical shape. Every
// optional field gets an explicit default; only a missing id or name makes
// the record invalid.
func MapRawHotel(raw domain.RawHotel) (MappedHotel, error) {
	id := strings.TrimSpace(raw.ID)
	if id == "" {
		return MappedHotel{}, fmt.Errorf("missing hotel id: %w", domain.ErrInvalidRecord)
	}
	name := strings.TrimSpace(raw.Name)
	if name == "" {
		return MappedHotel{}, fmt.Errorf("hotel %s: missing name: %w", id, domain.ErrInvalidRecord)
	}

	avg, reviews := aggregateReviews(raw.Reviews)
	h := domain.Hotel{
		ExternalID:  id,
		Name:        name,
		Description: strings.TrimSpace(raw.Description),
		Address:     strings.TrimSpace(raw.Address.Line1),
		City:        strings.TrimSpace(raw.Address.City.Name),
		Region:      strings.TrimSpace(raw.Address.State.Name),
		Country:     strings.TrimSpace(raw.Address.Country.Name),
		PostalCode:  strings.TrimSpace(raw.Address.PostalCode),
		Lat:         raw.Lat,
		Lng:         raw.Lng,
		StarRating:  int(raw.Rating),
		AvgRating:   avg,
		ReviewCount: reviews,
	}

	var amenities []domain.Amenity
	for _, f := range raw.Facilities {
		fname := strings.TrimSpace(f.Name)
		if fname == "" {
			continue
		}
		amenities = append(amenities, domain.Amenity{Name: fname, Category: CategorizeAmenity(fname)})
	}

	var images []domain.Image
	if u := strings.TrimSpace(raw.Image); u != "" {
		images = append(images, domain.Image{URL: u, Caption: name, IsPrimary: true})
	}

	return MappedHotel{Hotel: h, Amenities: amenities, Images: images, Rate: mapRate(raw.Rate)}, nil
}

// aggregateReviews folds the upstream's per-source review aggregates into a
// single weighted average and total count.
func aggregateReviews(rs []domain.RawReview) (float64, int) {
	var sum float64
	var count int
	for _, r := range rs {
		if r.Count <= 0 {
			continue
		}
		sum += r.Rating * float64(r.Count)
		count += r.Count
	}
	if count == 0 {
		return 0, 0
	}
	return sum / float64(count), count
}

// mapRate keeps only priced records: a missing or non-positive base rate
// means no representative rate. The other rate fields fall back to the base
// rate when the upstream omits them.
func mapRate(r *domain.RawRate) *domain.Rate {
	if r == nil || r.BaseRate <= 0 {
		return nil
	}
	out := domain.Rate{
		Currency:      strings.TrimSpace(r.Currency),
		BaseRate:      r.BaseRate,
		TotalRate:     r.TotalRate,
		PublishedRate: r.PublishedRate,
		PerNightRate:  r.PerNightRate,
	}
	if out.Currency == "" {
		out.Currency = "USD"
	}
	if out.TotalRate <= 0 {
		out.TotalRate = out.BaseRate
	}
	if out.PublishedRate <= 0 {
		out.PublishedRate = out.BaseRate
	}
	if out.PerNightRate <= 0 {
		out.PerNightRate = out.BaseRate
	}
	return &out
}

// mapStoredToRaw renders a store row in the upstream wire shape so degraded
// search responses look the same as live ones.
func mapStoredToRaw(h domain.StoredHotel) domain.RawHotel {
	raw := domain.RawHotel{
		ID:          h.ExternalID,
		Name:        h.Name,
		Description: h.Description,
		Address: domain.RawAddress{
			Line1:      h.Address,
			City:       domain.RawPlace{Name: h.City},
			State:      domain.RawPlace{Name: h.Region},
			Country:    domain.RawPlace{Name: h.Country},
			PostalCode: h.PostalCode,
		},
		Lat:    h.Lat,
		Lng:    h.Lng,
		Rating: float64(h.StarRating),
	}
	if h.ReviewCount > 0 {
		raw.Reviews = []domain.RawReview{{Rating: h.AvgRating, Count: h.ReviewCount}}
	}
	for _, a := range h.Amenities {
		raw.Facilities = append(raw.Facilities, domain.RawFacility{Name: a.Name})
	}
	for _, img := range h.Images {
		if img.IsPrimary || raw.Image == "" {
			raw.Image = img.URL
		}
	}
	if h.Rate != nil {
		raw.Rate = &domain.RawRate{
			Currency:      h.Rate.Currency,
			BaseRate:      h.Rate.BaseRate,
			TotalRate:     h.Rate.TotalRate,
			PublishedRate: h.Rate.PublishedRate,
			PerNightRate:  h.Rate.PerNightRate,
		}
	}
	return raw
}
