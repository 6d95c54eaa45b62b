package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"staysync/internal/adapters/observability"
	"staysync/internal/domain"
)

const (
	// Refresh is about catalog freshness, not a real itinerary: a fixed
	// future window and a generic occupancy.
	searchLeadDays = 30
	stayNights     = 1
	defaultAdults  = 2
)

// RefreshService runs one full refresh cycle for a partition: resolve
// coordinates, fetch availability, map, upsert in batches. It never returns
// a Go error; everything lands in the result snapshot.
type RefreshService struct {
	source    domain.InventorySource
	store     domain.InventoryStore
	batchSize int
	residency string
	log       zerolog.Logger
}

func NewRefreshService(source domain.InventorySource, store domain.InventoryStore, batchSize int, residency string, log zerolog.Logger) *RefreshService {
	if batchSize <= 0 {
		batchSize = 50
	}
	if residency == "" {
		residency = "US"
	}
	return &RefreshService{source: source, store: store, batchSize: batchSize, residency: residency, log: log}
}

func (s *RefreshService) Refresh(ctx context.Context, p domain.Partition) (res domain.RefreshResult) {
	started := time.Now()
	res = domain.RefreshResult{
		JobID:     p.JobID(),
		RunID:     uuid.NewString(),
		Partition: p,
		StartedAt: started,
		Status:    domain.JobCompleted,
	}
	log := s.log.With().Str("job_id", res.JobID).Str("run_id", res.RunID).Logger()

	defer func() {
		if r := recover(); r != nil {
			res.Status = domain.JobError
			res.Message = fmt.Sprintf("panic: %v", r)
			res.Errors = append(res.Errors, res.Message)
			log.Error().Interface("panic", r).Msg("refresh panicked")
		}
		res.Duration = time.Since(started)
		observability.ObserveRefresh(p.Name, res.Status, res.Duration)
	}()

	pt := s.resolveCoords(ctx, p, log)

	checkIn := started.AddDate(0, 0, searchLeadDays)
	hotels, err := s.source.Search(ctx, domain.SearchQuery{
		Point:     pt,
		CheckIn:   checkIn.Format("2006-01-02"),
		CheckOut:  checkIn.AddDate(0, 0, stayNights).Format("2006-01-02"),
		Adults:    defaultAdults,
		Residency: s.residency,
	})
	if err != nil {
		res.Status = domain.JobError
		res.Message = err.Error()
		res.Errors = append(res.Errors, err.Error())
		log.Error().Err(err).Msg("upstream search failed")
		return res
	}
	if len(hotels) == 0 {
		res.Message = "no hotels found"
		log.Warn().Str("partition", p.Label()).Msg("no hotels found")
		return res
	}

	for start := 0; start < len(hotels); start += s.batchSize {
		s.processBatch(ctx, hotels[start:min(start+s.batchSize, len(hotels))], &res, log)
	}

	log.Info().
		Int("processed", res.Processed).
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("errors", len(res.Errors)).
		Dur("duration", time.Since(started)).
		Msg("refresh completed")
	return res
}

// resolveCoords is an explicit check-then-fallback chain: autosuggest, the
// known-city table, the partition's configured coordinates, then (0,0) with
// a warning. No failure escapes this step.
func (s *RefreshService) resolveCoords(ctx context.Context, p domain.Partition, log zerolog.Logger) domain.GeoPoint {
	pt, ok, err := s.source.Geocode(ctx, p.Label())
	if err != nil {
		log.Warn().Err(err).Msg("geocode failed, falling back")
	}
	if ok && err == nil {
		return pt
	}
	if pt, found := lookupKnownCoords(p.Name); found {
		return pt
	}
	if p.Lat != 0 || p.Lng != 0 {
		return domain.GeoPoint{Lat: p.Lat, Lng: p.Lng}
	}
	log.Warn().Str("partition", p.Label()).Msg("could not resolve coordinates, using (0,0)")
	return domain.GeoPoint{}
}

// processBatch maps and upserts one batch. A single record's failure is
// recorded and skipped; the batch continues. Failed records still count as
// processed.
func (s *RefreshService) processBatch(ctx context.Context, batch []domain.RawHotel, res *domain.RefreshResult, log zerolog.Logger) {
	for _, raw := range batch {
		res.Processed++

		m, err := MapRawHotel(raw)
		if err != nil {
			res.Errors = append(res.Errors, err.Error())
			observability.ObserveRecords(0, 0, 1)
			log.Warn().Err(err).Str("external_id", raw.ID).Msg("skipping record")
			continue
		}

		_, created, err := s.store.UpsertHotel(ctx, m.Hotel, m.Amenities, m.Images)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("hotel %s: %v", m.Hotel.ExternalID, err))
			observability.ObserveRecords(0, 0, 1)
			log.Warn().Err(err).Str("external_id", m.Hotel.ExternalID).Msg("upsert failed")
			continue
		}
		if created {
			res.Created++
			observability.ObserveRecords(1, 0, 0)
		} else {
			res.Updated++
			observability.ObserveRecords(0, 1, 0)
		}
		res.Amenities += len(m.Amenities)
		res.Images += len(m.Images)

		if m.Rate != nil {
			if err := s.store.UpsertRate(ctx, m.Hotel.ExternalID, *m.Rate); err != nil {
				log.Warn().Err(err).Str("external_id", m.Hotel.ExternalID).Msg("rate upsert failed")
			} else {
				res.Rates++
			}
		}
	}
}
