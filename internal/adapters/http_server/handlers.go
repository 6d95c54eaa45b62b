package httpserver

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"staysync/internal/domain"
)

// SearchAPI is the slice of the request router the HTTP surface needs.
type SearchAPI interface {
	Search(ctx context.Context, params domain.SearchParams) (domain.SearchResult, error)
	Nearby(ctx context.Context, pt domain.GeoPoint, radiusKM float64, limit int) ([]domain.StoredHotel, error)
	HotelByExternalID(ctx context.Context, externalID string) (domain.StoredHotel, error)
}

// SchedulerAPI is the management view of the refresh scheduler.
type SchedulerAPI interface {
	Health() domain.SchedulerHealth
	Jobs() []domain.JobSnapshot
	Stats() domain.SchedulerStats
	Schedule() domain.TierTable
	TriggerNow(ctx context.Context, jobID string) (domain.RefreshResult, error)
}

type Handlers struct {
	Search SearchAPI
	Sched  SchedulerAPI
	Store  domain.InventoryStore
	Tiers  domain.TierTable
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", h.healthz)
	s.mux.Post("/v1/search", h.search)
	s.mux.Get("/v1/hotels", h.nearby)
	s.mux.Get("/v1/hotels/{externalID}", h.getHotel)
	s.mux.Get("/v1/scheduler/health", h.schedulerHealth)
	s.mux.Get("/v1/scheduler/jobs", h.schedulerJobs)
	s.mux.Get("/v1/scheduler/stats", h.schedulerStats)
	s.mux.Get("/v1/scheduler/schedule", h.schedulerSchedule)
	s.mux.Post("/v1/scheduler/refresh/{partition}", h.triggerRefresh)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

// writeCacheable answers conditional GETs: matching If-None-Match turns the
// response into a 304.
func writeCacheable(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write response body")
	}
}

func (h *Handlers) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"scheduler_running": h.Sched.Health().Running,
	})
}

func (h *Handlers) search(w http.ResponseWriter, r *http.Request) {
	var params domain.SearchParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", "request body must be a JSON search")
		return
	}
	if params.Place == "" && params.Lat == 0 && params.Lng == 0 {
		writeProblem(w, http.StatusBadRequest, "Invalid Search", "either place or lat/lng is required")
		return
	}

	out, err := h.Search.Search(r.Context(), params)
	if err != nil {
		writeProblem(w, http.StatusBadGateway, "Upstream Unavailable", "availability search failed")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) nearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(q.Get("lng"), 64)
	if errLat != nil || errLng != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Coordinates", "lat and lng must be numbers")
		return
	}

	radius := 25.0
	if rs := q.Get("radius_km"); rs != "" {
		v, err := strconv.ParseFloat(rs, 64)
		if err != nil || v <= 0 || v > 500 {
			writeProblem(w, http.StatusBadRequest, "Invalid radius", "radius_km must be between 0 and 500")
			return
		}
		radius = v
	}
	limit := 50
	if ls := q.Get("limit"); ls != "" {
		l, err := strconv.Atoi(ls)
		if err != nil || l <= 0 || l > 200 {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer between 1 and 200")
			return
		}
		limit = l
	}

	hotels, err := h.Search.Nearby(r.Context(), domain.GeoPoint{Lat: lat, Lng: lng}, radius, limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Store Unavailable", "inventory read failed")
		return
	}
	writeCacheable(w, r, map[string]any{"count": len(hotels), "hotels": hotels})
}

func (h *Handlers) getHotel(w http.ResponseWriter, r *http.Request) {
	externalID := chi.URLParam(r, "externalID")
	hotel, err := h.Search.HotelByExternalID(r.Context(), externalID)
	if errors.Is(err, domain.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Not Found", "hotel not found")
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Store Unavailable", "inventory read failed")
		return
	}
	writeCacheable(w, r, hotel)
}

func (h *Handlers) schedulerHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Sched.Health())
}

func (h *Handlers) schedulerJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"jobs": h.Sched.Jobs()})
}

func (h *Handlers) schedulerStats(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if hs := r.URL.Query().Get("hours"); hs != "" {
		v, err := strconv.Atoi(hs)
		if err != nil || v <= 0 || v > 720 {
			writeProblem(w, http.StatusBadRequest, "Invalid hours", "hours must be an integer between 1 and 720")
			return
		}
		hours = v
	}

	store, err := h.Store.Stats(r.Context(), time.Now().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Store Unavailable", "store stats read failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scheduler":    h.Sched.Stats(),
		"store":        store,
		"window_hours": hours,
	})
}

func (h *Handlers) schedulerSchedule(w http.ResponseWriter, r *http.Request) {
	table := h.Sched.Schedule()
	type tierView struct {
		ID              string             `json:"id"`
		IntervalMinutes int                `json:"interval_minutes"`
		Partitions      []domain.Partition `json:"partitions"`
	}
	out := make([]tierView, 0, len(table.Tiers))
	for _, t := range table.Tiers {
		out = append(out, tierView{
			ID:              t.ID,
			IntervalMinutes: int(t.Interval / time.Minute),
			Partitions:      t.Partitions,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tiers": out})
}

func (h *Handlers) triggerRefresh(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "partition")
	q := r.URL.Query()

	p, _, ok := h.Tiers.Find(name, q.Get("region"), q.Get("country"))
	if !ok {
		writeProblem(w, http.StatusNotFound, "Unknown Partition", "no configured partition matches "+name)
		return
	}

	res, err := h.Sched.TriggerNow(r.Context(), p.JobID())
	switch {
	case errors.Is(err, domain.ErrUnknownPartition):
		writeProblem(w, http.StatusNotFound, "Unknown Partition", "partition is not registered")
		return
	case errors.Is(err, domain.ErrAlreadyRunning):
		writeProblem(w, http.StatusConflict, "Refresh In Flight", "a refresh for this partition is already running")
		return
	case err != nil:
		writeProblem(w, http.StatusInternalServerError, "Trigger Failed", "manual refresh could not start")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
