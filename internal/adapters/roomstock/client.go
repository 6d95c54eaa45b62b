// internal/adapters/roomstock/client.go
package roomstock

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"staysync/internal/adapters/observability"
	"staysync/internal/domain"
)

type Client struct {
	base string
	hc   *http.Client
	key  string
	rl   *rate.Limiter
	cb   *gobreaker.CircuitBreaker
}

func New(base, key string, rps int, timeout time.Duration) (*Client, error) {
	if key == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if rps <= 0 {
		rps = 4
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "roomstock-api",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("upstream breaker state change")
		},
	})
	return &Client{
		base: base,
		hc:   &http.Client{Timeout: timeout},
		key:  key,
		rl:   rate.NewLimiter(rate.Limit(rps), rps),
		cb:   cb,
	}, nil
}

// ---- Public API ----

type occupancy struct {
	Adults    int   `json:"adults"`
	Children  int   `json:"childs"`
	ChildAges []int `json:"childages"`
}

type sortKey struct {
	Key   string `json:"key"`
	Order string `json:"order"`
}

type searchRequest struct {
	Lat       float64     `json:"lat"`
	Lng       float64     `json:"lng"`
	CheckIn   string      `json:"checkinDate"`
	CheckOut  string      `json:"checkoutDate"`
	Occupancy []occupancy `json:"occupancy"`
	Residency string      `json:"countryOfResidence,omitempty"`
	Sort      []sortKey   `json:"sort,omitempty"`
}

type searchResponse struct {
	Hotels []domain.RawHotel `json:"hotels"`
}

func (c *Client) Search(ctx context.Context, q domain.SearchQuery) ([]domain.RawHotel, error) {
	body := searchRequest{
		Lat:      q.Point.Lat,
		Lng:      q.Point.Lng,
		CheckIn:  q.CheckIn,
		CheckOut: q.CheckOut,
		Occupancy: []occupancy{
			{Adults: q.Adults, Children: q.Children, ChildAges: []int{}},
		},
		Residency: q.Residency,
		Sort:      []sortKey{{Key: "price", Order: "asc"}},
	}
	var out searchResponse
	if err := c.call(ctx, http.MethodPost, c.base+"/hotels/search", "search", body, &out); err != nil {
		return nil, err
	}
	return out.Hotels, nil
}

func (c *Client) Geocode(ctx context.Context, text string) (domain.GeoPoint, bool, error) {
	u := fmt.Sprintf("%s/places/autosuggest?query=%s", c.base, url.QueryEscape(text))
	var out struct {
		Places []struct {
			Name string  `json:"name"`
			Lat  float64 `json:"lat"`
			Lng  float64 `json:"lng"`
		} `json:"places"`
	}
	err := c.call(ctx, http.MethodGet, u, "autosuggest", nil, &out)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return domain.GeoPoint{}, false, nil
	case err != nil:
		return domain.GeoPoint{}, false, err
	}
	for _, p := range out.Places {
		if p.Lat != 0 || p.Lng != 0 {
			return domain.GeoPoint{Lat: p.Lat, Lng: p.Lng}, true, nil
		}
	}
	return domain.GeoPoint{}, false, nil
}

// ---- Internals ----

// notFoundResult smuggles a 404 through the breaker as a success: absence is
// a data answer, not an upstream failure.
type notFoundResult struct{ err error }

func (c *Client) call(ctx context.Context, method, u, endpoint string, body, out any) error {
	res, err := c.cb.Execute(func() (any, error) {
		err := c.do(ctx, method, u, endpoint, body, out)
		if errors.Is(err, domain.ErrNotFound) {
			return &notFoundResult{err: err}, nil
		}
		return nil, err
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("roomstock: %s: breaker open: %w", endpoint, domain.ErrUnavailable)
		}
		return err
	}
	if nf, ok := res.(*notFoundResult); ok {
		return nf.err
	}
	return nil
}

// do performs one call with client-side rate limiting, retries, and JSON
// decode into out. Retries on 429 and transient 5xx, honoring Retry-After
// when provided.
func (c *Client) do(ctx context.Context, method, u, endpoint string, body, out any) error {
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}

	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = b
	}

	var lastErr error
	for i := 0; i < 4; i++ {
		// build a fresh request each attempt
		var rd io.Reader
		if payload != nil {
			rd = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, rd)
		if err != nil {
			return err
		}
		req.Header.Set("X-API-Key", c.key)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "staysync/1.0")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			observability.ObserveExternal("roomstock", endpoint, 0, time.Since(start))
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			if i < 3 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("roomstock: %s: %v: %w", endpoint, lastErr, domain.ErrUnavailable)
		}
		observability.ObserveExternal("roomstock", endpoint, resp.StatusCode, time.Since(start))

		switch resp.StatusCode {
		case http.StatusOK, http.StatusCreated, http.StatusAccepted:
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			return err

		case http.StatusNoContent:
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil

		case http.StatusNotFound:
			resp.Body.Close()
			return fmt.Errorf("roomstock: %s: %w", endpoint, domain.ErrNotFound)

		case http.StatusUnauthorized:
			resp.Body.Close()
			return fmt.Errorf("roomstock: %s: %w", endpoint, domain.ErrUnauthorized)

		case http.StatusForbidden:
			resp.Body.Close()
			return fmt.Errorf("roomstock: %s: %w", endpoint, domain.ErrForbidden)

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			// Prefer server-provided Retry-After; otherwise exponential backoff.
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("remote %d", resp.StatusCode)
			if i < 3 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("roomstock: %s: %v: %w", endpoint, lastErr, domain.ErrUnavailable)

		default:
			// read a small error body for diagnostics
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return fmt.Errorf("roomstock: %s: bad status %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}

	return fmt.Errorf("roomstock: %s: %v: %w", endpoint, lastErr, domain.ErrUnavailable)
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After header (seconds or HTTP-date). Returns 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	// seconds form
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	// HTTP-date form
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff returns an exponential backoff delay with concurrency-safe jitter.
// i = retry attempt (0,1,2,...). Base doubles each attempt (200ms, 400ms, 800ms...),
// with up to +50% random jitter to avoid thundering herds.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0                  // 0..1
	j := time.Duration(0.5 * f * float64(base)) // up to +50%
	return base + j
}
