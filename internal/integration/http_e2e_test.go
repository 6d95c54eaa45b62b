//go:build integration || !unit

package integration

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	_ "github.com/go-sql-driver/mysql"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/rs/zerolog"

	httpserver "staysync/internal/adapters/http_server"
	redisad "staysync/internal/adapters/redis"
	"staysync/internal/adapters/roomstock"
	"staysync/internal/app"
	"staysync/internal/domain"
	"staysync/internal/scheduler"
	mysqlrepo "staysync/internal/storage/mysql"
)

func migrationsDir(t *testing.T) string {
	t.Helper()
	if dir := os.Getenv("MIGRATIONS_DIR"); dir != "" {
		return dir
	}
	return filepath.Join("..", "..", "migrations")
}

func applyMigrations(t *testing.T, db *sql.DB) {
	t.Helper()
	dir := migrationsDir(t)

	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read migrations dir %s: %v", dir, err)
	}
	var files []string
	for _, e := range ents {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		t.Fatalf("no .sql files in %s", dir)
	}
	sort.Strings(files)
	for _, f := range files {
		sqlBytes, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		if _, err := db.Exec(string(sqlBytes)); err != nil {
			t.Fatalf("exec %s: %v", f, err)
		}
	}
}

func startMySQL(t *testing.T) *sql.DB {
	t.Helper()
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("dockertest: %v", err)
	}
	runOpts := &dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0.36",
		Env: []string{
			"MYSQL_ROOT_PASSWORD=root",
			"MYSQL_DATABASE=staysync",
		},
	}
	resource, err := pool.RunWithOptions(runOpts, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("run mysql: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	hostPort := resource.GetPort("3306/tcp")
	dsn := fmt.Sprintf("root:root@tcp(127.0.0.1:%s)/staysync?parseTime=true&multiStatements=true&charset=utf8mb4,utf8&loc=UTC", hostPort)

	var db *sql.DB
	if err := pool.Retry(func() error {
		var e error
		db, e = sql.Open("mysql", dsn)
		if e != nil {
			return e
		}
		return db.Ping()
	}); err != nil {
		t.Fatalf("connect mysql: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	applyMigrations(t, db)
	return db
}

// fakeUpstream stands in for the availability API: one autosuggest place and
// a fixed two-hotel search answer.
func fakeUpstream(t *testing.T, searchCalls *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/places/autosuggest", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"places":[{"name":"Miami","lat":25.7617,"lng":-80.1918}]}`))
	})
	mux.HandleFunc("/hotels/search", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(searchCalls, 1)
		if r.Header.Get("X-API-Key") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"hotels":[
			{"id":"rs-1001","hotelName":"Harbor Grand",
			 "address":{"line1":"1 Bayfront Dr","city":{"name":"Miami"},"state":{"name":"FL"},"country":{"name":"US"},"postalCode":"33131"},
			 "lat":25.77,"lng":-80.19,"rating":4,
			 "reviews":[{"rating":8.6,"count":220}],
			 "facilities":[{"name":"Free WiFi"},{"name":"Outdoor Pool"},{"name":"Valet Parking"}],
			 "image":"https://img.example/rs-1001.jpg",
			 "rate":{"currency":"USD","baseRate":189,"totalRate":214,"publishedRate":239,"perNightRate":189}},
			{"id":"rs-1002","hotelName":"Palm Court",
			 "address":{"line1":"77 Ocean Ave","city":{"name":"Miami"},"state":{"name":"FL"},"country":{"name":"US"},"postalCode":"33139"},
			 "lat":25.78,"lng":-80.13,"rating":3}
		]}`))
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func TestHTTP_EndToEnd_RefreshSearchAndRead(t *testing.T) {
	db := startMySQL(t)
	mr := miniredis.RunT(t)

	var searchCalls int32
	upstream := fakeUpstream(t, &searchCalls)

	source, err := roomstock.New(upstream.URL, "test-key", 50, 5*time.Second)
	if err != nil {
		t.Fatalf("roomstock.New: %v", err)
	}

	repo := mysqlrepo.New(db)
	cache := redisad.New(mr.Addr(), "", 0)
	refresher := app.NewRefreshService(source, repo, 50, "US", zerolog.Nop())
	search := app.NewSearchService(source, repo, cache, 30*time.Minute, 100, "US", zerolog.Nop())

	tiers := domain.TierTable{Tiers: []domain.Tier{{
		ID:       "high",
		Interval: 30 * time.Minute,
		Partitions: []domain.Partition{
			{Name: "Miami", Region: "FL", Country: "US", Tier: "high"},
		},
	}}}
	sched := scheduler.New(refresher, 2, 5*time.Second, zerolog.Nop())
	sched.RegisterTable(tiers)

	srv := httpserver.New()
	srv.MountHandlers(&httpserver.Handlers{Search: search, Sched: sched, Store: repo, Tiers: tiers})
	ts := httptest.NewServer(srv.Mux())
	defer ts.Close()

	// 1. manual refresh pulls the partition through the whole pipeline
	res, err := http.Post(ts.URL+"/v1/scheduler/refresh/Miami?country=us", "application/json", nil)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	var run domain.RefreshResult
	if err := json.NewDecoder(res.Body).Decode(&run); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK || run.Status != domain.JobCompleted {
		t.Fatalf("trigger: status=%d run=%+v", res.StatusCode, run)
	}
	if run.Processed != 2 || run.Created != 2 || len(run.Errors) != 0 {
		t.Fatalf("run counters: %+v", run)
	}

	// 2. the canonical record is readable with mapped children
	res, err = http.Get(ts.URL + "/v1/hotels/rs-1001")
	if err != nil {
		t.Fatalf("get hotel: %v", err)
	}
	var stored domain.StoredHotel
	if err := json.NewDecoder(res.Body).Decode(&stored); err != nil {
		t.Fatalf("decode hotel: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get hotel status: %d", res.StatusCode)
	}
	if stored.Name != "Harbor Grand" || stored.City != "Miami" {
		t.Fatalf("stored hotel: %+v", stored.Hotel)
	}
	categories := map[string]string{}
	for _, a := range stored.Amenities {
		categories[a.Name] = a.Category
	}
	if categories["Free WiFi"] != "technology" || categories["Outdoor Pool"] != "recreation" || categories["Valet Parking"] != "transportation" {
		t.Fatalf("amenity categories: %v", categories)
	}
	if stored.Rate == nil || stored.Rate.BaseRate != 189 {
		t.Fatalf("rate: %+v", stored.Rate)
	}
	if len(stored.Images) != 1 || !stored.Images[0].IsPrimary || stored.Images[0].Caption != "Harbor Grand" {
		t.Fatalf("images: %+v", stored.Images)
	}

	// 3. search goes live once, then serves the cache
	searchBody := `{"place":"Miami","lat":25.7617,"lng":-80.1918,"check_in":"2026-10-01","check_out":"2026-10-02","adults":2,"residency":"US"}`
	before := atomic.LoadInt32(&searchCalls)

	var first domain.SearchResult
	postJSON(t, ts.URL+"/v1/search", searchBody, &first)
	if first.Source != "live" || first.Count != 2 {
		t.Fatalf("first search: %+v", first)
	}
	var second domain.SearchResult
	postJSON(t, ts.URL+"/v1/search", searchBody, &second)
	if second.Source != "cache" || second.Count != 2 {
		t.Fatalf("second search: %+v", second)
	}
	if got := atomic.LoadInt32(&searchCalls) - before; got != 1 {
		t.Fatalf("upstream search calls during cached window = %d", got)
	}

	// 4. stats aggregate both worlds
	res, err = http.Get(ts.URL + "/v1/scheduler/stats?hours=24")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	var stats struct {
		Scheduler domain.SchedulerStats `json:"scheduler"`
		Store     domain.StoreStats     `json:"store"`
	}
	if err := json.NewDecoder(res.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	res.Body.Close()
	if stats.Store.Hotels != 2 || stats.Scheduler.Succeeded != 1 {
		t.Fatalf("stats: %+v", stats)
	}

	// 5. unknown partitions 404
	res, err = http.Post(ts.URL+"/v1/scheduler/refresh/Atlantis", "application/json", nil)
	if err != nil {
		t.Fatalf("unknown trigger: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown partition status: %d", res.StatusCode)
	}
}

func postJSON(t *testing.T, url, body string, out any) {
	t.Helper()
	res, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("POST %s status: %d", url, res.StatusCode)
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}
