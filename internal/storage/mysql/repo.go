package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	gomysql "github.com/go-sql-driver/mysql"

	"staysync/internal/domain"
)

const (
	dupKeyErr = 1062

	representativeRateKey = "representative"
)

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
func nullInt(i int) any {
	if i == 0 {
		return nil
	}
	return i
}
func nullF64(f float64) any {
	if f == 0 {
		return nil
	}
	return f
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

// UpsertHotel writes the hotel and replaces its amenity and image sets in one
// transaction. The existence check comes first; an insert that still hits a
// duplicate key lost a race to a concurrent writer, so it re-reads the row
// (locking read) and updates instead.
func (r *Repo) UpsertHotel(ctx context.Context, h domain.Hotel, amenities []domain.Amenity, images []domain.Image) (domain.StoredHotel, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.StoredHotel{}, false, err
	}
	defer tx.Rollback()

	id, created, err := writeHotel(ctx, tx, h)
	if err != nil {
		return domain.StoredHotel{}, false, err
	}
	if err := replaceChildren(ctx, tx, id, amenities, images); err != nil {
		return domain.StoredHotel{}, false, err
	}

	out := domain.StoredHotel{ID: id, Hotel: h, Amenities: amenities, Images: images}
	if err := tx.QueryRowContext(ctx, selectHotelTimesSQL, id).Scan(&out.CreatedAt, &out.UpdatedAt); err != nil {
		return domain.StoredHotel{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return domain.StoredHotel{}, false, err
	}
	return out, created, nil
}

func writeHotel(ctx context.Context, tx *sql.Tx, h domain.Hotel) (int64, bool, error) {
	var id int64
	err := tx.QueryRowContext(ctx, selectHotelIDSQL, h.ExternalID).Scan(&id)
	switch {
	case err == nil:
		_, err = tx.ExecContext(ctx, updateHotelSQL, append(hotelArgs(h), id)...)
		return id, false, err

	case errors.Is(err, sql.ErrNoRows):
		res, ierr := tx.ExecContext(ctx, insertHotelSQL, append([]any{h.ExternalID}, hotelArgs(h)...)...)
		if ierr == nil {
			id, err = res.LastInsertId()
			return id, true, err
		}
		var me *gomysql.MySQLError
		if !errors.As(ierr, &me) || me.Number != dupKeyErr {
			return 0, false, ierr
		}
		// lost the insert race: the row exists now, update it
		if err := tx.QueryRowContext(ctx, selectHotelIDForUpdateSQL, h.ExternalID).Scan(&id); err != nil {
			return 0, false, err
		}
		_, err = tx.ExecContext(ctx, updateHotelSQL, append(hotelArgs(h), id)...)
		return id, false, err

	default:
		return 0, false, err
	}
}

// hotelArgs is the mutable column list shared by insert and update, in SQL
// order: name .. review_count.
func hotelArgs(h domain.Hotel) []any {
	return []any{
		h.Name,
		nullStr(h.Description),
		nullStr(h.Address),
		nullStr(h.City),
		nullStr(h.Region),
		nullStr(h.Country),
		nullStr(h.PostalCode),
		h.Lat,
		h.Lng,
		nullInt(h.StarRating),
		nullF64(h.AvgRating),
		h.ReviewCount,
	}
}

func replaceChildren(ctx context.Context, q querier, hotelID int64, amenities []domain.Amenity, images []domain.Image) error {
	if _, err := q.ExecContext(ctx, deleteAmenitiesSQL, hotelID); err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, deleteImagesSQL, hotelID); err != nil {
		return err
	}
	if len(amenities) > 0 {
		values := make([]string, 0, len(amenities))
		args := make([]any, 0, len(amenities)*3)
		for _, a := range amenities {
			values = append(values, "(?,?,?)")
			args = append(args, hotelID, a.Name, a.Category)
		}
		if _, err := q.ExecContext(ctx, insertAmenitiesPrefix+strings.Join(values, ","), args...); err != nil {
			return err
		}
	}
	if len(images) > 0 {
		values := make([]string, 0, len(images))
		args := make([]any, 0, len(images)*5)
		for _, img := range images {
			values = append(values, "(?,?,?,?,?)")
			args = append(args, hotelID, img.URL, nullStr(img.Caption), img.IsPrimary, img.SortOrder)
		}
		if _, err := q.ExecContext(ctx, insertImagesPrefix+strings.Join(values, ","), args...); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repo) UpsertRate(ctx context.Context, externalID string, rate domain.Rate) error {
	var id int64
	if err := r.db.QueryRowContext(ctx, selectHotelIDSQL, externalID).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("hotel %s: %w", externalID, domain.ErrNotFound)
		}
		return err
	}
	_, err := r.db.ExecContext(ctx, upsertRateSQL,
		id, representativeRateKey, rate.Currency, rate.BaseRate, rate.TotalRate, rate.PublishedRate, rate.PerNightRate)
	return err
}

func (r *Repo) GetByExternalID(ctx context.Context, externalID string) (domain.StoredHotel, error) {
	row := r.db.QueryRowContext(ctx, getHotelSQL, externalID)
	h, err := scanHotel(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.StoredHotel{}, fmt.Errorf("hotel %s: %w", externalID, domain.ErrNotFound)
		}
		return domain.StoredHotel{}, err
	}
	hotels := []domain.StoredHotel{h}
	if err := r.attachChildren(ctx, hotels); err != nil {
		return domain.StoredHotel{}, err
	}
	return hotels[0], nil
}

// SearchByGeoRadius prefilters with a bounding box, then keeps rows within
// the exact great-circle distance, closest first.
func (r *Repo) SearchByGeoRadius(ctx context.Context, pt domain.GeoPoint, radiusKM float64, limit int) ([]domain.StoredHotel, error) {
	if radiusKM <= 0 {
		radiusKM = 25
	}
	if limit <= 0 {
		limit = 50
	}
	latDelta := radiusKM / 111.0
	lngDelta := math.Abs(radiusKM / (111.0 * math.Cos(pt.Lat*math.Pi/180)))

	rows, err := r.db.QueryContext(ctx, searchByGeoSQL,
		pt.Lat-latDelta, pt.Lat+latDelta, pt.Lng-lngDelta, pt.Lng+lngDelta)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.StoredHotel
	for rows.Next() {
		h, err := scanHotel(rows)
		if err != nil {
			return nil, err
		}
		d := haversineKM(pt, domain.GeoPoint{Lat: h.Lat, Lng: h.Lng})
		if d > radiusKM {
			continue
		}
		h.DistanceKM = d
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].DistanceKM < out[j].DistanceKM })
	if len(out) > limit {
		out = out[:limit]
	}
	if err := r.attachChildren(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) Stats(ctx context.Context, since time.Time) (domain.StoreStats, error) {
	var st domain.StoreStats
	err := r.db.QueryRowContext(ctx, statsSQL, since).Scan(
		&st.Hotels, &st.Amenities, &st.Images, &st.Rates, &st.UpdatedSince)
	return st, err
}

type rowScanner interface{ Scan(dest ...any) error }

func scanHotel(row rowScanner) (domain.StoredHotel, error) {
	var h domain.StoredHotel
	var desc, addr, city, region, country, postal sql.NullString
	var stars, reviews sql.NullInt64
	var avg sql.NullFloat64

	if err := row.Scan(
		&h.ID,
		&h.ExternalID,
		&h.Name,
		&desc,
		&addr,
		&city,
		&region,
		&country,
		&postal,
		&h.Lat,
		&h.Lng,
		&stars,
		&avg,
		&reviews,
		&h.CreatedAt,
		&h.UpdatedAt,
	); err != nil {
		return domain.StoredHotel{}, err
	}
	h.Description = desc.String
	h.Address = addr.String
	h.City = city.String
	h.Region = region.String
	h.Country = country.String
	h.PostalCode = postal.String
	h.StarRating = int(stars.Int64)
	h.AvgRating = avg.Float64
	h.ReviewCount = int(reviews.Int64)
	return h, nil
}

// attachChildren loads amenities, images and rates for the given hotels in
// three IN queries and joins them in memory.
func (r *Repo) attachChildren(ctx context.Context, hotels []domain.StoredHotel) error {
	if len(hotels) == 0 {
		return nil
	}
	byID := make(map[int64]*domain.StoredHotel, len(hotels))
	args := make([]any, 0, len(hotels))
	for i := range hotels {
		byID[hotels[i].ID] = &hotels[i]
		args = append(args, hotels[i].ID)
	}
	in := "(" + strings.TrimSuffix(strings.Repeat("?,", len(hotels)), ",") + ")"

	rows, err := r.db.QueryContext(ctx, selectAmenitiesPrefix+in+" ORDER BY hotel_id, id", args...)
	if err != nil {
		return err
	}
	for rows.Next() {
		var id int64
		var a domain.Amenity
		if err := rows.Scan(&id, &a.Name, &a.Category); err != nil {
			rows.Close()
			return err
		}
		if h := byID[id]; h != nil {
			h.Amenities = append(h.Amenities, a)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.db.QueryContext(ctx, selectImagesPrefix+in+" ORDER BY hotel_id, sort_order, id", args...)
	if err != nil {
		return err
	}
	for rows.Next() {
		var id int64
		var img domain.Image
		var caption sql.NullString
		if err := rows.Scan(&id, &img.URL, &caption, &img.IsPrimary, &img.SortOrder); err != nil {
			rows.Close()
			return err
		}
		img.Caption = caption.String
		if h := byID[id]; h != nil {
			h.Images = append(h.Images, img)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.db.QueryContext(ctx, selectRatesPrefix+in, args...)
	if err != nil {
		return err
	}
	for rows.Next() {
		var id int64
		var rt domain.Rate
		if err := rows.Scan(&id, &rt.Currency, &rt.BaseRate, &rt.TotalRate, &rt.PublishedRate, &rt.PerNightRate); err != nil {
			rows.Close()
			return err
		}
		if h := byID[id]; h != nil {
			h.Rate = &rt
		}
	}
	rows.Close()
	return rows.Err()
}

func haversineKM(a, b domain.GeoPoint) float64 {
	const earthRadiusKM = 6371.0
	la1 := a.Lat * math.Pi / 180
	la2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	s := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(la1)*math.Cos(la2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKM * math.Asin(math.Sqrt(s))
}
