package mysql

const selectHotelIDSQL = `SELECT id FROM hotels WHERE external_id = ?`

// Locking read for the duplicate-key fallback: under REPEATABLE READ the
// plain re-read would miss a row committed after our snapshot.
const selectHotelIDForUpdateSQL = `SELECT id FROM hotels WHERE external_id = ? FOR UPDATE`

const insertHotelSQL = `
INSERT INTO hotels
  (external_id, name, description, address, city, region, country, postal_code,
   lat, lng, star_rating, avg_rating, review_count)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const updateHotelSQL = `
UPDATE hotels SET
  name         = ?,
  description  = ?,
  address      = ?,
  city         = ?,
  region       = ?,
  country      = ?,
  postal_code  = ?,
  lat          = ?,
  lng          = ?,
  star_rating  = ?,
  avg_rating   = ?,
  review_count = ?,
  updated_at   = CURRENT_TIMESTAMP
WHERE id = ?
`

const selectHotelTimesSQL = `SELECT created_at, updated_at FROM hotels WHERE id = ?`

const deleteAmenitiesSQL = `DELETE FROM hotel_amenities WHERE hotel_id = ?`
const deleteImagesSQL = `DELETE FROM hotel_images WHERE hotel_id = ?`

const insertAmenitiesPrefix = "INSERT INTO hotel_amenities (hotel_id, name, category) VALUES "
const insertImagesPrefix = "INSERT INTO hotel_images (hotel_id, url, caption, is_primary, sort_order) VALUES "

// Keyed (hotel_id, rate_key); the executor only writes the representative
// rate today, so rate_key is a constant on the write path.
const upsertRateSQL = `
INSERT INTO hotel_rates
  (hotel_id, rate_key, currency, base_rate, total_rate, published_rate, per_night_rate)
VALUES
  (?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  currency       = VALUES(currency),
  base_rate      = VALUES(base_rate),
  total_rate     = VALUES(total_rate),
  published_rate = VALUES(published_rate),
  per_night_rate = VALUES(per_night_rate),
  updated_at     = CURRENT_TIMESTAMP
`

// -----------------------------------------------------------------------------
// READ QUERIES
// -----------------------------------------------------------------------------

const hotelColumns = `
  id, external_id, name, description, address, city, region, country,
  postal_code, lat, lng, star_rating, avg_rating, review_count,
  created_at, updated_at`

const getHotelSQL = `SELECT` + hotelColumns + `
FROM hotels
WHERE external_id = ?
`

// Bounding-box prefilter; the exact great-circle distance is applied by the
// caller.
const searchByGeoSQL = `SELECT` + hotelColumns + `
FROM hotels
WHERE lat BETWEEN ? AND ? AND lng BETWEEN ? AND ?
`

const selectAmenitiesPrefix = `
SELECT hotel_id, name, category
FROM hotel_amenities
WHERE hotel_id IN `

const selectImagesPrefix = `
SELECT hotel_id, url, caption, is_primary, sort_order
FROM hotel_images
WHERE hotel_id IN `

const selectRatesPrefix = `
SELECT hotel_id, currency, base_rate, total_rate, published_rate, per_night_rate
FROM hotel_rates
WHERE hotel_id IN `

const statsSQL = `
SELECT
  (SELECT COUNT(*) FROM hotels),
  (SELECT COUNT(*) FROM hotel_amenities),
  (SELECT COUNT(*) FROM hotel_images),
  (SELECT COUNT(*) FROM hotel_rates),
  (SELECT COUNT(*) FROM hotels WHERE updated_at >= ?)
`
