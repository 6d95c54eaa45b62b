package app

import (
	"strings"

	"staysync/internal/domain"
)

// knownCoords is the static fallback for partitions the autosuggest endpoint
// cannot resolve. Lookup is a case-insensitive substring test so "New York
// City" still matches "New York". First match wins.
var knownCoords = []struct {
	city string
	pt   domain.GeoPoint
}{
	{"new york", domain.GeoPoint{Lat: 40.7128, Lng: -74.0060}},
	{"los angeles", domain.GeoPoint{Lat: 34.0522, Lng: -118.2437}},
	{"chicago", domain.GeoPoint{Lat: 41.8781, Lng: -87.6298}},
	{"miami", domain.GeoPoint{Lat: 25.7617, Lng: -80.1918}},
	{"las vegas", domain.GeoPoint{Lat: 36.1699, Lng: -115.1398}},
	{"san francisco", domain.GeoPoint{Lat: 37.7749, Lng: -122.4194}},
	{"boston", domain.GeoPoint{Lat: 42.3601, Lng: -71.0589}},
	{"washington", domain.GeoPoint{Lat: 38.9072, Lng: -77.0369}},
	{"seattle", domain.GeoPoint{Lat: 47.6062, Lng: -122.3321}},
	{"atlanta", domain.GeoPoint{Lat: 33.7490, Lng: -84.3880}},
	{"dallas", domain.GeoPoint{Lat: 32.7767, Lng: -96.7970}},
	{"houston", domain.GeoPoint{Lat: 29.7604, Lng: -95.3698}},
	{"phoenix", domain.GeoPoint{Lat: 33.4484, Lng: -112.0740}},
	{"denver", domain.GeoPoint{Lat: 39.7392, Lng: -104.9903}},
	{"nashville", domain.GeoPoint{Lat: 36.1627, Lng: -86.7816}},
	{"austin", domain.GeoPoint{Lat: 30.2672, Lng: -97.7431}},
	{"portland", domain.GeoPoint{Lat: 45.5152, Lng: -122.6784}},
	{"san diego", domain.GeoPoint{Lat: 32.7157, Lng: -117.1611}},
	{"orlando", domain.GeoPoint{Lat: 28.5383, Lng: -81.3792}},
	{"mexico city", domain.GeoPoint{Lat: 19.4326, Lng: -99.1332}},
	{"cancun", domain.GeoPoint{Lat: 21.1619, Lng: -86.8515}},
	{"guadalajara", domain.GeoPoint{Lat: 20.6597, Lng: -103.3496}},
	{"monterrey", domain.GeoPoint{Lat: 25.6866, Lng: -100.3161}},
	{"tijuana", domain.GeoPoint{Lat: 32.5149, Lng: -117.0382}},
	{"puebla", domain.GeoPoint{Lat: 19.0414, Lng: -98.2063}},
	{"merida", domain.GeoPoint{Lat: 20.9674, Lng: -89.5926}},
	{"toluca", domain.GeoPoint{Lat: 19.2925, Lng: -99.6569}},
	{"león", domain.GeoPoint{Lat: 21.1228, Lng: -101.7065}},
	{"juárez", domain.GeoPoint{Lat: 31.6904, Lng: -106.4225}},
}

func lookupKnownCoords(name string) (domain.GeoPoint, bool) {
	n := strings.ToLower(name)
	for _, c := range knownCoords {
		if strings.Contains(n, c.city) {
			return c.pt, true
		}
	}
	return domain.GeoPoint{}, false
}
