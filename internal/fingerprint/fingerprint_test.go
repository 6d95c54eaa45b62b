package fingerprint

import (
	"encoding/hex"
	"testing"
)

type paramsAB struct {
	Place  string  `json:"place"`
	Adults int     `json:"adults"`
	Lat    float64 `json:"lat"`
}

type paramsBA struct {
	Lat    float64 `json:"lat"`
	Adults int     `json:"adults"`
	Place  string  `json:"place"`
}

func TestComputeOrderIndependent(t *testing.T) {
	a, err := Compute(paramsAB{Place: "Miami", Adults: 2, Lat: 25.7617})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	b, err := Compute(paramsBA{Lat: 25.7617, Adults: 2, Place: "Miami"})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if a != b {
		t.Fatalf("field order changed the digest: %s vs %s", a, b)
	}

	m, err := Compute(map[string]any{"lat": 25.7617, "place": "Miami", "adults": 2})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if m != a {
		t.Fatalf("map form digests differently: %s vs %s", m, a)
	}
}

func TestComputeDistinguishesParams(t *testing.T) {
	a, err := Compute(map[string]any{"place": "Miami", "adults": 2})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	b, err := Compute(map[string]any{"place": "Miami", "adults": 3})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if a == b {
		t.Fatalf("different params collided: %s", a)
	}
}

func TestComputeDigestShape(t *testing.T) {
	d, err := Compute(map[string]any{"place": "Boston"})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(d) != 64 {
		t.Fatalf("want 64 hex chars, got %d", len(d))
	}
	if _, err := hex.DecodeString(d); err != nil {
		t.Fatalf("digest is not hex: %v", err)
	}
}
