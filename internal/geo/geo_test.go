package geo

import (
	"math"
	"testing"
	"time"
)

func TestDistanceIdentity(t *testing.T) {
	if d := Distance(39.9526, -75.1652, 39.9526, -75.1652); d != 0 {
		t.Fatalf("same point: want 0, got %f", d)
	}
}

func TestDistanceSymmetry(t *testing.T) {
	a := Distance(39.9526, -75.1652, 40.7128, -74.0060)
	b := Distance(40.7128, -74.0060, 39.9526, -75.1652)
	if math.Abs(a-b) > 1e-9 {
		t.Fatalf("asymmetric: %f vs %f", a, b)
	}
}

func TestDistancePhillyToNYC(t *testing.T) {
	// Philadelphia to Manhattan is roughly 80 miles great-circle.
	d := Distance(39.9526, -75.1652, 40.7128, -74.0060)
	if d < 75 || d > 85 {
		t.Fatalf("unexpected distance: %f", d)
	}
}

func TestDistanceOneDegreeLat(t *testing.T) {
	// One degree of latitude is ~69 miles.
	d := Distance(0, 0, 1, 0)
	if d < 68 || d > 70 {
		t.Fatalf("one degree latitude: %f", d)
	}
}

func TestTravelTime(t *testing.T) {
	if got := TravelTime(70, 35); got != 2*time.Hour {
		t.Fatalf("70mi at 35mph: want 2h, got %v", got)
	}
	// zero speed falls back to the default
	if got := TravelTime(35, 0); got != time.Hour {
		t.Fatalf("fallback speed: want 1h, got %v", got)
	}
	if got := TravelTime(0, 35); got != 0 {
		t.Fatalf("zero distance: want 0, got %v", got)
	}
}
