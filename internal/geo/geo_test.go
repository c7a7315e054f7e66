package geo

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/jakubczubak/iFlip/internal/config"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func TestHaversine(t *testing.T) {
	warsaw := Coordinates{Lat: 52.2297, Lon: 21.0122}
	krakow := Coordinates{Lat: 50.0647, Lon: 19.9450}

	got := Haversine(warsaw, krakow)
	if math.Abs(got-252) > 5 {
		t.Errorf("Warsaw-Krakow distance = %.1f km, want ~252", got)
	}

	if got := Haversine(warsaw, warsaw); got != 0 {
		t.Errorf("distance to self = %v, want 0", got)
	}
	if Haversine(warsaw, krakow) != Haversine(krakow, warsaw) {
		t.Error("distance must be symmetric")
	}
}

func testGeoConfig(t *testing.T, endpoint string) config.GeoConfig {
	t.Helper()
	return config.GeoConfig{
		Endpoint:  endpoint,
		CachePath: filepath.Join(t.TempDir(), "cache.json"),
		UserAgent: "test/1.0",
		HomeLat:   52.2294,
		HomeLon:   20.2384,
	}
}

func TestCoordinatesCachesLookups(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		fmt.Fprint(w, `[{"lat":"52.4064","lon":"16.9252"}]`)
	}))
	defer srv.Close()

	cfg := testGeoConfig(t, srv.URL)
	g := NewGeocoder(cfg, testLogger)
	ctx := context.Background()

	coords, ok := g.Coordinates(ctx, "Poznań")
	if !ok {
		t.Fatal("lookup failed")
	}
	if math.Abs(coords.Lat-52.4064) > 1e-6 || math.Abs(coords.Lon-16.9252) > 1e-6 {
		t.Errorf("coords = %+v", coords)
	}

	if _, ok := g.Coordinates(ctx, "Poznań"); !ok {
		t.Fatal("cached lookup failed")
	}
	if requests.Load() != 1 {
		t.Errorf("remote hit %d times, want 1", requests.Load())
	}

	// A fresh geocoder on the same cache file never touches the network.
	g2 := NewGeocoder(cfg, testLogger)
	if _, ok := g2.Coordinates(ctx, "Poznań"); !ok {
		t.Fatal("persisted cache lookup failed")
	}
	if requests.Load() != 1 {
		t.Errorf("cache file not reused, %d remote hits", requests.Load())
	}
}

func TestCoordinatesUnknownCity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	g := NewGeocoder(testGeoConfig(t, srv.URL), testLogger)
	if _, ok := g.Coordinates(context.Background(), "Nibylandia"); ok {
		t.Error("empty result must report not found")
	}
}

func TestCoordinatesEmptyCity(t *testing.T) {
	g := NewGeocoder(testGeoConfig(t, "http://invalid.example"), testLogger)
	if _, ok := g.Coordinates(context.Background(), ""); ok {
		t.Error("empty city must not resolve")
	}
}

func TestHome(t *testing.T) {
	g := NewGeocoder(testGeoConfig(t, "http://invalid.example"), testLogger)
	home := g.Home()
	if home.Lat != 52.2294 || home.Lon != 20.2384 {
		t.Errorf("home = %+v", home)
	}
}
