package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/jakubczubak/iFlip/internal/config"
)

const earthRadiusKm = 6371.0

// Coordinates is a latitude/longitude pair in degrees.
type Coordinates struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

// Haversine returns the great-circle distance between two points in km.
func Haversine(a, b Coordinates) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Geocoder resolves city names to coordinates through an on-disk cache
// backed by the Nominatim API. Lookups that fail are simply absent; nothing
// in the pipeline depends on geocoding succeeding.
type Geocoder struct {
	cfg    config.GeoConfig
	client *http.Client
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]Coordinates
}

// NewGeocoder loads the location cache from disk; a missing or corrupt
// cache file just starts empty.
func NewGeocoder(cfg config.GeoConfig, logger *slog.Logger) *Geocoder {
	g := &Geocoder{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger.With("component", "geocoder"),
		cache:  make(map[string]Coordinates),
	}

	data, err := os.ReadFile(cfg.CachePath)
	if err == nil {
		if err := json.Unmarshal(data, &g.cache); err != nil {
			g.logger.Warn("location cache unreadable, starting empty", "path", cfg.CachePath, "error", err)
			g.cache = make(map[string]Coordinates)
		}
	}
	return g
}

// Coordinates resolves a city name. The second return value is false when
// the city is unknown to both the cache and the geocoding service.
func (g *Geocoder) Coordinates(ctx context.Context, city string) (Coordinates, bool) {
	if city == "" {
		return Coordinates{}, false
	}

	g.mu.Lock()
	coords, ok := g.cache[city]
	g.mu.Unlock()
	if ok {
		return coords, true
	}

	coords, ok = g.lookup(ctx, city)
	if !ok {
		return Coordinates{}, false
	}

	g.mu.Lock()
	g.cache[city] = coords
	g.mu.Unlock()
	if err := g.saveCache(); err != nil {
		g.logger.Warn("location cache save failed", "error", err)
	}
	return coords, true
}

// Home returns the configured reference point for distance columns.
func (g *Geocoder) Home() Coordinates {
	return Coordinates{Lat: g.cfg.HomeLat, Lon: g.cfg.HomeLon}
}

// nominatimResult is the slice element Nominatim returns; lat/lon come as
// strings.
type nominatimResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

func (g *Geocoder) lookup(ctx context.Context, city string) (Coordinates, bool) {
	params := url.Values{}
	params.Set("q", city+", Polska")
	params.Set("format", "json")
	params.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return Coordinates{}, false
	}
	req.Header.Set("User-Agent", g.cfg.UserAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Warn("geocoding request failed", "city", city, "error", err)
		return Coordinates{}, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		g.logger.Warn("geocoding rejected", "city", city, "status", resp.StatusCode)
		return Coordinates{}, false
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil || len(results) == 0 {
		g.logger.Debug("no geocoding result", "city", city)
		return Coordinates{}, false
	}

	lat, latErr := strconv.ParseFloat(results[0].Lat, 64)
	lon, lonErr := strconv.ParseFloat(results[0].Lon, 64)
	if latErr != nil || lonErr != nil {
		return Coordinates{}, false
	}
	return Coordinates{Lat: lat, Lon: lon}, true
}

func (g *Geocoder) saveCache() error {
	g.mu.Lock()
	data, err := json.MarshalIndent(g.cache, "", "  ")
	g.mu.Unlock()
	if err != nil {
		return err
	}
	if err := os.WriteFile(g.cfg.CachePath, data, 0o644); err != nil {
		return fmt.Errorf("write location cache: %w", err)
	}
	return nil
}
