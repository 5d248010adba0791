// Package geocode resolves place names to coordinates for point queries.
package geocode

import (
	"errors"
	"fmt"
	"sync"

	"github.com/kelvins/geocoder"
)

// ErrDisabled is returned when no API key is configured.
var ErrDisabled = errors.New("geocoding is not configured")

// Resolver turns a city and country into latitude and longitude.
type Resolver interface {
	Resolve(city, country string) (lat, lon float64, err error)
}

// Google resolves places with the Google Maps geocoding API.
type Google struct {
	apiKey string
}

// NewGoogle returns a resolver using apiKey. An empty key yields a resolver
// that always returns ErrDisabled.
func NewGoogle(apiKey string) *Google {
	return &Google{apiKey: apiKey}
}

// the geocoder package keeps its key in a package variable.
var keyMu sync.Mutex

func (g *Google) Resolve(city, country string) (float64, float64, error) {
	if g.apiKey == "" {
		return 0, 0, ErrDisabled
	}

	keyMu.Lock()
	defer keyMu.Unlock()
	geocoder.ApiKey = g.apiKey

	loc, err := geocoder.Geocoding(geocoder.Address{City: city, Country: country})
	if err != nil {
		return 0, 0, fmt.Errorf("geocode %s, %s: %w", city, country, err)
	}
	return loc.Latitude, loc.Longitude, nil
}
