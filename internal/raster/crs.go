package raster

import (
	"fmt"
	"math"
	"strings"
)

const (
	EPSG4326 = "EPSG:4326"
	EPSG3857 = "EPSG:3857"

	webMercatorRadius = 6378137.0
	webMercatorMaxLat = 85.05112877980659
)

// CRS converts between geographic longitude/latitude and native coordinates.
type CRS interface {
	Name() string
	Forward(lon, lat float64) (x, y float64, err error)
	Inverse(x, y float64) (lon, lat float64, err error)
}

// LookupCRS resolves a CRS identifier. Only the projections used by
// composite radar products are supported.
func LookupCRS(name string) (CRS, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case EPSG4326, "OGC:CRS84", "WGS84":
		return geographic{}, nil
	case EPSG3857, "EPSG:900913":
		return webMercator{}, nil
	default:
		return nil, fmt.Errorf("raster: unsupported crs %q", name)
	}
}

// Reproject transforms (lon, lat) in EPSG:4326 into dst.
func Reproject(lon, lat float64, dst string) (x, y float64, err error) {
	crs, err := LookupCRS(dst)
	if err != nil {
		return 0, 0, err
	}
	return crs.Forward(lon, lat)
}

// NormalizeLon maps a longitude into [-180, 180).
func NormalizeLon(lon float64) float64 {
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}

type geographic struct{}

func (geographic) Name() string { return EPSG4326 }

func (geographic) Forward(lon, lat float64) (float64, float64, error) { return lon, lat, nil }

func (geographic) Inverse(x, y float64) (float64, float64, error) { return x, y, nil }

type webMercator struct{}

func (webMercator) Name() string { return EPSG3857 }

func (webMercator) Forward(lon, lat float64) (float64, float64, error) {
	if math.Abs(lat) > webMercatorMaxLat {
		return 0, 0, fmt.Errorf("raster: latitude %v outside web mercator range", lat)
	}
	x := webMercatorRadius * lon * math.Pi / 180
	y := webMercatorRadius * math.Log(math.Tan(math.Pi/4+lat*math.Pi/360))
	return x, y, nil
}

func (webMercator) Inverse(x, y float64) (float64, float64, error) {
	lon := x / webMercatorRadius * 180 / math.Pi
	lat := (2*math.Atan(math.Exp(y/webMercatorRadius)) - math.Pi/2) * 180 / math.Pi
	return lon, lat, nil
}
