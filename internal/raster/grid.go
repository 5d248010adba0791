// Package raster holds the decoded grid model shared by ingestion and point
// sampling, the coordinate transforms between geographic and grid space, and
// the codecs used for the canonical on-disk grid file.
package raster

import (
	"errors"
	"fmt"
	"math"
)

// Affine is a north-up or rotated pixel transform in GDAL geotransform order:
//
//	x = T[0] + col*T[1] + row*T[2]
//	y = T[3] + col*T[4] + row*T[5]
type Affine [6]float64

// Apply maps a fractional (row, col) to native CRS coordinates.
func (t Affine) Apply(row, col float64) (x, y float64) {
	return t[0] + col*t[1] + row*t[2], t[3] + col*t[4] + row*t[5]
}

// Invert maps native CRS coordinates to a fractional (row, col).
func (t Affine) Invert(x, y float64) (row, col float64, err error) {
	det := t[1]*t[5] - t[2]*t[4]
	if det == 0 {
		return 0, 0, errors.New("raster: singular transform")
	}
	dx, dy := x-t[0], y-t[3]
	col = (t[5]*dx - t[2]*dy) / det
	row = (t[1]*dy - t[4]*dx) / det
	return row, col, nil
}

// Bounds is an axis-aligned extent.
type Bounds struct {
	Left   float64 `json:"left"`
	Bottom float64 `json:"bottom"`
	Right  float64 `json:"right"`
	Top    float64 `json:"top"`
}

// Contains reports whether (x, y) lies inside b, edges included.
func (b Bounds) Contains(x, y float64) bool {
	return b.Left <= x && x <= b.Right && b.Bottom <= y && y <= b.Top
}

// Grid is a single-band decoded raster.
type Grid struct {
	Width     int       `cbor:"width" msgpack:"width"`
	Height    int       `cbor:"height" msgpack:"height"`
	CRS       string    `cbor:"crs" msgpack:"crs"`
	Transform Affine    `cbor:"transform" msgpack:"transform"`
	Pixels    []float32 `cbor:"pixels" msgpack:"pixels"`
}

// NewGrid allocates a grid filled with NaN.
func NewGrid(width, height int, crs string, transform Affine) *Grid {
	px := make([]float32, width*height)
	for i := range px {
		px[i] = float32(math.NaN())
	}
	return &Grid{Width: width, Height: height, CRS: crs, Transform: transform, Pixels: px}
}

// Validate checks that the grid is internally consistent.
func (g *Grid) Validate() error {
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("raster: invalid dimensions %dx%d", g.Width, g.Height)
	}
	if len(g.Pixels) != g.Width*g.Height {
		return fmt.Errorf("raster: %d pixels for %dx%d grid", len(g.Pixels), g.Width, g.Height)
	}
	if _, err := LookupCRS(g.CRS); err != nil {
		return err
	}
	if _, _, err := g.Transform.Invert(0, 0); err != nil {
		return err
	}
	return nil
}

// Bounds returns the native CRS extent of the grid.
func (g *Grid) Bounds() Bounds {
	return cornerBounds(g.Width, g.Height, func(row, col float64) (float64, float64, error) {
		x, y := g.Transform.Apply(row, col)
		return x, y, nil
	})
}

// GeoBounds returns the extent in EPSG:4326 longitude/latitude.
func (g *Grid) GeoBounds() (Bounds, error) {
	crs, err := LookupCRS(g.CRS)
	if err != nil {
		return Bounds{}, err
	}
	var projErr error
	b := cornerBounds(g.Width, g.Height, func(row, col float64) (float64, float64, error) {
		x, y := g.Transform.Apply(row, col)
		lon, lat, err := crs.Inverse(x, y)
		if err != nil {
			projErr = err
		}
		return lon, lat, err
	})
	return b, projErr
}

// Index returns the pixel containing native coordinate (x, y). The result
// may lie outside the grid; use InGrid to check.
func (g *Grid) Index(x, y float64) (row, col int, err error) {
	fr, fc, err := g.Transform.Invert(x, y)
	if err != nil {
		return 0, 0, err
	}
	return int(math.Floor(fr)), int(math.Floor(fc)), nil
}

// InGrid reports whether (row, col) addresses a pixel.
func (g *Grid) InGrid(row, col int) bool {
	return row >= 0 && row < g.Height && col >= 0 && col < g.Width
}

// At reads one pixel.
func (g *Grid) At(row, col int) (float64, bool) {
	if !g.InGrid(row, col) {
		return 0, false
	}
	return float64(g.Pixels[row*g.Width+col]), true
}

// Set writes one pixel; out-of-grid writes are ignored.
func (g *Grid) Set(row, col int, v float64) {
	if g.InGrid(row, col) {
		g.Pixels[row*g.Width+col] = float32(v)
	}
}

func cornerBounds(w, h int, at func(row, col float64) (float64, float64, error)) Bounds {
	b := Bounds{Left: math.Inf(1), Bottom: math.Inf(1), Right: math.Inf(-1), Top: math.Inf(-1)}
	for _, c := range [][2]float64{{0, 0}, {0, float64(w)}, {float64(h), 0}, {float64(h), float64(w)}} {
		x, y, err := at(c[0], c[1])
		if err != nil {
			continue
		}
		b.Left = math.Min(b.Left, x)
		b.Right = math.Max(b.Right, x)
		b.Bottom = math.Min(b.Bottom, y)
		b.Top = math.Max(b.Top, y)
	}
	return b
}
