package raster

import (
	"bytes"
	"math"
	"testing"
)

func TestGridIndexNorthUp(t *testing.T) {
	// 0.01 degree cells, upper-left corner at (-130, 55).
	g := NewGrid(100, 50, EPSG4326, Affine{-130, 0.01, 0, 55, 0, -0.01})

	row, col, err := g.Index(-129.995, 54.995)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row != 0 || col != 0 {
		t.Fatalf("expected (0,0), got (%d,%d)", row, col)
	}

	row, col, _ = g.Index(-129.005, 54.505)
	if row != 49 || col != 99 {
		t.Fatalf("expected (49,99), got (%d,%d)", row, col)
	}

	row, col, _ = g.Index(-128.99, 54.5)
	if g.InGrid(row, col) {
		t.Fatalf("expected (%d,%d) outside the grid", row, col)
	}
}

func TestGridBounds(t *testing.T) {
	g := NewGrid(100, 50, EPSG4326, Affine{-130, 0.01, 0, 55, 0, -0.01})
	b := g.Bounds()

	want := Bounds{Left: -130, Bottom: 54.5, Right: -129, Top: 55}
	if math.Abs(b.Left-want.Left) > 1e-9 || math.Abs(b.Right-want.Right) > 1e-9 ||
		math.Abs(b.Top-want.Top) > 1e-9 || math.Abs(b.Bottom-want.Bottom) > 1e-9 {
		t.Fatalf("expected %+v, got %+v", want, b)
	}
	if !b.Contains(-129.5, 54.75) {
		t.Fatalf("expected bounds to contain the centre")
	}
	if b.Contains(-128, 54.75) {
		t.Fatalf("expected bounds to exclude -128")
	}
}

func TestWebMercatorRoundTrip(t *testing.T) {
	x, y, err := Reproject(-97.5, 35.25, EPSG3857)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Reference values from EPSG:3857 for (-97.5, 35.25).
	if math.Abs(x-(-10853650.35)) > 0.01 {
		t.Fatalf("unexpected x %v", x)
	}
	crs, _ := LookupCRS(EPSG3857)
	lon, lat, _ := crs.Inverse(x, y)
	if math.Abs(lon+97.5) > 1e-9 || math.Abs(lat-35.25) > 1e-9 {
		t.Fatalf("round trip drifted: (%v,%v)", lon, lat)
	}

	if _, _, err := Reproject(0, 89, EPSG3857); err == nil {
		t.Fatalf("expected error for latitude outside web mercator")
	}
	if _, _, err := Reproject(0, 0, "EPSG:32614"); err == nil {
		t.Fatalf("expected error for unsupported crs")
	}
}

func TestNormalizeLon(t *testing.T) {
	cases := map[float64]float64{
		200:  -160,
		-160: -160,
		0:    0,
		359:  -1,
		180:  -180,
		-180: -180,
	}
	for in, want := range cases {
		if got := NormalizeLon(in); math.Abs(got-want) > 1e-9 {
			t.Fatalf("NormalizeLon(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestCodecsPreserveGrid(t *testing.T) {
	for _, name := range []string{CodecCBOR, CodecMsgpack} {
		codec, err := CodecByName(name)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		g := NewGrid(3, 2, EPSG3857, Affine{0, 1000, 0, 2000, 0, -1000})
		g.Set(1, 2, 35)

		var buf bytes.Buffer
		if err := codec.Encode(&buf, g); err != nil {
			t.Fatalf("%s: encode: %v", name, err)
		}
		got, err := codec.Decode(&buf)
		if err != nil {
			t.Fatalf("%s: decode: %v", name, err)
		}
		if v, ok := got.At(1, 2); !ok || v != 35 {
			t.Fatalf("%s: expected 35 at (1,2), got %v", name, v)
		}
		if v, _ := got.At(0, 0); !math.IsNaN(v) {
			t.Fatalf("%s: expected NaN at (0,0), got %v", name, v)
		}
	}
}

func TestCodecRejectsGarbage(t *testing.T) {
	codec, _ := CodecByName(CodecCBOR)
	if _, err := codec.Decode(bytes.NewReader([]byte("GRIB not really"))); err == nil {
		t.Fatalf("expected decode error")
	}

	var buf bytes.Buffer
	bad := &Grid{Width: 2, Height: 2, CRS: EPSG4326, Transform: Affine{0, 1, 0, 0, 0, -1}, Pixels: []float32{1}}
	if err := codec.Encode(&buf, bad); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := codec.Decode(&buf); err == nil {
		t.Fatalf("expected validation error for short pixel slice")
	}
}
