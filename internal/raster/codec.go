package raster

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// Decoder turns raster bytes into a Grid.
type Decoder interface {
	Decode(r io.Reader) (*Grid, error)
}

// Codec reads and writes the canonical grid file of an artifact.
type Codec interface {
	Decoder
	Encode(w io.Writer, g *Grid) error
	// Name identifies the codec in configuration.
	Name() string
	// Ext is the canonical file extension, dot included.
	Ext() string
}

const (
	CodecCBOR    = "cbor"
	CodecMsgpack = "msgpack"
)

// CodecByName returns a registered codec.
func CodecByName(name string) (Codec, error) {
	switch name {
	case CodecCBOR, "":
		return cborCodec{}, nil
	case CodecMsgpack:
		return msgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("raster: unknown codec %q", name)
	}
}

// Grids are deterministic so identical snapshots produce identical files.
var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("raster: CBOR encoder initialization failed: " + err.Error())
	}
	cborDec, err = cbor.DecOptions{
		MaxArrayElements: 1 << 27,
	}.DecMode()
	if err != nil {
		panic("raster: CBOR decoder initialization failed: " + err.Error())
	}
}

type cborCodec struct{}

func (cborCodec) Name() string { return CodecCBOR }
func (cborCodec) Ext() string  { return ".rgrid" }

func (cborCodec) Encode(w io.Writer, g *Grid) error {
	return compressed(w, func(zw io.Writer) error {
		return cborEnc.NewEncoder(zw).Encode(g)
	})
}

func (cborCodec) Decode(r io.Reader) (*Grid, error) {
	return decompressed(r, func(zr io.Reader, g *Grid) error {
		return cborDec.NewDecoder(zr).Decode(g)
	})
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string { return CodecMsgpack }
func (msgpackCodec) Ext() string  { return ".mpgrid" }

func (msgpackCodec) Encode(w io.Writer, g *Grid) error {
	return compressed(w, func(zw io.Writer) error {
		return msgpack.NewEncoder(zw).Encode(g)
	})
}

func (msgpackCodec) Decode(r io.Reader) (*Grid, error) {
	return decompressed(r, func(zr io.Reader, g *Grid) error {
		return msgpack.NewDecoder(zr).Decode(g)
	})
}

func compressed(w io.Writer, encode func(io.Writer) error) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("raster: zstd writer: %w", err)
	}
	if err := encode(zw); err != nil {
		zw.Close()
		return fmt.Errorf("raster: encode: %w", err)
	}
	return zw.Close()
}

func decompressed(r io.Reader, decode func(io.Reader, *Grid) error) (*Grid, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("raster: zstd reader: %w", err)
	}
	defer zr.Close()

	var g Grid
	if err := decode(zr, &g); err != nil {
		return nil, fmt.Errorf("raster: decode: %w", err)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}
