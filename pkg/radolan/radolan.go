// Package radolan decodes the DWD RADOLAN quantitative composite
// format.
//
// A composite is an ASCII header followed by a row-major grid of cell
// values, one byte per cell for the RX product and two for all others.
// The 16-bit layout packs a 12-bit magnitude with nodata, sign and
// clutter flag bits; the header's PR field declares the decimal
// precision that recovers physical units.
//
// The sign bit is honoured only for the RD product (adjustment
// differences). That path follows the documented bit semantics but has
// not been verified against real RD fixtures.
package radolan

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kaitai-io/kaitai_struct_go_runtime/kaitai"

	"github.com/twinfer/radbin/internal/etxscan"
)

const (
	nodataFlag   = 0x2000
	negativeFlag = 0x4000 // meaningful only for product RD
	clutterFlag  = 0x8000
	valueMask    = 0x0FFF

	rxNoData  = 250
	rxClutter = 249

	// compositeRadarID is the station id carried by national composites.
	compositeRadarID = "10000"

	// DefaultNoData is the sentinel written to nodata cells.
	DefaultNoData = -9999
)

// ErrTruncatedPayload is returned when the file holds fewer payload
// bytes than the grid dimensions require.
var ErrTruncatedPayload = errors.New("truncated payload")

// Composite is a decoded RADOLAN grid.
type Composite struct {
	Header Header
	Rows   int
	Cols   int
	NoData float64   // sentinel carried by nodata cells
	Data   []float64 // row-major, Rows*Cols values
	// Clutter lists the flat indices of clutter-flagged cells. RX cells
	// flagged as clutter keep their byte value.
	Clutter []int
}

// At returns the cell value at (row, col).
func (c *Composite) At(row, col int) float64 {
	return c.Data[row*c.Cols+col]
}

// Decoder decodes RADOLAN composites.
type Decoder struct {
	logger *slog.Logger
	nodata float64
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithNoData sets the sentinel assigned to nodata cells.
func WithNoData(v float64) Option {
	return func(d *Decoder) { d.nodata = v }
}

// NewDecoder returns a Decoder logging through logger, or
// slog.Default() when logger is nil.
func NewDecoder(logger *slog.Logger, opts ...Option) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Decoder{logger: logger, nodata: DefaultNoData}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode parses one complete composite file.
func (d *Decoder) Decode(ctx context.Context, raw []byte) (*Composite, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	// Composite headers end with a single ETX; the first payload byte
	// may itself be 0x03 and must not be taken for a doubled terminator.
	stream := kaitai.NewStream(bytes.NewReader(raw))
	text, _, err := etxscan.ScanSingle(stream)
	if err != nil {
		return nil, fmt.Errorf("scanning composite header: %w", err)
	}
	header, err := ParseHeader(text)
	if err != nil {
		return nil, fmt.Errorf("parsing composite header: %w", err)
	}

	if header.RadarID != compositeRadarID {
		d.logger.Warn("radar id is not a composite id, results may not be valid",
			"radarid", header.RadarID, "product", header.ProductType)
	}

	product, err := lookupProduct(header.ProductType)
	if err != nil {
		return nil, err
	}

	cells := header.Rows * header.Cols
	buf, err := stream.ReadBytes(cells * product.CellBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: want %d cells of %d bytes: %v",
			ErrTruncatedPayload, cells, product.CellBytes, err)
	}

	comp := &Composite{
		Header: header,
		Rows:   header.Rows,
		Cols:   header.Cols,
		NoData: d.nodata,
		Data:   make([]float64, cells),
	}

	if product.CellBytes == 1 {
		d.decodeBytes(buf, comp)
	} else {
		d.decodeWords(buf, comp, header)
	}
	return comp, nil
}

// decodeBytes handles the one-byte-per-cell RX layout: 250 is nodata,
// 249 marks clutter but keeps its value, everything else passes through
// unscaled.
func (d *Decoder) decodeBytes(buf []byte, comp *Composite) {
	for i, b := range buf {
		switch b {
		case rxNoData:
			comp.Data[i] = comp.NoData
		case rxClutter:
			comp.Clutter = append(comp.Clutter, i)
			comp.Data[i] = rxClutter
		default:
			comp.Data[i] = float64(b)
		}
	}
}

// decodeWords handles the two-byte-per-cell layout. The nodata sentinel
// is applied after precision scaling.
func (d *Decoder) decodeWords(buf []byte, comp *Composite, header Header) {
	for i := range comp.Data {
		v := binary.LittleEndian.Uint16(buf[2*i:])
		if v&clutterFlag != 0 {
			comp.Clutter = append(comp.Clutter, i)
		}
		mag := float64(v & valueMask)
		if header.ProductType == "RD" && v&negativeFlag != 0 {
			mag = -mag
		}
		val := mag * header.Precision
		if v&nodataFlag != 0 {
			val = comp.NoData
		}
		comp.Data[i] = val
	}
}
