package radbin

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/twinfer/radbin/pkg/dx"
	"github.com/twinfer/radbin/pkg/radolan"
	"github.com/twinfer/radbin/pkg/rainbow"
)

// Format identifies a supported radar file format.
type Format int

const (
	FormatUnknown Format = iota
	FormatDX
	FormatRadolan
	FormatRainbow
)

func (f Format) String() string {
	switch f {
	case FormatDX:
		return "dx"
	case FormatRadolan:
		return "radolan"
	case FormatRainbow:
		return "rainbow"
	default:
		return "unknown"
	}
}

// DetectFormat guesses the format from the leading bytes: Rainbow
// files open with XML, DX files with the "DX" product id, RADOLAN
// composites with any other two-letter product id.
func DetectFormat(data []byte) Format {
	if len(data) < 2 {
		return FormatUnknown
	}
	switch {
	case data[0] == '<':
		return FormatRainbow
	case data[0] == 'D' && data[1] == 'X':
		return FormatDX
	case isUpper(data[0]) && isUpper(data[1]):
		return FormatRadolan
	default:
		return FormatUnknown
	}
}

func isUpper(b byte) bool { return b >= 'A' && b <= 'Z' }

// options holds configuration for the decoder.
type options struct {
	logger *slog.Logger
	nodata float64
}

// Option is a function that configures decoder options.
type Option func(*options)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithNoData sets the sentinel assigned to RADOLAN nodata cells.
func WithNoData(v float64) Option {
	return func(o *options) { o.nodata = v }
}

func defaultOptions() options {
	return options{
		logger: slog.Default(),
		nodata: radolan.DefaultNoData,
	}
}

// Decoder bundles the per-format decoders behind one entry point.
type Decoder struct {
	logger  *slog.Logger
	dx      *dx.Decoder
	radolan *radolan.Decoder
	rainbow *rainbow.Reader
}

// New creates a decoder with the given options.
func New(opts ...Option) *Decoder {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Decoder{
		logger:  o.logger,
		dx:      dx.NewDecoder(o.logger),
		radolan: radolan.NewDecoder(o.logger, radolan.WithNoData(o.nodata)),
		rainbow: rainbow.NewReader(o.logger),
	}
}

// Global decoder instance for the convenience functions.
var (
	globalDecoder     *Decoder
	globalDecoderOnce sync.Once
)

func getGlobalDecoder() *Decoder {
	globalDecoderOnce.Do(func() {
		globalDecoder = New()
	})
	return globalDecoder
}

// Decoded is the result of an auto-detected decode; exactly one of the
// per-format fields is set.
type Decoded struct {
	Format  Format
	DX      *dx.Sweep
	Radolan *radolan.Composite
	Rainbow *rainbow.File
}

// Decode auto-detects the format of data and decodes it.
func Decode(data []byte) (*Decoded, error) {
	return getGlobalDecoder().Decode(context.Background(), data)
}

// DecodeFile reads and decodes the named file.
func DecodeFile(path string) (*Decoded, error) {
	return getGlobalDecoder().DecodeFile(context.Background(), path)
}

// Decode auto-detects the format of data and decodes it.
func (d *Decoder) Decode(ctx context.Context, data []byte) (*Decoded, error) {
	format := DetectFormat(data)
	result := &Decoded{Format: format}
	var err error
	switch format {
	case FormatDX:
		result.DX, err = d.dx.Decode(ctx, data)
	case FormatRadolan:
		result.Radolan, err = d.radolan.Decode(ctx, data)
	case FormatRainbow:
		result.Rainbow, err = d.rainbow.Read(ctx, data)
	default:
		return nil, fmt.Errorf("cannot detect radar format from leading bytes")
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DecodeFile reads and decodes the named file.
func (d *Decoder) DecodeFile(ctx context.Context, path string) (*Decoded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	decoded, err := d.Decode(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return decoded, nil
}

// DecodeDX decodes a DX product.
func (d *Decoder) DecodeDX(ctx context.Context, data []byte) (*dx.Sweep, error) {
	return d.dx.Decode(ctx, data)
}

// DecodeRadolan decodes a RADOLAN composite.
func (d *Decoder) DecodeRadolan(ctx context.Context, data []byte) (*radolan.Composite, error) {
	return d.radolan.Decode(ctx, data)
}

// DecodeRainbow decodes a Rainbow file.
func (d *Decoder) DecodeRainbow(ctx context.Context, data []byte) (*rainbow.File, error) {
	return d.rainbow.Read(ctx, data)
}

// Summary holds descriptive statistics over the valid cells of a
// decoded product.
type Summary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Summarize computes statistics over values, skipping nodata cells and
// NaNs.
func Summarize(values []float64, nodata float64) Summary {
	valid := make([]float64, 0, len(values))
	for _, v := range values {
		if v == nodata || math.IsNaN(v) {
			continue
		}
		valid = append(valid, v)
	}
	if len(valid) == 0 {
		return Summary{}
	}
	s := Summary{
		Count: len(valid),
		Min:   floats.Min(valid),
		Max:   floats.Max(valid),
	}
	if len(valid) == 1 {
		s.Mean = valid[0]
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(valid, nil)
	return s
}

// SummarizeComposite summarizes a RADOLAN grid against its own nodata
// sentinel.
func SummarizeComposite(c *radolan.Composite) Summary {
	return Summarize(c.Data, c.NoData)
}

// SummarizeSweep summarizes the reflectivity of all beams of a DX
// sweep, ragged or not.
func SummarizeSweep(s *dx.Sweep) Summary {
	var values []float64
	for _, b := range s.Beams {
		values = append(values, b.DBZ...)
	}
	return Summarize(values, math.Inf(-1))
}
