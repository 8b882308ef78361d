// Package dx decodes the DWD DX per-beam raw radar format.
//
// A DX file is an ASCII header followed by a stream of 16-bit words.
// Runs of zero range bins are compressed into a single word carrying a
// count, and each word's high bits carry beam-start, clutter and
// zero-run flags around a 12-bit rvp6 reflectivity value.
package dx

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
	azimuthMark = 0x2000 // bit 14 alone marks the start of a beam
	zeroRunFlag = 0x1000 // bit 13: low bits are a count of zero bins
	dataMask    = 0x0FFF // 12-bit rvp6 value
	dbzMask     = 0x1FFF
	clutterFlag = 0x8000
)

// ErrTruncatedPayload is returned when the file holds fewer payload
// bytes than the header declares.
var ErrTruncatedPayload = errors.New("truncated payload")

// Decoder decodes DX products. The zero value is usable; NewDecoder
// wires a logger.
type Decoder struct {
	logger *slog.Logger
}

// NewDecoder returns a Decoder logging through logger, or
// slog.Default() when logger is nil.
func NewDecoder(logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{logger: logger}
}

// Decode parses one complete DX file.
func (d *Decoder) Decode(ctx context.Context, raw []byte) (*Sweep, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	stream := kaitai.NewStream(bytes.NewReader(raw))
	text, offset, err := etxscan.Scan(stream)
	if err != nil {
		return nil, fmt.Errorf("scanning DX header: %w", err)
	}
	header, err := ParseHeader(text)
	if err != nil {
		return nil, fmt.Errorf("parsing DX header: %w", err)
	}

	// The declared product length counts the header. If the remainder is
	// odd the product length is off by one byte (a known quirk of DX
	// files with doubled terminators); drop the trailing byte.
	buflen := header.ByteLength - offset
	if buflen < 0 {
		return nil, fmt.Errorf("%w: header declares %d bytes, header region alone is %d",
			ErrTruncatedPayload, header.ByteLength, offset)
	}
	if buflen%2 != 0 {
		buflen--
	}
	buf, err := stream.ReadBytes(buflen)
	if err != nil {
		return nil, fmt.Errorf("%w: want %d payload bytes: %v", ErrTruncatedPayload, buflen, err)
	}

	words := make([]uint16, len(buf)/2)
	for i := range words {
		words[i] = binary.LittleEndian.Uint16(buf[2*i:])
	}

	sweep := &Sweep{Header: header}
	marks := beamStarts(words)
	for i, start := range marks {
		end := len(words)
		if i+1 < len(marks) {
			end = marks[i+1]
		}
		if start+3 > end {
			return nil, fmt.Errorf("%w: beam %d header cut off at word %d", ErrTruncatedPayload, i, start)
		}
		packed := unpackZeroRuns(words[start+3 : end])
		beam := Beam{
			Azimuth:   float64(words[start+1]&dataMask) / 10,
			Elevation: float64(words[start+2]&dataMask) / 10,
			DBZ:       make([]float64, len(packed)),
			Clutter:   make([]bool, len(packed)),
		}
		for j, v := range packed {
			beam.DBZ[j] = ToDBZ(v)
			beam.Clutter[j] = v&clutterFlag != 0
		}
		sweep.Beams = append(sweep.Beams, beam)
	}

	if rays, _, ok := sweep.Rectangular(); !ok {
		d.logger.Warn("DX sweep is ragged, beams have unequal bin counts", "rays", rays)
	}

	return sweep, nil
}

// ToDBZ converts one rvp6 word to reflectivity in dBZ.
func ToDBZ(v uint16) float64 {
	return float64(v&dbzMask)*0.5 - 32.5
}

// beamStarts returns the indices of words equal to the azimuth marker
// bit alone. Values that merely contain the bit are data.
func beamStarts(words []uint16) []int {
	var marks []int
	for i, w := range words {
		if w == azimuthMark {
			marks = append(marks, i)
		}
	}
	return marks
}

// unpackZeroRuns expands the bit-13 zero compression of a beam's range
// bins. A flagged word's low 12 bits are a count of zero bins; any
// other word is one bin, kept verbatim so its clutter bit survives.
func unpackZeroRuns(words []uint16) []uint16 {
	var beam []uint16
	for _, w := range words {
		if w&zeroRunFlag != 0 {
			beam = append(beam, make([]uint16, w&dataMask)...)
		} else {
			beam = append(beam, w)
		}
	}
	return beam
}

// packZeroRuns is the inverse of unpackZeroRuns. The decoder has no
// write path; this exists so the zero-run expansion can be verified by
// round-trip.
func packZeroRuns(beam []uint16) []uint16 {
	var words []uint16
	run := 0
	flush := func() {
		for run > 0 {
			n := run
			if n > dataMask {
				n = dataMask
			}
			words = append(words, zeroRunFlag|uint16(n))
			run -= n
		}
	}
	for _, v := range beam {
		if v == 0 {
			run++
			continue
		}
		flush()
		words = append(words, v)
	}
	flush()
	return words
}
