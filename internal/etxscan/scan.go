// Package etxscan reads the ASCII preamble of DWD radar products.
//
// DWD DX and RADOLAN files open with a printable header that is
// terminated by an ETX control byte (0x03). DX files sometimes carry a
// second ETX directly after the first; it belongs to the header region
// but not to the header text.
package etxscan

import (
	"errors"
	"fmt"
	"io"

	"github.com/kaitai-io/kaitai_struct_go_runtime/kaitai"
	"golang.org/x/text/encoding/charmap"
)

// ETX terminates the ASCII header of DWD products.
const ETX = 0x03

// ErrTruncatedHeader is returned when the byte source ends before an
// ETX terminator is found.
var ErrTruncatedHeader = errors.New("truncated header: no ETX terminator")

// Scan consumes the ASCII header from s up to and including the ETX
// terminator run. It returns the header text (decoded from Latin-1,
// which DWD uses for station names and free-text messages) and the
// offset of the first payload byte.
//
// A second ETX immediately after the first is consumed but excluded
// from the text. Scan never reads past the byte following the
// terminator run; on a single ETX the stream is left positioned at the
// first payload byte. Use ScanSingle for formats that never double the
// terminator.
func Scan(s *kaitai.Stream) (string, int, error) {
	return scan(s, true)
}

// ScanSingle stops at the first ETX, leaving every following byte to
// the payload. RADOLAN composites end their header this way, and their
// grid may legitimately open with a 0x03 cell byte.
func ScanSingle(s *kaitai.Stream) (string, int, error) {
	return scan(s, false)
}

func scan(s *kaitai.Stream, absorbDoubled bool) (string, int, error) {
	var buf []byte
	for {
		b, err := s.ReadU1()
		if err != nil {
			return "", 0, fmt.Errorf("%w (after %d bytes)", ErrTruncatedHeader, len(buf))
		}
		if b == ETX {
			break
		}
		buf = append(buf, b)
	}

	offset := len(buf) + 1

	if absorbDoubled {
		// Absorb a doubled terminator. Anything else is payload and must
		// be handed back.
		b, err := s.ReadU1()
		switch {
		case err != nil:
			// Header with no payload, position is already at EOF.
		case b == ETX:
			offset++
		default:
			pos, err := s.Pos()
			if err != nil {
				return "", 0, fmt.Errorf("rewinding past terminator: %w", err)
			}
			if _, err := s.Seek(pos-1, io.SeekStart); err != nil {
				return "", 0, fmt.Errorf("rewinding past terminator: %w", err)
			}
		}
	}

	text, err := charmap.ISO8859_1.NewDecoder().Bytes(buf)
	if err != nil {
		return "", 0, fmt.Errorf("decoding header text: %w", err)
	}
	return string(text), offset, nil
}
