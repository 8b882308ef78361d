package dx

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrMissingTag is returned when a required header tag marker is absent.
var ErrMissingTag = errors.New("missing header tag")

// Header holds the fields of a DX product header.
type Header struct {
	ProductType   string
	Timestamp     time.Time
	RadarID       string
	ByteLength    int // BY: total product length including header; may be off by one
	Version       string
	ClutterMap    int
	DopplerFilter int
	StatFilter    int
	ElevProfile   [8]float64 // one elevation per 45 degree sector
	Message       string
}

// The timestamp is stored in two non-contiguous slices: day/hour/minute
// at [2:8] and month/year at [13:17], with seconds always zero.
const timestampLayout = "021504010605"

// ParseHeader interprets the ASCII header of a DX product.
func ParseHeader(text string) (Header, error) {
	var h Header
	if len(text) < 17 {
		return h, fmt.Errorf("header too short: %d bytes", len(text))
	}
	h.ProductType = text[0:2]
	h.RadarID = text[8:13]

	ts, err := time.Parse(timestampLayout, text[2:8]+text[13:17]+"00")
	if err != nil {
		return h, fmt.Errorf("parsing header timestamp: %w", err)
	}
	h.Timestamp = ts.UTC()

	by, err := tagField(text, "BY", 5)
	if err != nil {
		return h, err
	}
	if h.ByteLength, err = strconv.Atoi(strings.TrimSpace(by)); err != nil {
		return h, fmt.Errorf("parsing BY field %q: %w", by, err)
	}
	if h.Version, err = tagField(text, "VS", 2); err != nil {
		return h, err
	}
	if h.ClutterMap, err = tagInt(text, "CO", 1); err != nil {
		return h, err
	}
	if h.DopplerFilter, err = tagInt(text, "CD", 1); err != nil {
		return h, err
	}
	if h.StatFilter, err = tagInt(text, "CS", 1); err != nil {
		return h, err
	}

	ep, err := tagField(text, "EP", 8*3)
	if err != nil {
		return h, err
	}
	for i := range h.ElevProfile {
		f := ep[3*i : 3*i+3]
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return h, fmt.Errorf("parsing EP sector %d value %q: %w", i, f, err)
		}
		h.ElevProfile[i] = v
	}

	// MS carries its own 3-digit length in front of the text. Locate the
	// tag once so the length field and the message bind to the same
	// occurrence.
	msPos := strings.Index(text, "MS")
	if msPos < 0 {
		return h, fmt.Errorf("%w: MS", ErrMissingTag)
	}
	lenField, err := fixedField(text, msPos+2, 3, "MS")
	if err != nil {
		return h, err
	}
	msLen, err := strconv.Atoi(strings.TrimSpace(lenField))
	if err != nil {
		return h, fmt.Errorf("parsing MS length %q: %w", lenField, err)
	}
	pos := msPos + 5
	if pos+msLen > len(text) {
		return h, fmt.Errorf("MS declares %d bytes but only %d remain", msLen, len(text)-pos)
	}
	h.Message = text[pos : pos+msLen]

	return h, nil
}

// tagField locates the first occurrence of tag and returns the
// fixed-width field that follows it.
func tagField(text, tag string, width int) (string, error) {
	pos := strings.Index(text, tag)
	if pos < 0 {
		return "", fmt.Errorf("%w: %s", ErrMissingTag, tag)
	}
	return fixedField(text, pos+len(tag), width, tag)
}

func fixedField(text string, start, width int, tag string) (string, error) {
	if start+width > len(text) {
		return "", fmt.Errorf("tag %s field truncated: need %d bytes, have %d", tag, width, len(text)-start)
	}
	return text[start : start+width], nil
}

func tagInt(text, tag string, width int) (int, error) {
	f, err := tagField(text, tag, width)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(strings.TrimSpace(f))
	if err != nil {
		return 0, fmt.Errorf("parsing %s field %q: %w", tag, f, err)
	}
	return v, nil
}

// raa00-dx_10488-200608050000-drs---bin
var filenamePattern = regexp.MustCompile(`raa..-(..)[_-]([0-9]{5})-([0-9]*)-(.*?)---bin`)

// TimestampFromFilename extracts the UTC timestamp encoded in a DWD
// product filename. Ten-digit timestamps lack the century and are taken
// to mean 20xx.
func TimestampFromFilename(name string) (time.Time, error) {
	m := filenamePattern.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, fmt.Errorf("filename %q does not match the DWD product pattern", name)
	}
	ts := m[3]
	if len(ts) == 10 {
		ts = "20" + ts
	}
	t, err := time.Parse("200601021504", ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing filename timestamp %q: %w", ts, err)
	}
	return t.UTC(), nil
}
