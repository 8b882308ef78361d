package radolan

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrMissingTag is returned when a required header tag marker is absent.
var ErrMissingTag = errors.New("missing header tag")

// Header holds the fields of a RADOLAN composite header.
type Header struct {
	ProductType     string
	Timestamp       time.Time
	RadarID         string // "10000" for national composites
	MaxRange        string
	Version         string // SW: RADOLAN software version
	Precision       float64
	IntervalSeconds int
	Rows            int
	Cols            int
	RadarLocations  []string
}

// maxRangeByCode maps the VS field to the contributing radars' maximum
// range. Files without a VS field predate the code and mean 100 km.
var maxRangeByCode = map[int]string{
	0: "100 km and 128 km (mixed)",
	1: "100 km",
	2: "128 km",
	3: "150 km",
}

// ParseHeader interprets the ASCII header of a RADOLAN composite.
func ParseHeader(text string) (Header, error) {
	var h Header
	if len(text) < 17 {
		return h, fmt.Errorf("header too short: %d bytes", len(text))
	}
	h.ProductType = text[0:2]
	h.RadarID = text[8:13]

	ts, err := time.Parse("021504010605", text[2:8]+text[13:17]+"00")
	if err != nil {
		return h, fmt.Errorf("parsing header timestamp: %w", err)
	}
	h.Timestamp = ts.UTC()

	h.MaxRange = "100 km"
	if pos := strings.Index(text, "VS"); pos >= 0 {
		code, err := fieldInt(text, pos+2, 2, "VS")
		if err != nil {
			return h, err
		}
		r, ok := maxRangeByCode[code]
		if !ok {
			return h, fmt.Errorf("unknown VS range code %d", code)
		}
		h.MaxRange = r
	}

	pos := strings.Index(text, "SW")
	if pos < 0 {
		return h, fmt.Errorf("%w: SW", ErrMissingTag)
	}
	if h.Version, err = field(text, pos+2, 9, "SW"); err != nil {
		return h, err
	}

	pos = strings.Index(text, "PR")
	if pos < 0 {
		return h, fmt.Errorf("%w: PR", ErrMissingTag)
	}
	// The exponent sits behind the "E" of e.g. "PR E-02".
	exp, err := fieldInt(text, pos+4, 3, "PR")
	if err != nil {
		return h, err
	}
	h.Precision = math.Pow(10, float64(exp))

	pos = strings.Index(text, "INT")
	if pos < 0 {
		return h, fmt.Errorf("%w: INT", ErrMissingTag)
	}
	minutes, err := fieldInt(text, pos+3, 4, "INT")
	if err != nil {
		return h, err
	}
	h.IntervalSeconds = minutes * 60

	pos = strings.Index(text, "GP")
	if pos < 0 {
		return h, fmt.Errorf("%w: GP", ErrMissingTag)
	}
	dims, err := field(text, pos+2, 9, "GP")
	if err != nil {
		return h, err
	}
	parts := strings.Split(strings.TrimSpace(dims), "x")
	if len(parts) != 2 {
		return h, fmt.Errorf("GP field %q is not ROWSxCOLS", dims)
	}
	if h.Rows, err = strconv.Atoi(strings.TrimSpace(parts[0])); err != nil {
		return h, fmt.Errorf("parsing GP rows %q: %w", parts[0], err)
	}
	if h.Cols, err = strconv.Atoi(strings.TrimSpace(parts[1])); err != nil {
		return h, fmt.Errorf("parsing GP cols %q: %w", parts[1], err)
	}

	pos = strings.Index(text, "MS")
	if pos < 0 {
		return h, fmt.Errorf("%w: MS", ErrMissingTag)
	}
	// The station list is wrapped in angle brackets somewhere behind MS.
	rest := strings.TrimSpace(text[pos+2:])
	open := strings.Index(rest, "<")
	if open < 0 {
		return h, fmt.Errorf("MS field %q has no station list", rest)
	}
	list := strings.TrimSuffix(strings.TrimSpace(rest[open+1:]), ">")
	for _, loc := range strings.Split(list, ",") {
		h.RadarLocations = append(h.RadarLocations, strings.TrimSpace(loc))
	}

	return h, nil
}

func field(text string, start, width int, tag string) (string, error) {
	if start+width > len(text) {
		return "", fmt.Errorf("tag %s field truncated: need %d bytes, have %d", tag, width, len(text)-start)
	}
	return text[start : start+width], nil
}

func fieldInt(text string, start, width int, tag string) (int, error) {
	f, err := field(text, start, width, tag)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(strings.TrimSpace(f))
	if err != nil {
		return 0, fmt.Errorf("parsing %s field %q: %w", tag, f, err)
	}
	return v, nil
}
