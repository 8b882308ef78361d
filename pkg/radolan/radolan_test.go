package radolan

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// buildComposite assembles a synthetic RADOLAN file around payload.
func buildComposite(product, radarID string, rows, cols, exp int, payload []byte) []byte {
	header := product + "021455" + radarID + "0608" +
		"VS 3" + "SW   2.13.1" + fmt.Sprintf("PR E%+03d", exp) +
		"INT  60" + fmt.Sprintf("GP%4dx%4d", rows, cols) +
		"MS 18<boo,ros,emd,han>"
	return append([]byte(header+"\x03"), payload...)
}

func words(vs ...uint16) []byte {
	buf := make([]byte, 2*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint16(buf[2*i:], v)
	}
	return buf
}

func TestParseHeader(t *testing.T) {
	raw := buildComposite("RW", "10000", 900, 900, -2, nil)
	h, err := ParseHeader(string(raw[:len(raw)-1]))
	require.NoError(t, err)

	assert.Equal(t, "RW", h.ProductType)
	assert.Equal(t, "10000", h.RadarID)
	assert.Equal(t, time.Date(2008, 6, 2, 14, 55, 0, 0, time.UTC), h.Timestamp)
	assert.Equal(t, "150 km", h.MaxRange)
	assert.Equal(t, "   2.13.1", h.Version)
	assert.InDelta(t, 0.01, h.Precision, 1e-15)
	assert.Equal(t, 3600, h.IntervalSeconds)
	assert.Equal(t, 900, h.Rows)
	assert.Equal(t, 900, h.Cols)
	assert.Equal(t, []string{"boo", "ros", "emd", "han"}, h.RadarLocations)
}

func TestParseHeader_DefaultMaxRange(t *testing.T) {
	// Files predating the VS field mean 100 km.
	header := "RW021455100000608" +
		"SW   2.13.1PR E-02INT  60GP   2x   2MS 18<boo,ros,emd,han>"
	h, err := ParseHeader(header)
	require.NoError(t, err)
	assert.Equal(t, "100 km", h.MaxRange)
}

func TestParseHeader_MissingTag(t *testing.T) {
	_, err := ParseHeader("RW021455100000608GP   2x   2")
	assert.ErrorIs(t, err, ErrMissingTag)
}

func TestDecode_RX(t *testing.T) {
	// Scenario: 2x2 grid of bytes 10, 20, 250, 249.
	raw := buildComposite("RX", "10000", 2, 2, 0, []byte{10, 20, 250, 249})

	comp, err := NewDecoder(testLogger()).Decode(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, 10.0, comp.At(0, 0))
	assert.Equal(t, 20.0, comp.At(0, 1))
	assert.Equal(t, float64(DefaultNoData), comp.At(1, 0))
	// Clutter cells keep their value and land in the index set.
	assert.Equal(t, 249.0, comp.At(1, 1))
	assert.Equal(t, []int{3}, comp.Clutter)
}

func TestDecode_RX_PayloadStartsWithETX(t *testing.T) {
	// A leading cell value of 3 matches the header terminator byte and
	// must decode as data, not vanish into the terminator run.
	raw := buildComposite("RX", "10000", 2, 2, 0, []byte{3, 20, 250, 249})

	comp, err := NewDecoder(testLogger()).Decode(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, 3.0, comp.At(0, 0))
	assert.Equal(t, 20.0, comp.At(0, 1))
	assert.Equal(t, float64(DefaultNoData), comp.At(1, 0))
	assert.Equal(t, 249.0, comp.At(1, 1))
}

func TestDecode_Words_PayloadStartsWithETX(t *testing.T) {
	// 16-bit cells whose low byte is 0x03 are equally at risk.
	raw := buildComposite("RW", "10000", 1, 2, 0, words(0x0003, 0x0103))

	comp, err := NewDecoder(testLogger()).Decode(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, 3.0, comp.At(0, 0))
	assert.Equal(t, 259.0, comp.At(0, 1))
}

func TestDecode_RX_NoDataAcrossSizes(t *testing.T) {
	for _, n := range []int{1, 2, 3} {
		payload := bytes.Repeat([]byte{250}, n*n)
		raw := buildComposite("RX", "10000", n, n, 0, payload)

		comp, err := NewDecoder(testLogger()).Decode(context.Background(), raw)
		require.NoError(t, err)
		for _, v := range comp.Data {
			assert.Equal(t, float64(DefaultNoData), v)
		}
	}
}

func TestDecode_Words_PrecisionScaling(t *testing.T) {
	for exp := -3; exp <= 3; exp++ {
		raw := buildComposite("RW", "10000", 1, 2, exp, words(1234, 0x0FFF))

		comp, err := NewDecoder(testLogger()).Decode(context.Background(), raw)
		require.NoError(t, err)

		precision := math.Pow(10, float64(exp))
		assert.InEpsilon(t, 1234*precision, comp.At(0, 0), 1e-12, "exp %d", exp)
		assert.InEpsilon(t, 4095*precision, comp.At(0, 1), 1e-12, "exp %d", exp)
	}
}

func TestDecode_Words_Flags(t *testing.T) {
	raw := buildComposite("RW", "10000", 2, 2, 0,
		words(100, nodataFlag|77, clutterFlag|200, negativeFlag|300))

	comp, err := NewDecoder(testLogger()).Decode(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, 100.0, comp.At(0, 0))
	assert.Equal(t, float64(DefaultNoData), comp.At(0, 1))
	assert.Equal(t, 200.0, comp.At(1, 0))
	assert.Equal(t, []int{2}, comp.Clutter)
	// The sign bit is ignored for anything but RD.
	assert.Equal(t, 300.0, comp.At(1, 1))
}

func TestDecode_RD_NegativeFlag(t *testing.T) {
	raw := buildComposite("RD", "10000", 1, 2, -1, words(negativeFlag|50, 50))

	comp, err := NewDecoder(testLogger()).Decode(context.Background(), raw)
	require.NoError(t, err)

	assert.InEpsilon(t, -5.0, comp.At(0, 0), 1e-12)
	assert.InEpsilon(t, 5.0, comp.At(0, 1), 1e-12)
}

func TestDecode_CustomNoData(t *testing.T) {
	raw := buildComposite("RW", "10000", 1, 1, 0, words(nodataFlag))

	comp, err := NewDecoder(testLogger(), WithNoData(math.NaN())).
		Decode(context.Background(), raw)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(comp.At(0, 0)))
}

func TestDecode_TruncatedPayload(t *testing.T) {
	raw := buildComposite("RW", "10000", 2, 2, 0, words(1, 2))
	_, err := NewDecoder(testLogger()).Decode(context.Background(), raw)
	assert.ErrorIs(t, err, ErrTruncatedPayload)
}

func TestDecode_NonCompositeWarns(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	raw := buildComposite("RW", "10132", 1, 1, 0, words(42))
	comp, err := NewDecoder(logger).Decode(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, 42.0, comp.At(0, 0))
	assert.Contains(t, buf.String(), "radarid=10132")
}

func TestProducts(t *testing.T) {
	products, err := Products()
	require.NoError(t, err)

	assert.Equal(t, 1, products["RX"].CellBytes)
	assert.Equal(t, 2, products["RW"].CellBytes)
	assert.Equal(t, 2, products["RD"].CellBytes)

	// Unknown products fall back to the 2-byte path.
	p, err := lookupProduct("ZZ")
	require.NoError(t, err)
	assert.Equal(t, 2, p.CellBytes)
}
