package rainbow

import (
	"bytes"
	"compress/zlib"
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// appendBlobRecord appends one BLOB record in wire form: opening tag,
// line terminator, payload, line terminator, closing line.
func appendBlobRecord(raw []byte, id int, compression string, payload []byte) []byte {
	raw = append(raw, fmt.Sprintf("<BLOB blobid=\"%d\" compression=\"%s\" size=\"%d\">\n",
		id, compression, len(payload))...)
	raw = append(raw, payload...)
	raw = append(raw, "\n</BLOB>\n"...)
	return raw
}

func qtCompress(t *testing.T, plain []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	// The 4-byte prefix is skipped by the reader; content is irrelevant.
	buf.Write([]byte{0, 0, 0, byte(len(plain))})
	zw := zlib.NewWriter(&buf)
	_, err := zw.Write(plain)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestBlobBytes_Uncompressed(t *testing.T) {
	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	raw := []byte("<product/>\n<!-- END XML -->\n")
	raw = appendBlobRecord(raw, 0, "none", payload)
	raw = appendBlobRecord(raw, 1, "none", []byte{9, 9})

	data, err := BlobBytes(raw, 0)
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	data, err = BlobBytes(raw, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 9}, data)
}

func TestBlobBytes_QtCompressed(t *testing.T) {
	plain := []byte("qt compressed blob payload")
	raw := appendBlobRecord([]byte("<product/>\n<!-- END XML -->\n"),
		0, "qt", qtCompress(t, plain))

	data, err := BlobBytes(raw, 0)
	require.NoError(t, err)
	assert.Equal(t, plain, data)
}

func TestBlobBytes_NotFound(t *testing.T) {
	raw := appendBlobRecord([]byte("<product/>\n"), 0, "none", []byte{1})
	_, err := BlobBytes(raw, 7)
	assert.ErrorIs(t, err, ErrBlobNotFound)
}

func TestBlobBytes_TruncatedPayload(t *testing.T) {
	raw := []byte("<BLOB blobid=\"0\" compression=\"none\" size=\"100\">\nshort")
	_, err := BlobBytes(raw, 0)
	assert.ErrorIs(t, err, ErrTruncatedPayload)
}

func TestBlobBytes_DecompressionFailure(t *testing.T) {
	bogus := []byte{0, 0, 0, 0, 0xDE, 0xAD, 0xBE, 0xEF}
	raw := appendBlobRecord([]byte("<product/>\n"), 0, "qt", bogus)
	_, err := BlobBytes(raw, 0)
	assert.ErrorIs(t, err, ErrDecompress)
}

func TestBlobBytes_TagPrecedence(t *testing.T) {
	// The record's own tag wins over whatever the header tree said, so
	// a size from the tag must bound the returned bytes.
	payload := []byte{1, 2, 3, 4}
	raw := appendBlobRecord([]byte("<product/>\n"), 5, "none", payload)
	raw = append(raw, "trailing garbage"...)

	data, err := BlobBytes(raw, 5)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestDecodeBlob_Depth8(t *testing.T) {
	blob, err := DecodeBlob([]byte{10, 20, 30}, BlobDescriptor{ID: 0, Depth: 8})
	require.NoError(t, err)
	assert.Equal(t, []uint8{10, 20, 30}, blob.Uint8)
	assert.Equal(t, 3, blob.Len())
	_, _, shaped := blob.Shape()
	assert.False(t, shaped)
}

func TestDecodeBlob_Depth16Shaped(t *testing.T) {
	// Scenario: depth=16, rays=2, bins=4, eight values in the
	// documented non-native byte order.
	values := []uint16{1, 2, 3, 4, 500, 600, 700, 800}
	order := blobByteOrder()
	data := make([]byte, 2*len(values))
	for i, v := range values {
		order.PutUint16(data[2*i:], v)
	}

	blob, err := DecodeBlob(data, BlobDescriptor{ID: 3, Depth: 16, Rays: 2, Bins: 4})
	require.NoError(t, err)

	rays, bins, shaped := blob.Shape()
	assert.True(t, shaped)
	assert.Equal(t, 2, rays)
	assert.Equal(t, 4, bins)
	assert.Equal(t, values, blob.Uint16)
	assert.Equal(t, uint32(600), blob.AtRayBin(1, 1))
}

func TestDecodeBlob_Depth32(t *testing.T) {
	order := blobByteOrder()
	data := make([]byte, 8)
	order.PutUint32(data, 70000)
	order.PutUint32(data[4:], 1)

	blob, err := DecodeBlob(data, BlobDescriptor{ID: 1, Depth: 32})
	require.NoError(t, err)
	assert.Equal(t, []uint32{70000, 1}, blob.Uint32)
}

func TestDecodeBlob_InvalidDepth(t *testing.T) {
	for _, depth := range []int{0, 1, 12, 24, 64} {
		_, err := DecodeBlob([]byte{1, 2}, BlobDescriptor{Depth: depth})
		assert.ErrorIs(t, err, ErrInvalidDepth, "depth %d", depth)
	}
}

func TestDecodeBlob_ShapeMismatch(t *testing.T) {
	_, err := DecodeBlob(make([]byte, 6), BlobDescriptor{Depth: 16, Rays: 2, Bins: 4})
	assert.Error(t, err)

	_, err = DecodeBlob(make([]byte, 6), BlobDescriptor{Depth: 16, Bins: 3})
	assert.Error(t, err)
}

func TestRead_FullFile(t *testing.T) {
	header := `<product version="5.34">
  <data>
    <rawdata blobid="0" depth="16" rays="2" bins="4"/>
  </data>
</product>
<!-- END XML -->
`
	values := []uint16{11, 22, 33, 44, 55, 66, 77, 88}
	order := blobByteOrder()
	payload := make([]byte, 2*len(values))
	for i, v := range values {
		order.PutUint16(payload[2*i:], v)
	}
	raw := appendBlobRecord([]byte(header), 0, "none", payload)

	reader := NewReader(slog.New(slog.NewTextHandler(io.Discard, nil)))
	file, err := reader.Read(context.Background(), raw)
	require.NoError(t, err)

	require.Contains(t, file.Blobs, 0)
	blob := file.Blobs[0]
	assert.Equal(t, values, blob.Uint16)
	rays, bins, shaped := blob.Shape()
	assert.True(t, shaped)
	assert.Equal(t, 2, rays)
	assert.Equal(t, 4, bins)

	assert.Equal(t, "5.34", file.Root.Attrs["version"])
}

func TestRead_HeaderOnly(t *testing.T) {
	header := `<product><rawdata blobid="9" depth="8"/></product>
<!-- END XML -->
`
	reader := NewReader(nil)
	root, err := reader.ReadHeader(context.Background(), []byte(header))
	require.NoError(t, err)
	assert.NotNil(t, root.Node("rawdata@blobid"))

	// Reading blobs must fail: the file declares one but carries none.
	_, err = reader.Read(context.Background(), []byte(header))
	assert.ErrorIs(t, err, ErrBlobNotFound)
}
