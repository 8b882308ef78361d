package rainbow

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrBlobNotFound is returned when no BLOB record with the requested
	// id exists in the data section.
	ErrBlobNotFound = errors.New("blob not found")
	// ErrInvalidDepth is returned for bit depths other than 8, 16 or 32.
	ErrInvalidDepth = errors.New("invalid data depth")
	// ErrTruncatedPayload is returned when a BLOB record declares more
	// bytes than the file holds.
	ErrTruncatedPayload = errors.New("truncated blob payload")
	// ErrDecompress is returned when a qt-compressed payload does not
	// inflate.
	ErrDecompress = errors.New("blob decompression failed")
)

// blobTag mirrors the attributes of one BLOB opening tag.
type blobTag struct {
	Compression string `xml:"compression,attr"`
	Size        int    `xml:"size,attr"`
}

// BlobBytes locates the BLOB record with the given id in the raw file
// content and returns its payload, decompressed if necessary.
//
// Compression and size are re-read from the record's own opening tag;
// those values take precedence over anything the header tree declares.
func BlobBytes(raw []byte, id int) ([]byte, error) {
	marker := fmt.Sprintf(`<BLOB blobid="%d"`, id)
	start := bytes.Index(raw, []byte(marker))
	if start < 0 {
		return nil, fmt.Errorf("%w: blobid %d", ErrBlobNotFound, id)
	}
	rel := bytes.IndexByte(raw[start:], '>')
	if rel < 0 {
		return nil, fmt.Errorf("%w: blob %d opening tag unterminated", ErrTruncatedPayload, id)
	}
	end := start + rel

	// The data section is not well-formed XML, so the opening tag is
	// parsed on its own with a synthetic closing tag.
	tag := append(bytes.Clone(raw[start:end+1]), []byte("</BLOB>")...)
	var bt blobTag
	if err := xml.Unmarshal(tag, &bt); err != nil {
		return nil, fmt.Errorf("parsing blob %d opening tag: %w", id, err)
	}

	// Payload starts two bytes after '>', skipping the line terminator.
	payloadStart := end + 2
	if payloadStart+bt.Size > len(raw) {
		return nil, fmt.Errorf("%w: blob %d declares %d bytes, %d available",
			ErrTruncatedPayload, id, bt.Size, len(raw)-payloadStart)
	}
	data := raw[payloadStart : payloadStart+bt.Size]

	if bt.Compression == "qt" {
		// The first four bytes are dropped; their meaning is unknown but
		// the format requires it.
		if len(data) < 4 {
			return nil, fmt.Errorf("%w: blob %d qt payload shorter than its 4-byte prefix",
				ErrTruncatedPayload, id)
		}
		zr, err := zlib.NewReader(bytes.NewReader(data[4:]))
		if err != nil {
			return nil, fmt.Errorf("%w: blob %d: %v", ErrDecompress, id, err)
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("%w: blob %d: %v", ErrDecompress, id, err)
		}
		return out, nil
	}
	return bytes.Clone(data), nil
}

// Blob is one decoded data blob. Exactly one of Uint8, Uint16 or Uint32
// is populated, matching the declared bit depth. Rays and Bins are zero
// for flat blobs.
type Blob struct {
	ID    int
	Depth int
	Rays  int
	Bins  int

	Uint8  []uint8
	Uint16 []uint16
	Uint32 []uint32
}

// Len returns the number of elements.
func (b *Blob) Len() int {
	switch b.Depth {
	case 8:
		return len(b.Uint8)
	case 16:
		return len(b.Uint16)
	default:
		return len(b.Uint32)
	}
}

// At returns the element at flat index i, widened to uint32.
func (b *Blob) At(i int) uint32 {
	switch b.Depth {
	case 8:
		return uint32(b.Uint8[i])
	case 16:
		return uint32(b.Uint16[i])
	default:
		return b.Uint32[i]
	}
}

// AtRayBin returns the element at (ray, bin) of a shaped blob.
func (b *Blob) AtRayBin(ray, bin int) uint32 {
	return b.At(ray*b.Bins + bin)
}

// Shape reports the (rays, bins) shape; ok is false for flat blobs.
func (b *Blob) Shape() (rays, bins int, ok bool) {
	return b.Rays, b.Bins, b.Rays > 0 && b.Bins > 0
}

var hostIsLittle = binary.NativeEndian.Uint16([]byte{0x01, 0x00}) == 1

// blobByteOrder is the order blob payloads decode in. The reference
// reader byte-swaps against the host, so the effective order is the
// opposite of host-native, whichever that is.
func blobByteOrder() binary.ByteOrder {
	if hostIsLittle {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// DecodeBlob types and shapes one extracted payload according to its
// descriptor.
func DecodeBlob(data []byte, desc BlobDescriptor) (*Blob, error) {
	var width int
	switch desc.Depth {
	case 8:
		width = 1
	case 16:
		width = 2
	case 32:
		width = 4
	default:
		return nil, fmt.Errorf("%w: %d (conversion only for depth 8, 16, 32)",
			ErrInvalidDepth, desc.Depth)
	}

	order := blobByteOrder()
	n := len(data) / width
	b := &Blob{ID: desc.ID, Depth: desc.Depth}
	switch width {
	case 1:
		b.Uint8 = bytes.Clone(data[:n])
	case 2:
		b.Uint16 = make([]uint16, n)
		for i := range b.Uint16 {
			b.Uint16[i] = order.Uint16(data[2*i:])
		}
	case 4:
		b.Uint32 = make([]uint32, n)
		for i := range b.Uint32 {
			b.Uint32[i] = order.Uint32(data[4*i:])
		}
	}

	if desc.Bins > 0 {
		if desc.Rays <= 0 {
			return nil, fmt.Errorf("blob %d declares bins=%d but no rays", desc.ID, desc.Bins)
		}
		if desc.Rays*desc.Bins != n {
			return nil, fmt.Errorf("blob %d: %d elements do not fill rays=%d x bins=%d",
				desc.ID, n, desc.Rays, desc.Bins)
		}
		b.Rays, b.Bins = desc.Rays, desc.Bins
	}
	return b, nil
}
