// Package rainbow decodes the Rainbow radar container format: an XML
// header describing the product, followed by self-describing binary
// BLOB records located by id.
//
// The header is modelled as a generic tree (Node) navigated by
// slash-delimited paths, because Rainbow products nest their data
// nodes differently per product type. Blob payloads are found by their
// header-declared ids and typed by their declared bit depth.
package rainbow

import (
	"context"
	"fmt"
	"log/slog"
)

// File is a fully decoded Rainbow file: the header tree plus every
// blob the header declares, keyed by blob id.
type File struct {
	Root  *Node
	Blobs map[int]*Blob
}

// Reader decodes Rainbow files.
type Reader struct {
	logger *slog.Logger
}

// NewReader returns a Reader logging through logger, or slog.Default()
// when logger is nil.
func NewReader(logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{logger: logger}
}

// ReadHeader parses only the XML header tree, leaving blob payloads
// untouched.
func (r *Reader) ReadHeader(ctx context.Context, raw []byte) (*Node, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return ParseHeader(raw)
}

// Read parses the header tree, discovers every blob descriptor in it
// and decodes the corresponding blob records.
func (r *Reader) Read(ctx context.Context, raw []byte) (*File, error) {
	root, err := r.ReadHeader(ctx, raw)
	if err != nil {
		return nil, err
	}
	descs, err := FindBlobDescriptors(root)
	if err != nil {
		return nil, err
	}

	file := &File{Root: root, Blobs: make(map[int]*Blob, len(descs))}
	for _, desc := range descs {
		data, err := BlobBytes(raw, desc.ID)
		if err != nil {
			return nil, fmt.Errorf("extracting blob %d: %w", desc.ID, err)
		}
		blob, err := DecodeBlob(data, desc)
		if err != nil {
			return nil, err
		}
		r.logger.Debug("decoded blob",
			"blobid", desc.ID, "depth", desc.Depth, "elements", blob.Len())
		file.Blobs[desc.ID] = blob
	}
	return file, nil
}
