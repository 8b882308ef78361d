package rainbow

import (
	"fmt"
	"strconv"
)

// BlobDescriptor collects the data-layout attributes of one blob-id
// bearing header node. Compression and byte size are declared on the
// BLOB record itself, not here; see BlobBytes.
type BlobDescriptor struct {
	ID    int
	Depth int // bits per element; 0 when the node does not declare it
	Rays  int
	Bins  int // from "bins", or "columns" for cartesian products; 0 when absent
}

// FindBlobDescriptors walks the whole tree and returns a descriptor for
// every node carrying a blobid attribute, in document order, regardless
// of nesting depth.
func FindBlobDescriptors(root *Node) ([]BlobDescriptor, error) {
	var descs []BlobDescriptor
	var walk func(n *Node) error
	walk = func(n *Node) error {
		if raw, ok := n.Attr("blobid"); ok {
			id, err := strconv.Atoi(raw)
			if err != nil {
				return fmt.Errorf("node %s has malformed blobid %q: %w", n.Name, raw, err)
			}
			d := BlobDescriptor{ID: id}
			if d.Depth, err = optionalInt(n, "depth"); err != nil {
				return err
			}
			if d.Rays, err = optionalInt(n, "rays"); err != nil {
				return err
			}
			if d.Bins, err = optionalInt(n, "bins"); err != nil {
				return err
			}
			if d.Bins == 0 {
				if d.Bins, err = optionalInt(n, "columns"); err != nil {
					return err
				}
			}
			descs = append(descs, d)
		}
		for _, name := range n.order {
			for _, child := range n.buckets[name] {
				if err := walk(child); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}
	return descs, nil
}

func optionalInt(n *Node, attr string) (int, error) {
	raw, ok := n.Attr(attr)
	if !ok {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("node %s has malformed %s attribute %q: %w", n.Name, attr, raw, err)
	}
	return v, nil
}
