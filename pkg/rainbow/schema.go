package rainbow

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// endXMLMarker terminates the XML header of a Rainbow file. Everything
// after it is the binary data section.
const endXMLMarker = "<!-- END XML -->"

// Node is one element of a Rainbow header tree. Children sharing a tag
// name are grouped into one bucket, keeping file order within it; the
// buckets themselves are kept in order of first appearance.
type Node struct {
	Name  string
	Attrs map[string]string
	Text  string

	order   []string
	buckets map[string][]*Node
}

func newNode(name string) *Node {
	return &Node{
		Name:    name,
		Attrs:   make(map[string]string),
		buckets: make(map[string][]*Node),
	}
}

func (n *Node) addChild(child *Node) {
	if _, ok := n.buckets[child.Name]; !ok {
		n.order = append(n.order, child.Name)
	}
	n.buckets[child.Name] = append(n.buckets[child.Name], child)
}

// Attr returns the named attribute value.
func (n *Node) Attr(name string) (string, bool) {
	v, ok := n.Attrs[name]
	return v, ok
}

// Children returns the bucket of direct children with the given tag
// name, in file order.
func (n *Node) Children(name string) []*Node {
	return n.buckets[name]
}

// NodeList resolves a slash-separated path where each segment is
// "name", "name@attr" or "name@attr=value". Intermediate segments
// resolve to the first matching node of their bucket; the terminal
// segment returns all matches. A segment without matches yields an
// empty result.
func (n *Node) NodeList(path string) []*Node {
	cur := n
	var matches []*Node
	for _, seg := range strings.Split(path, "/") {
		tag, attr, val, hasVal := splitSegment(seg)
		bucket, ok := cur.buckets[tag]
		if !ok {
			return nil
		}
		matches = bucket
		if attr != "" {
			var filtered []*Node
			for _, m := range matches {
				v, ok := m.Attr(attr)
				if !ok || (hasVal && v != val) {
					continue
				}
				filtered = append(filtered, m)
			}
			matches = filtered
		}
		if len(matches) == 0 {
			break
		}
		cur = matches[0]
	}
	return matches
}

// Node returns the first node matching path, or nil.
func (n *Node) Node(path string) *Node {
	if matches := n.NodeList(path); len(matches) > 0 {
		return matches[0]
	}
	return nil
}

func splitSegment(seg string) (tag, attr, val string, hasVal bool) {
	tag = seg
	if i := strings.Index(seg, "@"); i >= 0 {
		tag, attr = seg[:i], seg[i+1:]
		if j := strings.Index(attr, "="); j >= 0 {
			attr, val, hasVal = attr[:j], attr[j+1:], true
		}
	}
	return tag, attr, val, hasVal
}

// AsMap renders the subtree in the conventional XML-to-map shape:
// attributes under "@name", text under "#text", single children as a
// map, repeated children as a list.
func (n *Node) AsMap() map[string]any {
	m := make(map[string]any)
	for k, v := range n.Attrs {
		m["@"+k] = v
	}
	if n.Text != "" {
		m["#text"] = n.Text
	}
	for _, name := range n.order {
		bucket := n.buckets[name]
		if len(bucket) == 1 {
			m[name] = bucket[0].AsMap()
		} else {
			list := make([]any, len(bucket))
			for i, c := range bucket {
				list[i] = c.AsMap()
			}
			m[name] = list
		}
	}
	return m
}

// ParseHeader builds the header tree from a raw Rainbow file. The XML
// text runs up to the end-of-XML marker; files without the marker are
// all header.
func ParseHeader(raw []byte) (*Node, error) {
	xmlText := raw
	if idx := bytes.Index(raw, []byte(endXMLMarker)); idx >= 0 {
		xmlText = raw[:idx]
	}

	dec := xml.NewDecoder(bytes.NewReader(xmlText))
	var root *Node
	var stack []*Node
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing header XML: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := newNode(t.Name.Local)
			for _, a := range t.Attr {
				n.Attrs[a.Name.Local] = a.Value
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("header has more than one root element (%s, %s)", root.Name, n.Name)
				}
				root = n
			} else {
				stack[len(stack)-1].addChild(n)
			}
			stack = append(stack, n)
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += strings.TrimSpace(string(t))
			}
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		}
	}
	if root == nil {
		return nil, errors.New("no XML header found")
	}
	return root, nil
}
