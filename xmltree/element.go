// Package xmltree provides a small namespace-aware, mutable XML tree built
// directly on encoding/xml tokens. It is shared by the RPC Dispatcher, which
// uses it to pick apart <filter>/<target>/<config> request bodies, and the
// Merge Engine, which edits it in place.
package xmltree

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Element is one node of a parsed XML document.
type Element struct {
	Space    string
	Tag      string
	Attr     map[string]string
	Text     string
	Children []*Element
}

// New returns an empty element with the given namespace and local name.
func New(space, tag string) *Element {
	return &Element{Space: space, Tag: tag, Attr: map[string]string{}}
}

// TrimmedText returns e's character data with leading/trailing whitespace removed.
func (e *Element) TrimmedText() string {
	return strings.TrimSpace(e.Text)
}

// Find returns the first child whose local name matches tag, ignoring namespace.
func (e *Element) Find(tag string) *Element {
	for _, c := range e.Children {
		if c.Tag == tag {
			return c
		}
	}
	return nil
}

// FindAll returns every child whose local name matches tag, ignoring namespace.
func (e *Element) FindAll(tag string) []*Element {
	var out []*Element
	for _, c := range e.Children {
		if c.Tag == tag {
			out = append(out, c)
		}
	}
	return out
}

// IndexOf returns the index of child within e.Children, or -1 if not found.
func (e *Element) IndexOf(child *Element) int {
	for i, c := range e.Children {
		if c == child {
			return i
		}
	}
	return -1
}

// Append adds child as the last child of e.
func (e *Element) Append(child *Element) {
	e.Children = append(e.Children, child)
}

// InsertAt inserts child at position i, clamped to a valid index.
func (e *Element) InsertAt(i int, child *Element) {
	if i < 0 {
		i = 0
	}
	if i > len(e.Children) {
		i = len(e.Children)
	}
	e.Children = append(e.Children, nil)
	copy(e.Children[i+1:], e.Children[i:])
	e.Children[i] = child
}

// Remove removes child from e.Children, if present.
func (e *Element) Remove(child *Element) {
	if i := e.IndexOf(child); i >= 0 {
		e.Children = append(e.Children[:i], e.Children[i+1:]...)
	}
}

// Replace replaces old with replacement in e.Children, if old is present.
// Reports whether old was found.
func (e *Element) Replace(old, replacement *Element) bool {
	if i := e.IndexOf(old); i >= 0 {
		e.Children[i] = replacement
		return true
	}
	return false
}

// Clone returns a deep copy of e.
func (e *Element) Clone() *Element {
	if e == nil {
		return nil
	}
	clone := &Element{Space: e.Space, Tag: e.Tag, Text: e.Text}
	if e.Attr != nil {
		clone.Attr = make(map[string]string, len(e.Attr))
		for k, v := range e.Attr {
			clone.Attr[k] = v
		}
	}
	if len(e.Children) > 0 {
		clone.Children = make([]*Element, len(e.Children))
		for i, c := range e.Children {
			clone.Children[i] = c.Clone()
		}
	}
	return clone
}

// Parse reads a single XML document from r and returns its root element.
func Parse(r io.Reader) (*Element, error) {
	dec := xml.NewDecoder(r)
	var stack []*Element
	var root *Element
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			el := &Element{Space: t.Name.Space, Tag: t.Name.Local, Attr: map[string]string{}}
			for _, a := range t.Attr {
				if a.Name.Local == "xmlns" || a.Name.Space == "xmlns" {
					continue
				}
				el.Attr[a.Name.Local] = a.Value
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, el)
			} else {
				root = el
			}
			stack = append(stack, el)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		}
	}
	if root == nil {
		return nil, io.ErrUnexpectedEOF
	}
	return root, nil
}

// ParseChildren parses a sequence of sibling XML elements with no common root
// (as found inside a <config> or <filter> body) and returns them as a slice.
func ParseChildren(r io.Reader) ([]*Element, error) {
	wrapped := io.MultiReader(
		strings.NewReader("<__xmltree_root__>"),
		r,
		strings.NewReader("</__xmltree_root__>"),
	)
	root, err := Parse(wrapped)
	if err != nil {
		return nil, err
	}
	return root.Children, nil
}

// Encode writes e to w as an XML document.
func (e *Element) Encode(w io.Writer) error {
	return e.encode(w, "")
}

func (e *Element) encode(w io.Writer, parentSpace string) error {
	if _, err := fmt.Fprintf(w, "<%s", e.Tag); err != nil {
		return err
	}
	if e.Space != "" && e.Space != parentSpace {
		if _, err := fmt.Fprintf(w, " xmlns=%q", e.Space); err != nil {
			return err
		}
	}
	keys := make([]string, 0, len(e.Attr))
	for k := range e.Attr {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := fmt.Fprintf(w, " %s=%q", k, e.Attr[k]); err != nil {
			return err
		}
	}
	if len(e.Children) == 0 && e.Text == "" {
		_, err := fmt.Fprint(w, "/>")
		return err
	}
	if _, err := fmt.Fprint(w, ">"); err != nil {
		return err
	}
	if e.Text != "" {
		if err := xml.EscapeText(w, []byte(e.Text)); err != nil {
			return err
		}
	}
	for _, c := range e.Children {
		if err := c.encode(w, e.Space); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "</%s>", e.Tag)
	return err
}

// String renders e as XML. It never returns an encoding error since it
// writes to a strings.Builder; malformed element trees simply render
// malformed XML.
func (e *Element) String() string {
	var b strings.Builder
	_ = e.Encode(&b)
	return b.String()
}
