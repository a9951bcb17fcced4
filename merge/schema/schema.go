// Package schema loads the JSON schema that guides the Merge Engine's
// edit-config tree merges: which elements are containers, lists or leafs,
// what a list's children are, and which leaf(s) form a list's key.
package schema

import (
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
)

// Node describes one element type in the schema tree. It is unmarshalled
// from a JSON tuple of the form [type, children, keys?]: type is a string
// ("container", "list" or "leaf"/"leaf-list"), children maps child local
// names to their own Node tuples, and keys - present only for lists - is a
// list of [namespace, local-name] pairs naming the list's key leaf(s).
type Node struct {
	Type     string
	Children map[string]*Node
	Keys     [][2]string
}

// UnmarshalJSON implements json.Unmarshaler for the heterogeneous
// [type, children, keys?] tuple shape.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "schema: node must be a JSON array")
	}
	if len(raw) == 0 {
		return errors.New("schema: node tuple must have at least a type element")
	}
	if err := json.Unmarshal(raw[0], &n.Type); err != nil {
		return errors.Wrap(err, "schema: node type")
	}
	if len(raw) >= 2 {
		var children map[string]*Node
		if err := json.Unmarshal(raw[1], &children); err != nil {
			return errors.Wrap(err, "schema: node children")
		}
		n.Children = children
	}
	if len(raw) >= 3 {
		var keys [][2]string
		if err := json.Unmarshal(raw[2], &keys); err != nil {
			return errors.Wrap(err, "schema: node keys")
		}
		n.Keys = keys
	}
	return nil
}

// IsList reports whether n describes a YANG list node.
func (n *Node) IsList() bool { return n.Type == "list" }

// KeyLeafName returns the local name of the first key leaf declared for a
// list node, or "" if n isn't a keyed list.
func (n *Node) KeyLeafName() string {
	if len(n.Keys) == 0 {
		return ""
	}
	return n.Keys[0][1]
}

// HasKeyLeaf reports whether name matches one of n's declared key leafs.
func (n *Node) HasKeyLeaf(name string) bool {
	for _, k := range n.Keys {
		if k[1] == name {
			return true
		}
	}
	return false
}

// Tree is a loaded schema document: a single named root and its Node.
type Tree struct {
	Root string
	Node *Node
}

type document struct {
	Tree map[string]*Node `json:"tree"`
}

// Load decodes a schema document of the form {"tree": {<root>: [...]}} from r.
func Load(r io.Reader) (*Tree, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "schema: decode")
	}
	if len(doc.Tree) == 0 {
		return nil, errors.New("schema: document has no tree root")
	}
	if len(doc.Tree) > 1 {
		return nil, errors.New("schema: document declares more than one tree root")
	}
	for root, node := range doc.Tree {
		return &Tree{Root: root, Node: node}, nil
	}
	return nil, errors.New("schema: document has no tree root")
}

// LoadFile opens path and decodes it as a schema document.
func LoadFile(path string) (*Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "schema: open")
	}
	defer f.Close()
	return Load(f)
}
