package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// NodeKind is the JSON shape of an exports tree node.
type NodeKind int

const (
	NodeNull NodeKind = iota
	NodeString
	NodeObject
	NodeArray
	NodeOther
)

// ExportsNode is one node of the "exports" field. Object keys keep the order
// they have in package.json: condition order is significant for resolution.
type ExportsNode struct {
	Kind    NodeKind
	Value   string
	Entries []ExportsEntry
	Items   []*ExportsNode
}

// ExportsEntry is one key of an object node.
type ExportsEntry struct {
	Key  string
	Node *ExportsNode
}

// Get returns the child for key, or nil.
func (n *ExportsNode) Get(key string) *ExportsNode {
	if n == nil || n.Kind != NodeObject {
		return nil
	}
	for _, e := range n.Entries {
		if e.Key == key {
			return e.Node
		}
	}
	return nil
}

// IsSubpathMap reports whether the object's keys are subpaths ("." or
// "./x") rather than conditions ("import", "require", ...).
func (n *ExportsNode) IsSubpathMap() bool {
	if n == nil || n.Kind != NodeObject || len(n.Entries) == 0 {
		return false
	}
	for _, e := range n.Entries {
		if e.Key != "." && !strings.HasPrefix(e.Key, "./") {
			return false
		}
	}
	return true
}

func parseExports(raw json.RawMessage) (*ExportsNode, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	node, err := decodeNode(dec)
	if err != nil {
		return nil, fmt.Errorf("exports: %w", err)
	}
	if node.Kind == NodeNull {
		return nil, nil
	}
	return node, nil
}

func decodeNode(dec *json.Decoder) (*ExportsNode, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return decodeFrom(dec, tok)
}

func decodeFrom(dec *json.Decoder, tok json.Token) (*ExportsNode, error) {
	switch v := tok.(type) {
	case nil:
		return &ExportsNode{Kind: NodeNull}, nil
	case string:
		return &ExportsNode{Kind: NodeString, Value: v}, nil
	case json.Delim:
		switch v {
		case '{':
			node := &ExportsNode{Kind: NodeObject}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("unexpected object key %v", keyTok)
				}
				child, err := decodeNode(dec)
				if err != nil {
					return nil, err
				}
				node.Entries = append(node.Entries, ExportsEntry{Key: key, Node: child})
			}
			if _, err := dec.Token(); err != nil && err != io.EOF {
				return nil, err
			}
			return node, nil
		case '[':
			node := &ExportsNode{Kind: NodeArray}
			for dec.More() {
				child, err := decodeNode(dec)
				if err != nil {
					return nil, err
				}
				node.Items = append(node.Items, child)
			}
			if _, err := dec.Token(); err != nil && err != io.EOF {
				return nil, err
			}
			return node, nil
		}
	}
	return &ExportsNode{Kind: NodeOther}, nil
}
