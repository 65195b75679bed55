// Package trie implements the two append-only string tries the morpher
// needs: one payload per key, and a list of payloads per key.
package trie

// node is a byte-trie node. Children are keyed on raw bytes rather than
// runes: keys here are always escaped, ASCII-only strings, so byte
// granularity is exact and keeps lookups branch-cheap.
type node struct {
	children map[byte]*node
	has      bool
	value    int
	values   []int
}

func newNode() *node {
	return &node{children: make(map[byte]*node)}
}

// Dict is a trie storing exactly one payload per key (later inserts of an
// existing key overwrite the payload).
type Dict struct {
	root *node
}

// NewDict builds a Dict trie from a slice of (key, value) pairs.
func NewDict(keys []string, values []int) *Dict {
	d := &Dict{root: newNode()}
	for i, k := range keys {
		d.Insert(k, values[i])
	}
	return d
}

// Insert adds or overwrites the payload for key.
func (d *Dict) Insert(key string, value int) {
	n := d.root
	for i := 0; i < len(key); i++ {
		b := key[i]
		child, ok := n.children[b]
		if !ok {
			child = newNode()
			n.children[b] = child
		}
		n = child
	}
	n.has = true
	n.value = value
}

// Get returns the payload for key and whether it was present.
func (d *Dict) Get(key string) (int, bool) {
	n := d.root
	for i := 0; i < len(key); i++ {
		child, ok := n.children[key[i]]
		if !ok {
			return 0, false
		}
		n = child
	}
	if !n.has {
		return 0, false
	}
	return n.value, true
}

// Prefixes returns every prefix of s (shortest first) that is a key in the
// trie.
func (d *Dict) Prefixes(s string) []string {
	var out []string
	n := d.root
	for i := 0; i < len(s); i++ {
		child, ok := n.children[s[i]]
		if !ok {
			break
		}
		n = child
		if n.has {
			out = append(out, s[:i+1])
		}
	}
	return out
}

// PrefixesAndValues returns the same prefixes as Prefixes, paired with their
// payloads.
func (d *Dict) PrefixesAndValues(s string) ([]string, []int) {
	var keys []string
	var values []int
	n := d.root
	for i := 0; i < len(s); i++ {
		child, ok := n.children[s[i]]
		if !ok {
			break
		}
		n = child
		if n.has {
			keys = append(keys, s[:i+1])
			values = append(values, n.value)
		}
	}
	return keys, values
}

// Values returns the payload of every key in the trie, in no particular
// order.
func (d *Dict) Values() []int {
	var out []int
	var walk func(n *node)
	walk = func(n *node) {
		if n.has {
			out = append(out, n.value)
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(d.root)
	return out
}

// Lookup is a trie storing a list of payloads per key; later inserts append
// rather than overwrite.
type Lookup struct {
	root *node
}

// NewLookup builds a Lookup trie, appending each value to its key's list in
// input order.
func NewLookup(keys []string, values []int) *Lookup {
	l := &Lookup{root: newNode()}
	for i, k := range keys {
		l.Insert(k, values[i])
	}
	return l
}

// Insert appends value to key's payload list.
func (l *Lookup) Insert(key string, value int) {
	n := l.root
	for i := 0; i < len(key); i++ {
		b := key[i]
		child, ok := n.children[b]
		if !ok {
			child = newNode()
			n.children[b] = child
		}
		n = child
	}
	n.has = true
	n.values = append(n.values, value)
}

// Get returns the payload list for key.
func (l *Lookup) Get(key string) []int {
	n := l.root
	for i := 0; i < len(key); i++ {
		child, ok := n.children[key[i]]
		if !ok {
			return nil
		}
		n = child
	}
	if !n.has {
		return nil
	}
	return n.values
}

// Prefixes returns every prefix of s that is a key in the trie.
func (l *Lookup) Prefixes(s string) []string {
	var out []string
	n := l.root
	for i := 0; i < len(s); i++ {
		child, ok := n.children[s[i]]
		if !ok {
			break
		}
		n = child
		if n.has {
			out = append(out, s[:i+1])
		}
	}
	return out
}

// PrefixesAndValues returns the same prefixes as Prefixes, each paired with
// its full payload list.
func (l *Lookup) PrefixesAndValues(s string) ([]string, [][]int) {
	var keys []string
	var values [][]int
	n := l.root
	for i := 0; i < len(s); i++ {
		child, ok := n.children[s[i]]
		if !ok {
			break
		}
		n = child
		if n.has {
			keys = append(keys, s[:i+1])
			values = append(values, n.values)
		}
	}
	return keys, values
}
