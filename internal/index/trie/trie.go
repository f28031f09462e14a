// Package trie implements the prefix index: a character trie over term
// names whose terminal nodes reference (never copy) the Terms owned by the
// balanced index.
package trie

import (
	"maps"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/book-term-index/internal/term"
)

type node struct {
	children map[rune]*node
	end      bool
	term     *term.Term
}

func newNode() *node {
	return &node{children: make(map[rune]*node)}
}

// Trie is not safe for concurrent use.
type Trie struct {
	root *node
	size int
}

func New() *Trie {
	return &Trie{root: newNode()}
}

// Insert walks or creates one node per rune of t's name and marks the last
// one as terminal, pointing at t.
func (tr *Trie) Insert(t *term.Term) {
	cur := tr.root
	for _, r := range t.Name() {
		next, ok := cur.children[r]
		if !ok {
			next = newNode()
			cur.children[r] = next
		}
		cur = next
	}
	if !cur.end {
		tr.size++
	}
	cur.end = true
	cur.term = t
}

// Contains reports whether name is stored as a complete word.
func (tr *Trie) Contains(name string) bool {
	n := tr.find(name)
	return n != nil && n.end
}

// SearchByPrefix returns every Term whose name starts with prefix, in
// ascending rune order. An unknown prefix yields an empty slice.
func (tr *Trie) SearchByPrefix(prefix string) []*term.Term {
	out := make([]*term.Term, 0)
	n := tr.find(prefix)
	if n == nil {
		return out
	}
	return collect(n, out)
}

func (tr *Trie) find(s string) *node {
	cur := tr.root
	for _, r := range s {
		next, ok := cur.children[r]
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

func collect(n *node, out []*term.Term) []*term.Term {
	if n.end && n.term != nil {
		out = append(out, n.term)
	}
	for _, r := range slices.Sorted(maps.Keys(n.children)) {
		out = collect(n.children[r], out)
	}
	return out
}

// Delete unmarks name and prunes every node left both non-terminal and
// childless. It reports whether name was stored.
func (tr *Trie) Delete(name string) bool {
	found := false
	tr.delete(tr.root, []rune(name), 0, &found)
	if found {
		tr.size--
	}
	return found
}

// delete returns true when the caller should drop its edge to n.
func (tr *Trie) delete(n *node, word []rune, i int, found *bool) bool {
	if i == len(word) {
		if !n.end {
			return false
		}
		*found = true
		n.end = false
		n.term = nil
		return len(n.children) == 0
	}

	child, ok := n.children[word[i]]
	if !ok {
		return false
	}
	if tr.delete(child, word, i+1, found) {
		delete(n.children, word[i])
		return !n.end && len(n.children) == 0
	}
	return false
}

// Clear drops every stored name.
func (tr *Trie) Clear() {
	tr.root = newNode()
	tr.size = 0
}

// Len returns the number of stored names.
func (tr *Trie) Len() int {
	return tr.size
}

// NodeCount returns the total number of nodes, root included.
func (tr *Trie) NodeCount() int {
	return countNodes(tr.root)
}

func countNodes(n *node) int {
	c := 1
	for _, child := range n.children {
		c += countNodes(child)
	}
	return c
}
