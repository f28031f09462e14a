// Package avl implements the balanced index: a height-balanced binary
// search tree of Terms ordered by name. It owns the Term objects it stores.
//
// The tree compares names verbatim; callers normalize before calling in.
// It is not safe for concurrent use.
package avl

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/book-term-index/internal/term"
)

type node struct {
	term   *term.Term
	left   *node
	right  *node
	height int
}

// Tree is an AVL tree keyed by term name.
type Tree struct {
	root *node
	size int
}

func New() *Tree {
	return &Tree{}
}

// Insert adds t to the tree. If a term with the same name is present its
// pages are merged into the stored Term and the tree shape is unchanged.
func (tr *Tree) Insert(t *term.Term) {
	tr.root = tr.insert(tr.root, t)
}

func (tr *Tree) insert(n *node, t *term.Term) *node {
	if n == nil {
		tr.size++
		return &node{term: t, height: 1}
	}

	key := t.Name()
	switch {
	case key < n.term.Name():
		n.left = tr.insert(n.left, t)
	case key > n.term.Name():
		n.right = tr.insert(n.right, t)
	default:
		n.term.MergeFrom(t)
		return n
	}

	n.height = 1 + max(height(n.left), height(n.right))
	bf := balance(n)

	// Insertion picks the rotation by comparing the new key with the child.
	if bf > 1 && key < n.left.term.Name() {
		return rotateRight(n)
	}
	if bf < -1 && key > n.right.term.Name() {
		return rotateLeft(n)
	}
	if bf > 1 && key > n.left.term.Name() {
		n.left = rotateLeft(n.left)
		return rotateRight(n)
	}
	if bf < -1 && key < n.right.term.Name() {
		n.right = rotateRight(n.right)
		return rotateLeft(n)
	}
	return n
}

// Search returns the stored Term with the given name.
func (tr *Tree) Search(name string) (*term.Term, bool) {
	n := tr.root
	for n != nil {
		switch cur := n.term.Name(); {
		case name == cur:
			return n.term, true
		case name < cur:
			n = n.left
		default:
			n = n.right
		}
	}
	return nil, false
}

// Delete removes the term with the given name. It reports false and leaves
// the tree untouched if no such term exists.
func (tr *Tree) Delete(name string) bool {
	if _, ok := tr.Search(name); !ok {
		return false
	}
	tr.root = tr.delete(tr.root, name)
	tr.size--
	return true
}

func (tr *Tree) delete(n *node, name string) *node {
	if n == nil {
		return nil
	}

	switch cur := n.term.Name(); {
	case name < cur:
		n.left = tr.delete(n.left, name)
	case name > cur:
		n.right = tr.delete(n.right, name)
	default:
		if n.left == nil || n.right == nil {
			if n.left != nil {
				n = n.left
			} else {
				n = n.right
			}
		} else {
			succ := minNode(n.right)
			n.term = succ.term
			n.right = tr.delete(n.right, succ.term.Name())
		}
	}
	if n == nil {
		return nil
	}

	n.height = 1 + max(height(n.left), height(n.right))
	bf := balance(n)

	// The deleted key is gone, so the child's own balance decides.
	if bf > 1 && balance(n.left) >= 0 {
		return rotateRight(n)
	}
	if bf > 1 && balance(n.left) < 0 {
		n.left = rotateLeft(n.left)
		return rotateRight(n)
	}
	if bf < -1 && balance(n.right) <= 0 {
		return rotateLeft(n)
	}
	if bf < -1 && balance(n.right) > 0 {
		n.right = rotateRight(n.right)
		return rotateLeft(n)
	}
	return n
}

// InOrder returns every Term in ascending name order.
func (tr *Tree) InOrder() []*term.Term {
	out := make([]*term.Term, 0, tr.size)
	tr.Walk(func(t *term.Term) bool {
		out = append(out, t)
		return true
	})
	return out
}

// Walk visits Terms in ascending name order until fn returns false.
func (tr *Tree) Walk(fn func(*term.Term) bool) {
	walk(tr.root, fn)
}

func walk(n *node, fn func(*term.Term) bool) bool {
	if n == nil {
		return true
	}
	if !walk(n.left, fn) {
		return false
	}
	if !fn(n.term) {
		return false
	}
	return walk(n.right, fn)
}

func (tr *Tree) Len() int {
	return tr.size
}

func (tr *Tree) Height() int {
	return height(tr.root)
}

func (tr *Tree) IsEmpty() bool {
	return tr.root == nil
}

// Check verifies ordering, cached heights and balance factors of every node.
func (tr *Tree) Check() error {
	count := 0
	if _, err := check(tr.root, "", "", &count); err != nil {
		return err
	}
	if count != tr.size {
		return fmt.Errorf("size mismatch: counted %d nodes, recorded %d", count, tr.size)
	}
	return nil
}

func check(n *node, lo, hi string, count *int) (int, error) {
	if n == nil {
		return 0, nil
	}
	*count++
	name := n.term.Name()
	if lo != "" && name <= lo {
		return 0, fmt.Errorf("order violated: %q not after %q", name, lo)
	}
	if hi != "" && name >= hi {
		return 0, fmt.Errorf("order violated: %q not before %q", name, hi)
	}
	lh, err := check(n.left, lo, name, count)
	if err != nil {
		return 0, err
	}
	rh, err := check(n.right, name, hi, count)
	if err != nil {
		return 0, err
	}
	if h := 1 + max(lh, rh); h != n.height {
		return 0, fmt.Errorf("node %q caches height %d, actual %d", name, n.height, h)
	}
	if bf := lh - rh; bf < -1 || bf > 1 {
		return 0, fmt.Errorf("node %q has balance factor %d", name, bf)
	}
	return n.height, nil
}

func height(n *node) int {
	if n == nil {
		return 0
	}
	return n.height
}

func balance(n *node) int {
	if n == nil {
		return 0
	}
	return height(n.left) - height(n.right)
}

func rotateRight(y *node) *node {
	x := y.left
	t2 := x.right

	x.right = y
	y.left = t2

	y.height = 1 + max(height(y.left), height(y.right))
	x.height = 1 + max(height(x.left), height(x.right))
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	t2 := y.left

	y.left = x
	x.right = t2

	x.height = 1 + max(height(x.left), height(x.right))
	y.height = 1 + max(height(y.left), height(y.right))
	return y
}

func minNode(n *node) *node {
	for n.left != nil {
		n = n.left
	}
	return n
}
