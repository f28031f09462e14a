// Package directory coordinates the balanced index and the prefix index
// over one shared set of Terms. Every mutation updates the balanced index
// first (it owns the Term objects) and the prefix index second (it only
// references them), so the two never diverge between calls.
package directory

import (
	"sync"

	"github.com/Adithya-Monish-Kumar-K/book-term-index/internal/index/avl"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/internal/index/trie"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/internal/term"
)

// Directory is the term-management API. A single lock guards both indexes
// for the whole duration of each call. Terms handed out by read methods are
// detached clones taken under the lock; the live Terms never leave it.
type Directory struct {
	mu     sync.RWMutex
	tree   *avl.Tree
	prefix *trie.Trie
}

func New() *Directory {
	return &Directory{
		tree:   avl.New(),
		prefix: trie.New(),
	}
}

// AddTerm adds page to the named term, creating the term if needed.
func (d *Directory) AddTerm(name string, page uint32) {
	d.AddTermPages(name, []uint32{page})
}

// AddTermPages merges pages into the named term, creating it if needed.
// An empty page list never creates a term.
func (d *Directory) AddTermPages(name string, pages []uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addLocked(term.Normalize(name), pages)
}

func (d *Directory) addLocked(name string, pages []uint32) {
	if existing, ok := d.tree.Search(name); ok {
		existing.AddPages(pages)
		return
	}
	if len(pages) == 0 {
		return
	}
	t := term.New(name, pages...)
	d.tree.Insert(t)
	d.prefix.Insert(t)
}

// GetTerm returns a copy of the Term stored under name.
func (d *Directory) GetTerm(name string) (*term.Term, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tree.Search(term.Normalize(name))
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// RemoveTerm deletes the named term from both indexes. It reports false
// and changes nothing if the term does not exist.
func (d *Directory) RemoveTerm(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.removeLocked(term.Normalize(name))
}

func (d *Directory) removeLocked(name string) bool {
	if !d.tree.Delete(name) {
		return false
	}
	d.prefix.Delete(name)
	return true
}

// RemovePageFromTerm removes page from the named term. When the term has
// no pages left it is removed entirely. removed reports whether the page
// was present; cascaded whether the term went with it.
func (d *Directory) RemovePageFromTerm(page uint32, name string) (removed, cascaded bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	name = term.Normalize(name)
	t, ok := d.tree.Search(name)
	if !ok {
		return false, false
	}
	removed = t.RemovePage(page)
	if t.IsEmpty() {
		cascaded = d.removeLocked(name)
	}
	return removed, cascaded
}

// UpdateTermName renames oldName to newName. If newName already exists the
// pages are merged into it. It reports false if oldName does not exist.
func (d *Directory) UpdateTermName(oldName, newName string) bool {
	_, _, ok := d.RenameTerm(oldName, newName)
	return ok
}

// RenameTerm is UpdateTermName that also returns a copy of the resulting
// term and whether newName already existed, both taken under the lock.
func (d *Directory) RenameTerm(oldName, newName string) (renamed *term.Term, merged, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	oldName = term.Normalize(oldName)
	newName = term.Normalize(newName)
	t, ok := d.tree.Search(oldName)
	if !ok {
		return nil, false, false
	}
	if oldName != newName {
		_, merged = d.tree.Search(newName)
	}
	pages := t.Pages()
	d.removeLocked(oldName)
	d.addLocked(newName, pages)

	result, _ := d.tree.Search(newName)
	return result.Clone(), merged, true
}

// TermsWithPrefix returns the terms whose names start with the normalized
// prefix, in ascending character order.
func (d *Directory) TermsWithPrefix(prefix string) []*term.Term {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return cloneAll(d.prefix.SearchByPrefix(term.Normalize(prefix)))
}

// MostFrequentTerm returns the term with the most pages. Ties go to the
// first term in name order.
func (d *Directory) MostFrequentTerm() (*term.Term, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var best *term.Term
	for _, t := range d.tree.InOrder() {
		if best == nil || t.PageCount() > best.PageCount() {
			best = t
		}
	}
	if best == nil {
		return nil, false
	}
	return best.Clone(), true
}

// AllTerms returns every term in ascending name order.
func (d *Directory) AllTerms() []*term.Term {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return cloneAll(d.tree.InOrder())
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.tree.Len()
}

func (d *Directory) IsEmpty() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.tree.IsEmpty()
}

// Clear resets both indexes.
func (d *Directory) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tree = avl.New()
	d.prefix.Clear()
}

func cloneAll(ts []*term.Term) []*term.Term {
	out := make([]*term.Term, len(ts))
	for i, t := range ts {
		out[i] = t.Clone()
	}
	return out
}
