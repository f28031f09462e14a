// Package term defines the Term entity shared by the balanced and prefix
// indexes: a normalized name and the set of pages it occurs on.
package term

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/RoaringBitmap/roaring/v2"
)

// Normalize returns the canonical form of a term name. All comparisons in
// the index are made on normalized names.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Term is a named index entry. Two Terms are equal iff their names are
// equal; the page set is mutated in place by the owning index.
type Term struct {
	name  string
	pages *roaring.Bitmap
}

// New creates a Term with a normalized name and the given pages.
func New(name string, pages ...uint32) *Term {
	t := &Term{
		name:  Normalize(name),
		pages: roaring.New(),
	}
	t.pages.AddMany(pages)
	return t
}

func (t *Term) Name() string {
	return t.name
}

// Pages returns the page numbers in ascending order. The slice is a copy.
func (t *Term) Pages() []uint32 {
	return t.pages.ToArray()
}

func (t *Term) AddPage(page uint32) {
	t.pages.Add(page)
}

func (t *Term) AddPages(pages []uint32) {
	t.pages.AddMany(pages)
}

// MergeFrom adds every page of other into t.
func (t *Term) MergeFrom(other *Term) {
	if other == nil || other == t {
		return
	}
	t.pages.Or(other.pages)
}

// RemovePage removes page and reports whether it was present.
func (t *Term) RemovePage(page uint32) bool {
	return t.pages.CheckedRemove(page)
}

func (t *Term) HasPage(page uint32) bool {
	return t.pages.Contains(page)
}

func (t *Term) PageCount() int {
	return int(t.pages.GetCardinality())
}

func (t *Term) IsEmpty() bool {
	return t.pages.IsEmpty()
}

// Equal compares by normalized name only.
func (t *Term) Equal(other *Term) bool {
	if t == nil || other == nil {
		return t == other
	}
	return t.name == other.name
}

// Clone returns a detached copy whose page set can be modified freely.
func (t *Term) Clone() *Term {
	return &Term{
		name:  t.name,
		pages: t.pages.Clone(),
	}
}

// Line renders the persisted form "name: p1, p2, ...".
func (t *Term) Line() string {
	var sb strings.Builder
	sb.WriteString(t.name)
	sb.WriteString(": ")
	t.writePages(&sb)
	return sb.String()
}

// String renders the display form with the first letter capitalized.
func (t *Term) String() string {
	var sb strings.Builder
	if r, size := utf8.DecodeRuneInString(t.name); size > 0 {
		sb.WriteRune(unicode.ToUpper(r))
		sb.WriteString(t.name[size:])
	}
	sb.WriteString(": ")
	t.writePages(&sb)
	return sb.String()
}

func (t *Term) writePages(sb *strings.Builder) {
	it := t.pages.Iterator()
	first := true
	for it.HasNext() {
		if !first {
			sb.WriteString(", ")
		}
		first = false
		sb.WriteString(strconv.FormatUint(uint64(it.Next()), 10))
	}
}
