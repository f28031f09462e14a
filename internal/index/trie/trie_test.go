package trie

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/book-term-index/internal/term"
)

func termNames(ts []*term.Term) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.Name())
	}
	return out
}

func TestTrie_SearchByPrefix(t *testing.T) {
	tr := New()
	for _, n := range []string{"apple", "app", "apricot", "banana", "band"} {
		tr.Insert(term.New(n, 1))
	}

	assert.Equal(t, []string{"app", "apple", "apricot"}, termNames(tr.SearchByPrefix("ap")))
	assert.Equal(t, []string{"app", "apple"}, termNames(tr.SearchByPrefix("app")))
	assert.Equal(t, []string{"banana", "band"}, termNames(tr.SearchByPrefix("ban")))
	assert.Empty(t, tr.SearchByPrefix("c"))
	assert.Empty(t, tr.SearchByPrefix("applesauce"))
	assert.Len(t, tr.SearchByPrefix(""), 5)
	assert.Equal(t, 5, tr.Len())
}

func TestTrie_StoresReferenceNotCopy(t *testing.T) {
	tr := New()
	apple := term.New("apple", 3)
	tr.Insert(apple)
	apple.AddPage(7)

	got := tr.SearchByPrefix("apple")
	require.Len(t, got, 1)
	assert.Same(t, apple, got[0])
	assert.Equal(t, []uint32{3, 7}, got[0].Pages())
}

func TestTrie_DeletePrunesDeadBranch(t *testing.T) {
	tr := New()
	tr.Insert(term.New("car", 1))
	base := tr.NodeCount()

	tr.Insert(term.New("cattle", 1))
	require.True(t, tr.Delete("cattle"))

	assert.Equal(t, base, tr.NodeCount())
	assert.Equal(t, []string{"car"}, termNames(tr.SearchByPrefix("ca")))
	assert.False(t, tr.Contains("cattle"))
}

func TestTrie_DeleteKeepsLongerWord(t *testing.T) {
	tr := New()
	tr.Insert(term.New("app", 5))
	tr.Insert(term.New("apple", 3))
	nodes := tr.NodeCount()

	require.True(t, tr.Delete("app"))

	assert.Equal(t, nodes, tr.NodeCount())
	assert.False(t, tr.Contains("app"))
	assert.True(t, tr.Contains("apple"))
	assert.Equal(t, []string{"apple"}, termNames(tr.SearchByPrefix("app")))
}

func TestTrie_DeleteKeepsShorterWord(t *testing.T) {
	tr := New()
	tr.Insert(term.New("app", 5))
	tr.Insert(term.New("apple", 3))

	require.True(t, tr.Delete("apple"))

	// root + a + p + p
	assert.Equal(t, 4, tr.NodeCount())
	assert.Equal(t, []string{"app"}, termNames(tr.SearchByPrefix("a")))
}

func TestTrie_DeleteLastWordLeavesOnlyRoot(t *testing.T) {
	tr := New()
	tr.Insert(term.New("cat", 1))
	require.True(t, tr.Delete("cat"))
	assert.Equal(t, 1, tr.NodeCount())
	assert.Equal(t, 0, tr.Len())
	assert.Empty(t, tr.SearchByPrefix("c"))
}

func TestTrie_DeleteMissing(t *testing.T) {
	tr := New()
	tr.Insert(term.New("apple", 1))
	nodes := tr.NodeCount()

	assert.False(t, tr.Delete("app"), "prefix of a word is not a word")
	assert.False(t, tr.Delete("apples"))
	assert.False(t, tr.Delete("pear"))
	assert.Equal(t, nodes, tr.NodeCount())
	assert.True(t, tr.Contains("apple"))
	assert.Equal(t, 1, tr.Len())
}

func TestTrie_ReinsertReplacesReference(t *testing.T) {
	tr := New()
	first := term.New("node", 1)
	second := term.New("node", 2)
	tr.Insert(first)
	tr.Insert(second)
	assert.Equal(t, 1, tr.Len())
	got := tr.SearchByPrefix("node")
	require.Len(t, got, 1)
	assert.Same(t, second, got[0])
}

func TestTrie_MultibyteNames(t *testing.T) {
	tr := New()
	tr.Insert(term.New("árbol", 1))
	tr.Insert(term.New("árboles", 2))
	assert.Len(t, tr.SearchByPrefix("árb"), 2)
	require.True(t, tr.Delete("árboles"))
	assert.Equal(t, 6, tr.NodeCount())
}

func TestTrie_Clear(t *testing.T) {
	tr := New()
	tr.Insert(term.New("x", 1))
	tr.Clear()
	assert.Equal(t, 0, tr.Len())
	assert.Equal(t, 1, tr.NodeCount())
	assert.Empty(t, tr.SearchByPrefix(""))
}
