package directory

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/book-term-index/internal/term"
)

func namesOf(ts []*term.Term) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.Name())
	}
	return out
}

// requireInSync asserts that both indexes hold the same names and share
// the same Term objects.
func requireInSync(t *testing.T, d *Directory) {
	t.Helper()
	require.NoError(t, d.tree.Check())

	all := d.tree.InOrder()
	byPrefix := d.prefix.SearchByPrefix("")
	require.Equal(t, namesOf(all), namesOf(byPrefix))
	for i := range all {
		require.Same(t, all[i], byPrefix[i])
		found, ok := d.GetTerm(all[i].Name())
		require.True(t, ok)
		require.Equal(t, all[i].Pages(), found.Pages())
	}
	require.Equal(t, d.tree.Len(), d.prefix.Len())
	require.Equal(t, namesOf(d.AllTerms()), namesOf(d.TermsWithPrefix("")))
}

func TestDirectory_PrefixAndMostFrequent(t *testing.T) {
	d := New()
	d.AddTerm("apple", 3)
	d.AddTerm("apple", 7)
	d.AddTerm("app", 5)

	assert.Equal(t, []string{"app", "apple"}, namesOf(d.TermsWithPrefix("app")))

	best, ok := d.MostFrequentTerm()
	require.True(t, ok)
	assert.Equal(t, "apple", best.Name())
	assert.Equal(t, 2, best.PageCount())
	requireInSync(t, d)
}

func TestDirectory_CascadingPageRemoval(t *testing.T) {
	d := New()
	d.AddTermPages("cat", []uint32{1, 2})

	removed, cascaded := d.RemovePageFromTerm(1, "cat")
	assert.True(t, removed)
	assert.False(t, cascaded)

	removed, cascaded = d.RemovePageFromTerm(2, "cat")
	assert.True(t, removed)
	assert.True(t, cascaded)

	assert.True(t, d.IsEmpty())
	assert.Empty(t, d.TermsWithPrefix("c"))
	assert.Equal(t, 1, d.prefix.NodeCount())
	requireInSync(t, d)
}

func TestDirectory_RemovePageMissing(t *testing.T) {
	d := New()
	d.AddTerm("cat", 1)

	removed, cascaded := d.RemovePageFromTerm(9, "cat")
	assert.False(t, removed)
	assert.False(t, cascaded)

	removed, cascaded = d.RemovePageFromTerm(1, "dog")
	assert.False(t, removed)
	assert.False(t, cascaded)
	assert.Equal(t, 1, d.Len())
}

func TestDirectory_RenameMergesIntoExisting(t *testing.T) {
	d := New()
	d.AddTermPages("dog", []uint32{1})
	d.AddTermPages("doll", []uint32{2})

	require.True(t, d.UpdateTermName("dog", "doll"))

	assert.Equal(t, []string{"doll"}, namesOf(d.AllTerms()))
	doll, ok := d.GetTerm("doll")
	require.True(t, ok)
	assert.Equal(t, []uint32{1, 2}, doll.Pages())
	_, ok = d.GetTerm("dog")
	assert.False(t, ok)
	requireInSync(t, d)
}

func TestDirectory_RenameToNewName(t *testing.T) {
	d := New()
	d.AddTermPages("Colour", []uint32{4, 2})

	require.True(t, d.UpdateTermName(" colour ", "COLOR"))

	got, ok := d.GetTerm("color")
	require.True(t, ok)
	assert.Equal(t, []uint32{2, 4}, got.Pages())
	assert.Empty(t, d.TermsWithPrefix("colou"))
	requireInSync(t, d)
}

func TestDirectory_RenameTermReportsMergeUnderLock(t *testing.T) {
	d := New()
	const n = 32
	for i := 0; i < n; i++ {
		d.AddTerm(fmt.Sprintf("src%02d", i), uint32(i+1))
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		fresh  int
		merges int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			renamed, merged, ok := d.RenameTerm(fmt.Sprintf("src%02d", i), "Hub")
			if !assert.True(t, ok) {
				return
			}
			assert.Equal(t, "hub", renamed.Name())
			mu.Lock()
			defer mu.Unlock()
			if merged {
				merges++
			} else {
				fresh++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, fresh)
	assert.Equal(t, n-1, merges)
	hub, ok := d.GetTerm("hub")
	require.True(t, ok)
	assert.Equal(t, n, hub.PageCount())
	requireInSync(t, d)
}

func TestDirectory_RenameTermToSelf(t *testing.T) {
	d := New()
	d.AddTerm("heap", 4)

	renamed, merged, ok := d.RenameTerm("HEAP", "heap")
	require.True(t, ok)
	assert.False(t, merged)
	assert.Equal(t, []uint32{4}, renamed.Pages())

	_, _, ok = d.RenameTerm("missing", "heap")
	assert.False(t, ok)
}

func TestDirectory_RenameMissing(t *testing.T) {
	d := New()
	d.AddTerm("a", 1)
	assert.False(t, d.UpdateTermName("b", "c"))
	assert.Equal(t, []string{"a"}, namesOf(d.AllTerms()))
}

func TestDirectory_RemoveTerm(t *testing.T) {
	d := New()
	d.AddTerm("app", 1)
	d.AddTerm("apple", 2)

	assert.False(t, d.RemoveTerm("ap"))
	assert.True(t, d.RemoveTerm("APP"))
	assert.False(t, d.RemoveTerm("app"))

	assert.Equal(t, []string{"apple"}, namesOf(d.TermsWithPrefix("app")))
	requireInSync(t, d)
}

func TestDirectory_NormalizesNames(t *testing.T) {
	d := New()
	d.AddTerm("  Binary Tree ", 10)
	d.AddTerm("binary tree", 10)
	d.AddTerm("BINARY TREE", 11)

	require.Equal(t, 1, d.Len())
	got, ok := d.GetTerm("Binary tree")
	require.True(t, ok)
	assert.Equal(t, []uint32{10, 11}, got.Pages())
	assert.Len(t, d.TermsWithPrefix("BIN"), 1)
}

func TestDirectory_AddEmptyPagesCreatesNothing(t *testing.T) {
	d := New()
	d.AddTermPages("ghost", nil)
	assert.True(t, d.IsEmpty())
	requireInSync(t, d)
}

func TestDirectory_MostFrequentTieGoesToFirst(t *testing.T) {
	d := New()
	d.AddTermPages("zebra", []uint32{1, 2})
	d.AddTermPages("ant", []uint32{3, 4})
	d.AddTermPages("moose", []uint32{5})

	best, ok := d.MostFrequentTerm()
	require.True(t, ok)
	assert.Equal(t, "ant", best.Name())

	_, ok = New().MostFrequentTerm()
	assert.False(t, ok)
}

func TestDirectory_ReadsAreDetached(t *testing.T) {
	d := New()
	d.AddTerm("heap", 1)

	got, ok := d.GetTerm("heap")
	require.True(t, ok)
	got.AddPage(99)

	again, _ := d.GetTerm("heap")
	assert.Equal(t, []uint32{1}, again.Pages())

	d.AddTerm("heap", 2)
	assert.Equal(t, []uint32{1, 99}, got.Pages())
}

func TestDirectory_ConcurrentAccess(t *testing.T) {
	d := New()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				name := fmt.Sprintf("t%d", i%20)
				d.AddTerm(name, uint32(w*1000+i+1))
				d.TermsWithPrefix("t1")
				d.MostFrequentTerm()
				if i%7 == 0 {
					d.RemoveTerm(name)
				}
			}
		}(w)
	}
	wg.Wait()
	requireInSync(t, d)
}

func TestDirectory_Clear(t *testing.T) {
	d := New()
	d.AddTerm("a", 1)
	d.AddTerm("b", 1)
	d.Clear()
	assert.True(t, d.IsEmpty())
	assert.Empty(t, d.TermsWithPrefix(""))
	requireInSync(t, d)

	d.AddTerm("c", 1)
	assert.Equal(t, []string{"c"}, namesOf(d.TermsWithPrefix("")))
}

func TestDirectory_RandomOperationsStayInSync(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 99))
	d := New()
	pool := make([]string, 60)
	for i := range pool {
		pool[i] = fmt.Sprintf("w%02d", i)
	}
	pick := func() string { return pool[rng.IntN(len(pool))] }

	for i := 0; i < 3000; i++ {
		switch rng.IntN(4) {
		case 0:
			d.AddTerm(pick(), uint32(rng.IntN(5)+1))
		case 1:
			d.RemoveTerm(pick())
		case 2:
			d.UpdateTermName(pick(), pick())
		case 3:
			d.RemovePageFromTerm(uint32(rng.IntN(5)+1), pick())
		}
		requireInSync(t, d)
		for _, tm := range d.AllTerms() {
			require.False(t, tm.IsEmpty(), "empty term %q retained", tm.Name())
		}
	}
}

func TestDirectory_LargeInsertDelete(t *testing.T) {
	rng := rand.New(rand.NewPCG(2024, 11))
	d := New()
	const total = 1000
	keys := make([]string, total)
	for i := range keys {
		keys[i] = fmt.Sprintf("entry %d", i)
	}
	for _, i := range rng.Perm(total) {
		d.AddTerm(keys[i], uint32(i+1))
	}
	gone := make(map[string]bool)
	for _, i := range rng.Perm(total)[:total/2] {
		require.True(t, d.RemoveTerm(keys[i]))
		gone[keys[i]] = true
	}
	requireInSync(t, d)

	var want []string
	for _, k := range keys {
		if !gone[k] {
			want = append(want, k)
		}
	}
	sort.Strings(want)
	assert.Equal(t, want, namesOf(d.AllTerms()))
}
