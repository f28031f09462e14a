package service

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/book-term-index/internal/directory"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/internal/textfile"
	apperrors "github.com/Adithya-Monish-Kumar-K/book-term-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/pkg/metrics"
)

type recordingNotifier struct {
	mu      sync.Mutex
	changes []Change
	err     error
}

func (r *recordingNotifier) Notify(_ context.Context, c Change) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
	return r.err
}

type countingInvalidator struct {
	calls int
}

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.calls++
	return nil
}

func newTestService(t *testing.T) (*Service, *recordingNotifier, *countingInvalidator, *metrics.Metrics) {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	n := &recordingNotifier{}
	inv := &countingInvalidator{}
	return New(directory.New(), WithMetrics(m), WithNotifier(n), WithInvalidator(inv)), n, inv, m
}

func TestAdd_ValidatesInput(t *testing.T) {
	svc, n, inv, m := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		term  string
		pages []int
	}{
		{"blank name", "   ", []int{1}},
		{"zero page", "heap", []int{0}},
		{"negative page", "heap", []int{3, -1}},
		{"no pages", "heap", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Add(ctx, tt.term, tt.pages...)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
			assert.Equal(t, 400, apperrors.HTTPStatusCode(err))
		})
	}

	assert.True(t, svc.IsEmpty())
	assert.Empty(t, n.changes)
	assert.Zero(t, inv.calls)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("add", "invalid")))
}

func TestAdd_MergesAndNotifies(t *testing.T) {
	svc, n, inv, m := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Add(ctx, "Apple", 7, 3))
	require.NoError(t, svc.Add(ctx, "apple", 3))

	got, err := svc.Get(" APPLE ")
	require.NoError(t, err)
	assert.Equal(t, []uint32{3, 7}, got.Pages())

	require.Len(t, n.changes, 2)
	assert.Equal(t, Change{Op: OpAdd, Name: "apple", Pages: []uint32{7, 3}}, n.changes[0])
	assert.Equal(t, 2, inv.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TermsIndexed))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("add", "ok")))
}

func TestAdd_NotifierFailureDoesNotFailWrite(t *testing.T) {
	svc, n, _, _ := newTestService(t)
	n.err = errors.New("broker down")

	require.NoError(t, svc.Add(context.Background(), "queue", 1))
	assert.Equal(t, 1, svc.Len())
}

func TestGet_NotFound(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.Get("missing")
	assert.True(t, errors.Is(err, apperrors.ErrTermNotFound))
	assert.Equal(t, 404, apperrors.HTTPStatusCode(err))

	_, err = svc.Get("")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestRemove(t *testing.T) {
	svc, n, _, m := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.Add(ctx, "stack", 1))

	require.NoError(t, svc.Remove(ctx, "Stack"))
	err := svc.Remove(ctx, "stack")
	assert.True(t, errors.Is(err, apperrors.ErrTermNotFound))

	assert.Equal(t, OpRemove, n.changes[len(n.changes)-1].Op)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.TermsIndexed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("remove", "not_found")))
}

func TestRemovePage(t *testing.T) {
	svc, n, _, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.Add(ctx, "cat", 1, 2))

	cascaded, err := svc.RemovePage(ctx, "cat", 1)
	require.NoError(t, err)
	assert.False(t, cascaded)

	_, err = svc.RemovePage(ctx, "cat", 9)
	assert.True(t, errors.Is(err, apperrors.ErrPageNotFound))
	assert.Equal(t, 404, apperrors.HTTPStatusCode(err))

	_, err = svc.RemovePage(ctx, "cat", 0)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))

	_, err = svc.RemovePage(ctx, "dog", 1)
	assert.True(t, errors.Is(err, apperrors.ErrTermNotFound))

	cascaded, err = svc.RemovePage(ctx, "cat", 2)
	require.NoError(t, err)
	assert.True(t, cascaded)
	assert.True(t, svc.IsEmpty())

	last := n.changes[len(n.changes)-1]
	assert.Equal(t, Change{Op: OpRemovePage, Name: "cat", Page: 2}, last)
}

func TestRename(t *testing.T) {
	svc, n, _, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.Add(ctx, "dog", 1))
	require.NoError(t, svc.Add(ctx, "doll", 2))
	require.NoError(t, svc.Add(ctx, "cat", 3))

	renamed, merged, err := svc.Rename(ctx, "dog", "doll")
	require.NoError(t, err)
	assert.True(t, merged)
	assert.Equal(t, "doll", renamed.Name())
	assert.Equal(t, []uint32{1, 2}, renamed.Pages())

	renamed, merged, err = svc.Rename(ctx, "cat", "Kitten")
	require.NoError(t, err)
	assert.False(t, merged)
	assert.Equal(t, "kitten", renamed.Name())

	_, merged, err = svc.Rename(ctx, "kitten", "kitten")
	require.NoError(t, err)
	assert.False(t, merged)

	_, _, err = svc.Rename(ctx, "bird", "owl")
	assert.True(t, errors.Is(err, apperrors.ErrTermNotFound))

	_, _, err = svc.Rename(ctx, "doll", " ")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))

	doll, err := svc.Get("doll")
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2}, doll.Pages())
	assert.Equal(t, Change{Op: OpRename, Name: "dog", NewName: "doll"}, n.changes[3])
}

func TestPrefixAndMostFrequent(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.MostFrequent()
	assert.True(t, errors.Is(err, apperrors.ErrTermNotFound))
	assert.Empty(t, svc.Prefix("a"))

	require.NoError(t, svc.Add(ctx, "apple", 3, 7))
	require.NoError(t, svc.Add(ctx, "app", 5))
	require.NoError(t, svc.Add(ctx, "banana", 1))

	var names []string
	for _, tm := range svc.Prefix("APP") {
		names = append(names, tm.Name())
	}
	assert.Equal(t, []string{"app", "apple"}, names)
	assert.Len(t, svc.Prefix(""), 3)

	best, err := svc.MostFrequent()
	require.NoError(t, err)
	assert.Equal(t, "apple", best.Name())
}

func TestClear(t *testing.T) {
	svc, n, inv, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.Add(ctx, "a", 1))

	svc.Clear(ctx)
	assert.True(t, svc.IsEmpty())
	assert.Equal(t, OpClear, n.changes[len(n.changes)-1].Op)
	assert.Equal(t, 2, inv.calls)
}

func TestLoadSaveExport(t *testing.T) {
	svc, n, inv, m := newTestService(t)
	ctx := context.Background()
	dir := t.TempDir()

	in := filepath.Join(dir, "terms.txt")
	require.NoError(t, os.WriteFile(in, []byte("Apple: 3, 7\nbanana: 2\nnot a line\n"), 0o644))

	stats, err := svc.LoadFile(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Terms)
	assert.Equal(t, 2, svc.Len())
	assert.Equal(t, 1, inv.calls)
	require.Len(t, n.changes, 1)
	assert.Equal(t, OpLoad, n.changes[0].Op)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TermsIndexed))

	out := filepath.Join(dir, "saved.txt")
	require.NoError(t, svc.SaveFile(out))
	saved, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "apple: 3, 7\nbanana: 2\n", string(saved))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotsTotal.WithLabelValues("file", "ok")))

	var buf bytes.Buffer
	require.NoError(t, svc.Export(&buf))
	assert.Equal(t, string(saved), buf.String())

	_, err = svc.LoadFile(ctx, filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}

func TestImport_PropagatesError(t *testing.T) {
	svc, n, _, _ := newTestService(t)
	boom := errors.New("boom")

	err := svc.Import(context.Background(), "test", func(textfile.Sink) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, n.changes)
}

func TestValidatePage(t *testing.T) {
	p, err := ValidatePage(42)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), p)

	_, err = ValidatePage(0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = ValidatePage(-7)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	// int is 32 bits on 386 and arm, where every positive int fits.
	if strconv.IntSize == 64 {
		shift := 32
		_, err = ValidatePage(1 << shift)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		p, err = ValidatePage(1<<shift - 1)
		require.NoError(t, err)
		assert.Equal(t, uint32(math.MaxUint32), p)
	}
}

func TestFileName(t *testing.T) {
	name, err := FileName("  index.txt ")
	require.NoError(t, err)
	assert.Equal(t, "index.txt", name)

	for _, bad := range []string{"", "..", "../etc/passwd", `a\b`, "dir/file"} {
		_, err := FileName(bad)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput, bad)
	}
}

func TestWithoutOptions(t *testing.T) {
	svc := New(directory.New())
	require.NoError(t, svc.Add(context.Background(), "plain", 1))
	assert.Len(t, svc.Prefix("p"), 1)
	svc.RecordSnapshot("postgres", nil)
}
