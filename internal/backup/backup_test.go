package backup

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/book-term-index/internal/directory"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/internal/term"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/pkg/config"
)

type memStore struct {
	mu   sync.Mutex
	objs map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{objs: make(map[string][]byte)}
}

func (s *memStore) Put(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objs[key] = append([]byte(nil), data...)
	return nil
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objs[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return data, nil
}

func (s *memStore) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for k := range s.objs {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func sampleTerms() []*term.Term {
	return []*term.Term{
		term.New("apple", 3, 7),
		term.New("binary tree", 10, 12),
		term.New("heap", 1),
	}
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	store := newMemStore()
	b, err := New(store, "/backups/")
	require.NoError(t, err)
	defer b.Close()
	ctx := context.Background()

	key, err := b.Upload(ctx, "index-1", sampleTerms())
	require.NoError(t, err)
	assert.Equal(t, "backups/index-1.txt.zst", key)

	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()
	raw, err := dec.DecodeAll(store.objs[key], nil)
	require.NoError(t, err)
	assert.Equal(t, "apple: 3, 7\nbinary tree: 10, 12\nheap: 1\n", string(raw))

	dir := directory.New()
	stats, err := b.Download(ctx, "index-1", dir)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Terms)
	got, ok := dir.GetTerm("binary tree")
	require.True(t, ok)
	assert.Equal(t, []uint32{10, 12}, got.Pages())
}

func TestDownload_Missing(t *testing.T) {
	b, err := New(newMemStore(), "backups")
	require.NoError(t, err)
	_, err = b.Download(context.Background(), "nope", directory.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDownload_Corrupt(t *testing.T) {
	store := newMemStore()
	store.objs["backups/bad.txt.zst"] = []byte("definitely not zstd")
	b, err := New(store, "backups")
	require.NoError(t, err)
	_, err = b.Download(context.Background(), "bad", directory.New())
	assert.Error(t, err)
}

func TestLatestAndList(t *testing.T) {
	store := newMemStore()
	store.objs["backups/readme.md"] = []byte("x")
	store.objs["elsewhere/index-20990101T000000Z.txt.zst"] = []byte("x")
	b, err := New(store, "backups")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = b.Latest(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	older := Name(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	newer := Name(time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC))
	assert.Equal(t, "index-20240501T090000Z", older)
	for _, n := range []string{newer, older} {
		_, err := b.Upload(ctx, n, sampleTerms())
		require.NoError(t, err)
	}

	names, err := b.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{older, newer}, names)

	latest, err := b.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, newer, latest)
}

func TestMinioStore_Integration(t *testing.T) {
	cfg := config.BackupConfig{
		Endpoint:  "localhost:9000",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "term-index-test",
	}
	if ep := os.Getenv("TI_TEST_MINIO_ENDPOINT"); ep != "" {
		cfg.Endpoint = ep
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	store, err := NewMinioStore(ctx, cfg)
	if err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	b, err := New(store, "it")
	require.NoError(t, err)
	defer b.Close()

	name := Name(time.Now())
	_, err = b.Upload(ctx, name, sampleTerms())
	require.NoError(t, err)

	dir := directory.New()
	_, err = b.Download(ctx, name, dir)
	require.NoError(t, err)
	assert.Equal(t, 3, dir.Len())

	latest, err := b.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, name, latest)
}
