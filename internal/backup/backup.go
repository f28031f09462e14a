// Package backup ships zstd-compressed copies of the index to object
// storage and restores them. Objects use the plain term file format
// before compression, so a backup can be inspected with zstd -d.
package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/Adithya-Monish-Kumar-K/book-term-index/internal/term"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/internal/textfile"
)

const suffix = ".txt.zst"

var ErrNotFound = errors.New("backup not found")

// ObjectStore is the blob backend.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

type Backup struct {
	store  ObjectStore
	prefix string
	enc    *zstd.Encoder
	dec    *zstd.Decoder
	logger *slog.Logger
}

// New creates a Backup that keeps its objects under prefix.
func New(store ObjectStore, prefix string) (*Backup, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	return &Backup{
		store:  store,
		prefix: strings.Trim(prefix, "/"),
		enc:    enc,
		dec:    dec,
		logger: slog.Default().With("component", "backup"),
	}, nil
}

// Name returns the timestamped backup name for t.
func Name(t time.Time) string {
	return "index-" + t.UTC().Format("20060102T150405Z")
}

func (b *Backup) key(name string) string {
	return path.Join(b.prefix, name+suffix)
}

// Upload writes terms as backup name and returns the object key.
func (b *Backup) Upload(ctx context.Context, name string, terms []*term.Term) (string, error) {
	var buf bytes.Buffer
	if err := textfile.Save(&buf, terms); err != nil {
		return "", fmt.Errorf("serializing backup: %w", err)
	}
	compressed := b.enc.EncodeAll(buf.Bytes(), nil)
	key := b.key(name)
	if err := b.store.Put(ctx, key, compressed); err != nil {
		return "", fmt.Errorf("uploading backup %s: %w", name, err)
	}
	b.logger.Info("backup uploaded",
		"key", key,
		"terms", len(terms),
		"raw_bytes", buf.Len(),
		"compressed_bytes", len(compressed),
	)
	return key, nil
}

// Download loads backup name into sink.
func (b *Backup) Download(ctx context.Context, name string, sink textfile.Sink) (textfile.LoadStats, error) {
	key := b.key(name)
	compressed, err := b.store.Get(ctx, key)
	if err != nil {
		return textfile.LoadStats{}, fmt.Errorf("downloading backup %s: %w", name, err)
	}
	raw, err := b.dec.DecodeAll(compressed, nil)
	if err != nil {
		return textfile.LoadStats{}, fmt.Errorf("decompressing backup %s: %w", name, err)
	}
	stats, err := textfile.Load(bytes.NewReader(raw), sink)
	if err != nil {
		return stats, fmt.Errorf("parsing backup %s: %w", name, err)
	}
	b.logger.Info("backup restored", "key", key, "terms", stats.Terms)
	return stats, nil
}

// Latest returns the name of the newest backup.
func (b *Backup) Latest(ctx context.Context) (string, error) {
	names, err := b.List(ctx)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", ErrNotFound
	}
	return names[len(names)-1], nil
}

// List returns backup names oldest first.
func (b *Backup) List(ctx context.Context) ([]string, error) {
	listPrefix := b.prefix
	if listPrefix != "" {
		listPrefix += "/"
	}
	keys, err := b.store.List(ctx, listPrefix)
	if err != nil {
		return nil, fmt.Errorf("listing backups: %w", err)
	}
	var names []string
	for _, k := range keys {
		if !strings.HasSuffix(k, suffix) {
			continue
		}
		names = append(names, strings.TrimSuffix(path.Base(k), suffix))
	}
	return names, nil
}

func (b *Backup) Close() {
	b.enc.Close()
	b.dec.Close()
}
