// Package textfile translates between the line-oriented term file format
// and term/page-list insert calls. One term per line:
//
//	name: 3, 12, 45
//
// Malformed page tokens are skipped with a diagnostic; a line with no
// valid page is dropped so that loading never creates an empty term.
package textfile

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/book-term-index/internal/term"
)

// Sink receives one call per accepted line.
type Sink interface {
	AddTermPages(name string, pages []uint32)
}

// LoadStats summarizes a load.
type LoadStats struct {
	Lines   int `json:"lines"`
	Terms   int `json:"terms"`
	Dropped int `json:"dropped"`
	Skipped int `json:"skipped_pages"`
}

// ParseLine splits a line into a term name and its valid pages. skipped
// holds every page token that was not a positive integer. ok is false
// for lines that must be dropped.
func ParseLine(line string) (name string, pages []uint32, skipped []string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", nil, nil, false
	}
	left, right, found := strings.Cut(line, ":")
	if !found {
		return "", nil, nil, false
	}
	name = strings.TrimSpace(left)
	for _, tok := range strings.Split(right, ",") {
		tok = strings.TrimSpace(tok)
		page, err := strconv.ParseUint(strings.TrimPrefix(tok, "+"), 10, 32)
		if err != nil || page == 0 {
			skipped = append(skipped, tok)
			continue
		}
		pages = append(pages, uint32(page))
	}
	if name == "" || len(pages) == 0 {
		return name, nil, skipped, false
	}
	return name, pages, skipped, true
}

// Load reads r line by line and feeds every valid line to sink.
func Load(r io.Reader, sink Sink) (LoadStats, error) {
	logger := slog.Default().With("component", "textfile")
	var stats LoadStats
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		stats.Lines++
		raw := sc.Text()
		name, pages, skipped, ok := ParseLine(raw)
		for _, tok := range skipped {
			logger.Warn("invalid page ignored", "line", stats.Lines, "token", tok)
		}
		stats.Skipped += len(skipped)
		if !ok {
			if strings.TrimSpace(raw) != "" {
				stats.Dropped++
				logger.Debug("line dropped", "line", stats.Lines, "name", name)
			}
			continue
		}
		sink.AddTermPages(name, pages)
		stats.Terms++
	}
	if err := sc.Err(); err != nil {
		return stats, fmt.Errorf("reading term lines: %w", err)
	}
	return stats, nil
}

// LoadFile opens path and loads it into sink.
func LoadFile(path string, sink Sink) (LoadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return LoadStats{}, fmt.Errorf("opening term file: %w", err)
	}
	defer f.Close()
	stats, err := Load(f, sink)
	if err != nil {
		return stats, fmt.Errorf("loading %s: %w", path, err)
	}
	return stats, nil
}

// Save writes one line per term in the given order.
func Save(w io.Writer, terms []*term.Term) error {
	bw := bufio.NewWriter(w)
	for _, t := range terms {
		if _, err := bw.WriteString(t.Line()); err != nil {
			return fmt.Errorf("writing term %q: %w", t.Name(), err)
		}
		if err := bw.WriteByte('\n'); err != nil {
			return fmt.Errorf("writing term %q: %w", t.Name(), err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flushing term lines: %w", err)
	}
	return nil
}

// SaveFile atomically replaces path with the serialized terms. It writes
// to a .tmp file first and renames on success.
func SaveFile(path string, terms []*term.Term) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating save directory: %w", err)
	}
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp term file: %w", err)
	}
	if err := Save(f, terms); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing term file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing term file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming term file: %w", err)
	}
	return nil
}
