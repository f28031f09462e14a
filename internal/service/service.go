// Package service is the boundary around the term directory. It rejects
// invalid input, turns not-found results into typed errors, and fans every
// successful mutation out to metrics, the prefix cache and change
// subscribers.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/book-term-index/internal/directory"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/internal/term"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/internal/textfile"
	apperrors "github.com/Adithya-Monish-Kumar-K/book-term-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/pkg/metrics"
)

// Op names a kind of mutation.
type Op string

const (
	OpAdd        Op = "term_added"
	OpRemove     Op = "term_removed"
	OpRemovePage Op = "page_removed"
	OpRename     Op = "term_renamed"
	OpLoad       Op = "index_loaded"
	OpClear      Op = "index_cleared"
)

// Change describes one successful mutation.
type Change struct {
	Op      Op
	Name    string
	NewName string
	Pages   []uint32
	Page    uint32
}

// Notifier receives every successful mutation.
type Notifier interface {
	Notify(ctx context.Context, c Change) error
}

// Invalidator drops cached read results after a mutation.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

type Service struct {
	dir      *directory.Directory
	metrics  *metrics.Metrics
	notifier Notifier
	cache    Invalidator
	logger   *slog.Logger
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithInvalidator(i Invalidator) Option {
	return func(s *Service) { s.cache = i }
}

func New(dir *directory.Directory, opts ...Option) *Service {
	s := &Service{
		dir:    dir,
		logger: slog.Default().With("component", "index-service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetInvalidator attaches a cache after construction; the daemon only
// knows whether Redis is reachable once it has started.
func (s *Service) SetInvalidator(i Invalidator) {
	s.cache = i
}

// ValidatePage converts a user-supplied page number, rejecting zero,
// negatives and values that do not fit the index.
func ValidatePage(page int) (uint32, error) {
	if page <= 0 {
		return 0, apperrors.Invalid("page must be a positive integer, got %d", page)
	}
	if uint64(page) > math.MaxUint32 {
		return 0, apperrors.Invalid("page %d out of range", page)
	}
	return uint32(page), nil
}

func validateName(name string) (string, error) {
	n := term.Normalize(name)
	if n == "" {
		return "", apperrors.Invalid("term name must not be blank")
	}
	return n, nil
}

// Add merges pages into the named term, creating it on first use.
func (s *Service) Add(ctx context.Context, name string, pages ...int) error {
	n, err := validateName(name)
	if err != nil {
		s.record("add", err)
		return err
	}
	if len(pages) == 0 {
		err := apperrors.Invalid("at least one page is required")
		s.record("add", err)
		return err
	}
	valid := make([]uint32, 0, len(pages))
	for _, p := range pages {
		v, err := ValidatePage(p)
		if err != nil {
			s.record("add", err)
			return err
		}
		valid = append(valid, v)
	}

	s.dir.AddTermPages(n, valid)
	s.record("add", nil)
	logger.FromContext(ctx).Debug("term pages added", "term", n, "pages", valid)
	s.changed(ctx, Change{Op: OpAdd, Name: n, Pages: valid})
	return nil
}

// Get returns a copy of the named term.
func (s *Service) Get(name string) (*term.Term, error) {
	n, err := validateName(name)
	if err != nil {
		return nil, err
	}
	t, ok := s.dir.GetTerm(n)
	if !ok {
		return nil, apperrors.NotFound(n)
	}
	return t, nil
}

// Remove deletes the named term.
func (s *Service) Remove(ctx context.Context, name string) error {
	n, err := validateName(name)
	if err != nil {
		s.record("remove", err)
		return err
	}
	if !s.dir.RemoveTerm(n) {
		err := apperrors.NotFound(n)
		s.record("remove", err)
		return err
	}
	s.record("remove", nil)
	logger.FromContext(ctx).Info("term removed", "term", n)
	s.changed(ctx, Change{Op: OpRemove, Name: n})
	return nil
}

// RemovePage removes one page from the named term. cascaded reports that
// it was the term's last page and the term is gone.
func (s *Service) RemovePage(ctx context.Context, name string, page int) (cascaded bool, err error) {
	n, err := validateName(name)
	if err != nil {
		s.record("remove_page", err)
		return false, err
	}
	p, err := ValidatePage(page)
	if err != nil {
		s.record("remove_page", err)
		return false, err
	}
	t, ok := s.dir.GetTerm(n)
	if !ok {
		err := apperrors.NotFound(n)
		s.record("remove_page", err)
		return false, err
	}
	if !t.HasPage(p) {
		err := apperrors.Newf(apperrors.ErrPageNotFound, http.StatusNotFound, "page %d is not listed under %q", p, n)
		s.record("remove_page", err)
		return false, err
	}

	removed, cascaded := s.dir.RemovePageFromTerm(p, n)
	if !removed {
		// removed concurrently between the lookup and the delete
		err := apperrors.Newf(apperrors.ErrPageNotFound, http.StatusNotFound, "page %d is not listed under %q", p, n)
		s.record("remove_page", err)
		return false, err
	}
	s.record("remove_page", nil)
	logger.FromContext(ctx).Info("page removed", "term", n, "page", p, "term_removed", cascaded)
	s.changed(ctx, Change{Op: OpRemovePage, Name: n, Page: p})
	return cascaded, nil
}

// Rename moves oldName's pages to newName and returns a copy of the
// resulting term. merged reports that newName already existed and absorbed
// the pages.
func (s *Service) Rename(ctx context.Context, oldName, newName string) (renamed *term.Term, merged bool, err error) {
	o, err := validateName(oldName)
	if err != nil {
		s.record("rename", err)
		return nil, false, err
	}
	nn, err := validateName(newName)
	if err != nil {
		s.record("rename", err)
		return nil, false, err
	}
	renamed, merged, ok := s.dir.RenameTerm(o, nn)
	if !ok {
		err := apperrors.NotFound(o)
		s.record("rename", err)
		return nil, false, err
	}
	s.record("rename", nil)
	logger.FromContext(ctx).Info("term renamed", "from", o, "to", nn, "merged", merged)
	s.changed(ctx, Change{Op: OpRename, Name: o, NewName: nn})
	return renamed, merged, nil
}

// Prefix returns the terms starting with prefix. An empty prefix lists
// every term.
func (s *Service) Prefix(prefix string) []*term.Term {
	out := s.dir.TermsWithPrefix(prefix)
	if s.metrics != nil {
		s.metrics.PrefixResultsCount.Observe(float64(len(out)))
	}
	s.record("prefix", nil)
	return out
}

// MostFrequent returns the term listed on the most pages.
func (s *Service) MostFrequent() (*term.Term, error) {
	t, ok := s.dir.MostFrequentTerm()
	if !ok {
		return nil, apperrors.New(apperrors.ErrTermNotFound, http.StatusNotFound, "index is empty")
	}
	return t, nil
}

// All lists every term in name order.
func (s *Service) All() []*term.Term {
	return s.dir.AllTerms()
}

func (s *Service) Len() int {
	return s.dir.Len()
}

func (s *Service) IsEmpty() bool {
	return s.dir.IsEmpty()
}

// Clear drops every term.
func (s *Service) Clear(ctx context.Context) {
	s.dir.Clear()
	s.logger.Info("index cleared")
	s.changed(ctx, Change{Op: OpClear})
}

// Import runs fn against the directory as a bulk load, then refreshes
// metrics and caches once. source is only used for logging.
func (s *Service) Import(ctx context.Context, source string, fn func(textfile.Sink) error) error {
	before := s.dir.Len()
	if err := fn(s.dir); err != nil {
		return fmt.Errorf("importing from %s: %w", source, err)
	}
	s.logger.Info("terms imported",
		"source", source,
		"terms_before", before,
		"terms_after", s.dir.Len(),
	)
	s.changed(ctx, Change{Op: OpLoad, Name: source})
	return nil
}

// LoadFile merges the term file at path into the index.
func (s *Service) LoadFile(ctx context.Context, path string) (textfile.LoadStats, error) {
	var stats textfile.LoadStats
	err := s.Import(ctx, path, func(sink textfile.Sink) error {
		var err error
		stats, err = textfile.LoadFile(path, sink)
		return err
	})
	return stats, err
}

// SaveFile writes the whole index to path.
func (s *Service) SaveFile(path string) error {
	err := textfile.SaveFile(path, s.dir.AllTerms())
	s.recordSnapshot("file", err)
	if err != nil {
		return err
	}
	s.logger.Info("index saved", "path", path, "terms", s.dir.Len())
	return nil
}

// Export writes the whole index in the term file format.
func (s *Service) Export(w io.Writer) error {
	return textfile.Save(w, s.dir.AllTerms())
}

func (s *Service) changed(ctx context.Context, c Change) {
	if s.metrics != nil {
		s.metrics.TermsIndexed.Set(float64(s.dir.Len()))
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			s.logger.Error("prefix cache invalidation failed", "op", c.Op, "error", err)
		}
	}
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, c); err != nil {
			s.logger.Error("change notification failed", "op", c.Op, "term", c.Name, "error", err)
		}
	}
}

func (s *Service) record(op string, err error) {
	if s.metrics == nil {
		return
	}
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrInvalidInput):
		result = "invalid"
	case errors.Is(err, apperrors.ErrTermNotFound), errors.Is(err, apperrors.ErrPageNotFound):
		result = "not_found"
	default:
		result = "error"
	}
	s.metrics.OperationsTotal.WithLabelValues(op, result).Inc()
}

// RecordSnapshot counts a snapshot written by another component.
func (s *Service) RecordSnapshot(target string, err error) {
	s.recordSnapshot(target, err)
}

func (s *Service) recordSnapshot(target string, err error) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.SnapshotsTotal.WithLabelValues(target, status).Inc()
}

// FileName rejects names that would escape the data or save directory.
func FileName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", apperrors.Invalid("invalid file name %q", name)
	}
	return name, nil
}
