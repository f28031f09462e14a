// Package handler exposes the term index over HTTP/JSON.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/book-term-index/internal/service"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/internal/term"
	apperrors "github.com/Adithya-Monish-Kumar-K/book-term-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/book-term-index/pkg/logger"
)

const maxBodyBytes = 1 << 20

// PrefixCache caches prefix query results; *cache.PrefixCache satisfies it.
type PrefixCache interface {
	GetOrCompute(ctx context.Context, prefix string, compute func() ([]*term.Term, error)) ([]*term.Term, bool, error)
	Stats() (hits, misses int64)
}

type Handler struct {
	svc    *service.Service
	cache  PrefixCache
	logger *slog.Logger
}

// New creates a Handler. cache may be nil.
func New(svc *service.Service, cache PrefixCache) *Handler {
	return &Handler{
		svc:    svc,
		cache:  cache,
		logger: slog.Default().With("component", "term-handler"),
	}
}

type termResponse struct {
	Name      string   `json:"name"`
	Pages     []uint32 `json:"pages"`
	PageCount int      `json:"page_count"`
}

func toResponse(t *term.Term) termResponse {
	return termResponse{Name: t.Name(), Pages: t.Pages(), PageCount: t.PageCount()}
}

func toResponses(ts []*term.Term) []termResponse {
	out := make([]termResponse, len(ts))
	for i, t := range ts {
		out[i] = toResponse(t)
	}
	return out
}

type addRequest struct {
	Name  string `json:"name"`
	Pages []int  `json:"pages"`
}

type renameRequest struct {
	Name string `json:"name"`
}

// ListTerms returns every term in name order.
func (h *Handler) ListTerms(w http.ResponseWriter, r *http.Request) {
	terms := h.svc.All()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"terms": toResponses(terms),
		"total": len(terms),
	})
}

// AddTerm creates a term or merges pages into an existing one.
func (h *Handler) AddTerm(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	if err := h.svc.Add(r.Context(), req.Name, req.Pages...); err != nil {
		h.writeErr(w, r, err)
		return
	}
	t, err := h.svc.Get(req.Name)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toResponse(t))
}

func (h *Handler) GetTerm(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Get(r.PathValue("name"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toResponse(t))
}

func (h *Handler) RemoveTerm(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := h.svc.Remove(r.Context(), name); err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status": "removed",
		"name":   term.Normalize(name),
	})
}

// RenameTerm moves a term to the name in the request body, merging when
// that name already exists.
func (h *Handler) RenameTerm(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	t, merged, err := h.svc.Rename(r.Context(), r.PathValue("name"), req.Name)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"term":   toResponse(t),
		"merged": merged,
	})
}

// RemovePage removes one page; the term goes too when it was the last.
func (h *Handler) RemovePage(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	page, err := strconv.Atoi(r.PathValue("page"))
	if err != nil {
		h.writeErr(w, r, apperrors.Invalid("page must be an integer, got %q", r.PathValue("page")))
		return
	}
	cascaded, err := h.svc.RemovePage(r.Context(), name, page)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"name":         term.Normalize(name),
		"page":         page,
		"term_removed": cascaded,
	})
}

// Prefix lists the terms starting with q. A missing or empty q lists
// every term.
func (h *Handler) Prefix(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	prefix := r.URL.Query().Get("q")

	var terms []*term.Term
	cacheHit := false
	if h.cache != nil {
		var err error
		terms, cacheHit, err = h.cache.GetOrCompute(ctx, prefix, func() ([]*term.Term, error) {
			return h.svc.Prefix(prefix), nil
		})
		if err != nil {
			h.writeErr(w, r, err)
			return
		}
	} else {
		terms = h.svc.Prefix(prefix)
	}

	logger.FromContext(ctx).Debug("prefix query",
		"prefix", prefix,
		"returned", len(terms),
		"cache_hit", cacheHit,
	)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"prefix":    term.Normalize(prefix),
		"terms":     toResponses(terms),
		"total":     len(terms),
		"cache_hit": cacheHit,
	})
}

func (h *Handler) MostFrequent(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.MostFrequent()
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toResponse(t))
}

// Export streams the index in the term file format.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="terms.txt"`)
	if err := h.svc.Export(w); err != nil {
		logger.FromContext(r.Context()).Error("export failed", "error", err)
	}
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperrors.Invalid("request body exceeds %d bytes", maxErr.Limit)
		}
		return apperrors.Invalid("malformed JSON body: %s", strings.TrimPrefix(err.Error(), "json: "))
	}
	return nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		message = apperrors.ErrInternal.Error()
	}
	h.writeJSON(w, status, map[string]string{"error": message})
}
