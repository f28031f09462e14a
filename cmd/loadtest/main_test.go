package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(5), percentile(sorted, 50))
	assert.Equal(t, time.Duration(10), percentile(sorted, 99))
	assert.Equal(t, time.Duration(1), percentile(sorted, 0))
	assert.Zero(t, percentile(nil, 50))
}

func TestSeedPostsEveryTerm(t *testing.T) {
	var added []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/terms", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Name  string `json:"name"`
			Pages []int  `json:"pages"`
		}
		require.NoError(t, json.Unmarshal(body, &req))
		added = append(added, req.Name)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	err := seed(srv.Client(), Config{BaseURL: srv.URL, Terms: []string{"heap", "stack"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"heap", "stack"}, added)
}

func TestSeedFailsOnRejectedTerm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := seed(srv.Client(), Config{BaseURL: srv.URL, Terms: []string{"heap"}})
	assert.ErrorContains(t, err, "unexpected status 400")
}

func TestCacheHit(t *testing.T) {
	assert.True(t, cacheHit([]byte(`{"prefix":"a","terms":[],"total":0,"cache_hit":true}`)))
	assert.False(t, cacheHit([]byte(`{"cache_hit":false}`)))
	assert.False(t, cacheHit([]byte(`not json`)))
}

func TestStatsRecordsPerOperation(t *testing.T) {
	s := NewStats()
	s.RecordRequest("get", time.Millisecond, http.StatusOK, nil)
	s.RecordRequest("get", time.Millisecond, http.StatusNotFound, nil)
	s.RecordRequest("add", time.Millisecond, 0, io.EOF)

	assert.Equal(t, int64(2), s.ops["get"].requests.Load())
	assert.Equal(t, int64(1), s.ops["get"].errors.Load())
	assert.Equal(t, int64(1), s.ops["add"].errors.Load())
	assert.Equal(t, int64(1), s.statusCodes[http.StatusNotFound].Load())
	_, recorded := s.statusCodes[0]
	assert.False(t, recorded)
}
