package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/logsearch-mcp/internal/config"
	"github.com/standardbeagle/logsearch-mcp/internal/matcher"
	"github.com/standardbeagle/logsearch-mcp/internal/scanner"
	"github.com/standardbeagle/logsearch-mcp/internal/search"
	"github.com/standardbeagle/logsearch-mcp/internal/session"
	"github.com/standardbeagle/logsearch-mcp/internal/types"
)

func newTestHandler(t *testing.T) (*Handler, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.log"), []byte("boom error\nall fine\n"), 0o644))

	store, err := session.Open(session.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	scan := scanner.New()
	eng := search.New(scan, matcher.New(matcher.DefaultConfig()), store, search.DefaultConfig(), nil)
	cfg := config.Default()
	cfg.Search.MaxPageSize = 500
	return New(eng, scan, store, cfg, nil), dir
}

func TestHandleHealth(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.handleHealth(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "healthy", body["status"])
}

func TestHandleFiles_ListsMatchingFiles(t *testing.T) {
	h, dir := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/files?root="+dir, nil)
	rec := httptest.NewRecorder()
	h.handleFiles(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp filesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Files, 1)
}

func TestHandleFiles_MalformedGlobRejected(t *testing.T) {
	h, dir := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/files?root="+dir+"&include=%5B", nil)
	rec := httptest.NewRecorder()
	h.handleFiles(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSearch_ReturnsHits(t *testing.T) {
	h, dir := newTestHandler(t)
	q := types.Query{
		Scan:     types.ScanConfig{Root: dir},
		Logic:    types.Logic{Must: []types.Atom{{Text: "error"}}},
		PageSize: 50,
	}
	body, err := json.Marshal(q)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.handleSearch(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get(SessionHeader))

	var resp types.SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Hits, 1)
}

func TestHandleSearch_RejectsOversizedPage(t *testing.T) {
	h, dir := newTestHandler(t)
	q := types.Query{
		Scan:     types.ScanConfig{Root: dir},
		Logic:    types.Logic{Must: []types.Atom{{Text: "error"}}},
		PageSize: 10000,
	}
	body, err := json.Marshal(q)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.handleSearch(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSearch_RejectsPageWithoutCursor(t *testing.T) {
	h, dir := newTestHandler(t)
	q := types.Query{
		Scan:     types.ScanConfig{Root: dir},
		Logic:    types.Logic{Must: []types.Atom{{Text: "error"}}},
		PageSize: 10,
		Page:     2,
	}
	body, err := json.Marshal(q)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.handleSearch(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
