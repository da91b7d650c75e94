// Package httpapi is the thin HTTP interfaces layer: it decodes
// requests, validates field ranges, forwards to the Engine, and
// translates results/errors to HTTP status codes. It holds no
// business logic of its own.
package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/standardbeagle/logsearch-mcp/internal/config"
	searcherrors "github.com/standardbeagle/logsearch-mcp/internal/errors"
	"github.com/standardbeagle/logsearch-mcp/internal/scanner"
	"github.com/standardbeagle/logsearch-mcp/internal/search"
	"github.com/standardbeagle/logsearch-mcp/internal/session"
	"github.com/standardbeagle/logsearch-mcp/internal/types"
)

// SessionHeader carries the caller's session id across requests; a
// request without one gets a freshly minted session.
const SessionHeader = "X-Session-Id"

// Handler wires the Engine and Scanner to HTTP routes.
type Handler struct {
	engine      *search.Engine
	scan        *scanner.Scanner
	sessions    *session.Store
	cfg         *config.Config
	maxPageSize int
	logger      *log.Logger
}

// New builds a Handler. cfg supplies the search.max_page_size cap and
// the config defaults baked into every query before it reaches the
// Engine (see ApplyQueryDefaults).
func New(engine *search.Engine, scan *scanner.Scanner, sessions *session.Store, cfg *config.Config, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	if cfg == nil {
		cfg = config.Default()
	}
	maxPageSize := cfg.Search.MaxPageSize
	if maxPageSize <= 0 {
		maxPageSize = 500
	}
	return &Handler{engine: engine, scan: scan, sessions: sessions, cfg: cfg, maxPageSize: maxPageSize, logger: logger}
}

// Register installs the /files, /search and /health routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/files", h.handleFiles)
	mux.HandleFunc("/search", h.handleSearch)
	mux.HandleFunc("/health", h.handleHealth)
}

type fileEntry struct {
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	FamilyID string `json:"family_id"`
}

type filesResponse struct {
	Files []fileEntry `json:"files"`
}

func (h *Handler) handleFiles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	root := q.Get("root")
	includes := splitCSV(q.Get("include"))
	excludes := splitCSV(q.Get("exclude"))

	for _, g := range append(append([]string(nil), includes...), excludes...) {
		if !doublestar.ValidatePattern(g) {
			writeError(w, searcherrors.New(searcherrors.KindBadRequest, "files.glob", errors.New("malformed glob: "+g)))
			return
		}
	}

	descriptors, failed, err := h.scan.List(r.Context(), types.ScanConfig{
		Root:         root,
		IncludeGlobs: includes,
		ExcludeGlobs: excludes,
	})
	if err != nil {
		writeError(w, searcherrors.New(searcherrors.KindIOError, "files.list", err))
		return
	}
	if len(descriptors) == 0 && len(failed) > 0 {
		writeError(w, searcherrors.New(searcherrors.KindFileDenied, "files.list", nil))
		return
	}

	resp := filesResponse{Files: make([]fileEntry, 0, len(descriptors))}
	for _, d := range descriptors {
		resp.Files = append(resp.Files, fileEntry{Path: d.Path, Size: d.SizeBytes, FamilyID: d.FamilyID})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query types.Query
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		writeError(w, searcherrors.New(searcherrors.KindBadRequest, "search.decode", err))
		return
	}

	if err := validateQuery(query, h.maxPageSize); err != nil {
		writeError(w, err)
		return
	}
	query = h.cfg.ApplyQueryDefaults(query)

	sessionID := r.Header.Get(SessionHeader)
	if sessionID == "" {
		sess, err := h.sessions.Create(r.Context(), "")
		if err != nil {
			writeError(w, searcherrors.New(searcherrors.KindInternal, "search.create_session", err))
			return
		}
		sessionID = sess.ID
	}

	resp, err := h.engine.Search(r.Context(), query, sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set(SessionHeader, sessionID)

	status := http.StatusOK
	switch {
	case resp.TimedOut && len(resp.Hits) == 0:
		status = http.StatusRequestTimeout
	case resp.Truncated && resp.Cursor != "":
		status = http.StatusPartialContent
	}
	writeJSON(w, status, resp)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// validateQuery enforces field-range checks before the
// request ever reaches the Engine.
func validateQuery(q types.Query, maxPageSize int) error {
	if q.Page < 0 {
		return searcherrors.New(searcherrors.KindBadRequest, "search.validate", errors.New("page must be >= 0"))
	}
	if q.Page > 1 && q.Cursor == "" {
		return searcherrors.New(searcherrors.KindBadRequest, "search.validate", errors.New("page > 1 requires a cursor"))
	}
	if q.PageSize != 0 && (q.PageSize < 1 || q.PageSize > maxPageSize) {
		return searcherrors.New(searcherrors.KindBadRequest, "search.validate", errors.New("page_size out of range"))
	}
	if q.HardTimeoutMs < 0 {
		return searcherrors.New(searcherrors.KindBadRequest, "search.validate", errors.New("hard_timeout_ms must be > 0"))
	}
	return nil
}

func writeError(w http.ResponseWriter, err error) {
	var serr *searcherrors.SearchError
	status := http.StatusInternalServerError
	body := map[string]string{"error": err.Error()}
	if errors.As(err, &serr) {
		status = serr.Kind.HTTPStatus()
		body["kind"] = string(serr.Kind)
		if serr.Kind == searcherrors.KindQuotaExceeded {
			body["retry_after_ms"] = "1000"
		}
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
