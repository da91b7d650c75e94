// Package mcpapi exposes the same search surface as internal/httpapi
// over line-delimited JSON-RPC 2.0/stdio, as two MCP tools —
// list_log_files and search_logs — discoverable via the protocol's
// own tools/list method.
//
// Built on mcp.NewServer + AddTool + jsonschema.Schema input schemas +
// StdioTransport, with no legacy-field-alias machinery: this domain
// has one stable request shape, not years of backward-compatible tool
// params to shim around.
package mcpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/standardbeagle/logsearch-mcp/internal/config"
	searcherrors "github.com/standardbeagle/logsearch-mcp/internal/errors"
	"github.com/standardbeagle/logsearch-mcp/internal/scanner"
	"github.com/standardbeagle/logsearch-mcp/internal/search"
	"github.com/standardbeagle/logsearch-mcp/internal/session"
	"github.com/standardbeagle/logsearch-mcp/internal/types"
)

// Server wraps an mcp.Server configured with this module's two tools.
type Server struct {
	mcp      *mcp.Server
	engine   *search.Engine
	scan     *scanner.Scanner
	sessions *session.Store
	cfg      *config.Config
	logger   *log.Logger
}

// New builds a Server and registers its tools. Call Run to serve. cfg
// supplies the config defaults baked into every search_logs query
// before it reaches the Engine (see config.ApplyQueryDefaults).
func New(engine *search.Engine, scan *scanner.Scanner, sessions *session.Store, cfg *config.Config, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	if cfg == nil {
		cfg = config.Default()
	}
	impl := &mcp.Implementation{Name: "logsearch-mcp", Version: "0.1.0"}
	s := &Server{
		mcp:      mcp.NewServer(impl, nil),
		engine:   engine,
		scan:     scan,
		sessions: sessions,
		cfg:      cfg,
		logger:   logger,
	}
	s.registerTools()
	return s
}

// Run serves the MCP protocol over stdio until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	s.mcp.AddTool(&mcp.Tool{
		Name:        "list_log_files",
		Description: "List candidate log files under a root directory, honoring include/exclude globs.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"root":    {Type: "string", Description: "Root directory to scan"},
				"include": {Type: "array", Items: &jsonschema.Schema{Type: "string"}, Description: "Include globs"},
				"exclude": {Type: "array", Items: &jsonschema.Schema{Type: "string"}, Description: "Exclude globs"},
			},
			Required: []string{"root"},
		},
	}, s.handleListLogFiles)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "search_logs",
		Description: "Search log files for records matching boolean must/any/none patterns, with optional time-window filtering and cursor-based pagination.",
		InputSchema: &jsonschema.Schema{
			Type:        "object",
			Description: "A Query as described by the search_logs request contract: scan root/globs, logic (must/any/none atoms), time window, pagination.",
		},
	}, s.handleSearchLogs)
}

type listLogFilesParams struct {
	Root    string   `json:"root"`
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
}

type fileEntry struct {
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	FamilyID string `json:"family_id"`
}

func (s *Server) handleListLogFiles(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params listLogFilesParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return errorResult("list_log_files", err), nil
	}

	descriptors, _, err := s.scan.List(ctx, types.ScanConfig{
		Root:         params.Root,
		IncludeGlobs: params.Include,
		ExcludeGlobs: params.Exclude,
	})
	if err != nil {
		return errorResult("list_log_files", err), nil
	}

	entries := make([]fileEntry, 0, len(descriptors))
	for _, d := range descriptors {
		entries = append(entries, fileEntry{Path: d.Path, Size: d.SizeBytes, FamilyID: d.FamilyID})
	}
	return jsonResult(map[string]any{"files": entries})
}

// searchLogsParams is a Query plus the one field the wire schema adds
// on top of it: the session id a caller wants query history, memories
// and quota tracked against.
type searchLogsParams struct {
	types.Query
	SessionID string `json:"session_id,omitempty"`
}

func (s *Server) handleSearchLogs(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params searchLogsParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return errorResult("search_logs", err), nil
	}

	sid := params.SessionID
	if sid == "" {
		sess, err := s.sessions.Create(ctx, "")
		if err != nil {
			return errorResult("search_logs", err), nil
		}
		sid = sess.ID
	}

	query := s.cfg.ApplyQueryDefaults(params.Query)
	resp, err := s.engine.Search(ctx, query, sid)
	if err != nil {
		return errorResult("search_logs", err), nil
	}
	return jsonResult(resp)
}

func errorResult(op string, err error) *mcp.CallToolResult {
	var serr *searcherrors.SearchError
	kind := searcherrors.KindInternal
	if errors.As(err, &serr) {
		kind = serr.Kind
	}
	body, _ := json.Marshal(map[string]string{"op": op, "kind": string(kind), "error": err.Error()})
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(body)}},
		IsError: true,
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(body)}},
	}, nil
}
