package config

import "github.com/standardbeagle/logsearch-mcp/internal/types"

// ApplyQueryDefaults fills in the config-level fallbacks a query
// leaves unset, before the query ever reaches Fingerprint or
// Engine.Search: log_parser.line_start_regex, log_parser's timestamp
// pattern, search.default_page_size, and log_sources.log_file_paths.
// Called from the interface layer (httpapi/mcpapi), not the Engine
// itself, so the Engine stays agnostic of where its defaults came from.
func (c *Config) ApplyQueryDefaults(q types.Query) types.Query {
	if q.RecordStartRegex == "" {
		q.RecordStartRegex = c.LogParser.LineStartRegex
	}
	if q.Time.TSRegex == "" {
		q.Time.TSRegex = c.LogParser.DefaultTimestampRegex
	}
	if q.PageSize <= 0 {
		q.PageSize = c.Search.DefaultPageSize
	}
	if q.Scan.Root == "" && len(q.Scan.FilePaths) == 0 {
		q.Scan.FilePaths = c.LogSources.LogFilePaths
	}
	return q
}
