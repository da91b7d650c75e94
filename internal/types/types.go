// Package types holds the data model shared across the log search core:
// file descriptors, log records, match spans, hits, queries and cursors.
// Types here are plain data — behaviour lives in the owning packages
// (scanner, reader, parser, matcher, timefilter, search).
package types

import "time"

// Compression identifies how a file's bytes are stored on disk.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
)

// Encoding identifies the text encoding a Reader decoded a file from.
type Encoding string

const (
	EncodingUTF8     Encoding = "utf8"
	EncodingUTF8BOM  Encoding = "utf8_bom"
	EncodingUTF16LE  Encoding = "utf16_le"
	EncodingUTF16BE  Encoding = "utf16_be"
	EncodingGBK      Encoding = "gbk"
	EncodingUnknown  Encoding = "unknown"
)

// FileDescriptor is an immutable record of one candidate file as seen by
// the Scanner. family_id groups rotated siblings (app.log, app.log.1,
// app.log.2.gz) so the Engine can scan a family in rotation order.
type FileDescriptor struct {
	Path        string
	SizeBytes   int64
	Compression Compression
	Encoding    Encoding
	FamilyID    string
	ModTime     time.Time

	// FailureCause is not set by the Scanner: per-path failures such as
	// a denied symlink are reported as FailedFile entries instead.
	FailureCause string
}

// FailedFile records a scan or read failure for one path. Per-file
// failures never abort a request; they accumulate here.
type FailedFile struct {
	Path  string
	Cause string
}

// Record is a logical log entry produced by the Parser: one or more
// physical lines aggregated by the configured record-start pattern.
type Record struct {
	StartLine int // 1-based, inclusive
	EndLine   int // 1-based, inclusive
	Text      string
	ByteStart int64 // offset into the decoded stream
	ByteEnd   int64
	Truncated bool // true if any constituent physical line was truncated
}

// MatchSpan is a (offset, length) pair into a Record's decoded Text,
// measured in bytes. Spans are reported sorted by Offset, de-duplicated
// on exact overlap.
type MatchSpan struct {
	Offset int
	Length int
}

// Hit is one reported match, ready for JSON serialization.
type Hit struct {
	FilePath      string      `json:"file_path"`
	FamilyID      string      `json:"family_id"`
	StartLine     int         `json:"start_line"`
	EndLine       int         `json:"end_line"`
	Content       string      `json:"content,omitempty"`
	MatchPositions []MatchSpan `json:"match_positions"`
	Timestamp     *time.Time  `json:"timestamp,omitempty"`
}

// Atom is one predicate leaf: a literal or regex pattern with matching
// rules. regex=false does a literal substring search.
type Atom struct {
	Text          string `json:"text"`
	Regex         bool   `json:"regex"`
	CaseSensitive bool   `json:"case_sensitive"`
	WholeWord     bool   `json:"whole_word"`
}

// Logic is the boolean composition of atoms evaluated against a record.
type Logic struct {
	Must []Atom `json:"must,omitempty"`
	Any  []Atom `json:"any,omitempty"`
	None []Atom `json:"none,omitempty"`
}

// TimeWindow bounds the record timestamps a query accepts.
type TimeWindow struct {
	TStart  *time.Time `json:"t_start,omitempty"`
	TEnd    *time.Time `json:"t_end,omitempty"`
	TSRegex string     `json:"ts_regex,omitempty"`

	// DriftToleranceMs overrides the engine's default clock-skew
	// tolerance for this query. A pointer so an explicit 0 (no
	// tolerance) is distinguishable from "not set" (nil, inherit the
	// engine default).
	DriftToleranceMs *int64 `json:"drift_tolerance_ms,omitempty"`
}

// ScanConfig describes how the Scanner enumerates candidate files.
type ScanConfig struct {
	Root          string   `json:"root"`
	RootAlias     string   `json:"root_alias,omitempty"`
	IncludeGlobs  []string `json:"include_globs,omitempty"`
	ExcludeGlobs  []string `json:"exclude_globs,omitempty"`
	FilePaths     []string `json:"file_paths,omitempty"`
}

// Query is one search request: a scan scope, a boolean match
// expression, an optional time window, and pagination controls.
type Query struct {
	Scan             ScanConfig `json:"scan"`
	Logic            Logic      `json:"logic"`
	Time             TimeWindow `json:"time"`
	RecordStartRegex string     `json:"record_start_regex,omitempty"`
	PageSize         int        `json:"page_size"`
	Page             int        `json:"page,omitempty"`
	Cursor           string     `json:"cursor,omitempty"`
	MaxHits          int        `json:"max_hits"`
	HardTimeoutMs    int        `json:"hard_timeout_ms"`
	IncludeContent   bool       `json:"include_content"`
}

// SearchResponse is the Engine's output for one page of a query.
type SearchResponse struct {
	Hits           []Hit        `json:"hits"`
	Page           int          `json:"page"`
	PageSize       int          `json:"page_size"`
	TotalPages     *int         `json:"total_pages,omitempty"`
	TotalHits      *int         `json:"total_hits,omitempty"`
	ExecutionTimeMs int64       `json:"execution_time_ms"`
	FilesScanned   int          `json:"files_scanned"`
	BytesScanned   int64        `json:"bytes_scanned"`
	FailedFiles    []FailedFile `json:"failed_files,omitempty"`
	TimedOut       bool         `json:"timed_out"`
	Truncated      bool         `json:"truncated,omitempty"`
	Cursor         string       `json:"cursor,omitempty"`

	// RegexTimeouts counts records skipped because a regex evaluation
	// exceeded the per-match timeout.
	RegexTimeouts int `json:"regex_timeouts,omitempty"`
	// PositionsCapped is true when any record hit the soft 256-span cap
	// (the soft per-record span limit).
	PositionsCapped bool `json:"positions_capped,omitempty"`
}

// CursorPayload is the decoded form of an opaque pagination cursor.
// Field names are kept short because they are marshalled into the
// token itself.
type CursorPayload struct {
	SessionID  string `json:"sid"`
	FilePath   string `json:"f"`
	ByteOffset int64  `json:"b"`
	RecordLine int    `json:"l"`
	Fingerprint string `json:"pf"`
	PageSize   int    `json:"ps"`
	IssuedAt   int64  `json:"t"` // unix seconds
}
