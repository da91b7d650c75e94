// Package search implements the Engine: the orchestration layer that
// turns a Query into a paginated SearchResponse by scanning files
// concurrently, merging their hits in canonical order, and minting
// resumption cursors.
//
// Concurrency is bounded with golang.org/x/sync's semaphore.Weighted
// (caps in-flight file descriptors) and errgroup.Group (workers share
// the deadline-bound context; a worker records a per-file failure in
// its result instead of returning an error, so no file failure cancels
// the others) — a single
// query's worker pool has no need for a persistent operation registry
// the way a long-lived indexing job would.
package search

import (
	"context"
	"log"
	"path/filepath"
	"regexp"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/standardbeagle/logsearch-mcp/internal/errors"
	"github.com/standardbeagle/logsearch-mcp/internal/matcher"
	"github.com/standardbeagle/logsearch-mcp/internal/parser"
	"github.com/standardbeagle/logsearch-mcp/internal/reader"
	"github.com/standardbeagle/logsearch-mcp/internal/scanner"
	"github.com/standardbeagle/logsearch-mcp/internal/timefilter"
	"github.com/standardbeagle/logsearch-mcp/internal/types"
)

// DefaultMaxConcurrentFiles is the concurrency cap used when a
// Config leaves MaxConcurrentFiles unset.
const DefaultMaxConcurrentFiles = 4

// Config tunes an Engine. Values here are expected to come from the
// config package's search.* section.
type Config struct {
	MaxConcurrentFiles    int
	DefaultTimeoutMs      int
	MaxBytesPerQuery      int64
	CursorTTL             time.Duration
	ReaderConfig          reader.Config
	// DefaultDriftTolerance is the clock-skew tolerance applied when a
	// query doesn't set Query.Time.DriftToleranceMs. Unlike that
	// per-query field, this is a process-wide fallback and follows the
	// same "<=0 means unconfigured" convention as the other Config
	// fields here.
	DefaultDriftTolerance time.Duration
}

// DefaultConfig returns the baseline Engine tuning.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentFiles:    DefaultMaxConcurrentFiles,
		DefaultTimeoutMs:      30_000,
		MaxBytesPerQuery:      512 * 1024 * 1024,
		CursorTTL:             DefaultCursorTTL,
		ReaderConfig:          reader.DefaultConfig(),
		DefaultDriftTolerance: timefilter.DefaultDriftTolerance,
	}
}

// SessionAccessor is the thin slice of SessionStore the Engine needs:
// cursor validation (session still exists) and quota enforcement
// before dispatch. Defined here, not in the session package, so the
// Engine depends on a capability rather than a concrete store.
type SessionAccessor interface {
	Exists(ctx context.Context, sessionID string) bool
	ReserveBytes(ctx context.Context, sessionID string, projected int64) error
	AddBytesScanned(ctx context.Context, sessionID string, n int64) error
}

// Engine is the query orchestrator.
type Engine struct {
	scan     *scanner.Scanner
	match    *matcher.Matcher
	sessions SessionAccessor
	cfg      Config
	logger   *log.Logger
}

// New builds an Engine. logger defaults to log.Default() when nil.
func New(scan *scanner.Scanner, match *matcher.Matcher, sessions SessionAccessor, cfg Config, logger *log.Logger) *Engine {
	if cfg.MaxConcurrentFiles <= 0 {
		cfg.MaxConcurrentFiles = DefaultMaxConcurrentFiles
	}
	if cfg.DefaultTimeoutMs <= 0 {
		cfg.DefaultTimeoutMs = DefaultConfig().DefaultTimeoutMs
	}
	if cfg.CursorTTL <= 0 {
		cfg.CursorTTL = DefaultCursorTTL
	}
	if cfg.DefaultDriftTolerance <= 0 {
		cfg.DefaultDriftTolerance = timefilter.DefaultDriftTolerance
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{scan: scan, match: match, sessions: sessions, cfg: cfg, logger: logger}
}

// fileResult is one worker's complete output for a single file.
type fileResult struct {
	desc     types.FileDescriptor
	hits     []types.Hit
	byteEnds []int64 // parallel to hits; not part of the public Hit type

	bytesRead       int64
	failed          *types.FailedFile
	regexTimeouts   int
	positionsCapped bool
	opened          bool
}

// Search runs query for sessionID and returns one page of results.
func (e *Engine) Search(ctx context.Context, query types.Query, sessionID string) (types.SearchResponse, error) {
	startedAt := time.Now()
	normalizedRoot := normalizeRoot(query.Scan.Root)
	fingerprint := Fingerprint(query, normalizedRoot)

	if err := e.match.Validate(query.Logic); err != nil {
		return types.SearchResponse{}, errors.New(errors.KindRegexError, "search.validate_logic", err)
	}

	var tsRe *regexp.Regexp
	if query.Time.TSRegex != "" {
		var err error
		tsRe, err = regexp.Compile(query.Time.TSRegex)
		if err != nil {
			return types.SearchResponse{}, errors.New(errors.KindRegexError, "search.compile_ts_regex", err)
		}
	}
	var startRe *regexp.Regexp
	if query.RecordStartRegex != "" {
		var err error
		startRe, err = regexp.Compile(query.RecordStartRegex)
		if err != nil {
			return types.SearchResponse{}, errors.New(errors.KindRegexError, "search.compile_record_start_regex", err)
		}
	}

	descriptors, failedFiles, err := e.scan.List(ctx, query.Scan)
	if err != nil {
		return types.SearchResponse{}, errors.New(errors.KindIOError, "search.scan", err)
	}

	startFileIdx := 0
	var resumeByteOffset int64

	if query.Cursor != "" {
		cp, err := DecodeCursor(query.Cursor)
		if err != nil {
			return types.SearchResponse{}, err
		}
		if verr := ValidateCursor(cp, fingerprint, sessionID, e.cfg.CursorTTL, time.Now(), e.sessions.Exists(ctx, sessionID)); verr != nil {
			return types.SearchResponse{}, verr
		}
		// descriptors are ordered by (FamilyID, RotationIndex, Path) for
		// a glob scan, or caller order for an explicit file list —
		// neither is path-lexicographic, so the resume position is
		// found by exact-match scan, not binary search, over whichever
		// order the cursor's path was originally minted against.
		startFileIdx = len(descriptors)
		for i, d := range descriptors {
			if d.Path == cp.FilePath {
				startFileIdx = i
				break
			}
		}
		resumeByteOffset = cp.ByteOffset
	} else if query.Page > 1 {
		return types.SearchResponse{}, errors.New(errors.KindBadRequest, "search.page", nil)
	}

	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	target := pageSize + 1 // materialize one extra hit to know whether a next page exists
	if query.MaxHits > 0 && target > query.MaxHits {
		target = query.MaxHits
	}

	timeoutMs := query.HardTimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = e.cfg.DefaultTimeoutMs
	}
	workCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()

	active := descriptors[startFileIdx:]
	results := make([]fileResult, len(active))

	var projected int64
	for _, d := range active {
		projected += d.SizeBytes
	}
	if err := e.sessions.ReserveBytes(ctx, sessionID, projected); err != nil {
		return types.SearchResponse{}, err
	}

	sem := semaphore.NewWeighted(int64(e.cfg.MaxConcurrentFiles))
	group, gctx := errgroup.WithContext(workCtx)

	var progress progressTracker
	progress.target = target
	progress.byteCap = e.cfg.MaxBytesPerQuery

	dispatched := 0
	for i, d := range active {
		i, d := i, d
		if err := sem.Acquire(workCtx, 1); err != nil {
			break // context already done; remaining files stay unprocessed (opened=false)
		}
		dispatched++
		group.Go(func() error {
			defer sem.Release(1)
			startOffset := int64(0)
			if i == 0 {
				startOffset = resumeByteOffset
			}
			results[i] = e.scanFile(gctx, d, query, startRe, tsRe, startOffset, &progress)
			return nil
		})
	}
	_ = group.Wait()

	resp := e.merge(results, query, pageSize, target, fingerprint, sessionID, failedFiles, dispatched == len(active), workCtx.Err() != nil)
	resp.ExecutionTimeMs = time.Since(startedAt).Milliseconds()

	if resp.BytesScanned > 0 {
		if err := e.sessions.AddBytesScanned(ctx, sessionID, resp.BytesScanned); err != nil {
			e.logger.Printf("search: add_bytes_scanned failed for session %s: %v", sessionID, err)
		}
	}

	e.logger.Printf("search: session=%s files=%d scanned=%s hits=%d took=%dms",
		sessionID, resp.FilesScanned, humanize.Bytes(uint64(resp.BytesScanned)), len(resp.Hits), resp.ExecutionTimeMs)

	return resp, nil
}

// merge assembles the per-file results into one page, in canonical
// file order, and decides the short-circuit
// flags (timed_out, truncated, hit/byte cap) and whether total_hits /
// total_pages can be reported at all.
func (e *Engine) merge(results []fileResult, query types.Query, pageSize, target int, fingerprint, sessionID string, scanFailedFiles []types.FailedFile, allDispatched, deadlineHit bool) types.SearchResponse {
	failedFiles := append([]types.FailedFile(nil), scanFailedFiles...)

	var (
		boundedHits     []types.Hit
		boundedByteEnds []int64
		rawTotal        int
		filesScanned    int
		bytesScanned    int64
		regexTimeouts   int
		positionsCapped bool
	)

	for _, r := range results {
		if r.failed != nil {
			failedFiles = append(failedFiles, *r.failed)
		}
		if r.opened {
			filesScanned++
			bytesScanned += r.bytesRead
		}
		regexTimeouts += r.regexTimeouts
		if r.positionsCapped {
			positionsCapped = true
		}

		rawTotal += len(r.hits)
		for i, h := range r.hits {
			if len(boundedHits) < target {
				boundedHits = append(boundedHits, h)
				boundedByteEnds = append(boundedByteEnds, r.byteEnds[i])
			}
		}
	}

	byteCapped := e.cfg.MaxBytesPerQuery > 0 && bytesScanned > e.cfg.MaxBytesPerQuery
	hitCapped := query.MaxHits > 0 && len(boundedHits) >= query.MaxHits

	pageHits := boundedHits
	hasNext := len(boundedHits) > pageSize
	if hasNext {
		pageHits = boundedHits[:pageSize]
	}

	resp := types.SearchResponse{
		Hits:            pageHits,
		Page:            queryPage(query),
		PageSize:        pageSize,
		FilesScanned:    filesScanned,
		BytesScanned:    bytesScanned,
		FailedFiles:     failedFiles,
		TimedOut:        deadlineHit,
		Truncated:       hitCapped || byteCapped,
		RegexTimeouts:   regexTimeouts,
		PositionsCapped: positionsCapped,
	}

	fullyScanned := allDispatched && !deadlineHit && !byteCapped && rawTotal < target
	if fullyScanned {
		totalHits := rawTotal
		totalPages := (totalHits + pageSize - 1) / pageSize
		if totalPages == 0 {
			totalPages = 1
		}
		resp.TotalHits = &totalHits
		resp.TotalPages = &totalPages
	}

	if hasNext && !deadlineHit {
		last := pageHits[len(pageHits)-1]
		cursor, err := EncodeCursor(types.CursorPayload{
			SessionID:   sessionID,
			FilePath:    last.FilePath,
			ByteOffset:  boundedByteEnds[len(pageHits)-1],
			RecordLine:  last.EndLine,
			Fingerprint: fingerprint,
			PageSize:    pageSize,
			IssuedAt:    time.Now().Unix(),
		})
		if err == nil {
			resp.Cursor = cursor
		}
	}

	return resp
}

func queryPage(q types.Query) int {
	if q.Page > 0 {
		return q.Page
	}
	return 1
}

// scanFile reads one file end to end, applying the time filter and
// matcher to each record, stopping early when this file alone has
// produced target hits, this file alone has read more than the byte
// cap, or the context is cancelled (deadline/caller).
func (e *Engine) scanFile(ctx context.Context, desc types.FileDescriptor, query types.Query, startRe, tsRe *regexp.Regexp, startByteOffset int64, progress *progressTracker) fileResult {
	res := fileResult{desc: desc}

	stream, err := reader.Open(desc, e.cfg.ReaderConfig)
	if err != nil {
		res.failed = &types.FailedFile{Path: desc.Path, Cause: err.Error()}
		return res
	}
	defer stream.Close()
	res.opened = true

	p := parser.New(startRe)

	var tf *timefilter.Filter
	if query.Time.TStart != nil || query.Time.TEnd != nil || tsRe != nil {
		drift := e.cfg.DefaultDriftTolerance
		if query.Time.DriftToleranceMs != nil {
			drift = time.Duration(*query.Time.DriftToleranceMs) * time.Millisecond
		}
		tf = timefilter.New(query.Time.TStart, query.Time.TEnd, tsRe, nil, drift)
	}

	for {
		select {
		case <-ctx.Done():
			res.bytesRead = stream.BytesRead()
			return res
		default:
		}

		rec, ok, err := p.Next(stream)
		if err != nil {
			res.failed = &types.FailedFile{Path: desc.Path, Cause: err.Error()}
			break
		}
		if !ok {
			break
		}
		if rec.ByteEnd <= startByteOffset {
			continue
		}

		var ts *time.Time
		if tf != nil {
			passes, parsedTS := tf.Passes(rec.Text)
			if !passes {
				continue
			}
			ts = parsedTS
		}

		matched, spans, stats := e.match.Evaluate(rec, query.Logic)
		res.regexTimeouts += stats.RegexTimeouts
		if stats.PositionsCapped {
			res.positionsCapped = true
		}
		if !matched {
			continue
		}

		hit := types.Hit{
			FilePath:       desc.Path,
			FamilyID:       desc.FamilyID,
			StartLine:      rec.StartLine,
			EndLine:        rec.EndLine,
			MatchPositions: spans,
			Timestamp:      ts,
		}
		if query.IncludeContent {
			hit.Content = rec.Text
		}
		res.hits = append(res.hits, hit)
		res.byteEnds = append(res.byteEnds, rec.ByteEnd)

		if progress.record(len(res.hits), stream.BytesRead()) {
			res.bytesRead = stream.BytesRead()
			return res
		}
	}

	res.bytesRead = stream.BytesRead()
	return res
}

// progressTracker holds the per-request hit target and byte cap that
// each worker checks against its own running totals. It keeps no
// shared count: a worker stops when its own file has produced target
// hits or read more than byteCap bytes, and hits or bytes from other
// files do not stop it, so a request can read more than byteCap bytes
// in total across files. The authoritative enforcement happens in
// merge, which never emits more than target hits and sets Truncated
// when the total bytes read exceed the cap.
type progressTracker struct {
	target  int
	byteCap int64
}

func (p *progressTracker) record(hitsThisFile int, bytesThisFile int64) bool {
	if p.byteCap > 0 && bytesThisFile > p.byteCap {
		return true
	}
	return hitsThisFile >= p.target
}

func normalizeRoot(root string) string {
	abs, err := filepath.Abs(root)
	if err != nil {
		return root
	}
	return filepath.ToSlash(abs)
}
