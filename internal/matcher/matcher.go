package matcher

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/standardbeagle/logsearch-mcp/internal/types"
)

// DefaultRegexTimeout is the per-atom regex evaluation budget.
const DefaultRegexTimeout = 50 * time.Millisecond

// MaxPositionsPerRecord is the soft cap on reported match spans per
// record.
const MaxPositionsPerRecord = 256

// Config tunes a Matcher.
type Config struct {
	RegexCacheSize int
	RegexTimeout   time.Duration
}

// DefaultConfig returns the baseline Matcher tuning.
func DefaultConfig() Config {
	return Config{RegexCacheSize: DefaultRegexCacheSize, RegexTimeout: DefaultRegexTimeout}
}

// Stats accumulates per-query counters the Matcher contributes to
// SearchResponse.
type Stats struct {
	RegexTimeouts   int
	PositionsCapped bool
}

// Matcher evaluates a types.Logic against a types.Record's text,
// combining literal and whole-word matching with a cached regex path.
type Matcher struct {
	cache   *regexCache
	timeout time.Duration
}

// New creates a Matcher with the given configuration.
func New(cfg Config) *Matcher {
	if cfg.RegexCacheSize <= 0 {
		cfg.RegexCacheSize = DefaultRegexCacheSize
	}
	if cfg.RegexTimeout <= 0 {
		cfg.RegexTimeout = DefaultRegexTimeout
	}
	return &Matcher{cache: newRegexCache(cfg.RegexCacheSize), timeout: cfg.RegexTimeout}
}

// Validate compiles every regex atom in logic without evaluating it,
// so a malformed pattern fails the whole request before any file is
// opened.
func (m *Matcher) Validate(logic types.Logic) error {
	for _, group := range [][]types.Atom{logic.Must, logic.Any, logic.None} {
		for _, atom := range group {
			if !atom.Regex {
				continue
			}
			if _, err := m.compile(atom); err != nil {
				return err
			}
		}
	}
	return nil
}

// Evaluate checks none-atoms first for short-circuit rejection, then
// requires every must-atom to match and at least one any-atom to
// match when any-atoms are present. Positions from all contributing
// must/any atoms are merged, sorted, de-duplicated and capped.
func (m *Matcher) Evaluate(record types.Record, logic types.Logic) (bool, []types.MatchSpan, Stats) {
	var stats Stats
	text := record.Text

	for _, atom := range logic.None {
		matched, _, timedOut := m.matchAtom(text, atom)
		if timedOut {
			// A none-atom that times out can't be confirmed absent;
			// the record is not rejected on its account.
			stats.RegexTimeouts++
			continue
		}
		if matched {
			return false, nil, stats
		}
	}

	var spans []types.MatchSpan

	for _, atom := range logic.Must {
		matched, positions, timedOut := m.matchAtom(text, atom)
		if timedOut {
			stats.RegexTimeouts++
			return false, nil, stats
		}
		if !matched {
			return false, nil, stats
		}
		spans = append(spans, positions...)
	}

	if len(logic.Any) > 0 {
		anyMatched := false
		for _, atom := range logic.Any {
			matched, positions, timedOut := m.matchAtom(text, atom)
			if timedOut {
				stats.RegexTimeouts++
				continue
			}
			if matched {
				anyMatched = true
				spans = append(spans, positions...)
			}
		}
		if !anyMatched {
			return false, nil, stats
		}
	}

	spans, capped := normalizeSpans(spans)
	if capped {
		stats.PositionsCapped = true
	}
	return true, spans, stats
}

// matchAtom returns whether atom matches text, the spans it contributes,
// and whether its regex evaluation timed out (in which case matched is
// always false and the caller must not trust it as a verdict).
func (m *Matcher) matchAtom(text string, atom types.Atom) (bool, []types.MatchSpan, bool) {
	if atom.Regex {
		return m.matchRegex(text, atom)
	}
	return matchLiteral(text, atom), literalSpans(text, atom), false
}

// matchLiteral and literalSpans implement literal and whole-word
// substring matching over a record's decoded text.
func matchLiteral(text string, atom types.Atom) bool {
	return len(literalSpans(text, atom)) > 0
}

func literalSpans(text string, atom types.Atom) []types.MatchSpan {
	if atom.Text == "" {
		return nil
	}
	haystack := text
	needle := atom.Text
	if !atom.CaseSensitive {
		haystack = strings.ToLower(haystack)
		needle = strings.ToLower(needle)
	}

	var spans []types.MatchSpan
	offset := 0
	for {
		idx := strings.Index(haystack[offset:], needle)
		if idx < 0 {
			break
		}
		pos := offset + idx
		if !atom.WholeWord || (isWordBoundary(text, pos) && isWordBoundary(text, pos+len(needle))) {
			spans = append(spans, types.MatchSpan{Offset: pos, Length: len(needle)})
		}
		offset = pos + 1 // overlapping matches allowed
	}
	return spans
}

func isWordChar(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9') || b == '_'
}

func isWordBoundary(text string, pos int) bool {
	if pos < 0 || pos > len(text) {
		return true
	}
	var prevWord, currWord bool
	if pos > 0 {
		prevWord = isWordChar(text[pos-1])
	}
	if pos < len(text) {
		currWord = isWordChar(text[pos])
	}
	return prevWord != currWord
}

// matchRegex compiles (or fetches from cache) the atom's pattern — with
// whole_word achieved via \b anchors rather than post-filtering — and
// runs it with a bounded timeout. regexp.Regexp has no native
// cancellation, so the match runs on a worker goroutine and the caller
// abandons it (goroutine finishes and its result is discarded) if the
// timeout elapses first.
func (m *Matcher) matchRegex(text string, atom types.Atom) (bool, []types.MatchSpan, bool) {
	re, err := m.compile(atom)
	if err != nil {
		return false, nil, false
	}

	type result struct {
		locs [][]int
	}
	done := make(chan result, 1)
	go func() {
		done <- result{locs: re.FindAllStringIndex(text, -1)}
	}()

	select {
	case r := <-done:
		if len(r.locs) == 0 {
			return false, nil, false
		}
		spans := make([]types.MatchSpan, 0, len(r.locs))
		for _, loc := range r.locs {
			spans = append(spans, types.MatchSpan{Offset: loc[0], Length: loc[1] - loc[0]})
		}
		return true, spans, false
	case <-time.After(m.timeout):
		return false, nil, true
	}
}

func (m *Matcher) compile(atom types.Atom) (*regexp.Regexp, error) {
	key := regexCacheKey(atom.Text, atom.CaseSensitive, atom.WholeWord)
	if re, ok := m.cache.get(key); ok {
		return re, nil
	}

	pattern := atom.Text
	if atom.WholeWord {
		pattern = `\b(?:` + pattern + `)\b`
	}
	if !atom.CaseSensitive {
		pattern = `(?i)` + pattern
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	m.cache.set(key, re)
	return re, nil
}

// normalizeSpans sorts spans by offset, de-duplicates exact-overlap
// entries, and enforces MaxPositionsPerRecord.
func normalizeSpans(spans []types.MatchSpan) ([]types.MatchSpan, bool) {
	if len(spans) == 0 {
		return nil, false
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].Offset != spans[j].Offset {
			return spans[i].Offset < spans[j].Offset
		}
		return spans[i].Length < spans[j].Length
	})

	deduped := spans[:0:0]
	for i, s := range spans {
		if i > 0 && s == spans[i-1] {
			continue
		}
		deduped = append(deduped, s)
	}

	if len(deduped) > MaxPositionsPerRecord {
		return deduped[:MaxPositionsPerRecord], true
	}
	return deduped, false
}
