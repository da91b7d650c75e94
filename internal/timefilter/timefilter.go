// Package timefilter decides whether a record falls inside a query's
// time window, extracting and parsing a timestamp from the record's
// text when a ts_regex is configured.
//
// Timestamp parsing tries several time.ParseInLocation layouts in
// sequence against the first regex match, falling back to a
// caller-supplied zone when the text carries no explicit offset.
package timefilter

import (
	"regexp"
	"time"
)

// DefaultDriftTolerance widens both bounds symmetrically, absorbing
// small clock skew between the log source and the query's bounds.
const DefaultDriftTolerance = 3 * time.Second

// layouts are tried in order against the first regex match; they cover
// the common variants: optional fractional seconds, 'T' or space
// date/time separator, and Z or numeric offset.
var layouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Filter evaluates the time predicate for one record.
type Filter struct {
	TStart   *time.Time
	TEnd     *time.Time
	TSRegex  *regexp.Regexp
	// FallbackZone is used for timestamps with no explicit offset; UTC
	// when nil.
	FallbackZone *time.Location
	// DriftTolerance widens both bounds symmetrically. Zero is a valid,
	// literal setting (no tolerance) — callers that want the default
	// pass DefaultDriftTolerance explicitly; New never substitutes it.
	DriftTolerance time.Duration
}

// New builds a Filter. pattern may be nil for "no ts_regex configured".
// driftTolerance is taken as given, including zero: resolving "caller
// didn't specify a drift" to a default is the caller's job, not New's.
func New(tStart, tEnd *time.Time, pattern *regexp.Regexp, fallbackZone *time.Location, driftTolerance time.Duration) *Filter {
	return &Filter{
		TStart:         tStart,
		TEnd:           tEnd,
		TSRegex:        pattern,
		FallbackZone:   fallbackZone,
		DriftTolerance: driftTolerance,
	}
}

// Passes implements the §4.5 contract: passes(record, t_start?, t_end?,
// ts_regex?) → (boolean, optional timestamp).
func (f *Filter) Passes(text string) (bool, *time.Time) {
	if f.TStart == nil && f.TEnd == nil && f.TSRegex == nil {
		return true, nil
	}

	var ts *time.Time
	if f.TSRegex != nil {
		if loc := f.TSRegex.FindString(text); loc != "" {
			if parsed, ok := f.parse(loc); ok {
				ts = &parsed
			}
		}
	}

	if f.TStart == nil && f.TEnd == nil {
		return true, ts
	}

	if ts == nil {
		// A configured ts_regex that matched but didn't parse, or never
		// matched, leaves the record timestamp-less: excluded only when
		// both bounds are closed.
		if f.TStart != nil && f.TEnd != nil {
			return false, nil
		}
		return true, nil
	}

	drift := f.DriftTolerance
	if f.TStart != nil && ts.Before(f.TStart.Add(-drift)) {
		return false, ts
	}
	if f.TEnd != nil && ts.After(f.TEnd.Add(drift)) {
		return false, ts
	}
	return true, ts
}

// parse tries each recognised layout in turn, defaulting a timestamp
// with no explicit zone to f.FallbackZone (UTC when nil).
func (f *Filter) parse(raw string) (time.Time, bool) {
	loc := f.FallbackZone
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
