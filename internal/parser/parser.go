// Package parser aggregates the physical lines a Reader yields into
// logical log records, using an optional start-of-record pattern: a
// line not matching the pattern is a continuation of the previous
// record rather than a record of its own (e.g. a stack trace).
//
// Built as a single-pass, pull-based scanner with explicit byte
// bookkeeping, streaming one record at a time over reader.Stream
// rather than materialising a whole file.
package parser

import (
	"regexp"

	"github.com/standardbeagle/logsearch-mcp/internal/reader"
	"github.com/standardbeagle/logsearch-mcp/internal/types"
)

// Parser aggregates reader.Lines into types.Records. A nil
// start pattern means one physical line is one record.
type Parser struct {
	start   *regexp.Regexp
	pending *reader.Line
}

// New creates a Parser. startPattern may be nil.
func New(startPattern *regexp.Regexp) *Parser {
	return &Parser{start: startPattern}
}

// Next returns the next record from s, or ok=false at end of stream.
func (p *Parser) Next(s *reader.Stream) (types.Record, bool, error) {
	if p.start == nil {
		line, ok, err := s.Next()
		if err != nil {
			return types.Record{}, false, err
		}
		if !ok {
			return types.Record{}, false, nil
		}
		return recordFromLines([]reader.Line{line}), true, nil
	}
	return p.nextMultiline(s)
}

func (p *Parser) nextMultiline(s *reader.Stream) (types.Record, bool, error) {
	var lines []reader.Line

	if p.pending != nil {
		lines = append(lines, *p.pending)
		p.pending = nil
	} else {
		// Leading lines before the first start-pattern match have no
		// record to attach to; rather than silently drop them, each is
		// emitted as its own standalone record.
		for {
			line, ok, err := s.Next()
			if err != nil {
				return types.Record{}, false, err
			}
			if !ok {
				return types.Record{}, false, nil
			}
			if p.isStart(line.Text) {
				lines = append(lines, line)
				break
			}
			return recordFromLines([]reader.Line{line}), true, nil
		}
	}

	for {
		line, ok, err := s.Next()
		if err != nil {
			return types.Record{}, false, err
		}
		if !ok {
			return recordFromLines(lines), true, nil
		}
		if p.isStart(line.Text) {
			cp := line
			p.pending = &cp
			return recordFromLines(lines), true, nil
		}
		lines = append(lines, line)
	}
}

// isStart reports whether line opens a new record. The pattern is
// anchored at line start: a match that doesn't begin at offset 0 is
// ignored.
func (p *Parser) isStart(line string) bool {
	loc := p.start.FindStringIndex(line)
	return loc != nil && loc[0] == 0
}

func recordFromLines(lines []reader.Line) types.Record {
	var text string
	truncated := false
	for _, l := range lines {
		text += l.Text + l.Separator
		if l.Truncated {
			truncated = true
		}
	}
	return types.Record{
		StartLine: lines[0].LineNumber,
		EndLine:   lines[len(lines)-1].LineNumber,
		Text:      text,
		ByteStart: lines[0].ByteStart,
		ByteEnd:   lines[len(lines)-1].ByteEnd,
		Truncated: truncated,
	}
}
