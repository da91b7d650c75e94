// Package reader opens a file descriptor and yields a lazy,
// byte-accurate sequence of decoded physical lines: it detects gzip
// compression and text encoding, then streams decoded bytes through a
// boundary-aware line splitter.
package reader

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"log"
	"os"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/standardbeagle/logsearch-mcp/internal/types"
)

// Config tunes the Reader's buffering and truncation behaviour.
type Config struct {
	BufferSize   int // default 64 KiB
	MaxLineBytes int // default 1 MiB
}

// DefaultConfig returns the baseline buffering and truncation limits.
func DefaultConfig() Config {
	return Config{
		BufferSize:   64 * 1024,
		MaxLineBytes: 1 * 1024 * 1024,
	}
}

// Line is one physical line decoded from the underlying stream.
type Line struct {
	Text       string
	Separator  string // "", "\n", "\r\n", or "\r" — empty only at EOF with no trailing terminator
	ByteStart  int64
	ByteEnd    int64
	LineNumber int
	Truncated  bool
}

// Stream is a lazy, finite sequence of decoded lines over one file.
// Once exhausted, Next returns ok=false with a nil error.
type Stream struct {
	br         *bufio.Reader
	closers    []io.Closer
	offset     int64
	lineNumber int
	maxLine    int
	encoding   types.Encoding
}

// BytesRead reports how many decoded-stream bytes have been consumed
// so far — the figure session quota accounting charges against a
// session's running byte total.
func (s *Stream) BytesRead() int64 { return s.offset }

// DetectedEncoding reports the encoding Open resolved for this file.
func (s *Stream) DetectedEncoding() types.Encoding { return s.encoding }

// Close releases the underlying file handle(s).
func (s *Stream) Close() error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Open opens desc for streaming, detecting gzip and text encoding up
// front. The caller owns the returned Stream and must Close it.
func Open(desc types.FileDescriptor, cfg Config) (*Stream, error) {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if cfg.MaxLineBytes <= 0 {
		cfg.MaxLineBytes = DefaultConfig().MaxLineBytes
	}
	if desc.SizeBytes > 10<<30 {
		log.Printf("reader: %s is %s, larger than 10 GiB; processing anyway", desc.Path, humanize.IBytes(uint64(desc.SizeBytes)))
	}

	f, err := os.Open(desc.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", desc.Path, err)
	}

	var physical io.Reader = f
	closers := []io.Closer{f}

	if desc.Compression == types.CompressionGzip {
		gz, err := gzip.NewReader(bufio.NewReaderSize(f, cfg.BufferSize))
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("gzip open %s: %w", desc.Path, err)
		}
		physical = gz
		closers = append(closers, gz)
	}

	br := bufio.NewReaderSize(physical, cfg.BufferSize)
	decoded, enc, err := detectAndDecode(br)
	if err != nil {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i].Close()
		}
		return nil, err
	}

	return &Stream{
		br:      bufio.NewReaderSize(decoded, cfg.BufferSize),
		closers: closers,
		maxLine: cfg.MaxLineBytes,
		encoding: enc,
	}, nil
}

// detectAndDecode inspects the BOM (if any) and wraps br in a decoder
// that emits UTF-8. UTF-16 streams are fully materialised up front;
// UTF-8/GBK streams remain lazily streamed.
func detectAndDecode(br *bufio.Reader) (io.Reader, types.Encoding, error) {
	head, _ := br.Peek(4)

	switch {
	case len(head) >= 3 && head[0] == 0xEF && head[1] == 0xBB && head[2] == 0xBF:
		br.Discard(3)
		return br, types.EncodingUTF8BOM, nil

	case len(head) >= 2 && head[0] == 0xFF && head[1] == 0xFE:
		data, err := io.ReadAll(br)
		if err != nil {
			return nil, types.EncodingUnknown, err
		}
		out, _, err := transform.Bytes(unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder(), data)
		if err != nil {
			return nil, types.EncodingUnknown, fmt.Errorf("utf16le decode: %w", err)
		}
		return newByteReader(out), types.EncodingUTF16LE, nil

	case len(head) >= 2 && head[0] == 0xFE && head[1] == 0xFF:
		data, err := io.ReadAll(br)
		if err != nil {
			return nil, types.EncodingUnknown, err
		}
		out, _, err := transform.Bytes(unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder(), data)
		if err != nil {
			return nil, types.EncodingUnknown, fmt.Errorf("utf16be decode: %w", err)
		}
		return newByteReader(out), types.EncodingUTF16BE, nil
	}

	// No BOM: default to UTF-8, falling back to GBK when the peeked
	// header is not valid UTF-8.
	probe, _ := br.Peek(br.Size())
	if utf8.Valid(probe) {
		return br, types.EncodingUTF8, nil
	}
	return transform.NewReader(br, simplifiedchinese.GBK.NewDecoder()), types.EncodingGBK, nil
}

func newByteReader(b []byte) io.Reader {
	return &sliceReader{data: b}
}

type sliceReader struct {
	data []byte
	pos  int
}

func (r *sliceReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}

// Next returns the next decoded physical line. ok is false once the
// stream is exhausted; err is non-nil only on a genuine I/O failure.
func (s *Stream) Next() (Line, bool, error) {
	raw, sepLen, readErr := readPhysicalLine(s.br)
	if len(raw) == 0 && sepLen == 0 && readErr != nil {
		if readErr == io.EOF {
			return Line{}, false, nil
		}
		return Line{}, false, readErr
	}

	truncated := false
	consumed := len(raw)
	if len(raw) > s.maxLine {
		cut := s.maxLine
		for cut > 0 && !utf8.RuneStart(raw[cut]) {
			cut--
		}
		raw = raw[:cut]
		truncated = true
	}

	s.lineNumber++
	byteStart := s.offset
	// byteEnd accounts for the full physical line consumed from the
	// stream, including any tail dropped by truncation above, so
	// offsets (and cursor byte_offset) stay accurate past a line
	// longer than maxLine.
	byteEnd := byteStart + int64(consumed) + int64(separatorByteLen(sepLen))
	s.offset = byteEnd

	line := Line{
		Text:       string(raw),
		Separator:  separatorString(sepLen),
		ByteStart:  byteStart,
		ByteEnd:    byteEnd,
		LineNumber: s.lineNumber,
		Truncated:  truncated,
	}

	if readErr == io.EOF {
		return line, true, nil
	}
	return line, true, nil
}

// separatorString and separatorByteLen interpret readPhysicalLine's
// sepLen code: 0 = none (EOF with no terminator), 1 = "\n", 2 = "\r\n",
// 3 = lone "\r".
func separatorString(sepLen int) string {
	switch sepLen {
	case 1:
		return "\n"
	case 2:
		return "\r\n"
	case 3:
		return "\r"
	default:
		return ""
	}
}

func separatorByteLen(sepLen int) int {
	switch sepLen {
	case 1, 3:
		return 1
	case 2:
		return 2
	default:
		return 0
	}
}

// readPhysicalLine reads up to and including the next line terminator,
// recognising \n, \r\n and \r. It returns the line content without
// its terminator and a terminator code (see
// separatorString/separatorByteLen).
func readPhysicalLine(br *bufio.Reader) ([]byte, int, error) {
	var buf []byte
	for {
		b, err := br.ReadByte()
		if err != nil {
			if len(buf) > 0 {
				return buf, 0, io.EOF
			}
			return nil, 0, err
		}
		switch b {
		case '\n':
			return buf, 1, nil
		case '\r':
			next, peekErr := br.Peek(1)
			if peekErr == nil && len(next) == 1 && next[0] == '\n' {
				br.ReadByte()
				return buf, 2, nil
			}
			return buf, 3, nil
		default:
			buf = append(buf, b)
		}
	}
}
