package reader

import (
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/logsearch-mcp/internal/types"
)

func writeFile(t *testing.T, content []byte) types.FileDescriptor {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.log")
	require.NoError(t, os.WriteFile(path, content, 0o644))
	info, err := os.Stat(path)
	require.NoError(t, err)
	return types.FileDescriptor{Path: path, SizeBytes: info.Size(), Compression: types.CompressionNone}
}

func readAllLines(t *testing.T, s *Stream) []Line {
	t.Helper()
	var lines []Line
	for {
		l, ok, err := s.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		lines = append(lines, l)
	}
	return lines
}

func TestReader_BasicLFLines(t *testing.T) {
	desc := writeFile(t, []byte("one\ntwo\nthree\n"))
	s, err := Open(desc, DefaultConfig())
	require.NoError(t, err)
	defer s.Close()

	lines := readAllLines(t, s)
	require.Len(t, lines, 3)
	require.Equal(t, "one", lines[0].Text)
	require.Equal(t, "two", lines[1].Text)
	require.Equal(t, "three", lines[2].Text)
	require.Equal(t, types.EncodingUTF8, s.DetectedEncoding())
}

func TestReader_EmptyFile(t *testing.T) {
	desc := writeFile(t, []byte(""))
	s, err := Open(desc, DefaultConfig())
	require.NoError(t, err)
	defer s.Close()
	require.Empty(t, readAllLines(t, s))
}

func TestReader_SingleLineNoTrailingNewline(t *testing.T) {
	desc := writeFile(t, []byte("only line"))
	s, err := Open(desc, DefaultConfig())
	require.NoError(t, err)
	defer s.Close()

	lines := readAllLines(t, s)
	require.Len(t, lines, 1)
	require.Equal(t, "only line", lines[0].Text)
}

func TestReader_CROnlySeparators(t *testing.T) {
	desc := writeFile(t, []byte("a\rb\rc"))
	s, err := Open(desc, DefaultConfig())
	require.NoError(t, err)
	defer s.Close()

	lines := readAllLines(t, s)
	require.Len(t, lines, 3)
	require.Equal(t, []string{"a", "b", "c"}, []string{lines[0].Text, lines[1].Text, lines[2].Text})
}

func TestReader_CRLFSeparators(t *testing.T) {
	desc := writeFile(t, []byte("a\r\nb\r\n"))
	s, err := Open(desc, DefaultConfig())
	require.NoError(t, err)
	defer s.Close()

	lines := readAllLines(t, s)
	require.Len(t, lines, 2)
	require.Equal(t, int64(3), lines[0].ByteEnd)
	require.Equal(t, int64(6), lines[1].ByteEnd)
}

func TestReader_TruncatesOverlongLines(t *testing.T) {
	desc := writeFile(t, []byte(string(bytes.Repeat([]byte("a"), 100))+"\n"))
	s, err := Open(desc, Config{BufferSize: 4096, MaxLineBytes: 10})
	require.NoError(t, err)
	defer s.Close()

	lines := readAllLines(t, s)
	require.Len(t, lines, 1)
	require.True(t, lines[0].Truncated)
	require.LessOrEqual(t, len(lines[0].Text), 10)
	// ByteEnd must count the whole 100-byte line plus its newline, not
	// just the 10 kept bytes, or a cursor resuming past this line would
	// re-read the discarded tail as if it were still unread.
	require.Equal(t, int64(101), lines[0].ByteEnd)
}

func TestReader_ByteOffsetsStayAccurateAfterTruncation(t *testing.T) {
	overlong := bytes.Repeat([]byte("a"), 100)
	desc := writeFile(t, append(append(overlong, '\n'), []byte("short\n")...))
	s, err := Open(desc, Config{BufferSize: 4096, MaxLineBytes: 10})
	require.NoError(t, err)
	defer s.Close()

	lines := readAllLines(t, s)
	require.Len(t, lines, 2)
	require.Equal(t, int64(101), lines[0].ByteEnd)
	require.Equal(t, int64(101), lines[1].ByteStart)
	require.Equal(t, int64(107), lines[1].ByteEnd)
	require.Equal(t, "short", lines[1].Text)
}

func TestReader_Gzip(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte("compressed line one\ncompressed line two\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	path := filepath.Join(t.TempDir(), "test.log.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	info, err := os.Stat(path)
	require.NoError(t, err)

	desc := types.FileDescriptor{Path: path, SizeBytes: info.Size(), Compression: types.CompressionGzip}
	s, err := Open(desc, DefaultConfig())
	require.NoError(t, err)
	defer s.Close()

	lines := readAllLines(t, s)
	require.Len(t, lines, 2)
	require.Equal(t, "compressed line one", lines[0].Text)
}

func TestReader_UTF8BOM(t *testing.T) {
	content := append([]byte{0xEF, 0xBB, 0xBF}, []byte("hello\n")...)
	desc := writeFile(t, content)
	s, err := Open(desc, DefaultConfig())
	require.NoError(t, err)
	defer s.Close()

	lines := readAllLines(t, s)
	require.Len(t, lines, 1)
	require.Equal(t, "hello", lines[0].Text)
	require.Equal(t, types.EncodingUTF8BOM, s.DetectedEncoding())
}

func TestReader_UTF16LEBOM(t *testing.T) {
	// "hi\n" in UTF-16LE with BOM.
	content := []byte{0xFF, 0xFE, 'h', 0, 'i', 0, '\n', 0}
	desc := writeFile(t, content)
	s, err := Open(desc, DefaultConfig())
	require.NoError(t, err)
	defer s.Close()

	lines := readAllLines(t, s)
	require.Len(t, lines, 1)
	require.Equal(t, "hi", lines[0].Text)
	require.Equal(t, types.EncodingUTF16LE, s.DetectedEncoding())
}
