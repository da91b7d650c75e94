package search

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/logsearch-mcp/internal/types"
)

func baseQuery() types.Query {
	return types.Query{
		Logic:    types.Logic{Must: []types.Atom{{Text: "error"}}},
		PageSize: 50,
		Scan:     types.ScanConfig{IncludeGlobs: []string{"**/*.log"}},
	}
}

func TestFingerprint_StableAcrossIdenticalQueries(t *testing.T) {
	q := baseQuery()
	a := Fingerprint(q, "/var/log")
	b := Fingerprint(q, "/var/log")
	require.Equal(t, a, b)
}

func TestFingerprint_SensitiveToLogic(t *testing.T) {
	q1 := baseQuery()
	q2 := baseQuery()
	q2.Logic.Must[0].Text = "warn"
	require.NotEqual(t, Fingerprint(q1, "/var/log"), Fingerprint(q2, "/var/log"))
}

func TestFingerprint_SensitiveToTimeWindow(t *testing.T) {
	q1 := baseQuery()
	q2 := baseQuery()
	q2.Time.TSRegex = `\d{4}-\d{2}-\d{2}`
	require.NotEqual(t, Fingerprint(q1, "/var/log"), Fingerprint(q2, "/var/log"))
}

func TestFingerprint_GlobOrderIgnored(t *testing.T) {
	q1 := baseQuery()
	q1.Scan.IncludeGlobs = []string{"*.log", "*.gz"}
	q2 := baseQuery()
	q2.Scan.IncludeGlobs = []string{"*.gz", "*.log"}
	require.Equal(t, Fingerprint(q1, "/var/log"), Fingerprint(q2, "/var/log"))
}

func TestFingerprint_SensitiveToRoot(t *testing.T) {
	q := baseQuery()
	require.NotEqual(t, Fingerprint(q, "/var/log"), Fingerprint(q, "/var/log2"))
}

func TestFingerprint_SensitiveToPageSize(t *testing.T) {
	q1 := baseQuery()
	q2 := baseQuery()
	q2.PageSize = 10
	require.NotEqual(t, Fingerprint(q1, "/var/log"), Fingerprint(q2, "/var/log"))
}
