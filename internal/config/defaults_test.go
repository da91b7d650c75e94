package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/logsearch-mcp/internal/types"
)

func TestApplyQueryDefaults_FillsUnsetFields(t *testing.T) {
	cfg := Default()
	cfg.LogParser.LineStartRegex = `^\d{4}-\d{2}-\d{2}`
	cfg.LogParser.DefaultTimestampRegex = `\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z`
	cfg.Search.DefaultPageSize = 25
	cfg.LogSources.LogFilePaths = []string{"/var/log/app.log"}

	q := cfg.ApplyQueryDefaults(types.Query{})

	require.Equal(t, cfg.LogParser.LineStartRegex, q.RecordStartRegex)
	require.Equal(t, cfg.LogParser.DefaultTimestampRegex, q.Time.TSRegex)
	require.Equal(t, 25, q.PageSize)
	require.Equal(t, []string{"/var/log/app.log"}, q.Scan.FilePaths)
}

func TestApplyQueryDefaults_LeavesExplicitFieldsAlone(t *testing.T) {
	cfg := Default()
	cfg.LogParser.LineStartRegex = `^\d{4}-\d{2}-\d{2}`
	cfg.Search.DefaultPageSize = 25
	cfg.LogSources.LogFilePaths = []string{"/var/log/app.log"}

	q := cfg.ApplyQueryDefaults(types.Query{
		RecordStartRegex: `^ENTRY`,
		PageSize:         10,
		Scan:             types.ScanConfig{Root: "/srv/logs"},
	})

	require.Equal(t, `^ENTRY`, q.RecordStartRegex)
	require.Equal(t, 10, q.PageSize)
	require.Equal(t, "/srv/logs", q.Scan.Root)
	require.Empty(t, q.Scan.FilePaths)
}

func TestApplyQueryDefaults_FilePathsNotAppliedWhenRootSet(t *testing.T) {
	cfg := Default()
	cfg.LogSources.LogFilePaths = []string{"/var/log/app.log"}

	q := cfg.ApplyQueryDefaults(types.Query{Scan: types.ScanConfig{Root: "/srv/logs"}})
	require.Empty(t, q.Scan.FilePaths)
}
