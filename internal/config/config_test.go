package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, ServerModeBoth, cfg.Server.Mode)
	require.Equal(t, 50, cfg.Search.DefaultPageSize)
}

func TestLoad_ParsesNamedKnobs(t *testing.T) {
	path := writeConfigFile(t, `
server:
  mode: http
  host: 0.0.0.0
  port: 9090
log_parser:
  line_start_regex: '^\d{4}-\d{2}-\d{2}'
search:
  default_page_size: 25
  max_page_size: 200
  max_concurrent_files: 8
log_sources:
  log_file_paths:
    - /var/log/app.log
    - /var/log/app2.log
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ServerModeHTTP, cfg.Server.Mode)
	require.Equal(t, "0.0.0.0", cfg.Server.Host)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 25, cfg.Search.DefaultPageSize)
	require.Equal(t, 8, cfg.Search.MaxConcurrentFiles)
	require.Equal(t, []string{"/var/log/app.log", "/var/log/app2.log"}, cfg.LogSources.LogFilePaths)
}

func TestLoad_UnknownKeysDoNotFail(t *testing.T) {
	path := writeConfigFile(t, `
server:
  mode: http
  bogus_key: true
totally_unknown_section:
  foo: bar
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ServerModeHTTP, cfg.Server.Mode)
}

func TestLoad_EnvOverlayOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
search:
  default_page_size: 25
`)
	t.Setenv("LOG_SEARCH_MCP__SEARCH__DEFAULT_PAGE_SIZE", "99")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 99, cfg.Search.DefaultPageSize)
}

func TestLoad_EnvOverlayUnknownSectionIgnored(t *testing.T) {
	t.Setenv("LOG_SEARCH_MCP__NOPE__WHATEVER", "1")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.NotNil(t, cfg)
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := writeConfigFile(t, `
search:
  default_page_size: 10
`)
	w, err := Watch(path, nil)
	require.NoError(t, err)
	defer w.Close()

	require.Equal(t, 10, w.Current().Search.DefaultPageSize)

	require.NoError(t, os.WriteFile(path, []byte("search:\n  default_page_size: 20\n"), 0o644))

	require.Eventually(t, func() bool {
		return w.Current().Search.DefaultPageSize == 20
	}, 2*time.Second, 20*time.Millisecond)
}
