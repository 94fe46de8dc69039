package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestHome points HOME at a temp dir for the duration of the test.
func setupTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func TestFileStore_MissingFile(t *testing.T) {
	home := setupTestHome(t)
	path := filepath.Join(home, ".config", "jobtrace", "config.yaml")

	s, err := OpenFileStore(path)
	require.NoError(t, err)
	assert.Equal(t, "fallback", s.ReadOption(KeyEndpoint, "fallback"))
}

func TestFileStore_SaveAndReopen(t *testing.T) {
	home := setupTestHome(t)
	path := filepath.Join(home, ".config", "jobtrace", "config.yaml")

	s, err := OpenFileStore(path)
	require.NoError(t, err)

	cfg := NewDefault().
		WithServiceName("etl").
		WithEndpoint("https://collector:4318").
		WithProtocol(ProtocolHTTPProtobuf).
		WithHeaders(map[string]string{"authorization": "Bearer abc"})
	require.NoError(t, Save(s, cfg))

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}

	reopened, err := OpenFileStore(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, (&Loader{Store: reopened}).Load())
}

func TestFileStore_DefaultPath(t *testing.T) {
	home := setupTestHome(t)

	s, err := OpenFileStore("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "jobtrace", "config.yaml"), s.Path())
}

func TestFileStore_RejectsInsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission model differs on windows")
	}
	home := setupTestHome(t)
	dir := filepath.Join(home, ".config", "jobtrace")
	require.NoError(t, os.MkdirAll(dir, 0700))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("OTEL_SERVICE_NAME: etl\n"), 0644))

	_, err := OpenFileStore(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestFileStore_ReadsExistingYAML(t *testing.T) {
	home := setupTestHome(t)
	dir := filepath.Join(home, ".config", "jobtrace")
	require.NoError(t, os.MkdirAll(dir, 0700))
	path := filepath.Join(dir, "config.yaml")
	content := "OTEL_SERVICE_NAME: etl\nOTEL_EXPORTER_OTLP_TIMEOUT: 15\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	s, err := OpenFileStore(path)
	require.NoError(t, err)
	assert.Equal(t, "etl", s.ReadOption(KeyServiceName, ""))
	assert.Equal(t, "15", s.ReadOption(KeyTimeout, ""))
}

func TestValidateConfigPath(t *testing.T) {
	home := setupTestHome(t)

	valid := []string{
		filepath.Join(home, ".config", "jobtrace", "config.yaml"),
		filepath.Join(home, ".config", "jobtrace", "sub", "config.yaml"),
		"/etc/jobtrace/config.yaml",
	}
	for _, p := range valid {
		t.Run(p, func(t *testing.T) {
			assert.NoError(t, validateConfigPath(p))
		})
	}

	invalid := []string{
		"/etc/passwd",
		"/tmp/config.yaml",
		"/etc/jobtrace../etc/passwd",
		filepath.Join(home, ".config", "jobtrace", "..", "..", "..", "etc", "passwd"),
	}
	for _, p := range invalid {
		t.Run(p, func(t *testing.T) {
			assert.Error(t, validateConfigPath(p))
		})
	}
}
