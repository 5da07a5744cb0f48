package commands

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/iec104d/pkg/adapter"
	"github.com/marmos91/iec104d/pkg/api"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := GetRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	t.Cleanup(func() {
		cmd.SetArgs(nil)
		showOutput = "yaml"
		sessionOutput = "table"
		envName = ""
	})
	err := cmd.Execute()
	return out.String(), err
}

func writeConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	base := []byte("server:\n  port: 2405\ngateway_id: test-gw\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "default.yaml"), base, 0o644))
	overlay := []byte("server:\n  max_connections: 7\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "staging.yaml"), overlay, 0o644))
	return dir
}

func TestVersion(t *testing.T) {
	Version, Commit, Date = "1.2.3", "abc123", "2024-01-01"
	t.Cleanup(func() { Version, Commit, Date = "dev", "none", "unknown" })

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "iec104d 1.2.3 (commit: abc123, built: 2024-01-01)\n", out)
}

func TestConfigShowYAML(t *testing.T) {
	dir := writeConfigDir(t)

	out, err := execute(t, "config", "show", "--config-dir", dir, "--env", "staging")
	require.NoError(t, err)
	assert.Contains(t, out, "port: 2405")
	assert.Contains(t, out, "max_connections: 7")
	assert.Contains(t, out, "gateway_id: test-gw")
}

func TestConfigShowJSON(t *testing.T) {
	dir := writeConfigDir(t)

	out, err := execute(t, "config", "show", "--config-dir", dir, "--env", "production", "-o", "json")
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "test-gw", decoded["GatewayID"])
}

func TestConfigShowUnknownFormat(t *testing.T) {
	dir := writeConfigDir(t)

	_, err := execute(t, "config", "show", "--config-dir", dir, "-o", "toml")
	assert.ErrorContains(t, err, "invalid output format")
}

func TestConfigShowMissingBase(t *testing.T) {
	_, err := execute(t, "config", "show", "--config-dir", t.TempDir())
	assert.Error(t, err)
}

type stubSource struct {
	sessions  []adapter.ConnInfo
	admission *adapter.Admission
}

func (s *stubSource) Sessions() []adapter.ConnInfo  { return s.sessions }
func (s *stubSource) Admission() *adapter.Admission { return s.admission }
func (s *stubSource) IsShuttingDown() bool          { return false }

func startAPI(t *testing.T, sessions ...adapter.ConnInfo) string {
	t.Helper()
	a, err := adapter.NewAdmission(5)
	require.NoError(t, err)
	server := httptest.NewServer(api.NewRouter(&stubSource{sessions: sessions, admission: a}, nil))
	t.Cleanup(server.Close)
	return server.URL
}

func TestSessionsTable(t *testing.T) {
	url := startAPI(t, adapter.ConnInfo{ID: 3, RemoteAddr: "10.0.0.5:40000", StartedAt: time.Now().Add(-90 * time.Second)})

	out, err := execute(t, "sessions", "--api-url", url)
	require.NoError(t, err)
	assert.Contains(t, out, "REMOTE")
	assert.Contains(t, out, "10.0.0.5:40000")
	assert.Contains(t, out, "1m 30s")
}

func TestSessionsEmpty(t *testing.T) {
	url := startAPI(t)

	out, err := execute(t, "sessions", "--api-url", url)
	require.NoError(t, err)
	assert.Equal(t, "No live sessions.\n", out)
}

func TestSessionsJSON(t *testing.T) {
	url := startAPI(t, adapter.ConnInfo{ID: 3, RemoteAddr: "10.0.0.5:40000"})

	out, err := execute(t, "sessions", "--api-url", url, "-o", "json")
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "10.0.0.5:40000", decoded[0]["remote_addr"])
}

func TestStatus(t *testing.T) {
	url := startAPI(t)

	out, err := execute(t, "status", "--api-url", url)
	require.NoError(t, err)
	assert.Contains(t, out, "iec104d")
	assert.Contains(t, out, "0 / 5")
}
