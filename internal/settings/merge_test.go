package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readEnv(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	env, ok := doc["env"].(map[string]any)
	require.True(t, ok, "env block missing")
	return env
}

func TestMerge_CreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".claude", "settings.json")

	rep, err := Merge(Options{Path: path, GRPCPort: 5317})
	require.NoError(t, err)
	assert.Equal(t, Updated, rep.Result)
	assert.Len(t, rep.Added, len(RequiredEnv(5317)))

	env := readEnv(t, path)
	assert.Equal(t, "http://localhost:5317", env["OTEL_EXPORTER_OTLP_ENDPOINT"])
	assert.Equal(t, "otlp", env["OTEL_LOGS_EXPORTER"])
}

func TestMerge_KeepsOtherSettingsAndIndent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	orig := "{\n    \"model\": \"opus\",\n    \"env\": {\n        \"FOO\": \"bar\"\n    }\n}\n"
	require.NoError(t, os.WriteFile(path, []byte(orig), 0o600))

	rep, err := Merge(Options{Path: path})
	require.NoError(t, err)
	assert.Equal(t, Updated, rep.Result)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n    \"model\": \"opus\"")

	env := readEnv(t, path)
	assert.Equal(t, "bar", env["FOO"])
	assert.Equal(t, "http://localhost:4317", env["OTEL_EXPORTER_OTLP_ENDPOINT"])

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestMerge_AlreadyConfigured(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	_, err := Merge(Options{Path: path})
	require.NoError(t, err)

	rep, err := Merge(Options{Path: path})
	require.NoError(t, err)
	assert.Equal(t, Unchanged, rep.Result)
}

func TestMerge_ConflictNeedsForce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	orig := `{"env": {"OTEL_EXPORTER_OTLP_ENDPOINT": "http://collector:4317"}}`
	require.NoError(t, os.WriteFile(path, []byte(orig), 0o644))

	rep, err := Merge(Options{Path: path})
	require.NoError(t, err)
	assert.Equal(t, Conflicting, rep.Result)
	require.Len(t, rep.Conflicts, 1)
	assert.Equal(t, "http://collector:4317", rep.Conflicts[0].Have)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, orig, string(data), "file must be untouched on conflict")

	rep, err = Merge(Options{Path: path, Force: true})
	require.NoError(t, err)
	assert.Equal(t, Updated, rep.Result)
	assert.Equal(t, []string{"OTEL_EXPORTER_OTLP_ENDPOINT"}, rep.Replaced)
	assert.Equal(t, "http://localhost:4317", readEnv(t, path)["OTEL_EXPORTER_OTLP_ENDPOINT"])
}

func TestMerge_InvalidJSONBacksUp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Merge(Options{Path: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JSON")

	bak, err := os.ReadFile(path + ".bak")
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(bak))
}

func TestDetectIndent(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"two spaces", "{\n  \"a\": 1\n}", "  "},
		{"tabs", "{\n\t\"a\": 1\n}", "\t"},
		{"flat", `{"a": 1}`, "  "},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, detectIndent([]byte(tc.in)))
		})
	}
}

func TestEnv(t *testing.T) {
	dir := t.TempDir()

	env, err := Env(filepath.Join(dir, "missing.json"))
	require.NoError(t, err)
	assert.Empty(t, env)

	path := filepath.Join(dir, "settings.json")
	_, err = Merge(Options{Path: path, GRPCPort: 4317})
	require.NoError(t, err)
	env, err = Env(path)
	require.NoError(t, err)
	assert.Equal(t, RequiredEnv(4317), env)

	require.NoError(t, os.WriteFile(path, []byte(`{"env":{"A":"x","N":3}}`), 0o600))
	env, err = Env(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "x"}, env)
}
