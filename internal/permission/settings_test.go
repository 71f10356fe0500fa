package permission

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSettings(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadRules_MergeOrder(t *testing.T) {
	dir := t.TempDir()
	global := writeSettings(t, dir, "settings.json",
		`{"permissions":{"allow":["Bash(git status*)"],"deny":["Bash(rm:*)"]}}`)
	project := writeSettings(t, dir, "project.json",
		`{"permissions":{"allow":["Read(src/**)"]}}`)

	rules := LoadRules([]string{global, project}, nil)

	require.Len(t, rules.Allow, 2)
	assert.Equal(t, "Bash(git status*)", rules.Allow[0].Raw)
	assert.Equal(t, "Read(src/**)", rules.Allow[1].Raw)
	require.Len(t, rules.Deny, 1)
	assert.Equal(t, "Bash(rm:*)", rules.Deny[0].Raw)
}

func TestLoadRules_MissingAndMalformedFiles(t *testing.T) {
	dir := t.TempDir()
	malformed := writeSettings(t, dir, "broken.json", `{"permissions":`)
	valid := writeSettings(t, dir, "valid.json",
		`{"permissions":{"allow":["WebFetch"]}}`)

	rules := LoadRules([]string{
		filepath.Join(dir, "does-not-exist.json"),
		malformed,
		valid,
	}, nil)

	require.Len(t, rules.Allow, 1)
	assert.Equal(t, "WebFetch", rules.Allow[0].Raw)
	assert.Empty(t, rules.Deny)
}

func TestLoadRules_NoPermissionsKey(t *testing.T) {
	dir := t.TempDir()
	path := writeSettings(t, dir, "settings.json", `{"theme":"dark"}`)

	rules := LoadRules([]string{path}, nil)
	assert.Empty(t, rules.Allow)
	assert.Empty(t, rules.Deny)
}
