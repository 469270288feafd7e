package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDotEnvFile(t *testing.T) {
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "test.env")

	tests := []struct {
		name     string
		content  string
		expected []Var
	}{
		{
			name:     "empty file",
			content:  "",
			expected: []Var{},
		},
		{
			name: "valid env file",
			content: `
KEY1=value1
KEY2="value2"
KEY3='value3'
# This is a comment
KEY4=value with spaces
export KEY5=exported
`,
			expected: []Var{
				{Key: "KEY1", Val: "value1"},
				{Key: "KEY2", Val: "value2"},
				{Key: "KEY3", Val: "value3"},
				{Key: "KEY4", Val: "value with spaces"},
				{Key: "KEY5", Val: "exported"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, os.WriteFile(tmpFile, []byte(tt.content), 0644))
			got, err := ParseDotEnvFile(tmpFile)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}

	t.Run("non-existent file", func(t *testing.T) {
		got, err := ParseDotEnvFile(filepath.Join(tmpDir, "nonexistent.env"))
		assert.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestParseDotEnvInterpolation(t *testing.T) {
	t.Setenv("MD_TEST_HOME", "/home/test")

	vars := ParseDotEnv([]byte(`
BASE=/var/lib
STATE=${BASE}/marketdata
LATE=${LATER}
LATER=resolved
HOME_DIR=${env:MD_TEST_HOME}
PROCESS=${MD_TEST_HOME}
WITH_DEFAULT=${MISSING:-fallback}
UNRESOLVED=${NOPE}
UNTERMINATED=${BASE
`))
	got := make(map[string]string, len(vars))
	for _, v := range vars {
		got[v.Key] = v.Val
	}
	assert.Equal(t, "/var/lib/marketdata", got["STATE"])
	assert.Equal(t, "resolved", got["LATE"])
	assert.Equal(t, "/home/test", got["HOME_DIR"])
	assert.Equal(t, "/home/test", got["PROCESS"])
	assert.Equal(t, "fallback", got["WITH_DEFAULT"])
	assert.Equal(t, "${NOPE}", got["UNRESOLVED"])
	assert.Equal(t, "${BASE", got["UNTERMINATED"])
}

func TestLoadDotEnv(t *testing.T) {
	t.Setenv("MD_TEST_PRESET", "keep")
	tmpFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(tmpFile, []byte("MD_TEST_PRESET=override\nMD_TEST_NEW=fresh\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("MD_TEST_NEW") })

	n, err := LoadDotEnv(tmpFile)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "keep", os.Getenv("MD_TEST_PRESET"))
	assert.Equal(t, "fresh", os.Getenv("MD_TEST_NEW"))
}
