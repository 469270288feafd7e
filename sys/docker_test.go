package sys

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRunningInsideContainer(t *testing.T) {
	assert.IsType(t, true, IsRunningInsideContainer())
}

func TestInsideContainerWithMockFiles(t *testing.T) {
	root := t.TempDir() + string(os.PathSeparator)
	assert.False(t, insideContainer(root))

	require.NoError(t, os.MkdirAll(filepath.Join(root, "proc", "1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "proc", "1", "cgroup"), []byte("0::/init.scope\n"), 0o644))
	assert.False(t, insideContainer(root))

	require.NoError(t, os.WriteFile(filepath.Join(root, "proc", "1", "cgroup"), []byte("0::/kubepods/besteffort/pod1\n"), 0o644))
	assert.True(t, insideContainer(root))

	other := t.TempDir() + string(os.PathSeparator)
	require.NoError(t, os.WriteFile(filepath.Join(other, ".dockerenv"), nil, 0o644))
	assert.True(t, insideContainer(other))
}
