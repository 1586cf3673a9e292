package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCreatesUniqueDirs(t *testing.T) {
	parent := t.TempDir()

	a, err := New(parent, "run-a")
	require.NoError(t, err)
	b, err := New(parent, "run-a")
	require.NoError(t, err)
	defer a.Dispose()
	defer b.Dispose()

	assert.NotEqual(t, a.Root(), b.Root())
	assert.DirExists(t, a.Root())
	assert.DirExists(t, b.Root())
}

func TestAllocateRejectsEscapes(t *testing.T) {
	ws, err := New(t.TempDir(), "x")
	require.NoError(t, err)
	defer ws.Dispose()

	for _, name := range []string{"", ".", "..", "../evil", "a/b", "/abs"} {
		_, err := ws.Allocate(name)
		assert.Error(t, err, "name %q", name)
	}

	path, err := ws.Allocate("audio.wav")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(ws.Root(), "audio.wav"), path)
}

func TestDisposeRemovesEverything(t *testing.T) {
	ws, err := New(t.TempDir(), "x")
	require.NoError(t, err)

	path, err := ws.Allocate("input.mp4")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("data"), 0644))

	ws.Dispose()
	_, statErr := os.Stat(ws.Root())
	assert.True(t, os.IsNotExist(statErr))

	// Idempotent
	ws.Dispose()

	_, err = ws.Allocate("late.txt")
	assert.Error(t, err)
}
