package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.md")
	require.NoError(t, SafeWriteFile(path, []byte("one")))
	require.NoError(t, SafeWriteFile(path, []byte("two")))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(b))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestUniquePath(t *testing.T) {
	dir := t.TempDir()
	p, err := UniquePath(dir, "crm", ".md")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "crm.md"), p)

	require.NoError(t, os.WriteFile(p, nil, 0o644))
	p, err = UniquePath(dir, "crm", ".md")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "crm__2.md"), p)

	require.NoError(t, os.WriteFile(p, nil, 0o644))
	p, err = UniquePath(dir, "crm", ".md")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "crm__3.md"), p)
}
