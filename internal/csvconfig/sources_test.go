package csvconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/harpi/internal/ir"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDirSources_LexicalOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "20-kitchen.csv", "State Machines and Events,0,0\n")
	writeFile(t, dir, "10-hall.csv", "State Machines and Events,0,0\n")
	writeFile(t, dir, "notes.txt", "not a source\n")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.csv"), 0o755))

	sources, err := DirSources(dir)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "10-hall.csv", sources[0].Name)
	assert.Equal(t, "20-kitchen.csv", sources[1].Name)

	res, err := Ingest(sources)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), res.Records[1].(ir.EventBinding).StateMachineID)
}

func TestDirSources_MissingDir(t *testing.T) {
	_, err := DirSources(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestWatcher_Changed(t *testing.T) {
	dir := t.TempDir()
	w := NewWatcher(dir)

	changed, err := w.Changed()
	require.NoError(t, err)
	assert.False(t, changed, "empty dir is unchanged")

	path := writeFile(t, dir, "a.csv", "State Machines and Events,0,0\n")
	changed, err = w.Changed()
	require.NoError(t, err)
	assert.True(t, changed, "new file")

	changed, err = w.Changed()
	require.NoError(t, err)
	assert.False(t, changed, "no change since last poll")

	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, later, later))
	changed, err = w.Changed()
	require.NoError(t, err)
	assert.True(t, changed, "modified file")

	writeFile(t, dir, "ignored.txt", "x")
	changed, err = w.Changed()
	require.NoError(t, err)
	assert.False(t, changed, "non-csv files are ignored")

	require.NoError(t, os.Remove(path))
	changed, err = w.Changed()
	require.NoError(t, err)
	assert.True(t, changed, "removed file")
}
