package exec

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifestWriterRecord(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "requirements.txt")
	require.NoError(t, os.WriteFile(input, []byte("attrs==20.1.0\n"), 0o644))

	out := filepath.Join(dir, "manifests")
	w := NewManifestWriter(out, "venv", "", "make test")
	require.NoError(t, w.AddInput("requirements.txt", input))

	first, err := w.Record("max", "baseline", []string{"attrs==20.1.0"}, "ok\n", 2*time.Second, false, nil)
	require.NoError(t, err)
	second, err := w.Record("attrs:17.4.0", "probe", []string{"attrs==17.4.0"}, "boom\n", time.Second, false, errors.New("test command exited with status 1"))
	require.NoError(t, err)

	assert.Equal(t, 1, first.Sequence)
	assert.Equal(t, 2, second.Sequence)
	assert.Equal(t, first.RunID, second.RunID)
	assert.True(t, first.Success)
	assert.False(t, second.Success)
	assert.Equal(t, "test command exited with status 1", second.Error)
	assert.Equal(t, DigestString("ok\n"), first.OutputHash)
	assert.Len(t, first.InputHashes["requirements.txt"], 64)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Contains(t, entries[1].Name(), "_0002_attrs_17.4.0.json")

	data, err := os.ReadFile(filepath.Join(out, entries[1].Name()))
	require.NoError(t, err)
	var loaded RunManifest
	require.NoError(t, json.Unmarshal(data, &loaded))
	assert.Equal(t, "probe", loaded.Kind)
	assert.Equal(t, []string{"attrs==17.4.0"}, loaded.Pins)
	assert.Equal(t, "make test", loaded.Command)
}

func TestManifestWriterSkipped(t *testing.T) {
	w := NewManifestWriter(t.TempDir(), "docker", "python:3.12", "pytest")
	m, err := w.Record("b:5", "probe", nil, "", 0, true, nil)
	require.NoError(t, err)
	assert.True(t, m.Skipped)
	assert.False(t, m.Success)
	assert.Equal(t, "python:3.12", m.Image)
}

func TestNilManifestWriter(t *testing.T) {
	var w *ManifestWriter
	m, err := w.Record("max", "baseline", nil, "", 0, false, nil)
	assert.NoError(t, err)
	assert.Nil(t, m)
	assert.NoError(t, w.AddInput("x", "/does/not/matter"))
}

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	sum, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, DigestString("hello"), sum)
	assert.Len(t, sum, 64)
	assert.NotEqual(t, DigestString("hello\n"), sum)

	_, err = HashFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
