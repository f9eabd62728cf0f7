package visionkit

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *storage {
	t.Helper()
	s, err := newStorage(Config{AppName: "testapp", DataDir: t.TempDir(), ScratchDir: t.TempDir()})
	require.NoError(t, err)
	return s
}

// compiledDir creates a fake compiled model directory holding content.
func compiledDir(t *testing.T, root, content string) string {
	t.Helper()
	dir := filepath.Join(root, "model.mlmodelc")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "weights"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "weights", "weight.bin"), []byte(content), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "coremldata.bin"), []byte("meta"), 0644))
	return dir
}

func TestInstall(t *testing.T) {
	s := newTestStorage(t)
	id := ModelIdentity{Name: "widgets", Version: 3}

	src := compiledDir(t, t.TempDir(), "first")
	rel, err := s.install(id, src)
	require.NoError(t, err)

	assert.Equal(t, "widgets-3.mlmodelc", rel)
	data, err := os.ReadFile(filepath.Join(s.artifactPath(id), "weights", "weight.bin"))
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))
	assert.NoDirExists(t, src, "rename moves the source")
}

func TestInstallReplacesExisting(t *testing.T) {
	s := newTestStorage(t)
	id := ModelIdentity{Name: "widgets", Version: 3}

	_, err := s.install(id, compiledDir(t, t.TempDir(), "first"))
	require.NoError(t, err)
	// A stale file the second build does not produce
	require.NoError(t, os.WriteFile(filepath.Join(s.artifactPath(id), "stale"), []byte("x"), 0644))

	_, err = s.install(id, compiledDir(t, t.TempDir(), "second"))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(s.artifactPath(id), "weights", "weight.bin"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
	assert.NoFileExists(t, filepath.Join(s.artifactPath(id), "stale"))

	entries, err := os.ReadDir(s.baseDir)
	require.NoError(t, err)
	var artifacts []string
	for _, e := range entries {
		if filepath.Ext(e.Name()) == compiledModelExt {
			artifacts = append(artifacts, e.Name())
		}
	}
	assert.Equal(t, []string{"widgets-3.mlmodelc"}, artifacts)
}

func TestInstallCopyFallback(t *testing.T) {
	s := newTestStorage(t)
	id := ModelIdentity{Name: "widgets", Version: 3}

	orig := rename
	rename = func(string, string) error { return errors.New("cross-device link") }
	t.Cleanup(func() { rename = orig })

	src := compiledDir(t, t.TempDir(), "copied")
	_, err := s.install(id, src)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(s.artifactPath(id), "weights", "weight.bin"))
	require.NoError(t, err)
	assert.Equal(t, "copied", string(data))
	assert.FileExists(t, filepath.Join(s.artifactPath(id), "coremldata.bin"))
	assert.FileExists(t, filepath.Join(src, "weights", "weight.bin"), "copy leaves the source in place")
}

func TestInstallSingleFile(t *testing.T) {
	s := newTestStorage(t)
	id := ModelIdentity{Name: "widgets", Version: 3}

	orig := rename
	rename = func(string, string) error { return errors.New("cross-device link") }
	t.Cleanup(func() { rename = orig })

	src := filepath.Join(t.TempDir(), "widgets.mlmodelc")
	require.NoError(t, os.WriteFile(src, []byte("flat"), 0644))

	_, err := s.install(id, src)
	require.NoError(t, err)

	data, err := os.ReadFile(s.artifactPath(id))
	require.NoError(t, err)
	assert.Equal(t, "flat", string(data))
	assert.FileExists(t, src)
}

func TestInstallMissingSource(t *testing.T) {
	s := newTestStorage(t)
	id := ModelIdentity{Name: "widgets", Version: 3}

	_, err := s.install(id, filepath.Join(t.TempDir(), "missing.mlmodelc"))
	require.ErrorIs(t, err, ErrInstall)
	assert.NoFileExists(t, s.artifactPath(id))
}
