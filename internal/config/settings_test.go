package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadWritesDefaultsWhenMissing(t *testing.T) {
	dir := t.TempDir()

	s, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, 3, s.Get().MaxConcurrentDownloads)
	require.FileExists(t, filepath.Join(dir, fileName))
}

func TestUpdatePersistsAcrossLoad(t *testing.T) {
	dir := t.TempDir()

	s, err := Load(dir)
	require.NoError(t, err)

	next := s.Get()
	next.MaxConcurrentDownloads = 7
	next.SegmentsPerFile = 2
	require.NoError(t, s.Update(next))

	reloaded, err := Load(dir)
	require.NoError(t, err)
	got := reloaded.Get()
	require.Equal(t, 7, got.MaxConcurrentDownloads)
	require.Equal(t, 2, got.SegmentsPerFile)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, fileName)
	require.NoError(t, os.WriteFile(path, []byte("not = [valid toml"), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
}
