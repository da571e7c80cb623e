package archive

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZipDirectory_RelativeNames(t *testing.T) {
	results := t.TempDir()
	batch := filepath.Join(results, "batch")
	require.NoError(t, os.MkdirAll(filepath.Join(batch, "car"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(batch, "unknown"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(batch, "car", "annotated_a.jpg"), []byte("a"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(batch, "unknown", "annotated_b.jpg"), []byte("bb"), 0644))

	zipPath := filepath.Join(results, "batch_results.zip")
	require.NoError(t, ZipDirectory(batch, results, zipPath))

	zr, err := zip.OpenReader(zipPath)
	require.NoError(t, err)
	defer zr.Close()

	var names []string
	contents := map[string]string{}
	for _, f := range zr.File {
		names = append(names, f.Name)
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		contents[f.Name] = string(data)
	}
	sort.Strings(names)

	assert.Equal(t, []string{"batch/car/annotated_a.jpg", "batch/unknown/annotated_b.jpg"}, names)
	assert.Equal(t, "bb", contents["batch/unknown/annotated_b.jpg"])
}

func TestZipDirectory_SkipsItself(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "annotated_a.jpg"), []byte("a"), 0644))

	zipPath := filepath.Join(dir, "out.zip")
	require.NoError(t, ZipDirectory(dir, dir, zipPath))

	zr, err := zip.OpenReader(zipPath)
	require.NoError(t, err)
	defer zr.Close()
	require.Len(t, zr.File, 1)
	assert.Equal(t, "annotated_a.jpg", zr.File[0].Name)
}

func TestZipDirectory_MissingSource(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "out.zip")

	assert.Error(t, ZipDirectory(filepath.Join(dir, "missing"), dir, zipPath))
	assert.NoFileExists(t, zipPath)
}

func TestZipFiles_OnlyListedFiles(t *testing.T) {
	out := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(out, "batch", "car"), 0755))
	listed := filepath.Join(out, "batch", "car", "annotated_a.jpg")
	require.NoError(t, os.WriteFile(listed, []byte("a"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(out, "batch", "annotated_old.jpg"), []byte("old"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(out, "report.csv"), []byte("Image Name"), 0644))

	zipPath := filepath.Join(out, "batch_results.zip")
	require.NoError(t, ZipFiles([]string{listed}, out, zipPath))

	zr, err := zip.OpenReader(zipPath)
	require.NoError(t, err)
	defer zr.Close()
	require.Len(t, zr.File, 1)
	assert.Equal(t, "batch/car/annotated_a.jpg", zr.File[0].Name)
}

func TestZipFiles_MissingFileRemovesArchive(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "out.zip")

	assert.Error(t, ZipFiles([]string{filepath.Join(dir, "gone.jpg")}, dir, zipPath))
	assert.NoFileExists(t, zipPath)
}
