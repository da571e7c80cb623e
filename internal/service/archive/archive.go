package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// ZipDirectory writes every regular file below srcDir into zipPath.
// Entry names are relative to baseDir and use forward slashes.
func ZipDirectory(srcDir, baseDir, zipPath string) error {
	absZip, _ := filepath.Abs(zipPath)

	var files []string
	walkErr := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		// the archive may live inside srcDir
		if abs, _ := filepath.Abs(path); abs == absZip {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("failed to archive %s: %w", srcDir, walkErr)
	}
	return ZipFiles(files, baseDir, zipPath)
}

// ZipFiles writes the given files into zipPath, named relative to baseDir.
// A partially written archive is removed on error.
func ZipFiles(files []string, baseDir, zipPath string) error {
	if err := os.MkdirAll(filepath.Dir(zipPath), 0755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	out, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}

	zw := zip.NewWriter(out)

	var addErr error
	for _, path := range files {
		name, err := filepath.Rel(baseDir, path)
		if err != nil {
			addErr = err
			break
		}
		if err := addFile(zw, path, filepath.ToSlash(name)); err != nil {
			addErr = fmt.Errorf("failed to add %s: %w", path, err)
			break
		}
	}

	closeErr := zw.Close()
	fileErr := out.Close()

	switch {
	case addErr != nil:
		os.Remove(zipPath)
		return addErr
	case closeErr != nil:
		return closeErr
	default:
		return fileErr
	}
}

func addFile(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}
