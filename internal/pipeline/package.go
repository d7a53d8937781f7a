package pipeline

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/couchcryptid/lidar-raster-etl/internal/domain"
)

// packageOutputs zips the given files into archivePath. Entries are stored
// flat under their base names with zeroed timestamps, so the same inputs
// always produce byte-identical archives. The archive is written to a
// temporary file and renamed into place so readers never observe a partial
// archive.
func packageOutputs(paths []string, archivePath string) error {
	if err := os.MkdirAll(filepath.Dir(archivePath), 0o755); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPackaging, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(archivePath), filepath.Base(archivePath)+".*")
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPackaging, err)
	}
	defer os.Remove(tmp.Name())

	if err := writeArchive(tmp, paths); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPackaging, err)
	}
	if err := os.Rename(tmp.Name(), archivePath); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPackaging, err)
	}
	return nil
}

func writeArchive(w io.Writer, paths []string) error {
	zw := zip.NewWriter(w)
	for _, p := range paths {
		if err := addEntry(zw, p); err != nil {
			zw.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPackaging, err)
	}
	return nil
}

func addEntry(zw *zip.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPackaging, err)
	}
	defer f.Close()

	entry, err := zw.CreateHeader(&zip.FileHeader{
		Name:   filepath.Base(path),
		Method: zip.Deflate,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPackaging, err)
	}
	if _, err := io.Copy(entry, f); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPackaging, err)
	}
	return nil
}
