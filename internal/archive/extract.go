package archive

import (
	"archive/tar"
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
)

var (
	// ErrCorrupted indicates the container cannot be read as a valid
	// archive of its format.
	ErrCorrupted = errors.New("archive corrupted")
	// ErrDestinationUnwritable indicates the restore target cannot be
	// created or written.
	ErrDestinationUnwritable = errors.New("destination unwritable")
)

// Extract unpacks archivePath into dest and returns the number of regular
// files written. The archive's top-level directory is recreated beneath
// dest.
func Extract(archivePath, dest string, format Format) (int, error) {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDestinationUnwritable, err)
	}
	switch format {
	case FormatTar:
		return extractTar(archivePath, dest)
	case FormatZip:
		return extractZip(archivePath, dest)
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

func extractTar(archivePath, dest string) (int, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return 0, fmt.Errorf("%w: open %s: %v", ErrCorrupted, archivePath, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrCorrupted, archivePath, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	files := 0
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return files, fmt.Errorf("%w: %s: %v", ErrCorrupted, archivePath, err)
		}
		target, err := safeJoin(dest, hdr.Name)
		if err != nil {
			return files, err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return files, fmt.Errorf("%w: %v", ErrDestinationUnwritable, err)
			}
		case tar.TypeReg:
			if err := writeEntry(target, tr, hdr.FileInfo().Mode(), hdr.ModTime); err != nil {
				return files, err
			}
			files++
		}
	}
	// the tar end marker precedes the gzip trailer; reading on checks the
	// CRC and length
	if _, err := io.Copy(io.Discard, gz); err != nil {
		return files, fmt.Errorf("%w: %s: %v", ErrCorrupted, archivePath, err)
	}
	return files, nil
}

func extractZip(archivePath, dest string) (int, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrCorrupted, archivePath, err)
	}
	defer r.Close()
	r.RegisterDecompressor(zip.Deflate, func(in io.Reader) io.ReadCloser {
		return flate.NewReader(in)
	})

	files := 0
	for _, zf := range r.File {
		target, err := safeJoin(dest, zf.Name)
		if err != nil {
			return files, err
		}
		if strings.HasSuffix(zf.Name, "/") {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return files, fmt.Errorf("%w: %v", ErrDestinationUnwritable, err)
			}
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return files, fmt.Errorf("%w: %s: %v", ErrCorrupted, zf.Name, err)
		}
		err = writeEntry(target, rc, zf.Mode(), zf.Modified)
		rc.Close()
		if err != nil {
			return files, err
		}
		files++
	}
	return files, nil
}

// safeJoin maps an archive entry name below dest, rejecting names that
// would escape it.
func safeJoin(dest, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: entry %q escapes destination", ErrCorrupted, name)
	}
	return filepath.Join(dest, clean), nil
}

// sourceReader remembers read-side failures so a failed copy can be told
// apart from a failed write.
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		s.err = err
	}
	return n, err
}

func writeEntry(target string, r io.Reader, mode os.FileMode, modTime time.Time) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrDestinationUnwritable, err)
	}
	perm := mode.Perm()
	if perm == 0 {
		perm = 0o644
	}
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDestinationUnwritable, err)
	}
	src := &sourceReader{r: r}
	_, err = io.Copy(out, src)
	closeErr := out.Close()
	if err != nil {
		if src.err != nil {
			return fmt.Errorf("%w: read %s: %v", ErrCorrupted, target, err)
		}
		return fmt.Errorf("%w: write %s: %v", ErrDestinationUnwritable, target, err)
	}
	if closeErr != nil {
		return fmt.Errorf("%w: close %s: %v", ErrDestinationUnwritable, target, closeErr)
	}
	if !modTime.IsZero() {
		if err := os.Chtimes(target, modTime, modTime); err != nil {
			return fmt.Errorf("%w: set times on %s: %v", ErrDestinationUnwritable, target, err)
		}
	}
	return nil
}
