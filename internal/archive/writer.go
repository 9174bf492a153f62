// Package archive streams a filtered directory tree into a single
// compressed container and extracts it again.
package archive

import (
	"archive/tar"
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"

	"github.com/kebairia/dirbak/internal/exclusion"
)

const (
	// DefaultLevel is used when no level is configured.
	DefaultLevel = 6
	// MaxLevel is the level selected by "maximum compression".
	MaxLevel = 9
)

var (
	// ErrSourceUnavailable indicates the source is missing, not a directory
	// or unreadable. No archive file exists when it is returned.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrWriteFailed indicates the archive could not be written completely.
	ErrWriteFailed = errors.New("archive write failed")
	// ErrInvalidLevel is returned for a compression level outside 0..9.
	ErrInvalidLevel = errors.New("invalid compression level")
)

// ProgressFunc is called after every file added to the archive with the
// running file count and the file's archive path.
type ProgressFunc func(files int, name string)

// Options controls a single Write.
type Options struct {
	Format Format
	// Level is the 0..9 compression level.
	Level  int
	Filter *exclusion.Filter
	// Progress is optional.
	Progress ProgressFunc
}

// Stats describes what went into an archive. OriginalSize is the summed
// size of the files actually added.
type Stats struct {
	FileCount     int
	ExcludedFiles int
	ExcludedDirs  int
	OriginalSize  int64
}

// sink is the container-specific half of a Write. addFile stores exactly
// info.Size() bytes read from r and returns the count written.
type sink interface {
	addDir(name string, info fs.FileInfo) error
	addFile(name string, info fs.FileInfo, r io.Reader) (int64, error)
	Close() error
}

// Write archives the directory source into a new file dest. Entry names
// are rooted at the base name of source, so extraction recreates that
// directory. dest must not exist. On failure the partial dest is removed.
func Write(source, dest string, opts Options) (stats Stats, err error) {
	if !opts.Format.valid() {
		return Stats{}, fmt.Errorf("%w: %q", ErrUnknownFormat, opts.Format)
	}
	if opts.Level < 0 || opts.Level > MaxLevel {
		return Stats{}, fmt.Errorf("%w: %d (want 0-%d)", ErrInvalidLevel, opts.Level, MaxLevel)
	}

	root, err := filepath.Abs(source)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: resolve %s: %v", ErrSourceUnavailable, source, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	if !info.IsDir() {
		return Stats{}, fmt.Errorf("%w: %s is not a directory", ErrSourceUnavailable, root)
	}
	if IsFilesystemRoot(root) {
		return Stats{}, fmt.Errorf("%w: refusing to archive the filesystem root %s", ErrSourceUnavailable, root)
	}
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: resolve %s: %v", ErrSourceUnavailable, root, err)
	}
	if _, err := os.ReadDir(root); err != nil {
		return Stats{}, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	destAbs, err := filepath.Abs(dest)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: resolve %s: %v", ErrWriteFailed, dest, err)
	}
	f, err := os.OpenFile(destAbs, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: create %s: %v", ErrWriteFailed, destAbs, err)
	}
	closed := false
	defer func() {
		if err == nil {
			return
		}
		if !closed {
			_ = f.Close()
		}
		_ = os.Remove(destAbs)
	}()

	var s sink
	switch opts.Format {
	case FormatTar:
		s, err = newTarSink(f, opts.Level)
	case FormatZip:
		s = newZipSink(f, opts.Level)
	}
	if err != nil {
		return Stats{}, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	rootName := filepath.Base(root)
	w := &walker{
		rootName: rootName,
		realRoot: realRoot,
		skip:     destAbs,
		filter:   opts.Filter,
		sink:     s,
		progress: opts.Progress,
		active:   make(map[string]bool),
	}
	if err := s.addDir(rootName, info); err != nil {
		return Stats{}, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	if err := w.walkDir(root, realRoot, rootName); err != nil {
		return Stats{}, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	if err := s.Close(); err != nil {
		return Stats{}, fmt.Errorf("%w: finish container: %v", ErrWriteFailed, err)
	}
	closed = true
	if err := f.Close(); err != nil {
		return Stats{}, fmt.Errorf("%w: close %s: %v", ErrWriteFailed, destAbs, err)
	}
	return w.stats, nil
}

type walker struct {
	rootName string
	realRoot string
	skip     string
	filter   *exclusion.Filter
	sink     sink
	progress ProgressFunc
	stats    Stats
	// active holds the resolved paths of the directories on the current
	// walk path; a symlink pointing at one of them would loop.
	active map[string]bool
}

func (w *walker) walkDir(dir, realDir, arcDir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read directory %s: %w", dir, err)
	}
	w.active[realDir] = true
	defer delete(w.active, realDir)

	for _, e := range entries {
		name := e.Name()
		path := filepath.Join(dir, name)
		arcName := arcDir + "/" + name
		rel := strings.TrimPrefix(arcName, w.rootName+"/")
		if path == w.skip {
			continue
		}

		info, err := os.Lstat(path)
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		isLink := info.Mode()&fs.ModeSymlink != 0
		if isLink {
			target, err := os.Stat(path)
			if err != nil {
				// dangling link
				w.stats.ExcludedFiles++
				continue
			}
			info = target
		}

		if info.IsDir() {
			if w.filter.ShouldExclude(rel, name, true) {
				w.stats.ExcludedDirs++
				w.countPruned(path)
				continue
			}
			realPath := filepath.Join(realDir, name)
			if isLink {
				realPath, err = filepath.EvalSymlinks(path)
				if err != nil || !within(w.realRoot, realPath) || w.active[realPath] {
					w.stats.ExcludedDirs++
					continue
				}
			}
			if err := w.sink.addDir(arcName, info); err != nil {
				return err
			}
			if err := w.walkDir(path, realPath, arcName); err != nil {
				return err
			}
			continue
		}

		if !info.Mode().IsRegular() || w.filter.ShouldExclude(rel, name, false) {
			w.stats.ExcludedFiles++
			continue
		}
		n, err := w.addFile(arcName, path, info)
		if err != nil {
			return err
		}
		w.stats.FileCount++
		w.stats.OriginalSize += n
		if w.progress != nil {
			w.progress(w.stats.FileCount, arcName)
		}
	}
	return nil
}

// addFile stores the file at path as it was when info was taken: content
// appended after the stat is cut off, and a file that shrank fails.
func (w *walker) addFile(arcName, path string, info fs.FileInfo) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	n, err := w.sink.addFile(arcName, info, f)
	if err != nil {
		return n, fmt.Errorf("%s: %w", path, err)
	}
	return n, nil
}

// countPruned adds everything below an excluded directory to the excluded
// counters without matching it.
func (w *walker) countPruned(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && path != dir {
				w.stats.ExcludedDirs++
			}
			return nil
		}
		if path == dir {
			return nil
		}
		if d.IsDir() {
			w.stats.ExcludedDirs++
		} else {
			w.stats.ExcludedFiles++
		}
		return nil
	})
}

// IsFilesystemRoot reports whether the absolute path abs has no base name
// to root archive entries at.
func IsFilesystemRoot(abs string) bool {
	base := filepath.Base(abs)
	return base == string(filepath.Separator) || base == "."
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

type tarSink struct {
	gz *gzip.Writer
	tw *tar.Writer
}

func newTarSink(w io.Writer, level int) (*tarSink, error) {
	gz, err := gzip.NewWriterLevel(w, level)
	if err != nil {
		return nil, fmt.Errorf("gzip writer: %w", err)
	}
	return &tarSink{gz: gz, tw: tar.NewWriter(gz)}, nil
}

func (t *tarSink) addDir(name string, info fs.FileInfo) error {
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("tar header for %s: %w", name, err)
	}
	hdr.Name = name + "/"
	hdr.Typeflag = tar.TypeDir
	hdr.Size = 0
	if err := t.tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write tar header %s: %w", name, err)
	}
	return nil
}

func (t *tarSink) addFile(name string, info fs.FileInfo, r io.Reader) (int64, error) {
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return 0, fmt.Errorf("tar header for %s: %w", name, err)
	}
	hdr.Name = name
	hdr.Typeflag = tar.TypeReg
	if err := t.tw.WriteHeader(hdr); err != nil {
		return 0, fmt.Errorf("write tar header %s: %w", name, err)
	}
	return copySized(t.tw, r, info.Size())
}

func (t *tarSink) Close() error {
	if err := t.tw.Close(); err != nil {
		return err
	}
	return t.gz.Close()
}

type zipSink struct {
	zw *zip.Writer
}

func newZipSink(w io.Writer, level int) *zipSink {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, level)
	})
	return &zipSink{zw: zw}
}

func (z *zipSink) addDir(name string, info fs.FileInfo) error {
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("zip header for %s: %w", name, err)
	}
	hdr.Name = name + "/"
	hdr.Method = zip.Store
	if _, err := z.zw.CreateHeader(hdr); err != nil {
		return fmt.Errorf("write zip header %s: %w", name, err)
	}
	return nil
}

func (z *zipSink) addFile(name string, info fs.FileInfo, r io.Reader) (int64, error) {
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return 0, fmt.Errorf("zip header for %s: %w", name, err)
	}
	hdr.Name = name
	hdr.Method = zip.Deflate
	w, err := z.zw.CreateHeader(hdr)
	if err != nil {
		return 0, fmt.Errorf("write zip header %s: %w", name, err)
	}
	return copySized(w, r, info.Size())
}

func (z *zipSink) Close() error {
	return z.zw.Close()
}

// ErrFileShrank indicates a file lost content between its stat and its
// copy into the archive.
var ErrFileShrank = errors.New("file shrank while being archived")

// copySized copies exactly size bytes from r to w.
func copySized(w io.Writer, r io.Reader, size int64) (int64, error) {
	n, err := io.CopyN(w, r, size)
	if err == io.EOF {
		return n, fmt.Errorf("%w: copied %d of %d bytes", ErrFileShrank, n, size)
	}
	if err != nil {
		return n, fmt.Errorf("copy: %w", err)
	}
	return n, nil
}
