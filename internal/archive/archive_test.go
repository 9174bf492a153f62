package archive

import (
	"archive/tar"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/kebairia/dirbak/internal/exclusion"
)

// makeTree creates files (relative path -> content) below root/name and
// returns the source directory.
func makeTree(t *testing.T, root, name string, files map[string]string) string {
	t.Helper()
	src := filepath.Join(root, name)
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatalf("mkdir source: %v", err)
	}
	for rel, content := range files {
		path := filepath.Join(src, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", rel, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
	return src
}

// readTree returns relative path -> content for every regular file below dir.
func readTree(t *testing.T, dir string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(dir, path)
		out[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		t.Fatalf("walk %s: %v", dir, err)
	}
	return out
}

func TestWriteExtract_RoundTrip(t *testing.T) {
	files := map[string]string{
		"README.md":          "# proj\n",
		"src/main.go":        "package main\n",
		"src/pkg/util.go":    "package pkg\n",
		"docs/guide/one.txt": "one",
		"empty.txt":          "",
	}
	for _, format := range []Format{FormatTar, FormatZip} {
		t.Run(string(format), func(t *testing.T) {
			tmp := t.TempDir()
			src := makeTree(t, tmp, "proj", files)
			if err := os.MkdirAll(filepath.Join(src, "emptydir"), 0o755); err != nil {
				t.Fatal(err)
			}
			dest := filepath.Join(tmp, "out"+format.Extension())

			stats, err := Write(src, dest, Options{Format: format, Level: DefaultLevel})
			if err != nil {
				t.Fatalf("Write: %v", err)
			}
			if stats.FileCount != len(files) {
				t.Errorf("FileCount = %d, want %d", stats.FileCount, len(files))
			}
			var size int64
			for _, c := range files {
				size += int64(len(c))
			}
			if stats.OriginalSize != size {
				t.Errorf("OriginalSize = %d, want %d", stats.OriginalSize, size)
			}

			restore := filepath.Join(tmp, "restore")
			n, err := Extract(dest, restore, format)
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if n != len(files) {
				t.Errorf("Extract returned %d files, want %d", n, len(files))
			}
			got := readTree(t, filepath.Join(restore, "proj"))
			if len(got) != len(files) {
				t.Fatalf("restored %d files, want %d: %v", len(got), len(files), got)
			}
			for rel, want := range files {
				if got[rel] != want {
					t.Errorf("restored %s = %q, want %q", rel, got[rel], want)
				}
			}
			if fi, err := os.Stat(filepath.Join(restore, "proj", "emptydir")); err != nil || !fi.IsDir() {
				t.Errorf("empty directory not restored: %v", err)
			}
		})
	}
}

func TestWrite_ExclusionCounts(t *testing.T) {
	tmp := t.TempDir()
	src := makeTree(t, tmp, "proj", map[string]string{
		"keep.txt":                "k",
		"scratch.tmp":             "t",
		"notes.swp":               "s",
		"node_modules/a/index.js": "x",
		"node_modules/b.js":       "y",
		"node_modules/c/d/e.js":   "z",
		"src/app.go":              "package app",
	})
	filter, err := exclusion.New(exclusion.DefaultPatterns)
	if err != nil {
		t.Fatal(err)
	}
	dest := filepath.Join(tmp, "out.tar.gz")
	stats, err := Write(src, dest, Options{Format: FormatTar, Level: 1, Filter: filter})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if stats.FileCount != 2 {
		t.Errorf("FileCount = %d, want 2", stats.FileCount)
	}
	// scratch.tmp, notes.swp and the three files under node_modules
	if stats.ExcludedFiles != 5 {
		t.Errorf("ExcludedFiles = %d, want 5", stats.ExcludedFiles)
	}
	// node_modules itself plus a, c and c/d below it
	if stats.ExcludedDirs != 4 {
		t.Errorf("ExcludedDirs = %d, want 4", stats.ExcludedDirs)
	}
	if stats.FileCount+stats.ExcludedFiles != 7 {
		t.Errorf("included + excluded = %d, want 7", stats.FileCount+stats.ExcludedFiles)
	}

	names := tarNames(t, dest)
	want := []string{"proj/", "proj/keep.txt", "proj/src/", "proj/src/app.go"}
	if len(names) != len(want) {
		t.Fatalf("archive entries = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("entry %d = %q, want %q", i, names[i], want[i])
		}
	}
}

func tarNames(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	tr := tar.NewReader(gz)
	var names []string
	for {
		hdr, err := tr.Next()
		if err != nil {
			break
		}
		names = append(names, hdr.Name)
	}
	sort.Strings(names)
	return names
}

func TestWrite_SourceUnavailable(t *testing.T) {
	tmp := t.TempDir()
	dest := filepath.Join(tmp, "out.tar.gz")

	_, err := Write(filepath.Join(tmp, "missing"), dest, Options{Format: FormatTar, Level: 6})
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Error("no archive file may exist after ErrSourceUnavailable")
	}

	file := filepath.Join(tmp, "plain.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Write(file, dest, Options{Format: FormatZip, Level: 6}); !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable for a file source, got %v", err)
	}
}

func TestWrite_RejectsBadOptions(t *testing.T) {
	tmp := t.TempDir()
	src := makeTree(t, tmp, "proj", map[string]string{"a": "a"})
	if _, err := Write(src, filepath.Join(tmp, "x"), Options{Format: FormatTar, Level: 10}); !errors.Is(err, ErrInvalidLevel) {
		t.Errorf("expected ErrInvalidLevel, got %v", err)
	}
	if _, err := Write(src, filepath.Join(tmp, "x"), Options{Format: "rar", Level: 6}); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat, got %v", err)
	}
}

func TestWrite_ExistingDestinationIsNotOverwritten(t *testing.T) {
	tmp := t.TempDir()
	src := makeTree(t, tmp, "proj", map[string]string{"a": "a"})
	dest := filepath.Join(tmp, "out.zip")
	if err := os.WriteFile(dest, []byte("precious"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Write(src, dest, Options{Format: FormatZip, Level: 6}); !errors.Is(err, ErrWriteFailed) {
		t.Fatalf("expected ErrWriteFailed, got %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil || string(data) != "precious" {
		t.Fatalf("existing file was touched: %q, %v", data, err)
	}
}

func TestWrite_DestinationInsideSource(t *testing.T) {
	tmp := t.TempDir()
	src := makeTree(t, tmp, "proj", map[string]string{"a.txt": "a"})
	dest := filepath.Join(src, "self.tar.gz")
	stats, err := Write(src, dest, Options{Format: FormatTar, Level: 6})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if stats.FileCount != 1 {
		t.Errorf("FileCount = %d, want 1 (archive must not include itself)", stats.FileCount)
	}
}

func TestWrite_Symlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	tmp := t.TempDir()
	outside := makeTree(t, tmp, "outside", map[string]string{"secret.txt": "s"})
	src := makeTree(t, tmp, "proj", map[string]string{
		"real/file.txt": "data",
		"target.txt":    "target",
	})
	links := map[string]string{
		"loop":       src,                               // ancestor: skipped
		"inner":      filepath.Join(src, "real"),        // internal: followed
		"escape":     outside,                           // outside the root: skipped
		"file.lnk":   filepath.Join(src, "target.txt"),  // file link: followed
		"broken.lnk": filepath.Join(src, "nonexistent"), // dangling: excluded
	}
	for name, target := range links {
		if err := os.Symlink(target, filepath.Join(src, name)); err != nil {
			t.Fatalf("symlink %s: %v", name, err)
		}
	}

	dest := filepath.Join(tmp, "out.tar.gz")
	stats, err := Write(src, dest, Options{Format: FormatTar, Level: 6})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	// real/file.txt, target.txt, inner/file.txt, file.lnk
	if stats.FileCount != 4 {
		t.Errorf("FileCount = %d, want 4", stats.FileCount)
	}
	if stats.ExcludedDirs != 2 {
		t.Errorf("ExcludedDirs = %d, want 2 (loop and escape)", stats.ExcludedDirs)
	}
	if stats.ExcludedFiles != 1 {
		t.Errorf("ExcludedFiles = %d, want 1 (broken link)", stats.ExcludedFiles)
	}

	restore := filepath.Join(tmp, "restore")
	if _, err := Extract(dest, restore, FormatTar); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	got := readTree(t, filepath.Join(restore, "proj"))
	if got["file.lnk"] != "target" || got["inner/file.txt"] != "data" {
		t.Errorf("followed links not stored as files: %v", got)
	}
}

func TestExtract_Corrupted(t *testing.T) {
	tmp := t.TempDir()
	bogus := filepath.Join(tmp, "bogus.tar.gz")
	if err := os.WriteFile(bogus, []byte("definitely not gzip"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Extract(bogus, filepath.Join(tmp, "r1"), FormatTar); !errors.Is(err, ErrCorrupted) {
		t.Errorf("tar: expected ErrCorrupted, got %v", err)
	}
	if _, err := Extract(bogus, filepath.Join(tmp, "r2"), FormatZip); !errors.Is(err, ErrCorrupted) {
		t.Errorf("zip: expected ErrCorrupted, got %v", err)
	}
}

func TestExtract_RejectsEscapingEntries(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "evil.tar.gz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	body := []byte("pwned")
	if err := tw.WriteHeader(&tar.Header{Name: "../evil.txt", Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write(body); err != nil {
		t.Fatal(err)
	}
	tw.Close()
	gz.Close()
	f.Close()

	dest := filepath.Join(tmp, "restore")
	if _, err := Extract(path, dest, FormatTar); !errors.Is(err, ErrCorrupted) {
		t.Fatalf("expected ErrCorrupted, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmp, "evil.txt")); !os.IsNotExist(err) {
		t.Error("entry escaped the destination")
	}
}

func TestExtract_DestinationUnwritable(t *testing.T) {
	tmp := t.TempDir()
	src := makeTree(t, tmp, "proj", map[string]string{"a": "a"})
	dest := filepath.Join(tmp, "out.zip")
	if _, err := Write(src, dest, Options{Format: FormatZip, Level: 6}); err != nil {
		t.Fatal(err)
	}
	blocker := filepath.Join(tmp, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Extract(dest, filepath.Join(blocker, "sub"), FormatZip); !errors.Is(err, ErrDestinationUnwritable) {
		t.Fatalf("expected ErrDestinationUnwritable, got %v", err)
	}
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{"tar": FormatTar, "TGZ": FormatTar, "tar.gz": FormatTar, "zip": FormatZip}
	for in, want := range tests {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseFormat("7z"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat, got %v", err)
	}
	if f, _ := FormatFromName("backup_proj_20240101_120000.tar.gz"); f != FormatTar {
		t.Errorf("FormatFromName tar.gz = %q", f)
	}
	if f, _ := FormatFromName("x.zip"); f != FormatZip {
		t.Errorf("FormatFromName zip = %q", f)
	}
}

func newSink(t *testing.T, format Format, f *os.File) sink {
	t.Helper()
	if format == FormatZip {
		return newZipSink(f, DefaultLevel)
	}
	s, err := newTarSink(f, DefaultLevel)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSink_StoresStatSizeOfGrowingFile(t *testing.T) {
	for _, format := range []Format{FormatTar, FormatZip} {
		t.Run(string(format), func(t *testing.T) {
			tmp := t.TempDir()
			src := makeTree(t, tmp, "proj", map[string]string{"grow.log": "abc"})
			info, err := os.Stat(filepath.Join(src, "grow.log"))
			if err != nil {
				t.Fatal(err)
			}
			dest := filepath.Join(tmp, "out"+format.Extension())
			f, err := os.Create(dest)
			if err != nil {
				t.Fatal(err)
			}
			s := newSink(t, format, f)
			// the log gained three bytes after it was stat'ed
			n, err := s.addFile("proj/grow.log", info, strings.NewReader("abcdef"))
			if err != nil {
				t.Fatalf("addFile: %v", err)
			}
			if n != 3 {
				t.Errorf("copied %d bytes, want 3", n)
			}
			if err := s.Close(); err != nil {
				t.Fatal(err)
			}
			f.Close()

			restore := filepath.Join(tmp, "restore")
			if _, err := Extract(dest, restore, format); err != nil {
				t.Fatalf("Extract: %v", err)
			}
			data, err := os.ReadFile(filepath.Join(restore, "proj", "grow.log"))
			if err != nil || string(data) != "abc" {
				t.Errorf("restored %q, %v; want %q", data, err, "abc")
			}
		})
	}
}

func TestSink_FailsOnShrunkFile(t *testing.T) {
	for _, format := range []Format{FormatTar, FormatZip} {
		t.Run(string(format), func(t *testing.T) {
			tmp := t.TempDir()
			src := makeTree(t, tmp, "proj", map[string]string{"log": "abcdef"})
			info, err := os.Stat(filepath.Join(src, "log"))
			if err != nil {
				t.Fatal(err)
			}
			f, err := os.Create(filepath.Join(tmp, "out"+format.Extension()))
			if err != nil {
				t.Fatal(err)
			}
			defer f.Close()
			s := newSink(t, format, f)
			if _, err := s.addFile("proj/log", info, strings.NewReader("ab")); !errors.Is(err, ErrFileShrank) {
				t.Fatalf("expected ErrFileShrank, got %v", err)
			}
		})
	}
}

func TestWrite_FollowsProcfsLinkInBothFormats(t *testing.T) {
	if _, err := os.Stat("/proc/self/status"); err != nil {
		t.Skip("no procfs")
	}
	tmp := t.TempDir()
	src := makeTree(t, tmp, "proj", map[string]string{"a.txt": "a"})
	if err := os.Symlink("/proc/self/status", filepath.Join(src, "status")); err != nil {
		t.Fatal(err)
	}
	var sizes []int64
	for _, format := range []Format{FormatTar, FormatZip} {
		stats, err := Write(src, filepath.Join(tmp, "out"+format.Extension()), Options{Format: format, Level: DefaultLevel})
		if err != nil {
			t.Fatalf("%s: Write: %v", format, err)
		}
		if stats.FileCount != 2 {
			t.Errorf("%s: FileCount = %d, want 2", format, stats.FileCount)
		}
		sizes = append(sizes, stats.OriginalSize)
	}
	if sizes[0] != sizes[1] {
		t.Errorf("OriginalSize differs between formats: tar %d, zip %d", sizes[0], sizes[1])
	}
}

func TestWrite_FailsMidWalkAndRemovesPartialArchive(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}
	for _, format := range []Format{FormatTar, FormatZip} {
		t.Run(string(format), func(t *testing.T) {
			tmp := t.TempDir()
			src := makeTree(t, tmp, "proj", map[string]string{
				"a.txt":              strings.Repeat("a", 10000),
				"deep/er/locked.txt": "secret",
			})
			locked := filepath.Join(src, "deep", "er", "locked.txt")
			if err := os.Chmod(locked, 0o000); err != nil {
				t.Fatal(err)
			}
			t.Cleanup(func() { os.Chmod(locked, 0o644) })

			dest := filepath.Join(tmp, "out"+format.Extension())
			_, err := Write(src, dest, Options{Format: format, Level: DefaultLevel})
			if !errors.Is(err, ErrWriteFailed) {
				t.Fatalf("expected ErrWriteFailed, got %v", err)
			}
			if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
				t.Error("partial archive left behind")
			}
		})
	}
}

func TestWrite_RejectsFilesystemRoot(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "root.tar.gz")
	if _, err := Write(string(filepath.Separator), dest, Options{Format: FormatTar, Level: 1}); !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("no archive file may exist for a rejected root")
	}
}

func TestExtract_ChecksGzipTrailer(t *testing.T) {
	tmp := t.TempDir()
	src := makeTree(t, tmp, "proj", map[string]string{"a.txt": "hello", "b.txt": "world"})
	good := filepath.Join(tmp, "good.tar.gz")
	if _, err := Write(src, good, Options{Format: FormatTar, Level: DefaultLevel}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(good)
	if err != nil {
		t.Fatal(err)
	}

	flipped := append([]byte(nil), data...)
	flipped[len(flipped)-6] ^= 0xff
	truncated := data[:len(data)-8]

	for name, content := range map[string][]byte{"crc": flipped, "truncated": truncated} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(tmp, name+".tar.gz")
			if err := os.WriteFile(path, content, 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Extract(path, filepath.Join(tmp, "restore-"+name), FormatTar); !errors.Is(err, ErrCorrupted) {
				t.Fatalf("expected ErrCorrupted, got %v", err)
			}
		})
	}
}
