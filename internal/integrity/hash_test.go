package integrity

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.bin")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write test file: %v", err)
	}
	return path
}

func TestDigestOf_KnownValues(t *testing.T) {
	tests := []struct {
		content string
		md5     string
		sha256  string
	}{
		{"", "d41d8cd98f00b204e9800998ecf8427e", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{"hello world", "5eb63bbbe01eeed093cb22bb8f5acdc3", "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"},
	}
	for _, tt := range tests {
		path := writeFile(t, tt.content)
		got, err := DigestOf(path)
		if err != nil {
			t.Fatalf("DigestOf: %v", err)
		}
		if got != tt.md5 {
			t.Errorf("md5(%q) = %s, want %s", tt.content, got, tt.md5)
		}
		got, err = Digest(path, SHA256)
		if err != nil {
			t.Fatalf("Digest sha256: %v", err)
		}
		if got != tt.sha256 {
			t.Errorf("sha256(%q) = %s, want %s", tt.content, got, tt.sha256)
		}
	}
}

func TestDigestOf_LargerThanChunk(t *testing.T) {
	a := writeFile(t, strings.Repeat("a", ChunkSize*3+17))
	b := writeFile(t, strings.Repeat("a", ChunkSize*3+17)+"b")
	da, err := DigestOf(a)
	if err != nil {
		t.Fatalf("DigestOf: %v", err)
	}
	db, err := DigestOf(b)
	if err != nil {
		t.Fatalf("DigestOf: %v", err)
	}
	if da == db {
		t.Error("digests of different files must differ")
	}
	if len(da) != 32 {
		t.Errorf("md5 hex length = %d, want 32", len(da))
	}
}

func TestDigestOf_Missing(t *testing.T) {
	_, err := DigestOf(filepath.Join(t.TempDir(), "nope"))
	if !errors.Is(err, ErrFileUnreadable) {
		t.Fatalf("expected ErrFileUnreadable, got %v", err)
	}
}

func TestVerify(t *testing.T) {
	path := writeFile(t, "hello world")
	ok, err := Verify(path, "5EB63BBBE01EEED093CB22BB8F5ACDC3", MD5)
	if err != nil || !ok {
		t.Fatalf("Verify upper-case digest = %v, %v", ok, err)
	}
	ok, err = Verify(path, "00000000000000000000000000000000", MD5)
	if err != nil || ok {
		t.Fatalf("Verify wrong digest = %v, %v", ok, err)
	}
	if _, err := Verify(path, "x", "crc32"); !errors.Is(err, ErrUnsupportedAlgorithm) {
		t.Fatalf("expected ErrUnsupportedAlgorithm, got %v", err)
	}
}

type readSizes struct {
	r     *strings.Reader
	sizes []int
}

func (rs *readSizes) Read(p []byte) (int, error) {
	rs.sizes = append(rs.sizes, len(p))
	return rs.r.Read(p)
}

func TestHashChunks_ReadsFixedChunks(t *testing.T) {
	content := strings.Repeat("x", ChunkSize*2+5)
	rs := &readSizes{r: strings.NewReader(content)}
	h := md5.New()
	if err := hashChunks(h, rs); err != nil {
		t.Fatalf("hashChunks: %v", err)
	}
	if len(rs.sizes) < 3 {
		t.Fatalf("reads = %v, want at least 3", rs.sizes)
	}
	for i, n := range rs.sizes {
		if n != ChunkSize {
			t.Errorf("read %d used a %d byte buffer, want %d", i, n, ChunkSize)
		}
	}
	sum := md5.Sum([]byte(content))
	if got := hex.EncodeToString(h.Sum(nil)); got != hex.EncodeToString(sum[:]) {
		t.Errorf("digest = %s", got)
	}
}
