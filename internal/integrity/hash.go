// Package integrity computes content digests of archive files. Digests
// detect corruption; they are not tamper proofing.
package integrity

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
)

// ChunkSize is the read size used while streaming a file through the hash.
const ChunkSize = 4096

// Algorithm names a supported digest.
type Algorithm string

const (
	MD5    Algorithm = "md5"
	SHA256 Algorithm = "sha256"
)

// ErrFileUnreadable indicates the file could not be opened or read.
var ErrFileUnreadable = errors.New("file unreadable")

// ErrUnsupportedAlgorithm is returned for an unknown Algorithm.
var ErrUnsupportedAlgorithm = errors.New("unsupported digest algorithm")

func newHash(algo Algorithm) (hash.Hash, error) {
	switch Algorithm(strings.ToLower(string(algo))) {
	case MD5, "":
		return md5.New(), nil
	case SHA256:
		return sha256.New(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algo)
}

// DigestOf returns the hex MD5 digest of the file at path.
func DigestOf(path string) (string, error) {
	return Digest(path, MD5)
}

// Digest returns the hex digest of the file at path using algo.
func Digest(path string, algo Algorithm) (string, error) {
	h, err := newHash(algo)
	if err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %v", ErrFileUnreadable, path, err)
	}
	defer f.Close()

	if err := hashChunks(h, f); err != nil {
		return "", fmt.Errorf("%w: read %s: %v", ErrFileUnreadable, path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// hashChunks feeds r into h in reads of ChunkSize bytes.
func hashChunks(h hash.Hash, r io.Reader) error {
	buf := make([]byte, ChunkSize)
	for {
		n, err := r.Read(buf)
		h.Write(buf[:n])
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Verify reports whether the digest of path equals expected. The comparison
// ignores hex case.
func Verify(path, expected string, algo Algorithm) (bool, error) {
	actual, err := Digest(path, algo)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(actual, expected), nil
}
