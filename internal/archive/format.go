package archive

import (
	"errors"
	"fmt"
	"strings"
)

// Format is an archive container format.
type Format string

const (
	// FormatTar is a tar stream compressed with gzip (.tar.gz).
	FormatTar Format = "tar"
	// FormatZip is a deflate-compressed zip container (.zip).
	FormatZip Format = "zip"
)

// ErrUnknownFormat is returned for a format other than tar or zip.
var ErrUnknownFormat = errors.New("unknown archive format")

// ParseFormat accepts "tar" (also "tar.gz", "tgz") and "zip", ignoring case.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tar", "tar.gz", "tgz":
		return FormatTar, nil
	case "zip":
		return FormatZip, nil
	}
	return "", fmt.Errorf("%w: %q (want tar or zip)", ErrUnknownFormat, s)
}

// Extension returns the file extension including the leading dot.
func (f Format) Extension() string {
	switch f {
	case FormatTar:
		return ".tar.gz"
	case FormatZip:
		return ".zip"
	}
	return ""
}

func (f Format) valid() bool {
	return f == FormatTar || f == FormatZip
}

// FormatFromName infers the format from an archive file name.
func FormatFromName(name string) (Format, error) {
	switch {
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return FormatTar, nil
	case strings.HasSuffix(name, ".zip"):
		return FormatZip, nil
	}
	return "", fmt.Errorf("%w: cannot infer format of %q", ErrUnknownFormat, name)
}
