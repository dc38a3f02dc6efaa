// Package attachio converts attachment blobs between bytes and files and
// sniffs content types. Pure I/O helpers; errors propagate unmodified with
// no retry.
package attachio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultContentType is used when detection fails or yields nothing.
const DefaultContentType = "application/octet-stream"

// Bytes accepts either raw bytes or a file path and returns the blob
// bytes. A string input is treated as a path.
func Bytes(input any) ([]byte, error) {
	switch v := input.(type) {
	case []byte:
		return v, nil
	case string:
		data, err := os.ReadFile(v)
		if err != nil {
			return nil, fmt.Errorf("reading attachment file: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported attachment input %T", input)
	}
}

// SniffContentType detects the MIME type of a blob, defaulting to
// DefaultContentType.
func SniffContentType(data []byte) string {
	if len(data) == 0 {
		return DefaultContentType
	}
	mt := mimetype.Detect(data)
	if mt == nil || mt.String() == "" {
		return DefaultContentType
	}
	return mt.String()
}

// ExtensionFor returns a file extension (with leading dot) for a content
// type, falling back to .bin.
func ExtensionFor(contentType string) string {
	if mt := mimetype.Lookup(contentType); mt != nil && mt.Extension() != "" {
		return mt.Extension()
	}
	return ".bin"
}

// ToTempFile materialises a blob as a temporary file with the given
// extension and returns its path. The caller owns the file.
func ToTempFile(data []byte, ext string) (string, error) {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	f, err := os.CreateTemp("", "ludex-*"+ext)
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	name := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(name)
		return "", fmt.Errorf("writing temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("closing temp file: %w", err)
	}
	return name, nil
}

// ToFile writes a blob to the given path, creating parent directories, and
// returns the path.
func ToFile(data []byte, path string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating attachment directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing attachment file: %w", err)
	}
	return path, nil
}
