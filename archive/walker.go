// Package archive reads image bundles: zip files walked entry by entry.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"path"
	"strings"
)

// MaxEntrySize limits uncompressed size of a single entry read by ReadAll.
const MaxEntrySize = 64 << 20

// Entry is a regular file inside the archive.
type Entry struct {
	// Name is slash separated path inside the archive.
	Name string
	Size uint64
	file *zip.File
}

// ReadAll returns entry content, entries over MaxEntrySize are rejected.
func (e *Entry) ReadAll() ([]byte, error) {
	if e.Size > MaxEntrySize {
		return nil, fmt.Errorf("zip entry %q is too large (%d bytes)", e.Name, e.Size)
	}
	rc, err := e.file.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, MaxEntrySize+1))
}

// WalkFunc is called for each file in the archive visited by Walk. If an
// error is returned, processing stops.
type WalkFunc func(entry *Entry) error

// Walk visits all files in the archive which names start with prefix, in
// archive order. Archives with absolute paths or ".." components are
// rejected as a whole.
func Walk(archive, prefix string, walkFn WalkFunc) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		name := f.FileHeader.Name
		if !isSafePath(name) {
			return fmt.Errorf("zip entry %q: unsafe path (absolute or contains path traversal)", name)
		}
		if f.FileInfo().IsDir() || !strings.HasPrefix(name, prefix) {
			continue
		}
		// hidden files and resource forks are never images
		if base := path.Base(name); strings.HasPrefix(base, ".") || strings.HasPrefix(name, "__MACOSX/") {
			continue
		}
		if err := walkFn(&Entry{Name: name, Size: f.UncompressedSize64, file: f}); err != nil {
			return err
		}
	}
	return nil
}

func isSafePath(name string) bool {
	if path.IsAbs(name) || strings.HasPrefix(name, `\`) {
		return false
	}
	for _, part := range strings.Split(strings.ReplaceAll(name, `\`, "/"), "/") {
		if part == ".." {
			return false
		}
	}
	return true
}
