// Package storage defines the import directory file-system abstraction.
package storage

import (
	"path/filepath"
	"strings"
	"time"
)

// FileMeta describes one diagram file.
type FileMeta struct {
	Path      string // relative to the root, slash-separated
	Checksum  string
	UpdatedAt time.Time
}

// Provider is the interface for import directory file operations.
type Provider interface {
	// List returns metadata for every diagram file under dir (relative to root).
	List(dir string) ([]FileMeta, error)
	// Read returns the raw bytes of the file at path (relative to root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to root).
	Write(path string, content []byte) error
}

// IsDiagramFile reports whether name has a diagram file extension.
func IsDiagramFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".md":
		return true
	}
	return false
}
