// Package storage defines the vault file-system abstraction.
package storage

import "github.com/starford/lattice/internal/models"

// Provider is the interface for vault file operations. Paths are
// vault-relative and use forward slashes.
type Provider interface {
	// List returns metadata for every visible .md file under dir.
	List(dir string) ([]models.NoteMetadata, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Stat returns metadata for a single note.
	Stat(path string) (models.NoteMetadata, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Move renames oldPath to newPath.
	Move(oldPath, newPath string) error
	// Root returns the absolute vault directory.
	Root() string
}
