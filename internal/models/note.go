// Package models defines the domain types shared by storage, index and engine.
package models

import "time"

// Note is a parsed Markdown file in the vault.
type Note struct {
	Path     string    `json:"path"`
	Title    string    `json:"title"`
	Body     string    `json:"-"`
	Tags     []string  `json:"tags"`
	Checksum string    `json:"checksum"`
	ModTime  time.Time `json:"mod_time"`
}

// NoteMetadata is a lightweight representation returned by list operations.
type NoteMetadata struct {
	Path     string    `json:"path"`
	Checksum string    `json:"checksum"`
	ModTime  time.Time `json:"mod_time"`
}

// ChangeKind enumerates vault mutations reported by the file layer.
type ChangeKind string

const (
	ChangeCreated  ChangeKind = "created"
	ChangeModified ChangeKind = "updated"
	ChangeDeleted  ChangeKind = "deleted"
	ChangeRenamed  ChangeKind = "renamed"
)

// Change is one persisted vault mutation. OldPath is set for renames only.
type Change struct {
	Kind    ChangeKind `json:"kind"`
	Path    string     `json:"path"`
	OldPath string     `json:"old_path,omitempty"`
}
