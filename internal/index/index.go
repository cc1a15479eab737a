package index

// NoteIndex is the text-search collaborator consumed by the engine and the
// HTTP and MCP surfaces.
type NoteIndex interface {
	UpsertNote(n NoteRow, body string) error
	DeleteNote(path string) error
	RenameNote(oldPath, newPath string) error
	GetChecksum(path string) (string, error)
	GetNote(path string) (*NoteRow, error)
	ListNotes(limit, offset int, tag, sort string) ([]NoteRow, int, error)
	Search(query string, limit int) ([]SearchResult, error)
	UnlinkedMentions(title, excludePath string, limit int) ([]Mention, error)
	TagsByPath() (map[string][]string, error)
	AllChecksums() (map[string]string, error)
	Close() error
}

// Verify *DB satisfies NoteIndex at compile time.
var _ NoteIndex = (*DB)(nil)
