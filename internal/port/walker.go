package port

import (
	"context"

	"notesim/internal/domain"
)

// NoteStore is the document store the engine observes at sync time.
type NoteStore interface {
	// ListNotes returns a snapshot of every note's key, path and modification
	// time. Content is left empty; use ReadNote to load it.
	ListNotes(ctx context.Context) ([]domain.Note, error)

	// ReadNote reads a single note. It fails with a not-found error if the
	// note vanished since it was listed.
	ReadNote(ctx context.Context, key string) (domain.Note, error)
}
