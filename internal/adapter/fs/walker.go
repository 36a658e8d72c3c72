package fs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"notesim/internal/domain"
	"notesim/internal/port"
)

type Walker struct {
	includes []string
	excludes []string
}

func NewWalker(includes, excludes []string) *Walker {
	if len(includes) == 0 {
		includes = []string{"**/*.md"}
	}
	return &Walker{
		includes: includes,
		excludes: excludes,
	}
}

type FileInfo struct {
	// RelPath is slash-separated and relative to the walk root.
	RelPath string
	Path    string
	ModTime int64 // unix milliseconds
	Size    int64
}

func (w *Walker) Walk(root string) ([]FileInfo, error) {
	var files []FileInfo

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if relPath != "." && w.shouldExclude(relPath+"/") {
				return filepath.SkipDir
			}
			return nil
		}

		if !w.Matches(relPath) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, FileInfo{
			RelPath: relPath,
			Path:    path,
			ModTime: info.ModTime().UnixMilli(),
			Size:    info.Size(),
		})
		return nil
	})

	return files, err
}

// Matches reports whether a slash-separated relative path is a note.
func (w *Walker) Matches(relPath string) bool {
	return w.shouldInclude(relPath) && !w.shouldExclude(relPath)
}

func (w *Walker) shouldInclude(path string) bool {
	for _, pattern := range w.includes {
		matched, err := doublestar.Match(pattern, path)
		if err == nil && matched {
			return true
		}
	}
	return false
}

func (w *Walker) shouldExclude(path string) bool {
	for _, pattern := range w.excludes {
		matched, err := doublestar.Match(pattern, path)
		if err == nil && matched {
			return true
		}
	}
	return false
}

// Vault is a NoteStore over a directory of markdown files. Note keys are
// vault-relative slash paths.
type Vault struct {
	root   string
	walker *Walker
}

func NewVault(root string, includes, excludes []string) (*Vault, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return &Vault{root: abs, walker: NewWalker(includes, excludes)}, nil
}

// Root returns the absolute vault directory.
func (v *Vault) Root() string {
	return v.root
}

// Matches reports whether key names a note of this vault.
func (v *Vault) Matches(key string) bool {
	return v.walker.Matches(key)
}

// KeyFor converts an absolute file path inside the vault to a note key.
func (v *Vault) KeyFor(path string) (string, bool) {
	rel, err := filepath.Rel(v.root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// ListNotes returns every note sorted by key, without content.
func (v *Vault) ListNotes(ctx context.Context) ([]domain.Note, error) {
	files, err := v.walker.Walk(v.root)
	if err != nil {
		return nil, fmt.Errorf("failed to walk vault %s: %w", v.root, err)
	}

	notes := make([]domain.Note, 0, len(files))
	for _, f := range files {
		notes = append(notes, domain.Note{
			Key:     f.RelPath,
			Path:    f.RelPath,
			ModTime: time.UnixMilli(f.ModTime),
		})
	}
	sort.Slice(notes, func(i, j int) bool { return notes[i].Key < notes[j].Key })
	return notes, nil
}

// ReadNote reads the note stored under key. Keys that leave the vault or
// that the include and exclude patterns reject are validation errors.
func (v *Vault) ReadNote(ctx context.Context, key string) (domain.Note, error) {
	if filepath.IsAbs(filepath.FromSlash(key)) {
		return domain.Note{}, domain.ValidationError("read note", "note key "+key+" must be relative to the vault")
	}
	path := filepath.Join(v.root, filepath.FromSlash(key))
	clean, ok := v.KeyFor(path)
	if !ok {
		return domain.Note{}, domain.ValidationError("read note", "note key "+key+" is outside the vault")
	}
	if !v.walker.Matches(clean) {
		return domain.Note{}, domain.ValidationError("read note", "note key "+key+" is not a note of this vault")
	}
	key = clean

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return domain.Note{}, domain.NotFoundError("read note", "note "+key+" no longer exists", err)
	}
	if err != nil {
		return domain.Note{}, err
	}

	content, err := ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return domain.Note{}, domain.NotFoundError("read note", "note "+key+" no longer exists", err)
	}
	if err != nil {
		return domain.Note{}, err
	}

	return domain.Note{
		Key:     key,
		Path:    key,
		Content: content,
		ModTime: time.UnixMilli(info.ModTime().UnixMilli()),
	}, nil
}

func ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

var _ port.NoteStore = (*Vault)(nil)
