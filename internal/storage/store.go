// Package storage keeps downloaded videos in per-day directories.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
)

// ManifestName is the merge manifest written into a bucket.
const ManifestName = "files.txt"

const mediaExt = ".mp4"

// ArtifactName is the merged output file name for date.
func ArtifactName(date string) string {
	return date + "_combined" + mediaExt
}

// ErrNotEmpty is returned by RemoveBucket when the directory still has entries.
var ErrNotEmpty = errors.New("bucket directory not empty")

// Store manages day buckets under a root directory. Every change to a bucket
// directory's entries happens under one mutex; a single process is assumed
// to own the root.
type Store struct {
	root string
	mu   sync.Mutex
}

// New creates a Store rooted at root. The root is created lazily.
func New(root string) *Store {
	return &Store{root: root}
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// BucketPath returns the absolute directory of the bucket for date.
func (s *Store) BucketPath(date string) string {
	p := filepath.Join(s.root, date)
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// FilePath returns the absolute path of name inside the bucket for date.
func (s *Store) FilePath(date, name string) string {
	return filepath.Join(s.BucketPath(date), name)
}

// Exists reports whether the bucket directory for date exists.
func (s *Store) Exists(date string) bool {
	info, err := os.Stat(s.BucketPath(date))
	return err == nil && info.IsDir()
}

// EnsureBucket creates the bucket for date if needed and returns its path.
func (s *Store) EnsureBucket(date string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.BucketPath(date)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("failed to create bucket directory %s: %w", path, err)
	}
	return path, nil
}

// MediaFiles returns the names of the bucket's media files sorted by name.
// The day's merged artifact is not a media file. A missing bucket yields an
// empty slice.
func (s *Store) MediaFiles(date string) ([]string, error) {
	entries, err := os.ReadDir(s.BucketPath(date))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read bucket %s: %w", date, err)
	}

	artifact := ArtifactName(date)
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, mediaExt) || name == artifact {
			continue
		}
		files = append(files, name)
	}
	sort.Strings(files)
	return files, nil
}

// partSuffix marks a file still being written. It is never a media file.
const partSuffix = ".part"

// WriteFile fills name in the bucket for date from fill, replacing any
// existing file. The data goes to a temporary file that is renamed into
// place under the store lock, so name only ever holds complete content. A
// failed fill removes the temporary file and leaves an existing name intact.
func (s *Store) WriteFile(date, name string, fill func(w io.Writer) error) error {
	path := s.FilePath(date, name)
	tmp := path + partSuffix

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", tmp, err)
	}

	if err := fill(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}

	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close file %s: %w", tmp, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}

// WriteManifest writes the merge manifest listing files by absolute path and
// returns the manifest's path.
func (s *Store) WriteManifest(date string, files []string) (string, error) {
	var b strings.Builder
	for _, name := range files {
		fmt.Fprintf(&b, "file '%s'\n", s.FilePath(date, name))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.FilePath(date, ManifestName)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("failed to write manifest %s: %w", path, err)
	}
	return path, nil
}

// RemoveFile deletes name from the bucket for date. A file that is already
// gone is not an error.
func (s *Store) RemoveFile(date, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.FilePath(date, name)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

// RemoveBucket removes the bucket directory for date if it is empty. It
// returns ErrNotEmpty when entries remain.
func (s *Store) RemoveBucket(date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.BucketPath(date)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, syscall.ENOTEMPTY) || errors.Is(err, syscall.EEXIST) {
			return ErrNotEmpty
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to remove bucket %s: %w", path, err)
	}
	return nil
}
