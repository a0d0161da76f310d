package exclusion

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps the exclusion set as a newline-delimited log, one
// ProfileRef per line. Appends are fsynced before returning. The file is
// rewritten only by Remove.
type FileStore struct {
	path string

	mu          sync.Mutex
	f           *os.File
	set         Set
	needNewline bool // file ends without a trailing newline
}

// OpenFile opens (or creates) the log at path for appending. Call Load
// before using Contains.
func OpenFile(path string) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("exclusion: open %s: %w", path, err)
	}
	needNewline, err := endsWithoutNewline(path)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("exclusion: open %s: %w", path, err)
	}
	return &FileStore{path: path, f: f, set: make(Set), needNewline: needNewline}, nil
}

func endsWithoutNewline(path string) (bool, error) {
	r, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer r.Close()
	fi, err := r.Stat()
	if err != nil || fi.Size() == 0 {
		return false, err
	}
	last := make([]byte, 1)
	if _, err := r.ReadAt(last, fi.Size()-1); err != nil {
		return false, err
	}
	return last[0] != '\n', nil
}

// Path returns the log file path.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(ctx context.Context) (Set, error) {
	refs, needNewline, err := readLog(s.path)
	if err != nil {
		return nil, err
	}
	set := NewSet(refs...)

	s.mu.Lock()
	s.set = set
	s.needNewline = needNewline
	s.mu.Unlock()
	return set.Clone(), nil
}

// readLog returns the refs in the log at path in file order, and whether
// the file ends without a trailing newline. A missing file is empty.
func readLog(path string) ([]ProfileRef, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, false, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}

	var refs []ProfileRef
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		if ref := Normalize(sc.Text()); ref != "" {
			refs = append(refs, ref)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, false, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}
	return refs, len(data) > 0 && data[len(data)-1] != '\n', nil
}

func (s *FileStore) Contains(ref ProfileRef) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set.Has(ref)
}

// Append writes ref and fsyncs before returning. It does not observe ctx:
// a caller that asked for a record gets it even while shutting down.
func (s *FileStore) Append(ctx context.Context, ref ProfileRef) error {
	if ref == "" {
		return fmt.Errorf("exclusion: append: empty ref")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.set.Has(ref) {
		return nil
	}
	if s.f == nil {
		return fmt.Errorf("exclusion: append: store closed")
	}

	line := string(ref) + "\n"
	if s.needNewline {
		line = "\n" + line
	}
	if _, err := s.f.WriteString(line); err != nil {
		return fmt.Errorf("exclusion: append %s: %w", ref, err)
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("exclusion: sync %s: %w", s.path, err)
	}
	s.needNewline = false
	s.set.Add(ref)
	return nil
}

// Remove rewrites the log without ref, via a temp file and rename so a
// crash leaves either the old or the new log in place. The rewrite starts
// from the file on disk, not from memory, so entries written by another
// process or never loaded survive; the in-memory set is refreshed from it.
func (s *FileStore) Remove(ctx context.Context, ref ProfileRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	onDisk, _, err := readLog(s.path)
	if err != nil {
		return fmt.Errorf("exclusion: remove: %w", err)
	}
	keep := NewSet()
	kept := make([]ProfileRef, 0, len(onDisk))
	for _, r := range onDisk {
		if r == ref || keep.Has(r) {
			continue
		}
		keep.Add(r)
		kept = append(kept, r)
	}
	if len(kept) == len(onDisk) {
		s.set = keep
		return nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp*")
	if err != nil {
		return fmt.Errorf("exclusion: remove: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := bufio.NewWriter(tmp)
	for _, r := range kept {
		w.WriteString(string(r))
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("exclusion: remove: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("exclusion: remove: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("exclusion: remove: close: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("exclusion: remove: chmod: %w", err)
	}

	if s.f != nil {
		s.f.Close()
		s.f = nil
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("exclusion: remove: rename: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("exclusion: remove: reopen: %w", err)
	}
	s.f = f
	s.needNewline = false
	s.set = keep
	return nil
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
