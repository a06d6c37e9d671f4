package store

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ProcessedSet tracks keys whose records are already persisted.
type ProcessedSet interface {
	Has(key string) bool
	Mark(key string) error
	Len() int
}

// LineSet is a ProcessedSet stored as one key per line. Mark appends and
// syncs; the file is never rewritten.
type LineSet struct {
	path string
	keys map[string]struct{}
	file *os.File
}

// OpenLineSet loads the keys in path and opens it for appending.
func OpenLineSet(path string) (*LineSet, error) {
	keys, _, err := readLines(path)
	if err != nil {
		return nil, err
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open processed set: %w", err)
	}
	return &LineSet{path: path, keys: keys, file: f}, nil
}

func (s *LineSet) Has(key string) bool {
	_, ok := s.keys[key]
	return ok
}

func (s *LineSet) Mark(key string) error {
	key = strings.TrimSpace(key)
	if key == "" || s.Has(key) {
		return nil
	}
	if _, err := s.file.WriteString(key + "\n"); err != nil {
		return fmt.Errorf("mark %q: %w", key, err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync processed set: %w", err)
	}
	s.keys[key] = struct{}{}
	return nil
}

func (s *LineSet) Len() int { return len(s.keys) }

// Close releases the file handle.
func (s *LineSet) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// StateSet is a ProcessedSet embedded in a State. Every Mark rewrites the
// state file atomically.
type StateSet struct {
	File  StateFile
	State *State
}

func (s *StateSet) Has(key string) bool { return s.State.Processed[key] }

func (s *StateSet) Mark(key string) error {
	if s.State.Processed[key] {
		return nil
	}
	s.State.Processed[key] = true
	if err := s.File.Save(s.State); err != nil {
		delete(s.State.Processed, key)
		return err
	}
	return nil
}

func (s *StateSet) Len() int { return len(s.State.Processed) }

// LinkFile is the append-only frontier of discovered URLs.
type LinkFile struct {
	path  string
	seen  map[string]struct{}
	order []string
}

// OpenLinkFile loads the URLs already in path.
func OpenLinkFile(path string) (*LinkFile, error) {
	seen, order, err := readLines(path)
	if err != nil {
		return nil, err
	}
	return &LinkFile{path: path, seen: seen, order: order}, nil
}

// ReadLinkFile loads a link file that must already exist.
func ReadLinkFile(path string) (*LinkFile, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("link file: %w", err)
	}
	return OpenLinkFile(path)
}

// Append adds the URLs not already present and syncs. It returns how many
// were new. URLs count as present only once the write is synced.
func (l *LinkFile) Append(urls ...string) (int, error) {
	var fresh []string
	batch := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, ok := l.seen[u]; ok {
			continue
		}
		if _, ok := batch[u]; ok {
			continue
		}
		batch[u] = struct{}{}
		fresh = append(fresh, u)
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	if err := ensureDir(l.path); err != nil {
		return 0, err
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open link file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, u := range fresh {
		w.WriteString(u)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		return 0, fmt.Errorf("append links: %w", err)
	}
	if err := f.Sync(); err != nil {
		return 0, fmt.Errorf("sync link file: %w", err)
	}
	for _, u := range fresh {
		l.seen[u] = struct{}{}
	}
	l.order = append(l.order, fresh...)
	return len(fresh), nil
}

func (l *LinkFile) Has(url string) bool {
	_, ok := l.seen[url]
	return ok
}

// Links returns the URLs in file order.
func (l *LinkFile) Links() []string {
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

func (l *LinkFile) Len() int { return len(l.order) }

func readLines(path string) (map[string]struct{}, []string, error) {
	seen := make(map[string]struct{})
	var order []string

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return seen, order, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		order = append(order, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("read %q: %w", path, err)
	}
	return seen, order, nil
}
