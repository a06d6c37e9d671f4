package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// CursorFile stores a single integer cursor as plain text.
type CursorFile struct {
	Path    string
	Default int
}

// Load returns the saved cursor. A missing or unreadable file yields
// Default; unreadable content is logged.
func (c CursorFile) Load() int {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("cannot read checkpoint, starting from default", slog.String("path", c.Path), slog.Any("error", err))
		}
		return c.Default
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		slog.Warn("malformed checkpoint, starting from default", slog.String("path", c.Path), slog.Any("error", err))
		return c.Default
	}
	return n
}

// Save atomically replaces the cursor.
func (c CursorFile) Save(cursor int) error {
	return writeFileAtomic(c.Path, func(w io.Writer) error {
		_, err := io.WriteString(w, strconv.Itoa(cursor))
		return err
	})
}

// State is the JSON checkpoint of the author harvest. LastOffset is the
// first listing offset not yet completed.
type State struct {
	LastOffset int             `json:"last_offset"`
	Processed  map[string]bool `json:"processed"`
	TotalCount int             `json:"total_count"`
}

// NewState returns an empty state.
func NewState() *State {
	return &State{Processed: make(map[string]bool)}
}

// StateFile loads and saves a State.
type StateFile struct {
	Path string
}

// Load reads the state. A missing file yields a fresh state; an
// unreadable one yields a fresh state and a warning.
func (s StateFile) Load() *State {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("cannot read state, starting fresh", slog.String("path", s.Path), slog.Any("error", err))
		}
		return NewState()
	}
	st := NewState()
	if err := json.Unmarshal(data, st); err != nil {
		slog.Warn("malformed state, starting fresh", slog.String("path", s.Path), slog.Any("error", err))
		return NewState()
	}
	if st.Processed == nil {
		st.Processed = make(map[string]bool)
	}
	if st.LastOffset < 0 {
		st.LastOffset = 0
	}
	return st
}

// Save atomically replaces the state file.
func (s StateFile) Save(st *State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	return writeFileAtomic(s.Path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}
