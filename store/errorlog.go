package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"time"
)

var errorLogHeader = []string{"source", "error", "timestamp"}

// ErrorLog appends failed units to a CSV file.
type ErrorLog struct {
	Path string
	Now  func() time.Time
}

// Record appends one row. The header is written when the file is created.
func (l *ErrorLog) Record(source string, cause error) error {
	if err := ensureDir(l.Path); err != nil {
		return err
	}
	_, statErr := os.Stat(l.Path)
	fresh := errors.Is(statErr, os.ErrNotExist)

	f, err := os.OpenFile(l.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open error log: %w", err)
	}
	defer f.Close()

	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	w := csv.NewWriter(f)
	if fresh {
		if err := w.Write(errorLogHeader); err != nil {
			return fmt.Errorf("write error log header: %w", err)
		}
	}
	if err := w.Write([]string{source, msg, now().Format(time.RFC3339)}); err != nil {
		return fmt.Errorf("write error log row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush error log: %w", err)
	}
	return nil
}
