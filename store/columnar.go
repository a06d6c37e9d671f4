// Package store persists harvested records and resume state on disk.
//
// Records are appended to a JSON-lines log that is fsynced per append and
// periodically compacted into a CSV snapshot. Checkpoints and processed
// sets are small files rewritten atomically or appended line by line.
package store

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Record is one row of a columnar store.
type Record interface {
	Key() string
	Header() []string
	Row() []string
}

// CompactStats summarizes one compaction pass.
type CompactStats struct {
	Lines      int
	Records    int
	Malformed  int
	Duplicates int
}

// ColumnarStore appends records of type T to LogPath and rebuilds
// SnapshotPath from the log.
type ColumnarStore[T Record] struct {
	LogPath      string
	SnapshotPath string
	CompactEvery int
	OnCompact    func(CompactStats)

	file    *os.File
	appends int
}

// OpenColumnar opens (creating if needed) the record log.
func OpenColumnar[T Record](logPath, snapshotPath string, compactEvery int) (*ColumnarStore[T], error) {
	if err := ensureDir(logPath); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open record log: %w", err)
	}
	return &ColumnarStore[T]{
		LogPath:      logPath,
		SnapshotPath: snapshotPath,
		CompactEvery: compactEvery,
		file:         f,
	}, nil
}

// Append durably writes rec to the log. The call returns only after the
// line has been synced.
func (s *ColumnarStore[T]) Append(rec T) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %q: %w", rec.Key(), err)
	}
	line = append(line, '\n')
	if _, err := s.file.Write(line); err != nil {
		return fmt.Errorf("append record %q: %w", rec.Key(), err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync record log: %w", err)
	}

	s.appends++
	if s.CompactEvery > 0 && s.appends%s.CompactEvery == 0 {
		if _, err := s.Compact(); err != nil {
			slog.Warn("periodic compaction failed", slog.String("snapshot", s.SnapshotPath), slog.Any("error", err))
		}
	}
	return nil
}

// Compact rebuilds the snapshot from the log. Malformed lines are skipped
// and counted; duplicate keys keep the last record written, in the
// position of their first appearance.
func (s *ColumnarStore[T]) Compact() (CompactStats, error) {
	stats, err := CompactFile[T](s.LogPath, s.SnapshotPath)
	if err == nil && s.OnCompact != nil {
		s.OnCompact(stats)
	}
	return stats, err
}

// Appends returns the number of records appended through this handle.
func (s *ColumnarStore[T]) Appends() int { return s.appends }

// Close releases the log file handle.
func (s *ColumnarStore[T]) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// CompactFile rebuilds snapshotPath from the record log at logPath. A
// missing log produces a header-only snapshot.
func CompactFile[T Record](logPath, snapshotPath string) (CompactStats, error) {
	var stats CompactStats

	records, order, err := readLog[T](logPath, &stats)
	if err != nil {
		return stats, err
	}

	var zero T
	err = writeFileAtomic(snapshotPath, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(zero.Header()); err != nil {
			return fmt.Errorf("write snapshot header: %w", err)
		}
		for _, key := range order {
			if err := cw.Write(records[key].Row()); err != nil {
				return fmt.Errorf("write snapshot row: %w", err)
			}
		}
		cw.Flush()
		return cw.Error()
	})
	if err != nil {
		return stats, err
	}

	if stats.Malformed > 0 {
		slog.Warn("skipped malformed record log lines",
			slog.String("log", logPath),
			slog.Int("malformed", stats.Malformed),
		)
	}
	slog.Debug("compacted record log",
		slog.String("snapshot", snapshotPath),
		slog.Int("records", stats.Records),
		slog.Int("duplicates", stats.Duplicates),
	)
	return stats, nil
}

// ReadLog returns the de-duplicated records of a log in first-seen order.
func ReadLog[T Record](logPath string) ([]T, CompactStats, error) {
	var stats CompactStats
	records, order, err := readLog[T](logPath, &stats)
	if err != nil {
		return nil, stats, err
	}
	out := make([]T, 0, len(order))
	for _, key := range order {
		out = append(out, records[key])
	}
	return out, stats, nil
}

func readLog[T Record](logPath string, stats *CompactStats) (map[string]T, []string, error) {
	records := make(map[string]T)
	var order []string

	f, err := os.Open(logPath)
	if errors.Is(err, os.ErrNotExist) {
		return records, order, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open record log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		stats.Lines++

		var rec T
		if err := json.Unmarshal(line, &rec); err != nil || rec.Key() == "" {
			stats.Malformed++
			continue
		}
		key := rec.Key()
		if _, seen := records[key]; seen {
			stats.Duplicates++
		} else {
			order = append(order, key)
		}
		records[key] = rec
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("read record log: %w", err)
	}

	stats.Records = len(order)
	return records, order, nil
}
