package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Spool is an append-only, single-writer on-disk buffer for batches that
// could not be delivered live. Draining is non-blocking: a slice of rows
// is read off the front, and on failure re-appended so the file stays
// consistent even if the process crashes mid-drain.
type Spool struct {
	mu   sync.Mutex
	path string
}

// NewSpool opens (creating if needed) the spool file at dir/events.spool.
func NewSpool(dir string) (*Spool, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}
	path := filepath.Join(dir, "events.spool")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open spool file: %w", err)
	}
	f.Close()
	return &Spool{path: path}, nil
}

// Append writes each row as one JSON line at the end of the spool file.
func (s *Spool) Append(rows []WirePayload) error {
	if len(rows) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open spool for append: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, row := range rows {
		line, err := row.MarshalLine()
		if err != nil {
			return fmt.Errorf("marshal spool row: %w", err)
		}
		if _, err := w.Write(line); err != nil {
			return fmt.Errorf("write spool row: %w", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush spool: %w", err)
	}
	return f.Sync()
}

// TakeSlice reads up to max rows off the front of the spool, removing them
// from the file: the remainder is rewritten to a temp file and atomically
// renamed over the spool, so a crash mid-drain either leaves the spool
// untouched or fully advanced, never truncated.
func (s *Spool) TakeSlice(max int) ([]WirePayload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open spool for read: %w", err)
	}

	var taken []WirePayload
	var remainder [][]byte

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if len(taken) < max {
			var row WirePayload
			if err := json.Unmarshal(line, &row); err != nil {
				// Skip unparseable lines rather than blocking the drain forever.
				continue
			}
			taken = append(taken, row)
		} else {
			cp := make([]byte, len(line))
			copy(cp, line)
			remainder = append(remainder, cp)
		}
	}
	scanErr := scanner.Err()
	f.Close()
	if scanErr != nil {
		return nil, fmt.Errorf("scan spool: %w", scanErr)
	}
	if len(taken) == 0 {
		return nil, nil
	}

	tmpPath := s.path + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open spool tmp: %w", err)
	}
	w := bufio.NewWriter(tmp)
	for _, line := range remainder {
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("flush spool tmp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("sync spool tmp: %w", err)
	}
	tmp.Close()
	if err := os.Rename(tmpPath, s.path); err != nil {
		return nil, fmt.Errorf("rename spool tmp: %w", err)
	}

	return taken, nil
}

// Sync fsyncs the spool directory's file state. Called on graceful
// shutdown so any pending writes survive a subsequent crash.
func (s *Spool) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.Open(s.path)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

// Count returns the number of rows currently buffered in the spool, for
// gauge reporting. It scans the file, so callers should not poll it on a
// tight loop.
func (s *Spool) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open spool for count: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	n := 0
	for scanner.Scan() {
		if len(scanner.Bytes()) > 0 {
			n++
		}
	}
	return n, scanner.Err()
}
