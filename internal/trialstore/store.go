// Package trialstore persists the ordered trial list of one sweep.
//
// The list is written in two encodings on every mutation: a binary primary
// encoding (encoding/gob) that is the source of truth for the claim
// protocol, and a human-readable JSON Lines file used for inspection and to
// rebuild the primary encoding when it is missing. Both hold the same flat
// records produced by [trial.Trial.Record].
//
// The store does not lock anything itself. Every mutation must happen while
// the sweep's lock is held; see package filelock.
package trialstore

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Iron-Ham/sweeper/internal/errors"
	"github.com/Iron-Ham/sweeper/internal/fsutil"
	"github.com/Iron-Ham/sweeper/internal/trial"
)

// File names inside a sweep directory.
const (
	PrimaryFileName  = "trials.gob"
	JSONLFileName    = "trials.jsonl"
	InitialFileName  = "trials.init.jsonl"
	maxJSONLLineSize = 16 * 1024 * 1024
)

func init() {
	// Nested axis values travel inside interface values.
	gob.Register([]any{})
	gob.Register(map[string]any{})
}

// ReadResult is the outcome of reading the primary encoding. Corrupt is set
// when the file was empty, truncated or otherwise failed to decode; callers
// are expected to retry.
type ReadResult struct {
	Trials  []trial.Trial
	Corrupt bool
}

// Store reads and writes the trial list files of one sweep directory.
type Store struct {
	dir string
}

// New returns a Store for the sweep directory dir.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the sweep directory.
func (s *Store) Dir() string {
	return s.dir
}

// PrimaryPath returns the path of the binary encoding.
func (s *Store) PrimaryPath() string {
	return filepath.Join(s.dir, PrimaryFileName)
}

// JSONLPath returns the path of the human-readable encoding.
func (s *Store) JSONLPath() string {
	return filepath.Join(s.dir, JSONLFileName)
}

// InitialPath returns the path of the snapshot written at sweep creation.
func (s *Store) InitialPath() string {
	return filepath.Join(s.dir, InitialFileName)
}

// PrimaryExists reports whether the binary encoding is present.
func (s *Store) PrimaryExists() (bool, error) {
	return exists(s.PrimaryPath())
}

// ReadAll reads the primary encoding. Decode failures are reported through
// ReadResult.Corrupt rather than as an error. A missing file returns an error
// wrapping fs.ErrNotExist.
func (s *Store) ReadAll() (ReadResult, error) {
	data, err := os.ReadFile(s.PrimaryPath())
	if err != nil {
		return ReadResult{}, fmt.Errorf("read trial list: %w", err)
	}
	if len(data) == 0 {
		return ReadResult{Corrupt: true}, nil
	}

	var records []map[string]any
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&records); err != nil {
		return ReadResult{Corrupt: true}, nil
	}

	trials := make([]trial.Trial, 0, len(records))
	for _, rec := range records {
		t, err := trial.FromRecord(rec)
		if err != nil {
			return ReadResult{Corrupt: true}, nil
		}
		trials = append(trials, t)
	}
	return ReadResult{Trials: trials}, nil
}

// WriteAll replaces both encodings with trials, primary first. Both are
// encoded before either file is touched, so a list that cannot be encoded
// leaves the previous files in place. Each file is synced to stable storage
// before it is renamed into place.
func (s *Store) WriteAll(trials []trial.Trial) error {
	records := make([]map[string]any, len(trials))
	for i, t := range trials {
		records[i] = t.Record()
	}

	var primary bytes.Buffer
	if err := gob.NewEncoder(&primary).Encode(records); err != nil {
		return fmt.Errorf("encode trial list: %w", err)
	}
	lines, err := encodeJSONL(trials)
	if err != nil {
		return err
	}

	if err := fsutil.WriteFileAtomic(s.PrimaryPath(), primary.Bytes(), 0644); err != nil {
		return fmt.Errorf("write trial list: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.JSONLPath(), lines, 0644); err != nil {
		return fmt.Errorf("write %s: %w", JSONLFileName, err)
	}
	return nil
}

// WriteInitial writes the creation-time snapshot of the trial list.
func (s *Store) WriteInitial(trials []trial.Trial) error {
	lines, err := encodeJSONL(trials)
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(s.InitialPath(), lines, 0644); err != nil {
		return fmt.Errorf("write %s: %w", InitialFileName, err)
	}
	return nil
}

// ReadJSONL decodes the human-readable encoding.
func (s *Store) ReadJSONL() ([]trial.Trial, error) {
	return readJSONL(s.JSONLPath())
}

// Repair rebuilds the primary encoding from the human-readable one when the
// primary is absent, rewriting both so they agree. It reports whether a
// repair happened. If neither file exists the sweep cannot be served and
// errors.ErrMissingTrials is returned.
func (s *Store) Repair() (bool, error) {
	ok, err := s.PrimaryExists()
	if err != nil {
		return false, err
	}
	if ok {
		return false, nil
	}

	trials, err := s.ReadJSONL()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("%w: %s", errors.ErrMissingTrials, s.dir)
		}
		return false, err
	}
	if err := s.WriteAll(trials); err != nil {
		return false, err
	}
	return true, nil
}

// encodeJSONL renders one JSON object per trial, newline terminated.
func encodeJSONL(trials []trial.Trial) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, t := range trials {
		if err := enc.Encode(t); err != nil {
			return nil, fmt.Errorf("encode trial %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

func readJSONL(path string) ([]trial.Trial, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read trial list: %w", err)
	}
	defer f.Close()

	var trials []trial.Trial
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxJSONLLineSize)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var t trial.Trial
		if err := json.Unmarshal(text, &t); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", filepath.Base(path), line, err)
		}
		trials = append(trials, t)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", filepath.Base(path), err)
	}
	return trials, nil
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", path, err)
}
