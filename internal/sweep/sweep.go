// Package sweep creates sweeps and locates them on disk.
//
// A sweep lives under a root directory:
//
//	<root>/
//	├── latest                  JSON string naming the newest sweep
//	└── sweeps/<id>/
//	    ├── trials.gob          primary trial list
//	    ├── trials.jsonl        human-readable trial list
//	    ├── trials.init.jsonl   trial list as created
//	    ├── axes.yaml           varying parameters, sweep_id included
//	    └── trials.lock         advisory lock used by the claim protocol
//
// Trials are written once by Create and afterwards only changed by the claim
// protocol.
package sweep

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/sweeper/internal/errors"
	"github.com/Iron-Ham/sweeper/internal/fsutil"
	"github.com/Iron-Ham/sweeper/internal/trial"
	"github.com/Iron-Ham/sweeper/internal/trialstore"
)

// Layout names under a sweep root.
const (
	SweepsDirName  = "sweeps"
	LatestFileName = "latest"
	AxesFileName   = "axes.yaml"

	// LatestRef selects the most recently created sweep wherever an ID is
	// accepted.
	LatestRef = "latest"
)

const (
	idLength   = 8
	idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	// maxIDAttempts bounds retries when a generated ID is already taken.
	maxIDAttempts = 5
)

// Sweep is a created sweep.
type Sweep struct {
	ID   string
	Root string
	Dir  string
	Axes Axes
}

// Store returns the trial store of the sweep.
func (s *Sweep) Store() *trialstore.Store {
	return trialstore.New(s.Dir)
}

// CreateOption configures Create.
type CreateOption func(*createOptions)

type createOptions struct {
	exclude []string
	id      string
}

// WithExcluded leaves the named axes out of every trial. They are still
// recorded in axes.yaml.
func WithExcluded(names ...string) CreateOption {
	return func(o *createOptions) {
		o.exclude = append(o.exclude, names...)
	}
}

// WithID uses id instead of a generated identifier.
func WithID(id string) CreateOption {
	return func(o *createOptions) {
		o.id = id
	}
}

// GenerateID returns a random identifier of 8 characters from [a-z0-9].
func GenerateID() (string, error) {
	// Rejection sampling keeps the distribution uniform over the alphabet.
	const limit = 256 - 256%len(idAlphabet)

	id := make([]byte, 0, idLength)
	buf := make([]byte, idLength*2)
	for len(id) < idLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate sweep id: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			id = append(id, idAlphabet[int(b)%len(idAlphabet)])
			if len(id) == idLength {
				break
			}
		}
	}
	return string(id), nil
}

// Dir returns the directory of sweep id under root.
func Dir(root, id string) string {
	return filepath.Join(root, SweepsDirName, id)
}

// Create bootstraps a new sweep under root: it picks an identifier, writes
// every combination of axes as an unclaimed trial in both encodings plus the
// initial snapshot, records the axes and points latest at the new sweep. If
// any step after reserving the directory fails, the directory is removed.
func Create(root string, axes Axes, opts ...CreateOption) (*Sweep, error) {
	var o createOptions
	for _, opt := range opts {
		opt(&o)
	}

	if err := axes.Validate(); err != nil {
		return nil, err
	}
	if axes.Has(IDAxis) {
		return nil, errors.NewValidationError("axis name is set by the sweep").
			WithField(IDAxis).WithCause(errors.ErrInvalidAxes)
	}
	if len(axes) == 0 {
		return nil, errors.NewValidationError("at least one axis is required").WithCause(errors.ErrInvalidAxes)
	}

	sweepsDir := filepath.Join(root, SweepsDirName)
	if err := os.MkdirAll(sweepsDir, 0755); err != nil {
		return nil, fmt.Errorf("create sweeps directory: %w", err)
	}

	id, dir, err := reserveDir(sweepsDir, o.id)
	if err != nil {
		return nil, err
	}

	success := false
	defer func() {
		if !success {
			os.RemoveAll(dir)
		}
	}()

	full := make(Axes, 0, len(axes)+1)
	full = append(full, axes...)
	full = append(full, Axis{Name: IDAxis, Values: []any{id}})

	combos := Product(full, o.exclude...)
	trials := make([]trial.Trial, len(combos))
	for i, params := range combos {
		trials[i] = trial.New(params)
	}

	store := trialstore.New(dir)
	if err := store.WriteAll(trials); err != nil {
		return nil, errors.NewSweepError("write trial list", err).WithSweepID(id)
	}
	if err := store.WriteInitial(trials); err != nil {
		return nil, errors.NewSweepError("write initial trial list", err).WithSweepID(id)
	}

	axesData, err := yaml.Marshal(full)
	if err != nil {
		return nil, fmt.Errorf("marshal axes: %w", err)
	}
	if err := fsutil.WriteFileAtomic(filepath.Join(dir, AxesFileName), axesData, 0644); err != nil {
		return nil, fmt.Errorf("write axes: %w", err)
	}

	if err := writeLatest(root, id); err != nil {
		return nil, err
	}

	success = true
	return &Sweep{ID: id, Root: root, Dir: dir, Axes: full}, nil
}

// reserveDir creates the sweep directory. A generated ID that collides with
// an existing sweep is replaced; an explicit one is an error.
func reserveDir(sweepsDir, id string) (string, string, error) {
	if id != "" {
		if err := validateID(id); err != nil {
			return "", "", err
		}
		dir := filepath.Join(sweepsDir, id)
		if err := os.Mkdir(dir, 0755); err != nil {
			return "", "", fmt.Errorf("create sweep directory: %w", err)
		}
		return id, dir, nil
	}

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id, err := GenerateID()
		if err != nil {
			return "", "", err
		}
		dir := filepath.Join(sweepsDir, id)
		err = os.Mkdir(dir, 0755)
		if err == nil {
			return id, dir, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", "", fmt.Errorf("create sweep directory: %w", err)
		}
	}
	return "", "", fmt.Errorf("no free sweep id after %d attempts", maxIDAttempts)
}

func validateID(id string) error {
	if id == "" || id == LatestRef || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return errors.NewValidationError("invalid sweep id").WithField("id").WithValue(id)
	}
	return nil
}

func writeLatest(root, id string) error {
	data, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("marshal latest: %w", err)
	}
	if err := fsutil.WriteFileAtomic(filepath.Join(root, LatestFileName), data, 0644); err != nil {
		return fmt.Errorf("write latest: %w", err)
	}
	return nil
}

// Latest returns the ID of the most recently created sweep under root.
func Latest(root string) (string, error) {
	data, err := os.ReadFile(filepath.Join(root, LatestFileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w under %s", errors.ErrNoLatestSweep, root)
		}
		return "", fmt.Errorf("read latest: %w", err)
	}

	var id string
	if err := json.Unmarshal(data, &id); err != nil {
		// Accept a bare identifier written by hand.
		id = strings.TrimSpace(string(data))
	}
	if err := validateID(id); err != nil {
		return "", fmt.Errorf("latest file: %w", err)
	}
	return id, nil
}

// Resolve turns ref into a sweep ID. An empty ref or LatestRef selects the
// most recently created sweep.
func Resolve(root, ref string) (string, error) {
	if ref == "" || ref == LatestRef {
		return Latest(root)
	}
	if err := validateID(ref); err != nil {
		return "", err
	}
	return ref, nil
}

// Open returns the sweep ref names under root. The axes are loaded when
// axes.yaml is present.
func Open(root, ref string) (*Sweep, error) {
	id, err := Resolve(root, ref)
	if err != nil {
		return nil, err
	}

	dir := Dir(root, id)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, errors.NewNotFoundError("sweep", id).WithCause(errors.ErrSweepNotFound)
	}

	s := &Sweep{ID: id, Root: root, Dir: dir}
	axes, err := LoadAxesFile(filepath.Join(dir, AxesFileName))
	switch {
	case err == nil:
		s.Axes = axes
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, errors.NewSweepError("load axes", err).WithSweepID(id)
	}
	return s, nil
}

// List returns the IDs of all sweeps under root in directory order.
func List(root string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(root, SweepsDirName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list sweeps: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}
