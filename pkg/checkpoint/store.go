// Package checkpoint persists classifier weights under a hyperparameter-keyed
// artifact and decides how a run treats an existing one.
package checkpoint

import (
	"encoding/json"
	"io"
	"os"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/menta2k/frontlearn/internal/utils"
	"github.com/menta2k/frontlearn/pkg/model"
)

// State tags whether an artifact exists
type State int

const (
	Absent State = iota
	Present
)

func (s State) String() string {
	if s == Present {
		return "present"
	}
	return "absent"
}

// Artifact is the resolved checkpoint of one hyperparameter key. Weights is
// only meaningful when State is Present.
type Artifact struct {
	Path    string
	State   State
	Weights model.Weights
}

// Store reads and writes checkpoint artifacts on a filesystem
type Store struct {
	fs afero.Fs
}

// NewStore creates a store; a nil fs means the OS filesystem
func NewStore(fs afero.Fs) *Store {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Store{fs: fs}
}

// Resolve looks the artifact up once and loads its weights when present.
// An unreadable or corrupt artifact is an error, never Absent.
func (s *Store) Resolve(path string) (Artifact, error) {
	f, err := s.fs.Open(path)
	if os.IsNotExist(err) {
		return Artifact{Path: path, State: Absent}, nil
	}
	if err != nil {
		return Artifact{}, errors.Wrapf(err, "failed to open checkpoint %s", path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Artifact{}, errors.Wrapf(err, "failed to stat checkpoint %s", path)
	}
	if info.IsDir() {
		return Artifact{}, errors.Errorf("checkpoint %s is a directory", path)
	}

	w, err := Decode(f)
	if err != nil {
		return Artifact{}, errors.Wrapf(err, "failed to load checkpoint %s", path)
	}
	return Artifact{Path: path, State: Present, Weights: w}, nil
}

// Save writes weights to path atomically, creating parent directories
func (s *Store) Save(path string, w model.Weights) error {
	err := utils.WriteFileAtomic(s.fs, path, func(f afero.File) error {
		return Encode(f, w)
	})
	return errors.Wrapf(err, "failed to save checkpoint %s", path)
}

// Encode writes weights as snappy-framed JSON
func Encode(w io.Writer, weights model.Weights) error {
	zw := snappy.NewBufferedWriter(w)
	if err := json.NewEncoder(zw).Encode(weights); err != nil {
		zw.Close()
		return errors.Wrap(err, "failed to encode weights")
	}
	return errors.Wrap(zw.Close(), "failed to flush weights")
}

// Decode reads weights written by Encode
func Decode(r io.Reader) (model.Weights, error) {
	var w model.Weights
	if err := json.NewDecoder(snappy.NewReader(r)).Decode(&w); err != nil {
		return model.Weights{}, errors.Wrap(err, "failed to decode weights")
	}
	if w.Format != model.WeightsFormat {
		return model.Weights{}, errors.Errorf("unsupported weights format %q", w.Format)
	}
	return w, nil
}
