// Package anomaly scores feature records with an isolation forest trained on
// normal traffic.
package anomaly

import (
	"Go2NetGuard/internal/model"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
)

const (
	DefaultThreshold  = -0.5
	DefaultTrees      = 100
	DefaultSampleSize = 256
	DefaultSeed       = 42
)

var (
	ErrNoTrainingData = errors.New("anomaly: no training data")
	ErrDimension      = errors.New("anomaly: inconsistent vector dimension")
	ErrAlreadyTrained = errors.New("anomaly: model already trained")
)

// Options tune the forest. Zero fields take the package defaults. Scores lie
// in [-1, 0], so a zero Threshold, which would flag every record, also means
// DefaultThreshold.
type Options struct {
	Trees      int
	SampleSize int
	Seed       uint64
	Threshold  float64
}

func (o Options) withDefaults() Options {
	if o.Trees <= 0 {
		o.Trees = DefaultTrees
	}
	if o.SampleSize <= 0 {
		o.SampleSize = DefaultSampleSize
	}
	if o.Seed == 0 {
		o.Seed = DefaultSeed
	}
	if o.Threshold == 0 {
		o.Threshold = DefaultThreshold
	}
	return o
}

// Scorer wraps a forest that is fit at most once. Scoring is safe for
// concurrent use once training has finished.
type Scorer struct {
	opts   Options
	forest atomic.Pointer[Forest]
}

// NewScorer returns an untrained scorer.
func NewScorer(opts Options) *Scorer {
	return &Scorer{opts: opts.withDefaults()}
}

// Trained reports whether a model has been fit or loaded.
func (s *Scorer) Trained() bool {
	return s.forest.Load() != nil
}

// Threshold returns the score below which a record is anomalous.
func (s *Scorer) Threshold() float64 {
	return s.opts.Threshold
}

// Train fits the model on vectors of normal traffic. At least two rows are
// needed for path lengths to carry any information.
func (s *Scorer) Train(vectors [][]float64) error {
	if len(vectors) < 2 {
		return ErrNoTrainingData
	}
	dim := len(vectors[0])
	if dim == 0 {
		return ErrDimension
	}
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%w: row %d has %d values, want %d", ErrDimension, i, len(v), dim)
		}
	}
	forest := buildForest(vectors, s.opts.Trees, s.opts.SampleSize, s.opts.Seed)
	if !s.forest.CompareAndSwap(nil, forest) {
		return ErrAlreadyTrained
	}
	return nil
}

// ScoreVector scores a raw vector. An untrained scorer returns 0.
func (s *Scorer) ScoreVector(x []float64) float64 {
	forest := s.forest.Load()
	if forest == nil || len(x) != forest.Dim {
		return 0
	}
	return forest.score(x)
}

// Score returns the anomaly score of f in [-1, 0]. Lower is more anomalous.
func (s *Scorer) Score(f *model.FeatureRecord) float64 {
	return s.ScoreVector(f.Vector())
}

// IsAnomalous reports whether f scores below the threshold. It is always
// false before training.
func (s *Scorer) IsAnomalous(f *model.FeatureRecord) bool {
	return s.Trained() && s.Score(f) < s.opts.Threshold
}

// Save writes the fitted model as JSON.
func (s *Scorer) Save(w io.Writer) error {
	forest := s.forest.Load()
	if forest == nil {
		return errors.New("anomaly: cannot save an untrained model")
	}
	return json.NewEncoder(w).Encode(forest)
}

// Load replaces an untrained scorer's model with one read from r.
func (s *Scorer) Load(r io.Reader) error {
	var forest Forest
	if err := json.NewDecoder(r).Decode(&forest); err != nil {
		return fmt.Errorf("failed to decode model: %w", err)
	}
	if err := forest.validate(); err != nil {
		return err
	}
	if !s.forest.CompareAndSwap(nil, &forest) {
		return ErrAlreadyTrained
	}
	return nil
}

// SaveFile writes the model to path.
func (s *Scorer) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create model file: %w", err)
	}
	if err := s.Save(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadFile reads a model saved by SaveFile.
func (s *Scorer) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open model file: %w", err)
	}
	defer f.Close()
	return s.Load(f)
}
