package anomaly

import (
	"Go2NetGuard/internal/model"
	"bytes"
	"errors"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// normalVectors returns n noisy vectors around (60, 5, 300).
func normalVectors(n int) [][]float64 {
	rng := rand.New(rand.NewPCG(7, 7))
	out := make([][]float64, n)
	for i := range out {
		out[i] = []float64{
			60 + rng.NormFloat64()*4,
			5 + rng.NormFloat64()*0.8,
			300 + rng.NormFloat64()*25,
		}
	}
	return out
}

func TestUntrainedScorerIsSilent(t *testing.T) {
	s := NewScorer(Options{})
	f := &model.FeatureRecord{PacketSize: 1500, PacketRate: 500, ByteRate: 750000}

	assert.False(t, s.Trained())
	assert.Equal(t, 0.0, s.Score(f))
	assert.False(t, s.IsAnomalous(f))
}

func TestOutlierScoresBelowThreshold(t *testing.T) {
	s := NewScorer(Options{})
	require.NoError(t, s.Train(normalVectors(300)))
	require.True(t, s.Trained())

	outlier := &model.FeatureRecord{PacketSize: 1500, PacketRate: 500, ByteRate: 750000}
	inlier := &model.FeatureRecord{PacketSize: 60, PacketRate: 5, ByteRate: 300}

	outScore := s.Score(outlier)
	inScore := s.Score(inlier)

	assert.Less(t, outScore, DefaultThreshold)
	assert.GreaterOrEqual(t, outScore, -1.0)
	assert.True(t, s.IsAnomalous(outlier))

	assert.Greater(t, inScore, outScore)
	assert.Greater(t, inScore, -0.6)
	assert.LessOrEqual(t, inScore, 0.0)
}

func TestTrainingIsDeterministic(t *testing.T) {
	data := normalVectors(200)
	a := NewScorer(Options{Seed: 42})
	b := NewScorer(Options{Seed: 42})
	require.NoError(t, a.Train(data))
	require.NoError(t, b.Train(data))

	x := []float64{75, 9, 420}
	assert.Equal(t, a.ScoreVector(x), b.ScoreVector(x))
}

func TestTrainValidation(t *testing.T) {
	s := NewScorer(Options{})
	assert.True(t, errors.Is(s.Train(nil), ErrNoTrainingData))
	assert.True(t, errors.Is(s.Train([][]float64{{60, 5, 300}}), ErrNoTrainingData))
	assert.True(t, errors.Is(s.Train([][]float64{{1, 2, 3}, {1, 2}}), ErrDimension))
	assert.False(t, s.Trained())

	require.NoError(t, s.Train(normalVectors(50)))
	assert.True(t, errors.Is(s.Train(normalVectors(50)), ErrAlreadyTrained))
}

func TestSmallTrainingSetStillScores(t *testing.T) {
	s := NewScorer(Options{})
	require.NoError(t, s.Train(normalVectors(10)))

	score := s.ScoreVector([]float64{1500, 500, 750000})
	assert.Less(t, score, 0.0)
	assert.GreaterOrEqual(t, score, -1.0)
}

func TestSaveAndLoadModel(t *testing.T) {
	trained := NewScorer(Options{})
	require.NoError(t, trained.Train(normalVectors(300)))

	var buf bytes.Buffer
	require.NoError(t, trained.Save(&buf))

	loaded := NewScorer(Options{})
	require.NoError(t, loaded.Load(&buf))
	require.True(t, loaded.Trained())

	for _, x := range [][]float64{{60, 5, 300}, {1500, 500, 750000}, {64, 6, 340}} {
		assert.InDelta(t, trained.ScoreVector(x), loaded.ScoreVector(x), 1e-12)
	}

	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, trained.SaveFile(path))
	fromFile := NewScorer(Options{})
	require.NoError(t, fromFile.LoadFile(path))
	assert.InDelta(t, trained.ScoreVector([]float64{1500, 500, 750000}), fromFile.ScoreVector([]float64{1500, 500, 750000}), 1e-12)

	assert.Error(t, NewScorer(Options{}).Save(&buf))
}

func TestLoadRejectsMalformedModels(t *testing.T) {
	cases := map[string]string{
		"nil tree":       `{"trees":[null],"sample_size":256,"height_limit":8,"dim":3}`,
		"feature range":  `{"trees":[{"size":2,"feature":7,"split":1,"left":{"size":1},"right":{"size":1}}],"sample_size":2,"height_limit":1,"dim":3}`,
		"negative":       `{"trees":[{"size":2,"feature":-1,"split":1,"left":{"size":1},"right":{"size":1}}],"sample_size":2,"height_limit":1,"dim":3}`,
		"single child":   `{"trees":[{"size":2,"feature":0,"split":1,"left":{"size":1}}],"sample_size":2,"height_limit":1,"dim":3}`,
		"no sample size": `{"trees":[{"size":1}],"sample_size":0,"height_limit":1,"dim":3}`,
		"no trees":       `{"trees":[],"sample_size":2,"height_limit":1,"dim":3}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			s := NewScorer(Options{})
			assert.Error(t, s.Load(strings.NewReader(doc)))
			assert.False(t, s.Trained())
			assert.NotPanics(t, func() { s.ScoreVector([]float64{1, 2, 3}) })
		})
	}

	s := NewScorer(Options{})
	require.NoError(t, s.Load(strings.NewReader(`{"trees":[{"size":2,"feature":2,"split":1,"left":{"size":1},"right":{"size":1}}],"sample_size":2,"height_limit":1,"dim":3}`)))
	assert.True(t, s.Trained())
}

func TestZeroThresholdMeansDefault(t *testing.T) {
	assert.Equal(t, DefaultThreshold, NewScorer(Options{}).Threshold())
	assert.Equal(t, -0.7, NewScorer(Options{Threshold: -0.7}).Threshold())
}
