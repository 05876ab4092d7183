// Package scoring turns feature vectors into a priority score in [0,100].
//
// A Pipeline holds the fitted encoders and a ridge regressor. Categorical
// columns are one-hot encoded against the categories seen at fit time (unseen
// categories encode to all zeros), ordinal columns use their fixed ranks,
// numeric columns are standardized and binary columns pass through as 0/1.
package scoring

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/JustJay7/cyber-case-triage/internal/features"
)

const (
	MinScore = 0.0
	MaxScore = 100.0

	// DefaultMinRows is the fewest labeled rows Retrain accepts.
	DefaultMinRows = 10

	pipelineVersion = 1
)

var (
	ErrModelUnavailable         = errors.New("priority model is not loaded")
	ErrInsufficientTrainingData = errors.New("insufficient training data")
)

// Row is one labeled training example.
type Row struct {
	Features features.Vector `json:"features"`
	Label    float64         `json:"label"`
}

// Pipeline is a fitted preprocessing + regression model. It is immutable once
// fitted and safe for concurrent use.
type Pipeline struct {
	Version      int        `json:"version"`
	Categories   [][]string `json:"categories"`
	Means        []float64  `json:"means"`
	Scales       []float64  `json:"scales"`
	Weights      []float64  `json:"weights"`
	Intercept    float64    `json:"intercept"`
	Lambda       float64    `json:"lambda"`
	TrainingRows int        `json:"training_rows"`
	TrainedAt    time.Time  `json:"trained_at"`
}

// Fit trains a pipeline on rows without any minimum-size check.
func Fit(rows []Row, lambda float64) (*Pipeline, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("fit: %w: no rows", ErrInsufficientTrainingData)
	}
	if lambda <= 0 {
		lambda = 1e-6
	}

	p := &Pipeline{
		Version:      pipelineVersion,
		Lambda:       lambda,
		TrainingRows: len(rows),
		TrainedAt:    time.Now().UTC(),
	}
	p.fitCategories(rows)
	p.fitScaler(rows)

	n, width := len(rows), p.width()
	data := make([]float64, 0, n*width)
	y := make([]float64, n)
	for i, r := range rows {
		data = append(data, p.design(r.Features)...)
		y[i] = r.Label
	}

	// center columns and target so the intercept is not penalized
	colMeans := make([]float64, width)
	for i := 0; i < n; i++ {
		for j := 0; j < width; j++ {
			colMeans[j] += data[i*width+j] / float64(n)
		}
	}
	yMean := 0.0
	for _, v := range y {
		yMean += v / float64(n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < width; j++ {
			data[i*width+j] -= colMeans[j]
		}
		y[i] -= yMean
	}

	x := mat.NewDense(n, width, data)

	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	for j := 0; j < width; j++ {
		xtx.Set(j, j, xtx.At(j, j)+lambda)
	}

	var xty mat.VecDense
	xty.MulVec(x.T(), mat.NewVecDense(n, y))

	var w mat.VecDense
	if err := w.SolveVec(&xtx, &xty); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("fit: solve regression: %w", err)
		}
	}

	p.Weights = make([]float64, width)
	p.Intercept = yMean
	for j := 0; j < width; j++ {
		p.Weights[j] = w.AtVec(j)
		p.Intercept -= colMeans[j] * p.Weights[j]
	}

	return p, nil
}

// Predict scores a feature vector, clamped to [0,100].
func (p *Pipeline) Predict(v features.Vector) float64 {
	x := p.design(v)
	score := p.Intercept
	for j, xj := range x {
		score += p.Weights[j] * xj
	}
	return Clamp(score)
}

// Clamp limits a raw regression output to the score range.
func Clamp(score float64) float64 {
	switch {
	case math.IsNaN(score):
		return MinScore
	case score < MinScore:
		return MinScore
	case score > MaxScore:
		return MaxScore
	default:
		return score
	}
}

func (p *Pipeline) validate() error {
	if p.Version != pipelineVersion {
		return fmt.Errorf("unsupported pipeline version %d", p.Version)
	}
	if len(p.Categories) != len(features.CategoricalColumns) ||
		len(p.Means) != len(features.NumericColumns) ||
		len(p.Scales) != len(features.NumericColumns) {
		return errors.New("pipeline encoders do not match the feature layout")
	}
	if len(p.Weights) != p.width() {
		return fmt.Errorf("pipeline has %d weights, want %d", len(p.Weights), p.width())
	}
	return nil
}

func (p *Pipeline) fitCategories(rows []Row) {
	p.Categories = make([][]string, len(features.CategoricalColumns))
	for col := range p.Categories {
		seen := map[string]struct{}{}
		for _, r := range rows {
			seen[r.Features.Categorical()[col]] = struct{}{}
		}
		cats := make([]string, 0, len(seen))
		for c := range seen {
			cats = append(cats, c)
		}
		sort.Strings(cats)
		p.Categories[col] = cats
	}
}

func (p *Pipeline) fitScaler(rows []Row) {
	k := len(features.NumericColumns)
	p.Means = make([]float64, k)
	p.Scales = make([]float64, k)
	n := float64(len(rows))

	for _, r := range rows {
		for j, v := range r.Features.Numeric() {
			p.Means[j] += v / n
		}
	}
	for _, r := range rows {
		for j, v := range r.Features.Numeric() {
			d := v - p.Means[j]
			p.Scales[j] += d * d / n
		}
	}
	for j := range p.Scales {
		p.Scales[j] = math.Sqrt(p.Scales[j])
		if p.Scales[j] == 0 {
			p.Scales[j] = 1
		}
	}
}

func (p *Pipeline) width() int {
	w := len(features.OrdinalColumns) + len(features.NumericColumns) + len(features.BinaryColumns)
	for _, cats := range p.Categories {
		w += len(cats)
	}
	return w
}

// design encodes a vector into the regression design row.
func (p *Pipeline) design(v features.Vector) []float64 {
	row := make([]float64, 0, p.width())

	for col, value := range v.Categorical() {
		for _, c := range p.Categories[col] {
			if c == value {
				row = append(row, 1)
			} else {
				row = append(row, 0)
			}
		}
	}

	row = append(row, v.Ordinal()...)

	for j, value := range v.Numeric() {
		row = append(row, (value-p.Means[j])/p.Scales[j])
	}

	return append(row, v.Binary()...)
}
