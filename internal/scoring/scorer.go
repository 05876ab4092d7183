package scoring

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/JustJay7/cyber-case-triage/internal/features"
	"github.com/JustJay7/cyber-case-triage/pkg/logger"
)

// TrainingSource supplies labeled rows from storage, typically cases with a
// human verified score.
type TrainingSource interface {
	TrainingRows(ctx context.Context) ([]Row, error)
}

// Scorer serves predictions from the live pipeline. Retraining builds a new
// pipeline without touching the live one; it only takes effect after Swap.
type Scorer struct {
	current atomic.Pointer[Pipeline]
	minRows int
	lambda  float64
}

func NewScorer(minRows int, lambda float64) *Scorer {
	if minRows <= 0 {
		minRows = DefaultMinRows
	}
	return &Scorer{minRows: minRows, lambda: lambda}
}

// Score returns the priority for v using the live pipeline.
func (s *Scorer) Score(v features.Vector) (float64, error) {
	p := s.current.Load()
	if p == nil {
		return 0, ErrModelUnavailable
	}
	return p.Predict(v), nil
}

// Current returns the live pipeline, or nil.
func (s *Scorer) Current() *Pipeline {
	return s.current.Load()
}

// Swap installs p as the live pipeline and returns the previous one.
func (s *Scorer) Swap(p *Pipeline) *Pipeline {
	return s.current.Swap(p)
}

// MinRows is the smallest training set Retrain accepts.
func (s *Scorer) MinRows() int {
	return s.minRows
}

// Retrain fits a new pipeline on rows. It fails with ErrInsufficientTrainingData
// when fewer than MinRows rows are given.
func (s *Scorer) Retrain(rows []Row) (*Pipeline, error) {
	return s.RetrainWithMin(rows, s.minRows)
}

// RetrainWithMin is Retrain with a caller supplied minimum.
func (s *Scorer) RetrainWithMin(rows []Row, minRows int) (*Pipeline, error) {
	if minRows <= 0 {
		minRows = s.minRows
	}
	if len(rows) < minRows {
		return nil, fmt.Errorf("%w: have %d labeled rows, need at least %d",
			ErrInsufficientTrainingData, len(rows), minRows)
	}
	return Fit(rows, s.lambda)
}

// Initialize makes sure the scorer has a model: it loads the artifact at path
// if present, otherwise trains on verified rows from source (falling back to
// the bootstrap table when there are too few), saves the artifact and swaps it in.
func (s *Scorer) Initialize(ctx context.Context, store ArtifactStore, path string, source TrainingSource, log *logger.Logger) error {
	p, err := store.Load(path)
	switch {
	case err == nil:
		s.Swap(p)
		log.Info("Loaded priority model", "path", path, "training_rows", p.TrainingRows, "trained_at", p.TrainedAt)
		return nil
	case errors.Is(err, ErrArtifactNotFound):
		log.Info("Priority model not found, training a new one", "path", path)
	default:
		log.Warn("Priority model artifact unreadable, training a new one", "path", path, "error", err)
	}

	p, err = s.trainFromSource(ctx, source, log)
	if err != nil {
		return err
	}

	if err := store.Save(path, p); err != nil {
		return fmt.Errorf("save priority model: %w", err)
	}
	s.Swap(p)
	log.Info("Priority model trained", "path", path, "training_rows", p.TrainingRows)
	return nil
}

func (s *Scorer) trainFromSource(ctx context.Context, source TrainingSource, log *logger.Logger) (*Pipeline, error) {
	if source != nil {
		rows, err := source.TrainingRows(ctx)
		if err != nil {
			log.Warn("Failed to load verified training rows", "error", err)
		} else {
			p, err := s.Retrain(rows)
			if err == nil {
				return p, nil
			}
			if !errors.Is(err, ErrInsufficientTrainingData) {
				return nil, err
			}
			log.Info("Not enough verified cases, using bootstrap data", "verified_rows", len(rows), "min_rows", s.minRows)
		}
	}

	p, err := Fit(Bootstrap(), s.lambda)
	if err != nil {
		return nil, fmt.Errorf("fit bootstrap model: %w", err)
	}
	return p, nil
}
