package cases

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/JustJay7/cyber-case-triage/internal/database"
	"github.com/JustJay7/cyber-case-triage/internal/features"
	"github.com/JustJay7/cyber-case-triage/internal/scoring"
)

// TrainingRows returns a labeled row for every case a reviewer has verified.
// The label is the verified score, falling back to the stored priority.
func (s *Service) TrainingRows(ctx context.Context) ([]scoring.Row, error) {
	var verified []database.Case
	if err := s.db.WithContext(ctx).
		Where("verified_score IS NOT NULL").
		Order("created_at ASC, id ASC").
		Find(&verified).Error; err != nil {
		return nil, fmt.Errorf("load verified cases: %w", err)
	}

	vecs, err := s.storedVectors(s.db.WithContext(ctx), verified)
	if err != nil {
		return nil, err
	}

	rows := make([]scoring.Row, 0, len(verified))
	for i, c := range verified {
		rows = append(rows, scoring.Row{Features: vecs[i], Label: label(&c)})
	}
	return rows, nil
}

// RetrainModel fits a new model on verified cases, saves it and swaps it in.
// minRows can only raise the scorer's minimum.
func (s *Service) RetrainModel(ctx context.Context, minRows int) (*RetrainResult, error) {
	if minRows < s.scorer.MinRows() {
		minRows = s.scorer.MinRows()
	}

	rows, err := s.TrainingRows(ctx)
	if err != nil {
		s.metrics.RetrainOutcome("error")
		return nil, s.classify("load training rows", err)
	}

	p, err := s.scorer.RetrainWithMin(rows, minRows)
	if err != nil {
		if errors.Is(err, scoring.ErrInsufficientTrainingData) {
			s.metrics.RetrainOutcome("insufficient_data")
			s.logger.Info("Retrain skipped", "verified_rows", len(rows), "min_rows", minRows)
			return nil, err
		}
		s.metrics.RetrainOutcome("error")
		return nil, fmt.Errorf("retrain: %w", err)
	}

	if err := s.artifacts.Save(s.opts.ModelPath, p); err != nil {
		s.metrics.RetrainOutcome("error")
		s.logger.Error("Failed to save priority model", "path", s.opts.ModelPath, "error", err)
		return nil, fmt.Errorf("%w: save model: %w", ErrStorage, err)
	}
	s.scorer.Swap(p)
	s.metrics.RetrainOutcome("success")

	s.logger.Info("Priority model retrained", "training_rows", p.TrainingRows, "path", s.opts.ModelPath)
	return &RetrainResult{
		TrainingRows: p.TrainingRows,
		TrainedAt:    p.TrainedAt,
		Version:      p.Version,
	}, nil
}

func label(c *database.Case) float64 {
	if c.VerifiedScore != nil {
		return *c.VerifiedScore
	}
	return c.PriorityScore
}

// storedVectors rebuilds the model input of stored cases, including the
// values only storage knows: evidence count, age and group size.
func (s *Service) storedVectors(db *gorm.DB, cs []database.Case) ([]features.Vector, error) {
	if len(cs) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(cs))
	var groupIDs []string
	for _, c := range cs {
		ids = append(ids, c.ID)
		if c.GroupID != nil {
			groupIDs = append(groupIDs, *c.GroupID)
		}
	}

	var evRows []struct {
		CaseID       string
		EvidenceType string
	}
	if err := db.Model(&database.StructuredEvidence{}).
		Select("case_id", "evidence_type").
		Where("case_id IN ?", ids).
		Scan(&evRows).Error; err != nil {
		return nil, fmt.Errorf("load evidence types: %w", err)
	}
	types := make(map[string][]string, len(cs))
	for _, r := range evRows {
		types[r.CaseID] = append(types[r.CaseID], r.EvidenceType)
	}

	linked := make(map[string]int)
	if len(groupIDs) > 0 {
		var counts []struct {
			GroupID string
			Members int
		}
		if err := db.Model(&database.Case{}).
			Select("group_id, COUNT(id) AS members").
			Where("group_id IN ? AND status <> ?", groupIDs, database.StatusClosed).
			Group("group_id").
			Scan(&counts).Error; err != nil {
			return nil, fmt.Errorf("count group members: %w", err)
		}
		for _, gc := range counts {
			linked[gc.GroupID] = gc.Members
		}
	}

	now := s.now()
	vecs := make([]features.Vector, 0, len(cs))
	for i := range cs {
		c := &cs[i]
		damage, victims := c.EstimatedFinancialDamage, c.NumVictims
		sensitive, ongoing, risk := c.SensitiveDataCompromised, c.OngoingThreat, c.RiskOfEvidenceLoss

		lc := features.LinkingContext{
			EvidenceCount:     len(types[c.ID]),
			DaysSinceCreation: daysBetween(c.CreatedAt, now),
			IsGrouped:         c.GroupID != nil,
		}
		if c.GroupID != nil {
			lc.NumLinkedCases = linked[*c.GroupID]
		}

		vecs = append(vecs, features.Build(features.Submission{
			CaseType:                 c.CaseType,
			ReputationalDamageLevel:  c.ReputationalDamageLevel,
			TechnicalComplexityLevel: c.TechnicalComplexityLevel,
			InitialEvidenceClarity:   c.InitialEvidenceClarity,
			EstimatedFinancialDamage: &damage,
			NumVictims:               &victims,
			SensitiveDataCompromised: &sensitive,
			OngoingThreat:            &ongoing,
			RiskOfEvidenceLoss:       &risk,
			EvidenceTypes:            types[c.ID],
		}, lc))
	}
	return vecs, nil
}

// ModelLoaded reports whether a priority model is serving.
func (s *Service) ModelLoaded() bool {
	return s.scorer.Current() != nil
}
