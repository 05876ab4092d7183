package grouping

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/JustJay7/cyber-case-triage/internal/database"
	"github.com/JustJay7/cyber-case-triage/internal/evidence"
)

// ErrGroupNotFound is returned when recomputing a group that does not exist.
var ErrGroupNotFound = errors.New("case group not found")

// Aggregator maintains the rollup fields of a case group.
type Aggregator struct {
	db         *gorm.DB
	normalizer *evidence.Normalizer
}

func NewAggregator(db *gorm.DB, normalizer *evidence.Normalizer) *Aggregator {
	return &Aggregator{db: db, normalizer: normalizer}
}

type activeMember struct {
	CreatedAt                time.Time
	NumVictims               int64
	EstimatedFinancialDamage float64
}

// Recompute refreshes the rollups of groupID from its non-closed members.
//
// When every member is closed the previous rollups are kept and the group is
// flagged summary_stale. The primary evidence value is the most frequent
// normalized bank account across all members, smallest value on ties.
func (a *Aggregator) Recompute(ctx context.Context, groupID string) (*database.CaseGroup, error) {
	var group database.CaseGroup

	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&group, "id = ?", groupID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", ErrGroupNotFound, groupID)
			}
			return fmt.Errorf("load group %s: %w", groupID, err)
		}

		var members []activeMember
		if err := tx.Model(&database.Case{}).
			Select("created_at", "num_victims", "estimated_financial_damage").
			Where("group_id = ? AND status <> ?", groupID, database.StatusClosed).
			Find(&members).Error; err != nil {
			return fmt.Errorf("load members of group %s: %w", groupID, err)
		}

		if len(members) == 0 {
			group.SummaryStale = true
			return tx.Model(&database.CaseGroup{}).Where("id = ?", groupID).
				Update("summary_stale", true).Error
		}

		first, latest := members[0].CreatedAt, members[0].CreatedAt
		var victims int64
		var damage float64
		for _, m := range members {
			if m.CreatedAt.Before(first) {
				first = m.CreatedAt
			}
			if m.CreatedAt.After(latest) {
				latest = m.CreatedAt
			}
			victims += m.NumVictims
			damage += m.EstimatedFinancialDamage
		}

		var accounts []string
		if err := tx.Model(&database.StructuredEvidence{}).
			Joins("JOIN cases ON cases.id = structured_evidence.case_id").
			Where("cases.group_id = ?", groupID).
			Where("structured_evidence.evidence_type = ?", evidence.TypeBankAccount).
			Pluck("structured_evidence.evidence_value", &accounts).Error; err != nil {
			return fmt.Errorf("load bank accounts of group %s: %w", groupID, err)
		}
		primary := a.mostFrequent(accounts)

		group.FirstCaseAt = &first
		group.LatestCaseAt = &latest
		group.TotalVictims = victims
		group.TotalDamage = damage
		group.PrimaryEvidenceValue = primary
		group.SummaryStale = false

		return tx.Model(&database.CaseGroup{}).Where("id = ?", groupID).Updates(map[string]interface{}{
			"first_case_at":          first,
			"latest_case_at":         latest,
			"total_victims":          victims,
			"total_damage":           damage,
			"primary_evidence_value": primary,
			"summary_stale":          false,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (a *Aggregator) mostFrequent(values []string) *string {
	counts := make(map[string]int)
	for _, v := range values {
		if n := a.normalizer.NormalizeEvidence(evidence.TypeBankAccount, v); n != "" {
			counts[n]++
		}
	}

	var best string
	bestCount := 0
	for v, c := range counts {
		if c > bestCount || (c == bestCount && v < best) {
			best, bestCount = v, c
		}
	}
	if bestCount == 0 {
		return nil
	}
	return &best
}
