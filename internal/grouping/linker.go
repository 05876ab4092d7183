// Package grouping links cases that share structured evidence into case
// groups and maintains the per-group rollups.
package grouping

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/JustJay7/cyber-case-triage/internal/database"
	"github.com/JustJay7/cyber-case-triage/internal/evidence"
	"github.com/JustJay7/cyber-case-triage/internal/metrics"
	"github.com/JustJay7/cyber-case-triage/pkg/logger"
)

// ErrLinking wraps every failure of a linking run. Callers treat it as non-fatal.
var ErrLinking = errors.New("case linking failed")

const maxCreateAttempts = 3

// LinkResult describes the group a linking run settled on.
type LinkResult struct {
	GroupID       string   `json:"group_id"`
	GroupNumber   string   `json:"group_number"`
	Created       bool     `json:"created"`
	CaseIDs       []string `json:"case_ids"`
	RetiredGroups []string `json:"retired_groups,omitempty"`
}

// Linker finds open cases sharing normalized evidence with a case and puts
// them all in one group.
//
// When the matched cases already belong to different groups, the group of the
// earliest created member case (ties broken by case ID) absorbs the others:
// every member of the other groups moves over, the retired groups keep their
// row with merged_into_id set, and a group_merges audit row is written.
type Linker struct {
	db         *gorm.DB
	normalizer *evidence.Normalizer
	aggregator *Aggregator
	metrics    *metrics.Metrics
	logger     *logger.Logger
	now        func() time.Time

	// serializes group creation decisions within the process
	mu sync.Mutex
}

func NewLinker(db *gorm.DB, normalizer *evidence.Normalizer, aggregator *Aggregator, m *metrics.Metrics, log *logger.Logger) *Linker {
	return &Linker{
		db:         db,
		normalizer: normalizer,
		aggregator: aggregator,
		metrics:    m,
		logger:     log.With("component", "linker"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the clock used for group numbers. Group numbers carry
// the UTC day by default, the same day the case timestamps use.
func (l *Linker) SetClock(now func() time.Time) {
	l.now = now
}

// Link runs linking for caseID. It returns nil when no group action was taken.
// The group rollup is recomputed after the assignment commits.
func (l *Linker) Link(ctx context.Context, caseID string) (*LinkResult, error) {
	l.mu.Lock()
	result, err := l.linkWithRetry(ctx, caseID)
	l.mu.Unlock()

	if err != nil {
		l.metrics.LinkOutcome(metrics.LinkError)
		return nil, fmt.Errorf("%w: case %s: %v", ErrLinking, caseID, err)
	}
	if result == nil {
		l.metrics.LinkOutcome(metrics.LinkNone)
		return nil, nil
	}

	switch {
	case result.Created:
		l.metrics.LinkOutcome(metrics.LinkCreated)
		l.metrics.GroupCreated()
	case len(result.RetiredGroups) > 0:
		l.metrics.LinkOutcome(metrics.LinkMerged)
		l.metrics.GroupsMerged(len(result.RetiredGroups))
	default:
		l.metrics.LinkOutcome(metrics.LinkJoined)
	}

	l.logger.Info("Cases linked",
		"case_id", caseID,
		"group_id", result.GroupID,
		"group_number", result.GroupNumber,
		"created", result.Created,
		"linked_cases", len(result.CaseIDs),
		"retired_groups", len(result.RetiredGroups),
	)

	if _, err := l.aggregator.Recompute(ctx, result.GroupID); err != nil {
		return result, fmt.Errorf("%w: recompute group %s: %v", ErrLinking, result.GroupID, err)
	}
	return result, nil
}

func (l *Linker) linkWithRetry(ctx context.Context, caseID string) (*LinkResult, error) {
	var lastErr error
	for attempt := 1; attempt <= maxCreateAttempts; attempt++ {
		result, err := l.linkOnce(ctx, caseID)
		if err == nil {
			return result, nil
		}
		if !isUniqueViolation(err) {
			return nil, err
		}
		// another writer took the group number; read again and retry
		lastErr = err
		l.logger.Warn("Group number conflict, retrying", "case_id", caseID, "attempt", attempt)
	}
	return nil, lastErr
}

func (l *Linker) linkOnce(ctx context.Context, caseID string) (*LinkResult, error) {
	var result *LinkResult

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var items []database.StructuredEvidence
		if err := tx.Where("case_id = ?", caseID).Order("created_at ASC, id ASC").Find(&items).Error; err != nil {
			return fmt.Errorf("load evidence: %w", err)
		}
		if len(items) == 0 {
			return nil
		}

		candidates := []string{caseID}
		seen := map[string]bool{caseID: true}
		var primary *database.StructuredEvidence

		for i := range items {
			item := &items[i]
			norm := l.normalizer.NormalizeEvidence(item.EvidenceType, item.EvidenceValue)
			if norm == "" {
				continue
			}

			var matches []string
			if err := tx.Model(&database.StructuredEvidence{}).
				Joins("JOIN cases ON cases.id = structured_evidence.case_id").
				Where("structured_evidence.evidence_type = ?", item.EvidenceType).
				Where("structured_evidence.normalized_value = ?", norm).
				Where("structured_evidence.case_id <> ?", caseID).
				Where("cases.status <> ?", database.StatusClosed).
				Distinct().
				Order("structured_evidence.case_id").
				Pluck("structured_evidence.case_id", &matches).Error; err != nil {
				return fmt.Errorf("match evidence %s: %w", item.ID, err)
			}

			if len(matches) > 0 && primary == nil {
				primary = item
			}
			for _, id := range matches {
				if !seen[id] {
					seen[id] = true
					candidates = append(candidates, id)
				}
			}
		}

		if len(candidates) < 2 {
			return nil
		}

		var members []database.Case
		if err := tx.Select("id", "group_id", "created_at").
			Where("id IN ?", candidates).
			Order("created_at ASC, id ASC").
			Find(&members).Error; err != nil {
			return fmt.Errorf("load candidate cases: %w", err)
		}

		var groupIDs []string
		for _, m := range members {
			if m.GroupID != nil && !contains(groupIDs, *m.GroupID) {
				groupIDs = append(groupIDs, *m.GroupID)
			}
		}

		res := &LinkResult{CaseIDs: candidates}
		var group database.CaseGroup

		if len(groupIDs) > 0 {
			if err := tx.First(&group, "id = ?", groupIDs[0]).Error; err != nil {
				return fmt.Errorf("load group %s: %w", groupIDs[0], err)
			}
			retired, err := l.retireGroups(tx, group.ID, groupIDs[1:], caseID)
			if err != nil {
				return err
			}
			res.RetiredGroups = retired
		} else {
			number, err := nextGroupNumber(tx, l.now())
			if err != nil {
				return err
			}
			group = database.CaseGroup{
				GroupNumber: number,
				GroupName:   groupName(primary, number),
			}
			if err := tx.Create(&group).Error; err != nil {
				return fmt.Errorf("create group %s: %w", number, err)
			}
			res.Created = true
		}

		if err := tx.Model(&database.Case{}).
			Where("id IN ?", candidates).
			Update("group_id", group.ID).Error; err != nil {
			return fmt.Errorf("assign group %s: %w", group.ID, err)
		}

		res.GroupID = group.ID
		res.GroupNumber = group.GroupNumber
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// retireGroups moves every member of the given groups into target and marks them merged.
func (l *Linker) retireGroups(tx *gorm.DB, target string, groupIDs []string, triggerCaseID string) ([]string, error) {
	for _, id := range groupIDs {
		moved := tx.Model(&database.Case{}).Where("group_id = ?", id).Update("group_id", target)
		if moved.Error != nil {
			return nil, fmt.Errorf("move members of group %s: %w", id, moved.Error)
		}

		if err := tx.Model(&database.CaseGroup{}).Where("id = ?", id).Updates(map[string]interface{}{
			"merged_into_id": target,
			"summary_stale":  true,
		}).Error; err != nil {
			return nil, fmt.Errorf("retire group %s: %w", id, err)
		}

		if err := tx.Create(&database.GroupMerge{
			SourceGroupID: id,
			TargetGroupID: target,
			TriggerCaseID: triggerCaseID,
			MovedCases:    int(moved.RowsAffected),
		}).Error; err != nil {
			return nil, fmt.Errorf("record merge of group %s: %w", id, err)
		}
	}
	return groupIDs, nil
}

// nextGroupNumber returns the next G<seq>-<YYYYMMDD> number for the UTC day of now.
func nextGroupNumber(tx *gorm.DB, now time.Time) (string, error) {
	now = now.UTC()
	day := now.Format("20060102")

	var numbers []string
	if err := tx.Model(&database.CaseGroup{}).
		Where("group_number LIKE ?", "G%-"+day).
		Pluck("group_number", &numbers).Error; err != nil {
		return "", fmt.Errorf("scan group numbers: %w", err)
	}

	maxSeq := 0
	for _, n := range numbers {
		if seq, ok := parseGroupSeq(n, day); ok && seq > maxSeq {
			maxSeq = seq
		}
	}
	return FormatGroupNumber(maxSeq+1, now), nil
}

// FormatGroupNumber renders a group number such as G001-20261015.
func FormatGroupNumber(seq int, day time.Time) string {
	return fmt.Sprintf("G%03d-%s", seq, day.Format("20060102"))
}

func parseGroupSeq(number, day string) (int, bool) {
	head, tail, ok := strings.Cut(number, "-")
	if !ok || tail != day || !strings.HasPrefix(head, "G") {
		return 0, false
	}
	seq, err := strconv.Atoi(head[1:])
	if err != nil {
		return 0, false
	}
	return seq, true
}

func groupName(primary *database.StructuredEvidence, number string) string {
	if primary == nil {
		return "case group #" + number
	}
	return fmt.Sprintf("case group linked by %s: %s", primary.EvidenceType, primary.EvidenceValue)
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

