package cases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/JustJay7/cyber-case-triage/internal/cache"
	"github.com/JustJay7/cyber-case-triage/internal/database"
	"github.com/JustJay7/cyber-case-triage/internal/evidence"
	"github.com/JustJay7/cyber-case-triage/internal/grouping"
)

const (
	topPriorityLimit = 5
	topAccountLimit  = 5
	trendDays        = 7
)

type SummaryStats struct {
	TotalCases         int64 `json:"total_cases"`
	ReceivedCases      int64 `json:"pending_cases"`
	InvestigatingCases int64 `json:"in_progress_cases"`
	ClosedCases        int64 `json:"completed_cases"`
	CasesToday         int64 `json:"cases_today"`
	TotalGroups        int64 `json:"total_groups"`
}

type DayCount struct {
	Day   string `json:"day"`
	Count int64  `json:"count"`
}

type PriorityCase struct {
	ID            string  `json:"id"`
	CaseNumber    string  `json:"case_number"`
	CaseName      string  `json:"case_name"`
	PriorityScore float64 `json:"priority_score"`
}

type AccountCount struct {
	Account  string `json:"account"`
	NumCases int64  `json:"num_cases"`
}

type Dashboard struct {
	Summary          SummaryStats                `json:"summary_stats"`
	LastSevenDays    []DayCount                  `json:"cases_last_7_days"`
	ByType           map[string]int64            `json:"cases_by_type"`
	MonthlyBreakdown map[string]map[string]int64 `json:"monthly_case_breakdown"`
	TopPriority      []PriorityCase              `json:"top_5_priority_cases"`
	TopAccounts      []AccountCount              `json:"top_accounts_from_suspects"`
	GeneratedAt      time.Time                   `json:"generated_at"`
}

// Dashboard returns the overview for the current day, served from cache
// until a write invalidates it.
func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	now := s.now()
	key := cache.DashboardKey(now)
	if cached, found := s.cache.Get(key); found {
		if d, ok := cached.(*Dashboard); ok {
			return d, nil
		}
	}

	d, err := s.buildDashboard(ctx, now)
	if err != nil {
		return nil, s.classify("build dashboard", err)
	}
	if err := s.cache.Set(key, d); err != nil {
		s.logger.Warn("Failed to cache dashboard", "error", err)
	}
	return d, nil
}

func (s *Service) buildDashboard(ctx context.Context, now time.Time) (*Dashboard, error) {
	db := s.db.WithContext(ctx)
	d := &Dashboard{
		ByType:           make(map[string]int64),
		MonthlyBreakdown: make(map[string]map[string]int64),
		TopPriority:      []PriorityCase{},
		TopAccounts:      []AccountCount{},
		GeneratedAt:      now,
	}

	var byStatus []struct {
		Status string
		Count  int64
	}
	if err := db.Model(&database.Case{}).
		Select("status, COUNT(id) AS count").
		Group("status").
		Scan(&byStatus).Error; err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	for _, row := range byStatus {
		d.Summary.TotalCases += row.Count
		switch row.Status {
		case database.StatusReceived:
			d.Summary.ReceivedCases = row.Count
		case database.StatusInvestigating:
			d.Summary.InvestigatingCases = row.Count
		case database.StatusClosed:
			d.Summary.ClosedCases = row.Count
		}
	}

	if err := db.Model(&database.CaseGroup{}).
		Where("merged_into_id IS NULL").
		Count(&d.Summary.TotalGroups).Error; err != nil {
		return nil, fmt.Errorf("count groups: %w", err)
	}

	// day and month buckets are UTC
	var stamps []struct {
		CreatedAt time.Time
		CaseType  string
	}
	if err := db.Model(&database.Case{}).
		Select("created_at", "case_type").
		Scan(&stamps).Error; err != nil {
		return nil, fmt.Errorf("load case timestamps: %w", err)
	}

	today := startOfDay(now)
	firstDay := today.AddDate(0, 0, -(trendDays - 1))
	perDay := make(map[string]int64)

	for _, st := range stamps {
		created := st.CreatedAt.UTC()
		day := startOfDay(created)

		if day.Equal(today) {
			d.Summary.CasesToday++
		}
		if !day.Before(firstDay) && !day.After(today) {
			perDay[day.Format("2006-01-02")]++
		}

		if st.CaseType == "" {
			continue
		}
		d.ByType[st.CaseType]++
		month := created.Format("2006-01")
		if d.MonthlyBreakdown[month] == nil {
			d.MonthlyBreakdown[month] = make(map[string]int64)
		}
		d.MonthlyBreakdown[month][st.CaseType]++
	}

	for i := 0; i < trendDays; i++ {
		day := firstDay.AddDate(0, 0, i).Format("2006-01-02")
		d.LastSevenDays = append(d.LastSevenDays, DayCount{Day: day, Count: perDay[day]})
	}

	if err := db.Model(&database.Case{}).
		Select("id, case_number, case_name, priority_score").
		Order("priority_score DESC, created_at DESC").
		Limit(topPriorityLimit).
		Scan(&d.TopPriority).Error; err != nil {
		return nil, fmt.Errorf("load top cases: %w", err)
	}

	if err := db.Model(&database.StructuredEvidence{}).
		Select("structured_evidence.normalized_value AS account, COUNT(DISTINCT structured_evidence.case_id) AS num_cases").
		Joins("JOIN cases ON cases.id = structured_evidence.case_id").
		Where("cases.group_id IS NOT NULL").
		Where("structured_evidence.evidence_type = ?", evidence.TypeBankAccount).
		Group("structured_evidence.normalized_value").
		Order("num_cases DESC, account ASC").
		Limit(topAccountLimit).
		Scan(&d.TopAccounts).Error; err != nil {
		return nil, fmt.Errorf("load top accounts: %w", err)
	}

	return d, nil
}

// GroupSummary is a case group with its member cases and merge history.
type GroupSummary struct {
	Group  database.CaseGroup    `json:"group"`
	Cases  []database.Case       `json:"cases"`
	Merges []database.GroupMerge `json:"merges"`
}

// GroupSummary returns a group and its members, cached until linking or an
// update touches the group.
func (s *Service) GroupSummary(ctx context.Context, groupID string) (*GroupSummary, error) {
	key := cache.GroupKey(groupID)
	if cached, found := s.cache.Get(key); found {
		if gs, ok := cached.(*GroupSummary); ok {
			return gs, nil
		}
	}

	db := s.db.WithContext(ctx)
	gs := &GroupSummary{Cases: []database.Case{}, Merges: []database.GroupMerge{}}

	if err := db.First(&gs.Group, "id = ?", groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: group %s", ErrNotFound, groupID)
		}
		return nil, s.classify("load group", err)
	}
	if err := db.Where("group_id = ?", groupID).
		Preload("Evidence").
		Order("created_at ASC, id ASC").
		Find(&gs.Cases).Error; err != nil {
		return nil, s.classify("load group members", err)
	}
	if err := db.Where("source_group_id = ? OR target_group_id = ?", groupID, groupID).
		Order("created_at ASC, id ASC").
		Find(&gs.Merges).Error; err != nil {
		return nil, s.classify("load group merges", err)
	}

	if err := s.cache.Set(key, gs); err != nil {
		s.logger.Warn("Failed to cache group summary", "group_id", groupID, "error", err)
	}
	return gs, nil
}

// RecomputeGroup refreshes a group's rollups on demand.
func (s *Service) RecomputeGroup(ctx context.Context, groupID string) (*database.CaseGroup, error) {
	group, err := s.aggregator.Recompute(ctx, groupID)
	if err != nil {
		if errors.Is(err, grouping.ErrGroupNotFound) {
			return nil, fmt.Errorf("%w: group %s", ErrNotFound, groupID)
		}
		return nil, s.classify("recompute group", err)
	}
	s.invalidateGroups(groupID)
	cache.InvalidateDashboards(s.cache)
	return group, nil
}
