package cases

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/JustJay7/cyber-case-triage/internal/database"
)

// Filter narrows a case listing. Filters compose with AND.
type Filter func(db *gorm.DB) *gorm.DB

// Search matches the case number ignoring hyphens, or the case name.
func Search(q string) Filter {
	bare := strings.ReplaceAll(q, "-", "")
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("(REPLACE(cases.case_number, '-', '') LIKE ? OR cases.case_name LIKE ?)",
			"%"+bare+"%", "%"+q+"%")
	}
}

func CaseNumberContains(s string) Filter {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("cases.case_number LIKE ?", "%"+s+"%")
	}
}

func CaseType(t string) Filter {
	return equals("cases.case_type", t)
}

func Status(status string) Filter {
	return equals("cases.status", status)
}

func ReputationalLevel(level string) Filter {
	return equals("cases.reputational_damage_level", level)
}

func TechnicalLevel(level string) Filter {
	return equals("cases.technical_complexity_level", level)
}

func SensitiveData(v bool) Filter {
	return equals("cases.sensitive_data_compromised", v)
}

func OngoingThreat(v bool) Filter {
	return equals("cases.ongoing_threat", v)
}

func InGroup(groupID string) Filter {
	return equals("cases.group_id", groupID)
}

func MinDamage(v float64) Filter {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("cases.estimated_financial_damage >= ?", v)
	}
}

func MaxDamage(v float64) Filter {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("cases.estimated_financial_damage <= ?", v)
	}
}

// CreatedFrom keeps cases created on or after the start of day.
func CreatedFrom(day time.Time) Filter {
	start := startOfDay(day)
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("cases.created_at >= ?", start)
	}
}

// CreatedUntil keeps cases created on or before the end of day.
func CreatedUntil(day time.Time) Filter {
	end := startOfDay(day).AddDate(0, 0, 1)
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("cases.created_at < ?", end)
	}
}

func equals(column string, v interface{}) Filter {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(column+" = ?", v)
	}
}

type ListQuery struct {
	Page    int
	Filters []Filter
}

type Pagination struct {
	Page         int   `json:"page"`
	Limit        int   `json:"limit"`
	TotalRecords int64 `json:"total_records"`
	TotalPages   int   `json:"total_pages"`
}

type ListResult struct {
	Pagination Pagination      `json:"pagination"`
	Data       []database.Case `json:"data"`
}

// List returns one page of cases ordered by priority, highest first.
func (s *Service) List(ctx context.Context, q ListQuery) (*ListResult, error) {
	page := q.Page
	if page < 1 {
		page = 1
	}
	limit := s.opts.PageSize

	scoped := func() *gorm.DB {
		db := s.db.WithContext(ctx).Model(&database.Case{})
		for _, f := range q.Filters {
			db = db.Scopes(f)
		}
		return db
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return nil, s.classify("count cases", err)
	}

	cases := []database.Case{}
	if err := scoped().
		Preload("Complainant").
		Preload("Officers").
		Order("cases.priority_score DESC, cases.created_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&cases).Error; err != nil {
		return nil, s.classify("list cases", err)
	}

	totalPages := 1
	if total > 0 {
		totalPages = int((total + int64(limit) - 1) / int64(limit))
	}

	return &ListResult{
		Pagination: Pagination{
			Page:         page,
			Limit:        limit,
			TotalRecords: total,
			TotalPages:   totalPages,
		},
		Data: cases,
	}, nil
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	if !to.After(from) {
		return 0
	}
	return int(to.Sub(from).Hours() / 24)
}

// ParseDate reads a YYYY-MM-DD filter value.
func ParseDate(v string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", v)
	}
	return t, nil
}
