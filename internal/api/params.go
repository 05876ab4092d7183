package api

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/JustJay7/cyber-case-triage/internal/cases"
)

// parseListQuery turns the case list query string into filters. Malformed
// values come back as a validation error naming the parameter.
func parseListQuery(c *gin.Context) (cases.ListQuery, error) {
	q := cases.ListQuery{Page: 1}
	bad := map[string]string{}

	if v := c.Query("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			bad["page"] = "must be a positive integer"
		} else {
			q.Page = page
		}
	}

	text := []struct {
		param string
		build func(string) cases.Filter
	}{
		{"q", cases.Search},
		{"case_number", cases.CaseNumberContains},
		{"case_type", cases.CaseType},
		{"status", cases.Status},
		{"reputational_damage_level", cases.ReputationalLevel},
		{"technical_complexity_level", cases.TechnicalLevel},
		{"group_id", cases.InGroup},
	}
	for _, f := range text {
		if v := c.Query(f.param); v != "" {
			q.Filters = append(q.Filters, f.build(v))
		}
	}

	flags := []struct {
		param string
		build func(bool) cases.Filter
	}{
		{"sensitive_data_compromised", cases.SensitiveData},
		{"ongoing_threat", cases.OngoingThreat},
	}
	for _, f := range flags {
		v := c.Query(f.param)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			bad[f.param] = "must be true or false"
			continue
		}
		q.Filters = append(q.Filters, f.build(b))
	}

	amounts := []struct {
		param string
		build func(float64) cases.Filter
	}{
		{"min_damage", cases.MinDamage},
		{"max_damage", cases.MaxDamage},
	}
	for _, f := range amounts {
		v := c.Query(f.param)
		if v == "" {
			continue
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil || n < 0 {
			bad[f.param] = "must be a non-negative number"
			continue
		}
		q.Filters = append(q.Filters, f.build(n))
	}

	if v := c.Query("start_date"); v != "" {
		if day, err := cases.ParseDate(v); err != nil {
			bad["start_date"] = "must be YYYY-MM-DD"
		} else {
			q.Filters = append(q.Filters, cases.CreatedFrom(day))
		}
	}
	if v := c.Query("end_date"); v != "" {
		if day, err := cases.ParseDate(v); err != nil {
			bad["end_date"] = "must be YYYY-MM-DD"
		} else {
			q.Filters = append(q.Filters, cases.CreatedUntil(day))
		}
	}

	if len(bad) > 0 {
		return q, &cases.ValidationError{Fields: bad}
	}
	return q, nil
}
