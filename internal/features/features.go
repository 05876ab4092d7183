// Package features maps case submissions onto the fixed feature vector the
// priority model is trained on. Changing the vector layout requires retraining.
package features

import (
	"github.com/JustJay7/cyber-case-triage/internal/evidence"
)

// Sentinel values used when a categorical or ordinal field is absent.
const (
	UnknownCategory = "unknown"
	NoneLevel       = "None"
	LowLevel        = "Low"
)

// Ordinal orders. Index is the rank.
var (
	ReputationalDamageOrder  = []string{"None", "Low", "Medium", "High", "Critical"}
	TechnicalComplexityOrder = []string{"Low", "Medium", "High", "Very High", "Extreme"}
	// None and Low share the lowest clarity rank.
	EvidenceClarityOrder = []string{"None", "Low", "Medium", "High", "Very High"}
)

var evidenceClarityRanks = map[string]int{
	"None": 0, "Low": 0, "Medium": 1, "High": 2, "Very High": 3,
}

// Column names in vector order.
var (
	CategoricalColumns = []string{"case_type"}
	OrdinalColumns     = []string{"reputational_damage_level", "technical_complexity_level", "initial_evidence_clarity"}
	NumericColumns     = []string{"estimated_financial_damage", "num_victims", "evidence_count", "days_since_creation", "num_linked_cases"}
	BinaryColumns      = []string{"sensitive_data_compromised", "ongoing_threat", "risk_of_evidence_loss", "has_actionable_evidence", "is_grouped"}
)

// Submission is the subset of a case submission the model looks at. Pointer
// fields distinguish "absent" from the zero value.
type Submission struct {
	CaseType                 string
	ReputationalDamageLevel  string
	TechnicalComplexityLevel string
	InitialEvidenceClarity   string
	EstimatedFinancialDamage *float64
	NumVictims               *int
	SensitiveDataCompromised *bool
	OngoingThreat            *bool
	RiskOfEvidenceLoss       *bool
	EvidenceTypes            []string
}

// LinkingContext carries values that are only known from storage lookups.
// For a brand new submission everything except EvidenceCount is zero.
type LinkingContext struct {
	EvidenceCount     int
	DaysSinceCreation int
	NumLinkedCases    int
	IsGrouped         bool
}

// Vector is the model input. The field order matches the column lists above.
type Vector struct {
	CaseType string `json:"case_type"`

	ReputationalDamageLevel  string `json:"reputational_damage_level"`
	TechnicalComplexityLevel string `json:"technical_complexity_level"`
	InitialEvidenceClarity   string `json:"initial_evidence_clarity"`

	EstimatedFinancialDamage float64 `json:"estimated_financial_damage"`
	NumVictims               float64 `json:"num_victims"`
	EvidenceCount            float64 `json:"evidence_count"`
	DaysSinceCreation        float64 `json:"days_since_creation"`
	NumLinkedCases           float64 `json:"num_linked_cases"`

	SensitiveDataCompromised bool `json:"sensitive_data_compromised"`
	OngoingThreat            bool `json:"ongoing_threat"`
	RiskOfEvidenceLoss       bool `json:"risk_of_evidence_loss"`
	HasActionableEvidence    bool `json:"has_actionable_evidence"`
	IsGrouped                bool `json:"is_grouped"`
}

// Build assembles the feature vector, filling absent fields with their defaults.
func Build(sub Submission, lc LinkingContext) Vector {
	return Vector{
		CaseType: orDefault(sub.CaseType, UnknownCategory),

		ReputationalDamageLevel:  orDefault(sub.ReputationalDamageLevel, NoneLevel),
		TechnicalComplexityLevel: orDefault(sub.TechnicalComplexityLevel, LowLevel),
		InitialEvidenceClarity:   orDefault(sub.InitialEvidenceClarity, NoneLevel),

		EstimatedFinancialDamage: floatOrZero(sub.EstimatedFinancialDamage),
		NumVictims:               float64(intOrZero(sub.NumVictims)),
		EvidenceCount:            float64(lc.EvidenceCount),
		DaysSinceCreation:        float64(lc.DaysSinceCreation),
		NumLinkedCases:           float64(lc.NumLinkedCases),

		SensitiveDataCompromised: boolOrFalse(sub.SensitiveDataCompromised),
		OngoingThreat:            boolOrFalse(sub.OngoingThreat),
		RiskOfEvidenceLoss:       boolOrFalse(sub.RiskOfEvidenceLoss),
		HasActionableEvidence:    HasActionableEvidence(sub.EvidenceTypes),
		IsGrouped:                lc.IsGrouped,
	}
}

// HasActionableEvidence reports whether any evidence type is a bank account or phone number.
func HasActionableEvidence(types []string) bool {
	for _, t := range types {
		if evidence.IsActionable(t) {
			return true
		}
	}
	return false
}

// Categorical returns the categorical fields in column order.
func (v Vector) Categorical() []string {
	return []string{v.CaseType}
}

// Ordinal returns the ordinal fields as ranks in column order.
func (v Vector) Ordinal() []float64 {
	return []float64{
		float64(rank(ReputationalDamageOrder, v.ReputationalDamageLevel)),
		float64(rank(TechnicalComplexityOrder, v.TechnicalComplexityLevel)),
		float64(ClarityRank(v.InitialEvidenceClarity)),
	}
}

// Numeric returns the continuous fields in column order.
func (v Vector) Numeric() []float64 {
	return []float64{
		v.EstimatedFinancialDamage,
		v.NumVictims,
		v.EvidenceCount,
		v.DaysSinceCreation,
		v.NumLinkedCases,
	}
}

// Binary returns the boolean fields as 0/1 in column order.
func (v Vector) Binary() []float64 {
	return []float64{
		b2f(v.SensitiveDataCompromised),
		b2f(v.OngoingThreat),
		b2f(v.RiskOfEvidenceLoss),
		b2f(v.HasActionableEvidence),
		b2f(v.IsGrouped),
	}
}

// ReputationalRank returns the rank of a reputational damage level; unknown values rank lowest.
func ReputationalRank(level string) int {
	return rank(ReputationalDamageOrder, level)
}

// ComplexityRank returns the rank of a technical complexity level; unknown values rank lowest.
func ComplexityRank(level string) int {
	return rank(TechnicalComplexityOrder, level)
}

// ClarityRank returns the rank of an evidence clarity level; unknown values rank lowest.
func ClarityRank(level string) int {
	return evidenceClarityRanks[level]
}

// ValidLevel reports whether level belongs to order.
func ValidLevel(order []string, level string) bool {
	for _, l := range order {
		if l == level {
			return true
		}
	}
	return false
}

func rank(order []string, level string) int {
	for i, l := range order {
		if l == level {
			return i
		}
	}
	return 0
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func floatOrZero(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func intOrZero(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}

func boolOrFalse(b *bool) bool {
	return b != nil && *b
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
