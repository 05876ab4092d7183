package cases

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/JustJay7/cyber-case-triage/internal/database"
	"github.com/JustJay7/cyber-case-triage/internal/features"
)

var (
	ErrNotFound = errors.New("not found")
	ErrStorage  = errors.New("storage failure")
)

// ValidationError lists the rejected fields of a request, keyed by JSON path.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

func fieldError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// Submission is the body of a new case request.
type Submission struct {
	CaseDetails CaseDetails      `json:"case_details"`
	Complainant ComplainantInput `json:"complainant"`
	Officers    []OfficerInput   `json:"officers" validate:"omitempty,dive"`
	Suspects    []SuspectInput   `json:"suspects" validate:"omitempty,dive"`
	Evidence    []EvidenceInput  `json:"structured_evidence" validate:"omitempty,dive"`
}

type CaseDetails struct {
	CaseNumber               string   `json:"case_number" validate:"max=64"`
	CaseName                 string   `json:"case_name" validate:"required,max=255"`
	CaseType                 string   `json:"case_type" validate:"max=128"`
	Description              string   `json:"description"`
	EstimatedFinancialDamage *float64 `json:"estimated_financial_damage" validate:"omitempty,gte=0"`
	NumVictims               *int     `json:"num_victims" validate:"omitempty,gte=0"`
	ReputationalDamageLevel  string   `json:"reputational_damage_level" validate:"omitempty,reputational_level"`
	TechnicalComplexityLevel string   `json:"technical_complexity_level" validate:"omitempty,complexity_level"`
	InitialEvidenceClarity   string   `json:"initial_evidence_clarity" validate:"omitempty,clarity_level"`
	SensitiveDataCompromised *bool    `json:"sensitive_data_compromised"`
	OngoingThreat            *bool    `json:"ongoing_threat"`
	RiskOfEvidenceLoss       *bool    `json:"risk_of_evidence_loss"`
}

type ComplainantInput struct {
	FirstName   string `json:"first_name" validate:"required,max=128"`
	LastName    string `json:"last_name" validate:"required,max=128"`
	PhoneNumber string `json:"phone_number" validate:"required,max=32"`
	Email       string `json:"email" validate:"omitempty,email"`
	Address     string `json:"address"`
	Province    string `json:"province"`
	District    string `json:"district"`
	Subdistrict string `json:"subdistrict"`
	Zipcode     string `json:"zipcode" validate:"max=10"`
}

// OfficerInput refers to an existing officer by ID or describes a new one.
type OfficerInput struct {
	ID          string `json:"id"`
	FirstName   string `json:"first_name" validate:"required_without=ID"`
	LastName    string `json:"last_name" validate:"required_without=ID"`
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email" validate:"omitempty,email"`
}

type SuspectInput struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	NationalID  string `json:"national_id" validate:"max=32"`
	BankAccount string `json:"bank_account"`
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email" validate:"omitempty,email"`
	Address     string `json:"address"`
}

type EvidenceInput struct {
	EvidenceType  string `json:"evidence_type" validate:"required,evidence_type"`
	EvidenceValue string `json:"evidence_value" validate:"required,max=512"`
}

// Patch is a partial update. Nil fields are left unchanged. Officers, when
// present, replaces the assignment list. Evidence is appended and the case is
// linked again.
type Patch struct {
	CaseDetails *CaseDetailsPatch `json:"case_details"`
	Officers    *[]OfficerInput   `json:"officers" validate:"omitempty,dive"`
	Evidence    []EvidenceInput   `json:"structured_evidence" validate:"omitempty,dive"`
	Rescore     bool              `json:"rescore"`
}

type CaseDetailsPatch struct {
	CaseNumber               *string  `json:"case_number" validate:"omitempty,max=64"`
	CaseName                 *string  `json:"case_name" validate:"omitempty,min=1,max=255"`
	Status                   *string  `json:"status" validate:"omitempty,case_status"`
	CaseType                 *string  `json:"case_type" validate:"omitempty,max=128"`
	Description              *string  `json:"description"`
	EstimatedFinancialDamage *float64 `json:"estimated_financial_damage" validate:"omitempty,gte=0"`
	NumVictims               *int     `json:"num_victims" validate:"omitempty,gte=0"`
	ReputationalDamageLevel  *string  `json:"reputational_damage_level" validate:"omitempty,reputational_level"`
	TechnicalComplexityLevel *string  `json:"technical_complexity_level" validate:"omitempty,complexity_level"`
	InitialEvidenceClarity   *string  `json:"initial_evidence_clarity" validate:"omitempty,clarity_level"`
	SensitiveDataCompromised *bool    `json:"sensitive_data_compromised"`
	OngoingThreat            *bool    `json:"ongoing_threat"`
	RiskOfEvidenceLoss       *bool    `json:"risk_of_evidence_loss"`
	VerifiedScore            *float64 `json:"verified_score" validate:"omitempty,gte=0,lte=100"`
}

// CreateResult is returned for a stored submission.
type CreateResult struct {
	CaseID        string          `json:"case_id"`
	PriorityScore float64         `json:"priority_score"`
	GroupID       *string         `json:"group_id"`
	GroupNumber   string          `json:"group_number,omitempty"`
	Features      features.Vector `json:"features"`
}

// CaseDetail is a case with its associations and reviewer hints.
type CaseDetail struct {
	database.Case
	SimilarSuspects []SuspectMatch `json:"similar_suspects,omitempty"`
}

// SuspectMatch pairs a suspect of the case with a similarly named suspect of
// another case. It is a hint only and never drives linking.
type SuspectMatch struct {
	SuspectID        string  `json:"suspect_id"`
	Name             string  `json:"name"`
	MatchedCaseID    string  `json:"matched_case_id"`
	MatchedSuspectID string  `json:"matched_suspect_id"`
	MatchedName      string  `json:"matched_name"`
	Similarity       float64 `json:"similarity"`
}

type RetrainResult struct {
	TrainingRows int       `json:"training_rows"`
	TrainedAt    time.Time `json:"trained_at"`
	Version      int       `json:"version"`
}

func (s *Submission) featureInput() features.Submission {
	d := s.CaseDetails
	types := make([]string, 0, len(s.Evidence))
	for _, e := range s.Evidence {
		types = append(types, e.EvidenceType)
	}
	return features.Submission{
		CaseType:                 d.CaseType,
		ReputationalDamageLevel:  d.ReputationalDamageLevel,
		TechnicalComplexityLevel: d.TechnicalComplexityLevel,
		InitialEvidenceClarity:   d.InitialEvidenceClarity,
		EstimatedFinancialDamage: d.EstimatedFinancialDamage,
		NumVictims:               d.NumVictims,
		SensitiveDataCompromised: d.SensitiveDataCompromised,
		OngoingThreat:            d.OngoingThreat,
		RiskOfEvidenceLoss:       d.RiskOfEvidenceLoss,
		EvidenceTypes:            types,
	}
}

// toCase maps the submission onto a case row. Absent levels are stored with
// the same defaults the model saw.
func (s *Submission) toCase(v features.Vector, score float64) database.Case {
	d := s.CaseDetails
	return database.Case{
		CaseNumber:               strings.TrimSpace(d.CaseNumber),
		CaseName:                 d.CaseName,
		Status:                   database.StatusReceived,
		PriorityScore:            score,
		CaseType:                 d.CaseType,
		Description:              d.Description,
		EstimatedFinancialDamage: v.EstimatedFinancialDamage,
		NumVictims:               int(v.NumVictims),
		ReputationalDamageLevel:  v.ReputationalDamageLevel,
		TechnicalComplexityLevel: v.TechnicalComplexityLevel,
		InitialEvidenceClarity:   v.InitialEvidenceClarity,
		SensitiveDataCompromised: v.SensitiveDataCompromised,
		OngoingThreat:            v.OngoingThreat,
		RiskOfEvidenceLoss:       v.RiskOfEvidenceLoss,
	}
}

func (c ComplainantInput) model() database.Complainant {
	return database.Complainant{
		FirstName:   c.FirstName,
		LastName:    c.LastName,
		PhoneNumber: c.PhoneNumber,
		Email:       c.Email,
		Address:     c.Address,
		Province:    c.Province,
		District:    c.District,
		Subdistrict: c.Subdistrict,
		Zipcode:     c.Zipcode,
	}
}

func (s SuspectInput) model() database.Suspect {
	return database.Suspect{
		FirstName:   s.FirstName,
		LastName:    s.LastName,
		NationalID:  s.NationalID,
		BankAccount: s.BankAccount,
		PhoneNumber: s.PhoneNumber,
		Email:       s.Email,
		Address:     s.Address,
	}
}
