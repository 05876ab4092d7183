package database

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Case statuses.
const (
	StatusReceived      = "received"
	StatusInvestigating = "investigating"
	StatusClosed        = "closed"
)

type Complainant struct {
	ID          string `json:"id" gorm:"type:text;primaryKey"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email"`
	Address     string `json:"address"`
	Province    string `json:"province"`
	District    string `json:"district"`
	Subdistrict string `json:"subdistrict"`
	Zipcode     string `json:"zipcode"`
}

type Officer struct {
	ID          string `json:"id" gorm:"type:text;primaryKey"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email"`
}

type CaseGroup struct {
	ID                   string     `json:"id" gorm:"type:text;primaryKey"`
	GroupNumber          string     `json:"group_number" gorm:"uniqueIndex"`
	GroupName            string     `json:"group_name"`
	CreatedAt            time.Time  `json:"created_at"`
	FirstCaseAt          *time.Time `json:"first_case_timestamp"`
	LatestCaseAt         *time.Time `json:"latest_case_timestamp"`
	TotalVictims         int64      `json:"total_victims"`
	TotalDamage          float64    `json:"total_damage"`
	PrimaryEvidenceValue *string    `json:"primary_evidence_value"`
	SummaryStale         bool       `json:"summary_stale"`
	MergedIntoID         *string    `json:"merged_into_id,omitempty" gorm:"index"`
}

// GroupMerge records a group being retired into another when a linking case
// connects two existing groups.
type GroupMerge struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	SourceGroupID string    `json:"source_group_id" gorm:"not null;index"`
	TargetGroupID string    `json:"target_group_id" gorm:"not null;index"`
	TriggerCaseID string    `json:"trigger_case_id"`
	MovedCases    int       `json:"moved_cases"`
	CreatedAt     time.Time `json:"created_at"`
}

type Case struct {
	ID                       string     `json:"id" gorm:"type:text;primaryKey"`
	CaseNumber               string     `json:"case_number" gorm:"index"`
	CaseName                 string     `json:"case_name"`
	CreatedAt                time.Time  `json:"timestamp" gorm:"index;index:idx_cases_type_time,priority:2"`
	UpdatedAt                time.Time  `json:"last_updated"`
	ClosedAt                 *time.Time `json:"date_closed"`
	Status                   string     `json:"status" gorm:"index;index:idx_cases_group_status,priority:2;default:received"`
	PriorityScore            float64    `json:"priority_score" gorm:"index"`
	VerifiedScore            *float64   `json:"verified_score"`
	CaseType                 string     `json:"case_type" gorm:"index;index:idx_cases_type_time,priority:1"`
	Description              string     `json:"description" gorm:"type:text"`
	EstimatedFinancialDamage float64    `json:"estimated_financial_damage"`
	NumVictims               int        `json:"num_victims"`
	ReputationalDamageLevel  string     `json:"reputational_damage_level"`
	TechnicalComplexityLevel string     `json:"technical_complexity_level"`
	InitialEvidenceClarity   string     `json:"initial_evidence_clarity"`
	SensitiveDataCompromised bool       `json:"sensitive_data_compromised"`
	OngoingThreat            bool       `json:"ongoing_threat"`
	RiskOfEvidenceLoss       bool       `json:"risk_of_evidence_loss"`

	ComplainantID string       `json:"complainant_id" gorm:"index"`
	Complainant   *Complainant `json:"complainant,omitempty" gorm:"foreignKey:ComplainantID"`
	GroupID       *string      `json:"group_id" gorm:"index;index:idx_cases_group_status,priority:1"`
	Group         *CaseGroup   `json:"group,omitempty" gorm:"foreignKey:GroupID"`

	Officers []Officer            `json:"officers,omitempty" gorm:"many2many:case_officers"`
	Suspects []Suspect            `json:"suspects,omitempty" gorm:"foreignKey:CaseID"`
	Evidence []StructuredEvidence `json:"structured_evidence,omitempty" gorm:"foreignKey:CaseID"`
	Files    []EvidenceFile       `json:"files,omitempty" gorm:"foreignKey:CaseID"`
}

type Suspect struct {
	ID          string `json:"id" gorm:"type:text;primaryKey"`
	CaseID      string `json:"case_id" gorm:"index"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	NationalID  string `json:"national_id"`
	BankAccount string `json:"bank_account"`
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email"`
	Address     string `json:"address"`
}

type StructuredEvidence struct {
	ID              string    `json:"id" gorm:"type:text;primaryKey"`
	CaseID          string    `json:"case_id" gorm:"index;index:idx_evidence_case_type,priority:1"`
	EvidenceType    string    `json:"evidence_type" gorm:"index:idx_evidence_match,priority:1;index:idx_evidence_case_type,priority:2"`
	EvidenceValue   string    `json:"evidence_value"`
	NormalizedValue string    `json:"normalized_value" gorm:"index:idx_evidence_match,priority:2"`
	CreatedAt       time.Time `json:"created_at"`
}

type EvidenceFile struct {
	ID               string    `json:"id" gorm:"type:text;primaryKey"`
	CaseID           string    `json:"case_id" gorm:"index"`
	OriginalFilename string    `json:"original_filename"`
	StoredFilename   string    `json:"stored_filename" gorm:"uniqueIndex"`
	FilePath         string    `json:"-"`
	UploadedAt       time.Time `json:"upload_timestamp"`
}

func (Complainant) TableName() string {
	return "complainants"
}

func (Officer) TableName() string {
	return "officers"
}

func (CaseGroup) TableName() string {
	return "case_groups"
}

func (GroupMerge) TableName() string {
	return "group_merges"
}

func (Case) TableName() string {
	return "cases"
}

func (Suspect) TableName() string {
	return "suspects"
}

func (StructuredEvidence) TableName() string {
	return "structured_evidence"
}

func (EvidenceFile) TableName() string {
	return "evidence_files"
}

// IsClosed reports whether the case no longer takes part in linking or rollups.
func (c *Case) IsClosed() bool {
	return c.Status == StatusClosed
}

func newID(id *string) {
	if *id == "" {
		*id = uuid.New().String()
	}
}

func (c *Complainant) BeforeCreate(tx *gorm.DB) error {
	newID(&c.ID)
	return nil
}

func (o *Officer) BeforeCreate(tx *gorm.DB) error {
	newID(&o.ID)
	return nil
}

func (g *CaseGroup) BeforeCreate(tx *gorm.DB) error {
	newID(&g.ID)
	return nil
}

func (c *Case) BeforeCreate(tx *gorm.DB) error {
	newID(&c.ID)
	return nil
}

func (s *Suspect) BeforeCreate(tx *gorm.DB) error {
	newID(&s.ID)
	return nil
}

func (e *StructuredEvidence) BeforeCreate(tx *gorm.DB) error {
	newID(&e.ID)
	return nil
}

func (f *EvidenceFile) BeforeCreate(tx *gorm.DB) error {
	newID(&f.ID)
	return nil
}
