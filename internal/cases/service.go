// Package cases orchestrates case intake and maintenance: validation, scoring,
// persistence, linking and the read models served by the API.
package cases

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JustJay7/cyber-case-triage/internal/cache"
	"github.com/JustJay7/cyber-case-triage/internal/config"
	"github.com/JustJay7/cyber-case-triage/internal/database"
	"github.com/JustJay7/cyber-case-triage/internal/evidence"
	"github.com/JustJay7/cyber-case-triage/internal/features"
	"github.com/JustJay7/cyber-case-triage/internal/grouping"
	"github.com/JustJay7/cyber-case-triage/internal/metrics"
	"github.com/JustJay7/cyber-case-triage/internal/scoring"
	"github.com/JustJay7/cyber-case-triage/pkg/logger"
)

const (
	similarityThreshold = 0.8
	similarityScanLimit = 500
)

// Options are the tunables the service reads from configuration.
type Options struct {
	ModelPath         string
	PageSize          int
	UploadDir         string
	AllowedExtensions []string
	MaxUploadSize     int64
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ModelPath:         cfg.ModelPath,
		PageSize:          cfg.PageSize,
		UploadDir:         cfg.UploadDir,
		AllowedExtensions: cfg.AllowedExtensions,
		MaxUploadSize:     cfg.MaxUploadSize,
	}
}

// Dependencies are the collaborators a Service is built from.
type Dependencies struct {
	DB         *gorm.DB
	Scorer     *scoring.Scorer
	Artifacts  scoring.ArtifactStore
	Linker     *grouping.Linker
	Aggregator *grouping.Aggregator
	Normalizer *evidence.Normalizer
	Cache      cache.Cache
	Metrics    *metrics.Metrics
	Logger     *logger.Logger
}

type Service struct {
	db         *gorm.DB
	scorer     *scoring.Scorer
	artifacts  scoring.ArtifactStore
	linker     *grouping.Linker
	aggregator *grouping.Aggregator
	normalizer *evidence.Normalizer
	cache      cache.Cache
	metrics    *metrics.Metrics
	logger     *logger.Logger
	validate   *validator.Validate
	opts       Options
	now        func() time.Time
}

func NewService(deps Dependencies, opts Options) *Service {
	if opts.PageSize <= 0 {
		opts.PageSize = 12
	}
	return &Service{
		db:         deps.DB,
		scorer:     deps.Scorer,
		artifacts:  deps.Artifacts,
		linker:     deps.Linker,
		aggregator: deps.Aggregator,
		normalizer: deps.Normalizer,
		cache:      deps.Cache,
		metrics:    deps.Metrics,
		logger:     deps.Logger.With("component", "cases"),
		validate:   newValidator(),
		opts:       opts,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the clock used for case timestamps and dashboards.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Create validates, scores and stores a submission, then links it to cases
// sharing evidence. Linking failures are logged and do not fail the call.
func (s *Service) Create(ctx context.Context, sub *Submission) (*CreateResult, error) {
	if err := s.check(sub); err != nil {
		s.metrics.CaseCreated("rejected")
		return nil, err
	}
	if err := s.checkEvidence(sub.Evidence); err != nil {
		s.metrics.CaseCreated("rejected")
		return nil, err
	}

	vec := features.Build(sub.featureInput(), features.LinkingContext{EvidenceCount: len(sub.Evidence)})

	start := time.Now()
	score, err := s.scorer.Score(vec)
	if err != nil {
		s.metrics.CaseCreated("rejected")
		return nil, err
	}
	s.metrics.ObserveScore(score, time.Since(start))

	now := s.now()
	record := sub.toCase(vec, score)
	record.CreatedAt = now

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		complainant := sub.Complainant.model()
		if err := tx.Create(&complainant).Error; err != nil {
			return fmt.Errorf("create complainant: %w", err)
		}
		record.ComplainantID = complainant.ID

		officers, err := resolveOfficers(tx, sub.Officers)
		if err != nil {
			return err
		}
		record.Officers = officers

		for _, sp := range sub.Suspects {
			record.Suspects = append(record.Suspects, sp.model())
		}
		record.Evidence = s.evidenceRows(sub.Evidence, now)

		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("create case: %w", err)
		}
		return nil
	})
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			s.metrics.CaseCreated("rejected")
			return nil, err
		}
		s.metrics.CaseCreated("error")
		s.logger.Error("Failed to store case", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	result := &CreateResult{
		CaseID:        record.ID,
		PriorityScore: score,
		Features:      vec,
	}
	if link := s.link(ctx, record.ID); link != nil {
		result.GroupID = &link.GroupID
		result.GroupNumber = link.GroupNumber
	}

	cache.InvalidateDashboards(s.cache)
	s.metrics.CaseCreated("success")
	s.logger.Info("Case created",
		"case_id", record.ID,
		"priority_score", score,
		"evidence", len(record.Evidence),
		"group_number", result.GroupNumber,
	)
	return result, nil
}

// Update applies a partial change. Closing a case stamps ClosedAt once;
// added evidence triggers linking; the former group is recomputed.
func (s *Service) Update(ctx context.Context, id string, patch *Patch) (*CaseDetail, error) {
	if err := s.check(patch); err != nil {
		return nil, err
	}
	if err := s.checkEvidence(patch.Evidence); err != nil {
		return nil, err
	}

	var formerGroup *string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c database.Case
		if err := tx.First(&c, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: case %s", ErrNotFound, id)
			}
			return fmt.Errorf("load case: %w", err)
		}
		formerGroup = c.GroupID

		if patch.CaseDetails != nil {
			s.applyDetails(&c, patch.CaseDetails)
		}

		if len(patch.Evidence) > 0 {
			rows := s.evidenceRows(patch.Evidence, s.now())
			for i := range rows {
				rows[i].CaseID = c.ID
			}
			if err := tx.Create(&rows).Error; err != nil {
				return fmt.Errorf("add evidence: %w", err)
			}
		}

		if patch.Officers != nil {
			officers, err := resolveOfficers(tx, *patch.Officers)
			if err != nil {
				return err
			}
			if err := tx.Model(&c).Association("Officers").Replace(officers); err != nil {
				return fmt.Errorf("replace officers: %w", err)
			}
		}

		if patch.Rescore {
			vecs, err := s.storedVectors(tx, []database.Case{c})
			if err != nil {
				return err
			}
			score, err := s.scorer.Score(vecs[0])
			if err != nil {
				return err
			}
			c.PriorityScore = score
		}

		if err := tx.Omit(clause.Associations).Save(&c).Error; err != nil {
			return fmt.Errorf("save case: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, s.classify("update case", err)
	}

	if len(patch.Evidence) > 0 {
		s.link(ctx, id)
	}
	if formerGroup != nil {
		s.recompute(ctx, *formerGroup)
	}
	cache.InvalidateDashboards(s.cache)

	s.logger.Info("Case updated", "case_id", id, "rescored", patch.Rescore, "evidence_added", len(patch.Evidence))
	return s.Get(ctx, id)
}

// Get loads a case with all its associations and similar-suspect hints.
func (s *Service) Get(ctx context.Context, id string) (*CaseDetail, error) {
	var c database.Case
	err := s.db.WithContext(ctx).
		Preload("Complainant").
		Preload("Group").
		Preload("Officers").
		Preload("Suspects").
		Preload("Evidence", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Preload("Files", func(db *gorm.DB) *gorm.DB {
			return db.Order("uploaded_at ASC")
		}).
		First(&c, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: case %s", ErrNotFound, id)
		}
		return nil, s.classify("get case", err)
	}

	detail := &CaseDetail{Case: c}
	matches, err := s.similarSuspects(ctx, &c)
	if err != nil {
		s.logger.Warn("Suspect similarity lookup failed", "case_id", id, "error", err)
	}
	detail.SimilarSuspects = matches
	return detail, nil
}

// Delete removes a case with its evidence, suspects, files and officer
// assignments. The complainant goes too when no other case refers to it.
func (s *Service) Delete(ctx context.Context, id string) error {
	var c database.Case
	var files []database.EvidenceFile

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&c, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: case %s", ErrNotFound, id)
			}
			return fmt.Errorf("load case: %w", err)
		}

		if err := tx.Where("case_id = ?", id).Find(&files).Error; err != nil {
			return fmt.Errorf("load files: %w", err)
		}

		for _, child := range []interface{}{
			&database.StructuredEvidence{},
			&database.Suspect{},
			&database.EvidenceFile{},
		} {
			if err := tx.Where("case_id = ?", id).Delete(child).Error; err != nil {
				return fmt.Errorf("delete %T: %w", child, err)
			}
		}

		if err := tx.Model(&c).Association("Officers").Clear(); err != nil {
			return fmt.Errorf("clear officers: %w", err)
		}
		if err := tx.Delete(&c).Error; err != nil {
			return fmt.Errorf("delete case: %w", err)
		}

		if c.ComplainantID != "" {
			var refs int64
			if err := tx.Model(&database.Case{}).Where("complainant_id = ?", c.ComplainantID).Count(&refs).Error; err != nil {
				return fmt.Errorf("count complainant references: %w", err)
			}
			if refs == 0 {
				if err := tx.Delete(&database.Complainant{}, "id = ?", c.ComplainantID).Error; err != nil {
					return fmt.Errorf("delete complainant: %w", err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return s.classify("delete case", err)
	}

	for _, f := range files {
		if err := os.Remove(f.FilePath); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("Failed to remove evidence file", "path", f.FilePath, "error", err)
		}
	}
	if c.GroupID != nil {
		s.recompute(ctx, *c.GroupID)
	}
	cache.InvalidateDashboards(s.cache)

	s.logger.Info("Case deleted", "case_id", id, "files", len(files))
	return nil
}

// link runs linking for a case. Errors are logged, never returned.
func (s *Service) link(ctx context.Context, caseID string) *grouping.LinkResult {
	res, err := s.linker.Link(ctx, caseID)
	if err != nil {
		s.logger.Warn("Case linking failed", "case_id", caseID, "error", err)
	}
	if res != nil {
		s.invalidateGroups(append([]string{res.GroupID}, res.RetiredGroups...)...)
	}
	return res
}

func (s *Service) recompute(ctx context.Context, groupID string) {
	if _, err := s.aggregator.Recompute(ctx, groupID); err != nil {
		s.logger.Warn("Group summary recompute failed", "group_id", groupID, "error", err)
	}
	s.invalidateGroups(groupID)
}

func (s *Service) invalidateGroups(ids ...string) {
	for _, id := range ids {
		s.cache.Delete(cache.GroupKey(id))
	}
}

// classify passes through errors callers can act on and wraps the rest as storage failures.
func (s *Service) classify(op string, err error) error {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr),
		errors.Is(err, ErrNotFound),
		errors.Is(err, scoring.ErrModelUnavailable):
		return err
	}
	s.logger.Error("Storage operation failed", "op", op, "error", err)
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

// checkEvidence rejects values that normalize to nothing and could never match.
func (s *Service) checkEvidence(items []EvidenceInput) error {
	for i, it := range items {
		if s.normalizer.NormalizeEvidence(it.EvidenceType, it.EvidenceValue) == "" {
			return fieldError(fmt.Sprintf("structured_evidence[%d].evidence_value", i), "has no usable characters")
		}
	}
	return nil
}

func (s *Service) evidenceRows(items []EvidenceInput, at time.Time) []database.StructuredEvidence {
	rows := make([]database.StructuredEvidence, 0, len(items))
	for i, it := range items {
		rows = append(rows, database.StructuredEvidence{
			EvidenceType:    it.EvidenceType,
			EvidenceValue:   strings.TrimSpace(it.EvidenceValue),
			NormalizedValue: s.normalizer.NormalizeEvidence(it.EvidenceType, it.EvidenceValue),
			// distinct timestamps keep submission order
			CreatedAt: at.Add(time.Duration(i) * time.Microsecond),
		})
	}
	return rows
}

func (s *Service) applyDetails(c *database.Case, d *CaseDetailsPatch) {
	set(&c.CaseNumber, d.CaseNumber)
	set(&c.CaseName, d.CaseName)
	set(&c.CaseType, d.CaseType)
	set(&c.Description, d.Description)
	set(&c.EstimatedFinancialDamage, d.EstimatedFinancialDamage)
	set(&c.NumVictims, d.NumVictims)
	set(&c.ReputationalDamageLevel, d.ReputationalDamageLevel)
	set(&c.TechnicalComplexityLevel, d.TechnicalComplexityLevel)
	set(&c.InitialEvidenceClarity, d.InitialEvidenceClarity)
	set(&c.SensitiveDataCompromised, d.SensitiveDataCompromised)
	set(&c.OngoingThreat, d.OngoingThreat)
	set(&c.RiskOfEvidenceLoss, d.RiskOfEvidenceLoss)

	if d.VerifiedScore != nil {
		v := *d.VerifiedScore
		c.VerifiedScore = &v
	}
	if d.Status != nil {
		c.Status = *d.Status
		if c.Status == database.StatusClosed && c.ClosedAt == nil {
			now := s.now()
			c.ClosedAt = &now
		}
	}
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// resolveOfficers returns the officer rows for inputs, creating the ones that
// do not exist yet. Duplicate IDs are dropped.
func resolveOfficers(tx *gorm.DB, inputs []OfficerInput) ([]database.Officer, error) {
	out := make([]database.Officer, 0, len(inputs))
	seen := make(map[string]bool)

	for i, in := range inputs {
		var o database.Officer
		if in.ID != "" {
			err := tx.First(&o, "id = ?", in.ID).Error
			switch {
			case err == nil:
			case errors.Is(err, gorm.ErrRecordNotFound):
				if in.FirstName == "" {
					return nil, fieldError(fmt.Sprintf("officers[%d].id", i), "unknown officer")
				}
				o = officerModel(in)
				if err := tx.Create(&o).Error; err != nil {
					return nil, fmt.Errorf("create officer: %w", err)
				}
			default:
				return nil, fmt.Errorf("load officer %s: %w", in.ID, err)
			}
		} else {
			o = officerModel(in)
			if err := tx.Create(&o).Error; err != nil {
				return nil, fmt.Errorf("create officer: %w", err)
			}
		}

		if seen[o.ID] {
			continue
		}
		seen[o.ID] = true
		out = append(out, o)
	}
	return out, nil
}

func officerModel(in OfficerInput) database.Officer {
	return database.Officer{
		ID:          in.ID,
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		PhoneNumber: in.PhoneNumber,
		Email:       in.Email,
	}
}

func (s *Service) similarSuspects(ctx context.Context, c *database.Case) ([]SuspectMatch, error) {
	if len(c.Suspects) == 0 {
		return nil, nil
	}

	var others []database.Suspect
	if err := s.db.WithContext(ctx).
		Where("case_id <> ?", c.ID).
		Limit(similarityScanLimit).
		Find(&others).Error; err != nil {
		return nil, err
	}

	var matches []SuspectMatch
	for _, sp := range c.Suspects {
		name := fullName(sp.FirstName, sp.LastName)
		if name == "" {
			continue
		}
		for _, o := range others {
			other := fullName(o.FirstName, o.LastName)
			if other == "" {
				continue
			}
			if score := s.normalizer.NameSimilarity(name, other); score >= similarityThreshold {
				matches = append(matches, SuspectMatch{
					SuspectID:        sp.ID,
					Name:             name,
					MatchedCaseID:    o.CaseID,
					MatchedSuspectID: o.ID,
					MatchedName:      other,
					Similarity:       score,
				})
			}
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	return matches, nil
}

func fullName(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}
