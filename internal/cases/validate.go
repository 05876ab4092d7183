package cases

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/JustJay7/cyber-case-triage/internal/database"
	"github.com/JustJay7/cyber-case-triage/internal/evidence"
	"github.com/JustJay7/cyber-case-triage/internal/features"
)

func newValidator() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	levels := map[string][]string{
		"reputational_level": features.ReputationalDamageOrder,
		"complexity_level":   features.TechnicalComplexityOrder,
		"clarity_level":      features.EvidenceClarityOrder,
	}
	for tag, order := range levels {
		order := order
		_ = v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return features.ValidLevel(order, fl.Field().String())
		})
	}

	_ = v.RegisterValidation("evidence_type", func(fl validator.FieldLevel) bool {
		return isEvidenceType(fl.Field().String())
	})
	_ = v.RegisterValidation("case_status", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case database.StatusReceived, database.StatusInvestigating, database.StatusClosed:
			return true
		}
		return false
	})

	return v
}

func isEvidenceType(t string) bool {
	for _, known := range evidence.Types {
		if t == known {
			return true
		}
	}
	return false
}

// check runs struct validation and converts failures into a *ValidationError.
func (s *Service) check(req interface{}) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Fields: map[string]string{"request": err.Error()}}
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fieldPath(fe.Namespace())] = message(fe)
	}
	return &ValidationError{Fields: fields}
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_without":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must not be empty"
	case "evidence_type":
		return "must be one of " + strings.Join(evidence.Types, ", ")
	case "case_status":
		return "must be one of received, investigating, closed"
	case "reputational_level":
		return "must be one of " + strings.Join(features.ReputationalDamageOrder, ", ")
	case "complexity_level":
		return "must be one of " + strings.Join(features.TechnicalComplexityOrder, ", ")
	case "clarity_level":
		return "must be one of " + strings.Join(features.EvidenceClarityOrder, ", ")
	default:
		return "failed " + fe.Tag() + " validation"
	}
}
