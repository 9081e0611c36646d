package grading

import (
	"fmt"

	"github.com/slabscan/api/internal/model"
)

const (
	MinGrade = 1.0
	MaxGrade = 10.0
)

// ValidateResult decides whether a parsed result can be trusted. It never
// mutates its input.
func ValidateResult(r *model.ParsedGradingResult) model.ValidationResult {
	if r == nil {
		return model.ValidationResult{Errors: []string{"result is nil"}}
	}

	var v model.ValidationResult

	if r.DecimalGrade == nil && r.WholeGrade == nil {
		if r.GradeUncertainty != model.UncertaintyNA {
			v.Errors = append(v.Errors, "no grade found and card is not marked ungradeable")
		}
		v.Valid = len(v.Errors) == 0
		return v
	}

	if r.DecimalGrade != nil && (*r.DecimalGrade < MinGrade || *r.DecimalGrade > MaxGrade) {
		v.Errors = append(v.Errors, fmt.Sprintf("decimal grade %.2f outside [%.1f, %.1f]", *r.DecimalGrade, MinGrade, MaxGrade))
	}
	if r.WholeGrade != nil && (float64(*r.WholeGrade) < MinGrade || float64(*r.WholeGrade) > MaxGrade) {
		v.Errors = append(v.Errors, fmt.Sprintf("whole grade %d outside [%.0f, %.0f]", *r.WholeGrade, MinGrade, MaxGrade))
	}

	if r.SubScores.AllZero() {
		v.Warnings = append(v.Warnings, "all sub-scores are zero")
	}

	v.Valid = len(v.Errors) == 0
	return v
}
