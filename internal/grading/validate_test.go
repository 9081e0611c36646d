package grading

import (
	"testing"

	"github.com/slabscan/api/internal/model"
)

func TestValidateResult(t *testing.T) {
	scores := model.SubScores{Centering: model.SubScore{Front: 9, Back: 8, Weighted: 8.6}}

	tests := []struct {
		name     string
		result   *model.ParsedGradingResult
		valid    bool
		warnings int
	}{
		{
			name:     "valid grade with zero sub-scores",
			result:   &model.ParsedGradingResult{DecimalGrade: floatPtr(7.0), GradeUncertainty: "±0.5"},
			valid:    true,
			warnings: 1,
		},
		{
			name:   "valid grade with sub-scores",
			result: &model.ParsedGradingResult{DecimalGrade: floatPtr(9.5), WholeGrade: wholePtr(10), SubScores: scores},
			valid:  true,
		},
		{
			name:   "grade above scale",
			result: &model.ParsedGradingResult{DecimalGrade: floatPtr(11.0), SubScores: scores},
			valid:  false,
		},
		{
			name:   "grade below scale",
			result: &model.ParsedGradingResult{DecimalGrade: floatPtr(0.5), SubScores: scores},
			valid:  false,
		},
		{
			name:   "whole grade out of range",
			result: &model.ParsedGradingResult{WholeGrade: wholePtr(12), SubScores: scores},
			valid:  false,
		},
		{
			name:   "ungradeable card",
			result: &model.ParsedGradingResult{GradeUncertainty: model.UncertaintyNA},
			valid:  true,
		},
		{
			name:   "missing grade",
			result: &model.ParsedGradingResult{GradeUncertainty: "±0.5"},
			valid:  false,
		},
		{
			name:   "nil result",
			result: nil,
			valid:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateResult(tt.result)
			if got.Valid != tt.valid {
				t.Errorf("valid = %v, want %v (errors: %v)", got.Valid, tt.valid, got.Errors)
			}
			if len(got.Warnings) != tt.warnings {
				t.Errorf("warnings = %v, want %d", got.Warnings, tt.warnings)
			}
		})
	}
}

func TestValidateResult_DoesNotMutate(t *testing.T) {
	grade := 11.0
	r := &model.ParsedGradingResult{DecimalGrade: &grade, GradeUncertainty: "±0.5"}

	ValidateResult(r)

	if *r.DecimalGrade != 11.0 || r.GradeUncertainty != "±0.5" {
		t.Errorf("input mutated: %+v", r)
	}
}

func floatPtr(f float64) *float64 {
	return &f
}

func wholePtr(i int) *int {
	return &i
}
