package model

// UncertaintyNA marks a card the grader could not grade.
const UncertaintyNA = "N/A"

// ParsedGradingResult is the structured form of a free-text grading report.
type ParsedGradingResult struct {
	DecimalGrade     *float64        `json:"decimal_grade"`
	WholeGrade       *int            `json:"whole_grade"`
	GradeUncertainty string          `json:"grade_uncertainty"`
	SubScores        SubScores       `json:"sub_scores"`
	WeightedSummary  WeightedSummary `json:"weighted_summary"`
	CardInfo         CardInfo        `json:"card_info"`
	CenteringRatios  CenteringRatios `json:"centering_ratios"`
	RawText          string          `json:"raw_text"`
}

// IsUngradeable reports whether the report explicitly declined to grade the card.
func (r *ParsedGradingResult) IsUngradeable() bool {
	return r.DecimalGrade == nil && r.WholeGrade == nil && r.GradeUncertainty == UncertaintyNA
}

// SubScore holds the front, back and weighted component of one category.
type SubScore struct {
	Front    float64 `json:"front"`
	Back     float64 `json:"back"`
	Weighted float64 `json:"weighted"`
}

// IsZero reports whether all components are zero.
func (s SubScore) IsZero() bool {
	return s.Front == 0 && s.Back == 0 && s.Weighted == 0
}

// SubScores groups the four fixed grading categories.
type SubScores struct {
	Centering SubScore `json:"centering"`
	Corners   SubScore `json:"corners"`
	Edges     SubScore `json:"edges"`
	Surface   SubScore `json:"surface"`
}

// AllZero reports whether no sub-score was extracted.
func (s SubScores) AllZero() bool {
	return s.Centering.IsZero() && s.Corners.IsZero() && s.Edges.IsZero() && s.Surface.IsZero()
}

// WeightedSummary describes how front and back were combined.
type WeightedSummary struct {
	FrontWeight    float64 `json:"front_weight"`
	BackWeight     float64 `json:"back_weight"`
	WeightedTotal  float64 `json:"weighted_total"`
	GradeCapReason *string `json:"grade_cap_reason"`
}

// CardInfo is the identification block of a report. Absent fields are nil.
type CardInfo struct {
	CardName     *string `json:"card_name"`
	Subject      *string `json:"subject"`
	SetName      *string `json:"set_name"`
	Year         *string `json:"year"`
	Manufacturer *string `json:"manufacturer"`
	CardNumber   *string `json:"card_number"`
	Category     *string `json:"category"`
	Subset       *string `json:"subset"`
	SerialNumber *string `json:"serial_number"`
	RookieCard   bool    `json:"rookie_card"`
	Autographed  bool    `json:"autographed"`
	Memorabilia  bool    `json:"memorabilia"`
	RarityTier   *string `json:"rarity_tier"`
}

// CenteringRatios are border ratios such as "55/45" per side and axis.
type CenteringRatios struct {
	FrontLeftRight *string `json:"front_lr"`
	FrontTopBottom *string `json:"front_tb"`
	BackLeftRight  *string `json:"back_lr"`
	BackTopBottom  *string `json:"back_tb"`
}

// ValidationResult is the verdict of the result validator
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// ParseReportRequest represents a request to parse a raw report
type ParseReportRequest struct {
	Report string `json:"report" validate:"required,max=200000"`
}

// ParseReportResponse carries the parsed result and its validation
type ParseReportResponse struct {
	Result     *ParsedGradingResult `json:"result"`
	Validation ValidationResult     `json:"validation"`
	Warnings   []string             `json:"warnings,omitempty"`
}
