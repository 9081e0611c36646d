package grading

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/slabscan/api/internal/model"
)

const (
	DefaultFrontWeight = 0.55
	DefaultBackWeight  = 0.45
	defaultUncertainty = "±0.5"
)

var (
	headingRe = regexp.MustCompile(`(?m)^[ \t]*(?:#{1,6}[ \t]+\S|\*\*[^*\n:]+\*\*[ \t]*:?[ \t]*$)`)

	notGradableRe = regexp.MustCompile(`(?im)^[ \t]*(?:[-*•][ \t]+)?\**[ \t]*(?:(?:decimal|whole(?:[ \t]+number)?|final|overall)[ \t]+)?grade[ \t]*\**[ \t]*[:=][ \t]*\**[ \t]*N/?A\b\**[ \t]*(.*)$`)
	naReasonRe    = regexp.MustCompile(`(?im)^[ \t]*(?:[-*][ \t]+)?\**[ \t]*(?:ungradeable[ \t]+|not[ \t]+gradable[ \t]+)?reason[ \t]*\**[ \t]*:[ \t]*\**[ \t]*(.+?)[ \t]*\**[ \t]*$`)

	decimalGradeRe = regexp.MustCompile(`(?i)decimal[ \t]+grade[ \t]*\**[ \t]*[:=][ \t]*\**[ \t]*(\d{1,2}(?:\.\d+)?)`)
	finalGradeRe   = regexp.MustCompile(`(?i)(?:final|overall)[ \t]+grade[ \t]*\**[ \t]*[:=][ \t]*\**[ \t]*(\d{1,2}(?:\.\d+)?)`)
	wholeGradeRe   = regexp.MustCompile(`(?i)whole[ \t]+(?:number[ \t]+)?grade[ \t]*\**[ \t]*[:=][ \t]*\**[ \t]*(\d{1,2})\b`)
	uncertaintyRe  = regexp.MustCompile(`(?i)uncertainty[ \t]*\**[ \t]*[:=][ \t]*\**[ \t]*((?:±|\+/-|\+-|-|\+)?[ \t]*\d+(?:\.\d+)?|N/?A\b)`)

	subScoresStartRe = regexp.MustCompile(`(?im)^.*\bsub[- \t]?scores?\b.*$`)
	cardInfoStartRe  = regexp.MustCompile(`(?im)^.*\bcard[ \t]+info(?:rmation)?\b.*$`)
	frontHeaderRe    = sideHeader("front")
	backHeaderRe     = sideHeader("back")

	frontWeightRe   = regexp.MustCompile(`(?i)front[ \t]+weight(?:ing)?[ \t]*\**[ \t]*[:=][ \t]*\**[ \t]*(\d*\.?\d+[ \t]*%?)`)
	backWeightRe    = regexp.MustCompile(`(?i)back[ \t]+weight(?:ing)?[ \t]*\**[ \t]*[:=][ \t]*\**[ \t]*(\d*\.?\d+[ \t]*%?)`)
	weightedTotalRe = regexp.MustCompile(`(?i)weighted[ \t]+(?:total|grade|score)[ \t]*\**[ \t]*[:=][ \t]*\**[ \t]*(\d{1,2}(?:\.\d+)?)`)
	capReasonRe     = regexp.MustCompile(`(?im)\b(?:grade[ \t]+)?cap(?:ping)?[ \t]+reason[ \t]*\**[ \t]*:[ \t]*\**[ \t]*(.*?)[ \t]*\**[ \t]*$`)

	leftRightRe = regexp.MustCompile(`(?i)(?:left[ \t]*[/-]?[ \t]*right|\bL[ \t]*/[ \t]*R\b)[^\d\n]{0,20}(\d{1,3}(?:\.\d+)?[ \t]*/[ \t]*\d{1,3}(?:\.\d+)?)`)
	topBottomRe = regexp.MustCompile(`(?i)(?:top[ \t]*[/-]?[ \t]*bottom|\bT[ \t]*/[ \t]*B\b)[^\d\n]{0,20}(\d{1,3}(?:\.\d+)?[ \t]*/[ \t]*\d{1,3}(?:\.\d+)?)`)

	affirmativeRe = regexp.MustCompile(`(?i)\b(?:yes|true|confirmed)\b`)
)

var (
	decimalGradeRules = []rule[float64]{floatRule(decimalGradeRe), floatRule(finalGradeRe)}
	wholeGradeRules   = []rule[float64]{floatRule(wholeGradeRe)}
)

type subScoreCategory struct {
	name  string
	rules []rule[model.SubScore]
}

var subScoreCategories = []subScoreCategory{
	newSubScoreCategory("centering"),
	newSubScoreCategory("corners"),
	newSubScoreCategory("edges"),
	newSubScoreCategory("surface"),
}

// newSubScoreCategory builds the strict table-row rule followed by the loose prose rule.
func newSubScoreCategory(name string) subScoreCategory {
	num := `(\d+(?:\.\d+)?)`
	strict := regexp.MustCompile(`(?im)^[ \t]*\|?[ \t]*\**` + name + `\**[ \t]*\|[ \t]*` + num +
		`[ \t]*\|[ \t]*` + num + `[ \t]*\|[ \t]*` + num)
	loose := regexp.MustCompile(`(?im)^[^\n]*?\b` + name + `\b[^\d\n]*` + num + `[^\d\n]+` + num + `[^\d\n]+` + num)
	return subScoreCategory{
		name:  name,
		rules: []rule[model.SubScore]{subScoreRule(strict), subScoreRule(loose)},
	}
}

type cardField struct {
	name  string
	rules []rule[string]
}

var (
	cardNameRules     = []rule[string]{labelRule(`card[ \t]+name`), labelRule(`name`)}
	subjectRules      = []rule[string]{labelRule(`player[ \t]*/[ \t]*(?:subject|character)`), labelRule(`player`, `subject`, `character`)}
	setNameRules      = []rule[string]{labelRule(`set[ \t]+name`), labelRule(`set`)}
	yearRules         = []rule[string]{labelRule(`year`)}
	manufacturerRules = []rule[string]{labelRule(`manufacturer`), labelRule(`brand`)}
	cardNumberRules   = []rule[string]{labelRule(`card[ \t]+(?:number|#)`), labelRule(`number`)}
	categoryRules     = []rule[string]{labelRule(`sport[ \t]*/[ \t]*category`), labelRule(`category`, `sport`, `game`)}
	subsetRules       = []rule[string]{labelRule(`subset[ \t]*/[ \t]*parallel`), labelRule(`subset`, `parallel`)}
	serialRules       = []rule[string]{labelRule(`serial[ \t]+number(?:ed)?`), labelRule(`serial`)}
	rookieRules       = []rule[string]{labelRule(`rookie[ \t]+card`), labelRule(`rookie`)}
	autographRules    = []rule[string]{labelRule(`autograph(?:ed)?`), labelRule(`auto`)}
	memorabiliaRules  = []rule[string]{labelRule(`memorabilia`), labelRule(`relic`, `patch`)}
	rarityRules       = []rule[string]{labelRule(`rarity[ \t]+tier`), labelRule(`rarity`)}
)

func sideHeader(side string) *regexp.Regexp {
	return regexp.MustCompile(`(?im)^[ \t]*(?:#{1,6}[ \t]*)?\**[ \t]*` + side +
		`(?:[ \t]+(?:image|side|of[ \t]+card))?(?:[ \t]+(?:analysis|evaluation|assessment))?[ \t]*\**[ \t]*:?[ \t]*\**[ \t]*$`)
}

// ParseReport converts a free-text grading report into a structured result.
// Sections that cannot be extracted degrade to zero or nil values and are
// reported as warnings; the primary grade is the only load-bearing field.
func ParseReport(raw string) (*model.ParsedGradingResult, []string) {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	var warnings []string

	result := &model.ParsedGradingResult{
		RawText:         raw,
		CardInfo:        extractCardInfo(text, &warnings),
		CenteringRatios: extractCentering(text),
	}

	if reason, ok := detectNotGradable(text); ok {
		result.GradeUncertainty = model.UncertaintyNA
		result.WeightedSummary = model.WeightedSummary{
			FrontWeight:    DefaultFrontWeight,
			BackWeight:     DefaultBackWeight,
			GradeCapReason: reason,
		}
		return result, warnings
	}

	extractPrimaryGrade(text, result, &warnings)
	result.SubScores = extractSubScores(text, &warnings)
	result.WeightedSummary = extractWeightedSummary(text)

	return result, warnings
}

// detectNotGradable looks for an explicit N/A on the primary grade line and the
// reason next to it. N/A on other graded attributes (autograph, sub-grades) does not count.
func detectNotGradable(text string) (*string, bool) {
	m := notGradableRe.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	reason := strings.Trim(m[1], " \t*-–—:()")
	if reason == "" {
		if r, ok := captureRule(naReasonRe)(text); ok {
			reason = r
		}
	}
	return normalizeNone(reason), true
}

func extractPrimaryGrade(text string, result *model.ParsedGradingResult, warnings *[]string) {
	if decimal, ok := firstMatch(text, decimalGradeRules...); ok {
		// out-of-range values are kept as reported so validation rejects them
		if decimal >= MinGrade && decimal <= MaxGrade {
			decimal = Quantize(decimal)
		}
		result.DecimalGrade = &decimal
	} else {
		*warnings = append(*warnings, "decimal grade not found")
	}

	if whole, ok := firstMatch(text, wholeGradeRules...); ok {
		w := int(whole)
		result.WholeGrade = &w
	} else if result.DecimalGrade != nil {
		w := int(math.Round(*result.DecimalGrade))
		result.WholeGrade = &w
	}

	result.GradeUncertainty = defaultUncertainty
	if u, ok := captureRule(uncertaintyRe)(text); ok {
		result.GradeUncertainty = normalizeUncertainty(u)
	}
}

func normalizeUncertainty(s string) string {
	s = strings.Join(strings.Fields(s), "")
	upper := strings.ToUpper(s)
	if upper == "N/A" || upper == "NA" {
		return model.UncertaintyNA
	}
	switch {
	case strings.HasPrefix(s, "+/-"):
		s = "±" + s[3:]
	case strings.HasPrefix(s, "+-"):
		s = "±" + s[2:]
	case strings.HasPrefix(s, "±"), strings.HasPrefix(s, "+"), strings.HasPrefix(s, "-"):
	default:
		s = "±" + s
	}
	return s
}

func extractSubScores(text string, warnings *[]string) model.SubScores {
	var scores model.SubScores

	body, ok := headedSection(text, subScoresStartRe)
	if !ok {
		*warnings = append(*warnings, "sub-scores section not found")
		return scores
	}

	targets := map[string]*model.SubScore{
		"centering": &scores.Centering,
		"corners":   &scores.Corners,
		"edges":     &scores.Edges,
		"surface":   &scores.Surface,
	}
	for _, cat := range subScoreCategories {
		score, ok := firstMatch(body, cat.rules...)
		if !ok {
			*warnings = append(*warnings, fmt.Sprintf("sub-score %q not found", cat.name))
			continue
		}
		*targets[cat.name] = score
	}
	return scores
}

func extractWeightedSummary(text string) model.WeightedSummary {
	summary := model.WeightedSummary{
		FrontWeight: DefaultFrontWeight,
		BackWeight:  DefaultBackWeight,
	}

	front, hasFront := weightRule(frontWeightRe)(text)
	back, hasBack := weightRule(backWeightRe)(text)
	switch {
	case hasFront && hasBack:
		summary.FrontWeight, summary.BackWeight = front, back
	case hasFront:
		summary.FrontWeight, summary.BackWeight = front, roundWeight(1-front)
	case hasBack:
		summary.FrontWeight, summary.BackWeight = roundWeight(1-back), back
	}

	if total, ok := floatRule(weightedTotalRe)(text); ok {
		summary.WeightedTotal = total
	}
	if reason, ok := captureRule(capReasonRe)(text); ok {
		summary.GradeCapReason = normalizeNone(reason)
	}
	return summary
}

// weightRule reads a weighting fraction, accepting "0.55", "55%" and "55".
func weightRule(re *regexp.Regexp) rule[float64] {
	capture := captureRule(re)
	return func(text string) (float64, bool) {
		s, ok := capture(text)
		if !ok {
			return 0, false
		}
		percent := strings.HasSuffix(s, "%")
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, "%")), 64)
		if err != nil {
			return 0, false
		}
		if percent || f > 1 {
			f /= 100
		}
		if f < 0 || f > 1 {
			return 0, false
		}
		return roundWeight(f), true
	}
}

func roundWeight(f float64) float64 {
	return math.Round(f*1000) / 1000
}

func extractCardInfo(text string, warnings *[]string) model.CardInfo {
	body, ok := headedSection(text, cardInfoStartRe)
	if !ok {
		*warnings = append(*warnings, "card info section not found, matching whole report")
		body = text
	}

	field := func(rules []rule[string]) *string {
		v, ok := firstMatch(body, rules...)
		if !ok {
			return nil
		}
		return normalizeField(v)
	}
	flag := func(rules []rule[string]) bool {
		v := field(rules)
		return v != nil && affirmativeRe.MatchString(*v)
	}

	return model.CardInfo{
		CardName:     field(cardNameRules),
		Subject:      field(subjectRules),
		SetName:      field(setNameRules),
		Year:         field(yearRules),
		Manufacturer: field(manufacturerRules),
		CardNumber:   field(cardNumberRules),
		Category:     field(categoryRules),
		Subset:       field(subsetRules),
		SerialNumber: field(serialRules),
		RookieCard:   flag(rookieRules),
		Autographed:  flag(autographRules),
		Memorabilia:  flag(memorabiliaRules),
		RarityTier:   field(rarityRules),
	}
}

// normalizeField maps the placeholders the model emits for missing values to nil.
func normalizeField(s string) *string {
	s = strings.TrimSpace(strings.Trim(strings.TrimSpace(s), `*"'`))
	switch strings.ToLower(s) {
	case "", "n/a", "unknown", "-":
		return nil
	}
	return &s
}

// normalizeNone is normalizeField plus the phrases that mean "no value".
func normalizeNone(s string) *string {
	v := normalizeField(s)
	if v == nil {
		return nil
	}
	switch strings.ToLower(strings.TrimRight(*v, ".")) {
	case "none", "no cap", "not applicable", "null", "no":
		return nil
	}
	return v
}

func extractCentering(text string) model.CenteringRatios {
	var ratios model.CenteringRatios

	if front, ok := section(text, frontHeaderRe, backHeaderRe); ok {
		ratios.FrontLeftRight = ratio(front, leftRightRe)
		ratios.FrontTopBottom = ratio(front, topBottomRe)
	}
	if back, ok := section(text, backHeaderRe, frontHeaderRe); ok {
		ratios.BackLeftRight = ratio(back, leftRightRe)
		ratios.BackTopBottom = ratio(back, topBottomRe)
	}
	return ratios
}

func ratio(text string, re *regexp.Regexp) *string {
	v, ok := captureRule(re)(text)
	if !ok {
		return nil
	}
	v = strings.Join(strings.Fields(v), "")
	return &v
}
