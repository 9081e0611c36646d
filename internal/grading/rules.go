package grading

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/slabscan/api/internal/model"
)

// rule extracts a value from text. ok is false when the rule does not apply.
type rule[T any] func(text string) (T, bool)

// firstMatch tries each rule in order and returns the first value that matches.
func firstMatch[T any](text string, rules ...rule[T]) (T, bool) {
	for _, r := range rules {
		if v, ok := r(text); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// captureRule returns the trimmed first capture group of re.
func captureRule(re *regexp.Regexp) rule[string] {
	return func(text string) (string, bool) {
		m := re.FindStringSubmatch(text)
		if m == nil || len(m) < 2 {
			return "", false
		}
		return strings.TrimSpace(m[1]), true
	}
}

// floatRule parses the first capture group of re as a number.
func floatRule(re *regexp.Regexp) rule[float64] {
	capture := captureRule(re)
	return func(text string) (float64, bool) {
		s, ok := capture(text)
		if !ok {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
}

// subScoreRule parses three numeric capture groups as front, back and weighted.
func subScoreRule(re *regexp.Regexp) rule[model.SubScore] {
	return func(text string) (model.SubScore, bool) {
		m := re.FindStringSubmatch(text)
		if len(m) < 4 {
			return model.SubScore{}, false
		}
		var vals [3]float64
		for i := range vals {
			f, err := strconv.ParseFloat(m[i+1], 64)
			if err != nil {
				return model.SubScore{}, false
			}
			vals[i] = f
		}
		return model.SubScore{Front: vals[0], Back: vals[1], Weighted: vals[2]}, true
	}
}

// labelRule matches a "Label: value" line for any of the given label patterns.
// Markdown emphasis and list bullets around the label are tolerated.
func labelRule(labels ...string) rule[string] {
	re := regexp.MustCompile(`(?im)^[ \t]*(?:[-*•][ \t]+)?\**[ \t]*(?:` + strings.Join(labels, "|") +
		`)[ \t]*\**[ \t]*:[ \t]*\**[ \t]*(.*?)[ \t]*\**[ \t]*$`)
	return captureRule(re)
}

// section returns the text after the line matched by start, up to the first
// following match of any end pattern.
func section(text string, start *regexp.Regexp, ends ...*regexp.Regexp) (string, bool) {
	loc := start.FindStringIndex(text)
	if loc == nil {
		return "", false
	}
	body := text[loc[1]:]
	cut := len(body)
	for _, end := range ends {
		if e := end.FindStringIndex(body); e != nil && e[0] < cut {
			cut = e[0]
		}
	}
	return body[:cut], true
}

// headedSection is section ending at the next heading. A heading on the first
// non-blank line titles the section and does not end it.
func headedSection(text string, start *regexp.Regexp) (string, bool) {
	loc := start.FindStringIndex(text)
	if loc == nil {
		return "", false
	}
	body := text[loc[1]:]

	from := 0
	if e := headingRe.FindStringIndex(body); e != nil && strings.TrimSpace(body[:e[0]]) == "" {
		from = len(body)
		if nl := strings.IndexByte(body[e[1]:], '\n'); nl >= 0 {
			from = e[1] + nl
		}
	}
	if e := headingRe.FindStringIndex(body[from:]); e != nil {
		return body[:from+e[0]], true
	}
	return body, true
}
