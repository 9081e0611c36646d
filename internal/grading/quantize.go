// Package grading turns raw grading reports into structured results and
// estimates progress for in-flight grading jobs.
package grading

// gradeBucket maps every score at or above Min to Grade.
type gradeBucket struct {
	Min   float64
	Grade float64
}

// There is no 8.5 bucket: 8.0 through 8.79 collapse to 8.0.
var gradeBuckets = []gradeBucket{
	{9.6, 10.0},
	{9.3, 9.5},
	{8.8, 9.0},
	{8.0, 8.0},
	{7.0, 7.0},
	{6.0, 6.0},
	{5.0, 5.0},
	{4.0, 4.0},
	{3.0, 3.0},
	{2.0, 2.0},
}

// Quantize maps a continuous score to the nearest grade on the valid scale.
func Quantize(score float64) float64 {
	for _, b := range gradeBuckets {
		if score >= b.Min {
			return b.Grade
		}
	}
	return 1.0
}
