// Package scan implements the statistical model-checking scheduler: the
// Okamoto/adaptive sample-size bounds and the concurrent run-and-estimate
// loop that drives them to a verdict.
//
// An efficient statistical model checker for nondeterminism and rare events,
// Carlos E. Budde, Pedro R. D'Argenio, Arnd Hartmanns, Sean Sedwards.
// International Journal on Software Tools for Technology Transfer (2020) 22:759-780
package scan

import "math"

// OkamotoBound computes the Okamoto sample-size bound for a given
// confidence and precision.
func OkamotoBound(confidence, precision float64) float64 {
	return math.Log(2/(1-confidence)) / (2 * math.Pow(precision, 2))
}

// AdaptiveBound computes the adaptive sample-size bound for a given
// confidence, precision, and the running average of observed results.
func AdaptiveBound(avg, confidence, precision float64) float64 {
	return 4 * OkamotoBound(confidence, precision) *
		(0.25 - math.Pow(math.Abs(avg-0.5)-(2*precision/3), 2))
}

// DerivePrecision computes the precision attained by s successes and f
// failures at the given confidence, inverting the adaptive bound through its
// quadratic form and taking the larger positive root.
func DerivePrecision(s, f uint64, confidence float64) float64 {
	n := float64(s + f)
	avg := float64(s) / n
	k := 2 * math.Log(2/(1-confidence))
	a := n + (4 * k / 9)
	b := -4 * k * math.Abs(avg-0.5) / 3
	c := k * (math.Pow(avg-0.5, 2) - 0.25)
	return (-b + math.Sqrt(b*b-4*a*c)) / (2 * a)
}
