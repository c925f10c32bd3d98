package risk

import "math"

// Z95 is the one-sided 95% confidence z-score used by VaR. Named per the
// spec's requirement that the formula and its constants be exposed rather
// than buried as magic numbers.
const Z95 = 1.645

// ESMultiplier approximates expected shortfall as a fixed multiple of VaR.
// This is a documented simplification, not a true conditional expectation.
const ESMultiplier = 1.2

// ValueAtRisk computes the parametric one-sided 95% VaR for a hypothetical
// position under a log-normal return assumption: |position| * sigma * z95.
func ValueAtRisk(position, sigma float64) float64 {
	return math.Abs(position) * sigma * Z95
}

// ExpectedShortfall approximates ES as ESMultiplier * VaR.
func ExpectedShortfall(position, sigma float64) float64 {
	return ESMultiplier * ValueAtRisk(position, sigma)
}
