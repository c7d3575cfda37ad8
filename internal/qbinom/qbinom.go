// Package qbinom implements the binomial quantile function used by
// sgraph's QL outlier filter (spec §9): the binomial CDF comes from
// gonum's regularized incomplete beta function, and the quantile is found
// by bisection over that CDF.
package qbinom

import (
	"math"

	"gonum.org/v1/gonum/mathext"
)

// tolerance is the convergence bound on CDF(k) used while searching for
// the quantile (spec §9: "1e-6 tolerance").
const tolerance = 1e-6

// CDF returns P(X <= k) for X ~ Binomial(n, prob), via the identity
// P(X <= k) = I_{1-prob}(n-k, k+1), where I is the regularized
// incomplete beta function.
func CDF(k, n int, prob float64) float64 {
	if prob <= 0 {
		return 1
	}
	if prob >= 1 {
		if k >= n {
			return 1
		}
		return 0
	}
	if k < 0 {
		return 0
	}
	if k >= n {
		return 1
	}
	return mathext.RegIncBeta(float64(n-k), float64(k+1), 1-prob)
}

// Qbinom returns the smallest k such that P(X <= k) >= p for
// X ~ Binomial(n, prob), mirroring qbinom(p, n, prob, lower, log_p) in
// the usual quantile-function convention. If lower is false, p is first
// complemented to 1-p; if logP is true, p is first exponentiated.
func Qbinom(p float64, n int, prob float64, lower, logP bool) float64 {
	if logP {
		p = math.Exp(p)
	}
	if !lower {
		p = 1 - p
	}
	if n <= 0 {
		return 0
	}
	lo, hi := 0, n
	for lo < hi {
		mid := (lo + hi) / 2
		if CDF(mid, n, prob) >= p-tolerance {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return float64(lo)
}
