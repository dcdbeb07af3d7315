// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package calibration

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Sample is one raw reading paired with its expected engineering value
type Sample struct {
	Raw    float64
	Target float64
}

// FitReport summarises how well a straight line explains a set of samples
type FitReport struct {
	Slope     float64
	Intercept float64
	RSquared  float64
	MaxError  float64
}

func (r FitReport) String() string {
	return fmt.Sprintf("y = %.6g*x %+.6g  R²=%.5f  max|err|=%.4g", r.Slope, r.Intercept, r.RSquared, r.MaxError)
}

// Samples returns the two calibration points as samples
func (p Points) Samples() []Sample {
	return []Sample{
		{Raw: float64(p.X1), Target: float64(p.Y1)},
		{Raw: float64(p.X2), Target: float64(p.Y2)},
	}
}

// Fit computes the least-squares line through the samples
func Fit(samples []Sample) (FitReport, error) {
	if len(samples) < 2 {
		return FitReport{}, errors.New("at least two samples are required")
	}
	xs := make([]float64, len(samples))
	ys := make([]float64, len(samples))
	for i, s := range samples {
		xs[i], ys[i] = s.Raw, s.Target
	}
	if stat.Variance(xs, nil) == 0 {
		return FitReport{}, errors.New("raw readings do not vary")
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	r := FitReport{Slope: beta, Intercept: alpha, RSquared: 1}
	if stat.Variance(ys, nil) > 0 {
		r.RSquared = stat.RSquared(xs, ys, nil, alpha, beta)
	}
	for i := range xs {
		r.MaxError = math.Max(r.MaxError, math.Abs(ys[i]-(alpha+beta*xs[i])))
	}
	return r, nil
}
