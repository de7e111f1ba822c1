// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package filters

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// PadLen is the number of samples FiltFilt extends each edge by.
func PadLen(c Coefficients) int {
	n := len(c.A)
	if len(c.B) > n {
		n = len(c.B)
	}
	return 3 * n
}

// LFilter runs x through the filter in transposed direct form II, starting
// from state zi (len(A)-1 entries, nil for zero state). Coefficients are
// normalized by A[0].
func LFilter(b, a, x, zi []float64) []float64 {
	b, a = normalize(b, a)
	n := len(a)
	y := make([]float64, len(x))
	if n == 1 {
		for i, xi := range x {
			y[i] = b[0] * xi
		}
		return y
	}

	z := make([]float64, n-1)
	copy(z, zi)
	for i, xi := range x {
		yi := b[0]*xi + z[0]
		for k := 0; k < n-2; k++ {
			z[k] = b[k+1]*xi + z[k+1] - a[k+1]*yi
		}
		z[n-2] = b[n-1]*xi - a[n-1]*yi
		y[i] = yi
	}
	return y
}

// LFilterZI returns the state of LFilter after a unit step has settled, so
// a filter started at zi*x[0] has no start-up transient.
func LFilterZI(b, a []float64) []float64 {
	b, a = normalize(b, a)
	n := len(a)
	if n < 2 {
		return nil
	}
	sa := floats.Sum(a)
	var steady float64
	if sa != 0 {
		steady = floats.Sum(b) / sa
	}
	zi := make([]float64, n-1)
	acc := 0.0
	for k := n - 1; k >= 1; k-- {
		acc += b[k] - a[k]*steady
		zi[k-1] = acc
	}
	return zi
}

// FiltFilt applies the filter forward and backward for zero phase shift.
//
// Both edges are padded with an odd extension of PadLen samples and each
// pass starts from the steady state of its first sample. ok is false, and
// no output is produced, when x is not longer than the padding or the
// result is not finite.
func FiltFilt(c Coefficients, x []float64) ([]float64, bool) {
	padlen := PadLen(c)
	if len(x) <= padlen {
		return nil, false
	}

	ext := oddExtend(x, padlen)
	zi := LFilterZI(c.B, c.A)

	y := LFilter(c.B, c.A, ext, scaled(zi, ext[0]))
	reverse(y)
	y = LFilter(c.B, c.A, y, scaled(zi, y[0]))
	reverse(y)

	out := make([]float64, len(x))
	copy(out, y[padlen:padlen+len(x)])
	for _, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, false
		}
	}
	return out, true
}

// oddExtend reflects x through its end points: 2*x[0]-x[padlen..1] before,
// 2*x[n-1]-x[n-2..n-1-padlen] after. Requires len(x) > padlen.
func oddExtend(x []float64, padlen int) []float64 {
	n := len(x)
	ext := make([]float64, 0, n+2*padlen)
	for j := 0; j < padlen; j++ {
		ext = append(ext, 2*x[0]-x[padlen-j])
	}
	ext = append(ext, x...)
	for j := 0; j < padlen; j++ {
		ext = append(ext, 2*x[n-1]-x[n-2-j])
	}
	return ext
}

func normalize(b, a []float64) ([]float64, []float64) {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	nb, na := make([]float64, n), make([]float64, n)
	copy(nb, b)
	copy(na, a)
	if na[0] != 0 && na[0] != 1 {
		a0 := na[0]
		floats.Scale(1/a0, nb)
		floats.Scale(1/a0, na)
	}
	return nb, na
}

func scaled(v []float64, s float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	floats.Scale(s, out)
	return out
}

func reverse(v []float64) {
	for i, j := 0, len(v)-1; i < j; i, j = i+1, j-1 {
		v[i], v[j] = v[j], v[i]
	}
}
