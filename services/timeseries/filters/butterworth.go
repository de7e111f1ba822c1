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
	"errors"
	"fmt"
	"math"
	"math/cmplx"
)

// PassType selects the Butterworth response.
type PassType int

const (
	LowPass PassType = iota
	HighPass
)

// String returns "low_pass" or "high_pass".
func (p PassType) String() string {
	if p == HighPass {
		return "high_pass"
	}
	return "low_pass"
}

// MaxOrder bounds the filter order. Transfer-function coefficients of higher
// orders lose too much precision to be useful.
const MaxOrder = 8

// ErrUnstable is returned when a design has a pole on or outside the unit
// circle.
var ErrUnstable = errors.New("unstable filter")

// Coefficients are the numerator B and denominator A of a digital transfer
// function, highest power first, with A[0] == 1.
type Coefficients struct {
	B []float64
	A []float64
}

// Order returns the filter order.
func (c Coefficients) Order() int {
	n := len(c.A)
	if len(c.B) > n {
		n = len(c.B)
	}
	return n - 1
}

// Butterworth designs a digital Butterworth filter.
//
// wn is the cutoff as a fraction of the Nyquist frequency and must lie in
// (0, 1). The design takes the analog prototype poles, pre-warps the
// cutoff, shifts to low-pass or high-pass, then maps to the z-plane with
// the bilinear transform.
func Butterworth(order int, wn float64, pass PassType) (Coefficients, error) {
	if order < 1 || order > MaxOrder {
		return Coefficients{}, fmt.Errorf("butterworth: order %d outside [1, %d]", order, MaxOrder)
	}
	if !(wn > 0 && wn < 1) {
		return Coefficients{}, fmt.Errorf("butterworth: normalized cutoff %g outside (0, 1)", wn)
	}

	// Analog prototype: poles evenly spaced on the left half of the unit circle.
	poles := make([]complex128, order)
	for i := range poles {
		m := float64(-order + 1 + 2*i)
		poles[i] = -cmplx.Exp(complex(0, math.Pi*m/float64(2*order)))
	}

	warped := 4 * math.Tan(math.Pi*wn/2)
	var zeros []complex128
	var gain float64

	switch pass {
	case HighPass:
		prod := complex(1, 0)
		for _, p := range poles {
			prod *= -p
		}
		gain = real(1 / prod)
		for i, p := range poles {
			poles[i] = complex(warped, 0) / p
		}
		zeros = make([]complex128, order)
	default:
		for i := range poles {
			poles[i] *= complex(warped, 0)
		}
		gain = math.Pow(warped, float64(order))
	}

	// Bilinear transform with fs = 2, so 2*fs = 4.
	const fs2 = complex(4, 0)
	num, den := complex(1, 0), complex(1, 0)
	zz := make([]complex128, 0, order)
	for _, z := range zeros {
		zz = append(zz, (fs2+z)/(fs2-z))
		num *= fs2 - z
	}
	pz := make([]complex128, 0, order)
	for _, p := range poles {
		pz = append(pz, (fs2+p)/(fs2-p))
		den *= fs2 - p
	}
	for len(zz) < len(pz) {
		zz = append(zz, -1)
	}
	gain *= real(num / den)

	for _, p := range pz {
		if cmplx.Abs(p) >= 1 {
			return Coefficients{}, ErrUnstable
		}
	}

	bc, ac := poly(zz), poly(pz)
	c := Coefficients{B: make([]float64, len(bc)), A: make([]float64, len(ac))}
	for i, v := range bc {
		c.B[i] = gain * real(v)
	}
	for i, v := range ac {
		c.A[i] = real(v)
	}
	return c, nil
}

// poly expands the monic polynomial with the given roots, highest power
// first.
func poly(roots []complex128) []complex128 {
	c := []complex128{1}
	for _, r := range roots {
		next := make([]complex128, len(c)+1)
		for i, v := range c {
			next[i] += v
			next[i+1] -= v * r
		}
		c = next
	}
	return c
}
