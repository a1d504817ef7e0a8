// SPDX-License-Identifier: MIT

package mme

import "errors"

// ErrInvalidVariance is returned when σ²_a ≤ 0 with random effects present
// or σ²_e ≤ 0.
var ErrInvalidVariance = errors.New("mme: variance components must be positive")
