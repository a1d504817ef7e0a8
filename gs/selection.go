// SPDX-License-Identifier: MIT

package gs

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// SelectionIntensity returns the standardised selection differential
// i = φ(x)/p for truncation selection of the best proportion p of a normal
// population, x being the truncation point. Top 10% gives i ≈ 1.755.
func SelectionIntensity(proportion float64) (float64, error) {
	if !(proportion > 0 && proportion < 1) {
		return 0, fmt.Errorf("%w: %g", ErrInvalidProportion, proportion)
	}
	x := distuv.UnitNormal.Quantile(1 - proportion)

	return distuv.UnitNormal.Prob(x) / proportion, nil
}

// SelectionResponse is the breeder's equation R = i·r·σ_g.
func SelectionResponse(intensity, accuracy, geneticSD float64) float64 {
	return intensity * accuracy * geneticSD
}

// Response is the expected gain from one round of selection.
type Response struct {
	Proportion float64 `json:"proportion" yaml:"proportion"`
	Intensity  float64 `json:"intensity" yaml:"intensity"`
	Accuracy   float64 `json:"accuracy" yaml:"accuracy"`
	GeneticSD  float64 `json:"genetic_sd" yaml:"genetic_sd"`
	Response   float64 `json:"response" yaml:"response"`
	// Relative is Response as a percentage of the population mean; 0 when
	// the mean is 0.
	Relative float64 `json:"relative_percent" yaml:"relative_percent"`
}

// ExpectedResponse combines SelectionIntensity and SelectionResponse for a
// population with the given mean and genetic variance.
func ExpectedResponse(proportion, accuracy, varGenetic, mean float64) (*Response, error) {
	i, err := SelectionIntensity(proportion)
	if err != nil {
		return nil, err
	}
	sd := math.Sqrt(math.Max(varGenetic, 0))
	r := &Response{
		Proportion: proportion,
		Intensity:  i,
		Accuracy:   accuracy,
		GeneticSD:  sd,
		Response:   SelectionResponse(i, accuracy, sd),
	}
	if mean != 0 {
		r.Relative = 100 * r.Response / mean
	}

	return r, nil
}
