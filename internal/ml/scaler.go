package ml

import (
	"fmt"
)

// StandardScaler centers each feature on its mean and divides by its
// population standard deviation. Constant features keep a scale of 1 so they
// map to zero instead of NaN.
type StandardScaler struct {
	Means  []float64
	Scales []float64
}

// Fit learns per-column means and scales from X
func (s *StandardScaler) Fit(X [][]float64) error {
	cols, err := columns(X)
	if err != nil {
		return err
	}
	s.Means = make([]float64, len(cols))
	s.Scales = make([]float64, len(cols))
	for j, col := range cols {
		s.Means[j] = Mean(col)
		std := PopulationStdDev(col)
		if std == 0 {
			std = 1
		}
		s.Scales[j] = std
	}
	return nil
}

// Transform returns a scaled copy of X
func (s *StandardScaler) Transform(X [][]float64) ([][]float64, error) {
	if s.Means == nil {
		return nil, fmt.Errorf("scaler is not fitted")
	}
	out := make([][]float64, len(X))
	for i, row := range X {
		if len(row) != len(s.Means) {
			return nil, fmt.Errorf("row %d has %d features, want %d", i, len(row), len(s.Means))
		}
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = (v - s.Means[j]) / s.Scales[j]
		}
		out[i] = scaled
	}
	return out, nil
}

// FitTransform fits the scaler and transforms X in one call
func (s *StandardScaler) FitTransform(X [][]float64) ([][]float64, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// columns transposes X, checking it is a non-empty rectangular matrix
func columns(X [][]float64) ([][]float64, error) {
	if len(X) == 0 {
		return nil, fmt.Errorf("empty sample matrix")
	}
	width := len(X[0])
	if width == 0 {
		return nil, fmt.Errorf("sample matrix has no features")
	}
	cols := make([][]float64, width)
	for j := range cols {
		cols[j] = make([]float64, len(X))
	}
	for i, row := range X {
		if len(row) != width {
			return nil, fmt.Errorf("row %d has %d features, want %d", i, len(row), width)
		}
		for j, v := range row {
			cols[j][i] = v
		}
	}
	return cols, nil
}
