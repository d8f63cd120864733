package ml

import (
	"errors"
	"math"
)

// StandardScaler standardizes features to zero mean and unit variance.
// The neural network is trained on scaled inputs, so the fitted scaler is
// embedded inside its artifact: the pair is loaded and used together and
// cannot drift apart.
type StandardScaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// FitScaler computes per-column mean and standard deviation.
func FitScaler(x [][]float64) (*StandardScaler, error) {
	if len(x) == 0 {
		return nil, errors.New("ml: cannot fit scaler on empty data")
	}

	n := len(x)
	d := len(x[0])
	s := &StandardScaler{Mean: make([]float64, d), Std: make([]float64, d)}

	for j := 0; j < d; j++ {
		var sum float64
		for i := 0; i < n; i++ {
			sum += x[i][j]
		}
		s.Mean[j] = sum / float64(n)

		var sq float64
		for i := 0; i < n; i++ {
			diff := x[i][j] - s.Mean[j]
			sq += diff * diff
		}
		s.Std[j] = math.Sqrt(sq / float64(n))
		if s.Std[j] < 1e-12 {
			s.Std[j] = 1 // constant column, leave values centered
		}
	}
	return s, nil
}

// Transform returns the scaled copy of a row.
func (s *StandardScaler) Transform(row []float64) ([]float64, error) {
	if len(row) != len(s.Mean) {
		return nil, dimErr(len(row), len(s.Mean))
	}
	out := make([]float64, len(row))
	for i, v := range row {
		out[i] = (v - s.Mean[i]) / s.Std[i]
	}
	return out, nil
}

// TransformAll scales a whole matrix.
func (s *StandardScaler) TransformAll(x [][]float64) ([][]float64, error) {
	out := make([][]float64, len(x))
	for i, row := range x {
		scaled, err := s.Transform(row)
		if err != nil {
			return nil, err
		}
		out[i] = scaled
	}
	return out, nil
}
