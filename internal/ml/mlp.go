package ml

import (
	"errors"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// MLPParams configure the feed-forward network: two ReLU hidden layers and
// a sigmoid output, trained with mini-batch SGD and momentum.
type MLPParams struct {
	HiddenLayers []int   `json:"hidden_layers" yaml:"hiddenLayers"`
	LearningRate float64 `json:"learning_rate" yaml:"learningRate"`
	Momentum     float64 `json:"momentum" yaml:"momentum"`
	Epochs       int     `json:"epochs" yaml:"epochs"`
	BatchSize    int     `json:"batch_size" yaml:"batchSize"`
	Seed         int64   `json:"seed" yaml:"seed"`
}

// DefaultMLPParams returns the production defaults (64/32 hidden units).
func DefaultMLPParams() MLPParams {
	return MLPParams{
		HiddenLayers: []int{64, 32},
		LearningRate: 0.01,
		Momentum:     0.9,
		Epochs:       200,
		BatchSize:    32,
		Seed:         42,
	}
}

// MLP is a small binary classifier network. The fitted StandardScaler is
// part of the model itself: inference always scales with the exact
// transform seen at training time.
type MLP struct {
	Params  MLPParams       `json:"params"`
	Scaler  *StandardScaler `json:"scaler"`
	Weights [][][]float64   `json:"weights"` // [layer][out][in]
	Biases  [][]float64     `json:"biases"`  // [layer][out]
	NumFea  int             `json:"num_features"`
}

// ErrNoConvergence reports a training run that diverged into NaN weights.
var ErrNoConvergence = errors.New("ml: neural network training diverged")

// TrainMLP fits the network. The scaler is fitted on the raw training rows
// and embedded in the returned model. Deterministic for a fixed seed.
func TrainMLP(x [][]float64, y []int, p MLPParams) (*MLP, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, errors.New("ml: empty or mismatched training data")
	}
	if len(p.HiddenLayers) == 0 || p.Epochs <= 0 || p.LearningRate <= 0 {
		return nil, errors.New("ml: invalid network parameters")
	}

	scaler, err := FitScaler(x)
	if err != nil {
		return nil, err
	}
	scaled, err := scaler.TransformAll(x)
	if err != nil {
		return nil, err
	}

	d := len(x[0])
	sizes := append([]int{d}, p.HiddenLayers...)
	sizes = append(sizes, 1)

	rng := rand.New(rand.NewSource(p.Seed))
	m := &MLP{Params: p, Scaler: scaler, NumFea: d}
	m.Weights = make([][][]float64, len(sizes)-1)
	m.Biases = make([][]float64, len(sizes)-1)
	velocityW := make([][][]float64, len(sizes)-1)
	velocityB := make([][]float64, len(sizes)-1)

	for l := 0; l < len(sizes)-1; l++ {
		in, out := sizes[l], sizes[l+1]
		scale := math.Sqrt(2 / float64(in)) // He init for ReLU layers
		m.Weights[l] = make([][]float64, out)
		velocityW[l] = make([][]float64, out)
		m.Biases[l] = make([]float64, out)
		velocityB[l] = make([]float64, out)
		for o := 0; o < out; o++ {
			m.Weights[l][o] = make([]float64, in)
			velocityW[l][o] = make([]float64, in)
			for i := 0; i < in; i++ {
				m.Weights[l][o][i] = rng.NormFloat64() * scale
			}
		}
	}

	batch := p.BatchSize
	if batch <= 0 || batch > len(scaled) {
		batch = len(scaled)
	}

	order := make([]int, len(scaled))
	for i := range order {
		order[i] = i
	}

	for epoch := 0; epoch < p.Epochs; epoch++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		for start := 0; start < len(order); start += batch {
			end := start + batch
			if end > len(order) {
				end = len(order)
			}
			m.sgdStep(scaled, y, order[start:end], velocityW, velocityB)
		}
	}

	// A diverged network would silently score everyone the same way.
	for _, layer := range m.Weights {
		for _, row := range layer {
			for _, w := range row {
				if math.IsNaN(w) || math.IsInf(w, 0) {
					return nil, ErrNoConvergence
				}
			}
		}
	}

	return m, nil
}

// sgdStep accumulates gradients over one mini-batch and applies a
// momentum update.
func (m *MLP) sgdStep(x [][]float64, y []int, batch []int, velW [][][]float64, velB [][]float64) {
	gradW := zerosLike(m.Weights)
	gradB := zerosLikeB(m.Biases)

	for _, idx := range batch {
		acts, preacts := m.forward(x[idx])
		out := acts[len(acts)-1][0]

		// dL/dz for sigmoid + binary cross-entropy.
		delta := []float64{out - float64(y[idx])}

		for l := len(m.Weights) - 1; l >= 0; l-- {
			prev := acts[l]
			for o := range m.Weights[l] {
				gradB[l][o] += delta[o]
				for i := range m.Weights[l][o] {
					gradW[l][o][i] += delta[o] * prev[i]
				}
			}
			if l == 0 {
				break
			}
			next := make([]float64, len(m.Weights[l][0]))
			for i := range next {
				var sum float64
				for o := range m.Weights[l] {
					sum += m.Weights[l][o][i] * delta[o]
				}
				if preacts[l-1][i] <= 0 { // ReLU gradient
					sum = 0
				}
				next[i] = sum
			}
			delta = next
		}
	}

	lr := m.Params.LearningRate / float64(len(batch))
	for l := range m.Weights {
		for o := range m.Weights[l] {
			velB[l][o] = m.Params.Momentum*velB[l][o] - lr*gradB[l][o]
			m.Biases[l][o] += velB[l][o]
			for i := range m.Weights[l][o] {
				velW[l][o][i] = m.Params.Momentum*velW[l][o][i] - lr*gradW[l][o][i]
				m.Weights[l][o][i] += velW[l][o][i]
			}
		}
	}
}

// forward runs the network on an already-scaled row, returning the
// activations of every layer (input first) and the pre-activations of
// each weight layer's output. Layer products go through gonum.
func (m *MLP) forward(row []float64) (acts [][]float64, preacts [][]float64) {
	acts = append(acts, row)
	current := row

	for l := range m.Weights {
		in := len(m.Weights[l][0])
		out := len(m.Weights[l])

		w := mat.NewDense(out, in, flatten(m.Weights[l]))
		v := mat.NewVecDense(in, current)
		var z mat.VecDense
		z.MulVec(w, v)

		pre := make([]float64, out)
		act := make([]float64, out)
		last := l == len(m.Weights)-1
		for o := 0; o < out; o++ {
			pre[o] = z.AtVec(o) + m.Biases[l][o]
			if last {
				act[o] = sigmoid(pre[o])
			} else if pre[o] > 0 {
				act[o] = pre[o]
			}
		}
		preacts = append(preacts, pre)
		acts = append(acts, act)
		current = act
	}
	return acts, preacts
}

// PredictProba scales the row with the embedded scaler and runs the
// network.
func (m *MLP) PredictProba(row []float64) ([2]float64, error) {
	if len(row) != m.NumFea {
		return [2]float64{}, dimErr(len(row), m.NumFea)
	}
	scaled, err := m.Scaler.Transform(row)
	if err != nil {
		return [2]float64{}, err
	}
	acts, _ := m.forward(scaled)
	p1 := clampProb(acts[len(acts)-1][0])
	return [2]float64{1 - p1, p1}, nil
}

// Family reports the network family, which routes explanations through
// the model-agnostic explainer.
func (m *MLP) Family() Family { return FamilyNeural }

func zerosLike(w [][][]float64) [][][]float64 {
	out := make([][][]float64, len(w))
	for l := range w {
		out[l] = make([][]float64, len(w[l]))
		for o := range w[l] {
			out[l][o] = make([]float64, len(w[l][o]))
		}
	}
	return out
}

func zerosLikeB(b [][]float64) [][]float64 {
	out := make([][]float64, len(b))
	for l := range b {
		out[l] = make([]float64, len(b[l]))
	}
	return out
}

func flatten(w [][]float64) []float64 {
	out := make([]float64, 0, len(w)*len(w[0]))
	for _, row := range w {
		out = append(out, row...)
	}
	return out
}
