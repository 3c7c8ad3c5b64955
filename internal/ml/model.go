package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrShape is returned when a sequence does not fit the model.
	ErrShape = errors.New("sequence shape mismatch")
	// ErrNonFinite is returned when a loss, gradient or prediction is NaN or Inf.
	ErrNonFinite = errors.New("non-finite value")
	// ErrConfig is returned for invalid architecture hyperparameters.
	ErrConfig = errors.New("invalid model config")
)

// Config holds the architecture hyperparameters of a Model.
type Config struct {
	InputSize  int `json:"input_size"`
	HiddenSize int `json:"hidden_size"`
	NumLayers  int `json:"num_layers"`
}

// DefaultConfig is the two channel, four unit, single layer network.
func DefaultConfig() Config {
	return Config{
		InputSize:  2,
		HiddenSize: 4,
		NumLayers:  1,
	}
}

func (c Config) validate() error {
	if c.InputSize < 1 {
		return fmt.Errorf("%w: input size %d", ErrConfig, c.InputSize)
	}
	if c.HiddenSize < 1 {
		return fmt.Errorf("%w: hidden size %d", ErrConfig, c.HiddenSize)
	}
	if c.NumLayers < 1 {
		return fmt.Errorf("%w: layer count %d", ErrConfig, c.NumLayers)
	}
	return nil
}

// Param is a named weight matrix together with its gradient buffer.
type Param struct {
	Name  string
	Value *mat.Dense
	Grad  *mat.Dense
}

func newParam(name string, rows, cols int) *Param {
	return &Param{
		Name:  name,
		Value: mat.NewDense(rows, cols, nil),
		Grad:  mat.NewDense(rows, cols, nil),
	}
}

type rnnLayer struct {
	wIH *Param // hidden x input
	wHH *Param // hidden x hidden
	bIH *Param // hidden x 1
	bHH *Param // hidden x 1
}

// Model is a many-to-one Elman network with ReLU recurrence:
//
//	h_t = relu(W_ih x_t + b_ih + W_hh h_{t-1} + b_hh)
//	y   = W_fc h_T + b_fc
//
// Layers are stacked, each consuming the hidden states of the one below.
// Hidden state starts at zero on every call, so Forward is a pure function
// of the parameters and the input.
type Model struct {
	cfg    Config
	layers []rnnLayer
	fcW    *Param // 1 x hidden
	fcB    *Param // 1 x 1
	params []*Param
}

// NewModel builds a model with every weight and bias drawn uniformly from
// [-1/sqrt(hidden), 1/sqrt(hidden)].
func NewModel(cfg Config, rnd *rand.Rand) (*Model, error) {
	m, err := newModel(cfg)
	if err != nil {
		return nil, err
	}
	k := 1 / math.Sqrt(float64(cfg.HiddenSize))
	for _, p := range m.params {
		initUniform(rnd, p.Value.RawMatrix().Data, k)
	}
	return m, nil
}

func newModel(cfg Config) (*Model, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	m := &Model{cfg: cfg}
	in := cfg.InputSize
	for l := 0; l < cfg.NumLayers; l++ {
		layer := rnnLayer{
			wIH: newParam(fmt.Sprintf("rnn.weight_ih_l%d", l), cfg.HiddenSize, in),
			wHH: newParam(fmt.Sprintf("rnn.weight_hh_l%d", l), cfg.HiddenSize, cfg.HiddenSize),
			bIH: newParam(fmt.Sprintf("rnn.bias_ih_l%d", l), cfg.HiddenSize, 1),
			bHH: newParam(fmt.Sprintf("rnn.bias_hh_l%d", l), cfg.HiddenSize, 1),
		}
		m.layers = append(m.layers, layer)
		m.params = append(m.params, layer.wIH, layer.wHH, layer.bIH, layer.bHH)
		in = cfg.HiddenSize
	}
	m.fcW = newParam("fc.weight", 1, cfg.HiddenSize)
	m.fcB = newParam("fc.bias", 1, 1)
	m.params = append(m.params, m.fcW, m.fcB)
	return m, nil
}

func initUniform(rnd *rand.Rand, data []float64, k float64) {
	for i := range data {
		data[i] = (2*rnd.Float64() - 1) * k
	}
}

// Config returns the architecture of the model.
func (m *Model) Config() Config {
	return m.cfg
}

// Params returns the trainable parameters in a fixed order.
func (m *Model) Params() []*Param {
	return m.params
}

// ZeroGrad clears every gradient buffer.
func (m *Model) ZeroGrad() {
	for _, p := range m.params {
		p.Grad.Zero()
	}
}

// trace keeps what the backward pass needs from a forward pass.
type trace struct {
	inputs [][]*mat.VecDense // [layer][t] input fed to the layer
	pre    [][]*mat.VecDense // [layer][t] pre-activation
	hidden [][]*mat.VecDense // [layer][t] hidden state after ReLU
}

// Forward runs one sequence of shape (T, InputSize) and returns the scalar
// prediction read from the last time step.
func (m *Model) Forward(steps [][]float64) (float64, error) {
	y, _, err := m.forward(steps)
	return y, err
}

// Predict implements Predictor.
func (m *Model) Predict(steps [][]float64) (float64, error) {
	return m.Forward(steps)
}

func (m *Model) forward(steps [][]float64) (float64, *trace, error) {
	if len(steps) == 0 {
		return 0, nil, fmt.Errorf("%w: empty sequence", ErrShape)
	}

	in := make([]*mat.VecDense, len(steps))
	for t, s := range steps {
		if len(s) != m.cfg.InputSize {
			return 0, nil, fmt.Errorf("%w: step %d has %d channels, want %d", ErrShape, t, len(s), m.cfg.InputSize)
		}
		in[t] = mat.NewVecDense(len(s), append([]float64(nil), s...))
	}

	hs := m.cfg.HiddenSize
	tr := &trace{}
	for _, l := range m.layers {
		pres := make([]*mat.VecDense, len(in))
		outs := make([]*mat.VecDense, len(in))
		h := mat.NewVecDense(hs, nil)

		for t := range in {
			a := mat.NewVecDense(hs, nil)
			a.MulVec(l.wIH.Value, in[t])
			rec := mat.NewVecDense(hs, nil)
			rec.MulVec(l.wHH.Value, h)
			a.AddVec(a, rec)
			a.AddVec(a, l.bIH.Value.ColView(0))
			a.AddVec(a, l.bHH.Value.ColView(0))

			next := mat.NewVecDense(hs, nil)
			for i := 0; i < hs; i++ {
				next.SetVec(i, relu(a.AtVec(i)))
			}
			pres[t] = a
			outs[t] = next
			h = next
		}

		tr.inputs = append(tr.inputs, in)
		tr.pre = append(tr.pre, pres)
		tr.hidden = append(tr.hidden, outs)
		in = outs
	}

	y := mat.Dot(m.fcW.Value.RowView(0), in[len(in)-1]) + m.fcB.Value.At(0, 0)
	return y, tr, nil
}

// backward accumulates gradients of a loss with dLoss/dy = dy through the
// whole sequence (backpropagation through time).
func (m *Model) backward(tr *trace, dy float64) {
	hs := m.cfg.HiddenSize
	top := len(m.layers) - 1
	T := len(tr.hidden[top])
	last := tr.hidden[top][T-1]

	for j := 0; j < hs; j++ {
		m.fcW.Grad.Set(0, j, m.fcW.Grad.At(0, j)+dy*last.AtVec(j))
	}
	m.fcB.Grad.Set(0, 0, m.fcB.Grad.At(0, 0)+dy)

	// dOut[t] is the gradient reaching layer output h_t from above; only
	// the last step of the top layer feeds the head.
	dOut := make([]*mat.VecDense, T)
	dh := mat.NewVecDense(hs, nil)
	for j := 0; j < hs; j++ {
		dh.SetVec(j, dy*m.fcW.Value.At(0, j))
	}
	dOut[T-1] = dh

	for li := top; li >= 0; li-- {
		l := m.layers[li]
		inSize := tr.inputs[li][0].Len()
		dIn := make([]*mat.VecDense, T)
		carry := mat.NewVecDense(hs, nil)

		for t := T - 1; t >= 0; t-- {
			da := mat.NewVecDense(hs, nil)
			for i := 0; i < hs; i++ {
				g := carry.AtVec(i)
				if dOut[t] != nil {
					g += dOut[t].AtVec(i)
				}
				if tr.pre[li][t].AtVec(i) > 0 {
					da.SetVec(i, g)
				}
			}

			l.wIH.Grad.RankOne(l.wIH.Grad, 1, da, tr.inputs[li][t])
			if t > 0 {
				l.wHH.Grad.RankOne(l.wHH.Grad, 1, da, tr.hidden[li][t-1])
			}
			for i := 0; i < hs; i++ {
				g := da.AtVec(i)
				l.bIH.Grad.Set(i, 0, l.bIH.Grad.At(i, 0)+g)
				l.bHH.Grad.Set(i, 0, l.bHH.Grad.At(i, 0)+g)
			}

			carry = mat.NewVecDense(hs, nil)
			carry.MulVec(l.wHH.Value.T(), da)

			if li > 0 {
				d := mat.NewVecDense(inSize, nil)
				d.MulVec(l.wIH.Value.T(), da)
				dIn[t] = d
			}
		}
		dOut = dIn
	}
}

// lossAndGrad runs forward and backward for one example under squared
// error and returns the loss. Gradients are accumulated, not reset.
func (m *Model) lossAndGrad(steps [][]float64, target float64) (float64, error) {
	y, tr, err := m.forward(steps)
	if err != nil {
		return 0, err
	}
	diff := y - target
	m.backward(tr, 2*diff)
	return diff * diff, nil
}

// ForwardBatch runs a zero padded batch. Every batch[i] has the same number
// of steps; lengths[i] is the number of real steps in batch[i]. Padded
// steps leave the hidden state untouched, so each output matches Forward on
// the unpadded sequence.
func (m *Model) ForwardBatch(batch [][][]float64, lengths []int) ([]float64, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	if len(lengths) != len(batch) {
		return nil, fmt.Errorf("%w: %d sequences but %d lengths", ErrShape, len(batch), len(lengths))
	}
	T := len(batch[0])
	for b, seq := range batch {
		if len(seq) != T {
			return nil, fmt.Errorf("%w: sequence %d has %d steps, batch has %d", ErrShape, b, len(seq), T)
		}
		if lengths[b] < 1 || lengths[b] > T {
			return nil, fmt.Errorf("%w: sequence %d length %d outside [1, %d]", ErrShape, b, lengths[b], T)
		}
	}

	B := len(batch)
	in := make([]*mat.Dense, T)
	for t := 0; t < T; t++ {
		x := mat.NewDense(B, m.cfg.InputSize, nil)
		for b := range batch {
			if len(batch[b][t]) != m.cfg.InputSize {
				return nil, fmt.Errorf("%w: sequence %d step %d has %d channels, want %d", ErrShape, b, t, len(batch[b][t]), m.cfg.InputSize)
			}
			x.SetRow(b, batch[b][t])
		}
		in[t] = x
	}

	hs := m.cfg.HiddenSize
	for _, l := range m.layers {
		h := mat.NewDense(B, hs, nil)
		outs := make([]*mat.Dense, T)
		for t := 0; t < T; t++ {
			var a, rec mat.Dense
			a.Mul(in[t], l.wIH.Value.T())
			rec.Mul(h, l.wHH.Value.T())
			a.Add(&a, &rec)

			next := mat.NewDense(B, hs, nil)
			for b := 0; b < B; b++ {
				for i := 0; i < hs; i++ {
					if t < lengths[b] {
						next.Set(b, i, relu(a.At(b, i)+l.bIH.Value.At(i, 0)+l.bHH.Value.At(i, 0)))
					} else {
						next.Set(b, i, h.At(b, i))
					}
				}
			}
			outs[t] = next
			h = next
		}
		in = outs
	}

	final := in[T-1]
	out := make([]float64, B)
	for b := 0; b < B; b++ {
		out[b] = mat.Dot(final.RowView(b), m.fcW.Value.RowView(0)) + m.fcB.Value.At(0, 0)
	}
	return out, nil
}

// PadBatch zero pads sequences to the longest one and returns the padded
// batch with the real lengths.
func PadBatch(seqs [][][]float64, width int) ([][][]float64, []int) {
	maxLen := 0
	for _, s := range seqs {
		if len(s) > maxLen {
			maxLen = len(s)
		}
	}
	batch := make([][][]float64, len(seqs))
	lengths := make([]int, len(seqs))
	for i, s := range seqs {
		lengths[i] = len(s)
		padded := make([][]float64, maxLen)
		copy(padded, s)
		for t := len(s); t < maxLen; t++ {
			padded[t] = make([]float64, width)
		}
		batch[i] = padded
	}
	return batch, lengths
}

func relu(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

func finiteGrads(params []*Param) bool {
	for _, p := range params {
		for _, v := range p.Grad.RawMatrix().Data {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
