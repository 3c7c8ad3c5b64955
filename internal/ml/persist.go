package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"gonum.org/v1/gonum/mat"
)

const modelFormatVersion = 1

// ErrModelFormat is returned when a model artifact cannot be decoded into
// a model.
var ErrModelFormat = errors.New("unsupported model artifact")

// Model artifact layout (JSON):
//   - version: format version, currently 1
//   - config: input_size, hidden_size, num_layers
//   - params: every parameter in Params() order with name, rows, cols and
//     row-major data
type modelFile struct {
	Version int         `json:"version"`
	Config  Config      `json:"config"`
	Params  []paramFile `json:"params"`
}

type paramFile struct {
	Name string    `json:"name"`
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

// Encode writes the model artifact to w.
func (m *Model) Encode(w io.Writer) error {
	file := modelFile{
		Version: modelFormatVersion,
		Config:  m.cfg,
		Params:  make([]paramFile, len(m.params)),
	}
	for i, p := range m.params {
		rows, cols := p.Value.Dims()
		file.Params[i] = paramFile{
			Name: p.Name,
			Rows: rows,
			Cols: cols,
			Data: append([]float64(nil), p.Value.RawMatrix().Data...),
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(file); err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	return nil
}

// Save writes the model artifact to path.
func (m *Model) Save(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create model file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return m.Encode(f)
}

// DecodeModel rebuilds a model from an artifact written by Encode.
func DecodeModel(r io.Reader) (*Model, error) {
	var file modelFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if file.Version != modelFormatVersion {
		return nil, fmt.Errorf("%w: version %d", ErrModelFormat, file.Version)
	}

	m, err := newModel(file.Config)
	if err != nil {
		return nil, err
	}

	stored := make(map[string]paramFile, len(file.Params))
	for _, p := range file.Params {
		stored[p.Name] = p
	}
	for _, p := range m.params {
		sp, ok := stored[p.Name]
		if !ok {
			return nil, fmt.Errorf("%w: missing parameter %s", ErrModelFormat, p.Name)
		}
		rows, cols := p.Value.Dims()
		if sp.Rows != rows || sp.Cols != cols || len(sp.Data) != rows*cols {
			return nil, fmt.Errorf("%w: parameter %s is %dx%d with %d values, want %dx%d",
				ErrModelFormat, p.Name, sp.Rows, sp.Cols, len(sp.Data), rows, cols)
		}
		p.Value.Copy(mat.NewDense(rows, cols, sp.Data))
	}
	if len(stored) != len(m.params) {
		return nil, fmt.Errorf("%w: %d parameters stored, model has %d", ErrModelFormat, len(stored), len(m.params))
	}
	return m, nil
}

// LoadModel reads a model artifact from path.
func LoadModel(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open model file: %w", err)
	}
	defer f.Close()

	m, err := DecodeModel(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}
