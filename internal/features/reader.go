package features

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Meesho/BharatMLStack/schemaflow/internal/config/enums"
	"github.com/Meesho/BharatMLStack/schemaflow/internal/schema"
	"github.com/Meesho/BharatMLStack/schemaflow/internal/tensor"
)

// Encodings archive entries: one row per example, aligned with the
// metadata file by index.
const (
	pooledTensorName = "utterance/pooled"
	tokensTensorName = "utterance/tokens"
)

// LoadDataset reads the example metadata (JSON array) and the utterance
// encodings (tensor archive) the offline encoder exported, attaches each
// example's pooled vector and token matrix, and validates every example
// against the capacities.
func LoadDataset(examplesPath, encodingsPath string, caps schema.Capacities) ([]*TurnExample, error) {
	raw, err := os.ReadFile(examplesPath)
	if err != nil {
		return nil, fmt.Errorf("read examples file %s: %w", examplesPath, err)
	}
	var examples []*TurnExample
	if err := json.Unmarshal(raw, &examples); err != nil {
		return nil, fmt.Errorf("parse examples file %s: %w", examplesPath, err)
	}
	if len(examples) == 0 {
		return nil, fmt.Errorf("examples file %s holds no examples", examplesPath)
	}

	tensors, _, err := schema.ReadTensorFile(encodingsPath)
	if err != nil {
		return nil, err
	}
	n := len(examples)
	d := caps.EmbeddingDim
	t := caps.MaxSeqLength
	pooledT, err := schema.RequireTensor(tensors, pooledTensorName, n, d)
	if err != nil {
		return nil, fmt.Errorf("encodings %s: %w", encodingsPath, err)
	}
	tokensT, err := schema.RequireTensor(tensors, tokensTensorName, n, t, d)
	if err != nil {
		return nil, fmt.Errorf("encodings %s: %w", encodingsPath, err)
	}
	pooled := tensor.MatrixFromData(n, d, pooledT.Data)
	tokens := tensor.Tensor3FromData(n, t, d, tokensT.Data)

	for i, ex := range examples {
		if err := ex.validate(i, caps); err != nil {
			return nil, fmt.Errorf("examples file %s: %w", examplesPath, err)
		}
		ex.canonicalize(caps)
		ex.Pooled = pooled.Row(i)
		ex.Tokens = tokens.Slice(i)
	}
	return examples, nil
}

// SaveDataset writes the two files LoadDataset reads. The export
// pipeline and tests use it; examples must already carry encodings.
func SaveDataset(examplesPath, encodingsPath string, precision enums.Precision,
	caps schema.Capacities, examples []*TurnExample) error {
	n := len(examples)
	if n == 0 {
		return fmt.Errorf("save dataset %s: no examples", examplesPath)
	}
	d := caps.EmbeddingDim
	t := caps.MaxSeqLength

	pooled := tensor.NewMatrix(n, d)
	tokens := tensor.NewTensor3(n, t, d)
	for i, ex := range examples {
		if len(ex.Pooled) != d {
			return fmt.Errorf("save dataset %s: example %d pooled dim %d, want %d",
				examplesPath, i, len(ex.Pooled), d)
		}
		if ex.Tokens == nil || ex.Tokens.Rows != t || ex.Tokens.Cols != d {
			return fmt.Errorf("save dataset %s: example %d token matrix shape mismatch", examplesPath, i)
		}
		copy(pooled.Row(i), ex.Pooled)
		copy(tokens.Slice(i).Data, ex.Tokens.Data)
	}

	raw, err := json.MarshalIndent(examples, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal examples %s: %w", examplesPath, err)
	}
	if err := os.WriteFile(examplesPath, raw, 0o644); err != nil {
		return fmt.Errorf("write examples file %s: %w", examplesPath, err)
	}

	return schema.WriteTensorFile(encodingsPath, precision, []schema.NamedTensor{
		{Name: pooledTensorName, Dims: []int{n, d}, Data: pooled.Data},
		{Name: tokensTensorName, Dims: []int{n, t, d}, Data: tokens.Data},
	})
}
