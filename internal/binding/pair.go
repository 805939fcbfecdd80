package binding

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cwbudde/sdfdataterm/internal/field"
	"gonum.org/v1/gonum/mat"
)

// FieldPair is the on-disk form of a live / canonical field pair.
type FieldPair struct {
	Live      [][]float64 `json:"live"`
	Canonical [][]float64 `json:"canonical"`
}

// NewFieldPair copies two fields into their host representation.
func NewFieldPair(live, canonical mat.Matrix) FieldPair {
	return FieldPair{
		Live:      field.ToRows(live),
		Canonical: field.ToRows(canonical),
	}
}

// Dense converts the pair back into same-shaped dense fields.
func (p FieldPair) Dense() (live, canonical *mat.Dense, err error) {
	live, err = convert("live", p.Live)
	if err != nil {
		return nil, nil, err
	}
	canonical, err = convert("canonical", p.Canonical)
	if err != nil {
		return nil, nil, err
	}
	if err := field.SameShape(live, canonical); err != nil {
		return nil, nil, err
	}
	return live, canonical, nil
}

// LoadFieldPair reads a JSON field pair from path.
func LoadFieldPair(path string) (*FieldPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read field pair: %w", err)
	}

	var pair FieldPair
	if err := json.Unmarshal(data, &pair); err != nil {
		return nil, fmt.Errorf("failed to decode field pair: %w", err)
	}
	return &pair, nil
}

// SaveFieldPair writes a field pair as JSON, replacing path atomically.
func SaveFieldPair(path string, pair *FieldPair) error {
	data, err := json.Marshal(pair)
	if err != nil {
		return fmt.Errorf("failed to encode field pair: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write field pair: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename field pair: %w", err)
	}
	return nil
}
