// Package scoring implements the synthetic identity scorer and the bust-out predictor.
package scoring

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Model is a trained classifier. Predict returns the positive-class probability.
type Model interface {
	Predict(features []float64) (float64, error)
}

// LogisticModel is a logistic regression exported as JSON.
type LogisticModel struct {
	Name      string    `json:"name"`
	Weights   []float64 `json:"weights"`
	Intercept float64   `json:"intercept"`
}

// LoadLogisticModel reads a model file of the form
// {"name": "...", "weights": [...], "intercept": 0.0}.
func LoadLogisticModel(path string) (*LogisticModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model %s: %w", path, err)
	}
	var m LogisticModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse model %s: %w", path, err)
	}
	if len(m.Weights) == 0 {
		return nil, fmt.Errorf("%w: model %s has no weights", domain.ErrInvalidInput, path)
	}
	return &m, nil
}

// Predict applies the logistic function to the weighted feature sum.
func (m *LogisticModel) Predict(features []float64) (float64, error) {
	if len(features) != len(m.Weights) {
		return 0, fmt.Errorf("%w: model expects %d features, got %d", domain.ErrInvalidInput, len(m.Weights), len(features))
	}
	z := m.Intercept
	for i, w := range m.Weights {
		z += w * features[i]
	}
	return 1 / (1 + math.Exp(-z)), nil
}

// predict runs a model and validates its output.
func predict(m Model, features []float64) (float64, error) {
	p, err := m.Predict(features)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, fmt.Errorf("model returned probability %v outside [0, 1]", p)
	}
	return p, nil
}
