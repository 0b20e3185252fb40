package inference

import (
	"context"
	"errors"
	"fmt"
	"math"

	"patternscope/pkg/model"
)

// ErrModelUnavailable is returned for an unknown or disabled model
var ErrModelUnavailable = errors.New("model not available")

// Classifier maps one (50, 4) OHLC window to class probabilities.
// Binary models return a single probability.
type Classifier interface {
	Predict(ctx context.Context, w model.Window) ([]float64, error)
}

// InferenceError wraps a classifier failure or a malformed prediction
type InferenceError struct {
	Model string
	Err   error
}

func (e *InferenceError) Error() string {
	return "inference " + e.Model + ": " + e.Err.Error()
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

// Detection is the outcome of running a model over one window
type Detection struct {
	Model      string  `json:"model"`
	Pattern    string  `json:"pattern"`
	Confidence float64 `json:"confidence"`
}

// Model is a named classifier with its label set
type Model struct {
	Name       string
	Labels     []string
	Binary     bool
	Threshold  float64 // binary models only
	Classifier Classifier
}

// Detect runs the classifier and interprets its output
func (m *Model) Detect(ctx context.Context, w model.Window) (*Detection, error) {
	if w.Len() != model.WindowSize {
		return nil, &InferenceError{Model: m.Name, Err: fmt.Errorf("window has %d bars, want %d", w.Len(), model.WindowSize)}
	}

	probs, err := m.Classifier.Predict(ctx, w)
	if err != nil {
		return nil, &InferenceError{Model: m.Name, Err: err}
	}
	for _, p := range probs {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return nil, &InferenceError{Model: m.Name, Err: errors.New("non-finite prediction")}
		}
	}

	if m.Binary {
		if len(probs) != 1 {
			return nil, &InferenceError{Model: m.Name, Err: fmt.Errorf("binary model returned %d outputs", len(probs))}
		}
		p := probs[0]
		pattern := m.Labels[0]
		if p > m.Threshold {
			pattern = m.Labels[1]
		}
		return &Detection{Model: m.Name, Pattern: pattern, Confidence: p}, nil
	}

	if len(probs) != len(m.Labels) {
		return nil, &InferenceError{Model: m.Name, Err: fmt.Errorf("model returned %d outputs for %d labels", len(probs), len(m.Labels))}
	}
	best := 0
	for i, p := range probs {
		if p > probs[best] {
			best = i
		}
	}
	return &Detection{Model: m.Name, Pattern: m.Labels[best], Confidence: probs[best]}, nil
}

func (m *Model) validate() error {
	if m.Name == "" {
		return errors.New("model name is required")
	}
	if m.Classifier == nil {
		return fmt.Errorf("model %s: no classifier", m.Name)
	}
	if m.Binary {
		if len(m.Labels) != 2 {
			return fmt.Errorf("model %s: binary models need exactly 2 labels", m.Name)
		}
		if m.Threshold <= 0 || m.Threshold >= 1 {
			return fmt.Errorf("model %s: threshold must be in (0, 1)", m.Name)
		}
		return nil
	}
	if len(m.Labels) < 2 {
		return fmt.Errorf("model %s: need at least 2 labels", m.Name)
	}
	return nil
}
