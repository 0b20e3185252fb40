package inference

import (
	"context"

	"patternscope/internal/pattern"
	"patternscope/pkg/model"
)

// HeuristicClassifier stands in for a trained network by turning the
// labeler's verdict into a one-hot distribution over the model's labels.
type HeuristicClassifier struct {
	labeler *pattern.Labeler
	labels  []string
	binary  bool
}

// NewHeuristicClassifier creates a classifier for the given label set
func NewHeuristicClassifier(l *pattern.Labeler, labels []string, binary bool) *HeuristicClassifier {
	return &HeuristicClassifier{labeler: l, labels: labels, binary: binary}
}

// Predict labels the window's closes. A verdict outside the label set
// yields a uniform distribution.
func (c *HeuristicClassifier) Predict(_ context.Context, w model.Window) ([]float64, error) {
	res := c.labeler.Evaluate(w.Closes())
	label := res.Label

	if c.binary {
		if len(c.labels) == 2 && res.Detected(c.labels[1]) {
			return []float64{1}, nil
		}
		return []float64{0}, nil
	}

	probs := make([]float64, len(c.labels))
	for i, name := range c.labels {
		if label.Matches(name) {
			probs[i] = 1
			return probs, nil
		}
	}
	for i := range probs {
		probs[i] = 1 / float64(len(probs))
	}
	return probs, nil
}
