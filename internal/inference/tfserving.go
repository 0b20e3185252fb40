package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"patternscope/pkg/model"
)

// TFServingClassifier calls a TensorFlow Serving REST predict endpoint
type TFServingClassifier struct {
	endpoint string
	name     string
	client   *http.Client
}

// NewTFServingClassifier creates a client for {endpoint}/v1/models/{name}:predict
func NewTFServingClassifier(endpoint, name string, client *http.Client) *TFServingClassifier {
	return &TFServingClassifier{
		endpoint: strings.TrimRight(endpoint, "/"),
		name:     name,
		client:   client,
	}
}

type predictRequest struct {
	Instances [][][]float64 `json:"instances"`
}

type predictResponse struct {
	Predictions []json.RawMessage `json:"predictions"`
	Error       string            `json:"error"`
}

// Predict sends the window as a single instance
func (c *TFServingClassifier) Predict(ctx context.Context, w model.Window) ([]float64, error) {
	body, err := json.Marshal(predictRequest{Instances: [][][]float64{w.Tensor()}})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/models/%s:predict", c.endpoint, c.name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var out predictResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decoding response (status %d): %w", resp.StatusCode, err)
	}
	if out.Error != "" {
		return nil, errors.New(out.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	if len(out.Predictions) != 1 {
		return nil, fmt.Errorf("expected 1 prediction, got %d", len(out.Predictions))
	}

	// a sigmoid head may come back as a bare number instead of a vector
	var probs []float64
	if err := json.Unmarshal(out.Predictions[0], &probs); err != nil {
		var p float64
		if err2 := json.Unmarshal(out.Predictions[0], &p); err2 != nil {
			return nil, fmt.Errorf("malformed prediction: %w", err)
		}
		probs = []float64{p}
	}
	return probs, nil
}
