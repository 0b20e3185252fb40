package inference

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"patternscope/internal/pattern"
)

const (
	// DefaultModel serves /detect when no model is named
	DefaultModel = "head-shoulders"
	// RealModel serves /detect_real
	RealModel = "real"
)

// Backend selects how a model is evaluated
type Backend string

const (
	BackendTFServing Backend = "tfserving"
	BackendHeuristic Backend = "heuristic"
)

// Spec describes one model in configuration
type Spec struct {
	Name        string         `yaml:"name"`
	Labels      []string       `yaml:"labels"`
	Binary      bool           `yaml:"binary"`
	Threshold   float64        `yaml:"threshold"`
	Backend     Backend        `yaml:"backend"`
	Endpoint    string         `yaml:"endpoint"`     // TF Serving base URL
	ServingName string         `yaml:"serving_name"` // defaults to Name
	Scheme      pattern.Scheme `yaml:"scheme"`       // heuristic backend only
	Timeout     time.Duration  `yaml:"timeout"`
	Disabled    bool           `yaml:"disabled"`
}

// DefaultSpecs returns the three models the API exposes, all backed by the
// heuristic labeler until a model server is configured.
func DefaultSpecs() []Spec {
	return []Spec{
		{
			Name:      DefaultModel,
			Labels:    []string{"No pattern", "Head and Shoulders"},
			Binary:    true,
			Threshold: 0.5,
			Backend:   BackendHeuristic,
			Scheme:    pattern.Geometric,
		},
		{
			Name:    "multi",
			Labels:  []string{"No Pattern", "Double Bottom", "Wedge", "Head and Shoulders"},
			Backend: BackendHeuristic,
			Scheme:  pattern.Geometric,
		},
		{
			Name:    RealModel,
			Labels:  []string{"Double Bottom", "Double Top", "Rising Wedge", "Falling Wedge"},
			Backend: BackendHeuristic,
			Scheme:  pattern.Trend,
		},
	}
}

// Info summarizes a registered model
type Info struct {
	Name      string   `json:"name"`
	Labels    []string `json:"labels"`
	Binary    bool     `json:"binary"`
	Threshold float64  `json:"threshold,omitempty"`
	Backend   Backend  `json:"backend"`
	Available bool     `json:"available"`
}

// Registry holds the models loaded at startup. It is never modified after
// construction, so it can be shared between requests without locking.
type Registry struct {
	models map[string]*Model
	infos  []Info
}

// NewRegistry builds a registry from specs
func NewRegistry(specs []Spec, thresholds pattern.Thresholds) (*Registry, error) {
	r := &Registry{models: make(map[string]*Model)}

	for _, spec := range specs {
		info := Info{
			Name:      spec.Name,
			Labels:    spec.Labels,
			Binary:    spec.Binary,
			Threshold: spec.Threshold,
			Backend:   spec.Backend,
			Available: !spec.Disabled,
		}
		for _, existing := range r.infos {
			if existing.Name == spec.Name {
				return nil, fmt.Errorf("duplicate model %q", spec.Name)
			}
		}
		r.infos = append(r.infos, info)
		if spec.Disabled {
			continue
		}

		m := &Model{
			Name:      spec.Name,
			Labels:    spec.Labels,
			Binary:    spec.Binary,
			Threshold: spec.Threshold,
		}
		switch spec.Backend {
		case BackendTFServing:
			if spec.Endpoint == "" {
				return nil, fmt.Errorf("model %s: tfserving backend needs an endpoint", spec.Name)
			}
			name := spec.ServingName
			if name == "" {
				name = spec.Name
			}
			timeout := spec.Timeout
			if timeout <= 0 {
				timeout = 10 * time.Second
			}
			m.Classifier = NewTFServingClassifier(spec.Endpoint, name, &http.Client{Timeout: timeout})
		case BackendHeuristic, "":
			m.Classifier = NewHeuristicClassifier(pattern.NewLabeler(spec.Scheme, thresholds), spec.Labels, spec.Binary)
		default:
			return nil, fmt.Errorf("model %s: unknown backend %q", spec.Name, spec.Backend)
		}
		if err := m.validate(); err != nil {
			return nil, err
		}
		r.models[spec.Name] = m
	}

	sort.Slice(r.infos, func(i, j int) bool {
		return r.infos[i].Name < r.infos[j].Name
	})
	return r, nil
}

// Get returns a loaded model
func (r *Registry) Get(name string) (*Model, error) {
	m, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModelUnavailable, name)
	}
	return m, nil
}

// List describes every configured model, including disabled ones
func (r *Registry) List() []Info {
	out := make([]Info, len(r.infos))
	copy(out, r.infos)
	return out
}
