package ebm

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/envmon/internal/model"
)

// ErrInvalidArtifact is returned for artifacts that fail schema or
// structural validation.
var ErrInvalidArtifact = eris.New("ebm: invalid artifact")

//go:embed schema.json
var schemaJSON string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

// Artifact is the serialized form of a trained additive model.
type Artifact struct {
	Name         string            `json:"name" yaml:"name"`
	Version      string            `json:"version,omitempty" yaml:"version,omitempty"`
	FeatureNames []string          `json:"feature_names" yaml:"feature_names"`
	Classes      []string          `json:"classes,omitempty" yaml:"classes,omitempty"`
	Intercept    []float64         `json:"intercept" yaml:"intercept"`
	Terms        []Term            `json:"terms" yaml:"terms"`
	Units        map[string]string `json:"units,omitempty" yaml:"units,omitempty"`
}

// Term is the shape function for one feature. BinEdges are ascending cut
// points; Scores has one row per bin (len(BinEdges)+1) and one column per
// score dimension.
type Term struct {
	Feature  string      `json:"feature" yaml:"feature"`
	BinEdges []float64   `json:"bin_edges" yaml:"bin_edges"`
	Scores   [][]float64 `json:"scores" yaml:"scores"`
}

// Dims returns the number of score dimensions: 1 for binary models, one per
// class otherwise.
func (a *Artifact) Dims() int { return len(a.Intercept) }

// NumClasses returns the number of classes the model predicts.
func (a *Artifact) NumClasses() int {
	if a.Dims() == 1 {
		return 2
	}
	return a.Dims()
}

// DetectFormat guesses the artifact format from a file name or key.
func DetectFormat(name string) model.ArtifactFormat {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return model.ArtifactFormatYAML
	default:
		return model.ArtifactFormatJSON
	}
}

// ParseArtifact decodes and validates an artifact.
func ParseArtifact(data []byte, format model.ArtifactFormat) (*Artifact, error) {
	doc, err := decodeDocument(data, format)
	if err != nil {
		return nil, err
	}

	s, err := compiledSchema()
	if err != nil {
		return nil, err
	}
	if err := s.Validate(doc); err != nil {
		return nil, eris.Wrapf(ErrInvalidArtifact, "schema: %v", err)
	}

	// Re-encode the generic document so both formats share one decode path.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, eris.Wrap(err, "ebm: re-encode artifact")
	}
	var a Artifact
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, eris.Wrap(err, "ebm: decode artifact")
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// Validate checks the structural rules the schema cannot express.
func (a *Artifact) Validate() error {
	dims := a.Dims()
	if dims == 0 {
		return eris.Wrap(ErrInvalidArtifact, "intercept is empty")
	}
	if len(a.Classes) > 0 && len(a.Classes) != a.NumClasses() {
		return eris.Wrapf(ErrInvalidArtifact, "%d classes for %d score dimensions", len(a.Classes), dims)
	}
	if len(a.Terms) != len(a.FeatureNames) {
		return eris.Wrapf(ErrInvalidArtifact, "%d terms for %d features", len(a.Terms), len(a.FeatureNames))
	}

	seen := make(map[string]bool, len(a.Terms))
	for _, t := range a.Terms {
		if !slices.Contains(a.FeatureNames, t.Feature) {
			return eris.Wrapf(ErrInvalidArtifact, "term for unknown feature %q", t.Feature)
		}
		if seen[t.Feature] {
			return eris.Wrapf(ErrInvalidArtifact, "duplicate term for feature %q", t.Feature)
		}
		seen[t.Feature] = true

		for i := 1; i < len(t.BinEdges); i++ {
			if t.BinEdges[i] <= t.BinEdges[i-1] {
				return eris.Wrapf(ErrInvalidArtifact, "feature %q: bin edges not ascending", t.Feature)
			}
		}
		if len(t.Scores) != len(t.BinEdges)+1 {
			return eris.Wrapf(ErrInvalidArtifact, "feature %q: %d score rows for %d bin edges",
				t.Feature, len(t.Scores), len(t.BinEdges))
		}
		for i, row := range t.Scores {
			if len(row) != dims {
				return eris.Wrapf(ErrInvalidArtifact, "feature %q: bin %d has %d scores, want %d",
					t.Feature, i, len(row), dims)
			}
		}
	}
	return nil
}

func decodeDocument(data []byte, format model.ArtifactFormat) (any, error) {
	var doc any
	switch format {
	case model.ArtifactFormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, eris.Wrap(err, "ebm: parse yaml artifact")
		}
		// Normalize YAML scalars (ints) into JSON numbers for the validator.
		raw, err := json.Marshal(doc)
		if err != nil {
			return nil, eris.Wrap(err, "ebm: convert yaml artifact")
		}
		doc = nil
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, eris.Wrap(err, "ebm: convert yaml artifact")
		}
	case model.ArtifactFormatJSON, "":
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&doc); err != nil {
			return nil, eris.Wrap(err, "ebm: parse json artifact")
		}
	default:
		return nil, eris.Errorf("ebm: unsupported artifact format %q", format)
	}
	return doc, nil
}

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("artifact.json", strings.NewReader(schemaJSON)); err != nil {
			schemaErr = eris.Wrap(err, "ebm: add artifact schema")
			return
		}
		schema, schemaErr = compiler.Compile("artifact.json")
		if schemaErr != nil {
			schemaErr = eris.Wrap(schemaErr, "ebm: compile artifact schema")
		}
	})
	return schema, schemaErr
}
