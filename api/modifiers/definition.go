package modifiers

import (
	_ "embed" // default pipeline definition
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/flow"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/pipeline"
)

//go:embed default.yaml
var defaultDefinition []byte

// Modifier types understood by Build.
const (
	TypeAffineTransformation = "affine_transformation"
	TypeSlice                = "slice"
	TypeParticleCount        = "particle_count"
	TypeReplayCache          = "replay_cache"
)

// StageDefinition describes one modifier of a pipeline.
type StageDefinition struct {
	Type     string    `yaml:"type"`
	Disabled bool      `yaml:"disabled"`
	Vector   []float64 `yaml:"vector"`
	Scale    float64   `yaml:"scale"`
	Distance float64   `yaml:"distance"`
	Invert   bool      `yaml:"invert"`
	Name     string    `yaml:"name"`
	Particle int32     `yaml:"particle_type"`
}

// Definition lists the stages of a pipeline from the source upwards.
type Definition struct {
	Stages []StageDefinition `yaml:"stages"`
}

// ParseDefinition decodes a YAML pipeline definition.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, errors.Wrap(err, "failed to parse pipeline definition")
	}
	return &def, nil
}

// LoadDefinition reads a pipeline definition file.  An empty path selects the built-in
// default pipeline.
func LoadDefinition(path string) (*Definition, error) {
	if path == "" {
		return ParseDefinition(defaultDefinition)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read pipeline definition %s", path)
	}
	return ParseDefinition(data)
}

// NewModifier instantiates the modifier a stage describes.
func (s StageDefinition) NewModifier() (pipeline.Modifier, error) {
	switch s.Type {
	case TypeAffineTransformation:
		translation, err := point(s.Vector)
		if err != nil {
			return nil, err
		}
		return &AffineTransformation{Translation: translation, Scale: s.Scale}, nil
	case TypeSlice:
		normal, err := point(s.Vector)
		if err != nil {
			return nil, err
		}
		return &Slice{Normal: normal, Distance: s.Distance, Invert: s.Invert}, nil
	case TypeParticleCount:
		return &ParticleCount{Attribute: s.Name, Type: s.Particle}, nil
	case TypeReplayCache:
		return pipeline.NewReplayCache(), nil
	}
	return nil, errors.Errorf("unknown modifier type '%s'", s.Type)
}

func point(v []float64) (flow.Point3, error) {
	var p flow.Point3
	if len(v) == 0 {
		return p, nil
	}
	if len(v) != 3 {
		return p, errors.Errorf("expected a vector of 3 components, got %d", len(v))
	}
	copy(p[:], v)
	return p, nil
}

// Build stacks the defined modifiers on top of source and returns the topmost node.
func (d *Definition) Build(source pipeline.Node, logger *zap.SugaredLogger) (pipeline.Node, error) {
	head := source
	for i, stage := range d.Stages {
		mod, err := stage.NewModifier()
		if err != nil {
			return nil, errors.Wrapf(err, "stage %d", i)
		}
		app := pipeline.NewModifierApplication(mod, head, logger)
		if stage.Disabled {
			app.SetEnabled(false)
		}
		head = app
	}
	return head, nil
}
