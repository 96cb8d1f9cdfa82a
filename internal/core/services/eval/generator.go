package eval

import (
	"context"

	evaldomain "evalforge/internal/core/domain/eval"
)

// GeneratorFunc produces dataset items programmatically, for evaluations
// whose inputs are synthesized rather than read from a file (e.g.
// property-based fuzzing of an adapter, or parametrized sweeps).
type GeneratorFunc func(ctx context.Context) ([]evaldomain.DatasetItem, error)

// GeneratorLoader adapts a GeneratorFunc to the DatasetLoader interface,
// ignoring datasetID since the generator owns its own parameterization.
type GeneratorLoader struct {
	Generate GeneratorFunc
}

func NewGeneratorLoader(fn GeneratorFunc) *GeneratorLoader {
	return &GeneratorLoader{Generate: fn}
}

func (l *GeneratorLoader) Load(ctx context.Context, datasetID string) ([]evaldomain.DatasetItem, error) {
	return l.Generate(ctx)
}
