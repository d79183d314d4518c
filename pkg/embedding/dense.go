package embedding

import (
	"context"
)

// ExternalModel is implemented by whatever loads and runs an actual
// transformer (MiniLM, MPNet, E5, GTE, LaBSE...). The core only routes
// calls to it and persists its configuration — model loading/execution is
// an external collaborator's responsibility.
type ExternalModel interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dim() int
}

// DenseProvider routes embed calls to an externally supplied model and
// falls back to the deterministic hash embedding when no model is
// configured, so the provider is always safely constructible even before a
// real model is wired in.
type DenseProvider struct {
	name  string
	model ExternalModel
	dim   int
}

// NewDense builds a dense provider named name, routing to model. If model
// is nil, Embed uses the deterministic hash fallback at the given
// dimension until SetModel is called — this keeps collections configured
// for a dense provider usable (if approximate) before the real model is
// available.
func NewDense(name string, model ExternalModel, dim int) *DenseProvider {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &DenseProvider{name: name, model: model, dim: dim}
}

// SetModel attaches (or replaces) the external model backing this
// provider.
func (p *DenseProvider) SetModel(model ExternalModel) {
	p.model = model
	if model != nil {
		p.dim = model.Dim()
	}
}

func (p *DenseProvider) Name() string   { return p.name }
func (p *DenseProvider) Dimension() int { return p.dim }

// Fit is a no-op: training a transformer model is out of scope here;
// the model arrives pre-trained from its external owner.
func (p *DenseProvider) Fit(context.Context, []string) error { return nil }

func (p *DenseProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if p.model == nil {
		return hashFallback(text, p.dim), nil
	}
	vec, err := p.model.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return guardNonZero(vec, text, p.dim), nil
}

// EmbedBatch embeds many texts through the model's own batch path when a
// model is configured, falling back to sequential hash embedding
// otherwise.
func (p *DenseProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if p.model != nil {
		return p.model.EmbedBatch(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = hashFallback(t, p.dim)
	}
	return out, nil
}

// SaveVocabulary persists only the provider's routing configuration (model
// name, dimension); no vocabulary exists for dense providers.
func (p *DenseProvider) SaveVocabulary(path string) error {
	return saveVocabulary(path, vocabularyFile{Name: p.name, Dimension: p.dim, Fitted: true})
}

func (p *DenseProvider) LoadVocabulary(path string) error {
	v, err := loadVocabulary(path)
	if err != nil {
		return err
	}
	p.dim = v.Dimension
	return nil
}
