package embedding

import (
	"context"
	"fmt"
)

// EmbedFunc 可调用形态的嵌入函数。
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// singleEmbedder is the `embed`-method object shape.
type singleEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// batchEmbedder is the `embed_documents`-batch object shape.
type batchEmbedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// probed adapts any supported embedder shape to Provider.
type probed struct {
	embed EmbedFunc
	model string
	dims  int
}

func (p *probed) Embed(ctx context.Context, text string) ([]float32, error) {
	return p.embed(ctx, text)
}

func (p *probed) Model() string   { return p.model }
func (p *probed) Dimensions() int { return p.dims }

// Probe adapts a pluggable embedder to the Provider interface by capability
// probing, first match wins: a full Provider, a bare callable, an
// Embed-method object, then an EmbedDocuments-batch object.
func Probe(candidate any, model string, dimensions int) (Provider, error) {
	switch e := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("embedder is nil")
	case Provider:
		return e, nil
	case EmbedFunc:
		return &probed{embed: e, model: model, dims: dimensions}, nil
	case func(ctx context.Context, text string) ([]float32, error):
		return &probed{embed: e, model: model, dims: dimensions}, nil
	case singleEmbedder:
		return &probed{embed: e.Embed, model: model, dims: dimensions}, nil
	case batchEmbedder:
		return &probed{
			embed: func(ctx context.Context, text string) ([]float32, error) {
				vecs, err := e.EmbedDocuments(ctx, []string{text})
				if err != nil {
					return nil, err
				}
				if len(vecs) == 0 {
					return nil, &Error{
						Code:    ErrCodeUpstream,
						Message: "batch embedder returned no vectors",
					}
				}
				return vecs[0], nil
			},
			model: model,
			dims:  dimensions,
		}, nil
	}
	return nil, fmt.Errorf("unsupported embedder shape %T", candidate)
}
