package tiling

import "context"

// Model is an opaque segmentation model. Predict receives a (1, C, P, P)
// tensor and must return a (1, C_out, P, P) tensor. C_out may differ from C
// but has to be the same for every call of a run.
type Model interface {
	Predict(ctx context.Context, input *Tensor) (*Tensor, error)
}

// Evaler is implemented by models that distinguish training and inference
// behavior. Eval is called once before the first patch is predicted.
type Evaler interface {
	Eval()
}

// ModelFunc adapts a plain function to the Model interface.
type ModelFunc func(ctx context.Context, input *Tensor) (*Tensor, error)

func (f ModelFunc) Predict(ctx context.Context, input *Tensor) (*Tensor, error) {
	return f(ctx, input)
}
