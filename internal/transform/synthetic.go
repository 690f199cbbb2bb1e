package transform

import (
	"context"

	"stager/internal/providers/synthetic"
)

// Renderer is the subset of the synthetic client used here.
type Renderer interface {
	Render(ctx context.Context, req synthetic.Request) ([]byte, error)
}

// Synthetic transforms locally with a deterministic renderer.
type Synthetic struct {
	renderer Renderer
}

func NewSynthetic(renderer Renderer) *Synthetic {
	return &Synthetic{renderer: renderer}
}

func (s *Synthetic) Transform(ctx context.Context, req Request) ([]byte, error) {
	if len(req.Image) == 0 {
		return nil, Failf("no image supplied")
	}
	prompt, err := promptOrDefault(req.Prompt).Render(PromptData{JobID: req.JobID})
	if err != nil {
		return nil, Failf("%v", err)
	}
	out, err := s.renderer.Render(ctx, synthetic.Request{
		Image:     req.Image,
		Prompt:    prompt,
		RequestID: req.JobID,
	})
	if err != nil {
		return nil, asError(err)
	}
	return out, nil
}

var _ Invoker = (*Synthetic)(nil)
