package transform

import (
	"context"
	"errors"
	"io"

	"github.com/rs/zerolog"

	"stager/internal/imageprep"
	"stager/internal/infra"
	"stager/internal/providers/openai"
)

// ImageEditor is the subset of the OpenAI client used here.
type ImageEditor interface {
	EditImage(ctx context.Context, req openai.EditRequest) ([]byte, error)
	Analyze(ctx context.Context, req openai.AnalyzeRequest) (string, error)
}

// OpenAIOptions configures the OpenAI invoker.
type OpenAIOptions struct {
	// Analyze runs a vision pass first and feeds its suggestions into the prompt.
	Analyze bool
	// Mask sends a full-frame transparent mask, sized to the image, when the
	// request has none.
	Mask   bool
	Size   string
	Logger *infra.Logger
}

// OpenAI transforms through the image edit endpoint.
type OpenAI struct {
	client  ImageEditor
	analyze bool
	mask    bool
	size    string
	logger  *infra.Logger
}

func NewOpenAI(client ImageEditor, opts OpenAIOptions) *OpenAI {
	logger := opts.Logger
	if logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	return &OpenAI{
		client:  client,
		analyze: opts.Analyze,
		mask:    opts.Mask,
		size:    opts.Size,
		logger:  logger,
	}
}

func (o *OpenAI) Transform(ctx context.Context, req Request) ([]byte, error) {
	if len(req.Image) == 0 {
		return nil, Failf("no image supplied")
	}

	data := PromptData{JobID: req.JobID}
	if o.analyze {
		suggestions, err := o.client.Analyze(ctx, openai.AnalyzeRequest{
			Image:       req.Image,
			ContentType: req.ContentType,
			Instruction: AnalysisInstruction,
		})
		if err != nil {
			return nil, mapOpenAIError("analysis", err)
		}
		data.Suggestions = suggestions
		o.logger.Debug().Str("job_id", req.JobID).Int("suggestion_chars", len(suggestions)).Msg("transform: analysis complete")
	}

	prompt, err := promptOrDefault(req.Prompt).Render(data)
	if err != nil {
		return nil, Failf("%v", err)
	}

	mask := req.Mask
	if len(mask) == 0 && o.mask {
		if mask, err = fullFrameMask(req.Image); err != nil {
			return nil, Failf("mask: %v", err)
		}
	}

	out, err := o.client.EditImage(ctx, openai.EditRequest{
		Image:  req.Image,
		Mask:   mask,
		Prompt: prompt,
		Size:   o.size,
		User:   req.JobID,
	})
	if err != nil {
		return nil, mapOpenAIError("edit", err)
	}
	if len(out) == 0 {
		return nil, Failf("edit returned no image")
	}
	return out, nil
}

func fullFrameMask(img []byte) ([]byte, error) {
	w, h, err := imageprep.Dimensions(img)
	if err != nil {
		return nil, err
	}
	return imageprep.EditMask(w, h)
}

func mapOpenAIError(step string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &Error{Reason: step + ": " + apiErr.Message, Status: apiErr.Status}
	}
	mapped := asError(err).(*Error)
	mapped.Reason = step + ": " + mapped.Reason
	return mapped
}

var _ Invoker = (*OpenAI)(nil)
