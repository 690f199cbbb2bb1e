package transform

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"net/http"
	"strings"
	"testing"

	"stager/internal/domain"
	"stager/internal/providers/openai"
	"stager/internal/providers/synthetic"
)

type stubEditor struct {
	analysis    string
	analyzeErr  error
	editOut     []byte
	editErr     error
	analyzed    int
	lastEditReq openai.EditRequest
}

func (s *stubEditor) Analyze(ctx context.Context, req openai.AnalyzeRequest) (string, error) {
	s.analyzed++
	return s.analysis, s.analyzeErr
}

func (s *stubEditor) EditImage(ctx context.Context, req openai.EditRequest) ([]byte, error) {
	s.lastEditReq = req
	return s.editOut, s.editErr
}

func TestPromptRendersSuggestions(t *testing.T) {
	p := DefaultPrompt()
	withSuggestions, err := p.Render(PromptData{Suggestions: "a walnut coffee table"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(withSuggestions, "Add these furnishings: a walnut coffee table") {
		t.Fatalf("suggestions missing from prompt: %q", withSuggestions)
	}
	plain, _ := p.Render(PromptData{})
	if strings.Contains(plain, "Add these furnishings") {
		t.Fatalf("empty suggestions should drop the furnishings line: %q", plain)
	}
	if !strings.HasPrefix(plain, "Virtually stage this room") {
		t.Fatalf("unexpected prompt: %q", plain)
	}
}

func TestPromptCustomTemplateAndLimit(t *testing.T) {
	p, err := ParsePrompt("Stage job {{.JobID}}. " + strings.Repeat("x", 2000))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	out, err := p.Render(PromptData{JobID: "job_9"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.HasPrefix(out, "Stage job job_9.") {
		t.Fatalf("prompt = %q", out[:32])
	}
	if len([]rune(out)) != maxPromptRunes {
		t.Fatalf("prompt length = %d, want %d", len([]rune(out)), maxPromptRunes)
	}
	if _, err := ParsePrompt("{{.Broken"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestOpenAIInvokerAnalyzesThenEdits(t *testing.T) {
	editor := &stubEditor{analysis: "a linen sofa", editOut: []byte("staged")}
	inv := NewOpenAI(editor, OpenAIOptions{Analyze: true, Mask: true})

	out, err := inv.Transform(context.Background(), Request{JobID: "job_1", Image: encodePNG(t, 8, 8)})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if string(out) != "staged" {
		t.Fatalf("out = %q", out)
	}
	if editor.analyzed != 1 {
		t.Fatalf("analyze calls = %d, want 1", editor.analyzed)
	}
	if !strings.Contains(editor.lastEditReq.Prompt, "a linen sofa") {
		t.Fatalf("prompt missing analysis: %q", editor.lastEditReq.Prompt)
	}
	if len(editor.lastEditReq.Mask) == 0 {
		t.Fatalf("expected generated mask")
	}
	if editor.lastEditReq.User != "job_1" {
		t.Fatalf("user = %q", editor.lastEditReq.User)
	}
}

func TestOpenAIInvokerFailuresAreTransformFailed(t *testing.T) {
	tests := []struct {
		name       string
		editor     *stubEditor
		opts       OpenAIOptions
		wantStatus int
		wantReason string
	}{
		{
			name:       "api error",
			editor:     &stubEditor{editErr: &openai.APIError{Status: http.StatusTooManyRequests, Message: "rate limited"}},
			wantStatus: http.StatusTooManyRequests,
			wantReason: "edit: rate limited",
		},
		{
			name:       "timeout",
			editor:     &stubEditor{editErr: context.DeadlineExceeded},
			wantReason: "edit: timed out waiting for transform",
		},
		{
			name:       "analysis failure",
			editor:     &stubEditor{analyzeErr: errors.New("vision unavailable")},
			opts:       OpenAIOptions{Analyze: true},
			wantReason: "analysis: vision unavailable",
		},
		{
			name:       "empty output",
			editor:     &stubEditor{},
			wantReason: "edit returned no image",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			inv := NewOpenAI(tc.editor, tc.opts)
			_, err := inv.Transform(context.Background(), Request{JobID: "j", Image: []byte("png")})
			if !errors.Is(err, domain.ErrTransformFailed) {
				t.Fatalf("expected ErrTransformFailed, got %v", err)
			}
			var te *Error
			if !errors.As(err, &te) {
				t.Fatalf("expected *Error, got %T", err)
			}
			if te.Reason != tc.wantReason || te.Status != tc.wantStatus {
				t.Fatalf("error = %+v, want reason %q status %d", te, tc.wantReason, tc.wantStatus)
			}
		})
	}
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestOpenAIInvokerMaskMatchesImageSize(t *testing.T) {
	editor := &stubEditor{editOut: []byte("staged")}
	inv := NewOpenAI(editor, OpenAIOptions{Mask: true, Size: "1024x1024"})

	if _, err := inv.Transform(context.Background(), Request{JobID: "j", Image: encodePNG(t, 300, 200)}); err != nil {
		t.Fatalf("transform: %v", err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(editor.lastEditReq.Mask))
	if err != nil {
		t.Fatalf("mask is not png: %v", err)
	}
	if cfg.Width != 300 || cfg.Height != 200 {
		t.Fatalf("mask = %dx%d, want 300x200", cfg.Width, cfg.Height)
	}

	editor.lastEditReq = openai.EditRequest{}
	_, err = inv.Transform(context.Background(), Request{JobID: "j", Image: []byte("not an image")})
	if !errors.Is(err, domain.ErrTransformFailed) {
		t.Fatalf("undecodable image err = %v, want ErrTransformFailed", err)
	}
	if editor.lastEditReq.Image != nil {
		t.Fatalf("edit called with an unmaskable image")
	}
}

func TestOpenAIInvokerSkipsAnalysisWhenDisabled(t *testing.T) {
	editor := &stubEditor{editOut: []byte("ok")}
	inv := NewOpenAI(editor, OpenAIOptions{})
	if _, err := inv.Transform(context.Background(), Request{Image: []byte("png")}); err != nil {
		t.Fatalf("transform: %v", err)
	}
	if editor.analyzed != 0 {
		t.Fatalf("analysis ran while disabled")
	}
	if len(editor.lastEditReq.Mask) != 0 {
		t.Fatalf("mask sent while disabled")
	}
}

func TestSyntheticInvoker(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)

	inv := NewSynthetic(synthetic.NewClient(synthetic.Options{}))
	out, err := inv.Transform(context.Background(), Request{JobID: "job_1", Image: buf.Bytes()})
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(out)); err != nil {
		t.Fatalf("output is not png: %v", err)
	}

	_, err = inv.Transform(context.Background(), Request{JobID: "job_1", Image: []byte("garbage")})
	if !errors.Is(err, domain.ErrTransformFailed) {
		t.Fatalf("expected ErrTransformFailed, got %v", err)
	}
}

func TestInvokerFunc(t *testing.T) {
	var inv Invoker = InvokerFunc(func(ctx context.Context, req Request) ([]byte, error) {
		return append([]byte("x-"), req.Image...), nil
	})
	out, _ := inv.Transform(context.Background(), Request{Image: []byte("y")})
	if string(out) != "x-y" {
		t.Fatalf("out = %q", out)
	}
}
