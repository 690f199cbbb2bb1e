package transform

import (
	"fmt"
	"strings"
	"text/template"
)

// AnalysisInstruction asks a vision model for furnishing suggestions only.
const AnalysisInstruction = "Analyze this room image for virtual staging. Describe ONLY what furniture and decor should be added. " +
	"Do NOT describe the room's existing architecture (walls, windows, floors, ceiling) - I need to preserve those exactly. " +
	"Focus on: 1) What type of room this is, 2) What furniture pieces would work (sofa, chairs, tables, etc.), " +
	"3) What style (modern, traditional, etc.), 4) What colors and materials, 5) What decor items (plants, artwork, rugs, etc.). " +
	"Be specific about furniture placement and style."

// DefaultPromptTemplate keeps the room's architecture and adds furnishings.
const DefaultPromptTemplate = `Virtually stage this room by adding furniture and decor ONLY. CRITICAL: Keep the room's walls, windows, doors, flooring, ceiling, lighting, and all architectural features EXACTLY as shown in the original photo. Do not change the room structure, perspective, or architecture in any way.
{{- if .Suggestions}}

Add these furnishings: {{.Suggestions}}
{{- end}}

The result must look like the same room with furniture added, not a different room. Maintain the exact camera angle, lighting conditions, and room dimensions. Only add furniture, decor, and styling elements.`

// edit endpoints reject longer prompts
const maxPromptRunes = 1000

// PromptData is the template input.
type PromptData struct {
	JobID       string
	Suggestions string
}

// Prompt is a parsed instruction template.
type Prompt struct {
	source string
	tmpl   *template.Template
}

// ParsePrompt compiles a template. An empty source selects the default.
func ParsePrompt(source string) (*Prompt, error) {
	if strings.TrimSpace(source) == "" {
		source = DefaultPromptTemplate
	}
	tmpl, err := template.New("prompt").Option("missingkey=zero").Parse(source)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template: %w", err)
	}
	return &Prompt{source: source, tmpl: tmpl}, nil
}

// DefaultPrompt returns the built-in staging prompt.
func DefaultPrompt() *Prompt {
	p, err := ParsePrompt(DefaultPromptTemplate)
	if err != nil {
		panic(err)
	}
	return p
}

// Source returns the raw template text.
func (p *Prompt) Source() string { return p.source }

// Render executes the template and clamps the result to the model limit.
func (p *Prompt) Render(data PromptData) (string, error) {
	var b strings.Builder
	if err := p.tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", fmt.Errorf("render prompt: empty result")
	}
	return truncateRunes(out, maxPromptRunes), nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func promptOrDefault(p *Prompt) *Prompt {
	if p == nil {
		return DefaultPrompt()
	}
	return p
}
