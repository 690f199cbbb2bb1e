package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"stager/internal/infra"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("openai: api key is required")

const (
	defaultBaseURL     = "https://api.openai.com/v1"
	defaultImageModel  = "dall-e-2"
	defaultVisionModel = "gpt-4o"
	defaultImageSize   = "1024x1024"
	defaultTimeout     = 120 * time.Second
	maxErrorBody       = 4 << 10
)

// Options configures the OpenAI client.
type Options struct {
	APIKey       string
	BaseURL      string
	Organization string
	ImageModel   string
	VisionModel  string
	HTTPClient   *http.Client
	Logger       *infra.Logger
}

// Client calls the OpenAI image edit and chat completion endpoints.
type Client struct {
	apiKey       string
	baseURL      string
	organization string
	imageModel   string
	visionModel  string
	httpClient   *http.Client
	logger       *infra.Logger
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("openai: status %d", e.Status)
	}
	return fmt.Sprintf("openai: status %d: %s", e.Status, e.Message)
}

// EditRequest captures an image edit call.
type EditRequest struct {
	Image  []byte
	Mask   []byte
	Prompt string
	Size   string
	User   string
}

// AnalyzeRequest captures a vision call over a single image.
type AnalyzeRequest struct {
	Image       []byte
	ContentType string
	Instruction string
	MaxTokens   int
}

type editResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
		URL     string `json:"url"`
	} `json:"data"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewClient constructs a client. A nil HTTP client gets a default with a
// generous timeout since image edits routinely take tens of seconds.
func NewClient(opts Options) (*Client, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	return &Client{
		apiKey:       apiKey,
		baseURL:      baseURL,
		organization: strings.TrimSpace(opts.Organization),
		imageModel:   firstNonEmpty(opts.ImageModel, defaultImageModel),
		visionModel:  firstNonEmpty(opts.VisionModel, defaultVisionModel),
		httpClient:   client,
		logger:       logger,
	}, nil
}

// ImageModel returns the configured edit model.
func (c *Client) ImageModel() string { return c.imageModel }

// EditImage sends a multipart edit request and returns the first image.
func (c *Client) EditImage(ctx context.Context, req EditRequest) ([]byte, error) {
	if len(req.Image) == 0 {
		return nil, errors.New("openai: image is required")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, errors.New("openai: prompt is required")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := writeImagePart(mw, "image", "image.png", req.Image); err != nil {
		return nil, err
	}
	if len(req.Mask) > 0 {
		if err := writeImagePart(mw, "mask", "mask.png", req.Mask); err != nil {
			return nil, err
		}
	}
	fields := map[string]string{
		"model":  c.imageModel,
		"prompt": req.Prompt,
		"n":      "1",
		"size":   firstNonEmpty(req.Size, defaultImageSize),
	}
	if c.imageModel == defaultImageModel {
		fields["response_format"] = "b64_json"
	}
	if req.User != "" {
		fields["user"] = req.User
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("openai: write field %s: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("openai: close multipart: %w", err)
	}

	var out editResponse
	start := time.Now()
	if err := c.do(ctx, "/images/edits", mw.FormDataContentType(), &body, &out); err != nil {
		return nil, err
	}
	c.logger.Debug().
		Str("model", c.imageModel).
		Dur("elapsed", time.Since(start)).
		Int("results", len(out.Data)).
		Msg("openai: image edit returned")

	if len(out.Data) == 0 {
		return nil, errors.New("openai: edit returned no images")
	}
	first := out.Data[0]
	switch {
	case first.B64JSON != "":
		data, err := base64.StdEncoding.DecodeString(first.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("openai: decode image: %w", err)
		}
		return data, nil
	case first.URL != "":
		return c.download(ctx, first.URL)
	default:
		return nil, errors.New("openai: edit returned an empty image")
	}
}

// Analyze asks the vision model to describe an image and returns its answer.
func (c *Client) Analyze(ctx context.Context, req AnalyzeRequest) (string, error) {
	if len(req.Image) == 0 {
		return "", errors.New("openai: image is required")
	}
	contentType := firstNonEmpty(req.ContentType, http.DetectContentType(req.Image))
	dataURL := "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(req.Image)
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 500
	}
	payload := chatRequest{
		Model:     c.visionModel,
		MaxTokens: maxTokens,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: req.Instruction},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
			},
		}},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return "", fmt.Errorf("openai: encode request: %w", err)
	}

	var out chatResponse
	if err := c.do(ctx, "/chat/completions", "application/json", &buf, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", errors.New("openai: no choices")
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("openai: empty response")
	}
	return text, nil
}

func (c *Client) do(ctx context.Context, path, contentType string, body io.Reader, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("openai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.organization != "" {
		httpReq.Header.Set("OpenAI-Organization", c.organization)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("openai: %s: %w", path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var apiErr errorResponse
		msg := strings.TrimSpace(string(raw))
		if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("openai: decode response: %w", err)
	}
	return nil
}

func (c *Client) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("openai: build download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai: download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{Status: resp.StatusCode, Message: "download: " + strings.TrimSpace(string(data))}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai: read image: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("openai: downloaded image is empty")
	}
	return data, nil
}

func writeImagePart(mw *multipart.Writer, field, filename string, data []byte) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	h.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("openai: create %s part: %w", field, err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("openai: write %s part: %w", field, err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
