package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/biologidex-backend/internal/pkg/logger"
)

// IdentificationPrompt is the fixed instruction sent with every image. The
// parser depends on its response grammar: binomial entries, " | " between
// multiple animals, or the NO ANIMALS FOUND sentinel.
const IdentificationPrompt = "Please identify the animal(s) in this image. " +
	"Bugs, arachnids & other invertabrits are considered animals for the purpose of this task. " +
	"Provide a specific species name if possible, or a general animal type if the species cannot be determined. " +
	"If there are multiple animals, list all of them, separated by ` | `. " +
	"Your response should be formatted in Binomial nomenclature, formatted as the following `genus, species (common name)` if at least one animal can be identified. " +
	"If no animals can be identified, return `NO ANIMALS FOUND`"

const maxResponseTokens = 300

type IdentifyRequest struct {
	ImageBytes []byte
	Mime       string
	Model      string
	Detail     string
}

type IdentifyResult struct {
	Prediction     string
	InputTokens    int
	OutputTokens   int
	CostUSD        float64
	ProcessingTime float64
	Raw            json.RawMessage
}

// VisionClient is a single-shot identification RPC. Retry and backoff
// belong to the job executor, not here; the client only classifies.
type VisionClient interface {
	Identify(ctx context.Context, req IdentifyRequest) (*IdentifyResult, error)
	DefaultModel() string
}

type visionClient struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewVisionClient(log *logger.Logger) (VisionClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}

	baseURL := os.Getenv("OPENAI_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}

	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = "gpt-4o"
	}

	timeoutSec := 30
	if v := os.Getenv("OPENAI_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	return &visionClient{
		log:        log.With("service", "OpenAIVisionClient"),
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}, nil
}

func (c *visionClient) DefaultModel() string {
	return c.model
}

type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

func isRetryableHTTP(code int) bool {
	if code == 408 || code == 429 {
		return true
	}
	if code >= 500 && code <= 599 {
		return true
	}
	return false
}

// IsTransient reports whether the error is worth another worker pass.
// Timeouts and transport failures are transient; 4xx refusals (content
// filter, quota exhaustion, unknown model) are fatal.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return isRetryableHTTP(httpErr.StatusCode)
	}
	return false
}

// usesCompletionTokenCap reports whether the model family takes
// max_completion_tokens instead of max_tokens.
func usesCompletionTokenCap(model string) bool {
	m := strings.ToLower(model)
	return strings.HasPrefix(m, "gpt-5") ||
		strings.HasPrefix(m, "o1") ||
		strings.HasPrefix(m, "o3") ||
		strings.HasPrefix(m, "o4")
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (c *visionClient) Identify(ctx context.Context, req IdentifyRequest) (*IdentifyResult, error) {
	if len(req.ImageBytes) == 0 {
		return nil, fmt.Errorf("empty image")
	}
	model := req.Model
	if model == "" {
		model = c.model
	}
	mime := req.Mime
	if mime == "" {
		mime = "image/png"
	}
	detail := req.Detail
	if detail == "" {
		detail = "auto"
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(req.ImageBytes))

	body := map[string]any{
		"model": model,
		"messages": []map[string]any{
			{
				"role": "user",
				"content": []map[string]any{
					{"type": "text", "text": IdentificationPrompt},
					{
						"type": "image_url",
						"image_url": map[string]any{
							"url":    dataURL,
							"detail": detail,
						},
					},
				},
			},
		},
	}
	if usesCompletionTokenCap(model) {
		body["max_completion_tokens"] = maxResponseTokens
	} else {
		body["max_tokens"] = maxResponseTokens
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", &buf)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	elapsed := time.Since(start).Seconds()
	if readErr != nil {
		return nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("openai decode error: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("openai response had no choices")
	}

	inTokens := parsed.Usage.PromptTokens
	outTokens := parsed.Usage.CompletionTokens
	return &IdentifyResult{
		Prediction:     strings.TrimSpace(parsed.Choices[0].Message.Content),
		InputTokens:    inTokens,
		OutputTokens:   outTokens,
		CostUSD:        Cost(model, inTokens, outTokens),
		ProcessingTime: elapsed,
		Raw:            json.RawMessage(raw),
	}, nil
}
