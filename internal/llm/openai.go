package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/dgallion1/groundtruth/internal/metrics"
)

const visionSystemPrompt = "You are a biomedical research assistant. Describe the figure/diagram/graph in detail. " +
	"Include all data points, labels, axes, relationships, and conclusions that can be drawn. " +
	"Be precise with numbers and terminology. If the image is not a scientific figure " +
	"(e.g. it is an icon, logo, geometric shape, or decorative element with no data or labels), " +
	"say exactly: 'NOT_A_FIGURE'."

// Config configures the OpenAI-compatible client. Setting AzureEndpoint
// switches to Azure OpenAI, where Model and VisionModel are deployment names.
type Config struct {
	APIKey          string
	BaseURL         string
	Model           string
	VisionModel     string
	AzureEndpoint   string
	AzureAPIVersion string

	RequestsPerMinute int
	MaxRetries        int
	RetryDelay        time.Duration
	Timeout           time.Duration
}

// OpenAIClient implements Completer and Vision over go-openai.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	visionModel string
	limiter     *rate.Limiter
	maxRetries  int
	retryDelay  time.Duration
	log         *slog.Logger

	Stats *Stats
}

func NewOpenAIClient(cfg Config, log *slog.Logger) *OpenAIClient {
	if log == nil {
		log = slog.Default()
	}

	var oc openai.ClientConfig
	if cfg.AzureEndpoint != "" {
		oc = openai.DefaultAzureConfig(cfg.APIKey, cfg.AzureEndpoint)
		if cfg.AzureAPIVersion != "" {
			oc.APIVersion = cfg.AzureAPIVersion
		}
		// Deployment names are used verbatim.
		oc.AzureModelMapperFunc = func(model string) string { return model }
	} else {
		oc = openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			oc.BaseURL = cfg.BaseURL
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	oc.HTTPClient = &http.Client{Timeout: timeout}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), max(1, cfg.RequestsPerMinute/10))
	}

	visionModel := cfg.VisionModel
	if visionModel == "" {
		visionModel = cfg.Model
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Second
	}

	return &OpenAIClient{
		client:      openai.NewClientWithConfig(oc),
		model:       cfg.Model,
		visionModel: visionModel,
		limiter:     limiter,
		maxRetries:  max(0, cfg.MaxRetries),
		retryDelay:  retryDelay,
		log:         log,
		Stats:       NewStats(time.Hour),
	}
}

// Model returns the chat model or deployment name.
func (c *OpenAIClient) Model() string {
	return c.model
}

// Complete runs one chat completion.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	creq := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSONMode {
		creq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return c.do(ctx, creq)
}

// DescribeImage sends one image to the vision model.
func (c *OpenAIClient) DescribeImage(ctx context.Context, image []byte, caption string) (string, error) {
	if Operation(ctx) == "unknown" {
		ctx = WithOperation(ctx, "vision")
	}
	prompt := "Describe this figure from a scientific paper in detail."
	if caption != "" {
		prompt += " Caption: " + caption
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", http.DetectContentType(image), base64.StdEncoding.EncodeToString(image))

	creq := openai.ChatCompletionRequest{
		Model: c.visionModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: visionSystemPrompt},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: prompt},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
						URL:    dataURL,
						Detail: openai.ImageURLDetailHigh,
					}},
				},
			},
		},
		Temperature: 0.2,
		MaxTokens:   1000,
	}
	return c.do(ctx, creq)
}

// do sends the request under the rate limiter, retrying transient failures.
func (c *OpenAIClient) do(ctx context.Context, creq openai.ChatCompletionRequest) (string, error) {
	op := Operation(ctx)
	start := time.Now()

	content, err := retry.DoWithData(
		func() (string, error) {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", retry.Unrecoverable(fmt.Errorf("rate limiter: %w", err))
			}
			resp, err := c.client.CreateChatCompletion(ctx, creq)
			if err != nil {
				return "", classify(err)
			}
			if len(resp.Choices) == 0 {
				return "", errors.New("empty response from model")
			}
			return resp.Choices[0].Message.Content, nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.maxRetries+1)),
		retry.Delay(c.retryDelay),
		retry.MaxDelay(30*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(IsRetryable),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.log.Warn("retrying llm call", "op", op, "attempt", n+1, "error", err)
		}),
	)

	elapsed := time.Since(start)
	c.Stats.Record(op, elapsed, err)
	metrics.LLMLatency.WithLabelValues(op).Observe(elapsed.Seconds())
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.LLMCalls.WithLabelValues(op, status).Inc()

	if err != nil {
		return "", fmt.Errorf("%s call: %w", op, err)
	}
	return content, nil
}
