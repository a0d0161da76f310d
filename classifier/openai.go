// CLAUDE:SUMMARY OpenAI chat-completions client with fixed sampling parameters and bearer auth.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Fixed sampling parameters. They are not tunable per call.
const (
	temperature      = 1
	maxTokens        = 256
	topP             = 1
	frequencyPenalty = 0
	presencePenalty  = 0
)

// maxResponseBody caps how much of a completion response is read (1 MiB).
const maxResponseBody int64 = 1 << 20

// Config configures the completion client.
type Config struct {
	// Endpoint is the API base URL. Default: "https://api.openai.com".
	Endpoint string `yaml:"endpoint"`
	// Token is the bearer credential.
	Token string `yaml:"-"`
	// Model is the model name. Default: "gpt-4".
	Model string `yaml:"model"`
	// Timeout per HTTP request. Default: 30s.
	Timeout time.Duration `yaml:"timeout"`

	Logger *slog.Logger `yaml:"-"`
}

func (c *Config) defaults() {
	if c.Endpoint == "" {
		c.Endpoint = "https://api.openai.com"
	}
	if c.Model == "" {
		c.Model = "gpt-4"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// OpenAIClient implements Completer over the /v1/chat/completions API format.
type OpenAIClient struct {
	endpoint string
	token    string
	model    string
	client   *http.Client
	logger   *slog.Logger
}

// NewOpenAIClient creates a completion client.
func NewOpenAIClient(cfg Config) *OpenAIClient {
	cfg.defaults()
	return &OpenAIClient{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		token:    cfg.Token,
		model:    cfg.Model,
		client:   &http.Client{Timeout: cfg.Timeout},
		logger:   cfg.Logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the JSON body sent to /v1/chat/completions.
type chatRequest struct {
	Model            string        `json:"model"`
	Messages         []chatMessage `json:"messages"`
	Temperature      float64       `json:"temperature"`
	MaxTokens        int           `json:"max_tokens"`
	TopP             float64       `json:"top_p"`
	FrequencyPenalty float64       `json:"frequency_penalty"`
	PresencePenalty  float64       `json:"presence_penalty"`
}

// chatResponse is the subset of the completion response we read.
type chatResponse struct {
	Choices []struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends prompt as a single user message and returns the first
// choice's content. A non-200 status, an undecodable body or a missing
// choice is an error.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:            c.model,
		Messages:         []chatMessage{{Role: "user", Content: prompt}},
		Temperature:      temperature,
		MaxTokens:        maxTokens,
		TopP:             topP,
		FrequencyPenalty: frequencyPenalty,
		PresencePenalty:  presencePenalty,
	})
	if err != nil {
		return "", fmt.Errorf("classifier: marshal request: %w", err)
	}

	url := c.endpoint + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("classifier: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("classifier: POST %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("classifier: HTTP %d from %s: %s", resp.StatusCode, url, string(excerpt))
	}

	var result chatResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&result); err != nil {
		return "", fmt.Errorf("classifier: decode response: %w", err)
	}
	if len(result.Choices) == 0 || result.Choices[0].Message == nil {
		return "", fmt.Errorf("classifier: no completion choice in response from %s", url)
	}
	content := result.Choices[0].Message.Content
	if content == nil {
		return "", fmt.Errorf("classifier: completion without content from %s", url)
	}

	c.logger.DebugContext(ctx, "classifier: completion received",
		"model", c.model, "duration", time.Since(start))
	return *content, nil
}
