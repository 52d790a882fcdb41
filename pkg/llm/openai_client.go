package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

// OpenAIClient talks to an OpenAI-compatible endpoint through go-openai.
// A go-openai client is bound to one key, so one is built per call.
type OpenAIClient struct {
	baseURL     string
	temperature float32
	httpClient  *http.Client
	logger      *logrus.Logger
}

var _ backend = (*OpenAIClient)(nil)

// NewOpenAIClient creates a client for baseURL. proxyURL may be empty.
func NewOpenAIClient(baseURL, proxyURL string, timeout time.Duration) (*OpenAIClient, error) {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("代理地址无效 %q", proxyURL)
		}
		transport.Proxy = http.ProxyURL(u)
	}

	return &OpenAIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
		logger:     logger,
	}, nil
}

// SetLogLevel sets the logging level
func (c *OpenAIClient) SetLogLevel(level logrus.Level) {
	c.logger.SetLevel(level)
}

// SetTemperature sets the sampling temperature
func (c *OpenAIClient) SetTemperature(t float32) {
	c.temperature = t
}

func (c *OpenAIClient) newClient(apiKey string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = c.baseURL
	cfg.HTTPClient = c.httpClient
	return openai.NewClientWithConfig(cfg)
}

// Chat sends a chat completion request and returns the first choice's text
func (c *OpenAIClient) Chat(ctx context.Context, apiKey, model string, messages []ChatMessage) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	c.logger.Debugf("POST %s/chat/completions model=%s", c.baseURL, model)

	resp, err := c.newClient(apiKey).CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", wrapOpenAIError(err)
	}

	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// ListModels returns the models the endpoint reports, sorted by ID
func (c *OpenAIClient) ListModels(ctx context.Context, apiKey string) ([]RemoteModel, error) {
	list, err := c.newClient(apiKey).ListModels(ctx)
	if err != nil {
		return nil, wrapOpenAIError(err)
	}

	models := make([]RemoteModel, 0, len(list.Models))
	for _, m := range list.Models {
		models = append(models, RemoteModel{ID: m.ID, OwnedBy: m.OwnedBy})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

// wrapOpenAIError keeps the HTTP status so auth failures match ErrUnauthorized.
func wrapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &statusError{Code: apiErr.HTTPStatusCode, Cause: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &statusError{Code: reqErr.HTTPStatusCode, Cause: err}
	}
	return fmt.Errorf("API request failed: %w", err)
}
