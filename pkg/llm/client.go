package llm

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// ChatMessage represents a chat message
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest represents a chat completion request
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float32       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// ChatResponse represents a chat completion response
type ChatResponse struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
}

// ModelList is the body of GET /models on an OpenAI-compatible endpoint
type ModelList struct {
	Data []RemoteModel `json:"data"`
}

// RemoteModel is one entry reported by a provider's model listing
type RemoteModel struct {
	ID      string `json:"id"`
	OwnedBy string `json:"owned_by"`
}

// backend is the transport for one provider. The credential is passed per call.
type backend interface {
	Chat(ctx context.Context, apiKey, model string, messages []ChatMessage) (string, error)
	ListModels(ctx context.Context, apiKey string) ([]RemoteModel, error)
}

// Client talks to an OpenAI-compatible chat endpoint over resty
type Client struct {
	baseURL     string
	temperature float32
	client      *resty.Client
	logger      *logrus.Logger
}

var _ backend = (*Client)(nil)

// NewClient creates a new chat client for baseURL
func NewClient(baseURL string, timeout time.Duration) *Client {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", "gitreport/1.0")

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger,
	}
}

// SetLogLevel sets the logging level
func (c *Client) SetLogLevel(level logrus.Level) {
	c.logger.SetLevel(level)
}

// SetTemperature sets the sampling temperature; zero leaves it to the provider.
func (c *Client) SetTemperature(t float32) {
	c.temperature = t
}

// SetProxy routes requests through an HTTP proxy
func (c *Client) SetProxy(proxyURL string) {
	if proxyURL != "" {
		c.client.SetProxy(proxyURL)
	}
}

// Chat sends a chat completion request and returns the first choice's text
func (c *Client) Chat(ctx context.Context, apiKey, model string, messages []ChatMessage) (string, error) {
	request := ChatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: c.temperature,
	}

	c.logger.Debugf("POST %s/chat/completions model=%s", c.baseURL, model)

	var response ChatResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(request).
		SetResult(&response).
		Post(c.baseURL + "/chat/completions")

	if err != nil {
		return "", fmt.Errorf("API request failed: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return "", &statusError{Code: resp.StatusCode(), Body: truncate(resp.String(), 200)}
	}

	if len(response.Choices) == 0 {
		return "", nil
	}

	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}

// ListModels returns the models the endpoint reports, sorted by ID
func (c *Client) ListModels(ctx context.Context, apiKey string) ([]RemoteModel, error) {
	var list ModelList
	resp, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(apiKey).
		SetResult(&list).
		Get(c.baseURL + "/models")

	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, &statusError{Code: resp.StatusCode(), Body: truncate(resp.String(), 200)}
	}

	sort.Slice(list.Data, func(i, j int) bool { return list.Data[i].ID < list.Data[j].ID })
	return list.Data, nil
}
