package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gitreport/pkg/commit"

	"github.com/sirupsen/logrus"
)

// Provider names a text-generation backend. It doubles as the credential slot name.
type Provider string

const (
	// ProviderAliyun is Alibaba Cloud DashScope (OpenAI-compatible mode)
	ProviderAliyun Provider = "aliyun"
	// ProviderGroq is Groq
	ProviderGroq Provider = "groq"
)

// Default endpoints
const (
	AliyunBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	GroqBaseURL   = "https://api.groq.com/openai/v1"
)

// Providers lists every provider in routing order.
func Providers() []Provider {
	return []Provider{ProviderAliyun, ProviderGroq}
}

// ParseProvider converts a user supplied name into a Provider.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderAliyun, ProviderGroq:
		return p, nil
	case "dashscope", "qwen":
		return ProviderAliyun, nil
	default:
		return "", fmt.Errorf("未知的模型服务商: %q (aliyun|groq)", s)
	}
}

// Credentials maps a provider to its secret
type Credentials map[Provider]string

// Options configures the provider table
type Options struct {
	AliyunBaseURL string
	GroqBaseURL   string
	// Proxies are HTTP proxy URLs applied per provider.
	AliyunProxy string
	GroqProxy   string
	Timeout     time.Duration
}

// route is one entry in the provider table. The entry with an empty prefix is the fallback.
type route struct {
	provider Provider
	prefix   string
	backend  backend
}

// Dispatcher turns a commit selection into a report through the provider a model ID routes to.
type Dispatcher struct {
	routes []route
	logger *logrus.Logger

	aliyun *Client
	groq   *OpenAIClient
}

// NewDispatcher builds the provider table. Both providers are always present.
func NewDispatcher(opts Options) (*Dispatcher, error) {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	if opts.AliyunBaseURL == "" {
		opts.AliyunBaseURL = AliyunBaseURL
	}
	if opts.GroqBaseURL == "" {
		opts.GroqBaseURL = GroqBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}

	aliyun := NewClient(opts.AliyunBaseURL, opts.Timeout)
	aliyun.SetProxy(opts.AliyunProxy)

	groq, err := NewOpenAIClient(opts.GroqBaseURL, opts.GroqProxy, opts.Timeout)
	if err != nil {
		return nil, fmt.Errorf("初始化 Groq 客户端失败: %w", err)
	}
	groq.SetTemperature(0.5)

	return &Dispatcher{
		routes: []route{
			{provider: ProviderAliyun, prefix: "qwen", backend: aliyun},
			{provider: ProviderGroq, backend: groq},
		},
		logger: logger,
		aliyun: aliyun,
		groq:   groq,
	}, nil
}

// SetLogLevel sets the logging level
func (d *Dispatcher) SetLogLevel(level logrus.Level) {
	d.logger.SetLevel(level)
	d.aliyun.SetLogLevel(level)
	d.groq.SetLogLevel(level)
}

func (d *Dispatcher) lookup(modelID string) route {
	for _, r := range d.routes {
		if r.prefix != "" && strings.HasPrefix(modelID, r.prefix) {
			return r
		}
	}
	return d.routes[len(d.routes)-1]
}

func (d *Dispatcher) byProvider(p Provider) (route, bool) {
	for _, r := range d.routes {
		if r.provider == p {
			return r, true
		}
	}
	return route{}, false
}

// Route returns the provider a model ID is sent to.
func (d *Dispatcher) Route(modelID string) Provider {
	return d.lookup(modelID).provider
}

// Generate asks the routed provider for a report over commits.
func (d *Dispatcher) Generate(ctx context.Context, commits []commit.Commit, modelID string, creds Credentials) (string, error) {
	if len(commits) == 0 {
		return "", ErrEmptyInput
	}

	r := d.lookup(modelID)
	key := strings.TrimSpace(creds[r.provider])
	if key == "" {
		return "", &MissingCredentialError{Provider: r.provider}
	}

	d.logger.WithFields(logrus.Fields{
		"provider": r.provider,
		"model":    modelID,
		"commits":  len(commits),
	}).Debug("正在生成报告")

	text, err := r.backend.Chat(ctx, key, modelID, Messages(commits))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		return "", &GenerationError{Provider: r.provider, Model: modelID, Cause: err}
	}
	if text == "" {
		return "", &GenerationError{Provider: r.provider, Model: modelID, Cause: ErrEmptyCompletion}
	}

	d.logger.Debugf("报告生成完成，长度 %d", len(text))
	return text, nil
}

// ListModels returns the models a provider reports for the given credentials.
func (d *Dispatcher) ListModels(ctx context.Context, p Provider, creds Credentials) ([]RemoteModel, error) {
	r, ok := d.byProvider(p)
	if !ok {
		return nil, fmt.Errorf("未知的模型服务商: %s", p)
	}

	key := strings.TrimSpace(creds[p])
	if key == "" {
		return nil, &MissingCredentialError{Provider: p}
	}

	models, err := r.backend.ListModels(ctx, key)
	if err != nil {
		return nil, &GenerationError{Provider: p, Cause: err}
	}
	return models, nil
}
