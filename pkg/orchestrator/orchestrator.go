package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gitreport/pkg/commit"
	"gitreport/pkg/filter"
	"gitreport/pkg/llm"
	"gitreport/pkg/source"

	"github.com/sirupsen/logrus"
)

// ErrNothingSelected is returned when the filters leave no commits to report on.
var ErrNothingSelected = errors.New("没有符合条件的提交记录 (今天有提交吗? 用户名匹配吗? 是否全是 Merge?)")

// FilterMode decides when the filter runs
type FilterMode string

const (
	// FilterEager filters once at fetch time
	FilterEager FilterMode = "eager"
	// FilterLazy keeps the raw list and filters on demand
	FilterLazy FilterMode = "lazy"
)

// ParseFilterMode converts a config value into a FilterMode.
func ParseFilterMode(s string) (FilterMode, error) {
	switch m := FilterMode(strings.ToLower(strings.TrimSpace(s))); m {
	case FilterEager, FilterLazy:
		return m, nil
	case "":
		return FilterEager, nil
	default:
		return "", fmt.Errorf("未知的过滤模式: %q (eager|lazy)", s)
	}
}

// Generator produces a report from selected commits
type Generator interface {
	Generate(ctx context.Context, commits []commit.Commit, modelID string, creds llm.Credentials) (string, error)
	Route(modelID string) llm.Provider
}

// Request is everything one fetch or report run needs
type Request struct {
	Source        source.Request
	ExcludeMerges bool
	Scope         filter.Scope
	// Identity overrides the identity resolved from the source when set.
	Identity    string
	Model       string
	Credentials llm.Credentials
}

// Result is the outcome of a report run
type Result struct {
	Kind        source.Kind     `json:"kind"`
	Location    string          `json:"location"`
	Scope       string          `json:"scope"`
	Identity    string          `json:"identity"`
	Model       string          `json:"model"`
	Provider    llm.Provider    `json:"provider"`
	Commits     []commit.Commit `json:"commits"`
	Selected    []commit.Commit `json:"selected"`
	Report      string          `json:"report"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// Orchestrator wires retrieval, identity, filtering and generation together
type Orchestrator struct {
	sources   map[source.Kind]source.Source
	generator Generator
	mode      FilterMode
	now       func() time.Time
	logger    *logrus.Logger
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithFilterMode sets eager or lazy filtering.
func WithFilterMode(mode FilterMode) Option {
	return func(o *Orchestrator) {
		o.mode = mode
	}
}

// WithClock replaces the wall clock used for Today/Yesterday.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// New creates an orchestrator over the given sources
func New(sources map[source.Kind]source.Source, generator Generator, opts ...Option) *Orchestrator {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	o := &Orchestrator{
		sources:   sources,
		generator: generator,
		mode:      FilterEager,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SetLogLevel sets the logging level
func (o *Orchestrator) SetLogLevel(level logrus.Level) {
	o.logger.SetLevel(level)
}

// Mode returns the active filter mode.
func (o *Orchestrator) Mode() FilterMode {
	return o.mode
}

// Fetch validates the request, retrieves commits and resolves the identity.
func (o *Orchestrator) Fetch(ctx context.Context, req Request) (*Batch, error) {
	src, err := o.source(req.Source)
	if err != nil {
		return nil, err
	}
	return o.fetch(ctx, src, req)
}

// Run performs a full report: fetch, select, generate.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		return nil, fmt.Errorf("模型不能为空")
	}
	src, err := o.source(req.Source)
	if err != nil {
		return nil, err
	}

	batch, err := o.fetch(ctx, src, req)
	if err != nil {
		return nil, err
	}

	selected := batch.Selected()
	if len(selected) == 0 {
		return nil, ErrNothingSelected
	}

	provider := o.generator.Route(model)
	o.logger.WithFields(logrus.Fields{
		"provider": provider,
		"model":    model,
		"selected": len(selected),
	}).Info("正在生成报告")

	report, err := o.generator.Generate(ctx, selected, model, req.Credentials)
	if err != nil {
		return nil, err
	}

	return &Result{
		Kind:        req.Source.Kind,
		Location:    req.Source.Location,
		Scope:       req.Scope.String(),
		Identity:    batch.Identity,
		Model:       model,
		Provider:    provider,
		Commits:     batch.Commits,
		Selected:    selected,
		Report:      report,
		GeneratedAt: o.now(),
	}, nil
}

// source validates the retrieval request and picks the adapter for its kind.
func (o *Orchestrator) source(req source.Request) (source.Source, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	src, ok := o.sources[req.Kind]
	if !ok || src == nil {
		return nil, fmt.Errorf("未配置的来源类型: %q", req.Kind)
	}
	return src, nil
}

func (o *Orchestrator) fetch(ctx context.Context, src source.Source, req Request) (*Batch, error) {
	o.logger.Debugf("从%s获取提交: %s (limit=%d)", src.Name(), req.Source.Location, req.Source.Limit)

	commits, err := src.Retrieve(ctx, req.Source)
	if err != nil {
		return nil, err
	}
	if err := commit.ValidateBatch(commits); err != nil {
		return nil, fmt.Errorf("%s返回的数据无效: %w", src.Name(), err)
	}

	identity := strings.TrimSpace(req.Identity)
	if identity == "" {
		if resolver, ok := src.(source.IdentityResolver); ok {
			identity = resolver.ResolveCurrentUser(ctx, req.Source.Location)
		}
	}
	if identity == "" {
		o.logger.Debug("未识别到当前用户，按作者过滤将匹配所有人")
	}

	batch := &Batch{
		Commits:  commits,
		Identity: identity,
		options: filter.Options{
			ExcludeMerges: req.ExcludeMerges,
			Scope:         req.Scope,
			IdentityHint:  identity,
		},
		now: o.now,
	}
	if o.mode == FilterEager {
		batch.selected = batch.Select(batch.options)
		batch.eager = true
	}

	o.logger.Debugf("获取到 %d 条提交，当前用户: %q", len(commits), identity)
	return batch, nil
}
