package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"gitreport/internal/config"
	"gitreport/pkg/commit"
	"gitreport/pkg/filter"
	"gitreport/pkg/llm"
	"gitreport/pkg/orchestrator"
	"gitreport/pkg/reporter"
	"gitreport/pkg/settings"
	"gitreport/pkg/source"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfg        *config.Config
	configPath string
	logger     = logrus.New()

	sinceFlag    string
	untilFlag    string
	weekFlag     bool
	useLast      bool
	remoteModels bool
	providerFlag string
	clearHistory bool
	historyLimit int
)

func main() {
	configPath = configPathFromArgs(os.Args[1:])

	var err error
	cfg, err = config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "配置错误: %v\n", err)
		os.Exit(1)
	}

	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		printHint(err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var rootCmd = &cobra.Command{
		Use:   "gitreport",
		Short: "根据 Git 提交记录生成工作日报",
		Long: `gitreport 读取本地仓库或 GitHub 仓库的提交记录，按条件筛选后交给大模型生成日报/周报：
- 本地仓库 (git log) 或远程仓库 (GitHub API)
- 按今天/昨天/全部、当前用户、是否排除 Merge 筛选
- 通义千问 (qwen-*) 与 Groq 两类模型自动路由`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}

	// Fetch command
	var fetchCmd = &cobra.Command{
		Use:   "fetch [location]",
		Short: "查看提交记录",
		Long:  "获取提交记录并标记 Merge、今天的提交、当前用户的提交以及会被选中的提交",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runFetch,
	}

	// Report command
	var reportCmd = &cobra.Command{
		Use:   "report [location]",
		Short: "生成日报",
		Long:  "获取并筛选提交记录，调用大模型生成日报",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runReport,
	}

	// Whoami command
	var whoamiCmd = &cobra.Command{
		Use:   "whoami [path]",
		Short: "显示当前 git 用户",
		Long:  "显示本地仓库中 git config user.name 的值，即默认用于筛选的用户名",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runWhoami,
	}

	// Models command
	var modelsCmd = &cobra.Command{
		Use:   "models",
		Short: "列出可用模型",
		Long:  "列出内置模型列表，或使用 --remote 查询服务商实际提供的模型",
		Args:  cobra.NoArgs,
		RunE:  runModels,
	}

	// History command
	var historyCmd = &cobra.Command{
		Use:   "history",
		Short: "最近使用记录",
		Long:  "列出最近成功生成报告时使用的仓库、模型与筛选条件",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", configPath, "配置文件路径 (默认 ~/.gitreport/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "显示详细输出")
	rootCmd.PersistentFlags().StringVarP((*string)(&cfg.OutputFormat), "format", "f", string(cfg.OutputFormat), "输出格式 (text|table|json)")
	rootCmd.PersistentFlags().DurationVarP(&cfg.Timeout, "timeout", "t", cfg.Timeout, "网络请求超时时间")
	rootCmd.PersistentFlags().BoolVar(&cfg.SaveReport, "save-report", cfg.SaveReport, "保存报告到文件")
	rootCmd.PersistentFlags().StringVar(&cfg.ReportFile, "report-file", cfg.ReportFile, "报告文件路径")

	// Selection flags
	for _, cmd := range []*cobra.Command{fetchCmd, reportCmd} {
		addSelectionFlags(cmd)
	}

	// Report command specific flags
	reportCmd.Flags().StringVarP(&cfg.Report.Model, "model", "m", cfg.Report.Model, "模型 ID (qwen-* 走通义千问，其余走 Groq)")
	reportCmd.Flags().BoolVar(&useLast, "last", false, "沿用最近一次的仓库、模型与筛选条件 (命令行参数优先)")

	// Models command specific flags
	modelsCmd.Flags().BoolVar(&remoteModels, "remote", false, "查询服务商实际提供的模型")
	modelsCmd.Flags().StringVar(&providerFlag, "provider", string(llm.ProviderGroq), "服务商 (aliyun|groq)")

	// History command specific flags
	historyCmd.Flags().BoolVar(&clearHistory, "clear", false, "清空历史记录")
	historyCmd.Flags().IntVarP(&historyLimit, "number", "n", settings.MaxSessions, "显示条数")

	rootCmd.AddCommand(fetchCmd, reportCmd, whoamiCmd, modelsCmd, historyCmd, newConfigCmd())
	return rootCmd
}

func addSelectionFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&cfg.Source.Kind, "kind", "k", cfg.Source.Kind, "来源类型 (local|remote)")
	cmd.Flags().IntVarP(&cfg.Source.Limit, "limit", "n", cfg.Source.Limit, fmt.Sprintf("获取条数 (1-%d)", source.MaxLimit))
	cmd.Flags().StringVarP(&cfg.Report.Scope, "scope", "s", cfg.Report.Scope, "报告范围 (today|yesterday|all)")
	cmd.Flags().StringVar(&cfg.Report.Identity, "identity", cfg.Report.Identity, "按作者筛选的用户名 (默认取 git config user.name)")
	cmd.Flags().BoolVar(&cfg.Report.ExcludeMerges, "exclude-merges", cfg.Report.ExcludeMerges, "排除 Merge 提交")
	cmd.Flags().StringVar(&cfg.Report.FilterMode, "filter-mode", cfg.Report.FilterMode, "筛选时机 (eager|lazy)")
	cmd.Flags().StringVar(&sinceFlag, "since", "", "起始日期 YYYY-MM-DD (含)")
	cmd.Flags().StringVar(&untilFlag, "until", "", "结束日期 YYYY-MM-DD (含)")
	cmd.Flags().BoolVar(&weekFlag, "week", false, "本周 (周一至今) 的全部提交，生成周报")
}

// setup validates global flags and applies the log level
func setup(cmd *cobra.Command, args []string) error {
	format, err := reporter.ParseFormat(string(cfg.OutputFormat))
	if err != nil {
		return err
	}
	cfg.OutputFormat = format

	if cfg.Timeout <= 0 {
		return fmt.Errorf("超时时间必须大于 0: %v", cfg.Timeout)
	}

	logger.SetLevel(logLevel())
	return nil
}

func logLevel() logrus.Level {
	if cfg.Verbose {
		return logrus.DebugLevel
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	req, err := buildRequest(args)
	if err != nil {
		return err
	}

	orch, err := newOrchestrator()
	if err != nil {
		return err
	}
	reporterInstance := reporter.NewReporter(cfg.OutputFormat, cfg.Verbose)

	reporterInstance.StartSpinner(fmt.Sprintf("正在获取 %s 的提交记录", req.Source.Location))
	batch, err := orch.Fetch(ctx, req)
	reporterInstance.StopSpinner()
	if err != nil {
		return err
	}

	selected := batch.Selected()
	reporterInstance.ReportCommits(reporter.CommitView{
		Kind:     string(req.Source.Kind),
		Location: req.Source.Location,
		Identity: batch.Identity,
		Commits:  batch.Commits,
		Selected: selected,
		Now:      time.Now(),
	})

	if cfg.SaveReport {
		saveReport(reporterInstance, "commits", map[string]interface{}{
			"kind":     req.Source.Kind,
			"location": req.Source.Location,
			"identity": batch.Identity,
			"commits":  batch.Commits,
			"selected": selected,
		})
	}
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	if useLast {
		if err := applyLastSession(ctx, cmd, args); err != nil {
			return err
		}
	}

	req, err := buildRequest(args)
	if err != nil {
		return err
	}
	req.Credentials = cfg.Credentials()

	orch, err := newOrchestrator()
	if err != nil {
		return err
	}
	reporterInstance := reporter.NewReporter(cfg.OutputFormat, cfg.Verbose)

	reporterInstance.StartSpinner(fmt.Sprintf("正在使用 %s 生成%s", req.Model, req.Scope.Label()))
	res, err := orch.Run(ctx, req)
	reporterInstance.StopSpinner()
	if err != nil {
		return err
	}

	recordSession(ctx, res)
	reporterInstance.ReportResult(res, req.Scope.Label())

	if cfg.SaveReport {
		saveReport(reporterInstance, res.Scope, res)
	}
	return nil
}

// buildRequest turns flags and configuration into an orchestrator request.
func buildRequest(args []string) (orchestrator.Request, error) {
	location := cfg.Source.Location
	if len(args) > 0 {
		location = args[0]
	}

	kind, err := source.ParseKind(cfg.Source.Kind)
	if err != nil {
		return orchestrator.Request{}, err
	}
	scope, err := filter.ParseScope(cfg.Report.Scope)
	if err != nil {
		return orchestrator.Request{}, err
	}
	if weekFlag {
		scope = filter.ScopeAllTime
	}

	since, until, err := parseWindow(sinceFlag, untilFlag, weekFlag, time.Now())
	if err != nil {
		return orchestrator.Request{}, err
	}

	req := orchestrator.Request{
		Source: source.Request{
			Kind:     kind,
			Location: location,
			Limit:    cfg.Source.Limit,
			Since:    since,
			Until:    until,
		},
		ExcludeMerges: cfg.Report.ExcludeMerges,
		Scope:         scope,
		Identity:      cfg.Report.Identity,
		Model:         cfg.Report.Model,
	}
	if kind == source.KindRemote {
		req.Source.Credential = cfg.GitHubToken()
	}
	return req, nil
}

// parseWindow resolves --since/--until/--week into inclusive date bounds.
func parseWindow(since, until string, week bool, now time.Time) (time.Time, time.Time, error) {
	var from, to time.Time
	if week {
		from = filter.WeekStart(now)
	}
	if since != "" {
		t, err := commit.ParseDate(since)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("--since: %w", err)
		}
		from = t
	}
	if until != "" {
		t, err := commit.ParseDate(until)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("--until: %w", err)
		}
		to = t
	}
	return from, to, nil
}

func newOrchestrator() (*orchestrator.Orchestrator, error) {
	level := logLevel()

	local := source.NewLocalSource()
	local.SetLogLevel(level)

	remote := source.NewRemoteSource(
		source.WithBaseURL(cfg.GitHub.BaseURL),
		source.WithRateLimit(cfg.GitHub.RateLimit),
		source.WithTimeout(cfg.Timeout),
	)
	remote.SetLogLevel(level)

	dispatcher, err := llm.NewDispatcher(cfg.DispatcherOptions())
	if err != nil {
		return nil, err
	}
	dispatcher.SetLogLevel(level)

	mode, err := orchestrator.ParseFilterMode(cfg.Report.FilterMode)
	if err != nil {
		return nil, err
	}

	orch := orchestrator.New(map[source.Kind]source.Source{
		source.KindLocal:  local,
		source.KindRemote: remote,
	}, dispatcher, orchestrator.WithFilterMode(mode))
	orch.SetLogLevel(level)
	return orch, nil
}

func openStore() (*settings.Store, error) {
	store, err := settings.Open(cfg.HistoryPath())
	if err != nil {
		return nil, err
	}
	store.SetLogLevel(logLevel())
	return store, nil
}

// applyLastSession fills every flag the user did not set from the most recent session.
func applyLastSession(ctx context.Context, cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	last, err := store.Last(ctx)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if !flags.Changed("kind") {
		cfg.Source.Kind = last.Kind
	}
	if len(args) == 0 {
		cfg.Source.Location = last.Location
	}
	if !flags.Changed("model") && last.Model != "" {
		cfg.Report.Model = last.Model
	}
	if !flags.Changed("scope") && !weekFlag {
		cfg.Report.Scope = last.Scope
	}
	if !flags.Changed("exclude-merges") {
		cfg.Report.ExcludeMerges = last.ExcludeMerges
	}
	if !flags.Changed("identity") {
		cfg.Report.Identity = last.Identity
	}
	if !flags.Changed("limit") && last.Limit > 0 {
		cfg.Source.Limit = last.Limit
	}

	logger.Debugf("沿用最近一次记录: %s %s (%s)", last.Kind, last.Location, last.Model)
	return nil
}

// recordSession remembers the inputs of a successful run. Failures only warn.
func recordSession(ctx context.Context, res *orchestrator.Result) {
	location := res.Location
	if res.Kind == source.KindLocal {
		if abs, err := filepath.Abs(location); err == nil {
			location = abs
		}
	}

	store, err := openStore()
	if err != nil {
		logger.WithError(err).Warn("无法打开历史记录")
		return
	}
	defer store.Close()

	err = store.Record(ctx, settings.Session{
		Kind:          string(res.Kind),
		Location:      location,
		Model:         res.Model,
		Scope:         res.Scope,
		ExcludeMerges: cfg.Report.ExcludeMerges,
		Identity:      cfg.Report.Identity,
		Limit:         cfg.Source.Limit,
	})
	if err != nil {
		logger.WithError(err).Warn("保存历史记录失败")
	}
}

func saveReport(reporterInstance *reporter.Reporter, scope string, data interface{}) {
	filename := cfg.ReportFile
	if filename == "" {
		filename = reporter.DefaultReportName(scope, time.Now())
	}

	if err := reporterInstance.SaveReport(filename, data); err != nil {
		fmt.Fprintf(os.Stderr, "保存报告失败: %v\n", err)
	} else {
		fmt.Fprintf(os.Stderr, "📄 报告已保存到: %s\n", filename)
	}
}

func runWhoami(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	path := "."
	if len(args) > 0 {
		path = args[0]
	}

	local := source.NewLocalSource()
	local.SetLogLevel(logLevel())

	name := local.ResolveCurrentUser(ctx, path)
	if cfg.OutputFormat == reporter.FormatJSON {
		fmt.Printf("{\"identity\": %q}\n", name)
		return nil
	}
	if name == "" {
		fmt.Println("未识别到 git 用户名 (git config user.name)，可使用 --identity 指定")
		return nil
	}
	fmt.Printf("👤 %s\n", name)
	return nil
}

func runModels(cmd *cobra.Command, args []string) error {
	reporterInstance := reporter.NewReporter(cfg.OutputFormat, cfg.Verbose)
	if !remoteModels {
		reporterInstance.ReportModels(llm.Catalog(), cfg.Report.Model)
		return nil
	}

	ctx, cancel := signalContext()
	defer cancel()

	provider, err := llm.ParseProvider(providerFlag)
	if err != nil {
		return err
	}
	dispatcher, err := llm.NewDispatcher(cfg.DispatcherOptions())
	if err != nil {
		return err
	}
	dispatcher.SetLogLevel(logLevel())

	reporterInstance.StartSpinner(fmt.Sprintf("正在查询 %s 模型列表", provider))
	models, err := dispatcher.ListModels(ctx, provider, cfg.Credentials())
	reporterInstance.StopSpinner()
	if err != nil {
		return err
	}

	reporterInstance.ReportRemoteModels(provider, models)
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if clearHistory {
		n, err := store.Clear(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("🗑️  已清除 %d 条历史记录\n", n)
		return nil
	}

	sessions, err := store.Recent(ctx, historyLimit)
	if err != nil {
		return err
	}
	reporter.NewReporter(cfg.OutputFormat, cfg.Verbose).ReportHistory(sessions)
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// printHint adds a next step for errors the user can fix.
func printHint(err error) {
	var missing *llm.MissingCredentialError
	var generation *llm.GenerationError
	switch {
	case errors.As(err, &missing):
		fmt.Fprintf(os.Stderr, "提示: 运行 gitreport config set-key %s 保存密钥，或设置环境变量 %s\n",
			missing.Provider, config.SecretEnv(string(missing.Provider)))
	case errors.Is(err, llm.ErrUnauthorized) && errors.As(err, &generation):
		fmt.Fprintf(os.Stderr, "提示: 密钥可能已失效，运行 gitreport config set-key %s 重新设置\n", generation.Provider)
	case githubAuthFailure(err):
		fmt.Fprintln(os.Stderr, "提示: 运行 gitreport config set-key github 设置 GitHub Token")
	case errors.Is(err, orchestrator.ErrNothingSelected):
		fmt.Fprintln(os.Stderr, "提示: 可尝试 --scope all、--exclude-merges=false 或 --identity 指定用户名")
	}
}

func githubAuthFailure(err error) bool {
	status, ok := source.RemoteStatus(err)
	return ok && (strings.HasPrefix(status, "401") || strings.HasPrefix(status, "403"))
}

// configPathFromArgs finds --config before cobra parses flags, since the
// loaded values become the flag defaults.
func configPathFromArgs(args []string) string {
	for i, arg := range args {
		if arg == "--" {
			break
		}
		if v, ok := strings.CutPrefix(arg, "--config="); ok {
			return v
		}
		if arg == "--config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}
