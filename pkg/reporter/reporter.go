package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gitreport/pkg/commit"
	"gitreport/pkg/filter"
	"gitreport/pkg/llm"
	"gitreport/pkg/orchestrator"
	"gitreport/pkg/settings"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// ReportFormat represents different output formats
type ReportFormat string

const (
	FormatTable ReportFormat = "table"
	FormatJSON  ReportFormat = "json"
	FormatText  ReportFormat = "text"
)

// ParseFormat validates an output format name
func ParseFormat(s string) (ReportFormat, error) {
	switch f := ReportFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTable, FormatJSON, FormatText:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("不支持的输出格式: %s (text|table|json)", s)
	}
}

// CommitView is a retrieved list together with what the filters would select
type CommitView struct {
	Kind     string
	Location string
	Identity string
	Commits  []commit.Commit
	Selected []commit.Commit
	Now      time.Time
}

// Reporter handles progress display and result output
type Reporter struct {
	logger      *logrus.Logger
	progressBar *progressbar.ProgressBar
	format      ReportFormat
	verbose     bool
	out         io.Writer
	interactive bool
}

// NewReporter creates a new Reporter instance
func NewReporter(format ReportFormat, verbose bool) *Reporter {
	logger := logrus.New()
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	return &Reporter{
		logger:      logger,
		format:      format,
		verbose:     verbose,
		out:         os.Stdout,
		interactive: term.IsTerminal(int(os.Stderr.Fd())),
	}
}

// SetOutput redirects results to w. Progress always goes to stderr.
func (r *Reporter) SetOutput(w io.Writer) {
	r.out = w
}

// StartSpinner shows an indeterminate spinner on an interactive stderr.
func (r *Reporter) StartSpinner(description string) {
	if !r.interactive || r.format == FormatJSON {
		r.logger.Debug(description)
		return
	}
	r.progressBar = progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(15),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
	_ = r.progressBar.RenderBlank()
}

// StopSpinner removes the spinner
func (r *Reporter) StopSpinner() {
	if r.progressBar != nil {
		_ = r.progressBar.Finish()
		r.progressBar = nil
	}
}

// ReportCommits prints a retrieved list, marking merges, today's commits,
// the current user's commits and the ones the filters select.
func (r *Reporter) ReportCommits(view CommitView) {
	if view.Now.IsZero() {
		view.Now = time.Now()
	}

	switch r.format {
	case FormatJSON:
		r.reportCommitsJSON(view)
	case FormatTable:
		r.reportCommitsTable(view)
	default:
		r.reportCommitsText(view)
	}
}

type commitRow struct {
	commit.Commit
	Merge    bool `json:"merge"`
	Today    bool `json:"today"`
	Mine     bool `json:"mine"`
	Selected bool `json:"selected"`
}

func rows(view CommitView) []commitRow {
	selected := make(map[string]bool, len(view.Selected))
	for _, c := range view.Selected {
		selected[c.Hash] = true
	}

	out := make([]commitRow, 0, len(view.Commits))
	for _, c := range view.Commits {
		out = append(out, commitRow{
			Commit:   c,
			Merge:    c.IsMerge(),
			Today:    filter.IsOn(c, view.Now),
			Mine:     view.Identity != "" && filter.MatchesIdentity(c.Author, view.Identity),
			Selected: selected[c.Hash],
		})
	}
	return out
}

func (r *Reporter) reportCommitsText(view CommitView) {
	fmt.Fprintf(r.out, "提交记录 (%d 条, 选中 %d 条)\n", len(view.Commits), len(view.Selected))
	fmt.Fprintf(r.out, "当前用户: %s\n", identityLabel(view.Identity))
	fmt.Fprintln(r.out, strings.Repeat("-", 60))

	for _, row := range rows(view) {
		mark := "  "
		if row.Selected {
			mark = "✔ "
		}
		var tags []string
		if row.Merge {
			tags = append(tags, "🔀")
		}
		if row.Today {
			tags = append(tags, "今天")
		}
		if row.Mine {
			tags = append(tags, "我")
		}
		tag := ""
		if len(tags) > 0 {
			tag = " [" + strings.Join(tags, " ") + "]"
		}

		fmt.Fprintf(r.out, "%s%s %s %s%s\n", mark, row.Hash, row.Date, row.Message, tag)
		if r.verbose {
			fmt.Fprintf(r.out, "   作者: %s\n", row.Author)
		}
	}
	fmt.Fprintln(r.out)
}

func (r *Reporter) reportCommitsTable(view CommitView) {
	fmt.Fprintf(r.out, "%-3s %-8s %-10s %-18s %-5s %s\n", "选", "哈希", "日期", "作者", "标记", "说明")
	fmt.Fprintln(r.out, strings.Repeat("-", 80))

	for _, row := range rows(view) {
		mark := ""
		if row.Selected {
			mark = "✔"
		}
		flags := ""
		if row.Merge {
			flags += "M"
		}
		if row.Today {
			flags += "T"
		}
		if row.Mine {
			flags += "*"
		}
		fmt.Fprintf(r.out, "%-3s %-8s %-10s %-18s %-5s %s\n",
			mark, row.Hash, row.Date, shorten(row.Author, 18), flags, shorten(row.Message, 40))
	}
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, "标记: M=Merge T=今天 *=当前用户")
}

func (r *Reporter) reportCommitsJSON(view CommitView) {
	output := map[string]interface{}{
		"kind":      view.Kind,
		"location":  view.Location,
		"identity":  view.Identity,
		"commits":   rows(view),
		"total":     len(view.Commits),
		"selected":  len(view.Selected),
		"timestamp": view.Now,
	}
	r.writeJSON(output)
}

// ReportResult prints a generated report
func (r *Reporter) ReportResult(res *orchestrator.Result, label string) {
	if r.format == FormatJSON {
		r.writeJSON(res)
		return
	}

	fmt.Fprintln(r.out, strings.Repeat("=", 60))
	fmt.Fprintf(r.out, "📝 %s (%s / %s)\n", label, res.Provider, res.Model)
	fmt.Fprintf(r.out, "   来源: %s  提交: %d 条, 选中 %d 条  用户: %s\n",
		res.Location, len(res.Commits), len(res.Selected), identityLabel(res.Identity))
	fmt.Fprintln(r.out, strings.Repeat("=", 60))
	fmt.Fprintln(r.out, res.Report)
	fmt.Fprintln(r.out)
}

// ReportModels prints the built-in model catalog
func (r *Reporter) ReportModels(models []llm.Model, current string) {
	if r.format == FormatJSON {
		r.writeJSON(models)
		return
	}

	fmt.Fprintf(r.out, "%-3s %-26s %-8s %s\n", "", "模型", "服务商", "说明")
	fmt.Fprintln(r.out, strings.Repeat("-", 70))
	for _, m := range models {
		mark := ""
		if m.ID == current {
			mark = "*"
		}
		fmt.Fprintf(r.out, "%-3s %-26s %-8s %s\n", mark, m.ID, m.Provider, m.Name)
	}
	fmt.Fprintln(r.out)
}

// ReportRemoteModels prints the models a provider reported
func (r *Reporter) ReportRemoteModels(provider llm.Provider, models []llm.RemoteModel) {
	if r.format == FormatJSON {
		r.writeJSON(map[string]interface{}{"provider": provider, "models": models})
		return
	}

	fmt.Fprintf(r.out, "====== %s 可用模型列表 (%d) ======\n", provider, len(models))
	for _, m := range models {
		if m.OwnedBy != "" {
			fmt.Fprintf(r.out, "ID: %s  (拥有者: %s)\n", m.ID, m.OwnedBy)
		} else {
			fmt.Fprintf(r.out, "ID: %s\n", m.ID)
		}
	}
	fmt.Fprintln(r.out)
}

// ReportHistory prints recent sessions
func (r *Reporter) ReportHistory(sessions []settings.Session) {
	if r.format == FormatJSON {
		r.writeJSON(sessions)
		return
	}

	if len(sessions) == 0 {
		fmt.Fprintln(r.out, "暂无历史记录")
		return
	}

	fmt.Fprintf(r.out, "%-4s %-7s %-36s %-24s %-9s %s\n", "序号", "来源", "位置", "模型", "范围", "最后使用")
	fmt.Fprintln(r.out, strings.Repeat("-", 100))
	for i, s := range sessions {
		fmt.Fprintf(r.out, "%-4d %-7s %-36s %-24s %-9s %s (%d 次)\n",
			i+1, s.Kind, shortenPath(s.Location, 36), s.Model, s.Scope,
			s.LastUsed.Format("2006-01-02 15:04"), s.Runs)
	}
	fmt.Fprintln(r.out)
}

// SaveReport saves data to filename as indented JSON
func (r *Reporter) SaveReport(filename string, data interface{}) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("创建目录失败: %w", err)
		}
	}

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}

	_, err = file.Write(jsonData)
	return err
}

// DefaultReportName returns gitreport-<scope>-<timestamp>.json
func DefaultReportName(scope string, t time.Time) string {
	return fmt.Sprintf("gitreport-%s-%s.json", scope, t.Format("20060102-150405"))
}

func (r *Reporter) writeJSON(v interface{}) {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		r.logger.WithError(err).Error("JSON 序列化失败")
		return
	}
	fmt.Fprintln(r.out, string(jsonData))
}

func identityLabel(identity string) string {
	if identity == "" {
		return "(未知)"
	}
	return identity
}

func shorten(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n-3]) + "..."
}

func shortenPath(p string, n int) string {
	rs := []rune(p)
	if len(rs) <= n {
		return p
	}
	return "..." + string(rs[len(rs)-(n-3):])
}
