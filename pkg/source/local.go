package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"gitreport/pkg/commit"

	"github.com/sirupsen/logrus"
)

// logFormat 哈希|作者|日期|标题
const logFormat = "--pretty=format:%h|%an|%ad|%s"

// LocalSource reads history from an on-disk git repository through the git CLI.
type LocalSource struct {
	gitPath string
	logger  *logrus.Logger
}

var (
	_ Source           = (*LocalSource)(nil)
	_ IdentityResolver = (*LocalSource)(nil)
)

// NewLocalSource creates a local git source
func NewLocalSource() *LocalSource {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	return &LocalSource{
		gitPath: "git",
		logger:  logger,
	}
}

// SetLogLevel sets the logging level
func (s *LocalSource) SetLogLevel(level logrus.Level) {
	s.logger.SetLevel(level)
}

func (s *LocalSource) Name() string {
	return "本地仓库"
}

// Retrieve 执行一次 git log 查询并解析为提交记录
func (s *LocalSource) Retrieve(ctx context.Context, req Request) ([]commit.Commit, error) {
	location := req.Location

	info, err := os.Stat(location)
	if err != nil {
		return nil, &Error{Kind: SourceFailure, Location: location, Message: "无法访问仓库路径", Cause: err}
	}
	if !info.IsDir() {
		return nil, &Error{Kind: SourceFailure, Location: location, Message: "仓库路径不是目录"}
	}
	if !isGitRepository(location) {
		return nil, &Error{Kind: SourceUnavailable, Location: location, Message: "该目录下没有 .git，不是 Git 仓库根目录"}
	}

	args := logArgs(location, req)
	s.logger.Debugf("执行本地命令: git %s", strings.Join(args, " "))

	output, err := s.runGit(ctx, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &Error{Kind: SourceFailure, Location: location, Message: "读取 Git 记录被取消", Cause: ctxErr}
		}
		if gerr := classifyGitError(location, err); gerr != nil {
			return nil, gerr
		}
		s.logger.Debugf("仓库 %s 还没有任何提交", location)
		return []commit.Commit{}, nil
	}

	commits, err := parseLog(output)
	if err != nil {
		var se *Error
		if errors.As(err, &se) {
			se.Location = location
		}
		return nil, err
	}

	s.logger.Debugf("从 %s 读取到 %d 条提交", location, len(commits))
	return commits, nil
}

// ResolveCurrentUser returns the user.name configured for the repository.
// Any failure yields "" so that the caller falls back to an unknown identity.
func (s *LocalSource) ResolveCurrentUser(ctx context.Context, location string) string {
	output, err := s.runGit(ctx, "-C", location, "config", "user.name")
	if err != nil {
		s.logger.WithError(err).Debugf("无法读取 git user.name: %s", location)
		return ""
	}
	return strings.TrimSpace(output)
}

func (s *LocalSource) runGit(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, s.gitPath, args...)
	cmd.Env = append(os.Environ(),
		"GIT_TERMINAL_PROMPT=0",
		"GIT_PAGER=cat",
		"LC_ALL=C",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", &gitError{err: err, stderr: strings.TrimSpace(stderr.String())}
	}
	return stdout.String(), nil
}

// logArgs builds the git log arguments. Both bounds are pinned to the edges of
// their day; a bare date would otherwise take the current time of day.
func logArgs(location string, req Request) []string {
	args := []string{
		"-C", location,
		"log",
		"-n", strconv.Itoa(req.Limit),
		logFormat,
		"--date=short-local",
	}
	if !req.Since.IsZero() {
		args = append(args, "--since="+commit.FormatDate(req.Since)+" 00:00:00")
	}
	if !req.Until.IsZero() {
		args = append(args, "--until="+commit.FormatDate(req.Until)+" 23:59:59")
	}
	return args
}

// parseLog 解析 git log 输出，每行四个字段
func parseLog(output string) ([]commit.Commit, error) {
	commits := []commit.Commit{}

	for i, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		parts := strings.SplitN(line, "|", 4)
		if len(parts) < 4 {
			return nil, &Error{
				Kind:    MalformedRecord,
				Line:    i + 1,
				Message: fmt.Sprintf("第 %d 行字段不足 (需要 4 个，实际 %d 个): %q", i+1, len(parts), line),
			}
		}

		commits = append(commits, commit.Commit{
			Hash:    strings.TrimSpace(parts[0]),
			Author:  strings.TrimSpace(parts[1]),
			Date:    strings.TrimSpace(parts[2]),
			Message: parts[3],
		})
	}

	return commits, nil
}

// isGitRepository checks for a .git directory or file at the root
func isGitRepository(path string) bool {
	if _, err := os.Stat(filepath.Join(path, ".git")); err != nil {
		return false
	}
	return true
}

type gitError struct {
	err    error
	stderr string
}

func (e *gitError) Error() string {
	if e.stderr != "" {
		return fmt.Sprintf("%v: %s", e.err, e.stderr)
	}
	return e.err.Error()
}

func (e *gitError) Unwrap() error {
	return e.err
}

// classifyGitError maps a failed git run to a source error. It returns nil for
// a repository that exists but has no commits yet.
func classifyGitError(location string, err error) error {
	var ge *gitError
	if errors.As(err, &ge) {
		msg := strings.ToLower(ge.stderr)
		switch {
		case strings.Contains(msg, "not a git repository"):
			return &Error{Kind: SourceUnavailable, Location: location, Message: "不是有效的 Git 仓库", Cause: err}
		case strings.Contains(msg, "does not have any commits yet"),
			strings.Contains(msg, "bad default revision"):
			return nil
		}
	}
	return &Error{Kind: SourceFailure, Location: location, Message: "执行 git log 失败", Cause: err}
}
