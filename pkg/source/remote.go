package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gitreport/pkg/commit"

	"github.com/google/go-github/v57/github"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// maxPerPage is the largest page size the commits endpoint accepts.
const maxPerPage = 100

// cacheHint is sent with every request; it is the only caching the remote source does.
const cacheHint = "max-age=60"

var hostPrefixes = []string{
	"https://www.github.com/",
	"https://github.com/",
	"http://www.github.com/",
	"http://github.com/",
	"www.github.com/",
	"github.com/",
}

// RepoRef is an owner/name pair on the hosting service
type RepoRef struct {
	Owner string
	Name  string
}

func (r RepoRef) String() string {
	return r.Owner + "/" + r.Name
}

// ParseRepoRef accepts "owner/name" or a repository URL on the hosting service.
func ParseRepoRef(s string) (RepoRef, error) {
	ref := strings.TrimSpace(s)
	for _, prefix := range hostPrefixes {
		if strings.HasPrefix(strings.ToLower(ref), prefix) {
			ref = ref[len(prefix):]
			break
		}
	}
	ref = strings.Trim(ref, "/")
	ref = strings.TrimSuffix(ref, ".git")

	parts := strings.Split(ref, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return RepoRef{}, &Error{
			Kind:     InvalidReference,
			Location: s,
			Message:  `仓库格式错误，请输入 "owner/repo" 例如 "facebook/react"`,
		}
	}
	return RepoRef{Owner: parts[0], Name: parts[1]}, nil
}

// RemoteSource lists commits through the GitHub REST API.
type RemoteSource struct {
	baseURL  string
	location *time.Location
	limiter  *rate.Limiter
	timeout  time.Duration
	logger   *logrus.Logger
}

var _ Source = (*RemoteSource)(nil)

// RemoteOption configures a RemoteSource
type RemoteOption func(*RemoteSource)

// WithBaseURL points the source at a different API root (GitHub Enterprise, tests).
func WithBaseURL(baseURL string) RemoteOption {
	return func(s *RemoteSource) {
		s.baseURL = baseURL
	}
}

// WithLocation sets the time zone used for day bounds and date rendering.
func WithLocation(loc *time.Location) RemoteOption {
	return func(s *RemoteSource) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithRateLimit throttles outgoing requests to rps per second. Zero disables throttling.
func WithRateLimit(rps int) RemoteOption {
	return func(s *RemoteSource) {
		if rps > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		} else {
			s.limiter = nil
		}
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) RemoteOption {
	return func(s *RemoteSource) {
		s.timeout = d
	}
}

// NewRemoteSource creates a GitHub-backed source
func NewRemoteSource(opts ...RemoteOption) *RemoteSource {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	s := &RemoteSource{
		location: time.Local,
		limiter:  rate.NewLimiter(rate.Limit(10), 1),
		timeout:  30 * time.Second,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetLogLevel sets the logging level
func (s *RemoteSource) SetLogLevel(level logrus.Level) {
	s.logger.SetLevel(level)
}

func (s *RemoteSource) Name() string {
	return "GitHub"
}

// Retrieve lists up to req.Limit commits, newest first.
func (s *RemoteSource) Retrieve(ctx context.Context, req Request) ([]commit.Commit, error) {
	ref, err := ParseRepoRef(req.Location)
	if err != nil {
		return nil, err
	}

	client, err := s.newClient(req.Credential)
	if err != nil {
		return nil, &Error{Kind: SourceFailure, Location: ref.String(), Message: "创建 GitHub 客户端失败", Cause: err}
	}

	opts := &github.CommitsListOptions{
		ListOptions: github.ListOptions{PerPage: min(req.Limit, maxPerPage)},
	}
	if !req.Since.IsZero() {
		opts.Since = commit.StartOfDay(req.Since, s.location)
	}
	if !req.Until.IsZero() {
		opts.Until = commit.EndOfDay(req.Until, s.location)
	}

	s.logger.Debugf("请求 GitHub 提交: %s per_page=%d since=%v until=%v",
		ref, opts.PerPage, opts.Since, opts.Until)

	commits := make([]commit.Commit, 0, req.Limit)
	for {
		page, resp, err := client.Repositories.ListCommits(ctx, ref.Owner, ref.Name, opts)
		if err != nil {
			return nil, s.classify(ctx, ref, err)
		}

		for _, rc := range page {
			commits = append(commits, s.toCommit(rc))
			if len(commits) >= req.Limit {
				return commits, nil
			}
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	s.logger.Debugf("从 %s 获取到 %d 条提交", ref, len(commits))
	return commits, nil
}

func (s *RemoteSource) newClient(credential string) (*github.Client, error) {
	httpClient := &http.Client{
		Timeout:   s.timeout,
		Transport: &rateLimitedTransport{base: http.DefaultTransport, limiter: s.limiter},
	}

	client := github.NewClient(httpClient)
	if credential = strings.TrimSpace(credential); credential != "" {
		client = client.WithAuthToken(credential)
	}

	if s.baseURL != "" {
		base := s.baseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("invalid base URL %q: %w", s.baseURL, err)
		}
		client.BaseURL = u
	}
	return client, nil
}

// toCommit keeps only the fields the rest of the system needs.
func (s *RemoteSource) toCommit(rc *github.RepositoryCommit) commit.Commit {
	hash := rc.GetSHA()
	if len(hash) > commit.ShortHashLen {
		hash = hash[:commit.ShortHashLen]
	}

	author := rc.GetCommit().GetAuthor()
	return commit.Commit{
		Hash:    hash,
		Author:  author.GetName(),
		Date:    commit.FormatDate(author.GetDate().Time.In(s.location)),
		Message: commit.Subject(rc.GetCommit().GetMessage()),
	}
}

func (s *RemoteSource) classify(ctx context.Context, ref RepoRef, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &Error{Kind: SourceFailure, Location: ref.String(), Message: "GitHub 请求被取消", Cause: ctxErr}
	}

	if resp := errorResponse(err); resp != nil {
		s.logger.WithError(err).Debugf("GitHub API 返回 %s", resp.Status)
		return &Error{
			Kind:     RemoteFailure,
			Location: ref.String(),
			Status:   resp.Status,
			Message:  "GitHub API 请求失败",
		}
	}

	return &Error{Kind: SourceFailure, Location: ref.String(), Message: "GitHub API 请求失败", Cause: err}
}

// errorResponse extracts the HTTP response from the error types go-github returns
// for non-success statuses.
func errorResponse(err error) *http.Response {
	var (
		errResp   *github.ErrorResponse
		rateErr   *github.RateLimitError
		abuseErr  *github.AbuseRateLimitError
		acceptErr *github.AcceptedError
	)
	switch {
	case errors.As(err, &rateErr):
		return rateErr.Response
	case errors.As(err, &abuseErr):
		return abuseErr.Response
	case errors.As(err, &errResp):
		return errResp.Response
	case errors.As(err, &acceptErr):
		return &http.Response{StatusCode: http.StatusAccepted, Status: "202 Accepted"}
	}
	return nil
}

// rateLimitedTransport waits on the limiter before each request and adds the cache hint.
type rateLimitedTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func (t *rateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	req = req.Clone(req.Context())
	if req.Header.Get("Cache-Control") == "" {
		req.Header.Set("Cache-Control", cacheHint)
	}
	return t.base.RoundTrip(req)
}
