package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gitreport/pkg/commit"
)

// Kind identifies where commits come from
type Kind string

const (
	KindLocal  Kind = "local"
	KindRemote Kind = "remote"
)

// MaxLimit is the largest retrieval cap a request may ask for.
const MaxLimit = 1000

// DefaultLimit 默认获取条数
const DefaultLimit = 25

// ParseKind converts a user supplied mode name into a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local", "本地":
		return KindLocal, nil
	case "remote", "github":
		return KindRemote, nil
	default:
		return "", fmt.Errorf("未知的来源类型: %q (local|remote)", s)
	}
}

// Request describes a single retrieval
type Request struct {
	Kind     Kind
	Location string
	Limit    int
	// Since and Until are inclusive calendar-date bounds; the zero value means unbounded.
	Since time.Time
	Until time.Time
	// Credential is only used by remote sources.
	Credential string
}

// Validate checks the request before any process or network call is made.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Location) == "" {
		return fmt.Errorf("仓库位置不能为空")
	}
	if r.Limit <= 0 || r.Limit > MaxLimit {
		return fmt.Errorf("获取条数超出范围: %d (1-%d)", r.Limit, MaxLimit)
	}
	if !r.Since.IsZero() && !r.Until.IsZero() &&
		commit.FormatDate(r.Since) > commit.FormatDate(r.Until) {
		return fmt.Errorf("开始日期 %s 晚于结束日期 %s",
			commit.FormatDate(r.Since), commit.FormatDate(r.Until))
	}
	return nil
}

// Source converts one backend into normalized commit records.
type Source interface {
	Name() string
	Retrieve(ctx context.Context, req Request) ([]commit.Commit, error)
}

// IdentityResolver is implemented by sources that can tell who the current user is.
// An unknown identity is reported as the empty string, never as an error.
type IdentityResolver interface {
	ResolveCurrentUser(ctx context.Context, location string) string
}
