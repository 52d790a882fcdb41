package filter

import (
	"fmt"
	"strings"
	"time"

	"gitreport/pkg/commit"

	"golang.org/x/text/cases"
)

// Scope is the time window a report covers
type Scope int

const (
	// ScopeToday keeps today's commits by the current user (日报)
	ScopeToday Scope = iota
	// ScopeYesterday keeps yesterday's commits by the current user
	ScopeYesterday
	// ScopeAllTime keeps everything (周报)
	ScopeAllTime
)

func (s Scope) String() string {
	switch s {
	case ScopeToday:
		return "today"
	case ScopeYesterday:
		return "yesterday"
	case ScopeAllTime:
		return "all"
	default:
		return fmt.Sprintf("scope(%d)", int(s))
	}
}

// Label returns the report name shown to users.
func (s Scope) Label() string {
	switch s {
	case ScopeToday:
		return "日报"
	case ScopeYesterday:
		return "昨日日报"
	default:
		return "周报"
	}
}

// ParseScope converts a flag value into a Scope.
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "today", "daily", "day":
		return ScopeToday, nil
	case "yesterday":
		return ScopeYesterday, nil
	case "all", "all-time", "alltime", "weekly", "week":
		return ScopeAllTime, nil
	default:
		return ScopeToday, fmt.Errorf("未知的报告范围: %q (today|yesterday|all)", s)
	}
}

// Options controls a selection. A zero Now means the wall clock.
type Options struct {
	ExcludeMerges bool
	Scope         Scope
	IdentityHint  string
	Now           time.Time
}

// Select returns the commits that pass every enabled rule, in input order.
// It never modifies its input.
func Select(commits []commit.Commit, opts Options) []commit.Commit {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	var day string
	switch opts.Scope {
	case ScopeToday:
		day = commit.FormatDate(now)
	case ScopeYesterday:
		day = commit.FormatDate(now.AddDate(0, 0, -1))
	}

	hint := fold(opts.IdentityHint)
	selected := make([]commit.Commit, 0, len(commits))
	for _, c := range commits {
		if opts.ExcludeMerges && c.IsMerge() {
			continue
		}
		if day != "" {
			if c.Date != day {
				continue
			}
			if hint != "" && !strings.Contains(fold(c.Author), hint) {
				continue
			}
		}
		selected = append(selected, c)
	}
	return selected
}

// MatchesIdentity reports whether author contains hint, ignoring case.
// An empty hint matches every author.
func MatchesIdentity(author, hint string) bool {
	hint = fold(hint)
	return hint == "" || strings.Contains(fold(author), hint)
}

// IsOn reports whether c was made on the calendar day of t.
func IsOn(c commit.Commit, t time.Time) bool {
	return c.Date == commit.FormatDate(t)
}

// WeekStart returns local midnight of the Monday on or before now.
func WeekStart(now time.Time) time.Time {
	daysSinceMonday := int(now.Weekday() - time.Monday)
	if daysSinceMonday < 0 {
		daysSinceMonday += 7
	}
	return time.Date(now.Year(), now.Month(), now.Day()-daysSinceMonday, 0, 0, 0, 0, now.Location())
}

// fold builds a fresh Caser per call; Casers are not safe for concurrent use.
func fold(s string) string {
	return cases.Fold().String(s)
}
