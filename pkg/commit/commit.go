package commit

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout 提交日期的统一格式 (YYYY-MM-DD)
const DateLayout = "2006-01-02"

// ShortHashLen 短哈希长度
const ShortHashLen = 7

// Commit 标准化后的提交记录，本地与远程来源共用
type Commit struct {
	Hash    string `json:"hash"`
	Author  string `json:"author"`
	Date    string `json:"date"`
	Message string `json:"message"`
}

// IsMerge reports whether the subject starts with the literal "Merge" token.
// This is a prefix test on the subject, not an inspection of parents.
func (c Commit) IsMerge() bool {
	return strings.HasPrefix(c.Message, "Merge")
}

// FormatDate renders t as a calendar date in t's own location.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD string as local midnight.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("日期格式错误 %q (应为 YYYY-MM-DD): %w", s, err)
	}
	return t, nil
}

// StartOfDay returns the first instant of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// EndOfDay returns the last instant of t's calendar day in loc.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	return StartOfDay(t, loc).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// Subject returns the first line of a commit message.
func Subject(message string) string {
	if i := strings.IndexAny(message, "\r\n"); i >= 0 {
		message = message[:i]
	}
	return strings.TrimSpace(message)
}

// ValidateBatch checks the invariants every retrieval batch must hold:
// non-empty hashes, hashes unique within the batch, and valid calendar dates.
func ValidateBatch(commits []Commit) error {
	seen := make(map[string]int, len(commits))
	for i, c := range commits {
		if c.Hash == "" {
			return fmt.Errorf("第 %d 条提交缺少哈希", i+1)
		}
		if j, ok := seen[c.Hash]; ok {
			return fmt.Errorf("提交哈希重复: %s (第 %d 条与第 %d 条)", c.Hash, j+1, i+1)
		}
		seen[c.Hash] = i
		if _, err := time.Parse(DateLayout, c.Date); err != nil {
			return fmt.Errorf("提交 %s 的日期无效: %q", c.Hash, c.Date)
		}
	}
	return nil
}
