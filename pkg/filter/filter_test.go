package filter

import (
	"testing"
	"time"

	"gitreport/pkg/commit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 1, 10, 9, 30, 0, 0, time.Local)

func sample() []commit.Commit {
	return []commit.Commit{
		{Hash: "a000001", Author: "Jane DOE", Date: "2024-01-10", Message: "Fix login bug"},
		{Hash: "a000002", Author: "Bob", Date: "2024-01-10", Message: "Merge branch 'dev'"},
		{Hash: "a000003", Author: "jane doe", Date: "2024-01-09", Message: "Add audit log"},
		{Hash: "a000004", Author: "Bob", Date: "2024-01-09", Message: "Refactor parser"},
		{Hash: "a000005", Author: "Jane Doe", Date: "2024-01-08", Message: "Merge pull request #3"},
		{Hash: "a000006", Author: "Ann", Date: "2024-01-10", Message: "merge is lowercase here"},
	}
}

func hashes(cs []commit.Commit) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Hash)
	}
	return out
}

func TestSelect_ExcludeMergesAllTime(t *testing.T) {
	in := []commit.Commit{
		{Hash: "1111111", Date: "2024-01-10", Author: "Alice", Message: "Fix login bug"},
		{Hash: "2222222", Date: "2024-01-10", Author: "Bob", Message: "Merge branch 'dev'"},
	}

	got := Select(in, Options{ExcludeMerges: true, Scope: ScopeAllTime, Now: fixedNow})
	require.Len(t, got, 1)
	assert.Equal(t, "Alice", got[0].Author)
}

func TestSelect_MergePrefixIsCaseSensitive(t *testing.T) {
	got := Select(sample(), Options{ExcludeMerges: true, Scope: ScopeAllTime, Now: fixedNow})
	assert.Equal(t, []string{"a000001", "a000003", "a000004", "a000006"}, hashes(got))
	for _, c := range got {
		assert.False(t, c.IsMerge())
	}
}

func TestSelect_AllTimeKeepsEverything(t *testing.T) {
	in := sample()
	got := Select(in, Options{Scope: ScopeAllTime, IdentityHint: "nobody", Now: fixedNow})
	assert.Equal(t, hashes(in), hashes(got))
}

func TestSelect_Today(t *testing.T) {
	got := Select(sample(), Options{Scope: ScopeToday, IdentityHint: "jane", Now: fixedNow})
	assert.Equal(t, []string{"a000001"}, hashes(got))
}

func TestSelect_Yesterday(t *testing.T) {
	got := Select(sample(), Options{Scope: ScopeYesterday, IdentityHint: "JANE", Now: fixedNow})
	assert.Equal(t, []string{"a000003"}, hashes(got))
}

func TestSelect_YesterdayAcrossMonthBoundary(t *testing.T) {
	in := []commit.Commit{
		{Hash: "1111111", Date: "2024-02-29", Author: "a", Message: "leap"},
		{Hash: "2222222", Date: "2024-03-01", Author: "a", Message: "today"},
	}
	now := time.Date(2024, 3, 1, 0, 5, 0, 0, time.Local)
	assert.Equal(t, []string{"1111111"}, hashes(Select(in, Options{Scope: ScopeYesterday, Now: now})))
}

func TestSelect_EmptyHintMatchesAllAuthors(t *testing.T) {
	got := Select(sample(), Options{Scope: ScopeToday, Now: fixedNow})
	assert.Equal(t, []string{"a000001", "a000002", "a000006"}, hashes(got))
}

func TestSelect_Idempotent(t *testing.T) {
	for _, opts := range []Options{
		{ExcludeMerges: true, Scope: ScopeToday, IdentityHint: "doe", Now: fixedNow},
		{ExcludeMerges: false, Scope: ScopeYesterday, Now: fixedNow},
		{ExcludeMerges: true, Scope: ScopeAllTime, Now: fixedNow},
	} {
		once := Select(sample(), opts)
		twice := Select(once, opts)
		assert.Equal(t, once, twice, "scope %s", opts.Scope)
	}
}

func TestSelect_DoesNotModifyInput(t *testing.T) {
	in := sample()
	before := append([]commit.Commit(nil), in...)
	_ = Select(in, Options{ExcludeMerges: true, Scope: ScopeToday, Now: fixedNow})
	assert.Equal(t, before, in)
}

func TestSelect_EmptyInput(t *testing.T) {
	assert.Empty(t, Select(nil, Options{Scope: ScopeToday, Now: fixedNow}))
}

func TestMatchesIdentity(t *testing.T) {
	assert.True(t, MatchesIdentity("Jane DOE", "jane"))
	assert.True(t, MatchesIdentity("Straße Team", "STRASSE"))
	assert.True(t, MatchesIdentity("anyone", ""))
	assert.False(t, MatchesIdentity("Bob", "alice"))
}

func TestParseScope(t *testing.T) {
	for in, want := range map[string]Scope{
		"today": ScopeToday, "Daily": ScopeToday,
		"yesterday": ScopeYesterday,
		"all": ScopeAllTime, "weekly": ScopeAllTime, "all-time": ScopeAllTime,
	} {
		got, err := ParseScope(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseScope("monthly")
	assert.Error(t, err)
}

func TestWeekStart(t *testing.T) {
	// 2024-01-10 is a Wednesday.
	assert.Equal(t, time.Date(2024, 1, 8, 0, 0, 0, 0, time.Local), WeekStart(fixedNow))

	sunday := time.Date(2024, 1, 14, 18, 0, 0, 0, time.Local)
	assert.Equal(t, time.Date(2024, 1, 8, 0, 0, 0, 0, time.Local), WeekStart(sunday))

	monday := time.Date(2024, 1, 8, 0, 0, 0, 0, time.Local)
	assert.Equal(t, monday, WeekStart(monday))
}

func TestIsOn(t *testing.T) {
	c := commit.Commit{Date: "2024-01-10"}
	assert.True(t, IsOn(c, fixedNow))
	assert.False(t, IsOn(c, fixedNow.AddDate(0, 0, 1)))
}
