package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"gitreport/pkg/commit"
	"gitreport/pkg/filter"
	"gitreport/pkg/llm"
	"gitreport/pkg/source"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var clock = func() time.Time { return time.Date(2024, 1, 10, 18, 0, 0, 0, time.Local) }

type fakeSource struct {
	commits  []commit.Commit
	err      error
	identity string
	calls    int
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Retrieve(ctx context.Context, req source.Request) ([]commit.Commit, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.commits, nil
}

type resolvingSource struct {
	fakeSource
}

func (r *resolvingSource) ResolveCurrentUser(ctx context.Context, location string) string {
	return r.identity
}

type fakeGenerator struct {
	got    []commit.Commit
	model  string
	report string
	err    error
	calls  int
}

func (g *fakeGenerator) Generate(ctx context.Context, commits []commit.Commit, modelID string, creds llm.Credentials) (string, error) {
	g.calls++
	g.got = commits
	g.model = modelID
	return g.report, g.err
}

func (g *fakeGenerator) Route(modelID string) llm.Provider {
	return llm.ProviderAliyun
}

func aliceBob() []commit.Commit {
	return []commit.Commit{
		{Hash: "1111111", Date: "2024-01-10", Author: "Alice", Message: "Fix login bug"},
		{Hash: "2222222", Date: "2024-01-10", Author: "Bob", Message: "Merge branch 'dev'"},
	}
}

func localRequest() source.Request {
	return source.Request{Kind: source.KindLocal, Location: "/repo", Limit: 25}
}

func TestRun_ExcludeMergesAllTime(t *testing.T) {
	src := &fakeSource{commits: aliceBob()}
	gen := &fakeGenerator{report: "1.修复登录问题"}
	o := New(map[source.Kind]source.Source{source.KindLocal: src}, gen, WithClock(clock))

	res, err := o.Run(context.Background(), Request{
		Source:        localRequest(),
		ExcludeMerges: true,
		Scope:         filter.ScopeAllTime,
		Model:         "qwen-flash",
	})
	require.NoError(t, err)

	require.Len(t, gen.got, 1)
	assert.Equal(t, "Alice", gen.got[0].Author)
	assert.Equal(t, "qwen-flash", gen.model)

	assert.Equal(t, "1.修复登录问题", res.Report)
	assert.Equal(t, llm.ProviderAliyun, res.Provider)
	assert.Len(t, res.Commits, 2)
	assert.Equal(t, gen.got, res.Selected)
	assert.Equal(t, "all", res.Scope)
	assert.Equal(t, clock(), res.GeneratedAt)
}

func TestRun_TodayUsesResolvedIdentity(t *testing.T) {
	src := &resolvingSource{fakeSource{
		identity: "alice",
		commits: []commit.Commit{
			{Hash: "1111111", Date: "2024-01-10", Author: "Alice Liddell", Message: "today mine"},
			{Hash: "2222222", Date: "2024-01-10", Author: "Bob", Message: "today theirs"},
			{Hash: "3333333", Date: "2024-01-09", Author: "Alice Liddell", Message: "yesterday mine"},
		},
	}}
	gen := &fakeGenerator{report: "ok"}
	o := New(map[source.Kind]source.Source{source.KindLocal: src}, gen, WithClock(clock))

	res, err := o.Run(context.Background(), Request{Source: localRequest(), Scope: filter.ScopeToday, Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "alice", res.Identity)
	require.Len(t, gen.got, 1)
	assert.Equal(t, "today mine", gen.got[0].Message)
}

func TestRun_IdentityOverride(t *testing.T) {
	src := &resolvingSource{fakeSource{
		identity: "alice",
		commits:  []commit.Commit{{Hash: "2222222", Date: "2024-01-09", Author: "Bob", Message: "x"}},
	}}
	gen := &fakeGenerator{report: "ok"}
	o := New(map[source.Kind]source.Source{source.KindLocal: src}, gen, WithClock(clock))

	res, err := o.Run(context.Background(), Request{
		Source: localRequest(), Scope: filter.ScopeYesterday, Identity: "BOB", Model: "m",
	})
	require.NoError(t, err)
	assert.Equal(t, "BOB", res.Identity)
	assert.Len(t, gen.got, 1)
}

func TestRun_NothingSelectedSkipsGeneration(t *testing.T) {
	src := &fakeSource{commits: aliceBob()}
	gen := &fakeGenerator{report: "ok"}
	o := New(map[source.Kind]source.Source{source.KindLocal: src}, gen, WithClock(clock))

	_, err := o.Run(context.Background(), Request{
		Source: localRequest(), Scope: filter.ScopeYesterday, Model: "m",
	})
	assert.ErrorIs(t, err, ErrNothingSelected)
	assert.Equal(t, 0, gen.calls)
}

func TestRun_ValidationBeforeRetrieval(t *testing.T) {
	src := &fakeSource{commits: aliceBob()}
	gen := &fakeGenerator{report: "ok"}
	o := New(map[source.Kind]source.Source{source.KindLocal: src}, gen)

	day := time.Date(2024, 1, 10, 0, 0, 0, 0, time.Local)
	bad := []Request{
		{Source: localRequest(), Model: ""},
		{Source: source.Request{Kind: source.KindLocal, Location: "", Limit: 5}, Model: "m"},
		{Source: source.Request{Kind: source.KindLocal, Location: "/r", Limit: 0}, Model: "m"},
		{Source: source.Request{Kind: source.KindLocal, Location: "/r", Limit: 5, Since: day, Until: day.AddDate(0, 0, -2)}, Model: "m"},
		{Source: source.Request{Kind: source.KindRemote, Location: "a/b", Limit: 5}, Model: "m"},
	}
	for i, req := range bad {
		_, err := o.Run(context.Background(), req)
		assert.Error(t, err, "case %d", i)
	}
	assert.Equal(t, 0, src.calls)
	assert.Equal(t, 0, gen.calls)
}

func TestRun_ErrorsPropagateUnmodified(t *testing.T) {
	srcErr := &source.Error{Kind: source.SourceUnavailable, Location: "/repo"}
	o := New(map[source.Kind]source.Source{source.KindLocal: &fakeSource{err: srcErr}}, &fakeGenerator{})

	_, err := o.Run(context.Background(), Request{Source: localRequest(), Scope: filter.ScopeAllTime, Model: "m"})
	assert.Same(t, srcErr, err)

	genErr := &llm.MissingCredentialError{Provider: llm.ProviderAliyun}
	gen := &fakeGenerator{err: genErr}
	o = New(map[source.Kind]source.Source{source.KindLocal: &fakeSource{commits: aliceBob()}}, gen)

	_, err = o.Run(context.Background(), Request{Source: localRequest(), Scope: filter.ScopeAllTime, Model: "qwen-flash"})
	var missing *llm.MissingCredentialError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, llm.ProviderAliyun, missing.Provider)
}

func TestRun_RejectsInvalidBatch(t *testing.T) {
	src := &fakeSource{commits: []commit.Commit{
		{Hash: "1111111", Date: "2024-01-10", Author: "a", Message: "x"},
		{Hash: "1111111", Date: "2024-01-10", Author: "a", Message: "y"},
	}}
	gen := &fakeGenerator{report: "ok"}
	o := New(map[source.Kind]source.Source{source.KindLocal: src}, gen)

	_, err := o.Run(context.Background(), Request{Source: localRequest(), Scope: filter.ScopeAllTime, Model: "m"})
	require.Error(t, err)
	assert.Equal(t, 0, gen.calls)
}

func TestFetch_EagerAndLazy(t *testing.T) {
	now := clock()
	current := func() time.Time { return now }

	for _, mode := range []FilterMode{FilterEager, FilterLazy} {
		src := &fakeSource{commits: []commit.Commit{
			{Hash: "1111111", Date: "2024-01-10", Author: "a", Message: "wed"},
			{Hash: "2222222", Date: "2024-01-11", Author: "a", Message: "thu"},
		}}
		o := New(map[source.Kind]source.Source{source.KindLocal: src}, &fakeGenerator{},
			WithFilterMode(mode), WithClock(current))

		batch, err := o.Fetch(context.Background(), Request{Source: localRequest(), Scope: filter.ScopeToday})
		require.NoError(t, err)
		assert.Len(t, batch.Commits, 2)
		require.Len(t, batch.Selected(), 1, mode)
		assert.Equal(t, "wed", batch.Selected()[0].Message)

		// Advance the clock a day: lazy batches recompute, eager ones keep the fetch-time view.
		now = now.AddDate(0, 0, 1)
		want := "wed"
		if mode == FilterLazy {
			want = "thu"
		}
		require.Len(t, batch.Selected(), 1, mode)
		assert.Equal(t, want, batch.Selected()[0].Message, mode)

		all := batch.Select(filter.Options{Scope: filter.ScopeAllTime})
		assert.Len(t, all, 2)
		now = clock()
	}
}

func TestParseFilterMode(t *testing.T) {
	m, err := ParseFilterMode("LAZY")
	require.NoError(t, err)
	assert.Equal(t, FilterLazy, m)

	m, err = ParseFilterMode("")
	require.NoError(t, err)
	assert.Equal(t, FilterEager, m)

	_, err = ParseFilterMode("reactive")
	assert.Error(t, err)
}
