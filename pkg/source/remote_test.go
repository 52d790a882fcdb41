package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const commitsPath = "/repos/acme/widget/commits"

func commitJSON(sha, author, date, message string) string {
	return fmt.Sprintf(`{"sha":%q,"commit":{"author":{"name":%q,"date":%q},"message":%q}}`,
		sha, author, date, message)
}

func TestParseRepoRef(t *testing.T) {
	tests := []struct {
		in    string
		owner string
		name  string
	}{
		{"facebook/react", "facebook", "react"},
		{"https://github.com/facebook/react", "facebook", "react"},
		{"https://GitHub.com/facebook/react/", "facebook", "react"},
		{"github.com/facebook/react.git", "facebook", "react"},
		{"  www.github.com/a/b  ", "a", "b"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			ref, err := ParseRepoRef(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.owner, ref.Owner)
			assert.Equal(t, tt.name, ref.Name)
		})
	}

	for _, bad := range []string{"", "not-a-repo", "a/b/c", "/react", "https://github.com/facebook"} {
		_, err := ParseRepoRef(bad)
		assert.True(t, errors.Is(err, ErrInvalidReference), "input %q", bad)
	}
}

func TestRemoteSource_Retrieve(t *testing.T) {
	loc := time.FixedZone("CST", 8*3600)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, commitsPath, r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		assert.Equal(t, cacheHint, r.Header.Get("Cache-Control"))

		q := r.URL.Query()
		assert.Equal(t, "5", q.Get("per_page"))

		since, err := time.Parse(time.RFC3339, q.Get("since"))
		require.NoError(t, err)
		assert.True(t, since.Equal(time.Date(2024, 1, 8, 0, 0, 0, 0, loc)), "since=%s", q.Get("since"))

		until, err := time.Parse(time.RFC3339, q.Get("until"))
		require.NoError(t, err)
		assert.Equal(t, "2024-01-10", until.In(loc).Format("2006-01-02"))
		assert.Equal(t, 23, until.In(loc).Hour())

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, "["+
			commitJSON("a1b2c3d4e5f6a7b8", "Alice", "2024-01-10T17:30:00Z", "Fix login\n\nlonger body")+","+
			commitJSON("0123456789abcdef", "Bob", "2024-01-09T02:00:00Z", "Merge pull request #12")+
			"]")
	}))
	defer srv.Close()

	src := NewRemoteSource(WithBaseURL(srv.URL), WithRateLimit(0), WithLocation(loc))
	commits, err := src.Retrieve(context.Background(), Request{
		Kind:       KindRemote,
		Location:   "https://github.com/acme/widget",
		Limit:      5,
		Since:      time.Date(2024, 1, 8, 12, 0, 0, 0, loc),
		Until:      time.Date(2024, 1, 10, 0, 0, 0, 0, loc),
		Credential: "secret-token",
	})
	require.NoError(t, err)
	require.Len(t, commits, 2)

	assert.Equal(t, "a1b2c3d", commits[0].Hash)
	assert.Equal(t, "Alice", commits[0].Author)
	// 17:30Z is already the next day at UTC+8.
	assert.Equal(t, "2024-01-11", commits[0].Date)
	assert.Equal(t, "Fix login", commits[0].Message)

	assert.Equal(t, "0123456", commits[1].Hash)
	assert.Equal(t, "2024-01-09", commits[1].Date)
	assert.True(t, commits[1].IsMerge())
}

func TestRemoteSource_NoCredentialSendsNoAuthorization(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Empty(t, r.URL.Query().Get("since"))
		assert.Empty(t, r.URL.Query().Get("until"))
		fmt.Fprint(w, "[]")
	}))
	defer srv.Close()

	src := NewRemoteSource(WithBaseURL(srv.URL), WithRateLimit(0))
	commits, err := src.Retrieve(context.Background(), Request{Location: "acme/widget", Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, commits)
}

func TestRemoteSource_PaginatesUpToLimit(t *testing.T) {
	var hits int32
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		page := r.URL.Query().Get("page")
		if page == "" || page == "1" {
			w.Header().Set("Link", fmt.Sprintf(`<%s%s?page=2&per_page=3>; rel="next"`, srv.URL, commitsPath))
			fmt.Fprint(w, "["+
				commitJSON("1111111aaaa", "A", "2024-01-10T01:00:00Z", "one")+","+
				commitJSON("2222222bbbb", "A", "2024-01-10T01:00:00Z", "two")+"]")
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<%s%s?page=3&per_page=3>; rel="next"`, srv.URL, commitsPath))
		fmt.Fprint(w, "["+
			commitJSON("3333333cccc", "A", "2024-01-09T01:00:00Z", "three")+","+
			commitJSON("4444444dddd", "A", "2024-01-09T01:00:00Z", "four")+"]")
	}))
	defer srv.Close()

	src := NewRemoteSource(WithBaseURL(srv.URL), WithRateLimit(0))
	commits, err := src.Retrieve(context.Background(), Request{Location: "acme/widget", Limit: 3})
	require.NoError(t, err)
	require.Len(t, commits, 3)
	assert.Equal(t, "three", commits[2].Message)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestRemoteSource_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	}))
	defer srv.Close()

	src := NewRemoteSource(WithBaseURL(srv.URL), WithRateLimit(0))
	_, err := src.Retrieve(context.Background(), Request{Location: "acme/widget", Limit: 5})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRemote))

	status, ok := RemoteStatus(err)
	require.True(t, ok)
	assert.Equal(t, "404 Not Found", status)
}

func TestRemoteSource_InvalidReferenceMakesNoRequest(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		fmt.Fprint(w, "[]")
	}))
	defer srv.Close()

	src := NewRemoteSource(WithBaseURL(srv.URL), WithRateLimit(0))
	_, err := src.Retrieve(context.Background(), Request{Location: "not-a-repo", Limit: 5})
	assert.True(t, errors.Is(err, ErrInvalidReference))
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}

func TestRemoteSource_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	src := NewRemoteSource(WithBaseURL(url), WithRateLimit(0), WithTimeout(2*time.Second))
	_, err := src.Retrieve(context.Background(), Request{Location: "acme/widget", Limit: 5})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSource))
	_, ok := RemoteStatus(err)
	assert.False(t, ok)
}

func TestRequestValidate(t *testing.T) {
	day := time.Date(2024, 1, 10, 0, 0, 0, 0, time.Local)

	assert.NoError(t, Request{Location: ".", Limit: 1}.Validate())
	assert.NoError(t, Request{Location: ".", Limit: MaxLimit, Since: day, Until: day}.Validate())

	assert.Error(t, Request{Location: "  ", Limit: 5}.Validate())
	assert.Error(t, Request{Location: ".", Limit: 0}.Validate())
	assert.Error(t, Request{Location: ".", Limit: MaxLimit + 1}.Validate())
	assert.Error(t, Request{Location: ".", Limit: 5, Since: day, Until: day.AddDate(0, 0, -1)}.Validate())
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("GitHub")
	require.NoError(t, err)
	assert.Equal(t, KindRemote, k)

	k, err = ParseKind(" local ")
	require.NoError(t, err)
	assert.Equal(t, KindLocal, k)

	_, err = ParseKind("svn")
	assert.Error(t, err)
}
