package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdh8316/socialhunt/internal/data"
	"github.com/tdh8316/socialhunt/internal/httpx"
	"github.com/tdh8316/socialhunt/internal/scan"
)

func TestClassify(t *testing.T) {
	assert.Equal(t, scan.StatusBlocked, Classify("please complete the captcha. not found", nil, []string{"not found"}))
	assert.Equal(t, scan.StatusNotFound, Classify("page not found", []string{"profile"}, []string{"Not Found"}))
	assert.Equal(t, scan.StatusFound, Classify("alice's profile", []string{"Profile"}, []string{"missing"}))
	assert.Equal(t, scan.StatusUnknown, Classify("hello", []string{"profile"}, []string{"missing"}))
	assert.Equal(t, scan.StatusUnknown, Classify("hello", []string{""}, []string{""}))
}

func patternServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/alice":
			assert.NotEmpty(t, r.Header.Get("User-Agent"))
			w.Write([]byte(`<html><head><meta property="og:title" content="Alice A">` +
				`<meta property="og:image" content="https://cdn.example/a.png"></head>` +
				`<body>@alice on here. 1,200 followers</body></html>`))
		case "/bob":
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`<html>Sorry, this page isn't available.</html>`))
		case "/wall":
			w.Write([]byte(`<html>Checking your browser - Cloudflare</html>`))
		default:
			w.Write([]byte(`<html>nothing useful</html>`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPattern_Check(t *testing.T) {
	srv := patternServer(t)
	p := NewPattern("site", data.ProviderSpec{
		URL:             srv.URL + "/{username}",
		SuccessPatterns: []string{"@{username}"},
		ErrorPatterns:   []string{"isn't available"},
		Claimed:         "alice",
		Unclaimed:       "bob",
	})

	ctx := context.Background()
	h := httpx.HeadersFor(p.UAProfile())

	found, err := p.Check(ctx, "alice", srv.Client(), h)
	require.NoError(t, err)
	assert.Equal(t, scan.StatusFound, found.Status)
	assert.Equal(t, srv.URL+"/alice", found.URL)
	require.NotNil(t, found.HTTPStatus)
	assert.Equal(t, http.StatusOK, *found.HTTPStatus)
	assert.Equal(t, "Alice A", found.Profile["display_name"])
	assert.Equal(t, "https://cdn.example/a.png", found.Profile["avatar_url"])
	assert.Equal(t, int64(1200), found.Profile["followers"])
	assert.Equal(t, srv.URL+"/alice", found.Evidence["final_url"])
	assert.Positive(t, found.Evidence["len"])

	missing, err := p.Check(ctx, "bob", srv.Client(), h)
	require.NoError(t, err)
	assert.Equal(t, scan.StatusNotFound, missing.Status)

	blocked, err := p.Check(ctx, "wall", srv.Client(), h)
	require.NoError(t, err)
	assert.Equal(t, scan.StatusBlocked, blocked.Status)

	unknown, err := p.Check(ctx, "carol", srv.Client(), h)
	require.NoError(t, err)
	assert.Equal(t, scan.StatusUnknown, unknown.Status)

	claimed, unclaimed := p.ValidationPair()
	assert.Equal(t, "alice", claimed)
	assert.Equal(t, "bob", unclaimed)
}

func TestPattern_RegexCheck(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits++ }))
	defer srv.Close()

	p := NewPattern("site", data.ProviderSpec{URL: srv.URL + "/{username}", RegexCheck: `^[a-z]{3,}$`})
	res, err := p.Check(context.Background(), "A!", srv.Client(), nil)
	require.NoError(t, err)
	assert.Equal(t, scan.StatusNotFound, res.Status)
	assert.Equal(t, "mismatch", res.Evidence["regex_check"])
	assert.Nil(t, res.HTTPStatus)
	assert.Zero(t, hits)

	bad := NewPattern("bad", data.ProviderSpec{URL: srv.URL + "/{username}", RegexCheck: `(`})
	_, err = bad.Check(context.Background(), "abc", srv.Client(), nil)
	assert.Error(t, err)
}

func TestPattern_Defaults(t *testing.T) {
	p := NewPattern("x", data.ProviderSpec{URL: "https://x.example/{username}", Timeout: 3, Note: "n"})
	assert.Equal(t, "https://x.example/bob", p.BuildURL("bob"))
	assert.Equal(t, "3s", p.Timeout().String())
	assert.Equal(t, httpx.DefaultProfile, p.UAProfile())
	assert.Equal(t, "n", p.Note())

	assert.Equal(t, defaultPatternTimeout, NewPattern("y", data.ProviderSpec{}).Timeout())
}

func TestPattern_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := NewPattern("down", data.ProviderSpec{URL: url + "/{username}"})
	_, err := p.Check(context.Background(), "alice", http.DefaultClient, nil)
	assert.Error(t, err)
}

func TestSherlock_ErrorTypes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := strings.TrimPrefix(r.URL.Path, "/u/")
		switch {
		case strings.HasPrefix(r.URL.Path, "/probe/"):
			if strings.HasSuffix(r.URL.Path, "/alice") {
				return
			}
			w.WriteHeader(http.StatusNotFound)
		case strings.HasPrefix(r.URL.Path, "/redir/"):
			http.Redirect(w, r, "/home", http.StatusFound)
		case user == "alice":
			w.Write([]byte("welcome alice"))
		case user == "limited":
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte("user not found"))
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	c := srv.Client()

	status := NewSherlock("status", data.SiteData{ErrorType: "status_code", URL: srv.URL + "/u/{}"})
	res, err := status.Check(ctx, "alice", c, nil)
	require.NoError(t, err)
	assert.Equal(t, scan.StatusFound, res.Status)
	res, err = status.Check(ctx, "nobody", c, nil)
	require.NoError(t, err)
	assert.Equal(t, scan.StatusNotFound, res.Status)
	res, err = status.Check(ctx, "limited", c, nil)
	require.NoError(t, err)
	assert.Equal(t, scan.StatusBlocked, res.Status)

	message := NewSherlock("message", data.SiteData{ErrorType: "message", ErrorMsg: []any{"user not found"}, URL: srv.URL + "/u/{}"})
	res, err = message.Check(ctx, "alice", c, nil)
	require.NoError(t, err)
	assert.Equal(t, scan.StatusFound, res.Status)
	res, err = message.Check(ctx, "nobody", c, nil)
	require.NoError(t, err)
	assert.Equal(t, scan.StatusNotFound, res.Status)

	probe := NewSherlock("probe", data.SiteData{ErrorType: "status_code", URL: "https://site.example/{}", URLProbe: srv.URL + "/probe/{}"})
	res, err = probe.Check(ctx, "alice", c, nil)
	require.NoError(t, err)
	assert.Equal(t, scan.StatusFound, res.Status)
	assert.Equal(t, "https://site.example/alice", res.URL)
	assert.Equal(t, srv.URL+"/probe/alice", res.Evidence["probe_url"])

	redirect := NewSherlock("redir", data.SiteData{ErrorType: "response_url", URL: srv.URL + "/redir/{}"})
	res, err = redirect.Check(ctx, "alice", c, nil)
	require.NoError(t, err)
	assert.Equal(t, scan.StatusNotFound, res.Status)
	assert.Equal(t, srv.URL+"/home", res.Evidence["final_url"])

	direct := NewSherlock("direct", data.SiteData{ErrorType: "response_url", URL: srv.URL + "/u/{}"})
	res, err = direct.Check(ctx, "alice", c, nil)
	require.NoError(t, err)
	assert.Equal(t, scan.StatusFound, res.Status)

	_, err = NewSherlock("weird", data.SiteData{ErrorType: "telepathy", URL: srv.URL + "/u/{}"}).Check(ctx, "alice", c, nil)
	assert.ErrorContains(t, err, "unsupported error type")

	_, err = NewSherlock("empty", data.SiteData{}).Check(ctx, "alice", c, nil)
	assert.ErrorContains(t, err, "missing url")

	regex := NewSherlock("regex", data.SiteData{ErrorType: "status_code", URL: srv.URL + "/u/{}", RegexCheck: `^[a-z]+$`})
	res, err = regex.Check(ctx, "Not-Valid", c, nil)
	require.NoError(t, err)
	assert.Equal(t, scan.StatusNotFound, res.Status)
	assert.Equal(t, "mismatch", res.Evidence["regex_check"])
}

func TestContainsErrorMessage(t *testing.T) {
	ok, err := containsErrorMessage("x gone y", "gone")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = containsErrorMessage("x", "")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = containsErrorMessage("x", nil)
	assert.Error(t, err)

	_, err = containsErrorMessage("x", 42)
	assert.Error(t, err)
}

func TestSherlockProviders(t *testing.T) {
	ps := SherlockProviders(map[string]data.SiteData{
		"A": {URL: "https://a.example/{}", UsedUsername: "x", UnusedUsername: "y"},
		"B": {URL: "https://b.example/{}"},
	})
	require.Len(t, ps, 2)
	for _, p := range ps {
		_, ok := p.(scan.Validator)
		assert.True(t, ok)
		assert.True(t, strings.HasSuffix(p.BuildURL("bob"), "/bob"))
	}
}

func TestGitHub(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))
		switch r.URL.Path {
		case "/users/octocat":
			w.Write([]byte(`{"login":"octocat","name":null,"avatar_url":"https://avatars.example/1",
				"followers":42,"following":7,"created_at":"2011-01-25T18:44:36Z","bio":"see https://octo.example","blog":""}`))
		case "/users/limited":
			w.WriteHeader(http.StatusForbidden)
		case "/users/broken":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	g := NewGitHub()
	g.APIBase = srv.URL
	ctx := context.Background()

	res, err := g.Check(ctx, "octocat", srv.Client(), httpx.HeadersFor(""))
	require.NoError(t, err)
	assert.Equal(t, scan.StatusFound, res.Status)
	assert.Equal(t, "https://github.com/octocat", res.URL)
	assert.Equal(t, "octocat", res.Profile["display_name"])
	assert.Equal(t, int64(42), res.Profile["followers"])
	assert.Equal(t, int64(7), res.Profile["following"])
	assert.Equal(t, "see https://octo.example", res.Profile["bio"])
	assert.NotContains(t, res.Profile, "blog")
	assert.NotContains(t, res.Profile, "location")
	assert.Equal(t, true, res.Evidence["api"])

	for user, want := range map[string]scan.Status{
		"ghost":   scan.StatusNotFound,
		"limited": scan.StatusBlocked,
		"broken":  scan.StatusUnknown,
	} {
		res, err := g.Check(ctx, user, srv.Client(), nil)
		require.NoError(t, err)
		assert.Equal(t, want, res.Status, user)
		assert.Empty(t, res.Profile, user)
	}
}

func TestReddit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, RedditUserAgent, r.Header.Get("User-Agent"))
		switch r.URL.Path {
		case "/user/spez/about.json":
			w.Write([]byte(`{"kind":"t2","data":{"name":"spez","icon_img":"https://i.example/a.png?w=1&amp;s=2",
				"comment_karma":10,"link_karma":5,"created_utc":1118030400.0,"subreddit":{"title":""}}}`))
		case "/user/slow/about.json":
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	rd := NewReddit()
	rd.Base = srv.URL
	ctx := context.Background()

	res, err := rd.Check(ctx, "spez", srv.Client(), httpx.HeadersFor(""))
	require.NoError(t, err)
	assert.Equal(t, scan.StatusFound, res.Status)
	assert.Equal(t, "https://www.reddit.com/user/spez", res.URL)
	assert.Equal(t, "spez", res.Profile["display_name"])
	assert.Equal(t, "https://i.example/a.png?w=1&s=2", res.Profile["avatar_url"])
	assert.Equal(t, int64(10), res.Profile["comment_karma"])
	assert.Equal(t, int64(5), res.Profile["link_karma"])
	assert.Equal(t, "2005-06-06T04:00:00Z", res.Profile["created_at"])

	res, err = rd.Check(ctx, "slow", srv.Client(), nil)
	require.NoError(t, err)
	assert.Equal(t, scan.StatusBlocked, res.Status)

	res, err = rd.Check(ctx, "ghost", srv.Client(), nil)
	require.NoError(t, err)
	assert.Equal(t, scan.StatusNotFound, res.Status)
}

func TestBuiltin(t *testing.T) {
	names := map[string]bool{}
	for _, p := range Builtin() {
		names[p.Name()] = true
	}
	assert.Equal(t, map[string]bool{"github": true, "reddit": true}, names)
}
