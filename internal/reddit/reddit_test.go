package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/nugget/steward/internal/opstate"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testState(t *testing.T) *opstate.Store {
	t.Helper()
	s, err := opstate.NewStore(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func listingJSON(posts ...map[string]any) string {
	children := make([]map[string]any, 0, len(posts))
	for _, p := range posts {
		children = append(children, map[string]any{"kind": "t3", "data": p})
	}
	b, _ := json.Marshal(map[string]any{"data": map[string]any{"children": children}})
	return string(b)
}

type fakeReddit struct {
	t        *testing.T
	srv      *httptest.Server
	grants   []string
	bearer   string
	requests []string
	routes   map[string]string
}

func newFakeReddit(t *testing.T, accessToken string) *fakeReddit {
	f := &fakeReddit{t: t, bearer: accessToken, routes: map[string]string{}}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeReddit) serve(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.UserAgent(), "Steward/") {
		f.t.Errorf("User-Agent = %q", r.UserAgent())
	}
	if r.URL.Path == "/api/v1/access_token" {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "cid" || pass != "secret" {
			f.t.Errorf("token request basic auth = %q/%q/%v", user, pass, ok)
		}
		_ = r.ParseForm()
		f.grants = append(f.grants, r.PostForm.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":%q,"token_type":"bearer","expires_in":3600,"scope":"read"}`, f.bearer)
		return
	}
	if got := r.Header.Get("Authorization"); got != "Bearer "+f.bearer {
		f.t.Errorf("Authorization = %q, want Bearer %s", got, f.bearer)
	}
	f.requests = append(f.requests, r.URL.Path+"?"+r.URL.RawQuery)
	body, ok := f.routes[r.URL.Path]
	if !ok {
		http.Error(w, `{"message":"Not Found","error":404}`, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	io.WriteString(w, body)
}

func (f *fakeReddit) config() Config {
	cfg := Config{
		ClientID:     "cid",
		ClientSecret: "secret",
		APIURL:       f.srv.URL,
		AuthURL:      f.srv.URL + "/api/v1/authorize",
		TokenURL:     f.srv.URL + "/api/v1/access_token",
		UserAgent:    "Steward/test",
	}
	cfg.ApplyDefaults()
	return cfg
}

func newClient(cfg Config, state StateStore) (*Client, *Auth) {
	auth := NewAuth(cfg, state, NewHTTPClient(cfg), quietLogger())
	return NewClient(cfg, auth, quietLogger()), auth
}

func TestTopFromSubscriptions_AppOnlyFallsBack(t *testing.T) {
	t.Setenv("REDDIT_USERNAME", "")
	t.Setenv("REDDIT_PASSWORD", "")
	f := newFakeReddit(t, "app-token")
	long := strings.Repeat("é", 300)
	f.routes["/r/popular/top"] = listingJSON(
		map[string]any{"title": "low", "score": 10, "permalink": "/r/popular/1", "url": "https://x/1"},
		map[string]any{"title": "self", "score": 50, "permalink": "/r/popular/2", "is_self": true, "selftext": long},
	)
	f.routes["/r/all/top"] = listingJSON(
		map[string]any{"title": "mid", "score": 40, "permalink": "/r/all/3", "num_comments": 7},
		map[string]any{"title": "lowest", "score": 1, "permalink": "/r/all/4"},
	)

	c, _ := newClient(f.config(), testState(t))
	posts, err := c.TopFromSubscriptions(context.Background(), "day", 3)
	require.NoError(t, err)

	require.Len(t, posts, 3)
	assert.Equal(t, []string{"self", "mid", "low"}, []string{posts[0].Title, posts[1].Title, posts[2].Title})
	assert.Equal(t, "https://reddit.com/r/popular/2", posts[0].Permalink)
	require.NotNil(t, posts[0].Selftext)
	assert.Equal(t, 200, len([]rune(*posts[0].Selftext)))
	assert.Nil(t, posts[1].Selftext, "link posts carry no selftext")
	assert.Equal(t, "all", posts[1].Subreddit)

	assert.Equal(t, []string{"client_credentials"}, f.grants)
	for _, r := range f.requests {
		assert.Contains(t, r, "&t=day")
		assert.Contains(t, r, "limit=5")
	}
}

func TestTop_StoredTokenRefreshedAndPersisted(t *testing.T) {
	t.Setenv("REDDIT_USERNAME", "")
	t.Setenv("REDDIT_PASSWORD", "")
	f := newFakeReddit(t, "fresh-token")
	f.routes["/subreddits/mine/subscriber"] = listingJSON(map[string]any{"display_name": "golang"})
	f.routes["/r/golang/hot"] = listingJSON(map[string]any{"title": "Go 1.24", "score": 900, "permalink": "/r/golang/9"})

	state := testState(t)
	require.NoError(t, state.SetJSON(stateNamespace, keyToken, &oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "refresh-me",
		Expiry:       time.Now().Add(-time.Hour),
	}))

	c, _ := newClient(f.config(), state)
	posts, err := c.TopFromSubscriptions(context.Background(), "all", 10)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "golang", posts[0].Subreddit)
	assert.Equal(t, []string{"refresh_token"}, f.grants)
	assert.NotContains(t, f.requests[len(f.requests)-1], "&t=", "all uses hot without a window")

	var saved oauth2.Token
	ok, err := state.GetJSON(stateNamespace, keyToken, &saved)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "fresh-token", saved.AccessToken)
	assert.Equal(t, "refresh-me", saved.RefreshToken, "refresh token kept when not reissued")
}

func TestTop_InvalidTimeFilter(t *testing.T) {
	f := newFakeReddit(t, "x")
	c, _ := newClient(f.config(), testState(t))
	_, err := c.Top(context.Background(), []string{"golang"}, "decade", 5, 10)
	assert.ErrorContains(t, err, "invalid time filter")
}

func TestAuthCodeURL(t *testing.T) {
	f := newFakeReddit(t, "x")
	_, auth := newClient(f.config(), testState(t))

	u, err := url.Parse(auth.AuthCodeURL("state-123"))
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "permanent", q.Get("duration"))
	assert.Equal(t, "identity read mysubreddits", q.Get("scope"))
	assert.Equal(t, "state-123", q.Get("state"))
	assert.Equal(t, "code", q.Get("response_type"))
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{}.Validate())
	assert.Error(t, Config{ClientID: "only-id"}.Validate())
	assert.Error(t, Config{ClientID: "a", ClientSecret: "b", Username: "u"}.Validate())
}
