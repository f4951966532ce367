// Package reddit reads ranked posts from the owner's subscribed
// subreddits through the Reddit OAuth API.
package reddit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/nugget/steward/internal/httpkit"
)

// TimeFilters are the accepted time_filter values, in display order.
var TimeFilters = []string{"hour", "day", "week", "month", "year", "all"}

// ValidTimeFilter reports whether f is a known time filter.
func ValidTimeFilter(f string) bool { return slices.Contains(TimeFilters, f) }

// fallbackSubreddits are read when the user has no subscriptions or
// the client is not acting for a user.
var fallbackSubreddits = []string{"popular", "all"}

// PerSubreddit is how many posts are read from each subreddit.
const PerSubreddit = 5

const selftextPreview = 200

// Post is one normalized Reddit post.
type Post struct {
	Title       string  `json:"title"`
	Score       int     `json:"score"`
	Subreddit   string  `json:"subreddit"`
	URL         string  `json:"url"`
	Permalink   string  `json:"permalink"`
	Author      string  `json:"author"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
	IsSelf      bool    `json:"is_self"`
	Selftext    *string `json:"selftext"`
}

// Client reads posts.
type Client struct {
	auth   *Auth
	apiURL string
	logger *slog.Logger
}

// NewClient creates a Client over auth.
func NewClient(cfg Config, auth *Auth, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{auth: auth, apiURL: strings.TrimRight(cfg.APIURL, "/"), logger: logger}
}

// NewHTTPClient returns the base client Reddit requests go through,
// carrying the configured user agent.
func NewHTTPClient(cfg Config) *http.Client {
	return httpkit.NewClient(httpkit.WithUserAgent(cfg.UserAgent))
}

type listing struct {
	Data struct {
		Children []struct {
			Data rawPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type rawPost struct {
	Title       string  `json:"title"`
	Score       int     `json:"score"`
	URL         string  `json:"url"`
	Permalink   string  `json:"permalink"`
	Author      string  `json:"author"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
	IsSelf      bool    `json:"is_self"`
	Selftext    string  `json:"selftext"`
	DisplayName string  `json:"display_name"`
}

// Subscribed returns the user's subscribed subreddit names. It returns
// nil without error when the client is not acting for a user.
func (c *Client) Subscribed(ctx context.Context) ([]string, error) {
	hc, mode, err := c.auth.Client(ctx)
	if err != nil {
		return nil, err
	}
	if !mode.Authenticated() {
		return nil, nil
	}

	var l listing
	if err := httpkit.GetJSON(ctx, hc, c.apiURL+"/subreddits/mine/subscriber?limit=100&raw_json=1", nil, &l); err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	names := make([]string, 0, len(l.Data.Children))
	for _, ch := range l.Data.Children {
		if ch.Data.DisplayName != "" {
			names = append(names, ch.Data.DisplayName)
		}
	}
	return names, nil
}

// TopFromSubscriptions returns up to limit posts from the user's
// subscriptions (or r/popular and r/all when there are none), ranked
// by score.
func (c *Client) TopFromSubscriptions(ctx context.Context, timeFilter string, limit int) ([]Post, error) {
	subs, err := c.Subscribed(ctx)
	if err != nil {
		c.logger.Warn("reddit subscriptions unavailable, using fallback", "error", err)
	}
	if len(subs) == 0 {
		subs = fallbackSubreddits
	}
	return c.Top(ctx, subs, timeFilter, PerSubreddit, limit)
}

// Top reads perSub posts from each subreddit and returns the limit
// highest scoring. The "all" filter reads hot posts; other filters
// read top posts for that window. A failing subreddit is skipped.
func (c *Client) Top(ctx context.Context, subreddits []string, timeFilter string, perSub, limit int) ([]Post, error) {
	if timeFilter == "" {
		timeFilter = "day"
	}
	if !ValidTimeFilter(timeFilter) {
		return nil, fmt.Errorf("invalid time filter %q (want one of %s)", timeFilter, strings.Join(TimeFilters, ", "))
	}
	hc, _, err := c.auth.Client(ctx)
	if err != nil {
		return nil, err
	}

	var posts []Post
	for _, sub := range subreddits {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		got, err := c.subredditPosts(ctx, hc, sub, timeFilter, perSub)
		if err != nil {
			c.logger.Warn("reddit subreddit fetch failed", "subreddit", sub, "error", err)
			continue
		}
		posts = append(posts, got...)
	}

	sort.SliceStable(posts, func(i, j int) bool { return posts[i].Score > posts[j].Score })
	if limit > 0 && len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

func (c *Client) subredditPosts(ctx context.Context, hc *http.Client, sub, timeFilter string, perSub int) ([]Post, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(perSub))
	q.Set("raw_json", "1")
	sortBy := "hot"
	if timeFilter != "all" {
		sortBy = "top"
		q.Set("t", timeFilter)
	}
	endpoint := fmt.Sprintf("%s/r/%s/%s?%s", c.apiURL, url.PathEscape(sub), sortBy, q.Encode())

	var l listing
	if err := httpkit.GetJSON(ctx, hc, endpoint, nil, &l); err != nil {
		return nil, err
	}
	posts := make([]Post, 0, len(l.Data.Children))
	for _, ch := range l.Data.Children {
		d := ch.Data
		p := Post{
			Title:       d.Title,
			Score:       d.Score,
			Subreddit:   sub,
			URL:         d.URL,
			Permalink:   "https://reddit.com" + d.Permalink,
			Author:      d.Author,
			NumComments: d.NumComments,
			CreatedUTC:  d.CreatedUTC,
			IsSelf:      d.IsSelf,
		}
		if d.IsSelf {
			text := d.Selftext
			if r := []rune(text); len(r) > selftextPreview {
				text = string(r[:selftextPreview])
			}
			p.Selftext = &text
		}
		posts = append(posts, p)
	}
	return posts, nil
}
