// Package news fetches headlines from NewsAPI (newsapi.org) by topic.
package news

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/nugget/steward/internal/htmltext"
	"github.com/nugget/steward/internal/httpkit"
)

// DefaultBaseURL is the NewsAPI v2 endpoint.
const DefaultBaseURL = "https://newsapi.org/v2"

// Config holds NewsAPI settings. It is embedded in the top-level
// Steward config under the "news" YAML key.
type Config struct {
	// APIKey falls back to NEWS_API_KEY.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the API endpoint. Default: DefaultBaseURL.
	BaseURL string `yaml:"base_url"`

	// Country scopes top headlines. Default: "us".
	Country string `yaml:"country"`
}

// Configured reports whether an API key is present.
func (c Config) Configured() bool { return c.APIKey != "" }

// ApplyDefaults fills zero-value fields.
func (c *Config) ApplyDefaults() {
	if c.APIKey == "" {
		c.APIKey = os.Getenv("NEWS_API_KEY")
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Country == "" {
		c.Country = "us"
	}
}

// Validate checks the base URL.
func (c Config) Validate() error {
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("news.base_url: %w", err)
	}
	return nil
}

// Article is one normalized news item.
type Article struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Source      string `json:"source"`
	PublishedAt string `json:"published_at"`
	Author      string `json:"author"`
	ImageURL    string `json:"image_url"`
}

// APIError is a NewsAPI response with status other than "ok".
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return "News API error: " + e.Message
}

// categories maps user-facing topics to NewsAPI categories.
var categories = map[string]string{
	"business":      "business",
	"marketing":     "business",
	"stocks":        "business",
	"technology":    "technology",
	"tech":          "technology",
	"sports":        "sports",
	"entertainment": "entertainment",
	"health":        "health",
	"science":       "science",
	"general":       "general",
}

// Category returns the NewsAPI category for a topic, defaulting to
// "general".
func Category(topic string) string {
	if c, ok := categories[strings.ToLower(strings.TrimSpace(topic))]; ok {
		return c
	}
	return "general"
}

// Client queries NewsAPI.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates a Client. A nil httpClient gets an httpkit client.
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = httpkit.NewClient()
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, http: httpClient, logger: logger}
}

// ByTopic returns up to limit articles for topic. Marketing and stock
// topics use keyword search ranked by popularity; everything else
// uses category headlines.
func (c *Client) ByTopic(ctx context.Context, topic string, limit int) ([]Article, error) {
	switch strings.ToLower(strings.TrimSpace(topic)) {
	case "marketing":
		return c.Search(ctx, "marketing", limit, "popularity")
	case "stocks", "stock market":
		return c.Search(ctx, "stocks OR stock market", limit, "popularity")
	}
	return c.TopHeadlines(ctx, Category(topic), limit)
}

// TopHeadlines returns headlines for a NewsAPI category. The general
// category is sent as no category.
func (c *Client) TopHeadlines(ctx context.Context, category string, limit int) ([]Article, error) {
	q := url.Values{}
	q.Set("country", c.cfg.Country)
	if category != "" && category != "general" {
		q.Set("category", category)
	}
	q.Set("pageSize", strconv.Itoa(pageSize(limit)))
	return c.get(ctx, "/top-headlines", q, limit)
}

// Search runs a keyword query over all articles.
func (c *Client) Search(ctx context.Context, query string, limit int, sortBy string) ([]Article, error) {
	if sortBy == "" {
		sortBy = "publishedAt"
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("sortBy", sortBy)
	q.Set("language", "en")
	q.Set("pageSize", strconv.Itoa(pageSize(limit)))
	return c.get(ctx, "/everything", q, limit)
}

func pageSize(limit int) int {
	switch {
	case limit <= 0:
		return 5
	case limit > 100:
		return 100
	}
	return limit
}

type apiResponse struct {
	Status   string `json:"status"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Articles []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Author      *string `json:"author"`
		Title       *string `json:"title"`
		Description *string `json:"description"`
		URL         string  `json:"url"`
		URLToImage  *string `json:"urlToImage"`
		PublishedAt string  `json:"publishedAt"`
	} `json:"articles"`
}

func (c *Client) get(ctx context.Context, path string, q url.Values, limit int) ([]Article, error) {
	header := http.Header{}
	header.Set("X-Api-Key", c.cfg.APIKey)

	var resp apiResponse
	err := httpkit.GetJSON(ctx, c.http, c.cfg.BaseURL+path+"?"+q.Encode(), header, &resp)
	if err != nil {
		var se *httpkit.StatusError
		if errors.As(err, &se) {
			// NewsAPI reports failures as a JSON body on 4xx/5xx.
			if jerr := json.Unmarshal([]byte(se.Body), &resp); jerr == nil && resp.Message != "" {
				return nil, &APIError{Code: resp.Code, Message: resp.Message}
			}
		}
		return nil, fmt.Errorf("fetch news: %w", err)
	}
	if resp.Status != "ok" {
		msg := resp.Message
		if msg == "" {
			msg = "Unknown error"
		}
		return nil, &APIError{Code: resp.Code, Message: msg}
	}

	n := pageSize(limit)
	articles := make([]Article, 0, min(n, len(resp.Articles)))
	for _, a := range resp.Articles {
		if len(articles) == n {
			break
		}
		art := Article{
			Title:       deref(a.Title, "No title"),
			Description: htmltext.Text(deref(a.Description, "")),
			URL:         a.URL,
			Source:      a.Source.Name,
			PublishedAt: a.PublishedAt,
			Author:      deref(a.Author, ""),
			ImageURL:    deref(a.URLToImage, ""),
		}
		if art.Source == "" {
			art.Source = "Unknown"
		}
		articles = append(articles, art)
	}
	c.logger.Debug("news fetched", "path", path, "count", len(articles))
	return articles, nil
}

func deref(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
