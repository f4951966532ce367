package tools

import (
	"context"

	"github.com/nugget/steward/internal/news"
	"github.com/nugget/steward/internal/reddit"
)

func (h *handlers) topRedditPosts(ctx context.Context, args Args) (any, error) {
	posts, err := h.Reddit.TopFromSubscriptions(ctx, args.StringOr("time_filter", "day"), args.Int("limit", 10))
	if err != nil {
		return nil, err
	}
	if posts == nil {
		posts = []reddit.Post{}
	}
	return posts, nil
}

type newsResult struct {
	Topic    string         `json:"topic"`
	Count    int            `json:"count"`
	Articles []news.Article `json:"articles"`
}

func (h *handlers) topNews(ctx context.Context, args Args) (any, error) {
	topic := args.StringOr("topic", "general")
	articles, err := h.News.ByTopic(ctx, topic, args.Int("limit", 10))
	if err != nil {
		return nil, err
	}
	if articles == nil {
		articles = []news.Article{}
	}
	return newsResult{Topic: topic, Count: len(articles), Articles: articles}, nil
}
