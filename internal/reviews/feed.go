package reviews

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"
)

const maxPerFeed = 200

// FeedSource reads reviews from an RSS or Atom feed. The product ID is the
// feed URL and every item is one review.
type FeedSource struct {
	parser *gofeed.Parser
	pages  *pageFetcher
	logger *zap.Logger

	mu    sync.Mutex
	feeds map[string]*gofeed.Feed
}

// FeedOption configures a FeedSource.
type FeedOption func(*FeedSource)

// WithPageFetch makes the source fetch the linked page of items that have
// no body and use its readable text as the review.
func WithPageFetch(timeout time.Duration) FeedOption {
	return func(s *FeedSource) { s.pages = newPageFetcher(timeout, s.logger) }
}

// NewFeedSource creates a feed source.
func NewFeedSource(logger *zap.Logger, opts ...FeedOption) *FeedSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &FeedSource{
		parser: gofeed.NewParser(),
		logger: logger,
		feeds:  make(map[string]*gofeed.Feed),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reviews fetches the feed and returns the plain text of its items.
func (s *FeedSource) Reviews(ctx context.Context, feedURL string) ([]string, error) {
	feed, err := s.fetch(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	var texts []string
	for _, item := range feed.Items {
		if len(texts) >= maxPerFeed {
			break
		}
		if s.pages != nil && item.Content == "" && item.Description == "" && item.Link != "" {
			if text := s.pages.text(ctx, item.Link); text != "" {
				texts = append(texts, text)
				continue
			}
		}
		if text := itemText(item); text != "" {
			texts = append(texts, text)
		}
	}
	s.logger.Info("feed parsed", zap.String("url", feedURL),
		zap.Int("items", len(feed.Items)), zap.Int("reviews", len(texts)))
	if len(texts) == 0 {
		return nil, fmt.Errorf("feed %s: %w", feedURL, ErrNoReviews)
	}
	return texts, nil
}

// ProductInfo describes the feed as a product, using its title and link.
func (s *FeedSource) ProductInfo(ctx context.Context, feedURL string) Product {
	info := Product{
		Name:     extractSourceName(feedURL),
		Brand:    "Unknown Brand",
		Category: "General",
		ID:       feedURL,
		URL:      feedURL,
	}
	feed, err := s.fetch(ctx, feedURL)
	if err != nil {
		return info
	}
	if t := strings.TrimSpace(feed.Title); t != "" {
		info.Name = t
	}
	if feed.Link != "" {
		info.URL = feed.Link
	}
	if len(feed.Authors) > 0 && feed.Authors[0].Name != "" {
		info.Brand = feed.Authors[0].Name
	}
	if len(feed.Categories) > 0 {
		info.Category = feed.Categories[0]
	}
	return info
}

// fetch parses a feed once and caches it for ProductInfo.
func (s *FeedSource) fetch(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	s.mu.Lock()
	feed, ok := s.feeds[feedURL]
	s.mu.Unlock()
	if ok {
		return feed, nil
	}

	feed, err := s.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parsing feed %s: %w", feedURL, err)
	}
	s.mu.Lock()
	s.feeds[feedURL] = feed
	s.mu.Unlock()
	return feed, nil
}

// itemText prefers the full content of an item over its description. HTML
// bodies go through readability, falling back to tag stripping when it
// finds nothing.
func itemText(item *gofeed.Item) string {
	body := item.Content
	if body == "" {
		body = item.Description
	}
	if body == "" {
		return strings.TrimSpace(item.Title)
	}
	if !strings.Contains(body, "<") {
		return strings.Join(strings.Fields(body), " ")
	}

	pageURL, _ := url.Parse(item.Link)
	if article, err := readability.FromReader(strings.NewReader(body), pageURL); err == nil {
		if text := strings.Join(strings.Fields(article.TextContent), " "); text != "" {
			return text
		}
	}
	return stripHTML(body)
}

func stripHTML(text string) string {
	var result strings.Builder
	inTag := false
	for _, r := range text {
		if r == '<' {
			inTag = true
			result.WriteRune(' ')
			continue
		}
		if r == '>' {
			inTag = false
			continue
		}
		if !inTag {
			result.WriteRune(r)
		}
	}

	s := result.String()
	s = strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
	).Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

func extractSourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Hostname() == "" {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())
	for _, prefix := range []string{"www.", "blog.", "rss.", "feeds."} {
		host = strings.TrimPrefix(host, prefix)
	}
	parts := strings.Split(host, ".")
	name := host
	if len(parts) >= 2 {
		name = parts[len(parts)-2]
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
