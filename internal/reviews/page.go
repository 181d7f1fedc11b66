package reviews

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	readability "github.com/go-shiori/go-readability"
	"go.uber.org/zap"
)

// minPageText is the shortest extracted text accepted as a review.
const minPageText = 100

// pageFetcher loads review pages linked from feed items that carry no body.
// After an HTTP error, remaining pages from the same host are skipped. It is
// safe for concurrent use.
type pageFetcher struct {
	client *http.Client
	logger *zap.Logger

	mu     sync.Mutex
	failed map[string]struct{}
}

func newPageFetcher(timeout time.Duration, logger *zap.Logger) *pageFetcher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &pageFetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		logger: logger,
		failed: make(map[string]struct{}),
	}
}

// text returns the readable text of pageURL, or "" when the page cannot be
// fetched or holds too little text.
func (f *pageFetcher) text(ctx context.Context, pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		f.logger.Debug("invalid review page link", zap.String("url", pageURL))
		return ""
	}
	host := strings.ToLower(u.Host)
	if f.hostFailed(host) {
		f.logger.Debug("skipping review page from failed host", zap.String("url", pageURL))
		return ""
	}

	text, err := f.fetch(ctx, u)
	if err != nil {
		f.mu.Lock()
		f.failed[host] = struct{}{}
		f.mu.Unlock()
		f.logger.Warn("review page fetch failed; skipping host",
			zap.String("url", pageURL), zap.String("host", host), zap.Error(err))
		return ""
	}
	return text
}

func (f *pageFetcher) hostFailed(host string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, failed := f.failed[host]
	return failed
}

// fetch returns an error only for HTTP error statuses. Connection, read and
// extraction failures are logged and yield no text.
func (f *pageFetcher) fetch(ctx context.Context, u *url.URL) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "ReviewLens/1.0 (review analysis)")

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Debug("review page unreachable", zap.String("url", u.String()), zap.Error(err))
		return "", nil // connection error, not HTTP error
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetching %s: %s", u, http.StatusText(resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		f.logger.Debug("reading review page", zap.String("url", u.String()), zap.Error(err))
		return "", nil
	}
	article, err := readability.FromReader(strings.NewReader(string(body)), u)
	if err != nil {
		f.logger.Debug("extracting review page", zap.String("url", u.String()), zap.Error(err))
		return "", nil
	}
	text := strings.Join(strings.Fields(article.TextContent), " ")
	if len(text) < minPageText {
		f.logger.Debug("review page text too short", zap.String("url", u.String()), zap.Int("chars", len(text)))
		return "", nil
	}
	return text, nil
}
