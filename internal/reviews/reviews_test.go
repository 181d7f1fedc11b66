package reviews

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/TobiSchelling/ReviewLens/internal/database"
)

const sampleCSV = `id,name,asins,brand,primaryCategories,reviews.rating,reviews.text
1,Kindle Paperwhite,B00ZV9PXP2,Amazon,Electronics,5,"Love it, the screen is great."
2,Fire Tablet,"B01AHB9CN2,B00VINDBJK",Amazon,Electronics,4.0,Great tablet for kids
3,Fire Tablet,B00VINDBJK,Amazon,Electronics,3,It is okay
4,Echo,B01E6AO69U,Amazon,Smart Home,,No rating here
5,Echo,B01E6AO69U,Amazon,Smart Home,4.5,Half stars
6,Echo,B01E6AO69U,Amazon,Smart Home,2,
7,Mystery,XB00VINDBJKX,,,1,Terrible
`

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func importSample(t *testing.T, db *database.DB) *ImportResult {
	t.Helper()
	res, err := NewImporter(db, nil).Import(context.Background(), strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	return res
}

func TestImport(t *testing.T) {
	db := openTestDB(t)
	res := importSample(t, db)

	if res.Rows != 7 {
		t.Errorf("expected 7 rows, got %d", res.Rows)
	}
	if res.Imported != 6 || res.Skipped != 1 {
		t.Errorf("expected 6 imported and 1 skipped, got %d/%d", res.Imported, res.Skipped)
	}
	if res.Unrated != 2 {
		t.Errorf("expected 2 unrated rows, got %d", res.Unrated)
	}
	if res.Products != 5 {
		t.Errorf("expected 5 products, got %d", res.Products)
	}

	all, err := db.GetAllReviews()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if all[1].Rating == nil || *all[1].Rating != 4 {
		t.Errorf("expected rating 4.0 to parse as 4, got %v", all[1].Rating)
	}
	if all[0].Text != "Love it, the screen is great." {
		t.Errorf("unexpected text %q", all[0].Text)
	}

	p, err := db.GetProduct("B01AHB9CN2")
	if err != nil || p == nil {
		t.Fatalf("expected product for split ASIN, got %v, %v", p, err)
	}
	if p.Name != "Fire Tablet" || p.Category != "Electronics" {
		t.Errorf("unexpected product %+v", p)
	}
}

func TestImportMissingColumn(t *testing.T) {
	db := openTestDB(t)
	_, err := NewImporter(db, nil).Import(context.Background(), strings.NewReader("asins,name\nB0,x\n"))
	if err == nil || !strings.Contains(err.Error(), "reviews.text") {
		t.Errorf("expected missing column error, got %v", err)
	}
}

func TestSplitASINs(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"B00ZV9PXP2", "B00ZV9PXP2"},
		{"B01AHB9CN2, B00VINDBJK", "B01AHB9CN2|B00VINDBJK"},
		{",,B0,", "B0"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := strings.Join(SplitASINs(tt.in), "|"); got != tt.want {
			t.Errorf("SplitASINs(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseRating(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"5", 5, true},
		{"4.0", 4, true},
		{"9", 9, true},
		{"4.5", 0, false},
		{"", 0, false},
		{"five", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseRating(tt.in)
		if ok != tt.ok {
			t.Errorf("parseRating(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			continue
		}
		if ok && *got != tt.want {
			t.Errorf("parseRating(%q) = %d, want %d", tt.in, *got, tt.want)
		}
	}
}

func TestCatalogExactMatch(t *testing.T) {
	db := openTestDB(t)
	importSample(t, db)

	texts, err := NewCatalog(db, true, nil).Reviews(context.Background(), " B00VINDBJK ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(texts) != 2 {
		t.Errorf("expected 2 exact matches, got %v", texts)
	}
}

func TestCatalogSubstringFallback(t *testing.T) {
	db := openTestDB(t)
	importSample(t, db)

	texts, err := NewCatalog(db, true, nil).Reviews(context.Background(), "00VINDB")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(texts) != 3 {
		t.Errorf("expected 3 substring matches, got %v", texts)
	}

	_, err = NewCatalog(db, false, nil).Reviews(context.Background(), "00VINDB")
	if !errors.Is(err, ErrNoReviews) {
		t.Errorf("expected ErrNoReviews with fallback disabled, got %v", err)
	}
}

func TestCatalogSpacedASINList(t *testing.T) {
	db := openTestDB(t)
	csv := "asins,reviews.rating,reviews.text\n\"B0A, B0B\",5,Works great\n"
	if _, err := NewImporter(db, nil).Import(context.Background(), strings.NewReader(csv)); err != nil {
		t.Fatalf("import failed: %v", err)
	}

	texts, err := NewCatalog(db, false, nil).Reviews(context.Background(), "B0B")
	if err != nil {
		t.Fatalf("expected exact match for spaced ASIN list: %v", err)
	}
	if len(texts) != 1 || texts[0] != "Works great" {
		t.Errorf("unexpected reviews %v", texts)
	}

	rows, err := db.GetAllReviews()
	if err != nil {
		t.Fatalf("failed to read reviews: %v", err)
	}
	if rows[0].ASINs != "B0A,B0B" {
		t.Errorf("expected normalized ASIN list, got %q", rows[0].ASINs)
	}
}

func TestCatalogNoReviews(t *testing.T) {
	db := openTestDB(t)
	importSample(t, db)
	_, err := NewCatalog(db, true, nil).Reviews(context.Background(), "NOTHERE")
	if !errors.Is(err, ErrNoReviews) {
		t.Errorf("expected ErrNoReviews, got %v", err)
	}
}

func TestCatalogProductInfo(t *testing.T) {
	db := openTestDB(t)
	importSample(t, db)
	c := NewCatalog(db, true, nil)

	known := c.ProductInfo(context.Background(), "B00ZV9PXP2")
	if known.Name != "Kindle Paperwhite" || known.Brand != "Amazon" {
		t.Errorf("unexpected product %+v", known)
	}
	if known.URL != "https://www.amazon.com/dp/B00ZV9PXP2" || known.ID != "B00ZV9PXP2" {
		t.Errorf("unexpected id/url %+v", known)
	}

	partial := c.ProductInfo(context.Background(), "XB00VINDBJKX")
	if partial.Name != "Mystery" || partial.Brand != "Unknown Brand" || partial.Category != "General" {
		t.Errorf("expected defaults for missing fields, got %+v", partial)
	}

	unknown := c.ProductInfo(context.Background(), "B0UNKNOWN")
	if unknown != DefaultProduct("B0UNKNOWN") {
		t.Errorf("expected default product, got %+v", unknown)
	}
	if unknown.Name != "Amazon Product (B0UNKNOWN)" {
		t.Errorf("unexpected default name %q", unknown.Name)
	}
}

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Gadget Reviews</title>
  <link>https://reviews.example.com</link>
  <item>
    <title>Five stars</title>
    <link>https://reviews.example.com/1</link>
    <description>&lt;p&gt;Absolutely &lt;b&gt;love&lt;/b&gt; this tablet.&lt;/p&gt;</description>
  </item>
  <item>
    <title>Meh</title>
    <link>https://reviews.example.com/2</link>
    <description>It is fine, nothing special.</description>
  </item>
  <item>
    <title>Title only</title>
    <link>https://reviews.example.com/3</link>
  </item>
</channel>
</rss>`

func feedServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFeedSourceReviews(t *testing.T) {
	srv := feedServer(t, sampleFeed)
	src := NewFeedSource(nil)

	texts, err := src.Reviews(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(texts) != 3 {
		t.Fatalf("expected 3 reviews, got %d: %v", len(texts), texts)
	}
	if !strings.Contains(texts[0], "love") || strings.Contains(texts[0], "<") {
		t.Errorf("expected plain text from HTML body, got %q", texts[0])
	}
	if texts[1] != "It is fine, nothing special." {
		t.Errorf("unexpected plain body %q", texts[1])
	}
	if texts[2] != "Title only" {
		t.Errorf("expected title fallback, got %q", texts[2])
	}

	info := src.ProductInfo(context.Background(), srv.URL)
	if info.Name != "Gadget Reviews" || info.URL != "https://reviews.example.com" {
		t.Errorf("unexpected feed product %+v", info)
	}
}

func TestFeedSourceEmpty(t *testing.T) {
	srv := feedServer(t, `<?xml version="1.0"?><rss version="2.0"><channel><title>Empty</title></channel></rss>`)
	_, err := NewFeedSource(nil).Reviews(context.Background(), srv.URL)
	if !errors.Is(err, ErrNoReviews) {
		t.Errorf("expected ErrNoReviews, got %v", err)
	}
}

const reviewPage = `<html><head><title>Review</title></head><body>
<nav>Home | Reviews</nav>
<article><h1>Long term review</h1>
<p>I have used this tablet every day for six months. The battery still lasts a full day and the screen is sharp.</p>
<p>Setup took minutes and the speakers are louder than expected. Great value overall.</p>
</article></body></html>`

func TestFeedSourcePageFetch(t *testing.T) {
	var pageHits int
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	mux.HandleFunc("/feed", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0"?><rss version="2.0"><channel><title>Linked</title>
<item><title>Linked review</title><link>%[1]s/review/1</link></item>
<item><title>Missing page</title><link>%[1]s/missing</link></item>
<item><title>Skipped host</title><link>%[1]s/review/2</link></item>
</channel></rss>`, srv.URL)
	})
	mux.HandleFunc("/review/", func(w http.ResponseWriter, r *http.Request) {
		pageHits++
		fmt.Fprint(w, reviewPage)
	})

	src := NewFeedSource(nil, WithPageFetch(5*time.Second))
	texts, err := src.Reviews(context.Background(), srv.URL+"/feed")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(texts) != 3 {
		t.Fatalf("expected 3 reviews, got %d", len(texts))
	}
	if !strings.Contains(texts[0], "battery still lasts") {
		t.Errorf("expected page text, got %q", texts[0])
	}
	if texts[1] != "Missing page" {
		t.Errorf("expected title fallback after 404, got %q", texts[1])
	}
	if texts[2] != "Skipped host" {
		t.Errorf("expected host skipped after failure, got %q", texts[2])
	}
	if pageHits != 1 {
		t.Errorf("expected 1 page fetch, got %d", pageHits)
	}
}

func TestFeedSourceConcurrentPageFetch(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	mux.HandleFunc("/feed/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0"?><rss version="2.0"><channel><title>Linked</title>
<item><title>Gone</title><link>%s/missing%s</link></item>
</channel></rss>`, srv.URL, r.URL.Path)
	})

	src := NewFeedSource(nil, WithPageFetch(5*time.Second))
	const callers = 8
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() {
			texts, err := src.Reviews(context.Background(), fmt.Sprintf("%s/feed/%d", srv.URL, i))
			if err == nil && (len(texts) != 1 || texts[0] != "Gone") {
				err = fmt.Errorf("unexpected reviews %v", texts)
			}
			errs <- err
		}()
	}
	for i := 0; i < callers; i++ {
		if err := <-errs; err != nil {
			t.Errorf("concurrent Reviews failed: %v", err)
		}
	}
}

func TestPageFetchLogsDroppedPages(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	f := newPageFetcher(time.Second, zap.New(core))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body><p>Too short.</p></body></html>")
	}))
	t.Cleanup(srv.Close)
	if got := f.text(context.Background(), srv.URL+"/short"); got != "" {
		t.Errorf("expected no text from short page, got %q", got)
	}
	if logs.FilterField(zap.String("url", srv.URL+"/short")).Len() == 0 {
		t.Error("expected dropped short page to be logged")
	}

	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()
	if got := f.text(context.Background(), closedURL+"/review"); got != "" {
		t.Errorf("expected no text from unreachable page, got %q", got)
	}
	if logs.FilterMessage("review page unreachable").Len() != 1 {
		t.Error("expected unreachable page to be logged")
	}
}

func TestStripHTML(t *testing.T) {
	got := stripHTML("<p>Works &amp; looks   great</p><br/>")
	if got != "Works & looks great" {
		t.Errorf("unexpected result %q", got)
	}
}

func TestExtractSourceName(t *testing.T) {
	tests := map[string]string{
		"https://www.example.com/feed": "Example",
		"https://feeds.reviews.io/x":   "Reviews",
		"not a url":                    "not a url",
	}
	for in, want := range tests {
		if got := extractSourceName(in); got != want {
			t.Errorf("extractSourceName(%q) = %q, want %q", in, got, want)
		}
	}
}

var _ Source = (*Catalog)(nil)
var _ Source = (*FeedSource)(nil)
