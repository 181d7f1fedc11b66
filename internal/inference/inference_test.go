package inference

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/TobiSchelling/ReviewLens/internal/artifact"
	"github.com/TobiSchelling/ReviewLens/internal/forest"
	"github.com/TobiSchelling/ReviewLens/internal/sentiment"
	"github.com/TobiSchelling/ReviewLens/internal/textnorm"
	"github.com/TobiSchelling/ReviewLens/internal/vectorize"
)

var trainingDocs = []struct {
	text  string
	label sentiment.Label
}{
	{"great product works perfectly love it", sentiment.Positive},
	{"excellent quality highly recommend", sentiment.Positive},
	{"amazing battery great screen love", sentiment.Positive},
	{"wonderful tablet great value", sentiment.Positive},
	{"terrible broke after one day", sentiment.Negative},
	{"awful waste of money terrible", sentiment.Negative},
	{"poor quality stopped working", sentiment.Negative},
	{"horrible screen broke returned", sentiment.Negative},
	{"okay product nothing special", sentiment.Neutral},
	{"average does the job okay", sentiment.Neutral},
	{"decent fine for the price", sentiment.Neutral},
	{"alright nothing special average", sentiment.Neutral},
}

func testEngine(t *testing.T) *Engine {
	t.Helper()
	classes := []string{"negative", "neutral", "positive"}
	index := map[sentiment.Label]int{sentiment.Negative: 0, sentiment.Neutral: 1, sentiment.Positive: 2}

	var corpus [][]string
	var y []int
	for _, d := range trainingDocs {
		corpus = append(corpus, textnorm.Normalize(d.text))
		y = append(y, index[d.label])
	}
	vec, err := vectorize.Fit(corpus, vectorize.DefaultParams())
	if err != nil {
		t.Fatalf("Fit vectorizer: %v", err)
	}
	p := forest.DefaultParams()
	p.NEstimators = 25
	clf, err := forest.Fit(vec.TransformAll(corpus), y, classes, p)
	if err != nil {
		t.Fatalf("Fit forest: %v", err)
	}
	e, err := New(&artifact.Bundle{Vectorizer: vec, Classifier: clf}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

type hardClassifier struct{}

func (hardClassifier) ClassNames() []string { return []string{"negative", "positive"} }
func (hardClassifier) Predict(vectorize.FeatureVector) int { return 1 }

type panicClassifier struct{ hardClassifier }

func (panicClassifier) PredictProba(x vectorize.FeatureVector) []float64 {
	if x.NNZ() == 0 {
		panic("empty input")
	}
	return []float64{0.25, 0.75}
}

func fitVectorizer(t *testing.T) *vectorize.Vectorizer {
	t.Helper()
	vec, err := vectorize.Fit([][]string{{"good"}, {"bad"}}, vectorize.DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	return vec
}

func TestNewRejectsNonProbabilistic(t *testing.T) {
	_, err := NewEngine(fitVectorizer(t), hardClassifier{}, nil)
	if !errors.Is(err, ErrNotProbabilistic) {
		t.Fatalf("err = %v, want ErrNotProbabilistic", err)
	}
}

func TestNewRejectsUnknownClass(t *testing.T) {
	_, err := NewEngine(fitVectorizer(t), oddClasses{}, nil)
	if err == nil {
		t.Fatal("expected error for unknown class names")
	}
}

type oddClasses struct{ panicClassifier }

func (oddClasses) ClassNames() []string { return []string{"spam", "ham"} }

func TestClassifyConfidenceBounds(t *testing.T) {
	e := testEngine(t)
	inputs := []any{
		"great product love it",
		"terrible waste of money",
		"okay nothing special",
		"",
		"!@#$%",
		"5 stars",
		strings.Repeat("a", 1000),
		"短评",
		"ALL CAPS REVIEW!!!",
		nil,
		42,
	}
	for _, in := range inputs {
		p, err := e.Classify(in)
		if err != nil {
			t.Errorf("Classify(%v): %v", in, err)
			continue
		}
		if p.Confidence < 0 || p.Confidence > 1 {
			t.Errorf("Classify(%v) confidence = %v", in, p.Confidence)
		}
		if _, err := sentiment.ParseLabel(string(p.Sentiment)); err != nil {
			t.Errorf("Classify(%v) label = %q", in, p.Sentiment)
		}
	}
}

func TestClassifyRecordsNormalizedText(t *testing.T) {
	e := testEngine(t)
	p, err := e.Classify("This is the BEST product!")
	if err != nil {
		t.Fatal(err)
	}
	if p.Review != "This is the BEST product!" {
		t.Errorf("Review = %q", p.Review)
	}
	if p.Normalized != "best product" {
		t.Errorf("Normalized = %q, want %q", p.Normalized, "best product")
	}
}

func TestClassifyObviousReviews(t *testing.T) {
	e := testEngine(t)
	tests := []struct {
		text string
		want sentiment.Label
	}{
		{"great product love it excellent", sentiment.Positive},
		{"terrible awful broke waste", sentiment.Negative},
	}
	for _, tt := range tests {
		p, err := e.Classify(tt.text)
		if err != nil {
			t.Fatal(err)
		}
		if p.Sentiment != tt.want {
			t.Errorf("Classify(%q) = %s, want %s", tt.text, p.Sentiment, tt.want)
		}
	}
}

func TestClassifyRecoversPanic(t *testing.T) {
	e, err := NewEngine(fitVectorizer(t), panicClassifier{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = e.Classify("unknown words only")
	if !errors.Is(err, ErrPrediction) {
		t.Fatalf("err = %v, want ErrPrediction", err)
	}
	var pe *PredictionError
	if !errors.As(err, &pe) || pe.Review != "unknown words only" {
		t.Errorf("err = %#v", err)
	}

	p, err := e.Classify("good")
	if err != nil {
		t.Fatalf("Classify(good): %v", err)
	}
	if p.Sentiment != sentiment.Positive || p.Confidence != 0.75 {
		t.Errorf("Classify(good) = %+v", p)
	}
}

func TestClassifyBatchSkipsFailures(t *testing.T) {
	e, err := NewEngine(fitVectorizer(t), panicClassifier{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	res, err := e.ClassifyBatch(context.Background(), []string{"good", "", "bad good", "zzz"})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Predictions) != 2 {
		t.Fatalf("got %d predictions, want 2", len(res.Predictions))
	}
	if res.Predictions[0].Review != "good" || res.Predictions[1].Review != "bad good" {
		t.Errorf("predictions out of input order: %+v", res.Predictions)
	}
	if len(res.Failures) != 2 || res.Failures[0].Index != 1 || res.Failures[1].Index != 3 {
		t.Errorf("failures = %+v", res.Failures)
	}
	if res.Counts[sentiment.Positive] != 2 || res.Counts.Total() != 2 {
		t.Errorf("counts = %v", res.Counts)
	}
}

func TestClassifyBatchCancelled(t *testing.T) {
	e := testEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.ClassifyBatch(ctx, []string{"great"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestEngineConcurrentUse(t *testing.T) {
	e := testEngine(t)
	want, err := e.Classify("great product love it")
	if err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				got, err := e.Classify("great product love it")
				if err != nil || got != want {
					t.Errorf("concurrent Classify = %+v, %v", got, err)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestAnalyzeEmpty(t *testing.T) {
	e := testEngine(t)
	r, err := e.Analyze(context.Background(), "B00TEST", nil)
	if err != nil {
		t.Fatal(err)
	}
	s := r.Summary
	if s.OverallSentiment != sentiment.Neutral {
		t.Errorf("overall = %s, want neutral", s.OverallSentiment)
	}
	if s.Tier != sentiment.TierInsufficient || s.TierName != "insufficient data" {
		t.Errorf("tier = %v (%q)", s.Tier, s.TierName)
	}
	if s.ConfidenceScore != 0 || s.ReviewCounts.Total() != 0 {
		t.Errorf("summary = %+v", s)
	}
	if r.DetailedAnalysis == nil || r.Failures == nil {
		t.Error("empty report should encode empty lists, not null")
	}
}

func TestAnalyzeSummary(t *testing.T) {
	e := testEngine(t)
	texts := []string{
		"great product love it",
		"excellent quality highly recommend",
		"amazing great value",
		"terrible broke",
	}
	r, err := e.Analyze(context.Background(), "B00TEST", texts)
	if err != nil {
		t.Fatal(err)
	}
	if r.ProductInfo.ID != "B00TEST" || r.ProductInfo.URL != "https://www.amazon.com/dp/B00TEST" {
		t.Errorf("product info = %+v", r.ProductInfo)
	}
	if len(r.DetailedAnalysis) != len(texts) {
		t.Fatalf("detailed analysis has %d entries", len(r.DetailedAnalysis))
	}
	if r.Summary.ReviewCounts.Total() != len(texts) {
		t.Errorf("counts total = %d", r.Summary.ReviewCounts.Total())
	}
	if r.Summary.OverallSentiment != r.Summary.ReviewCounts.Dominant() {
		t.Errorf("overall %s is not the dominant label of %v", r.Summary.OverallSentiment, r.Summary.ReviewCounts)
	}
	var sum float64
	for _, p := range r.DetailedAnalysis {
		sum += p.Confidence
	}
	if got := sum / float64(len(texts)); got != r.Summary.ConfidenceScore {
		t.Errorf("confidence score = %v, want mean %v", r.Summary.ConfidenceScore, got)
	}
}

func TestSummarize(t *testing.T) {
	preds := []Prediction{
		{Sentiment: sentiment.Positive, Confidence: 0.9},
		{Sentiment: sentiment.Positive, Confidence: 0.9},
		{Sentiment: sentiment.Positive, Confidence: 0.9},
		{Sentiment: sentiment.Positive, Confidence: 0.9},
		{Sentiment: sentiment.Negative, Confidence: 0.9},
	}
	s := Summarize(preds)
	if s.Tier != sentiment.TierHighlyRecommended {
		t.Errorf("tier = %v, want highly recommended", s.Tier)
	}
	if s.OverallSentiment != sentiment.Positive {
		t.Errorf("overall = %s", s.OverallSentiment)
	}
}

func TestReportSave(t *testing.T) {
	e := testEngine(t)
	r, err := e.Analyze(context.Background(), "B00/X", []string{"great product"})
	if err != nil {
		t.Fatal(err)
	}
	r.Timestamp = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

	dir := t.TempDir()
	path, err := r.Save(dir)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if want := filepath.Join(dir, "analysis_B00_X_20240506_070809.json"); path != want {
		t.Errorf("path = %s, want %s", path, want)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"product_id", "product_info", "timestamp", "summary", "detailed_analysis", "failures"} {
		if _, ok := doc[key]; !ok {
			t.Errorf("document lacks %q", key)
		}
	}
	summary := doc["summary"].(map[string]any)
	counts := summary["review_counts"].(map[string]any)
	for _, l := range []string{"positive", "neutral", "negative"} {
		if _, ok := counts[l]; !ok {
			t.Errorf("review_counts lacks %q", l)
		}
	}
	if _, ok := summary["recommendation_tier"]; !ok {
		t.Error("summary lacks recommendation_tier")
	}
}

func TestReportMarkdown(t *testing.T) {
	e := testEngine(t)
	r, err := e.Analyze(context.Background(), "B00TEST", []string{"great product love it"})
	if err != nil {
		t.Fatal(err)
	}
	md := r.Markdown()
	for _, want := range []string{"# Amazon Product (B00TEST)", "## Verdict:", "great product love it"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown lacks %q:\n%s", want, md)
		}
	}
}
