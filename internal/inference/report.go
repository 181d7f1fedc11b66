package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/ReviewLens/internal/artifact"
	"github.com/TobiSchelling/ReviewLens/internal/reviews"
	"github.com/TobiSchelling/ReviewLens/internal/sentiment"
)

// maxMarkdownExamples caps the example reviews listed per label.
const maxMarkdownExamples = 3

// Summary is the aggregate verdict over a product's reviews.
type Summary struct {
	OverallSentiment sentiment.Label  `json:"overall_sentiment"`
	ConfidenceScore  float64          `json:"confidence_score"`
	ReviewCounts     sentiment.Counts `json:"review_counts"`
	Recommendation   string           `json:"recommendation"`
	Tier             sentiment.Tier   `json:"-"`
	TierName         string           `json:"recommendation_tier"`
}

// Report is the analysis document for one product.
type Report struct {
	ProductID        string          `json:"product_id"`
	ProductInfo      reviews.Product `json:"product_info"`
	Timestamp        time.Time       `json:"timestamp"`
	Summary          Summary         `json:"summary"`
	DetailedAnalysis []Prediction    `json:"detailed_analysis"`
	Failures         []ItemFailure   `json:"failures"`
}

// Summarize folds predictions into a Summary. With no predictions the
// verdict is neutral with insufficient data.
func Summarize(preds []Prediction) Summary {
	counts := sentiment.NewCounts()
	var total float64
	for _, p := range preds {
		counts[p.Sentiment]++
		total += p.Confidence
	}
	var avg float64
	if len(preds) > 0 {
		avg = total / float64(len(preds))
	}
	rec := sentiment.Recommend(counts, avg)
	return Summary{
		OverallSentiment: counts.Dominant(),
		ConfidenceScore:  avg,
		ReviewCounts:     counts,
		Recommendation:   rec.Text,
		Tier:             rec.Tier,
		TierName:         rec.Tier.String(),
	}
}

// Analyze classifies every review of a product and summarises them. The
// product info defaults to the catalog placeholder; callers with catalog
// data overwrite it.
func (e *Engine) Analyze(ctx context.Context, productID string, texts []string) (*Report, error) {
	batch, err := e.ClassifyBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	r := &Report{
		ProductID:        productID,
		ProductInfo:      reviews.DefaultProduct(productID),
		Timestamp:        time.Now().UTC(),
		Summary:          Summarize(batch.Predictions),
		DetailedAnalysis: batch.Predictions,
		Failures:         batch.Failures,
	}
	if r.DetailedAnalysis == nil {
		r.DetailedAnalysis = []Prediction{}
	}
	if r.Failures == nil {
		r.Failures = []ItemFailure{}
	}
	e.logger.Info("product analysed",
		zap.String("product_id", productID),
		zap.Int("reviews", len(texts)),
		zap.Int("classified", len(batch.Predictions)),
		zap.Int("failed", len(batch.Failures)),
		zap.String("overall_sentiment", string(r.Summary.OverallSentiment)),
		zap.String("tier", r.Summary.TierName))
	return r, nil
}

// FileName is the name the report is saved under.
func (r *Report) FileName() string {
	id := strings.Map(func(c rune) rune {
		if c == '/' || c == '\\' || c == ' ' {
			return '_'
		}
		return c
	}, r.ProductID)
	return fmt.Sprintf("analysis_%s_%s.json", id, r.Timestamp.Format("20060102_150405"))
}

// Save writes the report as indented JSON into dir and returns its path.
func (r *Report) Save(dir string) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding analysis: %w", err)
	}
	path := filepath.Join(dir, r.FileName())
	if err := artifact.WriteFileAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// Markdown renders a readable summary of the report.
func (r *Report) Markdown() string {
	var sections []string

	head := fmt.Sprintf("# %s\n\n**Brand:** %s  \n**Category:** %s  \n**Link:** [%s](%s)",
		r.ProductInfo.Name, r.ProductInfo.Brand, r.ProductInfo.Category, r.ProductID, r.ProductInfo.URL)
	sections = append(sections, head)

	s := r.Summary
	verdict := fmt.Sprintf("## Verdict: %s\n\n%s\n\n- Overall sentiment: **%s**\n- Average confidence: %.1f%%",
		s.TierName, s.Recommendation, s.OverallSentiment, s.ConfidenceScore*100)
	var counts []string
	for _, l := range sentiment.Labels {
		counts = append(counts, fmt.Sprintf("- %s: %d", l, s.ReviewCounts[l]))
	}
	sections = append(sections, verdict+"\n\n### Review counts\n\n"+strings.Join(counts, "\n"))

	for _, l := range sentiment.Labels {
		var lines []string
		for _, p := range r.DetailedAnalysis {
			if p.Sentiment != l {
				continue
			}
			lines = append(lines, fmt.Sprintf("- %s _(%.0f%%)_", quote(p.Review), p.Confidence*100))
			if len(lines) == maxMarkdownExamples {
				break
			}
		}
		if len(lines) > 0 {
			sections = append(sections, fmt.Sprintf("### Example %s reviews\n\n%s", l, strings.Join(lines, "\n")))
		}
	}

	if len(r.Failures) > 0 {
		sections = append(sections, fmt.Sprintf("_%d reviews could not be analysed._", len(r.Failures)))
	}
	return strings.Join(sections, "\n\n---\n\n")
}

func quote(review string) string {
	review = strings.Join(strings.Fields(review), " ")
	if r := []rune(review); len(r) > 200 {
		review = string(r[:200]) + "..."
	}
	if review == "" {
		return "(empty)"
	}
	return "\"" + review + "\""
}
