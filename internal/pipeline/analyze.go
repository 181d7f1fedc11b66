package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TobiSchelling/ReviewLens/internal/artifact"
	"github.com/TobiSchelling/ReviewLens/internal/database"
	"github.com/TobiSchelling/ReviewLens/internal/inference"
	"github.com/TobiSchelling/ReviewLens/internal/reviews"
)

// ErrNothingAnalysed is returned when a product had reviews but none of
// them could be classified.
var ErrNothingAnalysed = errors.New("no reviews could be analysed")

// Analysis is a saved product analysis.
type Analysis struct {
	ID     string
	Report *inference.Report
	Path   string
}

// Analyze loads the stored model, classifies the reviews src returns for
// productID, writes the analysis document into the results directory and
// indexes it in the database. Lookup failures wrap reviews.ErrNoReviews.
func (p *Pipeline) Analyze(ctx context.Context, src reviews.Source, productID string) (*Analysis, error) {
	b, err := artifact.Load(p.cfg.ModelDir())
	if err != nil {
		return nil, err
	}
	engine, err := inference.New(b, p.logger)
	if err != nil {
		return nil, err
	}

	texts, err := src.Reviews(ctx, productID)
	if err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("product %s: %w", productID, reviews.ErrNoReviews)
	}

	report, err := engine.Analyze(ctx, productID, texts)
	if err != nil {
		return nil, err
	}
	if len(report.DetailedAnalysis) == 0 {
		return nil, fmt.Errorf("product %s: %d reviews: %w", productID, len(texts), ErrNothingAnalysed)
	}
	report.ProductInfo = src.ProductInfo(ctx, productID)

	path, err := report.Save(p.cfg.ResultsDir())
	if err != nil {
		return nil, fmt.Errorf("saving analysis: %w", err)
	}

	a := &Analysis{ID: uuid.NewString(), Report: report, Path: path}
	err = p.db.InsertAnalysis(database.Analysis{
		ID:               a.ID,
		ProductID:        productID,
		OverallSentiment: string(report.Summary.OverallSentiment),
		ConfidenceScore:  report.Summary.ConfidenceScore,
		Recommendation:   report.Summary.Recommendation,
		ReviewCount:      len(report.DetailedAnalysis),
		ResultPath:       path,
		SummaryMarkdown:  report.Markdown(),
		CreatedAt:        report.Timestamp.Format(time.RFC3339),
	})
	if err != nil {
		// The saved document stays valid without its index entry.
		p.logger.Error("indexing analysis", zap.String("path", path), zap.Error(err))
	}
	return a, nil
}
