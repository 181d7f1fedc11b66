// Package inference classifies review text with a loaded model bundle and
// summarises a product's reviews into a recommendation.
package inference

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/ReviewLens/internal/artifact"
	"github.com/TobiSchelling/ReviewLens/internal/sentiment"
	"github.com/TobiSchelling/ReviewLens/internal/textnorm"
	"github.com/TobiSchelling/ReviewLens/internal/vectorize"
)

var (
	// ErrPrediction is wrapped by every per-review failure.
	ErrPrediction = errors.New("prediction failed")
	// ErrNotProbabilistic rejects classifiers that cannot report class
	// probabilities, since confidence is derived from them.
	ErrNotProbabilistic = errors.New("classifier does not produce probabilities")
)

// PredictionError is the failure of a single review.
type PredictionError struct {
	Review string
	Err    error
}

func (e *PredictionError) Error() string {
	return fmt.Sprintf("prediction failed: %v", e.Err)
}

func (e *PredictionError) Unwrap() []error {
	return []error{ErrPrediction, e.Err}
}

// Classifier is a fitted model over feature vectors.
type Classifier interface {
	ClassNames() []string
	Predict(x vectorize.FeatureVector) int
}

// ProbabilisticClassifier also reports one probability per class, in
// ClassNames order.
type ProbabilisticClassifier interface {
	Classifier
	PredictProba(x vectorize.FeatureVector) []float64
}

// Prediction is the classification of one review.
type Prediction struct {
	Review     string          `json:"review"`
	Normalized string          `json:"processed"`
	Sentiment  sentiment.Label `json:"sentiment"`
	Confidence float64         `json:"confidence"`
}

// Engine classifies reviews. It never mutates the model it holds and is
// safe for concurrent use.
type Engine struct {
	vec     *vectorize.Vectorizer
	clf     ProbabilisticClassifier
	labels  []sentiment.Label
	workers int
	logger  *zap.Logger
}

// New builds an engine over a loaded bundle.
func New(b *artifact.Bundle, logger *zap.Logger) (*Engine, error) {
	if b == nil || b.Classifier == nil {
		return nil, errors.New("model bundle has no classifier")
	}
	return NewEngine(b.Vectorizer, b.Classifier, logger)
}

// NewEngine builds an engine from a vectorizer and any classifier whose
// classes are sentiment labels.
func NewEngine(vec *vectorize.Vectorizer, clf Classifier, logger *zap.Logger) (*Engine, error) {
	if vec == nil {
		return nil, errors.New("model bundle has no vectorizer")
	}
	pc, ok := clf.(ProbabilisticClassifier)
	if !ok {
		return nil, ErrNotProbabilistic
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	names := clf.ClassNames()
	labels := make([]sentiment.Label, len(names))
	for i, n := range names {
		l, err := sentiment.ParseLabel(n)
		if err != nil {
			return nil, fmt.Errorf("model classes: %w", err)
		}
		labels[i] = l
	}
	return &Engine{
		vec:     vec,
		clf:     pc,
		labels:  labels,
		workers: runtime.NumCPU(),
		logger:  logger,
	}, nil
}

// Classify predicts the sentiment of one review. Non-string input is
// coerced to text. Any failure, including a panic inside the model, is
// returned as a *PredictionError.
func (e *Engine) Classify(text any) (p Prediction, err error) {
	review := textnorm.Text(text)
	defer func() {
		if r := recover(); r != nil {
			p = Prediction{}
			err = &PredictionError{Review: review, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	tokens := textnorm.Normalize(text)
	x := e.vec.Transform(tokens)
	proba := e.clf.PredictProba(x)
	if len(proba) != len(e.labels) {
		return Prediction{}, &PredictionError{
			Review: review,
			Err:    fmt.Errorf("got %d probabilities for %d classes", len(proba), len(e.labels)),
		}
	}

	best := 0
	for i, v := range proba {
		if math.IsNaN(v) {
			return Prediction{}, &PredictionError{Review: review, Err: errors.New("probability is NaN")}
		}
		if v > proba[best] {
			best = i
		}
	}
	return Prediction{
		Review:     review,
		Normalized: textnorm.Join(tokens),
		Sentiment:  e.labels[best],
		Confidence: clamp01(proba[best]),
	}, nil
}

// ItemFailure records a review that could not be classified.
type ItemFailure struct {
	Index  int    `json:"index"`
	Review string `json:"review"`
	Error  string `json:"error"`
}

// BatchResult holds the successful predictions in input order, the label
// tally over them, and the failures.
type BatchResult struct {
	Predictions []Prediction
	Counts      sentiment.Counts
	Failures    []ItemFailure
}

// ClassifyBatch classifies texts in parallel. Failed items are logged and
// left out of Predictions and Counts; only cancellation fails the batch.
func (e *Engine) ClassifyBatch(ctx context.Context, texts []string) (BatchResult, error) {
	preds := make([]Prediction, len(texts))
	errs := make([]error, len(texts))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(e.workers)
	for i, text := range texts {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			preds[i], errs[i] = e.Classify(text)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return BatchResult{}, fmt.Errorf("classifying reviews: %w", err)
	}

	res := BatchResult{Counts: sentiment.NewCounts()}
	for i := range texts {
		if errs[i] != nil {
			e.logger.Warn("review skipped", zap.Int("index", i), zap.Error(errs[i]))
			res.Failures = append(res.Failures, ItemFailure{Index: i, Review: texts[i], Error: errs[i].Error()})
			continue
		}
		res.Predictions = append(res.Predictions, preds[i])
		res.Counts[preds[i].Sentiment]++
	}
	return res, nil
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
