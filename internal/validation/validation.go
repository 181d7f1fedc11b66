// Package validation runs a fixed battery of labeled and adversarial
// reviews through a trained model and reports preprocessing consistency and
// prediction health per category.
package validation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/TobiSchelling/ReviewLens/internal/artifact"
	"github.com/TobiSchelling/ReviewLens/internal/inference"
	"github.com/TobiSchelling/ReviewLens/internal/sentiment"
	"github.com/TobiSchelling/ReviewLens/internal/textnorm"
)

// HighConfidence is the confidence above which a prediction counts as
// high-confidence.
const HighConfidence = 0.8

// Dir is the subdirectory of the model directory that holds results.
const Dir = "validation"

// CaseResult is the outcome of one case.
type CaseResult struct {
	Category         string            `json:"category"`
	Input            string            `json:"test_case"`
	Processed        string            `json:"processed"`
	VectorLength     int               `json:"vector_length"`
	ExpectedFeatures int               `json:"expected_features"`
	PreprocessingOK  bool              `json:"preprocessing_valid"`
	Degraded         []textnorm.Reason `json:"degraded,omitempty"`
	Success          bool              `json:"success"`
	Prediction       sentiment.Label   `json:"prediction,omitempty"`
	Confidence       float64           `json:"confidence"`
	Error            string            `json:"error,omitempty"`
}

// Metrics aggregates a group of case results. Rates are over all cases in
// the group; MeanConfidence is over successful predictions.
type Metrics struct {
	TotalCases         int     `json:"total_cases"`
	PreprocessingValid int     `json:"preprocessing_valid"`
	Successful         int     `json:"successful_predictions"`
	HighConfidence     int     `json:"high_confidence_predictions"`
	PreprocessingRate  float64 `json:"preprocessing_success_rate"`
	PredictionRate     float64 `json:"prediction_success_rate"`
	HighConfidenceRate float64 `json:"high_confidence_rate"`
	MeanConfidence     float64 `json:"average_confidence"`
}

// MetricsSet holds overall and per-category metrics.
type MetricsSet struct {
	Overall    Metrics            `json:"overall"`
	Categories map[string]Metrics `json:"categories"`
}

// Summary is the short form printed after training.
type Summary struct {
	TotalCases                int     `json:"total_cases"`
	HighConfidencePredictions int     `json:"high_confidence_predictions"`
	AverageConfidence         float64 `json:"average_confidence"`
}

// Report is a full validation run.
type Report struct {
	Timestamp  time.Time         `json:"timestamp"`
	ModelInfo  artifact.Metadata `json:"model_info"`
	TestCases  []CaseResult      `json:"test_cases"`
	Metrics    MetricsSet        `json:"metrics"`
	Summary    Summary           `json:"summary"`
	Categories []string          `json:"-"`
}

// Harness validates one loaded bundle.
type Harness struct {
	bundle *artifact.Bundle
	engine *inference.Engine
	cases  []Case
	logger *zap.Logger
}

// New creates a harness over b. With no cases given it runs DefaultCases.
func New(b *artifact.Bundle, logger *zap.Logger, cases ...Case) (*Harness, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	engine, err := inference.New(b, logger)
	if err != nil {
		return nil, fmt.Errorf("validation engine: %w", err)
	}
	if len(cases) == 0 {
		cases = DefaultCases()
	}
	return &Harness{bundle: b, engine: engine, cases: cases, logger: logger}, nil
}

// Run evaluates every case. Failures inside a case are recorded on the case;
// only cancellation stops the run.
func (h *Harness) Run(ctx context.Context) (*Report, error) {
	results := make([]CaseResult, 0, len(h.cases))
	for _, c := range h.cases {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		results = append(results, h.runCase(c))
	}

	categories := lo.Uniq(lo.Map(h.cases, func(c Case, _ int) string { return c.Category }))
	byCategory := lo.GroupBy(results, func(r CaseResult) string { return r.Category })

	r := &Report{
		Timestamp:  time.Now(),
		ModelInfo:  h.bundle.Metadata,
		TestCases:  results,
		Categories: categories,
		Metrics: MetricsSet{
			Overall:    aggregate(results),
			Categories: lo.MapValues(byCategory, func(rs []CaseResult, _ string) Metrics { return aggregate(rs) }),
		},
	}
	r.Summary = Summary{
		TotalCases:                r.Metrics.Overall.TotalCases,
		HighConfidencePredictions: r.Metrics.Overall.HighConfidence,
		AverageConfidence:         r.Metrics.Overall.MeanConfidence,
	}

	h.logger.Info("validation complete",
		zap.Int("cases", r.Summary.TotalCases),
		zap.Float64("preprocessing_rate", r.Metrics.Overall.PreprocessingRate),
		zap.Float64("prediction_rate", r.Metrics.Overall.PredictionRate),
		zap.Float64("high_confidence_rate", r.Metrics.Overall.HighConfidenceRate),
		zap.Float64("average_confidence", r.Metrics.Overall.MeanConfidence))
	return r, nil
}

func (h *Harness) runCase(c Case) CaseResult {
	res := CaseResult{
		Category:         c.Category,
		Input:            c.Text,
		ExpectedFeatures: h.bundle.Metadata.FeatureCount,
	}
	if err := h.checkPreprocessing(c.Text, &res); err != nil {
		h.logger.Warn("preprocessing check failed",
			zap.String("category", c.Category), zap.Error(err))
	}

	p, err := h.engine.Classify(c.Text)
	if err != nil {
		res.Error = err.Error()
		h.logger.Warn("validation case failed",
			zap.String("category", c.Category), zap.Error(err))
		return res
	}
	res.Success = true
	res.Prediction = p.Sentiment
	res.Confidence = p.Confidence
	return res
}

// checkPreprocessing verifies that the vector has the length recorded in
// metadata and that it matches the vocabulary size.
func (h *Harness) checkPreprocessing(text string, res *CaseResult) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			res.PreprocessingOK = false
			res.Error = err.Error()
		}
	}()

	analysis := textnorm.Analyze(text)
	res.Processed = textnorm.Join(analysis.Tokens)
	res.Degraded = analysis.Reasons

	x := h.bundle.Vectorizer.Transform(analysis.Tokens)
	res.VectorLength = x.Len()
	vocab := h.bundle.Vectorizer.Len()
	if res.VectorLength != vocab || res.VectorLength != res.ExpectedFeatures {
		return fmt.Errorf("vector length %d, vocabulary %d, metadata feature_count %d",
			res.VectorLength, vocab, res.ExpectedFeatures)
	}
	res.PreprocessingOK = true
	return nil
}

func aggregate(results []CaseResult) Metrics {
	m := Metrics{
		TotalCases:         len(results),
		PreprocessingValid: lo.CountBy(results, func(r CaseResult) bool { return r.PreprocessingOK }),
		Successful:         lo.CountBy(results, func(r CaseResult) bool { return r.Success }),
		HighConfidence: lo.CountBy(results, func(r CaseResult) bool {
			return r.Success && r.Confidence > HighConfidence
		}),
	}
	if m.TotalCases > 0 {
		n := float64(m.TotalCases)
		m.PreprocessingRate = float64(m.PreprocessingValid) / n
		m.PredictionRate = float64(m.Successful) / n
		m.HighConfidenceRate = float64(m.HighConfidence) / n
	}
	if m.Successful > 0 {
		succeeded := lo.Filter(results, func(r CaseResult, _ int) bool { return r.Success })
		m.MeanConfidence = lo.SumBy(succeeded, func(r CaseResult) float64 { return r.Confidence }) / float64(m.Successful)
	}
	return m
}

// FileName is the name the report is saved under.
func (r *Report) FileName() string {
	return fmt.Sprintf("validation_results_%s.json", r.Timestamp.Format("20060102_150405"))
}

// Save writes the report under modelDir/validation and returns its path.
func Save(modelDir string, r *Report) (string, error) {
	if r == nil {
		return "", errors.New("no validation report")
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding validation report: %w", err)
	}
	path := filepath.Join(modelDir, Dir, r.FileName())
	if err := artifact.WriteFileAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}
