// Package pipeline runs the model lifecycle end to end: training from the
// imported corpus, post-training validation and product analysis.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TobiSchelling/ReviewLens/internal/artifact"
	"github.com/TobiSchelling/ReviewLens/internal/config"
	"github.com/TobiSchelling/ReviewLens/internal/corpus"
	"github.com/TobiSchelling/ReviewLens/internal/database"
	"github.com/TobiSchelling/ReviewLens/internal/forest"
	"github.com/TobiSchelling/ReviewLens/internal/sentiment"
	"github.com/TobiSchelling/ReviewLens/internal/textnorm"
	"github.com/TobiSchelling/ReviewLens/internal/train"
	"github.com/TobiSchelling/ReviewLens/internal/validation"
	"github.com/TobiSchelling/ReviewLens/internal/vectorize"
)

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full training run.
type Result struct {
	RunID          string
	Steps          []StepResult
	Metrics        *train.Metrics
	Validation     *validation.Report
	ValidationPath string
}

// Err returns the first step error, if any.
func (r *Result) Err() error {
	for _, s := range r.Steps {
		if s.Err != nil {
			return fmt.Errorf("%s: %w", s.Name, s.Err)
		}
	}
	return nil
}

// Pipeline orchestrates training and analysis.
type Pipeline struct {
	cfg    *config.Config
	db     *database.DB
	logger *zap.Logger
}

// New creates a new pipeline.
func New(cfg *config.Config, db *database.DB, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{cfg: cfg, db: db, logger: logger}
}

// trainState carries intermediate values between training steps.
type trainState struct {
	records  []corpus.RawReview
	prepared *corpus.Prepared
	vec      *vectorize.Vectorizer
	split    train.Split
	result   *train.Result
	bundle   *artifact.Bundle
}

// Train executes the 6-step training pipeline. It stops at the first step
// that fails, except validation which never invalidates a saved model.
func (p *Pipeline) Train(ctx context.Context) *Result {
	r := &Result{RunID: uuid.NewString()}
	st := &trainState{}

	steps := []struct {
		name string
		run  func(context.Context, *trainState) (string, error)
	}{
		{"Load", p.runLoad},
		{"Prepare", p.runPrepare},
		{"Vectorize", p.runVectorize},
		{"Train", p.runTrain},
		{"Save", p.runSave},
		{"Record", func(ctx context.Context, st *trainState) (string, error) { return p.runRecord(r.RunID, st) }},
	}
	for i, s := range steps {
		p.logger.Info(fmt.Sprintf("Step %d/%d: %s", i+1, len(steps)+1, s.name))
		summary, err := s.run(ctx, st)
		r.Steps = append(r.Steps, StepResult{Name: s.name, Summary: summary, Err: err})
		if err != nil {
			return r
		}
	}
	r.Metrics = &st.result.Metrics

	p.logger.Info(fmt.Sprintf("Step %d/%d: Validate", len(steps)+1, len(steps)+1))
	report, path, err := p.validate(ctx, st.bundle)
	step := StepResult{Name: "Validate", Err: err}
	if err == nil {
		r.Validation = report
		r.ValidationPath = path
		step.Summary = fmt.Sprintf("%d cases, %d high confidence, average confidence %.3f",
			report.Summary.TotalCases, report.Summary.HighConfidencePredictions, report.Summary.AverageConfidence)
	}
	r.Steps = append(r.Steps, step)
	return r
}

// DryRun shows what a training run would do without executing it.
func (p *Pipeline) DryRun() *Result {
	r := &Result{}

	stats, err := p.db.GetStats()
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Load", Err: err})
		return r
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Load",
		Summary: fmt.Sprintf("[dry-run] %d reviews in DB, %d with a rating", stats.Reviews, stats.RatedReviews),
	})

	nTrain, nTest := splitSizes(stats.RatedReviews, p.cfg.Training.TestSize, p.cfg.Training.Seed)
	r.Steps = append(r.Steps, StepResult{
		Name:    "Vectorize",
		Summary: fmt.Sprintf("[dry-run] %d training / %d test examples, up to %d features", nTrain, nTest, p.cfg.Vectorizer.MaxFeatures),
	})

	grid := p.cfg.Training.Grid
	r.Steps = append(r.Steps, StepResult{
		Name: "Train",
		Summary: fmt.Sprintf("[dry-run] %d configurations x %d folds = %d fits",
			grid.Size(), p.cfg.Training.Folds, grid.Size()*p.cfg.Training.Folds),
	})

	r.Steps = append(r.Steps, StepResult{
		Name:    "Save",
		Summary: fmt.Sprintf("[dry-run] Would write model bundle to %s", p.cfg.ModelDir()),
	})
	return r
}

func (p *Pipeline) runLoad(_ context.Context, st *trainState) (string, error) {
	rows, err := p.db.GetAllReviews()
	if err != nil {
		return "", fmt.Errorf("reading corpus: %w", err)
	}
	st.records = make([]corpus.RawReview, len(rows))
	for i, row := range rows {
		st.records[i] = corpus.RawReview{Text: row.Text, Rating: row.Rating}
	}
	return fmt.Sprintf("Loaded %d reviews", len(rows)), nil
}

func (p *Pipeline) runPrepare(ctx context.Context, st *trainState) (string, error) {
	prepared, err := corpus.Prepare(ctx, st.records, p.cfg.Training.Workers, p.logger)
	if err != nil {
		return "", err
	}
	st.prepared = prepared
	return fmt.Sprintf("%d examples (%d skipped, %d degraded): %d positive, %d neutral, %d negative",
		len(prepared.Examples), prepared.Skipped, prepared.Degraded,
		prepared.Counts[sentiment.Positive], prepared.Counts[sentiment.Neutral], prepared.Counts[sentiment.Negative]), nil
}

// runVectorize splits the examples and fits the vocabulary on the training
// partition only.
func (p *Pipeline) runVectorize(_ context.Context, st *trainState) (string, error) {
	docs := st.prepared.Docs()
	labels := st.prepared.Labels()
	trainIdx, testIdx := train.SplitIndices(len(docs), p.cfg.Training.TestSize, p.cfg.Training.Seed)

	trainDocs := make([][]string, len(trainIdx))
	for i, j := range trainIdx {
		trainDocs[i] = docs[j]
		st.split.TrainY = append(st.split.TrainY, labels[j])
	}
	testDocs := make([][]string, len(testIdx))
	for i, j := range testIdx {
		testDocs[i] = docs[j]
		st.split.TestY = append(st.split.TestY, labels[j])
	}

	vec, err := vectorize.Fit(trainDocs, p.cfg.Vectorizer)
	if err != nil {
		return "", err
	}
	st.vec = vec
	st.split.TrainX = vec.TransformAll(trainDocs)
	st.split.TestX = vec.TransformAll(testDocs)
	return fmt.Sprintf("%d features from %d training documents (%d held out)", vec.Len(), len(trainDocs), len(testDocs)), nil
}

func (p *Pipeline) runTrain(ctx context.Context, st *trainState) (string, error) {
	if d := p.cfg.TrainingTimeout(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	trainer := train.New(p.logger,
		train.WithGrid(p.cfg.Training.Grid),
		train.WithFolds(p.cfg.Training.Folds),
		train.WithTestSize(p.cfg.Training.TestSize),
		train.WithSeed(p.cfg.Training.Seed),
		train.WithWorkers(p.cfg.Training.Workers),
		train.WithBaseParams(p.cfg.ForestParams()),
	)
	result, err := trainer.TrainSplit(ctx, st.split)
	if err != nil {
		return "", err
	}
	st.result = result
	return fmt.Sprintf("Best CV score %.4f, test accuracy %.4f", result.Metrics.BestScore, result.Metrics.TestAccuracy), nil
}

func (p *Pipeline) runSave(_ context.Context, st *trainState) (string, error) {
	st.bundle = &artifact.Bundle{
		Vectorizer: st.vec,
		Classifier: st.result.Model,
		Metadata: artifact.Metadata{
			TrainingDate:       time.Now().UTC(),
			ModelType:          forest.ModelType,
			VectorizerParams:   st.vec.Params(),
			FeatureCount:       st.vec.Len(),
			TrainingSamples:    len(st.split.TrainX),
			ModelPerformance:   st.result.Metrics,
			PreprocessingSteps: textnorm.Steps(),
		},
	}
	dir := p.cfg.ModelDir()
	if err := artifact.Save(dir, st.bundle); err != nil {
		return "", fmt.Errorf("saving model: %w", err)
	}
	return fmt.Sprintf("Model saved to %s", dir), nil
}

func (p *Pipeline) runRecord(runID string, st *trainState) (string, error) {
	params, err := json.Marshal(st.result.Metrics.BestParams)
	if err != nil {
		return "", fmt.Errorf("encoding best params: %w", err)
	}
	run := database.TrainingRun{
		ID:              runID,
		TrainedAt:       st.bundle.Metadata.TrainingDate.Format(time.RFC3339),
		ModelDir:        p.cfg.ModelDir(),
		FeatureCount:    st.bundle.Metadata.FeatureCount,
		TrainingSamples: st.bundle.Metadata.TrainingSamples,
		BestScore:       st.result.Metrics.BestScore,
		TestAccuracy:    st.result.Metrics.TestAccuracy,
		BestParams:      string(params),
	}
	if err := p.db.InsertTrainingRun(run); err != nil {
		return "", fmt.Errorf("recording training run: %w", err)
	}
	return fmt.Sprintf("Recorded run %s", runID), nil
}

// Validate runs the validation harness against the stored model and saves
// the report next to it.
func (p *Pipeline) Validate(ctx context.Context) (*validation.Report, string, error) {
	b, err := artifact.Load(p.cfg.ModelDir())
	if err != nil {
		return nil, "", err
	}
	return p.validate(ctx, b)
}

func (p *Pipeline) validate(ctx context.Context, b *artifact.Bundle) (*validation.Report, string, error) {
	h, err := validation.New(b, p.logger)
	if err != nil {
		return nil, "", err
	}
	report, err := h.Run(ctx)
	if err != nil {
		return nil, "", err
	}
	path, err := validation.Save(p.cfg.ModelDir(), report)
	if err != nil {
		return nil, "", fmt.Errorf("saving validation report: %w", err)
	}
	return report, path, nil
}

func splitSizes(n int, testSize float64, seed uint64) (int, int) {
	trainIdx, testIdx := train.SplitIndices(n, testSize, seed)
	return len(trainIdx), len(testIdx)
}
