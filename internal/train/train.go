// Package train selects and fits the sentiment classifier: a reproducible
// train/test split, a cross-validated grid search over forest
// hyperparameters, a refit of the winner and its evaluation.
package train

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/ReviewLens/internal/forest"
	"github.com/TobiSchelling/ReviewLens/internal/sentiment"
	"github.com/TobiSchelling/ReviewLens/internal/vectorize"
)

const (
	DefaultFolds    = 5
	DefaultTestSize = 0.2
	DefaultSeed     = 42
)

var (
	// ErrInsufficientData aborts training before the search starts.
	ErrInsufficientData = errors.New("insufficient training data")
	// ErrTrainingTimeout is returned when the caller's context ends mid-search.
	ErrTrainingTimeout = errors.New("training timed out")
)

// InsufficientDataError names the class that cannot be split into folds.
type InsufficientDataError struct {
	Class string
	Count int
	Folds int
}

func (e *InsufficientDataError) Error() string {
	if e.Class == "" {
		return fmt.Sprintf("insufficient training data: need at least two classes, got %d", e.Count)
	}
	return fmt.Sprintf("insufficient training data: class %q has %d examples, %d-fold cross-validation needs %d",
		e.Class, e.Count, e.Folds, e.Folds)
}

func (e *InsufficientDataError) Unwrap() error {
	return ErrInsufficientData
}

// Split is a labeled dataset already partitioned into train and test.
type Split struct {
	TrainX []vectorize.FeatureVector
	TrainY []sentiment.Label
	TestX  []vectorize.FeatureVector
	TestY  []sentiment.Label
}

// Result is a fitted classifier and the metrics of its selection.
type Result struct {
	Model   *forest.Forest
	Metrics Metrics
}

// Trainer runs the model search. The zero value is not usable; build it with
// New.
type Trainer struct {
	grid     Grid
	base     forest.Params
	folds    int
	testSize float64
	seed     uint64
	workers  int
	logger   *zap.Logger
}

// Option configures a Trainer.
type Option func(*Trainer)

func WithGrid(g Grid) Option { return func(t *Trainer) { t.grid = g } }
func WithFolds(k int) Option { return func(t *Trainer) { t.folds = k } }
func WithTestSize(s float64) Option { return func(t *Trainer) { t.testSize = s } }
func WithSeed(seed uint64) Option { return func(t *Trainer) { t.seed = seed } }
func WithWorkers(n int) Option { return func(t *Trainer) { t.workers = n } }
func WithBaseParams(p forest.Params) Option { return func(t *Trainer) { t.base = p } }

// New creates a trainer with the default grid, 5 folds, a 20% test split and
// seed 42.
func New(logger *zap.Logger, opts ...Option) *Trainer {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Trainer{
		grid:     DefaultGrid(),
		base:     forest.DefaultParams(),
		folds:    DefaultFolds,
		testSize: DefaultTestSize,
		seed:     DefaultSeed,
		workers:  runtime.NumCPU(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.folds < 2 {
		t.folds = DefaultFolds
	}
	if t.workers < 1 {
		t.workers = 1
	}
	t.base.Seed = t.seed
	return t
}

// TestSize returns the held-out share used by Train.
func (t *Trainer) TestSize() float64 { return t.testSize }

// Seed returns the seed shared by the split and the forests.
func (t *Trainer) Seed() uint64 { return t.seed }

// Train splits the features reproducibly and then runs TrainSplit.
func (t *Trainer) Train(ctx context.Context, x []vectorize.FeatureVector, y []sentiment.Label) (*Result, error) {
	if len(x) != len(y) {
		return nil, fmt.Errorf("got %d feature vectors but %d labels", len(x), len(y))
	}
	trainIdx, testIdx := SplitIndices(len(x), t.testSize, t.seed)
	s := Split{}
	for _, i := range trainIdx {
		s.TrainX = append(s.TrainX, x[i])
		s.TrainY = append(s.TrainY, y[i])
	}
	for _, i := range testIdx {
		s.TestX = append(s.TestX, x[i])
		s.TestY = append(s.TestY, y[i])
	}
	return t.TrainSplit(ctx, s)
}

// TrainSplit searches the grid with stratified k-fold cross-validation on
// the training partition, refits the best configuration on all of it and
// evaluates on the test partition. The selected configuration does not
// depend on the number of workers or the order fits complete in.
func (t *Trainer) TrainSplit(ctx context.Context, s Split) (*Result, error) {
	classes := classNames(s.TrainY, s.TestY)
	trainY := encode(s.TrainY, classes)
	testY := encode(s.TestY, classes)

	if err := t.checkClassSupport(classes, trainY); err != nil {
		return nil, err
	}

	configs := t.grid.Expand(t.base)
	if len(configs) == 0 {
		return nil, errors.New("hyperparameter grid is empty")
	}

	start := time.Now()
	t.logger.Info("starting grid search",
		zap.Int("configurations", len(configs)),
		zap.Int("folds", t.folds),
		zap.Int("fits", len(configs)*t.folds),
		zap.Int("training_samples", len(s.TrainX)),
		zap.Int("workers", t.workers))

	results, err := t.search(ctx, configs, s.TrainX, trainY, classes)
	if err != nil {
		return nil, err
	}
	best := 0
	for i := range results {
		if results[i].MeanScore > results[best].MeanScore {
			best = i
		}
	}
	rankResults(results)

	t.logger.Info("grid search complete",
		zap.Duration("elapsed", time.Since(start)),
		zap.Float64("best_score", results[best].MeanScore),
		zap.Any("best_params", results[best].Params))

	model, err := forest.Fit(s.TrainX, trainY, classes, results[best].Params)
	if err != nil {
		return nil, fmt.Errorf("refitting best configuration: %w", err)
	}

	pred := make([]int, len(s.TestX))
	for i, x := range s.TestX {
		pred[i] = model.Predict(x)
	}
	report := classificationReport(classes, testY, pred)

	m := Metrics{
		BestParams:           results[best].Params,
		BestScore:            results[best].MeanScore,
		TestAccuracy:         report.Accuracy,
		CrossValScores:       results[best].FoldScores,
		ClassificationReport: report,
		SearchResults:        results,
		TrainingSamples:      len(s.TrainX),
		TestSamples:          len(s.TestX),
	}
	t.logger.Info("model trained",
		zap.Float64("test_accuracy", m.TestAccuracy),
		zap.Int("test_samples", m.TestSamples))
	return &Result{Model: model, Metrics: m}, nil
}

func (t *Trainer) checkClassSupport(classes []string, y []int) error {
	counts := make([]int, len(classes))
	for _, c := range y {
		counts[c]++
	}
	present := 0
	for _, n := range counts {
		if n > 0 {
			present++
		}
	}
	if present < 2 {
		return &InsufficientDataError{Count: present, Folds: t.folds}
	}
	for c, n := range counts {
		if n < t.folds {
			return &InsufficientDataError{Class: classes[c], Count: n, Folds: t.folds}
		}
	}
	return nil
}

// search evaluates every configuration on every fold. Each fit only reads
// the shared feature vectors and writes its own score cell.
func (t *Trainer) search(ctx context.Context, configs []forest.Params, x []vectorize.FeatureVector, y []int, classes []string) ([]SearchResult, error) {
	fold := stratifiedFolds(y, len(classes), t.folds)
	scores := make([][]float64, len(configs))
	for i := range scores {
		scores[i] = make([]float64, t.folds)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(t.workers)
	for ci := range configs {
		for f := 0; f < t.folds; f++ {
			eg.Go(func() error {
				if err := egCtx.Err(); err != nil {
					return err
				}
				var trX, teX []vectorize.FeatureVector
				var trY, teY []int
				for i := range x {
					if fold[i] == f {
						teX = append(teX, x[i])
						teY = append(teY, y[i])
					} else {
						trX = append(trX, x[i])
						trY = append(trY, y[i])
					}
				}
				model, err := forest.Fit(trX, trY, classes, configs[ci])
				if err != nil {
					return fmt.Errorf("config %d fold %d: %w", ci, f, err)
				}
				scores[ci][f] = model.Score(teX, teY)
				t.logger.Debug("fold scored",
					zap.Int("config", ci),
					zap.Int("fold", f),
					zap.Float64("accuracy", scores[ci][f]))
				return nil
			})
		}
	}
	if err := eg.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrTrainingTimeout, ctxErr)
		}
		return nil, err
	}

	results := make([]SearchResult, len(configs))
	for i, p := range configs {
		mean, std := meanStd(scores[i])
		results[i] = SearchResult{Params: p, FoldScores: scores[i], MeanScore: mean, StdScore: std}
	}
	return results, nil
}

// rankResults assigns rank 1 to the best mean score; equal scores share the
// better rank.
func rankResults(results []SearchResult) {
	order := make([]int, len(results))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return results[order[a]].MeanScore > results[order[b]].MeanScore
	})
	for pos, i := range order {
		rank := pos + 1
		if pos > 0 && results[order[pos-1]].MeanScore == results[i].MeanScore {
			rank = results[order[pos-1]].Rank
		}
		results[i].Rank = rank
	}
}

func meanStd(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(ss / float64(len(xs)))
}

// classNames returns the distinct labels in lexicographic order, which fixes
// the column order of predicted probabilities.
func classNames(sets ...[]sentiment.Label) []string {
	seen := make(map[string]bool)
	var out []string
	for _, labels := range sets {
		for _, l := range labels {
			if !seen[string(l)] {
				seen[string(l)] = true
				out = append(out, string(l))
			}
		}
	}
	sort.Strings(out)
	return out
}

func encode(labels []sentiment.Label, classes []string) []int {
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	out := make([]int, len(labels))
	for i, l := range labels {
		out[i] = index[string(l)]
	}
	return out
}
