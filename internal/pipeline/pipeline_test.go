package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/TobiSchelling/ReviewLens/internal/artifact"
	"github.com/TobiSchelling/ReviewLens/internal/config"
	"github.com/TobiSchelling/ReviewLens/internal/corpus"
	"github.com/TobiSchelling/ReviewLens/internal/database"
	"github.com/TobiSchelling/ReviewLens/internal/reviews"
	"github.com/TobiSchelling/ReviewLens/internal/train"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Output.DataDir = t.TempDir()
	cfg.Training.Folds = 2
	cfg.Training.Workers = 2
	cfg.Training.Grid = train.Grid{
		NEstimators:     []int{5},
		MaxDepth:        []int{0},
		MinSamplesSplit: []int{2},
		MinSamplesLeaf:  []int{1},
	}
	return cfg
}

func openTestDB(t *testing.T, cfg *config.Config) *database.DB {
	t.Helper()
	db, err := database.Open(cfg.DBPath(), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func intPtr(v int) *int { return &v }

// seedCorpus inserts ten reviews per sentiment for product B001 and one
// unrated row.
func seedCorpus(t *testing.T, db *database.DB) {
	t.Helper()
	phrases := []struct {
		text   string
		rating int
	}{
		{"great excellent love", 5},
		{"okay average mediocre", 3},
		{"terrible awful broken", 1},
	}
	var rows []database.Review
	for i := 0; i < 10; i++ {
		for _, p := range phrases {
			rows = append(rows, database.Review{
				ASINs:       "B001,B001X",
				ProductName: "Echo Dot",
				Text:        fmt.Sprintf("%s tablet %s", p.text, strings.Repeat("really ", i%3)),
				Rating:      intPtr(p.rating),
			})
		}
	}
	rows = append(rows, database.Review{ASINs: "B001", Text: "no rating here"})
	if _, err := db.InsertReviews(rows); err != nil {
		t.Fatalf("failed to insert reviews: %v", err)
	}
	if err := db.UpsertProducts([]database.Product{{ASIN: "B001", Name: "Echo Dot", Brand: "Amazon", Category: "Electronics"}}); err != nil {
		t.Fatalf("failed to insert product: %v", err)
	}
}

func TestTrainPipeline(t *testing.T) {
	cfg := testConfig(t)
	db := openTestDB(t, cfg)
	seedCorpus(t, db)

	r := New(cfg, db, zap.NewNop()).Train(context.Background())
	if err := r.Err(); err != nil {
		t.Fatalf("training failed: %v", err)
	}

	wantSteps := []string{"Load", "Prepare", "Vectorize", "Train", "Save", "Record", "Validate"}
	if len(r.Steps) != len(wantSteps) {
		t.Fatalf("expected %d steps, got %d", len(wantSteps), len(r.Steps))
	}
	for i, name := range wantSteps {
		if r.Steps[i].Name != name {
			t.Errorf("step %d: expected %s, got %s", i, name, r.Steps[i].Name)
		}
	}
	if !strings.Contains(r.Steps[1].Summary, "1 skipped") {
		t.Errorf("expected the unrated row to be skipped, got %q", r.Steps[1].Summary)
	}

	if !artifact.Exists(cfg.ModelDir()) {
		t.Fatal("expected model bundle on disk")
	}
	meta, err := artifact.LoadMetadata(cfg.ModelDir())
	if err != nil {
		t.Fatalf("failed to load metadata: %v", err)
	}
	if meta.TrainingSamples != 24 {
		t.Errorf("expected 24 training samples, got %d", meta.TrainingSamples)
	}
	if meta.ModelPerformance.TestSamples != 6 {
		t.Errorf("expected 6 test samples, got %d", meta.ModelPerformance.TestSamples)
	}

	runs, err := db.GetTrainingRuns(10)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != r.RunID {
		t.Fatalf("expected run %s recorded, got %+v", r.RunID, runs)
	}
	if !strings.Contains(runs[0].BestParams, `"n_estimators":5`) {
		t.Errorf("expected best params JSON, got %s", runs[0].BestParams)
	}

	if r.Validation == nil {
		t.Fatal("expected validation report")
	}
	if _, err := os.Stat(r.ValidationPath); err != nil {
		t.Errorf("expected validation file at %s: %v", r.ValidationPath, err)
	}
}

func TestTrainEmptyCorpus(t *testing.T) {
	cfg := testConfig(t)
	db := openTestDB(t, cfg)

	r := New(cfg, db, nil).Train(context.Background())
	err := r.Err()
	if !corpus.IsEmpty(err) {
		t.Fatalf("expected empty corpus error, got %v", err)
	}
	if last := r.Steps[len(r.Steps)-1]; last.Name != "Prepare" {
		t.Errorf("expected to stop at Prepare, got %s", last.Name)
	}
	if artifact.Exists(cfg.ModelDir()) {
		t.Error("expected no model bundle after failed training")
	}
}

func TestTrainInsufficientClass(t *testing.T) {
	cfg := testConfig(t)
	db := openTestDB(t, cfg)
	rows := []database.Review{
		{ASINs: "B1", Text: "great excellent", Rating: intPtr(5)},
		{ASINs: "B1", Text: "great wonderful", Rating: intPtr(5)},
		{ASINs: "B1", Text: "great superb", Rating: intPtr(4)},
		{ASINs: "B1", Text: "awful terrible", Rating: intPtr(1)},
	}
	if _, err := db.InsertReviews(rows); err != nil {
		t.Fatalf("failed to insert reviews: %v", err)
	}

	err := New(cfg, db, nil).Train(context.Background()).Err()
	if !errors.Is(err, train.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestDryRun(t *testing.T) {
	cfg := testConfig(t)
	db := openTestDB(t, cfg)
	seedCorpus(t, db)

	r := New(cfg, db, nil).DryRun()
	if err := r.Err(); err != nil {
		t.Fatalf("dry run failed: %v", err)
	}
	if !strings.Contains(r.Steps[0].Summary, "31 reviews in DB, 30 with a rating") {
		t.Errorf("unexpected load summary %q", r.Steps[0].Summary)
	}
	if !strings.Contains(r.Steps[2].Summary, "1 configurations x 2 folds = 2 fits") {
		t.Errorf("unexpected train summary %q", r.Steps[2].Summary)
	}
	if artifact.Exists(cfg.ModelDir()) {
		t.Error("dry run must not write a model")
	}
}

func TestAnalyzeProduct(t *testing.T) {
	cfg := testConfig(t)
	db := openTestDB(t, cfg)
	seedCorpus(t, db)
	p := New(cfg, db, nil)
	if err := p.Train(context.Background()).Err(); err != nil {
		t.Fatalf("training failed: %v", err)
	}

	catalog := reviews.NewCatalog(db, true, nil)
	a, err := p.Analyze(context.Background(), catalog, "B001")
	if err != nil {
		t.Fatalf("analysis failed: %v", err)
	}
	if filepath.Dir(a.Path) != cfg.ResultsDir() {
		t.Errorf("expected analysis in %s, got %s", cfg.ResultsDir(), a.Path)
	}
	if _, err := os.Stat(a.Path); err != nil {
		t.Errorf("expected analysis file: %v", err)
	}
	if a.Report.ProductInfo.Brand != "Amazon" {
		t.Errorf("expected catalog product info, got %+v", a.Report.ProductInfo)
	}
	if got := a.Report.Summary.ReviewCounts.Total(); got != 31 {
		t.Errorf("expected 31 classified reviews, got %d", got)
	}

	stored, err := db.GetAnalysis(a.ID)
	if err != nil {
		t.Fatalf("failed to read analysis: %v", err)
	}
	if stored == nil {
		t.Fatal("expected analysis indexed in db")
	}
	if stored.ResultPath != a.Path || stored.ReviewCount != 31 {
		t.Errorf("unexpected stored analysis %+v", stored)
	}
	if stored.OverallSentiment != string(a.Report.Summary.OverallSentiment) {
		t.Errorf("expected sentiment %s, got %s", a.Report.Summary.OverallSentiment, stored.OverallSentiment)
	}
	if !strings.Contains(stored.SummaryMarkdown, "Echo Dot") {
		t.Error("expected markdown summary to name the product")
	}
}

func TestAnalyzeUnknownProduct(t *testing.T) {
	cfg := testConfig(t)
	db := openTestDB(t, cfg)
	seedCorpus(t, db)
	p := New(cfg, db, nil)
	if err := p.Train(context.Background()).Err(); err != nil {
		t.Fatalf("training failed: %v", err)
	}

	_, err := p.Analyze(context.Background(), reviews.NewCatalog(db, false, nil), "ZZZ")
	if !errors.Is(err, reviews.ErrNoReviews) {
		t.Fatalf("expected ErrNoReviews, got %v", err)
	}
}

func TestAnalyzeWithoutModel(t *testing.T) {
	cfg := testConfig(t)
	db := openTestDB(t, cfg)
	seedCorpus(t, db)

	_, err := New(cfg, db, nil).Analyze(context.Background(), reviews.NewCatalog(db, true, nil), "B001")
	if !errors.Is(err, artifact.ErrArtifactMissing) {
		t.Fatalf("expected ErrArtifactMissing, got %v", err)
	}
}

type staticSource struct{ texts []string }

func (s staticSource) Reviews(context.Context, string) ([]string, error) { return s.texts, nil }

func (s staticSource) ProductInfo(_ context.Context, id string) reviews.Product {
	return reviews.DefaultProduct(id)
}

func TestAnalyzeEmptySource(t *testing.T) {
	cfg := testConfig(t)
	db := openTestDB(t, cfg)
	seedCorpus(t, db)
	p := New(cfg, db, nil)
	if err := p.Train(context.Background()).Err(); err != nil {
		t.Fatalf("training failed: %v", err)
	}

	_, err := p.Analyze(context.Background(), staticSource{}, "B002")
	if !errors.Is(err, reviews.ErrNoReviews) {
		t.Fatalf("expected ErrNoReviews, got %v", err)
	}

	a, err := p.Analyze(context.Background(), staticSource{texts: []string{"love it great"}}, "B002")
	if err != nil {
		t.Fatalf("analysis failed: %v", err)
	}
	if a.Report.ProductInfo.Name != "Amazon Product (B002)" {
		t.Errorf("expected default product name, got %q", a.Report.ProductInfo.Name)
	}
	if a.Report.DetailedAnalysis[0].Sentiment == "" {
		t.Error("expected a sentiment")
	}
}

func TestValidateStoredModel(t *testing.T) {
	cfg := testConfig(t)
	db := openTestDB(t, cfg)
	p := New(cfg, db, nil)

	if _, _, err := p.Validate(context.Background()); !errors.Is(err, artifact.ErrArtifactMissing) {
		t.Fatalf("expected ErrArtifactMissing, got %v", err)
	}

	seedCorpus(t, db)
	if err := p.Train(context.Background()).Err(); err != nil {
		t.Fatalf("training failed: %v", err)
	}
	report, path, err := p.Validate(context.Background())
	if err != nil {
		t.Fatalf("validation failed: %v", err)
	}
	if report.Summary.TotalCases != 18 {
		t.Errorf("expected 18 cases, got %d", report.Summary.TotalCases)
	}
	if filepath.Dir(path) != filepath.Join(cfg.ModelDir(), "validation") {
		t.Errorf("unexpected validation path %s", path)
	}
}
