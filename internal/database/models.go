package database

// Product is a catalog entry keyed by ASIN.
type Product struct {
	ASIN     string
	Name     string
	Brand    string
	Category string
}

// Review is one imported corpus row. ASINs holds the raw comma-separated
// list from the source file; Rating is nil when the row had none.
type Review struct {
	ID          int64
	ASINs       string
	ProductName string
	Text        string
	Rating      *int
	ImportedAt  *string
}

// TrainingRun records one completed training.
type TrainingRun struct {
	ID              string
	TrainedAt       string
	ModelDir        string
	FeatureCount    int
	TrainingSamples int
	BestScore       float64
	TestAccuracy    float64
	BestParams      string // JSON
}

// Analysis indexes a saved product analysis.
type Analysis struct {
	ID               string
	ProductID        string
	OverallSentiment string
	ConfidenceScore  float64
	Recommendation   string
	ReviewCount      int
	ResultPath       string
	SummaryMarkdown  string
	CreatedAt        string
}

// Stats contains aggregate database statistics.
type Stats struct {
	Products     int
	Reviews      int
	RatedReviews int
	TrainingRuns int
	Analyses     int
}
