package train

import (
	"github.com/TobiSchelling/ReviewLens/internal/forest"
)

// ClassMetrics is one row of a classification report.
type ClassMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1-score"`
	Support   int     `json:"support"`
}

// ClassificationReport summarises predictions on the held-out partition.
type ClassificationReport struct {
	Classes     map[string]ClassMetrics `json:"classes"`
	Accuracy    float64                 `json:"accuracy"`
	MacroAvg    ClassMetrics            `json:"macro avg"`
	WeightedAvg ClassMetrics            `json:"weighted avg"`
}

// SearchResult is the cross-validation outcome of one grid configuration.
type SearchResult struct {
	Params     forest.Params `json:"params"`
	FoldScores []float64     `json:"fold_scores"`
	MeanScore  float64       `json:"mean_score"`
	StdScore   float64       `json:"std_score"`
	Rank       int           `json:"rank"`
}

// Metrics is everything a training run reports about the selected model.
type Metrics struct {
	BestParams           forest.Params        `json:"best_params"`
	BestScore            float64              `json:"best_score"`
	TestAccuracy         float64              `json:"test_accuracy"`
	CrossValScores       []float64            `json:"cross_val_scores"`
	ClassificationReport ClassificationReport `json:"classification_report"`
	SearchResults        []SearchResult       `json:"search_results"`
	TrainingSamples      int                  `json:"training_samples"`
	TestSamples          int                  `json:"test_samples"`
}

// classificationReport computes per-class precision, recall and F1 plus
// macro and support-weighted averages. Undefined ratios are reported as 0.
func classificationReport(classes []string, truth, pred []int) ClassificationReport {
	k := len(classes)
	tp := make([]int, k)
	predicted := make([]int, k)
	support := make([]int, k)
	correct := 0
	for i := range truth {
		support[truth[i]]++
		predicted[pred[i]]++
		if truth[i] == pred[i] {
			tp[truth[i]]++
			correct++
		}
	}

	r := ClassificationReport{Classes: make(map[string]ClassMetrics, k)}
	if len(truth) > 0 {
		r.Accuracy = float64(correct) / float64(len(truth))
	}

	total := len(truth)
	for c, name := range classes {
		m := ClassMetrics{
			Precision: ratio(tp[c], predicted[c]),
			Recall:    ratio(tp[c], support[c]),
			Support:   support[c],
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		r.Classes[name] = m

		r.MacroAvg.Precision += m.Precision / float64(k)
		r.MacroAvg.Recall += m.Recall / float64(k)
		r.MacroAvg.F1 += m.F1 / float64(k)
		if total > 0 {
			w := float64(m.Support) / float64(total)
			r.WeightedAvg.Precision += m.Precision * w
			r.WeightedAvg.Recall += m.Recall * w
			r.WeightedAvg.F1 += m.F1 * w
		}
	}
	r.MacroAvg.Support = total
	r.WeightedAvg.Support = total
	return r
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}
