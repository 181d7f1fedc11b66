package sentiment

// Tier is a recommendation level. Tiers are ordered: a higher value is a
// stronger recommendation.
type Tier int

const (
	TierInsufficient Tier = iota
	TierNotRecommended
	TierMixed
	TierRecommended
	TierHighlyRecommended
)

var tierNames = map[Tier]string{
	TierInsufficient:      "insufficient data",
	TierNotRecommended:    "not recommended",
	TierMixed:             "mixed",
	TierRecommended:       "recommended",
	TierHighlyRecommended: "highly recommended",
}

var tierText = map[Tier]string{
	TierInsufficient:      "Not enough reviews to make a recommendation.",
	TierNotRecommended:    "Not recommended: exercise caution, significant number of negative reviews.",
	TierMixed:             "Mixed reviews - carefully consider your specific needs.",
	TierRecommended:       "Generally recommended with some minor concerns noted.",
	TierHighlyRecommended: "Highly recommended based on consistently positive reviews.",
}

func (t Tier) String() string {
	return tierNames[t]
}

// Policy thresholds. They are fixed, not configuration.
const (
	highlyRecommendedRatio      = 0.8
	highlyRecommendedConfidence = 0.8
	recommendedRatio            = 0.6
	mixedRatio                  = 0.4
)

// Recommendation is the synthesized verdict for a product.
type Recommendation struct {
	Tier Tier
	Text string
}

// Recommend applies the recommendation policy to label counts and the mean
// prediction confidence. The first matching rule wins.
func Recommend(counts Counts, avgConfidence float64) Recommendation {
	total := counts.Total()
	if total == 0 {
		return newRecommendation(TierInsufficient)
	}

	ratio := float64(counts[Positive]) / float64(total)
	switch {
	case ratio >= highlyRecommendedRatio && avgConfidence >= highlyRecommendedConfidence:
		return newRecommendation(TierHighlyRecommended)
	case ratio >= recommendedRatio:
		return newRecommendation(TierRecommended)
	case ratio >= mixedRatio:
		return newRecommendation(TierMixed)
	default:
		return newRecommendation(TierNotRecommended)
	}
}

func newRecommendation(t Tier) Recommendation {
	return Recommendation{Tier: t, Text: tierText[t]}
}
