package validation

import "strings"

// Case categories.
const (
	CategoryPositive  = "positive"
	CategoryNegative  = "negative"
	CategoryNeutral   = "neutral"
	CategoryEdgeCases = "edge_cases"
)

// Case is one input of the validation battery.
type Case struct {
	Category string
	Text     string
}

// DefaultCases is the fixed battery run after every training.
func DefaultCases() []Case {
	table := []struct {
		category string
		texts    []string
	}{
		{CategoryPositive, []string{
			"This is an absolutely amazing product! Best purchase ever.",
			"High quality, great value, fast shipping. Couldn't be happier.",
			"Exceeded all my expectations, worth every penny.",
			"Perfect for what I needed, highly recommend to others.",
		}},
		{CategoryNegative, []string{
			"Terrible quality, broke after first use. Avoid!",
			"Complete waste of money, very disappointing.",
			"Poor customer service and product didn't work.",
			"Wouldn't recommend to anyone, save your money.",
		}},
		{CategoryNeutral, []string{
			"It's okay, nothing special but gets the job done.",
			"Average product, has pros and cons.",
			"Decent for the price, but could be better.",
			"Not sure about this one, mixed feelings.",
		}},
		{CategoryEdgeCases, []string{
			"",
			"!@#$%",
			"5 stars",
			strings.Repeat("a", 1000),
			"短评",
			"ALL CAPS REVIEW!!!",
		}},
	}

	var cases []Case
	for _, group := range table {
		for _, text := range group.texts {
			cases = append(cases, Case{Category: group.category, Text: text})
		}
	}
	return cases
}
