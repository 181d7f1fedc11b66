// Package sentiment holds the sentiment categories, the rating-to-label rule
// used to build training data, and the recommendation policy.
package sentiment

import (
	"errors"
	"fmt"
)

// Label is a sentiment category.
type Label string

const (
	Positive Label = "positive"
	Neutral  Label = "neutral"
	Negative Label = "negative"
)

// Labels lists every category in reporting order.
var Labels = []Label{Positive, Neutral, Negative}

// ErrInvalidRating marks a training record whose rating cannot be labeled.
var ErrInvalidRating = errors.New("invalid rating")

// InvalidRatingError carries the offending rating; Rating is nil when the
// record had none.
type InvalidRatingError struct {
	Rating *int
}

func (e *InvalidRatingError) Error() string {
	if e.Rating == nil {
		return "invalid rating: missing"
	}
	return fmt.Sprintf("invalid rating: %d is outside 1-5", *e.Rating)
}

func (e *InvalidRatingError) Unwrap() error {
	return ErrInvalidRating
}

// FromRating maps a 1-5 star rating to a label: 4 and 5 are positive, 3 is
// neutral, 1 and 2 are negative. Only training data goes through here.
func FromRating(rating *int) (Label, error) {
	if rating == nil || *rating < 1 || *rating > 5 {
		return "", &InvalidRatingError{Rating: rating}
	}
	switch {
	case *rating >= 4:
		return Positive, nil
	case *rating == 3:
		return Neutral, nil
	default:
		return Negative, nil
	}
}

// ParseLabel converts a stored label back into a Label.
func ParseLabel(s string) (Label, error) {
	for _, l := range Labels {
		if string(l) == s {
			return l, nil
		}
	}
	return "", fmt.Errorf("unknown sentiment label %q", s)
}

// Counts is the number of reviews per label.
type Counts map[Label]int

// NewCounts returns counts with every label present at zero.
func NewCounts() Counts {
	c := make(Counts, len(Labels))
	for _, l := range Labels {
		c[l] = 0
	}
	return c
}

// Total sums all counts.
func (c Counts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// Dominant returns the label with the highest count; ties resolve in Labels
// order. An empty tally is neutral.
func (c Counts) Dominant() Label {
	best, bestCount := Neutral, 0
	for _, l := range Labels {
		if c[l] > bestCount {
			best, bestCount = l, c[l]
		}
	}
	return best
}
