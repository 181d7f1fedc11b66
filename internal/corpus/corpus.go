// Package corpus turns raw rated reviews into labeled, normalized training
// examples.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/ReviewLens/internal/sentiment"
	"github.com/TobiSchelling/ReviewLens/internal/textnorm"
	"github.com/TobiSchelling/ReviewLens/internal/vectorize"
)

// RawReview is one corpus record before preparation.
type RawReview struct {
	Text   string
	Rating *int
}

// Example is a labeled training example.
type Example struct {
	Tokens []string
	Label  sentiment.Label
}

// Prepared is the outcome of Prepare. Examples keep the input order.
type Prepared struct {
	Examples []Example
	Skipped  int
	Degraded int
	Counts   sentiment.Counts
}

// Docs returns the token lists of the examples.
func (p *Prepared) Docs() [][]string {
	docs := make([][]string, len(p.Examples))
	for i, e := range p.Examples {
		docs[i] = e.Tokens
	}
	return docs
}

// Labels returns the labels of the examples.
func (p *Prepared) Labels() []sentiment.Label {
	labels := make([]sentiment.Label, len(p.Examples))
	for i, e := range p.Examples {
		labels[i] = e.Label
	}
	return labels
}

// Prepare labels and normalizes every record in parallel. Records with a
// missing or out-of-range rating are logged and left out. If nothing
// remains, the error wraps vectorize.ErrVocabularyEmpty.
func Prepare(ctx context.Context, records []RawReview, workers int, logger *zap.Logger) (*Prepared, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers < 1 {
		workers = runtime.NumCPU()
	}

	type slot struct {
		example  Example
		err      error
		degraded bool
	}
	slots := make([]slot, len(records))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i, rec := range records {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			label, err := sentiment.FromRating(rec.Rating)
			if err != nil {
				slots[i].err = err
				return nil
			}
			a := textnorm.Analyze(rec.Text)
			slots[i] = slot{example: Example{Tokens: a.Tokens, Label: label}, degraded: a.Degraded}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("preparing corpus: %w", err)
	}

	p := &Prepared{Counts: sentiment.NewCounts()}
	for i, s := range slots {
		if s.err != nil {
			p.Skipped++
			logger.Debug("record skipped", zap.Int("index", i), zap.Error(s.err))
			continue
		}
		if s.degraded {
			p.Degraded++
		}
		p.Examples = append(p.Examples, s.example)
		p.Counts[s.example.Label]++
	}

	if p.Skipped > 0 {
		logger.Warn("records without a usable rating were skipped", zap.Int("skipped", p.Skipped))
	}
	logger.Info("corpus prepared",
		zap.Int("records", len(records)),
		zap.Int("examples", len(p.Examples)),
		zap.Int("degraded", p.Degraded),
		zap.Int("positive", p.Counts[sentiment.Positive]),
		zap.Int("neutral", p.Counts[sentiment.Neutral]),
		zap.Int("negative", p.Counts[sentiment.Negative]))

	if len(p.Examples) == 0 {
		return nil, fmt.Errorf("%d records, none with a usable rating: %w", len(records), vectorize.ErrVocabularyEmpty)
	}
	return p, nil
}

// IsEmpty reports whether err means no training data was usable.
func IsEmpty(err error) bool {
	return errors.Is(err, vectorize.ErrVocabularyEmpty)
}
