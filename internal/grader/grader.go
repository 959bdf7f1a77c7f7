// Package grader scores submissions: deterministically for multiple-choice
// questions, and through an external semantic-similarity capability for
// long answers.
package grader

import (
	"context"
	"errors"
)

// Client scores the semantic similarity of two texts on [0, 1]. It is
// stateless and safe for unlimited concurrent use. Implementations bound
// every call with a request timeout and surface outages as ErrUnavailable so
// the orchestrator can degrade instead of hanging.
type Client interface {
	Score(ctx context.Context, studentAnswer, referenceAnswer string) (float64, error)
}

// ErrUnavailable means the similarity service could not be reached or
// refused the call. Any non-200 response and any network or timeout error
// collapse into this: the caller treats them all as "grading unavailable".
var ErrUnavailable = errors.New("grading service unavailable")

// buckets maps a similarity threshold (inclusive) to partial credit.
// Ordered highest-first; the first satisfied threshold wins.
var buckets = []struct {
	threshold float64
	score     float64
}{
	{0.90, 1.0},
	{0.80, 0.9},
	{0.70, 0.8},
	{0.60, 0.7},
	{0.50, 0.5},
	{0.40, 0.4},
}

// BucketScore maps a similarity value to a score via the fixed step table.
// Below the lowest threshold the answer earns nothing.
func BucketScore(similarity float64) float64 {
	for _, b := range buckets {
		if similarity >= b.threshold {
			return b.score
		}
	}
	return 0.0
}
