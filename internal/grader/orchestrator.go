package grader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/pavelanni/quizgate/internal/model"
)

// Feedback strings recorded in the per-question analysis. The admin report
// relies on these exact values, so they are fixed.
const (
	FeedbackCorrect     = "Correct"
	FeedbackIncorrect   = "Incorrect"
	FeedbackNotAnswered = "Not Answered"
	FeedbackUnavailable = "Grading Server Unavailable"
	FeedbackAIError     = "AI Error"
)

// Orchestrator grades a submission against a test's question list. MCQs are
// scored locally; long answers fan out one similarity call each, all issued
// concurrently, joined with partial-failure tolerance. A similarity outage
// degrades the affected question to zero, it never blocks the submission.
type Orchestrator struct {
	client Client
}

// NewOrchestrator creates a grading orchestrator backed by the given
// similarity client.
func NewOrchestrator(client Client) *Orchestrator {
	return &Orchestrator{client: client}
}

// Grade scores responses (keyed by 1-based question number) against the
// ordered question list. It is a pure function of its inputs apart from the
// similarity service, so re-running it after a persistence failure is safe.
func (o *Orchestrator) Grade(ctx context.Context, questions []model.Question, responses map[int]string) (model.Score, map[int]model.Analysis) {
	// Each concurrent task owns one slot; the map is assembled after the join.
	results := make([]*model.Analysis, len(questions))
	total := 0

	var wg sync.WaitGroup
	for i, q := range questions {
		num := i + 1
		response := strings.TrimSpace(responses[num])

		switch q.Type {
		case model.TypeMCQ:
			if q.CorrectAnswer == "" {
				continue // nothing to grade against
			}
			total++
			a := gradeMCQ(q, response)
			results[i] = &a
		case model.TypeLong:
			total++
			if response == "" || q.ReferenceAnswer == "" {
				// No call to the similarity service for unanswerable items.
				results[i] = &model.Analysis{MaxScore: 1, Feedback: FeedbackNotAnswered}
				continue
			}
			wg.Add(1)
			go func(i int, q model.Question, response string) {
				defer wg.Done()
				a := o.gradeLongAnswer(ctx, q, response)
				results[i] = &a
			}(i, q, response)
		}
	}
	wg.Wait()

	analysis := make(map[int]model.Analysis, len(questions))
	var sum float64
	for i, a := range results {
		if a == nil {
			continue
		}
		analysis[i+1] = *a
		sum += a.Score
	}

	score := model.Score{
		Correct: math.Round(sum*10) / 10,
		Total:   total,
	}
	return score, analysis
}

// gradeMCQ compares the response to the answer key, case-insensitively,
// with both sides trimmed.
func gradeMCQ(q model.Question, response string) model.Analysis {
	if response == "" {
		return model.Analysis{MaxScore: 1, Feedback: FeedbackNotAnswered}
	}
	if strings.EqualFold(response, strings.TrimSpace(q.CorrectAnswer)) {
		return model.Analysis{Score: 1, MaxScore: 1, Feedback: FeedbackCorrect}
	}
	return model.Analysis{MaxScore: 1, Feedback: FeedbackIncorrect}
}

func (o *Orchestrator) gradeLongAnswer(ctx context.Context, q model.Question, response string) model.Analysis {
	similarity, err := o.client.Score(ctx, response, q.ReferenceAnswer)
	if err != nil {
		feedback := FeedbackAIError
		if errors.Is(err, ErrUnavailable) {
			feedback = FeedbackUnavailable
		}
		slog.Warn("similarity call failed", "question_id", q.ID, "error", err)
		return model.Analysis{MaxScore: 1, Feedback: feedback}
	}
	return model.Analysis{
		Score:    BucketScore(similarity),
		MaxScore: 1,
		Feedback: fmt.Sprintf("AI Similarity: %.3f", similarity),
	}
}
