package grader

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/pavelanni/quizgate/internal/model"
)

// fakeClient returns canned similarities keyed by student answer.
type fakeClient struct {
	scores map[string]float64
	err    error
	calls  atomic.Int64
}

func (f *fakeClient) Score(_ context.Context, studentAnswer, _ string) (float64, error) {
	f.calls.Add(1)
	if f.err != nil {
		return 0, f.err
	}
	return f.scores[studentAnswer], nil
}

func TestBucketScore(t *testing.T) {
	tests := []struct {
		similarity float64
		want       float64
	}{
		{0.95, 1.0},
		{0.90, 1.0},
		{0.85, 0.9},
		{0.80, 0.9},
		{0.75, 0.8},
		{0.65, 0.7},
		{0.55, 0.5},
		{0.45, 0.4},
		{0.40, 0.4},
		{0.20, 0.0},
		{0.0, 0.0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%.2f", tt.similarity), func(t *testing.T) {
			if got := BucketScore(tt.similarity); got != tt.want {
				t.Errorf("BucketScore(%v) = %v, want %v", tt.similarity, got, tt.want)
			}
		})
	}

	// Monotonic non-decreasing across the whole range.
	prev := 0.0
	for s := 0.0; s <= 1.0; s += 0.01 {
		got := BucketScore(s)
		if got < prev {
			t.Fatalf("BucketScore not monotonic at %v: %v < %v", s, got, prev)
		}
		prev = got
	}
}

func TestGradeMCQ(t *testing.T) {
	questions := []model.Question{
		{ID: 1, Type: model.TypeMCQ, Options: []string{"Paris", "Lyon"}, CorrectAnswer: "Paris"},
		{ID: 2, Type: model.TypeMCQ, Options: []string{"yes", "no"}, CorrectAnswer: "yes"},
		{ID: 3, Type: model.TypeMCQ, Options: []string{"a", "b"}, CorrectAnswer: "a"},
	}
	responses := map[int]string{
		1: "  PARIS ", // case and whitespace insensitive
		2: "no",
		// question 3 unanswered
	}

	o := NewOrchestrator(&fakeClient{})
	score, analysis := o.Grade(context.Background(), questions, responses)

	if score.Total != 3 {
		t.Errorf("expected total 3, got %d", score.Total)
	}
	if score.Correct != 1.0 {
		t.Errorf("expected correct 1.0, got %v", score.Correct)
	}
	if analysis[1].Feedback != FeedbackCorrect || analysis[1].Score != 1 {
		t.Errorf("unexpected analysis for q1: %+v", analysis[1])
	}
	if analysis[2].Feedback != FeedbackIncorrect || analysis[2].Score != 0 {
		t.Errorf("unexpected analysis for q2: %+v", analysis[2])
	}
	if analysis[3].Feedback != FeedbackNotAnswered {
		t.Errorf("unexpected analysis for q3: %+v", analysis[3])
	}
}

func TestGradeLongAnswers(t *testing.T) {
	client := &fakeClient{scores: map[string]float64{
		"great answer": 0.85,
		"weak answer":  0.30,
	}}
	questions := []model.Question{
		{ID: 1, Type: model.TypeLong, ReferenceAnswer: "the reference"},
		{ID: 2, Type: model.TypeLong, ReferenceAnswer: "the reference"},
		{ID: 3, Type: model.TypeLong, ReferenceAnswer: "the reference"}, // unanswered
		{ID: 4, Type: model.TypeLong},                                  // no reference answer
	}
	responses := map[int]string{
		1: "great answer",
		2: "weak answer",
		4: "answered but ungradable",
	}

	o := NewOrchestrator(client)
	score, analysis := o.Grade(context.Background(), questions, responses)

	if score.Total != 4 {
		t.Errorf("expected total 4, got %d", score.Total)
	}
	if score.Correct != 0.9 {
		t.Errorf("expected correct 0.9, got %v", score.Correct)
	}
	if analysis[1].Score != 0.9 || analysis[1].Feedback != "AI Similarity: 0.850" {
		t.Errorf("unexpected analysis for q1: %+v", analysis[1])
	}
	if analysis[2].Score != 0 {
		t.Errorf("expected 0 below lowest bucket, got %v", analysis[2].Score)
	}
	// Unanswered and reference-less questions must not hit the service.
	if analysis[3].Feedback != FeedbackNotAnswered || analysis[4].Feedback != FeedbackNotAnswered {
		t.Errorf("expected Not Answered for q3/q4: %+v / %+v", analysis[3], analysis[4])
	}
	if got := client.calls.Load(); got != 2 {
		t.Errorf("expected 2 similarity calls, got %d", got)
	}
}

func TestGradePartialFailure(t *testing.T) {
	// One correct MCQ, one incorrect MCQ, one long answer whose similarity
	// call fails: grading still completes at 1.0/3 with the outage recorded.
	client := &fakeClient{err: fmt.Errorf("%w: connection refused", ErrUnavailable)}
	questions := []model.Question{
		{ID: 1, Type: model.TypeMCQ, Options: []string{"x", "y"}, CorrectAnswer: "x"},
		{ID: 2, Type: model.TypeMCQ, Options: []string{"x", "y"}, CorrectAnswer: "x"},
		{ID: 3, Type: model.TypeLong, ReferenceAnswer: "reference"},
	}
	responses := map[int]string{1: "x", 2: "y", 3: "my essay"}

	o := NewOrchestrator(client)
	score, analysis := o.Grade(context.Background(), questions, responses)

	if score.Correct != 1.0 || score.Total != 3 {
		t.Errorf("expected 1.0/3, got %v/%d", score.Correct, score.Total)
	}
	if analysis[3].Feedback != FeedbackUnavailable {
		t.Errorf("expected unavailability marker, got %q", analysis[3].Feedback)
	}
	if analysis[3].Score != 0 {
		t.Errorf("failed call must score 0, got %v", analysis[3].Score)
	}
}

func TestGradeAIError(t *testing.T) {
	client := &fakeClient{err: fmt.Errorf("malformed response")}
	questions := []model.Question{{ID: 1, Type: model.TypeLong, ReferenceAnswer: "ref"}}

	o := NewOrchestrator(client)
	_, analysis := o.Grade(context.Background(), questions, map[int]string{1: "answer"})

	if analysis[1].Feedback != FeedbackAIError {
		t.Errorf("expected AI Error, got %q", analysis[1].Feedback)
	}
}

func TestGradeFractionalRounding(t *testing.T) {
	// Scores like 0.9+0.7+0.5+... can accumulate float noise; the aggregate
	// is rounded to one decimal place.
	client := &fakeClient{scores: map[string]float64{"a": 0.85, "b": 0.65, "c": 0.55}}
	questions := []model.Question{
		{ID: 1, Type: model.TypeLong, ReferenceAnswer: "r"},
		{ID: 2, Type: model.TypeLong, ReferenceAnswer: "r"},
		{ID: 3, Type: model.TypeLong, ReferenceAnswer: "r"},
	}
	responses := map[int]string{1: "a", 2: "b", 3: "c"}

	o := NewOrchestrator(client)
	score, _ := o.Grade(context.Background(), questions, responses)
	if score.Correct != 2.1 {
		t.Errorf("expected 2.1, got %v", score.Correct)
	}
}

func TestGradeMCQWithoutKey(t *testing.T) {
	questions := []model.Question{
		{ID: 1, Type: model.TypeMCQ, Options: []string{"x", "y"}}, // imported without a key
		{ID: 2, Type: model.TypeMCQ, Options: []string{"x", "y"}, CorrectAnswer: "x"},
	}
	o := NewOrchestrator(&fakeClient{})
	score, analysis := o.Grade(context.Background(), questions, map[int]string{1: "x", 2: "x"})

	if score.Total != 1 {
		t.Errorf("keyless mcq must not count toward total, got %d", score.Total)
	}
	if _, ok := analysis[1]; ok {
		t.Error("keyless mcq should have no analysis entry")
	}
	if !strings.Contains(analysis[2].Feedback, FeedbackCorrect) {
		t.Errorf("unexpected analysis for q2: %+v", analysis[2])
	}
}
