package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleStudent is a student user role.
	UserRoleStudent UserRole = "student"
	// UserRoleAdmin is an admin user role.
	UserRoleAdmin UserRole = "admin"
)

// User represents a system user. Students sign in with their email.
type User struct {
	ID           int64
	Email        string
	DisplayName  string
	PasswordHash string
	Role         UserRole
	Active       bool
	CreatedAt    time.Time
}

// AuthSession represents an admin authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// QuestionType discriminates the Question union.
type QuestionType string

const (
	// TypeMCQ is a multiple-choice question scored by exact match.
	TypeMCQ QuestionType = "mcq"
	// TypeLong is a free-text question scored by semantic similarity.
	TypeLong QuestionType = "long"
)

// Question is one item of a test. Type discriminates the variant: an MCQ
// carries Options and CorrectAnswer; a long-answer question carries
// ReferenceAnswer, possibly empty, in which case it can never earn partial
// credit from the similarity grader.
type Question struct {
	ID              int          `json:"id"`
	Type            QuestionType `json:"type"`
	Text            string       `json:"questionText"`
	Options         []string     `json:"options,omitempty"`
	CorrectAnswer   string       `json:"correctAnswer,omitempty"`
	ReferenceAnswer string       `json:"referenceAnswer,omitempty"`
}

// QuestionView is the student-facing projection of a Question.
// Answer keys never leave the server during a test.
type QuestionView struct {
	ID      int          `json:"id"`
	Type    QuestionType `json:"type"`
	Text    string       `json:"questionText"`
	Options []string     `json:"options,omitempty"`
}

// View strips the answer key from a question.
func (q Question) View() QuestionView {
	return QuestionView{ID: q.ID, Type: q.Type, Text: q.Text, Options: q.Options}
}

// TestStatus is the availability state of a published test.
type TestStatus string

const (
	TestActive TestStatus = "active"
	TestClosed TestStatus = "closed"
)

// Test is a published, immutable question set. Edits are full replacements:
// delete the old test and publish a new one.
type Test struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
	Status    TestStatus `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Score is the aggregate result of grading one submission. Correct may be
// fractional because long answers earn partial credit, e.g. 5.9 out of 16.
type Score struct {
	Correct float64 `json:"correct"`
	Total   int     `json:"total"`
}

// Analysis is the per-question grading breakdown attached to a submission.
type Analysis struct {
	Score    float64 `json:"score"`
	MaxScore float64 `json:"maxScore"`
	Feedback string  `json:"feedback"`
}

// Submission records one student's single attempt at a test. It is created
// exactly once per (email, test) pair and never mutated afterwards.
// Responses is keyed by 1-based question number.
type Submission struct {
	ID          string           `json:"id"`
	TestID      string           `json:"testId"`
	UserID      int64            `json:"userId"`
	Name        string           `json:"name"`
	Email       string           `json:"email"`
	Responses   map[int]string   `json:"responses"`
	Score       *Score           `json:"calculatedScore,omitempty"`
	Analysis    map[int]Analysis `json:"detailedAnalysis,omitempty"`
	SubmittedAt time.Time        `json:"submittedAt"`
}

// TestSummary is a test plus dashboard counters for the admin list view.
type TestSummary struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Status          TestStatus `json:"status"`
	CreatedAt       time.Time  `json:"createdAt"`
	QuestionCount   int        `json:"questionCount"`
	SubmissionCount int        `json:"submissionCount"`
}
