// Package session drives the student-facing test lifecycle: authentication,
// one-attempt gating, answer capture, anti-cheat monitoring, and the handoff
// to grading.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/quizgate/internal/model"
	"github.com/pavelanni/quizgate/internal/store"
)

// Phase is the lifecycle state of one test-taking session. Sessions only
// move forward; Submitted and Blocked are terminal.
type Phase string

const (
	PhaseUnauthenticated Phase = "unauthenticated"
	PhaseAuthenticating  Phase = "authenticating"
	PhaseAttemptCheck    Phase = "attempt_check"
	PhaseInProgress      Phase = "in_progress"
	PhaseGrading         Phase = "grading"
	PhaseSubmitted       Phase = "submitted"
	PhaseBlocked         Phase = "blocked"
)

// maxTabSwitches is how many visibility-loss events a student gets before
// the test auto-submits.
const maxTabSwitches = 3

var (
	// ErrInvalidTestID means the requested test does not exist.
	ErrInvalidTestID = errors.New("invalid test id")
	// ErrTestClosed means the test was closed by the admin.
	ErrTestClosed = errors.New("test closed")
	// ErrAuthFailed means credential verification failed.
	ErrAuthFailed = errors.New("authentication failed")
	// ErrAlreadyAttempted means a submission already exists for this
	// (email, test) pair. The question content is never revealed.
	ErrAlreadyAttempted = errors.New("test already attempted")
	// ErrNotInProgress means an event arrived in a phase that cannot
	// accept it (answering before start, submitting twice, and so on).
	ErrNotInProgress = errors.New("session not in progress")
)

// Store is the document-store capability the controller consumes.
type Store interface {
	GetTestMetadata(id string) (model.Test, error)
	HasAlreadyAttempted(email, testID string) (bool, error)
	SaveSubmission(sub model.Submission) error
	GetUserByEmail(email string) (*model.User, error)
	CreateUser(u model.User) (int64, error)
}

// Grader scores a submission's responses against the question list.
type Grader interface {
	Grade(ctx context.Context, questions []model.Question, responses map[int]string) (model.Score, map[int]model.Analysis)
}

// Controller creates sessions and executes their grading handoff.
type Controller struct {
	store  Store
	grader Grader
}

// NewController creates a session controller.
func NewController(s Store, g Grader) *Controller {
	return &Controller{store: s, grader: g}
}

// StartRequest carries the credentials and test ID for a start-test event.
type StartRequest struct {
	TestID   string
	Email    string
	Password string
	Name     string
	Register bool
}

// Session is the ephemeral, process-local state of one test attempt. It
// lives from authentication until a terminal phase and is driven by UI
// events one at a time; callers must not invoke two transitions
// concurrently for the same session.
type Session struct {
	phase       Phase
	test        model.Test
	user        model.User
	name        string
	answers     map[int]string
	tabSwitches int

	// latched is the grading mutual-exclusion flag: checked and set before
	// any grading attempt, released only on a persistence failure.
	latched bool
	// autoFired remembers that the tab-switch threshold already triggered
	// grading once, so later visibility events cannot re-trigger it.
	autoFired bool
}

// Start runs the session through authentication and the attempt check.
// Order matters: test existence and availability are verified first so a
// dead test ID never costs a credential check, then credentials, then the
// one-attempt guarantee. A prior attempt yields a Blocked session with no
// test snapshot attached.
func (c *Controller) Start(req StartRequest) (*Session, error) {
	s := &Session{phase: PhaseUnauthenticated, answers: make(map[int]string)}

	s.phase = PhaseAuthenticating
	test, err := c.store.GetTestMetadata(req.TestID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrTestNotFound):
			return nil, fmt.Errorf("%w: %s", ErrInvalidTestID, req.TestID)
		case errors.Is(err, store.ErrTestClosed):
			return nil, fmt.Errorf("%w: %s", ErrTestClosed, req.TestID)
		}
		return nil, fmt.Errorf("load test: %w", err)
	}

	user, err := c.authenticate(req)
	if err != nil {
		return nil, err
	}
	s.user = *user
	s.name = req.Name
	if s.name == "" {
		s.name = user.DisplayName
	}
	if s.name == "" {
		s.name = user.Email
	}

	s.phase = PhaseAttemptCheck
	attempted, err := c.store.HasAlreadyAttempted(user.Email, req.TestID)
	if err != nil {
		return nil, fmt.Errorf("attempt check: %w", err)
	}
	if attempted {
		s.phase = PhaseBlocked
		return s, ErrAlreadyAttempted
	}

	// The snapshot is loaded once; the question list is immutable for the
	// rest of the session.
	s.test = test
	s.phase = PhaseInProgress
	slog.Info("session started", "test_id", test.ID, "email", user.Email, "questions", len(test.Questions))
	return s, nil
}

func (c *Controller) authenticate(req StartRequest) (*model.User, error) {
	user, err := c.store.GetUserByEmail(req.Email)
	if err != nil {
		return nil, fmt.Errorf("look up user: %w", err)
	}

	if req.Register {
		if user != nil {
			return nil, fmt.Errorf("%w: account already exists", ErrAuthFailed)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		u := model.User{
			Email:        req.Email,
			DisplayName:  req.Name,
			PasswordHash: string(hash),
			Role:         model.UserRoleStudent,
			Active:       true,
		}
		id, err := c.store.CreateUser(u)
		if err != nil {
			return nil, fmt.Errorf("register user: %w", err)
		}
		u.ID = id
		return &u, nil
	}

	if user == nil || !user.Active {
		return nil, ErrAuthFailed
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrAuthFailed
	}
	return user, nil
}

// Phase returns the session's current lifecycle phase.
func (s *Session) Phase() Phase { return s.phase }

// TabSwitches returns how many visibility-loss events were recorded.
func (s *Session) TabSwitches() int { return s.tabSwitches }

// Test returns the test snapshot loaded at session start.
func (s *Session) Test() model.Test { return s.test }

// Questions returns the student-facing view of the question list, with
// answer keys stripped.
func (s *Session) Questions() []model.QuestionView {
	views := make([]model.QuestionView, len(s.test.Questions))
	for i, q := range s.test.Questions {
		views[i] = q.View()
	}
	return views
}

// RecordAnswer captures an answer for a 1-based question number, replacing
// any prior answer. Navigation between questions is not a transition.
func (s *Session) RecordAnswer(num int, answer string) error {
	if s.phase != PhaseInProgress {
		return ErrNotInProgress
	}
	if num < 1 || num > len(s.test.Questions) {
		return fmt.Errorf("question %d out of range", num)
	}
	s.answers[num] = answer
	return nil
}

// VisibilityLost records one visibility-loss event and reports whether the
// anti-cheat threshold fired. It fires at most once per session: events
// beyond the threshold, or after a persistence-failure retry window, never
// re-trigger grading.
func (s *Session) VisibilityLost() bool {
	if s.phase != PhaseInProgress {
		return false
	}
	s.tabSwitches++
	if s.tabSwitches >= maxTabSwitches && !s.autoFired {
		s.autoFired = true
		slog.Info("tab switch limit reached, forcing submit", "count", s.tabSwitches)
		return true
	}
	return false
}

// beginGrading checks-and-sets the grading latch.
func (s *Session) beginGrading() bool {
	if s.phase != PhaseInProgress || s.latched {
		return false
	}
	s.latched = true
	s.phase = PhaseGrading
	return true
}

// Submit grades the session and persists the submission. Manual submission
// and the tab-switch auto-submit both funnel through the same latch, so
// grading runs at most once however the events interleave. If persisting
// fails, the session returns to InProgress with the latch released so the
// student can retry; recomputing the scores on retry is safe.
func (c *Controller) Submit(ctx context.Context, s *Session) (*model.Submission, error) {
	if !s.beginGrading() {
		return nil, ErrNotInProgress
	}

	score, analysis := c.grader.Grade(ctx, s.test.Questions, s.answers)

	sub := model.Submission{
		ID:          uuid.NewString(),
		TestID:      s.test.ID,
		UserID:      s.user.ID,
		Name:        s.name,
		Email:       s.user.Email,
		Responses:   s.answers,
		Score:       &score,
		Analysis:    analysis,
		SubmittedAt: time.Now(),
	}

	if err := c.store.SaveSubmission(sub); err != nil {
		s.latched = false
		s.phase = PhaseInProgress
		slog.Error("failed to persist submission", "test_id", s.test.ID, "email", s.user.Email, "error", err)
		return nil, fmt.Errorf("save submission: %w", err)
	}

	s.phase = PhaseSubmitted
	slog.Info("submission persisted",
		"test_id", s.test.ID,
		"email", s.user.Email,
		"correct", score.Correct,
		"total", score.Total,
	)
	return &sub, nil
}
