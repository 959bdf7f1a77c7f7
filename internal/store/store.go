package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/quizgate/internal/model"

	_ "modernc.org/sqlite"
)

var (
	// ErrTestExists means a test with that ID was already published.
	ErrTestExists = errors.New("test id already exists")
	// ErrTestNotFound means no test with that ID exists.
	ErrTestNotFound = errors.New("test not found")
	// ErrTestClosed means the test exists but was closed by the admin.
	ErrTestClosed = errors.New("test closed")
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tests (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		questions TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS submissions (
		id TEXT PRIMARY KEY,
		test_id TEXT NOT NULL,
		user_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		responses TEXT NOT NULL,
		score TEXT,
		analysis TEXT,
		submitted_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_submissions_attempt ON submissions(email, test_id);

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'student',
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateTest publishes a test. The ID must be unique; publishing over an
// existing ID fails with ErrTestExists rather than overwriting.
func (s *Store) CreateTest(t model.Test) error {
	questions, err := json.Marshal(t.Questions)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}

	var exists int
	err = s.db.QueryRow(`SELECT COUNT(*) FROM tests WHERE id = ?`, t.ID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists > 0 {
		return fmt.Errorf("%w: %s", ErrTestExists, t.ID)
	}

	status := t.Status
	if status == "" {
		status = model.TestActive
	}
	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = s.db.Exec(
		`INSERT INTO tests (id, title, questions, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.Title, string(questions), status, createdAt,
	)
	return err
}

// GetTest returns a test by ID regardless of status.
func (s *Store) GetTest(id string) (model.Test, error) {
	var t model.Test
	var questions string
	err := s.db.QueryRow(
		`SELECT id, title, questions, status, created_at FROM tests WHERE id = ?`, id,
	).Scan(&t.ID, &t.Title, &questions, &t.Status, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, fmt.Errorf("%w: %s", ErrTestNotFound, id)
	}
	if err != nil {
		return t, err
	}
	if err := json.Unmarshal([]byte(questions), &t.Questions); err != nil {
		return t, fmt.Errorf("unmarshal questions: %w", err)
	}
	return t, nil
}

// GetTestMetadata returns a test for taking. It fails with ErrTestNotFound
// for an unknown ID and ErrTestClosed for a closed test, so callers can
// refuse a session before any credential check.
func (s *Store) GetTestMetadata(id string) (model.Test, error) {
	t, err := s.GetTest(id)
	if err != nil {
		return t, err
	}
	if t.Status == model.TestClosed {
		return model.Test{}, fmt.Errorf("%w: %s", ErrTestClosed, id)
	}
	return t, nil
}

// SetTestStatus toggles a test between active and closed.
func (s *Store) SetTestStatus(id string, status model.TestStatus) error {
	res, err := s.db.Exec(`UPDATE tests SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrTestNotFound, id)
	}
	return nil
}

// DeleteTest removes a test. Replacing a test is delete-then-create; partial
// edits are not supported.
func (s *Store) DeleteTest(id string) error {
	res, err := s.db.Exec(`DELETE FROM tests WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrTestNotFound, id)
	}
	return nil
}

// GetAllTests returns all tests with question and submission counts for the
// admin dashboard, newest first.
func (s *Store) GetAllTests() ([]model.TestSummary, error) {
	rows, err := s.db.Query(
		`SELECT t.id, t.title, t.questions, t.status, t.created_at,
		        (SELECT COUNT(*) FROM submissions sub WHERE sub.test_id = t.id)
		 FROM tests t ORDER BY t.created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []model.TestSummary
	for rows.Next() {
		var ts model.TestSummary
		var questions string
		if err := rows.Scan(&ts.ID, &ts.Title, &questions, &ts.Status, &ts.CreatedAt, &ts.SubmissionCount); err != nil {
			return nil, err
		}
		var qs []model.Question
		if err := json.Unmarshal([]byte(questions), &qs); err != nil {
			return nil, fmt.Errorf("unmarshal questions for %s: %w", ts.ID, err)
		}
		ts.QuestionCount = len(qs)
		summaries = append(summaries, ts)
	}
	return summaries, rows.Err()
}

// HasAlreadyAttempted reports whether a submission exists for this
// (email, test) pair. The check is read-then-act relative to SaveSubmission;
// two racing sessions can both pass it.
func (s *Store) HasAlreadyAttempted(email, testID string) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM submissions WHERE email = ? AND test_id = ?`, email, testID,
	).Scan(&count)
	return count > 0, err
}

// SaveSubmission persists a graded submission. Submissions are append-only.
func (s *Store) SaveSubmission(sub model.Submission) error {
	responses, err := json.Marshal(sub.Responses)
	if err != nil {
		return fmt.Errorf("marshal responses: %w", err)
	}
	var score, analysis sql.NullString
	if sub.Score != nil {
		b, err := json.Marshal(sub.Score)
		if err != nil {
			return fmt.Errorf("marshal score: %w", err)
		}
		score = sql.NullString{String: string(b), Valid: true}
	}
	if sub.Analysis != nil {
		b, err := json.Marshal(sub.Analysis)
		if err != nil {
			return fmt.Errorf("marshal analysis: %w", err)
		}
		analysis = sql.NullString{String: string(b), Valid: true}
	}

	submittedAt := sub.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = time.Now()
	}
	_, err = s.db.Exec(
		`INSERT INTO submissions (id, test_id, user_id, name, email, responses, score, analysis, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.TestID, sub.UserID, sub.Name, sub.Email, string(responses), score, analysis, submittedAt,
	)
	return err
}

// GetSubmissionsForTest returns all submissions for a test, newest first.
func (s *Store) GetSubmissionsForTest(testID string) ([]model.Submission, error) {
	rows, err := s.db.Query(
		`SELECT id, test_id, user_id, name, email, responses, score, analysis, submitted_at
		 FROM submissions WHERE test_id = ? ORDER BY submitted_at DESC`, testID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []model.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func scanSubmission(rows *sql.Rows) (model.Submission, error) {
	var sub model.Submission
	var responses string
	var score, analysis sql.NullString
	if err := rows.Scan(&sub.ID, &sub.TestID, &sub.UserID, &sub.Name, &sub.Email, &responses, &score, &analysis, &sub.SubmittedAt); err != nil {
		return sub, err
	}
	if err := json.Unmarshal([]byte(responses), &sub.Responses); err != nil {
		return sub, fmt.Errorf("unmarshal responses: %w", err)
	}
	if score.Valid {
		sub.Score = &model.Score{}
		if err := json.Unmarshal([]byte(score.String), sub.Score); err != nil {
			return sub, fmt.Errorf("unmarshal score: %w", err)
		}
	}
	if analysis.Valid {
		if err := json.Unmarshal([]byte(analysis.String), &sub.Analysis); err != nil {
			return sub, fmt.Errorf("unmarshal analysis: %w", err)
		}
	}
	return sub, nil
}
