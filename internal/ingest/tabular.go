package ingest

import (
	"fmt"
	"strings"

	"github.com/pavelanni/quizgate/internal/model"
)

// Row is one tabular source row, keyed by lowercased column header.
type Row map[string]string

// optionColumns are the recognized option headers, in column order.
var optionColumns = []string{"option_a", "option_b", "option_c", "option_d", "option_e", "option_f"}

// headerOffset converts a 0-based data row index into the line number a user
// sees in a spreadsheet (row 1 is the header).
const headerOffset = 2

// ErrorKind classifies an ingestion failure.
type ErrorKind string

const (
	// MissingField means a required column was empty.
	MissingField ErrorKind = "missing_field"
	// InsufficientOptions means an MCQ row had fewer than two options.
	InsufficientOptions ErrorKind = "insufficient_options"
	// UnknownType means the type column held an unrecognized value.
	UnknownType ErrorKind = "unknown_type"
)

// ParseError reports an invalid source row with enough location context to
// fix the spreadsheet. Row is the 1-based line number including the header.
type ParseError struct {
	Row   int
	Field string
	Kind  ErrorKind
}

func (e *ParseError) Error() string {
	switch e.Kind {
	case MissingField:
		return fmt.Sprintf("row %d: missing %s", e.Row, e.Field)
	case InsufficientOptions:
		return fmt.Sprintf("row %d: mcq needs at least 2 options", e.Row)
	case UnknownType:
		return fmt.Sprintf("row %d: unknown question type %q", e.Row, e.Field)
	default:
		return fmt.Sprintf("row %d: invalid", e.Row)
	}
}

// ParseRows turns tabular rows into canonical questions. Each row must carry
// a type ("mcq" or "long") and question text. MCQ rows need at least two
// non-blank options and an answer; the answer is stored as-is, without
// requiring it to match an option verbatim. Long rows may carry a reference
// answer; without one the question can never earn similarity credit.
func ParseRows(rows []Row) ([]model.Question, error) {
	questions := make([]model.Question, 0, len(rows))
	for i, row := range rows {
		line := i + headerOffset

		qType := strings.ToLower(strings.TrimSpace(row["type"]))
		text := strings.TrimSpace(row["question"])
		answer := strings.TrimSpace(row["answer"])

		if qType == "" || text == "" {
			field := "type"
			if qType != "" {
				field = "question"
			}
			return nil, &ParseError{Row: line, Field: field, Kind: MissingField}
		}

		var options []string
		for _, col := range optionColumns {
			if opt := strings.TrimSpace(row[col]); opt != "" {
				options = append(options, opt)
			}
		}

		switch model.QuestionType(qType) {
		case model.TypeMCQ:
			if len(options) < 2 {
				return nil, &ParseError{Row: line, Field: "options", Kind: InsufficientOptions}
			}
			if answer == "" {
				return nil, &ParseError{Row: line, Field: "answer", Kind: MissingField}
			}
			questions = append(questions, model.Question{
				ID:            i + 1,
				Type:          model.TypeMCQ,
				Text:          text,
				Options:       options,
				CorrectAnswer: answer,
			})
		case model.TypeLong:
			questions = append(questions, model.Question{
				ID:              i + 1,
				Type:            model.TypeLong,
				Text:            text,
				ReferenceAnswer: answer,
			})
		default:
			return nil, &ParseError{Row: line, Field: qType, Kind: UnknownType}
		}
	}
	return questions, nil
}
