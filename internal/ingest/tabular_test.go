package ingest

import (
	"errors"
	"strings"
	"testing"

	"github.com/pavelanni/quizgate/internal/model"
)

func TestParseRows(t *testing.T) {
	rows := []Row{
		{
			"type": "mcq", "question": "2 + 2?",
			"option_a": "3", "option_b": "4", "option_c": " ",
			"answer": "4",
		},
		{
			"type": "long", "question": "Explain gravity.",
			"answer": "Objects with mass attract each other.",
		},
		{
			"type": "LONG", "question": "Free response, no key.",
		},
	}

	questions, err := ParseRows(rows)
	if err != nil {
		t.Fatalf("ParseRows: %v", err)
	}
	if len(questions) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(questions))
	}

	mcq := questions[0]
	if mcq.Type != model.TypeMCQ || mcq.CorrectAnswer != "4" {
		t.Errorf("unexpected mcq: %+v", mcq)
	}
	if len(mcq.Options) != 2 {
		t.Errorf("blank option should be dropped, got %v", mcq.Options)
	}

	long := questions[1]
	if long.Type != model.TypeLong || long.ReferenceAnswer == "" {
		t.Errorf("unexpected long question: %+v", long)
	}
	if questions[2].ReferenceAnswer != "" {
		t.Errorf("expected empty reference answer, got %q", questions[2].ReferenceAnswer)
	}

	// IDs follow row order.
	for i, q := range questions {
		if q.ID != i+1 {
			t.Errorf("expected id %d, got %d", i+1, q.ID)
		}
	}
}

func TestParseRowsErrors(t *testing.T) {
	valid := Row{
		"type": "mcq", "question": "ok?",
		"option_a": "yes", "option_b": "no", "answer": "yes",
	}

	tests := []struct {
		name     string
		row      Row
		wantKind ErrorKind
		wantRow  int
	}{
		{"missing type", Row{"question": "q"}, MissingField, 3},
		{"missing question", Row{"type": "mcq"}, MissingField, 3},
		{"one option", Row{"type": "mcq", "question": "q", "option_a": "only", "answer": "only"}, InsufficientOptions, 3},
		{"mcq without answer", Row{"type": "mcq", "question": "q", "option_a": "x", "option_b": "y"}, MissingField, 3},
		{"unknown type", Row{"type": "essay", "question": "q"}, UnknownType, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRows([]Row{valid, tt.row})
			if err == nil {
				t.Fatal("expected error")
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ParseError, got %T", err)
			}
			if pe.Kind != tt.wantKind {
				t.Errorf("expected kind %q, got %q", tt.wantKind, pe.Kind)
			}
			// Second data row lands on spreadsheet line 3.
			if pe.Row != tt.wantRow {
				t.Errorf("expected row %d, got %d", tt.wantRow, pe.Row)
			}
		})
	}
}

func TestReadCSV(t *testing.T) {
	src := strings.Join([]string{
		"Type,Question,Option_A,Option_B,Answer",
		"mcq,2 + 2?,3,4,4",
		"long,Explain gravity.,,,mass attracts mass",
	}, "\n")

	rows, err := ReadCSV(strings.NewReader(src))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0]["option_b"] != "4" {
		t.Errorf("header mapping failed: %v", rows[0])
	}

	questions, err := ParseRows(rows)
	if err != nil {
		t.Fatalf("ParseRows: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(questions))
	}
	if questions[1].ReferenceAnswer != "mass attracts mass" {
		t.Errorf("unexpected reference answer: %q", questions[1].ReferenceAnswer)
	}
}

func TestReadCSVRaggedRows(t *testing.T) {
	// Rows may omit trailing option columns entirely.
	src := "type,question,option_a,option_b,answer\nlong,Short row\n"
	rows, err := ReadCSV(strings.NewReader(src))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	questions, err := ParseRows(rows)
	if err != nil {
		t.Fatalf("ParseRows: %v", err)
	}
	if questions[0].Type != model.TypeLong {
		t.Errorf("expected long, got %q", questions[0].Type)
	}
}
