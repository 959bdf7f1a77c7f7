// Package report renders admin CSV reports for a test's submissions.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pavelanni/quizgate/internal/model"
)

// WriteMarksCSV writes the per-question marks report: one row per
// submission with the stored aggregate totals and a numeric column per
// question. Totals come from the persisted score, never a recalculation,
// so the CSV matches what the student saw (including fractions like 5.9).
func WriteMarksCSV(w io.Writer, test model.Test, subs []model.Submission) error {
	cw := csv.NewWriter(w)

	header := []string{"Student Name", "Email", "Total Marks", "Max Marks"}
	for i := range test.Questions {
		header = append(header, fmt.Sprintf("Q%d", i+1))
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, sub := range subs {
		var total float64
		var max int
		if sub.Score != nil {
			total = sub.Score.Correct
			max = sub.Score.Total
		}
		row := []string{
			orNA(sub.Name),
			orNA(sub.Email),
			formatMarks(total),
			strconv.Itoa(max),
		}
		for i, q := range test.Questions {
			row = append(row, formatMarks(questionMarks(q, sub, i+1)))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// questionMarks resolves one question's awarded marks: the graded analysis
// when present, else a legacy exact-match fallback for MCQs from
// submissions that predate per-question grading.
func questionMarks(q model.Question, sub model.Submission, num int) float64 {
	if a, ok := sub.Analysis[num]; ok {
		return a.Score
	}
	if q.Type == model.TypeMCQ && q.CorrectAnswer != "" {
		if ans, ok := sub.Responses[num]; ok {
			if strings.EqualFold(strings.TrimSpace(ans), strings.TrimSpace(q.CorrectAnswer)) {
				return 1
			}
		}
	}
	return 0
}

// WriteResponsesCSV writes the full responses report: one row per
// submission with totals, percentage, and the verbatim answer text per
// question.
func WriteResponsesCSV(w io.Writer, test model.Test, subs []model.Submission) error {
	cw := csv.NewWriter(w)

	header := []string{"Student Name", "Email", "Submitted At", "Total Score", "Percentage", "Test Title"}
	for i, q := range test.Questions {
		header = append(header, fmt.Sprintf("Q%d: %s", i+1, q.Text))
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, sub := range subs {
		var correct float64
		var total int
		if sub.Score != nil {
			correct = sub.Score.Correct
			total = sub.Score.Total
		}
		percentage := "0%"
		if total > 0 {
			percentage = fmt.Sprintf("%.2f%%", correct/float64(total)*100)
		}

		row := []string{
			orNA(sub.Name),
			orNA(sub.Email),
			sub.SubmittedAt.Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%s/%d", formatMarks(correct), total),
			percentage,
			test.Title,
		}
		for i := range test.Questions {
			answer := sub.Responses[i+1]
			if answer == "" {
				answer = "Not Answered"
			}
			row = append(row, answer)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// formatMarks prints a mark without a spurious trailing ".0" on whole
// numbers: 1 stays "1", 0.9 stays "0.9".
func formatMarks(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
