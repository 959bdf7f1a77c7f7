package ingest

import (
	"strconv"
	"strings"

	"github.com/pavelanni/quizgate/internal/model"
)

// scanState tracks which part of a question the text scanner is inside.
type scanState int

const (
	seekQuestion scanState = iota
	readingText
	readingOption
)

// noiseLabels are type markers that appear under a question header in some
// source documents. They carry no content and are discarded.
var noiseLabels = []string{"multiple choice", "long form", "situational"}

// ParseText scans a loosely structured question document into canonical
// questions. The grammar has two tokens: a question header ("Question",
// optional whitespace, digits, optional trailing text) and an option line
// (a letter A-E, then "." or ")", then text). Everything else is content.
//
// Once a question has collected at least one option, plain lines are wrapped
// continuations of the last option, never question text. A document with no
// recognized headers yields an empty result, not an error.
func ParseText(raw string) []model.Question {
	lines := splitLines(raw)

	var questions []model.Question
	var cur *model.Question
	var textParts []string
	state := seekQuestion

	finalize := func() {
		if cur == nil {
			return
		}
		cur.Text = strings.TrimSpace(strings.Join(textParts, "\n"))
		if len(cur.Options) > 0 {
			cur.Type = model.TypeMCQ
		} else {
			cur.Type = model.TypeLong
		}
		questions = append(questions, *cur)
	}

	for _, line := range lines {
		if id, ok := matchQuestionHeader(line); ok {
			finalize()
			if id == 0 {
				id = len(questions) + 1
			}
			cur = &model.Question{ID: id}
			textParts = textParts[:0]
			state = readingText
			continue
		}

		if cur == nil {
			continue // preamble before the first header
		}

		if _, ok := matchOption(line); ok {
			cur.Options = append(cur.Options, line)
			state = readingOption
			continue
		}

		switch state {
		case readingOption:
			// Wrapped continuation of the last option.
			last := len(cur.Options) - 1
			cur.Options[last] += " " + line
		default:
			if isNoiseLabel(line) {
				continue
			}
			textParts = append(textParts, line)
		}
	}
	finalize()

	return questions
}

// splitLines normalizes line endings, trims each line, and drops blanks.
func splitLines(raw string) []string {
	raw = strings.ReplaceAll(raw, "\r", "")
	var lines []string
	for _, l := range strings.Split(raw, "\n") {
		l = strings.TrimSpace(l)
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// matchQuestionHeader reports whether line starts a new question and returns
// the declared question number. Zero or more spaces may separate the keyword
// from the digits ("Question 7", "Question7", "Question 7 of 75" all match).
// A declared number too large to parse returns id 0; the caller substitutes
// the running sequence index.
func matchQuestionHeader(line string) (id int, ok bool) {
	const keyword = "question"
	if len(line) < len(keyword) || !strings.EqualFold(line[:len(keyword)], keyword) {
		return 0, false
	}
	rest := line[len(keyword):]
	i := 0
	for i < len(rest) && (rest[i] == ' ' || rest[i] == '\t') {
		i++
	}
	j := i
	for j < len(rest) && rest[j] >= '0' && rest[j] <= '9' {
		j++
	}
	if j == i {
		return 0, false // keyword without a number is not a header
	}
	n, err := strconv.Atoi(rest[i:j])
	if err != nil {
		return 0, true
	}
	return n, true
}

// matchOption reports whether line opens an MCQ option and returns its label.
// The shape is a single letter A-E (either case), a "." or ")" separator,
// then at least one space and the option text.
func matchOption(line string) (label byte, ok bool) {
	if len(line) < 3 {
		return 0, false
	}
	c := line[0]
	if c >= 'a' && c <= 'e' {
		c -= 'a' - 'A'
	}
	if c < 'A' || c > 'E' {
		return 0, false
	}
	if line[1] != '.' && line[1] != ')' {
		return 0, false
	}
	if line[2] != ' ' && line[2] != '\t' {
		return 0, false
	}
	return c, true
}

func isNoiseLabel(line string) bool {
	l := strings.ToLower(line)
	for _, label := range noiseLabels {
		if strings.Contains(l, label) {
			return true
		}
	}
	return false
}
