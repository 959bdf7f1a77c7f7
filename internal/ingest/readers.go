package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/pavelanni/quizgate/internal/model"
)

// ReadCSV reads a comma-separated source into rows keyed by the header line.
// Headers are lowercased and trimmed so "Option_A" and "option_a" are the
// same column.
func ReadCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // rows may omit trailing option columns

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return mapRows(records[0], records[1:]), nil
}

// ReadXLSX reads the first sheet of a workbook into rows keyed by the header
// line, same shape as ReadCSV.
func ReadXLSX(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return mapRows(records[0], records[1:]), nil
}

func mapRows(header []string, records [][]string) []Row {
	keys := make([]string, len(header))
	for i, h := range header {
		keys[i] = strings.ToLower(strings.TrimSpace(h))
	}

	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		row := make(Row, len(keys))
		for i, key := range keys {
			if key == "" || i >= len(rec) {
				continue
			}
			row[key] = rec[i]
		}
		rows = append(rows, row)
	}
	return rows
}

// FromReader parses a questions source, picking the front end from the file
// name's extension: .csv and .xlsx go through the tabular parser, anything
// else is treated as unstructured text.
func FromReader(name string, r io.Reader) ([]model.Question, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		rows, err := ReadCSV(r)
		if err != nil {
			return nil, err
		}
		return ParseRows(rows)
	case ".xlsx":
		rows, err := ReadXLSX(r)
		if err != nil {
			return nil, err
		}
		return ParseRows(rows)
	default:
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		return ParseText(string(data)), nil
	}
}

// FromFile parses a questions source file on disk.
func FromFile(path string) ([]model.Question, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return FromReader(path, f)
}
