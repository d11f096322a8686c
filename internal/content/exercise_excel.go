package content

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"wyspamat/internal/grading"

	"github.com/xuri/excelize/v2"
)

type BankImportRowError struct {
	Row    int    `json:"row"`
	Prompt string `json:"prompt,omitempty"`
	Error  string `json:"error"`
}

type BankImportReport struct {
	TotalRows   int                  `json:"total_rows"`
	SuccessRows int                  `json:"success_rows"`
	FailedRows  int                  `json:"failed_rows"`
	Errors      []BankImportRowError `json:"errors"`
}

var bankHeaders = []string{
	"answer_type", "prompt", "points_max", "hint", "explanation",
	"correct", "option_a", "option_b", "option_c", "option_d", "value",
}

// ExportBankExcel dumps the exercise bank, one row per exercise with its key
// flattened into type-specific columns.
func (s *Service) ExportBankExcel(ctx context.Context) ([]byte, error) {
	items, err := s.listBank(ctx)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i, h := range bankHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for i, it := range items {
		row := i + 2
		correct, optA, optB, optC, optD, value := "", "", "", "", "", ""
		switch it.AnswerType {
		case grading.AnswerTypeABCD:
			var key grading.ABCDKey
			if err := json.Unmarshal(it.AnswerKey, &key); err == nil {
				correct = key.Correct
				optA = key.Options["A"]
				optB = key.Options["B"]
				optC = key.Options["C"]
				optD = key.Options["D"]
			}
		case grading.AnswerTypeNumeric:
			value = grading.CorrectAnswer(grading.AnswerTypeNumeric, it.AnswerKey)
		}
		values := []any{
			it.AnswerType, it.Prompt, it.PointsMax, it.Hint, it.Explanation,
			correct, optA, optB, optC, optD, value,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	_ = f.SetColWidth(sheet, "A", "K", 22)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}

// ImportBankExcel loads exercises row by row, reporting per-row failures
// instead of aborting the whole file.
func (s *Service) ImportBankExcel(ctx context.Context, r io.Reader) (*BankImportReport, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open excel: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("excel sheet is empty")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) < 2 {
		return nil, errors.New("no data rows found")
	}

	header := map[string]int{}
	for i, h := range rows[0] {
		header[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range []string{"answer_type", "prompt"} {
		if _, ok := header[col]; !ok {
			return nil, fmt.Errorf("missing required column: %s", col)
		}
	}

	report := &BankImportReport{Errors: make([]BankImportRowError, 0)}
	for i := 1; i < len(rows); i++ {
		rowNo := i + 1
		row := rows[i]
		report.TotalRows++

		get := func(key string) string {
			idx, ok := header[key]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}

		in, err := bankRowToInput(get)
		if err == nil {
			_, err = s.CreateExercise(ctx, in)
		}
		if err != nil {
			report.FailedRows++
			report.Errors = append(report.Errors, BankImportRowError{
				Row:    rowNo,
				Prompt: get("prompt"),
				Error:  err.Error(),
			})
			continue
		}
		report.SuccessRows++
	}
	return report, nil
}

func bankRowToInput(get func(string) string) (CreateExerciseInput, error) {
	in := CreateExerciseInput{
		AnswerType:  strings.ToLower(get("answer_type")),
		Prompt:      get("prompt"),
		Hint:        get("hint"),
		Explanation: get("explanation"),
		PointsMax:   1,
	}
	if in.Prompt == "" {
		return in, errors.New("prompt is required")
	}
	if v := get("points_max"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return in, fmt.Errorf("invalid points_max: %q", v)
		}
		in.PointsMax = n
	}

	switch in.AnswerType {
	case grading.AnswerTypeABCD:
		correct := strings.ToUpper(get("correct"))
		if correct == "" {
			return in, errors.New("correct letter is required for abcd")
		}
		key := grading.ABCDKey{
			Options: map[string]string{
				"A": get("option_a"),
				"B": get("option_b"),
				"C": get("option_c"),
				"D": get("option_d"),
			},
			Correct: correct,
		}
		raw, err := json.Marshal(key)
		if err != nil {
			return in, fmt.Errorf("encode abcd key: %w", err)
		}
		in.AnswerKey = raw
	case grading.AnswerTypeNumeric:
		value := get("value")
		if value == "" {
			return in, errors.New("value is required for numeric")
		}
		raw, err := json.Marshal(map[string]string{"value": value})
		if err != nil {
			return in, fmt.Errorf("encode numeric key: %w", err)
		}
		in.AnswerKey = raw
	default:
		return in, fmt.Errorf("unsupported answer_type: %q", in.AnswerType)
	}
	return in, nil
}
