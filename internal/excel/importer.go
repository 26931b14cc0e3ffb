package excel

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/example/quizbot/pkg/models"
)

// ImportConfig defines how question rows are read from a spreadsheet.
type ImportConfig struct {
	FilePath          string // Path to the Excel or CSV file
	QuestionColumn    string // Column with the question text
	FirstChoiceColumn string // First of up to four consecutive choice columns
	AnswerColumn      string // Column with the correct answer letter (or TRUE/FALSE)
	ExplanationColumn string // Optional column with the explanation
	SheetName         string // Name of the sheet to import
	StartRow          int    // The row to start importing from (1-based index)
}

// DefaultImportConfig returns the default import configuration.
func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		QuestionColumn:    "A",
		FirstChoiceColumn: "B",
		AnswerColumn:      "F",
		ExplanationColumn: "G",
		SheetName:         "Sheet1",
		StartRow:          2, // By default, start from the second row (skip header)
	}
}

// ImportResult holds the result of an import operation.
type ImportResult struct {
	TotalProcessed int
	Created        int
	Errors         []string
}

// maxChoices is the widest multiple-choice row the poll transport accepts.
const maxChoices = 4

// ImportQuestions reads questions from an Excel or CSV file. Rows that
// cannot be parsed are reported in the result and skipped; the remaining
// rows still import.
func ImportQuestions(config ImportConfig) ([]models.Question, *ImportResult, error) {
	ext := strings.ToLower(filepath.Ext(config.FilePath))

	if ext == ".csv" {
		return importFromCSV(config)
	}

	return importFromExcel(config)
}

// importFromExcel reads question rows from an Excel sheet.
func importFromExcel(config ImportConfig) ([]models.Question, *ImportResult, error) {
	f, err := excelize.OpenFile(config.FilePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open Excel file: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(config.SheetName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get rows: %v", err)
	}

	result := &ImportResult{Errors: make([]string, 0)}
	questions := make([]models.Question, 0, len(rows))

	for i, row := range rows {
		if i < config.StartRow-1 {
			continue
		}
		if isBlankRow(row) {
			continue
		}

		result.TotalProcessed++

		q, err := parseRow(row, config)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", i+1, err))
			continue
		}
		questions = append(questions, q)
		result.Created++
	}

	return questions, result, nil
}

// importFromCSV reads question rows from a CSV file using the same column
// layout as the Excel path.
func importFromCSV(config ImportConfig) ([]models.Question, *ImportResult, error) {
	file, err := os.Open(config.FilePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open CSV file: %v", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1 // Allow variable number of fields
	reader.LazyQuotes = true

	result := &ImportResult{Errors: make([]string, 0)}
	var questions []models.Question

	rowNum := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("error reading CSV: %v", err)
		}

		rowNum++
		if rowNum < config.StartRow {
			continue
		}
		if isBlankRow(row) {
			continue
		}

		result.TotalProcessed++

		q, err := parseRow(row, config)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", rowNum, err))
			continue
		}
		questions = append(questions, q)
		result.Created++
	}

	return questions, result, nil
}

// parseRow converts one spreadsheet row into a question. A TRUE/FALSE
// answer turns the row into a fixed two-choice question regardless of the
// choice columns.
func parseRow(row []string, config ImportConfig) (models.Question, error) {
	var q models.Question

	if idx := columnToIndex(config.QuestionColumn); idx < len(row) {
		q.Text = strings.TrimSpace(row[idx])
	}
	if q.Text == "" {
		return q, fmt.Errorf("question text cannot be empty")
	}

	var answer string
	if idx := columnToIndex(config.AnswerColumn); idx < len(row) {
		answer = strings.ToUpper(strings.TrimSpace(row[idx]))
	}
	if answer == "" {
		return q, fmt.Errorf("answer cannot be empty")
	}

	if config.ExplanationColumn != "" {
		if idx := columnToIndex(config.ExplanationColumn); idx < len(row) {
			q.Explanation = strings.TrimSpace(row[idx])
		}
	}

	// True/false rows carry no choice columns of their own.
	if answer == "TRUE" || answer == "FALSE" {
		q.Choices = []string{"True", "False"}
		if answer == "TRUE" {
			q.CorrectIndex = 0
		} else {
			q.CorrectIndex = 1
		}
		return q, nil
	}

	first := columnToIndex(config.FirstChoiceColumn)
	for i := 0; i < maxChoices; i++ {
		idx := first + i
		if idx >= len(row) {
			break
		}
		choice := strings.TrimSpace(row[idx])
		if choice == "" {
			break
		}
		q.Choices = append(q.Choices, choice)
	}
	if len(q.Choices) < 2 {
		return q, fmt.Errorf("need at least 2 choices, got %d", len(q.Choices))
	}

	if len(answer) != 1 || answer[0] < 'A' || answer[0] > 'D' {
		return q, fmt.Errorf("answer must be a letter A-D or TRUE/FALSE, got %q", answer)
	}
	q.CorrectIndex = int(answer[0] - 'A')
	if q.CorrectIndex >= len(q.Choices) {
		return q, fmt.Errorf("answer %s points past the last choice", answer)
	}

	return q, nil
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// columnToIndex converts an Excel column letter to a zero-based index.
func columnToIndex(column string) int {
	column = strings.ToUpper(column)
	index := 0
	for i := 0; i < len(column); i++ {
		index = index*26 + int(column[i]-'A'+1)
	}
	return index - 1
}
