package excel

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"traffic-quiz-service/internal/domain"
)

// ImportConfig describes where each question field lives in the sheet.
type ImportConfig struct {
	SheetName         string
	TopicColumn       string
	IDColumn          string
	TextColumn        string
	OptionsColumn     string // options separated by OptionSeparator
	CorrectColumn     string // 1-based index of the correct option
	ExplanationColumn string
	ImageColumn       string
	OptionSeparator   string
	StartRow          int // 1-based, rows above are headers
}

func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		SheetName:         "Sheet1",
		TopicColumn:       "A",
		IDColumn:          "B",
		TextColumn:        "C",
		OptionsColumn:     "D",
		CorrectColumn:     "E",
		ExplanationColumn: "F",
		ImageColumn:       "G",
		OptionSeparator:   "|",
		StartRow:          2,
	}
}

// ImportResult summarizes a parse run.
type ImportResult struct {
	TotalProcessed int
	Skipped        int
	Errors         []string
}

// ReadQuestions parses questions from an .xlsx file. Bad rows are skipped and
// reported in the result rather than failing the whole import.
func ReadQuestions(path string, cfg ImportConfig) ([]domain.Question, *ImportResult, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open excel file: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(cfg.SheetName)
	if err != nil {
		return nil, nil, fmt.Errorf("read rows: %w", err)
	}

	result := &ImportResult{}
	var out []domain.Question
	for i, row := range rows {
		if i < cfg.StartRow-1 {
			continue
		}
		result.TotalProcessed++
		q, err := parseRow(row, cfg)
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", i+1, err))
			continue
		}
		out = append(out, q)
	}
	return out, result, nil
}

func parseRow(row []string, cfg ImportConfig) (domain.Question, error) {
	cell := func(col string) string {
		if col == "" {
			return ""
		}
		idx, err := excelize.ColumnNameToNumber(col)
		if err != nil || idx-1 >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx-1])
	}

	q := domain.Question{
		TopicID:     domain.TopicKey(cell(cfg.TopicColumn)),
		ID:          cell(cfg.IDColumn),
		Text:        cell(cfg.TextColumn),
		Explanation: cell(cfg.ExplanationColumn),
		ImageURL:    cell(cfg.ImageColumn),
	}
	if q.TopicID == "" || q.ID == "" || q.Text == "" {
		return domain.Question{}, fmt.Errorf("topic, id and text are required")
	}
	for _, opt := range strings.Split(cell(cfg.OptionsColumn), cfg.OptionSeparator) {
		if opt = strings.TrimSpace(opt); opt != "" {
			q.Options = append(q.Options, opt)
		}
	}
	if len(q.Options) < 2 {
		return domain.Question{}, fmt.Errorf("at least two options are required")
	}
	correct, err := strconv.Atoi(cell(cfg.CorrectColumn))
	if err != nil || correct < 1 || correct > len(q.Options) {
		return domain.Question{}, fmt.Errorf("correct option %q out of range", cell(cfg.CorrectColumn))
	}
	q.CorrectIndex = correct - 1
	return q, nil
}
