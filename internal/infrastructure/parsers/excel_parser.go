package parsers

import (
	"context"
	"fmt"
	"iter"

	"github.com/xuri/excelize/v2"
)

// ExcelReader reads the text column of the first sheet of .xlsx files
type ExcelReader struct {
	config *ReaderConfig
}

// NewExcelReader creates a new Excel reader
func NewExcelReader(config *ReaderConfig) *ExcelReader {
	if config == nil {
		config = DefaultReaderConfig()
	}
	return &ExcelReader{
		config: config,
	}
}

// Stream walks the first sheet with the excelize row iterator, so large
// workbooks are never loaded into memory at once
func (p *ExcelReader) Stream(ctx context.Context, path string, stats *Stats) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		file, err := openChecked(path, p.config.MaxFileSize)
		if err != nil {
			yield("", err)
			return
		}
		defer file.Close()

		f, err := excelize.OpenReader(file)
		if err != nil {
			yield("", fmt.Errorf("failed to open Excel file: %w", err))
			return
		}
		defer f.Close()

		sheetName := f.GetSheetName(0)
		if sheetName == "" {
			yield("", fmt.Errorf("no sheets found in Excel file"))
			return
		}

		rows, err := f.Rows(sheetName)
		if err != nil {
			yield("", fmt.Errorf("failed to read rows from sheet %s: %w", sheetName, err))
			return
		}
		defer rows.Close()

		idx := -1
		for rows.Next() {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}

			row, err := rows.Columns()
			if err != nil {
				yield("", fmt.Errorf("failed to read row: %w", err))
				return
			}

			// the first row is the header
			if idx < 0 {
				if idx, err = columnIndex(row, p.config.TextField); err != nil {
					yield("", err)
					return
				}
				continue
			}

			if idx >= len(row) {
				stats.row(true)
				continue
			}
			text, ok := p.config.accept(row[idx])
			stats.row(!ok)
			if !ok {
				continue
			}
			if !yield(text, nil) {
				return
			}
		}

		if err := rows.Error(); err != nil {
			yield("", fmt.Errorf("error reading sheet %s: %w", sheetName, err))
		}
	}
}

// Format returns the format name
func (p *ExcelReader) Format() string {
	return "XLSX"
}

// SupportedFormats returns the file extensions this reader supports
func (p *ExcelReader) SupportedFormats() []string {
	return []string{".xlsx"}
}
