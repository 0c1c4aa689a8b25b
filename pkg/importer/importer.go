package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tealeg/xlsx/v3"
)

// Fields an asset sheet can map
const (
	FieldName        = "name"
	FieldDescription = "description"
	FieldStatus      = "status"
	FieldImageURL    = "image_url"
)

// ErrTooManyErrors stops an import once MaxErrors is exceeded
var ErrTooManyErrors = errors.New("too many errors")

// AssetRow is one spreadsheet row mapped to asset fields
type AssetRow struct {
	Name        string
	Description string
	Status      string
	ImageURL    string
}

// AssetSink registers imported rows and returns the assigned asset code
type AssetSink interface {
	CreateAsset(ctx context.Context, row AssetRow) (string, error)
}

// ImportOptions defines the configuration for Excel import operations
type ImportOptions struct {
	Mapping   *MappingConfig // default DefaultMapping()
	DryRun    bool
	MaxErrors int // default 50
}

// RowError represents an error that occurred during row processing
type RowError struct {
	Sheet   string `json:"sheet"`
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// SheetSummary contains the import statistics for a single sheet
type SheetSummary struct {
	Name     string     `json:"name"`
	Inserted int        `json:"inserted"`
	Skipped  int        `json:"skipped"`
	Errors   int        `json:"errors"`
	Codes    []string   `json:"codes,omitempty"`
	Samples  []RowError `json:"error_samples,omitempty"`
}

// ImportSummary contains the overall import statistics
type ImportSummary struct {
	Inserted int            `json:"inserted"`
	Skipped  int            `json:"skipped"`
	Errors   int            `json:"errors"`
	Sheets   []SheetSummary `json:"sheets"`
	DryRun   bool           `json:"dry_run"`
}

const maxSamples = 20

// ImportAssets reads an .xlsx workbook and registers every mapped row through sink.
// Rows are processed in sheet order so registry-assigned codes follow the file.
func ImportAssets(ctx context.Context, sink AssetSink, r io.Reader, opts ImportOptions) (ImportSummary, error) {
	summary := ImportSummary{
		DryRun: opts.DryRun,
		Sheets: []SheetSummary{},
	}

	if opts.Mapping == nil {
		opts.Mapping = DefaultMapping()
	}
	if opts.MaxErrors <= 0 {
		opts.MaxErrors = 50
	}

	// xlsx needs random access; read everything first
	data, err := io.ReadAll(r)
	if err != nil {
		return summary, fmt.Errorf("failed to read Excel file: %w", err)
	}

	xlFile, err := xlsx.OpenBinary(data)
	if err != nil {
		return summary, fmt.Errorf("failed to open Excel file: %w", err)
	}

	for _, sheet := range xlFile.Sheets {
		sheetConfig, ok := opts.Mapping.SheetFor(sheet.Name)
		if !ok {
			continue // Skip sheets without mapping
		}

		sheetSummary, err := processSheet(ctx, sink, sheet, sheetConfig, opts, opts.MaxErrors-summary.Errors)
		summary.Sheets = append(summary.Sheets, sheetSummary)

		summary.Inserted += sheetSummary.Inserted
		summary.Skipped += sheetSummary.Skipped
		summary.Errors += sheetSummary.Errors

		if err != nil {
			return summary, err
		}
	}

	return summary, nil
}

func processSheet(ctx context.Context, sink AssetSink, sheet *xlsx.Sheet, config SheetConfig, opts ImportOptions, budget int) (SheetSummary, error) {
	summary := SheetSummary{Name: sheet.Name}

	fail := func(row int, msg string) error {
		summary.Errors++
		if len(summary.Samples) < maxSamples {
			summary.Samples = append(summary.Samples, RowError{Sheet: sheet.Name, Row: row, Message: msg})
		}
		if summary.Errors > budget {
			return fmt.Errorf("%w (%d), stopping import", ErrTooManyErrors, summary.Errors)
		}
		return nil
	}

	if sheet.MaxRow == 0 {
		return summary, nil
	}

	headers := make([]string, sheet.MaxCol)
	for c := 0; c < sheet.MaxCol; c++ {
		headers[c] = cellValue(sheet, 0, c)
	}
	columns, err := config.resolve(headers)
	if err != nil {
		return summary, fail(1, err.Error())
	}

	for r := 1; r < sheet.MaxRow; r++ {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		values := make(map[string]string, len(columns))
		empty := true
		for field, c := range columns {
			v := cellValue(sheet, r, c)
			if v != "" {
				empty = false
			}
			values[field] = v
		}
		if empty {
			summary.Skipped++
			continue
		}

		row, err := config.build(values)
		if err != nil {
			if stop := fail(r+1, err.Error()); stop != nil {
				return summary, stop
			}
			continue
		}

		if opts.DryRun {
			summary.Inserted++
			continue
		}

		code, err := sink.CreateAsset(ctx, row)
		if err != nil {
			if stop := fail(r+1, err.Error()); stop != nil {
				return summary, stop
			}
			continue
		}
		summary.Inserted++
		summary.Codes = append(summary.Codes, code)
	}

	return summary, nil
}

func cellValue(sheet *xlsx.Sheet, row, col int) string {
	cell, err := sheet.Cell(row, col)
	if err != nil || cell == nil {
		return ""
	}
	return strings.TrimSpace(cell.String())
}
