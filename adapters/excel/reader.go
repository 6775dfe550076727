package excel

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"abtrust/domain/experiment"
	"abtrust/internal/errors"

	"github.com/xuri/excelize/v2"
)

// CountsReader reads per-variant totals from an Excel or CSV file. The sheet needs a
// header row with variant, n and successes columns (any order, case-insensitive).
type CountsReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
}

// NewCountsReader creates a reader that handles both Excel and CSV files
func NewCountsReader(filePath string) *CountsReader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "xlsx"
	if ext == ".csv" {
		fileType = "csv"
	}
	return &CountsReader{filePath: filePath, fileType: fileType}
}

// ReadCounts returns the A and B totals in the file
func (r *CountsReader) ReadCounts() (experiment.AggregateCounts, error) {
	data, err := r.ReadSheet()
	if err != nil {
		return experiment.AggregateCounts{}, err
	}
	return countsFromSheet(data)
}

// ReadSheet reads the Counts sheet (or the first sheet) of a workbook, or a whole CSV file
func (r *CountsReader) ReadSheet() (*SheetData, error) {
	log.Printf("[CountsReader] Reading %s file: %s", r.fileType, r.filePath)

	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, errors.NotFound(fmt.Sprintf("%s file %s", strings.ToUpper(r.fileType), r.filePath))
	}

	switch r.fileType {
	case "csv":
		return r.readCSVData()
	default:
		return r.readExcelData()
	}
}

func (r *CountsReader) readExcelData() (*SheetData, error) {
	start := time.Now()
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheet := SheetCounts
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		sheet = f.GetSheetName(0)
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	log.Printf("[CountsReader] Sheet %s read in %.2fms (%d rows)", sheet, float64(time.Since(start).Nanoseconds())/1e6, len(rows))

	return processRows(rows)
}

func (r *CountsReader) readCSVData() (*SheetData, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, errors.InvalidInput(fmt.Sprintf("failed to read CSV file: %v", err))
	}
	return processRows(rows)
}

// processRows converts raw string rows into SheetData keyed by lower-cased header
func processRows(rows [][]string) (*SheetData, error) {
	if len(rows) < 2 {
		return nil, errors.InvalidInput("file must have a header row and at least one data row")
	}

	headers := make([]string, len(rows[0]))
	for i, header := range rows[0] {
		headers[i] = strings.ToLower(strings.TrimSpace(header))
	}

	data := &SheetData{Headers: headers}
	for _, row := range rows[1:] {
		rowData := make(RawRowData, len(headers))
		for j, cell := range row {
			if j < len(headers) {
				rowData[headers[j]] = strings.TrimSpace(cell)
			}
		}
		data.Rows = append(data.Rows, rowData)
	}
	return data, nil
}

func countsFromSheet(data *SheetData) (experiment.AggregateCounts, error) {
	var (
		counts experiment.AggregateCounts
		seenA  bool
		seenB  bool
	)

	for i, row := range data.Rows {
		variant := experiment.Variant(strings.ToUpper(row["variant"]))
		if variant != experiment.VariantA && variant != experiment.VariantB {
			continue
		}

		n, err := strconv.Atoi(row["n"])
		if err != nil {
			return experiment.AggregateCounts{}, errors.InvalidInput(fmt.Sprintf("row %d: invalid n %q", i+2, row["n"]))
		}
		successes, err := strconv.Atoi(row["successes"])
		if err != nil {
			return experiment.AggregateCounts{}, errors.InvalidInput(fmt.Sprintf("row %d: invalid successes %q", i+2, row["successes"]))
		}

		group := experiment.GroupCounts{N: n, Successes: successes}
		if variant == experiment.VariantA {
			counts.A, seenA = group, true
		} else {
			counts.B, seenB = group, true
		}
	}

	if !seenA || !seenB {
		return experiment.AggregateCounts{}, errors.InvalidInput("file must contain a row for variant A and variant B")
	}
	if err := counts.Validate(); err != nil {
		return experiment.AggregateCounts{}, err
	}
	return counts, nil
}
