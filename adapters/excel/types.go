package excel

// RawRowData represents a row of raw spreadsheet data as header/value pairs
type RawRowData map[string]string

// SheetData represents one sheet of a workbook or a CSV file
type SheetData struct {
	Headers []string     // Column headers
	Rows    []RawRowData // Data rows
}

// Sheet names used by the report workbook
const (
	SheetSummary     = "Summary"
	SheetCounts      = "Counts"
	SheetChecks      = "Checks"
	SheetPlan        = "Plan"
	SheetCalibration = "Calibration"
)
