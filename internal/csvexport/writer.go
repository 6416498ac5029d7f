package csvexport

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// UTF-8 BOM bytes for Excel compatibility on Windows.
var BOM = []byte{0xEF, 0xBB, 0xBF}

// columns defines the CSV header row (10 columns).
var columns = []string{
	"Document ID",
	"Vendor",
	"Canonical Vendor",
	"Issue Date",
	"Amount",
	"Tax Amount",
	"Currency",
	"Category",
	"Anomalies",
	"Duplicate Of",
}

// Record is one analyzed document as it appears in the findings export.
type Record struct {
	DocumentID      string
	Vendor          string
	CanonicalVendor string
	IssueDate       string
	Amount          *float64
	TaxAmount       *float64
	Currency        string
	Category        string
	Anomalies       []string
	Duplicates      []string
}

// Writer wraps csv.Writer for exporting analysis findings as CSV.
type Writer struct {
	csv *csv.Writer
}

// NewWriter creates a Writer that writes CSV to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{csv: csv.NewWriter(w)}
}

// WriteHeader writes the 10-column header row.
func (w *Writer) WriteHeader() error {
	return w.csv.Write(columns)
}

// WriteRecords converts a batch of records to CSV rows and writes them.
func (w *Writer) WriteRecords(records []Record) error {
	for i := range records {
		if err := w.csv.Write(recordToRow(&records[i])); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes the underlying csv.Writer buffer.
func (w *Writer) Flush() {
	w.csv.Flush()
}

// Error returns any error from the underlying csv.Writer.
func (w *Writer) Error() error {
	return w.csv.Error()
}

// recordToRow converts a single record to a 10-element string slice. Missing
// amounts are left as empty cells; findings and ids are joined with "; ".
func recordToRow(rec *Record) []string {
	row := make([]string, len(columns))
	row[0] = rec.DocumentID
	row[1] = rec.Vendor
	row[2] = rec.CanonicalVendor
	row[3] = rec.IssueDate
	row[4] = formatMoney(rec.Amount)
	row[5] = formatMoney(rec.TaxAmount)
	row[6] = rec.Currency
	row[7] = rec.Category
	row[8] = strings.Join(rec.Anomalies, "; ")
	row[9] = strings.Join(rec.Duplicates, "; ")
	return row
}

func formatMoney(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

// nonAlphanumeric matches characters that are not alphanumeric, hyphen, or underscore.
var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// multiUnderscore matches consecutive underscores.
var multiUnderscore = regexp.MustCompile(`_{2,}`)

// SanitizeFilename cleans a report name for use as a filename. Replaces
// non-alphanumeric chars (except - _) with _, collapses consecutive
// underscores, and truncates to 100 chars.
func SanitizeFilename(name string) string {
	s := nonAlphanumeric.ReplaceAllString(name, "_")
	s = multiUnderscore.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}

// BuildFilename returns a sanitized findings filename.
// Format: {sanitized_name}_{YYYY-MM-DD}.csv
func BuildFilename(name string) string {
	sanitized := SanitizeFilename(name)
	date := time.Now().Format("2006-01-02")
	return fmt.Sprintf("%s_%s.csv", sanitized, date)
}
