// Command analyze runs the anomaly engine over a batch of extracted documents
// and writes the findings as CSV. Input is either an XLSX sheet (one document
// per row, field names in the header row) or a JSONL file (one flat field
// object per line).
// Usage: go run ./cmd/analyze -input expenses.xlsx [-sheet Sheet1] [-output findings.csv]
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"ledgerlens/internal/anomaly"
	"ledgerlens/internal/config"
	"ledgerlens/internal/csvexport"
	"ledgerlens/internal/domain"
)

type document struct {
	id     string
	fields map[string]any
}

func main() {
	input := flag.String("input", "", "path to an .xlsx or .jsonl file of extracted documents")
	sheet := flag.String("sheet", "", "XLSX sheet name (default: first sheet)")
	output := flag.String("output", "", "findings CSV path (default: findings_<date>.csv)")
	flag.Parse()

	if *input == "" {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(*input, *sheet, *output); err != nil {
		log.Fatal(err)
	}
}

func run(input, sheet, output string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	engine, err := anomaly.NewEngine(cfg, nil, nil)
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	docs, err := readDocuments(input, sheet)
	if err != nil {
		return err
	}

	records := make([]csvexport.Record, 0, len(docs))
	flagged := 0
	duplicatePairs := 0
	for _, doc := range docs {
		result := engine.Analyze(doc.id, doc.fields)
		if len(result.Anomalies) > 0 {
			flagged++
		}
		duplicatePairs += len(result.Duplicates)
		records = append(records, csvexport.Record{
			DocumentID:      doc.id,
			Vendor:          result.Profile.VendorRaw,
			CanonicalVendor: result.Profile.VendorCanonical,
			IssueDate:       result.Profile.IssueDateText,
			Amount:          result.Profile.Amount,
			TaxAmount:       result.Profile.TaxAmount,
			Currency:        result.Profile.Currency,
			Category:        result.Profile.Category,
			Anomalies:       result.Anomalies,
			Duplicates:      result.Duplicates,
		})
	}

	if output == "" {
		output = csvexport.BuildFilename("findings")
	}
	if err := writeFindings(output, records); err != nil {
		return err
	}

	log.Printf("analyze: processed %d documents, %d with findings, %d duplicate pair(s), wrote %s",
		len(docs), flagged, duplicatePairs, output)
	return nil
}

func readDocuments(input, sheet string) ([]document, error) {
	switch strings.ToLower(filepath.Ext(input)) {
	case ".xlsx":
		return readXLSX(input, sheet)
	case ".jsonl", ".ndjson":
		return readJSONL(input)
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedInput, input)
	}
}

func readXLSX(path, sheet string) ([]document, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := make([]string, len(rows[0]))
	for i, cell := range rows[0] {
		header[i] = strings.ToLower(strings.TrimSpace(cell))
	}

	docs := make([]document, 0, len(rows)-1)
	for _, row := range rows[1:] {
		fields := make(map[string]any, len(header))
		for i, cell := range row {
			if i >= len(header) || header[i] == "" {
				continue
			}
			fields[header[i]] = cell
		}
		docs = append(docs, document{id: documentID(fields), fields: fields})
	}
	return docs, nil
}

func readJSONL(path string) ([]document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening input: %w", err)
	}
	defer func() { _ = f.Close() }()

	var docs []document
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var fields map[string]any
		if err := json.Unmarshal([]byte(text), &fields); err != nil {
			log.Printf("analyze: skipping line %d: %v", line, err)
			continue
		}
		docs = append(docs, document{id: documentID(fields), fields: fields})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	return docs, nil
}

// documentID returns the row's own document_id when present, otherwise a
// fresh one. Rows without stable ids cannot be deduplicated across runs.
func documentID(fields map[string]any) string {
	if id := strings.TrimSpace(stringField(fields, "document_id")); id != "" {
		return id
	}
	return uuid.NewString()
}

func writeFindings(path string, records []csvexport.Record) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output: %w", err)
	}
	defer func() { _ = out.Close() }()

	if _, err := out.Write(csvexport.BOM); err != nil {
		return fmt.Errorf("writing BOM: %w", err)
	}
	w := csvexport.NewWriter(out)
	if err := w.WriteHeader(); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if err := w.WriteRecords(records); err != nil {
		return fmt.Errorf("writing records: %w", err)
	}
	w.Flush()
	return w.Error()
}

func stringField(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
