package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/zgpcy/azure-openai-token-report/internal/period"
)

// Header is the fixed CSV column order
var Header = []string{
	"ID",
	"DeploymentName",
	"ModelName",
	"Processed Inference Tokens (Sum)",
	"Month",
	"Subscription Id",
	"Subscription Name",
	"Kind",
}

// ErrBadHeader is returned by ReadCSV for files not written by WriteCSV
var ErrBadHeader = errors.New("unexpected CSV header")

// FileName embeds the month and generation time so runs never overwrite
// each other, e.g. azure_openai_tokens_January_2026_20260203_101500.csv
func FileName(p period.Period, generatedAt time.Time) string {
	return fmt.Sprintf("azure_openai_tokens_%s_%s.csv", p.FileLabel(), generatedAt.Format("20060102_150405"))
}

// WriteCSV writes the header and one line per row
func WriteCSV(w io.Writer, rows []UsageRow) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.ResourceID,
			row.DeploymentName,
			row.ModelName,
			strconv.FormatInt(row.TotalTokens, 10),
			row.Month,
			row.SubscriptionID,
			row.SubscriptionName,
			row.Kind,
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteCSVFile writes the report into dir and returns the file path. A
// report without rows still produces a header-only file.
func WriteCSVFile(dir string, r *Report) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(dir, FileName(r.Period, r.GeneratedAt))
	// #nosec G304 -- path is built from the configured output directory
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create CSV file: %w", err)
	}

	if err := WriteCSV(file, r.Rows); err != nil {
		_ = file.Close()
		return "", err
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("failed to close CSV file: %w", err)
	}
	return path, nil
}

// ReadCSV parses a file produced by WriteCSV. Only the CSV columns are
// restored; resource name and the input/output split are not part of the file.
func ReadCSV(r io.Reader) ([]UsageRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(Header)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	for i, col := range Header {
		if header[i] != col {
			return nil, fmt.Errorf("%w: column %d is %q, want %q", ErrBadHeader, i, header[i], col)
		}
	}

	var rows []UsageRow
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row: %w", err)
		}

		total, err := strconv.ParseInt(record[3], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid token count %q: %w", record[3], err)
		}
		rows = append(rows, UsageRow{
			ResourceID:       record[0],
			DeploymentName:   record[1],
			ModelName:        record[2],
			TotalTokens:      total,
			Month:            record[4],
			SubscriptionID:   record[5],
			SubscriptionName: record[6],
			Kind:             record[7],
		})
	}
}

// ErrVerifyMismatch is returned when a written CSV does not match its report
var ErrVerifyMismatch = errors.New("CSV does not match report")

// VerifyCSVFile re-reads a written report and compares row count and token
// total with r
func VerifyCSVFile(path string, r *Report) error {
	// #nosec G304 -- path was returned by WriteCSVFile
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	rows, err := ReadCSV(file)
	if err != nil {
		return err
	}
	if len(rows) != len(r.Rows) {
		return fmt.Errorf("%w: %d rows written, %d expected", ErrVerifyMismatch, len(rows), len(r.Rows))
	}

	var total int64
	for _, row := range rows {
		total += row.TotalTokens
	}
	if total != r.Totals.Tokens {
		return fmt.Errorf("%w: %d tokens written, %d expected", ErrVerifyMismatch, total, r.Totals.Tokens)
	}
	return nil
}
