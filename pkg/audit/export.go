package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

var csvHeader = []string{
	"ID",
	"Cluster Name",
	"Cluster URL",
	"User ID",
	"Operation ID",
	"HTTP Method",
	"Path",
	"Response Status",
	"Error Message",
	"Client IP",
	"Timestamp",
}

// Render encodes entries in the requested format
func Render(entries []*Entry, format ExportFormat) ([]byte, error) {
	switch format {
	case ExportFormatJSON:
		return exportJSON(entries)
	case ExportFormatNDJSON:
		return exportNDJSON(entries)
	default:
		return exportCSV(entries)
	}
}

// ExportFilename returns the attachment name for an export taken at t
func ExportFilename(format ExportFormat, t time.Time) string {
	return fmt.Sprintf("audit_logs_%s.%s", t.UTC().Format("20060102_150405"), format)
}

// exportJSON exports entries as a JSON array
func exportJSON(entries []*Entry) ([]byte, error) {
	return json.MarshalIndent(entries, "", "  ")
}

// exportNDJSON exports entries as newline-delimited JSON
func exportNDJSON(entries []*Entry) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)

	for _, entry := range entries {
		if err := encoder.Encode(entry); err != nil {
			return nil, fmt.Errorf("failed to encode entry: %w", err)
		}
	}

	return buf.Bytes(), nil
}

// exportCSV exports entries as CSV
func exportCSV(entries []*Entry) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, entry := range entries {
		row := []string{
			strconv.FormatInt(entry.ID, 10),
			csvText(entry.ClusterName),
			csvText(entry.ClusterURL),
			formatInt64Ptr(entry.UserID),
			csvText(entry.OperationID),
			csvText(entry.HTTPMethod),
			csvText(entry.Path),
			formatIntPtr(entry.ResponseStatus),
			csvText(entry.ErrorMessage),
			csvText(entry.ClientIP),
			entry.Timestamp.UTC().Format(time.RFC3339),
		}

		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// csvText quotes caller-controlled text so spreadsheets do not evaluate it as a formula
func csvText(s string) string {
	if s == "" {
		return s
	}
	switch s[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + s
	}
	return s
}

// formatInt64Ptr formats an int64 pointer as string, returning empty string for nil
func formatInt64Ptr(val *int64) string {
	if val == nil {
		return ""
	}
	return strconv.FormatInt(*val, 10)
}

func formatIntPtr(val *int) string {
	if val == nil {
		return ""
	}
	return strconv.Itoa(*val)
}
