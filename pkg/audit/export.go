package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
)

// ExportFormat selects how events are written out
type ExportFormat string

const (
	FormatJSON   ExportFormat = "json"
	FormatCSV    ExportFormat = "csv"
	FormatNDJSON ExportFormat = "ndjson"
)

// ParseFormat returns the export format named by s; empty means JSON
func ParseFormat(s string) (ExportFormat, error) {
	switch ExportFormat(s) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCSV, FormatNDJSON:
		return ExportFormat(s), nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// ContentType returns the MIME type for the format
func (f ExportFormat) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv"
	case FormatNDJSON:
		return "application/x-ndjson"
	default:
		return "application/json"
	}
}

// WriteNDJSON writes one JSON object per line
func WriteNDJSON(w io.Writer, events []Event) error {
	encoder := json.NewEncoder(w)
	for i := range events {
		if err := encoder.Encode(&events[i]); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
	return nil
}

var csvHeader = []string{
	"id", "occurred_at", "event_type", "status", "actor_id", "tenant_id",
	"resource_type", "resource_id", "request_id", "ip_address", "method", "path", "status_code",
}

// WriteCSV writes events as CSV with a header row. Metadata is omitted.
func WriteCSV(w io.Writer, events []Event) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, event := range events {
		row := []string{
			strconv.FormatInt(event.ID, 10),
			event.OccurredAt.UTC().Format(time.RFC3339),
			string(event.EventType),
			string(event.Status),
			formatInt64Ptr(event.ActorID),
			formatInt64Ptr(event.TenantID),
			string(event.ResourceType),
			event.ResourceID,
			event.RequestID,
			event.IPAddress,
			event.Method,
			event.Path,
			strconv.Itoa(event.StatusCode),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}
	return nil
}

// formatInt64Ptr formats an int64 pointer as string, returning empty string for nil
func formatInt64Ptr(val *int64) string {
	if val == nil {
		return ""
	}
	return strconv.FormatInt(*val, 10)
}
