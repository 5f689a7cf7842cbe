// Package cli provides output formatting for the Toi command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/hyperjump/toi/internal/models"
	"github.com/hyperjump/toi/pkg/utils"
)

// OutputFormat is the format for CLI output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat validates an output format string.
func ParseFormat(s string) (OutputFormat, error) {
	switch s {
	case "", "text":
		return OutputText, nil
	case "json":
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// WriteQueryResults writes query results to w in the given format.
func WriteQueryResults(w io.Writer, response *models.QueryResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	fmt.Fprintf(w, "\nFound %d results in %.2fms (index size: %d)\n\n",
		len(response.Results), response.QueryTimeMS, response.TotalDocuments)
	if response.Message != "" {
		fmt.Fprintln(w, response.Message)
	}
	for i, result := range response.Results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Score: %.4f\n", i+1, result.Score)
		fmt.Fprintf(w, "ID: %s | Topic: %s | Type: %s", result.ID, result.Topic, result.Type)
		if result.Marks != nil {
			fmt.Fprintf(w, " | Marks: %d", *result.Marks)
		}
		if result.PaperID != "" {
			fmt.Fprintf(w, " | Paper: %s", result.PaperID)
		}
		fmt.Fprintf(w, "\n\n%s\n\n", utils.Truncate(result.Text, 200))
	}
	return nil
}

// WriteStats writes index statistics to w in the given format.
func WriteStats(w io.Writer, stats *models.StatsResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, stats)
	}
	fmt.Fprintf(w, "documents:           %d   # vectors in the index\n", stats.TotalDocuments)
	fmt.Fprintf(w, "archived_questions:  %d   # rows in the question archive\n", stats.ArchivedQuestion)
	fmt.Fprintf(w, "total_ingestions:    %d\n", stats.TotalIngestions)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "# index")
	fmt.Fprintf(w, "kind:       %s\n", stats.IndexKind)
	fmt.Fprintf(w, "dimension:  %d\n", stats.Dimension)
	fmt.Fprintf(w, "trained:    %t\n", stats.Trained)
	if stats.EmbeddingModel != "" {
		fmt.Fprintf(w, "model:      %s\n", stats.EmbeddingModel)
	}
	if stats.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage_bytes: %d\n", *stats.DiskUsageBytes)
	}
	return nil
}

// WriteIngestResult writes an ingest summary to w in the given format.
func WriteIngestResult(w io.Writer, resp *models.IngestResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "status:     %s\n", resp.Status)
	if resp.Message != "" {
		fmt.Fprintf(w, "message:    %s\n", resp.Message)
	}
	fmt.Fprintf(w, "ingested:   %d (processed %d, chunks %d)\n",
		resp.DocumentsIngested, resp.DocumentsProcessed, resp.ChunksCreated)
	fmt.Fprintf(w, "index size: %d\n", resp.IndexSize)
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
