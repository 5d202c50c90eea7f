package ingest

import (
	"fmt"
	"io"
	"strings"
)

// FormatSummary writes the human-readable report printed by the ingest CLI.
func FormatSummary(w io.Writer, s Stats) {
	rule := strings.Repeat("-", 40)
	fmt.Fprintln(w, "Ingestion Results:")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "   Total rows processed: %d\n", s.Total)
	fmt.Fprintf(w, "   New records inserted: %d\n", s.Inserted)
	fmt.Fprintf(w, "   Records updated:      %d\n", s.Updated)
	fmt.Fprintf(w, "   Rows skipped:         %d\n", s.Skipped)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "   DB records before:    %d\n", s.CountBefore)
	fmt.Fprintf(w, "   DB records after:     %d\n", s.CountAfter)

	if len(s.Errors) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Validation Errors:")
		for _, e := range s.Errors {
			fmt.Fprintf(w, "   * %s\n", e)
		}
	}
}
