package tagger

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Summary reports the outcome of a retag run.
type Summary struct {
	Inbox   int  `json:"inbox"`
	Total   int  `json:"total"`
	Added   int  `json:"added"`
	Removed int  `json:"removed"`
	DryRun  bool `json:"dry_run"`
}

// WriteHuman renders the summary as the one-line CLI report.
func (s Summary) WriteHuman(w io.Writer) error {
	var builder strings.Builder
	if s.Total > 0 {
		fmt.Fprintf(&builder, "\nsuccessfully retagged %d new messages", s.Total)
	} else {
		builder.WriteString("no new messages found")
	}
	builder.WriteString("\n")
	if _, err := io.WriteString(w, builder.String()); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

// WriteJSON renders the summary as an indented JSON document.
func (s Summary) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return nil
}
