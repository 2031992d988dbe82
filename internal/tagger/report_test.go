package tagger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestSummaryWriteHuman(t *testing.T) {
	tests := []struct {
		name string
		sum  Summary
		want string
	}{
		{name: "none", sum: Summary{}, want: "no new messages found\n"},
		{name: "some", sum: Summary{Total: 3, Inbox: 1}, want: "\nsuccessfully retagged 3 new messages\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := tt.sum.WriteHuman(&buf); err != nil {
				t.Fatalf("write: %v", err)
			}
			if buf.String() != tt.want {
				t.Fatalf("got %q want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestSummaryWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := (Summary{Total: 2, Inbox: 1, DryRun: true}).WriteJSON(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.Contains(buf.String(), "\n    \"inbox\": 1,") {
		t.Fatalf("expected 4-space indentation:\n%s", buf.String())
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["total"] != float64(2) || decoded["dry_run"] != true {
		t.Fatalf("unexpected payload %v", decoded)
	}
}
