package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/joshsymonds/mailtagger/internal/tagger"
)

func TestRunRecorder(t *testing.T) {
	run := NewRun()
	run.MessageProcessed(true)
	run.MessageProcessed(false)
	run.TagApplied(tagger.OpAdd, false)
	run.TagApplied(tagger.OpRemove, false)
	run.TagApplied(tagger.OpRemove, true)
	run.RunFinished(tagger.Summary{Total: 2, Inbox: 1})

	if got := testutil.ToFloat64(run.MessagesProcessed); got != 2 {
		t.Fatalf("messages processed = %v", got)
	}
	if got := testutil.ToFloat64(run.InboxMessages); got != 1 {
		t.Fatalf("inbox messages = %v", got)
	}
	if got := testutil.ToFloat64(run.TagOperations.WithLabelValues("remove", "false")); got != 1 {
		t.Fatalf("remove ops = %v", got)
	}
	if got := testutil.ToFloat64(run.TagOperations.WithLabelValues("remove", "true")); got != 1 {
		t.Fatalf("dry-run remove ops = %v", got)
	}
	if got := testutil.ToFloat64(run.LastRun); got <= 0 {
		t.Fatalf("last run timestamp not set: %v", got)
	}
}

func TestInboxGaugeCountsOncePerMessage(t *testing.T) {
	run := NewRun()
	run.MessageProcessed(true)
	run.MessageProcessed(true)
	run.MessageProcessed(false)

	if got := testutil.ToFloat64(run.InboxMessages); got != 2 {
		t.Fatalf("inbox messages before finish = %v", got)
	}
	run.RunFinished(tagger.Summary{Total: 3, Inbox: 2})
	if got := testutil.ToFloat64(run.InboxMessages); got != 2 {
		t.Fatalf("inbox messages after finish = %v", got)
	}
	if got := testutil.ToFloat64(run.LastRun); got <= 0 {
		t.Fatalf("last run timestamp not set: %v", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	run := NewRun()
	run.MessageProcessed(true)
	path := filepath.Join(t.TempDir(), "mailtagger.prom")

	if err := run.WriteTextfile(path); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "mailtagger_messages_processed_total 1") {
		t.Fatalf("unexpected textfile:\n%s", data)
	}
}
