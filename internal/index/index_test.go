package index

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshsymonds/mailtagger/internal/mailstore"
)

func openTestIndex(t *testing.T) (*Index, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := Open(context.Background(), path, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx, path
}

func putMessage(t *testing.T, idx *Index, id, from, subject string, tags ...string) {
	t.Helper()
	msg := mailstore.NewMessage(mailstore.MessageID(id), map[string]string{
		"From":    from,
		"Subject": subject,
	}, tags)
	added, err := idx.Put(context.Background(), msg, "/mail/"+id)
	require.NoError(t, err)
	require.True(t, added)
}

func TestIndexSearch(t *testing.T) {
	idx, _ := openTestIndex(t)
	ctx := context.Background()
	putMessage(t, idx, "a@x", "Alice <alice@example.com>", "Weekly Report", "new", "inbox")
	putMessage(t, idx, "b@x", "Bob <bob@example.org>", "lunch?", "inbox")
	putMessage(t, idx, "c@x", "alice@example.com", "invoice", "new")

	cases := []struct {
		query string
		want  []mailstore.MessageID
	}{
		{"tag:new", []mailstore.MessageID{"a@x", "c@x"}},
		{"*", []mailstore.MessageID{"a@x", "b@x", "c@x"}},
		{"from:ALICE tag:inbox", []mailstore.MessageID{"a@x"}},
		{"-tag:new", []mailstore.MessageID{"b@x"}},
		{`subject:"weekly report"`, []mailstore.MessageID{"a@x"}},
		{"id:b@x", []mailstore.MessageID{"b@x"}},
		{"tag:missing", nil},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			ids, err := idx.Search(ctx, mailstore.Query{Raw: tc.query})
			require.NoError(t, err)
			assert.Equal(t, tc.want, ids)
		})
	}
}

func TestIndexSearchRejectsBadQuery(t *testing.T) {
	idx, _ := openTestIndex(t)
	_, err := idx.Search(context.Background(), mailstore.Query{Raw: "tag:a or tag:b"})
	require.Error(t, err)
}

func TestIndexTagsAreIdempotent(t *testing.T) {
	idx, _ := openTestIndex(t)
	ctx := context.Background()
	putMessage(t, idx, "a@x", "alice@example.com", "hi", "new")

	require.NoError(t, idx.AddTag(ctx, "a@x", "work"))
	require.NoError(t, idx.AddTag(ctx, "a@x", "work"))
	require.NoError(t, idx.RemoveTag(ctx, "a@x", "new"))
	require.NoError(t, idx.RemoveTag(ctx, "a@x", "new"))

	msg, err := idx.Get(ctx, "a@x")
	require.NoError(t, err)
	assert.Equal(t, []string{"work"}, msg.Tags)
	assert.Equal(t, "hi", msg.Header("subject"))
}

func TestIndexUnknownMessage(t *testing.T) {
	idx, _ := openTestIndex(t)
	ctx := context.Background()

	_, err := idx.Get(ctx, "nope")
	assert.True(t, errors.Is(err, mailstore.ErrNotFound), "get: %v", err)
	err = idx.AddTag(ctx, "nope", "x")
	assert.True(t, errors.Is(err, mailstore.ErrNotFound), "add: %v", err)
	err = idx.RemoveTag(ctx, "nope", "x")
	assert.True(t, errors.Is(err, mailstore.ErrNotFound), "remove: %v", err)
}

func TestIndexPutKeepsExisting(t *testing.T) {
	idx, _ := openTestIndex(t)
	ctx := context.Background()
	putMessage(t, idx, "a@x", "alice@example.com", "first", "new")

	dup := mailstore.NewMessage("a@x", map[string]string{"Subject": "second"}, []string{"other"})
	added, err := idx.Put(ctx, dup, "/elsewhere")
	require.NoError(t, err)
	assert.False(t, added)

	msg, err := idx.Get(ctx, "a@x")
	require.NoError(t, err)
	assert.Equal(t, "first", msg.Header("Subject"))
	assert.Equal(t, []string{"new"}, msg.Tags)
}

func TestIndexReadOnly(t *testing.T) {
	idx, path := openTestIndex(t)
	ctx := context.Background()
	putMessage(t, idx, "a@x", "alice@example.com", "hi", "new")
	require.NoError(t, idx.Close())

	ro, err := Open(ctx, path, Options{ReadOnly: true})
	require.NoError(t, err)
	defer ro.Close()

	ids, err := ro.Search(ctx, mailstore.Query{Raw: "tag:new"})
	require.NoError(t, err)
	assert.Equal(t, []mailstore.MessageID{"a@x"}, ids)
	assert.ErrorIs(t, ro.AddTag(ctx, "a@x", "work"), ErrReadOnly)
}

func TestOpenReadOnlyMissingFile(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "absent.db"), Options{ReadOnly: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
