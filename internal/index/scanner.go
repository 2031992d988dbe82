package index

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/textproto"
	"lukechampine.com/blake3"

	"github.com/joshsymonds/mailtagger/internal/mailstore"
)

// DefaultNewTags are applied to messages seen for the first time.
var DefaultNewTags = []string{"new", "inbox", "unread"}

// ScanResult summarizes one Maildir scan.
type ScanResult struct {
	Seen    int `json:"seen"`
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Scanner indexes the messages of a Maildir tree.
type Scanner struct {
	Index   *Index
	NewTags []string
	Logger  *slog.Logger
}

// NewScanner returns a Scanner tagging new messages with newTags, or
// DefaultNewTags when newTags is empty.
func NewScanner(idx *Index, newTags []string, logger *slog.Logger) *Scanner {
	if len(newTags) == 0 {
		newTags = DefaultNewTags
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scanner{Index: idx, NewTags: newTags, Logger: logger}
}

// Scan walks every new/ and cur/ directory below root and indexes messages
// not seen before. Unreadable messages are logged and counted as failed.
func (s *Scanner) Scan(ctx context.Context, root string) (ScanResult, error) {
	var res ScanResult
	root = filepath.Clean(root)
	if _, err := os.Stat(root); err != nil {
		return res, fmt.Errorf("scan maildir: %w", err)
	}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "tmp" {
				return filepath.SkipDir
			}
			return nil
		}
		if !isMaildirMessage(path, d) {
			return nil
		}
		res.Seen++
		msg, err := ReadMessage(path, s.NewTags)
		if err != nil {
			res.Failed++
			s.Logger.WarnContext(ctx, "skipping unreadable message", slog.String("path", path), slog.Any("error", err))
			return nil
		}
		added, err := s.Index.Put(ctx, msg, path)
		if err != nil {
			return err
		}
		if !added {
			res.Skipped++
			return nil
		}
		res.Added++
		s.Logger.DebugContext(ctx, "indexed message",
			slog.String("message", msg.ID.Short(20)),
			slog.String("subject", msg.Header("Subject")),
		)
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("scan maildir %s: %w", root, err)
	}
	s.Logger.InfoContext(ctx, "maildir scanned",
		slog.String("root", root),
		slog.Int("seen", res.Seen),
		slog.Int("added", res.Added),
		slog.Int("skipped", res.Skipped),
		slog.Int("failed", res.Failed),
	)
	return res, nil
}

func isMaildirMessage(path string, d fs.DirEntry) bool {
	if !d.Type().IsRegular() || strings.HasPrefix(d.Name(), ".") {
		return false
	}
	parent := filepath.Base(filepath.Dir(path))
	return parent == "new" || parent == "cur"
}

// ReadMessage parses the header of the message file at path. The message ID
// is the Message-Id header without angle brackets, or a blake3 digest of the
// file when the header is missing. Tags start from newTags adjusted by the
// Maildir info flags in the file name.
func ReadMessage(path string, newTags []string) (mailstore.Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return mailstore.Message{}, fmt.Errorf("read message: %w", err)
	}
	h, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(data)))
	if err != nil {
		return mailstore.Message{}, fmt.Errorf("parse header %s: %w", path, err)
	}

	headers := map[string]string{}
	mh := message.Header{Header: h}
	fields := mh.Fields()
	for fields.Next() {
		key := fields.Key()
		if _, seen := headers[key]; seen {
			continue
		}
		value, textErr := fields.Text()
		if textErr != nil {
			value = fields.Value()
		}
		headers[key] = value
	}

	id := strings.Trim(strings.TrimSpace(headers["Message-Id"]), "<>")
	if id == "" {
		sum := blake3.Sum256(data)
		id = "blake3-" + hex.EncodeToString(sum[:16])
	}
	return mailstore.NewMessage(mailstore.MessageID(id), headers, flagTags(filepath.Base(path), newTags)), nil
}

// flagTags applies Maildir info flags ("name:2,FRS") to the new-message
// tags: S drops unread, F, R and D add flagged, replied and draft.
func flagTags(name string, newTags []string) []string {
	tags := slices.Clone(newTags)
	idx := strings.LastIndex(name, ":2,")
	if idx == -1 {
		return tags
	}
	for _, flag := range name[idx+3:] {
		switch flag {
		case 'S':
			tags = slices.DeleteFunc(tags, func(t string) bool { return t == "unread" })
		case 'F':
			tags = appendMissing(tags, "flagged")
		case 'R':
			tags = appendMissing(tags, "replied")
		case 'D':
			tags = appendMissing(tags, "draft")
		}
	}
	return tags
}

func appendMissing(tags []string, tag string) []string {
	if slices.Contains(tags, tag) {
		return tags
	}
	return append(tags, tag)
}
