// Package notmuch drives a notmuch database through the notmuch command line
// tool, so retag runs operate on the same tags the user's mail client sees.
package notmuch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/joshsymonds/mailtagger/internal/mailstore"
)

// ErrReadOnly is returned by tag changes on a store opened read-only.
var ErrReadOnly = errors.New("notmuch store opened read-only")

// Store shells out to the notmuch binary for every operation.
type Store struct {
	// Binary defaults to "notmuch" on $PATH.
	Binary string
	// Config is exported as NOTMUCH_CONFIG when set.
	Config   string
	ReadOnly bool
}

// Search returns the message IDs matching q.Raw, which is passed to notmuch
// unchanged.
func (s *Store) Search(ctx context.Context, q mailstore.Query) ([]mailstore.MessageID, error) {
	if strings.TrimSpace(q.Raw) == "" {
		return nil, mailstore.ErrEmptyQuery
	}
	out, err := s.run(ctx, "search", "--format=json", "--output=messages", q.Raw)
	if err != nil {
		return nil, err
	}
	var raw []string
	if decodeErr := json.Unmarshal(out, &raw); decodeErr != nil {
		return nil, fmt.Errorf("decode notmuch search output: %w", decodeErr)
	}
	ids := make([]mailstore.MessageID, len(raw))
	for i, id := range raw {
		ids[i] = mailstore.MessageID(id)
	}
	return ids, nil
}

// showMessage is the subset of a `notmuch show --format=json` message we use.
type showMessage struct {
	ID      string            `json:"id"`
	Tags    []string          `json:"tags"`
	Headers map[string]string `json:"headers"`
}

// Get loads the headers and tags of one message.
func (s *Store) Get(ctx context.Context, id mailstore.MessageID) (mailstore.Message, error) {
	out, err := s.run(ctx, "show", "--format=json", "--body=false", "--entire-thread=false", idTerm(id))
	if err != nil {
		return mailstore.Message{}, err
	}
	found, ok, err := findMessage(out, string(id))
	if err != nil {
		return mailstore.Message{}, fmt.Errorf("decode notmuch show output: %w", err)
	}
	if !ok {
		return mailstore.Message{}, fmt.Errorf("%w: %s", mailstore.ErrNotFound, id)
	}
	return mailstore.NewMessage(id, found.Headers, found.Tags), nil
}

// findMessage walks the thread/reply nesting of show output for the message
// with the given ID.
func findMessage(data json.RawMessage, id string) (showMessage, bool, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return showMessage{}, false, nil
	}
	switch data[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return showMessage{}, false, err
		}
		for _, item := range items {
			m, ok, err := findMessage(item, id)
			if err != nil || ok {
				return m, ok, err
			}
		}
	case '{':
		var m showMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return showMessage{}, false, err
		}
		if m.ID == id {
			return m, true, nil
		}
	}
	return showMessage{}, false, nil
}

func (s *Store) AddTag(ctx context.Context, id mailstore.MessageID, tag string) error {
	return s.tag(ctx, id, "+"+tag)
}

func (s *Store) RemoveTag(ctx context.Context, id mailstore.MessageID, tag string) error {
	return s.tag(ctx, id, "-"+tag)
}

func (s *Store) tag(ctx context.Context, id mailstore.MessageID, op string) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	_, err := s.run(ctx, "tag", op, "--", idTerm(id))
	return err
}

func (s *Store) run(ctx context.Context, args ...string) ([]byte, error) {
	bin := s.Binary
	if bin == "" {
		bin = "notmuch"
	}
	cmd := exec.CommandContext(ctx, bin, args...) // #nosec G204 - binary determined by user config
	if strings.TrimSpace(s.Config) != "" {
		cmd.Env = append(os.Environ(), "NOTMUCH_CONFIG="+s.Config)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf(
			"run notmuch %s: %w (output: %s)",
			args[0],
			err,
			strings.TrimSpace(stderr.String()),
		)
	}
	return out, nil
}

// idTerm quotes id as a notmuch id: term; embedded quotes are doubled.
func idTerm(id mailstore.MessageID) string {
	return `id:"` + strings.ReplaceAll(string(id), `"`, `""`) + `"`
}

var _ mailstore.Store = (*Store)(nil)
