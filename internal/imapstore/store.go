// Package imapstore serves one IMAP mailbox as a mailstore.Store. Message
// IDs are UIDs and tags are IMAP flags: keywords map one to one and system
// flags appear lower-cased without the backslash, so \Seen is "seen".
package imapstore

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/textproto"

	"github.com/joshsymonds/mailtagger/internal/mailstore"
	"github.com/joshsymonds/mailtagger/internal/rate"
)

// Config selects the server and mailbox.
type Config struct {
	Addr     string
	Username string
	Password string
	Mailbox  string
	TLS      bool
	// ReadOnly selects the mailbox with EXAMINE; tag changes then fail.
	ReadOnly bool
}

// Store is an IMAP-backed mailstore.Store bound to one selected mailbox.
// It is not safe for concurrent use.
type Store struct {
	c       *client.Client
	limiter rate.Limiter
	logger  *slog.Logger
}

var systemFlags = map[string]string{
	"seen":     imap.SeenFlag,
	"answered": imap.AnsweredFlag,
	"flagged":  imap.FlaggedFlag,
	"deleted":  imap.DeletedFlag,
	"draft":    imap.DraftFlag,
}

// Dial connects, logs in and selects cfg.Mailbox.
func Dial(ctx context.Context, cfg Config, limiter rate.Limiter, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := rate.Wait(ctx, limiter); err != nil {
		return nil, err
	}
	var (
		c   *client.Client
		err error
	)
	if cfg.TLS {
		c, err = client.DialTLS(cfg.Addr, nil)
	} else {
		c, err = client.Dial(cfg.Addr)
	}
	if err != nil {
		return nil, fmt.Errorf("dial imap %s: %w", cfg.Addr, err)
	}
	if err := c.Login(cfg.Username, cfg.Password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("imap login as %s: %w", cfg.Username, err)
	}
	mailbox := cfg.Mailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	status, err := c.Select(mailbox, cfg.ReadOnly)
	if err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("select %s: %w", mailbox, err)
	}
	logger.InfoContext(ctx, "imap mailbox selected",
		slog.String("addr", cfg.Addr),
		slog.String("mailbox", mailbox),
		slog.Int("messages", int(status.Messages)),
		slog.Bool("read_only", status.ReadOnly),
	)
	return &Store{c: c, limiter: limiter, logger: logger}, nil
}

// Close logs out.
func (s *Store) Close() error {
	if err := s.c.Logout(); err != nil && !errors.Is(err, client.ErrAlreadyLoggedOut) {
		return fmt.Errorf("imap logout: %w", err)
	}
	return nil
}

func (s *Store) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return rate.Wait(ctx, s.limiter)
}

// Search runs q as a UID SEARCH and returns UIDs in ascending order.
func (s *Store) Search(ctx context.Context, q mailstore.Query) ([]mailstore.MessageID, error) {
	terms, err := mailstore.ParseQuery(q.Raw)
	if err != nil {
		return nil, err
	}
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	uids, err := s.c.UidSearch(Criteria(terms))
	if err != nil {
		return nil, fmt.Errorf("imap search %q: %w", q.Raw, err)
	}
	ids := make([]mailstore.MessageID, 0, len(uids))
	for _, uid := range uids {
		ids = append(ids, mailstore.MessageID(strconv.FormatUint(uint64(uid), 10)))
	}
	return ids, nil
}

// Criteria translates search terms to IMAP search criteria.
func Criteria(terms []mailstore.Term) *imap.SearchCriteria {
	root := imap.NewSearchCriteria()
	for _, t := range terms {
		c := root
		if t.Negated {
			c = imap.NewSearchCriteria()
		}
		switch t.Kind {
		case mailstore.TermAll:
			if !t.Negated {
				continue
			}
		case mailstore.TermTag:
			c.WithFlags = append(c.WithFlags, tagFlag(t.Value))
		case mailstore.TermID:
			c.Header.Add("Message-Id", t.Value)
		default:
			c.Header.Add(t.Kind.Header(), t.Value)
		}
		if t.Negated {
			root.Not = append(root.Not, c)
		}
	}
	return root
}

// Get fetches the flags and header of a message without marking it seen.
func (s *Store) Get(ctx context.Context, id mailstore.MessageID) (mailstore.Message, error) {
	set, err := uidSet(id)
	if err != nil {
		return mailstore.Message{}, err
	}
	if err := s.wait(ctx); err != nil {
		return mailstore.Message{}, err
	}
	section := &imap.BodySectionName{
		BodyPartName: imap.BodyPartName{Specifier: imap.HeaderSpecifier},
		Peek:         true,
	}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchFlags, section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.c.UidFetch(set, items, messages)
	}()
	var fetched *imap.Message
	for m := range messages {
		fetched = m
	}
	if err := <-done; err != nil {
		return mailstore.Message{}, fmt.Errorf("imap fetch %s: %w", id, err)
	}
	if fetched == nil {
		return mailstore.Message{}, fmt.Errorf("%s: %w", id, mailstore.ErrNotFound)
	}

	headers := map[string]string{}
	if body := fetched.GetBody(section); body != nil {
		h, err := textproto.ReadHeader(bufio.NewReader(body))
		if err != nil {
			return mailstore.Message{}, fmt.Errorf("parse header of %s: %w", id, err)
		}
		mh := message.Header{Header: h}
		fields := mh.Fields()
		for fields.Next() {
			if _, seen := headers[fields.Key()]; seen {
				continue
			}
			value, textErr := fields.Text()
			if textErr != nil {
				value = fields.Value()
			}
			headers[fields.Key()] = value
		}
	}
	tags := make([]string, 0, len(fetched.Flags))
	for _, f := range fetched.Flags {
		tags = append(tags, FlagTag(f))
	}
	return mailstore.NewMessage(id, headers, tags), nil
}

// AddTag sets the flag for tag.
func (s *Store) AddTag(ctx context.Context, id mailstore.MessageID, tag string) error {
	return s.store(ctx, id, imap.AddFlags, tag)
}

// RemoveTag clears the flag for tag.
func (s *Store) RemoveTag(ctx context.Context, id mailstore.MessageID, tag string) error {
	return s.store(ctx, id, imap.RemoveFlags, tag)
}

func (s *Store) store(ctx context.Context, id mailstore.MessageID, op imap.FlagsOp, tag string) error {
	set, err := uidSet(id)
	if err != nil {
		return err
	}
	if err := s.wait(ctx); err != nil {
		return err
	}
	item := imap.FormatFlagsOp(op, true)
	if err := s.c.UidStore(set, item, []interface{}{tagFlag(tag)}, nil); err != nil {
		return fmt.Errorf("imap store %s %s: %w", item, tag, err)
	}
	return nil
}

// FlagTag returns the tag name of an IMAP flag.
func FlagTag(flag string) string {
	if strings.HasPrefix(flag, `\`) {
		return strings.ToLower(flag[1:])
	}
	return flag
}

func tagFlag(tag string) string {
	if f, ok := systemFlags[strings.ToLower(tag)]; ok {
		return f
	}
	return tag
}

func uidSet(id mailstore.MessageID) (*imap.SeqSet, error) {
	uid, err := strconv.ParseUint(string(id), 10, 32)
	if err != nil || uid == 0 {
		return nil, fmt.Errorf("invalid imap uid %q: %w", id, mailstore.ErrNotFound)
	}
	set := new(imap.SeqSet)
	set.AddNum(uint32(uid))
	return set, nil
}

var _ mailstore.Store = (*Store)(nil)
