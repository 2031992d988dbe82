package runtime

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/gmail/v1"

	"github.com/joshsymonds/mailtagger/internal/mailstore"
	"github.com/joshsymonds/mailtagger/internal/rate"
)

const (
	gmailUser     = "me"
	gmailPageSize = 500
)

// GmailStore adapts *gmail.Service to mailstore.Store. Gmail labels act as
// tags; system labels such as INBOX and UNREAD appear as lower-case tags.
type GmailStore struct {
	svc     *gmail.Service
	limiter rate.Limiter

	labelIDs map[string]string // tag -> label ID
	tags     map[string]string // label ID -> tag
}

// NewGmailStore wraps svc. A nil limiter disables pacing.
func NewGmailStore(svc *gmail.Service, limiter rate.Limiter) *GmailStore {
	return &GmailStore{svc: svc, limiter: limiter}
}

// Search lists the IDs of all messages matching q, following every page.
func (g *GmailStore) Search(ctx context.Context, q mailstore.Query) ([]mailstore.MessageID, error) {
	terms, err := mailstore.ParseQuery(q.Raw)
	if err != nil {
		return nil, err
	}
	gq := GmailQuery(terms)

	var (
		ids   []mailstore.MessageID
		token string
	)
	for {
		if err := rate.Wait(ctx, g.limiter); err != nil {
			return nil, err
		}
		call := g.svc.Users.Messages.List(gmailUser).MaxResults(gmailPageSize)
		if gq != "" {
			call = call.Q(gq)
		}
		if token != "" {
			call = call.PageToken(token)
		}
		res, err := call.Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("list messages %q: %w", gq, err)
		}
		for _, m := range res.Messages {
			ids = append(ids, mailstore.MessageID(m.Id))
		}
		token = res.NextPageToken
		if token == "" {
			return ids, nil
		}
	}
}

// Get fetches the headers and labels of one message.
func (g *GmailStore) Get(ctx context.Context, id mailstore.MessageID) (mailstore.Message, error) {
	if err := g.loadLabels(ctx); err != nil {
		return mailstore.Message{}, err
	}
	if err := rate.Wait(ctx, g.limiter); err != nil {
		return mailstore.Message{}, err
	}
	msg, err := g.svc.Users.Messages.Get(gmailUser, string(id)).Format("metadata").Context(ctx).Do()
	if err != nil {
		return mailstore.Message{}, fmt.Errorf("get message: %w", err)
	}
	headers := map[string]string{}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			if _, seen := headers[h.Name]; !seen {
				headers[h.Name] = h.Value
			}
		}
	}
	tags := make([]string, 0, len(msg.LabelIds))
	for _, lid := range msg.LabelIds {
		if tag, ok := g.tags[lid]; ok {
			tags = append(tags, tag)
		}
	}
	return mailstore.NewMessage(id, headers, tags), nil
}

// AddTag applies the label for tag, creating a user label when none exists.
func (g *GmailStore) AddTag(ctx context.Context, id mailstore.MessageID, tag string) error {
	lid, err := g.ensureLabel(ctx, tag)
	if err != nil {
		return err
	}
	return g.modify(ctx, id, &gmail.ModifyMessageRequest{AddLabelIds: []string{lid}})
}

// RemoveTag removes the label for tag. A tag without a label is already absent.
func (g *GmailStore) RemoveTag(ctx context.Context, id mailstore.MessageID, tag string) error {
	if err := g.loadLabels(ctx); err != nil {
		return err
	}
	lid, ok := g.labelIDs[tag]
	if !ok {
		return nil
	}
	return g.modify(ctx, id, &gmail.ModifyMessageRequest{RemoveLabelIds: []string{lid}})
}

func (g *GmailStore) modify(ctx context.Context, id mailstore.MessageID, req *gmail.ModifyMessageRequest) error {
	if err := rate.Wait(ctx, g.limiter); err != nil {
		return err
	}
	if _, err := g.svc.Users.Messages.Modify(gmailUser, string(id), req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("modify message: %w", err)
	}
	return nil
}

func (g *GmailStore) loadLabels(ctx context.Context) error {
	if g.labelIDs != nil {
		return nil
	}
	if err := rate.Wait(ctx, g.limiter); err != nil {
		return err
	}
	lr, err := g.svc.Users.Labels.List(gmailUser).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("list labels: %w", err)
	}
	g.labelIDs = make(map[string]string, len(lr.Labels))
	g.tags = make(map[string]string, len(lr.Labels))
	for _, l := range lr.Labels {
		tag := LabelTag(l)
		g.labelIDs[tag] = l.Id
		g.tags[l.Id] = tag
	}
	return nil
}

func (g *GmailStore) ensureLabel(ctx context.Context, tag string) (string, error) {
	if err := g.loadLabels(ctx); err != nil {
		return "", err
	}
	if lid, ok := g.labelIDs[tag]; ok {
		return lid, nil
	}
	if err := rate.Wait(ctx, g.limiter); err != nil {
		return "", err
	}
	created, err := g.svc.Users.Labels.Create(gmailUser, &gmail.Label{
		Name:                  tag,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create label %q: %w", tag, err)
	}
	g.labelIDs[tag] = created.Id
	g.tags[created.Id] = tag
	return created.Id, nil
}

// LabelTag returns the tag name of a Gmail label.
func LabelTag(l *gmail.Label) string {
	if l.Type == "system" {
		return strings.ToLower(l.Name)
	}
	return l.Name
}

// GmailQuery renders search terms in Gmail search syntax. The match-all term
// renders as nothing, so "*" alone lists every message.
func GmailQuery(terms []mailstore.Term) string {
	parts := make([]string, 0, len(terms))
	for _, t := range terms {
		var op string
		switch t.Kind {
		case mailstore.TermAll:
			if t.Negated {
				// Nothing matches; Gmail has no literal for that.
				parts = append(parts, "-in:anywhere")
			}
			continue
		case mailstore.TermTag:
			op = "label:"
		case mailstore.TermID:
			op = "rfc822msgid:"
		default:
			op = t.Kind.String() + ":"
		}
		value := t.Value
		if t.Kind == mailstore.TermTag {
			value = strings.NewReplacer(" ", "-", "/", "-").Replace(value)
		}
		if strings.ContainsAny(value, " \t") {
			value = `"` + value + `"`
		}
		prefix := ""
		if t.Negated {
			prefix = "-"
		}
		parts = append(parts, prefix+op+value)
	}
	return strings.Join(parts, " ")
}

var _ mailstore.Store = (*GmailStore)(nil)
