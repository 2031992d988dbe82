package tagger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/joshsymonds/mailtagger/internal/mailstore"
)

const (
	// DefaultQuery selects messages that have not been retagged yet.
	DefaultQuery    = "tag:new"
	DefaultNewTag   = "new"
	DefaultInboxTag = "inbox"

	idDisplayLimit = 20
)

// Options controls a retag run.
type Options struct {
	Query  string
	DryRun bool
	// SeedInbox seeds every message with "+inbox" before the filters run, so
	// only an explicit "-inbox" directive keeps a message out of the inbox.
	SeedInbox bool
	NewTag    string
	InboxTag  string
}

func (o Options) withDefaults() Options {
	if o.Query == "" {
		o.Query = DefaultQuery
	}
	if o.NewTag == "" {
		o.NewTag = DefaultNewTag
	}
	if o.InboxTag == "" {
		o.InboxTag = DefaultInboxTag
	}
	return o
}

// Recorder receives run statistics. A nil Recorder disables recording.
type Recorder interface {
	MessageProcessed(inbox bool)
	TagApplied(kind OpKind, dryRun bool)
	RunFinished(sum Summary)
}

// Service retags the messages of a mail store.
type Service struct {
	Store    mailstore.Store
	Logger   *slog.Logger
	Recorder Recorder
}

// NewService constructs a Service with sane defaults.
func NewService(store mailstore.Store, logger *slog.Logger, recorder Recorder) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Service{Store: store, Logger: logger, Recorder: recorder}
}

// Run validates filters, then retags every message matched by opts.Query.
//
// Validation errors abort the run before the store is searched. A store error
// halts the run at the failing message; tags already applied to earlier
// messages stay applied.
func (s *Service) Run(ctx context.Context, filters []Filter, opts Options) (Summary, error) {
	opts = opts.withDefaults()
	rules, err := s.compile(ctx, filters, opts.InboxTag)
	if err != nil {
		return Summary{}, err
	}

	ids, err := s.Store.Search(ctx, mailstore.Query{Raw: opts.Query})
	if err != nil {
		return Summary{}, fmt.Errorf("search %q: %w", opts.Query, err)
	}
	s.Logger.InfoContext(ctx, "retagging messages",
		slog.String("query", opts.Query),
		slog.Int("count", len(ids)),
		slog.Bool("dry_run", opts.DryRun),
	)

	sum := Summary{DryRun: opts.DryRun}
	for _, id := range ids {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return sum, fmt.Errorf("retag interrupted: %w", ctxErr)
		}
		ops, retagErr := s.retag(ctx, id, rules, opts)
		if retagErr != nil {
			return sum, retagErr
		}
		inbox := !slices.Contains(ops, Remove(opts.InboxTag))
		sum.Total++
		if inbox {
			sum.Inbox++
		}
		for _, op := range ops {
			if op.Kind == OpAdd {
				sum.Added++
			} else {
				sum.Removed++
			}
		}
		if s.Recorder != nil {
			s.Recorder.MessageProcessed(inbox)
		}
	}

	s.Logger.InfoContext(ctx, "retag finished",
		slog.Int("total", sum.Total),
		slog.Int("inbox", sum.Inbox),
		slog.Bool("dry_run", opts.DryRun),
	)
	if s.Recorder != nil {
		s.Recorder.RunFinished(sum)
	}
	return sum, nil
}

func (s *Service) compile(ctx context.Context, filters []Filter, inboxTag string) ([]Rule, error) {
	rules, warnings, err := CompileFor(filters, inboxTag)
	for _, w := range warnings {
		s.Logger.WarnContext(ctx, "filter has no effect",
			slog.String("filter", w.Filter),
			slog.String("warning", w.Message),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("validate filters: %w", err)
	}
	return rules, nil
}

// retag plans and applies the operations for one message, returning the
// reduced operation list.
func (s *Service) retag(
	ctx context.Context,
	id mailstore.MessageID,
	rules []Rule,
	opts Options,
) ([]Directive, error) {
	msg, err := s.Store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}
	s.Logger.InfoContext(ctx, "processing message",
		slog.String("message", id.Short(idDisplayLimit)),
		slog.String("subject", msg.Header("Subject")),
	)

	ops := Reduce(Plan(msg, rules, opts))
	for _, op := range ops {
		if applyErr := s.apply(ctx, id, op, opts.DryRun); applyErr != nil {
			return nil, applyErr
		}
	}
	return ops, nil
}

// Plan returns the unreduced directive list for msg: the bookkeeping seed
// followed by the directives of every matching rule.
func Plan(msg mailstore.Message, rules []Rule, opts Options) []Directive {
	opts = opts.withDefaults()
	var ds []Directive
	if opts.SeedInbox {
		ds = append(ds, Add(opts.InboxTag))
	}
	if msg.HasTag(opts.NewTag) {
		ds = append(ds, Remove(opts.NewTag))
	}
	return append(ds, Collect(msg, rules)...)
}

func (s *Service) apply(ctx context.Context, id mailstore.MessageID, op Directive, dryRun bool) error {
	var (
		verb string
		err  error
	)
	switch op.Kind {
	case OpAdd:
		verb = "added tag"
		if !dryRun {
			err = s.Store.AddTag(ctx, id, op.Tag)
		}
	case OpRemove:
		verb = "removed tag"
		if !dryRun {
			err = s.Store.RemoveTag(ctx, id, op.Tag)
		}
	default:
		return fmt.Errorf("unknown operation %v for tag %q", op.Kind, op.Tag)
	}
	if err != nil {
		return fmt.Errorf("%s tag %q on %s: %w", op.Kind, op.Tag, id, err)
	}
	if dryRun {
		verb = "[DRY RUN] " + verb
	}
	s.Logger.InfoContext(ctx, verb,
		slog.String("message", id.Short(idDisplayLimit)),
		slog.String("op", op.Kind.String()),
		slog.String("tag", op.Tag),
		slog.Bool("dry_run", dryRun),
	)
	if s.Recorder != nil {
		s.Recorder.TagApplied(op.Kind, dryRun)
	}
	return nil
}
