package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/joshsymonds/mailtagger/internal/config"
	"github.com/joshsymonds/mailtagger/internal/imapstore"
	"github.com/joshsymonds/mailtagger/internal/index"
	"github.com/joshsymonds/mailtagger/internal/mailstore"
	"github.com/joshsymonds/mailtagger/internal/notmuch"
	"github.com/joshsymonds/mailtagger/internal/rate"
)

// OpenedStore is a configured backend plus the resources to release after use.
type OpenedStore struct {
	mailstore.Store
	closers []io.Closer
}

// Close releases the backend and its rate limiter.
func (o *OpenedStore) Close() error {
	var errs []error
	for i := len(o.closers) - 1; i >= 0; i-- {
		if err := o.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type stopCloser struct{ bucket *rate.TokenBucket }

func (s stopCloser) Close() error {
	s.bucket.Stop()
	return nil
}

func limiterFor(rps int, closers *[]io.Closer) rate.Limiter {
	if rps <= 0 {
		return nil
	}
	bucket := rate.NewTokenBucket(rps)
	*closers = append(*closers, stopCloser{bucket})
	return bucket
}

// OpenStore opens the backend named by cfg.Store.Backend. readOnly opens the
// index read-only, requests the Gmail read-only scope and EXAMINEs the IMAP
// mailbox. A read-only notmuch store refuses tag changes.
func OpenStore(ctx context.Context, cfg config.Config, readOnly bool, logger *slog.Logger) (*OpenedStore, error) {
	opened := &OpenedStore{}
	switch cfg.Store.Backend {
	case config.BackendIndex:
		idx, err := index.Open(ctx, cfg.Index.Path, index.Options{ReadOnly: readOnly, Logger: logger})
		if err != nil {
			return nil, err
		}
		opened.Store = idx
		opened.closers = append(opened.closers, idx)
	case config.BackendGmail:
		scope := ScopeModify
		if readOnly {
			scope = ScopeReadonly
		}
		svc, err := NewGmailService(ctx, cfg.Gmail.ConfigDir, scope)
		if err != nil {
			return nil, fmt.Errorf("create gmail client: %w", err)
		}
		opened.Store = NewGmailStore(svc, limiterFor(cfg.Gmail.RPS, &opened.closers))
	case config.BackendIMAP:
		limiter := limiterFor(cfg.IMAP.RPS, &opened.closers)
		store, err := imapstore.Dial(ctx, imapstore.Config{
			Addr:     cfg.IMAP.Addr,
			Username: cfg.IMAP.Username,
			Password: cfg.IMAP.Password,
			Mailbox:  cfg.IMAP.Mailbox,
			TLS:      cfg.IMAP.TLS,
			ReadOnly: readOnly,
		}, limiter, logger)
		if err != nil {
			_ = opened.Close()
			return nil, err
		}
		opened.Store = store
		opened.closers = append(opened.closers, store)
	case config.BackendNotmuch:
		opened.Store = &notmuch.Store{
			Binary:   cfg.Notmuch.Binary,
			Config:   cfg.Notmuch.Config,
			ReadOnly: readOnly,
		}
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	return opened, nil
}
