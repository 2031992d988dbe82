package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Filters.Path == "" {
		errs = append(errs, errors.New("filters.path is required"))
	}
	if strings.TrimSpace(c.Retag.Query) == "" {
		errs = append(errs, errors.New("retag.query must not be empty"))
	}
	if !validTag(c.Retag.NewTag) {
		errs = append(errs, fmt.Errorf("retag.new_tag %q is not a valid tag", c.Retag.NewTag))
	}
	if !validTag(c.Retag.InboxTag) {
		errs = append(errs, fmt.Errorf("retag.inbox_tag %q is not a valid tag", c.Retag.InboxTag))
	}

	switch c.Store.Backend {
	case BackendIndex:
		if c.Index.Path == "" {
			errs = append(errs, errors.New("index.path is required for the index backend"))
		}
	case BackendGmail:
		if c.Gmail.ConfigDir == "" {
			errs = append(errs, errors.New("gmail.config_dir is required for the gmail backend"))
		}
	case BackendIMAP:
		if _, _, err := net.SplitHostPort(c.IMAP.Addr); err != nil {
			errs = append(errs, fmt.Errorf("imap.addr %q must be host:port: %w", c.IMAP.Addr, err))
		}
		if c.IMAP.Username == "" {
			errs = append(errs, errors.New("imap.username is required for the imap backend"))
		}
		if c.IMAP.Mailbox == "" {
			errs = append(errs, errors.New("imap.mailbox is required for the imap backend"))
		}
	case BackendNotmuch:
		if strings.TrimSpace(c.Notmuch.Binary) == "" {
			errs = append(errs, errors.New("notmuch.binary is required for the notmuch backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend %q must be one of %s, %s, %s, %s",
			c.Store.Backend, BackendIndex, BackendGmail, BackendIMAP, BackendNotmuch))
	}
	for _, tag := range c.Index.NewTags {
		if !validTag(tag) {
			errs = append(errs, fmt.Errorf("index.new_tags entry %q is not a valid tag", tag))
		}
	}
	if c.Gmail.RPS < 0 {
		errs = append(errs, errors.New("gmail.rps must not be negative"))
	}
	if c.IMAP.RPS < 0 {
		errs = append(errs, errors.New("imap.rps must not be negative"))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q must be debug, info, warn or error", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q must be text or json", c.Logging.Format))
	}

	return errors.Join(errs...)
}

func validTag(tag string) bool {
	return tag != "" && !strings.ContainsAny(tag, " \t\n") && !strings.HasPrefix(tag, "+") && !strings.HasPrefix(tag, "-")
}
