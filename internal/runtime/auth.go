package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// Scope selects the Gmail permission requested during authorization.
type Scope int

const (
	ScopeReadonly Scope = iota
	ScopeModify
)

func (s Scope) url() string {
	if s == ScopeModify {
		return gmail.GmailModifyScope
	}
	return gmail.GmailReadonlyScope
}

// Files inside the Gmail config directory. credentials.json is shared with
// gmailctl; the token is kept separate because it needs message scopes.
const (
	CredentialsFile = "credentials.json"
	TokenFile       = "mailtagger-token.json"
)

// ErrNoToken means the config directory has no saved token yet.
var ErrNoToken = errors.New("no saved gmail token, run with -gmail-auth first")

func oauthConfig(cfgDir string, scope Scope) (*oauth2.Config, error) {
	b, err := os.ReadFile(filepath.Join(cfgDir, CredentialsFile))
	if err != nil {
		return nil, fmt.Errorf("read client credentials: %w", err)
	}
	cfg, err := google.ConfigFromJSON(b, scope.url())
	if err != nil {
		return nil, fmt.Errorf("parse client credentials: %w", err)
	}
	return cfg, nil
}

// NewGmailService returns a Gmail API client authorized with the token saved
// in cfgDir.
func NewGmailService(ctx context.Context, cfgDir string, scope Scope) (*gmail.Service, error) {
	cfg, err := oauthConfig(cfgDir, scope)
	if err != nil {
		return nil, err
	}
	tok, err := tokenFromFile(filepath.Join(cfgDir, TokenFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoToken
		}
		return nil, err
	}
	svc, err := gmail.NewService(ctx, option.WithTokenSource(cfg.TokenSource(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return svc, nil
}

// Authorize runs the interactive OAuth flow: it prints the consent URL to
// out, reads the authorization code from in and saves the token in cfgDir.
func Authorize(ctx context.Context, cfgDir string, scope Scope, in io.Reader, out io.Writer) error {
	cfg, err := oauthConfig(cfgDir, scope)
	if err != nil {
		return err
	}
	authURL := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Fprintf(out, "Go to the following link in your browser, then paste the authorization code:\n%s\n", authURL)

	var code string
	if _, err := fmt.Fscan(in, &code); err != nil {
		return fmt.Errorf("read authorization code: %w", err)
	}
	tok, err := cfg.Exchange(ctx, strings.TrimSpace(code))
	if err != nil {
		return fmt.Errorf("exchange authorization code: %w", err)
	}
	return saveToken(filepath.Join(cfgDir, TokenFile), tok)
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open token: %w", err)
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("decode token %s: %w", path, err)
	}
	return tok, nil
}

func saveToken(path string, tok *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	return nil
}
