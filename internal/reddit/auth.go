package reddit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Scopes requested by the web authorization flow.
var Scopes = []string{"identity", "read", "mysubreddits"}

const (
	stateNamespace = "reddit"
	keyToken       = "token"
)

// StateStore persists the user token. *opstate.Store satisfies it.
type StateStore interface {
	GetJSON(namespace, key string, v any) (bool, error)
	SetJSON(namespace, key string, v any) error
	Delete(namespace, key string) error
}

// AuthMode describes which credential an HTTP client was built from.
type AuthMode string

const (
	// ModeUser uses a stored web-flow token with a refresh token.
	ModeUser AuthMode = "user"
	// ModePassword uses the script-app password grant.
	ModePassword AuthMode = "password"
	// ModeApp uses application-only client credentials.
	ModeApp AuthMode = "app"
)

// Authenticated reports whether the mode acts on behalf of a user.
func (m AuthMode) Authenticated() bool { return m == ModeUser || m == ModePassword }

// Auth issues authenticated HTTP clients for the Reddit API.
type Auth struct {
	cfg    Config
	oauth  *oauth2.Config
	store  StateStore
	base   *http.Client
	logger *slog.Logger

	mu     sync.Mutex
	client *http.Client
	mode   AuthMode
}

// NewAuth creates an Auth. base carries the user agent and timeouts
// for both token and API requests.
func NewAuth(cfg Config, store StateStore, base *http.Client, logger *slog.Logger) *Auth {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auth{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		store:  store,
		base:   base,
		logger: logger,
	}
}

// AuthCodeURL returns the authorization URL for the web flow. The
// permanent duration makes Reddit issue a refresh token.
func (a *Auth) AuthCodeURL(state string) string {
	return a.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("duration", "permanent"))
}

// Exchange trades an authorization code for a token and stores it.
// Later clients use the stored token.
func (a *Auth) Exchange(ctx context.Context, code string) error {
	tok, err := a.oauth.Exchange(a.tokenContext(ctx), code)
	if err != nil {
		return fmt.Errorf("exchange reddit code: %w", err)
	}
	if tok.RefreshToken == "" {
		return errors.New("reddit returned no refresh token; authorization must use duration=permanent")
	}
	if err := a.store.SetJSON(stateNamespace, keyToken, tok); err != nil {
		return fmt.Errorf("store reddit token: %w", err)
	}

	a.mu.Lock()
	a.client = nil
	a.mu.Unlock()

	a.logger.Info("reddit authorization stored")
	return nil
}

// Forget removes the stored user token.
func (a *Auth) Forget() error {
	a.mu.Lock()
	a.client = nil
	a.mu.Unlock()
	return a.store.Delete(stateNamespace, keyToken)
}

// Client returns an HTTP client that authorizes API requests, choosing
// the stored user token, then the password grant, then application
// credentials.
func (a *Auth) Client(ctx context.Context) (*http.Client, AuthMode, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client != nil {
		return a.client, a.mode, nil
	}

	tctx := a.tokenContext(context.WithoutCancel(ctx))

	var stored oauth2.Token
	ok, err := a.store.GetJSON(stateNamespace, keyToken, &stored)
	if err != nil {
		return nil, "", fmt.Errorf("load reddit token: %w", err)
	}

	switch {
	case ok && stored.RefreshToken != "":
		src := &persistingSource{
			src:   a.oauth.TokenSource(tctx, &stored),
			store: a.store,
			last:  stored.AccessToken,
		}
		a.client, a.mode = oauth2.NewClient(tctx, oauth2.ReuseTokenSource(&stored, src)), ModeUser

	case a.cfg.Username != "":
		tok, err := a.oauth.PasswordCredentialsToken(a.tokenContext(ctx), a.cfg.Username, a.cfg.Password)
		if err != nil {
			return nil, "", fmt.Errorf("reddit password grant: %w", err)
		}
		a.client, a.mode = a.oauth.Client(tctx, tok), ModePassword

	default:
		cc := &clientcredentials.Config{
			ClientID:     a.cfg.ClientID,
			ClientSecret: a.cfg.ClientSecret,
			TokenURL:     a.cfg.TokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		}
		a.client, a.mode = cc.Client(tctx), ModeApp
	}

	a.logger.Debug("reddit client ready", "mode", a.mode)
	return a.client, a.mode, nil
}

// tokenContext makes the oauth2 package use the base client.
func (a *Auth) tokenContext(ctx context.Context) context.Context {
	if a.base == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, a.base)
}

// persistingSource writes refreshed tokens back to the store.
type persistingSource struct {
	src   oauth2.TokenSource
	store StateStore

	mu   sync.Mutex
	last string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.src.Token()
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken != p.last {
		p.last = tok.AccessToken
		if err := p.store.SetJSON(stateNamespace, keyToken, tok); err != nil {
			return nil, fmt.Errorf("persist refreshed reddit token: %w", err)
		}
	}
	return tok, nil
}
