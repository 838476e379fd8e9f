package trakt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/bequbed/jellyfin-trakt-sync/models"
)

// AuthErrorKind classifies why a usable credential could not be obtained.
type AuthErrorKind int

const (
	AuthDeviceCodeUnavailable AuthErrorKind = iota + 1
	AuthDenied
	AuthTimeout
	AuthRefreshFailed
)

func (k AuthErrorKind) String() string {
	switch k {
	case AuthDeviceCodeUnavailable:
		return "device code unavailable"
	case AuthDenied:
		return "authorization denied"
	case AuthTimeout:
		return "authorization timed out"
	case AuthRefreshFailed:
		return "token refresh failed"
	default:
		return "unknown auth error"
	}
}

// AuthError is fatal for a run: nothing may be reported without a credential.
type AuthError struct {
	Kind AuthErrorKind
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return "trakt auth: " + e.Kind.String()
	}
	return fmt.Sprintf("trakt auth: %s: %v", e.Kind, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is matches any AuthError of the same kind, so callers can compare against
// the sentinels below with errors.Is.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Kind == e.Kind
}

var (
	ErrDeviceCodeUnavailable = &AuthError{Kind: AuthDeviceCodeUnavailable}
	ErrDenied                = &AuthError{Kind: AuthDenied}
	ErrTimeout               = &AuthError{Kind: AuthTimeout}
	ErrRefreshFailed         = &AuthError{Kind: AuthRefreshFailed}
)

// OAuthClient is the subset of the Trakt API the broker drives.
type OAuthClient interface {
	GetDeviceCode(ctx context.Context) (*DeviceCodeResponse, error)
	PollForToken(ctx context.Context, deviceCode string) (*TokenResponse, error)
	RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenResponse, error)
}

// Prompter shows the device code to whoever has to approve it.
type Prompter interface {
	ShowDeviceCode(code DeviceCodeResponse)
	// Waiting is called after every poll that is still pending.
	Waiting()
}

// ConsolePrompter prints the device code instructions to a terminal.
type ConsolePrompter struct {
	Out io.Writer
}

func (p ConsolePrompter) ShowDeviceCode(code DeviceCodeResponse) {
	fmt.Fprintf(p.Out, "\n==== Trakt Authentication ====\n")
	fmt.Fprintf(p.Out, "Please go to: %s\n", code.VerificationURL)
	fmt.Fprintf(p.Out, "And enter the code: %s\n", code.UserCode)
	fmt.Fprintln(p.Out, "Waiting for authorization...")
}

func (p ConsolePrompter) Waiting() {
	fmt.Fprint(p.Out, ".")
}

// Broker keeps the Trakt credential usable: it reuses a valid token, refreshes
// a stale one, and falls back to the device authorization flow.
type Broker struct {
	client   OAuthClient
	store    *TokenStore
	clock    Clock
	prompter Prompter
}

func NewBroker(client OAuthClient, store *TokenStore, clock Clock, prompter Prompter) *Broker {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Broker{client: client, store: store, clock: clock, prompter: prompter}
}

// EnsureAuthenticated returns a usable credential or an *AuthError. A valid
// credential is returned unchanged without touching the network; a rejected
// refresh token falls through to a fresh device grant.
func (b *Broker) EnsureAuthenticated(ctx context.Context, cred models.Credential) (models.Credential, error) {
	if cred.Usable(b.clock.Now()) {
		log.Printf("[trakt] using existing token (expires %s)", cred.ExpiresAt.Format(time.RFC3339))
		return cred, nil
	}

	if cred.RefreshToken != "" {
		log.Printf("[trakt] attempting token refresh")
		refreshed, err := b.Refresh(ctx, cred)
		if err == nil {
			log.Printf("[trakt] token refreshed")
			return refreshed, nil
		}
		if ctx.Err() != nil {
			return models.Credential{}, ctx.Err()
		}
		if !errors.Is(err, ErrRefreshFailed) {
			return models.Credential{}, err
		}
		log.Printf("[trakt] refresh failed, proceeding to device authorization: %v", err)
	}

	return b.deviceFlow(ctx)
}

// Refresh performs a single refresh exchange and persists the result.
func (b *Broker) Refresh(ctx context.Context, cred models.Credential) (models.Credential, error) {
	if cred.RefreshToken == "" {
		return models.Credential{}, &AuthError{Kind: AuthRefreshFailed, Err: errors.New("no refresh token")}
	}
	token, err := b.client.RefreshAccessToken(ctx, cred.RefreshToken)
	if err != nil {
		return models.Credential{}, &AuthError{Kind: AuthRefreshFailed, Err: err}
	}
	return b.mint(token)
}

func (b *Broker) deviceFlow(ctx context.Context) (models.Credential, error) {
	log.Printf("[trakt] starting device authorization")
	code, err := b.client.GetDeviceCode(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return models.Credential{}, ctx.Err()
		}
		return models.Credential{}, &AuthError{Kind: AuthDeviceCodeUnavailable, Err: err}
	}

	if b.prompter != nil {
		b.prompter.ShowDeviceCode(*code)
	}

	interval := time.Duration(code.Interval) * time.Second
	if interval < time.Second {
		interval = 5 * time.Second
	}
	deadline := b.clock.Now().Add(time.Duration(code.ExpiresIn) * time.Second)

	polls := 0
	for {
		if err := b.clock.Sleep(ctx, interval); err != nil {
			return models.Credential{}, err
		}
		if !b.clock.Now().Before(deadline) {
			log.Printf("[trakt] device code expired after %d poll(s)", polls)
			return models.Credential{}, &AuthError{Kind: AuthTimeout}
		}

		polls++
		token, err := b.client.PollForToken(ctx, code.DeviceCode)
		switch {
		case err == nil && token != nil:
			log.Printf("[trakt] device authorized after %d poll(s)", polls)
			return b.mint(token)
		case err == nil:
			// still pending
		case errors.Is(err, ErrSlowDown):
			interval += time.Second
			log.Printf("[trakt] asked to slow down, polling every %s", interval)
		default:
			var statusErr *StatusError
			if errors.As(err, &statusErr) {
				return models.Credential{}, &AuthError{Kind: AuthDenied, Err: err}
			}
			if ctx.Err() != nil {
				return models.Credential{}, ctx.Err()
			}
			// Transport failures and per-call timeouts are transient; the
			// device code is still valid until the deadline.
			log.Printf("[trakt] token poll failed, will retry: %v", err)
		}
		if b.prompter != nil {
			b.prompter.Waiting()
		}
	}
}

// mint converts a token bundle into a credential and persists it.
func (b *Broker) mint(token *TokenResponse) (models.Credential, error) {
	cred := models.Credential{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    b.clock.Now().Add(time.Duration(token.ExpiresIn) * time.Second),
	}
	if err := b.store.Save(cred); err != nil {
		return models.Credential{}, err
	}
	return cred, nil
}
