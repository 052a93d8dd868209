package identity

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"eventsync/lib/logger/sl"
)

// Sign-in failure classes reported by the external identity provider. Each
// maps to a distinct user-facing message via Message.
var (
	ErrPopupBlocked = errors.New("sign-in popup was blocked")
	ErrPopupClosed  = errors.New("sign-in popup was closed")
	ErrNetwork      = errors.New("network failure during sign-in")
)

const tokenTimeout = 10 * time.Second
const networkRetries = 2

// Provider is the identity collaborator as seen by the sync layer: a stable
// subject id plus a bearer credential for persistence calls.
type Provider interface {
	SubjectID() string
	IsAnonymous() bool
	Token(ctx context.Context, forceRefresh bool) (string, error)
}

// TokenFunc fetches a bearer token from the underlying identity SDK.
type TokenFunc func(ctx context.Context, forceRefresh bool) (string, error)

type TokenSource struct {
	subject   string
	anonymous bool
	fetch     TokenFunc
	log       *slog.Logger

	mu     sync.Mutex
	cached string
}

func NewTokenSource(subject string, anonymous bool, fetch TokenFunc, log *slog.Logger) *TokenSource {
	if log == nil {
		log = slog.Default()
	}
	return &TokenSource{
		subject:   subject,
		anonymous: anonymous,
		fetch:     fetch,
		log:       log,
	}
}

func (ts *TokenSource) SubjectID() string { return ts.subject }

func (ts *TokenSource) IsAnonymous() bool { return ts.anonymous }

// Token returns a bearer credential. Each fetch attempt is bounded by a 10s
// timeout so callers fail instead of hanging. Network-class failures are
// retried at most twice; every other failure surfaces immediately.
func (ts *TokenSource) Token(ctx context.Context, forceRefresh bool) (string, error) {
	const op = "identity.token"

	if !forceRefresh {
		ts.mu.Lock()
		cached := ts.cached
		ts.mu.Unlock()
		if cached != "" {
			return cached, nil
		}
	}

	var lastErr error
	for attempt := 0; attempt <= networkRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, tokenTimeout)
		token, err := ts.fetch(attemptCtx, forceRefresh)
		cancel()

		if err == nil {
			ts.mu.Lock()
			ts.cached = token
			ts.mu.Unlock()
			return token, nil
		}

		lastErr = err
		if !errors.Is(err, ErrNetwork) {
			ts.log.Error("token fetch failed", slog.String("op", op), sl.Err(err))
			return "", err
		}
		ts.log.Warn("token fetch failed, retrying",
			slog.String("op", op),
			slog.Int("attempt", attempt+1),
			sl.Err(err),
		)
	}

	return "", lastErr
}

// Message maps a sign-in failure to the text shown to the user.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrPopupBlocked):
		return "Your browser blocked the sign-in window. Allow popups for this site and try again."
	case errors.Is(err, ErrPopupClosed):
		return "The sign-in window was closed before finishing. Please try again."
	case errors.Is(err, ErrNetwork):
		return "We couldn't reach the sign-in service. Check your connection and try again."
	default:
		return "Sign-in failed. Please try again."
	}
}

// SubjectFromToken extracts the subject claim from a bearer token without
// verifying the signature. Verification is the server's job.
func SubjectFromToken(raw string) (string, error) {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return "", err
	}
	return token.Claims.GetSubject()
}
