package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/fieldlog/internal/client/client"
	"github.com/dmitrijs2005/fieldlog/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/fieldlog/internal/common"
	"github.com/dmitrijs2005/fieldlog/internal/logging"
	"github.com/golang-jwt/jwt/v5"
)

// Identity is what the client can read from its stored access token. The
// signature is not checked here; the server does that on every request.
type Identity struct {
	StudentID string
	Role      string
	ExpiresAt time.Time
}

type tokenClaims struct {
	jwt.RegisteredClaims
	StudentID string `json:"student_id"`
	Role      string `json:"role"`
}

// AuthService defines token operations for the CLI.
//
// Contract:
//   - Login: keep an access token issued out of band for the session and
//     save it locally; a failed save only logs a warning.
//   - Logout: forget it.
//   - Whoami: identity from the session or stored token, or
//     client.ErrLocalDataNotAvailable.
//   - TokenSource: feeds the current token to the transport.
//   - Ping: check server liveness.
type AuthService interface {
	Login(ctx context.Context, token string) (*Identity, error)
	Logout(ctx context.Context) error
	Whoami(ctx context.Context) (*Identity, error)
	TokenSource() client.TokenSource
	Ping(ctx context.Context) error
}

type authService struct {
	store  EntryStore
	prober client.Prober
	logger logging.Logger
	now    func() time.Time

	// token mirrors the stored token so the client keeps its identity when
	// the local store cannot be opened.
	mu    sync.RWMutex
	token string
}

func NewAuthService(store EntryStore, prober client.Prober, logger logging.Logger) AuthService {
	return &authService{store: store, prober: prober, logger: logger.With("module", "auth"), now: time.Now}
}

func (a *authService) parse(token string) (*Identity, error) {
	claims := &tokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidToken, err)
	}
	if claims.StudentID == "" {
		return nil, fmt.Errorf("%w: no student id", common.ErrInvalidToken)
	}

	id := &Identity{StudentID: claims.StudentID, Role: claims.Role}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
		if !id.ExpiresAt.After(a.now()) {
			return nil, common.ErrTokenExpired
		}
	}
	return id, nil
}

func (a *authService) cached() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

func (a *authService) setCached(token string) {
	a.mu.Lock()
	a.token = token
	a.mu.Unlock()
}

// Login keeps the token for this session even when it cannot be saved;
// it is then lost on exit.
func (a *authService) Login(ctx context.Context, token string) (*Identity, error) {
	token = strings.TrimSpace(token)
	id, err := a.parse(token)
	if err != nil {
		return nil, err
	}
	a.setCached(token)

	md, err := a.store.Metadata(ctx)
	if err == nil {
		err = md.SetString(ctx, metadata.KeyAccessToken, token)
	}
	if err != nil {
		a.logger.Warn(ctx, "token kept for this session only", "error", err)
	}
	return id, nil
}

func (a *authService) Logout(ctx context.Context) error {
	a.setCached("")

	md, err := a.store.Metadata(ctx)
	if err == nil {
		err = md.Delete(ctx, metadata.KeyAccessToken)
	}
	if err != nil {
		a.logger.Warn(ctx, "failed to remove stored token", "error", err)
	}
	return nil
}

// currentToken prefers the session copy and otherwise loads the stored one.
func (a *authService) currentToken(ctx context.Context) (string, error) {
	if token := a.cached(); token != "" {
		return token, nil
	}

	md, err := a.store.Metadata(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", client.ErrLocalDataNotAvailable, err)
	}
	token, err := md.GetString(ctx, metadata.KeyAccessToken)
	if err != nil {
		return "", fmt.Errorf("%w: %w", client.ErrLocalDataNotAvailable, err)
	}
	if token != "" {
		a.setCached(token)
	}
	return token, nil
}

func (a *authService) Whoami(ctx context.Context) (*Identity, error) {
	token, err := a.currentToken(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, client.ErrLocalDataNotAvailable
	}
	return a.parse(token)
}

// TokenSource reads the token on every call, so a login takes effect
// without rebuilding the transport. A missing or unreadable token is sent as
// none and the server answers unauthorized.
func (a *authService) TokenSource() client.TokenSource {
	return func(ctx context.Context) (string, error) {
		token, err := a.currentToken(ctx)
		if err != nil {
			return "", nil
		}
		return token, nil
	}
}

func (a *authService) Ping(ctx context.Context) error {
	return a.prober.Ping(ctx)
}
