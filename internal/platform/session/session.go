// Package session issues and verifies the visitor session cookie. The cookie
// is an HS256 JWT whose subject is a ULID session id.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/Lakyn80/naramkova-moda/internal/platform/observability"
	"github.com/Lakyn80/naramkova-moda/internal/platform/requestctx"
)

const (
	// DefaultCookieName is the name of the session cookie.
	DefaultCookieName = "nm_session"
	issuer            = "naramkova-moda"
	minKeyLength      = 32
)

var (
	// ErrMissingKey is returned when no signing key is configured.
	ErrMissingKey = errors.New("session: signing key is required")
	// ErrInvalidToken is returned for cookies that fail verification.
	ErrInvalidToken = errors.New("session: invalid token")
)

// Manager signs and verifies session cookies.
type Manager struct {
	key        []byte
	ttl        time.Duration
	cookieName string
	secure     bool
	now        func() time.Time
	newID      func() string
	logger     *zap.Logger
}

// Option configures the manager.
type Option func(*Manager)

// WithCookieName overrides the cookie name.
func WithCookieName(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.cookieName = name
		}
	}
}

// WithSecureCookie marks the cookie Secure.
func WithSecureCookie(secure bool) Option {
	return func(m *Manager) {
		m.secure = secure
	}
}

// WithClock overrides the time used when issuing tokens.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithIDGenerator overrides the session id generator.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) {
		if fn != nil {
			m.newID = fn
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager constructs a manager signing with key.
func NewManager(key string, ttl time.Duration, opts ...Option) (*Manager, error) {
	if key == "" {
		return nil, ErrMissingKey
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("session: ttl must be positive, got %s", ttl)
	}
	m := &Manager{
		key:        []byte(key),
		ttl:        ttl,
		cookieName: DefaultCookieName,
		now:        time.Now,
		newID:      func() string { return ulid.Make().String() },
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// GenerateKey returns a random signing key for local development. Sessions
// signed with it do not survive a restart.
func GenerateKey() (string, error) {
	b := make([]byte, minKeyLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("session: generate key: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Sign returns the token for sessionID issued at the manager's current time.
func (m *Manager) Sign(sessionID string) (string, error) {
	now := m.now()
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   sessionID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.key)
	if err != nil {
		return "", fmt.Errorf("session: sign: %w", err)
	}
	return token, nil
}

// Verify returns the session id carried by token and the token's expiry.
func (m *Manager) Verify(token string) (string, time.Time, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwt.RegisteredClaims{}
	if _, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return m.key, nil
	}); err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Issuer != issuer {
		return "", time.Time{}, fmt.Errorf("%w: issuer %q", ErrInvalidToken, claims.Issuer)
	}
	if _, err := ulid.ParseStrict(claims.Subject); err != nil {
		return "", time.Time{}, fmt.Errorf("%w: subject: %w", ErrInvalidToken, err)
	}
	var expires time.Time
	if claims.ExpiresAt != nil {
		expires = claims.ExpiresAt.Time
	}
	return claims.Subject, expires, nil
}

// Middleware attaches the session id to the request context, starting a new
// session when the cookie is missing or invalid. Cookies past half their
// lifetime are re-issued.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := requestctx.Logger(ctx)

		var (
			sessionID string
			expires   time.Time
		)
		if cookie, err := r.Cookie(m.cookieName); err == nil && cookie.Value != "" {
			id, exp, verr := m.Verify(cookie.Value)
			if verr != nil {
				logger.Debug("session cookie rejected", zap.Error(verr))
			} else {
				sessionID, expires = id, exp
			}
		}

		if sessionID == "" || expires.Sub(m.now()) < m.ttl/2 {
			if sessionID == "" {
				sessionID = m.newID()
			}
			if err := m.issue(w, sessionID); err != nil {
				logger.Error("session cookie issue failed", zap.Error(err))
			}
		}

		ctx = requestctx.WithSessionID(ctx, sessionID)
		ctx = requestctx.WithLogger(ctx, logger.With(zap.String("session_id", observability.SanitizeSessionID(sessionID))))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Manager) issue(w http.ResponseWriter, sessionID string) error {
	token, err := m.Sign(sessionID)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.ttl / time.Second),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
