package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// PasswordVerifier compares a stored hash with a candidate password.
type PasswordVerifier func(hashedPassword, password string) error

// AuthService authenticates the single operator account and tracks issued
// session tokens in memory. Sessions do not survive a restart; operators log
// in again.
type AuthService struct {
	passwordHash   string
	verifyPassword PasswordVerifier
	tokenGenerator func() string
	now            func() time.Time
	sessionTTL     time.Duration
	logger         *slog.Logger

	mu       sync.Mutex
	sessions map[string]Session
}

// NewAuthService constructs an AuthService with the provided dependencies.
// An empty passwordHash disables authentication entirely.
func NewAuthService(passwordHash string, tokenGenerator func() string, now func() time.Time, sessionTTL time.Duration) *AuthService {
	return NewAuthServiceWithLogger(passwordHash, tokenGenerator, now, sessionTTL, nil)
}

// NewAuthServiceWithLogger constructs an AuthService with a specified logger.
func NewAuthServiceWithLogger(passwordHash string, tokenGenerator func() string, now func() time.Time, sessionTTL time.Duration, logger *slog.Logger) *AuthService {
	if tokenGenerator == nil {
		tokenGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	return &AuthService{
		passwordHash:   passwordHash,
		verifyPassword: VerifyPassword,
		tokenGenerator: tokenGenerator,
		now:            now,
		sessionTTL:     sessionTTL,
		logger:         defaultLogger(logger),
		sessions:       map[string]Session{},
	}
}

func (s *AuthService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AuthService", operation, attrs...)
}

// Enabled reports whether an operator password is configured. When it is
// not, the HTTP layer skips session checks.
func (s *AuthService) Enabled() bool {
	return s != nil && s.passwordHash != ""
}

// Login verifies the operator password and issues a session token.
func (s *AuthService) Login(ctx context.Context, password string) (session Session, err error) {
	if s == nil {
		err = fmt.Errorf("AuthService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Login")
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to log in", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "operator logged in", "expires_at", session.ExpiresAt)
	}()

	if !s.Enabled() {
		err = fmt.Errorf("%w: authentication is not configured", ErrInvalidCredentials)
		return
	}
	if verifyErr := s.verifyPassword(s.passwordHash, password); verifyErr != nil {
		err = ErrInvalidCredentials
		return
	}

	now := s.now()
	session = Session{
		Token:     s.tokenGenerator(),
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(now)
	s.sessions[session.Token] = session
	return
}

// Logout revokes a session token. Revoking an unknown token is a no-op.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if s == nil {
		return fmt.Errorf("AuthService is nil")
	}

	s.mu.Lock()
	_, existed := s.sessions[token]
	delete(s.sessions, token)
	s.mu.Unlock()

	if existed {
		s.loggerWith(ctx, "Logout").InfoContext(ctx, "operator logged out")
	}
	return nil
}

// Validate reports whether a token belongs to a live session. Expired
// sessions are dropped as they are seen.
func (s *AuthService) Validate(ctx context.Context, token string) error {
	if s == nil {
		return fmt.Errorf("AuthService is nil")
	}
	if token == "" {
		return ErrUnauthorized
	}

	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[token]
	if !ok {
		return ErrUnauthorized
	}
	if !session.ExpiresAt.After(now) {
		delete(s.sessions, token)
		return ErrSessionExpired
	}
	return nil
}

// pruneLocked drops expired sessions. Callers hold s.mu.
func (s *AuthService) pruneLocked(now time.Time) {
	for token, session := range s.sessions {
		if !session.ExpiresAt.After(now) {
			delete(s.sessions, token)
		}
	}
}
