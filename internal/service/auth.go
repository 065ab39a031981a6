package service

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sessionauth/sessionauth-go/internal/model"
	"github.com/sessionauth/sessionauth-go/internal/observability"
	"github.com/sessionauth/sessionauth-go/internal/repository"
	"github.com/sessionauth/sessionauth-go/internal/session"
)

// MinCredentialLength is the minimum number of characters in a username or
// password.
const MinCredentialLength = 4

// Field error messages returned to clients.
const (
	MsgTooShort      = "must be at least 4 characters long"
	MsgUsernameTaken = "username already taken"
	MsgUnknownUser   = "user does not exist!"
	MsgWrongPassword = "incorrect password"
)

// UserStore persists users. Create must report a taken username as
// repository.ErrDuplicateUsername; lookups report a missing user as
// repository.ErrUserNotFound.
type UserStore interface {
	Create(ctx context.Context, username, passwordHash string) (*model.User, error)
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
}

// SessionManager binds authenticated users to request sessions.
type SessionManager interface {
	Create(ctx context.Context, sc *session.Context, userID int64) error
	CurrentUserID(ctx context.Context, sc *session.Context) (int64, bool, error)
	Destroy(ctx context.Context, sc *session.Context) bool
}

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
}

// AuthService handles registration, login, logout and identity lookup.
type AuthService struct {
	users    UserStore
	sessions SessionManager
	hasher   PasswordHasher
	metrics  *observability.Metrics
	tracer   trace.Tracer
}

// NewAuthService creates a new AuthService. metrics may be nil.
func NewAuthService(users UserStore, sessions SessionManager, hasher PasswordHasher, metrics *observability.Metrics) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		metrics:  metrics,
		tracer:   otel.Tracer("github.com/sessionauth/sessionauth-go/internal/service"),
	}
}

// Me returns the user bound to the request's session, or nil when the
// request is not logged in or its user no longer exists.
func (s *AuthService) Me(ctx context.Context, sc *session.Context) (user *model.User, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.me")
	defer s.finish(span, "me", time.Now(), nil, &err)

	userID, ok, err := s.sessions.CurrentUserID(ctx, sc)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	span.SetAttributes(attribute.Int64("user.id", userID))

	user, err = s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.Code("AUTH_LOOKUP_FAILED").With("user_id", userID).Wrap(err)
	}

	return user, nil
}

// Register creates an account and logs the request in as the new user.
// Validation failures and a taken username are returned as field errors;
// any other failure is returned as an error.
func (s *AuthService) Register(ctx context.Context, sc *session.Context, creds model.Credentials) (result model.UserResult, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.register")
	defer s.finish(span, "register", time.Now(), &result, &err)

	if utf8.RuneCountInString(creds.Username) < MinCredentialLength {
		return model.FieldFailure("username", MsgTooShort), nil
	}
	if utf8.RuneCountInString(creds.Password) < MinCredentialLength {
		return model.FieldFailure("password", MsgTooShort), nil
	}

	hash, err := s.hasher.Hash(creds.Password)
	if err != nil {
		return model.UserResult{}, err
	}

	user, err := s.users.Create(ctx, creds.Username, hash)
	if errors.Is(err, repository.ErrDuplicateUsername) {
		return model.FieldFailure("username", MsgUsernameTaken), nil
	}
	if err != nil {
		return model.UserResult{}, err
	}
	span.SetAttributes(attribute.Int64("user.id", user.ID))

	if err := s.sessions.Create(ctx, sc, user.ID); err != nil {
		return model.UserResult{}, err
	}

	return model.UserResult{User: user}, nil
}

// Login checks the credentials and logs the request in as that user.
func (s *AuthService) Login(ctx context.Context, sc *session.Context, creds model.Credentials) (result model.UserResult, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.login")
	defer s.finish(span, "login", time.Now(), &result, &err)

	user, err := s.users.GetByUsername(ctx, creds.Username)
	if errors.Is(err, repository.ErrUserNotFound) {
		return model.FieldFailure("username", MsgUnknownUser), nil
	}
	if err != nil {
		return model.UserResult{}, oops.Code("AUTH_LOOKUP_FAILED").With("username", creds.Username).Wrap(err)
	}
	span.SetAttributes(attribute.Int64("user.id", user.ID))

	match, err := s.hasher.Verify(creds.Password, user.PasswordHash)
	if err != nil {
		return model.UserResult{}, err
	}
	if !match {
		return model.FieldFailure("password", MsgWrongPassword), nil
	}

	if err := s.sessions.Create(ctx, sc, user.ID); err != nil {
		return model.UserResult{}, err
	}

	return model.UserResult{User: user}, nil
}

// Logout destroys the request's session and clears its cookie. It reports
// false only if the session store failed.
func (s *AuthService) Logout(ctx context.Context, sc *session.Context) bool {
	ctx, span := s.tracer.Start(ctx, "auth.logout")
	defer span.End()
	start := time.Now()

	ok := s.sessions.Destroy(ctx, sc)

	outcome := observability.OutcomeSuccess
	if !ok {
		outcome = observability.OutcomeError
		span.SetStatus(codes.Error, "session destroy failed")
	}
	s.metrics.RecordOperation("logout", outcome, time.Since(start))

	return ok
}

// finish ends span and records the operation's outcome.
func (s *AuthService) finish(span trace.Span, operation string, start time.Time, result *model.UserResult, err *error) {
	defer span.End()

	outcome := observability.OutcomeSuccess
	switch {
	case *err != nil:
		outcome = observability.OutcomeError
		span.RecordError(*err)
		span.SetStatus(codes.Error, (*err).Error())
	case result != nil && result.Failed():
		outcome = observability.OutcomeRejected
		span.SetAttributes(attribute.String("auth.rejected_field", result.Errors[0].Field))
	}

	s.metrics.RecordOperation(operation, outcome, time.Since(start))
}
