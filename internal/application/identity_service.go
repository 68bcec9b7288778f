package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/lims-calendar/internal/persistence"
)

// UserStore captures the directory operations needed by the identity service.
type UserStore interface {
	CreateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
}

// IssueAccessKeyParams describes the user to provision.
type IssueAccessKeyParams struct {
	UserID      string
	DisplayName string
	Role        Role
}

// IdentityService resolves bearer tokens of the form "<userID>.<secret>" into
// principals and provisions users with fresh access keys.
type IdentityService struct {
	users           UserStore
	secretGenerator func() string
	now             func() time.Time
	params          Argon2idParams
	logger          *slog.Logger
}

// NewIdentityService constructs an identity service with the provided dependencies.
func NewIdentityService(users UserStore, secretGenerator func() string, now func() time.Time) *IdentityService {
	return NewIdentityServiceWithLogger(users, secretGenerator, now, DefaultArgon2idParams, nil)
}

// NewIdentityServiceWithLogger constructs an identity service with explicit hashing parameters and logger.
func NewIdentityServiceWithLogger(users UserStore, secretGenerator func() string, now func() time.Time, params Argon2idParams, logger *slog.Logger) *IdentityService {
	if now == nil {
		now = time.Now
	}
	return &IdentityService{
		users:           users,
		secretGenerator: secretGenerator,
		now:             now,
		params:          params,
		logger:          defaultLogger(logger),
	}
}

func (s *IdentityService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "IdentityService", operation, attrs...)
}

// ValidateSession verifies a bearer token and returns its principal.
func (s *IdentityService) ValidateSession(ctx context.Context, token string) (principal Principal, err error) {
	if s == nil {
		err = fmt.Errorf("IdentityService is nil")
		return
	}
	if s.users == nil {
		err = fmt.Errorf("user store not configured")
		return
	}

	trimmed := strings.TrimSpace(token)
	logger := s.loggerWith(ctx, "ValidateSession", "token_provided", trimmed != "")
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "session validation failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("principal_id", principal.UserID).DebugContext(ctx, "session validated")
	}()

	var key AccessKey
	key, err = ParseAccessKey(trimmed)
	if err != nil {
		return
	}
	userID := key.UserID

	var user User
	user, err = s.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound) {
			err = ErrUnauthorized
		}
		return
	}
	if verifyErr := VerifyAccessKey(user.AccessKeyHash, key); verifyErr != nil {
		err = fmt.Errorf("user %s: %v: %w", userID, verifyErr, ErrUnauthorized)
		return
	}
	if !user.Role.Valid() {
		err = fmt.Errorf("user %s has unknown role %q: %w", userID, user.Role, ErrUnauthorized)
		return
	}

	principal = Principal{UserID: user.ID, Role: user.Role}
	return
}

// IssueAccessKey creates a user with a new access key and returns the bearer
// token. The secret is not stored.
func (s *IdentityService) IssueAccessKey(ctx context.Context, params IssueAccessKeyParams) (token string, err error) {
	if s == nil {
		err = fmt.Errorf("IdentityService is nil")
		return
	}
	if s.users == nil {
		err = fmt.Errorf("user store not configured")
		return
	}
	if s.secretGenerator == nil {
		err = fmt.Errorf("secret generator not configured")
		return
	}

	logger := s.loggerWith(ctx, "IssueAccessKey", "user_id", params.UserID, "role", string(params.Role))
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to issue access key", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "access key issued")
	}()

	vErr := &ValidationError{}
	userID := strings.TrimSpace(params.UserID)
	if userID == "" {
		vErr.add("userId", "user id is required")
	}
	displayName := strings.TrimSpace(params.DisplayName)
	if displayName == "" {
		displayName = userID
	}
	if !params.Role.Valid() {
		vErr.add("role", "role must be member, operator or admin")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	key, keyErr := NewAccessKey(userID, s.secretGenerator())
	if keyErr != nil {
		err = fmt.Errorf("secret generator returned an unusable secret: %v", keyErr)
		return
	}
	var hash string
	hash, err = HashAccessKey(key, s.params)
	if err != nil {
		return
	}

	now := s.now()
	err = s.users.CreateUser(ctx, User{
		ID:            userID,
		DisplayName:   displayName,
		Role:          params.Role,
		AccessKeyHash: hash,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		if errors.Is(err, persistence.ErrDuplicate) || errors.Is(err, ErrAlreadyExists) {
			err = fmt.Errorf("user %s: %w", userID, ErrAlreadyExists)
		}
		return
	}

	token = key.String()
	return
}
