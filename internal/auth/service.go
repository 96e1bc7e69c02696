package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/eugenenazirov/codepush-server/internal/apperror"
	"github.com/eugenenazirov/codepush-server/internal/storage"
)

const (
	minPasswordLength = 6
	accessKeyBytes    = 30
	defaultKeyTTL     = 60 * 24 * time.Hour
)

// Identity is the authenticated principal of a request.
type Identity struct {
	UserID string
	Email  string
}

// Service implements account registration, login and access key management.
type Service struct {
	store  *storage.MemoryStore
	tokens *TokenIssuer
	logger *zap.Logger
	clock  func() time.Time
}

// ServiceOption configures Service behaviour.
type ServiceOption func(*Service)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) ServiceOption {
	return func(s *Service) {
		s.clock = clock
	}
}

// NewService constructs a Service.
func NewService(store *storage.MemoryStore, tokens *TokenIssuer, logger *zap.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		tokens: tokens,
		logger: logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an account.
func (s *Service) Register(email, password string) (storage.User, error) {
	email = strings.TrimSpace(email)
	if !strings.Contains(email, "@") {
		return storage.User{}, apperror.New("please input a valid email")
	}
	if len(password) < minPasswordLength {
		return storage.User{}, apperror.Newf("password must be at least %d characters", minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return storage.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := storage.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         strings.SplitN(email, "@", 2)[0],
		PasswordHash: hash,
		CreatedAt:    s.clock(),
	}
	if err := s.store.CreateUser(user); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return storage.User{}, apperror.New("this email has already been registered")
		}
		return storage.User{}, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID))
	return user, nil
}

// Exists reports whether an account with email is registered.
func (s *Service) Exists(email string) bool {
	_, err := s.store.UserByEmail(email)
	return err == nil
}

// Login verifies credentials and issues a session token.
func (s *Service) Login(account, password string) (string, error) {
	if strings.TrimSpace(account) == "" || password == "" {
		return "", apperror.New("please input account and password")
	}

	user, err := s.store.UserByEmail(account)
	if err != nil {
		return "", apperror.Unauthorized("account or password error")
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return "", apperror.Unauthorized("account or password error")
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return "", err
	}
	return token, nil
}

// ChangePassword replaces the password of userID after checking the old one.
func (s *Service) ChangePassword(userID, oldPassword, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return apperror.Newf("password must be at least %d characters", minPasswordLength)
	}
	user, err := s.store.UserByID(userID)
	if err != nil {
		return apperror.NotFound("user not found")
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(oldPassword)); err != nil {
		return apperror.New("old password is incorrect")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.SetPasswordHash(userID, hash); err != nil {
		return fmt.Errorf("store password: %w", err)
	}
	return nil
}

// Account returns the user record of userID.
func (s *Service) Account(userID string) (storage.User, error) {
	user, err := s.store.UserByID(userID)
	if err != nil {
		return storage.User{}, apperror.NotFound("user not found")
	}
	return user, nil
}

// Authenticate resolves a bearer credential. Access keys are checked first,
// then session tokens.
func (s *Service) Authenticate(credential string) (Identity, error) {
	if credential == "" {
		return Identity{}, apperror.Unauthorized("")
	}

	userID := ""
	if key, err := s.store.AccessKeyByToken(credential); err == nil {
		if key.Expired(s.clock()) {
			return Identity{}, apperror.Unauthorized("access key has expired")
		}
		userID = key.UserID
	} else {
		id, err := s.tokens.Parse(credential)
		if err != nil {
			s.logger.Debug("rejected credential", zap.Error(err))
			return Identity{}, apperror.Unauthorized("")
		}
		userID = id
	}

	user, err := s.store.UserByID(userID)
	if err != nil {
		return Identity{}, apperror.Unauthorized("")
	}
	return Identity{UserID: user.ID, Email: user.Email}, nil
}

// AccessKeyInput describes a new access key.
type AccessKeyInput struct {
	CreatedBy    string
	FriendlyName string
	Description  string
	TTL          time.Duration
}

// CreateAccessKey issues a new access key for userID.
func (s *Service) CreateAccessKey(userID string, in AccessKeyInput) (storage.AccessKey, error) {
	if strings.TrimSpace(in.FriendlyName) == "" {
		return storage.AccessKey{}, apperror.New("friendlyName can not be empty")
	}
	ttl := in.TTL
	if ttl <= 0 {
		ttl = defaultKeyTTL
	}

	token, err := RandomKey(accessKeyBytes)
	if err != nil {
		return storage.AccessKey{}, fmt.Errorf("generate access key: %w", err)
	}
	now := s.clock()
	key := storage.AccessKey{
		Token:        token,
		UserID:       userID,
		FriendlyName: strings.TrimSpace(in.FriendlyName),
		CreatedBy:    in.CreatedBy,
		Description:  in.Description,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}
	if err := s.store.CreateAccessKey(key); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return storage.AccessKey{}, apperror.Newf("The access key %q already exists.", key.FriendlyName)
		}
		return storage.AccessKey{}, fmt.Errorf("create access key: %w", err)
	}
	return key, nil
}

// ListAccessKeys returns the access keys of userID.
func (s *Service) ListAccessKeys(userID string) []storage.AccessKey {
	return s.store.ListAccessKeys(userID)
}

// PatchAccessKey renames a key and/or extends its lifetime from now.
func (s *Service) PatchAccessKey(userID, friendlyName, newName string, ttl time.Duration) (storage.AccessKey, error) {
	now := s.clock()
	key, err := s.store.UpdateAccessKey(userID, friendlyName, func(k *storage.AccessKey) {
		if strings.TrimSpace(newName) != "" {
			k.FriendlyName = strings.TrimSpace(newName)
		}
		if ttl > 0 {
			k.ExpiresAt = now.Add(ttl)
		}
	})
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return storage.AccessKey{}, apperror.NotFound(fmt.Sprintf("The access key %q does not exist.", friendlyName))
	case errors.Is(err, storage.ErrConflict):
		return storage.AccessKey{}, apperror.Newf("The access key %q already exists.", newName)
	case err != nil:
		return storage.AccessKey{}, fmt.Errorf("update access key: %w", err)
	}
	return key, nil
}

// DeleteAccessKey removes a key by friendly name.
func (s *Service) DeleteAccessKey(userID, friendlyName string) error {
	if err := s.store.DeleteAccessKey(userID, friendlyName); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperror.NotFound(fmt.Sprintf("The access key %q does not exist.", friendlyName))
		}
		return fmt.Errorf("delete access key: %w", err)
	}
	return nil
}
