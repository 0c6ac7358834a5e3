package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hearthweave/geocass/internal/common"
	"github.com/hearthweave/geocass/internal/database"
	"github.com/hearthweave/geocass/internal/models"
	"github.com/hearthweave/geocass/internal/repository"
)

const (
	LoginKeyLabel     = "Login session"
	minPasswordLen    = 8
	maxDisplayNameLen = 64
	maxLabelLen       = 64
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9_-]{3,32}$`)

// errBadLogin is shared by every login failure so callers cannot tell an
// unknown email from a wrong password.
var errBadLogin = fmt.Errorf("%w: invalid email or password", common.ErrUnauthenticated)

// dummyHash is compared against when the email is unknown so both login
// failure paths cost one bcrypt comparison.
var dummyHash, _ = HashPassword("geocass-login-timing-equalizer")

type AccountStore interface {
	Create(ctx context.Context, a *models.Account) error
	GetByUsername(ctx context.Context, username string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

type KeyStore interface {
	Create(ctx context.Context, k *models.APIKey) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.APIKey, error)
	ListByAccountID(ctx context.Context, accountID uuid.UUID) ([]*models.APIKey, error)
	FindByPrefix(ctx context.Context, prefix string) ([]*repository.APIKeyWithAccount, error)
	TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	DisplayName string
}

// IssuedKey carries the only copy of a key's plaintext.
type IssuedKey struct {
	Key       *models.APIKey
	Plaintext string
}

type LoginResult struct {
	Account *models.Account
	Key     IssuedKey
}

type Service interface {
	Register(ctx context.Context, in RegisterInput) (*models.Account, error)
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	IssueKey(ctx context.Context, accountID uuid.UUID, label string, ttl time.Duration) (*IssuedKey, error)
	ListKeys(ctx context.Context, accountID uuid.UUID) ([]*models.APIKey, error)
	RevokeKey(ctx context.Context, accountID, keyID, currentKeyID uuid.UUID) error
	VerifyKey(ctx context.Context, presented string) (*models.Principal, bool)
}

type Options struct {
	KeyPrefix   string
	LoginKeyTTL time.Duration
}

type service struct {
	accounts AccountStore
	keys     KeyStore
	opts     Options
	log      *slog.Logger
	now      func() time.Time
}

func NewService(accounts AccountStore, keys KeyStore, opts Options, log *slog.Logger) *service {
	if log == nil {
		log = slog.Default()
	}
	return &service{
		accounts: accounts,
		keys:     keys,
		opts:     opts,
		log:      log.With("component", "auth"),
		now:      database.Now,
	}
}

// Ensure service implements Service at compile time.
var _ Service = (*service)(nil)

func (s *service) Register(ctx context.Context, in RegisterInput) (*models.Account, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = normalizeEmail(in.Email)
	in.DisplayName = strings.TrimSpace(in.DisplayName)

	if !usernamePattern.MatchString(in.Username) {
		return nil, fmt.Errorf("%w: username must be 3-32 characters of a-z, 0-9, '_' or '-'", common.ErrInvalidInput)
	}
	if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
		return nil, fmt.Errorf("%w: invalid email address", common.ErrInvalidInput)
	}
	if len(in.Password) < minPasswordLen {
		return nil, fmt.Errorf("%w: password must be at least %d characters", common.ErrInvalidInput, minPasswordLen)
	}
	if in.DisplayName == "" {
		in.DisplayName = in.Username
	}
	if len(in.DisplayName) > maxDisplayNameLen {
		return nil, fmt.Errorf("%w: display name is longer than %d characters", common.ErrInvalidInput, maxDisplayNameLen)
	}

	if err := s.ensureFree(ctx, s.accounts.GetByUsername, in.Username, "username already taken"); err != nil {
		return nil, err
	}
	if err := s.ensureFree(ctx, s.accounts.GetByEmail, in.Email, "email already registered"); err != nil {
		return nil, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	acc := &models.Account{
		ID:           uuid.New(),
		Username:     in.Username,
		DisplayName:  in.DisplayName,
		Email:        in.Email,
		PasswordHash: hash,
		CreatedAt:    s.now(),
	}
	if err := s.accounts.Create(ctx, acc); err != nil {
		if errors.Is(err, common.ErrConflict) {
			return nil, fmt.Errorf("%w: username or email already registered", common.ErrConflict)
		}
		return nil, err
	}
	s.log.InfoContext(ctx, "account registered", "account_id", acc.ID, "username", acc.Username)
	return acc, nil
}

func (s *service) ensureFree(ctx context.Context, get func(context.Context, string) (*models.Account, error), v, msg string) error {
	_, err := get(ctx, v)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", common.ErrConflict, msg)
	case errors.Is(err, common.ErrNotFound):
		return nil
	default:
		return err
	}
}

func (s *service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	acc, err := s.accounts.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			VerifyPassword(password, dummyHash)
			return nil, errBadLogin
		}
		return nil, err
	}
	if !acc.HasPassword() {
		VerifyPassword(password, dummyHash)
		return nil, errBadLogin
	}
	if !VerifyPassword(password, acc.PasswordHash) {
		return nil, errBadLogin
	}

	now := s.now()
	if err := s.accounts.UpdateLastLogin(ctx, acc.ID, now); err != nil {
		s.log.WarnContext(ctx, "record last login failed", "account_id", acc.ID, "error", err)
	} else {
		acc.LastLoginAt = &now
	}

	issued, err := s.IssueKey(ctx, acc.ID, LoginKeyLabel, s.opts.LoginKeyTTL)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Account: acc, Key: *issued}, nil
}

// IssueKey creates a key for the account. A zero ttl never expires.
func (s *service) IssueKey(ctx context.Context, accountID uuid.UUID, label string, ttl time.Duration) (*IssuedKey, error) {
	label = strings.TrimSpace(label)
	if len(label) > maxLabelLen {
		return nil, fmt.Errorf("%w: label is longer than %d characters", common.ErrInvalidInput, maxLabelLen)
	}
	if ttl < 0 {
		return nil, fmt.Errorf("%w: key lifetime must not be negative", common.ErrInvalidInput)
	}

	plaintext, hash, lookup, err := GenerateKey(s.opts.KeyPrefix)
	if err != nil {
		return nil, err
	}
	now := s.now()
	k := &models.APIKey{
		ID:        uuid.New(),
		AccountID: accountID,
		KeyHash:   hash,
		KeyPrefix: lookup,
		Label:     label,
		CreatedAt: now,
	}
	if ttl > 0 {
		exp := now.Add(ttl)
		k.ExpiresAt = &exp
	}
	if err := s.keys.Create(ctx, k); err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "api key issued", "account_id", accountID, "key_id", k.ID, "key_prefix", k.KeyPrefix)
	return &IssuedKey{Key: k, Plaintext: plaintext}, nil
}

func (s *service) ListKeys(ctx context.Context, accountID uuid.UUID) ([]*models.APIKey, error) {
	return s.keys.ListByAccountID(ctx, accountID)
}

// RevokeKey deletes one of the account's keys. Keys of other accounts are
// reported as missing, and the key authenticating the request cannot be
// revoked through itself.
func (s *service) RevokeKey(ctx context.Context, accountID, keyID, currentKeyID uuid.UUID) error {
	k, err := s.keys.GetByID(ctx, keyID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return fmt.Errorf("%w: api key not found", common.ErrNotFound)
		}
		return err
	}
	if k.AccountID != accountID {
		return fmt.Errorf("%w: api key not found", common.ErrNotFound)
	}
	if k.ID == currentKeyID {
		return fmt.Errorf("%w: cannot revoke the api key used for this request", common.ErrInvalidInput)
	}
	if err := s.keys.Delete(ctx, keyID); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "api key revoked", "account_id", accountID, "key_id", keyID)
	return nil
}

// VerifyKey resolves a presented token to its principal. It never fails
// loudly: every rejection, including store errors, is (nil, false).
func (s *service) VerifyKey(ctx context.Context, presented string) (*models.Principal, bool) {
	token := StripBearer(presented)
	if len(token) < KeyPrefixLen {
		return nil, false
	}

	candidates, err := s.keys.FindByPrefix(ctx, token[:KeyPrefixLen])
	if err != nil {
		s.log.ErrorContext(ctx, "api key lookup failed", "error", err)
		return nil, false
	}

	digest := HashKey(token)
	var match *repository.APIKeyWithAccount
	for _, c := range candidates {
		// No early exit: every candidate is compared.
		if hashesEqual(digest, c.APIKey.KeyHash) && match == nil {
			match = c
		}
	}
	if match == nil {
		return nil, false
	}

	now := s.now()
	if !match.APIKey.Usable(now) {
		return nil, false
	}
	if err := s.keys.TouchLastUsed(ctx, match.APIKey.ID, now); err != nil {
		s.log.WarnContext(ctx, "record api key use failed", "key_id", match.APIKey.ID, "error", err)
	} else {
		match.APIKey.LastUsedAt = &now
	}
	return &models.Principal{Account: &match.Account, Key: &match.APIKey}, true
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
