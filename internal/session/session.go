// Package session keeps the signed-in user of a chat and the shared account
// list.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/legalmitra/mitra-bot/internal/apperr"
	"github.com/legalmitra/mitra-bot/internal/models"
	"github.com/legalmitra/mitra-bot/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const MinPasswordLength = 8

var (
	ErrInvalidCredentials = apperr.New(apperr.KindAuth, "Invalid email or password")
	ErrEmailTaken         = apperr.New(apperr.KindAuth, "User with this email already exists")

	ErrNameRequired     = apperr.New(apperr.KindValidation, "Name is required")
	ErrInvalidEmail     = apperr.New(apperr.KindValidation, "Please enter a valid email address")
	ErrWeakPassword     = apperr.New(apperr.KindValidation, fmt.Sprintf("Password must be at least %d characters long", MinPasswordLength))
	ErrPasswordMismatch = apperr.New(apperr.KindValidation, "Passwords do not match")
)

type SignupInput struct {
	Name     string
	Email    string
	Password string
	// ConfirmPassword is checked only when set.
	ConfirmPassword string
}

// Store holds the session of one chat. It starts in the loading state; callers
// must not treat a missing user as signed out until Load has run.
type Store struct {
	mu       sync.RWMutex
	accounts *Accounts
	local    storage.Storage
	user     *models.User
	loading  bool
	logger   *zap.Logger
	now      func() time.Time
}

func NewStore(accounts *Accounts, local storage.Storage, logger *zap.Logger) *Store {
	return &Store{
		accounts: accounts,
		local:    local,
		loading:  true,
		logger:   logger,
		now:      time.Now,
	}
}

// Load reads the persisted session. The loading flag is cleared even when the
// stored record cannot be read.
func (s *Store) Load(ctx context.Context) error {
	defer func() {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
	}()

	raw, ok, err := s.local.Get(ctx, storage.KeyCurrentUser)
	if err != nil {
		return fmt.Errorf("failed to read session: %w", err)
	}
	if !ok || raw == "" {
		return nil
	}

	var user models.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return fmt.Errorf("failed to decode session: %w", err)
	}

	s.mu.Lock()
	s.user = &user
	s.mu.Unlock()
	return nil
}

func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// User returns a copy of the signed-in user, or nil.
func (s *Store) User() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.user == nil {
		return nil
	}
	user := *s.user
	return &user
}

func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil
}

func (s *Store) Login(ctx context.Context, email, password string) error {
	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if account == nil {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}

	if err := s.establish(ctx, account.User); err != nil {
		return err
	}
	s.logger.Info("User logged in", zap.String("user_id", account.ID))
	return nil
}

// Signup registers a new account and signs it in.
func (s *Store) Signup(ctx context.Context, in SignupInput) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if err := validateSignup(in); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	account := models.Account{
		User: models.User{
			ID:        uuid.NewString(),
			Name:      in.Name,
			Email:     in.Email,
			CreatedAt: s.now().UTC(),
		},
		PasswordHash: string(hash),
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return err
	}

	return s.establish(ctx, account.User)
}

// Logout forgets the signed-in user. The account list and the demo counter
// are left alone.
func (s *Store) Logout(ctx context.Context) error {
	if err := s.local.Delete(ctx, storage.KeyCurrentUser); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}

	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()
	return nil
}

func (s *Store) establish(ctx context.Context, user models.User) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.local.Set(ctx, storage.KeyCurrentUser, string(raw)); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	s.mu.Lock()
	s.user = &user
	s.mu.Unlock()
	return nil
}

func validateSignup(in SignupInput) error {
	if in.Name == "" {
		return ErrNameRequired
	}
	if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
		return ErrInvalidEmail
	}
	if len(in.Password) < MinPasswordLength {
		return ErrWeakPassword
	}
	if in.ConfirmPassword != "" && in.ConfirmPassword != in.Password {
		return ErrPasswordMismatch
	}
	return nil
}
