package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/legalmitra/mitra-bot/internal/models"
	"github.com/legalmitra/mitra-bot/internal/storage"
	"go.uber.org/zap"
)

// Accounts is the account list shared by every chat. Writes are serialized so
// concurrent signups do not overwrite each other.
type Accounts struct {
	mu      sync.Mutex
	storage storage.Storage
	logger  *zap.Logger
}

func NewAccounts(store storage.Storage, logger *zap.Logger) *Accounts {
	return &Accounts{
		storage: store,
		logger:  logger,
	}
}

// FindByEmail looks up an account by exact email.
func (a *Accounts) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	accounts, err := a.load(ctx)
	if err != nil {
		return nil, err
	}
	for i := range accounts {
		if accounts[i].Email == email {
			return &accounts[i], nil
		}
	}
	return nil, nil
}

// Create appends account unless its email is already registered.
func (a *Accounts) Create(ctx context.Context, account models.Account) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	accounts, err := a.load(ctx)
	if err != nil {
		return err
	}
	for _, existing := range accounts {
		if existing.Email == account.Email {
			return ErrEmailTaken
		}
	}

	accounts = append(accounts, account)
	raw, err := json.Marshal(accounts)
	if err != nil {
		return fmt.Errorf("failed to encode accounts: %w", err)
	}
	if err := a.storage.Set(ctx, storage.KeyUsers, string(raw)); err != nil {
		return fmt.Errorf("failed to save accounts: %w", err)
	}

	a.logger.Info("Account created",
		zap.String("user_id", account.ID),
		zap.Int("total_accounts", len(accounts)))
	return nil
}

func (a *Accounts) load(ctx context.Context) ([]models.Account, error) {
	raw, ok, err := a.storage.Get(ctx, storage.KeyUsers)
	if err != nil {
		return nil, fmt.Errorf("failed to read accounts: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}

	var accounts []models.Account
	if err := json.Unmarshal([]byte(raw), &accounts); err != nil {
		return nil, fmt.Errorf("failed to decode accounts: %w", err)
	}
	return accounts, nil
}
