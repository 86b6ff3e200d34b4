package session

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/legalmitra/mitra-bot/internal/apperr"
	"github.com/legalmitra/mitra-bot/internal/storage"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestStore(t *testing.T) (*Store, storage.Storage) {
	t.Helper()
	base := storage.NewMemoryStorage()
	logger := zaptest.NewLogger(t)
	store := NewStore(NewAccounts(base, logger), storage.ForChat(base, 42), logger)
	require.NoError(t, store.Load(context.Background()))
	return store, base
}

func TestSignupLogoutLoginRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.Signup(ctx, SignupInput{Name: "A", Email: "a@x.com", Password: "longenough1"}))
	require.True(t, store.IsAuthenticated())

	require.NoError(t, store.Logout(ctx))
	require.False(t, store.IsAuthenticated())

	require.NoError(t, store.Login(ctx, "a@x.com", "longenough1"))
	require.Equal(t, "A", store.User().Name)
}

func TestLoginInvalidCredentials(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	require.NoError(t, store.Signup(ctx, SignupInput{Name: "A", Email: "a@x.com", Password: "longenough1"}))
	require.NoError(t, store.Logout(ctx))

	err := store.Login(ctx, "a@x.com", "wrong-password")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	require.Equal(t, apperr.KindAuth, apperr.KindOf(err))

	// Email comparison is exact.
	require.ErrorIs(t, store.Login(ctx, "A@X.COM", "longenough1"), ErrInvalidCredentials)
	require.ErrorIs(t, store.Login(ctx, "nobody@x.com", "longenough1"), ErrInvalidCredentials)
	require.False(t, store.IsAuthenticated())
}

func TestSignupDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	require.NoError(t, store.Signup(ctx, SignupInput{Name: "A", Email: "a@x.com", Password: "longenough1"}))

	err := store.Signup(ctx, SignupInput{Name: "B", Email: "a@x.com", Password: "anotherpass"})
	require.ErrorIs(t, err, ErrEmailTaken)
	require.Equal(t, "A", store.User().Name)
}

func TestSignupValidation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		input SignupInput
		want  error
	}{
		{"missing name", SignupInput{Email: "a@x.com", Password: "longenough1"}, ErrNameRequired},
		{"bad email", SignupInput{Name: "A", Email: "not-an-email", Password: "longenough1"}, ErrInvalidEmail},
		{"short password", SignupInput{Name: "A", Email: "a@x.com", Password: "short"}, ErrWeakPassword},
		{"mismatch", SignupInput{Name: "A", Email: "a@x.com", Password: "longenough1", ConfirmPassword: "longenough2"}, ErrPasswordMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _ := newTestStore(t)
			err := store.Signup(ctx, tt.input)
			require.ErrorIs(t, err, tt.want)
			require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			require.False(t, store.IsAuthenticated())
		})
	}
}

func TestPasswordNeverPersistedInPlaintext(t *testing.T) {
	ctx := context.Background()
	store, base := newTestStore(t)
	require.NoError(t, store.Signup(ctx, SignupInput{Name: "A", Email: "a@x.com", Password: "longenough1"}))

	users, ok, err := base.Get(ctx, storage.KeyUsers)
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, strings.Contains(users, "longenough1"))

	current, ok, err := base.Get(ctx, "chat:42:"+storage.KeyCurrentUser)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotContains(t, current, "password")
}

func TestLoadingUntilLoad(t *testing.T) {
	ctx := context.Background()
	base := storage.NewMemoryStorage()
	logger := zaptest.NewLogger(t)
	accounts := NewAccounts(base, logger)

	first := NewStore(accounts, storage.ForChat(base, 1), logger)
	require.True(t, first.Loading())
	require.NoError(t, first.Load(ctx))
	require.False(t, first.Loading())
	require.NoError(t, first.Signup(ctx, SignupInput{Name: "A", Email: "a@x.com", Password: "longenough1"}))

	// A new store over the same chat storage restores the user.
	restored := NewStore(accounts, storage.ForChat(base, 1), logger)
	require.Nil(t, restored.User())
	require.NoError(t, restored.Load(ctx))
	require.Equal(t, "a@x.com", restored.User().Email)
}

func TestLoadCorruptSessionClearsLoading(t *testing.T) {
	ctx := context.Background()
	base := storage.NewMemoryStorage()
	logger := zaptest.NewLogger(t)
	local := storage.ForChat(base, 1)
	require.NoError(t, local.Set(ctx, storage.KeyCurrentUser, "{not json"))

	store := NewStore(NewAccounts(base, logger), local, logger)
	require.Error(t, store.Load(ctx))
	require.False(t, store.Loading())
	require.False(t, store.IsAuthenticated())
}

func TestConcurrentSignupsKeepEveryAccount(t *testing.T) {
	ctx := context.Background()
	base := storage.NewMemoryStorage()
	logger := zaptest.NewLogger(t)
	accounts := NewAccounts(base, logger)

	var wg sync.WaitGroup
	emails := []string{"a@x.com", "b@x.com", "c@x.com", "d@x.com"}
	errs := make([]error, len(emails))
	for i, email := range emails {
		wg.Add(1)
		go func(i int, email string) {
			defer wg.Done()
			store := NewStore(accounts, storage.ForChat(base, int64(i)), logger)
			errs[i] = store.Signup(ctx, SignupInput{Name: "user", Email: email, Password: "longenough1"})
		}(i, email)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	for _, email := range emails {
		account, err := accounts.FindByEmail(ctx, email)
		require.NoError(t, err)
		require.NotNil(t, account)
	}
}
