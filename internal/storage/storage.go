package storage

import (
	"context"
	"fmt"
)

// Keys of the persisted client state.
const (
	KeyCurrentUser = "currentUser"
	KeyUsers       = "users"
	KeyDemoCount   = "demo_msg_count"
)

// Storage is a flat string key-value store. Get reports whether the key exists.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

type scoped struct {
	Storage
	prefix string
}

// Scoped returns a view of s whose keys live under namespace. Closing the view
// does not close s.
func Scoped(s Storage, namespace string) Storage {
	return &scoped{Storage: s, prefix: namespace + ":"}
}

// ForChat scopes s to a single Telegram chat.
func ForChat(s Storage, chatID int64) Storage {
	return Scoped(s, fmt.Sprintf("chat:%d", chatID))
}

func (s *scoped) Get(ctx context.Context, key string) (string, bool, error) {
	return s.Storage.Get(ctx, s.prefix+key)
}

func (s *scoped) Set(ctx context.Context, key, value string) error {
	return s.Storage.Set(ctx, s.prefix+key, value)
}

func (s *scoped) Delete(ctx context.Context, key string) error {
	return s.Storage.Delete(ctx, s.prefix+key)
}

func (s *scoped) Close() error {
	return nil
}
