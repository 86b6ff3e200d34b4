package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOfWrapped(t *testing.T) {
	base := New(KindAuth, "Invalid email or password")
	wrapped := fmt.Errorf("login: %w", base)

	require.Equal(t, KindAuth, KindOf(wrapped))
	require.True(t, errors.Is(wrapped, base))
	require.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}

func TestUserMessage(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Wrap(KindNetwork, "Network response was not ok", cause)

	require.Equal(t, "Network response was not ok", UserMessage(err, "fallback"))
	require.Equal(t, "fallback", UserMessage(cause, "fallback"))
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "connection refused")
}
