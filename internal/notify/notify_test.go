package notify

import (
	"testing"
	"time"

	"github.com/legalmitra/mitra-bot/internal/models"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestPostDefaults(t *testing.T) {
	c := New(zaptest.NewLogger(t))
	defer c.Close()

	toast := c.Post("Saved", "Your profile was updated.", models.ToastSuccess)

	require.NotEmpty(t, toast.ID)
	require.Equal(t, DefaultDuration, toast.Duration)
	require.Equal(t, []models.Toast{toast}, c.List())
}

func TestZeroDurationExpires(t *testing.T) {
	c := New(zaptest.NewLogger(t))
	defer c.Close()

	c.Post("Gone", "soon", models.ToastInfo, WithDuration(0))

	require.Eventually(t, func() bool {
		return len(c.List()) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestDismissKeepsOrder(t *testing.T) {
	c := New(zaptest.NewLogger(t))
	defer c.Close()

	first := c.Post("first", "", models.ToastInfo, WithDuration(time.Minute))
	second := c.Post("second", "", models.ToastError, WithDuration(time.Minute))
	third := c.Post("third", "", models.ToastSuccess, WithDuration(time.Minute))

	require.True(t, c.Dismiss(second.ID))
	require.False(t, c.Dismiss(second.ID))

	got := c.List()
	require.Len(t, got, 2)
	require.Equal(t, first.ID, got[0].ID)
	require.Equal(t, third.ID, got[1].ID)
}

func TestUniqueIDs(t *testing.T) {
	c := New(zaptest.NewLogger(t))
	defer c.Close()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		toast := c.Post("t", "", models.ToastInfo, WithDuration(time.Minute))
		require.False(t, seen[toast.ID])
		seen[toast.ID] = true
	}
}

func TestSinkReceivesToast(t *testing.T) {
	var delivered []models.Toast
	c := New(zaptest.NewLogger(t),
		WithSink(func(toast models.Toast) { delivered = append(delivered, toast) }),
		WithDefaultDuration(time.Minute))
	defer c.Close()

	toast := c.Post("Demo Limit Reached", "Please login to continue.", models.ToastInfo)

	require.Len(t, delivered, 1)
	require.Equal(t, toast, delivered[0])
	require.Equal(t, time.Minute, delivered[0].Duration)
}
