package conversation

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/legalmitra/mitra-bot/internal/apperr"
	"github.com/legalmitra/mitra-bot/internal/models"
	"github.com/legalmitra/mitra-bot/internal/notify"
	"github.com/legalmitra/mitra-bot/internal/ratelimit"
	"github.com/legalmitra/mitra-bot/internal/storage"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// stubAnswerer returns a fixed result. When release is set every call blocks
// until it is closed or the context ends.
type stubAnswerer struct {
	calls   atomic.Int32
	result  *models.QueryResult
	err     error
	release chan struct{}
}

func (s *stubAnswerer) Ask(ctx context.Context, question string) (*models.QueryResult, error) {
	s.calls.Add(1)
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.result, s.err
}

type anonymous struct{}

func (anonymous) IsAuthenticated() bool { return false }

func receive(t *testing.T, replies <-chan models.Message) (models.Message, bool) {
	t.Helper()
	select {
	case msg, ok := <-replies:
		return msg, ok
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reply")
		return models.Message{}, false
	}
}

func newConversation(t *testing.T, answerer *stubAnswerer) *Conversation {
	t.Helper()
	c := New(Options{Answerer: answerer, Logger: zaptest.NewLogger(t)})
	t.Cleanup(c.Close)
	return c
}

func TestWelcomeMessage(t *testing.T) {
	anon := New(Options{Logger: zap.NewNop()})
	msgs := anon.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, models.RoleAssistant, msgs[0].Role)
	require.Equal(t, "welcome", msgs[0].ID)
	require.Contains(t, msgs[0].Content, "Namaste! I am Legal Mitra")

	named := New(Options{UserName: "Asha", Logger: zap.NewNop()})
	require.Contains(t, named.Messages()[0].Content, "Namaste Asha!")
}

func TestAppendUserMessagePreservesPrefix(t *testing.T) {
	c := newConversation(t, &stubAnswerer{})

	for i := 0; i < 5; i++ {
		before := c.Messages()
		msg, ok := c.AppendUserMessage("question " + strconv.Itoa(i))
		require.True(t, ok)

		after := c.Messages()
		require.Len(t, after, len(before)+1)
		require.Equal(t, before, after[:len(before)])
		require.Equal(t, msg, after[len(after)-1])
		require.Equal(t, models.RoleUser, msg.Role)
	}
}

func TestBlankInputIsIgnored(t *testing.T) {
	answerer := &stubAnswerer{}
	c := newConversation(t, answerer)

	for _, text := range []string{"", "   ", "\n\t"} {
		_, ok := c.AppendUserMessage(text)
		require.False(t, ok)

		_, err := c.Send(context.Background(), text)
		require.ErrorIs(t, err, ErrEmptyInput)
	}
	require.Len(t, c.Messages(), 1)
	require.Zero(t, answerer.calls.Load())
}

func TestSendSuccessAttachesResult(t *testing.T) {
	result := &models.QueryResult{Answer: "Section 379 covers theft.", Sources: []models.Source{{Title: "IPC", Section: "379"}}}
	c := newConversation(t, &stubAnswerer{result: result})

	replies, err := c.Send(context.Background(), "What is theft?")
	require.NoError(t, err)

	reply, ok := receive(t, replies)
	require.True(t, ok)
	require.Equal(t, models.RoleAssistant, reply.Role)
	require.Equal(t, "Section 379 covers theft.", reply.Content)
	require.Equal(t, result, reply.Data)

	msgs := c.Messages()
	require.Len(t, msgs, 3)
	require.Equal(t, "What is theft?", msgs[1].Content)
	require.Equal(t, reply, msgs[2])
	require.False(t, c.Pending())
}

func TestFailureAppendsFixedErrorReply(t *testing.T) {
	failure := apperr.Wrap(apperr.KindNetwork, "Network response was not ok", errors.New("connection refused"))
	c := newConversation(t, &stubAnswerer{err: failure})

	replies, err := c.Send(context.Background(), "What is theft?")
	require.NoError(t, err)

	reply, ok := receive(t, replies)
	require.True(t, ok)
	require.Equal(t, ErrorReply, reply.Content)
	require.Nil(t, reply.Data)

	var assistantReplies int
	for _, msg := range c.Messages()[1:] {
		if msg.Role == models.RoleAssistant {
			assistantReplies++
			require.NotContains(t, msg.Content, "connection refused")
		}
	}
	require.Equal(t, 1, assistantReplies)
	require.False(t, c.Pending())
}

func TestSingleFlight(t *testing.T) {
	answerer := &stubAnswerer{result: &models.QueryResult{Answer: "ok"}, release: make(chan struct{})}
	c := newConversation(t, answerer)

	replies, err := c.Send(context.Background(), "first")
	require.NoError(t, err)
	require.True(t, c.Pending())

	before := c.Messages()
	_, err = c.Send(context.Background(), "second")
	require.ErrorIs(t, err, ErrQueryPending)
	_, err = c.SubmitQuery("third")
	require.ErrorIs(t, err, ErrQueryPending)
	require.Equal(t, before, c.Messages())

	close(answerer.release)
	_, ok := receive(t, replies)
	require.True(t, ok)
	require.False(t, c.Pending())
	require.EqualValues(t, 1, answerer.calls.Load())

	_, err = c.Send(context.Background(), "fourth")
	require.NoError(t, err)
}

func TestCloseDiscardsLateAnswer(t *testing.T) {
	answerer := &stubAnswerer{result: &models.QueryResult{Answer: "late"}, release: make(chan struct{})}
	c := newConversation(t, answerer)

	replies, err := c.Send(context.Background(), "What is theft?")
	require.NoError(t, err)
	c.Close()

	_, ok := receive(t, replies)
	require.False(t, ok, "no reply after close")
	require.Len(t, c.Messages(), 2)
	require.Equal(t, models.RoleUser, c.Messages()[1].Role)

	_, err = c.Send(context.Background(), "again")
	require.ErrorIs(t, err, ErrClosed)
}

func TestQuotaLockout(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	require.NoError(t, store.Set(ctx, storage.KeyDemoCount, "10"))

	var toasts []models.Toast
	channel := notify.New(zap.NewNop(), notify.WithSink(func(toast models.Toast) { toasts = append(toasts, toast) }))
	defer channel.Close()
	limiter := ratelimit.New(anonymous{}, store, channel, ratelimit.MaxDemoMessages, zap.NewNop())

	answerer := &stubAnswerer{result: &models.QueryResult{Answer: "ok"}}
	c := New(Options{Answerer: answerer, Gate: limiter, Logger: zaptest.NewLogger(t)})
	defer c.Close()

	replies, err := c.Send(ctx, "What is theft?")
	require.Nil(t, replies)
	require.ErrorIs(t, err, ErrQuotaExceeded)
	require.Equal(t, apperr.KindQuota, apperr.KindOf(err))

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, models.RoleAssistant, msgs[1].Role)
	require.Equal(t, LockoutReply, msgs[1].Content)

	require.Len(t, toasts, 1)
	require.Equal(t, "Demo Limit Reached", toasts[0].Title)
	require.Zero(t, answerer.calls.Load())
	require.False(t, c.Pending())
}

func TestQuotaCountsAnonymousSends(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	require.NoError(t, store.Set(ctx, storage.KeyDemoCount, "6"))

	var titles []string
	channel := notify.New(zap.NewNop(), notify.WithSink(func(toast models.Toast) { titles = append(titles, toast.Title) }))
	defer channel.Close()
	limiter := ratelimit.New(anonymous{}, store, channel, ratelimit.MaxDemoMessages, zap.NewNop())

	c := New(Options{Answerer: &stubAnswerer{result: &models.QueryResult{Answer: "ok"}}, Gate: limiter, Logger: zaptest.NewLogger(t)})
	defer c.Close()

	replies, err := c.Send(ctx, "What is theft?")
	require.NoError(t, err)
	receive(t, replies)

	raw, _, err := store.Get(ctx, storage.KeyDemoCount)
	require.NoError(t, err)
	require.Equal(t, "7", raw)
	require.Equal(t, []string{"3 Messages Left"}, titles)
}
