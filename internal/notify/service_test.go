package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockmonitor/monthend/internal/contracts"
	"github.com/stockmonitor/monthend/pkg/logger"
)

type fakeNotificationRepo struct {
	created []*contracts.Notification
	err     error
}

func (f *fakeNotificationRepo) Create(ctx context.Context, n *contracts.Notification) error {
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, n)
	return nil
}

func (f *fakeNotificationRepo) ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*contracts.Notification, error) {
	return f.created, nil
}

func (f *fakeNotificationRepo) MarkRead(ctx context.Context, userID, id string) error { return nil }

func (f *fakeNotificationRepo) MarkAllRead(ctx context.Context, userID string) (int, error) {
	return 0, nil
}

func monthEndFixture() time.Time {
	return time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
}

type failingDispatcher struct{ calls int }

func (d *failingDispatcher) Dispatch(ctx context.Context, n *contracts.Notification) error {
	d.calls++
	return errors.New("smtp down")
}

func TestNotifyPersistsWithDefaultPriority(t *testing.T) {
	repo := &fakeNotificationRepo{}
	s := NewService(repo, nil, logger.NewNop())

	err := s.Finalized(context.Background(), "u1", "r1", 12)
	require.NoError(t, err)

	require.Len(t, repo.created, 1)
	n := repo.created[0]
	assert.Equal(t, contracts.NotifyFinalized, n.Category)
	assert.Equal(t, contracts.PriorityHigh, n.Priority)
	assert.Equal(t, "u1", n.UserID)
	assert.Equal(t, "r1", n.RunID)
	assert.Contains(t, n.Message, "12 recommendations")
	assert.NotEmpty(t, n.ID)
	assert.False(t, n.IsRead)
}

func TestNotifyDispatchFailureDoesNotFail(t *testing.T) {
	repo := &fakeNotificationRepo{}
	d := &failingDispatcher{}
	s := NewService(repo, d, logger.NewNop())

	err := s.RunFailed(context.Background(), "u1", "r1", "pipeline error")
	require.NoError(t, err, "dispatch failure is logged, not propagated")
	assert.Equal(t, 1, d.calls)
	assert.Len(t, repo.created, 1, "notification persisted even when dispatch fails")
}

func TestNotifyPersistenceFailureIsReturned(t *testing.T) {
	repo := &fakeNotificationRepo{err: errors.New("db down")}
	s := NewService(repo, nil, logger.NewNop())

	err := s.Staged(context.Background(), "u1", "r1", monthEndFixture())
	assert.Error(t, err)
}

func TestCategoryMessages(t *testing.T) {
	repo := &fakeNotificationRepo{}
	s := NewService(repo, nil, logger.NewNop())
	ctx := context.Background()

	require.NoError(t, s.Precompute(ctx, "u1", "r1", monthEndFixture()))
	require.NoError(t, s.Staged(ctx, "u1", "r1", monthEndFixture()))
	require.NoError(t, s.DataStale(ctx, "u1", "r1", "market data 3 days old"))

	assert.Equal(t, contracts.PriorityMedium, repo.created[0].Priority)
	assert.Equal(t, contracts.PriorityMedium, repo.created[1].Priority)
	assert.Equal(t, contracts.PriorityHigh, repo.created[2].Priority)
	assert.Contains(t, repo.created[0].Message, "2026-08-31")
}
