package sqlxrepos_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core/notification"
	"github.com/trezcool/darasa/core/presence"
	"github.com/trezcool/darasa/core/realtime"
	"github.com/trezcool/darasa/core/user"
	emailsvc "github.com/trezcool/darasa/services/email"
	sqlxrepos "github.com/trezcool/darasa/storage/database/sqlx"
	testutil "github.com/trezcool/darasa/tests"
)

func createNotification(t *testing.T, repo notification.Repository, userID string, typ notification.Type, at time.Time) notification.Notification {
	t.Helper()
	related := "lesson-1"
	n, err := repo.CreateNotification(context.Background(), notification.Notification{
		UserID:    userID,
		Type:      typ,
		Title:     "Title",
		RelatedID: &related,
		CreatedAt: at,
	})
	require.NoError(t, err)
	return n
}

func TestNotificationRepository_Query(t *testing.T) {
	f := setup(t)
	repo := sqlxrepos.NewNotificationRepository(f.db)
	ctx := context.Background()

	start := ts(time.Now())
	first := createNotification(t, repo, f.a.ID, notification.TypeComment, start)
	second := createNotification(t, repo, f.a.ID, notification.TypeReply, start.Add(time.Second))
	third := createNotification(t, repo, f.a.ID, notification.TypeComment, start.Add(2*time.Second))
	createNotification(t, repo, f.b.ID, notification.TypeComment, start)

	_, err := repo.MarkRead(ctx, second.ID, start.Add(time.Minute))
	require.NoError(t, err)

	tests := []struct {
		name   string
		userID string
		filter notification.QueryFilter
		want   []string
	}{
		{name: "newest first", userID: f.a.ID, want: []string{third.ID, second.ID, first.ID}},
		{name: "unread only", userID: f.a.ID, filter: notification.QueryFilter{UnreadOnly: true}, want: []string{third.ID, first.ID}},
		{name: "by type", userID: f.a.ID, filter: notification.QueryFilter{Type: string(notification.TypeReply)}, want: []string{second.ID}},
		{name: "paged", userID: f.a.ID, filter: notification.QueryFilter{Limit: 1, Offset: 1}, want: []string{second.ID}},
		{name: "nobody", userID: f.c.ID, want: []string{}},
		{name: "malformed user", userID: "nope", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notifs, err := repo.QueryNotifications(ctx, tt.userID, tt.filter)
			require.NoError(t, err)
			ids := make([]string, 0, len(notifs))
			for _, n := range notifs {
				ids = append(ids, n.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	got, err := repo.GetNotification(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, got.IsRead, "stored unread")
	assert.Nil(t, got.ReadAt)
	require.NotNil(t, got.RelatedID)
	assert.Equal(t, "lesson-1", *got.RelatedID)
	assert.Nil(t, got.RelatedType)
	assert.True(t, start.Equal(got.CreatedAt))

	_, err = repo.GetNotification(ctx, uuid.New().String())
	assert.Equal(t, notification.ErrNotFound, err)
}

func TestNotificationRepository_MarkRead(t *testing.T) {
	f := setup(t)
	repo := sqlxrepos.NewNotificationRepository(f.db)
	ctx := context.Background()

	now := ts(time.Now())
	n := createNotification(t, repo, f.a.ID, notification.TypeSystem, now)
	createNotification(t, repo, f.a.ID, notification.TypeSystem, now)
	createNotification(t, repo, f.a.ID, notification.TypeSystem, now)

	cnt, err := repo.CountUnread(ctx, f.a.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, cnt)

	readAt := now.Add(time.Minute)
	changed, err := repo.MarkRead(ctx, n.ID, readAt)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.MarkRead(ctx, n.ID, readAt.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, changed, "already read")

	got, err := repo.GetNotification(ctx, n.ID)
	require.NoError(t, err)
	assert.True(t, got.IsRead)
	require.NotNil(t, got.ReadAt)
	assert.True(t, readAt.Equal(*got.ReadAt), "read_at is kept from the first read")

	marked, err := repo.MarkAllRead(ctx, f.a.ID, readAt)
	require.NoError(t, err)
	assert.Equal(t, 2, marked)
	marked, err = repo.MarkAllRead(ctx, f.a.ID, readAt)
	require.NoError(t, err)
	assert.Zero(t, marked)

	cnt, err = repo.CountUnread(ctx, f.a.ID)
	require.NoError(t, err)
	assert.Zero(t, cnt)

	require.NoError(t, repo.DeleteNotification(ctx, n.ID))
	assert.Equal(t, notification.ErrNotFound, repo.DeleteNotification(ctx, n.ID))
	_, err = repo.MarkRead(ctx, "nope", readAt)
	assert.Equal(t, notification.ErrNotFound, err)
}

func TestNotificationRepository_fanout(t *testing.T) {
	testutil.LoadEmailTemplates(t)
	f := setup(t)
	repo := sqlxrepos.NewNotificationRepository(f.db)
	ctx := context.Background()
	conf := testutil.NewConfig()
	logger := testutil.NewLogger()

	hub := realtime.NewHub(presence.NewTracker(4), logger, nil)
	svc := notification.NewService(
		repo,
		user.NewService(f.usrRepo, logger),
		hub,
		emailsvc.NewConsoleServiceMock(conf, logger),
		logger,
		notification.Options{Concurrency: 4, FrontendBaseURL: conf.FrontendBaseURL},
	)

	notifs, err := svc.Fanout(ctx, notification.Event{
		Type:         notification.TypeComment,
		RecipientIDs: []string{f.a.ID, f.b.ID, f.a.ID},
		Title:        "New comment",
	})
	require.NoError(t, err)
	require.Len(t, notifs, 2)

	for _, usr := range []user.User{f.a, f.b} {
		stored, err := repo.QueryNotifications(ctx, usr.ID, notification.QueryFilter{})
		require.NoError(t, err)
		require.Len(t, stored, 1, "one row per distinct recipient")
		assert.False(t, stored[0].IsRead)
		assert.Equal(t, "New comment", stored[0].Title)
	}

	_, err = svc.Fanout(ctx, notification.Event{
		Type:         notification.TypeComment,
		RecipientIDs: []string{f.c.ID, uuid.New().String()},
		Title:        "New comment",
	})
	var fanoutErr *notification.FanoutError
	require.ErrorAs(t, err, &fanoutErr, "unknown recipients break the foreign key")
	assert.Len(t, fanoutErr.Failures, 1)

	cnt, err := repo.CountUnread(ctx, f.c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, cnt, "the known recipient is still notified")
}
