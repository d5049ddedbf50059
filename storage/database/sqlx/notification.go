package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core/notification"
)

const notificationColumns = "id, user_id, type, title, message, related_id, related_type, is_read, read_at, created_at"

type notificationRow struct {
	ID          string      `db:"id"`
	UserID      string      `db:"user_id"`
	Type        string      `db:"type"`
	Title       string      `db:"title"`
	Message     string      `db:"message"`
	RelatedID   null.String `db:"related_id"`
	RelatedType null.String `db:"related_type"`
	IsRead      bool        `db:"is_read"`
	ReadAt      null.Time   `db:"read_at"`
	CreatedAt   time.Time   `db:"created_at"`
}

func (r notificationRow) notification() notification.Notification {
	return notification.Notification{
		ID:          r.ID,
		UserID:      r.UserID,
		Type:        notification.Type(r.Type),
		Title:       r.Title,
		Message:     r.Message,
		RelatedID:   r.RelatedID.Ptr(),
		RelatedType: r.RelatedType.Ptr(),
		IsRead:      r.IsRead,
		ReadAt:      utcPtr(r.ReadAt),
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

type notificationRepository struct {
	db *sqlx.DB
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *sqlx.DB) *notificationRepository {
	return &notificationRepository{db: db}
}

func (repo *notificationRepository) CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	n.ID = uuid.New().String()
	n.CreatedAt = n.CreatedAt.UTC()
	row := notificationRow{
		ID:          n.ID,
		UserID:      n.UserID,
		Type:        string(n.Type),
		Title:       n.Title,
		Message:     n.Message,
		RelatedID:   null.StringFromPtr(n.RelatedID),
		RelatedType: null.StringFromPtr(n.RelatedType),
		IsRead:      n.IsRead,
		ReadAt:      null.TimeFromPtr(n.ReadAt),
		CreatedAt:   n.CreatedAt,
	}
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO notification (`+notificationColumns+`)
		VALUES (:id, :user_id, :type, :title, :message, :related_id, :related_type, :is_read, :read_at, :created_at)`,
		row,
	)
	if err != nil {
		return notification.Notification{}, errors.Wrap(err, "inserting notification")
	}
	return n, nil
}

func (repo *notificationRepository) GetNotification(ctx context.Context, id string) (notification.Notification, error) {
	if !isUUID(id) {
		return notification.Notification{}, notification.ErrNotFound
	}
	var row notificationRow
	err := repo.db.GetContext(ctx, &row, "SELECT "+notificationColumns+" FROM notification WHERE id = $1", id)
	if isNoRows(err) {
		return notification.Notification{}, notification.ErrNotFound
	}
	if err != nil {
		return notification.Notification{}, errors.Wrap(err, "getting notification")
	}
	return row.notification(), nil
}

func (repo *notificationRepository) QueryNotifications(ctx context.Context, userID string, filter notification.QueryFilter) ([]notification.Notification, error) {
	notifs := make([]notification.Notification, 0)
	if !isUUID(userID) {
		return notifs, nil
	}

	q := "SELECT " + notificationColumns + " FROM notification WHERE user_id = ?"
	args := []interface{}{userID}
	if filter.UnreadOnly {
		q += " AND NOT is_read"
	}
	if filter.Type != "" {
		q += " AND type = ?"
		args = append(args, filter.Type)
	}
	q += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		q += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	var rows []notificationRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying notifications")
	}
	for _, r := range rows {
		notifs = append(notifs, r.notification())
	}
	return notifs, nil
}

func (repo *notificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	if !isUUID(userID) {
		return 0, nil
	}
	var cnt int
	if err := repo.db.GetContext(ctx, &cnt, "SELECT COUNT(*) FROM notification WHERE user_id = $1 AND NOT is_read", userID); err != nil {
		return 0, errors.Wrap(err, "counting unread notifications")
	}
	return cnt, nil
}

func (repo *notificationRepository) MarkRead(ctx context.Context, id string, at time.Time) (bool, error) {
	if !isUUID(id) {
		return false, notification.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, "UPDATE notification SET is_read = true, read_at = $2 WHERE id = $1 AND NOT is_read", id, at.UTC())
	if err != nil {
		return false, errors.Wrap(err, "marking notification read")
	}
	n, err := rowsAffected(res, "marking notification read")
	return n > 0, err
}

func (repo *notificationRepository) MarkAllRead(ctx context.Context, userID string, at time.Time) (int, error) {
	if !isUUID(userID) {
		return 0, nil
	}
	res, err := repo.db.ExecContext(ctx, "UPDATE notification SET is_read = true, read_at = $2 WHERE user_id = $1 AND NOT is_read", userID, at.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "marking all notifications read")
	}
	return rowsAffected(res, "marking all notifications read")
}

func (repo *notificationRepository) DeleteNotification(ctx context.Context, id string) error {
	if !isUUID(id) {
		return notification.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, "DELETE FROM notification WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "deleting notification")
	}
	n, err := rowsAffected(res, "deleting notification")
	if err != nil {
		return err
	}
	if n == 0 {
		return notification.ErrNotFound
	}
	return nil
}
