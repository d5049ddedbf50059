package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core/chat"
)

const (
	chatColumns    = "id, user1_id, user2_id, created_at, last_message_at"
	messageColumns = "id, chat_id, sender_id, content, is_read, read_at, created_at"
)

type chatRow struct {
	ID            string    `db:"id"`
	User1ID       string    `db:"user1_id"`
	User2ID       string    `db:"user2_id"`
	CreatedAt     time.Time `db:"created_at"`
	LastMessageAt null.Time `db:"last_message_at"`
}

func (r chatRow) chat() chat.Chat {
	return chat.Chat{
		ID:            r.ID,
		User1ID:       r.User1ID,
		User2ID:       r.User2ID,
		CreatedAt:     r.CreatedAt.UTC(),
		LastMessageAt: utcPtr(r.LastMessageAt),
	}
}

type messageRow struct {
	ID        string    `db:"id"`
	ChatID    string    `db:"chat_id"`
	SenderID  string    `db:"sender_id"`
	Content   string    `db:"content"`
	IsRead    bool      `db:"is_read"`
	ReadAt    null.Time `db:"read_at"`
	CreatedAt time.Time `db:"created_at"`
}

func (r messageRow) message() chat.Message {
	return chat.Message{
		ID:        r.ID,
		ChatID:    r.ChatID,
		SenderID:  r.SenderID,
		Content:   r.Content,
		IsRead:    r.IsRead,
		ReadAt:    utcPtr(r.ReadAt),
		CreatedAt: r.CreatedAt.UTC(),
	}
}

func utcPtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}

type chatRepository struct {
	db *sqlx.DB
}

var _ chat.Repository = (*chatRepository)(nil) // interface compliance check

func NewChatRepository(db *sqlx.DB) *chatRepository {
	return &chatRepository{db: db}
}

func (repo *chatRepository) FindChat(ctx context.Context, user1ID, user2ID string) (chat.Chat, error) {
	if !isUUID(user1ID, user2ID) {
		return chat.Chat{}, chat.ErrNotFound
	}
	var row chatRow
	err := repo.db.GetContext(ctx, &row, "SELECT "+chatColumns+" FROM chat WHERE user1_id = $1 AND user2_id = $2", user1ID, user2ID)
	if isNoRows(err) {
		return chat.Chat{}, chat.ErrNotFound
	}
	if err != nil {
		return chat.Chat{}, errors.Wrap(err, "finding chat")
	}
	return row.chat(), nil
}

func (repo *chatRepository) CreateChat(ctx context.Context, cht chat.Chat) (chat.Chat, error) {
	cht.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx,
		"INSERT INTO chat (id, user1_id, user2_id, created_at) VALUES ($1, $2, $3, $4)",
		cht.ID, cht.User1ID, cht.User2ID, cht.CreatedAt.UTC(),
	)
	if pqCode(err) == pqUniqueViolation {
		return chat.Chat{}, chat.ErrChatExists
	}
	if err != nil {
		return chat.Chat{}, errors.Wrap(err, "inserting chat")
	}
	return cht, nil
}

func (repo *chatRepository) GetChat(ctx context.Context, id string) (chat.Chat, error) {
	if !isUUID(id) {
		return chat.Chat{}, chat.ErrNotFound
	}
	var row chatRow
	err := repo.db.GetContext(ctx, &row, "SELECT "+chatColumns+" FROM chat WHERE id = $1", id)
	if isNoRows(err) {
		return chat.Chat{}, chat.ErrNotFound
	}
	if err != nil {
		return chat.Chat{}, errors.Wrap(err, "getting chat")
	}
	return row.chat(), nil
}

func (repo *chatRepository) ListChats(ctx context.Context, userID string) ([]chat.Chat, error) {
	chats := make([]chat.Chat, 0)
	if !isUUID(userID) {
		return chats, nil
	}
	var rows []chatRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT `+chatColumns+` FROM chat
		WHERE user1_id = $1 OR user2_id = $1
		ORDER BY last_message_at DESC NULLS LAST, created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "listing chats")
	}
	for _, r := range rows {
		chats = append(chats, r.chat())
	}
	return chats, nil
}

func (repo *chatRepository) AppendMessage(ctx context.Context, msg chat.Message) (chat.Message, error) {
	if !isUUID(msg.ChatID) {
		return chat.Message{}, chat.ErrNotFound
	}
	msg.ID = uuid.New().String()
	msg.CreatedAt = msg.CreatedAt.UTC()

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return chat.Message{}, errors.Wrap(err, "beginning transaction")
	}
	defer rollback(tx)

	_, err = tx.ExecContext(ctx,
		"INSERT INTO chat_message ("+messageColumns+") VALUES ($1, $2, $3, $4, $5, NULL, $6)",
		msg.ID, msg.ChatID, msg.SenderID, msg.Content, msg.IsRead, msg.CreatedAt,
	)
	if pqCode(err) == pqForeignKeyViolation {
		return chat.Message{}, chat.ErrNotFound
	}
	if err != nil {
		return chat.Message{}, errors.Wrap(err, "inserting message")
	}
	if _, err = tx.ExecContext(ctx, "UPDATE chat SET last_message_at = $2 WHERE id = $1", msg.ChatID, msg.CreatedAt); err != nil {
		return chat.Message{}, errors.Wrap(err, "touching chat")
	}
	if err = tx.Commit(); err != nil {
		return chat.Message{}, errors.Wrap(err, "committing message")
	}
	return msg, nil
}

func (repo *chatRepository) ListMessages(ctx context.Context, chatID string, filter chat.MessageFilter) ([]chat.Message, error) {
	msgs := make([]chat.Message, 0)
	if !isUUID(chatID) {
		return msgs, nil
	}

	// the latest `limit` messages, returned oldest first
	q := "SELECT " + messageColumns + " FROM chat_message WHERE chat_id = ?"
	args := []interface{}{chatID}
	if !filter.Before.IsZero() {
		q += " AND created_at < ?"
		args = append(args, filter.Before.UTC())
	}
	q += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	q = repo.db.Rebind("SELECT * FROM (" + q + ") latest ORDER BY created_at ASC")

	var rows []messageRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "listing messages")
	}
	for _, r := range rows {
		msgs = append(msgs, r.message())
	}
	return msgs, nil
}

func (repo *chatRepository) LastMessages(ctx context.Context, chatIDs ...string) (map[string]chat.Message, error) {
	last := make(map[string]chat.Message, len(chatIDs))
	chatIDs = uuids(chatIDs)
	if len(chatIDs) == 0 {
		return last, nil
	}
	var rows []messageRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT DISTINCT ON (chat_id) `+messageColumns+` FROM chat_message
		WHERE chat_id = ANY($1)
		ORDER BY chat_id, created_at DESC`,
		pq.Array(chatIDs),
	)
	if err != nil {
		return nil, errors.Wrap(err, "getting last messages")
	}
	for _, r := range rows {
		last[r.ChatID] = r.message()
	}
	return last, nil
}

func (repo *chatRepository) MarkRead(ctx context.Context, chatID, readerID string, at time.Time) (int, error) {
	if !isUUID(chatID, readerID) {
		return 0, nil
	}
	res, err := repo.db.ExecContext(ctx,
		"UPDATE chat_message SET is_read = true, read_at = $3 WHERE chat_id = $1 AND sender_id <> $2 AND NOT is_read",
		chatID, readerID, at.UTC(),
	)
	if err != nil {
		return 0, errors.Wrap(err, "marking messages read")
	}
	return rowsAffected(res, "marking messages read")
}

func (repo *chatRepository) UnreadCounts(ctx context.Context, userID string) (map[string]int, error) {
	counts := make(map[string]int)
	if !isUUID(userID) {
		return counts, nil
	}
	var rows []struct {
		ChatID string `db:"chat_id"`
		Count  int    `db:"count"`
	}
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT m.chat_id, COUNT(*) AS count
		FROM chat_message m JOIN chat c ON c.id = m.chat_id
		WHERE (c.user1_id = $1 OR c.user2_id = $1) AND m.sender_id <> $1 AND NOT m.is_read
		GROUP BY m.chat_id`,
		userID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "counting unread messages")
	}
	for _, r := range rows {
		counts[r.ChatID] = r.Count
	}
	return counts, nil
}
