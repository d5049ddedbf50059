package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/darasa/core/chat"
)

type chatRepository struct {
	db *chatTable
}

var _ chat.Repository = (*chatRepository)(nil) // interface compliance check

func NewChatRepository(db *DB) *chatRepository {
	return &chatRepository{db: db.chat}
}

func (repo *chatRepository) find(user1ID, user2ID string) (*chat.Chat, bool) {
	for _, c := range repo.db.chats {
		if c.User1ID == user1ID && c.User2ID == user2ID {
			return c, true
		}
	}
	return nil, false
}

func (repo *chatRepository) FindChat(_ context.Context, user1ID, user2ID string) (chat.Chat, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if c, ok := repo.find(user1ID, user2ID); ok {
		return *c, nil
	}
	return chat.Chat{}, chat.ErrNotFound
}

func (repo *chatRepository) CreateChat(_ context.Context, cht chat.Chat) (chat.Chat, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.find(cht.User1ID, cht.User2ID); ok {
		return chat.Chat{}, chat.ErrChatExists
	}
	cht.ID = uuid.New().String()
	stored := cht
	repo.db.chats[cht.ID] = &stored
	return cht, nil
}

func (repo *chatRepository) GetChat(_ context.Context, id string) (chat.Chat, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if c, ok := repo.db.chats[id]; ok {
		return *c, nil
	}
	return chat.Chat{}, chat.ErrNotFound
}

func (repo *chatRepository) ListChats(_ context.Context, userID string) ([]chat.Chat, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	chats := make([]chat.Chat, 0)
	for _, c := range repo.db.chats {
		if c.HasParticipant(userID) {
			chats = append(chats, *c)
		}
	}
	sort.SliceStable(chats, func(i, j int) bool {
		a, b := chats[i].LastMessageAt, chats[j].LastMessageAt
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.After(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return chats[i].CreatedAt.After(chats[j].CreatedAt)
	})
	return chats, nil
}

func (repo *chatRepository) AppendMessage(_ context.Context, msg chat.Message) (chat.Message, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	c, ok := repo.db.chats[msg.ChatID]
	if !ok {
		return chat.Message{}, chat.ErrNotFound
	}
	msg.ID = uuid.New().String()
	stored := msg
	repo.db.messages[msg.ChatID] = append(repo.db.messages[msg.ChatID], &stored)
	at := msg.CreatedAt
	c.LastMessageAt = &at
	return msg, nil
}

func (repo *chatRepository) ListMessages(_ context.Context, chatID string, filter chat.MessageFilter) ([]chat.Message, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	msgs := make([]chat.Message, 0)
	for _, m := range repo.db.messages[chatID] {
		if !filter.Before.IsZero() && !m.CreatedAt.Before(filter.Before) {
			continue
		}
		msgs = append(msgs, *m)
	}
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })
	if filter.Limit > 0 && len(msgs) > filter.Limit {
		msgs = msgs[len(msgs)-filter.Limit:] // the latest ones
	}
	return msgs, nil
}

func (repo *chatRepository) LastMessages(_ context.Context, chatIDs ...string) (map[string]chat.Message, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	last := make(map[string]chat.Message, len(chatIDs))
	for _, id := range chatIDs {
		for _, m := range repo.db.messages[id] {
			if cur, ok := last[id]; !ok || m.CreatedAt.After(cur.CreatedAt) {
				last[id] = *m
			}
		}
	}
	return last, nil
}

func (repo *chatRepository) MarkRead(_ context.Context, chatID, readerID string, at time.Time) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var cnt int
	for _, m := range repo.db.messages[chatID] {
		if m.SenderID != readerID && !m.IsRead {
			readAt := at
			m.IsRead = true
			m.ReadAt = &readAt
			cnt++
		}
	}
	return cnt, nil
}

func (repo *chatRepository) UnreadCounts(_ context.Context, userID string) (map[string]int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	counts := make(map[string]int)
	for id, c := range repo.db.chats {
		if !c.HasParticipant(userID) {
			continue
		}
		for _, m := range repo.db.messages[id] {
			if m.SenderID != userID && !m.IsRead {
				counts[id]++
			}
		}
	}
	return counts, nil
}
