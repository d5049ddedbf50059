package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/kat-co/vala"
	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/realtime"
	"github.com/trezcool/darasa/core/user"
)

var (
	// errors
	ErrNotFound       = core.NewNotFoundError("chat")
	ErrNotParticipant = core.NewAccessDeniedError("you are not a participant of this chat")
	// ErrChatExists is returned by Repository.CreateChat when the pair already has a Chat.
	ErrChatExists = errors.New("chat already exists")

	errSelfChat       = core.NewValidationError(nil, core.FieldError{Field: "user_id", Error: "cannot chat with yourself"})
	errEmptyContent   = core.NewValidationError(nil, core.FieldError{Field: "content", Error: "this field cannot be blank"})
	errContentTooLong = core.NewValidationError(nil, core.FieldError{
		Field: "content",
		Error: fmt.Sprintf("content must be a maximum of %d characters in length", MaxContentLength),
	})
)

type (
	Repository interface {
		// FindChat looks a Chat up by its normalised pair; ErrNotFound if none.
		FindChat(ctx context.Context, user1ID, user2ID string) (Chat, error)
		// CreateChat returns ErrChatExists when the pair is already taken.
		CreateChat(ctx context.Context, chat Chat) (Chat, error)
		GetChat(ctx context.Context, id string) (Chat, error)
		// ListChats returns the user's chats, most recently active first.
		ListChats(ctx context.Context, userID string) ([]Chat, error)
		// AppendMessage stores msg and sets the chat's last_message_at to msg.CreatedAt, atomically.
		AppendMessage(ctx context.Context, msg Message) (Message, error)
		// ListMessages returns up to filter.Limit messages created before filter.Before (if set), oldest first.
		ListMessages(ctx context.Context, chatID string, filter MessageFilter) ([]Message, error)
		LastMessages(ctx context.Context, chatIDs ...string) (map[string]Message, error)
		// MarkRead flips every unread message of the chat not sent by readerID and returns how many changed.
		MarkRead(ctx context.Context, chatID, readerID string, at time.Time) (int, error)
		// UnreadCounts returns, per chat, the messages not sent by userID that userID has not read.
		UnreadCounts(ctx context.Context, userID string) (map[string]int, error)
	}

	// UserGetter is the part of the user service chats need.
	UserGetter interface {
		GetActiveByID(ctx context.Context, id string) (user.User, error)
		GetByIDs(ctx context.Context, ids ...string) (map[string]user.User, error)
	}

	Service struct {
		repo   Repository
		users  UserGetter
		pusher realtime.Pusher
		logger core.Logger
		locks  keyedLocks
		nowFn  func() time.Time
	}
)

func NewService(repo Repository, users UserGetter, pusher realtime.Pusher, logger core.Logger) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(users, "users"),
		vala.IsNotNil(pusher, "pusher"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &Service{
		repo:   repo,
		users:  users,
		pusher: pusher,
		logger: logger,
		nowFn:  time.Now,
	}
}

// postgres keeps microseconds
func (svc *Service) now() time.Time {
	return svc.nowFn().UTC().Truncate(time.Microsecond)
}

// GetOrCreate returns the Chat between userID & otherID, creating it on first contact.
func (svc *Service) GetOrCreate(ctx context.Context, userID, otherID string) (Chat, error) {
	if userID == otherID {
		return Chat{}, errSelfChat
	}
	if _, err := svc.users.GetActiveByID(ctx, otherID); err != nil {
		return Chat{}, pkgerrors.Wrap(err, "getting other user")
	}

	u1, u2 := NormalizePair(userID, otherID)
	unlock := svc.locks.lock("pair:" + u1 + ":" + u2)
	defer unlock()

	cht, err := svc.repo.FindChat(ctx, u1, u2)
	if err == nil {
		return cht, nil
	}
	if pkgerrors.Cause(err) != ErrNotFound {
		return Chat{}, pkgerrors.Wrap(err, "finding chat")
	}

	cht, err = svc.repo.CreateChat(ctx, Chat{User1ID: u1, User2ID: u2, CreatedAt: svc.now()})
	if pkgerrors.Cause(err) == ErrChatExists { // lost the race to another process
		cht, err = svc.repo.FindChat(ctx, u1, u2)
	}
	if err != nil {
		return Chat{}, pkgerrors.Wrap(err, "creating chat")
	}
	return cht, nil
}

func (svc *Service) getParticipantChat(ctx context.Context, chatID, userID string) (Chat, error) {
	cht, err := svc.repo.GetChat(ctx, chatID)
	if err != nil {
		return Chat{}, err
	}
	if !cht.HasParticipant(userID) {
		return Chat{}, ErrNotParticipant
	}
	return cht, nil
}

func (svc *Service) Get(ctx context.Context, chatID, userID string) (Chat, error) {
	return svc.getParticipantChat(ctx, chatID, userID)
}

func validateContent(content string) (string, error) {
	content = core.CleanString(content)
	if content == "" {
		return "", errEmptyContent
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return "", errContentTooLong
	}
	return content, nil
}

// Send stores a message from senderID then pushes it to every open connection of both participants.
// Sends to one chat are serialised so that creation timestamps strictly increase and pushes leave in that order.
// The push is best-effort: a failed push never fails the send.
func (svc *Service) Send(ctx context.Context, chatID, senderID, content string) (Message, error) {
	content, err := validateContent(content)
	if err != nil {
		return Message{}, err
	}

	unlock := svc.locks.lock(chatID)
	defer unlock()

	cht, err := svc.getParticipantChat(ctx, chatID, senderID)
	if err != nil {
		return Message{}, err
	}

	createdAt := svc.now()
	if cht.LastMessageAt != nil && !createdAt.After(*cht.LastMessageAt) {
		createdAt = cht.LastMessageAt.Add(time.Microsecond)
	}

	msg, err := svc.repo.AppendMessage(ctx, Message{
		ChatID:    cht.ID,
		SenderID:  senderID,
		Content:   content,
		IsRead:    false,
		CreatedAt: createdAt,
	})
	if err != nil {
		return Message{}, pkgerrors.Wrap(err, "appending message")
	}

	ev := realtime.NewEvent(realtime.EventChatMessage, msg)
	svc.pusher.PushToUser(cht.OtherParticipant(senderID), ev)
	svc.pusher.PushToUser(senderID, ev) // keep the sender's other tabs in sync
	return msg, nil
}

// MarkRead marks every message readerID received in the chat as read. Calling it again is a no-op.
func (svc *Service) MarkRead(ctx context.Context, chatID, readerID string) (int, error) {
	cht, err := svc.getParticipantChat(ctx, chatID, readerID)
	if err != nil {
		return 0, err
	}

	now := svc.now()
	n, err := svc.repo.MarkRead(ctx, cht.ID, readerID, now)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "marking messages read")
	}
	if n > 0 {
		ev := realtime.NewEvent(realtime.EventChatRead, ReadReceipt{ChatID: cht.ID, ReaderID: readerID, Count: n, ReadAt: now})
		svc.pusher.PushToUser(cht.OtherParticipant(readerID), ev)
		svc.pusher.PushToUser(readerID, ev)
	}
	return n, nil
}

func (svc *Service) Messages(ctx context.Context, chatID, userID string, filter MessageFilter) ([]Message, error) {
	cht, err := svc.getParticipantChat(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	filter.Clean()
	msgs, err := svc.repo.ListMessages(ctx, cht.ID, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "listing messages")
	}
	return msgs, nil
}

// List returns the user's chat summaries, most recently active first.
func (svc *Service) List(ctx context.Context, userID string) ([]Summary, error) {
	chats, err := svc.repo.ListChats(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "listing chats")
	}
	if len(chats) == 0 {
		return []Summary{}, nil
	}

	chatIDs := make([]string, 0, len(chats))
	otherIDs := make([]string, 0, len(chats))
	for _, c := range chats {
		chatIDs = append(chatIDs, c.ID)
		otherIDs = append(otherIDs, c.OtherParticipant(userID))
	}

	lastMsgs, err := svc.repo.LastMessages(ctx, chatIDs...)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "getting last messages")
	}
	unread, err := svc.repo.UnreadCounts(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "counting unread messages")
	}
	others, err := svc.users.GetByIDs(ctx, otherIDs...)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "getting chat participants")
	}

	summaries := make([]Summary, 0, len(chats))
	for _, c := range chats {
		otherID := c.OtherParticipant(userID)
		sum := Summary{
			Chat:        c,
			OtherUser:   user.Brief{ID: otherID},
			IsOnline:    svc.pusher.IsOnline(otherID),
			UnreadCount: unread[c.ID],
		}
		if other, ok := others[otherID]; ok {
			sum.OtherUser = other.Brief()
		}
		if msg, ok := lastMsgs[c.ID]; ok {
			msg := msg
			sum.LastMessage = &msg
		}
		summaries = append(summaries, sum)
	}
	return summaries, nil
}

// UnreadCount is the number of unread messages across all of the user's chats.
func (svc *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	counts, err := svc.repo.UnreadCounts(ctx, userID)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "counting unread messages")
	}
	var total int
	for _, n := range counts {
		total += n
	}
	return total, nil
}

// Partners returns the IDs of everyone the user has a chat with.
func (svc *Service) Partners(ctx context.Context, userID string) ([]string, error) {
	chats, err := svc.repo.ListChats(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "listing chats")
	}
	ids := make([]string, 0, len(chats))
	for _, c := range chats {
		ids = append(ids, c.OtherParticipant(userID))
	}
	sort.Strings(ids)
	return ids, nil
}

// BroadcastPresence tells the user's chat partners that they went online or offline.
// It is meant to be registered as a realtime.PresenceListener.
func (svc *Service) BroadcastPresence(userID string, online bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	partners, err := svc.Partners(ctx, userID)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("broadcasting presence of %s: %v", userID, err), err)
		return
	}
	name := realtime.EventPresenceOffline
	if online {
		name = realtime.EventPresenceOnline
	}
	ev := realtime.NewEvent(name, map[string]interface{}{"user_id": userID, "is_online": online})
	for _, id := range partners {
		svc.pusher.PushToUser(id, ev)
	}
}
