package notification

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

type Type string

const (
	TypeComment         Type = "comment"
	TypeReply           Type = "reply"
	TypeMention         Type = "mention"
	TypeReaction        Type = "reaction"
	TypeEnrollment      Type = "enrollment"
	TypeLessonCompleted Type = "lesson_completed"
	TypeCoursePublished Type = "course_published"
	TypeSystem          Type = "system"
)

var Types = []Type{
	TypeComment, TypeReply, TypeMention, TypeReaction,
	TypeEnrollment, TypeLessonCompleted, TypeCoursePublished, TypeSystem,
}

func (t Type) IsValid() bool {
	for _, typ := range Types {
		if t == typ {
			return true
		}
	}
	return false
}

const (
	DefaultLimit = 20
	MaxLimit     = 100

	MaxTitleLength = 200
)

type Notification struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Type        Type       `json:"type"`
	Title       string     `json:"title"`
	Message     string     `json:"message"`
	RelatedID   *string    `json:"related_id"`
	RelatedType *string    `json:"related_type"`
	IsRead      bool       `json:"is_read"`
	ReadAt      *time.Time `json:"read_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Event is a domain event to be turned into one Notification per recipient.
type Event struct {
	Type         Type
	RecipientIDs []string
	Title        string
	Message      string
	RelatedID    string
	RelatedType  string
}

type QueryFilter struct {
	UnreadOnly bool   `query:"unread"`
	Type       string `query:"type"`
	Limit      int    `query:"limit"`
	Offset     int    `query:"offset"`
}

func (f *QueryFilter) Clean() {
	f.Type = strings.TrimSpace(f.Type)
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// UnreadCount is the payload of the unread badge push.
type UnreadCount struct {
	Count int `json:"count"`
}

// FanoutError lists the recipients whose notification could not be stored.
// The others were stored (and pushed) regardless.
type FanoutError struct {
	Failures map[string]error // {recipientID: err}
}

func (e *FanoutError) Error() string {
	ids := make([]string, 0, len(e.Failures))
	for id := range e.Failures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s: %v", id, e.Failures[id]))
	}
	return fmt.Sprintf("notifying %d recipient(s) failed: %s", len(ids), strings.Join(parts, "; "))
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
