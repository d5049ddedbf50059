// Package inmemdb holds map backed repositories, used by tests and local runs without postgres.
package inmemdb

import (
	"sync"
	"time"

	"github.com/trezcool/darasa/core/chat"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/notification"
	"github.com/trezcool/darasa/core/user"
)

type (
	DB struct {
		user         *userTable
		chat         *chatTable
		notification *notificationTable
		course       *courseTable
	}

	userTable struct {
		mutex sync.RWMutex
		table map[string]*user.User
	}

	chatTable struct {
		mutex    sync.RWMutex
		chats    map[string]*chat.Chat
		messages map[string][]*chat.Message // {chatID: messages in insertion order}
	}

	notificationTable struct {
		mutex sync.RWMutex
		table map[string]*notification.Notification
		// failFor makes inserts for these recipients fail; tests use it to simulate I/O errors.
		failFor map[string]error
	}

	courseTable struct {
		mutex       sync.RWMutex
		subjects    map[string]*course.Subject
		courses     map[string]*course.Course
		lessons     map[string]*course.Lesson
		enrollments map[string]course.Enrollment // {courseID|studentID}
		progress    map[string]time.Time         // {lessonID|studentID}
		comments    map[string]*course.Comment
		reactions   map[string]course.Reaction // {commentID|userID}
	}
)

func Open() *DB {
	return &DB{
		user: &userTable{table: make(map[string]*user.User)},
		chat: &chatTable{
			chats:    make(map[string]*chat.Chat),
			messages: make(map[string][]*chat.Message),
		},
		notification: &notificationTable{
			table:   make(map[string]*notification.Notification),
			failFor: make(map[string]error),
		},
		course: &courseTable{
			subjects:    make(map[string]*course.Subject),
			courses:     make(map[string]*course.Course),
			lessons:     make(map[string]*course.Lesson),
			enrollments: make(map[string]course.Enrollment),
			progress:    make(map[string]time.Time),
			comments:    make(map[string]*course.Comment),
			reactions:   make(map[string]course.Reaction),
		},
	}
}

func pairKey(a, b string) string {
	return a + "|" + b
}
