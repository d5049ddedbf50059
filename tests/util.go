package testutil

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/realtime"
	"github.com/trezcool/darasa/core/user"
	logsvc "github.com/trezcool/darasa/services/logger"
)

var (
	confOnce sync.Once
	conf     *core.Config
)

// NewConfig returns the test config, loaded once.
func NewConfig() *core.Config {
	confOnce.Do(func() {
		conf = core.NewConfig()
		conf.TestMode = true
		conf.Notification.EmailOffline = true
		conf.Server.DisableReqLogs = true
	})
	return conf
}

// NewLogger returns a logger that reports nowhere.
func NewLogger() core.Logger {
	return logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), NewConfig())
}

// LoadEmailTemplates parses the app's email templates strictly.
func LoadEmailTemplates(t *testing.T) {
	t.Helper()
	core.ParseEmailTemplates(filepath.Join(core.Getwd(), "assets", "templates", "email"), true, NewLogger())
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

var ErrConnClosed = errors.New("connection closed")

// Conn is an in-memory realtime.Conn that records what it is sent.
type Conn struct {
	id     string
	userID string

	mu       sync.Mutex
	events   []realtime.Event
	closed   bool
	failWith error
}

var _ realtime.Conn = (*Conn)(nil)

func NewConn(userID string) *Conn {
	return &Conn{id: uuid.New().String(), userID: userID}
}

func (c *Conn) ID() string     { return c.id }
func (c *Conn) UserID() string { return c.userID }

func (c *Conn) Send(ev realtime.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	if c.failWith != nil {
		return c.failWith
	}
	c.events = append(c.events, ev)
	return nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// FailWith makes the following sends return err.
func (c *Conn) FailWith(err error) {
	c.mu.Lock()
	c.failWith = err
	c.mu.Unlock()
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Events returns the events received so far, optionally only those with one of the given names.
func (c *Conn) Events(names ...string) []realtime.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	evs := make([]realtime.Event, 0, len(c.events))
	for _, ev := range c.events {
		if len(names) == 0 {
			evs = append(evs, ev)
			continue
		}
		for _, name := range names {
			if ev.Name == name {
				evs = append(evs, ev)
				break
			}
		}
	}
	return evs
}
