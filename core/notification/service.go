package notification

import (
	"context"
	"fmt"
	"net/mail"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/realtime"
	"github.com/trezcool/darasa/core/user"
)

var (
	// errors
	ErrNotFound = core.NewNotFoundError("notification")
	ErrNotOwner = core.NewAccessDeniedError("this notification is not yours")

	errBlankTitle   = core.NewValidationError(nil, core.FieldError{Field: "title", Error: "this field is required"})
	errTitleTooLong = core.NewValidationError(nil, core.FieldError{
		Field: "title",
		Error: fmt.Sprintf("title must be a maximum of %d characters in length", MaxTitleLength),
	})

	emailTemplate = "notification"
)

type (
	Repository interface {
		CreateNotification(ctx context.Context, n Notification) (Notification, error)
		GetNotification(ctx context.Context, id string) (Notification, error)
		// QueryNotifications returns the user's notifications, newest first.
		QueryNotifications(ctx context.Context, userID string, filter QueryFilter) ([]Notification, error)
		CountUnread(ctx context.Context, userID string) (int, error)
		// MarkRead returns false when the notification was already read.
		MarkRead(ctx context.Context, id string, at time.Time) (bool, error)
		MarkAllRead(ctx context.Context, userID string, at time.Time) (int, error)
		DeleteNotification(ctx context.Context, id string) error
	}

	UserGetter interface {
		GetByIDs(ctx context.Context, ids ...string) (map[string]user.User, error)
	}

	Options struct {
		// Concurrency bounds the inserts of one fan-out.
		Concurrency int
		// EmailOffline mails the notification to recipients with no open connection.
		EmailOffline    bool
		FrontendBaseURL string
	}

	Service struct {
		repo    Repository
		users   UserGetter
		pusher  realtime.Pusher
		mailSvc core.EmailService
		logger  core.Logger
		opts    Options
		nowFn   func() time.Time
	}
)

func NewService(
	repo Repository,
	users UserGetter,
	pusher realtime.Pusher,
	mailSvc core.EmailService,
	logger core.Logger,
	opts Options,
) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(users, "users"),
		vala.IsNotNil(pusher, "pusher"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	return &Service{
		repo:    repo,
		users:   users,
		pusher:  pusher,
		mailSvc: mailSvc,
		logger:  logger,
		opts:    opts,
		nowFn:   time.Now,
	}
}

func (svc *Service) now() time.Time {
	return svc.nowFn().UTC().Truncate(time.Microsecond)
}

// dedupe drops empty & repeated IDs, keeping the order of first appearance.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func validateTitle(title string) (string, error) {
	title = core.CleanString(title)
	if title == "" {
		return "", errBlankTitle
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", errTitleTooLong
	}
	return title, nil
}

// Fanout stores one Notification per distinct recipient of ev then delivers it:
// pushed live to online recipients, optionally mailed to offline ones.
// Each recipient is handled on its own; a failed insert is reported in a *FanoutError
// and never prevents the other recipients from being notified.
// Delivery failures are logged only.
func (svc *Service) Fanout(ctx context.Context, ev Event) ([]Notification, error) {
	if !ev.Type.IsValid() {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "type", Error: fmt.Sprintf("unknown notification type %q", ev.Type)})
	}
	title, err := validateTitle(ev.Title)
	if err != nil {
		return nil, err
	}

	recipients := dedupe(ev.RecipientIDs)
	if len(recipients) == 0 {
		return []Notification{}, nil
	}

	created := make([]*Notification, len(recipients))
	var (
		mu       sync.Mutex
		failures map[string]error
		offline  []Notification
	)

	var g errgroup.Group
	g.SetLimit(svc.opts.Concurrency)
	for i, recipientID := range recipients {
		i, recipientID := i, recipientID
		g.Go(func() error {
			n, err := svc.repo.CreateNotification(ctx, Notification{
				UserID:      recipientID,
				Type:        ev.Type,
				Title:       title,
				Message:     ev.Message,
				RelatedID:   strPtr(ev.RelatedID),
				RelatedType: strPtr(ev.RelatedType),
				CreatedAt:   svc.now(),
			})
			if err != nil {
				mu.Lock()
				if failures == nil {
					failures = make(map[string]error)
				}
				failures[recipientID] = err
				mu.Unlock()
				return nil // keep notifying the others
			}
			created[i] = &n

			if !svc.push(n) {
				mu.Lock()
				offline = append(offline, n)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if svc.opts.EmailOffline && len(offline) > 0 {
		svc.email(ctx, offline)
	}

	notifs := make([]Notification, 0, len(created))
	for _, n := range created {
		if n != nil {
			notifs = append(notifs, *n)
		}
	}
	if failures != nil {
		return notifs, &FanoutError{Failures: failures}
	}
	return notifs, nil
}

// push returns false if the recipient had no open connection.
func (svc *Service) push(n Notification) bool {
	if !svc.pusher.IsOnline(n.UserID) {
		return false
	}
	if delivered := svc.pusher.PushToUser(n.UserID, realtime.NewEvent(realtime.EventNotificationCreated, n)); delivered == 0 {
		svc.logger.Debug(fmt.Sprintf("notification %s stored but not delivered live to %s", n.ID, n.UserID))
	}
	return true
}

type emailData struct {
	Name    string
	Title   string
	Message string
}

func (svc *Service) email(ctx context.Context, notifs []Notification) {
	ids := make([]string, 0, len(notifs))
	for _, n := range notifs {
		ids = append(ids, n.UserID)
	}
	users, err := svc.users.GetByIDs(ctx, ids...)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("getting offline recipients: %v", err), err)
		return
	}

	msgs := make([]*core.EmailMessage, 0, len(notifs))
	for _, n := range notifs {
		usr, ok := users[n.UserID]
		if !ok || usr.Email == "" || !usr.IsActive {
			continue
		}
		msgs = append(msgs, &core.EmailMessage{
			To:              []mail.Address{{Name: usr.Name, Address: usr.Email}},
			Subject:         n.Title,
			TemplateName:    emailTemplate,
			TemplateData:    emailData{Name: usr.Name, Title: n.Title, Message: n.Message},
			FrontendBaseURL: svc.opts.FrontendBaseURL,
		})
	}
	if len(msgs) > 0 {
		svc.mailSvc.SendMessages(msgs...)
	}
}

func (svc *Service) List(ctx context.Context, userID string, filter QueryFilter) ([]Notification, error) {
	filter.Clean()
	if filter.Type != "" && !Type(filter.Type).IsValid() {
		return []Notification{}, nil
	}
	notifs, err := svc.repo.QueryNotifications(ctx, userID, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying notifications")
	}
	return notifs, nil
}

func (svc *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	n, err := svc.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, errors.Wrap(err, "counting unread notifications")
	}
	return n, nil
}

func (svc *Service) getOwned(ctx context.Context, userID, id string) (Notification, error) {
	n, err := svc.repo.GetNotification(ctx, id)
	if err != nil {
		return Notification{}, err
	}
	if n.UserID != userID {
		return Notification{}, ErrNotOwner
	}
	return n, nil
}

// MarkRead marks one of the user's notifications as read. Calling it again is a no-op.
func (svc *Service) MarkRead(ctx context.Context, userID, id string) (Notification, error) {
	n, err := svc.getOwned(ctx, userID, id)
	if err != nil {
		return Notification{}, err
	}
	if n.IsRead {
		return n, nil
	}

	now := svc.now()
	changed, err := svc.repo.MarkRead(ctx, n.ID, now)
	if err != nil {
		return Notification{}, errors.Wrap(err, "marking notification read")
	}
	if changed {
		n.IsRead = true
		n.ReadAt = &now
		svc.pushUnreadCount(ctx, userID)
		return n, nil
	}
	// read concurrently; report the stored state
	return svc.repo.GetNotification(ctx, n.ID)
}

func (svc *Service) MarkAllRead(ctx context.Context, userID string) (int, error) {
	cnt, err := svc.repo.MarkAllRead(ctx, userID, svc.now())
	if err != nil {
		return 0, errors.Wrap(err, "marking all notifications read")
	}
	if cnt > 0 {
		svc.pushUnreadCount(ctx, userID)
	}
	return cnt, nil
}

func (svc *Service) Delete(ctx context.Context, userID, id string) error {
	n, err := svc.getOwned(ctx, userID, id)
	if err != nil {
		return err
	}
	if err = svc.repo.DeleteNotification(ctx, n.ID); err != nil {
		return errors.Wrap(err, "deleting notification")
	}
	if !n.IsRead {
		svc.pushUnreadCount(ctx, userID)
	}
	return nil
}

// pushUnreadCount refreshes the unread badge on the user's other tabs.
func (svc *Service) pushUnreadCount(ctx context.Context, userID string) {
	if !svc.pusher.IsOnline(userID) {
		return
	}
	cnt, err := svc.repo.CountUnread(ctx, userID)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("counting unread notifications of %s: %v", userID, err), err)
		return
	}
	svc.pusher.PushToUser(userID, realtime.NewEvent(realtime.EventNotificationUnread, UnreadCount{Count: cnt}))
}
