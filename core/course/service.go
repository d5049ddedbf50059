package course

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/kat-co/vala"
	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/notification"
	"github.com/trezcool/darasa/core/user"
)

var (
	// errors
	ErrSubjectNotFound = core.NewNotFoundError("subject")
	ErrCourseNotFound  = core.NewNotFoundError("course")
	ErrLessonNotFound  = core.NewNotFoundError("lesson")
	ErrCommentNotFound = core.NewNotFoundError("comment")

	ErrSubjectExists = errors.New("a subject with this name already exists")

	errAdminOnly      = core.NewAccessDeniedError("only admins can do this")
	errTeacherOnly    = core.NewAccessDeniedError("only teachers can create courses")
	errStudentOnly    = core.NewAccessDeniedError("only students can do this")
	errNotCourseOwner = core.NewAccessDeniedError("you do not manage this course")
	errNotEnrolled    = core.NewAccessDeniedError("you are not enrolled in this course")
	errNotAuthor      = core.NewAccessDeniedError("you cannot delete this comment")
)

const (
	relatedCourse  = "course"
	relatedLesson  = "lesson"
	relatedComment = "comment"
)

type (
	Repository interface {
		CreateSubject(ctx context.Context, s Subject) (Subject, error)
		GetSubject(ctx context.Context, id string) (Subject, error)
		ListSubjects(ctx context.Context) ([]Subject, error)

		CreateCourse(ctx context.Context, c Course) (Course, error)
		UpdateCourse(ctx context.Context, c Course) (Course, error)
		GetCourse(ctx context.Context, id string) (Course, error)
		QueryCourses(ctx context.Context, filter CourseFilter) ([]Course, error)

		CreateLesson(ctx context.Context, l Lesson) (Lesson, error)
		UpdateLesson(ctx context.Context, l Lesson) (Lesson, error)
		DeleteLesson(ctx context.Context, id string) error
		GetLesson(ctx context.Context, id string) (Lesson, error)
		// ListLessons orders by position then creation.
		ListLessons(ctx context.Context, courseID string) ([]Lesson, error)

		// Enroll returns false when the student was already enrolled.
		Enroll(ctx context.Context, e Enrollment) (bool, error)
		Unenroll(ctx context.Context, courseID, studentID string) (bool, error)
		IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error)
		ListStudentIDs(ctx context.Context, courseID string) ([]string, error)

		// CompleteLesson returns false when the lesson was already completed.
		CompleteLesson(ctx context.Context, lessonID, studentID string, at time.Time) (bool, error)
		CompletedLessonIDs(ctx context.Context, courseID, studentID string) ([]string, error)

		CreateComment(ctx context.Context, c Comment) (Comment, error)
		GetComment(ctx context.Context, id string) (Comment, error)
		// ListComments orders oldest first.
		ListComments(ctx context.Context, lessonID string) ([]Comment, error)
		DeleteComment(ctx context.Context, id string) error

		// UpsertReaction returns true when the user had not reacted to the comment yet.
		UpsertReaction(ctx context.Context, r Reaction) (bool, error)
		DeleteReaction(ctx context.Context, commentID, userID string) (bool, error)
		ReactionCounts(ctx context.Context, commentIDs ...string) (map[string]map[string]int, error)
	}

	UserGetter interface {
		GetByIDs(ctx context.Context, ids ...string) (map[string]user.User, error)
	}

	// Notifier turns domain events into notifications.
	Notifier interface {
		Fanout(ctx context.Context, ev notification.Event) ([]notification.Notification, error)
	}

	Service struct {
		repo     Repository
		users    UserGetter
		notifier Notifier
		logger   core.Logger
		nowFn    func() time.Time
	}
)

func NewService(repo Repository, users UserGetter, notifier Notifier, logger core.Logger) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(users, "users"),
		vala.IsNotNil(notifier, "notifier"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &Service{
		repo:     repo,
		users:    users,
		notifier: notifier,
		logger:   logger,
		nowFn:    time.Now,
	}
}

func (svc *Service) now() time.Time {
	return svc.nowFn().UTC().Truncate(time.Microsecond)
}

// notify fans ev out to everyone but the actor. The primary write already committed,
// so failures are logged and swallowed.
func (svc *Service) notify(ctx context.Context, actor user.User, ev notification.Event) {
	recipients := make([]string, 0, len(ev.RecipientIDs))
	for _, id := range ev.RecipientIDs {
		if id != actor.ID {
			recipients = append(recipients, id)
		}
	}
	if len(recipients) == 0 {
		return
	}
	ev.RecipientIDs = recipients

	if _, err := svc.notifier.Fanout(ctx, ev); err != nil {
		svc.logger.Error(fmt.Sprintf("notifying %s: %v", ev.Type, err), err, actor)
	}
}

func canManage(actor user.User, c Course) bool {
	return actor.ID == c.TeacherID || actor.IsAdmin()
}

// Subjects

func (svc *Service) CreateSubject(ctx context.Context, actor user.User, ns NewSubject) (Subject, error) {
	if !actor.IsAdmin() {
		return Subject{}, errAdminOnly
	}
	ns.Clean()
	s, err := svc.repo.CreateSubject(ctx, Subject{Name: ns.Name, Description: ns.Description, CreatedAt: svc.now()})
	if pkgerrors.Cause(err) == ErrSubjectExists {
		return Subject{}, core.NewValidationError(err, core.FieldError{Field: "name", Error: err.Error()})
	}
	return s, pkgerrors.Wrap(err, "creating subject")
}

func (svc *Service) ListSubjects(ctx context.Context) ([]Subject, error) {
	subjects, err := svc.repo.ListSubjects(ctx)
	return subjects, pkgerrors.Wrap(err, "listing subjects")
}

// Courses

func (svc *Service) CreateCourse(ctx context.Context, actor user.User, nc NewCourse) (Course, error) {
	if !(actor.IsTeacher() || actor.IsAdmin()) {
		return Course{}, errTeacherOnly
	}
	nc.Clean()
	if _, err := svc.repo.GetSubject(ctx, nc.SubjectID); err != nil {
		if core.IsNotFound(err) {
			return Course{}, core.NewValidationError(err, core.FieldError{Field: "subject_id", Error: "invalid subject"})
		}
		return Course{}, pkgerrors.Wrap(err, "getting subject")
	}

	now := svc.now()
	c, err := svc.repo.CreateCourse(ctx, Course{
		SubjectID:   nc.SubjectID,
		TeacherID:   actor.ID,
		Title:       nc.Title,
		Description: nc.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	return c, pkgerrors.Wrap(err, "creating course")
}

// viewableCourse hides unpublished courses from everyone but their managers.
func (svc *Service) viewableCourse(ctx context.Context, actor user.User, courseID string) (Course, error) {
	c, err := svc.repo.GetCourse(ctx, courseID)
	if err != nil {
		return Course{}, err
	}
	if !c.IsPublished && !canManage(actor, c) {
		return Course{}, ErrCourseNotFound
	}
	return c, nil
}

func (svc *Service) managedCourse(ctx context.Context, actor user.User, courseID string) (Course, error) {
	c, err := svc.viewableCourse(ctx, actor, courseID)
	if err != nil {
		return Course{}, err
	}
	if !canManage(actor, c) {
		return Course{}, errNotCourseOwner
	}
	return c, nil
}

func (svc *Service) GetCourse(ctx context.Context, actor user.User, courseID string) (Course, error) {
	return svc.viewableCourse(ctx, actor, courseID)
}

func (svc *Service) QueryCourses(ctx context.Context, actor user.User, filter CourseFilter) ([]Course, error) {
	filter.Search = core.CleanString(filter.Search)
	courses, err := svc.repo.QueryCourses(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "querying courses")
	}
	visible := make([]Course, 0, len(courses))
	for _, c := range courses {
		if c.IsPublished || canManage(actor, c) {
			visible = append(visible, c)
		}
	}
	return visible, nil
}

func (svc *Service) UpdateCourse(ctx context.Context, actor user.User, courseID string, uc UpdateCourse) (Course, error) {
	c, err := svc.managedCourse(ctx, actor, courseID)
	if err != nil {
		return Course{}, err
	}
	if title := core.CleanString(uc.Title); title != "" {
		c.Title = title
	}
	if uc.Description != nil {
		c.Description = core.CleanString(*uc.Description)
	}
	c.UpdatedAt = svc.now()
	c, err = svc.repo.UpdateCourse(ctx, c)
	return c, pkgerrors.Wrap(err, "updating course")
}

// Publish opens the course to enrollment and tells the students already enrolled.
func (svc *Service) Publish(ctx context.Context, actor user.User, courseID string) (Course, error) {
	c, err := svc.managedCourse(ctx, actor, courseID)
	if err != nil {
		return Course{}, err
	}
	if c.IsPublished {
		return c, nil
	}
	c.IsPublished = true
	c.UpdatedAt = svc.now()
	if c, err = svc.repo.UpdateCourse(ctx, c); err != nil {
		return Course{}, pkgerrors.Wrap(err, "publishing course")
	}

	students, err := svc.repo.ListStudentIDs(ctx, c.ID)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("listing students of %s: %v", c.ID, err), err, actor)
		return c, nil
	}
	svc.notify(ctx, actor, notification.Event{
		Type:         notification.TypeCoursePublished,
		RecipientIDs: students,
		Title:        "Course published",
		Message:      fmt.Sprintf("%q is now available.", c.Title),
		RelatedID:    c.ID,
		RelatedType:  relatedCourse,
	})
	return c, nil
}

// Enrollment

func (svc *Service) Enroll(ctx context.Context, actor user.User, courseID string) (Enrollment, error) {
	if !actor.IsStudent() {
		return Enrollment{}, errStudentOnly
	}
	c, err := svc.viewableCourse(ctx, actor, courseID)
	if err != nil {
		return Enrollment{}, err
	}
	if !c.IsPublished {
		return Enrollment{}, ErrCourseNotFound
	}

	e := Enrollment{CourseID: c.ID, StudentID: actor.ID, EnrolledAt: svc.now()}
	created, err := svc.repo.Enroll(ctx, e)
	if err != nil {
		return Enrollment{}, pkgerrors.Wrap(err, "enrolling")
	}
	if created {
		svc.notify(ctx, actor, notification.Event{
			Type:         notification.TypeEnrollment,
			RecipientIDs: []string{c.TeacherID},
			Title:        "New enrollment",
			Message:      fmt.Sprintf("%s enrolled in %q.", actor.Name, c.Title),
			RelatedID:    c.ID,
			RelatedType:  relatedCourse,
		})
	}
	return e, nil
}

func (svc *Service) Unenroll(ctx context.Context, actor user.User, courseID string) error {
	if !actor.IsStudent() {
		return errStudentOnly
	}
	if _, err := svc.repo.GetCourse(ctx, courseID); err != nil {
		return err
	}
	_, err := svc.repo.Unenroll(ctx, courseID, actor.ID)
	return pkgerrors.Wrap(err, "unenrolling")
}

func (svc *Service) Students(ctx context.Context, actor user.User, courseID string) ([]user.Brief, error) {
	c, err := svc.managedCourse(ctx, actor, courseID)
	if err != nil {
		return nil, err
	}
	ids, err := svc.repo.ListStudentIDs(ctx, c.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "listing students")
	}
	users, err := svc.users.GetByIDs(ctx, ids...)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "getting students")
	}
	students := make([]user.Brief, 0, len(ids))
	for _, id := range ids {
		if usr, ok := users[id]; ok {
			students = append(students, usr.Brief())
		}
	}
	return students, nil
}

// participates reports whether actor may follow & discuss the course.
func (svc *Service) participates(ctx context.Context, actor user.User, c Course) (bool, error) {
	if canManage(actor, c) {
		return true, nil
	}
	enrolled, err := svc.repo.IsEnrolled(ctx, c.ID, actor.ID)
	if err != nil {
		return false, pkgerrors.Wrap(err, "checking enrollment")
	}
	return enrolled, nil
}

// Lessons

func (svc *Service) CreateLesson(ctx context.Context, actor user.User, courseID string, nl NewLesson) (Lesson, error) {
	c, err := svc.managedCourse(ctx, actor, courseID)
	if err != nil {
		return Lesson{}, err
	}
	now := svc.now()
	l, err := svc.repo.CreateLesson(ctx, Lesson{
		CourseID:  c.ID,
		Title:     core.CleanString(nl.Title),
		Content:   nl.Content,
		Position:  nl.Position,
		CreatedAt: now,
		UpdatedAt: now,
	})
	return l, pkgerrors.Wrap(err, "creating lesson")
}

// lessonCourse returns the lesson with its (viewable) course.
func (svc *Service) lessonCourse(ctx context.Context, actor user.User, lessonID string) (Lesson, Course, error) {
	l, err := svc.repo.GetLesson(ctx, lessonID)
	if err != nil {
		return Lesson{}, Course{}, err
	}
	c, err := svc.viewableCourse(ctx, actor, l.CourseID)
	if err != nil {
		if core.IsNotFound(err) {
			return Lesson{}, Course{}, ErrLessonNotFound
		}
		return Lesson{}, Course{}, err
	}
	return l, c, nil
}

func (svc *Service) UpdateLesson(ctx context.Context, actor user.User, lessonID string, ul UpdateLesson) (Lesson, error) {
	l, c, err := svc.lessonCourse(ctx, actor, lessonID)
	if err != nil {
		return Lesson{}, err
	}
	if !canManage(actor, c) {
		return Lesson{}, errNotCourseOwner
	}
	if title := core.CleanString(ul.Title); title != "" {
		l.Title = title
	}
	if ul.Content != nil {
		l.Content = *ul.Content
	}
	if ul.Position != nil {
		l.Position = *ul.Position
	}
	l.UpdatedAt = svc.now()
	l, err = svc.repo.UpdateLesson(ctx, l)
	return l, pkgerrors.Wrap(err, "updating lesson")
}

func (svc *Service) DeleteLesson(ctx context.Context, actor user.User, lessonID string) error {
	l, c, err := svc.lessonCourse(ctx, actor, lessonID)
	if err != nil {
		return err
	}
	if !canManage(actor, c) {
		return errNotCourseOwner
	}
	return pkgerrors.Wrap(svc.repo.DeleteLesson(ctx, l.ID), "deleting lesson")
}

func (svc *Service) ListLessons(ctx context.Context, actor user.User, courseID string) ([]Lesson, error) {
	c, err := svc.viewableCourse(ctx, actor, courseID)
	if err != nil {
		return nil, err
	}
	lessons, err := svc.repo.ListLessons(ctx, c.ID)
	return lessons, pkgerrors.Wrap(err, "listing lessons")
}

// Progress

func (svc *Service) CompleteLesson(ctx context.Context, actor user.User, lessonID string) (Progress, error) {
	if !actor.IsStudent() {
		return Progress{}, errStudentOnly
	}
	l, c, err := svc.lessonCourse(ctx, actor, lessonID)
	if err != nil {
		return Progress{}, err
	}
	enrolled, err := svc.repo.IsEnrolled(ctx, c.ID, actor.ID)
	if err != nil {
		return Progress{}, pkgerrors.Wrap(err, "checking enrollment")
	}
	if !enrolled {
		return Progress{}, errNotEnrolled
	}

	created, err := svc.repo.CompleteLesson(ctx, l.ID, actor.ID, svc.now())
	if err != nil {
		return Progress{}, pkgerrors.Wrap(err, "completing lesson")
	}
	if created {
		svc.notify(ctx, actor, notification.Event{
			Type:         notification.TypeLessonCompleted,
			RecipientIDs: []string{c.TeacherID},
			Title:        "Lesson completed",
			Message:      fmt.Sprintf("%s completed %q in %q.", actor.Name, l.Title, c.Title),
			RelatedID:    l.ID,
			RelatedType:  relatedLesson,
		})
	}
	return svc.progress(ctx, c.ID, actor.ID)
}

func (svc *Service) Progress(ctx context.Context, actor user.User, courseID string) (Progress, error) {
	c, err := svc.viewableCourse(ctx, actor, courseID)
	if err != nil {
		return Progress{}, err
	}
	enrolled, err := svc.repo.IsEnrolled(ctx, c.ID, actor.ID)
	if err != nil {
		return Progress{}, pkgerrors.Wrap(err, "checking enrollment")
	}
	if !enrolled {
		return Progress{}, errNotEnrolled
	}
	return svc.progress(ctx, c.ID, actor.ID)
}

func (svc *Service) progress(ctx context.Context, courseID, studentID string) (Progress, error) {
	lessons, err := svc.repo.ListLessons(ctx, courseID)
	if err != nil {
		return Progress{}, pkgerrors.Wrap(err, "listing lessons")
	}
	done, err := svc.repo.CompletedLessonIDs(ctx, courseID, studentID)
	if err != nil {
		return Progress{}, pkgerrors.Wrap(err, "listing completed lessons")
	}
	sort.Strings(done)

	p := Progress{
		CourseID:           courseID,
		StudentID:          studentID,
		CompletedLessonIDs: done,
		Completed:          len(done),
		Total:              len(lessons),
	}
	if p.Total > 0 {
		p.Percent = float64(p.Completed) * 100 / float64(p.Total)
	}
	return p, nil
}

// Comments

// AddComment posts on a lesson and notifies the course teacher, the parent comment's author and
// every mentioned user (each at most once, never the author).
func (svc *Service) AddComment(ctx context.Context, actor user.User, lessonID string, nc NewComment) (Comment, error) {
	l, c, err := svc.lessonCourse(ctx, actor, lessonID)
	if err != nil {
		return Comment{}, err
	}
	ok, err := svc.participates(ctx, actor, c)
	if err != nil {
		return Comment{}, err
	}
	if !ok {
		return Comment{}, errNotEnrolled
	}

	recipients := []string{c.TeacherID}
	typ := notification.TypeComment
	var parentID *string
	if nc.ParentID != "" {
		parent, err := svc.repo.GetComment(ctx, nc.ParentID)
		if err != nil && !core.IsNotFound(err) {
			return Comment{}, pkgerrors.Wrap(err, "getting parent comment")
		}
		if err != nil || parent.LessonID != l.ID {
			return Comment{}, core.NewValidationError(nil, core.FieldError{Field: "parent_id", Error: "invalid parent comment"})
		}
		parentID = &parent.ID
		recipients = append(recipients, parent.AuthorID)
		typ = notification.TypeReply
	}

	content := core.CleanString(nc.Content)
	if content == "" {
		return Comment{}, core.NewValidationError(nil, core.FieldError{Field: "content", Error: "this field cannot be blank"})
	}
	cmt, err := svc.repo.CreateComment(ctx, Comment{
		LessonID:  l.ID,
		AuthorID:  actor.ID,
		ParentID:  parentID,
		Content:   content,
		CreatedAt: svc.now(),
	})
	if err != nil {
		return Comment{}, pkgerrors.Wrap(err, "creating comment")
	}

	title := "New comment"
	if typ == notification.TypeReply {
		title = "New reply"
	}
	svc.notify(ctx, actor, notification.Event{
		Type:         typ,
		RecipientIDs: recipients,
		Title:        title,
		Message:      fmt.Sprintf("%s commented on %q.", actor.Name, l.Title),
		RelatedID:    cmt.ID,
		RelatedType:  relatedComment,
	})

	// mentioned users already notified above get nothing more
	if mentions := svc.activeMentions(ctx, actor, nc.Mentions, recipients); len(mentions) > 0 {
		svc.notify(ctx, actor, notification.Event{
			Type:         notification.TypeMention,
			RecipientIDs: mentions,
			Title:        "You were mentioned",
			Message:      fmt.Sprintf("%s mentioned you on %q.", actor.Name, l.Title),
			RelatedID:    cmt.ID,
			RelatedType:  relatedComment,
		})
	}
	return cmt, nil
}

func (svc *Service) activeMentions(ctx context.Context, actor user.User, ids, exclude []string) []string {
	if len(ids) == 0 {
		return nil
	}
	mentioned, err := svc.users.GetByIDs(ctx, ids...)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("resolving mentions: %v", err), err, actor)
		return nil
	}
	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := skip[id]; ok {
			continue
		}
		if usr, ok := mentioned[id]; ok && usr.IsActive {
			out = append(out, id)
			skip[id] = struct{}{}
		}
	}
	return out
}

func (svc *Service) ListComments(ctx context.Context, actor user.User, lessonID string) ([]CommentView, error) {
	l, _, err := svc.lessonCourse(ctx, actor, lessonID)
	if err != nil {
		return nil, err
	}
	comments, err := svc.repo.ListComments(ctx, l.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "listing comments")
	}
	if len(comments) == 0 {
		return []CommentView{}, nil
	}

	ids := make([]string, 0, len(comments))
	authorIDs := make([]string, 0, len(comments))
	for _, cmt := range comments {
		ids = append(ids, cmt.ID)
		authorIDs = append(authorIDs, cmt.AuthorID)
	}
	counts, err := svc.repo.ReactionCounts(ctx, ids...)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "counting reactions")
	}
	authors, err := svc.users.GetByIDs(ctx, authorIDs...)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "getting authors")
	}

	views := make([]CommentView, 0, len(comments))
	for _, cmt := range comments {
		v := CommentView{Comment: cmt, Author: user.Brief{ID: cmt.AuthorID}, Reactions: counts[cmt.ID]}
		if v.Reactions == nil {
			v.Reactions = map[string]int{}
		}
		if a, ok := authors[cmt.AuthorID]; ok {
			v.Author = a.Brief()
		}
		views = append(views, v)
	}
	return views, nil
}

// commentCourse returns the comment with the course it was posted in.
func (svc *Service) commentCourse(ctx context.Context, actor user.User, commentID string) (Comment, Course, error) {
	cmt, err := svc.repo.GetComment(ctx, commentID)
	if err != nil {
		return Comment{}, Course{}, err
	}
	_, c, err := svc.lessonCourse(ctx, actor, cmt.LessonID)
	if err != nil {
		if core.IsNotFound(err) {
			return Comment{}, Course{}, ErrCommentNotFound
		}
		return Comment{}, Course{}, err
	}
	return cmt, c, nil
}

func (svc *Service) DeleteComment(ctx context.Context, actor user.User, commentID string) error {
	cmt, c, err := svc.commentCourse(ctx, actor, commentID)
	if err != nil {
		return err
	}
	if cmt.AuthorID != actor.ID && !canManage(actor, c) {
		return errNotAuthor
	}
	return pkgerrors.Wrap(svc.repo.DeleteComment(ctx, cmt.ID), "deleting comment")
}

// React sets the actor's reaction on a comment; the author hears about first reactions only.
func (svc *Service) React(ctx context.Context, actor user.User, commentID string, nr NewReaction) (Reaction, error) {
	if !IsValidReactionKind(nr.Kind) {
		return Reaction{}, core.NewValidationError(nil, core.FieldError{Field: "kind", Error: reactionKindText})
	}
	cmt, c, err := svc.commentCourse(ctx, actor, commentID)
	if err != nil {
		return Reaction{}, err
	}
	ok, err := svc.participates(ctx, actor, c)
	if err != nil {
		return Reaction{}, err
	}
	if !ok {
		return Reaction{}, errNotEnrolled
	}

	r := Reaction{CommentID: cmt.ID, UserID: actor.ID, Kind: nr.Kind, CreatedAt: svc.now()}
	created, err := svc.repo.UpsertReaction(ctx, r)
	if err != nil {
		return Reaction{}, pkgerrors.Wrap(err, "reacting")
	}
	if created {
		svc.notify(ctx, actor, notification.Event{
			Type:         notification.TypeReaction,
			RecipientIDs: []string{cmt.AuthorID},
			Title:        "New reaction",
			Message:      fmt.Sprintf("%s reacted %s to your comment.", actor.Name, r.Kind),
			RelatedID:    cmt.ID,
			RelatedType:  relatedComment,
		})
	}
	return r, nil
}

func (svc *Service) Unreact(ctx context.Context, actor user.User, commentID string) error {
	cmt, _, err := svc.commentCourse(ctx, actor, commentID)
	if err != nil {
		return err
	}
	_, err = svc.repo.DeleteReaction(ctx, cmt.ID, actor.ID)
	return pkgerrors.Wrap(err, "removing reaction")
}
