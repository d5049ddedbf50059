package course_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/notification"
	"github.com/trezcool/darasa/core/presence"
	"github.com/trezcool/darasa/core/realtime"
	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/services/email"
	"github.com/trezcool/darasa/storage/database/inmem"
	testutil "github.com/trezcool/darasa/tests"
)

type fixture struct {
	svc      *course.Service
	notifSvc *notification.Service

	admin, teacher, otherTeacher user.User
	student, otherStudent        user.User
	subject                      course.Subject
}

func setup(t *testing.T) fixture {
	testutil.LoadEmailTemplates(t)

	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	logger := testutil.NewLogger()
	usrSvc := user.NewService(usrRepo, logger)
	hub := realtime.NewHub(presence.NewTracker(4), logger, nil)
	notifSvc := notification.NewService(
		inmemdb.NewNotificationRepository(db),
		usrSvc,
		hub,
		emailsvc.NewConsoleServiceMock(testutil.NewConfig(), logger),
		logger,
		notification.Options{},
	)

	f := fixture{
		svc:          course.NewService(inmemdb.NewCourseRepository(db), usrSvc, notifSvc, logger),
		notifSvc:     notifSvc,
		admin:        testutil.CreateUser(t, usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true),
		teacher:      testutil.CreateUser(t, usrRepo, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true),
		otherTeacher: testutil.CreateUser(t, usrRepo, "Teacher 2", "teacher2", "teacher2@test.cd", "", []string{user.RoleTeacher}, true),
		student:      testutil.CreateUser(t, usrRepo, "Student", "student", "student@test.cd", "", []string{user.RoleStudent}, true),
		otherStudent: testutil.CreateUser(t, usrRepo, "Student 2", "student2", "student2@test.cd", "", []string{user.RoleStudent}, true),
	}

	var err error
	f.subject, err = f.svc.CreateSubject(context.Background(), f.admin, course.NewSubject{Name: "Maths"})
	require.NoError(t, err)
	return f
}

func (f fixture) notifications(t *testing.T, usr user.User) []notification.Notification {
	t.Helper()
	notifs, err := f.notifSvc.List(context.Background(), usr.ID, notification.QueryFilter{Limit: notification.MaxLimit})
	require.NoError(t, err)
	return notifs
}

func types(notifs []notification.Notification) []notification.Type {
	out := make([]notification.Type, 0, len(notifs))
	for _, n := range notifs {
		out = append(out, n.Type)
	}
	return out
}

// publishedCourse creates a published course with one lesson, the student being enrolled.
func (f fixture) publishedCourse(t *testing.T) (course.Course, course.Lesson) {
	t.Helper()
	ctx := context.Background()
	c, err := f.svc.CreateCourse(ctx, f.teacher, course.NewCourse{SubjectID: f.subject.ID, Title: "Algebra"})
	require.NoError(t, err)
	l, err := f.svc.CreateLesson(ctx, f.teacher, c.ID, course.NewLesson{Title: "Intro", Position: 1})
	require.NoError(t, err)
	c, err = f.svc.Publish(ctx, f.teacher, c.ID)
	require.NoError(t, err)
	_, err = f.svc.Enroll(ctx, f.student, c.ID)
	require.NoError(t, err)
	return c, l
}

func TestService_subjects(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.CreateSubject(ctx, f.teacher, course.NewSubject{Name: "Physics"})
	assert.True(t, core.IsAccessDenied(err))

	_, err = f.svc.CreateSubject(ctx, f.admin, course.NewSubject{Name: " maths "})
	assert.True(t, core.IsValidation(err), "names are unique, case-insensitively")

	_, err = f.svc.CreateSubject(ctx, f.admin, course.NewSubject{Name: "Biology"})
	require.NoError(t, err)

	subjects, err := f.svc.ListSubjects(ctx)
	require.NoError(t, err)
	require.Len(t, subjects, 2)
	assert.Equal(t, "Biology", subjects[0].Name)
	assert.Equal(t, "Maths", subjects[1].Name)
}

func TestService_courses(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		actor user.User
		nc    course.NewCourse
		check func(error) bool
	}{
		{name: "student", actor: f.student, nc: course.NewCourse{SubjectID: f.subject.ID, Title: "x"}, check: core.IsAccessDenied},
		{name: "unknown subject", actor: f.teacher, nc: course.NewCourse{SubjectID: "nope", Title: "x"}, check: core.IsValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateCourse(ctx, tt.actor, tt.nc)
			assert.True(t, tt.check(err), "got %v", err)
		})
	}

	draft, err := f.svc.CreateCourse(ctx, f.teacher, course.NewCourse{SubjectID: f.subject.ID, Title: "  Algebra "})
	require.NoError(t, err)
	assert.Equal(t, "Algebra", draft.Title)
	assert.Equal(t, f.teacher.ID, draft.TeacherID)
	assert.False(t, draft.IsPublished)

	t.Run("drafts are hidden from others", func(t *testing.T) {
		_, err := f.svc.GetCourse(ctx, f.student, draft.ID)
		assert.True(t, core.IsNotFound(err))
		_, err = f.svc.GetCourse(ctx, f.admin, draft.ID)
		assert.NoError(t, err)

		visible, err := f.svc.QueryCourses(ctx, f.student, course.CourseFilter{})
		require.NoError(t, err)
		assert.Empty(t, visible)
		visible, err = f.svc.QueryCourses(ctx, f.teacher, course.CourseFilter{})
		require.NoError(t, err)
		assert.Len(t, visible, 1)
	})

	t.Run("only managers update", func(t *testing.T) {
		_, err := f.svc.UpdateCourse(ctx, f.otherTeacher, draft.ID, course.UpdateCourse{Title: "Mine"})
		assert.True(t, core.IsNotFound(err), "a draft is not even visible")

		desc := "Linear equations"
		updated, err := f.svc.UpdateCourse(ctx, f.teacher, draft.ID, course.UpdateCourse{Description: &desc})
		require.NoError(t, err)
		assert.Equal(t, "Algebra", updated.Title)
		assert.Equal(t, desc, updated.Description)
	})

	t.Run("publish", func(t *testing.T) {
		_, err := f.svc.Enroll(ctx, f.student, draft.ID)
		assert.True(t, core.IsNotFound(err), "drafts cannot be joined")

		pub, err := f.svc.Publish(ctx, f.teacher, draft.ID)
		require.NoError(t, err)
		assert.True(t, pub.IsPublished)

		_, err = f.svc.UpdateCourse(ctx, f.otherTeacher, draft.ID, course.UpdateCourse{Title: "Mine"})
		assert.True(t, core.IsAccessDenied(err))

		published := true
		found, err := f.svc.QueryCourses(ctx, f.student, course.CourseFilter{Published: &published, Search: "alg"})
		require.NoError(t, err)
		assert.Len(t, found, 1)
	})
}

func TestService_enrollment(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c, _ := f.publishedCourse(t)

	_, err := f.svc.Enroll(ctx, f.teacher, c.ID)
	assert.True(t, core.IsAccessDenied(err))

	_, err = f.svc.Enroll(ctx, f.student, c.ID)
	require.NoError(t, err, "enrolling twice is fine")

	assert.Equal(t, []notification.Type{notification.TypeEnrollment}, types(f.notifications(t, f.teacher)), "notified once")

	students, err := f.svc.Students(ctx, f.teacher, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []user.Brief{f.student.Brief()}, students)

	_, err = f.svc.Students(ctx, f.student, c.ID)
	assert.True(t, core.IsAccessDenied(err))

	require.NoError(t, f.svc.Unenroll(ctx, f.student, c.ID))
	students, err = f.svc.Students(ctx, f.teacher, c.ID)
	require.NoError(t, err)
	assert.Empty(t, students)
}

func TestService_Publish_idempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c, _ := f.publishedCourse(t)

	again, err := f.svc.Publish(ctx, f.teacher, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.UpdatedAt, again.UpdatedAt, "nothing changed")
	assert.Empty(t, f.notifications(t, f.student))

	_, err = f.svc.Publish(ctx, f.otherTeacher, c.ID)
	assert.True(t, core.IsAccessDenied(err))
}

func TestService_lessonsAndProgress(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c, intro := f.publishedCourse(t)

	second, err := f.svc.CreateLesson(ctx, f.teacher, c.ID, course.NewLesson{Title: "Second", Position: 2})
	require.NoError(t, err)
	_, err = f.svc.CreateLesson(ctx, f.student, c.ID, course.NewLesson{Title: "Mine"})
	assert.True(t, core.IsAccessDenied(err))

	pos := 0
	second, err = f.svc.UpdateLesson(ctx, f.teacher, second.ID, course.UpdateLesson{Position: &pos})
	require.NoError(t, err)
	lessons, err := f.svc.ListLessons(ctx, f.student, c.ID)
	require.NoError(t, err)
	require.Len(t, lessons, 2)
	assert.Equal(t, second.ID, lessons[0].ID, "ordered by position")

	_, err = f.svc.CompleteLesson(ctx, f.otherStudent, intro.ID)
	assert.True(t, core.IsAccessDenied(err), "not enrolled")

	p, err := f.svc.CompleteLesson(ctx, f.student, intro.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Completed)
	assert.Equal(t, 2, p.Total)
	assert.Equal(t, 50.0, p.Percent)
	assert.Equal(t, []string{intro.ID}, p.CompletedLessonIDs)

	_, err = f.svc.CompleteLesson(ctx, f.student, intro.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]notification.Type{notification.TypeEnrollment, notification.TypeLessonCompleted},
		types(f.notifications(t, f.teacher)),
		"completing twice notifies once",
	)

	require.NoError(t, f.svc.DeleteLesson(ctx, f.teacher, second.ID))
	p, err = f.svc.Progress(ctx, f.student, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, p.Percent)

	_, err = f.svc.Progress(ctx, f.otherStudent, c.ID)
	assert.True(t, core.IsAccessDenied(err))
}

func TestService_comments(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c, l := f.publishedCourse(t)
	_, err := f.svc.Enroll(ctx, f.otherStudent, c.ID)
	require.NoError(t, err)

	_, err = f.svc.AddComment(ctx, f.otherTeacher, l.ID, course.NewComment{Content: "hi"})
	assert.True(t, core.IsAccessDenied(err), "outsiders cannot comment")

	_, err = f.svc.AddComment(ctx, f.student, l.ID, course.NewComment{Content: "   "})
	assert.True(t, core.IsValidation(err))

	root, err := f.svc.AddComment(ctx, f.student, l.ID, course.NewComment{
		Content:  "What is x?",
		Mentions: []string{f.otherStudent.ID, f.teacher.ID, f.student.ID},
	})
	require.NoError(t, err)

	assert.ElementsMatch(t,
		[]notification.Type{notification.TypeEnrollment, notification.TypeEnrollment, notification.TypeComment},
		types(f.notifications(t, f.teacher)),
		"a mentioned teacher is notified once",
	)
	assert.Equal(t, []notification.Type{notification.TypeMention}, types(f.notifications(t, f.otherStudent)))
	assert.Empty(t, f.notifications(t, f.student), "never the author")

	_, err = f.svc.AddComment(ctx, f.teacher, l.ID, course.NewComment{Content: "bad", ParentID: "nope"})
	assert.True(t, core.IsValidation(err))

	reply, err := f.svc.AddComment(ctx, f.teacher, l.ID, course.NewComment{Content: "A number", ParentID: root.ID})
	require.NoError(t, err)
	require.NotNil(t, reply.ParentID)
	assert.Equal(t, []notification.Type{notification.TypeReply}, types(f.notifications(t, f.student)))

	t.Run("reactions", func(t *testing.T) {
		_, err := f.svc.React(ctx, f.otherStudent, root.ID, course.NewReaction{Kind: "lol"})
		assert.True(t, core.IsValidation(err))

		_, err = f.svc.React(ctx, f.otherStudent, root.ID, course.NewReaction{Kind: course.ReactionLike})
		require.NoError(t, err)
		_, err = f.svc.React(ctx, f.otherStudent, root.ID, course.NewReaction{Kind: course.ReactionInsightful})
		require.NoError(t, err)
		_, err = f.svc.React(ctx, f.teacher, root.ID, course.NewReaction{Kind: course.ReactionInsightful})
		require.NoError(t, err)

		views, err := f.svc.ListComments(ctx, f.student, l.ID)
		require.NoError(t, err)
		require.Len(t, views, 2)
		assert.Equal(t, root.ID, views[0].ID)
		assert.Equal(t, f.student.Brief(), views[0].Author)
		assert.Equal(t, map[string]int{course.ReactionInsightful: 2}, views[0].Reactions, "changing a reaction replaces it")
		assert.Equal(t, map[string]int{}, views[1].Reactions)

		reactions := 0
		for _, typ := range types(f.notifications(t, f.student)) {
			if typ == notification.TypeReaction {
				reactions++
			}
		}
		assert.Equal(t, 2, reactions, "one per reacting user")

		require.NoError(t, f.svc.Unreact(ctx, f.teacher, root.ID))
		views, err = f.svc.ListComments(ctx, f.student, l.ID)
		require.NoError(t, err)
		assert.Equal(t, map[string]int{course.ReactionInsightful: 1}, views[0].Reactions)
	})

	t.Run("delete", func(t *testing.T) {
		assert.True(t, core.IsAccessDenied(f.svc.DeleteComment(ctx, f.otherStudent, root.ID)))
		require.NoError(t, f.svc.DeleteComment(ctx, f.teacher, root.ID), "managers can moderate")

		views, err := f.svc.ListComments(ctx, f.student, l.ID)
		require.NoError(t, err)
		assert.Empty(t, views, "replies go with their parent")
	})
}
