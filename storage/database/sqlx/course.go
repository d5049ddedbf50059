package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/reflectx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core/course"
)

const (
	subjectColumns = "id, name, description, created_at"
	courseColumns  = "id, subject_id, teacher_id, title, description, is_published, created_at, updated_at"
	lessonColumns  = "id, course_id, title, content, position, created_at, updated_at"
	commentColumns = "id, lesson_id, author_id, parent_id, content, created_at"
)

type commentRow struct {
	ID        string      `json:"id"`
	LessonID  string      `json:"lesson_id"`
	AuthorID  string      `json:"author_id"`
	ParentID  null.String `json:"parent_id"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}

func (r commentRow) comment() course.Comment {
	return course.Comment{
		ID:        r.ID,
		LessonID:  r.LessonID,
		AuthorID:  r.AuthorID,
		ParentID:  r.ParentID.Ptr(),
		Content:   r.Content,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

type courseRepository struct {
	db *sqlx.DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

// NewCourseRepository maps columns through the models' json tags, which carry the column names.
func NewCourseRepository(db *sqlx.DB) *courseRepository {
	mapped := sqlx.NewDb(db.DB, db.DriverName())
	mapped.Mapper = reflectx.NewMapperFunc("json", strings.ToLower)
	return &courseRepository{db: mapped}
}

// get runs a single-row query, mapping "no rows" (and malformed IDs) to notFound.
func (repo *courseRepository) get(ctx context.Context, dest interface{}, notFound error, q, id, msg string) error {
	if !isUUID(id) {
		return notFound
	}
	err := repo.db.GetContext(ctx, dest, q, id)
	if isNoRows(err) {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// Subjects

func (repo *courseRepository) CreateSubject(ctx context.Context, s course.Subject) (course.Subject, error) {
	s.ID = uuid.New().String()
	s.CreatedAt = s.CreatedAt.UTC()
	_, err := repo.db.NamedExecContext(ctx,
		"INSERT INTO subject ("+subjectColumns+") VALUES (:id, :name, :description, :created_at)",
		map[string]interface{}{"id": s.ID, "name": s.Name, "description": s.Description, "created_at": s.CreatedAt},
	)
	if pqCode(err) == pqUniqueViolation {
		return course.Subject{}, course.ErrSubjectExists
	}
	if err != nil {
		return course.Subject{}, errors.Wrap(err, "inserting subject")
	}
	return s, nil
}

func (repo *courseRepository) GetSubject(ctx context.Context, id string) (course.Subject, error) {
	var s course.Subject
	if err := repo.get(ctx, &s, course.ErrSubjectNotFound, "SELECT "+subjectColumns+" FROM subject WHERE id = $1", id, "getting subject"); err != nil {
		return course.Subject{}, err
	}
	s.CreatedAt = s.CreatedAt.UTC()
	return s, nil
}

func (repo *courseRepository) ListSubjects(ctx context.Context) ([]course.Subject, error) {
	subjects := make([]course.Subject, 0)
	if err := repo.db.SelectContext(ctx, &subjects, "SELECT "+subjectColumns+" FROM subject ORDER BY name"); err != nil {
		return nil, errors.Wrap(err, "listing subjects")
	}
	return subjects, nil
}

// Courses

func (repo *courseRepository) CreateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	c.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx,
		"INSERT INTO course ("+courseColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		c.ID, c.SubjectID, c.TeacherID, c.Title, c.Description, c.IsPublished, c.CreatedAt.UTC(), c.UpdatedAt.UTC(),
	)
	if pqCode(err) == pqForeignKeyViolation {
		return course.Course{}, course.ErrSubjectNotFound
	}
	if err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return c, nil
}

func (repo *courseRepository) UpdateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	if !isUUID(c.ID) {
		return course.Course{}, course.ErrCourseNotFound
	}
	res, err := repo.db.ExecContext(ctx,
		"UPDATE course SET title = $2, description = $3, is_published = $4, updated_at = $5 WHERE id = $1",
		c.ID, c.Title, c.Description, c.IsPublished, c.UpdatedAt.UTC(),
	)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "updating course")
	}
	n, err := rowsAffected(res, "updating course")
	if err != nil {
		return course.Course{}, err
	}
	if n == 0 {
		return course.Course{}, course.ErrCourseNotFound
	}
	return c, nil
}

func (repo *courseRepository) GetCourse(ctx context.Context, id string) (course.Course, error) {
	var c course.Course
	if err := repo.get(ctx, &c, course.ErrCourseNotFound, "SELECT "+courseColumns+" FROM course WHERE id = $1", id, "getting course"); err != nil {
		return course.Course{}, err
	}
	return c, nil
}

func (repo *courseRepository) QueryCourses(ctx context.Context, filter course.CourseFilter) ([]course.Course, error) {
	courses := make([]course.Course, 0)
	if (filter.SubjectID != "" && !isUUID(filter.SubjectID)) || (filter.TeacherID != "" && !isUUID(filter.TeacherID)) {
		return courses, nil
	}

	q := "SELECT " + courseColumns + " FROM course WHERE true"
	var args []interface{}
	if filter.SubjectID != "" {
		q += " AND subject_id = ?"
		args = append(args, filter.SubjectID)
	}
	if filter.TeacherID != "" {
		q += " AND teacher_id = ?"
		args = append(args, filter.TeacherID)
	}
	if filter.Published != nil {
		q += " AND is_published = ?"
		args = append(args, *filter.Published)
	}
	if filter.Search != "" {
		q += " AND title ILIKE ?"
		args = append(args, "%"+filter.Search+"%")
	}
	q += " ORDER BY created_at DESC"

	if err := repo.db.SelectContext(ctx, &courses, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	return courses, nil
}

// Lessons

func (repo *courseRepository) CreateLesson(ctx context.Context, l course.Lesson) (course.Lesson, error) {
	if !isUUID(l.CourseID) {
		return course.Lesson{}, course.ErrCourseNotFound
	}
	l.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx,
		"INSERT INTO lesson ("+lessonColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7)",
		l.ID, l.CourseID, l.Title, l.Content, l.Position, l.CreatedAt.UTC(), l.UpdatedAt.UTC(),
	)
	if pqCode(err) == pqForeignKeyViolation {
		return course.Lesson{}, course.ErrCourseNotFound
	}
	if err != nil {
		return course.Lesson{}, errors.Wrap(err, "inserting lesson")
	}
	return l, nil
}

func (repo *courseRepository) UpdateLesson(ctx context.Context, l course.Lesson) (course.Lesson, error) {
	if !isUUID(l.ID) {
		return course.Lesson{}, course.ErrLessonNotFound
	}
	res, err := repo.db.ExecContext(ctx,
		"UPDATE lesson SET title = $2, content = $3, position = $4, updated_at = $5 WHERE id = $1",
		l.ID, l.Title, l.Content, l.Position, l.UpdatedAt.UTC(),
	)
	if err != nil {
		return course.Lesson{}, errors.Wrap(err, "updating lesson")
	}
	n, err := rowsAffected(res, "updating lesson")
	if err != nil {
		return course.Lesson{}, err
	}
	if n == 0 {
		return course.Lesson{}, course.ErrLessonNotFound
	}
	return l, nil
}

// DeleteLesson relies on ON DELETE CASCADE for progress & comments.
func (repo *courseRepository) DeleteLesson(ctx context.Context, id string) error {
	if !isUUID(id) {
		return course.ErrLessonNotFound
	}
	res, err := repo.db.ExecContext(ctx, "DELETE FROM lesson WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "deleting lesson")
	}
	n, err := rowsAffected(res, "deleting lesson")
	if err != nil {
		return err
	}
	if n == 0 {
		return course.ErrLessonNotFound
	}
	return nil
}

func (repo *courseRepository) GetLesson(ctx context.Context, id string) (course.Lesson, error) {
	var l course.Lesson
	if err := repo.get(ctx, &l, course.ErrLessonNotFound, "SELECT "+lessonColumns+" FROM lesson WHERE id = $1", id, "getting lesson"); err != nil {
		return course.Lesson{}, err
	}
	return l, nil
}

func (repo *courseRepository) ListLessons(ctx context.Context, courseID string) ([]course.Lesson, error) {
	lessons := make([]course.Lesson, 0)
	if !isUUID(courseID) {
		return lessons, nil
	}
	err := repo.db.SelectContext(ctx, &lessons,
		"SELECT "+lessonColumns+" FROM lesson WHERE course_id = $1 ORDER BY position, created_at",
		courseID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "listing lessons")
	}
	return lessons, nil
}

// Enrollment & progress

func (repo *courseRepository) Enroll(ctx context.Context, e course.Enrollment) (bool, error) {
	if !isUUID(e.CourseID, e.StudentID) {
		return false, course.ErrCourseNotFound
	}
	res, err := repo.db.ExecContext(ctx,
		"INSERT INTO enrollment (course_id, student_id, enrolled_at) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING",
		e.CourseID, e.StudentID, e.EnrolledAt.UTC(),
	)
	if pqCode(err) == pqForeignKeyViolation {
		return false, course.ErrCourseNotFound
	}
	if err != nil {
		return false, errors.Wrap(err, "enrolling student")
	}
	n, err := rowsAffected(res, "enrolling student")
	return n > 0, err
}

func (repo *courseRepository) Unenroll(ctx context.Context, courseID, studentID string) (bool, error) {
	if !isUUID(courseID, studentID) {
		return false, nil
	}
	res, err := repo.db.ExecContext(ctx, "DELETE FROM enrollment WHERE course_id = $1 AND student_id = $2", courseID, studentID)
	if err != nil {
		return false, errors.Wrap(err, "unenrolling student")
	}
	n, err := rowsAffected(res, "unenrolling student")
	return n > 0, err
}

func (repo *courseRepository) IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error) {
	if !isUUID(courseID, studentID) {
		return false, nil
	}
	var enrolled bool
	err := repo.db.GetContext(ctx, &enrolled,
		"SELECT EXISTS (SELECT 1 FROM enrollment WHERE course_id = $1 AND student_id = $2)",
		courseID, studentID,
	)
	if err != nil {
		return false, errors.Wrap(err, "checking enrollment")
	}
	return enrolled, nil
}

func (repo *courseRepository) ListStudentIDs(ctx context.Context, courseID string) ([]string, error) {
	ids := make([]string, 0)
	if !isUUID(courseID) {
		return ids, nil
	}
	if err := repo.db.SelectContext(ctx, &ids, "SELECT student_id FROM enrollment WHERE course_id = $1 ORDER BY enrolled_at", courseID); err != nil {
		return nil, errors.Wrap(err, "listing students")
	}
	return ids, nil
}

func (repo *courseRepository) CompleteLesson(ctx context.Context, lessonID, studentID string, at time.Time) (bool, error) {
	if !isUUID(lessonID, studentID) {
		return false, course.ErrLessonNotFound
	}
	res, err := repo.db.ExecContext(ctx,
		"INSERT INTO lesson_progress (lesson_id, student_id, completed_at) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING",
		lessonID, studentID, at.UTC(),
	)
	if pqCode(err) == pqForeignKeyViolation {
		return false, course.ErrLessonNotFound
	}
	if err != nil {
		return false, errors.Wrap(err, "completing lesson")
	}
	n, err := rowsAffected(res, "completing lesson")
	return n > 0, err
}

func (repo *courseRepository) CompletedLessonIDs(ctx context.Context, courseID, studentID string) ([]string, error) {
	ids := make([]string, 0)
	if !isUUID(courseID, studentID) {
		return ids, nil
	}
	err := repo.db.SelectContext(ctx, &ids, `
		SELECT l.id FROM lesson l JOIN lesson_progress p ON p.lesson_id = l.id
		WHERE l.course_id = $1 AND p.student_id = $2
		ORDER BY l.position, l.created_at`,
		courseID, studentID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "listing completed lessons")
	}
	return ids, nil
}

// Comments & reactions

func (repo *courseRepository) CreateComment(ctx context.Context, c course.Comment) (course.Comment, error) {
	if !isUUID(c.LessonID) {
		return course.Comment{}, course.ErrLessonNotFound
	}
	c.ID = uuid.New().String()
	_, err := repo.db.ExecContext(ctx,
		"INSERT INTO comment ("+commentColumns+") VALUES ($1, $2, $3, $4, $5, $6)",
		c.ID, c.LessonID, c.AuthorID, null.StringFromPtr(c.ParentID), c.Content, c.CreatedAt.UTC(),
	)
	if pqCode(err) == pqForeignKeyViolation {
		if c.ParentID != nil {
			return course.Comment{}, course.ErrCommentNotFound
		}
		return course.Comment{}, course.ErrLessonNotFound
	}
	if err != nil {
		return course.Comment{}, errors.Wrap(err, "inserting comment")
	}
	return c, nil
}

func (repo *courseRepository) GetComment(ctx context.Context, id string) (course.Comment, error) {
	var row commentRow
	if err := repo.get(ctx, &row, course.ErrCommentNotFound, "SELECT "+commentColumns+" FROM comment WHERE id = $1", id, "getting comment"); err != nil {
		return course.Comment{}, err
	}
	return row.comment(), nil
}

func (repo *courseRepository) ListComments(ctx context.Context, lessonID string) ([]course.Comment, error) {
	comments := make([]course.Comment, 0)
	if !isUUID(lessonID) {
		return comments, nil
	}
	var rows []commentRow
	if err := repo.db.SelectContext(ctx, &rows, "SELECT "+commentColumns+" FROM comment WHERE lesson_id = $1 ORDER BY created_at", lessonID); err != nil {
		return nil, errors.Wrap(err, "listing comments")
	}
	for _, r := range rows {
		comments = append(comments, r.comment())
	}
	return comments, nil
}

// DeleteComment relies on ON DELETE CASCADE for replies & reactions.
func (repo *courseRepository) DeleteComment(ctx context.Context, id string) error {
	if !isUUID(id) {
		return course.ErrCommentNotFound
	}
	res, err := repo.db.ExecContext(ctx, "DELETE FROM comment WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "deleting comment")
	}
	n, err := rowsAffected(res, "deleting comment")
	if err != nil {
		return err
	}
	if n == 0 {
		return course.ErrCommentNotFound
	}
	return nil
}

func (repo *courseRepository) UpsertReaction(ctx context.Context, r course.Reaction) (bool, error) {
	if !isUUID(r.CommentID) {
		return false, course.ErrCommentNotFound
	}
	// xmax is 0 on freshly inserted rows
	var created bool
	err := repo.db.GetContext(ctx, &created, `
		INSERT INTO reaction (comment_id, user_id, kind, created_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (comment_id, user_id) DO UPDATE SET kind = EXCLUDED.kind
		RETURNING (xmax = 0)`,
		r.CommentID, r.UserID, r.Kind, r.CreatedAt.UTC(),
	)
	if pqCode(err) == pqForeignKeyViolation {
		return false, course.ErrCommentNotFound
	}
	if err != nil {
		return false, errors.Wrap(err, "upserting reaction")
	}
	return created, nil
}

func (repo *courseRepository) DeleteReaction(ctx context.Context, commentID, userID string) (bool, error) {
	if !isUUID(commentID, userID) {
		return false, nil
	}
	res, err := repo.db.ExecContext(ctx, "DELETE FROM reaction WHERE comment_id = $1 AND user_id = $2", commentID, userID)
	if err != nil {
		return false, errors.Wrap(err, "deleting reaction")
	}
	n, err := rowsAffected(res, "deleting reaction")
	return n > 0, err
}

func (repo *courseRepository) ReactionCounts(ctx context.Context, commentIDs ...string) (map[string]map[string]int, error) {
	counts := make(map[string]map[string]int)
	commentIDs = uuids(commentIDs)
	if len(commentIDs) == 0 {
		return counts, nil
	}
	var rows []struct {
		CommentID string `json:"comment_id"`
		Kind      string `json:"kind"`
		Count     int    `json:"count"`
	}
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT comment_id, kind, COUNT(*) AS count FROM reaction
		WHERE comment_id = ANY($1)
		GROUP BY comment_id, kind`,
		pq.Array(commentIDs),
	)
	if err != nil {
		return nil, errors.Wrap(err, "counting reactions")
	}
	for _, r := range rows {
		if counts[r.CommentID] == nil {
			counts[r.CommentID] = make(map[string]int)
		}
		counts[r.CommentID][r.Kind] = r.Count
	}
	return counts, nil
}
