package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/darasa/core/course"
)

type courseRepository struct {
	db *courseTable
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *DB) *courseRepository {
	return &courseRepository{db: db.course}
}

// Subjects

func (repo *courseRepository) CreateSubject(_ context.Context, s course.Subject) (course.Subject, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, existing := range repo.db.subjects {
		if strings.EqualFold(existing.Name, s.Name) {
			return course.Subject{}, course.ErrSubjectExists
		}
	}
	s.ID = uuid.New().String()
	stored := s
	repo.db.subjects[s.ID] = &stored
	return s, nil
}

func (repo *courseRepository) GetSubject(_ context.Context, id string) (course.Subject, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if s, ok := repo.db.subjects[id]; ok {
		return *s, nil
	}
	return course.Subject{}, course.ErrSubjectNotFound
}

func (repo *courseRepository) ListSubjects(_ context.Context) ([]course.Subject, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	subjects := make([]course.Subject, 0, len(repo.db.subjects))
	for _, s := range repo.db.subjects {
		subjects = append(subjects, *s)
	}
	sort.Slice(subjects, func(i, j int) bool { return subjects[i].Name < subjects[j].Name })
	return subjects, nil
}

// Courses

func (repo *courseRepository) CreateCourse(_ context.Context, c course.Course) (course.Course, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	c.ID = uuid.New().String()
	stored := c
	repo.db.courses[c.ID] = &stored
	return c, nil
}

func (repo *courseRepository) UpdateCourse(_ context.Context, c course.Course) (course.Course, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.courses[c.ID]; !ok {
		return course.Course{}, course.ErrCourseNotFound
	}
	stored := c
	repo.db.courses[c.ID] = &stored
	return c, nil
}

func (repo *courseRepository) GetCourse(_ context.Context, id string) (course.Course, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if c, ok := repo.db.courses[id]; ok {
		return *c, nil
	}
	return course.Course{}, course.ErrCourseNotFound
}

func (repo *courseRepository) QueryCourses(_ context.Context, filter course.CourseFilter) ([]course.Course, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	search := strings.ToLower(filter.Search)
	courses := make([]course.Course, 0)
	for _, c := range repo.db.courses {
		if filter.SubjectID != "" && c.SubjectID != filter.SubjectID {
			continue
		}
		if filter.TeacherID != "" && c.TeacherID != filter.TeacherID {
			continue
		}
		if filter.Published != nil && c.IsPublished != *filter.Published {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(c.Title), search) {
			continue
		}
		courses = append(courses, *c)
	}
	sort.Slice(courses, func(i, j int) bool { return courses[i].CreatedAt.After(courses[j].CreatedAt) })
	return courses, nil
}

// Lessons

func (repo *courseRepository) CreateLesson(_ context.Context, l course.Lesson) (course.Lesson, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.courses[l.CourseID]; !ok {
		return course.Lesson{}, course.ErrCourseNotFound
	}
	l.ID = uuid.New().String()
	stored := l
	repo.db.lessons[l.ID] = &stored
	return l, nil
}

func (repo *courseRepository) UpdateLesson(_ context.Context, l course.Lesson) (course.Lesson, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.lessons[l.ID]; !ok {
		return course.Lesson{}, course.ErrLessonNotFound
	}
	stored := l
	repo.db.lessons[l.ID] = &stored
	return l, nil
}

func (repo *courseRepository) DeleteLesson(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.lessons[id]; !ok {
		return course.ErrLessonNotFound
	}
	delete(repo.db.lessons, id)
	for key := range repo.db.progress {
		if strings.HasPrefix(key, id+"|") {
			delete(repo.db.progress, key)
		}
	}
	for cid, cmt := range repo.db.comments {
		if cmt.LessonID == id {
			delete(repo.db.comments, cid)
		}
	}
	return nil
}

func (repo *courseRepository) GetLesson(_ context.Context, id string) (course.Lesson, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if l, ok := repo.db.lessons[id]; ok {
		return *l, nil
	}
	return course.Lesson{}, course.ErrLessonNotFound
}

func (repo *courseRepository) listLessons(courseID string) []course.Lesson {
	lessons := make([]course.Lesson, 0)
	for _, l := range repo.db.lessons {
		if l.CourseID == courseID {
			lessons = append(lessons, *l)
		}
	}
	sort.Slice(lessons, func(i, j int) bool {
		if lessons[i].Position == lessons[j].Position {
			return lessons[i].CreatedAt.Before(lessons[j].CreatedAt)
		}
		return lessons[i].Position < lessons[j].Position
	})
	return lessons
}

func (repo *courseRepository) ListLessons(_ context.Context, courseID string) ([]course.Lesson, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.listLessons(courseID), nil
}

// Enrollment & progress

func (repo *courseRepository) Enroll(_ context.Context, e course.Enrollment) (bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	key := pairKey(e.CourseID, e.StudentID)
	if _, ok := repo.db.enrollments[key]; ok {
		return false, nil
	}
	repo.db.enrollments[key] = e
	return true, nil
}

func (repo *courseRepository) Unenroll(_ context.Context, courseID, studentID string) (bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	key := pairKey(courseID, studentID)
	if _, ok := repo.db.enrollments[key]; !ok {
		return false, nil
	}
	delete(repo.db.enrollments, key)
	return true, nil
}

func (repo *courseRepository) IsEnrolled(_ context.Context, courseID, studentID string) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	_, ok := repo.db.enrollments[pairKey(courseID, studentID)]
	return ok, nil
}

func (repo *courseRepository) ListStudentIDs(_ context.Context, courseID string) ([]string, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	enrollments := make([]course.Enrollment, 0)
	for _, e := range repo.db.enrollments {
		if e.CourseID == courseID {
			enrollments = append(enrollments, e)
		}
	}
	sort.Slice(enrollments, func(i, j int) bool { return enrollments[i].EnrolledAt.Before(enrollments[j].EnrolledAt) })

	ids := make([]string, 0, len(enrollments))
	for _, e := range enrollments {
		ids = append(ids, e.StudentID)
	}
	return ids, nil
}

func (repo *courseRepository) CompleteLesson(_ context.Context, lessonID, studentID string, at time.Time) (bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	key := pairKey(lessonID, studentID)
	if _, ok := repo.db.progress[key]; ok {
		return false, nil
	}
	repo.db.progress[key] = at
	return true, nil
}

func (repo *courseRepository) CompletedLessonIDs(_ context.Context, courseID, studentID string) ([]string, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	ids := make([]string, 0)
	for _, l := range repo.listLessons(courseID) {
		if _, ok := repo.db.progress[pairKey(l.ID, studentID)]; ok {
			ids = append(ids, l.ID)
		}
	}
	return ids, nil
}

// Comments & reactions

func (repo *courseRepository) CreateComment(_ context.Context, c course.Comment) (course.Comment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	c.ID = uuid.New().String()
	stored := c
	repo.db.comments[c.ID] = &stored
	return c, nil
}

func (repo *courseRepository) GetComment(_ context.Context, id string) (course.Comment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if c, ok := repo.db.comments[id]; ok {
		return *c, nil
	}
	return course.Comment{}, course.ErrCommentNotFound
}

func (repo *courseRepository) ListComments(_ context.Context, lessonID string) ([]course.Comment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	comments := make([]course.Comment, 0)
	for _, c := range repo.db.comments {
		if c.LessonID == lessonID {
			comments = append(comments, *c)
		}
	}
	sort.Slice(comments, func(i, j int) bool { return comments[i].CreatedAt.Before(comments[j].CreatedAt) })
	return comments, nil
}

func (repo *courseRepository) DeleteComment(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.comments[id]; !ok {
		return course.ErrCommentNotFound
	}
	// replies & reactions go with it
	deleted := map[string]struct{}{id: {}}
	for changed := true; changed; {
		changed = false
		for cid, c := range repo.db.comments {
			if _, gone := deleted[cid]; gone {
				continue
			}
			if c.ParentID != nil {
				if _, ok := deleted[*c.ParentID]; ok {
					deleted[cid] = struct{}{}
					changed = true
				}
			}
		}
	}
	for cid := range deleted {
		delete(repo.db.comments, cid)
	}
	for key, r := range repo.db.reactions {
		if _, ok := deleted[r.CommentID]; ok {
			delete(repo.db.reactions, key)
		}
	}
	return nil
}

func (repo *courseRepository) UpsertReaction(_ context.Context, r course.Reaction) (bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.comments[r.CommentID]; !ok {
		return false, course.ErrCommentNotFound
	}
	key := pairKey(r.CommentID, r.UserID)
	existing, ok := repo.db.reactions[key]
	if ok {
		existing.Kind = r.Kind
		repo.db.reactions[key] = existing
		return false, nil
	}
	repo.db.reactions[key] = r
	return true, nil
}

func (repo *courseRepository) DeleteReaction(_ context.Context, commentID, userID string) (bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	key := pairKey(commentID, userID)
	if _, ok := repo.db.reactions[key]; !ok {
		return false, nil
	}
	delete(repo.db.reactions, key)
	return true, nil
}

func (repo *courseRepository) ReactionCounts(_ context.Context, commentIDs ...string) (map[string]map[string]int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	wanted := make(map[string]struct{}, len(commentIDs))
	for _, id := range commentIDs {
		wanted[id] = struct{}{}
	}
	counts := make(map[string]map[string]int)
	for _, r := range repo.db.reactions {
		if _, ok := wanted[r.CommentID]; !ok {
			continue
		}
		if counts[r.CommentID] == nil {
			counts[r.CommentID] = make(map[string]int)
		}
		counts[r.CommentID][r.Kind]++
	}
	return counts, nil
}
