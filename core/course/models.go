package course

import (
	"time"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/user"
)

type Subject struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

type Course struct {
	ID          string    `json:"id"`
	SubjectID   string    `json:"subject_id"`
	TeacherID   string    `json:"teacher_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	IsPublished bool      `json:"is_published"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Lesson struct {
	ID        string    `json:"id"`
	CourseID  string    `json:"course_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Enrollment struct {
	CourseID   string    `json:"course_id"`
	StudentID  string    `json:"student_id"`
	EnrolledAt time.Time `json:"enrolled_at"`
}

type Progress struct {
	CourseID           string   `json:"course_id"`
	StudentID          string   `json:"student_id"`
	CompletedLessonIDs []string `json:"completed_lesson_ids"`
	Completed          int      `json:"completed"`
	Total              int      `json:"total"`
	Percent            float64  `json:"percent"`
}

type Comment struct {
	ID        string    `json:"id"`
	LessonID  string    `json:"lesson_id"`
	AuthorID  string    `json:"author_id"`
	ParentID  *string   `json:"parent_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// CommentView is a Comment as listed under a lesson.
type CommentView struct {
	Comment
	Author    user.Brief     `json:"author"`
	Reactions map[string]int `json:"reactions"`
}

// Reaction kinds
const (
	ReactionLike       = "like"
	ReactionLove       = "love"
	ReactionInsightful = "insightful"
	ReactionConfused   = "confused"
)

var ReactionKinds = []string{ReactionLike, ReactionLove, ReactionInsightful, ReactionConfused}

type Reaction struct {
	CommentID string    `json:"comment_id"`
	UserID    string    `json:"user_id"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

type NewSubject struct {
	Name        string `json:"name" validate:"required,notblank,max=100"`
	Description string `json:"description"`
}

func (ns *NewSubject) Clean() {
	ns.Name = core.CleanString(ns.Name)
	ns.Description = core.CleanString(ns.Description)
}

type NewCourse struct {
	SubjectID   string `json:"subject_id" validate:"required"`
	Title       string `json:"title" validate:"required,notblank,max=200"`
	Description string `json:"description"`
}

func (nc *NewCourse) Clean() {
	nc.Title = core.CleanString(nc.Title)
	nc.Description = core.CleanString(nc.Description)
}

type UpdateCourse struct {
	Title       string  `json:"title" validate:"omitempty,max=200"`
	Description *string `json:"description"`
}

type CourseFilter struct {
	SubjectID string `query:"subject_id"`
	TeacherID string `query:"teacher_id"`
	Published *bool  `query:"published"`
	Search    string `query:"search"`
}

type NewLesson struct {
	Title    string `json:"title" validate:"required,notblank,max=200"`
	Content  string `json:"content"`
	Position int    `json:"position" validate:"gte=0"`
}

type UpdateLesson struct {
	Title    string  `json:"title" validate:"omitempty,max=200"`
	Content  *string `json:"content"`
	Position *int    `json:"position" validate:"omitempty,gte=0"`
}

type NewComment struct {
	Content  string   `json:"content" validate:"required,notblank,max=4000"`
	ParentID string   `json:"parent_id"`
	Mentions []string `json:"mentions"`
}

type NewReaction struct {
	Kind string `json:"kind" validate:"required,reactionkind"`
}
