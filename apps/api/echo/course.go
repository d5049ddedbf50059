package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/course"
)

type courseApi struct {
	svc      *course.Service
	validate *validator.Validate
}

func registerCourseAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc *course.Service, validate *validator.Validate) {
	api := courseApi{svc: svc, validate: validate}

	sg := g.Group("/subjects", authed...)
	sg.GET("", api.listSubjects)
	sg.POST("", api.createSubject, adminMiddleware())

	cg := g.Group("/courses", authed...)
	cg.GET("", api.queryCourses)
	cg.POST("", api.createCourse, staffMiddleware())
	cg.GET("/:id", api.retrieveCourse)
	cg.PUT("/:id", api.updateCourse, staffMiddleware())
	cg.POST("/:id/publish", api.publish, staffMiddleware())
	cg.POST("/:id/enrollment", api.enroll, studentMiddleware())
	cg.DELETE("/:id/enrollment", api.unenroll, studentMiddleware())
	cg.GET("/:id/students", api.students, staffMiddleware())
	cg.GET("/:id/progress", api.progress, studentMiddleware())
	cg.GET("/:id/lessons", api.listLessons)
	cg.POST("/:id/lessons", api.createLesson, staffMiddleware())

	lg := g.Group("/lessons", authed...)
	lg.PUT("/:id", api.updateLesson, staffMiddleware())
	lg.DELETE("/:id", api.destroyLesson, staffMiddleware())
	lg.POST("/:id/complete", api.completeLesson, studentMiddleware())
	lg.GET("/:id/comments", api.listComments)
	lg.POST("/:id/comments", api.addComment)

	mg := g.Group("/comments", authed...)
	mg.DELETE("/:id", api.destroyComment)
	mg.PUT("/:id/reaction", api.react)
	mg.DELETE("/:id/reaction", api.unreact)
}

// bindValid binds the request body into data, cleans it when it knows how & validates it.
func (api *courseApi) bindValid(ctx echo.Context, data interface{}) error {
	if err := bindClean(ctx, data); err != nil {
		return err
	}
	return api.validate.Struct(data)
}

// Subjects

func (api *courseApi) listSubjects(ctx echo.Context) error {
	subjects, err := api.svc.ListSubjects(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing subjects")
	}
	return ctx.JSON(http.StatusOK, subjects)
}

func (api *courseApi) createSubject(ctx echo.Context) error {
	var data course.NewSubject
	if err := api.bindValid(ctx, &data); err != nil {
		return err
	}
	s, err := api.svc.CreateSubject(ctx.Request().Context(), contextUser(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating subject")
	}
	return ctx.JSON(http.StatusCreated, s)
}

// Courses

func (api *courseApi) queryCourses(ctx echo.Context) error {
	var filter course.CourseFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []course.Course{})
	}
	courses, err := api.svc.QueryCourses(ctx.Request().Context(), contextUser(ctx), filter)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *courseApi) createCourse(ctx echo.Context) error {
	var data course.NewCourse
	if err := api.bindValid(ctx, &data); err != nil {
		return err
	}
	c, err := api.svc.CreateCourse(ctx.Request().Context(), contextUser(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *courseApi) retrieveCourse(ctx echo.Context) error {
	c, err := api.svc.GetCourse(ctx.Request().Context(), contextUser(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting course")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) updateCourse(ctx echo.Context) error {
	var data course.UpdateCourse
	if err := api.bindValid(ctx, &data); err != nil {
		return err
	}
	c, err := api.svc.UpdateCourse(ctx.Request().Context(), contextUser(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating course")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) publish(ctx echo.Context) error {
	c, err := api.svc.Publish(ctx.Request().Context(), contextUser(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "publishing course")
	}
	return ctx.JSON(http.StatusOK, c)
}

// Enrollment & progress

func (api *courseApi) enroll(ctx echo.Context) error {
	e, err := api.svc.Enroll(ctx.Request().Context(), contextUser(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "enrolling")
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *courseApi) unenroll(ctx echo.Context) error {
	if err := api.svc.Unenroll(ctx.Request().Context(), contextUser(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "unenrolling")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) students(ctx echo.Context) error {
	students, err := api.svc.Students(ctx.Request().Context(), contextUser(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing students")
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *courseApi) progress(ctx echo.Context) error {
	p, err := api.svc.Progress(ctx.Request().Context(), contextUser(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting progress")
	}
	return ctx.JSON(http.StatusOK, p)
}

// Lessons

func (api *courseApi) listLessons(ctx echo.Context) error {
	lessons, err := api.svc.ListLessons(ctx.Request().Context(), contextUser(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing lessons")
	}
	return ctx.JSON(http.StatusOK, lessons)
}

func (api *courseApi) createLesson(ctx echo.Context) error {
	var data course.NewLesson
	if err := api.bindValid(ctx, &data); err != nil {
		return err
	}
	l, err := api.svc.CreateLesson(ctx.Request().Context(), contextUser(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "creating lesson")
	}
	return ctx.JSON(http.StatusCreated, l)
}

func (api *courseApi) updateLesson(ctx echo.Context) error {
	var data course.UpdateLesson
	if err := api.bindValid(ctx, &data); err != nil {
		return err
	}
	l, err := api.svc.UpdateLesson(ctx.Request().Context(), contextUser(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating lesson")
	}
	return ctx.JSON(http.StatusOK, l)
}

func (api *courseApi) destroyLesson(ctx echo.Context) error {
	if err := api.svc.DeleteLesson(ctx.Request().Context(), contextUser(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting lesson")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) completeLesson(ctx echo.Context) error {
	p, err := api.svc.CompleteLesson(ctx.Request().Context(), contextUser(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "completing lesson")
	}
	return ctx.JSON(http.StatusOK, p)
}

// Comments & reactions

func (api *courseApi) listComments(ctx echo.Context) error {
	comments, err := api.svc.ListComments(ctx.Request().Context(), contextUser(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing comments")
	}
	return ctx.JSON(http.StatusOK, comments)
}

func (api *courseApi) addComment(ctx echo.Context) error {
	var data course.NewComment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewComment")
	}
	data.Content = core.CleanString(data.Content)
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	c, err := api.svc.AddComment(ctx.Request().Context(), contextUser(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "adding comment")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *courseApi) destroyComment(ctx echo.Context) error {
	if err := api.svc.DeleteComment(ctx.Request().Context(), contextUser(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting comment")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) react(ctx echo.Context) error {
	var data course.NewReaction
	if err := api.bindValid(ctx, &data); err != nil {
		return err
	}
	r, err := api.svc.React(ctx.Request().Context(), contextUser(ctx), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "reacting")
	}
	return ctx.JSON(http.StatusOK, r)
}

func (api *courseApi) unreact(ctx echo.Context) error {
	if err := api.svc.Unreact(ctx.Request().Context(), contextUser(ctx), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "unreacting")
	}
	return ctx.NoContent(http.StatusNoContent)
}
