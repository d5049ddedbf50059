package echoapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/chat"
)

type chatApi struct {
	svc      *chat.Service
	validate *validator.Validate
}

func registerChatAPI(g *echo.Group, authed []echo.MiddlewareFunc, svc *chat.Service, validate *validator.Validate) {
	api := chatApi{svc: svc, validate: validate}

	cg := g.Group("/chats", authed...)
	cg.GET("", api.list)
	cg.POST("", api.getOrCreate)
	cg.GET("/unread-count", api.unreadCount)
	cg.GET("/:id", api.retrieve)
	cg.GET("/:id/messages", api.messages)
	cg.POST("/:id/messages", api.send)
	cg.POST("/:id/read", api.markRead)
}

type CountResponse struct {
	Count int `json:"count"`
}

func (api *chatApi) list(ctx echo.Context) error {
	summaries, err := api.svc.List(ctx.Request().Context(), contextUser(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "listing chats")
	}
	return ctx.JSON(http.StatusOK, summaries)
}

func (api *chatApi) getOrCreate(ctx echo.Context) error {
	var data chat.NewChat
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewChat")
	}
	data.UserID = core.CleanString(data.UserID)
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	cht, err := api.svc.GetOrCreate(ctx.Request().Context(), contextUser(ctx).ID, data.UserID)
	if err != nil {
		return errors.Wrap(err, "getting or creating chat")
	}
	return ctx.JSON(http.StatusOK, cht)
}

func (api *chatApi) unreadCount(ctx echo.Context) error {
	n, err := api.svc.UnreadCount(ctx.Request().Context(), contextUser(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "counting unread messages")
	}
	return ctx.JSON(http.StatusOK, CountResponse{Count: n})
}

func (api *chatApi) retrieve(ctx echo.Context) error {
	cht, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"), contextUser(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "getting chat")
	}
	return ctx.JSON(http.StatusOK, cht)
}

// bindMessageFilter reads `?before=<RFC3339>&limit=<n>`.
func bindMessageFilter(ctx echo.Context) (chat.MessageFilter, error) {
	var filter chat.MessageFilter
	if before := ctx.QueryParam("before"); before != "" {
		t, err := time.Parse(time.RFC3339Nano, before)
		if err != nil {
			return filter, core.NewValidationError(nil, core.FieldError{Field: "before", Error: "invalid timestamp"})
		}
		filter.Before = t
	}
	if limit := ctx.QueryParam("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			return filter, core.NewValidationError(nil, core.FieldError{Field: "limit", Error: "must be a number"})
		}
		filter.Limit = n
	}
	return filter, nil
}

func (api *chatApi) messages(ctx echo.Context) error {
	filter, err := bindMessageFilter(ctx)
	if err != nil {
		return err
	}
	msgs, err := api.svc.Messages(ctx.Request().Context(), ctx.Param("id"), contextUser(ctx).ID, filter)
	if err != nil {
		return errors.Wrap(err, "listing messages")
	}
	return ctx.JSON(http.StatusOK, msgs)
}

func (api *chatApi) send(ctx echo.Context) error {
	var data chat.NewMessage
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMessage")
	}

	msg, err := api.svc.Send(ctx.Request().Context(), ctx.Param("id"), contextUser(ctx).ID, data.Content)
	if err != nil {
		return errors.Wrap(err, "sending message")
	}
	return ctx.JSON(http.StatusCreated, msg)
}

func (api *chatApi) markRead(ctx echo.Context) error {
	n, err := api.svc.MarkRead(ctx.Request().Context(), ctx.Param("id"), contextUser(ctx).ID)
	if err != nil {
		return errors.Wrap(err, "marking chat read")
	}
	return ctx.JSON(http.StatusOK, CountResponse{Count: n})
}
