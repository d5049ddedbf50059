package echoapi

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/realtime"
	wssvc "github.com/trezcool/darasa/services/websocket"
)

type PresenceResponse struct {
	UserID   string `json:"user_id"`
	IsOnline bool   `json:"is_online"`
}

func registerPresenceAPI(g *echo.Group, authed []echo.MiddlewareFunc, hub *realtime.Hub) {
	g.GET("/presence/:id", func(ctx echo.Context) error {
		id := ctx.Param("id")
		return ctx.JSON(http.StatusOK, PresenceResponse{UserID: id, IsOnline: hub.IsOnline(id)})
	}, authed...)
}

// registerRealtimeAPI mounts the live-push websocket.
// Browsers can't set headers on websocket upgrades, so the JWT travels in `?token=`.
func registerRealtimeAPI(g *echo.Group, auth *authenticator, hub *realtime.Hub, opts wssvc.Options, logger core.Logger) {
	jwt := auth.middleware("query:token")

	g.GET("/realtime/ws", func(ctx echo.Context) error {
		usr := contextUser(ctx)
		conn, err := wssvc.Upgrade(ctx.Response(), ctx.Request(), usr.ID, opts, logger)
		if err != nil { // the upgrader already replied
			logger.Warn(fmt.Sprintf("opening websocket for user %s: %v", usr.ID, err))
			return nil
		}
		conn.Serve(hub)
		return nil
	}, jwt, auth.ctxUserMiddleware)
}
