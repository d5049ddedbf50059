package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// portalMiddleware lets through the token holders allowed into a portal (see Claims).
func portalMiddleware(allowed func(Claims) bool, roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if allowed(claims) && contextHasAnyRole(ctx, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return portalMiddleware(func(c Claims) bool { return c.IsAdmin }, roles...)
}

func studentMiddleware() echo.MiddlewareFunc {
	return portalMiddleware(func(c Claims) bool { return c.IsStudent })
}

func staffMiddleware() echo.MiddlewareFunc {
	return portalMiddleware(func(c Claims) bool { return c.IsTeacher || c.IsAdmin })
}

// ctxUserMiddleware loads the (active) token owner into the context.
func (a *authenticator) ctxUserMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if _, err := a.getContextUser(ctx); err != nil {
			return err
		}
		return next(ctx)
	}
}
