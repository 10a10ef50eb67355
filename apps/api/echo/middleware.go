package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// portalMiddleware only lets through the users whose claims give access to the portal.
func portalMiddleware(inPortal func(Claims) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if inPortal(claims) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

func studentMiddleware() echo.MiddlewareFunc {
	return portalMiddleware(func(c Claims) bool { return c.IsStudent })
}

func teacherMiddleware() echo.MiddlewareFunc {
	return portalMiddleware(func(c Claims) bool { return c.IsTeacher })
}
