package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/xpcamp/core/user"
)

// permissionMiddleware lets the request through if the role of the context user satisfies `allowed`.
func permissionMiddleware(allowed func(user.Role) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if allowed(claims.UserRole()) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// selfOrTeacherMiddleware restricts /:id routes to the student `id` and to the roles that may act for them.
func selfOrTeacherMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.UserRole().CanActFor(claims.Subject, ctx.Param("id")) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}
