package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/suliportal/suliportal/core/user"
)

// adminMiddleware restricts a route to admin users. If `roles` is provided,
// at least one of them must match too (e.g. owner-only routes).
func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errHTTPForbidden
			}
			if !claims.IsAdmin {
				return errHTTPForbidden
			}
			if !contextHasAnyRole(ctx, roles...) {
				return errHTTPForbidden
			}
			return next(ctx)
		}
	}
}

// anyRoleMiddleware restricts a route to users holding at least one of `roles`.
func anyRoleMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if !contextHasAnyRole(ctx, roles...) {
				return errHTTPForbidden
			}
			return next(ctx)
		}
	}
}

// kioskMiddleware allows kitchen staff and admins; kiosk stations sign in
// with a kitchen account.
func kioskMiddleware() echo.MiddlewareFunc {
	return anyRoleMiddleware(append([]string{user.RoleKitchen}, user.AdminRoles...)...)
}
