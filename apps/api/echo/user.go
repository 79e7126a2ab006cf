package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/suliportal/suliportal/core/user"
)

type userApi struct {
	svc      user.ServiceInterface
	validate *validator.Validate
}

func registerUserAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc user.ServiceInterface, validate *validator.Validate) {
	api := userApi{svc: svc, validate: validate}

	ug := g.Group("/users")

	// un-authed
	ug.POST("/login", api.login)
	ug.POST("/password-reset", api.resetPassword)
	ug.POST("/password-reset-confirm", api.confirmPasswordReset)

	// authed
	ag := ug.Group("", jwt)
	ag.POST("/token-refresh", api.refreshToken)
	ag.GET("/me", api.retrieveSelf)

	// admin
	adm := ug.Group("", jwt, adminMiddleware())
	adm.POST("", api.create)
	adm.GET("", api.query)
	adm.DELETE("", api.destroyMultiple)
	adm.GET("/roles", api.roles)
	adm.GET("/:id", api.retrieve)
	adm.PUT("/:id", api.update)
	adm.DELETE("/:id", api.destroy)
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token string    `json:"token"`
	User  user.User `json:"user"`
}

func (api *userApi) login(ctx echo.Context) error {
	var req loginRequest
	if err := ctx.Bind(&req); err != nil {
		return errors.Wrap(err, "binding request")
	}
	if err := api.validate.Struct(&req); err != nil {
		return err
	}

	usr, err := authenticate(ctx, req.Username, req.Password, api.svc)
	if err != nil {
		return err
	}
	token, err := GenerateToken(GetUserClaims(usr))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, loginResponse{Token: token, User: usr})
}

func (api *userApi) refreshToken(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	token, err := refreshToken(&claims)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"token": token})
}

func (api *userApi) resetPassword(ctx echo.Context) error {
	var req struct {
		Email string `json:"email" validate:"required,email"`
	}
	if err := ctx.Bind(&req); err != nil {
		return errors.Wrap(err, "binding request")
	}
	if err := api.validate.Struct(&req); err != nil {
		return err
	}

	// do not leak whether the email exists
	if err := api.svc.RequestPasswordReset(ctx.Request().Context(), req.Email); err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
	}
	return ctx.JSON(http.StatusOK, echo.Map{
		"detail": "If the email exists, a password reset link has been sent.",
	})
}

func (api *userApi) confirmPasswordReset(ctx echo.Context) error {
	var rp user.ResetUserPassword
	if err := ctx.Bind(&rp); err != nil {
		return errors.Wrap(err, "binding request")
	}
	if err := rp.Validate(api.validate); err != nil {
		return err
	}
	if err := api.svc.ResetPassword(ctx.Request().Context(), rp); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"detail": "Password has been reset."})
}

func (api *userApi) retrieveSelf(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) create(ctx echo.Context) error {
	var nu user.NewUser
	if err := ctx.Bind(&nu); err != nil {
		return errors.Wrap(err, "binding request")
	}
	if err := nu.Validate(ctx.Request().Context(), api.validate, api.svc); err != nil {
		return err
	}

	usr, err := api.svc.Create(ctx.Request().Context(), nu)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api *userApi) query(ctx echo.Context) error {
	var filter user.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding request")
	}
	filter.Clean()

	users, err := api.svc.Query(ctx.Request().Context(), &filter)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *userApi) roles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, user.Roles)
}

func (api *userApi) retrieve(ctx echo.Context) error {
	usr, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) update(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	origUsr, err := api.svc.GetByID(reqCtx, ctx.Param("id"))
	if err != nil {
		return err
	}

	var uu user.UpdateUser
	if err = ctx.Bind(&uu); err != nil {
		return errors.Wrap(err, "binding request")
	}
	if err = uu.Validate(reqCtx, origUsr, api.validate, api.svc); err != nil {
		return err
	}

	usr, err := api.svc.Update(reqCtx, origUsr.ID, uu)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) destroyMultiple(ctx echo.Context) error {
	var req struct {
		IDs []string `json:"ids" validate:"required,min=1"`
	}
	if err := ctx.Bind(&req); err != nil {
		return errors.Wrap(err, "binding request")
	}
	if err := api.validate.Struct(&req); err != nil {
		return err
	}

	if err := api.svc.Delete(ctx.Request().Context(), req.IDs...); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}
