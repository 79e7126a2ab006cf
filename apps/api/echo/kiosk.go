package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/suliportal/suliportal/core/lunch"
)

type kioskApi struct {
	svc      *lunch.KioskService
	validate *validator.Validate
}

func registerKioskAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *lunch.KioskService, validate *validator.Validate) {
	api := kioskApi{svc: svc, validate: validate}

	kg := g.Group("/lunch/kiosk", jwt, kioskMiddleware())
	kg.POST("/redeem", api.redeem)
}

type redeemRequest struct {
	BadgeID string `json:"badge_id" validate:"required,max=64"`
}

// redeem marks today's lunch of the scanned badge's owner as picked up.
func (api *kioskApi) redeem(ctx echo.Context) error {
	var req redeemRequest
	if err := ctx.Bind(&req); err != nil {
		return errors.Wrap(err, "binding request")
	}
	if err := api.validate.Struct(&req); err != nil {
		return err
	}

	res, err := api.svc.Redeem(ctx.Request().Context(), req.BadgeID, time.Now())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}
