package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/suliportal/suliportal/core/lunch"
	"github.com/suliportal/suliportal/core/user"
)

type lunchApi struct {
	svc      *lunch.Service
	usrSvc   user.ServiceInterface
	validate *validator.Validate
}

func registerLunchAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *lunch.Service, usrSvc user.ServiceInterface, validate *validator.Validate) {
	api := lunchApi{svc: svc, usrSvc: usrSvc, validate: validate}

	lg := g.Group("/lunch", jwt)

	lg.GET("/menus/current", api.currentMenu)
	lg.GET("/menus/next", api.nextMenu)
	lg.POST("/menus", api.publishMenu, adminMiddleware())
	lg.PATCH("/menus/next/window", api.setWindow, adminMiddleware())

	lg.GET("/orders/current", api.currentOrder)
	lg.GET("/orders/next", api.nextOrder)
	lg.PUT("/orders/next", api.submitOrder)
	lg.GET("/orders/next/count", api.countOrders, adminMiddleware())
}

func (api *lunchApi) currentMenu(ctx echo.Context) error {
	menu, err := api.svc.CurrentMenu(ctx.Request().Context(), time.Now())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, menu)
}

func (api *lunchApi) nextMenu(ctx echo.Context) error {
	menu, err := api.svc.NextMenu(ctx.Request().Context(), time.Now())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, menu)
}

// publishMenu creates next week's menu and opens the order window; users are
// notified out of band.
func (api *lunchApi) publishMenu(ctx echo.Context) error {
	var nm lunch.NewMenu
	if err := ctx.Bind(&nm); err != nil {
		return errors.Wrap(err, "binding request")
	}
	if err := nm.Validate(api.validate); err != nil {
		return err
	}

	menu, err := api.svc.PublishMenu(ctx.Request().Context(), nm)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, menu)
}

type setWindowRequest struct {
	IsOpen *bool `json:"is_open" validate:"required"`
}

type setWindowResponse struct {
	Week       string `json:"week"`
	IsOpen     bool   `json:"is_open"`
	OrderCount *int   `json:"order_count,omitempty"`
}

func (api *lunchApi) setWindow(ctx echo.Context) error {
	var req setWindowRequest
	if err := ctx.Bind(&req); err != nil {
		return errors.Wrap(err, "binding request")
	}
	if err := api.validate.Struct(&req); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	wk := lunch.NextWeekOf(time.Now(), api.svc.Location())
	resp := setWindowResponse{Week: wk.String(), IsOpen: *req.IsOpen}

	if *req.IsOpen {
		if err := api.svc.SetOpen(reqCtx, wk, true); err != nil {
			return err
		}
		return ctx.JSON(http.StatusOK, resp)
	}

	count, err := api.svc.CloseWindow(reqCtx)
	if err != nil {
		return err
	}
	resp.OrderCount = &count
	return ctx.JSON(http.StatusOK, resp)
}

func (api *lunchApi) currentOrder(ctx echo.Context) error {
	return api.order(ctx, lunch.WeekOf(time.Now(), api.svc.Location()))
}

func (api *lunchApi) nextOrder(ctx echo.Context) error {
	return api.order(ctx, lunch.NextWeekOf(time.Now(), api.svc.Location()))
}

func (api *lunchApi) order(ctx echo.Context, wk lunch.WeekKey) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	order, err := api.svc.Order(ctx.Request().Context(), usr.Email, wk)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, order)
}

// submitOrder replaces the caller's selections for next week in full.
func (api *lunchApi) submitOrder(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}

	var sub lunch.OrderSubmission
	if err = ctx.Bind(&sub); err != nil {
		return errors.Wrap(err, "binding request")
	}
	if err = sub.Validate(api.validate); err != nil {
		return err
	}

	wk := lunch.NextWeekOf(time.Now(), api.svc.Location())
	order, err := api.svc.SubmitOrder(ctx.Request().Context(), usr, wk, sub.Selections)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, order)
}

func (api *lunchApi) countOrders(ctx echo.Context) error {
	wk := lunch.NextWeekOf(time.Now(), api.svc.Location())
	count, err := api.svc.CountOrders(ctx.Request().Context(), wk)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"week": wk.String(), "count": count})
}
