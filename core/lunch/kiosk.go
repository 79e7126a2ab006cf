package lunch

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/suliportal/suliportal/core"
	"github.com/suliportal/suliportal/core/user"
)

// RedemptionStatus is the outcome of a kiosk badge scan.
// Per (user, day) the order moves NO_ORDER -> ORDERED -> REDEEMED; REDEEMED is
// terminal, and so are "no order", an explicit no-lunch selection, and an
// undecided day.
type RedemptionStatus string

const (
	StatusRedeemed        RedemptionStatus = "REDEEMED"
	StatusAlreadyRedeemed RedemptionStatus = "ALREADY_REDEEMED"
	StatusNotOrdered      RedemptionStatus = "NOT_ORDERED"
)

// RedemptionResult is what the kiosk operator sees after a scan.
type RedemptionResult struct {
	Status      RedemptionStatus `json:"status"`
	UserName    string           `json:"user_name"`
	Email       string           `json:"email"`
	Day         int              `json:"day"`
	OptionID    string           `json:"option_id,omitempty"`
	OptionLabel string           `json:"option_label,omitempty"`
	RedeemedAt  *time.Time       `json:"redeemed_at,omitempty"`
}

// KioskService serves lunch-time badge scans from the kiosk stations.
type KioskService struct {
	users  user.Repository
	menus  MenuRepository
	orders OrderRepository
	conf   *core.Config
	logger core.Logger
}

func NewKioskService(
	users user.Repository,
	menus MenuRepository,
	orders OrderRepository,
	conf *core.Config,
	logger core.Logger,
) *KioskService {
	return &KioskService{
		users:  users,
		menus:  menus,
		orders: orders,
		conf:   conf,
		logger: logger,
	}
}

// Redeem resolves a scanned NFC badge to a user and marks today's order
// redeemed, exactly once. Two kiosk stations racing on the same badge cannot
// both win: the mark is a single conditional write in the store, and the loser
// observes ALREADY_REDEEMED.
func (svc *KioskService) Redeem(ctx context.Context, badgeID string, at time.Time) (RedemptionResult, error) {
	badgeID = core.CleanString(badgeID)
	usr, err := svc.users.GetUserByBadge(ctx, badgeID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return RedemptionResult{}, ErrUnknownToken
		}
		return RedemptionResult{}, errors.Wrap(err, "resolving badge")
	}
	if usr.Blocked {
		return RedemptionResult{}, ErrBadgeBlocked
	}
	if usr.IsActive != nil && !*usr.IsActive {
		return RedemptionResult{}, ErrUnknownToken
	}

	loc := svc.conf.Lunch.Location
	day, err := DayIndexOf(at, loc)
	if err != nil {
		return RedemptionResult{}, err
	}
	wk := WeekOf(at, loc)

	res := RedemptionResult{
		UserName: usr.Name,
		Email:    usr.Email,
		Day:      day,
	}

	order, err := svc.orders.GetOrder(ctx, usr.Email, wk)
	if err != nil {
		if errors.Cause(err) == ErrOrderNotFound {
			res.Status = StatusNotOrdered
			return res, nil
		}
		return RedemptionResult{}, errors.Wrap(err, "loading order")
	}
	if !order.Ordered(day) {
		res.Status = StatusNotOrdered
		return res, nil
	}

	res.OptionID = order.Selections[day]
	res.OptionLabel = svc.optionLabel(ctx, wk, day, res.OptionID)

	if ts := order.Redeemed[day]; ts != nil {
		res.Status = StatusAlreadyRedeemed
		res.RedeemedAt = ts
		return res, nil
	}

	now := time.Now().UTC()
	won, err := svc.orders.RedeemDay(ctx, usr.Email, wk, day, now)
	if err != nil {
		return RedemptionResult{}, errors.Wrap(err, "marking order redeemed")
	}
	if !won {
		res.Status = StatusAlreadyRedeemed
		return res, nil
	}
	res.Status = StatusRedeemed
	res.RedeemedAt = &now
	return res, nil
}

// optionLabel resolves an option id to its menu label for operator display.
// A missing menu is not fatal here; the id is shown as-is.
func (svc *KioskService) optionLabel(ctx context.Context, wk WeekKey, day int, id string) string {
	menu, err := svc.menus.GetMenu(ctx, wk)
	if err != nil {
		if errors.Cause(err) != ErrMenuNotFound {
			svc.logger.Warn(fmt.Sprintf("resolving option label for week %s: %v", wk, err))
		}
		return id
	}
	return menu.Days[day].OptionLabel(id)
}
