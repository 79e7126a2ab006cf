package lunch

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/suliportal/suliportal/core"
	"github.com/suliportal/suliportal/core/user"
)

var (
	// errors
	ErrMenuNotFound     = errors.New("menu not found")
	ErrMenuExists       = errors.New("a menu for this week already exists")
	ErrOrderNotFound    = errors.New("order not found")
	ErrWindowClosed     = errors.New("the order window for this week is closed")
	ErrInvalidSelection = errors.New("selection is not on this week's menu")
	ErrNotEligible      = errors.New("account is not allowed to order lunch")
	ErrUnknownToken     = errors.New("unknown badge")
	ErrBadgeBlocked     = errors.New("badge is blocked")
	ErrOutOfRange       = errors.New("date is outside the lunch service calendar")
)

type (
	MenuRepository interface {
		// CreateMenu fails with ErrMenuExists when a menu for the same
		// (week, year) already exists; the existing record is left untouched.
		CreateMenu(ctx context.Context, menu Menu) (Menu, error)
		GetMenu(ctx context.Context, wk WeekKey) (Menu, error)
		// SetMenuOpen flips the window flag only; no cascading change to orders.
		SetMenuOpen(ctx context.Context, wk WeekKey, open bool) error
	}

	OrderRepository interface {
		GetOrder(ctx context.Context, email string, wk WeekKey) (Order, error)
		// UpsertOrder overwrites the order's selections entirely (last write
		// wins), creating the record if absent; Redeemed is never touched.
		// The write is refused with ErrWindowClosed unless the week's menu is
		// open at write time, atomically with the write, so a submission that
		// races a window close cannot land after the close completed.
		UpsertOrder(ctx context.Context, email string, wk WeekKey, selections [NumDays]string) (Order, error)
		CountOrders(ctx context.Context, wk WeekKey) (int, error)
		// RedeemDay sets the day's redemption timestamp iff it is not already
		// set, as a single conditional write. It reports false without mutation
		// when another kiosk got there first.
		RedeemDay(ctx context.Context, email string, wk WeekKey, day int, at time.Time) (bool, error)
	}

	Service struct {
		menus    MenuRepository
		orders   OrderRepository
		users    user.Repository
		mailSvc  core.EmailService
		notifier core.Notifier
		conf     *core.Config
		logger   core.Logger
	}
)

func NewService(
	menus MenuRepository,
	orders OrderRepository,
	users user.Repository,
	mailSvc core.EmailService,
	notifier core.Notifier,
	conf *core.Config,
	logger core.Logger,
) *Service {
	return &Service{
		menus:    menus,
		orders:   orders,
		users:    users,
		mailSvc:  mailSvc,
		notifier: notifier,
		conf:     conf,
		logger:   logger,
	}
}

// Location returns the school time zone all week math is normalized to.
func (svc *Service) Location() *time.Location { return svc.conf.Lunch.Location }

func (svc *Service) Menu(ctx context.Context, wk WeekKey) (Menu, error) {
	return svc.menus.GetMenu(ctx, wk)
}

// CurrentMenu returns the menu of the week containing `now`.
func (svc *Service) CurrentMenu(ctx context.Context, now time.Time) (Menu, error) {
	return svc.menus.GetMenu(ctx, WeekOf(now, svc.Location()))
}

// NextMenu returns the menu of the week following the one containing `now`.
func (svc *Service) NextMenu(ctx context.Context, now time.Time) (Menu, error) {
	return svc.menus.GetMenu(ctx, NextWeekOf(now, svc.Location()))
}

func (svc *Service) CreateMenu(ctx context.Context, wk WeekKey, days [NumDays]DaySlot) (Menu, error) {
	now := time.Now().UTC()
	return svc.menus.CreateMenu(ctx, Menu{
		Week:      wk.Week,
		Year:      wk.Year,
		Days:      days,
		IsOpen:    true,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (svc *Service) SetOpen(ctx context.Context, wk WeekKey, open bool) error {
	return svc.menus.SetMenuOpen(ctx, wk, open)
}

func (svc *Service) Order(ctx context.Context, email string, wk WeekKey) (Order, error) {
	return svc.orders.GetOrder(ctx, core.CleanString(email, true /* lower */), wk)
}

func (svc *Service) CountOrders(ctx context.Context, wk WeekKey) (int, error) {
	return svc.orders.CountOrders(ctx, wk)
}

// SubmitOrder validates a user's weekly selections against the week's menu and
// upserts the order record. Precondition order: menu exists, window open,
// every selection valid for its day.
func (svc *Service) SubmitOrder(ctx context.Context, usr user.User, wk WeekKey, selections [NumDays]string) (Order, error) {
	if usr.Blocked || (usr.IsActive != nil && !*usr.IsActive) {
		return Order{}, ErrNotEligible
	}

	menu, err := svc.menus.GetMenu(ctx, wk)
	if err != nil {
		return Order{}, err
	}
	if !menu.IsOpen {
		return Order{}, ErrWindowClosed
	}

	var flds []core.FieldError
	for day, sel := range selections {
		if sel == "" || sel == SelectionNone {
			continue
		}
		if !menu.Days[day].HasOption(sel) {
			flds = append(flds, core.FieldError{
				Field: fmt.Sprintf("selections[%d]", day),
				Error: fmt.Sprintf("option %q is not on %s's menu", sel, DayLabels[day]),
			})
		}
	}
	if flds != nil {
		return Order{}, core.NewValidationError(ErrInvalidSelection, flds...)
	}

	return svc.orders.UpsertOrder(ctx, core.CleanString(usr.Email, true /* lower */), wk, selections)
}

// PublishMenu creates next week's menu and notifies users that the order
// window is open. Notification failures are logged, never escalated: the menu
// exists once CreateMenu returned.
func (svc *Service) PublishMenu(ctx context.Context, nm NewMenu) (Menu, error) {
	wk := NextWeekOf(time.Now(), svc.Location())
	menu, err := svc.CreateMenu(ctx, wk, nm.Days)
	if err != nil {
		return Menu{}, err
	}

	svc.sendLunchOpenEmail(ctx, menu)
	svc.notifier.SendOperationalMessage(
		"Lunch menu published",
		fmt.Sprintf("The menu for week %s is published and the order window is open.", wk),
		false,
	)
	return menu, nil
}

// CloseWindow closes next week's order window and reports the order count.
func (svc *Service) CloseWindow(ctx context.Context) (int, error) {
	wk := NextWeekOf(time.Now(), svc.Location())
	if err := svc.menus.SetMenuOpen(ctx, wk, false); err != nil {
		return 0, err
	}

	count, err := svc.orders.CountOrders(ctx, wk)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("counting orders for week %s: %v", wk, err), err)
		count = -1 // window is closed regardless; report what we can
	}
	svc.notifier.SendOperationalMessage(
		"Lunch order window closed",
		fmt.Sprintf("The order window for week %s is closed with %d order(s).", wk, count),
		false,
	)
	return count, nil
}

func (svc *Service) sendLunchOpenEmail(ctx context.Context, menu Menu) {
	active := true
	users, err := svc.users.FilterUsers(ctx, user.QueryFilter{IsActive: &active})
	if err != nil {
		svc.logger.Error(fmt.Sprintf("querying lunch-open recipients: %v", err), err)
		return
	}

	bcc := make([]mail.Address, 0, len(users))
	for _, usr := range users {
		if usr.Email == "" || usr.Blocked {
			continue
		}
		bcc = append(bcc, mail.Address{Name: usr.Name, Address: usr.Email})
	}
	if len(bcc) == 0 {
		return
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{svc.conf.DefaultFromEmail()},
		Bcc:          bcc,
		Subject:      fmt.Sprintf("Lunch ordering for week %s is open", menu.WeekKey()),
		TemplateName: "lunch-open",
		TemplateData: menuEmailData(menu),
	})
}

type (
	menuEmailDay struct {
		Label   string
		Options []Option
	}

	menuEmailContext struct {
		Week string
		Days []menuEmailDay
	}
)

func menuEmailData(menu Menu) menuEmailContext {
	data := menuEmailContext{Week: menu.WeekKey().String()}
	for day, slot := range menu.Days {
		data.Days = append(data.Days, menuEmailDay{Label: DayLabels[day], Options: slot})
	}
	return data
}
