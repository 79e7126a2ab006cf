package lunch_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suliportal/suliportal/core"
	"github.com/suliportal/suliportal/core/lunch"
	"github.com/suliportal/suliportal/core/user"
	emailsvc "github.com/suliportal/suliportal/services/email"
	notifysvc "github.com/suliportal/suliportal/services/notifier"
	inmemdb "github.com/suliportal/suliportal/storage/inmem"
)

type testLogger struct{}

func (testLogger) Debug(string, ...interface{}) {}
func (testLogger) Info(string, ...interface{})  {}
func (testLogger) Warn(string, ...interface{})  {}
func (testLogger) Error(string, ...interface{}) {}
func (testLogger) Fatal(string, ...interface{}) {}

type testEnv struct {
	conf   *core.Config
	db     *inmemdb.DB
	users  user.Repository
	menus  lunch.MenuRepository
	orders lunch.OrderRepository
	svc    *lunch.Service
	kiosk  *lunch.KioskService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	emailsvc.ClearSentMessages()

	loc, err := time.LoadLocation("Europe/Budapest")
	require.NoError(t, err)
	conf := &core.Config{
		TestMode: true,
		AppName:  "SuliPortal",
		Lunch:    core.LunchConfig{Timezone: "Europe/Budapest", Location: loc},
	}

	db := inmemdb.Open()
	users := inmemdb.NewUserRepository(db)
	menus := inmemdb.NewMenuRepository(db)
	orders := inmemdb.NewOrderRepository(db)
	logger := testLogger{}

	return &testEnv{
		conf:   conf,
		db:     db,
		users:  users,
		menus:  menus,
		orders: orders,
		svc: lunch.NewService(
			menus, orders, users,
			emailsvc.NewConsoleServiceMock(conf), notifysvc.NewLoggerNotifier(logger),
			conf, logger,
		),
		kiosk: lunch.NewKioskService(users, menus, orders, conf, logger),
	}
}

func (env *testEnv) createUser(t *testing.T, name, email, badgeID string, roles ...string) user.User {
	t.Helper()
	active := true
	now := time.Now().UTC()
	usr, err := env.users.CreateUser(context.Background(), user.User{
		ID:        uuid.New().String(),
		Name:      name,
		Username:  name,
		Email:     email,
		BadgeID:   badgeID,
		IsActive:  &active,
		Roles:     roles,
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(t, err)
	return usr
}

func (env *testEnv) createMenu(t *testing.T, wk lunch.WeekKey) lunch.Menu {
	t.Helper()
	days := [lunch.NumDays]lunch.DaySlot{}
	for day := range days {
		days[day] = lunch.DaySlot{
			{ID: "a-menu", Label: "Menu A"},
			{ID: "b-menu", Label: "Menu B"},
		}
	}
	menu, err := env.svc.CreateMenu(context.Background(), wk, days)
	require.NoError(t, err)
	return menu
}

func TestServiceCreateMenu(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	wk := lunch.WeekKey{Week: 36, Year: 2026}

	menu := env.createMenu(t, wk)
	assert.NotEmpty(t, menu.ID)
	assert.True(t, menu.IsOpen, "a freshly published menu opens the order window")
	assert.Equal(t, wk, menu.WeekKey())

	// one menu per week
	_, err := env.svc.CreateMenu(ctx, wk, menu.Days)
	assert.Equal(t, lunch.ErrMenuExists, errors.Cause(err))

	// the first record is untouched
	got, err := env.svc.Menu(ctx, wk)
	require.NoError(t, err)
	assert.Equal(t, menu.ID, got.ID)
}

func TestServiceSubmitOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	wk := lunch.WeekKey{Week: 36, Year: 2026}
	env.createMenu(t, wk)
	usr := env.createUser(t, "anna", "anna@example.com", "", user.RoleStudent)

	selections := [lunch.NumDays]string{"a-menu", "b-menu", lunch.SelectionNone, "", "a-menu"}
	order, err := env.svc.SubmitOrder(ctx, usr, wk, selections)
	require.NoError(t, err)
	assert.Equal(t, selections, order.Selections)
	assert.Equal(t, usr.Email, order.Email)
	for day := 0; day < lunch.NumDays; day++ {
		assert.Nil(t, order.Redeemed[day])
	}

	// resubmission replaces selections in full and keeps the same record
	selections2 := [lunch.NumDays]string{"b-menu", "", "", "", ""}
	order2, err := env.svc.SubmitOrder(ctx, usr, wk, selections2)
	require.NoError(t, err)
	assert.Equal(t, order.ID, order2.ID)
	assert.Equal(t, selections2, order2.Selections)
}

func TestServiceSubmitOrder_MenuMissing(t *testing.T) {
	env := newTestEnv(t)
	usr := env.createUser(t, "anna", "anna@example.com", "", user.RoleStudent)

	_, err := env.svc.SubmitOrder(context.Background(), usr, lunch.WeekKey{Week: 40, Year: 2026}, [lunch.NumDays]string{})
	assert.Equal(t, lunch.ErrMenuNotFound, errors.Cause(err))
}

func TestServiceSubmitOrder_WindowClosed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	wk := lunch.WeekKey{Week: 36, Year: 2026}
	env.createMenu(t, wk)
	usr := env.createUser(t, "anna", "anna@example.com", "", user.RoleStudent)

	require.NoError(t, env.svc.SetOpen(ctx, wk, false))

	_, err := env.svc.SubmitOrder(ctx, usr, wk, [lunch.NumDays]string{"a-menu"})
	assert.Equal(t, lunch.ErrWindowClosed, errors.Cause(err))

	// reopening lets submissions through again
	require.NoError(t, env.svc.SetOpen(ctx, wk, true))
	_, err = env.svc.SubmitOrder(ctx, usr, wk, [lunch.NumDays]string{"a-menu"})
	assert.NoError(t, err)
}

func TestServiceSubmitOrder_InvalidSelection(t *testing.T) {
	env := newTestEnv(t)
	wk := lunch.WeekKey{Week: 36, Year: 2026}
	env.createMenu(t, wk)
	usr := env.createUser(t, "anna", "anna@example.com", "", user.RoleStudent)

	_, err := env.svc.SubmitOrder(context.Background(), usr, wk, [lunch.NumDays]string{"a-menu", "pizza", "", "", "sushi"})
	vErr, ok := errors.Cause(err).(*core.ValidationError)
	require.True(t, ok, "expected a validation error, got %v", err)
	assert.Equal(t, lunch.ErrInvalidSelection, vErr.Err)
	require.Len(t, vErr.Fields, 2)
	assert.Equal(t, "selections[1]", vErr.Fields[0].Field)
	assert.Equal(t, "selections[4]", vErr.Fields[1].Field)

	// a fully invalid submission leaves no record behind
	_, err = env.svc.Order(context.Background(), usr.Email, wk)
	assert.Equal(t, lunch.ErrOrderNotFound, errors.Cause(err))
}

func TestServiceSubmitOrder_NotEligible(t *testing.T) {
	env := newTestEnv(t)
	wk := lunch.WeekKey{Week: 36, Year: 2026}
	env.createMenu(t, wk)

	usr := env.createUser(t, "anna", "anna@example.com", "", user.RoleStudent)
	usr.Blocked = true
	_, err := env.svc.SubmitOrder(context.Background(), usr, wk, [lunch.NumDays]string{})
	assert.Equal(t, lunch.ErrNotEligible, errors.Cause(err))

	inactive := false
	usr.Blocked = false
	usr.IsActive = &inactive
	_, err = env.svc.SubmitOrder(context.Background(), usr, wk, [lunch.NumDays]string{})
	assert.Equal(t, lunch.ErrNotEligible, errors.Cause(err))
}

func TestServicePublishMenu(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createUser(t, "anna", "anna@example.com", "", user.RoleStudent)
	env.createUser(t, "ben", "ben@example.com", "", user.RoleStudent)
	blocked := env.createUser(t, "carl", "carl@example.com", "", user.RoleStudent)
	blockedFlag := true
	_, err := env.users.UpdateUser(ctx, user.User{ID: blocked.ID}, nil, &blockedFlag)
	require.NoError(t, err)

	nm := lunch.NewMenu{}
	for day := range nm.Days {
		nm.Days[day] = lunch.DaySlot{{ID: "a-menu", Label: "Menu A"}}
	}
	menu, err := env.svc.PublishMenu(ctx, nm)
	require.NoError(t, err)

	wantWk := lunch.NextWeekOf(time.Now(), env.svc.Location())
	assert.Equal(t, wantWk, menu.WeekKey())
	assert.True(t, menu.IsOpen)

	// one announcement, active non-blocked users in bcc
	require.Len(t, emailsvc.SentMessages, 1)
	msg := emailsvc.SentMessages[0]
	assert.Equal(t, "lunch-open", msg.TemplateName)
	require.Len(t, msg.Bcc, 2)
	got := []string{msg.Bcc[0].Address, msg.Bcc[1].Address}
	assert.ElementsMatch(t, []string{"anna@example.com", "ben@example.com"}, got)
}

func TestServiceCloseWindow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	wk := lunch.NextWeekOf(time.Now(), env.svc.Location())
	env.createMenu(t, wk)

	anna := env.createUser(t, "anna", "anna@example.com", "", user.RoleStudent)
	ben := env.createUser(t, "ben", "ben@example.com", "", user.RoleStudent)
	for _, usr := range []user.User{anna, ben} {
		_, err := env.svc.SubmitOrder(ctx, usr, wk, [lunch.NumDays]string{"a-menu"})
		require.NoError(t, err)
	}

	count, err := env.svc.CloseWindow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	menu, err := env.svc.Menu(ctx, wk)
	require.NoError(t, err)
	assert.False(t, menu.IsOpen)

	// closing is idempotent
	count, err = env.svc.CloseWindow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestServiceCloseWindow_NoMenu(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.CloseWindow(context.Background())
	assert.Equal(t, lunch.ErrMenuNotFound, errors.Cause(err))
}
