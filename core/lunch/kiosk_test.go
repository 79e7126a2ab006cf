package lunch_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suliportal/suliportal/core/lunch"
	"github.com/suliportal/suliportal/core/user"
)

// Wednesday of ISO week 36/2026, during lunch service.
func kioskScanTime(t *testing.T, env *testEnv) time.Time {
	t.Helper()
	return time.Date(2026, time.September, 2, 12, 0, 0, 0, env.conf.Lunch.Location)
}

func TestKioskRedeem(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	at := kioskScanTime(t, env)
	wk := lunch.WeekOf(at, env.conf.Lunch.Location)
	env.createMenu(t, wk)

	usr := env.createUser(t, "anna", "anna@example.com", "ABC123", user.RoleStudent)
	_, err := env.svc.SubmitOrder(ctx, usr, wk, [lunch.NumDays]string{"a-menu", "a-menu", "b-menu", "", ""})
	require.NoError(t, err)

	res, err := env.kiosk.Redeem(ctx, "ABC123", at)
	require.NoError(t, err)
	assert.Equal(t, lunch.StatusRedeemed, res.Status)
	assert.Equal(t, "anna", res.UserName)
	assert.Equal(t, 2, res.Day)
	assert.Equal(t, "b-menu", res.OptionID)
	assert.Equal(t, "Menu B", res.OptionLabel)
	require.NotNil(t, res.RedeemedAt)

	// a second scan the same day reports the first redemption
	res2, err := env.kiosk.Redeem(ctx, "ABC123", at)
	require.NoError(t, err)
	assert.Equal(t, lunch.StatusAlreadyRedeemed, res2.Status)
	require.NotNil(t, res2.RedeemedAt)
	assert.Equal(t, *res.RedeemedAt, *res2.RedeemedAt)

	// other days of the order are untouched
	order, err := env.svc.Order(ctx, usr.Email, wk)
	require.NoError(t, err)
	for day := 0; day < lunch.NumDays; day++ {
		if day == 2 {
			assert.NotNil(t, order.Redeemed[day])
		} else {
			assert.Nil(t, order.Redeemed[day])
		}
	}
}

func TestKioskRedeem_NotOrdered(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	at := kioskScanTime(t, env)
	wk := lunch.WeekOf(at, env.conf.Lunch.Location)
	env.createMenu(t, wk)
	usr := env.createUser(t, "anna", "anna@example.com", "ABC123", user.RoleStudent)

	// no order at all
	res, err := env.kiosk.Redeem(ctx, "ABC123", at)
	require.NoError(t, err)
	assert.Equal(t, lunch.StatusNotOrdered, res.Status)

	// an explicit no-lunch selection is not redeemable either
	_, err = env.svc.SubmitOrder(ctx, usr, wk, [lunch.NumDays]string{"a-menu", "a-menu", lunch.SelectionNone, "a-menu", "a-menu"})
	require.NoError(t, err)
	res, err = env.kiosk.Redeem(ctx, "ABC123", at)
	require.NoError(t, err)
	assert.Equal(t, lunch.StatusNotOrdered, res.Status)

	// and neither is an undecided day
	_, err = env.svc.SubmitOrder(ctx, usr, wk, [lunch.NumDays]string{"a-menu", "a-menu", "", "a-menu", "a-menu"})
	require.NoError(t, err)
	res, err = env.kiosk.Redeem(ctx, "ABC123", at)
	require.NoError(t, err)
	assert.Equal(t, lunch.StatusNotOrdered, res.Status)
}

func TestKioskRedeem_BadBadges(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	at := kioskScanTime(t, env)

	_, err := env.kiosk.Redeem(ctx, "NOPE", at)
	assert.Equal(t, lunch.ErrUnknownToken, errors.Cause(err))

	blocked := env.createUser(t, "ben", "ben@example.com", "BLOCKED1", user.RoleStudent)
	flag := true
	_, err = env.users.UpdateUser(ctx, user.User{ID: blocked.ID}, nil, &flag)
	require.NoError(t, err)
	_, err = env.kiosk.Redeem(ctx, "BLOCKED1", at)
	assert.Equal(t, lunch.ErrBadgeBlocked, errors.Cause(err))

	inactive := env.createUser(t, "carl", "carl@example.com", "GONE1", user.RoleStudent)
	active := false
	_, err = env.users.UpdateUser(ctx, user.User{ID: inactive.ID}, &active, nil)
	require.NoError(t, err)
	_, err = env.kiosk.Redeem(ctx, "GONE1", at)
	assert.Equal(t, lunch.ErrUnknownToken, errors.Cause(err))
}

func TestKioskRedeem_Weekend(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "anna", "anna@example.com", "ABC123", user.RoleStudent)

	saturday := time.Date(2026, time.September, 5, 12, 0, 0, 0, env.conf.Lunch.Location)
	_, err := env.kiosk.Redeem(context.Background(), "ABC123", saturday)
	assert.Equal(t, lunch.ErrOutOfRange, errors.Cause(err))
}

// Two kiosk stations scanning the same badge at once must not both serve the
// lunch: exactly one scan wins, every other one observes ALREADY_REDEEMED.
func TestKioskRedeem_ExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	at := kioskScanTime(t, env)
	wk := lunch.WeekOf(at, env.conf.Lunch.Location)
	env.createMenu(t, wk)

	usr := env.createUser(t, "anna", "anna@example.com", "ABC123", user.RoleStudent)
	_, err := env.svc.SubmitOrder(ctx, usr, wk, [lunch.NumDays]string{"", "", "b-menu", "", ""})
	require.NoError(t, err)

	const scans = 32
	results := make([]lunch.RedemptionStatus, scans)
	errs := make([]error, scans)

	var start, done sync.WaitGroup
	start.Add(1)
	done.Add(scans)
	for i := 0; i < scans; i++ {
		go func(i int) {
			defer done.Done()
			start.Wait()
			res, err := env.kiosk.Redeem(ctx, "ABC123", at)
			results[i], errs[i] = res.Status, err
		}(i)
	}
	start.Done()
	done.Wait()

	var redeemed, already int
	for i := 0; i < scans; i++ {
		require.NoError(t, errs[i])
		switch results[i] {
		case lunch.StatusRedeemed:
			redeemed++
		case lunch.StatusAlreadyRedeemed:
			already++
		default:
			t.Fatalf("unexpected status %q", results[i])
		}
	}
	assert.Equal(t, 1, redeemed)
	assert.Equal(t, scans-1, already)
}
