package echoapi_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suliportal/suliportal/core/lunch"
	"github.com/suliportal/suliportal/core/user"
)

func TestGetNextMenu(t *testing.T) {
	ts := newTestServer(t)
	usr := ts.createUser(t, "anna", "5tr0ngPa55w0rd", user.RoleStudent)
	token := ts.token(t, usr)

	// nothing published yet
	rec := ts.request(t, http.MethodGet, "/v1/lunch/menus/next", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	menu := ts.nextWeekMenu(t)
	rec = ts.request(t, http.MethodGet, "/v1/lunch/menus/next", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got lunch.Menu
	decodeJSON(t, rec, &got)
	assert.Equal(t, menu.ID, got.ID)
	assert.True(t, got.IsOpen)

	// unauthenticated
	rec = ts.request(t, http.MethodGet, "/v1/lunch/menus/next", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPublishMenu(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.createUser(t, "root", "5tr0ngPa55w0rd", user.RoleAdmin)
	student := ts.createUser(t, "anna", "5tr0ngPa55w0rd", user.RoleStudent)

	body := map[string]interface{}{
		"days": [][]map[string]string{
			{{"id": "a-menu", "label": "Menu A"}},
			{{"id": "a-menu", "label": "Menu A"}},
			{{"id": "a-menu", "label": "Menu A"}},
			{},
			{{"id": "a-menu", "label": "Menu A"}},
		},
	}

	// students may not publish
	rec := ts.request(t, http.MethodPost, "/v1/lunch/menus", ts.token(t, student), body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.request(t, http.MethodPost, "/v1/lunch/menus", ts.token(t, admin), body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var menu lunch.Menu
	decodeJSON(t, rec, &menu)
	assert.Equal(t, lunch.NextWeekOf(time.Now(), ts.lunchSvc.Location()), menu.WeekKey())
	assert.True(t, menu.IsOpen)

	// one menu per week
	rec = ts.request(t, http.MethodPost, "/v1/lunch/menus", ts.token(t, admin), body)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPublishMenu_DuplicateOption(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.createUser(t, "root", "5tr0ngPa55w0rd", user.RoleAdmin)

	body := map[string]interface{}{
		"days": [][]map[string]string{
			{{"id": "a-menu", "label": "Menu A"}, {"id": "a-menu", "label": "Menu A again"}},
			{}, {}, {}, {},
		},
	}
	rec := ts.request(t, http.MethodPost, "/v1/lunch/menus", ts.token(t, admin), body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitOrder(t *testing.T) {
	ts := newTestServer(t)
	usr := ts.createUser(t, "anna", "5tr0ngPa55w0rd", user.RoleStudent)
	token := ts.token(t, usr)

	// no menu yet
	rec := ts.request(t, http.MethodPut, "/v1/lunch/orders/next", token,
		map[string]interface{}{"selections": []string{"a-menu", "", "", "", ""}})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ts.nextWeekMenu(t)

	rec = ts.request(t, http.MethodPut, "/v1/lunch/orders/next", token,
		map[string]interface{}{"selections": []string{"a-menu", "b-menu", "no-lunch", "", "a-menu"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var order lunch.Order
	decodeJSON(t, rec, &order)
	assert.Equal(t, usr.Email, order.Email)
	assert.Equal(t, [lunch.NumDays]string{"a-menu", "b-menu", "no-lunch", "", "a-menu"}, order.Selections)

	// the order can be read back
	rec = ts.request(t, http.MethodGet, "/v1/lunch/orders/next", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got lunch.Order
	decodeJSON(t, rec, &got)
	assert.Equal(t, order.ID, got.ID)

	// off-menu selection
	rec = ts.request(t, http.MethodPut, "/v1/lunch/orders/next", token,
		map[string]interface{}{"selections": []string{"pizza", "", "", "", ""}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitOrder_WindowClosed(t *testing.T) {
	ts := newTestServer(t)
	usr := ts.createUser(t, "anna", "5tr0ngPa55w0rd", user.RoleStudent)
	admin := ts.createUser(t, "root", "5tr0ngPa55w0rd", user.RoleAdmin)
	ts.nextWeekMenu(t)

	closed := false
	rec := ts.request(t, http.MethodPatch, "/v1/lunch/menus/next/window", ts.token(t, admin),
		map[string]interface{}{"is_open": &closed})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.request(t, http.MethodPut, "/v1/lunch/orders/next", ts.token(t, usr),
		map[string]interface{}{"selections": []string{"a-menu", "", "", "", ""}})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSetWindow(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.createUser(t, "root", "5tr0ngPa55w0rd", user.RoleAdmin)
	anna := ts.createUser(t, "anna", "5tr0ngPa55w0rd", user.RoleStudent)
	token := ts.token(t, admin)

	// no menu yet
	isOpen := false
	rec := ts.request(t, http.MethodPatch, "/v1/lunch/menus/next/window", token,
		map[string]interface{}{"is_open": &isOpen})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ts.nextWeekMenu(t)
	wk := lunch.NextWeekOf(time.Now(), ts.lunchSvc.Location())
	_, err := ts.lunchSvc.SubmitOrder(context.Background(), anna, wk, [lunch.NumDays]string{"a-menu"})
	require.NoError(t, err)

	rec = ts.request(t, http.MethodPatch, "/v1/lunch/menus/next/window", token,
		map[string]interface{}{"is_open": &isOpen})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Week       string `json:"week"`
		IsOpen     bool   `json:"is_open"`
		OrderCount *int   `json:"order_count"`
	}
	decodeJSON(t, rec, &resp)
	assert.Equal(t, wk.String(), resp.Week)
	assert.False(t, resp.IsOpen)
	require.NotNil(t, resp.OrderCount)
	assert.Equal(t, 1, *resp.OrderCount)

	// reopen
	isOpen = true
	rec = ts.request(t, http.MethodPatch, "/v1/lunch/menus/next/window", token,
		map[string]interface{}{"is_open": &isOpen})
	require.Equal(t, http.StatusOK, rec.Code)
	menu, err := ts.lunchSvc.NextMenu(context.Background(), time.Now())
	require.NoError(t, err)
	assert.True(t, menu.IsOpen)

	// missing flag
	rec = ts.request(t, http.MethodPatch, "/v1/lunch/menus/next/window", token, map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestKioskRedeemEndpoint(t *testing.T) {
	ts := newTestServer(t)
	kitchen := ts.createUser(t, "kiosk1", "5tr0ngPa55w0rd", user.RoleKitchen)
	student := ts.createUser(t, "anna", "5tr0ngPa55w0rd", user.RoleStudent)

	// students cannot operate the kiosk
	rec := ts.request(t, http.MethodPost, "/v1/lunch/kiosk/redeem", ts.token(t, student),
		map[string]string{"badge_id": "ABC123"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// unknown badge
	rec = ts.request(t, http.MethodPost, "/v1/lunch/kiosk/redeem", ts.token(t, kitchen),
		map[string]string{"badge_id": "ABC123"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// missing badge id
	rec = ts.request(t, http.MethodPost, "/v1/lunch/kiosk/redeem", ts.token(t, kitchen),
		map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
