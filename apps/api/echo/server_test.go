package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/suliportal/suliportal/apps/api/echo"
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

type testServer struct {
	srv      echoapi.Server
	conf     *core.Config
	users    user.Repository
	lunchSvc *lunch.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	emailsvc.ClearSentMessages()

	loc, err := time.LoadLocation("Europe/Budapest")
	require.NoError(t, err)
	conf := &core.Config{
		TestMode:  true,
		Env:       "TEST",
		AppName:   "SuliPortal",
		SecretKey: []byte("test-secret-key"),
		Server: core.ServerConfig{
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: time.Hour,
		},
		Lunch: core.LunchConfig{Timezone: "Europe/Budapest", Location: loc},
	}

	validate, translator := core.NewValidators()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	menuRepo := inmemdb.NewMenuRepository(db)
	orderRepo := inmemdb.NewOrderRepository(db)
	logger := testLogger{}
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	notifier := notifysvc.NewLoggerNotifier(logger)

	usrSvc := user.NewService(usrRepo, mailSvc, conf)
	lunchSvc := lunch.NewService(menuRepo, orderRepo, usrRepo, mailSvc, notifier, conf, logger)
	kioskSvc := lunch.NewKioskService(usrRepo, menuRepo, orderRepo, conf, logger)

	srv := echoapi.NewServer(echoapi.ServerDeps{
		Conf:           conf,
		Logger:         logger,
		UserSvc:        usrSvc,
		LunchSvc:       lunchSvc,
		KioskSvc:       kioskSvc,
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
	})
	return &testServer{srv: srv, conf: conf, users: usrRepo, lunchSvc: lunchSvc}
}

func (ts *testServer) createUser(t *testing.T, name, pwd string, roles ...string) user.User {
	t.Helper()
	active := true
	now := time.Now().UTC()
	usr := user.User{
		ID:        uuid.New().String(),
		Name:      name,
		Username:  name,
		Email:     name + "@example.com",
		IsActive:  &active,
		Roles:     roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, usr.SetPassword(pwd))
	usr, err := ts.users.CreateUser(context.Background(), usr)
	require.NoError(t, err)
	return usr
}

func (ts *testServer) token(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := echoapi.GenerateToken(echoapi.GetUserClaims(usr))
	require.NoError(t, err)
	return token
}

func (ts *testServer) request(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) nextWeekMenu(t *testing.T) lunch.Menu {
	t.Helper()
	wk := lunch.NextWeekOf(time.Now(), ts.lunchSvc.Location())
	days := [lunch.NumDays]lunch.DaySlot{}
	for day := range days {
		days[day] = lunch.DaySlot{
			{ID: "a-menu", Label: "Menu A"},
			{ID: "b-menu", Label: "Menu B"},
		}
	}
	menu, err := ts.lunchSvc.CreateMenu(context.Background(), wk, days)
	require.NoError(t, err)
	return menu
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)
	ts.createUser(t, "anna", "5tr0ngPa55w0rd", user.RoleStudent)

	tests := []struct {
		name     string
		body     interface{}
		wantCode int
	}{
		{"valid", map[string]string{"username": "anna", "password": "5tr0ngPa55w0rd"}, http.StatusOK},
		{"by email", map[string]string{"username": "anna@example.com", "password": "5tr0ngPa55w0rd"}, http.StatusOK},
		{"wrong password", map[string]string{"username": "anna", "password": "nope"}, http.StatusUnauthorized},
		{"unknown user", map[string]string{"username": "ghost", "password": "whatever"}, http.StatusUnauthorized},
		{"missing fields", map[string]string{"username": "anna"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.request(t, http.MethodPost, "/v1/users/login", "", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantCode == http.StatusOK {
				var resp struct {
					Token string    `json:"token"`
					User  user.User `json:"user"`
				}
				decodeJSON(t, rec, &resp)
				assert.NotEmpty(t, resp.Token)
				assert.Equal(t, "anna", resp.User.Username)
			}
		})
	}
}

func TestLogin_BlockedUser(t *testing.T) {
	ts := newTestServer(t)
	usr := ts.createUser(t, "ben", "5tr0ngPa55w0rd", user.RoleStudent)
	blocked := true
	_, err := ts.users.UpdateUser(context.Background(), user.User{ID: usr.ID}, nil, &blocked)
	require.NoError(t, err)

	rec := ts.request(t, http.MethodPost, "/v1/users/login", "", map[string]string{"username": "ben", "password": "5tr0ngPa55w0rd"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRetrieveSelf(t *testing.T) {
	ts := newTestServer(t)
	usr := ts.createUser(t, "anna", "5tr0ngPa55w0rd", user.RoleStudent)

	rec := ts.request(t, http.MethodGet, "/v1/users/me", ts.token(t, usr), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got user.User
	decodeJSON(t, rec, &got)
	assert.Equal(t, usr.ID, got.ID)

	// no token
	rec = ts.request(t, http.MethodGet, "/v1/users/me", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code) // echo's jwt middleware rejects the missing header
}

func TestUserAdminEndpoints(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.createUser(t, "root", "5tr0ngPa55w0rd", user.RoleAdmin)
	student := ts.createUser(t, "anna", "5tr0ngPa55w0rd", user.RoleStudent)

	// students cannot list users
	rec := ts.request(t, http.MethodGet, "/v1/users", ts.token(t, student), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// admins can
	rec = ts.request(t, http.MethodGet, "/v1/users", ts.token(t, admin), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var users []user.User
	decodeJSON(t, rec, &users)
	assert.Len(t, users, 2)

	// role filter uses prefixes
	rec = ts.request(t, http.MethodGet, "/v1/users?role=student:", ts.token(t, admin), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	users = nil
	decodeJSON(t, rec, &users)
	require.Len(t, users, 1)
	assert.Equal(t, student.ID, users[0].ID)
}
