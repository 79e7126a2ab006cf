package echoapi

import (
	"net/http"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/suliportal/suliportal/core"
	"github.com/suliportal/suliportal/core/user"
)

var (
	errAuthenticationFailed = echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	errRefreshExpired       = echo.NewHTTPError(http.StatusUnauthorized, "refresh has expired")
	errHTTPForbidden        = echo.NewHTTPError(http.StatusForbidden, http.StatusText(http.StatusForbidden))
)

const jwtContextKey = "userToken"

// package auth state, set once at server setup via ConfigureAuth
var (
	appName              string
	signingKey           []byte
	jwtExpiration        time.Duration
	jwtRefreshExpiration time.Duration
)

// ConfigureAuth wires the JWT auth state from the app config and returns the
// authentication middleware protecting the API groups.
func ConfigureAuth(conf *core.Config) echo.MiddlewareFunc {
	appName = conf.AppName
	signingKey = conf.SecretKey
	jwtExpiration = conf.Server.JWTExpirationDelta
	jwtRefreshExpiration = conf.Server.JWTRefreshExpirationDelta

	return middleware.JWTWithConfig(middleware.JWTConfig{
		Claims:        &Claims{},
		ContextKey:    jwtContextKey,
		SigningKey:    signingKey,
		SigningMethod: middleware.AlgorithmHS256,
	})
}

type Claims struct {
	jwt.StandardClaims
	Username     string   `json:"username,omitempty"`
	Email        string   `json:"email,omitempty"`
	IsStudent    bool     `json:"is_student"`
	IsTeacher    bool     `json:"is_teacher"`
	IsKitchen    bool     `json:"is_kitchen"`
	IsAdmin      bool     `json:"is_admin"`
	Roles        []string `json:"roles,omitempty"`
	OrigIssuedAt int64    `json:"orig_iat"`
}

func GetUserClaims(usr user.User) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Subject:   usr.ID,
			Issuer:    appName,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(jwtExpiration).Unix(),
		},
		Username:     usr.Username,
		Email:        usr.Email,
		IsStudent:    usr.IsStudent(),
		IsTeacher:    usr.IsTeacher(),
		IsKitchen:    usr.IsKitchen(),
		IsAdmin:      usr.IsAdmin(),
		Roles:        usr.Roles,
		OrigIssuedAt: now.Unix(),
	}
}

func GenerateToken(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(signingKey)
	return signed, errors.Wrap(err, "signing token")
}

// authenticate checks the provided credentials and returns the matching user.
// Inactive and blocked accounts fail the same way unknown ones do.
func authenticate(ctx echo.Context, uname, pwd string, svc user.ServiceInterface) (user.User, error) {
	reqCtx := ctx.Request().Context()
	usr, err := svc.GetByUsernameOrEmail(reqCtx, uname)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, errAuthenticationFailed
		}
		return user.User{}, errors.Wrap(err, "getting user")
	}
	if usr.Blocked || (usr.IsActive != nil && !*usr.IsActive) {
		return user.User{}, errAuthenticationFailed
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return user.User{}, errAuthenticationFailed
	}
	if _, err = svc.SetLastLogin(reqCtx, usr); err != nil {
		return user.User{}, errors.Wrap(err, "setting last login")
	}
	return usr, nil
}

// refreshToken re-issues a token with a fresh expiry, keeping the original
// issue time, as long as the refresh window has not elapsed.
func refreshToken(claims *Claims) (string, error) {
	origIat := time.Unix(claims.OrigIssuedAt, 0)
	if time.Now().After(origIat.Add(jwtRefreshExpiration)) {
		return "", errRefreshExpired
	}
	claims.ExpiresAt = time.Now().Add(jwtExpiration).Unix()
	return GenerateToken(claims)
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	token, ok := ctx.Get(jwtContextKey).(*jwt.Token)
	if !ok {
		return Claims{}, errors.New("missing token in context")
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return Claims{}, errors.New("unexpected claims type")
	}
	return *claims, nil
}

// getContextUser loads the authenticated user from the store. Handlers that
// only gate on roles should use the claims directly instead.
func getContextUser(ctx echo.Context, svc user.ServiceInterface) (user.User, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return user.User{}, err
	}
	usr, err := svc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return user.User{}, err
	}
	return usr, nil
}

func contextHasAnyRole(ctx echo.Context, roles ...string) bool {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return false
	}
	return user.HasAnyRole(user.User{Roles: claims.Roles}, roles...)
}
