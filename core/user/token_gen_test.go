package user

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suliportal/suliportal/core"
)

func tokenTestConfig() *core.Config {
	return &core.Config{
		SecretKey: []byte("secret-key"),
		Server: core.ServerConfig{
			PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		},
	}
}

func tokenTestUser(t *testing.T) User {
	t.Helper()
	usr := User{ID: "0c2dc6f6-32a9-4045-a5c4-c19194597a46"}
	require.NoError(t, usr.SetPassword("5tr0ngPa55w0rd"))
	return usr
}

func TestUIDEncoding(t *testing.T) {
	usr := tokenTestUser(t)

	uid := EncodeUID(usr)
	assert.NotEqual(t, usr.ID, uid)

	id, err := decodeUID(uid)
	require.NoError(t, err)
	assert.Equal(t, usr.ID, id)

	_, err = decodeUID("n0t/b64!")
	assert.Error(t, err)
}

func TestMakeToken(t *testing.T) {
	defer func() { NowFunc = time.Now }()
	conf := tokenTestConfig()
	usr := tokenTestUser(t)

	token, err := MakeToken(conf, usr)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.NoError(t, verifyToken(conf, usr, token))

	t.Run("invalid tokens", func(t *testing.T) {
		assert.Equal(t, errInvalidToken, verifyToken(conf, usr, ""))
		assert.Equal(t, errInvalidToken, verifyToken(conf, usr, "missingseparator"))
		assert.Equal(t, errInvalidToken, verifyToken(conf, usr, token+"tampered"))

		otherUsr := tokenTestUser(t)
		otherUsr.ID = "b3339818-de32-4c73-ac57-f074d2323ac2"
		assert.Equal(t, errInvalidToken, verifyToken(conf, otherUsr, token))
	})

	t.Run("invalidated by use", func(t *testing.T) {
		usedUsr := usr
		require.NoError(t, usedUsr.SetPassword("an0therPa55w0rd"))
		assert.Equal(t, errInvalidToken, verifyToken(conf, usedUsr, token))

		loggedInUsr := usr
		now := time.Now()
		loggedInUsr.LastLogin = &now
		assert.Equal(t, errInvalidToken, verifyToken(conf, loggedInUsr, token))
	})

	t.Run("expired", func(t *testing.T) {
		NowFunc = func() time.Time { return time.Now().AddDate(0, 0, -4) }
		oldToken, err := MakeToken(conf, usr)
		require.NoError(t, err)

		NowFunc = time.Now
		assert.Equal(t, errTokenExpired, verifyToken(conf, usr, oldToken))
	})

	t.Run("still valid within the window", func(t *testing.T) {
		NowFunc = func() time.Time { return time.Now().AddDate(0, 0, -2) }
		recentToken, err := MakeToken(conf, usr)
		require.NoError(t, err)

		NowFunc = time.Now
		assert.NoError(t, verifyToken(conf, usr, recentToken))
	})
}
