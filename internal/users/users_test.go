package users_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"siteworker/internal/apierror"
	"siteworker/internal/settings"
	"siteworker/internal/testsupport"
	"siteworker/internal/users"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := users.HashPassword("s3cret-password")
	require.NoError(t, err)
	assert.Equal(t, users.PasswordIterations, hash.Iterations)
	assert.NotEmpty(t, hash.Salt)

	assert.True(t, users.VerifyPassword("s3cret-password", hash))
	assert.False(t, users.VerifyPassword("wrong-password", hash))

	again, err := users.HashPassword("s3cret-password")
	require.NoError(t, err)
	assert.NotEqual(t, hash.Salt, again.Salt, "every hash gets a fresh salt")
	assert.NotEqual(t, hash.Hash, again.Hash)

	assert.False(t, users.VerifyPassword("x", users.PasswordHash{Hash: "not base64!", Salt: hash.Salt}))
}

func TestSetup(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	require.NoError(t, settings.SetupDefaultSettings(db, settings.Defaults{RateLimit: 5, RetentionDays: 90}))

	input := users.SetupInput{
		BearerToken:     "bootstrap-token",
		ConfiguredToken: "bootstrap-token",
		Username:        "admin",
		Password:        "long-enough-password",
	}

	t.Run("wrong token", func(t *testing.T) {
		bad := input
		bad.BearerToken = "nope"
		_, err := users.Setup(db, logger, bad)
		assert.ErrorIs(t, err, apierror.ErrUnauthorized)
	})

	t.Run("unconfigured token never matches", func(t *testing.T) {
		bad := input
		bad.BearerToken, bad.ConfiguredToken = "", ""
		_, err := users.Setup(db, logger, bad)
		assert.ErrorIs(t, err, apierror.ErrUnauthorized)
	})

	t.Run("weak password", func(t *testing.T) {
		bad := input
		bad.Password = "short"
		_, err := users.Setup(db, logger, bad)
		assert.ErrorIs(t, err, apierror.ErrInvalidPayload)
	})

	t.Run("first call creates the admin and closes setup", func(t *testing.T) {
		assert.False(t, users.SetupDisabled(db))

		user, err := users.Setup(db, logger, input)
		require.NoError(t, err)
		assert.Equal(t, "admin", user.Username)
		assert.Equal(t, users.PasswordIterations, user.PwIters)
		assert.NotEqual(t, input.Password, user.PwHash)

		assert.True(t, users.SetupDisabled(db))
	})

	t.Run("second call conflicts before checking the flag", func(t *testing.T) {
		_, err := users.Setup(db, logger, input)
		assert.ErrorIs(t, err, users.ErrSetupConflict)
		assert.Equal(t, 409, apierror.Status(err))
	})
}

func TestSetupDisabledWithoutAdmin(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	require.NoError(t, settings.Set(db, settings.KeySetupDisabled, "true"))

	_, err := users.Setup(db, logger, users.SetupInput{
		BearerToken:     "t",
		ConfiguredToken: "t",
		Username:        "admin",
		Password:        "long-enough-password",
	})
	assert.ErrorIs(t, err, users.ErrSetupDisabled)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", users.BearerToken("Bearer abc"))
	assert.Equal(t, "abc", users.BearerToken("bearer   abc "))
	assert.Empty(t, users.BearerToken("Basic abc"))
	assert.Empty(t, users.BearerToken("Bearer "))
	assert.Empty(t, users.BearerToken(""))
}

func TestLoginAndAuthenticate(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	admin := testsupport.CreateTestAdmin(t, db, "admin", "correct horse battery")

	result, err := users.Login(db, logger, users.LoginInput{Username: "admin", Password: "correct horse battery", IP: "127.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, admin.ID, result.UserID)
	assert.NotEmpty(t, result.SessionToken)
	assert.NotEmpty(t, result.CSRFToken)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), result.ExpiresAt, time.Minute)

	t.Run("raw tokens are never stored", func(t *testing.T) {
		var session users.AdminSession
		require.NoError(t, db.Where("user_id = ?", admin.ID).First(&session).Error)
		assert.NotEqual(t, result.SessionToken, session.TokenHash)
		assert.NotEqual(t, result.CSRFToken, session.CSRFHash)
	})

	t.Run("failures are indistinguishable", func(t *testing.T) {
		_, err := users.Login(db, logger, users.LoginInput{Username: "admin", Password: "wrong"})
		assert.ErrorIs(t, err, users.ErrInvalidCredentials)

		_, err = users.Login(db, logger, users.LoginInput{Username: "ghost", Password: "correct horse battery"})
		assert.ErrorIs(t, err, users.ErrInvalidCredentials)
	})

	t.Run("both tokens are required", func(t *testing.T) {
		now := time.Now()

		session, err := users.Authenticate(db, result.SessionToken, result.CSRFToken, now)
		require.NoError(t, err)
		assert.Equal(t, admin.ID, session.UserID)

		_, err = users.Authenticate(db, result.SessionToken, "", now)
		assert.ErrorIs(t, err, apierror.ErrUnauthorized)

		_, err = users.Authenticate(db, "", result.CSRFToken, now)
		assert.ErrorIs(t, err, apierror.ErrUnauthorized)

		_, err = users.Authenticate(db, result.SessionToken, result.SessionToken, now)
		assert.ErrorIs(t, err, apierror.ErrUnauthorized)
	})

	t.Run("expired sessions are rejected", func(t *testing.T) {
		_, err := users.Authenticate(db, result.SessionToken, result.CSRFToken, result.ExpiresAt.Add(time.Second))
		assert.ErrorIs(t, err, apierror.ErrUnauthorized)
	})

	t.Run("disabled users cannot log in or authenticate", func(t *testing.T) {
		require.NoError(t, users.SetDisabled(db, logger, "admin", true))
		t.Cleanup(func() { users.SetDisabled(db, logger, "admin", false) })

		_, err := users.Authenticate(db, result.SessionToken, result.CSRFToken, time.Now())
		assert.ErrorIs(t, err, apierror.ErrUnauthorized)

		_, err = users.Login(db, logger, users.LoginInput{Username: "admin", Password: "correct horse battery"})
		assert.ErrorIs(t, err, users.ErrInvalidCredentials)
	})

	t.Run("logout removes the session", func(t *testing.T) {
		require.NoError(t, users.Logout(db, logger, result.SessionToken))
		_, err := users.Authenticate(db, result.SessionToken, result.CSRFToken, time.Now())
		assert.ErrorIs(t, err, apierror.ErrUnauthorized)
	})
}

func TestResetPassword(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	testsupport.CreateTestAdmin(t, db, "admin", "old-password-1")

	login, err := users.Login(db, logger, users.LoginInput{Username: "admin", Password: "old-password-1"})
	require.NoError(t, err)

	require.NoError(t, users.ResetPassword(db, logger, "admin", "new-password-2"))

	_, err = users.Authenticate(db, login.SessionToken, login.CSRFToken, time.Now())
	assert.ErrorIs(t, err, apierror.ErrUnauthorized, "existing sessions are revoked")

	_, err = users.Login(db, logger, users.LoginInput{Username: "admin", Password: "old-password-1"})
	assert.ErrorIs(t, err, users.ErrInvalidCredentials)

	_, err = users.Login(db, logger, users.LoginInput{Username: "admin", Password: "new-password-2"})
	assert.NoError(t, err)

	assert.ErrorIs(t, users.ResetPassword(db, logger, "ghost", "new-password-2"), users.ErrUserNotFound)
}

func TestPurgeExpiredSessions(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	now := time.Now().UTC()
	require.NoError(t, db.Create(&users.AdminSession{UserID: 1, TokenHash: "a", CSRFHash: "a", CreatedAt: now.Unix(), ExpiresAt: now.Add(-time.Hour).Unix()}).Error)
	require.NoError(t, db.Create(&users.AdminSession{UserID: 1, TokenHash: "b", CSRFHash: "b", CreatedAt: now.Unix(), ExpiresAt: now.Add(time.Hour).Unix()}).Error)

	purged, err := users.PurgeExpiredSessions(db, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	var remaining int64
	db.Model(&users.AdminSession{}).Count(&remaining)
	assert.Equal(t, int64(1), remaining)
}
