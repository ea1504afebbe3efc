package settings_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"siteworker/internal/settings"
	"siteworker/internal/testsupport"
)

func TestSetupDefaultSettings(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	require.NoError(t, settings.SetupDefaultSettings(db, settings.Defaults{AutoApprove: true, RateLimit: 7, RetentionDays: 30}))

	assert.False(t, settings.Bool(db, settings.KeySetupDisabled, true))
	assert.True(t, settings.Bool(db, settings.KeyAutoApprove, false))
	assert.Equal(t, 7, settings.Int(db, settings.KeyCommentRateLimit, 5))
	assert.Equal(t, 30, settings.Int(db, settings.KeyAnalyticsRetention, 90))

	t.Run("does not overwrite existing values", func(t *testing.T) {
		require.NoError(t, settings.Set(db, settings.KeyCommentRateLimit, "12"))
		require.NoError(t, settings.SetupDefaultSettings(db, settings.Defaults{RateLimit: 5, RetentionDays: 90}))
		assert.Equal(t, 12, settings.Int(db, settings.KeyCommentRateLimit, 5))
	})

	t.Run("marks credentials as secret", func(t *testing.T) {
		setting, err := settings.GetSetting(db, settings.KeyGeoLiteLicenseKey)
		require.NoError(t, err)
		assert.True(t, setting.IsSecret)
	})
}

func TestSet(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	t.Run("creates and updates", func(t *testing.T) {
		require.NoError(t, settings.Set(db, "custom.flag", "true"))
		assert.True(t, settings.Bool(db, "custom.flag", false))

		require.NoError(t, settings.Set(db, "custom.flag", "false"))
		assert.False(t, settings.Bool(db, "custom.flag", true))

		setting, err := settings.GetSetting(db, "custom.flag")
		require.NoError(t, err)
		assert.NotZero(t, setting.UpdatedAt)
	})

	t.Run("rejects invalid json", func(t *testing.T) {
		err := settings.Set(db, "custom.bad", "{not json")
		assert.ErrorIs(t, err, settings.ErrInvalidValue)
	})

	t.Run("rejects empty key", func(t *testing.T) {
		assert.Error(t, settings.Set(db, " ", "1"))
	})

	t.Run("keeps secret flag on update", func(t *testing.T) {
		require.NoError(t, settings.SetupDefaultSettings(db, settings.Defaults{RateLimit: 5, RetentionDays: 90}))
		require.NoError(t, settings.SetValue(db, settings.KeyGeoLiteLicenseKey, "abc"))

		setting, err := settings.GetSetting(db, settings.KeyGeoLiteLicenseKey)
		require.NoError(t, err)
		assert.True(t, setting.IsSecret)
		assert.Equal(t, "abc", settings.String(db, settings.KeyGeoLiteLicenseKey, ""))
	})
}

func TestTypedReadersFallback(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	assert.True(t, settings.Bool(db, "missing", true))
	assert.Equal(t, 42, settings.Int(db, "missing", 42))

	require.NoError(t, settings.Set(db, "n.string", `"15"`))
	assert.Equal(t, 15, settings.Int(db, "n.string", 1))

	require.NoError(t, settings.Set(db, "n.negative", "-3"))
	assert.Equal(t, 5, settings.Int(db, "n.negative", 5))

	require.NoError(t, settings.Set(db, "b.string", `"true"`))
	assert.True(t, settings.Bool(db, "b.string", false))

	require.NoError(t, settings.Set(db, "b.object", `{"a":1}`))
	assert.False(t, settings.Bool(db, "b.object", false))
}
