package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeatureFlags_Defaults(t *testing.T) {
	ff := LoadFeatureFlags()

	assert.True(t, ff.IsEnabled(FeatureReportCache, nil))
	assert.True(t, ff.IsEnabled(FeatureQuotaEnforcement, nil))
	assert.False(t, ff.IsEnabled(FeatureExperimentalFactDecay, nil))
	assert.False(t, ff.IsEnabled("does.not.exist", nil))
}

func TestFeatureFlags_EnvBooleanOverride(t *testing.T) {
	t.Setenv("FEATURE_REPORT_CACHE", "false")
	ff := LoadFeatureFlags()

	assert.False(t, ff.IsEnabled(FeatureReportCache, nil))
}

func TestFeatureFlags_EnvPercentOverride(t *testing.T) {
	t.Setenv("FEATURE_EXPERIMENTAL_FACT_DECAY", "50")
	ff := LoadFeatureFlags()

	f := ff.GetAllFeatures()[FeatureExperimentalFactDecay]
	require.NotNil(t, f)
	assert.True(t, f.Enabled)
	assert.Equal(t, 50, f.RolloutPercent)
}

func TestFeatureFlags_EnvGarbageIgnored(t *testing.T) {
	t.Setenv("FEATURE_REPORT_CACHE", "maybe")
	ff := LoadFeatureFlags()

	assert.True(t, ff.IsEnabled(FeatureReportCache, nil))
}

func TestFeatureFlags_RolloutBucketingIsStable(t *testing.T) {
	ff := LoadFeatureFlags()
	require.NoError(t, ff.SetRolloutPercent(FeatureReportMotivation, 50))

	ctx := &FeatureContext{UserID: "b7e9a2d4-1c3f-4e5a-9b8c-7d6e5f4a3b2c"}
	first := ff.IsEnabled(FeatureReportMotivation, ctx)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ff.IsEnabled(FeatureReportMotivation, ctx))
	}
}

func TestFeatureFlags_RolloutExtremes(t *testing.T) {
	ff := LoadFeatureFlags()
	ctx := &FeatureContext{UserID: "b7e9a2d4-1c3f-4e5a-9b8c-7d6e5f4a3b2c"}

	require.NoError(t, ff.SetRolloutPercent(FeatureReportMotivation, 0))
	assert.False(t, ff.IsEnabled(FeatureReportMotivation, ctx))

	require.NoError(t, ff.SetRolloutPercent(FeatureReportMotivation, 100))
	assert.True(t, ff.IsEnabled(FeatureReportMotivation, ctx))
}

func TestFeatureFlags_UserOverrideWinsOverRollout(t *testing.T) {
	ff := LoadFeatureFlags()
	require.NoError(t, ff.DisableFeature(FeatureReportBreakthroughs))

	userID := "b7e9a2d4-1c3f-4e5a-9b8c-7d6e5f4a3b2c"
	ff.SetUserOverride(userID, FeatureReportBreakthroughs, true)
	assert.True(t, ff.IsEnabled(FeatureReportBreakthroughs, &FeatureContext{UserID: userID}))

	ff.ClearUserOverrides(userID)
	assert.False(t, ff.IsEnabled(FeatureReportBreakthroughs, &FeatureContext{UserID: userID}))
}

func TestFeatureFlags_AdminSeesEverything(t *testing.T) {
	ff := LoadFeatureFlags()
	admin := &FeatureContext{UserID: "b7e9a2d4-1c3f-4e5a-9b8c-7d6e5f4a3b2c", IsAdmin: true}

	assert.True(t, ff.IsEnabled(FeatureExperimentalFactDecay, admin))
}

func TestFeatureFlags_SetRolloutPercentValidation(t *testing.T) {
	ff := LoadFeatureFlags()

	assert.ErrorIs(t, ff.SetRolloutPercent("does.not.exist", 10), ErrFeatureNotFound)
	assert.ErrorIs(t, ff.SetRolloutPercent(FeatureReportCache, 101), ErrInvalidRolloutPercent)
	assert.ErrorIs(t, ff.SetRolloutPercent(FeatureReportCache, -1), ErrInvalidRolloutPercent)
}
