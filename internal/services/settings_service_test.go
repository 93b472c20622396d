package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsUpsertAndDelete(t *testing.T) {
	s := NewSettingsService(testDB(t))

	_, ok := s.GetSetting("detect.profile")
	assert.False(t, ok)

	require.NoError(t, s.PutSetting("detect.profile", "v1"))
	value, ok := s.GetSetting("detect.profile")
	require.True(t, ok)
	assert.Equal(t, "v1", value)

	require.NoError(t, s.PutSetting("detect.profile", "v2"))
	value, ok = s.GetSetting("detect.profile")
	require.True(t, ok)
	assert.Equal(t, "v2", value)

	require.NoError(t, s.DeleteSetting("detect.profile"))
	_, ok = s.GetSetting("detect.profile")
	assert.False(t, ok)

	require.NoError(t, s.DeleteSetting("never-existed"))
}
