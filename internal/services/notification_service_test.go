package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenlabs/warden/internal/models"
)

func TestNotificationCreateListMarkRead(t *testing.T) {
	s := NewNotificationService(testDB(t), "")

	first, err := s.Create(models.NotificationTypeInfo, "hide-readme", "Applied", "rule applied")
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)
	_, err = s.Create(models.NotificationTypeWarning, "", "Drift", "managed file changed")
	require.NoError(t, err)

	all, err := s.List(false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, s.MarkAsRead(first.ID))
	unread, err := s.List(true)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "Drift", unread[0].Title)

	require.NoError(t, s.MarkAllAsRead())
	unread, err = s.List(true)
	require.NoError(t, err)
	assert.Empty(t, unread)
}

func TestDeployFailedRecordsNotification(t *testing.T) {
	s := NewNotificationService(testDB(t), "")

	s.DeployFailed("block-xmlrpc", models.DeploymentResult{
		"apache_htaccess": {Success: false, Error: "permission denied"},
		"app_runtime":     {Success: true},
	})

	all, err := s.List(true)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, models.NotificationTypeError, all[0].Type)
	assert.Equal(t, "block-xmlrpc", all[0].RuleKey)
	assert.Contains(t, all[0].Message, "apache_htaccess")
	assert.NotContains(t, all[0].Message, "app_runtime")
}

func TestNormalizeURLDiscordWebhook(t *testing.T) {
	raw := "https://discord.com/api/webhooks/123456789/abcDEF_ghi-jkl"
	assert.Equal(t, "discord://abcDEF_ghi-jkl@123456789", normalizeURL(raw))

	legacy := "https://discordapp.com/api/webhooks/42/tok"
	assert.Equal(t, "discord://tok@42", normalizeURL(legacy))

	passthrough := "slack://token-a/token-b/token-c"
	assert.Equal(t, passthrough, normalizeURL(passthrough))
}
