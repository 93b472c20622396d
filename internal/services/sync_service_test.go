package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenlabs/warden/internal/models"
)

func TestLifecycleGateNormalizesEnforced(t *testing.T) {
	db := testDB(t)
	seed := []models.Rule{
		{Key: "released", Status: models.StatusRelease, Enforced: false, Enabled: true},
		{Key: "drafted", Status: models.StatusDraft, Enforced: true, Enabled: true},
		{Key: "testing-on", Status: models.StatusTest, Enforced: true, Enabled: true},
		{Key: "testing-off", Status: models.StatusTest, Enforced: false, Enabled: true},
	}
	for i := range seed {
		require.NoError(t, db.Create(&seed[i]).Error)
	}

	dispatcher := &countingDispatcher{}
	s := NewSyncService(db, nil, dispatcher)
	require.NoError(t, s.Sync(context.Background()))

	expect := map[string]bool{
		"released":    true,
		"drafted":     false,
		"testing-on":  true,  // develop/test keep the explicit flag
		"testing-off": false, // even when the rule itself is enabled
	}
	for key, want := range expect {
		var rule models.Rule
		require.NoError(t, db.Where("key = ?", key).First(&rule).Error)
		assert.Equal(t, want, rule.Enforced, key)
	}
	assert.Equal(t, 1, dispatcher.calls, "sync ends with one full rebuild")
}

func TestSyncRunsCatalogImport(t *testing.T) {
	catalogs := catalogFixture(t)
	s := NewSyncService(catalogs.DB, catalogs, &countingDispatcher{})

	require.NoError(t, s.Sync(context.Background()))

	var count int64
	require.NoError(t, catalogs.DB.Model(&models.Rule{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}
