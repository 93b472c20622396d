package services

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wardenlabs/warden/internal/models"
)

// SettingsService is the key-value option store. It backs the persisted
// environment-profile cache and the active-catalog selection.
type SettingsService struct {
	DB *gorm.DB
}

func NewSettingsService(db *gorm.DB) *SettingsService {
	return &SettingsService{DB: db}
}

// GetSetting returns the stored value, or ("", false) when absent.
func (s *SettingsService) GetSetting(key string) (string, bool) {
	var setting models.Setting
	if err := s.DB.Where("key = ?", key).First(&setting).Error; err != nil {
		return "", false
	}
	return setting.Value, true
}

// PutSetting upserts one key.
func (s *SettingsService) PutSetting(key, value string) error {
	return s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&models.Setting{Key: key, Value: value}).Error
}

// DeleteSetting removes one key; missing keys are not an error.
func (s *SettingsService) DeleteSetting(key string) error {
	return s.DB.Where("key = ?", key).Delete(&models.Setting{}).Error
}
