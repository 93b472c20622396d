package services

import (
	"context"
	"strings"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/wardenlabs/warden/internal/logger"
	"github.com/wardenlabs/warden/internal/models"
)

// SyncService runs the scheduled resync: apply the lifecycle gate to every
// rule's enforced flag, reimport catalogs, then rebuild all artifacts so
// disk state converges to the database.
type SyncService struct {
	DB         *gorm.DB
	Catalogs   *CatalogService
	Dispatcher RebuildDispatcher
	cron       *cron.Cron
}

func NewSyncService(db *gorm.DB, catalogs *CatalogService, dispatcher RebuildDispatcher) *SyncService {
	return &SyncService{
		DB:         db,
		Catalogs:   catalogs,
		Dispatcher: dispatcher,
		cron:       cron.New(),
	}
}

// Start schedules the daily sync. The first run is left to the caller so
// startup ordering stays explicit.
func (s *SyncService) Start() error {
	_, err := s.cron.AddFunc("@daily", func() {
		if err := s.Sync(context.Background()); err != nil {
			logger.Log().Error("scheduled sync failed: " + err.Error())
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

func (s *SyncService) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// Sync is one full pass: lifecycle gate, catalog import, rebuild.
func (s *SyncService) Sync(ctx context.Context) error {
	if err := s.applyLifecycleGate(); err != nil {
		return err
	}
	if s.Catalogs != nil {
		if n, err := s.Catalogs.ImportAll(ctx); err != nil {
			logger.Log().Error("catalog import during sync failed: " + err.Error())
		} else if n > 0 {
			logger.Log().Infof("sync imported %d catalog rules", n)
		}
	}
	if s.Dispatcher != nil {
		return s.Dispatcher.RebuildAll(ctx)
	}
	return nil
}

// applyLifecycleGate normalizes the enforced flag per status. Release and
// implemented rules are always enforced; draft and available never are.
// Develop and test rules keep whatever flag was last set explicitly, which
// means an enabled rule can legitimately sit unenforced in those stages.
func (s *SyncService) applyLifecycleGate() error {
	var rules []models.Rule
	if err := s.DB.Find(&rules).Error; err != nil {
		return err
	}
	for i := range rules {
		rule := &rules[i]
		want := rule.Enforced
		switch strings.ToLower(rule.Status) {
		case models.StatusRelease, models.StatusImplemented:
			want = true
		case models.StatusDraft, models.StatusAvailable:
			want = false
		}
		if want == rule.Enforced {
			continue
		}
		if err := s.DB.Model(rule).Update("enforced", want).Error; err != nil {
			return err
		}
		logger.WithRule(rule.Key).WithFields(map[string]interface{}{
			"status":   rule.Status,
			"enforced": want,
		}).Info("lifecycle gate applied")
	}
	return nil
}
