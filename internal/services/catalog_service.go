package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/wardenlabs/warden/internal/logger"
	"github.com/wardenlabs/warden/internal/models"
)

const activeCatalogsKey = "catalogs.active"

// catalogRule is one rule definition in a catalog YAML file.
type catalogRule struct {
	Key      string                 `yaml:"key"`
	Title    string                 `yaml:"title"`
	Driver   string                 `yaml:"driver"`
	Target   string                 `yaml:"target"`
	File     string                 `yaml:"target_file"`
	Status   string                 `yaml:"status"`
	Enabled  bool                   `yaml:"enabled"`
	AlwaysOn bool                   `yaml:"always_on"`
	Mappings map[string]interface{} `yaml:"mappings"`
	Matrix   map[string]interface{} `yaml:"platform_matrix"`
	Controls []models.Control       `yaml:"controls"`
}

type catalogFile struct {
	Name  string        `yaml:"name"`
	Rules []catalogRule `yaml:"rules"`
}

// CatalogService imports rule catalogs from YAML seed files and tracks
// which catalogs are currently active.
type CatalogService struct {
	DB       *gorm.DB
	Dir      string
	Settings *SettingsService
}

func NewCatalogService(db *gorm.DB, dir string, settings *SettingsService) *CatalogService {
	return &CatalogService{DB: db, Dir: dir, Settings: settings}
}

// ImportAll loads every .yml/.yaml file in the catalog directory. Existing
// rules are updated in place by key; user-toggled enabled state survives
// reimport.
func (s *CatalogService) ImportAll(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read catalog dir: %w", err)
	}

	total := 0
	for _, entry := range entries {
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if entry.IsDir() || (ext != ".yml" && ext != ".yaml") {
			continue
		}
		n, err := s.importFile(filepath.Join(s.Dir, entry.Name()))
		if err != nil {
			logger.WithFields(map[string]interface{}{"file": entry.Name()}).
				Error("catalog import failed: " + err.Error())
			continue
		}
		total += n
	}
	return total, nil
}

func (s *CatalogService) importFile(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var catalog catalogFile
	if err := yaml.Unmarshal(raw, &catalog); err != nil {
		return 0, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	if catalog.Name == "" {
		catalog.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	count := 0
	for i, cr := range catalog.Rules {
		if cr.Key == "" {
			continue
		}
		rule, err := toRule(cr, catalog.Name, i)
		if err != nil {
			logger.WithRule(cr.Key).Error("catalog rule skipped: " + err.Error())
			continue
		}

		var existing models.Rule
		err = s.DB.Where("key = ?", rule.Key).First(&existing).Error
		if err == nil {
			// Content refresh keeps the operator's toggle and any manual
			// enforce flag.
			rule.ID = existing.ID
			rule.UUID = existing.UUID
			rule.Enabled = existing.Enabled
			rule.Enforced = existing.Enforced
			if err := s.DB.Save(&rule).Error; err != nil {
				return count, err
			}
		} else {
			if err := s.DB.Create(&rule).Error; err != nil {
				return count, err
			}
		}
		count++
	}
	return count, nil
}

func toRule(cr catalogRule, catalog string, position int) (models.Rule, error) {
	rule := models.Rule{
		Key:        cr.Key,
		Title:      cr.Title,
		Driver:     cr.Driver,
		Target:     cr.Target,
		TargetFile: cr.File,
		Status:     cr.Status,
		Enabled:    cr.Enabled,
		AlwaysOn:   cr.AlwaysOn,
		Catalog:    catalog,
		Position:   position,
	}
	if rule.Status == "" {
		rule.Status = models.StatusAvailable
	}

	// The open-ended YAML shapes are stored as JSON text, same as rules
	// arriving over the API.
	if len(cr.Mappings) > 0 {
		encoded, err := json.Marshal(cr.Mappings)
		if err != nil {
			return rule, fmt.Errorf("encode mappings: %w", err)
		}
		rule.Mappings = string(encoded)
	}
	if len(cr.Matrix) > 0 {
		encoded, err := json.Marshal(cr.Matrix)
		if err != nil {
			return rule, fmt.Errorf("encode matrix: %w", err)
		}
		rule.PlatformMatrix = string(encoded)
	}
	if len(cr.Controls) > 0 {
		encoded, err := json.Marshal(cr.Controls)
		if err != nil {
			return rule, fmt.Errorf("encode controls: %w", err)
		}
		rule.Controls = string(encoded)
	}
	return rule, nil
}

// EnabledRules returns every enabled rule in catalog insertion order. Part
// of the rebuild driver's RuleSource contract.
func (s *CatalogService) EnabledRules(ctx context.Context) ([]models.Rule, error) {
	var rules []models.Rule
	err := s.DB.Where("enabled = ?", true).
		Order("catalog ASC, position ASC, key ASC").
		Find(&rules).Error
	return rules, err
}

// AllRules returns the full rule population regardless of enabled state,
// so the rebuild driver can enumerate every artifact a rule points at.
func (s *CatalogService) AllRules(ctx context.Context) ([]models.Rule, error) {
	var rules []models.Rule
	err := s.DB.Order("catalog ASC, position ASC, key ASC").Find(&rules).Error
	return rules, err
}

// ActiveCatalogs returns the persisted catalog selection. Empty means all
// catalogs are active.
func (s *CatalogService) ActiveCatalogs(ctx context.Context) ([]string, error) {
	raw, ok := s.Settings.GetSetting(activeCatalogsKey)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var catalogs []string
	if err := json.Unmarshal([]byte(raw), &catalogs); err != nil {
		return nil, fmt.Errorf("decode active catalogs: %w", err)
	}
	sort.Strings(catalogs)
	return catalogs, nil
}

// SetActiveCatalogs persists the catalog selection.
func (s *CatalogService) SetActiveCatalogs(catalogs []string) error {
	encoded, err := json.Marshal(catalogs)
	if err != nil {
		return err
	}
	return s.Settings.PutSetting(activeCatalogsKey, string(encoded))
}

// Catalogs lists the distinct catalog names known to the rule table.
func (s *CatalogService) Catalogs() ([]string, error) {
	var names []string
	err := s.DB.Model(&models.Rule{}).Distinct("catalog").
		Where("catalog <> ''").Order("catalog ASC").Pluck("catalog", &names).Error
	return names, err
}
