package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wardenlabs/warden/internal/logger"
	"github.com/wardenlabs/warden/internal/models"
)

var (
	// ErrSchemaInvalid rejects a rule whose declared controls fail
	// structural validation. Saving a malformed rule is worse than saving
	// nothing.
	ErrSchemaInvalid = errors.New("rule schema invalid")

	// ErrLifecycleLocked rejects content edits on rules frozen by their
	// lifecycle status.
	ErrLifecycleLocked = errors.New("rule lifecycle locked")

	// ErrNoRules indicates a deploy request matched no known rule.
	ErrNoRules = errors.New("no matching rules")
)

// RebuildDispatcher is the dispatch target invoked after any rule mutation.
type RebuildDispatcher interface {
	RebuildAll(ctx context.Context) error
}

// control payload shape enforced at save time. Keys must be well-formed
// and each control must be of a known type; a test-action control must
// name its script.
type controlSchema struct {
	Key        string `validate:"required,alphanumunicode|containsany=-_"`
	Type       string `validate:"required,oneof=toggle text select test_action"`
	TestScript string
}

// RuleService is the CRUD and validation boundary for rules. Saves
// dispatch a full rebuild so artifacts always reflect the stored state.
type RuleService struct {
	DB         *gorm.DB
	Dispatcher RebuildDispatcher
	validate   *validator.Validate
}

func NewRuleService(db *gorm.DB, dispatcher RebuildDispatcher) *RuleService {
	return &RuleService{
		DB:         db,
		Dispatcher: dispatcher,
		validate:   validator.New(),
	}
}

func (s *RuleService) List() ([]models.Rule, error) {
	var rules []models.Rule
	err := s.DB.Order("catalog ASC, position ASC, key ASC").Find(&rules).Error
	return rules, err
}

func (s *RuleService) GetByKey(key string) (*models.Rule, error) {
	var rule models.Rule
	if err := s.DB.Where("key = ?", key).First(&rule).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoRules
		}
		return nil, err
	}
	return &rule, nil
}

// Create validates and stores a new rule, then dispatches a rebuild.
func (s *RuleService) Create(ctx context.Context, rule *models.Rule) error {
	if err := s.validateSchema(rule); err != nil {
		return err
	}
	if rule.UUID == "" {
		rule.UUID = uuid.New().String()
	}
	if rule.Status == "" {
		rule.Status = models.StatusAvailable
	}
	if err := s.DB.Create(rule).Error; err != nil {
		return err
	}
	s.dispatch(ctx, rule.Key)
	return nil
}

// Update applies a content edit. Lifecycle-locked rules reject content
// changes unless the caller passes the explicit override.
func (s *RuleService) Update(ctx context.Context, rule *models.Rule, override bool) error {
	existing, err := s.GetByKey(rule.Key)
	if err != nil {
		return err
	}
	if existing.LifecycleLocked() && !override && contentChanged(existing, rule) {
		return fmt.Errorf("%w: %s is in %s", ErrLifecycleLocked, rule.Key, existing.Status)
	}
	if err := s.validateSchema(rule); err != nil {
		return err
	}

	rule.ID = existing.ID
	rule.UUID = existing.UUID
	if err := s.DB.Save(rule).Error; err != nil {
		return err
	}
	s.dispatch(ctx, rule.Key)
	return nil
}

// SetEnabled flips a rule's toggle. Always allowed; enabling is exactly
// what the lifecycle gate exists to arbitrate at rebuild time.
func (s *RuleService) SetEnabled(ctx context.Context, key string, enabled bool) error {
	rule, err := s.GetByKey(key)
	if err != nil {
		return err
	}
	if rule.Enabled == enabled {
		return nil
	}
	if err := s.DB.Model(rule).Update("enabled", enabled).Error; err != nil {
		return err
	}
	s.dispatch(ctx, key)
	return nil
}

func (s *RuleService) Delete(ctx context.Context, key string) error {
	rule, err := s.GetByKey(key)
	if err != nil {
		return err
	}
	if err := s.DB.Delete(rule).Error; err != nil {
		return err
	}
	s.dispatch(ctx, key)
	return nil
}

// validateSchema is the strict gate. Everything downstream self-heals;
// this is the one place a bad rule is rejected outright.
func (s *RuleService) validateSchema(rule *models.Rule) error {
	if strings.TrimSpace(rule.Key) == "" {
		return fmt.Errorf("%w: missing key", ErrSchemaInvalid)
	}
	controls, err := rule.DecodedControls()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaInvalid, err)
	}
	for _, c := range controls {
		cs := controlSchema{Key: c.Key, Type: c.Type, TestScript: c.TestScript}
		if err := s.validate.Struct(cs); err != nil {
			return fmt.Errorf("%w: control %q: %v", ErrSchemaInvalid, c.Key, err)
		}
		if c.Type == "test_action" && strings.TrimSpace(c.TestScript) == "" {
			return fmt.Errorf("%w: control %q: test_action without test_script", ErrSchemaInvalid, c.Key)
		}
	}
	// Decode failures on payloads are schema errors too; catching them
	// here keeps the rebuild path free of bad rows.
	if _, err := rule.DecodedMappings(); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaInvalid, err)
	}
	if _, err := rule.DecodedMatrix(); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaInvalid, err)
	}
	return nil
}

func contentChanged(a, b *models.Rule) bool {
	return a.Mappings != b.Mappings ||
		a.PlatformMatrix != b.PlatformMatrix ||
		a.Controls != b.Controls ||
		a.Driver != b.Driver ||
		a.Target != b.Target ||
		a.TargetFile != b.TargetFile
}

// dispatch triggers the full rebuild after a save. Rebuild failures are
// logged, not returned; the save itself succeeded and the next rebuild
// converges.
func (s *RuleService) dispatch(ctx context.Context, key string) {
	if s.Dispatcher == nil {
		return
	}
	if err := s.Dispatcher.RebuildAll(ctx); err != nil {
		logger.WithRule(key).Error("rebuild dispatch failed: " + err.Error())
	}
}
