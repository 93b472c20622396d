package services

import (
	"fmt"
	"regexp"

	"github.com/containrrr/shoutrrr"
	"gorm.io/gorm"

	"github.com/wardenlabs/warden/internal/logger"
	"github.com/wardenlabs/warden/internal/models"
)

// NotificationService records engine events as in-app notifications and
// optionally forwards failures to an external shoutrrr endpoint.
type NotificationService struct {
	DB        *gorm.DB
	NotifyURL string
}

func NewNotificationService(db *gorm.DB, notifyURL string) *NotificationService {
	return &NotificationService{DB: db, NotifyURL: notifyURL}
}

var discordWebhookRegex = regexp.MustCompile(`^https://discord(?:app)?\.com/api/webhooks/(\d+)/([a-zA-Z0-9_-]+)`)

// normalizeURL converts a raw Discord webhook URL into shoutrrr's scheme.
func normalizeURL(rawURL string) string {
	matches := discordWebhookRegex.FindStringSubmatch(rawURL)
	if len(matches) == 3 {
		return fmt.Sprintf("discord://%s@%s", matches[2], matches[1])
	}
	return rawURL
}

func (s *NotificationService) Create(nType models.NotificationType, ruleKey, title, message string) (*models.Notification, error) {
	notification := &models.Notification{
		Type:    nType,
		RuleKey: ruleKey,
		Title:   title,
		Message: message,
		Read:    false,
	}
	result := s.DB.Create(notification)
	return notification, result.Error
}

func (s *NotificationService) List(unreadOnly bool) ([]models.Notification, error) {
	var notifications []models.Notification
	query := s.DB.Order("created_at desc")
	if unreadOnly {
		query = query.Where("read = ?", false)
	}
	result := query.Find(&notifications)
	return notifications, result.Error
}

func (s *NotificationService) MarkAsRead(id string) error {
	return s.DB.Model(&models.Notification{}).Where("id = ?", id).Update("read", true).Error
}

func (s *NotificationService) MarkAllAsRead() error {
	return s.DB.Model(&models.Notification{}).Where("read = ?", false).Update("read", true).Error
}

// DeployFailed satisfies the orchestrator's Notifier. Failures land in the
// notification feed and, when a URL is configured, go out via shoutrrr in
// the background so the deployment path never blocks on delivery.
func (s *NotificationService) DeployFailed(ruleKey string, result models.DeploymentResult) {
	failed := ""
	for platform, res := range result {
		if !res.Success {
			if failed != "" {
				failed += ", "
			}
			failed += platform
		}
	}

	title := "Deployment failed: " + ruleKey
	message := fmt.Sprintf("Rule %s could not be applied on: %s", ruleKey, failed)
	if _, err := s.Create(models.NotificationTypeError, ruleKey, title, message); err != nil {
		logger.WithRule(ruleKey).Error("notification write failed: " + err.Error())
	}

	if s.NotifyURL == "" {
		return
	}
	go func() {
		if err := shoutrrr.Send(normalizeURL(s.NotifyURL), title+"\n\n"+message); err != nil {
			logger.WithRule(ruleKey).Error("external notification failed: " + err.Error())
		}
	}()
}
