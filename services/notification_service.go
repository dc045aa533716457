package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"portalti-api/config"
	"portalti-api/models"
)

// NotificationService writes notification rows and fans out best-effort
// email. Mail failures are logged, never returned: delivery must not affect
// the state transition that triggered it.
type NotificationService struct {
	db *gorm.DB
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	if db == nil {
		db = config.DB
	}
	return &NotificationService{db: db}
}

func (s *NotificationService) Notify(ctx context.Context, userID int, title, message, refType string, refID int) error {
	notification := models.Notification{
		UserID:   userID,
		Title:    title,
		Message:  message,
		Type:     "info",
		RefType:  &refType,
		RefID:    &refID,
		CreateAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&notification).Error; err != nil {
		return err
	}

	s.mailUser(ctx, userID, title, message)
	return nil
}

func (s *NotificationService) NotifyRole(ctx context.Context, role, title, message, refType string, refID int) error {
	var users []models.User
	err := s.db.WithContext(ctx).
		Where("rol = ? AND is_active = ? AND delete_at IS NULL", role, true).
		Find(&users).Error
	if err != nil {
		return err
	}

	for _, user := range users {
		if err := s.Notify(ctx, user.UserID, title, message, refType, refID); err != nil {
			log.Printf("notify user %d failed: %v", user.UserID, err)
		}
	}
	return nil
}

func (s *NotificationService) mailUser(ctx context.Context, userID int, title, message string) {
	var user models.User
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND delete_at IS NULL", userID).
		First(&user).Error
	if err != nil || user.Email == "" {
		return
	}

	body := fmt.Sprintf("<p>%s</p><p>Revise PortalTI para más detalles.</p>", message)
	if err := config.SendMail([]string{user.Email}, title, body); err != nil {
		log.Printf("mail to %s failed: %v", user.Email, err)
	}
}
