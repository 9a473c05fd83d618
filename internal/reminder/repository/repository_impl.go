package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/clinicbilling/internal/reminder/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, reminder *domain.Reminder) error {
	return db.WithContext(ctx).Create(reminder).Error
}

func (r *repo) Complete(ctx context.Context, db *gorm.DB, reminder *domain.Reminder) error {
	return db.WithContext(ctx).Model(&domain.Reminder{}).
		Where("id = ? AND status = ?", reminder.ID, domain.ReminderStatusPending).
		Updates(map[string]any{
			"status":              reminder.Status,
			"attempts":            reminder.Attempts,
			"provider_error_code": reminder.ProviderErrorCode,
			"completed_at":        reminder.CompletedAt,
		}).Error
}

func (r *repo) FailStale(ctx context.Context, db *gorm.DB, createdBefore, completedAt time.Time) (int64, error) {
	res := db.WithContext(ctx).Model(&domain.Reminder{}).
		Where("status = ? AND created_at < ?", domain.ReminderStatusPending, createdBefore).
		Updates(map[string]any{
			"status":              domain.ReminderStatusFailed,
			"provider_error_code": domain.ProviderErrorCodeUnrecorded,
			"completed_at":        completedAt,
		})
	return res.RowsAffected, res.Error
}

func (r *repo) ListByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]*domain.Reminder, error) {
	var reminders []*domain.Reminder
	err := db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("created_at ASC, id ASC").
		Find(&reminders).Error
	return reminders, err
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Reminder, error) {
	var reminders []*domain.Reminder
	stmt := db.WithContext(ctx).Model(&domain.Reminder{})
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.AfterID != nil {
		stmt = stmt.Where("id > ?", *filter.AfterID)
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}
	err := stmt.Order("id ASC").Find(&reminders).Error
	return reminders, err
}
