package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/clinicbilling/internal/invoice/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).Create(invoice).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := db.WithContext(ctx).Where("id = ?", id).First(&invoice).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &invoice, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Invoice, error) {
	var invoices []*domain.Invoice
	stmt := db.WithContext(ctx).Model(&domain.Invoice{})
	if filter.TenantID != nil {
		stmt = stmt.Where("tenant_id = ?", *filter.TenantID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.AfterID != nil {
		stmt = stmt.Where("id > ?", *filter.AfterID)
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}
	err := stmt.Order("id ASC").Find(&invoices).Error
	return invoices, err
}

func (r *repo) ListEscalationCandidates(ctx context.Context, db *gorm.DB, tenantID *snowflake.ID, today time.Time) ([]*domain.Invoice, error) {
	var invoices []*domain.Invoice
	stmt := db.WithContext(ctx).Model(&domain.Invoice{}).
		Where("status IN ?", domain.EscalatableStatuses()).
		Where("due_date < ?", today)
	if tenantID != nil {
		stmt = stmt.Where("tenant_id = ?", *tenantID)
	}
	err := stmt.Order("due_date ASC, id ASC").Find(&invoices).Error
	return invoices, err
}

func (r *repo) UpdateState(ctx context.Context, db *gorm.DB, invoice *domain.Invoice, expectedVersion int64) error {
	res := db.WithContext(ctx).Model(&domain.Invoice{}).
		Where("id = ? AND version = ?", invoice.ID, expectedVersion).
		Updates(map[string]any{
			"status":         invoice.Status,
			"blocking_level": invoice.BlockingLevel,
			"paid_date":      invoice.PaidDate,
			"version":        expectedVersion + 1,
			"updated_at":     invoice.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrConcurrentModification
	}
	invoice.Version = expectedVersion + 1
	return nil
}

func (r *repo) InsertPayment(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Create(payment).Error
}

func (r *repo) ListPayments(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]*domain.Payment, error) {
	var payments []*domain.Payment
	err := db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("paid_at ASC, id ASC").
		Find(&payments).Error
	return payments, err
}

func (r *repo) ListActiveLevels(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]domain.BlockingLevel, error) {
	var levels []domain.BlockingLevel
	err := db.WithContext(ctx).Model(&domain.Invoice{}).
		Where("tenant_id = ? AND status <> ?", tenantID, domain.InvoiceStatusCancelled).
		Distinct("blocking_level").
		Pluck("blocking_level", &levels).Error
	return levels, err
}
