package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	// Append writes entry inside tx. Callers own the transaction so the entry
	// commits together with the invoice write it describes.
	Append(ctx context.Context, tx *gorm.DB, entry *BlockingHistoryEntry) error
	ListForInvoice(ctx context.Context, invoiceID string) ([]BlockingHistoryEntry, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *BlockingHistoryEntry) error
	ListByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]*BlockingHistoryEntry, error)
}

var (
	ErrInvalidInvoiceID = errors.New("invalid_invoice_id")
	ErrInvalidEntry     = errors.New("invalid_history_entry")
)
