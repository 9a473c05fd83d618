package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/clinicbilling/pkg/db/pagination"
	"gorm.io/gorm"
)

// DispatchOptions tune one dispatch. Kind overrides the template bracket,
// which otherwise follows the invoice's blocking level.
type DispatchOptions struct {
	Kind          string `json:"kind"`
	CustomMessage string `json:"custom_message"`
	Recipient     string `json:"recipient"`
}

// MaxBatchSize caps the distinct invoice ids accepted by one batch dispatch.
const MaxBatchSize = 500

// ProviderErrorCodeUnrecorded marks a reminder whose delivery outcome was
// never written back.
const ProviderErrorCodeUnrecorded = "outcome_unrecorded"

type BatchRequest struct {
	InvoiceIDs []string `json:"invoice_ids"`
	DispatchOptions
}

type BatchItem struct {
	InvoiceID string    `json:"invoice_id"`
	Reminder  *Reminder `json:"reminder,omitempty"`
	Error     string    `json:"error,omitempty"`
}

type BatchResult struct {
	Sent       int         `json:"sent"`
	Failed     int         `json:"failed"`
	Duplicates int         `json:"duplicates"`
	Rejected   int         `json:"rejected"`
	Items      []BatchItem `json:"items"`
}

type ListRemindersResponse struct {
	pagination.PageInfo
	Reminders []Reminder `json:"reminders"`
}

type Service interface {
	DispatchReminder(ctx context.Context, invoiceID string, opts DispatchOptions) (Reminder, error)
	DispatchBatch(ctx context.Context, req BatchRequest) (BatchResult, error)
	ListForInvoice(ctx context.Context, invoiceID string) ([]Reminder, error)
	ListFailed(ctx context.Context, page pagination.Pagination) (ListRemindersResponse, error)
}

type ListFilter struct {
	Status  ReminderStatus
	AfterID *snowflake.ID
	Limit   int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, reminder *Reminder) error
	// Complete records the final delivery outcome of a PENDING reminder.
	Complete(ctx context.Context, db *gorm.DB, reminder *Reminder) error
	// FailStale marks reminders still PENDING since before createdBefore as
	// FAILED with ProviderErrorCodeUnrecorded.
	FailStale(ctx context.Context, db *gorm.DB, createdBefore, completedAt time.Time) (int64, error)
	ListByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]*Reminder, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Reminder, error)
}

var (
	ErrDuplicateReminder = errors.New("duplicate_reminder")
	ErrInvoiceNotPayable = errors.New("invoice_not_payable")
	ErrMissingRecipient  = errors.New("missing_recipient")
	ErrUnknownTemplate   = errors.New("unknown_template")
	ErrEmptyBatch        = errors.New("empty_batch")
	ErrBatchTooLarge     = errors.New("batch_too_large")
	// ErrDeliveryFailed is recorded on the reminder, never returned to callers.
	ErrDeliveryFailed = errors.New("delivery_failed")
)
