package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/clinicbilling/pkg/db/pagination"
	"gorm.io/gorm"
)

type CreateInvoiceRequest struct {
	TenantID      string          `json:"tenant_id"`
	InvoiceNumber string          `json:"invoice_number"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	DueDate       string          `json:"due_date"`
	Notes         string          `json:"notes"`
}

type ListInvoiceRequest struct {
	pagination.Pagination
	TenantID string
	Status   string
}

type ListInvoiceResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

type RecordPaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method"`
	PaidAt *time.Time      `json:"paid_at"`
	Notes  string          `json:"notes"`
}

type RecordPaymentResponse struct {
	Invoice Invoice `json:"invoice"`
	Payment Payment `json:"payment"`
}

type CancelInvoiceRequest struct {
	Reason string `json:"reason"`
}

type Service interface {
	Create(ctx context.Context, req CreateInvoiceRequest) (Invoice, error)
	GetByID(ctx context.Context, id string) (Invoice, error)
	List(ctx context.Context, req ListInvoiceRequest) (ListInvoiceResponse, error)
	RecordPayment(ctx context.Context, invoiceID string, req RecordPaymentRequest) (RecordPaymentResponse, error)
	ListPayments(ctx context.Context, invoiceID string) ([]Payment, error)
	Cancel(ctx context.Context, invoiceID string, req CancelInvoiceRequest) (Invoice, error)
}

// ListFilter narrows invoice listings. Zero values are ignored.
type ListFilter struct {
	TenantID *snowflake.ID
	Status   InvoiceStatus
	AfterID  *snowflake.ID
	Limit    int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Invoice, error)
	// ListEscalationCandidates returns open invoices whose due date is before today.
	ListEscalationCandidates(ctx context.Context, db *gorm.DB, tenantID *snowflake.ID, today time.Time) ([]*Invoice, error)
	// UpdateState writes status, level and paid date when the stored version
	// still equals expectedVersion, returning ErrConcurrentModification otherwise.
	UpdateState(ctx context.Context, db *gorm.DB, invoice *Invoice, expectedVersion int64) error
	InsertPayment(ctx context.Context, db *gorm.DB, payment *Payment) error
	ListPayments(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]*Payment, error)
	ListActiveLevels(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]BlockingLevel, error)
}

var (
	ErrInvoiceNotFound        = errors.New("invoice_not_found")
	ErrTenantNotFound         = errors.New("tenant_not_found")
	ErrInvalidTenant          = errors.New("invalid_tenant")
	ErrInvalidInvoiceID       = errors.New("invalid_invoice_id")
	ErrInvalidInvoiceNumber   = errors.New("invalid_invoice_number")
	ErrInvalidAmount          = errors.New("invalid_amount")
	ErrInvalidCurrency        = errors.New("invalid_currency")
	ErrInvalidDueDate         = errors.New("invalid_due_date")
	ErrInvalidStatus          = errors.New("invalid_status")
	ErrInvalidPaymentMethod   = errors.New("invalid_payment_method")
	ErrInvalidPageToken       = errors.New("invalid_page_token")
	ErrDuplicateInvoiceNumber = errors.New("duplicate_invoice_number")
	ErrInvoiceClosed          = errors.New("invoice_closed")
	ErrConcurrentModification = errors.New("concurrent_modification")
	ErrInvalidTransition      = errors.New("invalid_transition")
)

const DateLayout = "2006-01-02"
