package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/clinicbilling/internal/clock"
	"github.com/smallbiznis/clinicbilling/internal/config"
	"github.com/smallbiznis/clinicbilling/internal/escalation"
	invoicedomain "github.com/smallbiznis/clinicbilling/internal/invoice/domain"
	obscontext "github.com/smallbiznis/clinicbilling/internal/observability/context"
	"github.com/smallbiznis/clinicbilling/internal/observability/metrics"
	tenantdomain "github.com/smallbiznis/clinicbilling/internal/tenant/domain"
	"github.com/smallbiznis/clinicbilling/pkg/db"
	"github.com/smallbiznis/clinicbilling/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 50
	maxPageSize     = 250

	reasonPaymentReceived  = "payment received"
	reasonInvoiceCancelled = "invoice cancelled"
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Config  config.Config
	Repo    invoicedomain.Repository
	Tenants tenantdomain.Service
	Settler escalation.Settler
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID           *snowflake.Node
	clock           clock.Clock
	loc             *time.Location
	defaultCurrency string
	repo            invoicedomain.Repository
	tenants         tenantdomain.Service
	settler         escalation.Settler
	metrics         *metrics.Metrics
}

func NewService(p ServiceParam) invoicedomain.Service {
	currency := strings.ToUpper(strings.TrimSpace(p.Config.DefaultCurrency))
	if currency == "" {
		currency = "USD"
	}
	return &Service{
		db:  p.DB,
		log: p.Log.Named("invoice.service"),

		genID:           p.GenID,
		clock:           p.Clock,
		loc:             p.Config.Escalation.Location(),
		defaultCurrency: currency,
		repo:            p.Repo,
		tenants:         p.Tenants,
		settler:         p.Settler,
		metrics:         p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (invoicedomain.Invoice, error) {
	tenant, err := s.tenants.GetByID(ctx, req.TenantID)
	switch {
	case errors.Is(err, tenantdomain.ErrInvalidTenant):
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidTenant
	case errors.Is(err, tenantdomain.ErrTenantNotFound):
		return invoicedomain.Invoice{}, invoicedomain.ErrTenantNotFound
	case err != nil:
		return invoicedomain.Invoice{}, err
	}

	if !req.Amount.IsPositive() {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidAmount
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.defaultCurrency
	}
	if !currencyPattern.MatchString(currency) {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidCurrency
	}

	dueDate, err := time.Parse(invoicedomain.DateLayout, strings.TrimSpace(req.DueDate))
	if err != nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidDueDate
	}

	id := s.genID.Generate()
	number := strings.TrimSpace(req.InvoiceNumber)
	if number == "" {
		number = generateInvoiceNumber(s.clock.Now().In(s.loc), id)
	}
	if len(number) > 64 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidInvoiceNumber
	}

	now := s.clock.Now().UTC()
	invoice := invoicedomain.Invoice{
		ID:            id,
		TenantID:      tenant.ID,
		InvoiceNumber: number,
		Amount:        req.Amount.Round(2),
		Currency:      currency,
		DueDate:       dueDate,
		Status:        invoicedomain.InvoiceStatusPending,
		BlockingLevel: invoicedomain.BlockingLevelNone,
		Notes:         strings.TrimSpace(req.Notes),
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.Insert(ctx, s.db, &invoice); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return invoicedomain.Invoice{}, invoicedomain.ErrDuplicateInvoiceNumber
		}
		return invoicedomain.Invoice{}, err
	}

	s.log.Info("invoice created",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("tenant_id", invoice.TenantID.String()),
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.String("due_date", req.DueDate),
	)
	return invoice, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (invoicedomain.Invoice, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	invoice, err := s.repo.FindByID(ctx, s.db, invoiceID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	if invoice == nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvoiceNotFound
	}
	return *invoice, nil
}

func (s *Service) List(ctx context.Context, req invoicedomain.ListInvoiceRequest) (invoicedomain.ListInvoiceResponse, error) {
	filter := invoicedomain.ListFilter{}

	if tenant := strings.TrimSpace(req.TenantID); tenant != "" {
		tenantID, err := snowflake.ParseString(tenant)
		if err != nil || tenantID == 0 {
			return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidTenant
		}
		filter.TenantID = &tenantID
	}

	if status := strings.TrimSpace(req.Status); status != "" {
		parsed := invoicedomain.InvoiceStatus(strings.ToUpper(status))
		if !parsed.Valid() {
			return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidStatus
		}
		filter.Status = parsed
	}

	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidPageToken
		}
		afterID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidPageToken
		}
		filter.AfterID = &afterID
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	filter.Limit = pageSize + 1

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}

	page, pageInfo, err := pagination.BuildCursorPageInfo(items, pageSize, func(inv *invoicedomain.Invoice) string {
		return inv.ID.String()
	})
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}

	invoices := make([]invoicedomain.Invoice, 0, len(page))
	for _, item := range page {
		if item == nil {
			continue
		}
		invoices = append(invoices, *item)
	}

	return invoicedomain.ListInvoiceResponse{
		PageInfo: pageInfo,
		Invoices: invoices,
	}, nil
}

// RecordPayment stores a payment and recomputes the invoice status in one
// transaction. A fully paid invoice is settled back to NONE.
func (s *Service) RecordPayment(ctx context.Context, invoiceID string, req invoicedomain.RecordPaymentRequest) (invoicedomain.RecordPaymentResponse, error) {
	id, err := parseID(invoiceID)
	if err != nil {
		return invoicedomain.RecordPaymentResponse{}, err
	}
	if !req.Amount.IsPositive() {
		return invoicedomain.RecordPaymentResponse{}, invoicedomain.ErrInvalidAmount
	}
	method := strings.ToLower(strings.TrimSpace(req.Method))
	if method == "" {
		return invoicedomain.RecordPaymentResponse{}, invoicedomain.ErrInvalidPaymentMethod
	}

	now := s.clock.Now().UTC()
	paidAt := now
	if req.PaidAt != nil && !req.PaidAt.IsZero() {
		paidAt = req.PaidAt.UTC()
	}
	actor := actorFromContext(ctx)

	var (
		resp   invoicedomain.RecordPaymentResponse
		change *invoicedomain.LevelChanged
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if invoice == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		if invoice.Status.Closed() {
			return invoicedomain.ErrInvoiceClosed
		}

		payment := invoicedomain.Payment{
			ID:        s.genID.Generate(),
			InvoiceID: invoice.ID,
			TenantID:  invoice.TenantID,
			Amount:    req.Amount.Round(2),
			Method:    method,
			PaidAt:    paidAt,
			Notes:     strings.TrimSpace(req.Notes),
			CreatedAt: now,
		}
		if err := s.repo.InsertPayment(ctx, tx, &payment); err != nil {
			return err
		}

		payments, err := s.repo.ListPayments(ctx, tx, invoice.ID)
		if err != nil {
			return err
		}
		total := decimal.Zero
		for _, p := range payments {
			total = total.Add(p.Amount)
		}

		status, _ := invoicedomain.StatusForPayments(invoice.Amount, total)
		switch status {
		case invoicedomain.InvoiceStatusPaid:
			invoice.PaidDate = &paidAt
			change, err = s.settler.Settle(ctx, tx, invoice, invoicedomain.InvoiceStatusPaid, reasonPaymentReceived, actor)
			if err != nil {
				return err
			}
		default:
			expected := invoice.Version
			invoice.Status = invoicedomain.InvoiceStatusPartial
			invoice.UpdatedAt = now
			if err := s.repo.UpdateState(ctx, tx, invoice, expected); err != nil {
				return err
			}
		}

		resp = invoicedomain.RecordPaymentResponse{Invoice: *invoice, Payment: payment}
		return nil
	})
	if err != nil {
		return invoicedomain.RecordPaymentResponse{}, err
	}

	if change != nil {
		s.settler.PublishLevelChanged(ctx, *change)
	}
	s.metrics.RecordPayment(ctx, string(resp.Invoice.Status))
	s.log.Info("payment recorded",
		zap.String("invoice_id", resp.Invoice.ID.String()),
		zap.String("payment_id", resp.Payment.ID.String()),
		zap.String("amount", resp.Payment.Amount.StringFixed(2)),
		zap.String("status", string(resp.Invoice.Status)),
	)
	return resp, nil
}

func (s *Service) ListPayments(ctx context.Context, invoiceID string) ([]invoicedomain.Payment, error) {
	id, err := parseID(invoiceID)
	if err != nil {
		return nil, err
	}

	invoice, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}

	items, err := s.repo.ListPayments(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	payments := make([]invoicedomain.Payment, 0, len(items))
	for _, item := range items {
		payments = append(payments, *item)
	}
	return payments, nil
}

func (s *Service) Cancel(ctx context.Context, invoiceID string, req invoicedomain.CancelInvoiceRequest) (invoicedomain.Invoice, error) {
	id, err := parseID(invoiceID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = reasonInvoiceCancelled
	}
	actor := actorFromContext(ctx)

	var (
		result invoicedomain.Invoice
		change *invoicedomain.LevelChanged
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if invoice == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		if invoice.Status.Closed() {
			return invoicedomain.ErrInvoiceClosed
		}

		change, err = s.settler.Settle(ctx, tx, invoice, invoicedomain.InvoiceStatusCancelled, reason, actor)
		if err != nil {
			return err
		}
		result = *invoice
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	if change != nil {
		s.settler.PublishLevelChanged(ctx, *change)
	}
	s.log.Info("invoice cancelled",
		zap.String("invoice_id", result.ID.String()),
		zap.String("actor", actor),
	)
	return result, nil
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, invoicedomain.ErrInvalidInvoiceID
	}
	return id, nil
}

func actorFromContext(ctx context.Context) string {
	actorType, actorID := obscontext.ActorFromContext(ctx)
	if actorType == obscontext.ActorTypeUser && strings.TrimSpace(actorID) != "" {
		return actorID
	}
	return ""
}

func generateInvoiceNumber(now time.Time, id snowflake.ID) string {
	suffix := id.String()
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}
	return fmt.Sprintf("INV-%s-%s", now.Format("20060102"), suffix)
}
