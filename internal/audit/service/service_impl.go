package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/clinicbilling/internal/audit/domain"
	"github.com/smallbiznis/clinicbilling/internal/clock"
	obscontext "github.com/smallbiznis/clinicbilling/internal/observability/context"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Append(ctx context.Context, tx *gorm.DB, entry *auditdomain.BlockingHistoryEntry) error {
	if entry == nil || entry.InvoiceID == 0 || !entry.NewLevel.Valid() || !entry.PreviousLevel.Valid() {
		return auditdomain.ErrInvalidEntry
	}
	if tx == nil {
		tx = s.db
	}

	if entry.ID == 0 {
		entry.ID = s.genID.Generate()
	}
	entry.Reason = strings.TrimSpace(entry.Reason)
	entry.AppliedBy = strings.TrimSpace(entry.AppliedBy)
	if entry.AppliedBy == "" {
		entry.AppliedBy = auditdomain.AppliedBySystem
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.clock.Now().UTC()
	}
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		if entry.Metadata == nil {
			entry.Metadata = map[string]any{}
		}
		entry.Metadata["request_id"] = requestID
	}

	if err := s.repo.Insert(ctx, tx, entry); err != nil {
		s.log.Warn("failed to append blocking history",
			zap.String("invoice_id", entry.InvoiceID.String()),
			zap.String("new_level", string(entry.NewLevel)),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *Service) ListForInvoice(ctx context.Context, invoiceID string) ([]auditdomain.BlockingHistoryEntry, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(invoiceID))
	if err != nil || id == 0 {
		return nil, auditdomain.ErrInvalidInvoiceID
	}

	items, err := s.repo.ListByInvoice(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	entries := make([]auditdomain.BlockingHistoryEntry, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		entries = append(entries, *item)
	}
	return entries, nil
}
