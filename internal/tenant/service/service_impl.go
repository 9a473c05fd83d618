package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/smallbiznis/clinicbilling/internal/clock"
	"github.com/smallbiznis/clinicbilling/internal/config"
	tenantdomain "github.com/smallbiznis/clinicbilling/internal/tenant/domain"
	"github.com/smallbiznis/clinicbilling/pkg/db/option"
	"github.com/smallbiznis/clinicbilling/pkg/db/pagination"
	"github.com/smallbiznis/clinicbilling/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Config config.Config
}

type Service struct {
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	tenantrepo repository.Repository[tenantdomain.Tenant]
	cache      *expirable.LRU[snowflake.ID, tenantdomain.Tenant]
}

func NewService(p Params) tenantdomain.Service {
	size := p.Config.TenantCacheSize
	if size <= 0 {
		size = 1024
	}
	return &Service{
		log:        p.Log.Named("tenant.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		tenantrepo: repository.New[tenantdomain.Tenant](p.DB),
		cache:      expirable.NewLRU[snowflake.ID, tenantdomain.Tenant](size, nil, p.Config.TenantCacheTTL),
	}
}

func (s *Service) Create(ctx context.Context, req tenantdomain.CreateTenantRequest) (tenantdomain.Tenant, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return tenantdomain.Tenant{}, tenantdomain.ErrInvalidName
	}
	email := strings.TrimSpace(req.BillingEmail)
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return tenantdomain.Tenant{}, tenantdomain.ErrInvalidEmail
		}
	}

	now := s.clock.Now().UTC()
	tenant := tenantdomain.Tenant{
		ID:           s.genID.Generate(),
		Name:         name,
		BillingEmail: email,
		BillingPhone: strings.TrimSpace(req.BillingPhone),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.tenantrepo.Create(ctx, &tenant); err != nil {
		return tenantdomain.Tenant{}, err
	}

	s.cache.Add(tenant.ID, tenant)
	s.log.Info("tenant created", zap.String("tenant_id", tenant.ID.String()))
	return tenant, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (tenantdomain.Tenant, error) {
	tenantID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || tenantID == 0 {
		return tenantdomain.Tenant{}, tenantdomain.ErrInvalidTenant
	}

	if cached, ok := s.cache.Get(tenantID); ok {
		return cached, nil
	}

	tenant, err := s.tenantrepo.FindOne(ctx, &tenantdomain.Tenant{ID: tenantID})
	if errors.Is(err, repository.ErrNotFound) {
		return tenantdomain.Tenant{}, tenantdomain.ErrTenantNotFound
	}
	if err != nil {
		return tenantdomain.Tenant{}, err
	}

	s.cache.Add(tenant.ID, *tenant)
	return *tenant, nil
}

const (
	defaultPageSize = 50
	maxPageSize     = 250
)

// List pages through tenants in id order. Name filters by exact match.
func (s *Service) List(ctx context.Context, req tenantdomain.ListTenantRequest) (tenantdomain.ListTenantResponse, error) {
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	pageSize = min(pageSize, maxPageSize)

	opts := []option.QueryOption{
		option.WithSortBy("id ASC"),
		option.WithLimit(pageSize + 1),
	}
	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return tenantdomain.ListTenantResponse{}, tenantdomain.ErrInvalidPage
		}
		afterID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return tenantdomain.ListTenantResponse{}, tenantdomain.ErrInvalidPage
		}
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "id", Operator: option.GT, Value: afterID}))
	}

	rows, err := s.tenantrepo.Find(ctx, &tenantdomain.Tenant{Name: strings.TrimSpace(req.Name)}, opts...)
	if err != nil {
		return tenantdomain.ListTenantResponse{}, err
	}
	page, pageInfo, err := pagination.BuildCursorPageInfo(rows, pageSize, func(t *tenantdomain.Tenant) string {
		return t.ID.String()
	})
	if err != nil {
		return tenantdomain.ListTenantResponse{}, err
	}

	tenants := make([]tenantdomain.Tenant, 0, len(page))
	for _, t := range page {
		tenants = append(tenants, *t)
	}
	return tenantdomain.ListTenantResponse{PageInfo: pageInfo, Tenants: tenants}, nil
}
