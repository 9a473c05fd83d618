package service

import (
	"context"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/clinicbilling/internal/blockingrules/domain"
	"github.com/smallbiznis/clinicbilling/internal/clock"
	"github.com/smallbiznis/clinicbilling/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const systemActor = "SYSTEM"

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Repo    domain.Repository
	Billing *config.BillingConfigHolder
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	repo     domain.Repository
	billing  *config.BillingConfigHolder
	validate *validator.Validate
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("blockingrules.service"),
		clock:    p.Clock,
		repo:     p.Repo,
		billing:  p.Billing,
		validate: newValidator(),
	}
}

// Get returns the persisted rules, or the file defaults when none were saved.
// Rules are read from the database on every call so replicas never diverge.
func (s *Service) Get(ctx context.Context) (domain.BlockingRules, error) {
	rules, err := s.repo.Find(ctx, s.db)
	if err != nil {
		return domain.BlockingRules{}, err
	}
	if rules != nil {
		return *rules, nil
	}
	return s.defaults(), nil
}

func (s *Service) Active(ctx context.Context) (domain.BlockingRules, error) {
	rules, err := s.Get(ctx)
	if err != nil {
		return domain.BlockingRules{}, err
	}
	if !rules.Enabled {
		return domain.BlockingRules{}, domain.ErrRulesDisabled
	}
	if err := s.check(rules); err != nil {
		return domain.BlockingRules{}, err
	}
	return rules, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateRulesRequest, actor string) (domain.BlockingRules, error) {
	current, err := s.Get(ctx)
	if err != nil {
		return domain.BlockingRules{}, err
	}

	next := current
	if req.NoticeDays != nil {
		next.NoticeDays = *req.NoticeDays
	}
	if req.BannerDays != nil {
		next.BannerDays = *req.BannerDays
	}
	if req.RestrictionDays != nil {
		next.RestrictionDays = *req.RestrictionDays
	}
	if req.LockoutDays != nil {
		next.LockoutDays = *req.LockoutDays
	}
	if req.Enabled != nil {
		next.Enabled = *req.Enabled
	}

	if err := s.check(next); err != nil {
		return domain.BlockingRules{}, err
	}

	actor = strings.TrimSpace(actor)
	if actor == "" {
		actor = systemActor
	}
	next.UpdatedBy = actor
	next.UpdatedAt = s.clock.Now().UTC()

	if err := s.repo.Save(ctx, s.db, &next); err != nil {
		return domain.BlockingRules{}, err
	}

	s.log.Info("blocking rules updated",
		zap.String("actor", actor),
		zap.Int("notice_days", next.NoticeDays),
		zap.Int("banner_days", next.BannerDays),
		zap.Int("restriction_days", next.RestrictionDays),
		zap.Int("lockout_days", next.LockoutDays),
		zap.Bool("enabled", next.Enabled),
	)
	return next, nil
}

func (s *Service) defaults() domain.BlockingRules {
	d := config.DefaultBillingConfig().DefaultRules
	if s.billing != nil {
		d = s.billing.Get().DefaultRules
	}
	return domain.BlockingRules{
		ID:              domain.GlobalRulesID,
		NoticeDays:      d.NoticeDays,
		BannerDays:      d.BannerDays,
		RestrictionDays: d.RestrictionDays,
		LockoutDays:     d.LockoutDays,
		Enabled:         d.Enabled,
		UpdatedBy:       systemActor,
	}
}

func (s *Service) check(rules domain.BlockingRules) error {
	err := s.validate.Struct(rules)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	fields := make([]domain.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, domain.FieldError{
			Field:   fe.Field(),
			Code:    fieldCode(fe),
			Message: fieldMessage(fe),
		})
	}
	return &domain.ConfigError{Fields: fields}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return v
}

func fieldCode(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gte":
		return "negative_threshold"
	case "gtfield":
		return "threshold_not_increasing"
	default:
		return "invalid_" + fe.Tag()
	}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gte":
		return fe.Field() + " must be zero or greater"
	case "gtfield":
		return fe.Field() + " must be greater than the previous threshold"
	default:
		return fe.Field() + " is invalid"
	}
}
