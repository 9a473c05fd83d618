package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, role string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject, roleName, err := resolveActor(actor, role)
	if err != nil {
		s.logDenied(actor, role, object, action, err)
		return err
	}

	if err := s.ensureGrouping(subject, roleName); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.logDenied(actor, role, object, action, ErrForbidden)
		return ErrForbidden
	}

	if shouldLogGrant(action) {
		s.log.Info("authorization.granted",
			zap.String("subject", subject),
			zap.String("role", roleName),
			zap.String("object", object),
			zap.String("action", action),
		)
	}
	return nil
}

func resolveActor(actor string, role string) (string, string, error) {
	if actor == RoleSystem {
		return actor, "role:" + RoleSystem, nil
	}
	if !strings.HasPrefix(actor, "user:") {
		return "", "", ErrInvalidActor
	}
	userID := strings.TrimSpace(strings.TrimPrefix(actor, "user:"))
	if userID == "" || strings.ContainsAny(userID, " \t\r\n") {
		return "", "", ErrInvalidActor
	}

	role = strings.ToLower(strings.TrimSpace(role))
	switch role {
	case RoleOwner, RoleAdmin, RoleFinOps, RoleMember:
	case "":
		return "", "", ErrInvalidRole
	default:
		// "system" is reserved for unauthenticated internal callers.
		return "", "", ErrForbidden
	}
	return "user:" + userID, fmt.Sprintf("role:%s", role), nil
}

// ensureGrouping keeps exactly one role link per subject. The role comes
// from the caller's token, so a changed claim replaces the stored link.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func (s *ServiceImpl) logDenied(actor, role, object, action string, reason error) {
	s.log.Warn("authorization.denied",
		zap.String("actor", actor),
		zap.String("role", role),
		zap.String("object", object),
		zap.String("action", action),
		zap.Error(reason),
	)
}

func shouldLogGrant(action string) bool {
	switch action {
	case ActionBillingRulesUpdate, ActionBillingRulesApply, ActionInvoiceEscalate, ActionInvoiceCancel:
		return true
	default:
		return false
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	readOnly := [][]string{
		{ObjectTenant, ActionTenantView},
		{ObjectEnforcement, ActionEnforcementView},
		{ObjectInvoice, ActionInvoiceView},
		{ObjectPayment, ActionPaymentView},
		{ObjectHistory, ActionHistoryView},
		{ObjectReminder, ActionReminderView},
		{ObjectBillingRules, ActionBillingRulesView},
	}
	finops := [][]string{
		{ObjectInvoice, ActionInvoiceCreate},
		{ObjectPayment, ActionPaymentRecord},
		{ObjectReminder, ActionReminderSend},
	}
	admin := [][]string{
		{ObjectTenant, ActionTenantCreate},
		{ObjectInvoice, ActionInvoiceCancel},
		{ObjectInvoice, ActionInvoiceEscalate},
		{ObjectBillingRules, ActionBillingRulesApply},
	}
	owner := [][]string{
		{ObjectBillingRules, ActionBillingRulesUpdate},
	}

	grants := map[string][][]string{
		RoleMember: readOnly,
		RoleFinOps: concat(readOnly, finops),
		RoleAdmin:  concat(readOnly, finops, admin),
		RoleOwner:  concat(readOnly, finops, admin, owner),
		RoleSystem: concat(readOnly, finops, admin, owner),
	}

	for role, perms := range grants {
		for _, perm := range perms {
			if _, err := enforcer.AddPolicy("role:"+role, perm[0], perm[1]); err != nil {
				return err
			}
		}
	}
	return nil
}

func concat(groups ...[][]string) [][]string {
	var out [][]string
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
