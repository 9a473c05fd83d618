package authorization

import (
	"context"
	"errors"
)

// Service decides whether an actor holding a role may perform action on
// object. Actors are "system" or "user:<id>".
type Service interface {
	Authorize(ctx context.Context, actor string, role string, object string, action string) error
}

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidRole   = errors.New("invalid_role")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)

const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleFinOps = "finops"
	RoleMember = "member"
	RoleSystem = "system"
)

const (
	ObjectTenant       = "tenant"
	ObjectInvoice      = "invoice"
	ObjectPayment      = "payment"
	ObjectReminder     = "reminder"
	ObjectBillingRules = "billing_rules"
	ObjectHistory      = "blocking_history"
	ObjectEnforcement  = "enforcement"
)

const (
	ActionTenantView   = "tenant.view"
	ActionTenantCreate = "tenant.create"

	ActionEnforcementView = "enforcement.view"

	ActionInvoiceView     = "invoice.view"
	ActionInvoiceCreate   = "invoice.create"
	ActionInvoiceCancel   = "invoice.cancel"
	ActionInvoiceEscalate = "invoice.escalate"

	ActionPaymentView   = "payment.view"
	ActionPaymentRecord = "payment.record"

	ActionHistoryView = "blocking_history.view"

	ActionReminderView = "reminder.view"
	ActionReminderSend = "reminder.send"

	ActionBillingRulesView   = "billing_rules.view"
	ActionBillingRulesUpdate = "billing_rules.update"
	ActionBillingRulesApply  = "billing_rules.apply"
)
