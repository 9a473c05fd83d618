package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/clinicbilling/internal/accessgate"
	"github.com/smallbiznis/clinicbilling/internal/audit"
	auditdomain "github.com/smallbiznis/clinicbilling/internal/audit/domain"
	"github.com/smallbiznis/clinicbilling/internal/authorization"
	"github.com/smallbiznis/clinicbilling/internal/blockingrules"
	rulesdomain "github.com/smallbiznis/clinicbilling/internal/blockingrules/domain"
	"github.com/smallbiznis/clinicbilling/internal/broker"
	"github.com/smallbiznis/clinicbilling/internal/config"
	"github.com/smallbiznis/clinicbilling/internal/escalation"
	"github.com/smallbiznis/clinicbilling/internal/events"
	"github.com/smallbiznis/clinicbilling/internal/invoice"
	invoicedomain "github.com/smallbiznis/clinicbilling/internal/invoice/domain"
	"github.com/smallbiznis/clinicbilling/internal/messaging"
	"github.com/smallbiznis/clinicbilling/internal/observability"
	obslogger "github.com/smallbiznis/clinicbilling/internal/observability/logger"
	obstracing "github.com/smallbiznis/clinicbilling/internal/observability/tracing"
	"github.com/smallbiznis/clinicbilling/internal/ratelimit"
	"github.com/smallbiznis/clinicbilling/internal/reminder"
	reminderdomain "github.com/smallbiznis/clinicbilling/internal/reminder/domain"
	"github.com/smallbiznis/clinicbilling/internal/tenant"
	tenantdomain "github.com/smallbiznis/clinicbilling/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	broker.Module,
	events.Module,
	tenant.Module,
	blockingrules.Module,
	invoice.Module,
	escalation.Module,
	messaging.Module,
	reminder.Module,
	accessgate.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	authzSvc    authorization.Service
	tenantSvc   tenantdomain.Service
	invoiceSvc  invoicedomain.Service
	escalations escalation.Service
	historySvc  auditdomain.Service
	rulesSvc    rulesdomain.Service
	reminderSvc reminderdomain.Service
	gate        *accessgate.Gate

	reminderLimiter *ratelimit.ReminderLimiter
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	AuthzSvc    authorization.Service
	TenantSvc   tenantdomain.Service
	InvoiceSvc  invoicedomain.Service
	Escalations escalation.Service
	HistorySvc  auditdomain.Service
	RulesSvc    rulesdomain.Service
	ReminderSvc reminderdomain.Service
	Gate        *accessgate.Gate

	ReminderLimiter *ratelimit.ReminderLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		authzSvc:    p.AuthzSvc,
		tenantSvc:   p.TenantSvc,
		invoiceSvc:  p.InvoiceSvc,
		escalations: p.Escalations,
		historySvc:  p.HistorySvc,
		rulesSvc:    p.RulesSvc,
		reminderSvc: p.ReminderSvc,
		gate:        p.Gate,

		reminderLimiter: p.ReminderLimiter,
	}

	svc.registerAPIRoutes()
	svc.registerPortalRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")
	api.Use(s.Authenticate())

	// -------- Tenants --------
	api.POST("/tenants", s.authorize(authorization.ObjectTenant, authorization.ActionTenantCreate), s.CreateTenant)
	api.GET("/tenants", s.authorize(authorization.ObjectTenant, authorization.ActionTenantView), s.ListTenants)
	api.GET("/tenants/:id", s.authorize(authorization.ObjectTenant, authorization.ActionTenantView), s.GetTenantByID)
	api.GET("/tenants/:id/enforcement", s.authorize(authorization.ObjectEnforcement, authorization.ActionEnforcementView), s.GetTenantEnforcement)

	// -------- Invoices --------
	api.POST("/invoices", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceCreate), s.CreateInvoice)
	api.GET("/invoices", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.ListInvoices)
	api.GET("/invoices/:id", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.GetInvoiceByID)
	api.POST("/invoices/:id/cancel", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceCancel), s.CancelInvoice)
	api.POST("/invoices/:id/escalate", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceEscalate), s.EscalateInvoice)
	api.GET("/invoices/:id/history", s.authorize(authorization.ObjectHistory, authorization.ActionHistoryView), s.ListInvoiceHistory)

	// -------- Payments --------
	api.POST("/invoices/:id/payments", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentRecord), s.RecordPayment)
	api.GET("/invoices/:id/payments", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentView), s.ListPayments)

	// -------- Reminders --------
	api.POST("/invoices/:id/reminders", s.authorize(authorization.ObjectReminder, authorization.ActionReminderSend), s.throttleReminders(), s.SendInvoiceReminder)
	api.GET("/invoices/:id/reminders", s.authorize(authorization.ObjectReminder, authorization.ActionReminderView), s.ListInvoiceReminders)
	api.POST("/reminders/batch", s.authorize(authorization.ObjectReminder, authorization.ActionReminderSend), s.throttleReminders(), s.DispatchReminderBatch)
	api.GET("/reminders", s.authorize(authorization.ObjectReminder, authorization.ActionReminderView), s.ListReminders)

	// -------- Blocking rules --------
	api.GET("/billing-rules", s.authorize(authorization.ObjectBillingRules, authorization.ActionBillingRulesView), s.GetBillingRules)
	api.PUT("/billing-rules", s.authorize(authorization.ObjectBillingRules, authorization.ActionBillingRulesUpdate), s.UpdateBillingRules)
	api.POST("/billing-rules/apply", s.authorize(authorization.ObjectBillingRules, authorization.ActionBillingRulesApply), s.ApplyBillingRules)
}

// registerPortalRoutes serves the clinic-facing app. Requests from a locked
// tenant are answered by the access gate before reaching the handler.
func (s *Server) registerPortalRoutes() {
	portal := s.engine.Group("/portal/:tenant_id")
	portal.Use(s.Authenticate())
	portal.Use(s.authorize(authorization.ObjectEnforcement, authorization.ActionEnforcementView))
	portal.Use(accessgate.RequireAccess(s.gate, accessgate.ModeLocked))

	portal.GET("/access", s.GetPortalAccess)
}
