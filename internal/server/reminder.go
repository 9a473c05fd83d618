package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	reminderdomain "github.com/smallbiznis/clinicbilling/internal/reminder/domain"
	"github.com/smallbiznis/clinicbilling/pkg/db/pagination"
)

type listRemindersQuery struct {
	pagination.Pagination
	Status string `form:"status"`
}

func (s *Server) SendInvoiceReminder(c *gin.Context) {
	var opts reminderdomain.DispatchOptions
	if err := bindOptionalJSON(c, &opts); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	item, err := s.reminderSvc.DispatchReminder(c.Request.Context(), pathID(c.Param("id")), opts)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// A FAILED delivery is still a recorded reminder; the status carries the outcome.
	c.JSON(http.StatusCreated, gin.H{"data": item})
}

func (s *Server) ListInvoiceReminders(c *gin.Context) {
	items, err := s.reminderSvc.ListForInvoice(c.Request.Context(), pathID(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) DispatchReminderBatch(c *gin.Context) {
	var req reminderdomain.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.reminderSvc.DispatchBatch(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// ListReminders is the operator follow-up view. Only FAILED reminders are
// listed; per-invoice history lives under the invoice.
func (s *Server) ListReminders(c *gin.Context) {
	var query listRemindersQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	status := strings.ToUpper(strings.TrimSpace(query.Status))
	if status != "" && status != string(reminderdomain.ReminderStatusFailed) {
		AbortWithError(c, newValidationError("status", "invalid_status", "only FAILED reminders can be listed"))
		return
	}

	resp, err := s.reminderSvc.ListFailed(c.Request.Context(), query.Pagination)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Reminders, "page_info": resp.PageInfo})
}
