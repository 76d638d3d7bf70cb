package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"hr-suite/internal/audit"
	"hr-suite/internal/reporting"
	"hr-suite/internal/workflow"
)

func (h Handlers) QueryAudit(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	out, err := h.Audit.Query(c.Request.Context(), audit.Filter{
		EntityType: c.Query("entity_type"),
		EntityID:   c.Query("entity_id"),
		Limit:      limit,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	if out == nil {
		out = []audit.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"items": out})
}

// WorkflowSummary requires from and to; a bare date for to covers that whole day.
func (h Handlers) WorkflowSummary(c *gin.Context) {
	from, ok := optionalInstant(c, "from", false)
	if !ok {
		return
	}
	to, ok := optionalInstant(c, "to", true)
	if !ok {
		return
	}
	out, err := h.Reports.WorkflowSummary(c.Request.Context(), reporting.SummaryRequest{
		Range: reporting.TimeRange{From: from, To: to},
		Class: workflow.SubjectClass(c.Query("class")),
	})
	if errors.Is(err, reporting.ErrInvalidRequest) {
		badRequest(c, "from and to are required and to must be after from")
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
