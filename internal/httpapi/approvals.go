package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hr-suite/internal/rbac"
	"hr-suite/internal/workflow"
)

type decideRequest struct {
	Decision string `json:"decision"`
	Comment  string `json:"comment"`
}

// DecideApproval records the caller's vote. The caller must be the approver or
// hold an active delegation from them; system admins bypass the check.
func (h Handlers) DecideApproval(c *gin.Context) {
	var req decideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	decision, err := workflow.ParseDecision(req.Decision)
	if err != nil {
		writeError(c, err)
		return
	}

	ctx := c.Request.Context()
	id := c.Param("id")
	actor := caller(c)

	d, err := h.Requests.FindDecision(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	if d.Approver != actor && !rbac.IsSystemAdmin(rbac.CallerRole(c)) {
		ok, err := h.Delegations.CanActFor(ctx, actor, d.Approver, h.now())
		if err != nil {
			writeError(c, err)
			return
		}
		if !ok {
			forbidden(c, "not permitted to decide this approval")
			return
		}
	}

	out, err := h.Requests.Decide(ctx, id, decision, req.Comment, actor)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// ListPendingApprovals includes items owed by principals the caller currently acts for.
func (h Handlers) ListPendingApprovals(c *gin.Context) {
	out, err := h.Delegations.ListPendingFor(c.Request.Context(), caller(c), h.now())
	if err != nil {
		writeError(c, err)
		return
	}
	if out == nil {
		out = []workflow.PendingItem{}
	}
	c.JSON(http.StatusOK, gin.H{"items": out})
}
