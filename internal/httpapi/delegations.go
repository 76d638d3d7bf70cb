package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"hr-suite/internal/rbac"
)

type createDelegationRequest struct {
	// Delegator defaults to the caller. Only system admins may delegate for someone else.
	Delegator string `json:"delegator"`
	Delegate  string `json:"delegate"`
	Start     string `json:"start"`
	End       string `json:"end"`
	Reason    string `json:"reason"`
}

func (h Handlers) CreateDelegation(c *gin.Context) {
	var req createDelegationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	actor := caller(c)
	delegator := strings.TrimSpace(req.Delegator)
	if delegator == "" {
		delegator = actor
	}
	if delegator != actor && !rbac.IsSystemAdmin(rbac.CallerRole(c)) {
		forbidden(c, "cannot delegate on behalf of another principal")
		return
	}
	start, err := parseInstant(req.Start, false)
	if err != nil {
		badRequest(c, "start must be RFC3339 or YYYY-MM-DD")
		return
	}
	end, err := parseInstant(req.End, true)
	if err != nil {
		badRequest(c, "end must be RFC3339 or YYYY-MM-DD")
		return
	}

	out, err := h.Delegations.Delegate(c.Request.Context(), delegator, strings.TrimSpace(req.Delegate), start, end, req.Reason, actor)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h Handlers) ListDelegations(c *gin.Context) {
	out, err := h.Delegations.ListFor(c.Request.Context(), caller(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// ActingPrincipals lists the caller followed by everyone they currently act for.
func (h Handlers) ActingPrincipals(c *gin.Context) {
	out, err := h.Delegations.ResolveActingPrincipal(c.Request.Context(), caller(c), h.now())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"principals": out})
}

// RevokeDelegation is allowed for the delegator and system admins.
func (h Handlers) RevokeDelegation(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	actor := caller(c)

	d, err := h.Delegations.Find(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	if d.Delegator != actor && !rbac.IsSystemAdmin(rbac.CallerRole(c)) {
		forbidden(c, "only the delegator may revoke")
		return
	}
	out, err := h.Delegations.Revoke(ctx, id, actor)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
