package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"hr-suite/internal/changerequest"
	"hr-suite/internal/rbac"
	"hr-suite/internal/workflow"
)

func (h Handlers) CreateChangeRequest(c *gin.Context) {
	var req createRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	if req.Class == "" {
		badRequest(c, "class required")
		return
	}
	out, err := h.Requests.Create(c.Request.Context(), req.Class, req.Payload, caller(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// ListChangeRequests shows everything to managers and only their own requests to everyone else.
func (h Handlers) ListChangeRequests(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	after, ok := optionalInstant(c, "created_after", false)
	if !ok {
		return
	}
	before, ok := optionalInstant(c, "created_before", true)
	if !ok {
		return
	}
	f := workflow.ChangeRequestFilter{
		Class:         workflow.SubjectClass(c.Query("class")),
		Status:        workflow.Status(c.Query("status")),
		RequestedBy:   c.Query("requested_by"),
		CreatedAfter:  after,
		CreatedBefore: before,
		Limit:         limit,
	}
	if !rbac.Can(rbac.CallerRole(c), rbac.OpChangeRequestManage) {
		f.RequestedBy = caller(c)
	}
	out, err := h.Requests.List(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": out})
}

func (h Handlers) GetChangeRequest(c *gin.Context) {
	out, ok := h.loadOwnedRequest(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) UpdateChangeRequest(c *gin.Context) {
	var req patchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	if _, ok := h.loadOwnedRequest(c); !ok {
		return
	}
	out, err := h.Requests.Update(c.Request.Context(), c.Param("id"), req.Patch, caller(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) SubmitChangeRequest(c *gin.Context) {
	if _, ok := h.loadOwnedRequest(c); !ok {
		return
	}
	out, err := h.Requests.Submit(c.Request.Context(), c.Param("id"), caller(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) CancelChangeRequest(c *gin.Context) {
	if _, ok := h.loadOwnedRequest(c); !ok {
		return
	}
	out, err := h.Requests.Cancel(c.Request.Context(), c.Param("id"), caller(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) AttachApprover(c *gin.Context) {
	var req changerequest.ApproverSpec
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	cr, ok := h.loadOwnedRequest(c)
	if !ok {
		return
	}
	if strings.TrimSpace(req.Approver) == cr.CreatedBy && !rbac.IsSystemAdmin(rbac.CallerRole(c)) {
		writeError(c, workflow.Validationf("requester %s cannot approve their own change request", cr.CreatedBy))
		return
	}
	out, err := h.Requests.AttachApprover(c.Request.Context(), c.Param("id"), req, caller(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// loadOwnedRequest lets the requester, an attached approver, or a manager through.
func (h Handlers) loadOwnedRequest(c *gin.Context) (changerequest.Detail, bool) {
	d, err := h.Requests.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return changerequest.Detail{}, false
	}
	who := caller(c)
	if d.CreatedBy == who || rbac.Can(rbac.CallerRole(c), rbac.OpChangeRequestManage) {
		return d, true
	}
	if c.Request.Method == http.MethodGet {
		for _, a := range d.Decisions {
			if a.Approver == who {
				return d, true
			}
		}
	}
	forbidden(c, "not permitted on this change request")
	return changerequest.Detail{}, false
}
