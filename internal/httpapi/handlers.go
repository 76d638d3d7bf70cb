package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"hr-suite/internal/audit"
	"hr-suite/internal/auth"
	"hr-suite/internal/changerequest"
	"hr-suite/internal/delegation"
	"hr-suite/internal/lifecycle"
	"hr-suite/internal/rbac"
	"hr-suite/internal/reporting"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth        *auth.Manager
	Records     *lifecycle.Service
	Requests    *changerequest.Service
	Delegations *delegation.Service
	Audit       *audit.Service
	Reports     *reporting.Service

	// DevTokens enables POST /auth/token. Never set in production.
	DevTokens bool

	// Clock is injectable for deterministic tests.
	Clock func() time.Time
}

func (h Handlers) now() time.Time {
	if h.Clock != nil {
		return h.Clock().UTC()
	}
	return time.Now().UTC()
}

// Register mounts the versioned API on v1. Authentication is applied by the caller
// except for the dev token route, which is public.
func (h Handlers) Register(v1 *gin.RouterGroup, authMW gin.HandlerFunc) {
	if h.DevTokens {
		v1.POST("/auth/token", h.IssueDevToken)
		v1.POST("/auth/refresh", h.RefreshDevToken)
	}

	api := v1.Group("")
	api.Use(authMW)

	api.GET("/me", h.Me)

	records := api.Group("/config-records")
	{
		records.GET("", rbac.RequireCapability(rbac.OpConfigRead), h.ListConfigRecords)
		records.POST("", rbac.RequireCapability(rbac.OpConfigWrite), h.CreateConfigRecord)
		records.GET("/:id", rbac.RequireCapability(rbac.OpConfigRead), h.GetConfigRecord)
		records.PATCH("/:id", rbac.RequireCapability(rbac.OpConfigWrite), h.UpdateConfigRecord)
		records.DELETE("/:id", rbac.RequireCapability(rbac.OpConfigWrite), h.DeleteConfigRecord)
		records.POST("/:id/approve", rbac.RequireCapability(rbac.OpConfigApprove), h.ApproveConfigRecord)
		records.POST("/:id/reject", rbac.RequireCapability(rbac.OpConfigApprove), h.RejectConfigRecord)
	}

	requests := api.Group("/change-requests")
	{
		requests.GET("", rbac.RequireCapability(rbac.OpChangeRequestRead), h.ListChangeRequests)
		requests.POST("", rbac.RequireCapability(rbac.OpChangeRequestCreate), h.CreateChangeRequest)
		requests.GET("/:id", rbac.RequireCapability(rbac.OpChangeRequestRead), h.GetChangeRequest)
		requests.PATCH("/:id", rbac.RequireCapability(rbac.OpChangeRequestCreate), h.UpdateChangeRequest)
		requests.POST("/:id/submit", rbac.RequireCapability(rbac.OpChangeRequestCreate), h.SubmitChangeRequest)
		requests.POST("/:id/cancel", rbac.RequireCapability(rbac.OpChangeRequestCreate), h.CancelChangeRequest)
		requests.POST("/:id/approvers", rbac.RequireCapability(rbac.OpChangeRequestCreate), h.AttachApprover)
	}

	approvals := api.Group("/approvals")
	{
		approvals.GET("/pending", rbac.RequireCapability(rbac.OpApprovalDecide), h.ListPendingApprovals)
		approvals.POST("/:id/decision", rbac.RequireCapability(rbac.OpApprovalDecide), h.DecideApproval)
	}

	delegations := api.Group("/delegations")
	delegations.Use(rbac.RequireCapability(rbac.OpDelegationManage))
	{
		delegations.GET("", h.ListDelegations)
		delegations.POST("", h.CreateDelegation)
		delegations.GET("/acting", h.ActingPrincipals)
		delegations.DELETE("/:id", h.RevokeDelegation)
	}

	api.GET("/audit", rbac.RequireCapability(rbac.OpAuditRead), h.QueryAudit)
	api.GET("/reports/workflow-summary", rbac.RequireCapability(rbac.OpReportRead), h.WorkflowSummary)
}

// caller returns the authenticated principal. RequireAccessToken guarantees it is set.
func caller(c *gin.Context) string {
	uid, _ := auth.UserID(c.Request.Context())
	return uid
}

// --- Auth ---

type devTokenRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// IssueDevToken mints a token pair without credentials, for local runs only.
func (h Handlers) IssueDevToken(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req devTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		badRequest(c, "user_id required")
		return
	}
	if _, err := rbac.ParseRole(req.Role); err != nil {
		badRequest(c, err.Error())
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	Role         string `json:"role"`
}

// RefreshDevToken trades a refresh token for a new pair. Refresh tokens carry no
// role, so the dev caller names it again.
func (h Handlers) RefreshDevToken(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	if _, err := rbac.ParseRole(req.Role); err != nil {
		badRequest(c, err.Error())
		return
	}
	pair, err := h.Auth.Refresh(req.RefreshToken, req.Role, time.Now())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token", "code": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (h Handlers) Me(c *gin.Context) {
	role, _ := auth.Role(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"user_id": caller(c), "role": role})
}

// --- query helpers ---

func queryLimit(c *gin.Context) (int, bool) {
	v := c.Query("limit")
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		badRequest(c, "limit must be a non-negative integer")
		return 0, false
	}
	return n, true
}

const dateLayout = "2006-01-02"

// parseInstant accepts RFC3339 or a bare date. A bare date used as an upper
// bound covers the whole day.
func parseInstant(v string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t.UTC(), nil
}

// optionalInstant parses query key; ok is false once a response was written.
func optionalInstant(c *gin.Context, key string, endOfDay bool) (time.Time, bool) {
	v := c.Query(key)
	if v == "" {
		return time.Time{}, true
	}
	t, err := parseInstant(v, endOfDay)
	if err != nil {
		badRequest(c, key+" must be RFC3339 or YYYY-MM-DD")
		return time.Time{}, false
	}
	return t, true
}
