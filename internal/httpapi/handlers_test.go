package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hr-suite/internal/audit"
	"hr-suite/internal/auth"
	"hr-suite/internal/changerequest"
	"hr-suite/internal/config"
	"hr-suite/internal/delegation"
	"hr-suite/internal/lifecycle"
	"hr-suite/internal/reporting"
	"hr-suite/internal/storage/sqlstore/sqlstoretest"
	"hr-suite/internal/workflow"
)

type testAPI struct {
	r    *gin.Engine
	auth *auth.Manager
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := sqlstoretest.New(t)
	am, err := auth.NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Hour, RefreshTokenTTL: 24 * time.Hour})
	require.NoError(t, err)

	deps := workflow.Deps{Store: st, Audit: audit.NewService(st)}
	h := Handlers{
		Auth:        am,
		Records:     lifecycle.NewService(deps),
		Requests:    changerequest.NewService(deps, nil),
		Delegations: delegation.NewService(deps),
		Audit:       audit.NewService(st),
		Reports:     reporting.NewService(st),
		DevTokens:   true,
	}
	r := gin.New()
	h.Register(r.Group("/v1"), auth.RequireAccessToken(am))
	return &testAPI{r: r, auth: am}
}

func (a *testAPI) token(t *testing.T, user, role string) string {
	t.Helper()
	p, err := a.auth.IssuePair(time.Now(), user, role)
	require.NoError(t, err)
	return p.AccessToken
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

type envelope struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func TestStatusFor(t *testing.T) {
	cases := map[string]int{
		workflow.CodeNotFound:            http.StatusNotFound,
		workflow.CodeInvalidTransition:   http.StatusConflict,
		workflow.CodeValidation:          http.StatusBadRequest,
		workflow.CodeConflict:            http.StatusConflict,
		workflow.CodeDecisionAlreadyMade: http.StatusConflict,
		workflow.CodeConfiguration:       http.StatusInternalServerError,
		workflow.CodeInternal:            http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, statusFor(code), code)
	}
}

func TestWriteError_HidesInternalDetail(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", func(c *gin.Context) { writeError(c, errors.New("pq: password authentication failed")) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	env := decode[envelope](t, w)
	assert.Equal(t, workflow.CodeInternal, env.Code)
	assert.Equal(t, "internal error", env.Error)
}

func TestConfigRecords_ApproveOnce(t *testing.T) {
	api := newTestAPI(t)
	writer := api.token(t, "paula", "payroll_specialist")
	approver := api.token(t, "mark", "payroll_manager")

	w := api.do(t, http.MethodPost, "/v1/config-records", writer, gin.H{"class": "pay_grade", "payload": gin.H{"grade": "G7"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rec := decode[workflow.Subject](t, w)
	assert.Equal(t, workflow.StatusDraft, rec.Status)

	w = api.do(t, http.MethodPost, "/v1/config-records/"+rec.ID+"/approve", writer, nil)
	assert.Equal(t, http.StatusForbidden, w.Code, "specialists cannot approve")

	w = api.do(t, http.MethodPost, "/v1/config-records/"+rec.ID+"/approve", approver, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, workflow.StatusApproved, decode[workflow.Subject](t, w).Status)

	w = api.do(t, http.MethodPost, "/v1/config-records/"+rec.ID+"/reject", approver, nil)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, workflow.CodeInvalidTransition, decode[envelope](t, w).Code)

	w = api.do(t, http.MethodPatch, "/v1/config-records/"+rec.ID, writer, gin.H{"patch": gin.H{"grade": "G8"}})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = api.do(t, http.MethodGet, "/v1/config-records/missing", writer, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, http.MethodPost, "/v1/config-records", writer, gin.H{"class": "nope"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, workflow.CodeConfiguration, decode[envelope](t, w).Code)
}

func TestConfigRecords_RequiresToken(t *testing.T) {
	api := newTestAPI(t)
	w := api.do(t, http.MethodGet, "/v1/config-records", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = api.do(t, http.MethodGet, "/v1/config-records", api.token(t, "e", "employee"), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestChangeRequest_DelegatedDecision(t *testing.T) {
	api := newTestAPI(t)
	requester := api.token(t, "rita", "department_head")
	a1 := api.token(t, "a1", "hr_manager")
	a2 := api.token(t, "a2", "hr_manager")
	d1 := api.token(t, "d1", "employee")
	outsider := api.token(t, "zed", "employee")

	w := api.do(t, http.MethodPost, "/v1/change-requests", requester, gin.H{"class": "org_structure", "payload": gin.H{"unit": "R&D"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	cr := decode[workflow.ChangeRequest](t, w)
	assert.Regexp(t, `^SCR-\d{4}-00001$`, cr.RequestNumber)

	w = api.do(t, http.MethodPost, "/v1/change-requests/"+cr.ID+"/submit", requester, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var approvals []workflow.ApprovalDecision
	for _, who := range []string{"a1", "a2"} {
		w = api.do(t, http.MethodPost, "/v1/change-requests/"+cr.ID+"/approvers", requester, gin.H{"approver": who})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		approvals = append(approvals, decode[workflow.ApprovalDecision](t, w))
	}

	w = api.do(t, http.MethodPost, "/v1/approvals/"+approvals[0].ID+"/decision", outsider, gin.H{"decision": "approved"})
	require.Equal(t, http.StatusForbidden, w.Code)

	now := time.Now().UTC()
	w = api.do(t, http.MethodPost, "/v1/delegations", a1, gin.H{
		"delegate": "d1",
		"start":    now.Add(-time.Hour).Format(time.RFC3339),
		"end":      now.Add(time.Hour).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = api.do(t, http.MethodGet, "/v1/delegations/acting", d1, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"d1", "a1"}, decode[map[string][]string](t, w)["principals"])

	w = api.do(t, http.MethodGet, "/v1/approvals/pending", d1, nil)
	require.Equal(t, http.StatusOK, w.Code)
	pending := decode[struct {
		Items []workflow.PendingItem `json:"items"`
	}](t, w)
	require.Len(t, pending.Items, 1)
	assert.Equal(t, "a1", pending.Items[0].OnBehalfOf)

	w = api.do(t, http.MethodPost, "/v1/approvals/"+approvals[0].ID+"/decision", d1, gin.H{"decision": "approved", "comment": "on behalf"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[changerequest.DecideResult](t, w)
	assert.Equal(t, "d1", res.Decision.DecidedBy)
	assert.False(t, res.Finalized)

	w = api.do(t, http.MethodPost, "/v1/approvals/"+approvals[0].ID+"/decision", a1, gin.H{"decision": "rejected"})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, workflow.CodeDecisionAlreadyMade, decode[envelope](t, w).Code)

	w = api.do(t, http.MethodPost, "/v1/approvals/"+approvals[1].ID+"/decision", a2, gin.H{"decision": "maybe"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodPost, "/v1/approvals/"+approvals[1].ID+"/decision", a2, gin.H{"decision": "approved"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res = decode[changerequest.DecideResult](t, w)
	assert.True(t, res.Finalized)
	assert.Equal(t, workflow.StatusApproved, res.Request.Status)

	w = api.do(t, http.MethodGet, "/v1/change-requests/"+cr.ID, outsider, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = api.do(t, http.MethodGet, "/v1/change-requests/"+cr.ID, a2, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[changerequest.Detail](t, w).Decisions, 2)

	w = api.do(t, http.MethodGet, fmt.Sprintf("/v1/audit?entity_type=%s&entity_id=%s", workflow.EntityChangeRequest, cr.ID), a1, nil)
	require.Equal(t, http.StatusOK, w.Code)
	entries := decode[struct {
		Items []audit.Entry `json:"items"`
	}](t, w)
	require.NotEmpty(t, entries.Items)
	assert.Equal(t, workflow.ActionFinalize, entries.Items[0].Action)
}

func TestChangeRequest_RequesterCannotApproveOwnRequest(t *testing.T) {
	api := newTestAPI(t)
	requester := api.token(t, "rita", "department_head")
	admin := api.token(t, "root", "system_admin")

	w := api.do(t, http.MethodPost, "/v1/change-requests", requester, gin.H{"class": "org_structure", "payload": gin.H{"unit": "Ops"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	cr := decode[workflow.ChangeRequest](t, w)
	w = api.do(t, http.MethodPost, "/v1/change-requests/"+cr.ID+"/submit", requester, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = api.do(t, http.MethodPost, "/v1/change-requests/"+cr.ID+"/approvers", requester, gin.H{"approver": " rita "})
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.Equal(t, workflow.CodeValidation, decode[envelope](t, w).Code)

	w = api.do(t, http.MethodGet, "/v1/change-requests/"+cr.ID, requester, nil)
	require.Equal(t, http.StatusOK, w.Code)
	detail := decode[changerequest.Detail](t, w)
	assert.Equal(t, workflow.StatusSubmitted, detail.Status)
	assert.Empty(t, detail.Decisions)

	w = api.do(t, http.MethodPost, "/v1/change-requests/"+cr.ID+"/approvers", admin, gin.H{"approver": "rita"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestDelegations_DateOnlyEndCoversWholeDay(t *testing.T) {
	api := newTestAPI(t)
	boss := api.token(t, "boss", "hr_admin")

	w := api.do(t, http.MethodPost, "/v1/delegations", boss, gin.H{"delegate": "boss", "start": "2024-03-01", "end": "2024-03-02"})
	require.Equal(t, http.StatusBadRequest, w.Code, "self delegation")

	w = api.do(t, http.MethodPost, "/v1/delegations", boss, gin.H{"delegator": "someone", "delegate": "x", "start": "2024-03-01", "end": "2024-03-02"})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(t, http.MethodPost, "/v1/delegations", boss, gin.H{"delegate": "deputy", "start": "2024-03-01", "end": "2024-03-02"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	d := decode[workflow.Delegation](t, w)
	assert.True(t, d.End.Equal(time.Date(2024, 3, 2, 23, 59, 59, 999999999, time.UTC)), d.End.String())

	deputy := api.token(t, "deputy", "employee")
	w = api.do(t, http.MethodDelete, "/v1/delegations/"+d.ID, deputy, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(t, http.MethodDelete, "/v1/delegations/"+d.ID, boss, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotNil(t, decode[workflow.Delegation](t, w).RevokedAt)

	w = api.do(t, http.MethodGet, "/v1/delegations", boss, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[delegation.Listing](t, w).Given, 1)
}

func TestWorkflowSummary_Endpoint(t *testing.T) {
	api := newTestAPI(t)
	head := api.token(t, "h", "department_head")

	w := api.do(t, http.MethodGet, "/v1/reports/workflow-summary?from=2024-01-01", head, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodGet, "/v1/reports/workflow-summary?from=2024-01-01&to=2099-12-31", head, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	out := decode[reporting.WorkflowSummary](t, w)
	assert.Zero(t, out.PendingDecisions)
}

func TestDevToken(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/v1/auth/token", "", gin.H{"user_id": "u1", "role": "wizard"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodPost, "/v1/auth/token", "", gin.H{"user_id": "u1", "role": "employee"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	pair := decode[auth.TokenPair](t, w)

	w = api.do(t, http.MethodPost, "/v1/auth/refresh", "", gin.H{"refresh_token": pair.AccessToken, "role": "employee"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	w = api.do(t, http.MethodPost, "/v1/auth/refresh", "", gin.H{"refresh_token": pair.RefreshToken, "role": "hr_admin"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = api.do(t, http.MethodGet, "/v1/me", pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	me := decode[map[string]string](t, w)
	assert.Equal(t, "u1", me["user_id"])
	assert.Equal(t, "employee", me["role"])
}
