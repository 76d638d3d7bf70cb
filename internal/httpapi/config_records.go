package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"hr-suite/internal/workflow"
)

type createRecordRequest struct {
	Class   workflow.SubjectClass `json:"class"`
	Payload json.RawMessage       `json:"payload"`
}

type patchRequest struct {
	Patch json.RawMessage `json:"patch"`
}

func (h Handlers) CreateConfigRecord(c *gin.Context) {
	var req createRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	if req.Class == "" {
		badRequest(c, "class required")
		return
	}
	out, err := h.Records.Create(c.Request.Context(), req.Class, req.Payload, caller(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h Handlers) ListConfigRecords(c *gin.Context) {
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
	out, err := h.Records.List(c.Request.Context(), workflow.SubjectFilter{
		Class:         workflow.SubjectClass(c.Query("class")),
		Status:        workflow.Status(c.Query("status")),
		CreatedAfter:  after,
		CreatedBefore: before,
		Limit:         limit,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": out})
}

func (h Handlers) GetConfigRecord(c *gin.Context) {
	out, err := h.Records.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) UpdateConfigRecord(c *gin.Context) {
	var req patchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	out, err := h.Records.Update(c.Request.Context(), c.Param("id"), req.Patch, caller(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) DeleteConfigRecord(c *gin.Context) {
	if err := h.Records.Delete(c.Request.Context(), c.Param("id"), caller(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h Handlers) ApproveConfigRecord(c *gin.Context) {
	out, err := h.Records.Approve(c.Request.Context(), c.Param("id"), caller(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) RejectConfigRecord(c *gin.Context) {
	out, err := h.Records.Reject(c.Request.Context(), c.Param("id"), caller(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
