package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/draftstudio-backend/internal/http/response"
	"github.com/yungbote/draftstudio-backend/internal/services"
)

type SnapshotHandler struct {
	snapshots services.SnapshotService
}

func NewSnapshotHandler(snapshots services.SnapshotService) *SnapshotHandler {
	return &SnapshotHandler{snapshots: snapshots}
}

type captureRequest struct {
	SetActive *bool `json:"set_active"`
}

// POST /api/drafts/:id/snapshots
func (h *SnapshotHandler) Capture(c *gin.Context) {
	var req captureRequest
	if !bindJSON(c, &req, true) {
		return
	}
	setActive := true
	if req.SetActive != nil {
		setActive = *req.SetActive
	}
	snap, hist, err := h.snapshots.Capture(c.Request.Context(), c.Param("id"), setActive)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"snapshot": snap, "history": hist})
}

// GET /api/drafts/:id/snapshots
func (h *SnapshotHandler) History(c *gin.Context) {
	hist, err := h.snapshots.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"history": hist})
}

type setActiveRequest struct {
	SnapshotID string `json:"snapshot_id" binding:"required"`
}

// PUT /api/drafts/:id/snapshots/active
func (h *SnapshotHandler) SetActive(c *gin.Context) {
	var req setActiveRequest
	if !bindJSON(c, &req, false) {
		return
	}
	hist, err := h.snapshots.SetActive(c.Request.Context(), c.Param("id"), req.SnapshotID)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"history": hist})
}

type derivedRequest struct {
	DerivedState map[string]any `json:"derived_state"`
	ExternalRef  *string        `json:"external_ref"`
}

// PATCH /api/drafts/:id/snapshots/active/derived
func (h *SnapshotHandler) UpdateDerived(c *gin.Context) {
	var req derivedRequest
	if !bindJSON(c, &req, false) {
		return
	}
	hist, err := h.snapshots.UpdateDerived(c.Request.Context(), c.Param("id"), req.DerivedState, req.ExternalRef)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"history": hist})
}

// GET /api/drafts/:id/snapshots/:sid/export
func (h *SnapshotHandler) Export(c *gin.Context) {
	doc, err := h.snapshots.Export(c.Request.Context(), c.Param("id"), c.Param("sid"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	raw, err := doc.Marshal()
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+doc.Snapshot.ID+`.json"`)
	c.Data(http.StatusOK, "application/json", raw)
}

// POST /api/drafts/:id/snapshots/compare
func (h *SnapshotHandler) Compare(c *gin.Context) {
	var req services.CompareInput
	if !bindJSON(c, &req, false) {
		return
	}
	sum, err := h.snapshots.Compare(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"summary": sum})
}
