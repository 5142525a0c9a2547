package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/draftstudio-backend/internal/http/response"
	"github.com/yungbote/draftstudio-backend/internal/services"
)

type DraftHandler struct {
	drafts services.DraftService
}

func NewDraftHandler(drafts services.DraftService) *DraftHandler {
	return &DraftHandler{drafts: drafts}
}

// POST /api/drafts
func (h *DraftHandler) Create(c *gin.Context) {
	var req services.CreateDraftInput
	if !bindJSON(c, &req, false) {
		return
	}
	view, err := h.drafts.Create(c.Request.Context(), req)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"draft": view})
}

// GET /api/drafts
func (h *DraftHandler) List(c *gin.Context) {
	views, err := h.drafts.List(c.Request.Context())
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"drafts": views})
}

// GET /api/drafts/:id
func (h *DraftHandler) Get(c *gin.Context) {
	view, err := h.drafts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"draft": view})
}

// DELETE /api/drafts/:id
func (h *DraftHandler) Delete(c *gin.Context) {
	if err := h.drafts.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.RespondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type inputsRequest struct {
	Inputs map[string]any `json:"inputs"`
}

// PUT /api/drafts/:id/inputs
func (h *DraftHandler) UpdateInputs(c *gin.Context) {
	var req inputsRequest
	if !bindJSON(c, &req, false) {
		return
	}
	view, err := h.drafts.UpdateInputs(c.Request.Context(), c.Param("id"), req.Inputs)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"draft": view})
}

// POST /api/drafts/:id/generate
//
// Answers 202 while generation runs; clients poll the draft for the result.
func (h *DraftHandler) Generate(c *gin.Context) {
	var req services.GenerateInput
	if !bindJSON(c, &req, true) {
		return
	}
	view, err := h.drafts.Generate(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"draft": view})
}

type editRequest struct {
	Value any `json:"value"`
}

// PUT /api/drafts/:id/fields/:field
func (h *DraftHandler) Edit(c *gin.Context) {
	var req editRequest
	if !bindJSON(c, &req, false) {
		return
	}
	view, err := h.drafts.Edit(c.Request.Context(), c.Param("id"), c.Param("field"), req.Value)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"draft": view})
}

// DELETE /api/drafts/:id/fields/:field
func (h *DraftHandler) ResetField(c *gin.Context) {
	view, err := h.drafts.ResetField(c.Request.Context(), c.Param("id"), c.Param("field"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"draft": view})
}

// DELETE /api/drafts/:id/edits
func (h *DraftHandler) ResetAll(c *gin.Context) {
	view, err := h.drafts.ResetAll(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"draft": view})
}

// POST /api/drafts/:id/undo
func (h *DraftHandler) Undo(c *gin.Context) {
	view, err := h.drafts.Undo(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"draft": view})
}

// POST /api/drafts/:id/reset
func (h *DraftHandler) Reset(c *gin.Context) {
	var req inputsRequest
	if !bindJSON(c, &req, true) {
		return
	}
	view, err := h.drafts.Reset(c.Request.Context(), c.Param("id"), req.Inputs)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"draft": view})
}
