package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/draftstudio-backend/internal/http/middleware"
	"github.com/yungbote/draftstudio-backend/internal/http/response"
	"github.com/yungbote/draftstudio-backend/internal/services"
)

type HandoffHandler struct {
	handoffs services.HandoffService
}

func NewHandoffHandler(handoffs services.HandoffService) *HandoffHandler {
	return &HandoffHandler{handoffs: handoffs}
}

type sendRequest struct {
	services.SendHandoffInput
	TTLSeconds int64 `json:"ttl_seconds"`
}

func channelRef(c *gin.Context) services.ChannelRef {
	return services.ChannelRef{
		Session:     middleware.SessionID(c),
		Source:      c.Param("source"),
		Destination: c.Param("destination"),
	}
}

// POST /api/handoffs
func (h *HandoffHandler) Send(c *gin.Context) {
	var req sendRequest
	if !bindJSON(c, &req, false) {
		return
	}
	in := req.SendHandoffInput
	in.Session = middleware.SessionID(c)
	// Zero selects the default TTL; negative values are rejected downstream.
	in.TTL = time.Duration(req.TTLSeconds) * time.Second
	env, err := h.handoffs.Send(c.Request.Context(), in)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"envelope": env})
}

// GET /api/handoffs/:source/:destination?target=&scope=
func (h *HandoffHandler) Plan(c *gin.Context) {
	plan, err := h.handoffs.Plan(c.Request.Context(), channelRef(c), c.Query("scope"), c.Query("target"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"plan": plan})
}

type applyRequest struct {
	TargetDraftID string `json:"target_draft_id" binding:"required"`
	Scope         string `json:"scope"`
}

// POST /api/handoffs/:source/:destination/apply
func (h *HandoffHandler) Apply(c *gin.Context) {
	var req applyRequest
	if !bindJSON(c, &req, false) {
		return
	}
	plan, view, err := h.handoffs.Apply(c.Request.Context(), channelRef(c), req.Scope, req.TargetDraftID)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"plan": plan, "draft": view})
}

// DELETE /api/handoffs/:source/:destination
func (h *HandoffHandler) Dismiss(c *gin.Context) {
	if err := h.handoffs.Dismiss(c.Request.Context(), channelRef(c)); err != nil {
		response.RespondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
