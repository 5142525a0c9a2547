package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/draftstudio-backend/internal/http/response"
)

// bindJSON decodes the body into dst. An empty body is accepted when
// optional is set and leaves dst at its zero value.
func bindJSON(c *gin.Context, dst any, optional bool) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		response.RespondError(c, http.StatusRequestEntityTooLarge, "request_too_large", err)
		return false
	}
	response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
	return false
}
