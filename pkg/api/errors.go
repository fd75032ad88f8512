package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/modelmux/pkg/config"
	"github.com/codeready-toolchain/modelmux/pkg/router"
)

// writeServiceError maps service-layer errors to HTTP error responses.
func writeServiceError(c *gin.Context, err error) {
	var validErr *config.ValidationError
	if errors.As(err, &validErr) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_failed",
			Message: validErr.Error(),
		})
		return
	}
	if errors.Is(err, router.ErrNoEligibleBackend) {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "no_eligible_backend",
			Message: "no configured backend satisfies the request requirements",
		})
		return
	}

	slog.Error("Unexpected service error", "error", err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "internal server error",
	})
}
