package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/sensei-scan/internal/api/dto"
	"github.com/cuongbtq/sensei-scan/internal/scan/domain"
	"github.com/gin-gonic/gin"
)

// Error codes returned in the error body
const (
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeInvalidURL         = "INVALID_URL"
	CodeConsentRequired    = "CONSENT_REQUIRED"
	CodeJobNotFound        = "JOB_NOT_FOUND"
	CodeResultNotFound     = "RESULT_NOT_FOUND"
	CodePersistenceFailure = "PERSISTENCE_FAILURE"
	CodeInternal           = "INTERNAL_ERROR"
)

var errorMapping = []struct {
	target error
	status int
	code   string
}{
	{domain.ErrInvalidURL, http.StatusBadRequest, CodeInvalidURL},
	{domain.ErrConsentRequired, http.StatusBadRequest, CodeConsentRequired},
	{domain.ErrJobNotFound, http.StatusNotFound, CodeJobNotFound},
	{domain.ErrResultNotFound, http.StatusNotFound, CodeResultNotFound},
	{domain.ErrPersistence, http.StatusServiceUnavailable, CodePersistenceFailure},
}

// respondError writes the mapped status and code for err
func (h *ScanHandler) respondError(c *gin.Context, err error) {
	for _, m := range errorMapping {
		if errors.Is(err, m.target) {
			if m.status >= http.StatusInternalServerError {
				h.logger.Error("Request failed",
					slog.String("path", c.Request.URL.Path),
					slog.String("error", err.Error()),
				)
			}
			c.JSON(m.status, dto.ErrorResponse{Error: err.Error(), Code: m.code})
			return
		}
	}

	h.logger.Error("Unexpected error",
		slog.String("path", c.Request.URL.Path),
		slog.String("error", err.Error()),
	)
	c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal error", Code: CodeInternal})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: message, Code: CodeInvalidRequest})
}
