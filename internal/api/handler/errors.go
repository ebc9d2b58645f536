package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/pathogen-analysis/internal/api/domain"
	"github.com/cuongbtq/pathogen-analysis/internal/api/dto"
	"github.com/cuongbtq/pathogen-analysis/internal/api/service"
	"github.com/gin-gonic/gin"
)

const (
	codeNotFound     = "not_found"
	codeInvalidQuery = "invalid_query"
	codeUnknownError = "unknown_error"
)

// respondError maps service errors to HTTP responses.
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	var vErr *service.ValidationError
	switch {
	case errors.As(err, &vErr):
		logger.Info("Request rejected",
			slog.String("code", vErr.Code),
			slog.String("detail", vErr.Detail),
		)
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: vErr.Code, Detail: vErr.Detail})
	case errors.Is(err, domain.ErrJobNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: codeNotFound, Detail: "Analysis request not found"})
	case errors.Is(err, domain.ErrLabNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: codeNotFound, Detail: "Lab identifier does not correspond to a known lab"})
	default:
		logger.Error("Request failed",
			slog.String("path", c.Request.URL.Path),
			slog.Any("error", err),
		)
		c.Error(err)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: codeUnknownError, Detail: err.Error()})
	}
}

func respondInvalidQuery(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: codeInvalidQuery, Detail: err.Error()})
}
