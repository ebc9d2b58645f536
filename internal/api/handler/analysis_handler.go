package handler

import (
	"log/slog"
	"net/http"

	"github.com/cuongbtq/pathogen-analysis/internal/api/dto"
	"github.com/cuongbtq/pathogen-analysis/internal/api/service"
	"github.com/gin-gonic/gin"
)

// GetAnalysis handles GET /api/v1/analysis
func (h *AnalysisHandler) GetAnalysis(c *gin.Context) {
	var query dto.GetAnalysisQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondInvalidQuery(c, err)
		return
	}

	job, err := h.service.GetAnalysis(c.Request.Context(), query.RequestID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewAnalysisJobDTO(job))
}

// CreateAnalysis handles POST /api/v1/analysis
// Validates the sample, classifies it and returns the verdict
func (h *AnalysisHandler) CreateAnalysis(c *gin.Context) {
	var query dto.CreateAnalysisQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondInvalidQuery(c, err)
		return
	}

	input := service.CreateAnalysisInput{
		PatientID: query.PatientID,
		LabID:     query.LabID,
		Urgent:    query.Urgent,
	}

	var body dto.CreateAnalysisRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		input.Image.BodyErr = err
	} else if body.Image != nil {
		input.Image.Present = true
		input.Image.Base64 = *body.Image
	}

	res, err := h.service.CreateAnalysis(c.Request.Context(), input)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.Debug("Analysis created",
		slog.String("request_id", res.ID),
		slog.String("status", string(res.Status)),
	)

	c.JSON(http.StatusCreated, dto.NewCreateAnalysisResponse(res))
}

// UpdateAnalysis handles PUT /api/v1/analysis
// Moves a job to another lab
func (h *AnalysisHandler) UpdateAnalysis(c *gin.Context) {
	var query dto.UpdateAnalysisQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondInvalidQuery(c, err)
		return
	}

	job, err := h.service.UpdateAnalysisLab(c.Request.Context(), query.RequestID, query.LabID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewAnalysisJobDTO(job))
}
