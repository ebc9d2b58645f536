package handler

import (
	"net/http"

	"github.com/cuongbtq/pathogen-analysis/internal/api/domain"
	"github.com/cuongbtq/pathogen-analysis/internal/api/dto"
	"github.com/cuongbtq/pathogen-analysis/internal/api/storage"
	"github.com/gin-gonic/gin"
)

// ListPatientResults handles GET /api/v1/patients/results
func (h *PatientHandler) ListPatientResults(c *gin.Context) {
	var query dto.PatientResultsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondInvalidQuery(c, err)
		return
	}

	jobs, err := h.service.ListPatientResults(c.Request.Context(), query.PatientID, storage.JobFilter{
		Start:  query.Start,
		End:    query.End,
		Result: domain.Result(query.Status),
		Urgent: query.Urgent,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewAnalysisJobDTOs(jobs))
}
