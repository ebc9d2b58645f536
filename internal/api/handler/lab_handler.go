package handler

import (
	"net/http"
	"strconv"

	"github.com/cuongbtq/pathogen-analysis/internal/api/domain"
	"github.com/cuongbtq/pathogen-analysis/internal/api/dto"
	"github.com/cuongbtq/pathogen-analysis/internal/api/storage"
	"github.com/gin-gonic/gin"
)

// TotalCountHeader carries the number of matching jobs before pagination.
const TotalCountHeader = "X-Total-Count"

// ListLabs handles GET /api/v1/labs
func (h *LabHandler) ListLabs(c *gin.Context) {
	labs, err := h.service.ListLabs(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, labs)
}

// ListLabResults handles GET /api/v1/labs/results/:lab_id
func (h *LabHandler) ListLabResults(c *gin.Context) {
	var query dto.LabResultsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondInvalidQuery(c, err)
		return
	}

	filter := storage.JobFilter{
		Start:     query.Start,
		End:       query.End,
		PatientID: query.PatientID,
		Result:    domain.Result(query.Status),
		Urgent:    query.Urgent,
	}
	page := storage.Page{Offset: query.Offset, Limit: query.Limit}

	jobs, total, err := h.service.ListLabResults(c.Request.Context(), c.Param("lab_id"), filter, page)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Header(TotalCountHeader, strconv.Itoa(total))
	c.JSON(http.StatusOK, dto.NewAnalysisJobDTOs(jobs))
}

// LabSummary handles GET /api/v1/labs/results/:lab_id/summary
func (h *LabHandler) LabSummary(c *gin.Context) {
	var query dto.LabSummaryQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondInvalidQuery(c, err)
		return
	}

	summary, err := h.service.LabSummary(c.Request.Context(), c.Param("lab_id"), storage.DateRange{
		Start: query.Start,
		End:   query.End,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewLabSummaryResponse(summary))
}
