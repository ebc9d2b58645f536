package dto

import (
	"github.com/cuongbtq/pathogen-analysis/internal/api/domain"
	"github.com/cuongbtq/pathogen-analysis/internal/api/model"
	"github.com/cuongbtq/pathogen-analysis/internal/api/service"
)

// CreateAnalysisRequest is the POST /analysis body. Image is nil when the
// field is absent or null.
type CreateAnalysisRequest struct {
	Image *string `json:"image"`
}

type CreateAnalysisQuery struct {
	PatientID string `form:"patient_id"`
	LabID     string `form:"lab_id"`
	Urgent    bool   `form:"urgent"`
}

type GetAnalysisQuery struct {
	RequestID string `form:"request_id" binding:"required"`
}

type UpdateAnalysisQuery struct {
	RequestID string `form:"request_id" binding:"required"`
	LabID     string `form:"lab_id"`
}

type LabResultsQuery struct {
	Limit     int    `form:"limit,default=100" binding:"min=1,max=1000"`
	Offset    int    `form:"offset,default=0" binding:"min=0"`
	Start     string `form:"start"`
	End       string `form:"end"`
	PatientID string `form:"patient_id"`
	Status    string `form:"status"`
	Urgent    *bool  `form:"urgent"`
}

type LabSummaryQuery struct {
	Start string `form:"start"`
	End   string `form:"end"`
}

type PatientResultsQuery struct {
	PatientID string `form:"patient_id"`
	Start     string `form:"start"`
	End       string `form:"end"`
	Status    string `form:"status"`
	Urgent    *bool  `form:"urgent"`
}

type CreateAnalysisResponse struct {
	ID        string        `json:"id"`
	CreatedAt string        `json:"created_at"`
	UpdatedAt string        `json:"updated_at"`
	Status    domain.Result `json:"status"`
}

type AnalysisJobDTO struct {
	RequestID string        `json:"request_id"`
	LabID     string        `json:"lab_id"`
	PatientID string        `json:"patient_id"`
	Result    domain.Result `json:"result"`
	Urgent    bool          `json:"urgent"`
	CreatedAt string        `json:"created_at"`
	UpdatedAt string        `json:"updated_at"`
}

type LabSummaryResponse struct {
	LabID       string `json:"lab_id"`
	Pending     int    `json:"pending"`
	Covid       int    `json:"covid"`
	H5N1        int    `json:"h5n1"`
	Healthy     int    `json:"healthy"`
	Failed      int    `json:"failed"`
	Urgent      int    `json:"urgent"`
	GeneratedAt string `json:"generated_at"`
}

type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func NewCreateAnalysisResponse(res *service.CreateAnalysisResult) CreateAnalysisResponse {
	return CreateAnalysisResponse{
		ID:        res.ID,
		CreatedAt: res.CreatedAt,
		UpdatedAt: res.UpdatedAt,
		Status:    res.Status,
	}
}

func NewAnalysisJobDTO(job *model.AnalysisJob) AnalysisJobDTO {
	return AnalysisJobDTO{
		RequestID: job.RequestID,
		LabID:     job.LabID,
		PatientID: job.PatientID,
		Result:    job.Result,
		Urgent:    job.Urgent,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
}

// NewAnalysisJobDTOs converts a listing; the result is never nil so it
// encodes as [] rather than null.
func NewAnalysisJobDTOs(jobs []model.AnalysisJob) []AnalysisJobDTO {
	out := make([]AnalysisJobDTO, len(jobs))
	for i := range jobs {
		out[i] = NewAnalysisJobDTO(&jobs[i])
	}
	return out
}

func NewLabSummaryResponse(s *service.LabSummary) LabSummaryResponse {
	return LabSummaryResponse{
		LabID:       s.LabID,
		Pending:     s.Counts.Pending,
		Covid:       s.Counts.Covid,
		H5N1:        s.Counts.H5N1,
		Healthy:     s.Counts.Healthy,
		Failed:      s.Counts.Failed,
		Urgent:      s.Counts.Urgent,
		GeneratedAt: s.GeneratedAt,
	}
}
