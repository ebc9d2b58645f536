package storage

import (
	"context"

	"github.com/cuongbtq/pathogen-analysis/internal/api/domain"
	"github.com/cuongbtq/pathogen-analysis/internal/api/model"
)

// JobFilter holds the optional predicates of a job listing. Zero values
// disable a predicate; all set predicates must hold.
type JobFilter struct {
	// Start and End bound created_at inclusively by string comparison
	Start     string
	End       string
	PatientID string
	Result    domain.Result
	Urgent    *bool
}

// Page selects a window of a listing.
type Page struct {
	Offset int
	Limit  int
}

// DateRange bounds created_at inclusively; empty ends are open.
type DateRange struct {
	Start string
	End   string
}

// Repository stores analysis jobs.
type Repository interface {
	CreateJob(ctx context.Context, job *model.AnalysisJob) error
	GetJob(ctx context.Context, requestID string) (*model.AnalysisJob, error)
	UpdateJobResult(ctx context.Context, requestID string, result domain.Result, updatedAt string) error
	UpdateJobLab(ctx context.Context, requestID, labID, updatedAt string) (*model.AnalysisJob, error)
	ListJobsByLab(ctx context.Context, labID string, filter JobFilter, page Page) ([]model.AnalysisJob, int, error)
	ListJobsByPatient(ctx context.Context, patientID string, filter JobFilter) ([]model.AnalysisJob, error)
	SummarizeLab(ctx context.Context, labID string, dates DateRange) (domain.ResultCounts, error)
}

// LabStore holds the lab reference set.
type LabStore interface {
	LabExists(ctx context.Context, labID string) (bool, error)
	ListLabs(ctx context.Context) ([]string, error)
	AddLabs(ctx context.Context, labIDs []string) (int, error)
}
