package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/pathogen-analysis/internal/api/service"
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger  *slog.Logger
	Service *service.AnalysisService
	// HealthCheck is optional. When set, /health reports unhealthy if it fails.
	HealthCheck func(ctx context.Context) error
}

// AnalysisHandler handles analysis job requests
type AnalysisHandler struct {
	logger  *slog.Logger
	service *service.AnalysisService
}

// NewAnalysisHandler creates a new AnalysisHandler instance
func NewAnalysisHandler(deps *Dependencies) *AnalysisHandler {
	return &AnalysisHandler{
		logger:  deps.Logger,
		service: deps.Service,
	}
}

// LabHandler handles lab listing and reporting requests
type LabHandler struct {
	logger  *slog.Logger
	service *service.AnalysisService
}

func NewLabHandler(deps *Dependencies) *LabHandler {
	return &LabHandler{
		logger:  deps.Logger,
		service: deps.Service,
	}
}

// PatientHandler handles patient history requests
type PatientHandler struct {
	logger  *slog.Logger
	service *service.AnalysisService
}

func NewPatientHandler(deps *Dependencies) *PatientHandler {
	return &PatientHandler{
		logger:  deps.Logger,
		service: deps.Service,
	}
}
