package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/cuongbtq/pathogen-analysis/internal/api/domain"
	"github.com/cuongbtq/pathogen-analysis/internal/api/events"
	"github.com/cuongbtq/pathogen-analysis/internal/api/model"
	"github.com/cuongbtq/pathogen-analysis/internal/api/storage"
	"github.com/cuongbtq/pathogen-analysis/internal/api/validation"
	"github.com/google/uuid"
)

// ImageSaver persists the decoded sample image of a job.
type ImageSaver interface {
	Save(jobID string, data []byte) (string, error)
}

// Classifier runs the classification engine. It always yields a verdict.
type Classifier interface {
	Invoke(ctx context.Context, imagePath, jobID string) domain.Result
}

// Archiver mirrors local files to object storage.
type Archiver interface {
	Upload(ctx context.Context, localPath, key string) (string, error)
}

// Dependencies wires an AnalysisService. Archive and Publisher are optional.
type Dependencies struct {
	Jobs      storage.Repository
	Labs      storage.LabStore
	Images    ImageSaver
	Engine    Classifier
	Archive   Archiver
	Publisher events.ResultPublisher
	Clock     Clock
	Logger    *slog.Logger
	NewID     func() string

	// ArchiveTimeout bounds each archive upload. Zero means DefaultArchiveTimeout.
	ArchiveTimeout time.Duration
}

const DefaultArchiveTimeout = 10 * time.Second

// AnalysisService runs the analysis job lifecycle: validate, store the
// image, record a pending job, classify, record the verdict.
type AnalysisService struct {
	jobs      storage.Repository
	labs      storage.LabStore
	images    ImageSaver
	engine    Classifier
	archive   Archiver
	publisher events.ResultPublisher
	clock     Clock
	logger    *slog.Logger
	newID     func() string

	archiveTimeout time.Duration
}

// NewAnalysisService creates a new AnalysisService instance
func NewAnalysisService(deps Dependencies) *AnalysisService {
	s := &AnalysisService{
		jobs:      deps.Jobs,
		labs:      deps.Labs,
		images:    deps.Images,
		engine:    deps.Engine,
		archive:   deps.Archive,
		publisher: deps.Publisher,
		clock:     deps.Clock,
		logger:    deps.Logger,
		newID:     deps.NewID,

		archiveTimeout: deps.ArchiveTimeout,
	}
	if s.archiveTimeout <= 0 {
		s.archiveTimeout = DefaultArchiveTimeout
	}
	if s.publisher == nil {
		s.publisher = events.NopPublisher{}
	}
	if s.clock == nil {
		s.clock = SystemClock{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// ImageField is the image part of a submission. Present is false when the
// body had no image; BodyErr is set when the body could not be read at all.
type ImageField struct {
	Present bool
	Base64  string
	BodyErr error
}

// CreateAnalysisInput is one sample submission.
type CreateAnalysisInput struct {
	PatientID string
	LabID     string
	Urgent    bool
	Image     ImageField
}

// CreateAnalysisResult is returned once the verdict is stored.
type CreateAnalysisResult struct {
	ID        string
	CreatedAt string
	UpdatedAt string
	Status    domain.Result
}

// LabSummary holds the per-result counts of a lab.
type LabSummary struct {
	LabID       string
	Counts      domain.ResultCounts
	GeneratedAt string
}

func (s *AnalysisService) now() string {
	return domain.FormatTimestamp(s.clock.Now())
}

// CreateAnalysis validates the submission, records a pending job, runs the
// engine and records its verdict. Validation failures return a
// *ValidationError and leave no job behind. Failures after the pending job is
// stored leave it in place.
func (s *AnalysisService) CreateAnalysis(ctx context.Context, in CreateAnalysisInput) (*CreateAnalysisResult, error) {
	data, err := s.validateSubmission(ctx, in)
	if err != nil {
		return nil, err
	}

	id := s.newID()
	logger := s.logger.With(slog.String("request_id", id))

	imagePath, err := s.images.Save(id, data)
	if err != nil {
		return nil, fmt.Errorf("failed to save image: %w", err)
	}

	createdAt := s.now()
	job := &model.AnalysisJob{
		RequestID: id,
		PatientID: in.PatientID,
		LabID:     in.LabID,
		ImagePath: imagePath,
		Result:    domain.ResultPending,
		Urgent:    in.Urgent,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	logger.Info("Analysis job created",
		slog.String("patient_id", in.PatientID),
		slog.String("lab_id", in.LabID),
		slog.Bool("urgent", in.Urgent),
	)

	// The pending row is committed; a client hanging up must not stop the
	// engine or keep the verdict from being stored.
	ctx = context.WithoutCancel(ctx)

	result := s.engine.Invoke(ctx, imagePath, id)

	updatedAt := s.now()
	if err := s.jobs.UpdateJobResult(ctx, id, result, updatedAt); err != nil {
		return nil, fmt.Errorf("failed to store result: %w", err)
	}
	job.Result = result
	job.UpdatedAt = updatedAt

	logger.Info("Analysis job completed", slog.String("result", string(result)))

	s.archiveFile(ctx, logger, imagePath, path.Join("images", id+".jpg"))

	if err := s.publisher.PublishResult(ctx, job); err != nil {
		logger.Warn("Failed to publish result event", slog.Any("error", err))
	}

	return &CreateAnalysisResult{
		ID:        id,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
		Status:    result,
	}, nil
}

// validateSubmission runs every check that must pass before anything is
// written and returns the decoded image.
func (s *AnalysisService) validateSubmission(ctx context.Context, in CreateAnalysisInput) ([]byte, error) {
	if !validation.ValidatePatientID(in.PatientID) {
		return nil, newValidationError(CodeInvalidPatientID, "Patient ID must be an 11-digit Medicare number")
	}

	if err := s.checkLab(ctx, in.LabID); err != nil {
		return nil, err
	}

	if in.Image.BodyErr != nil {
		return nil, newValidationError(CodeInvalidImage, fmt.Sprintf("Invalid request body: %v", in.Image.BodyErr))
	}
	if !in.Image.Present {
		return nil, newValidationError(CodeNoImage, "No image provided in the request")
	}

	data, err := DecodeImage(in.Image.Base64)
	if err != nil {
		return nil, newValidationError(CodeInvalidImage, fmt.Sprintf("Invalid base64 encoding: %v", err))
	}

	if err := validation.ValidateImage(data); err != nil {
		var imgErr *validation.ImageError
		if errors.As(err, &imgErr) && imgErr.IsSizeError() {
			return nil, newValidationError(CodeImageSize, err.Error())
		}
		return nil, newValidationError(CodeInvalidImage, err.Error())
	}

	return data, nil
}

func (s *AnalysisService) checkLab(ctx context.Context, labID string) error {
	ok, err := validation.ValidateLabID(ctx, labID, s.labs)
	if err != nil {
		return err
	}
	if !ok {
		return newValidationError(CodeInvalidLabID, "Invalid lab identifier")
	}
	return nil
}

// DecodeImage decodes standard base64, padded or not, ignoring surrounding
// whitespace and line breaks.
func DecodeImage(encoded string) ([]byte, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, encoded)

	if strings.HasSuffix(cleaned, "=") || len(cleaned)%4 == 0 {
		return base64.StdEncoding.DecodeString(cleaned)
	}
	return base64.RawStdEncoding.DecodeString(cleaned)
}

func (s *AnalysisService) archiveFile(ctx context.Context, logger *slog.Logger, localPath, key string) {
	if s.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.archiveTimeout)
	defer cancel()

	url, err := s.archive.Upload(ctx, localPath, key)
	if err != nil {
		logger.Warn("Failed to archive file", slog.String("key", key), slog.Any("error", err))
		return
	}
	logger.Debug("File archived", slog.String("url", url))
}

// GetAnalysis returns the job with requestID or domain.ErrJobNotFound.
func (s *AnalysisService) GetAnalysis(ctx context.Context, requestID string) (*model.AnalysisJob, error) {
	return s.jobs.GetJob(ctx, requestID)
}

// UpdateAnalysisLab moves a job to another lab. The lab is validated first,
// so an unknown lab is reported even when the job does not exist.
func (s *AnalysisService) UpdateAnalysisLab(ctx context.Context, requestID, labID string) (*model.AnalysisJob, error) {
	if err := s.checkLab(ctx, labID); err != nil {
		return nil, err
	}

	job, err := s.jobs.UpdateJobLab(ctx, requestID, labID, s.now())
	if err != nil {
		return nil, err
	}

	s.logger.Info("Analysis job reassigned",
		slog.String("request_id", requestID),
		slog.String("lab_id", labID),
	)

	return job, nil
}

// ListLabs returns every known lab id.
func (s *AnalysisService) ListLabs(ctx context.Context) ([]string, error) {
	return s.labs.ListLabs(ctx)
}

func (s *AnalysisService) requireLab(ctx context.Context, labID string) error {
	ok, err := validation.ValidateLabID(ctx, labID, s.labs)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrLabNotFound
	}
	return nil
}

// ListLabResults returns one page of a lab's jobs and the unpaginated total.
func (s *AnalysisService) ListLabResults(ctx context.Context, labID string, filter storage.JobFilter, page storage.Page) ([]model.AnalysisJob, int, error) {
	if err := s.requireLab(ctx, labID); err != nil {
		return nil, 0, err
	}
	return s.jobs.ListJobsByLab(ctx, labID, filter, page)
}

// LabSummary counts a lab's jobs per result within dates.
func (s *AnalysisService) LabSummary(ctx context.Context, labID string, dates storage.DateRange) (*LabSummary, error) {
	if err := s.requireLab(ctx, labID); err != nil {
		return nil, err
	}

	counts, err := s.jobs.SummarizeLab(ctx, labID, dates)
	if err != nil {
		return nil, err
	}

	return &LabSummary{
		LabID:       labID,
		Counts:      counts,
		GeneratedAt: s.now(),
	}, nil
}

// ListPatientResults returns every job of a patient. An unknown patient
// yields an empty list.
func (s *AnalysisService) ListPatientResults(ctx context.Context, patientID string, filter storage.JobFilter) ([]model.AnalysisJob, error) {
	if !validation.ValidatePatientID(patientID) {
		return nil, newValidationError(CodeInvalidPatientID, "Invalid patient identifier")
	}
	return s.jobs.ListJobsByPatient(ctx, patientID, filter)
}
