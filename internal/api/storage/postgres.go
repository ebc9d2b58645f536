package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cuongbtq/pathogen-analysis/internal/api/domain"
	"github.com/cuongbtq/pathogen-analysis/internal/api/model"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

const uniqueViolation = pq.ErrorCode("23505")

const jobColumns = `request_id, patient_id, lab_id, image_path, result, urgent, created_at, updated_at`

// PostgresStorage implements Repository and LabStore on PostgreSQL.
type PostgresStorage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresStorage creates a new PostgresStorage instance
func NewPostgresStorage(db *sqlx.DB, logger *slog.Logger) *PostgresStorage {
	return &PostgresStorage{
		db:     db,
		logger: logger,
	}
}

// Migrate creates the tables and indexes if they do not exist.
func (s *PostgresStorage) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStorage) CreateJob(ctx context.Context, job *model.AnalysisJob) error {
	query := `
		INSERT INTO analysis_jobs (` + jobColumns + `)
		VALUES (
			:request_id, :patient_id, :lab_id, :image_path,
			:result, :urgent, :created_at, :updated_at
		)
	`

	if _, err := s.db.NamedExecContext(ctx, query, job); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", domain.ErrJobConflict, job.RequestID)
		}
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

func (s *PostgresStorage) GetJob(ctx context.Context, requestID string) (*model.AnalysisJob, error) {
	query := `SELECT ` + jobColumns + ` FROM analysis_jobs WHERE request_id = $1`

	var job model.AnalysisJob
	if err := s.db.GetContext(ctx, &job, query, requestID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

func (s *PostgresStorage) UpdateJobResult(ctx context.Context, requestID string, result domain.Result, updatedAt string) error {
	query := `
		UPDATE analysis_jobs
		SET result = $1,
		    updated_at = $2
		WHERE request_id = $3
	`

	res, err := s.db.ExecContext(ctx, query, result, updatedAt, requestID)
	if err != nil {
		return fmt.Errorf("failed to update job result: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrJobNotFound
	}

	s.logger.Debug("Job result updated",
		slog.String("request_id", requestID),
		slog.String("result", string(result)),
	)

	return nil
}

func (s *PostgresStorage) UpdateJobLab(ctx context.Context, requestID, labID, updatedAt string) (*model.AnalysisJob, error) {
	query := `
		UPDATE analysis_jobs
		SET lab_id = $1,
		    updated_at = $2
		WHERE request_id = $3
		RETURNING ` + jobColumns

	var job model.AnalysisJob
	if err := s.db.GetContext(ctx, &job, query, labID, updatedAt, requestID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to update job lab: %w", err)
	}

	return &job, nil
}

// conditions accumulates WHERE clauses with positional arguments.
type conditions struct {
	clauses []string
	args    []interface{}
}

// add appends clause, which must contain one %d for the placeholder index.
func (c *conditions) add(clause string, arg interface{}) {
	c.args = append(c.args, arg)
	c.clauses = append(c.clauses, fmt.Sprintf(clause, len(c.args)))
}

func (c *conditions) addDates(start, end string) {
	if start != "" {
		c.add("created_at >= $%d", start)
	}
	if end != "" {
		c.add("created_at <= $%d", end)
	}
}

func (c *conditions) addFilter(filter JobFilter) {
	c.addDates(filter.Start, filter.End)
	if filter.PatientID != "" {
		c.add("patient_id = $%d", filter.PatientID)
	}
	if filter.Result != "" {
		c.add("result = $%d", filter.Result)
	}
	if filter.Urgent != nil {
		c.add("urgent = $%d", *filter.Urgent)
	}
}

func (c *conditions) where() string {
	if len(c.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.clauses, " AND ")
}

func (s *PostgresStorage) ListJobsByLab(ctx context.Context, labID string, filter JobFilter, page Page) ([]model.AnalysisJob, int, error) {
	var cond conditions
	cond.add("lab_id = $%d", labID)
	cond.addFilter(filter)

	var total int
	countQuery := `SELECT COUNT(*) FROM analysis_jobs` + cond.where()
	if err := s.db.GetContext(ctx, &total, countQuery, cond.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count jobs: %w", err)
	}

	query := `SELECT ` + jobColumns + ` FROM analysis_jobs` + cond.where() +
		` ORDER BY created_at, request_id`
	args := cond.args

	if page.Offset > 0 {
		args = append(args, page.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	if page.Limit > 0 {
		args = append(args, page.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	jobs := []model.AnalysisJob{}
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, total, nil
}

func (s *PostgresStorage) ListJobsByPatient(ctx context.Context, patientID string, filter JobFilter) ([]model.AnalysisJob, error) {
	var cond conditions
	cond.add("patient_id = $%d", patientID)
	filter.PatientID = ""
	cond.addFilter(filter)

	query := `SELECT ` + jobColumns + ` FROM analysis_jobs` + cond.where() +
		` ORDER BY created_at, request_id`

	jobs := []model.AnalysisJob{}
	if err := s.db.SelectContext(ctx, &jobs, query, cond.args...); err != nil {
		return nil, fmt.Errorf("failed to list patient jobs: %w", err)
	}

	return jobs, nil
}

func (s *PostgresStorage) SummarizeLab(ctx context.Context, labID string, dates DateRange) (domain.ResultCounts, error) {
	var cond conditions
	cond.add("lab_id = $%d", labID)
	cond.addDates(dates.Start, dates.End)

	query := `
		SELECT
			COUNT(*) FILTER (WHERE result = 'pending') AS pending,
			COUNT(*) FILTER (WHERE result = 'covid')   AS covid,
			COUNT(*) FILTER (WHERE result = 'h5n1')    AS h5n1,
			COUNT(*) FILTER (WHERE result = 'healthy') AS healthy,
			COUNT(*) FILTER (WHERE result = 'failed')  AS failed,
			COUNT(*) FILTER (WHERE urgent)             AS urgent
		FROM analysis_jobs` + cond.where()

	var counts domain.ResultCounts
	if err := s.db.GetContext(ctx, &counts, query, cond.args...); err != nil {
		return domain.ResultCounts{}, fmt.Errorf("failed to summarize lab: %w", err)
	}

	return counts, nil
}

func (s *PostgresStorage) LabExists(ctx context.Context, labID string) (bool, error) {
	var exists bool
	if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM labs WHERE lab_id = $1)`, labID); err != nil {
		return false, fmt.Errorf("failed to check lab: %w", err)
	}
	return exists, nil
}

func (s *PostgresStorage) ListLabs(ctx context.Context) ([]string, error) {
	labs := []string{}
	if err := s.db.SelectContext(ctx, &labs, `SELECT lab_id FROM labs ORDER BY lab_id`); err != nil {
		return nil, fmt.Errorf("failed to list labs: %w", err)
	}
	return labs, nil
}

// AddLabs inserts the labs that are not present yet in one transaction and
// returns how many were added.
func (s *PostgresStorage) AddLabs(ctx context.Context, labIDs []string) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	added := 0
	for _, labID := range labIDs {
		res, err := tx.ExecContext(ctx, `INSERT INTO labs (lab_id) VALUES ($1) ON CONFLICT (lab_id) DO NOTHING`, labID)
		if err != nil {
			return 0, fmt.Errorf("failed to insert lab %q: %w", labID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to get rows affected: %w", err)
		}
		added += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit labs: %w", err)
	}

	return added, nil
}
