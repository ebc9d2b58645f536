package storage

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/cuongbtq/pathogen-analysis/internal/api/domain"
	"github.com/cuongbtq/pathogen-analysis/internal/api/model"
	"github.com/cuongbtq/pathogen-analysis/shared/logger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type store interface {
	Repository
	LabStore
}

func boolPtr(b bool) *bool { return &b }

func job(id, lab, patient string, result domain.Result, urgent bool, createdAt string) *model.AnalysisJob {
	return &model.AnalysisJob{
		RequestID: id,
		PatientID: patient,
		LabID:     lab,
		ImagePath: "uploads/" + id + ".jpg",
		Result:    result,
		Urgent:    urgent,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

// seed creates five QML jobs and one SNP job on consecutive days.
func seed(t *testing.T, s store) {
	t.Helper()
	ctx := context.Background()
	jobs := []*model.AnalysisJob{
		job("a", "QML", "11111111111", domain.ResultCovid, true, "2025-03-01T10:00:00.000000Z"),
		job("b", "QML", "11111111111", domain.ResultHealthy, false, "2025-03-02T10:00:00.000000Z"),
		job("c", "QML", "22222222222", domain.ResultPending, false, "2025-03-03T10:00:00.000000Z"),
		job("d", "QML", "22222222222", domain.ResultFailed, true, "2025-03-04T10:00:00.000000Z"),
		job("e", "QML", "33333333333", domain.ResultH5N1, false, "2025-03-05T10:00:00.000000Z"),
		job("f", "SNP", "11111111111", domain.ResultCovid, true, "2025-03-06T10:00:00.000000Z"),
	}
	for _, j := range jobs {
		require.NoError(t, s.CreateJob(ctx, j))
	}
}

func ids(jobs []model.AnalysisJob) []string {
	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.RequestID
	}
	return out
}

func runStoreSuite(t *testing.T, newStore func(t *testing.T) store) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		s := newStore(t)
		want := job("x", "QML", "12345678901", domain.ResultPending, true, "2025-01-01T00:00:00.000000Z")
		require.NoError(t, s.CreateJob(ctx, want))

		got, err := s.GetJob(ctx, "x")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("duplicate id conflicts", func(t *testing.T) {
		s := newStore(t)
		j := job("dup", "QML", "12345678901", domain.ResultPending, false, "2025-01-01T00:00:00.000000Z")
		require.NoError(t, s.CreateJob(ctx, j))

		err := s.CreateJob(ctx, j)
		assert.ErrorIs(t, err, domain.ErrJobConflict)
	})

	t.Run("get unknown", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetJob(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrJobNotFound)
	})

	t.Run("update result", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateJob(ctx, job("r", "QML", "12345678901", domain.ResultPending, false, "2025-01-01T00:00:00.000000Z")))

		require.NoError(t, s.UpdateJobResult(ctx, "r", domain.ResultH5N1, "2025-01-01T00:00:05.000000Z"))

		got, err := s.GetJob(ctx, "r")
		require.NoError(t, err)
		assert.Equal(t, domain.ResultH5N1, got.Result)
		assert.Equal(t, "2025-01-01T00:00:00.000000Z", got.CreatedAt)
		assert.Equal(t, "2025-01-01T00:00:05.000000Z", got.UpdatedAt)

		assert.ErrorIs(t, s.UpdateJobResult(ctx, "missing", domain.ResultFailed, "x"), domain.ErrJobNotFound)
	})

	t.Run("update lab keeps result", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.CreateJob(ctx, job("l", "QML", "12345678901", domain.ResultCovid, true, "2025-01-01T00:00:00.000000Z")))

		got, err := s.UpdateJobLab(ctx, "l", "SNP", "2025-01-02T00:00:00.000000Z")
		require.NoError(t, err)
		assert.Equal(t, "SNP", got.LabID)
		assert.Equal(t, domain.ResultCovid, got.Result)
		assert.Equal(t, "12345678901", got.PatientID)
		assert.True(t, got.Urgent)
		assert.Equal(t, "2025-01-01T00:00:00.000000Z", got.CreatedAt)
		assert.Equal(t, "2025-01-02T00:00:00.000000Z", got.UpdatedAt)

		_, err = s.UpdateJobLab(ctx, "missing", "SNP", "x")
		assert.ErrorIs(t, err, domain.ErrJobNotFound)
	})

	t.Run("list by lab filters", func(t *testing.T) {
		s := newStore(t)
		seed(t, s)

		tests := []struct {
			name   string
			filter JobFilter
			want   []string
		}{
			{"no filter", JobFilter{}, []string{"a", "b", "c", "d", "e"}},
			{"start bound inclusive", JobFilter{Start: "2025-03-03T10:00:00.000000Z"}, []string{"c", "d", "e"}},
			{"end bound inclusive", JobFilter{End: "2025-03-02T10:00:00.000000Z"}, []string{"a", "b"}},
			{"date only bounds", JobFilter{Start: "2025-03-02", End: "2025-03-04"}, []string{"b", "c"}},
			{"patient", JobFilter{PatientID: "22222222222"}, []string{"c", "d"}},
			{"pending only", JobFilter{Result: domain.ResultPending}, []string{"c"}},
			{"urgent", JobFilter{Urgent: boolPtr(true)}, []string{"a", "d"}},
			{"not urgent", JobFilter{Urgent: boolPtr(false)}, []string{"b", "c", "e"}},
			{"combined", JobFilter{PatientID: "11111111111", Urgent: boolPtr(true)}, []string{"a"}},
			{"no match", JobFilter{Result: domain.ResultH5N1, Urgent: boolPtr(true)}, []string{}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				jobs, total, err := s.ListJobsByLab(ctx, "QML", tt.filter, Page{})
				require.NoError(t, err)
				assert.Equal(t, tt.want, ids(jobs))
				assert.Equal(t, len(tt.want), total)
			})
		}
	})

	t.Run("list by lab pagination", func(t *testing.T) {
		s := newStore(t)
		seed(t, s)

		jobs, total, err := s.ListJobsByLab(ctx, "QML", JobFilter{}, Page{Offset: 1, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "c"}, ids(jobs))
		assert.Equal(t, 5, total)

		jobs, total, err = s.ListJobsByLab(ctx, "QML", JobFilter{}, Page{Offset: 10, Limit: 2})
		require.NoError(t, err)
		assert.Empty(t, jobs)
		assert.NotNil(t, jobs)
		assert.Equal(t, 5, total)
	})

	t.Run("list by lab with no jobs", func(t *testing.T) {
		s := newStore(t)
		jobs, total, err := s.ListJobsByLab(ctx, "EMPTY", JobFilter{}, Page{Limit: 100})
		require.NoError(t, err)
		assert.NotNil(t, jobs)
		assert.Empty(t, jobs)
		assert.Zero(t, total)
	})

	t.Run("list by patient", func(t *testing.T) {
		s := newStore(t)
		seed(t, s)

		jobs, err := s.ListJobsByPatient(ctx, "11111111111", JobFilter{})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "f"}, ids(jobs))

		jobs, err = s.ListJobsByPatient(ctx, "11111111111", JobFilter{Result: domain.ResultCovid, Start: "2025-03-02"})
		require.NoError(t, err)
		assert.Equal(t, []string{"f"}, ids(jobs))

		jobs, err = s.ListJobsByPatient(ctx, "99999999999", JobFilter{})
		require.NoError(t, err)
		assert.NotNil(t, jobs)
		assert.Empty(t, jobs)
	})

	t.Run("summarize lab", func(t *testing.T) {
		s := newStore(t)
		seed(t, s)

		counts, err := s.SummarizeLab(ctx, "QML", DateRange{})
		require.NoError(t, err)
		assert.Equal(t, domain.ResultCounts{Pending: 1, Covid: 1, H5N1: 1, Healthy: 1, Failed: 1, Urgent: 2}, counts)

		counts, err = s.SummarizeLab(ctx, "QML", DateRange{Start: "2025-03-03", End: "2025-03-04T23:59:59Z"})
		require.NoError(t, err)
		assert.Equal(t, domain.ResultCounts{Pending: 1, Failed: 1, Urgent: 1}, counts)

		counts, err = s.SummarizeLab(ctx, "NONE", DateRange{})
		require.NoError(t, err)
		assert.Equal(t, domain.ResultCounts{}, counts)
	})

	t.Run("summary matches per-result listings", func(t *testing.T) {
		s := newStore(t)
		seed(t, s)
		dates := DateRange{Start: "2025-03-02"}

		counts, err := s.SummarizeLab(ctx, "QML", dates)
		require.NoError(t, err)

		var fromListings domain.ResultCounts
		for _, r := range domain.Results {
			jobs, _, err := s.ListJobsByLab(ctx, "QML", JobFilter{Start: dates.Start, Result: r}, Page{})
			require.NoError(t, err)
			for _, j := range jobs {
				fromListings.Add(j.Result, j.Urgent)
			}
		}
		assert.Equal(t, fromListings, counts)
	})

	t.Run("labs", func(t *testing.T) {
		s := newStore(t)

		added, err := s.AddLabs(ctx, []string{"SNP", "QML", "SNP"})
		require.NoError(t, err)
		assert.Equal(t, 2, added)

		added, err = s.AddLabs(ctx, []string{"QML", "ACL"})
		require.NoError(t, err)
		assert.Equal(t, 1, added)

		labs, err := s.ListLabs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"ACL", "QML", "SNP"}, labs)

		ok, err := s.LabExists(ctx, "QML")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.LabExists(ctx, "qml")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestMemoryStorage(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) store {
		return NewMemoryStorage()
	})
}

func TestPostgresStorageIntegration(t *testing.T) {
	dsn := os.Getenv("ANALYSIS_POSTGRES_DSN_INTEGRATION")
	if dsn == "" {
		t.Skip("set ANALYSIS_POSTGRES_DSN_INTEGRATION to run Postgres integration tests")
	}

	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	pg := NewPostgresStorage(db, logger.NewDiscard())
	require.NoError(t, pg.Migrate(context.Background()))

	runStoreSuite(t, func(t *testing.T) store {
		_, err := db.Exec(`TRUNCATE analysis_jobs, labs`)
		require.NoError(t, err, fmt.Sprintf("truncate before %s", t.Name()))
		return pg
	})
}
