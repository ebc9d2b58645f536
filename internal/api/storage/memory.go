package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cuongbtq/pathogen-analysis/internal/api/domain"
	"github.com/cuongbtq/pathogen-analysis/internal/api/model"
)

// MemoryStorage implements Repository and LabStore in process memory. It is
// used by tests and by the memory database driver.
type MemoryStorage struct {
	mu   sync.RWMutex
	jobs map[string]model.AnalysisJob
	labs map[string]struct{}
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		jobs: make(map[string]model.AnalysisJob),
		labs: make(map[string]struct{}),
	}
}

func (m *MemoryStorage) CreateJob(_ context.Context, job *model.AnalysisJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.RequestID]; ok {
		return fmt.Errorf("%w: %s", domain.ErrJobConflict, job.RequestID)
	}
	m.jobs[job.RequestID] = *job
	return nil
}

func (m *MemoryStorage) GetJob(_ context.Context, requestID string) (*model.AnalysisJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[requestID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return &job, nil
}

func (m *MemoryStorage) UpdateJobResult(_ context.Context, requestID string, result domain.Result, updatedAt string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[requestID]
	if !ok {
		return domain.ErrJobNotFound
	}
	job.Result = result
	job.UpdatedAt = updatedAt
	m.jobs[requestID] = job
	return nil
}

func (m *MemoryStorage) UpdateJobLab(_ context.Context, requestID, labID, updatedAt string) (*model.AnalysisJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[requestID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	job.LabID = labID
	job.UpdatedAt = updatedAt
	m.jobs[requestID] = job
	return &job, nil
}

func inRange(createdAt, start, end string) bool {
	if start != "" && createdAt < start {
		return false
	}
	if end != "" && createdAt > end {
		return false
	}
	return true
}

func (f JobFilter) matches(job model.AnalysisJob) bool {
	if !inRange(job.CreatedAt, f.Start, f.End) {
		return false
	}
	if f.PatientID != "" && job.PatientID != f.PatientID {
		return false
	}
	if f.Result != "" && job.Result != f.Result {
		return false
	}
	if f.Urgent != nil && job.Urgent != *f.Urgent {
		return false
	}
	return true
}

// selectJobs returns the matching jobs ordered like the SQL listings. Callers
// hold the read lock.
func (m *MemoryStorage) selectJobs(match func(model.AnalysisJob) bool) []model.AnalysisJob {
	out := []model.AnalysisJob{}
	for _, job := range m.jobs {
		if match(job) {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].RequestID < out[j].RequestID
	})
	return out
}

func (m *MemoryStorage) ListJobsByLab(_ context.Context, labID string, filter JobFilter, page Page) ([]model.AnalysisJob, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := m.selectJobs(func(job model.AnalysisJob) bool {
		return job.LabID == labID && filter.matches(job)
	})
	total := len(jobs)

	if page.Offset > 0 {
		if page.Offset >= len(jobs) {
			return []model.AnalysisJob{}, total, nil
		}
		jobs = jobs[page.Offset:]
	}
	if page.Limit > 0 && page.Limit < len(jobs) {
		jobs = jobs[:page.Limit]
	}

	return jobs, total, nil
}

func (m *MemoryStorage) ListJobsByPatient(_ context.Context, patientID string, filter JobFilter) ([]model.AnalysisJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	filter.PatientID = patientID
	return m.selectJobs(filter.matches), nil
}

func (m *MemoryStorage) SummarizeLab(_ context.Context, labID string, dates DateRange) (domain.ResultCounts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var counts domain.ResultCounts
	for _, job := range m.jobs {
		if job.LabID == labID && inRange(job.CreatedAt, dates.Start, dates.End) {
			counts.Add(job.Result, job.Urgent)
		}
	}
	return counts, nil
}

func (m *MemoryStorage) LabExists(_ context.Context, labID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.labs[labID]
	return ok, nil
}

func (m *MemoryStorage) ListLabs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	labs := make([]string, 0, len(m.labs))
	for id := range m.labs {
		labs = append(labs, id)
	}
	sort.Strings(labs)
	return labs, nil
}

func (m *MemoryStorage) AddLabs(_ context.Context, labIDs []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	added := 0
	for _, id := range labIDs {
		if _, ok := m.labs[id]; ok {
			continue
		}
		m.labs[id] = struct{}{}
		added++
	}
	return added, nil
}
