package model

import "github.com/cuongbtq/pathogen-analysis/internal/api/domain"

// AnalysisJob is one stored analysis request. Timestamps are kept as
// domain.TimestampLayout strings.
type AnalysisJob struct {
	RequestID string        `db:"request_id"`
	PatientID string        `db:"patient_id"`
	LabID     string        `db:"lab_id"`
	ImagePath string        `db:"image_path"`
	Result    domain.Result `db:"result"`
	Urgent    bool          `db:"urgent"`
	CreatedAt string        `db:"created_at"`
	UpdatedAt string        `db:"updated_at"`
}

// Lab is an entry of the lab reference set.
type Lab struct {
	LabID string `db:"lab_id"`
}
