package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/pathogen-analysis/internal/api/domain"
	"github.com/cuongbtq/pathogen-analysis/internal/api/model"
)

const contentTypeJSON = "application/json"

// ResultEvent is published once a job has its final verdict.
type ResultEvent struct {
	RequestID string        `json:"request_id"`
	LabID     string        `json:"lab_id"`
	PatientID string        `json:"patient_id"`
	Result    domain.Result `json:"result"`
	Urgent    bool          `json:"urgent"`
	UpdatedAt string        `json:"updated_at"`
}

// NewResultEvent builds the event for job.
func NewResultEvent(job *model.AnalysisJob) ResultEvent {
	return ResultEvent{
		RequestID: job.RequestID,
		LabID:     job.LabID,
		PatientID: job.PatientID,
		Result:    job.Result,
		Urgent:    job.Urgent,
		UpdatedAt: job.UpdatedAt,
	}
}

// ResultPublisher announces final job results.
type ResultPublisher interface {
	PublishResult(ctx context.Context, job *model.AnalysisJob) error
}

// Broker is the transport the publisher writes to. *rabbitmq.Client
// satisfies it.
type Broker interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// BrokerPublisher publishes result events as JSON through a Broker.
type BrokerPublisher struct {
	broker Broker
	logger *slog.Logger
}

func NewBrokerPublisher(broker Broker, logger *slog.Logger) *BrokerPublisher {
	return &BrokerPublisher{broker: broker, logger: logger}
}

func (p *BrokerPublisher) PublishResult(ctx context.Context, job *model.AnalysisJob) error {
	body, err := json.Marshal(NewResultEvent(job))
	if err != nil {
		return fmt.Errorf("failed to marshal result event: %w", err)
	}

	if err := p.broker.PublishWithRetry(ctx, body, contentTypeJSON); err != nil {
		return fmt.Errorf("failed to publish result event: %w", err)
	}

	p.logger.Debug("Result event published",
		slog.String("request_id", job.RequestID),
		slog.String("result", string(job.Result)),
	)

	return nil
}

// NopPublisher drops every event. It is used when events are disabled.
type NopPublisher struct{}

func (NopPublisher) PublishResult(context.Context, *model.AnalysisJob) error { return nil }
