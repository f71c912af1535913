// Package events publishes checklist engine domain events to RabbitMQ.
package events

import (
	"context"

	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/domain"
	"github.com/kitchensafe/kitchensafe-backend/pkg/logger"
	"github.com/kitchensafe/kitchensafe-backend/pkg/messaging"
)

// ServiceName is the source stamped on every published envelope.
const ServiceName = "checklist-service"

// Sender delivers one event. *messaging.Publisher implements it.
type Sender interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// Publisher publishes checklist events. Publishing happens after the
// originating transaction committed, so failures are logged, never returned.
// A Publisher without a sender drops everything.
type Publisher struct {
	sender Sender
	logger *logger.Logger
}

// NewPublisher wraps sender; sender may be nil when messaging is disabled.
func NewPublisher(sender Sender, log *logger.Logger) *Publisher {
	return &Publisher{
		sender: sender,
		logger: log.WithComponent("events"),
	}
}

// NewRabbitPublisher declares the checklist exchange and publishes to it.
func NewRabbitPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*Publisher, error) {
	p, err := messaging.NewPublisher(rmq, messaging.ExchangeChecklistEvents, ServiceName, log)
	if err != nil {
		return nil, err
	}
	return NewPublisher(p, log), nil
}

// GenerationCompleted announces the outcome of a scheduler run.
func (p *Publisher) GenerationCompleted(ctx context.Context, data messaging.GenerationCompletedEvent) {
	p.publish(ctx, messaging.EventGenerationCompleted, data)
}

// ChecklistCompleted announces that the last item of c was submitted.
func (p *Publisher) ChecklistCompleted(ctx context.Context, c *domain.Checklist) {
	data := messaging.ChecklistCompletedEvent{
		ChecklistID:    c.ID,
		SiteID:         c.SiteID,
		OrganizationID: c.OrganizationID,
		CategoryName:   c.CategoryName,
		ChecklistDate:  c.ChecklistDate.String(),
	}
	if c.CompletedByID != nil {
		data.CompletedByID = *c.CompletedByID
	}
	if c.CompletedAt != nil {
		data.CompletedAt = *c.CompletedAt
	}
	p.publish(ctx, messaging.EventChecklistCompleted, data)
}

// DefectCreated announces a new defect, manual or automatic.
func (p *Publisher) DefectCreated(ctx context.Context, d *domain.Defect) {
	data := messaging.DefectCreatedEvent{
		DefectID:        d.ID,
		SiteID:          d.SiteID,
		OrganizationID:  d.OrganizationID,
		ChecklistItemID: d.ChecklistItemID,
		Title:           d.Title,
		Severity:        string(d.Severity),
		AutoGenerated:   d.AutoGenerated,
	}
	if d.ReportedByID != nil {
		data.ReportedByID = *d.ReportedByID
	}
	p.publish(ctx, messaging.EventDefectCreated, data)
}

// DefectClosed announces that d was closed.
func (p *Publisher) DefectClosed(ctx context.Context, d *domain.Defect) {
	data := messaging.DefectClosedEvent{
		DefectID:       d.ID,
		SiteID:         d.SiteID,
		OrganizationID: d.OrganizationID,
	}
	if d.ClosedByID != nil {
		data.ClosedByID = *d.ClosedByID
	}
	if d.ClosedAt != nil {
		data.ClosedAt = *d.ClosedAt
	}
	p.publish(ctx, messaging.EventDefectClosed, data)
}

func (p *Publisher) publish(ctx context.Context, eventType string, data interface{}) {
	if p == nil || p.sender == nil {
		return
	}
	if err := p.sender.Publish(ctx, eventType, data); err != nil {
		p.logger.Error().Err(err).Str("event_type", eventType).Msg("failed to publish event")
	}
}
