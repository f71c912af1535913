package consumers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/domain"
	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/service"
	apperrors "github.com/kitchensafe/kitchensafe-backend/pkg/errors"
	"github.com/kitchensafe/kitchensafe-backend/pkg/logger"
	"github.com/kitchensafe/kitchensafe-backend/pkg/messaging"
	"github.com/kitchensafe/kitchensafe-backend/pkg/tenant"
)

// QueueInstantiate is the queue other services use to request event
// checklists.
const QueueInstantiate = "checklist-service.instantiate"

// Instantiator creates event checklists.
type Instantiator interface {
	InstantiateEvent(ctx context.Context, scope tenant.Scope, req service.EventRequest) (*domain.Checklist, error)
}

// InstantiateConsumer turns checklist.instantiate.requested events into
// event checklists. Requests arrive from trusted services, so they run under
// the system scope.
type InstantiateConsumer struct {
	consumer  *messaging.Consumer
	scheduler Instantiator
	logger    *logger.Logger
}

// NewInstantiateConsumer declares the queue, binds it and registers the
// handler.
func NewInstantiateConsumer(rmq *messaging.RabbitMQ, scheduler Instantiator, log *logger.Logger) (*InstantiateConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, QueueInstantiate, log)
	if err != nil {
		return nil, err
	}
	if err := consumer.Subscribe(messaging.ExchangeChecklistEvents, messaging.EventInstantiateRequested); err != nil {
		return nil, err
	}

	c := &InstantiateConsumer{
		consumer:  consumer,
		scheduler: scheduler,
		logger:    log.WithComponent("instantiate-consumer"),
	}
	c.Register(consumer)
	return c, nil
}

// Register attaches the handler to consumer.
func (c *InstantiateConsumer) Register(consumer *messaging.Consumer) {
	consumer.RegisterHandler(messaging.EventInstantiateRequested, c.handleInstantiateRequested)
}

// Start starts consuming messages
func (c *InstantiateConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

func (c *InstantiateConsumer) handleInstantiateRequested(ctx context.Context, event *messaging.Event) error {
	var data messaging.InstantiateRequestedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return messaging.Permanent(err)
	}

	req := service.EventRequest{
		CategoryID: data.CategoryID,
		SiteID:     data.SiteID,
		Metadata:   data.Metadata,
	}
	if et := strings.TrimSpace(data.EventType); et != "" {
		req.EventType = &et
	}

	log := c.logger.WithCorrelationID(event.CorrelationID)
	checklist, err := c.scheduler.InstantiateEvent(ctx, tenant.SystemScope(), req)
	if err != nil {
		log.Warn().Err(err).
			Str("event_id", event.ID).
			Int64("category_id", data.CategoryID).
			Int64("site_id", data.SiteID).
			Msg("failed to instantiate event checklist")
		if rejected(err) {
			return messaging.Permanent(err)
		}
		return err
	}

	log.Info().
		Str("event_id", event.ID).
		Int64("checklist_id", checklist.ID).
		Int64("site_id", checklist.SiteID).
		Msg("event checklist instantiated")
	return nil
}

// rejected reports whether err is the caller's fault; redelivering the same
// request cannot succeed.
func rejected(err error) bool {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.StatusCode >= http.StatusBadRequest && appErr.StatusCode < http.StatusInternalServerError
}
