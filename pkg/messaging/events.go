package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// Published by the checklist service
	EventGenerationCompleted = "checklist.generation.completed"
	EventChecklistCompleted  = "checklist.completed"
	EventDefectCreated       = "checklist.defect.created"
	EventDefectClosed        = "checklist.defect.closed"

	// Consumed by the checklist service
	EventInstantiateRequested = "checklist.instantiate.requested"
)

// Exchange names
const (
	ExchangeChecklistEvents = "checklist.events"
	ExchangeDeadLetter      = "checklist.dlx"
)

// Event is the envelope every message on the bus carries.
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// GenerationCompletedEvent summarises one scheduler run.
type GenerationCompletedEvent struct {
	Date      string  `json:"date"`
	SiteIDs   []int64 `json:"site_ids,omitempty"`
	Created   int     `json:"created"`
	Skipped   int     `json:"skipped"`
	Failed    int     `json:"failed"`
	Triggered string  `json:"triggered_by"` // "cron", "api" or "cli"
}

// ChecklistCompletedEvent is published when the last item of a checklist is submitted.
type ChecklistCompletedEvent struct {
	ChecklistID    int64     `json:"checklist_id"`
	SiteID         int64     `json:"site_id"`
	OrganizationID int64     `json:"organization_id"`
	CategoryName   string    `json:"category_name"`
	ChecklistDate  string    `json:"checklist_date"`
	CompletedByID  int64     `json:"completed_by_id"`
	CompletedAt    time.Time `json:"completed_at"`
}

// DefectCreatedEvent is published for manual and automatic defects.
type DefectCreatedEvent struct {
	DefectID        int64  `json:"defect_id"`
	SiteID          int64  `json:"site_id"`
	OrganizationID  int64  `json:"organization_id"`
	ChecklistItemID *int64 `json:"checklist_item_id,omitempty"`
	Title           string `json:"title"`
	Severity        string `json:"severity"`
	AutoGenerated   bool   `json:"auto_generated"`
	ReportedByID    int64  `json:"reported_by_id"`
}

// DefectClosedEvent is published when a defect reaches the closed state.
type DefectClosedEvent struct {
	DefectID       int64     `json:"defect_id"`
	SiteID         int64     `json:"site_id"`
	OrganizationID int64     `json:"organization_id"`
	ClosedByID     int64     `json:"closed_by_id"`
	ClosedAt       time.Time `json:"closed_at"`
}

// InstantiateRequestedEvent asks the checklist service to materialise an
// event-driven checklist (a delivery arrived, a batch was cooked).
type InstantiateRequestedEvent struct {
	CategoryID int64           `json:"category_id"`
	SiteID     int64           `json:"site_id"`
	EventType  string          `json:"event_type,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return uuid.NewString()
}
