package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"promisetracker/internal/models"
)

// Action names an auditable pipeline event. It doubles as the outbox
// event_type and the Kafka record's event-type header.
type Action string

const (
	ActionLinkConfirmed       Action = "link_confirmed"
	ActionLinkRejected        Action = "link_rejected"
	ActionEvidenceQuarantined Action = "evidence_quarantined"
	ActionPromiseEdited       Action = "promise_edited"
	ActionEvidenceEdited      Action = "evidence_edited"
)

// Aggregate is the record family an event is keyed by. Kafka partitions by
// aggregate id so one record's events stay ordered.
type Aggregate string

const (
	AggregateLink     Aggregate = "potential_link"
	AggregateEvidence Aggregate = "evidence_item"
	AggregatePromise  Aggregate = "promise"
)

// Event captures one pipeline decision. Only the fields relevant to the
// action are set.
type Event struct {
	ID          uuid.UUID `json:"id"`
	Action      Action    `json:"action"`
	Timestamp   time.Time `json:"timestamp"`
	ActorID     string    `json:"actor_id,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
	LinkID      string    `json:"link_id,omitempty"`
	PromiseID   string    `json:"promise_id,omitempty"`
	EvidenceID  string    `json:"evidence_id,omitempty"`
	Decision    string    `json:"decision,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	ChangedKeys []string  `json:"changed_keys,omitempty"`
}

func (e Event) aggregate() (Aggregate, string) {
	switch {
	case e.LinkID != "":
		return AggregateLink, e.LinkID
	case e.Action == ActionPromiseEdited:
		return AggregatePromise, e.PromiseID
	default:
		return AggregateEvidence, e.EvidenceID
	}
}

// OutboxEntry serializes e for the transactional outbox.
func (e Event) OutboxEntry() (*models.OutboxEntry, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal audit payload: %w", err)
	}
	aggType, aggID := e.aggregate()
	return &models.OutboxEntry{
		ID:            e.ID,
		AggregateType: string(aggType),
		AggregateID:   aggID,
		EventType:     string(e.Action),
		Payload:       payload,
		CreatedAt:     e.Timestamp,
	}, nil
}

// DecodeEvent parses an outbox or Kafka payload.
func DecodeEvent(payload []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(payload, &e); err != nil {
		return Event{}, fmt.Errorf("unmarshal audit payload: %w", err)
	}
	return e, nil
}
