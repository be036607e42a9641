package model

import "time"

// Routing keys published to the topic exchange.
const (
	EventWorkoutCreated = "workout.created"
	EventWorkoutUpdated = "workout.updated"
	EventWorkoutDeleted = "workout.deleted"
)

// Event is a domain event bound for the broker. It is never retried.
type Event struct {
	// RoutingKey has the form <entityType>.<eventVerb>.
	RoutingKey string
	Payload    map[string]any
	OccurredAt time.Time
}

// NewEvent builds an event routed as entity.verb.
func NewEvent(entity, verb string, payload map[string]any) Event {
	if payload == nil {
		payload = map[string]any{}
	}
	return Event{
		RoutingKey: entity + "." + verb,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}
}

// CircuitOpenedEvent is emitted when a dependency breaker trips.
type CircuitOpenedEvent struct {
	Dependency   string
	FailureCount uint32
	OpenedAt     time.Time
	// Reopened is true when a half-open trial failed.
	Reopened bool
}

// CircuitClosedEvent is emitted when a half-open trial succeeds.
type CircuitClosedEvent struct {
	Dependency  string
	OpenedFor   time.Duration
	RecoveredAt time.Time
}
