package events

import "time"

// ChangeRecord is the structured notification emitted by every
// state-changing operation, for auditing and indexing.
type ChangeRecord struct {
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	PreviousState string    `json:"previous_state"`
	NewState      string    `json:"new_state"`
	Timestamp     time.Time `json:"timestamp"`
}

// Sink receives change records. Implementations must not block the
// emitting operation on delivery failures; a failed emit is logged by the
// sink, never propagated back into registry logic.
type Sink interface {
	Emit(record ChangeRecord)
}

// Discard is a no-op sink for components wired without auditing.
type Discard struct{}

func (Discard) Emit(ChangeRecord) {}

// Fanout delivers each record to every wrapped sink in order.
type Fanout []Sink

func (f Fanout) Emit(record ChangeRecord) {
	for _, sink := range f {
		sink.Emit(record)
	}
}

// Record builds a change record stamped with the current time.
func Record(entityType, entityID, previous, next string) ChangeRecord {
	return ChangeRecord{
		EntityType:    entityType,
		EntityID:      entityID,
		PreviousState: previous,
		NewState:      next,
		Timestamp:     time.Now().UTC(),
	}
}
