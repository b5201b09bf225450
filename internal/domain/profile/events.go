package profile

import (
	"time"

	"github.com/alem-hub/afterschool-matching/internal/domain/shared"
)

// ProfileUpsertedEvent - снимок профиля сохранён с новой версией.
type ProfileUpsertedEvent struct {
	shared.BaseEvent
	Kind    OwnerKind `json:"kind"`
	Version int64     `json:"version"`
}

// Payload implements shared.Event.
func (e ProfileUpsertedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"kind":    string(e.Kind),
		"version": e.Version,
	}
}

// NewProfileUpsertedEvent создаёт событие сохранения профиля.
func NewProfileUpsertedEvent(kind OwnerKind, ownerID string, version int64, at time.Time) ProfileUpsertedEvent {
	return ProfileUpsertedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventProfileUpserted, ownerID, at),
		Kind:      kind,
		Version:   version,
	}
}
