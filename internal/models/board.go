package models

import (
	"fmt"
	"time"
)

// LifecycleState is the state of a board. Boards move only from active to archived.
type LifecycleState string

const (
	StateActive   LifecycleState = "active"
	StateArchived LifecycleState = "archived"
)

// ParseLifecycleState accepts the stored or query representation of a state
func ParseLifecycleState(s string) (LifecycleState, error) {
	switch LifecycleState(s) {
	case StateActive, StateArchived:
		return LifecycleState(s), nil
	}
	return "", fmt.Errorf("unknown lifecycle state %q", s)
}

// Board is one reward goal with a bounded sticker counter
type Board struct {
	ID             string         `json:"id"`
	OwnerID        string         `json:"ownerId"`
	Title          string         `json:"title"`
	TotalSlots     int            `json:"totalSlots"`
	CurrentCount   int            `json:"currentCount"`
	RewardImageRef string         `json:"rewardImageRef"`
	LifecycleState LifecycleState `json:"lifecycleState"`
	CompletedAt    *time.Time     `json:"completedAt,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// IsComplete reports whether every slot is filled
func (b *Board) IsComplete() bool {
	return b.CurrentCount == b.TotalSlots
}

// IsArchived reports whether the board has reached its terminal state
func (b *Board) IsArchived() bool {
	return b.LifecycleState == StateArchived
}

// Fields returns the board as store document fields, without the id.
func (b *Board) Fields() map[string]interface{} {
	fields := map[string]interface{}{
		FieldOwnerID:        b.OwnerID,
		FieldTitle:          b.Title,
		FieldTotalSlots:     int64(b.TotalSlots),
		FieldCurrentCount:   int64(b.CurrentCount),
		FieldRewardImageRef: b.RewardImageRef,
		FieldLifecycleState: string(b.LifecycleState),
		FieldCompletedAt:    nil,
		FieldCreatedAt:      b.CreatedAt.UTC(),
	}
	if b.CompletedAt != nil {
		fields[FieldCompletedAt] = b.CompletedAt.UTC()
	}
	return fields
}

// DecodeBoard builds a Board from an untyped store document. It fails closed:
// a missing or malformed required field, or a document that breaks the board
// invariants, is reported as a validation error instead of being repaired.
func DecodeBoard(doc map[string]interface{}) (*Board, error) {
	d := decoder{doc: doc}

	b := &Board{
		ID:             d.requiredString(FieldID),
		OwnerID:        d.requiredString(FieldOwnerID),
		Title:          d.requiredString(FieldTitle),
		TotalSlots:     d.requiredInt(FieldTotalSlots),
		CurrentCount:   d.requiredInt(FieldCurrentCount),
		RewardImageRef: d.optionalString(FieldRewardImageRef),
		CompletedAt:    d.optionalTime(FieldCompletedAt),
	}
	if created := d.optionalTime(FieldCreatedAt); created != nil {
		b.CreatedAt = *created
	}

	state := d.requiredString(FieldLifecycleState)
	if d.err != nil {
		return nil, d.err
	}

	parsed, err := ParseLifecycleState(state)
	if err != nil {
		return nil, invalid(FieldLifecycleState, err.Error())
	}
	b.LifecycleState = parsed

	switch {
	case b.TotalSlots <= 0:
		return nil, invalid(FieldTotalSlots, "must be positive")
	case b.CurrentCount < 0 || b.CurrentCount > b.TotalSlots:
		return nil, invalid(FieldCurrentCount, fmt.Sprintf("%d outside [0, %d]", b.CurrentCount, b.TotalSlots))
	case b.IsArchived() && b.CompletedAt == nil:
		return nil, invalid(FieldCompletedAt, "archived board has no completion time")
	}
	return b, nil
}
