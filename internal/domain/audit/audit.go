// Package audit defines the audit trail written after each successful
// workflow operation.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	appctx "crm/internal/core/context"
	"crm/internal/core/id"
)

// Entry is one audit record: who did what to which entity, with the entity
// state before and after.
type Entry struct {
	ID         id.ID     `json:"id"`
	EntityType string    `json:"entityType"`
	EntityID   string    `json:"entityId"`
	Action     string    `json:"action"`
	ActorID    string    `json:"actorId"`
	RequestID  string    `json:"requestId,omitempty"`
	Before     any       `json:"before,omitempty"`
	After      any       `json:"after,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Recorder stores audit entries. Failures are reported to the caller, who
// decides whether they matter.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// NewEntry fills ID, actor, request ID and timestamp from ctx.
func NewEntry(ctx context.Context, entityType, entityID, action string, before, after any) Entry {
	return Entry{
		ID:         id.New(),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		ActorID:    appctx.GetUserID(ctx),
		RequestID:  appctx.GetRequestID(ctx),
		Before:     before,
		After:      after,
		CreatedAt:  time.Now().UTC(),
	}
}

// Changes returns a field-level diff of Before and After as seen through
// their JSON encoding.
func (e Entry) Changes() (map[string]any, error) {
	before, err := toMap(e.Before)
	if err != nil {
		return nil, fmt.Errorf("encode before: %w", err)
	}
	after, err := toMap(e.After)
	if err != nil {
		return nil, fmt.Errorf("encode after: %w", err)
	}
	return Diff(before, after), nil
}

func toMap(v any) (map[string]any, error) {
	if v == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any)
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Diff returns {"old", "new"} pairs for every key whose value differs.
func Diff(oldState, newState map[string]any) map[string]any {
	changes := make(map[string]any)

	for key, newVal := range newState {
		oldVal, exists := oldState[key]
		if !exists || !reflect.DeepEqual(oldVal, newVal) {
			changes[key] = map[string]any{"old": oldVal, "new": newVal}
		}
	}
	for key, oldVal := range oldState {
		if _, exists := newState[key]; !exists {
			changes[key] = map[string]any{"old": oldVal, "new": nil}
		}
	}

	return changes
}
